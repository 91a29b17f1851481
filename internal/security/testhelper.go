package security

// NewTestTokenProvider returns a TokenProvider over a fresh Ed25519 key pair, issuing for
// "session-trust-test" / "session-trust-clients". Tests only.
func NewTestTokenProvider() (*TokenProvider, error) {
	privatePEM, publicPEM, err := GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	signer, pub, err := LoadKeyPair(privatePEM, publicPEM)
	if err != nil {
		return nil, err
	}
	return NewTokenProvider(signer, pub, "session-trust-test", "session-trust-clients"), nil
}
