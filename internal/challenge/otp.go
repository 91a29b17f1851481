package challenge

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"io"
)

// DefaultDigits is the code length used when none is configured.
const DefaultDigits = 6

// GenerateCode returns a numeric code of the given length using crypto/rand.
func GenerateCode(digits int) (string, error) {
	return generateCode(rand.Reader, digits)
}

// uniformLimit is the largest multiple of 10 that fits in a byte. Bytes at or above it are redrawn
// so every digit is equally likely.
const uniformLimit = 250

func generateCode(r io.Reader, digits int) (string, error) {
	if digits <= 0 {
		digits = DefaultDigits
	}
	s := make([]byte, 0, digits)
	buf := make([]byte, digits+digits/4+1)
	for len(s) < digits {
		if _, err := io.ReadFull(r, buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if b >= uniformLimit {
				continue
			}
			s = append(s, '0'+b%10)
			if len(s) == digits {
				break
			}
		}
	}
	return string(s), nil
}

// HashCode returns the hex-encoded SHA-256 of code.
func HashCode(code string) string {
	h := sha256.Sum256([]byte(code))
	return hex.EncodeToString(h[:])
}

// CodeMatches compares the hash of code with storedHash in constant time.
func CodeMatches(code, storedHash string) bool {
	return subtle.ConstantTimeCompare([]byte(HashCode(code)), []byte(storedHash)) == 1
}
