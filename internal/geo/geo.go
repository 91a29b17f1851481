// Package geo resolves the country of a login from proxy headers or a static IP table.
package geo

import (
	"context"
	"net/netip"
	"strings"
)

// Unknown is the country code proxies send when they cannot place an address.
const Unknown = "XX"

// Resolver maps a client IP to an ISO 3166-1 alpha-2 country code. "" means unknown.
type Resolver interface {
	Country(ctx context.Context, ip string) (string, error)
}

type headerKey struct{}

// WithHeaderCountry stores the country reported by an edge proxy (e.g. CF-IPCountry) on ctx.
func WithHeaderCountry(ctx context.Context, country string) context.Context {
	return context.WithValue(ctx, headerKey{}, country)
}

// HeaderCountry returns the proxy-reported country stored on ctx.
func HeaderCountry(ctx context.Context) string {
	v, _ := ctx.Value(headerKey{}).(string)
	return v
}

// Normalize upper-cases a country code and maps empty, unknown and malformed values to "".
func Normalize(country string) string {
	c := strings.ToUpper(strings.TrimSpace(country))
	if len(c) != 2 || c == Unknown {
		return ""
	}
	for _, r := range c {
		if r < 'A' || r > 'Z' {
			return ""
		}
	}
	return c
}

// HeaderResolver trusts the proxy header stored on the context and falls back to Next.
type HeaderResolver struct {
	Next Resolver
}

// Country implements Resolver.
func (h HeaderResolver) Country(ctx context.Context, ip string) (string, error) {
	if c := Normalize(HeaderCountry(ctx)); c != "" {
		return c, nil
	}
	if h.Next == nil {
		return "", nil
	}
	return h.Next.Country(ctx, ip)
}

// StaticResolver maps addresses by longest-prefix match over a fixed table.
type StaticResolver struct {
	prefixes []entry
}

type entry struct {
	prefix  netip.Prefix
	country string
}

// NewStaticResolver builds a resolver from "cidr-or-ip" → country pairs. Invalid keys are skipped.
func NewStaticResolver(table map[string]string) *StaticResolver {
	s := &StaticResolver{}
	for k, v := range table {
		p, err := netip.ParsePrefix(k)
		if err != nil {
			addr, aerr := netip.ParseAddr(k)
			if aerr != nil {
				continue
			}
			p = netip.PrefixFrom(addr, addr.BitLen())
		}
		s.prefixes = append(s.prefixes, entry{prefix: p.Masked(), country: Normalize(v)})
	}
	return s
}

// Country implements Resolver.
func (s *StaticResolver) Country(ctx context.Context, ip string) (string, error) {
	addr, err := netip.ParseAddr(strings.TrimSpace(ip))
	if err != nil {
		return "", nil
	}
	addr = addr.Unmap()
	best, bits := "", -1
	for _, e := range s.prefixes {
		if e.prefix.Contains(addr) && e.prefix.Bits() > bits {
			best, bits = e.country, e.prefix.Bits()
		}
	}
	return best, nil
}

// ParseTable parses "cidr=CC,cidr=CC" as used by the GEO_STATIC_TABLE setting.
func ParseTable(raw string) map[string]string {
	out := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok || k == "" {
			continue
		}
		out[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return out
}
