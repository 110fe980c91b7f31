// Package geo estimates where a reported user is from the IP addresses the
// org recorded for them.
package geo

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/ammario/ipisp/v2"
)

var ErrNoCountry = errors.New("no country for address")

// ASNClient abstracts IP-to-ASN lookups for testing.
type ASNClient interface {
	LookupIP(ctx context.Context, ip net.IP) (*ipisp.Response, error)
}

// cymruClient wraps ipisp for Team Cymru DNS lookups.
type cymruClient struct{}

func (c *cymruClient) LookupIP(ctx context.Context, ip net.IP) (*ipisp.Response, error) {
	return ipisp.LookupIP(ctx, ip)
}

// NewCymruClient returns an ASNClient backed by Team Cymru DNS.
func NewCymruClient() ASNClient {
	return &cymruClient{}
}

// Locator maps IP addresses to ISO country codes.
type Locator struct {
	client ASNClient
	cache  *ttlCache[string, string]
}

// NewLocator returns a Locator. A ttl of zero disables caching.
func NewLocator(client ASNClient, ttl time.Duration) *Locator {
	l := &Locator{client: client}
	if ttl > 0 {
		l.cache = newTTLCache[string, string](ttl)
	}
	return l
}

// CountryCode returns the registry country of ip's announcing network.
func (l *Locator) CountryCode(ctx context.Context, ip string) (string, error) {
	parsed := net.ParseIP(strings.TrimSpace(ip))
	if parsed == nil {
		return "", &net.ParseError{Type: "IP address", Text: ip}
	}
	key := parsed.String()
	if cc, ok := l.cache.get(key); ok {
		return cc, nil
	}

	resp, err := l.client.LookupIP(ctx, parsed)
	if err != nil {
		return "", fmt.Errorf("looking up %s: %w", key, err)
	}
	cc := strings.ToUpper(strings.TrimSpace(resp.Country))
	if cc == "" {
		return "", fmt.Errorf("%w %s", ErrNoCountry, key)
	}
	l.cache.set(key, cc)
	return cc, nil
}
