// Package geoip maps client addresses to ISO country codes for locale
// defaults.
package geoip

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/oschwald/geoip2-golang"
)

// ErrUnavailable is returned when the resolver has no database loaded.
var ErrUnavailable = errors.New("geoip resolver unavailable")

// DefaultCacheSize bounds the number of remembered lookups.
const DefaultCacheSize = 4096

type countryReader interface {
	Country(ip net.IP) (*geoip2.Country, error)
	Close() error
}

// Resolver looks up countries in a MaxMind GeoIP2/GeoLite2 database and
// remembers recent answers. The cache is dropped wholesale when full.
type Resolver struct {
	reader countryReader

	mu    sync.Mutex
	cache map[string]string
	limit int
}

// NewResolver opens the GeoIP database at path. An empty path yields a nil
// resolver whose lookups return ErrUnavailable.
func NewResolver(path string) (*Resolver, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}
	reader, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("geoip: open database: %w", err)
	}
	return newResolver(reader, DefaultCacheSize), nil
}

func newResolver(reader countryReader, limit int) *Resolver {
	return &Resolver{reader: reader, cache: make(map[string]string), limit: limit}
}

// CountryCode returns the ISO country code for ip. Private and loopback
// addresses resolve to "".
func (r *Resolver) CountryCode(ip string) (string, error) {
	if r == nil || r.reader == nil {
		return "", ErrUnavailable
	}
	parsed := net.ParseIP(strings.TrimSpace(ip))
	if parsed == nil {
		return "", fmt.Errorf("geoip: invalid ip %q", ip)
	}
	if parsed.IsLoopback() || parsed.IsPrivate() || parsed.IsUnspecified() {
		return "", nil
	}
	key := parsed.String()

	r.mu.Lock()
	code, ok := r.cache[key]
	r.mu.Unlock()
	if ok {
		return code, nil
	}

	record, err := r.reader.Country(parsed)
	if err != nil {
		return "", fmt.Errorf("geoip: lookup country: %w", err)
	}
	if record != nil {
		code = record.Country.IsoCode
	}

	r.mu.Lock()
	if len(r.cache) >= r.limit {
		r.cache = make(map[string]string)
	}
	r.cache[key] = code
	r.mu.Unlock()
	return code, nil
}

// Close closes the underlying database reader.
func (r *Resolver) Close() error {
	if r == nil || r.reader == nil {
		return nil
	}
	return r.reader.Close()
}
