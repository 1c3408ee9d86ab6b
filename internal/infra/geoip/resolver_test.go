package geoip

import (
	"errors"
	"net"
	"testing"

	"github.com/oschwald/geoip2-golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewResolverWithoutPathIsDisabled(t *testing.T) {
	r, err := NewResolver("  ")
	require.NoError(t, err)
	assert.Nil(t, r)

	_, err = r.CountryCode("8.8.8.8")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.NoError(t, r.Close())
}

func TestNewResolverMissingFile(t *testing.T) {
	_, err := NewResolver(t.TempDir() + "/missing.mmdb")
	assert.Error(t, err)
}

type fakeReader struct {
	countries map[string]string
	lookups   int
}

func (f *fakeReader) Country(ip net.IP) (*geoip2.Country, error) {
	f.lookups++
	code, ok := f.countries[ip.String()]
	if !ok {
		return nil, errors.New("not found")
	}
	rec := &geoip2.Country{}
	rec.Country.IsoCode = code
	return rec, nil
}

func (f *fakeReader) Close() error { return nil }

func TestCountryCodeCachesLookups(t *testing.T) {
	reader := &fakeReader{countries: map[string]string{"36.84.1.1": "ID", "1.1.1.1": "AU"}}
	r := newResolver(reader, 1)

	code, err := r.CountryCode(" 36.84.1.1 ")
	require.NoError(t, err)
	assert.Equal(t, "ID", code)
	code, err = r.CountryCode("36.84.1.1")
	require.NoError(t, err)
	assert.Equal(t, "ID", code)
	assert.Equal(t, 1, reader.lookups)

	code, err = r.CountryCode("1.1.1.1")
	require.NoError(t, err)
	assert.Equal(t, "AU", code)
	_, err = r.CountryCode("36.84.1.1")
	require.NoError(t, err)
	assert.Equal(t, 3, reader.lookups)
}

func TestCountryCodeSkipsLocalAddresses(t *testing.T) {
	reader := &fakeReader{}
	r := newResolver(reader, 8)
	for _, ip := range []string{"127.0.0.1", "10.1.2.3", "192.168.0.9", "::1"} {
		code, err := r.CountryCode(ip)
		require.NoError(t, err)
		assert.Empty(t, code)
	}
	assert.Zero(t, reader.lookups)

	_, err := r.CountryCode("not-an-ip")
	assert.Error(t, err)
	_, err = r.CountryCode("8.8.4.4")
	assert.Error(t, err)
}
