package middleware

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractNoTrustedProxies(t *testing.T) {
	e := NewClientIPExtractor(nil)

	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "203.0.113.7:54321"
	r.Header.Set(headerXForwardedFor, "10.0.0.1, 198.51.100.9")

	// Headers are ignored without trusted proxies.
	assert.Equal(t, "203.0.113.7", e.Extract(r))
}

func TestExtractTrustedProxyChain(t *testing.T) {
	e := NewClientIPExtractor([]string{"10.0.0.0/8"})

	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "10.0.0.5:443"
	r.Header.Set(headerXForwardedFor, "198.51.100.9, 10.0.0.2")

	// Right to left: 10.0.0.2 is trusted, 198.51.100.9 is the client.
	assert.Equal(t, "198.51.100.9", e.Extract(r))
}

func TestExtractUntrustedPeerIgnoresHeader(t *testing.T) {
	e := NewClientIPExtractor([]string{"10.0.0.0/8"})

	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "203.0.113.7:1234"
	r.Header.Set(headerXForwardedFor, "198.51.100.9")

	assert.Equal(t, "203.0.113.7", e.Extract(r))
}

func TestExtractAllTrustedFallsBack(t *testing.T) {
	e := NewClientIPExtractor([]string{"10.0.0.0/8"})

	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "10.0.0.5:443"
	r.Header.Set(headerXForwardedFor, "10.0.0.3, 10.0.0.2")

	assert.Equal(t, "10.0.0.5", e.Extract(r))
}

func TestExtractSingleIPTrust(t *testing.T) {
	e := NewClientIPExtractor([]string{"10.0.0.5"})

	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "10.0.0.5:443"
	r.Header.Set(headerXForwardedFor, "198.51.100.9")

	assert.Equal(t, "198.51.100.9", e.Extract(r))
}

func TestExtractInvalidCIDRsSkipped(t *testing.T) {
	e := NewClientIPExtractor([]string{"not-a-cidr", "10.0.0.0/8"})

	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "10.0.0.5:443"
	r.Header.Set(headerXForwardedFor, "198.51.100.9")

	assert.Equal(t, "198.51.100.9", e.Extract(r))
}

func TestExtractIPv6(t *testing.T) {
	e := NewClientIPExtractor(nil)

	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "[2001:db8::1]:8080"

	assert.Equal(t, "2001:db8::1", e.Extract(r))
}

func TestStripPortNoPort(t *testing.T) {
	assert.Equal(t, "203.0.113.7", stripPort("203.0.113.7"))
}
