package pipeline

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// CORS holds precomputed cross-origin response headers.
type CORS struct {
	allowAll     bool
	allowOrigins map[string]bool
	allowMethods string
	allowHeaders string
	maxAge       string
}

// NewCORS precomputes CORS headers from configuration. Empty method and
// header lists fall back to permissive browser defaults.
func NewCORS(origins, methods, headers []string, maxAge time.Duration) *CORS {
	c := &CORS{
		allowOrigins: make(map[string]bool, len(origins)),
		allowMethods: strings.Join(methods, ", "),
		allowHeaders: strings.Join(headers, ", "),
	}
	for _, origin := range origins {
		if origin == "*" {
			c.allowAll = true
		}
		c.allowOrigins[origin] = true
	}
	if c.allowMethods == "" {
		c.allowMethods = "GET, POST, PUT, PATCH, DELETE, OPTIONS"
	}
	if c.allowHeaders == "" {
		c.allowHeaders = "Authorization, Content-Type, X-Request-ID"
	}
	if maxAge > 0 {
		c.maxAge = strconv.Itoa(int(maxAge.Seconds()))
	}
	return c
}

func (c *CORS) originAllowed(origin string) bool {
	return c.allowAll || c.allowOrigins[origin]
}

func (c *CORS) headers(origin string) http.Header {
	h := http.Header{}
	if c.allowAll {
		h.Set("Access-Control-Allow-Origin", "*")
	} else {
		h.Set("Access-Control-Allow-Origin", origin)
		h.Set("Vary", "Origin")
	}
	h.Set("Access-Control-Allow-Methods", c.allowMethods)
	h.Set("Access-Control-Allow-Headers", c.allowHeaders)
	if c.maxAge != "" {
		h.Set("Access-Control-Max-Age", c.maxAge)
	}
	return h
}

// preflightStage answers CORS preflight requests at the edge. They
// carry no credentials and consume no downstream quota, so they halt
// here before authentication and rate limiting.
func preflightStage(cors *CORS) func(*http.Request) Outcome {
	return func(r *http.Request) Outcome {
		if r.Method != http.MethodOptions {
			return Admit(r)
		}
		origin := r.Header.Get("Origin")
		if origin == "" || r.Header.Get("Access-Control-Request-Method") == "" {
			return Admit(r)
		}

		if !cors.originAllowed(origin) {
			return Reject(&Halt{Status: http.StatusNoContent})
		}

		return Reject(&Halt{
			Status: http.StatusNoContent,
			Header: cors.headers(origin),
		})
	}
}
