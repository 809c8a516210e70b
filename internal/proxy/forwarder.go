// Package proxy forwards admitted requests to downstream services.
package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/fursa-platform/gateway/internal/observability"
	"github.com/fursa-platform/gateway/internal/route"
)

// hopHeaders are connection-scoped headers that must not be forwarded.
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailers",
	"Transfer-Encoding",
	"Upgrade",
}

// Forwarder reverse-proxies requests to downstream services over a
// shared pooled transport.
type Forwarder struct {
	targets   map[string]*url.URL
	transport http.RoundTripper
	logger    observability.Logger
}

// ForwarderOption is a functional option for the forwarder.
type ForwarderOption func(*Forwarder)

// WithTransport overrides the transport, for tests.
func WithTransport(transport http.RoundTripper) ForwarderOption {
	return func(f *Forwarder) {
		f.transport = transport
	}
}

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) ForwarderOption {
	return func(f *Forwarder) {
		f.logger = logger
	}
}

// NewForwarder creates a forwarder for the given service base URLs.
func NewForwarder(services map[string]string, opts ...ForwarderOption) (*Forwarder, error) {
	targets := make(map[string]*url.URL, len(services))
	for name, raw := range services {
		u, err := url.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("service %s: invalid url %q: %w", name, raw, err)
		}
		if u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("service %s: url %q must be absolute", name, raw)
		}
		targets[name] = u
	}

	f := &Forwarder{
		targets:   targets,
		transport: defaultTransport(),
		logger:    observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

func defaultTransport() *http.Transport {
	return &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

// Forward proxies the request to the service named by rule and reports
// whether the call counts as a failure for circuit breaking purposes:
// transport errors, timeouts, and 5xx responses fail; 4xx responses are
// the downstream's verdict on the request and do not.
func (f *Forwarder) Forward(w http.ResponseWriter, r *http.Request, rule *route.Rule) bool {
	target, ok := f.targets[rule.Service]
	if !ok {
		f.logger.Error("no target configured for service",
			observability.String("service", rule.Service),
		)
		writeProxyError(w, http.StatusBadGateway, "no upstream configured")
		return true
	}

	ctx, cancel := context.WithTimeout(r.Context(), rule.Timeout)
	defer cancel()
	r = r.WithContext(ctx)

	failed := false
	rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

	rp := &httputil.ReverseProxy{
		Director:  f.director(target),
		Transport: f.transport,
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			failed = true

			status := http.StatusBadGateway
			message := "upstream connection failed"
			if errors.Is(err, context.DeadlineExceeded) {
				status = http.StatusGatewayTimeout
				message = "upstream timed out"
			}

			f.logger.Error("proxy error",
				observability.String("service", rule.Service),
				observability.String("path", r.URL.Path),
				observability.Error(err),
			)

			writeProxyError(w, status, message)
		},
	}

	rp.ServeHTTP(rw, r)

	return failed || rw.status >= http.StatusInternalServerError
}

// director rewrites the request for the target service. Identity
// headers have already been handled by the pipeline; the path and body
// are forwarded verbatim.
func (f *Forwarder) director(target *url.URL) func(*http.Request) {
	return func(req *http.Request) {
		originalHost := req.Host

		req.URL.Scheme = target.Scheme
		req.URL.Host = target.Host
		req.Host = target.Host

		for _, h := range hopHeaders {
			req.Header.Del(h)
		}

		if clientIP, _, err := net.SplitHostPort(req.RemoteAddr); err == nil {
			if prior := req.Header.Get("X-Forwarded-For"); prior != "" {
				clientIP = prior + ", " + clientIP
			}
			req.Header.Set("X-Forwarded-For", clientIP)
		}
		req.Header.Set("X-Forwarded-Host", originalHost)
		if req.TLS != nil {
			req.Header.Set("X-Forwarded-Proto", "https")
		} else {
			req.Header.Set("X-Forwarded-Proto", "http")
		}

		observability.InjectTraceContext(req.Context(), req)
	}
}

func writeProxyError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"status":    status,
		"error":     http.StatusText(status),
		"message":   message,
	})
}

// statusRecorder captures the downstream status for breaker accounting.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// Flush implements http.Flusher for streaming responses.
func (rw *statusRecorder) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
