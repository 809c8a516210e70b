package proxy

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fursa-platform/gateway/internal/route"
)

func testRule(service string, timeout time.Duration) *route.Rule {
	return &route.Rule{
		PathPrefix: "/api/v1/" + service,
		Service:    service,
		Category:   route.CategoryGeneral,
		Timeout:    timeout,
	}
}

func TestNewForwarderInvalidURL(t *testing.T) {
	_, err := NewForwarder(map[string]string{"jobs": "://broken"})
	assert.Error(t, err)

	_, err = NewForwarder(map[string]string{"jobs": "/relative"})
	assert.Error(t, err)
}

func TestForwardSuccess(t *testing.T) {
	var gotPath, gotXFH string
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotXFH = r.Header.Get("X-Forwarded-Host")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"job-1"}`))
	}))
	t.Cleanup(backend.Close)

	f, err := NewForwarder(map[string]string{"jobs": backend.URL})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "http://gateway.local/api/v1/jobs", nil)
	rec := httptest.NewRecorder()

	failed := f.Forward(rec, req, testRule("jobs", 5*time.Second))

	assert.False(t, failed)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, `{"id":"job-1"}`, rec.Body.String())
	assert.Equal(t, "/api/v1/jobs", gotPath)
	assert.Equal(t, "gateway.local", gotXFH)
}

func TestForwardSetsXForwardedFor(t *testing.T) {
	var gotXFF string
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotXFF = r.Header.Get("X-Forwarded-For")
	}))
	t.Cleanup(backend.Close)

	f, err := NewForwarder(map[string]string{"jobs": backend.URL})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs", nil)
	req.RemoteAddr = "203.0.113.7:54321"
	rec := httptest.NewRecorder()

	f.Forward(rec, req, testRule("jobs", 5*time.Second))

	assert.Equal(t, "203.0.113.7", gotXFF)
}

func TestForwardDownstream4xxNotFailure(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	t.Cleanup(backend.Close)

	f, err := NewForwarder(map[string]string{"jobs": backend.URL})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs", nil)
	rec := httptest.NewRecorder()

	failed := f.Forward(rec, req, testRule("jobs", 5*time.Second))

	// The downstream's verdict passes through verbatim and does not
	// count against the breaker.
	assert.False(t, failed)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestForwardDownstream5xxIsFailure(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(backend.Close)

	f, err := NewForwarder(map[string]string{"jobs": backend.URL})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs", nil)
	rec := httptest.NewRecorder()

	failed := f.Forward(rec, req, testRule("jobs", 5*time.Second))

	assert.True(t, failed)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestForwardConnectionRefused(t *testing.T) {
	// A closed server guarantees a connection error.
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	backend.Close()

	f, err := NewForwarder(map[string]string{"jobs": backend.URL})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs", nil)
	rec := httptest.NewRecorder()

	failed := f.Forward(rec, req, testRule("jobs", 5*time.Second))

	assert.True(t, failed)
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, float64(502), body["status"])
	assert.Equal(t, "Bad Gateway", body["error"])
}

func TestForwardTimeout(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	t.Cleanup(backend.Close)

	f, err := NewForwarder(map[string]string{"jobs": backend.URL})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs", nil)
	rec := httptest.NewRecorder()

	failed := f.Forward(rec, req, testRule("jobs", 50*time.Millisecond))

	assert.True(t, failed)
	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
}

func TestForwardUnknownService(t *testing.T) {
	f, err := NewForwarder(map[string]string{})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs", nil)
	rec := httptest.NewRecorder()

	failed := f.Forward(rec, req, testRule("jobs", time.Second))

	assert.True(t, failed)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestForwardStripsHopHeaders(t *testing.T) {
	var gotConnection, gotKeepAlive string
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotConnection = r.Header.Get("Connection")
		gotKeepAlive = r.Header.Get("Keep-Alive")
	}))
	t.Cleanup(backend.Close)

	f, err := NewForwarder(map[string]string{"jobs": backend.URL})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs", nil)
	req.Header.Set("Keep-Alive", "timeout=5")
	rec := httptest.NewRecorder()

	f.Forward(rec, req, testRule("jobs", 5*time.Second))

	assert.Empty(t, gotConnection)
	assert.Empty(t, gotKeepAlive)
}

func TestForwardBody(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_, _ = w.Write(body)
	}))
	t.Cleanup(backend.Close)

	f, err := NewForwarder(map[string]string{"jobs": backend.URL})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs",
		strings.NewReader(`{"title":"Backend Engineer"}`))
	rec := httptest.NewRecorder()

	f.Forward(rec, req, testRule("jobs", 5*time.Second))

	assert.Equal(t, `{"title":"Backend Engineer"}`, rec.Body.String())
}
