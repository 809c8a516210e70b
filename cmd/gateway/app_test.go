package main

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fursa-platform/gateway/internal/config"
	"github.com/fursa-platform/gateway/internal/observability"
	"github.com/fursa-platform/gateway/internal/route"
)

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Auth.Secret = "test-secret"
	cfg.Routes = []config.RouteConfig{
		{
			PathPrefix: "/api/v1/jobs", Service: "jobs", RequiresAuth: true,
			Category: "general", Timeout: config.Duration(5 * time.Second),
		},
		{
			PathPrefix: "/api/v1/auth", Service: "auth",
			Category: "auth", Timeout: config.Duration(5 * time.Second),
		},
	}
	cfg.Services = map[string]config.ServiceConfig{
		"jobs": {URL: "http://jobs.internal:8080"},
		"auth": {URL: "http://auth.internal:8080"},
	}
	return cfg
}

func TestBuildApplication(t *testing.T) {
	app, err := buildApplication(testConfig(), observability.NopLogger())
	require.NoError(t, err)
	defer app.limiter.Close()

	require.NotNil(t, app.handler)
	require.NotNil(t, app.routes)
	require.NotNil(t, app.limiter)

	// Unknown paths come back as gateway 404s, not panics.
	rec := httptest.NewRecorder()
	app.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestBuildApplicationRateLimitDisabled(t *testing.T) {
	cfg := testConfig()
	disabled := false
	cfg.RateLimit.Enabled = &disabled

	app, err := buildApplication(cfg, observability.NopLogger())
	require.NoError(t, err)

	assert.Nil(t, app.limiter)
}

func TestBuildRouteTable(t *testing.T) {
	table, err := buildRouteTable(testConfig())
	require.NoError(t, err)

	rule, ok := table.Resolve("/api/v1/jobs/123")
	require.True(t, ok)
	assert.Equal(t, "jobs", rule.Service)
	assert.True(t, rule.RequiresAuth)
	assert.Equal(t, route.CategoryGeneral, rule.Category)
}

func TestBuildPolicies(t *testing.T) {
	policies := buildPolicies(testConfig())

	assert.Equal(t, 100, policies[route.CategoryGeneral].RequestsPerMinute)
	assert.Equal(t, 20, policies[route.CategoryAuth].RequestsPerMinute)
	assert.Equal(t, 50, policies[route.CategoryUSSD].RequestsPerMinute)
}

func TestReloadSwapsRoutes(t *testing.T) {
	app, err := buildApplication(testConfig(), observability.NopLogger())
	require.NoError(t, err)
	defer app.limiter.Close()

	cfg := testConfig()
	cfg.Routes = append(cfg.Routes, config.RouteConfig{
		PathPrefix: "/api/v1/mentorship", Service: "jobs",
		Category: "general", Timeout: config.Duration(5 * time.Second),
	})

	require.NoError(t, app.reload(cfg))

	rule, ok := app.routes.Current().Resolve("/api/v1/mentorship/requests")
	require.True(t, ok)
	assert.Equal(t, "jobs", rule.Service)
}

func TestReloadRejectsBadRoutes(t *testing.T) {
	app, err := buildApplication(testConfig(), observability.NopLogger())
	require.NoError(t, err)
	defer app.limiter.Close()

	cfg := testConfig()
	cfg.Routes = []config.RouteConfig{{PathPrefix: "no-slash", Service: "jobs"}}

	assert.Error(t, app.reload(cfg))

	// The previous table stays in effect.
	_, ok := app.routes.Current().Resolve("/api/v1/jobs")
	assert.True(t, ok)
}

func TestGetEnvOrDefault(t *testing.T) {
	t.Setenv("GATEWAY_TEST_KEY", "from-env")
	assert.Equal(t, "from-env", getEnvOrDefault("GATEWAY_TEST_KEY", "fallback"))
	assert.Equal(t, "fallback", getEnvOrDefault("GATEWAY_TEST_MISSING", "fallback"))
}
