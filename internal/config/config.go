// Package config defines the gateway configuration model, YAML loading
// with environment variable substitution, validation, and hot reload.
package config

import (
	"time"

	"github.com/fursa-platform/gateway/internal/observability"
)

// Config is the root gateway configuration.
type Config struct {
	Server         ServerConfig             `yaml:"server" json:"server"`
	Auth           AuthConfig               `yaml:"auth" json:"auth"`
	Routes         []RouteConfig            `yaml:"routes" json:"routes"`
	Services       map[string]ServiceConfig `yaml:"services" json:"services"`
	RateLimit      RateLimitConfig          `yaml:"rateLimit" json:"rateLimit"`
	CircuitBreaker BreakerConfig            `yaml:"circuitBreaker" json:"circuitBreaker"`
	CORS           *CORSConfig              `yaml:"cors,omitempty" json:"cors,omitempty"`
	Log            observability.LogConfig  `yaml:"log" json:"log"`
	Metrics        MetricsConfig            `yaml:"metrics" json:"metrics"`
	Tracing        TracingConfig            `yaml:"tracing" json:"tracing"`
}

// ServerConfig configures the listener for the gateway itself.
type ServerConfig struct {
	Host            string   `yaml:"host" json:"host"`
	Port            int      `yaml:"port" json:"port"`
	ReadTimeout     Duration `yaml:"readTimeout" json:"readTimeout"`
	WriteTimeout    Duration `yaml:"writeTimeout" json:"writeTimeout"`
	IdleTimeout     Duration `yaml:"idleTimeout" json:"idleTimeout"`
	ShutdownTimeout Duration `yaml:"shutdownTimeout" json:"shutdownTimeout"`
	// TrustedProxies lists CIDRs whose X-Forwarded-For headers are honored
	// when deriving the client IP.
	TrustedProxies []string `yaml:"trustedProxies,omitempty" json:"trustedProxies,omitempty"`
}

// AuthConfig configures token verification.
type AuthConfig struct {
	// Secret is the HMAC shared secret. Usually injected via
	// ${GATEWAY_AUTH_SECRET} in the config file.
	Secret    string   `yaml:"secret" json:"secret"`
	Issuer    string   `yaml:"issuer,omitempty" json:"issuer,omitempty"`
	ClockSkew Duration `yaml:"clockSkew" json:"clockSkew"`
}

// RouteConfig maps a path prefix to a downstream service.
type RouteConfig struct {
	PathPrefix   string   `yaml:"pathPrefix" json:"pathPrefix"`
	Service      string   `yaml:"service" json:"service"`
	RequiresAuth bool     `yaml:"requiresAuth" json:"requiresAuth"`
	Category     string   `yaml:"category" json:"category"`
	Timeout      Duration `yaml:"timeout" json:"timeout"`
}

// ServiceConfig describes a downstream service endpoint.
type ServiceConfig struct {
	URL string `yaml:"url" json:"url"`
}

// RateLimitConfig configures the token bucket limiter.
type RateLimitConfig struct {
	Enabled         *bool                   `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	Categories      map[string]PolicyConfig `yaml:"categories,omitempty" json:"categories,omitempty"`
	IdleTTL         Duration                `yaml:"idleTTL" json:"idleTTL"`
	CleanupInterval Duration                `yaml:"cleanupInterval" json:"cleanupInterval"`
}

// IsEnabled reports whether rate limiting is on. Defaults to true.
func (c RateLimitConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// PolicyConfig is the per-category token bucket policy.
type PolicyConfig struct {
	RequestsPerMinute int `yaml:"requestsPerMinute" json:"requestsPerMinute"`
	// Burst is the bucket capacity. Defaults to RequestsPerMinute.
	Burst int `yaml:"burst,omitempty" json:"burst,omitempty"`
}

// BreakerConfig configures per-service circuit breakers.
type BreakerConfig struct {
	WindowSize           int      `yaml:"windowSize" json:"windowSize"`
	FailureRateThreshold float64  `yaml:"failureRateThreshold" json:"failureRateThreshold"`
	WaitDuration         Duration `yaml:"waitDuration" json:"waitDuration"`
	HalfOpenMaxCalls     int      `yaml:"halfOpenMaxCalls" json:"halfOpenMaxCalls"`
}

// CORSConfig configures cross-origin handling for browser clients.
type CORSConfig struct {
	AllowOrigins []string `yaml:"allowOrigins" json:"allowOrigins"`
	AllowMethods []string `yaml:"allowMethods" json:"allowMethods"`
	AllowHeaders []string `yaml:"allowHeaders" json:"allowHeaders"`
	MaxAge       Duration `yaml:"maxAge" json:"maxAge"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Host    string `yaml:"host" json:"host"`
	Port    int    `yaml:"port" json:"port"`
	Path    string `yaml:"path" json:"path"`
}

// TracingConfig configures OpenTelemetry export.
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled" json:"enabled"`
	Endpoint    string  `yaml:"endpoint" json:"endpoint"`
	SampleRate  float64 `yaml:"sampleRate" json:"sampleRate"`
	ServiceName string  `yaml:"serviceName" json:"serviceName"`
}

// DefaultConfig returns a configuration with all defaults applied and no
// routes or services.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// applyDefaults fills zero values with production defaults.
func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = Duration(30 * time.Second)
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = Duration(30 * time.Second)
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = Duration(120 * time.Second)
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = Duration(15 * time.Second)
	}

	if c.Auth.ClockSkew == 0 {
		c.Auth.ClockSkew = Duration(30 * time.Second)
	}

	if c.RateLimit.Categories == nil {
		c.RateLimit.Categories = map[string]PolicyConfig{}
	}
	if _, ok := c.RateLimit.Categories["general"]; !ok {
		c.RateLimit.Categories["general"] = PolicyConfig{RequestsPerMinute: 100}
	}
	if _, ok := c.RateLimit.Categories["auth"]; !ok {
		c.RateLimit.Categories["auth"] = PolicyConfig{RequestsPerMinute: 20}
	}
	if _, ok := c.RateLimit.Categories["ussd"]; !ok {
		c.RateLimit.Categories["ussd"] = PolicyConfig{RequestsPerMinute: 50}
	}
	if c.RateLimit.IdleTTL == 0 {
		c.RateLimit.IdleTTL = Duration(10 * time.Minute)
	}
	if c.RateLimit.CleanupInterval == 0 {
		c.RateLimit.CleanupInterval = Duration(1 * time.Minute)
	}

	if c.CircuitBreaker.WindowSize == 0 {
		c.CircuitBreaker.WindowSize = 10
	}
	if c.CircuitBreaker.FailureRateThreshold == 0 {
		c.CircuitBreaker.FailureRateThreshold = 0.5
	}
	if c.CircuitBreaker.WaitDuration == 0 {
		c.CircuitBreaker.WaitDuration = Duration(10 * time.Second)
	}
	if c.CircuitBreaker.HalfOpenMaxCalls == 0 {
		c.CircuitBreaker.HalfOpenMaxCalls = 3
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Log.Output == "" {
		c.Log.Output = "stdout"
	}

	if c.Metrics.Host == "" {
		c.Metrics.Host = "0.0.0.0"
	}
	if c.Metrics.Port == 0 {
		c.Metrics.Port = 9090
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}

	if c.Tracing.SampleRate == 0 {
		c.Tracing.SampleRate = 1.0
	}
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = "fursa-gateway"
	}

	for i := range c.Routes {
		if c.Routes[i].Category == "" {
			c.Routes[i].Category = "general"
		}
		if c.Routes[i].Timeout == 0 {
			c.Routes[i].Timeout = Duration(30 * time.Second)
		}
	}
}
