package config

import (
	"fmt"
	"net/url"
	"strings"
)

// knownCategories are the rate limit categories the gateway ships
// policies for.
var knownCategories = map[string]bool{
	"general": true,
	"auth":    true,
	"ussd":    true,
}

// Validate checks the configuration for errors that would make the
// gateway unusable at runtime.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", cfg.Server.Port)
	}

	if cfg.Auth.Secret == "" {
		return fmt.Errorf("auth.secret is required")
	}

	if len(cfg.Routes) == 0 {
		return fmt.Errorf("at least one route is required")
	}

	seen := make(map[string]bool, len(cfg.Routes))
	for i, route := range cfg.Routes {
		if route.PathPrefix == "" {
			return fmt.Errorf("routes[%d]: pathPrefix is required", i)
		}
		if !strings.HasPrefix(route.PathPrefix, "/") {
			return fmt.Errorf("routes[%d]: pathPrefix %q must start with /", i, route.PathPrefix)
		}
		if seen[route.PathPrefix] {
			return fmt.Errorf("routes[%d]: duplicate pathPrefix %q", i, route.PathPrefix)
		}
		seen[route.PathPrefix] = true

		if route.Service == "" {
			return fmt.Errorf("routes[%d]: service is required", i)
		}
		if _, ok := cfg.Services[route.Service]; !ok {
			return fmt.Errorf("routes[%d]: unknown service %q", i, route.Service)
		}
		if !knownCategories[route.Category] {
			if _, ok := cfg.RateLimit.Categories[route.Category]; !ok {
				return fmt.Errorf("routes[%d]: unknown rate limit category %q", i, route.Category)
			}
		}
	}

	for name, svc := range cfg.Services {
		if svc.URL == "" {
			return fmt.Errorf("services.%s: url is required", name)
		}
		u, err := url.Parse(svc.URL)
		if err != nil {
			return fmt.Errorf("services.%s: invalid url: %w", name, err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("services.%s: url scheme must be http or https", name)
		}
		if u.Host == "" {
			return fmt.Errorf("services.%s: url host is required", name)
		}
	}

	for name, policy := range cfg.RateLimit.Categories {
		if policy.RequestsPerMinute <= 0 {
			return fmt.Errorf("rateLimit.categories.%s: requestsPerMinute must be positive", name)
		}
		if policy.Burst < 0 {
			return fmt.Errorf("rateLimit.categories.%s: burst must not be negative", name)
		}
	}

	cb := cfg.CircuitBreaker
	if cb.WindowSize <= 0 {
		return fmt.Errorf("circuitBreaker.windowSize must be positive")
	}
	if cb.FailureRateThreshold <= 0 || cb.FailureRateThreshold > 1 {
		return fmt.Errorf("circuitBreaker.failureRateThreshold must be in (0, 1]")
	}
	if cb.WaitDuration <= 0 {
		return fmt.Errorf("circuitBreaker.waitDuration must be positive")
	}
	if cb.HalfOpenMaxCalls <= 0 {
		return fmt.Errorf("circuitBreaker.halfOpenMaxCalls must be positive")
	}

	return nil
}
