package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/fursa-platform/gateway/internal/auth"
	"github.com/fursa-platform/gateway/internal/circuitbreaker"
	"github.com/fursa-platform/gateway/internal/config"
	"github.com/fursa-platform/gateway/internal/fallback"
	"github.com/fursa-platform/gateway/internal/health"
	"github.com/fursa-platform/gateway/internal/middleware"
	"github.com/fursa-platform/gateway/internal/observability"
	"github.com/fursa-platform/gateway/internal/pipeline"
	"github.com/fursa-platform/gateway/internal/proxy"
	"github.com/fursa-platform/gateway/internal/ratelimit"
	"github.com/fursa-platform/gateway/internal/route"
)

// application holds every long-lived component of the gateway.
type application struct {
	config  *config.Config
	handler http.Handler

	routes   *route.Store
	limiter  *ratelimit.Limiter
	breakers *circuitbreaker.Registry
	checker  *health.Checker
	metrics  *observability.Metrics
	tracer   *observability.Tracer
	logger   observability.Logger
}

// buildApplication wires the pipeline and its dependencies from config.
func buildApplication(cfg *config.Config, logger observability.Logger) (*application, error) {
	metrics := observability.NewMetrics("gateway")
	metrics.SetBuildInfo(version, gitCommit, buildTime)

	tracer, err := observability.NewTracer(observability.TracerConfig{
		ServiceName:  cfg.Tracing.ServiceName,
		OTLPEndpoint: cfg.Tracing.Endpoint,
		SamplingRate: cfg.Tracing.SampleRate,
		Enabled:      cfg.Tracing.Enabled,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	table, err := buildRouteTable(cfg)
	if err != nil {
		return nil, fmt.Errorf("build route table: %w", err)
	}
	store := route.NewStore(table)

	codecOpts := []auth.CodecOption{
		auth.WithClockSkew(time.Duration(cfg.Auth.ClockSkew)),
		auth.WithCodecLogger(logger),
	}
	if cfg.Auth.Issuer != "" {
		codecOpts = append(codecOpts, auth.WithIssuer(cfg.Auth.Issuer))
	}
	codec, err := auth.NewHMACCodec([]byte(cfg.Auth.Secret), codecOpts...)
	if err != nil {
		return nil, fmt.Errorf("init codec: %w", err)
	}

	var limiter *ratelimit.Limiter
	if cfg.RateLimit.IsEnabled() {
		limiter = ratelimit.New(buildPolicies(cfg),
			ratelimit.WithIdleTTL(time.Duration(cfg.RateLimit.IdleTTL)),
			ratelimit.WithCleanupInterval(time.Duration(cfg.RateLimit.CleanupInterval)),
			ratelimit.WithLogger(logger),
		)
	}

	breakers := circuitbreaker.NewRegistry(
		circuitbreaker.Config{
			WindowSize:           cfg.CircuitBreaker.WindowSize,
			FailureRateThreshold: cfg.CircuitBreaker.FailureRateThreshold,
			WaitDuration:         time.Duration(cfg.CircuitBreaker.WaitDuration),
			HalfOpenMaxCalls:     cfg.CircuitBreaker.HalfOpenMaxCalls,
		},
		circuitbreaker.WithBreakerLogger(logger),
		circuitbreaker.WithStateChange(func(name string, _, to circuitbreaker.State) {
			metrics.SetBreakerState(name, int(to))
		}),
	)

	forwarder, err := proxy.NewForwarder(serviceURLs(cfg), proxy.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("init forwarder: %w", err)
	}

	extractor := middleware.NewClientIPExtractor(cfg.Server.TrustedProxies)

	var cors *pipeline.CORS
	if cfg.CORS != nil {
		cors = pipeline.NewCORS(
			cfg.CORS.AllowOrigins,
			cfg.CORS.AllowMethods,
			cfg.CORS.AllowHeaders,
			time.Duration(cfg.CORS.MaxAge),
		)
	}

	p, err := pipeline.New(pipeline.Deps{
		Routes:    store,
		Codec:     codec,
		Limiter:   limiter,
		Breakers:  breakers,
		Forwarder: forwarder,
		Fallback:  fallback.NewResponder(fallback.WithLogger(logger)),
		ClientIP:  extractor,
		CORS:      cors,
		Logger:    logger,
		Metrics:   metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("init pipeline: %w", err)
	}

	checker := health.NewChecker(version)
	checker.RegisterCheck("circuit_breakers", health.BreakerCheck(breakers))

	app := &application{
		config:   cfg,
		routes:   store,
		limiter:  limiter,
		breakers: breakers,
		checker:  checker,
		metrics:  metrics,
		tracer:   tracer,
		logger:   logger,
	}
	app.handler = buildHandlerChain(p, app)
	return app, nil
}

// buildHandlerChain stacks the edge middleware around the pipeline.
// Ordering is outside-in: request IDs first so every log line carries
// one, then access logging, tracing, and metrics.
func buildHandlerChain(p *pipeline.Pipeline, app *application) http.Handler {
	extractor := middleware.NewClientIPExtractor(app.config.Server.TrustedProxies)

	var h http.Handler = p
	h = observability.MetricsMiddleware(app.metrics)(h)
	if app.config.Tracing.Enabled {
		h = observability.TracingMiddleware(app.tracer)(h)
	}
	h = middleware.Logging(app.logger, extractor)(h)
	h = middleware.RequestID()(h)
	return h
}

// reload applies a changed configuration. Only the route table is
// swapped live; listener, auth, and limiter changes need a restart.
func (app *application) reload(cfg *config.Config) error {
	table, err := buildRouteTable(cfg)
	if err != nil {
		return fmt.Errorf("build route table: %w", err)
	}
	app.routes.Swap(table)
	app.logger.Info("route table reloaded",
		observability.Int("routes", len(table.Rules())),
	)
	return nil
}

func buildRouteTable(cfg *config.Config) (*route.Table, error) {
	rules := make([]route.Rule, 0, len(cfg.Routes))
	for _, rc := range cfg.Routes {
		rules = append(rules, route.Rule{
			PathPrefix:   rc.PathPrefix,
			Service:      rc.Service,
			RequiresAuth: rc.RequiresAuth,
			Category:     route.Category(rc.Category),
			Timeout:      time.Duration(rc.Timeout),
		})
	}
	return route.NewTable(rules)
}

func buildPolicies(cfg *config.Config) map[route.Category]ratelimit.Policy {
	policies := make(map[route.Category]ratelimit.Policy, len(cfg.RateLimit.Categories))
	for name, pc := range cfg.RateLimit.Categories {
		policies[route.Category(name)] = ratelimit.Policy{
			RequestsPerMinute: pc.RequestsPerMinute,
			Burst:             pc.Burst,
		}
	}
	return policies
}

func serviceURLs(cfg *config.Config) map[string]string {
	urls := make(map[string]string, len(cfg.Services))
	for name, sc := range cfg.Services {
		urls[name] = sc.URL
	}
	return urls
}
