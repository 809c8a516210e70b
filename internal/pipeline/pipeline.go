// Package pipeline runs every request through a fixed sequence of
// admission stages before it reaches the routing dispatcher: route
// resolution, CORS preflight handling, authentication, and rate
// limiting. A stage either admits the request (possibly with a derived
// context) or halts it with a terminal response.
package pipeline

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/fursa-platform/gateway/internal/auth"
	"github.com/fursa-platform/gateway/internal/circuitbreaker"
	"github.com/fursa-platform/gateway/internal/fallback"
	"github.com/fursa-platform/gateway/internal/middleware"
	"github.com/fursa-platform/gateway/internal/observability"
	"github.com/fursa-platform/gateway/internal/proxy"
	"github.com/fursa-platform/gateway/internal/ratelimit"
	"github.com/fursa-platform/gateway/internal/route"
)

// Halt is a terminal response produced by a stage.
type Halt struct {
	Status int
	Header http.Header
	Body   interface{}
}

// Outcome is a stage decision: exactly one of Next and Halt is set.
type Outcome struct {
	Next *http.Request
	Halt *Halt
}

// Admit passes the request to the next stage.
func Admit(r *http.Request) Outcome {
	return Outcome{Next: r}
}

// Reject halts the request with a terminal response.
func Reject(h *Halt) Outcome {
	return Outcome{Halt: h}
}

// Stage is one named admission step.
type Stage struct {
	Name string
	Run  func(*http.Request) Outcome
}

// Deps bundles everything the pipeline needs.
type Deps struct {
	Routes    *route.Store
	Codec     auth.Codec
	Limiter   *ratelimit.Limiter
	Breakers  *circuitbreaker.Registry
	Forwarder *proxy.Forwarder
	Fallback  *fallback.Responder
	ClientIP  *middleware.ClientIPExtractor
	CORS      *CORS
	Logger    observability.Logger
	Metrics   *observability.Metrics
}

// Pipeline is the gateway request handler.
type Pipeline struct {
	stages    []Stage
	breakers  *circuitbreaker.Registry
	forwarder *proxy.Forwarder
	fallback  *fallback.Responder
	logger    observability.Logger
	metrics   *observability.Metrics
}

// New builds the pipeline. The stage order is fixed: requests are
// resolved first so later stages can consult the matched rule, CORS
// preflights are answered before any credential or quota checks, and
// authentication runs before rate limiting so authenticated traffic is
// keyed by subject rather than source IP.
func New(deps Deps) (*Pipeline, error) {
	if deps.Routes == nil {
		return nil, fmt.Errorf("route store is required")
	}
	if deps.Codec == nil {
		return nil, fmt.Errorf("codec is required")
	}
	if deps.Forwarder == nil {
		return nil, fmt.Errorf("forwarder is required")
	}
	if deps.Breakers == nil {
		deps.Breakers = circuitbreaker.NewRegistry(circuitbreaker.DefaultConfig())
	}
	if deps.Fallback == nil {
		deps.Fallback = fallback.NewResponder()
	}
	if deps.ClientIP == nil {
		deps.ClientIP = middleware.NewClientIPExtractor(nil)
	}
	if deps.CORS == nil {
		// Preflights are still answered (with a bare 204) so they never
		// fall through to authentication; no cross-origin grants are
		// handed out that nobody configured.
		deps.CORS = NewCORS(nil, nil, nil, 0)
	}
	if deps.Logger == nil {
		deps.Logger = observability.NopLogger()
	}

	p := &Pipeline{
		breakers:  deps.Breakers,
		forwarder: deps.Forwarder,
		fallback:  deps.Fallback,
		logger:    deps.Logger,
		metrics:   deps.Metrics,
	}

	p.stages = []Stage{
		{Name: "resolve", Run: resolveStage(deps.Routes)},
		{Name: "cors-preflight", Run: preflightStage(deps.CORS)},
		{Name: "authenticate", Run: authStage(deps.Codec, deps.Logger, deps.Metrics)},
	}
	if deps.Limiter != nil {
		p.stages = append(p.stages,
			Stage{Name: "rate-limit", Run: rateLimitStage(deps.Limiter, deps.ClientIP, deps.Metrics)},
		)
	}

	return p, nil
}

// Stages returns the stage names in execution order.
func (p *Pipeline) Stages() []string {
	names := make([]string, len(p.stages))
	for i, s := range p.stages {
		names[i] = s.Name
	}
	return names
}

// ServeHTTP runs the stages in order, then dispatches to the downstream
// service through its circuit breaker. A panic anywhere inside the
// pipeline becomes a 500 instead of killing the connection.
func (p *Pipeline) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	defer func() {
		if rec := recover(); rec != nil {
			p.logger.Error("panic while handling request",
				observability.Any("panic", rec),
				observability.String("path", r.URL.Path),
				observability.String("stack", string(debug.Stack())),
			)
			writeJSON(w, nil, http.StatusInternalServerError, errorBody(
				http.StatusInternalServerError, "an unexpected error occurred",
			))
		}
	}()

	for _, stage := range p.stages {
		outcome := stage.Run(r)
		if outcome.Halt != nil {
			writeJSON(w, outcome.Halt.Header, outcome.Halt.Status, outcome.Halt.Body)
			return
		}
		r = outcome.Next
	}

	p.dispatch(w, r)
}

// dispatch forwards an admitted request, recording the outcome on the
// service's breaker. The breaker is only consulted via Allow/Record so
// no lock is held during the downstream call.
func (p *Pipeline) dispatch(w http.ResponseWriter, r *http.Request) {
	rule := route.RuleFromContext(r.Context())
	if rule == nil {
		writeJSON(w, nil, http.StatusInternalServerError, errorBody(
			http.StatusInternalServerError, "request was not resolved",
		))
		return
	}

	breaker, err := p.breakers.GetOrCreate(rule.Service)
	if err != nil {
		p.logger.Error("failed to create circuit breaker",
			observability.String("service", rule.Service),
			observability.Error(err),
		)
		writeJSON(w, nil, http.StatusInternalServerError, errorBody(
			http.StatusInternalServerError, "an unexpected error occurred",
		))
		return
	}

	if !breaker.Allow() {
		p.logger.Warn("circuit open, serving fallback",
			observability.String("service", rule.Service),
			observability.String("path", r.URL.Path),
		)
		if p.metrics != nil {
			p.metrics.RecordFallback(rule.Service)
		}
		p.fallback.Respond(w, rule.Service)
		return
	}

	if failed := p.forwarder.Forward(w, r, rule); failed {
		breaker.RecordFailure()
	} else {
		breaker.RecordSuccess()
	}
}

// apiError is the uniform error body produced by the gateway itself.
type apiError struct {
	Timestamp string `json:"timestamp"`
	Status    int    `json:"status"`
	Error     string `json:"error"`
	Message   string `json:"message"`
}

func errorBody(status int, message string) apiError {
	return apiError{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Status:    status,
		Error:     http.StatusText(status),
		Message:   message,
	}
}

func errorHalt(status int, message string) *Halt {
	return &Halt{Status: status, Body: errorBody(status, message)}
}

func writeJSON(w http.ResponseWriter, header http.Header, status int, body interface{}) {
	for name, values := range header {
		for _, v := range values {
			w.Header().Add(name, v)
		}
	}
	if body != nil {
		w.Header().Set("Content-Type", "application/json")
	}
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}
