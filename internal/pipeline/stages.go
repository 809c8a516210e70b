package pipeline

import (
	"net/http"
	"strconv"

	"github.com/fursa-platform/gateway/internal/auth"
	"github.com/fursa-platform/gateway/internal/middleware"
	"github.com/fursa-platform/gateway/internal/observability"
	"github.com/fursa-platform/gateway/internal/ratelimit"
	"github.com/fursa-platform/gateway/internal/route"
)

// resolveStage matches the request path against the route table and
// attaches the winning rule to the context.
func resolveStage(store *route.Store) func(*http.Request) Outcome {
	return func(r *http.Request) Outcome {
		rule, ok := store.Current().Resolve(r.URL.Path)
		if !ok {
			return Reject(errorHalt(http.StatusNotFound, "no route matches the requested path"))
		}

		observability.SetServiceLabel(r.Context(), rule.Service)
		return Admit(r.WithContext(route.ContextWithRule(r.Context(), rule)))
	}
}

// authStage verifies bearer credentials on protected routes. Identity
// headers are stripped from every request, authenticated or not, so
// clients can never smuggle an identity past a public route.
func authStage(
	codec auth.Codec,
	logger observability.Logger,
	metrics *observability.Metrics,
) func(*http.Request) Outcome {
	recordFailure := func(kind string) {
		if metrics != nil {
			metrics.RecordAuthFailure(kind)
		}
	}

	return func(r *http.Request) Outcome {
		auth.StripIdentityHeaders(r.Header)

		rule := route.RuleFromContext(r.Context())
		if rule == nil || !rule.RequiresAuth {
			return Admit(r)
		}
		// OPTIONS carries no credentials in browsers; preflights were
		// already answered, and bare OPTIONS is the downstream's call.
		if r.Method == http.MethodOptions {
			return Admit(r)
		}

		token, err := auth.ExtractBearer(r)
		if err != nil {
			recordFailure("missing")
			return Reject(errorHalt(http.StatusUnauthorized,
				"missing or malformed authorization header"))
		}

		claims, err := codec.Verify(r.Context(), token)
		if err != nil {
			kind := auth.Kind(err)
			logger.WithContext(r.Context()).Warn("rejected credentials",
				observability.String("reason", kind),
				observability.String("path", r.URL.Path),
			)
			recordFailure(kind)
			// The client gets a uniform message; the reason stays in
			// logs and metrics.
			return Reject(errorHalt(http.StatusUnauthorized,
				"invalid or expired credentials"))
		}

		if claims.TokenType != auth.TokenTypeAccess {
			recordFailure("wrong_type")
			return Reject(errorHalt(http.StatusUnauthorized,
				"invalid or expired credentials"))
		}

		auth.SetIdentityHeaders(r.Header, claims, token)
		return Admit(r.WithContext(auth.ContextWithClaims(r.Context(), claims)))
	}
}

// rateLimitedBody is the 429 payload. Clients key off retryAfterSeconds
// to schedule their backoff.
type rateLimitedBody struct {
	Status            int    `json:"status"`
	Error             string `json:"error"`
	RetryAfterSeconds int    `json:"retryAfterSeconds"`
}

// rateLimitStage enforces the category policy for the route. The bucket
// key is the authenticated subject when available, otherwise the client
// IP, so NAT'd anonymous users share quota but signed-in users do not.
func rateLimitStage(
	limiter *ratelimit.Limiter,
	clientIP *middleware.ClientIPExtractor,
	metrics *observability.Metrics,
) func(*http.Request) Outcome {
	return func(r *http.Request) Outcome {
		rule := route.RuleFromContext(r.Context())
		if rule == nil {
			return Admit(r)
		}

		var key string
		if claims := auth.ClaimsFromContext(r.Context()); claims != nil {
			key = "sub:" + claims.SubjectID
		} else {
			key = "ip:" + clientIP.Extract(r)
		}

		result := limiter.Allow(rule.Category, key)
		if result.Allowed {
			return Admit(r)
		}

		if metrics != nil {
			metrics.RecordRateLimitRejection(string(rule.Category))
		}

		retryAfter := result.RetryAfterSeconds()
		halt := &Halt{
			Status: http.StatusTooManyRequests,
			Body: rateLimitedBody{
				Status:            http.StatusTooManyRequests,
				Error:             http.StatusText(http.StatusTooManyRequests),
				RetryAfterSeconds: retryAfter,
			},
		}
		halt.Header = http.Header{}
		halt.Header.Set("Retry-After", strconv.Itoa(retryAfter))
		halt.Header.Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
		return Reject(halt)
	}
}
