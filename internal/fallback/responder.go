// Package fallback serves degraded-mode responses when a downstream
// service's circuit is open.
package fallback

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/fursa-platform/gateway/internal/observability"
)

// Impact describes how badly an outage of a service affects users.
type Impact string

const (
	ImpactCritical Impact = "CRITICAL"
	ImpactHigh     Impact = "HIGH"
	ImpactMedium   Impact = "MEDIUM"
	ImpactLow      Impact = "LOW"
	ImpactUnknown  Impact = "UNKNOWN"
)

// Notice is the service-specific portion of a fallback response.
type Notice struct {
	Message string
	Hint    string
	Impact  Impact
}

// notices describe each platform service outage in user-facing terms.
var notices = map[string]Notice{
	"auth": {
		Message: "Sign-in is temporarily unavailable. Existing sessions keep working.",
		Hint:    "Retry in a few minutes.",
		Impact:  ImpactCritical,
	},
	"users": {
		Message: "Profiles are temporarily unavailable.",
		Hint:    "Your data is safe. Retry shortly.",
		Impact:  ImpactHigh,
	},
	"files": {
		Message: "File uploads and downloads are temporarily unavailable.",
		Hint:    "Retry your upload in a few minutes.",
		Impact:  ImpactMedium,
	},
	"jobs": {
		Message: "Job listings are temporarily unavailable.",
		Hint:    "Saved applications are not affected.",
		Impact:  ImpactHigh,
	},
	"opportunities": {
		Message: "Opportunities are temporarily unavailable.",
		Hint:    "Application deadlines are unaffected. Retry shortly.",
		Impact:  ImpactHigh,
	},
	"mentorship": {
		Message: "Mentorship matching is temporarily unavailable.",
		Hint:    "Scheduled sessions are not affected.",
		Impact:  ImpactMedium,
	},
	"notifications": {
		Message: "Notifications are delayed.",
		Hint:    "Pending notifications will be delivered once service resumes.",
		Impact:  ImpactLow,
	},
	"ussd": {
		Message: "USSD access is temporarily unavailable.",
		Hint:    "Use the web or mobile app, or retry your USSD session.",
		Impact:  ImpactHigh,
	},
}

var defaultNotice = Notice{
	Message: "The service is temporarily unavailable.",
	Hint:    "Retry in a few minutes.",
	Impact:  ImpactUnknown,
}

// response is the JSON body served for an open circuit.
type response struct {
	Timestamp string `json:"timestamp"`
	Status    int    `json:"status"`
	Error     string `json:"error"`
	Message   string `json:"message"`
	Service   string `json:"service"`
	Impact    Impact `json:"impact"`
	Hint      string `json:"hint,omitempty"`
}

// Responder writes fallback responses.
type Responder struct {
	logger observability.Logger
	now    func() time.Time
}

// ResponderOption is a functional option for the responder.
type ResponderOption func(*Responder)

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) ResponderOption {
	return func(r *Responder) {
		r.logger = logger
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) ResponderOption {
	return func(r *Responder) {
		r.now = now
	}
}

// NewResponder creates a fallback responder.
func NewResponder(opts ...ResponderOption) *Responder {
	r := &Responder{
		logger: observability.NopLogger(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Notice returns the notice for a service, falling back to the generic
// one for unknown services.
func (r *Responder) Notice(service string) Notice {
	if n, ok := notices[service]; ok {
		return n
	}
	return defaultNotice
}

// Respond writes the 503 fallback body for a service.
func (r *Responder) Respond(w http.ResponseWriter, service string) {
	notice := r.Notice(service)

	body := response{
		Timestamp: r.now().UTC().Format(time.RFC3339),
		Status:    http.StatusServiceUnavailable,
		Error:     "Service Unavailable",
		Message:   notice.Message,
		Service:   service,
		Impact:    notice.Impact,
		Hint:      notice.Hint,
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", "10")
	w.WriteHeader(http.StatusServiceUnavailable)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		r.logger.Error("failed to write fallback response",
			observability.String("service", service),
			observability.Error(err),
		)
	}
}
