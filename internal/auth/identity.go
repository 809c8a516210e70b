package auth

import (
	"net/http"
	"strings"
)

// Identity headers set by the gateway for downstream services. They are
// always stripped from incoming requests first so clients can never
// spoof them.
const (
	HeaderUserID    = "X-User-Id"
	HeaderUserEmail = "X-User-Email"
	HeaderUserRoles = "X-User-Roles"
	HeaderAuthToken = "X-Auth-Token"
)

var identityHeaders = []string{
	HeaderUserID,
	HeaderUserEmail,
	HeaderUserRoles,
	HeaderAuthToken,
}

// StripIdentityHeaders removes all gateway identity headers from h.
// It runs on every request, authenticated or not.
func StripIdentityHeaders(h http.Header) {
	for _, name := range identityHeaders {
		h.Del(name)
	}
}

// SetIdentityHeaders writes the verified identity into h. The raw token
// is forwarded so downstream services can do their own introspection.
func SetIdentityHeaders(h http.Header, claims *Claims, rawToken string) {
	h.Set(HeaderUserID, claims.SubjectID)
	if claims.Email != "" {
		h.Set(HeaderUserEmail, claims.Email)
	}
	h.Set(HeaderUserRoles, strings.Join(claims.Roles, ","))
	if rawToken != "" {
		h.Set(HeaderAuthToken, rawToken)
	}
}
