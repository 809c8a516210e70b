package auth

import (
	"errors"
	"net/http"
	"strings"
)

// Extraction errors.
var (
	// ErrMissingHeader indicates the Authorization header is absent.
	ErrMissingHeader = errors.New("authorization header is missing")

	// ErrInvalidScheme indicates the Authorization header does not use
	// the Bearer scheme or carries an empty token.
	ErrInvalidScheme = errors.New("authorization header is not a bearer token")
)

const (
	authorizationHeader = "Authorization"
	bearerPrefix        = "Bearer "
)

// ExtractBearer returns the raw token from the Authorization header.
// The scheme comparison is case-insensitive per RFC 7235.
func ExtractBearer(r *http.Request) (string, error) {
	header := r.Header.Get(authorizationHeader)
	if header == "" {
		return "", ErrMissingHeader
	}

	if len(header) <= len(bearerPrefix) ||
		!strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return "", ErrInvalidScheme
	}

	token := strings.TrimSpace(header[len(bearerPrefix):])
	if token == "" {
		return "", ErrInvalidScheme
	}
	return token, nil
}
