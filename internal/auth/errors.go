package auth

import "errors"

// Verification errors. Callers should not leak the distinction to
// clients; it is used for logging and metrics only.
var (
	// ErrEmptyToken indicates an empty token string.
	ErrEmptyToken = errors.New("token is empty")

	// ErrMalformed indicates the token is not a structurally valid JWT
	// or its claims violate basic consistency.
	ErrMalformed = errors.New("token is malformed")

	// ErrBadSignature indicates the signature does not verify against
	// the shared secret.
	ErrBadSignature = errors.New("token signature is invalid")

	// ErrExpired indicates the token is outside its validity window.
	ErrExpired = errors.New("token is expired")

	// ErrUnsupportedType indicates an algorithm or token type this
	// gateway does not understand.
	ErrUnsupportedType = errors.New("token type is not supported")
)

// Kind maps a verification error to a bounded label for logs and
// metrics.
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrEmptyToken):
		return "empty"
	case errors.Is(err, ErrMalformed):
		return "malformed"
	case errors.Is(err, ErrBadSignature):
		return "bad_signature"
	case errors.Is(err, ErrExpired):
		return "expired"
	case errors.Is(err, ErrUnsupportedType):
		return "unsupported"
	default:
		return "unknown"
	}
}
