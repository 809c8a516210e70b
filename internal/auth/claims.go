// Package auth verifies bearer tokens at the edge and propagates the
// resulting identity to downstream services via trusted headers.
package auth

import (
	"context"
	"time"
)

// TokenType distinguishes access tokens from refresh tokens. Only
// access tokens are accepted at the edge.
type TokenType string

const (
	TokenTypeAccess  TokenType = "ACCESS"
	TokenTypeRefresh TokenType = "REFRESH"
)

// DefaultRole is assigned when a token carries no roles claim.
// Tokens minted by older auth service versions omit the claim.
const DefaultRole = "USER"

// Claims is the verified identity extracted from a token.
type Claims struct {
	SubjectID string
	Email     string
	Roles     []string
	TokenType TokenType
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// HasRole reports whether the claims include the given role.
func (c *Claims) HasRole(role string) bool {
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

type claimsContextKey struct{}

// ContextWithClaims attaches verified claims to the context.
func ContextWithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsContextKey{}, claims)
}

// ClaimsFromContext returns the verified claims, or nil for anonymous
// requests.
func ClaimsFromContext(ctx context.Context) *Claims {
	claims, _ := ctx.Value(claimsContextKey{}).(*Claims)
	return claims
}
