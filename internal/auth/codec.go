package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/fursa-platform/gateway/internal/observability"
)

// Codec verifies raw token strings and extracts claims.
type Codec interface {
	Verify(ctx context.Context, token string) (*Claims, error)
}

// CodecOption is a functional option for the HMAC codec.
type CodecOption func(*hmacCodec)

// WithIssuer requires the iss claim to match.
func WithIssuer(issuer string) CodecOption {
	return func(c *hmacCodec) {
		c.issuer = issuer
	}
}

// WithClockSkew sets the leeway applied to time-based claims.
func WithClockSkew(skew time.Duration) CodecOption {
	return func(c *hmacCodec) {
		c.skew = skew
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) CodecOption {
	return func(c *hmacCodec) {
		c.now = now
	}
}

// WithCodecLogger sets the logger.
func WithCodecLogger(logger observability.Logger) CodecOption {
	return func(c *hmacCodec) {
		c.logger = logger
	}
}

// hmacCodec verifies HS256 tokens signed with a shared secret.
type hmacCodec struct {
	secret []byte
	issuer string
	skew   time.Duration
	now    func() time.Time
	logger observability.Logger
}

// NewHMACCodec creates a codec for HS256 tokens.
func NewHMACCodec(secret []byte, opts ...CodecOption) (Codec, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("secret must not be empty")
	}

	c := &hmacCodec{
		secret: secret,
		skew:   30 * time.Second,
		now:    time.Now,
		logger: observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Verify parses and validates a token, returning the extracted claims.
// All failures map onto the package sentinel errors.
func (c *hmacCodec) Verify(_ context.Context, token string) (*Claims, error) {
	if token == "" {
		return nil, ErrEmptyToken
	}

	parserOpts := []jwt.ParserOption{
		jwt.WithTimeFunc(c.now),
		jwt.WithLeeway(c.skew),
		jwt.WithExpirationRequired(),
	}
	if c.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(c.issuer))
	}
	parser := jwt.NewParser(parserOpts...)

	mapClaims := jwt.MapClaims{}
	_, err := parser.ParseWithClaims(token, mapClaims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("%w: alg %s", ErrUnsupportedType, t.Method.Alg())
		}
		return c.secret, nil
	})
	if err != nil {
		return nil, c.mapError(err)
	}

	return c.extractClaims(mapClaims)
}

// mapError converts golang-jwt errors to the package sentinels.
func (c *hmacCodec) mapError(err error) error {
	switch {
	case errors.Is(err, ErrUnsupportedType):
		return ErrUnsupportedType
	case errors.Is(err, jwt.ErrTokenExpired), errors.Is(err, jwt.ErrTokenNotValidYet):
		return ErrExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return ErrBadSignature
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ErrMalformed
	default:
		return fmt.Errorf("%w: %s", ErrMalformed, err)
	}
}

func (c *hmacCodec) extractClaims(mapClaims jwt.MapClaims) (*Claims, error) {
	subject, _ := mapClaims["sub"].(string)
	if subject == "" {
		return nil, fmt.Errorf("%w: missing sub claim", ErrMalformed)
	}

	claims := &Claims{
		SubjectID: subject,
		TokenType: TokenTypeAccess,
	}

	if email, ok := mapClaims["email"].(string); ok {
		claims.Email = email
	}

	claims.Roles = stringSliceClaim(mapClaims["roles"])
	if len(claims.Roles) == 0 {
		claims.Roles = []string{DefaultRole}
	}

	if tokenType, ok := mapClaims["tokenType"].(string); ok && tokenType != "" {
		switch TokenType(tokenType) {
		case TokenTypeAccess, TokenTypeRefresh:
			claims.TokenType = TokenType(tokenType)
		default:
			return nil, fmt.Errorf("%w: tokenType %q", ErrUnsupportedType, tokenType)
		}
	}

	if iat, err := mapClaims.GetIssuedAt(); err == nil && iat != nil {
		claims.IssuedAt = iat.Time
	}
	if exp, err := mapClaims.GetExpirationTime(); err == nil && exp != nil {
		claims.ExpiresAt = exp.Time
	}

	// A token that expires before it was issued has been tampered with
	// or mis-minted.
	if !claims.IssuedAt.IsZero() && !claims.ExpiresAt.After(claims.IssuedAt) {
		return nil, fmt.Errorf("%w: exp before iat", ErrMalformed)
	}

	return claims, nil
}

func stringSliceClaim(value interface{}) []string {
	switch v := value.(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	default:
		return nil
	}
}
