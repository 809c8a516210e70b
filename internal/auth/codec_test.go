package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-secret-0123456789")

func signToken(t *testing.T, method jwt.SigningMethod, key interface{}, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return token
}

func accessClaims(now time.Time) jwt.MapClaims {
	return jwt.MapClaims{
		"sub":       "user-42",
		"email":     "amina@example.com",
		"roles":     []string{"USER", "MENTOR"},
		"tokenType": "ACCESS",
		"iat":       now.Unix(),
		"exp":       now.Add(15 * time.Minute).Unix(),
	}
}

func newTestCodec(t *testing.T, now time.Time, opts ...CodecOption) Codec {
	t.Helper()
	opts = append(opts, WithClock(func() time.Time { return now }))
	codec, err := NewHMACCodec(testSecret, opts...)
	require.NoError(t, err)
	return codec
}

func TestNewHMACCodecEmptySecret(t *testing.T) {
	_, err := NewHMACCodec(nil)
	assert.Error(t, err)
}

func TestVerifyValidToken(t *testing.T) {
	now := time.Now()
	codec := newTestCodec(t, now)
	token := signToken(t, jwt.SigningMethodHS256, testSecret, accessClaims(now))

	claims, err := codec.Verify(context.Background(), token)
	require.NoError(t, err)

	assert.Equal(t, "user-42", claims.SubjectID)
	assert.Equal(t, "amina@example.com", claims.Email)
	assert.Equal(t, []string{"USER", "MENTOR"}, claims.Roles)
	assert.Equal(t, TokenTypeAccess, claims.TokenType)
	assert.True(t, claims.HasRole("MENTOR"))
	assert.False(t, claims.HasRole("ADMIN"))
}

func TestVerifyEmptyToken(t *testing.T) {
	codec := newTestCodec(t, time.Now())
	_, err := codec.Verify(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyToken)
}

func TestVerifyMalformed(t *testing.T) {
	codec := newTestCodec(t, time.Now())

	for _, token := range []string{"garbage", "a.b", "a.b.c.d", "!!!.???.###"} {
		_, err := codec.Verify(context.Background(), token)
		assert.ErrorIs(t, err, ErrMalformed, "token %q", token)
	}
}

func TestVerifyBadSignature(t *testing.T) {
	now := time.Now()
	codec := newTestCodec(t, now)
	token := signToken(t, jwt.SigningMethodHS256, []byte("wrong-secret"), accessClaims(now))

	_, err := codec.Verify(context.Background(), token)
	assert.ErrorIs(t, err, ErrBadSignature)
}

func TestVerifyExpired(t *testing.T) {
	now := time.Now()
	codec := newTestCodec(t, now, WithClockSkew(0))

	claims := accessClaims(now.Add(-time.Hour))
	token := signToken(t, jwt.SigningMethodHS256, testSecret, claims)

	_, err := codec.Verify(context.Background(), token)
	assert.ErrorIs(t, err, ErrExpired)
}

func TestVerifyExpiredWithinSkew(t *testing.T) {
	now := time.Now()
	codec := newTestCodec(t, now, WithClockSkew(time.Minute))

	claims := accessClaims(now.Add(-16 * time.Minute))
	claims["exp"] = now.Add(-10 * time.Second).Unix()

	token := signToken(t, jwt.SigningMethodHS256, testSecret, claims)
	_, err := codec.Verify(context.Background(), token)
	assert.NoError(t, err)
}

func TestVerifyUnsupportedAlg(t *testing.T) {
	now := time.Now()
	codec := newTestCodec(t, now)

	// alg=none tokens must be rejected outright.
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, accessClaims(now)).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, verr := codec.Verify(context.Background(), token)
	assert.ErrorIs(t, verr, ErrUnsupportedType)
}

func TestVerifyMissingExpiry(t *testing.T) {
	now := time.Now()
	codec := newTestCodec(t, now)

	claims := accessClaims(now)
	delete(claims, "exp")
	token := signToken(t, jwt.SigningMethodHS256, testSecret, claims)

	_, err := codec.Verify(context.Background(), token)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestVerifyMissingSubject(t *testing.T) {
	now := time.Now()
	codec := newTestCodec(t, now)

	claims := accessClaims(now)
	delete(claims, "sub")
	token := signToken(t, jwt.SigningMethodHS256, testSecret, claims)

	_, err := codec.Verify(context.Background(), token)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestVerifyExpiryBeforeIssued(t *testing.T) {
	now := time.Now()
	codec := newTestCodec(t, now, WithClockSkew(time.Hour))

	claims := accessClaims(now)
	claims["iat"] = now.Unix()
	claims["exp"] = now.Add(-time.Minute).Unix()
	token := signToken(t, jwt.SigningMethodHS256, testSecret, claims)

	_, err := codec.Verify(context.Background(), token)
	assert.Error(t, err)
}

func TestVerifyRolesDefault(t *testing.T) {
	now := time.Now()
	codec := newTestCodec(t, now)

	claims := accessClaims(now)
	delete(claims, "roles")
	token := signToken(t, jwt.SigningMethodHS256, testSecret, claims)

	got, err := codec.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, []string{DefaultRole}, got.Roles)
}

func TestVerifyRefreshTokenType(t *testing.T) {
	now := time.Now()
	codec := newTestCodec(t, now)

	claims := accessClaims(now)
	claims["tokenType"] = "REFRESH"
	token := signToken(t, jwt.SigningMethodHS256, testSecret, claims)

	got, err := codec.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, TokenTypeRefresh, got.TokenType)
}

func TestVerifyUnknownTokenType(t *testing.T) {
	now := time.Now()
	codec := newTestCodec(t, now)

	claims := accessClaims(now)
	claims["tokenType"] = "SESSION"
	token := signToken(t, jwt.SigningMethodHS256, testSecret, claims)

	_, err := codec.Verify(context.Background(), token)
	assert.ErrorIs(t, err, ErrUnsupportedType)
}

func TestVerifyIssuerMismatch(t *testing.T) {
	now := time.Now()
	codec := newTestCodec(t, now, WithIssuer("fursa-auth"))

	claims := accessClaims(now)
	claims["iss"] = "someone-else"
	token := signToken(t, jwt.SigningMethodHS256, testSecret, claims)

	_, err := codec.Verify(context.Background(), token)
	assert.Error(t, err)
}

func TestKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{ErrEmptyToken, "empty"},
		{ErrMalformed, "malformed"},
		{ErrBadSignature, "bad_signature"},
		{ErrExpired, "expired"},
		{ErrUnsupportedType, "unsupported"},
		{assert.AnError, "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Kind(tt.err))
	}
}
