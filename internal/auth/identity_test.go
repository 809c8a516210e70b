package auth

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStripIdentityHeaders(t *testing.T) {
	h := http.Header{}
	h.Set(HeaderUserID, "spoofed")
	h.Set(HeaderUserEmail, "spoof@example.com")
	h.Set(HeaderUserRoles, "ADMIN")
	h.Set(HeaderAuthToken, "stolen")
	h.Set("X-Request-Id", "keep-me")

	StripIdentityHeaders(h)

	assert.Empty(t, h.Get(HeaderUserID))
	assert.Empty(t, h.Get(HeaderUserEmail))
	assert.Empty(t, h.Get(HeaderUserRoles))
	assert.Empty(t, h.Get(HeaderAuthToken))
	assert.Equal(t, "keep-me", h.Get("X-Request-Id"))
}

func TestSetIdentityHeaders(t *testing.T) {
	h := http.Header{}
	claims := &Claims{
		SubjectID: "user-42",
		Email:     "amina@example.com",
		Roles:     []string{"USER", "MENTOR"},
	}

	SetIdentityHeaders(h, claims, "raw-token")

	assert.Equal(t, "user-42", h.Get(HeaderUserID))
	assert.Equal(t, "amina@example.com", h.Get(HeaderUserEmail))
	assert.Equal(t, "USER,MENTOR", h.Get(HeaderUserRoles))
	assert.Equal(t, "raw-token", h.Get(HeaderAuthToken))
}

func TestSetIdentityHeadersOverwritesSpoofed(t *testing.T) {
	h := http.Header{}
	h.Set(HeaderUserID, "attacker")
	h.Set(HeaderUserRoles, "ADMIN")

	claims := &Claims{SubjectID: "user-42", Roles: []string{"USER"}}
	SetIdentityHeaders(h, claims, "")

	assert.Equal(t, "user-42", h.Get(HeaderUserID))
	assert.Equal(t, "USER", h.Get(HeaderUserRoles))
	assert.Empty(t, h.Get(HeaderAuthToken))
	assert.Len(t, h.Values(HeaderUserID), 1)
}

func TestSetIdentityHeadersNoEmail(t *testing.T) {
	h := http.Header{}
	claims := &Claims{SubjectID: "user-42", Roles: []string{"USER"}}

	SetIdentityHeaders(h, claims, "tok")

	assert.Empty(t, h.Get(HeaderUserEmail))
}

func TestClaimsContext(t *testing.T) {
	assert.Nil(t, ClaimsFromContext(context.Background()))

	claims := &Claims{SubjectID: "user-42"}
	ctx := ContextWithClaims(context.Background(), claims)
	assert.Equal(t, claims, ClaimsFromContext(ctx))
}
