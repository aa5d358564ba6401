package jwt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newService(t *testing.T) *JWTService {
	t.Helper()
	svc, err := NewJWTService("test-secret", "1h")
	require.NoError(t, err)
	return svc
}

func TestNewJWTService_InvalidExpiration(t *testing.T) {
	_, err := NewJWTService("secret", "soon")
	assert.Error(t, err)
}

func TestGenerateAccessToken(t *testing.T) {
	svc := newService(t)
	token, expiresAt, err := svc.GenerateAccessToken("admin")
	require.NoError(t, err)
	assert.InDelta(t, time.Now().Add(time.Hour).Unix(), expiresAt, 5)

	decoded, err := svc.JWTAuth().Decode(token)
	require.NoError(t, err)
	assert.Equal(t, "admin", decoded.Subject())
	role, _ := decoded.Get("role")
	assert.Equal(t, RoleOperator, role)
	tokenType, _ := decoded.Get("type")
	assert.Equal(t, TokenTypeAccess, tokenType)
}

func TestSSEToken_RoundTrip(t *testing.T) {
	svc := newService(t)
	token, expiresIn, err := svc.GenerateSSEToken("admin")
	require.NoError(t, err)
	assert.Equal(t, 300, expiresIn)

	username, err := svc.ValidateSSEToken(token)
	require.NoError(t, err)
	assert.Equal(t, "admin", username)
}

func TestValidateSSEToken_RejectsAccessToken(t *testing.T) {
	svc := newService(t)
	access, _, err := svc.GenerateAccessToken("admin")
	require.NoError(t, err)

	_, err = svc.ValidateSSEToken(access)
	assert.Error(t, err)
}

func TestValidateSSEToken_RejectsExpired(t *testing.T) {
	svc := newService(t)
	svc.now = func() time.Time { return time.Now().Add(-time.Hour) }
	token, _, err := svc.GenerateSSEToken("admin")
	require.NoError(t, err)

	_, err = svc.ValidateSSEToken(token)
	assert.Error(t, err)
}

func TestValidateSSEToken_RejectsOtherSecret(t *testing.T) {
	other, err := NewJWTService("other-secret", "1h")
	require.NoError(t, err)
	token, _, err := other.GenerateSSEToken("admin")
	require.NoError(t, err)

	_, err = newService(t).ValidateSSEToken(token)
	assert.Error(t, err)
}
