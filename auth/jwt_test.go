package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sixfold/sixfold/config"
)

func newTestJWT(t *testing.T) *JWTManager {
	t.Helper()
	m, err := NewJWTManager(&config.AuthConfig{
		JWTSecret:     "test-secret",
		TokenExpiry:   "15m",
		RefreshExpiry: "720h",
	})
	require.NoError(t, err)
	return m
}

func TestGenerateAndValidateToken(t *testing.T) {
	m := newTestJWT(t)

	claims := &Claims{UserID: "u1", Email: "ada@example.com", SessionID: "s1"}
	token, err := m.GenerateToken(claims)
	require.NoError(t, err)

	parsed, err := m.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, claims, parsed)
}

func TestValidateTokenWrongSecret(t *testing.T) {
	m := newTestJWT(t)
	other, err := NewJWTManager(&config.AuthConfig{JWTSecret: "different-secret"})
	require.NoError(t, err)

	token, err := m.GenerateToken(&Claims{UserID: "u1"})
	require.NoError(t, err)

	_, err = other.ValidateToken(token)
	assert.Error(t, err)
}

func TestValidateGarbageToken(t *testing.T) {
	m := newTestJWT(t)
	_, err := m.ValidateToken("not.a.token")
	assert.Error(t, err)
}

func TestAutoGeneratedSecret(t *testing.T) {
	m, err := NewJWTManager(&config.AuthConfig{})
	require.NoError(t, err)

	token, err := m.GenerateToken(&Claims{UserID: "u1"})
	require.NoError(t, err)
	_, err = m.ValidateToken(token)
	assert.NoError(t, err)
}

func TestExpiryDefaults(t *testing.T) {
	m, err := NewJWTManager(&config.AuthConfig{TokenExpiry: "bogus", RefreshExpiry: "bogus"})
	require.NoError(t, err)
	assert.Equal(t, 15*time.Minute, m.TokenExpiry())
	assert.Equal(t, 30*24*time.Hour, m.RefreshExpiry())
}

func TestRefreshTokensAreUnique(t *testing.T) {
	m := newTestJWT(t)
	a, err := m.GenerateRefreshToken()
	require.NoError(t, err)
	b, err := m.GenerateRefreshToken()
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.Len(t, a, 64, "32 random bytes hex encoded")
}
