package jwt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndValidate(t *testing.T) {
	svc := NewJWTService("test-secret", time.Hour)
	token, exp, err := svc.GenerateAccessToken("bob", "user", "Central")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, 5*time.Second)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "bob", claims.Username)
	assert.Equal(t, "user", claims.Role)
	assert.Equal(t, "Central", claims.Powerhouse)
	assert.Greater(t, claims.RemainingTTL(time.Now()), 59*time.Minute)
}

func TestValidateRejectsForeignSecret(t *testing.T) {
	token, _, err := NewJWTService("a", time.Hour).GenerateAccessToken("bob", "user", "")
	require.NoError(t, err)

	_, err = NewJWTService("b", time.Hour).ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = NewJWTService("a", time.Hour).ValidateToken("garbage")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateExpired(t *testing.T) {
	svc := NewJWTService("s", time.Minute)
	svc.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	token, _, err := svc.GenerateAccessToken("admin", "admin", "")
	require.NoError(t, err)

	_, err = NewJWTService("s", time.Minute).ValidateToken(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestFingerprint(t *testing.T) {
	a := Fingerprint("token-a")
	assert.Len(t, a, 64)
	assert.Equal(t, a, Fingerprint("token-a"))
	assert.NotEqual(t, a, Fingerprint("token-b"))
}
