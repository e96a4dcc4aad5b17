package token

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/promptvault/pkg/config"
)

var testAuth = config.AuthConfig{
	JWTSecret: "test-secret-with-enough-entropy",
	Issuer:    "https://id.promptvault.test/auth/v1",
	Audience:  "authenticated",
	Leeway:    time.Second,
}

func TestVerify_RoundTrip(t *testing.T) {
	v, err := NewVerifier(testAuth)
	require.NoError(t, err)
	raw, err := NewSigner(testAuth).Sign("user-1", "ada@example.com", time.Hour)
	require.NoError(t, err)

	id, err := v.Verify(raw)
	require.NoError(t, err)
	assert.Equal(t, "user-1", id.UserID)
	assert.Equal(t, "ada@example.com", id.Email)
	assert.WithinDuration(t, time.Now().Add(time.Hour), id.ExpiresAt, 5*time.Second)
}

func TestVerify_Rejects(t *testing.T) {
	v, err := NewVerifier(testAuth)
	require.NoError(t, err)

	other := testAuth
	other.JWTSecret = "someone-elses-secret"
	forged, err := NewSigner(other).Sign("user-1", "", time.Hour)
	require.NoError(t, err)

	expired, err := NewSigner(testAuth).Sign("user-1", "", -time.Hour)
	require.NoError(t, err)

	wrongIss := testAuth
	wrongIss.Issuer = "https://elsewhere"
	badIssuer, err := NewSigner(wrongIss).Sign("user-1", "", time.Hour)
	require.NoError(t, err)

	noSubject, err := NewSigner(testAuth).Sign("", "", time.Hour)
	require.NoError(t, err)

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject:   "user-1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := map[string]string{
		"forged signature": forged,
		"expired":          expired,
		"wrong issuer":     badIssuer,
		"no subject":       noSubject,
		"alg none":         unsigned,
		"garbage":          "not.a.token",
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := v.Verify(raw)
			assert.True(t, errors.Is(err, ErrInvalidToken), "got %v", err)
		})
	}

	_, err = v.Verify("")
	assert.ErrorIs(t, err, ErrMissingToken)
}

func TestNewVerifier_RequiresSecret(t *testing.T) {
	_, err := NewVerifier(config.AuthConfig{})
	assert.Error(t, err)
}

func TestFromHeader(t *testing.T) {
	assert.Equal(t, "abc", FromHeader("Bearer abc"))
	assert.Equal(t, "abc", FromHeader("bearer  abc "))
	assert.Equal(t, "", FromHeader("Basic abc"))
	assert.Equal(t, "", FromHeader(""))
}

func TestContext(t *testing.T) {
	_, ok := FromContext(context.Background())
	assert.False(t, ok)

	ctx := WithIdentity(context.Background(), &Identity{UserID: "u"})
	id, ok := FromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "u", id.UserID)
}
