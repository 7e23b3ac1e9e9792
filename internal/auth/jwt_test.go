package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyRoundTrip(t *testing.T) {
	v := NewVerifier("secret")
	token, err := v.Issue("user-1", time.Hour)
	require.NoError(t, err)

	userID, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", userID)
}

func TestVerifyRejects(t *testing.T) {
	v := NewVerifier("secret")
	other := NewVerifier("other-secret")
	foreign, err := other.Issue("user-1", time.Hour)
	require.NoError(t, err)
	expired, err := v.Issue("user-1", -time.Minute)
	require.NoError(t, err)
	noneAlg, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{UserID: "user-1"}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	noUser, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{}).SignedString([]byte("secret"))
	require.NoError(t, err)

	for name, token := range map[string]string{
		"empty":      "",
		"garbage":    "not-a-jwt",
		"wrong key":  foreign,
		"expired":    expired,
		"alg none":   noneAlg,
		"no user id": noUser,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := v.Verify(token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestVerifyAcceptsSubject(t *testing.T) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "user-9"}).SignedString([]byte("secret"))
	require.NoError(t, err)

	userID, err := NewVerifier("secret").Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "user-9", userID)
}

func TestBearerToken(t *testing.T) {
	token, ok := BearerToken("Bearer abc")
	assert.True(t, ok)
	assert.Equal(t, "abc", token)

	token, ok = BearerToken("bearer  xyz ")
	assert.True(t, ok)
	assert.Equal(t, "xyz", token)

	_, ok = BearerToken("Basic abc")
	assert.False(t, ok)
	_, ok = BearerToken("Bearer")
	assert.False(t, ok)
}
