package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testKey = []byte("test-signing-key")

func mint(t *testing.T, claims *Claims, key []byte, method jwt.SigningMethod) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return token
}

func TestParseToken(t *testing.T) {
	token := mint(t, &Claims{
		LACode:   "100",
		LAName:   "Testshire",
		Username: "clerk",
		Email:    "clerk@example.gov.uk",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}, testKey, jwt.SigningMethodHS256)

	ident, err := ParseToken(token, testKey)
	require.NoError(t, err)
	assert.Equal(t, Identity{
		LACode:   "100",
		LAName:   "Testshire",
		Username: "clerk",
		Email:    "clerk@example.gov.uk",
	}, ident)
}

func TestParseTokenEmailFallsBackToUsername(t *testing.T) {
	token := mint(t, &Claims{
		LACode:   "100",
		Username: "clerk@example.gov.uk",
	}, testKey, jwt.SigningMethodHS256)

	ident, err := ParseToken(token, testKey)
	require.NoError(t, err)
	assert.Equal(t, "clerk@example.gov.uk", ident.Email)
}

func TestParseTokenRejectsWrongKey(t *testing.T) {
	token := mint(t, &Claims{LACode: "100"}, []byte("other-key"), jwt.SigningMethodHS256)

	_, err := ParseToken(token, testKey)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseTokenRejectsExpired(t *testing.T) {
	token := mint(t, &Claims{
		LACode: "100",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	}, testKey, jwt.SigningMethodHS256)

	_, err := ParseToken(token, testKey)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseTokenRequiresLACode(t *testing.T) {
	token := mint(t, &Claims{Username: "clerk"}, testKey, jwt.SigningMethodHS256)

	_, err := ParseToken(token, testKey)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseTokenRejectsGarbage(t *testing.T) {
	_, err := ParseToken("not.a.jwt", testKey)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestIdentityContextRoundTrip(t *testing.T) {
	ident := Identity{LACode: "100", LAName: "Testshire"}
	ctx := WithIdentity(context.Background(), ident)

	got, ok := FromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, ident, got)

	_, ok = FromContext(context.Background())
	assert.False(t, ok)
}
