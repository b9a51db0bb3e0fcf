package auth_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/isacitra/go-auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTokenService() auth.TokenService {
	return auth.NewTokenService(
		[]byte("test-signing-key"),
		24,
		"test-issuer",
		jwt.ClaimStrings{"test-audience"},
		nil,
	)
}

func TestTokenService_GenerateAndValidate(t *testing.T) {
	service := newTestTokenService()
	identity := testIdentity{id: "usr-1", username: "tester", email: "tester@example.com"}

	token, err := service.Generate(identity)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := service.Validate(token)
	require.NoError(t, err)

	assert.Equal(t, "usr-1", claims.Subject())
	assert.Equal(t, "usr-1", claims.UserID())
	assert.Equal(t, "tester", claims.Username())
	assert.Equal(t, "tester@example.com", claims.Email())
	assert.NotEmpty(t, claims.TokenID())
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), claims.Expires(), time.Minute)
}

func TestTokenService_NewSessionClaims(t *testing.T) {
	service := newTestTokenService()
	identity := testIdentity{id: "usr-1", username: "tester", email: "tester@example.com"}

	claims := service.NewSessionClaims(identity)
	require.NotNil(t, claims)

	assert.Equal(t, "test-issuer", claims.Issuer)
	assert.Equal(t, jwt.ClaimStrings{"test-audience"}, claims.Audience)
	assert.Equal(t, "usr-1", claims.UID)
	assert.Equal(t, "tester", claims.Name)
	assert.Equal(t, "tester@example.com", claims.UserEmail)
	assert.NotEmpty(t, claims.TokenID())
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), claims.Expires(), time.Minute)

	// signing the built claims yields a token the same service accepts
	token, err := service.SignClaims(claims)
	require.NoError(t, err)
	parsed, err := service.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, claims.TokenID(), parsed.TokenID())
}

func TestTokenService_NewSessionClaims_NilIdentity(t *testing.T) {
	service := newTestTokenService()
	assert.Nil(t, service.NewSessionClaims(nil))
}

func TestTokenService_Generate_NilIdentity(t *testing.T) {
	service := newTestTokenService()

	_, err := service.Generate(nil)
	assert.Error(t, err)
}

func TestTokenService_Validate_Expired(t *testing.T) {
	signingKey := []byte("test-signing-key")
	service := newTestTokenService()

	now := time.Now()
	claims := &auth.JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "test-issuer",
			Subject:   "usr-1",
			Audience:  jwt.ClaimStrings{"test-audience"},
			IssuedAt:  jwt.NewNumericDate(now.Add(-2 * time.Hour)),
			ExpiresAt: jwt.NewNumericDate(now.Add(-time.Hour)),
			ID:        "expired-token",
		},
		UserEmail: "tester@example.com",
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(signingKey)
	require.NoError(t, err)

	_, err = service.Validate(signed)
	require.Error(t, err)
	assert.Equal(t, auth.ErrTokenExpired, err)
	assert.True(t, auth.IsTokenExpiredError(err))
}

func TestTokenService_Validate_Malformed(t *testing.T) {
	service := newTestTokenService()

	tests := []struct {
		name  string
		token string
	}{
		{name: "garbage", token: "not-a-token"},
		{name: "empty", token: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := service.Validate(tt.token)
			require.Error(t, err)
			assert.True(t, auth.IsMalformedError(err))
		})
	}
}

func TestTokenService_Validate_WrongKey(t *testing.T) {
	other := auth.NewTokenService(
		[]byte("a-different-key"),
		24,
		"test-issuer",
		jwt.ClaimStrings{"test-audience"},
		nil,
	)

	token, err := other.Generate(testIdentity{id: "usr-1", email: "tester@example.com"})
	require.NoError(t, err)

	service := newTestTokenService()
	_, err = service.Validate(token)
	require.Error(t, err)
	assert.True(t, auth.IsMalformedError(err))
}

func TestTokenService_SessionKey(t *testing.T) {
	service := newTestTokenService()

	key := service.SessionKey("tester@example.com")
	assert.Len(t, key, 64)
	assert.Equal(t, key, service.SessionKey("tester@example.com"))
	assert.NotEqual(t, key, service.SessionKey("other@example.com"))
}

func TestTokenService_DeriveSessionKey_StableAcrossRotation(t *testing.T) {
	service := newTestTokenService()
	identity := testIdentity{id: "usr-1", username: "tester", email: "tester@example.com"}

	first, err := service.Generate(identity)
	require.NoError(t, err)
	second, err := service.Generate(identity)
	require.NoError(t, err)
	require.NotEqual(t, first, second)

	key1, err := service.DeriveSessionKey(first)
	require.NoError(t, err)
	key2, err := service.DeriveSessionKey(second)
	require.NoError(t, err)

	assert.Equal(t, key1, key2)
	assert.Equal(t, service.SessionKey(identity.Email()), key1)
}

func TestTokenService_DeriveSessionKey_InvalidToken(t *testing.T) {
	service := newTestTokenService()

	_, err := service.DeriveSessionKey("garbage")
	assert.Error(t, err)
}

func TestTokenService_SessionTTL(t *testing.T) {
	service := newTestTokenService()
	assert.Equal(t, 24*time.Hour, service.SessionTTL())
}
