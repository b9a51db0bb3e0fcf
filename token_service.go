package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

const sessionKeyNamespace = "auth:session:"

// TokenServiceImpl implements the TokenService interface
type TokenServiceImpl struct {
	signingKey      []byte
	tokenExpiration int
	issuer          string
	audience        jwt.ClaimStrings
	logger          Logger
}

// NewTokenService creates a new TokenService instance
func NewTokenService(signingKey []byte, tokenExpiration int, issuer string, audience jwt.ClaimStrings, logger Logger) TokenService {
	if logger == nil {
		logger = defLogger{}
	}
	return &TokenServiceImpl{
		signingKey:      signingKey,
		tokenExpiration: tokenExpiration,
		issuer:          issuer,
		audience:        audience,
		logger:          logger,
	}
}

// Generate creates a session JWT from a resolved identity. It is the single
// issuance entry point: callers resolve an Identity first, whether it came
// from raw credentials or from a stored session handle.
func (ts *TokenServiceImpl) Generate(identity Identity) (string, error) {
	claims := ts.NewSessionClaims(identity)
	if claims == nil {
		return "", errors.New("identity must not be nil", errors.CategoryBadInput)
	}

	return ts.SignClaims(claims)
}

// NewSessionClaims builds session claims bound to the identity, stamped with
// the configured issuer and audience and a fresh token id.
func (ts *TokenServiceImpl) NewSessionClaims(identity Identity) *JWTClaims {
	if identity == nil {
		return nil
	}

	now := time.Now()
	claims := &JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    ts.issuer,
			Subject:   identity.ID(),
			Audience:  ts.audience,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ts.SessionTTL())),
		},
		UID:       identity.ID(),
		Name:      identity.Username(),
		UserEmail: identity.Email(),
	}

	ensureTokenID(&claims.RegisteredClaims)

	return claims
}

// SignClaims signs arbitrary JWT claims using the configured signing key.
func (ts *TokenServiceImpl) SignClaims(claims *JWTClaims) (string, error) {
	if claims == nil {
		return "", errors.New("claims must not be nil", errors.CategoryInternal)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signedString, err := token.SignedString(ts.signingKey)
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to sign JWT")
	}

	return signedString, nil
}

// Validate parses and validates a token string, returning structured claims
func (ts *TokenServiceImpl) Validate(tokenString string) (AuthClaims, error) {
	parserOptions := make([]jwt.ParserOption, 0, 2)
	if ts.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(ts.issuer))
	}
	if len(ts.audience) > 0 {
		parserOptions = append(parserOptions, jwt.WithAudience(ts.audience...))
	}

	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			ts.logger.Error("TokenService validate encountered unexpected signing method", "alg", t.Header["alg"])
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return ts.signingKey, nil
	}, parserOptions...)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, errors.Wrap(err, ErrTokenMalformed.Category, ErrTokenMalformed.Message).WithTextCode(ErrTokenMalformed.TextCode)
	}

	if claims, ok := token.Claims.(*JWTClaims); ok && token.Valid {
		return claims, nil
	}

	ts.logger.Error("TokenService validate could not decode or validate claims")
	return nil, ErrTokenMalformed
}

// SessionKey hashes the identity handle into a stable session store key.
// Rotating a token does not change the handle, so the rotated token derives
// the same key; deriving from raw token bytes would make refresh unreachable.
func (ts *TokenServiceImpl) SessionKey(identifier string) string {
	sum := sha256.Sum256([]byte(sessionKeyNamespace + identifier))
	return hex.EncodeToString(sum[:])
}

// DeriveSessionKey validates the raw token text and derives the session key
// from its embedded claims identity.
func (ts *TokenServiceImpl) DeriveSessionKey(tokenString string) (string, error) {
	claims, err := ts.Validate(tokenString)
	if err != nil {
		return "", err
	}

	handle := claims.Email()
	if handle == "" {
		return "", ErrTokenMalformed
	}

	return ts.SessionKey(handle), nil
}

// SessionTTL is the token validity window, which doubles as the session
// entry TTL.
func (ts *TokenServiceImpl) SessionTTL() time.Duration {
	return time.Duration(ts.tokenExpiration) * time.Hour
}

func ensureTokenID(claims *jwt.RegisteredClaims) {
	if claims.ID == "" {
		claims.ID = uuid.NewString()
	}
}
