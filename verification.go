package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-errors"
)

// activationIDBytes gives 256 bits of entropy; ids carry no embedded data.
const activationIDBytes = 32

// NewActivationID returns an unguessable, URL-safe activation identifier.
func NewActivationID() (string, error) {
	buf := make([]byte, activationIDBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to generate activation id")
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Verification is the in-memory VerificationStore. Pending registrations and
// verified-purpose flags live in separate namespaces with independent TTLs.
type Verification struct {
	mu       sync.RWMutex
	pending  map[string]pendingEntry
	verified map[string]time.Time // key: purpose + "\x00" + identifier -> expiry

	tokens      *VerificationTokens
	pendingTTL  time.Duration
	verifiedTTL time.Duration
	logger      Logger
	now         func() time.Time
}

type pendingEntry struct {
	payload   *PendingRegistration
	expiresAt time.Time
}

// NewVerification builds a verification store. The signing key scopes
// verification tokens; it may equal the session signing key.
func NewVerification(signingKey []byte, pendingTTL, verifiedTTL time.Duration) *Verification {
	if pendingTTL <= 0 {
		pendingTTL = 30 * time.Minute
	}
	if verifiedTTL <= 0 {
		verifiedTTL = 15 * time.Minute
	}

	return &Verification{
		pending:     make(map[string]pendingEntry),
		verified:    make(map[string]time.Time),
		tokens:      NewVerificationTokens(signingKey, verifiedTTL),
		pendingTTL:  pendingTTL,
		verifiedTTL: verifiedTTL,
		logger:      defLogger{},
		now:         time.Now,
	}
}

// WithLogger overrides the logger used by the verification store.
func (v *Verification) WithLogger(logger Logger) *Verification {
	if logger != nil {
		v.logger = logger
	}
	return v
}

var _ VerificationStore = (*Verification)(nil)

// Tokens exposes the purpose-scoped token issuer, used when composing the
// verification email for auxiliary flows.
func (v *Verification) Tokens() *VerificationTokens {
	return v.tokens
}

// CreatePending stores the payload under a fresh activation id. At most one
// live entry exists per id; ids are never reused.
func (v *Verification) CreatePending(_ context.Context, pending *PendingRegistration) (string, error) {
	if pending == nil {
		return "", errors.New("pending registration must not be nil", errors.CategoryBadInput)
	}

	id, err := NewActivationID()
	if err != nil {
		return "", err
	}

	now := v.now()
	pending.ActivationID = id
	pending.CreatedAt = now

	v.mu.Lock()
	defer v.mu.Unlock()
	v.pending[id] = pendingEntry{
		payload:   pending,
		expiresAt: now.Add(v.pendingTTL),
	}

	return id, nil
}

// ReadPending returns the payload for a live activation id without consuming
// it. Unknown and expired ids both return ErrActivationInvalid.
func (v *Verification) ReadPending(_ context.Context, activationID string) (*PendingRegistration, error) {
	v.mu.RLock()
	entry, exists := v.pending[activationID]
	v.mu.RUnlock()

	if !exists {
		return nil, ErrActivationInvalid
	}

	if v.now().After(entry.expiresAt) {
		v.mu.Lock()
		if current, ok := v.pending[activationID]; ok && v.now().After(current.expiresAt) {
			delete(v.pending, activationID)
		}
		v.mu.Unlock()
		return nil, ErrActivationInvalid
	}

	return entry.payload, nil
}

// RemovePending deletes the payload; absent ids are a no-op.
func (v *Verification) RemovePending(_ context.Context, activationID string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.pending, activationID)
	return nil
}

// MarkVerified records that identifier completed verification for purpose.
// The flag is a recency statement, not a consumable: TTL discipline is the
// only staleness guard.
func (v *Verification) MarkVerified(_ context.Context, purpose VerificationPurpose, identifier string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.verified[verifiedKey(purpose, identifier)] = v.now().Add(v.verifiedTTL)
	return nil
}

// IsVerified reports whether identifier verified purpose within the TTL
// window.
func (v *Verification) IsVerified(_ context.Context, purpose VerificationPurpose, identifier string) bool {
	key := verifiedKey(purpose, identifier)

	v.mu.RLock()
	expiresAt, exists := v.verified[key]
	v.mu.RUnlock()

	if !exists {
		return false
	}

	if v.now().After(expiresAt) {
		v.mu.Lock()
		if current, ok := v.verified[key]; ok && v.now().After(current) {
			delete(v.verified, key)
		}
		v.mu.Unlock()
		return false
	}

	return true
}

// VerifyToken validates a purpose-scoped verification token and marks the
// pair verified on success. Failure is a reported fact, not an error.
func (v *Verification) VerifyToken(ctx context.Context, purpose VerificationPurpose, identifier, token string) bool {
	if err := v.tokens.Validate(purpose, identifier, token); err != nil {
		v.logger.Debug("verification token rejected", "purpose", purpose, "identifier", identifier, "error", err)
		return false
	}

	if err := v.MarkVerified(ctx, purpose, identifier); err != nil {
		v.logger.Error("failed to mark identifier verified", "error", err)
		return false
	}

	return true
}

func verifiedKey(purpose VerificationPurpose, identifier string) string {
	return string(purpose) + "\x00" + identifier
}

// VerificationTokens issues and validates short-lived JWTs scoped to a
// verification purpose. They are structurally like session tokens but are
// never correlated with the session store.
type VerificationTokens struct {
	signingKey []byte
	ttl        time.Duration
}

type verificationClaims struct {
	jwt.RegisteredClaims
	Purpose string `json:"purpose"`
}

// NewVerificationTokens creates a purpose-token issuer.
func NewVerificationTokens(signingKey []byte, ttl time.Duration) *VerificationTokens {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &VerificationTokens{signingKey: signingKey, ttl: ttl}
}

// Issue mints a verification token binding purpose and identifier.
func (vt *VerificationTokens) Issue(purpose VerificationPurpose, identifier string) (string, error) {
	now := time.Now()
	claims := &verificationClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identifier,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(vt.ttl)),
		},
		Purpose: string(purpose),
	}
	ensureTokenID(&claims.RegisteredClaims)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(vt.signingKey)
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to sign verification token")
	}
	return signed, nil
}

// Validate checks signature, expiry, and that the token was issued for this
// exact purpose and identifier.
func (vt *VerificationTokens) Validate(purpose VerificationPurpose, identifier, tokenString string) error {
	claims := &verificationClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return vt.signingKey, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrTokenExpired
		}
		return errors.Wrap(err, ErrTokenMalformed.Category, ErrTokenMalformed.Message).WithTextCode(ErrTokenMalformed.TextCode)
	}

	if !token.Valid {
		return ErrTokenMalformed
	}

	if claims.Purpose != string(purpose) || claims.RegisteredClaims.Subject != identifier {
		return errors.New("verification token does not match purpose or identifier", errors.CategoryAuth).
			WithTextCode(TextCodeTokenMalformed)
	}

	return nil
}
