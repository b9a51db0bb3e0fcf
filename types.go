package auth

import (
	"context"
	"fmt"
	"time"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Identity holds the attributes of an identity
type Identity interface {
	ID() string
	Username() string
	Email() string
}

// IdentityStore is the persistence boundary the session manager needs.
// Implementations own credential checks and user records; the manager only
// reads the claims view of an identity.
type IdentityStore interface {
	VerifyIdentity(ctx context.Context, identifier, password string) (Identity, error)
	FindIdentityByIdentifier(ctx context.Context, identifier string) (Identity, error)
	CreateFromRegistration(ctx context.Context, pending *PendingRegistration) (Identity, error)
	UpdatePassword(ctx context.Context, identifier, password string) error
}

// PasswordAuthenticator authenticates passwords
type PasswordAuthenticator interface {
	HashPassword(password string) (string, error)
	ComparePasswordAndHash(password, hash string) error
}

// SessionStore maps a derived session key to the identity's stable lookup
// handle. Entries expire on their own; an expired entry is indistinguishable
// from an absent one. All operations are atomic per key.
type SessionStore interface {
	Put(ctx context.Context, key, value string, ttl time.Duration) error
	// Get returns ErrSessionNotFound for absent or expired keys.
	Get(ctx context.Context, key string) (string, error)
	// Revoke deletes the entry. It is a no-op when the key is absent.
	Revoke(ctx context.Context, key string) error
}

// RateLimiter gates attempt-style actions. TryConsume never blocks; a false
// return is an immediate rejection, not a queue.
type RateLimiter interface {
	TryConsume(action string) bool
}

// Actions known to the rate limiter.
const (
	ActionLogin    = "login"
	ActionRegister = "register"
)

// TokenService issues and validates session tokens and derives the session
// store key that correlates a token with its session entry.
type TokenService interface {
	Generate(identity Identity) (string, error)
	// NewSessionClaims builds the session claims for an identity. Generate is
	// NewSessionClaims followed by SignClaims; callers that need the claim
	// values alongside the signed token use the two steps directly.
	NewSessionClaims(identity Identity) *JWTClaims
	SignClaims(claims *JWTClaims) (string, error)
	Validate(tokenString string) (AuthClaims, error)
	// SessionKey derives the lookup key for an identity handle. The key is a
	// function of the claims identity, not of raw token bytes, so a rotated
	// token still resolves to the live session record.
	SessionKey(identifier string) string
	// DeriveSessionKey decodes a raw token and derives its session key.
	DeriveSessionKey(tokenString string) (string, error)
	SessionTTL() time.Duration
}

// VerificationStore is the short-TTL, single-use state behind the two-phase
// email verification protocol.
type VerificationStore interface {
	// CreatePending stores the payload under a fresh unguessable activation
	// id and returns the id.
	CreatePending(ctx context.Context, pending *PendingRegistration) (string, error)
	// ReadPending returns the payload without deleting it; removal is a
	// separate explicit step so callers can retry delivery before committing.
	ReadPending(ctx context.Context, activationID string) (*PendingRegistration, error)
	// RemovePending deletes the payload. It is a no-op when absent.
	RemovePending(ctx context.Context, activationID string) error
	MarkVerified(ctx context.Context, purpose VerificationPurpose, identifier string) error
	IsVerified(ctx context.Context, purpose VerificationPurpose, identifier string) bool
	// VerifyToken validates a purpose-scoped verification token and, on
	// success, marks the (purpose, identifier) pair verified.
	VerifyToken(ctx context.Context, purpose VerificationPurpose, identifier, token string) bool
}

// VerificationPurpose namespaces verification flows sharing the same cache.
type VerificationPurpose string

const (
	PurposeRegistration   VerificationPurpose = "register"
	PurposeChangePassword VerificationPurpose = "change-password"
)

// PendingRegistration is the cached payload of a registration awaiting email
// activation. The password is kept raw and hashed only at activation time.
type PendingRegistration struct {
	ActivationID string         `json:"activation_id,omitempty"`
	Username     string         `json:"username"`
	Email        string         `json:"email"`
	Password     string         `json:"password"`
	Phone        string         `json:"phone,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// VerificationEmail is the message handed to a Notifier.
type VerificationEmail struct {
	Recipient      string
	Name           string
	ActivationID   string
	ActivationLink string
	Purpose        VerificationPurpose
}

// Notifier delivers verification messages. Implementations are called from a
// background dispatcher; failures must not surface to the triggering flow.
type Notifier interface {
	SendVerification(ctx context.Context, msg VerificationEmail) error
}

// Config holds auth options
type Config interface {
	GetSigningKey() string
	GetTokenExpiration() int
	GetIssuer() string
	GetAudience() []string
	GetRegistrationTTL() time.Duration
	GetVerificationTTL() time.Duration
	GetActivationBaseURL() string
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] AUTH "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] AUTH "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] AUTH "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] AUTH "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
