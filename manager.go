package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// VerificationDispatcher submits verification emails for background
// delivery. Submission never blocks and never fails the calling flow.
type VerificationDispatcher interface {
	Dispatch(msg VerificationEmail)
}

// RegisterMessage is the registration payload cached until activation.
type RegisterMessage struct {
	Username string         `json:"username"`
	Email    string         `json:"email"`
	Password string         `json:"password"`
	Phone    string         `json:"phone,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// ActivationResult is returned by a successful account activation.
type ActivationResult struct {
	Message  string
	Identity Identity
	Token    string
}

// sessionRecord is the stored session value: the stable identity handle plus
// the id of the token currently bound to the session. The token id is what
// makes refresh one-time: a rotated-out token derives the same key but no
// longer matches.
type sessionRecord struct {
	Handle  string `json:"handle"`
	TokenID string `json:"token_id"`
}

// SessionManager composes the session store, token service, rate limiter,
// and verification cache into the login, refresh, logout, register,
// activate, and password-change flows.
type SessionManager struct {
	identities IdentityStore
	sessions   SessionStore
	verifier   VerificationStore
	limiter    RateLimiter
	tokens     TokenService
	dispatcher VerificationDispatcher
	activity   ActivitySink
	logger     Logger

	activationBaseURL string
}

type noopDispatcher struct{}

func (noopDispatcher) Dispatch(VerificationEmail) {}

// NewSessionManager returns a manager wired with in-memory stores and the
// default bucket limiter; use the With* options to swap collaborators.
func NewSessionManager(identities IdentityStore, cfg Config) *SessionManager {
	signingKey := []byte(cfg.GetSigningKey())

	tokenService := NewTokenService(
		signingKey,
		cfg.GetTokenExpiration(),
		cfg.GetIssuer(),
		cfg.GetAudience(),
		defLogger{},
	)

	return &SessionManager{
		identities:        identities,
		sessions:          NewMemorySessionStore(),
		verifier:          NewVerification(signingKey, cfg.GetRegistrationTTL(), cfg.GetVerificationTTL()),
		limiter:           NewDefaultBucketLimiter(),
		tokens:            tokenService,
		dispatcher:        noopDispatcher{},
		activity:          noopActivitySink{},
		logger:            defLogger{},
		activationBaseURL: strings.TrimSuffix(cfg.GetActivationBaseURL(), "/"),
	}
}

func (m *SessionManager) WithLogger(logger Logger) *SessionManager {
	if logger != nil {
		m.logger = logger
	}
	return m
}

// WithSessionStore swaps the session store backend.
func (m *SessionManager) WithSessionStore(store SessionStore) *SessionManager {
	if store != nil {
		m.sessions = store
	}
	return m
}

// WithVerificationStore swaps the verification cache backend.
func (m *SessionManager) WithVerificationStore(store VerificationStore) *SessionManager {
	if store != nil {
		m.verifier = store
	}
	return m
}

// WithRateLimiter swaps the injected rate limiter.
func (m *SessionManager) WithRateLimiter(limiter RateLimiter) *SessionManager {
	if limiter != nil {
		m.limiter = limiter
	}
	return m
}

// WithTokenService swaps the token service.
func (m *SessionManager) WithTokenService(tokens TokenService) *SessionManager {
	if tokens != nil {
		m.tokens = tokens
	}
	return m
}

// WithDispatcher sets the background verification-email dispatcher.
func (m *SessionManager) WithDispatcher(dispatcher VerificationDispatcher) *SessionManager {
	if dispatcher != nil {
		m.dispatcher = dispatcher
	}
	return m
}

// WithActivitySink configures an ActivitySink for emitting auth events.
func (m *SessionManager) WithActivitySink(sink ActivitySink) *SessionManager {
	m.activity = normalizeActivitySink(sink)
	return m
}

// TokenService returns the TokenService instance used by this manager.
func (m *SessionManager) TokenService() TokenService {
	return m.tokens
}

// Verifier returns the verification store used by this manager.
func (m *SessionManager) Verifier() VerificationStore {
	return m.verifier
}

// Login authenticates credentials and opens a session. Outcomes: the token
// on success, ErrTooManyLoginAttempts when the login bucket is empty,
// ErrIdentityNotFound when the identifier resolves to nothing, and
// ErrMismatchedHashAndPassword on a bad password.
func (m *SessionManager) Login(ctx context.Context, identifier, password string) (string, error) {
	if !m.limiter.TryConsume(ActionLogin) {
		m.logger.Info("login bucket exhausted", "identifier", identifier)
		return "", ErrTooManyLoginAttempts
	}

	identity, err := m.identities.VerifyIdentity(ctx, identifier, password)
	if err != nil {
		m.logger.Error("login verify identity error", "error", err)
		m.emitAuthEvent(ctx, ActivityEventLoginFailure, ActorRef{Type: "unknown"}, "", map[string]any{
			"identifier": identifier,
			"error":      err.Error(),
		})
		return "", err
	}

	token, err := m.openSession(ctx, identity)
	if err != nil {
		m.emitAuthEvent(ctx, ActivityEventLoginFailure, m.actorFromIdentity(identity), identity.ID(), map[string]any{
			"identifier": identifier,
			"error":      err.Error(),
		})
		return "", err
	}

	m.emitAuthEvent(ctx, ActivityEventLoginSuccess, m.actorFromIdentity(identity), identity.ID(), map[string]any{
		"identifier": identifier,
	})

	return token, nil
}

// Refresh redeems a live token for a new one. The old token is revoked
// before the replacement is issued; redeeming it a second time fails with
// ErrSessionExpired.
func (m *SessionManager) Refresh(ctx context.Context, tokenString string) (string, error) {
	token, _, err := m.rotate(ctx, tokenString)
	return token, err
}

// UserData rotates the session like Refresh and returns the fresh token
// together with the resolved identity.
func (m *SessionManager) UserData(ctx context.Context, tokenString string) (string, Identity, error) {
	return m.rotate(ctx, tokenString)
}

func (m *SessionManager) rotate(ctx context.Context, tokenString string) (string, Identity, error) {
	claims, err := m.tokens.Validate(tokenString)
	if err != nil {
		return "", nil, err
	}

	key := m.tokens.SessionKey(claims.Email())

	record, err := m.getSessionRecord(ctx, key)
	if err != nil {
		return "", nil, err
	}

	// One-time use: the presented token must be the one the session is
	// currently bound to, not one rotated out earlier.
	if record.TokenID != claims.TokenID() {
		return "", nil, ErrSessionExpired
	}

	if err := m.sessions.Revoke(ctx, key); err != nil {
		return "", nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to revoke redeemed session")
	}

	identity, err := m.identities.FindIdentityByIdentifier(ctx, record.Handle)
	if err != nil {
		m.logger.Error("rotate could not resolve stored identity", "handle", record.Handle, "error", err)
		return "", nil, ErrSessionExpired
	}

	token, err := m.openSession(ctx, identity)
	if err != nil {
		return "", nil, err
	}

	m.emitAuthEvent(ctx, ActivityEventSessionRefreshed, m.actorFromIdentity(identity), identity.ID(), nil)

	return token, identity, nil
}

// Logout revokes the token's session. A missing token, an undecodable
// token, and a token without a live session all report bad input.
func (m *SessionManager) Logout(ctx context.Context, tokenString string) error {
	if tokenString == "" {
		return ErrMissingToken
	}

	key, err := m.tokens.DeriveSessionKey(tokenString)
	if err != nil {
		return ErrSessionAlreadyInvalid
	}

	record, err := m.getSessionRecord(ctx, key)
	if err != nil {
		return ErrSessionAlreadyInvalid
	}

	if err := m.sessions.Revoke(ctx, key); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to revoke session")
	}

	m.emitAuthEvent(ctx, ActivityEventLogout, ActorRef{Type: "user"}, "", map[string]any{
		"handle": record.Handle,
	})

	return nil
}

// Register caches the registration payload and queues the activation email.
// The outcome is decided before the email leaves: delivery failures never
// surface here.
func (m *SessionManager) Register(ctx context.Context, msg RegisterMessage) (string, error) {
	if !m.limiter.TryConsume(ActionRegister) {
		m.logger.Info("register bucket exhausted", "email", msg.Email)
		return "", ErrTooManyRegistrations
	}

	if _, err := m.identities.FindIdentityByIdentifier(ctx, msg.Email); err == nil {
		return "", ErrDuplicateIdentity
	} else if !goerrors.IsNotFound(err) {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check for existing identity")
	}

	pending := &PendingRegistration{
		Username: msg.Username,
		Email:    msg.Email,
		Password: msg.Password,
		Phone:    msg.Phone,
		Metadata: msg.Metadata,
	}

	activationID, err := m.verifier.CreatePending(ctx, pending)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to cache pending registration")
	}

	m.dispatcher.Dispatch(VerificationEmail{
		Recipient:      msg.Email,
		Name:           msg.Username,
		ActivationID:   activationID,
		ActivationLink: m.activationLink(activationID),
		Purpose:        PurposeRegistration,
	})

	m.emitAuthEvent(ctx, ActivityEventRegistrationStart, ActorRef{Type: "unknown"}, "", map[string]any{
		"email": msg.Email,
	})

	message := fmt.Sprintf(
		"A confirmation link has been sent to your email address %s. Click the link to verify your account and unlock full access.",
		msg.Email,
	)

	return message, nil
}

// Activate redeems an activation id: at most once per id. The pending
// payload is removed before the identity is created, so a second call with
// the same id fails with ErrActivationInvalid.
func (m *SessionManager) Activate(ctx context.Context, activationID string) (*ActivationResult, error) {
	pending, err := m.verifier.ReadPending(ctx, activationID)
	if err != nil {
		return nil, ErrActivationInvalid
	}

	if err := m.verifier.RemovePending(ctx, activationID); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to consume activation id")
	}

	identity, err := m.identities.CreateFromRegistration(ctx, pending)
	if err != nil {
		m.logger.Error("activation could not create identity", "email", pending.Email, "error", err)
		return nil, err
	}

	token, err := m.openSession(ctx, identity)
	if err != nil {
		return nil, err
	}

	m.emitAuthEvent(ctx, ActivityEventAccountActivated, m.actorFromIdentity(identity), identity.ID(), map[string]any{
		"email": identity.Email(),
	})

	return &ActivationResult{
		Message:  fmt.Sprintf("This account under the name of %s has been successfully activated", identity.Username()),
		Identity: identity,
		Token:    token,
	}, nil
}

// RequestVerification issues a purpose-scoped verification token for an
// existing identity and queues it for delivery.
func (m *SessionManager) RequestVerification(ctx context.Context, purpose VerificationPurpose, identifier string) (string, error) {
	identity, err := m.identities.FindIdentityByIdentifier(ctx, identifier)
	if err != nil {
		return "", err
	}

	issuer, ok := m.verifier.(interface {
		Tokens() *VerificationTokens
	})
	if !ok {
		return "", goerrors.New("verification store does not issue tokens", goerrors.CategoryInternal)
	}

	token, err := issuer.Tokens().Issue(purpose, identity.Email())
	if err != nil {
		return "", err
	}

	m.dispatcher.Dispatch(VerificationEmail{
		Recipient:    identity.Email(),
		Name:         identity.Username(),
		ActivationID: token,
		Purpose:      purpose,
	})

	return fmt.Sprintf("A verification message has been sent to %s.", identity.Email()), nil
}

// ChangePassword updates the secret for an identity that recently completed
// the change-password verification.
func (m *SessionManager) ChangePassword(ctx context.Context, identifier, password, confirmation string) error {
	if !m.verifier.IsVerified(ctx, PurposeChangePassword, identifier) {
		return ErrEmailNotVerified
	}

	if password != confirmation {
		return ErrPasswordConfirmationMismatch
	}

	if err := m.identities.UpdatePassword(ctx, identifier, password); err != nil {
		return err
	}

	m.emitAuthEvent(ctx, ActivityEventPasswordChanged, ActorRef{Type: "user"}, "", map[string]any{
		"identifier": identifier,
	})

	return nil
}

// VerifyEmailToken reports whether the token verifies (purpose, identifier).
// The boolean is the outcome; a failed verification is not an error.
func (m *SessionManager) VerifyEmailToken(ctx context.Context, purpose VerificationPurpose, identifier, token string) bool {
	return m.verifier.VerifyToken(ctx, purpose, identifier, token)
}

func (m *SessionManager) openSession(ctx context.Context, identity Identity) (string, error) {
	claims := m.tokens.NewSessionClaims(identity)
	if claims == nil {
		return "", ErrIdentityNotFound
	}

	token, err := m.tokens.SignClaims(claims)
	if err != nil {
		return "", err
	}

	record := sessionRecord{Handle: identity.Email(), TokenID: claims.TokenID()}
	encoded, err := json.Marshal(record)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to encode session record")
	}

	key := m.tokens.SessionKey(identity.Email())
	if err := m.sessions.Put(ctx, key, string(encoded), m.tokens.SessionTTL()); err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to store session entry")
	}

	return token, nil
}

func (m *SessionManager) getSessionRecord(ctx context.Context, key string) (sessionRecord, error) {
	raw, err := m.sessions.Get(ctx, key)
	if err != nil {
		return sessionRecord{}, ErrSessionExpired
	}

	record := sessionRecord{}
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		m.logger.Error("session record is not decodable", "error", err)
		return sessionRecord{}, ErrSessionExpired
	}

	return record, nil
}

func (m *SessionManager) activationLink(activationID string) string {
	return m.activationBaseURL + "/" + activationID
}

func (m *SessionManager) emitAuthEvent(ctx context.Context, eventType ActivityEventType, actor ActorRef, userID string, metadata map[string]any) {
	sink := normalizeActivitySink(m.activity)
	event := ActivityEvent{
		EventType: eventType,
		Actor:     actor,
		UserID:    userID,
		Metadata:  metadata,
	}

	if event.Metadata == nil {
		event.Metadata = map[string]any{}
	}

	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}

	if err := sink.Record(ctx, event); err != nil {
		m.logger.Warn("activity sink record error: %v", err)
	}
}

func (m *SessionManager) actorFromIdentity(identity Identity) ActorRef {
	if identity == nil {
		return ActorRef{Type: "unknown"}
	}

	return ActorRef{
		ID:   identity.ID(),
		Type: "user",
	}
}
