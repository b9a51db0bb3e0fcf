package auth_test

import (
	"context"
	"sync"
	"time"

	"github.com/isacitra/go-auth"
	"github.com/stretchr/testify/mock"
)

// MockIdentityStore implements auth.IdentityStore
type MockIdentityStore struct {
	mock.Mock
}

func (m *MockIdentityStore) VerifyIdentity(ctx context.Context, identifier, password string) (auth.Identity, error) {
	args := m.Called(ctx, identifier, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(auth.Identity), args.Error(1)
}

func (m *MockIdentityStore) FindIdentityByIdentifier(ctx context.Context, identifier string) (auth.Identity, error) {
	args := m.Called(ctx, identifier)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(auth.Identity), args.Error(1)
}

func (m *MockIdentityStore) CreateFromRegistration(ctx context.Context, pending *auth.PendingRegistration) (auth.Identity, error) {
	args := m.Called(ctx, pending)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(auth.Identity), args.Error(1)
}

func (m *MockIdentityStore) UpdatePassword(ctx context.Context, identifier, password string) error {
	args := m.Called(ctx, identifier, password)
	return args.Error(0)
}

// testIdentity is a plain Identity value used where mock setup is overkill.
type testIdentity struct {
	id       string
	username string
	email    string
}

func (t testIdentity) ID() string       { return t.id }
func (t testIdentity) Username() string { return t.username }
func (t testIdentity) Email() string    { return t.email }

// testConfig satisfies auth.Config with short-but-valid windows.
type testConfig struct {
	signingKey string
}

func (c testConfig) GetSigningKey() string {
	if c.signingKey != "" {
		return c.signingKey
	}
	return "test-signing-key"
}
func (c testConfig) GetTokenExpiration() int            { return 1 }
func (c testConfig) GetIssuer() string                  { return "test-issuer" }
func (c testConfig) GetAudience() []string              { return []string{"test-audience"} }
func (c testConfig) GetRegistrationTTL() time.Duration  { return 30 * time.Minute }
func (c testConfig) GetVerificationTTL() time.Duration  { return 15 * time.Minute }
func (c testConfig) GetActivationBaseURL() string       { return "http://localhost/auth/register/activate" }

// recordingDispatcher captures dispatched verification emails.
type recordingDispatcher struct {
	mu     sync.Mutex
	emails []auth.VerificationEmail
}

func (d *recordingDispatcher) Dispatch(msg auth.VerificationEmail) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.emails = append(d.emails, msg)
}

func (d *recordingDispatcher) sent() []auth.VerificationEmail {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]auth.VerificationEmail, len(d.emails))
	copy(out, d.emails)
	return out
}

func (d *recordingDispatcher) last() (auth.VerificationEmail, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.emails) == 0 {
		return auth.VerificationEmail{}, false
	}
	return d.emails[len(d.emails)-1], true
}
