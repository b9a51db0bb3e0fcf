package auth_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/isacitra/go-auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

// MockUsers mocks the repo methods the provider touches; the embedded
// interface satisfies the rest.
type MockUsers struct {
	auth.Users
	mock.Mock
}

func (m *MockUsers) GetByIdentifier(ctx context.Context, identifier string, criteria ...repository.SelectCriteria) (*auth.User, error) {
	args := m.Called(ctx, identifier)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*auth.User), args.Error(1)
}

func (m *MockUsers) TrackAttemptedLogin(ctx context.Context, user *auth.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUsers) TrackSuccessfulLogin(ctx context.Context, user *auth.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUsers) RegisterTx(ctx context.Context, tx bun.IDB, user *auth.User) (*auth.User, error) {
	args := m.Called(ctx, user)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*auth.User), args.Error(1)
}

func (m *MockUsers) ChangePassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	args := m.Called(ctx, id, passwordHash)
	return args.Error(0)
}

// mockRepoManager wires the mock users into the RepositoryManager surface.
type mockRepoManager struct {
	users *MockUsers
}

func (m mockRepoManager) Users() auth.Users { return m.users }
func (m mockRepoManager) Validate() error   { return nil }
func (m mockRepoManager) MustValidate()     {}
func (m mockRepoManager) RunInTx(ctx context.Context, _ *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	return f(ctx, bun.Tx{})
}

func activeUser(t *testing.T, password string) *auth.User {
	t.Helper()

	hash, err := auth.HashPassword(password)
	require.NoError(t, err)

	return &auth.User{
		ID:           uuid.New(),
		Username:     "tester",
		Email:        "tester@example.com",
		PasswordHash: hash,
		Status:       auth.UserStatusActive,
	}
}

func TestUserProvider_VerifyIdentity(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		user := activeUser(t, "super-secret")

		users := &MockUsers{}
		users.On("GetByIdentifier", mock.Anything, "tester@example.com").Return(user, nil)
		users.On("TrackSuccessfulLogin", mock.Anything, user).Return(nil)

		provider := auth.NewUserProvider(mockRepoManager{users: users})

		identity, err := provider.VerifyIdentity(context.Background(), "tester@example.com", "super-secret")
		require.NoError(t, err)
		assert.Equal(t, user.ID.String(), identity.ID())
		assert.Equal(t, "tester", identity.Username())
		assert.Equal(t, "tester@example.com", identity.Email())

		users.AssertExpectations(t)
	})

	t.Run("unknown identifier", func(t *testing.T) {
		users := &MockUsers{}
		users.On("GetByIdentifier", mock.Anything, "nobody@example.com").
			Return(nil, repository.NewRecordNotFound())

		provider := auth.NewUserProvider(mockRepoManager{users: users})

		_, err := provider.VerifyIdentity(context.Background(), "nobody@example.com", "whatever")
		assert.Equal(t, auth.ErrIdentityNotFound, err)
	})

	t.Run("wrong password tracks the attempt", func(t *testing.T) {
		user := activeUser(t, "super-secret")

		users := &MockUsers{}
		users.On("GetByIdentifier", mock.Anything, "tester@example.com").Return(user, nil)
		users.On("TrackAttemptedLogin", mock.Anything, user).Return(nil)

		provider := auth.NewUserProvider(mockRepoManager{users: users})

		_, err := provider.VerifyIdentity(context.Background(), "tester@example.com", "wrong")
		assert.Equal(t, auth.ErrMismatchedHashAndPassword, err)

		users.AssertExpectations(t)
	})

	t.Run("too many recent attempts", func(t *testing.T) {
		user := activeUser(t, "super-secret")
		now := time.Now()
		user.LoginAttempts = auth.MaxLoginAttempts + 1
		user.LoginAttemptAt = &now

		users := &MockUsers{}
		users.On("GetByIdentifier", mock.Anything, "tester@example.com").Return(user, nil)

		provider := auth.NewUserProvider(mockRepoManager{users: users})

		_, err := provider.VerifyIdentity(context.Background(), "tester@example.com", "super-secret")
		assert.Equal(t, auth.ErrTooManyLoginAttempts, err)
	})

	t.Run("attempts reset after the cooldown window", func(t *testing.T) {
		user := activeUser(t, "super-secret")
		old := time.Now().Add(-48 * time.Hour)
		user.LoginAttempts = auth.MaxLoginAttempts + 1
		user.LoginAttemptAt = &old

		users := &MockUsers{}
		users.On("GetByIdentifier", mock.Anything, "tester@example.com").Return(user, nil)
		users.On("TrackSuccessfulLogin", mock.Anything, user).Return(nil)

		provider := auth.NewUserProvider(mockRepoManager{users: users})

		_, err := provider.VerifyIdentity(context.Background(), "tester@example.com", "super-secret")
		assert.NoError(t, err)
	})

	t.Run("suspended account", func(t *testing.T) {
		user := activeUser(t, "super-secret")
		user.Status = auth.UserStatusSuspended

		users := &MockUsers{}
		users.On("GetByIdentifier", mock.Anything, "tester@example.com").Return(user, nil)

		provider := auth.NewUserProvider(mockRepoManager{users: users})

		_, err := provider.VerifyIdentity(context.Background(), "tester@example.com", "super-secret")
		require.Error(t, err)
		assert.NotEqual(t, auth.ErrMismatchedHashAndPassword, err)
	})
}

func TestUserProvider_CreateFromRegistration(t *testing.T) {
	users := &MockUsers{}
	users.On("RegisterTx", mock.Anything, mock.MatchedBy(func(u *auth.User) bool {
		if u.Email != "tester@example.com" || u.Username != "tester" {
			return false
		}
		if !u.EmailValidated {
			return false
		}
		// the raw password must never be stored
		return u.PasswordHash != "" && u.PasswordHash != "super-secret-pwd"
	})).Return(&auth.User{
		ID:       uuid.New(),
		Username: "tester",
		Email:    "tester@example.com",
		Status:   auth.UserStatusActive,
	}, nil)

	provider := auth.NewUserProvider(mockRepoManager{users: users})

	identity, err := provider.CreateFromRegistration(context.Background(), &auth.PendingRegistration{
		Username: "tester",
		Email:    "tester@example.com",
		Password: "super-secret-pwd",
	})
	require.NoError(t, err)
	assert.Equal(t, "tester", identity.Username())

	users.AssertExpectations(t)
}

func TestUserProvider_CreateFromRegistration_Nil(t *testing.T) {
	provider := auth.NewUserProvider(mockRepoManager{users: &MockUsers{}})

	_, err := provider.CreateFromRegistration(context.Background(), nil)
	assert.Error(t, err)
}

func TestUserProvider_UpdatePassword(t *testing.T) {
	user := activeUser(t, "old-password")

	users := &MockUsers{}
	users.On("GetByIdentifier", mock.Anything, "tester@example.com").Return(user, nil)
	users.On("ChangePassword", mock.Anything, user.ID, mock.MatchedBy(func(hash string) bool {
		return auth.ComparePasswordAndHash("new-password", hash) == nil
	})).Return(nil)

	provider := auth.NewUserProvider(mockRepoManager{users: users})

	err := provider.UpdatePassword(context.Background(), "tester@example.com", "new-password")
	require.NoError(t, err)

	users.AssertExpectations(t)
}

func TestUserProvider_UpdatePassword_EmptyPassword(t *testing.T) {
	provider := auth.NewUserProvider(mockRepoManager{users: &MockUsers{}})

	err := provider.UpdatePassword(context.Background(), "tester@example.com", "")
	assert.Error(t, err)
}
