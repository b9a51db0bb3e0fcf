package auth_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/isacitra/go-auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIdentityFromUser(t *testing.T) {
	user := &auth.User{
		ID:       uuid.New(),
		Username: "tester",
		Email:    "tester@example.com",
		Status:   auth.UserStatusActive,
	}

	identity := auth.NewIdentityFromUser(user)
	require.NotNil(t, identity)

	assert.Equal(t, user.ID.String(), identity.ID())
	assert.Equal(t, "tester", identity.Username())
	assert.Equal(t, "tester@example.com", identity.Email())

	ui, ok := identity.(auth.UserIdentity)
	require.True(t, ok)
	assert.Equal(t, auth.UserStatusActive, ui.Status())
}

func TestNewIdentityFromUser_Nil(t *testing.T) {
	assert.Nil(t, auth.NewIdentityFromUser(nil))
}
