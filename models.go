package auth

import (
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// UserStatus is the account lifecycle state
type UserStatus = string

const (
	// UserStatusActive can authenticate normally
	UserStatusActive UserStatus = "active"
	// UserStatusSuspended is temporarily blocked from authenticating
	UserStatusSuspended UserStatus = "suspended"
	// UserStatusBanned is permanently blocked from authenticating
	UserStatusBanned UserStatus = "banned"
)

// User is the user model
type User struct {
	bun.BaseModel  `bun:"table:users,alias:usr"`
	ID             uuid.UUID      `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Username       string         `bun:"username,notnull,unique" json:"username,omitempty"`
	Email          string         `bun:"email,notnull,unique" json:"email,omitempty"`
	Phone          string         `bun:"phone_number" json:"phone_number,omitempty"`
	PasswordHash   string         `bun:"password_hash" json:"password_hash,omitempty"`
	Status         UserStatus     `bun:"status,notnull,default:'active'" json:"status,omitempty"`
	EmailValidated bool           `bun:"is_email_verified" json:"is_email_verified,omitempty"`
	LoginAttempts  int            `bun:"login_attempts" json:"login_attempts,omitempty"`
	LoginAttemptAt *time.Time     `bun:"login_attempt_at" json:"login_attempt_at,omitempty"`
	LoggedInAt     *time.Time     `bun:"loggedin_at" json:"loggedin_at,omitempty"`
	Metadata       map[string]any `bun:"metadata" json:"metadata,omitempty"`
	CreatedAt      *time.Time     `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt      *time.Time     `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt      *time.Time     `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// EnsureStatus backfills the status for rows created before the column existed
func (u *User) EnsureStatus() {
	if u.Status == "" {
		u.Status = UserStatusActive
	}
}

func statusAuthError(status UserStatus) error {
	switch status {
	case UserStatusActive, "":
		return nil
	default:
		return goerrors.New("account is not available", goerrors.CategoryAuth).
			WithTextCode(TextCodeAccountNotAvailable).
			WithCode(goerrors.CodeUnauthorized).
			WithMetadata(map[string]any{"status": status})
	}
}
