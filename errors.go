package auth

import (
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

// Text codes surfaced to clients alongside structured errors.
const (
	TextCodeInvalidCreds        = "INVALID_CREDENTIALS"
	TextCodeTooManyAttempts     = "TOO_MANY_ATTEMPTS"
	TextCodeTokenExpired        = "TOKEN_EXPIRED"
	TextCodeTokenMalformed      = "TOKEN_MALFORMED"
	TextCodeSessionNotFound     = "SESSION_NOT_FOUND"
	TextCodeMissingToken        = "MISSING_TOKEN"
	TextCodeDuplicateIdentity   = "DUPLICATE_IDENTITY"
	TextCodeActivationInvalid   = "ACTIVATION_LINK_INVALID"
	TextCodeEmailNotVerified    = "EMAIL_NOT_VERIFIED"
	TextCodeConfirmMismatch     = "PASSWORD_CONFIRMATION_MISMATCH"
	TextCodeEmptyPassword       = "EMPTY_PASSWORD"
	TextCodeAccountNotAvailable = "ACCOUNT_NOT_AVAILABLE"
)

// ErrIdentityNotFound is returned when no identity matches an identifier.
var ErrIdentityNotFound = goerrors.New("identity not found", goerrors.CategoryNotFound).
	WithTextCode("IDENTITY_NOT_FOUND")

// ErrMismatchedHashAndPassword is returned when a credential check fails.
var ErrMismatchedHashAndPassword = goerrors.New("the credentials provided are invalid", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidCreds)

// ErrTooManyLoginAttempts is returned when the login bucket is empty or a
// single account is in its cooldown window.
var ErrTooManyLoginAttempts = goerrors.New("too many login attempts, try again later", goerrors.CategoryRateLimit).
	WithTextCode(TextCodeTooManyAttempts)

// ErrTooManyRegistrations is returned when the register bucket is empty.
var ErrTooManyRegistrations = goerrors.New("too many registration attempts, try again later", goerrors.CategoryRateLimit).
	WithTextCode(TextCodeTooManyAttempts)

// ErrTokenExpired is returned when a token decodes but is past its window.
var ErrTokenExpired = goerrors.New("token is expired", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired)

// ErrTokenMalformed is returned on signature mismatch or decoding failure.
var ErrTokenMalformed = goerrors.New("token is malformed", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenMalformed)

// ErrSessionExpired is returned when a token no longer has a live session
// entry: it was refreshed already, logged out, or the entry lapsed.
var ErrSessionExpired = goerrors.New("session is no longer valid", goerrors.CategoryAuth).
	WithTextCode(TextCodeSessionNotFound)

// ErrMissingToken is returned when a flow requires a bearer token and none
// was provided.
var ErrMissingToken = goerrors.New("no authorization token provided", goerrors.CategoryBadInput).
	WithTextCode(TextCodeMissingToken)

// ErrSessionAlreadyInvalid is returned by logout when the token has no
// session entry left to revoke.
var ErrSessionAlreadyInvalid = goerrors.New("token is already invalid", goerrors.CategoryBadInput).
	WithTextCode(TextCodeSessionNotFound)

// ErrDuplicateIdentity is returned when registering an email that is in use.
var ErrDuplicateIdentity = goerrors.New("this email is already in use", goerrors.CategoryConflict).
	WithTextCode(TextCodeDuplicateIdentity)

// ErrActivationInvalid covers unknown, consumed, and expired activation ids
// alike; callers cannot distinguish the three.
var ErrActivationInvalid = goerrors.New("the registration verification link is no longer valid", goerrors.CategoryAuth).
	WithTextCode(TextCodeActivationInvalid)

// ErrEmailNotVerified gates flows that require a prior verification.
var ErrEmailNotVerified = goerrors.New("email has not been verified for this action", goerrors.CategoryAuth).
	WithTextCode(TextCodeEmailNotVerified)

// ErrPasswordConfirmationMismatch is returned when a new password and its
// confirmation differ.
var ErrPasswordConfirmationMismatch = goerrors.New("password and confirmation do not match", goerrors.CategoryValidation).
	WithTextCode(TextCodeConfirmMismatch)

// ErrNoEmptyString rejects empty passwords before hashing.
var ErrNoEmptyString = goerrors.New("value should not be an empty string", goerrors.CategoryValidation).
	WithTextCode(TextCodeEmptyPassword)

// ErrAccountNotAvailable is returned for suspended or banned accounts.
var ErrAccountNotAvailable = goerrors.New("account is not available", goerrors.CategoryAuth).
	WithTextCode(TextCodeAccountNotAvailable)

// IsTokenExpiredError will check for expired tokens
func IsTokenExpiredError(err error) bool {
	if err == nil {
		return false
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr.TextCode == TextCodeTokenExpired {
		return true
	}
	return strings.Contains(err.Error(), "token is expired")
}

// IsMalformedError will check for error message
func IsMalformedError(err error) bool {
	if err == nil {
		return false
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr.TextCode == TextCodeTokenMalformed {
		return true
	}
	return strings.Contains(err.Error(), "token is malformed") ||
		strings.Contains(err.Error(), "missing or malformed JWT")
}
