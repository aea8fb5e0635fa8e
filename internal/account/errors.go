package account

import "errors"

var (
	ErrNotFound          = errors.New("account: not found")
	ErrDuplicateIdentity = errors.New("account: username already exists")
	ErrInvalidFormat     = errors.New("account: invalid credential format")
	ErrBadCredential     = errors.New("account: bad credential")
	ErrSuspended         = errors.New("account: suspended")
	ErrUnauthorized      = errors.New("account: unauthorized")
	ErrRateLimited       = errors.New("account: rate limited")
	ErrStorage           = errors.New("account: storage failure")
	ErrSameIdentity      = errors.New("account: new username equals current username")
)

// InvalidCredentialsMessage is the only message login failures expose, so a
// caller cannot tell an unknown username from a wrong password.
const InvalidCredentialsMessage = "Invalid username or password"

// FormatError reports why an identity or secret was rejected.
type FormatError struct {
	Reason string
}

func (e *FormatError) Error() string { return e.Reason }

func (e *FormatError) Is(target error) bool { return target == ErrInvalidFormat }

// CredentialError wraps the internal reason a login failed behind the generic
// InvalidCredentialsMessage.
type CredentialError struct {
	cause error
}

// NewCredentialError hides cause behind the generic login failure message.
func NewCredentialError(cause error) *CredentialError {
	return &CredentialError{cause: cause}
}

func (e *CredentialError) Error() string { return InvalidCredentialsMessage }

func (e *CredentialError) Unwrap() error { return e.cause }
