package auth

import "errors"

// Business failures. Unknown users and wrong passwords share
// ErrAuthenticationFailed so callers cannot tell them apart.
var (
	ErrUsernameTaken        = errors.New("auth: username already signed up")
	ErrAuthenticationFailed = errors.New("auth: authentication failed")
)

// ErrPersistence wraps a failed state write. The in-memory tables are
// rolled back before it is returned.
var ErrPersistence = errors.New("auth: persisting state failed")
