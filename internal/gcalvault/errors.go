package gcalvault

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration indicates missing or invalid settings.
	ErrConfiguration = errors.New("configuration error")

	// ErrAuthenticationFailed indicates that no usable credential could be obtained.
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrIdentityMismatch indicates that the authorized account is not the expected one.
	ErrIdentityMismatch = errors.New("identity mismatch")

	// ErrResourceNotFound indicates that a selected calendar does not exist remotely.
	ErrResourceNotFound = errors.New("calendar not found")

	// ErrTransientIO indicates a network or filesystem failure during the pass.
	ErrTransientIO = errors.New("i/o failure")

	// ErrVault indicates that the vault repository could not be initialized or committed.
	ErrVault = errors.New("vault error")
)

// IdentityMismatchError carries both identities of a failed verification.
type IdentityMismatchError struct {
	Expected string
	Actual   string
}

func (e *IdentityMismatchError) Error() string {
	return fmt.Sprintf("authenticated as %q but expected %q", e.Actual, e.Expected)
}

func (e *IdentityMismatchError) Is(target error) bool {
	return target == ErrIdentityMismatch
}

// WrapError attaches a sentinel to err so callers can match it with errors.Is.
func WrapError(sentinel error, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", sentinel, err)
}

// WrapErrorf attaches a sentinel to a formatted message.
func WrapErrorf(sentinel error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", sentinel, fmt.Sprintf(format, args...))
}
