package password

import (
	"errors"
	"fmt"
)

// Policy and hash errors. Validate returns them wrapped in a *PolicyError.
var (
	ErrPasswordTooShort = errors.New("password: too short")
	ErrPasswordTooLong  = errors.New("password: too long")
	ErrWeakPassword     = errors.New("password: too easy to guess")
	ErrInvalidHash      = errors.New("password: malformed stored hash")
)

// PolicyError is a rejected password. Error returns a message safe to show
// the caller; errors.Is matches the Rule sentinel.
type PolicyError struct {
	Rule  error
	Limit int
}

func (e *PolicyError) Error() string {
	switch e.Rule {
	case ErrPasswordTooShort:
		if e.Limit == 1 {
			return "password is required"
		}
		return fmt.Sprintf("password must be at least %d characters", e.Limit)
	case ErrPasswordTooLong:
		return fmt.Sprintf("password must be at most %d characters", e.Limit)
	case ErrWeakPassword:
		return "password is too easy to guess"
	default:
		return "password rejected"
	}
}

func (e *PolicyError) Unwrap() error { return e.Rule }
