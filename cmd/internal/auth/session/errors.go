package session

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/jackc/pgx/v5/pgconn"

	"authd/cmd/identity"
)

// Kind classifies a session failure. API layers map kinds to status codes.
type Kind uint8

const (
	KindInternal Kind = iota
	KindInvalidArgument
	KindConflict
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindInvalidArgument:
		return "invalid_argument"
	case KindConflict:
		return "conflict"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindUnavailable:
		return "unavailable"
	default:
		return "internal"
	}
}

// Sentinel kinds, matched by (*Error).Is.
var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrConflict        = errors.New("conflict")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrForbidden       = errors.New("forbidden")
	ErrNotFound        = errors.New("not found")
	ErrUnavailable     = errors.New("unavailable")
	ErrInternal        = errors.New("internal")
)

var (
	// ErrInvalidToken is returned when an access token fails verification or validation.
	ErrInvalidToken = errors.New("invalid token")

	// ErrProfileNotFound is returned by Profile when the account does not exist.
	ErrProfileNotFound = errors.New("profile not found")

	// ErrRefreshNotFound is returned by RefreshStore.LockRefreshByHash when no row matches.
	ErrRefreshNotFound = errors.New("refresh token not found")

	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid config")
)

// Internal reasons attached to Unauthorized refresh failures.
// They are for logs and metrics only; clients always see the same message.
const (
	ReasonNotFound           = "not_found"
	ReasonRevoked            = "revoked"
	ReasonExpired            = "expired"
	ReasonInvalidCredentials = "invalid_credentials"
	ReasonInactive           = "inactive"
)

// Client-facing messages.
const (
	msgInvalidCredentials = "invalid credentials"
	msgInvalidRefresh     = "invalid refresh token"
	msgAccountInactive    = "account is not active"
	msgEmailTaken         = "email is already registered"
)

// Error is the typed failure returned by Service operations.
// Msg is safe to show to clients; Err carries the underlying cause for logs.
type Error struct {
	Op     string
	Kind   Kind
	Reason string
	Msg    string
	Err    error
}

func (e *Error) Error() string {
	s := fmt.Sprintf("%s: %s", e.Op, e.Kind)
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Reason != "" {
		s += " (" + e.Reason + ")"
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the sentinel of the error's kind.
func (e *Error) Is(target error) bool {
	return target == e.Kind.sentinel()
}

func (k Kind) sentinel() error {
	switch k {
	case KindInvalidArgument:
		return ErrInvalidArgument
	case KindConflict:
		return ErrConflict
	case KindUnauthorized:
		return ErrUnauthorized
	case KindForbidden:
		return ErrForbidden
	case KindNotFound:
		return ErrNotFound
	case KindUnavailable:
		return ErrUnavailable
	default:
		return ErrInternal
	}
}

// KindOf returns the kind of err. Unclassified errors are KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return classify(err)
}

// ReasonOf returns the internal reason attached to err, if any.
func ReasonOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return ""
}

// MessageOf returns the client-safe message of err.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Msg != "" {
		return e.Msg
	}
	switch KindOf(err) {
	case KindUnavailable:
		return "service temporarily unavailable"
	default:
		return "internal error"
	}
}

func newError(op string, kind Kind, msg string) *Error {
	return &Error{Op: op, Kind: kind, Msg: msg}
}

func unauthorized(op, reason, msg string) *Error {
	return &Error{Op: op, Kind: KindUnauthorized, Reason: reason, Msg: msg}
}

// wrap attaches op to err, classifying store and driver failures.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}

	var e *Error
	if errors.As(err, &e) {
		return err
	}

	kind := classify(err)
	out := &Error{Op: op, Kind: kind, Err: err}
	switch kind {
	case KindConflict:
		out.Msg = "resource already exists"
		if ce := (identity.ConflictError{}); errors.As(err, &ce) && ce.Field == "email" {
			out.Msg = msgEmailTaken
		}
	case KindInvalidArgument:
		var oe identity.OpError
		if errors.As(err, &oe) && oe.Msg != "" {
			out.Msg = oe.Msg
		} else {
			out.Msg = "invalid argument"
		}
	case KindNotFound:
		out.Msg = "not found"
	}
	return out
}

func classify(err error) Kind {
	switch {
	case err == nil:
		return KindInternal
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return KindUnavailable
	case pgconn.Timeout(err):
		return KindUnavailable
	case errors.Is(err, identity.ErrConflict):
		return KindConflict
	case errors.Is(err, identity.ErrInvalidInput):
		return KindInvalidArgument
	case errors.Is(err, identity.ErrNotFound):
		return KindNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "23505": // unique_violation
			return KindConflict
		case len(pgErr.Code) == 5 && pgErr.Code[:2] == "08": // connection_exception
			return KindUnavailable
		case pgErr.Code == "57P01", pgErr.Code == "57P03": // admin_shutdown, cannot_connect_now
			return KindUnavailable
		}
		return KindInternal
	}

	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return KindUnavailable
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindUnavailable
	}
	return KindInternal
}
