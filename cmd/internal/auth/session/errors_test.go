package session

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"authd/cmd/identity"
)

func TestKindOf_ClassifiesStoreErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Kind
	}{
		{"deadline", fmt.Errorf("query: %w", context.DeadlineExceeded), KindUnavailable},
		{"canceled", context.Canceled, KindUnavailable},
		{"unique", &pgconn.PgError{Code: "23505"}, KindConflict},
		{"connection", &pgconn.PgError{Code: "08006"}, KindUnavailable},
		{"syntax", &pgconn.PgError{Code: "42601"}, KindInternal},
		{"identity conflict", identity.ConflictError{Op: "x", Field: "email"}, KindConflict},
		{"identity invalid", identity.OpError{Op: "x", Kind: identity.ErrInvalidInput}, KindInvalidArgument},
		{"plain", errors.New("boom"), KindInternal},
		{"typed", &Error{Op: "x", Kind: KindForbidden}, KindForbidden},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, KindOf(tc.err), tc.name)
	}
}

func TestWrap_KeepsTypedErrorsAndMessages(t *testing.T) {
	typed := unauthorized("op", ReasonExpired, msgInvalidRefresh)
	require.Same(t, typed, wrap("outer", typed))

	err := wrap("session.Register", identity.ConflictError{Op: "identity.Insert", Field: "email"})
	require.Equal(t, KindConflict, KindOf(err))
	require.Equal(t, msgEmailTaken, MessageOf(err))
	require.True(t, identity.IsConflict(err))

	err = wrap("op", context.DeadlineExceeded)
	require.Equal(t, "service temporarily unavailable", MessageOf(err))
	require.ErrorIs(t, err, ErrUnavailable)

	require.Equal(t, "internal error", MessageOf(errors.New("x")))
	require.NoError(t, wrap("op", nil))
}

func TestError_IsMatchesOnlyItsKind(t *testing.T) {
	err := error(&Error{Op: "op", Kind: KindUnauthorized, Reason: ReasonRevoked})

	require.ErrorIs(t, err, ErrUnauthorized)
	require.NotErrorIs(t, err, ErrForbidden)
	require.Equal(t, ReasonRevoked, ReasonOf(err))
	require.Contains(t, err.Error(), "unauthorized")
}
