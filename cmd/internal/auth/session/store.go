package session

import (
	"context"
	"net"
	"time"

	"authd/cmd/identity"
)

// ClientMeta describes the client that requested a session. Advisory only.
type ClientMeta struct {
	UserAgent string
	IP        net.IP
}

const maxUserAgentLen = 512

func (m ClientMeta) normalized() ClientMeta {
	if len(m.UserAgent) > maxUserAgentLen {
		m.UserAgent = m.UserAgent[:maxUserAgentLen]
	}
	return m
}

// RefreshRow mirrors the auth.refresh_tokens row.
type RefreshRow struct {
	ID        string
	AccountID string
	TokenHash string
	ExpiresAt time.Time
	RevokedAt *time.Time
	UserAgent string
	IP        net.IP
	CreatedAt time.Time
}

// NewRefresh describes a refresh row insert. Only the digest of the secret is stored.
type NewRefresh struct {
	AccountID string
	TokenHash string
	ExpiresAt time.Time
	Meta      ClientMeta
	Now       time.Time
}

// RefreshStore persists refresh-token rows.
type RefreshStore interface {
	// InsertRefresh creates a new row with a fresh UUID.
	InsertRefresh(ctx context.Context, in NewRefresh) (RefreshRow, error)

	// LockRefreshByHash loads a row by digest and locks it until the transaction ends.
	// Returns ErrRefreshNotFound when no row matches.
	LockRefreshByHash(ctx context.Context, tokenHash string) (RefreshRow, error)

	// MarkRevoked sets revoked_at on a row by id.
	MarkRevoked(ctx context.Context, id string, now time.Time) error

	// MarkRevokedByHash sets revoked_at on a not-yet-revoked row by digest.
	// It reports whether a row changed; unknown or already revoked digests are not errors.
	MarkRevokedByHash(ctx context.Context, tokenHash string, now time.Time) (bool, error)
}

// Tx is the unit of work handed to WithinTx callbacks.
type Tx interface {
	Accounts() identity.Accounts
	Refresh() RefreshStore
}

// Store is the transaction boundary over account and refresh persistence.
//
// WithinTx begins a transaction, runs fn, and commits when fn returns nil.
// Any error (or panic) from fn rolls the transaction back and is returned as is.
type Store interface {
	WithinTx(ctx context.Context, fn func(Tx) error) error
	Ping(ctx context.Context) error
}
