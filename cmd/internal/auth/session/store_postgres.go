package session

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"authd/cmd/identity"
)

// PostgresStore implements Store over a pgx pool.
//
// The pool is owned by the caller; this store must NOT close it.
type PostgresStore struct {
	pool     *pgxpool.Pool
	schema   string
	accounts *identity.PostgresAccounts
}

var _ Store = (*PostgresStore)(nil)

// PostgresOption configures the store.
type PostgresOption func(*PostgresStore) error

// WithSchema sets the Postgres schema (default "auth").
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if !identity.PgIdentIsValid(schema) {
			return fmt.Errorf("session: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("session: nil pool")
	}

	st := &PostgresStore{pool: pool, schema: "auth"}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}

	accounts, err := identity.NewPostgresAccounts(pool, identity.WithSchema(st.schema))
	if err != nil {
		return nil, err
	}
	st.accounts = accounts
	return st, nil
}

// WithinTx runs fn inside a single pgx transaction.
func (s *PostgresStore) WithinTx(ctx context.Context, fn func(Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&pgTx{tx: tx, schema: s.schema, accounts: s.accounts.WithQuerier(tx)}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Ping checks pool connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

type pgTx struct {
	tx       pgx.Tx
	schema   string
	accounts *identity.PostgresAccounts
}

func (t *pgTx) Accounts() identity.Accounts { return t.accounts }
func (t *pgTx) Refresh() RefreshStore       { return t }

func (t *pgTx) table() string {
	return pgx.Identifier{t.schema, "refresh_tokens"}.Sanitize()
}

func (t *pgTx) InsertRefresh(ctx context.Context, in NewRefresh) (RefreshRow, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return RefreshRow{}, err
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	var ip *string
	if in.Meta.IP != nil {
		s := in.Meta.IP.String()
		ip = &s
	}

	_, err = t.tx.Exec(ctx, `
		INSERT INTO `+t.table()+` (
			id, account_id, token_hash, expires_at, revoked_at, user_agent, ip_address, created_at
		) VALUES (
			$1, $2, $3, $4, NULL, $5, $6::inet, $7
		)
	`, id, in.AccountID, in.TokenHash, in.ExpiresAt, nullIfEmpty(in.Meta.UserAgent), ip, now)
	if err != nil {
		return RefreshRow{}, err
	}

	return RefreshRow{
		ID:        id.String(),
		AccountID: in.AccountID,
		TokenHash: in.TokenHash,
		ExpiresAt: in.ExpiresAt,
		UserAgent: in.Meta.UserAgent,
		IP:        in.Meta.IP,
		CreatedAt: now,
	}, nil
}

func (t *pgTx) LockRefreshByHash(ctx context.Context, tokenHash string) (RefreshRow, error) {
	var (
		row    RefreshRow
		id     uuid.UUID
		ua     *string
		ipText *string
	)

	err := t.tx.QueryRow(ctx, `
		SELECT id, account_id, token_hash, expires_at, revoked_at, user_agent, host(ip_address), created_at
		FROM `+t.table()+`
		WHERE token_hash = $1
		FOR UPDATE
	`, tokenHash).Scan(
		&id,
		&row.AccountID,
		&row.TokenHash,
		&row.ExpiresAt,
		&row.RevokedAt,
		&ua,
		&ipText,
		&row.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return RefreshRow{}, ErrRefreshNotFound
	}
	if err != nil {
		return RefreshRow{}, err
	}

	row.ID = id.String()
	if ua != nil {
		row.UserAgent = *ua
	}
	if ipText != nil {
		row.IP = net.ParseIP(*ipText)
	}
	return row, nil
}

func (t *pgTx) MarkRevoked(ctx context.Context, id string, now time.Time) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE `+t.table()+`
		SET revoked_at = $2
		WHERE id = $1
	`, id, now)
	return err
}

func (t *pgTx) MarkRevokedByHash(ctx context.Context, tokenHash string, now time.Time) (bool, error) {
	tag, err := t.tx.Exec(ctx, `
		UPDATE `+t.table()+`
		SET revoked_at = $2
		WHERE token_hash = $1 AND revoked_at IS NULL
	`, tokenHash, now)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
