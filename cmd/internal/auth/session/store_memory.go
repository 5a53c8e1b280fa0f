package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"authd/cmd/identity"
)

// MemoryStore is an in-process Store for dev mode and tests.
//
// Transactions are serialized by a single mutex, so a locked refresh row can never be
// observed by a concurrent transaction. A failed transaction restores the snapshot
// taken when it began.
type MemoryStore struct {
	mu       sync.Mutex
	accounts *identity.MemoryAccounts
	rows     map[string]RefreshRow // by id
	byHash   map[string]string     // token_hash -> id
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: identity.NewMemoryAccounts(),
		rows:     make(map[string]RefreshRow),
		byHash:   make(map[string]string),
	}
}

// Accounts exposes the underlying account store (dev tooling and tests).
func (m *MemoryStore) Accounts() *identity.MemoryAccounts { return m.accounts }

// RefreshRows returns a copy of all refresh rows for accountID, oldest first.
func (m *MemoryStore) RefreshRows(accountID string) []RefreshRow {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []RefreshRow
	for _, r := range m.rows {
		if r.AccountID == accountID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// WithinTx runs fn with exclusive access to the store.
func (m *MemoryStore) WithinTx(ctx context.Context, fn func(Tx) error) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	accSnap := m.accounts.Snapshot()
	rows := make(map[string]RefreshRow, len(m.rows))
	for k, v := range m.rows {
		rows[k] = v
	}
	byHash := make(map[string]string, len(m.byHash))
	for k, v := range m.byHash {
		byHash[k] = v
	}

	committed := false
	defer func() {
		if !committed {
			m.accounts.Restore(accSnap)
			m.rows = rows
			m.byHash = byHash
		}
	}()

	if err := fn(&memTx{m: m}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	committed = true
	return nil
}

// Ping always succeeds.
func (m *MemoryStore) Ping(ctx context.Context) error { return ctx.Err() }

type memTx struct {
	m *MemoryStore
}

func (t *memTx) Accounts() identity.Accounts { return t.m.accounts }
func (t *memTx) Refresh() RefreshStore       { return t }

func (t *memTx) InsertRefresh(ctx context.Context, in NewRefresh) (RefreshRow, error) {
	if err := ctx.Err(); err != nil {
		return RefreshRow{}, err
	}
	if _, taken := t.m.byHash[in.TokenHash]; taken {
		return RefreshRow{}, identity.ConflictError{Op: "session.InsertRefresh", Field: "refresh_token"}
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	row := RefreshRow{
		ID:        uuid.NewString(),
		AccountID: in.AccountID,
		TokenHash: in.TokenHash,
		ExpiresAt: in.ExpiresAt,
		UserAgent: in.Meta.UserAgent,
		IP:        in.Meta.IP,
		CreatedAt: now,
	}
	t.m.rows[row.ID] = row
	t.m.byHash[row.TokenHash] = row.ID
	return row, nil
}

func (t *memTx) LockRefreshByHash(ctx context.Context, tokenHash string) (RefreshRow, error) {
	if err := ctx.Err(); err != nil {
		return RefreshRow{}, err
	}
	id, ok := t.m.byHash[tokenHash]
	if !ok {
		return RefreshRow{}, ErrRefreshNotFound
	}
	return t.m.rows[id], nil
}

func (t *memTx) MarkRevoked(ctx context.Context, id string, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	row, ok := t.m.rows[id]
	if !ok {
		return nil
	}
	ts := now
	row.RevokedAt = &ts
	t.m.rows[id] = row
	return nil
}

func (t *memTx) MarkRevokedByHash(ctx context.Context, tokenHash string, now time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	id, ok := t.m.byHash[tokenHash]
	if !ok {
		return false, nil
	}
	row := t.m.rows[id]
	if row.RevokedAt != nil {
		return false, nil
	}
	ts := now
	row.RevokedAt = &ts
	t.m.rows[id] = row
	return true, nil
}
