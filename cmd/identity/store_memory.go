package identity

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"
)

// MemoryAccounts is an in-process Accounts implementation used for dev mode and tests.
// It enforces the same uniqueness contract as the Postgres store.
type MemoryAccounts struct {
	mu       sync.RWMutex
	byID     map[string]Account
	byEmail  map[string]string
	profiles map[string]PhotographerProfile
}

var _ Accounts = (*MemoryAccounts)(nil)

// MemorySnapshot is an opaque copy of a MemoryAccounts state.
type MemorySnapshot struct {
	byID     map[string]Account
	byEmail  map[string]string
	profiles map[string]PhotographerProfile
}

// NewMemoryAccounts returns an empty store.
func NewMemoryAccounts() *MemoryAccounts {
	return &MemoryAccounts{
		byID:     make(map[string]Account),
		byEmail:  make(map[string]string),
		profiles: make(map[string]PhotographerProfile),
	}
}

// Snapshot copies the current state.
func (m *MemoryAccounts) Snapshot() MemorySnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := MemorySnapshot{
		byID:     make(map[string]Account, len(m.byID)),
		byEmail:  make(map[string]string, len(m.byEmail)),
		profiles: make(map[string]PhotographerProfile, len(m.profiles)),
	}
	for k, v := range m.byID {
		s.byID[k] = v
	}
	for k, v := range m.byEmail {
		s.byEmail[k] = v
	}
	for k, v := range m.profiles {
		s.profiles[k] = v
	}
	return s
}

// Restore replaces the current state with s.
func (m *MemoryAccounts) Restore(s MemorySnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.byID = s.byID
	m.byEmail = s.byEmail
	m.profiles = s.profiles
}

// SetActive flips an account's active flag. Admin tooling and tests only.
func (m *MemoryAccounts) SetActive(id string, active bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.byID[id]
	if !ok {
		return false
	}
	a.IsActive = active
	m.byID[id] = a
	return true
}

func (m *MemoryAccounts) FindByEmail(ctx context.Context, email string) (Account, error) {
	const op = "identity.FindByEmail"

	if err := ctx.Err(); err != nil {
		return Account{}, err
	}
	email = NormalizeEmail(email)
	if email == "" {
		return Account{}, pgInvalid(op, "email is required")
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byEmail[email]
	if !ok {
		return Account{}, NotFoundError{Op: op, Resource: "account"}
	}
	return m.byID[id], nil
}

func (m *MemoryAccounts) FindByID(ctx context.Context, id string) (Account, error) {
	const op = "identity.FindByID"

	if err := ctx.Err(); err != nil {
		return Account{}, err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return Account{}, pgInvalid(op, "id is required")
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.byID[id]
	if !ok {
		return Account{}, NotFoundError{Op: op, Resource: "account"}
	}
	return a, nil
}

func (m *MemoryAccounts) Insert(ctx context.Context, in NewAccountInput) (Account, error) {
	const op = "identity.Insert"

	if err := ctx.Err(); err != nil {
		return Account{}, err
	}
	a, err := newAccount(op, in)
	if err != nil {
		return Account{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, taken := m.byEmail[a.Email]; taken {
		return Account{}, ConflictError{Op: op, Field: "email"}
	}
	m.byID[a.ID] = a
	m.byEmail[a.Email] = a.ID
	return a, nil
}

func (m *MemoryAccounts) InsertProfile(ctx context.Context, accountID string, in ProfileInput, now time.Time) (PhotographerProfile, error) {
	const op = "identity.InsertProfile"

	if err := ctx.Err(); err != nil {
		return PhotographerProfile{}, err
	}
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return PhotographerProfile{}, pgInvalid(op, "account id is required")
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byID[accountID]; !ok {
		return PhotographerProfile{}, NotFoundError{Op: op, Resource: "account"}
	}
	if _, exists := m.profiles[accountID]; exists {
		return PhotographerProfile{}, ConflictError{Op: op, Field: "profile"}
	}
	p := in.build(accountID, now)
	m.profiles[accountID] = p
	return p, nil
}

func (m *MemoryAccounts) FetchProfile(ctx context.Context, accountID string) (*PhotographerProfile, error) {
	const op = "identity.FetchProfile"

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return nil, pgInvalid(op, "account id is required")
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.profiles[accountID]
	if !ok {
		return nil, nil
	}
	if p.SocialLinks != nil {
		p.SocialLinks = append(json.RawMessage(nil), p.SocialLinks...)
	}
	return &p, nil
}
