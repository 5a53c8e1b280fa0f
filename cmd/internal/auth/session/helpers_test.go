package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"authd/cmd/internal/auth/audit"
	"authd/cmd/security/password"
)

const testSigningSecret = "test-signing-secret-0123456789abcdef"

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.SigningSecret = testSigningSecret
	return cfg
}

// fastHasher keeps Argon2id cheap enough for unit tests.
func fastHasher() password.Config {
	return password.Config{
		Params: password.Argon2idParams{
			MemoryKiB:   1024,
			Iterations:  1,
			Parallelism: 1,
			SaltLength:  16,
			KeyLength:   32,
		},
		Policy: password.Policy{MinLength: 1, MaxLength: 256},
	}
}

func newTestService(t *testing.T, opts ...Option) (*Service, *MemoryStore) {
	t.Helper()
	return newTestServiceWithConfig(t, testConfig(), opts...)
}

func newTestServiceWithConfig(t *testing.T, cfg Config, opts ...Option) (*Service, *MemoryStore) {
	t.Helper()

	store := NewMemoryStore()
	tokens, err := NewAccessTokenManager(cfg)
	require.NoError(t, err)

	svc, err := NewService(cfg, store, tokens, fastHasher(), opts...)
	require.NoError(t, err)
	return svc, store
}

func mustRegister(t *testing.T, svc *Service, now time.Time, email, pw string) Result {
	t.Helper()

	res, err := svc.Register(context.Background(), now, RegisterInput{
		Email:       email,
		Password:    pw,
		DisplayName: "Test User",
	}, ClientMeta{UserAgent: "go-test"})
	require.NoError(t, err)
	return res
}

// testNow is second-aligned so JWT NumericDate round trips exactly.
func testNow() time.Time {
	return time.Date(2026, 4, 10, 9, 30, 0, 0, time.UTC)
}

type recordedEvents struct {
	mu     sync.Mutex
	events []audit.Event
}

func (r *recordedEvents) Record(_ context.Context, ev audit.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordedEvents) actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Action)
	}
	return out
}

type failingTokens struct{}

func (failingTokens) Issue(Subject, time.Time) (string, time.Time, error) {
	return "", time.Time{}, context.DeadlineExceeded
}

func (failingTokens) Verify(string, time.Time) (AccessClaims, error) {
	return AccessClaims{}, ErrInvalidToken
}
