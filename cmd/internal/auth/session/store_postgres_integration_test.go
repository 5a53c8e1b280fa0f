package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"authd/cmd/internal/pgtest"
	"authd/cmd/security/token"
)

// Integration tests are opt-in and require AUTH_DATABASE_URL.

func newPostgresService(t *testing.T) (*Service, *PostgresStore) {
	t.Helper()

	pool := pgtest.OpenPool(t)
	schema := pgtest.NewSchema(t, pool)

	store, err := NewPostgresStore(pool, WithSchema(schema))
	require.NoError(t, err)

	cfg := testConfig()
	tokens, err := NewAccessTokenManager(cfg)
	require.NoError(t, err)

	svc, err := NewService(cfg, store, tokens, fastHasher())
	require.NoError(t, err)
	return svc, store
}

func TestPostgres_RegisterAuthenticateRefreshRevoke(t *testing.T) {
	svc, store := newPostgresService(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	now := time.Now().UTC().Truncate(time.Second)

	reg, err := svc.Register(ctx, now, RegisterInput{
		Email: "PG@Example.com", Password: "pw", DisplayName: "PG", Role: "photographer",
		Extension: &ExtensionInput{SocialLinks: []byte(`{"site":"x"}`)},
	}, ClientMeta{UserAgent: "it", IP: []byte{127, 0, 0, 1}})
	require.NoError(t, err)
	require.NotNil(t, reg.Profile)

	_, err = svc.Register(ctx, now, RegisterInput{Email: "pg@EXAMPLE.com", Password: "pw", DisplayName: "Dup"}, ClientMeta{})
	require.Equal(t, KindConflict, KindOf(err))

	auth, err := svc.Authenticate(ctx, now, "pg@example.com", "pw", ClientMeta{})
	require.NoError(t, err)
	require.NotNil(t, auth.Profile)
	require.JSONEq(t, `{"site":"x"}`, string(auth.Profile.SocialLinks))

	rotated, err := svc.Refresh(ctx, now.Add(time.Minute), auth.RefreshToken, ClientMeta{})
	require.NoError(t, err)

	_, err = svc.Refresh(ctx, now.Add(time.Minute), auth.RefreshToken, ClientMeta{})
	require.Equal(t, ReasonRevoked, ReasonOf(err))

	require.NoError(t, svc.Revoke(ctx, now, rotated.RefreshToken))
	require.NoError(t, svc.Revoke(ctx, now, rotated.RefreshToken))

	_, err = svc.Refresh(ctx, now.Add(2*time.Minute), rotated.RefreshToken, ClientMeta{})
	require.Equal(t, KindUnauthorized, KindOf(err))

	// The stored digest is the hash, never the secret.
	err = store.WithinTx(ctx, func(tx Tx) error {
		row, err := tx.Refresh().LockRefreshByHash(ctx, token.HashSHA256Hex(reg.RefreshToken))
		if err != nil {
			return err
		}
		require.Equal(t, reg.Account.ID, row.AccountID)
		require.Equal(t, "it", row.UserAgent)
		require.Equal(t, "127.0.0.1", row.IP.String())
		require.Nil(t, row.RevokedAt)
		return nil
	})
	require.NoError(t, err)
}

func TestPostgres_ConcurrentRefresh_SingleUse(t *testing.T) {
	svc, _ := newPostgresService(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	now := time.Now().UTC().Truncate(time.Second)
	reg, err := svc.Register(ctx, now, RegisterInput{Email: "race@example.com", Password: "pw", DisplayName: "Race"}, ClientMeta{})
	require.NoError(t, err)

	const workers = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok       int
		revoked  int
		unexpect []error
	)
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := svc.Refresh(ctx, now.Add(time.Second), reg.RefreshToken, ClientMeta{})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case ReasonOf(err) == ReasonRevoked:
				revoked++
			default:
				unexpect = append(unexpect, err)
			}
		}()
	}
	close(start)
	wg.Wait()

	require.Empty(t, unexpect)
	require.Equal(t, 1, ok)
	require.Equal(t, workers-1, revoked)
}

func TestPostgres_RefreshInactiveAccount_RollsBack(t *testing.T) {
	svc, store := newPostgresService(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	now := time.Now().UTC().Truncate(time.Second)
	reg, err := svc.Register(ctx, now, RegisterInput{Email: "off@example.com", Password: "pw", DisplayName: "Off"}, ClientMeta{})
	require.NoError(t, err)

	_, err = store.pool.Exec(ctx, `UPDATE `+identityTable(store)+` SET is_active = false WHERE id = $1`, reg.Account.ID)
	require.NoError(t, err)

	_, err = svc.Refresh(ctx, now, reg.RefreshToken, ClientMeta{})
	require.Equal(t, KindForbidden, KindOf(err))

	err = store.WithinTx(ctx, func(tx Tx) error {
		row, err := tx.Refresh().LockRefreshByHash(ctx, token.HashSHA256Hex(reg.RefreshToken))
		require.NoError(t, err)
		require.Nil(t, row.RevokedAt)
		return nil
	})
	require.NoError(t, err)

	_, err = svc.Authenticate(ctx, now, "off@example.com", "pw", ClientMeta{})
	require.Equal(t, KindUnauthorized, KindOf(err))
}

func TestPostgresStore_RejectsBadSchema(t *testing.T) {
	pool := pgtest.OpenPool(t)
	_, err := NewPostgresStore(pool, WithSchema("bad;schema"))
	require.Error(t, err)
}

func identityTable(s *PostgresStore) string {
	return `"` + s.schema + `".accounts`
}
