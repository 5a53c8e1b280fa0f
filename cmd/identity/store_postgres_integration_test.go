package identity

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"authd/cmd/internal/pgtest"
)

// Integration tests are opt-in and require AUTH_DATABASE_URL.

func TestPostgresAccounts_Insert_ConflictEmail_CaseInsensitive(t *testing.T) {
	t.Parallel()

	s := mustNewPostgresAccounts(t)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if _, err := s.Insert(ctx, NewAccountInput{
		Email:        "Navid@Example.com",
		PasswordHash: "$argon2id$stub",
		DisplayName:  "Navid",
		Now:          time.Now().UTC(),
	}); err != nil {
		t.Fatalf("insert 1: %v", err)
	}

	_, err := s.Insert(ctx, NewAccountInput{
		Email:        "  navid@EXAMPLE.com ",
		PasswordHash: "$argon2id$stub",
		DisplayName:  "Other",
		Now:          time.Now().UTC(),
	})
	if err == nil {
		t.Fatalf("expected conflict, got nil")
	}
	if !IsConflict(err) {
		t.Fatalf("expected conflict error, got: %v", err)
	}
}

func TestPostgresAccounts_FindByEmail_And_ID(t *testing.T) {
	t.Parallel()

	s := mustNewPostgresAccounts(t)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	now := time.Now().UTC().Truncate(time.Microsecond)
	created, err := s.Insert(ctx, NewAccountInput{
		Email:        "Finder@Example.com",
		PasswordHash: "$argon2id$stub",
		DisplayName:  " Finder ",
		Role:         RoleAdmin,
		Now:          now,
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	byEmail, err := s.FindByEmail(ctx, "FINDER@example.com")
	if err != nil {
		t.Fatalf("find by email: %v", err)
	}
	if byEmail.ID != created.ID || byEmail.Email != "finder@example.com" {
		t.Fatalf("unexpected account: %+v", byEmail)
	}
	if byEmail.Role != RoleAdmin || !byEmail.IsActive || byEmail.DisplayName != "Finder" {
		t.Fatalf("unexpected fields: %+v", byEmail)
	}

	byID, err := s.FindByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("find by id: %v", err)
	}
	if !byID.CreatedAt.Equal(now) {
		t.Fatalf("created_at=%v want=%v", byID.CreatedAt, now)
	}

	if _, err := s.FindByEmail(ctx, "missing@example.com"); !IsNotFound(err) {
		t.Fatalf("expected not found, got: %v", err)
	}
}

func TestPostgresAccounts_Profile_RoundTrip(t *testing.T) {
	t.Parallel()

	s := mustNewPostgresAccounts(t)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	a, err := s.Insert(ctx, NewAccountInput{
		Email:        "photo@example.com",
		PasswordHash: "$argon2id$stub",
		DisplayName:  "Photo",
		Role:         RolePhotographer,
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	p, err := s.FetchProfile(ctx, a.ID)
	if err != nil || p != nil {
		t.Fatalf("expected no profile, got %+v err=%v", p, err)
	}

	bio := "Weddings"
	accepted := true
	_, err = s.InsertProfile(ctx, a.ID, ProfileInput{
		Biography:     &bio,
		SocialLinks:   json.RawMessage(`{"instagram":"@photo"}`),
		AcceptedTerms: &accepted,
	}, time.Now().UTC())
	if err != nil {
		t.Fatalf("insert profile: %v", err)
	}

	p, err = s.FetchProfile(ctx, a.ID)
	if err != nil {
		t.Fatalf("fetch profile: %v", err)
	}
	if p == nil || p.Biography == nil || *p.Biography != bio || !p.AcceptedTerms {
		t.Fatalf("unexpected profile: %+v", p)
	}
	if p.PhoneNumber != nil || p.CPF != nil {
		t.Fatalf("unset fields must be NULL: %+v", p)
	}

	var links map[string]string
	if err := json.Unmarshal(p.SocialLinks, &links); err != nil || links["instagram"] != "@photo" {
		t.Fatalf("social links=%s err=%v", p.SocialLinks, err)
	}

	_, err = s.InsertProfile(ctx, a.ID, ProfileInput{}, time.Now().UTC())
	if !IsConflict(err) {
		t.Fatalf("expected conflict on second profile, got: %v", err)
	}

	_, err = s.InsertProfile(ctx, "01ARZ3NDEKTSV4RRFFQ69G5FAV", ProfileInput{}, time.Now().UTC())
	if !IsNotFound(err) {
		t.Fatalf("expected not found for unknown account, got: %v", err)
	}
}

func TestPostgresAccounts_WithQuerier_RollsBackWithTx(t *testing.T) {
	t.Parallel()

	pool := pgtest.OpenPool(t)
	schema := pgtest.NewSchema(t, pool)
	s := mustAccountsOn(t, pool, schema)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	tx, err := pool.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if _, err := s.WithQuerier(tx).Insert(ctx, NewAccountInput{
		Email:        "rollback@example.com",
		PasswordHash: "$argon2id$stub",
		DisplayName:  "Rollback",
	}); err != nil {
		t.Fatalf("insert in tx: %v", err)
	}
	if err := tx.Rollback(ctx); err != nil {
		t.Fatalf("rollback: %v", err)
	}

	if _, err := s.FindByEmail(ctx, "rollback@example.com"); !IsNotFound(err) {
		t.Fatalf("expected rolled back insert to be gone, got: %v", err)
	}
}

func mustNewPostgresAccounts(t *testing.T) *PostgresAccounts {
	t.Helper()

	pool := pgtest.OpenPool(t)
	return mustAccountsOn(t, pool, pgtest.NewSchema(t, pool))
}

func mustAccountsOn(t *testing.T, pool *pgxpool.Pool, schema string) *PostgresAccounts {
	t.Helper()

	s, err := NewPostgresAccounts(pool, WithSchema(schema))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return s
}
