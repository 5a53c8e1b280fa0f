package identity

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"authd/cmd/identity/ids"
)

// PostgresAccounts implements Accounts over PostgreSQL.
//
// Design notes:
// - The querier (pool or tx) is owned by the caller; this store never closes or commits it.
// - Schema/table identifiers are safely quoted to avoid SQL injection via identifiers.
// - Errors are mapped to identity sentinel kinds where appropriate; driver errors pass through wrapped.
type PostgresAccounts struct {
	q      Querier
	schema string
}

var _ Accounts = (*PostgresAccounts)(nil)

// PostgresOption configures the store.
type PostgresOption func(*PostgresAccounts) error

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// WithSchema sets the Postgres schema used by the account store (default "auth").
// The schema name is validated to be a legal PostgreSQL identifier.
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresAccounts) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return fmt.Errorf("identity: empty schema")
		}
		if !PgIdentIsValid(schema) {
			return fmt.Errorf("identity: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresAccounts constructs a PostgresAccounts bound to q.
func NewPostgresAccounts(q Querier, opts ...PostgresOption) (*PostgresAccounts, error) {
	st := &PostgresAccounts{
		q:      q,
		schema: "auth",
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.q == nil {
		return nil, fmt.Errorf("identity: nil querier")
	}
	return st, nil
}

// WithQuerier returns a copy of the store bound to q (typically a pgx.Tx).
func (s *PostgresAccounts) WithQuerier(q Querier) *PostgresAccounts {
	cp := *s
	cp.q = q
	return &cp
}

const accountColumns = `id, email, password_hash, display_name, role, is_active, created_at, updated_at`

func scanAccount(row pgx.Row) (Account, error) {
	var (
		a    Account
		role string
	)
	err := row.Scan(&a.ID, &a.Email, &a.PasswordHash, &a.DisplayName, &role, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return Account{}, err
	}
	a.Role = Role(role)
	return a, nil
}

// FindByEmail looks an account up by its normalized email.
func (s *PostgresAccounts) FindByEmail(ctx context.Context, email string) (Account, error) {
	const op = "identity.FindByEmail"

	email = NormalizeEmail(email)
	if email == "" {
		return Account{}, pgInvalid(op, "email is required")
	}

	a, err := scanAccount(s.q.QueryRow(ctx,
		`SELECT `+accountColumns+`
		   FROM `+pgIdent(s.schema, "accounts")+`
		  WHERE email = $1`,
		email,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, NotFoundError{Op: op, Resource: "account"}
		}
		return Account{}, fmt.Errorf("%s: %w", op, err)
	}
	return a, nil
}

// FindByID looks an account up by id.
func (s *PostgresAccounts) FindByID(ctx context.Context, id string) (Account, error) {
	const op = "identity.FindByID"

	id = strings.TrimSpace(id)
	if id == "" {
		return Account{}, pgInvalid(op, "id is required")
	}
	if !ids.Valid(id) {
		return Account{}, NotFoundError{Op: op, Resource: "account"}
	}

	a, err := scanAccount(s.q.QueryRow(ctx,
		`SELECT `+accountColumns+`
		   FROM `+pgIdent(s.schema, "accounts")+`
		  WHERE id = $1`,
		id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, NotFoundError{Op: op, Resource: "account"}
		}
		return Account{}, fmt.Errorf("%s: %w", op, err)
	}
	return a, nil
}

// Insert creates an active account.
func (s *PostgresAccounts) Insert(ctx context.Context, in NewAccountInput) (Account, error) {
	const op = "identity.Insert"

	a, err := newAccount(op, in)
	if err != nil {
		return Account{}, err
	}

	_, err = s.q.Exec(ctx,
		`INSERT INTO `+pgIdent(s.schema, "accounts")+` (
		     id, email, password_hash, display_name, role, is_active, created_at, updated_at
		   ) VALUES ($1, $2, $3, $4, $5, $6, $7, $7)`,
		a.ID, a.Email, a.PasswordHash, a.DisplayName, string(a.Role), a.IsActive, a.CreatedAt,
	)
	if err != nil {
		if field, ok := pgClassifyUniqueViolation(err); ok {
			return Account{}, ConflictError{Op: op, Field: field}
		}
		return Account{}, fmt.Errorf("%s: %w", op, err)
	}
	return a, nil
}

// InsertProfile stores the extension record for accountID.
func (s *PostgresAccounts) InsertProfile(ctx context.Context, accountID string, in ProfileInput, now time.Time) (PhotographerProfile, error) {
	const op = "identity.InsertProfile"

	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return PhotographerProfile{}, pgInvalid(op, "account id is required")
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	p := in.build(accountID, now)

	var social any
	if p.SocialLinks != nil {
		social = string(p.SocialLinks)
	}

	_, err := s.q.Exec(ctx,
		`INSERT INTO `+pgIdent(s.schema, "photographer_profiles")+` (
		     account_id, biography, phone_number, website_url, social_links,
		     profile_image_url, cover_image_url, cpf, accepted_terms, created_at, updated_at
		   ) VALUES ($1, $2, $3, $4, $5::jsonb, $6, $7, $8, $9, $10, $10)`,
		p.AccountID, p.Biography, p.PhoneNumber, p.WebsiteURL, social,
		p.ProfileImageURL, p.CoverImageURL, p.CPF, p.AcceptedTerms, now,
	)
	if err != nil {
		if pgIsForeignKeyViolation(err) {
			return PhotographerProfile{}, NotFoundError{Op: op, Resource: "account"}
		}
		if _, ok := pgClassifyUniqueViolation(err); ok {
			return PhotographerProfile{}, ConflictError{Op: op, Field: "profile"}
		}
		return PhotographerProfile{}, fmt.Errorf("%s: %w", op, err)
	}
	return p, nil
}

// FetchProfile loads the extension record, or (nil, nil) when absent.
func (s *PostgresAccounts) FetchProfile(ctx context.Context, accountID string) (*PhotographerProfile, error) {
	const op = "identity.FetchProfile"

	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return nil, pgInvalid(op, "account id is required")
	}

	var (
		p      PhotographerProfile
		social []byte
	)
	err := s.q.QueryRow(ctx,
		`SELECT account_id, biography, phone_number, website_url, social_links::text,
		        profile_image_url, cover_image_url, cpf, accepted_terms, created_at, updated_at
		   FROM `+pgIdent(s.schema, "photographer_profiles")+`
		  WHERE account_id = $1`,
		accountID,
	).Scan(
		&p.AccountID, &p.Biography, &p.PhoneNumber, &p.WebsiteURL, &social,
		&p.ProfileImageURL, &p.CoverImageURL, &p.CPF, &p.AcceptedTerms, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if len(social) > 0 {
		p.SocialLinks = social
	}
	return &p, nil
}

// newAccount validates an insert and assigns id + timestamps.
func newAccount(op string, in NewAccountInput) (Account, error) {
	email := NormalizeEmail(in.Email)
	if email == "" {
		return Account{}, pgInvalid(op, "email is required")
	}
	if strings.TrimSpace(in.PasswordHash) == "" {
		return Account{}, pgInvalid(op, "password hash is required")
	}
	displayName := strings.TrimSpace(in.DisplayName)
	if displayName == "" {
		return Account{}, pgInvalid(op, "display name is required")
	}
	role := in.Role
	if strings.TrimSpace(string(role)) == "" {
		role = RoleUser
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	id, err := ids.NewAccountID(now)
	if err != nil {
		return Account{}, fmt.Errorf("%s: %w", op, err)
	}

	return Account{
		ID:           id,
		Email:        email,
		PasswordHash: in.PasswordHash,
		DisplayName:  displayName,
		Role:         role,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// ---- helpers ----

// trimPtr trims a string pointer, returning nil if result is empty.
func trimPtr(p *string) *string {
	if p == nil {
		return nil
	}
	s := strings.TrimSpace(*p)
	if s == "" {
		return nil
	}
	return &s
}

// pgInvalid standardizes invalid input errors.
func pgInvalid(op, msg string) error {
	return OpError{Op: op, Kind: ErrInvalidInput, Msg: msg}
}

// PgIdentIsValid checks if a string is a safe Postgres identifier.
func PgIdentIsValid(s string) bool {
	return pgIdentRe.MatchString(s)
}

// pgIdent safely quotes a schema-qualified identifier: "schema"."name".
func pgIdent(schema, name string) string {
	return pgx.Identifier{schema, name}.Sanitize()
}

func pgIsForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "23503" // foreign_key_violation
}

func pgClassifyUniqueViolation(err error) (field string, ok bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return "", false
	}
	if pgErr.Code != "23505" { // unique_violation
		return "", false
	}

	// Prefer stable schema constraint names. Fall back to substring matching.
	c := strings.ToLower(strings.TrimSpace(pgErr.ConstraintName))

	switch c {
	case "uq_accounts_email":
		return "email", true
	case "photographer_profiles_pkey":
		return "profile", true
	default:
		if strings.Contains(c, "email") {
			return "email", true
		}
		return "unique", true
	}
}
