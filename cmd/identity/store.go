package identity

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Role is the single role label carried by an account.
type Role string

const (
	RoleUser         Role = "user"
	RolePhotographer Role = "photographer"
	RoleAdmin        Role = "admin"
)

// Account is authd's canonical security principal.
type Account struct {
	ID           string
	Email        string
	PasswordHash string
	DisplayName  string
	Role         Role
	IsActive     bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// PhotographerProfile is the role extension record, 1:1 with an account.
// Every optional field is nil when the client did not provide it.
type PhotographerProfile struct {
	AccountID       string
	Biography       *string
	PhoneNumber     *string
	WebsiteURL      *string
	SocialLinks     json.RawMessage
	ProfileImageURL *string
	CoverImageURL   *string
	CPF             *string
	AcceptedTerms   bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewAccountInput describes an account insert. Email must already be normalized.
type NewAccountInput struct {
	Email        string
	PasswordHash string
	DisplayName  string
	Role         Role
	Now          time.Time
}

// ProfileInput carries the optional extension fields provided at registration.
// AcceptedTerms nil is stored as false.
type ProfileInput struct {
	Biography       *string
	PhoneNumber     *string
	WebsiteURL      *string
	SocialLinks     json.RawMessage
	ProfileImageURL *string
	CoverImageURL   *string
	CPF             *string
	AcceptedTerms   *bool
}

// Querier is the query surface shared by *pgxpool.Pool and pgx.Tx.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Accounts is the account persistence boundary.
//
// Contract:
// - FindByEmail/FindByID return a NotFoundError when no row matches.
// - Insert returns ConflictError{Field: "email"} when the email is taken.
// - FetchProfile returns (nil, nil) when the account has no extension record.
type Accounts interface {
	FindByEmail(ctx context.Context, email string) (Account, error)
	FindByID(ctx context.Context, id string) (Account, error)
	Insert(ctx context.Context, in NewAccountInput) (Account, error)
	InsertProfile(ctx context.Context, accountID string, in ProfileInput, now time.Time) (PhotographerProfile, error)
	FetchProfile(ctx context.Context, accountID string) (*PhotographerProfile, error)
}

func (in ProfileInput) build(accountID string, now time.Time) PhotographerProfile {
	p := PhotographerProfile{
		AccountID:       accountID,
		Biography:       trimPtr(in.Biography),
		PhoneNumber:     trimPtr(in.PhoneNumber),
		WebsiteURL:      trimPtr(in.WebsiteURL),
		ProfileImageURL: trimPtr(in.ProfileImageURL),
		CoverImageURL:   trimPtr(in.CoverImageURL),
		CPF:             trimPtr(in.CPF),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if len(in.SocialLinks) > 0 && string(in.SocialLinks) != "null" {
		p.SocialLinks = append(json.RawMessage(nil), in.SocialLinks...)
	}
	if in.AcceptedTerms != nil {
		p.AcceptedTerms = *in.AcceptedTerms
	}
	return p
}
