package session

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"authd/cmd/identity"
	"authd/cmd/internal/auth/audit"
	"authd/cmd/security/password"
	"authd/cmd/security/token"
)

// maxRefreshSecretLen bounds presented refresh secrets before hashing.
const maxRefreshSecretLen = 4096

// PasswordHasher hashes and verifies credentials. password.Config satisfies it.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(encodedHash, password string) (bool, error)
	NeedsRehash(encodedHash string) bool
}

// Observer receives one call per finished operation (metrics hook).
// outcome is "ok" or the failure kind.
type Observer func(op, outcome string)

// ExtensionInput carries the optional role-extension fields of a registration.
type ExtensionInput struct {
	Biography       *string
	PhoneNumber     *string
	WebsiteURL      *string
	SocialLinks     json.RawMessage
	ProfileImageURL *string
	CoverImageURL   *string
	CPF             *string
	AcceptedTerms   *bool
}

// RegisterInput describes a registration request.
type RegisterInput struct {
	Email       string
	Password    string
	DisplayName string
	Role        string
	Extension   *ExtensionInput
}

// Result is returned by every operation that issues a session.
type Result struct {
	Account          identity.Account
	Profile          *identity.PhotographerProfile
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
	Roles            []string
	DefaultRole      string
}

// Profile is the account view returned by Service.Profile.
type Profile struct {
	Account     identity.Account
	Extension   *identity.PhotographerProfile
	Roles       []string
	DefaultRole string
}

// Service implements the high-level session operations for authd.
//
// It registers accounts, authenticates credentials, issues paired access and
// refresh tokens, rotates refresh tokens under a row lock and revokes them.
// Every mutating operation runs inside a single Store transaction.
type Service struct {
	cfg     Config
	store   Store
	tokens  AccessTokenManager
	hasher  PasswordHasher
	refresh token.Hasher

	audit   audit.Sink
	observe Observer
	log     *slog.Logger

	// dummyHash is verified when an account is missing so lookups cost the same.
	dummyHash string
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger (default slog.Default()).
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// WithAudit sets the audit sink (default audit.Nop).
func WithAudit(sink audit.Sink) Option {
	return func(s *Service) {
		if sink != nil {
			s.audit = sink
		}
	}
}

// WithRefreshHasher sets the refresh-secret digest (default plain SHA-256).
func WithRefreshHasher(h token.Hasher) Option {
	return func(s *Service) { s.refresh = h }
}

// WithObserver sets the per-operation metrics hook.
func WithObserver(o Observer) Option {
	return func(s *Service) {
		if o != nil {
			s.observe = o
		}
	}
}

// NewService constructs a Service.
func NewService(cfg Config, store Store, tokens AccessTokenManager, hasher PasswordHasher, opts ...Option) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if store == nil || tokens == nil || hasher == nil {
		return nil, errors.New("session: store, tokens and hasher are required")
	}

	s := &Service{
		cfg:     cfg,
		store:   store,
		tokens:  tokens,
		hasher:  hasher,
		audit:   audit.Nop{},
		observe: func(string, string) {},
		log:     slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	dummy, err := hasher.Hash("authd-timing-equalizer")
	if err != nil {
		return nil, err
	}
	s.dummyHash = dummy
	return s, nil
}

// Ping checks store connectivity.
func (s *Service) Ping(ctx context.Context) error { return s.store.Ping(ctx) }

// Register creates an account, its role extension when applicable, and a first session.
func (s *Service) Register(ctx context.Context, now time.Time, in RegisterInput, meta ClientMeta) (res Result, err error) {
	const op = "session.Register"
	defer func() { s.finish(op, err) }()

	email := identity.NormalizeEmail(in.Email)
	displayName := strings.TrimSpace(in.DisplayName)
	if email == "" || strings.TrimSpace(in.Password) == "" || displayName == "" {
		return Result{}, newError(op, KindInvalidArgument, "email, password and displayName are required")
	}

	role, err := s.resolveRole(op, in.Role)
	if err != nil {
		return Result{}, err
	}
	meta = meta.normalized()

	err = s.store.WithinTx(ctx, func(tx Tx) error {
		if _, err := tx.Accounts().FindByEmail(ctx, email); err == nil {
			return newError(op, KindConflict, msgEmailTaken)
		} else if !identity.IsNotFound(err) {
			return err
		}

		hash, err := s.hasher.Hash(in.Password)
		if err != nil {
			return passwordError(op, err)
		}

		acct, err := tx.Accounts().Insert(ctx, identity.NewAccountInput{
			Email:        email,
			PasswordHash: hash,
			DisplayName:  displayName,
			Role:         role,
			Now:          now,
		})
		if err != nil {
			return err
		}

		var profile *identity.PhotographerProfile
		if role == s.cfg.ExtensionRole {
			p, err := tx.Accounts().InsertProfile(ctx, acct.ID, in.Extension.toProfileInput(), now)
			if err != nil {
				return err
			}
			profile = &p
		}

		res, err = s.issue(ctx, tx, now, acct, profile, meta)
		return err
	})
	if err != nil {
		err = wrap(op, err)
		s.log.Info("auth.register.fail", "email", identity.MaskIdentifier(email), "kind", KindOf(err).String(), "err", err)
		return Result{}, err
	}

	s.log.Info("auth.register.ok", "account_id", res.Account.ID, "role", string(res.Account.Role))
	s.record(ctx, audit.ActionRegister, res.Account.ID, meta, map[string]any{"role": string(res.Account.Role)}, now)
	return res, nil
}

// Authenticate verifies credentials and issues a session.
// Unknown email, inactive account and wrong password are indistinguishable to the caller.
func (s *Service) Authenticate(ctx context.Context, now time.Time, email, pw string, meta ClientMeta) (res Result, err error) {
	const op = "session.Authenticate"
	defer func() { s.finish(op, err) }()

	email = identity.NormalizeEmail(email)
	if email == "" || pw == "" {
		return Result{}, newError(op, KindInvalidArgument, "email and password are required")
	}
	meta = meta.normalized()

	var accountID string
	err = s.store.WithinTx(ctx, func(tx Tx) error {
		acct, err := tx.Accounts().FindByEmail(ctx, email)
		if identity.IsNotFound(err) {
			_, _ = s.hasher.Verify(s.dummyHash, pw)
			return unauthorized(op, ReasonInvalidCredentials, msgInvalidCredentials)
		}
		if err != nil {
			return err
		}
		accountID = acct.ID

		ok, err := s.hasher.Verify(acct.PasswordHash, pw)
		if err != nil {
			s.log.Error("auth.login.hash_invalid", "account_id", acct.ID, "err", err)
			return unauthorized(op, ReasonInvalidCredentials, msgInvalidCredentials)
		}
		if !ok {
			return unauthorized(op, ReasonInvalidCredentials, msgInvalidCredentials)
		}
		if !acct.IsActive {
			return unauthorized(op, ReasonInactive, msgInvalidCredentials)
		}
		if s.hasher.NeedsRehash(acct.PasswordHash) {
			s.log.Info("auth.login.rehash_needed", "account_id", acct.ID)
		}

		profile, err := s.loadProfile(ctx, tx, acct)
		if err != nil {
			return err
		}

		res, err = s.issue(ctx, tx, now, acct, profile, meta)
		return err
	})
	if err != nil {
		err = wrap(op, err)
		s.log.Info("auth.login.fail", "email", identity.MaskIdentifier(email), "kind", KindOf(err).String(), "reason", ReasonOf(err))
		s.record(ctx, audit.ActionLoginFailed, accountID, meta, map[string]any{
			"identifier": identity.MaskIdentifier(email),
			"reason":     failureReason(err),
		}, now)
		return Result{}, err
	}

	s.record(ctx, audit.ActionLoginSuccess, res.Account.ID, meta, nil, now)
	return res, nil
}

// Refresh rotates a refresh secret: the presented secret is revoked and a new
// session is issued, atomically. A secret is honored at most once.
func (s *Service) Refresh(ctx context.Context, now time.Time, secret string, meta ClientMeta) (res Result, err error) {
	const op = "session.Refresh"
	defer func() { s.finish(op, err) }()

	secret = strings.TrimSpace(secret)
	// Basic sanity bounds to avoid pathological inputs.
	if secret == "" || len(secret) > maxRefreshSecretLen {
		return Result{}, unauthorized(op, ReasonNotFound, msgInvalidRefresh)
	}
	meta = meta.normalized()

	// Hash in memory; the plain secret is never persisted.
	hash := s.refresh.Hash(secret)

	var accountID string
	err = s.store.WithinTx(ctx, func(tx Tx) error {
		// Lock the row by digest so concurrent rotations serialize.
		row, err := tx.Refresh().LockRefreshByHash(ctx, hash)
		if errors.Is(err, ErrRefreshNotFound) {
			return unauthorized(op, ReasonNotFound, msgInvalidRefresh)
		}
		if err != nil {
			return err
		}
		accountID = row.AccountID

		if row.RevokedAt != nil {
			return unauthorized(op, ReasonRevoked, msgInvalidRefresh)
		}
		if row.ExpiresAt.Before(now) {
			return unauthorized(op, ReasonExpired, msgInvalidRefresh)
		}

		if err := tx.Refresh().MarkRevoked(ctx, row.ID, now); err != nil {
			return err
		}

		acct, err := tx.Accounts().FindByID(ctx, row.AccountID)
		if identity.IsNotFound(err) {
			return &Error{Op: op, Kind: KindForbidden, Reason: ReasonInactive, Msg: msgAccountInactive}
		}
		if err != nil {
			return err
		}
		if !acct.IsActive {
			return &Error{Op: op, Kind: KindForbidden, Reason: ReasonInactive, Msg: msgAccountInactive}
		}

		profile, err := s.loadProfile(ctx, tx, acct)
		if err != nil {
			return err
		}

		res, err = s.issue(ctx, tx, now, acct, profile, meta)
		return err
	})
	if err != nil {
		err = wrap(op, err)
		s.logFailure("auth.refresh.fail", err)
		s.record(ctx, audit.ActionRefreshFailed, accountID, meta, map[string]any{"reason": failureReason(err)}, now)
		return Result{}, err
	}

	s.record(ctx, audit.ActionRefreshSuccess, res.Account.ID, meta, nil, now)
	return res, nil
}

// Revoke marks a refresh secret revoked. Unknown, blank and already revoked
// secrets are not errors.
func (s *Service) Revoke(ctx context.Context, now time.Time, secret string) (err error) {
	const op = "session.Revoke"
	defer func() { s.finish(op, err) }()

	secret = strings.TrimSpace(secret)
	if secret == "" || len(secret) > maxRefreshSecretLen {
		return nil
	}
	hash := s.refresh.Hash(secret)

	var changed bool
	err = s.store.WithinTx(ctx, func(tx Tx) error {
		var err error
		changed, err = tx.Refresh().MarkRevokedByHash(ctx, hash, now)
		return err
	})
	if err != nil {
		err = wrap(op, err)
		s.logFailure("auth.logout.fail", err)
		return err
	}

	if changed {
		s.record(ctx, audit.ActionLogout, "", ClientMeta{}, nil, now)
	}
	return nil
}

// Profile returns the account view for accountID.
func (s *Service) Profile(ctx context.Context, accountID string) (out Profile, err error) {
	const op = "session.Profile"
	defer func() { s.finish(op, err) }()

	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return Profile{}, &Error{Op: op, Kind: KindNotFound, Msg: "profile not found", Err: ErrProfileNotFound}
	}

	err = s.store.WithinTx(ctx, func(tx Tx) error {
		acct, err := tx.Accounts().FindByID(ctx, accountID)
		if identity.IsNotFound(err) {
			return &Error{Op: op, Kind: KindNotFound, Msg: "profile not found", Err: ErrProfileNotFound}
		}
		if err != nil {
			return err
		}

		ext, err := s.loadProfile(ctx, tx, acct)
		if err != nil {
			return err
		}

		role := string(acct.Role)
		out = Profile{Account: acct, Extension: ext, Roles: []string{role}, DefaultRole: role}
		return nil
	})
	if err != nil {
		err = wrap(op, err)
		s.logFailure("auth.profile.fail", err)
		return Profile{}, err
	}
	return out, nil
}

// VerifyAccessToken checks an access token's signature and expiry.
func (s *Service) VerifyAccessToken(tok string, now time.Time) (AccessClaims, error) {
	const op = "session.VerifyAccessToken"

	tok = strings.TrimSpace(tok)
	if tok == "" {
		return AccessClaims{}, &Error{Op: op, Kind: KindUnauthorized, Msg: "missing access token", Err: ErrInvalidToken}
	}
	claims, err := s.tokens.Verify(tok, now)
	if err != nil {
		return AccessClaims{}, &Error{Op: op, Kind: KindUnauthorized, Msg: "invalid access token", Err: err}
	}
	return claims, nil
}

// issue creates a refresh row and signs an access token for acct, inside tx.
func (s *Service) issue(ctx context.Context, tx Tx, now time.Time, acct identity.Account, profile *identity.PhotographerProfile, meta ClientMeta) (Result, error) {
	secret, err := token.NewOpaqueHex(s.cfg.RefreshTokenBytes)
	if err != nil {
		return Result{}, err
	}
	refreshExp := now.Add(s.cfg.RefreshTTL())

	if _, err := tx.Refresh().InsertRefresh(ctx, NewRefresh{
		AccountID: acct.ID,
		TokenHash: s.refresh.Hash(secret),
		ExpiresAt: refreshExp,
		Meta:      meta,
		Now:       now,
	}); err != nil {
		return Result{}, err
	}

	access, accessExp, err := s.tokens.Issue(Subject{AccountID: acct.ID, Email: acct.Email, Role: acct.Role}, now)
	if err != nil {
		return Result{}, err
	}

	role := string(acct.Role)
	return Result{
		Account:          acct,
		Profile:          profile,
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     secret,
		RefreshExpiresAt: refreshExp,
		Roles:            []string{role},
		DefaultRole:      role,
	}, nil
}

func (s *Service) loadProfile(ctx context.Context, tx Tx, acct identity.Account) (*identity.PhotographerProfile, error) {
	if acct.Role != s.cfg.ExtensionRole {
		return nil, nil
	}
	return tx.Accounts().FetchProfile(ctx, acct.ID)
}

func (s *Service) resolveRole(op, raw string) (identity.Role, error) {
	if strings.TrimSpace(raw) == "" {
		return s.cfg.DefaultRole, nil
	}
	r := identity.Role(raw)
	if !s.cfg.KnowsRole(r) {
		return "", newError(op, KindInvalidArgument, "unknown role")
	}
	return r, nil
}

func (s *Service) finish(op string, err error) {
	if err == nil {
		s.observe(op, "ok")
		return
	}
	s.observe(op, KindOf(err).String())
}

func (s *Service) logFailure(event string, err error) {
	switch KindOf(err) {
	case KindUnavailable, KindInternal:
		s.log.Error(event, "kind", KindOf(err).String(), "err", err)
	default:
		s.log.Info(event, "kind", KindOf(err).String(), "reason", ReasonOf(err))
	}
}

func (s *Service) record(ctx context.Context, action, accountID string, meta ClientMeta, extra map[string]any, now time.Time) {
	s.audit.Record(ctx, audit.Event{
		Action:    action,
		AccountID: accountID,
		IP:        meta.IP,
		UserAgent: meta.UserAgent,
		Meta:      extra,
		At:        now,
	})
}

func (in *ExtensionInput) toProfileInput() identity.ProfileInput {
	if in == nil {
		return identity.ProfileInput{}
	}
	return identity.ProfileInput{
		Biography:       in.Biography,
		PhoneNumber:     in.PhoneNumber,
		WebsiteURL:      in.WebsiteURL,
		SocialLinks:     in.SocialLinks,
		ProfileImageURL: in.ProfileImageURL,
		CoverImageURL:   in.CoverImageURL,
		CPF:             in.CPF,
		AcceptedTerms:   in.AcceptedTerms,
	}
}

func passwordError(op string, err error) error {
	switch {
	case errors.Is(err, password.ErrPasswordTooShort),
		errors.Is(err, password.ErrPasswordTooLong),
		errors.Is(err, password.ErrWeakPassword):
		return &Error{Op: op, Kind: KindInvalidArgument, Msg: err.Error(), Err: err}
	default:
		return err
	}
}

func failureReason(err error) string {
	if r := ReasonOf(err); r != "" {
		return r
	}
	return KindOf(err).String()
}
