package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"pinboard.dev/internal/auth"
	"pinboard.dev/internal/ids"
)

var _ auth.Store = (*AuthStore)(nil)

// AuthStore implements auth.Store on PostgreSQL.
type AuthStore struct {
	db *sql.DB
}

// NewAuthStore wraps db directly; most callers go through Store.Auth.
func NewAuthStore(db *sql.DB) *AuthStore { return &AuthStore{db: db} }

func (s *AuthStore) Organizations(context.Context) auth.OrganizationStore { return &orgStore{db: s.db} }
func (s *AuthStore) Users(context.Context) auth.UserStore { return &userStore{db: s.db} }
func (s *AuthStore) VerificationTokens(context.Context) auth.VerificationTokenStore {
	return &tokenStore{db: s.db}
}
func (s *AuthStore) Sessions(context.Context) auth.SessionStore { return &sessionStore{db: s.db} }
func (s *AuthStore) Invitations(context.Context) auth.InvitationStore {
	return &invitationStore{db: s.db}
}

// Organization store -------------------------------------------------------
type orgStore struct{ db *sql.DB }

func (s *orgStore) Create(ctx context.Context, org *auth.Organization) error {
	row := s.db.QueryRowContext(ctx, `
		insert into organizations (id, name)
		values ($1, $2)
		returning created_at, updated_at
	`, org.ID, org.Name)
	if err := row.Scan(&org.CreatedAt, &org.UpdatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return auth.ErrConflict
		}
		return err
	}
	return nil
}

func (s *orgStore) Find(ctx context.Context, id string) (*auth.Organization, error) {
	var org auth.Organization
	err := s.db.QueryRowContext(ctx,
		`select id, name, created_at, updated_at from organizations where id = $1`, id,
	).Scan(&org.ID, &org.Name, &org.CreatedAt, &org.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, auth.ErrNotFound
		}
		return nil, err
	}
	return &org, nil
}

// User store ---------------------------------------------------------------
type userStore struct{ db *sql.DB }

const userColumns = `id, email, name, image, coalesce(organization_id, ''), email_verified, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (*auth.User, error) {
	var (
		u        auth.User
		verified sql.NullTime
	)
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.Image, &u.OrganizationID, &verified, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, auth.ErrNotFound
		}
		return nil, err
	}
	if verified.Valid {
		t := verified.Time
		u.EmailVerified = &t
	}
	return &u, nil
}

func (s *userStore) Find(ctx context.Context, id string) (*auth.User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `select `+userColumns+` from users where id = $1`, id))
}

func (s *userStore) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `select `+userColumns+` from users where email = $1`, email))
}

// Upsert relies on the unique email index so concurrent first sign-ins
// converge on one row.
func (s *userStore) Upsert(ctx context.Context, email string, verifiedAt time.Time) (*auth.User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `
		insert into users (id, email, email_verified, created_at, updated_at)
		values ($1, $2, $3, $3, $3)
		on conflict (email) do update
		set email_verified = excluded.email_verified,
		    updated_at = excluded.updated_at
		returning `+userColumns,
		ids.New(), email, verifiedAt,
	))
}

func (s *userStore) SetOrganization(ctx context.Context, userID, orgID string) (*auth.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, `
		update users
		set organization_id = $2, updated_at = now()
		where id = $1
		returning `+userColumns,
		userID, nullIfEmpty(orgID),
	))
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return nil, auth.ErrNotFound
		}
		return nil, err
	}
	return u, nil
}

// Verification token store -------------------------------------------------
type tokenStore struct{ db *sql.DB }

func (s *tokenStore) Create(ctx context.Context, tok *auth.VerificationToken) error {
	_, err := s.db.ExecContext(ctx, `
		insert into verification_tokens (identifier, token_hash, expires_at, created_at)
		values ($1, $2, $3, $4)
	`, tok.Identifier, tok.TokenHash, tok.ExpiresAt, tok.CreatedAt)
	if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
		return auth.ErrConflict
	}
	return err
}

// Consume is a single DELETE ... RETURNING: row locking guarantees that only
// one concurrent caller gets the row back.
func (s *tokenStore) Consume(ctx context.Context, identifier, tokenHash string) (*auth.VerificationToken, error) {
	var tok auth.VerificationToken
	err := s.db.QueryRowContext(ctx, `
		delete from verification_tokens
		where identifier = $1 and token_hash = $2
		returning identifier, token_hash, expires_at, created_at
	`, identifier, tokenHash).Scan(&tok.Identifier, &tok.TokenHash, &tok.ExpiresAt, &tok.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, auth.ErrNotFound
		}
		return nil, err
	}
	return &tok, nil
}

func (s *tokenStore) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `delete from verification_tokens where expires_at < $1`, before)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Session store ------------------------------------------------------------
type sessionStore struct{ db *sql.DB }

func (s *sessionStore) Create(ctx context.Context, sess *auth.Session) error {
	_, err := s.db.ExecContext(ctx, `
		insert into sessions (id, user_id, expires_at, created_at)
		values ($1, $2, $3, $4)
	`, sess.ID, sess.UserID, sess.ExpiresAt, sess.CreatedAt)
	if pgErr, ok := maybePgError(err); ok {
		switch pgErr.Code {
		case pgErrUniqueViolation:
			return auth.ErrConflict
		case pgErrForeignKeyViolation:
			return auth.ErrNotFound
		}
	}
	return err
}

func (s *sessionStore) Find(ctx context.Context, id string) (*auth.Session, error) {
	var sess auth.Session
	err := s.db.QueryRowContext(ctx,
		`select id, user_id, expires_at, created_at from sessions where id = $1`, id,
	).Scan(&sess.ID, &sess.UserID, &sess.ExpiresAt, &sess.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, auth.ErrNotFound
		}
		return nil, err
	}
	return &sess, nil
}

func (s *sessionStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from sessions where id = $1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return auth.ErrNotFound
	}
	return nil
}

func (s *sessionStore) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `delete from sessions where expires_at <= $1`, before)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Redeemed invitation store -------------------------------------------------
type invitationStore struct{ db *sql.DB }

func (s *invitationStore) Redeem(ctx context.Context, inv *auth.RedeemedInvitation) error {
	_, err := s.db.ExecContext(ctx, `
		insert into redeemed_invitations (jti, organization_id, user_id, redeemed_at, expires_at)
		values ($1, $2, $3, $4, $5)
	`, inv.ID, inv.OrganizationID, inv.UserID, inv.RedeemedAt, inv.ExpiresAt)
	if pgErr, ok := maybePgError(err); ok {
		switch pgErr.Code {
		case pgErrUniqueViolation:
			return auth.ErrConflict
		case pgErrForeignKeyViolation:
			return auth.ErrNotFound
		}
	}
	return err
}

func (s *invitationStore) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `delete from redeemed_invitations where expires_at <= $1`, before)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
