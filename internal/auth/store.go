package auth

import (
	"context"
	"time"
)

// Store describes persistence operations required by the auth subsystem.
// Implementations must provide the atomicity documented on each method; the
// service holds no in-process locks and relies on them entirely.
type Store interface {
	Organizations(ctx context.Context) OrganizationStore
	Users(ctx context.Context) UserStore
	VerificationTokens(ctx context.Context) VerificationTokenStore
	Sessions(ctx context.Context) SessionStore
	Invitations(ctx context.Context) InvitationStore
}

// OrganizationStore manages tenants.
type OrganizationStore interface {
	Create(ctx context.Context, org *Organization) error
	Find(ctx context.Context, id string) (*Organization, error)
}

// UserStore manages users.
type UserStore interface {
	Find(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	// Upsert finds the user with the given email or creates it, in one atomic
	// step, stamping EmailVerified with verifiedAt.
	Upsert(ctx context.Context, email string, verifiedAt time.Time) (*User, error)
	// SetOrganization moves the user into orgID; an empty orgID clears membership.
	SetOrganization(ctx context.Context, userID, orgID string) (*User, error)
}

// VerificationTokenStore manages magic-link tokens.
type VerificationTokenStore interface {
	Create(ctx context.Context, tok *VerificationToken) error
	// Consume deletes the token matching (identifier, tokenHash) and returns it.
	// It is an atomic check-and-delete: of any number of concurrent callers at
	// most one receives the token, the rest get ErrNotFound.
	Consume(ctx context.Context, identifier, tokenHash string) (*VerificationToken, error)
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// InvitationStore records redeemed invitations so that each link joins once.
type InvitationStore interface {
	// Redeem records inv.ID as used. Redeeming the same id twice returns ErrConflict.
	Redeem(ctx context.Context, inv *RedeemedInvitation) error
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// SessionStore manages sessions.
type SessionStore interface {
	Create(ctx context.Context, sess *Session) error
	Find(ctx context.Context, id string) (*Session, error)
	Delete(ctx context.Context, id string) error
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}
