package auth

import "time"

// Organization is the tenant boundary: every board and note belongs to exactly one.
type Organization struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// User is an account created on first successful email verification.
// OrganizationID is empty while the user belongs to no organization.
type User struct {
	ID             string     `json:"id"`
	Email          string     `json:"email"`
	Name           string     `json:"name,omitempty"`
	Image          string     `json:"image,omitempty"`
	OrganizationID string     `json:"organizationId,omitempty"`
	EmailVerified  *time.Time `json:"emailVerified,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// HasOrganization reports whether the user currently belongs to a tenant.
func (u User) HasOrganization() bool {
	return u.OrganizationID != ""
}

// VerificationToken is a persisted, single-use magic-link credential.
// Only the hash of the emailed token is stored.
type VerificationToken struct {
	Identifier string
	TokenHash  string
	ExpiresAt  time.Time
	CreatedAt  time.Time
}

// Expired reports whether the token is past its expiry relative to now.
func (t VerificationToken) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// RedeemedInvitation marks an invitation (by its jti) as used.
type RedeemedInvitation struct {
	ID             string
	OrganizationID string
	UserID         string
	RedeemedAt     time.Time
	ExpiresAt      time.Time
}

// Session binds a cookie value (stored hashed as ID) to a user until ExpiresAt.
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Expired reports whether the session is past its expiry relative to now.
func (s Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
