package auth

import (
	"context"
	"sync"
	"time"

	"pinboard.dev/internal/ids"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore is an in-process Store used for development and tests. A single
// mutex provides the atomicity the Store contract requires.
type MemoryStore struct {
	mu       sync.Mutex
	orgs     map[string]Organization
	users    map[string]User
	byEmail  map[string]string
	tokens   map[tokenKey]VerificationToken
	sessions map[string]Session
	invites  map[string]RedeemedInvitation
	now      func() time.Time
}

type tokenKey struct {
	identifier string
	hash       string
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		orgs:     make(map[string]Organization),
		users:    make(map[string]User),
		byEmail:  make(map[string]string),
		tokens:   make(map[tokenKey]VerificationToken),
		sessions: make(map[string]Session),
		invites:  make(map[string]RedeemedInvitation),
		now:      time.Now,
	}
}

func (m *MemoryStore) Organizations(context.Context) OrganizationStore { return memOrgs{m} }
func (m *MemoryStore) Users(context.Context) UserStore { return memUsers{m} }
func (m *MemoryStore) VerificationTokens(context.Context) VerificationTokenStore {
	return memTokens{m}
}
func (m *MemoryStore) Sessions(context.Context) SessionStore { return memSessions{m} }
func (m *MemoryStore) Invitations(context.Context) InvitationStore {
	return memInvites{m}
}

type memOrgs struct{ m *MemoryStore }

func (s memOrgs) Create(_ context.Context, org *Organization) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if org.ID == "" {
		org.ID = ids.New()
	}
	if _, ok := s.m.orgs[org.ID]; ok {
		return ErrConflict
	}
	now := s.m.now().UTC()
	if org.CreatedAt.IsZero() {
		org.CreatedAt = now
	}
	if org.UpdatedAt.IsZero() {
		org.UpdatedAt = now
	}
	s.m.orgs[org.ID] = *org
	return nil
}

func (s memOrgs) Find(_ context.Context, id string) (*Organization, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	org, ok := s.m.orgs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &org, nil
}

type memUsers struct{ m *MemoryStore }

func (s memUsers) Find(_ context.Context, id string) (*User, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	u, ok := s.m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (s memUsers) FindByEmail(_ context.Context, email string) (*User, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	id, ok := s.m.byEmail[email]
	if !ok {
		return nil, ErrNotFound
	}
	u := s.m.users[id]
	return &u, nil
}

func (s memUsers) Upsert(_ context.Context, email string, verifiedAt time.Time) (*User, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	verified := verifiedAt
	if id, ok := s.m.byEmail[email]; ok {
		u := s.m.users[id]
		u.EmailVerified = &verified
		u.UpdatedAt = verifiedAt
		s.m.users[id] = u
		return &u, nil
	}
	u := User{
		ID:            ids.New(),
		Email:         email,
		EmailVerified: &verified,
		CreatedAt:     verifiedAt,
		UpdatedAt:     verifiedAt,
	}
	s.m.users[u.ID] = u
	s.m.byEmail[email] = u.ID
	return &u, nil
}

func (s memUsers) SetOrganization(_ context.Context, userID, orgID string) (*User, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	u, ok := s.m.users[userID]
	if !ok {
		return nil, ErrNotFound
	}
	if orgID != "" {
		if _, ok := s.m.orgs[orgID]; !ok {
			return nil, ErrNotFound
		}
	}
	u.OrganizationID = orgID
	u.UpdatedAt = s.m.now().UTC()
	s.m.users[userID] = u
	return &u, nil
}

type memTokens struct{ m *MemoryStore }

func (s memTokens) Create(_ context.Context, tok *VerificationToken) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	key := tokenKey{tok.Identifier, tok.TokenHash}
	if _, ok := s.m.tokens[key]; ok {
		return ErrConflict
	}
	s.m.tokens[key] = *tok
	return nil
}

func (s memTokens) Consume(_ context.Context, identifier, tokenHash string) (*VerificationToken, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	key := tokenKey{identifier, tokenHash}
	tok, ok := s.m.tokens[key]
	if !ok {
		return nil, ErrNotFound
	}
	delete(s.m.tokens, key)
	return &tok, nil
}

func (s memTokens) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var n int64
	for k, tok := range s.m.tokens {
		if tok.ExpiresAt.Before(before) {
			delete(s.m.tokens, k)
			n++
		}
	}
	return n, nil
}

type memInvites struct{ m *MemoryStore }

func (s memInvites) Redeem(_ context.Context, inv *RedeemedInvitation) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if _, ok := s.m.invites[inv.ID]; ok {
		return ErrConflict
	}
	s.m.invites[inv.ID] = *inv
	return nil
}

func (s memInvites) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var n int64
	for id, inv := range s.m.invites {
		if inv.ExpiresAt.Before(before) {
			delete(s.m.invites, id)
			n++
		}
	}
	return n, nil
}

type memSessions struct{ m *MemoryStore }

func (s memSessions) Create(_ context.Context, sess *Session) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if _, ok := s.m.sessions[sess.ID]; ok {
		return ErrConflict
	}
	s.m.sessions[sess.ID] = *sess
	return nil
}

func (s memSessions) Find(_ context.Context, id string) (*Session, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	sess, ok := s.m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &sess, nil
}

func (s memSessions) Delete(_ context.Context, id string) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if _, ok := s.m.sessions[id]; !ok {
		return ErrNotFound
	}
	delete(s.m.sessions, id)
	return nil
}

func (s memSessions) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var n int64
	for id, sess := range s.m.sessions {
		if !sess.ExpiresAt.After(before) {
			delete(s.m.sessions, id)
			n++
		}
	}
	return n, nil
}
