package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"pinboard.dev/internal/ids"
)

func (s *Service) openSession(ctx context.Context, userID string) (*Session, string, error) {
	cookie, err := ids.Secret(s.tokenBytes)
	if err != nil {
		return nil, "", err
	}
	now := s.now().UTC()
	sess := &Session{
		ID:        hashSession(cookie),
		UserID:    userID,
		ExpiresAt: now.Add(s.sessionTTL),
		CreatedAt: now,
	}
	if err := s.store.Sessions(ctx).Create(ctx, sess); err != nil {
		return nil, "", fmt.Errorf("create session: %w", err)
	}
	return sess, cookie, nil
}

// Resolve maps a session cookie value to an Identity. Missing, unknown and
// expired sessions resolve to Anonymous; only storage failures return an error.
// Resolve never writes.
func (s *Service) Resolve(ctx context.Context, cookie string) (Identity, error) {
	cookie = strings.TrimSpace(cookie)
	if cookie == "" {
		return Anonymous(), nil
	}
	sess, err := s.store.Sessions(ctx).Find(ctx, hashSession(cookie))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Anonymous(), nil
		}
		return Anonymous(), fmt.Errorf("find session: %w", err)
	}
	if sess.Expired(s.now().UTC()) {
		return Anonymous(), nil
	}
	return Authenticated(sess.UserID), nil
}

// SignOut deletes the session behind cookie. Unknown sessions are ignored.
func (s *Service) SignOut(ctx context.Context, cookie string) error {
	cookie = strings.TrimSpace(cookie)
	if cookie == "" {
		return nil
	}
	err := s.store.Sessions(ctx).Delete(ctx, hashSession(cookie))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// CurrentUser loads the user behind an authenticated identity. It does not
// require organization membership.
func (s *Service) CurrentUser(ctx context.Context, id Identity) (*User, error) {
	userID, ok := id.UserID()
	if !ok {
		return nil, ErrUnauthorized
	}
	user, err := s.store.Users(ctx).Find(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return user, nil
}
