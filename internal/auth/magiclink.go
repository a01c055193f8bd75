package auth

import (
	"context"
	"errors"
	"fmt"
	netmail "net/mail"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"pinboard.dev/internal/ids"
	"pinboard.dev/internal/mail"
	"pinboard.dev/internal/obs"
)

const maxEmailLength = 254

// NormalizeEmail lowercases and validates a bare email address.
func NormalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" || len(email) > maxEmailLength {
		return "", fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	addr, err := netmail.ParseAddress(email)
	if err != nil || addr.Address != email || addr.Name != "" {
		return "", fmt.Errorf("%w: malformed email", ErrInvalidInput)
	}
	return email, nil
}

// Issue creates a single-use sign-in token for email and mails the link.
//
// The result does not reveal whether the address belongs to an existing user.
// Mail delivery failures are logged and counted but not returned, so callers
// always report "check your email"; only malformed input and storage failures
// surface as errors.
func (s *Service) Issue(ctx context.Context, email, callbackURL string) error {
	email, err := NormalizeEmail(email)
	if err != nil {
		return err
	}
	token, err := ids.Secret(s.tokenBytes)
	if err != nil {
		return err
	}
	now := s.now().UTC()
	rec := &VerificationToken{
		Identifier: email,
		TokenHash:  s.hashToken(token),
		ExpiresAt:  now.Add(s.tokenTTL),
		CreatedAt:  now,
	}
	if err := s.store.VerificationTokens(ctx).Create(ctx, rec); err != nil {
		return fmt.Errorf("store verification token: %w", err)
	}

	link := s.callbackLink(token, email, callbackURL)
	msg, err := mail.MagicLink(mail.MagicLinkData{
		From: s.from,
		To:   email,
		Link: link,
		Host: s.host(),
		TTL:  s.tokenTTL,
	})
	if err != nil {
		return fmt.Errorf("render magic link: %w", err)
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		obs.RecordMagicLink(obs.OutcomeMailFailed)
		s.logger.Error("magic link delivery failed",
			zap.String("email_domain", emailDomain(email)),
			zap.Error(err))
		return nil
	}
	obs.RecordMagicLink(obs.OutcomeSent)
	s.logger.Info("magic link issued", zap.String("email_domain", emailDomain(email)))
	return nil
}

// Verify redeems a magic-link token. On success the token is gone, the user
// exists (created on first sign-in) and a fresh session is returned together
// with the raw cookie value.
//
// A token that was never issued, was already used, or belongs to another
// email yields ErrInvalidToken. A token found past its expiry is still
// consumed and yields ErrExpiredToken.
func (s *Service) Verify(ctx context.Context, token, email string) (*Session, string, error) {
	token = strings.TrimSpace(token)
	email, err := NormalizeEmail(email)
	if token == "" || err != nil {
		obs.RecordVerification(obs.OutcomeInvalid)
		return nil, "", ErrInvalidToken
	}
	rec, err := s.store.VerificationTokens(ctx).Consume(ctx, email, s.hashToken(token))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			obs.RecordVerification(obs.OutcomeInvalid)
			return nil, "", ErrInvalidToken
		}
		obs.RecordVerification(obs.OutcomeError)
		return nil, "", fmt.Errorf("consume verification token: %w", err)
	}
	now := s.now().UTC()
	if rec.Expired(now) {
		obs.RecordVerification(obs.OutcomeExpired)
		return nil, "", ErrExpiredToken
	}

	user, err := s.store.Users(ctx).Upsert(ctx, email, now)
	if err != nil {
		obs.RecordVerification(obs.OutcomeError)
		return nil, "", fmt.Errorf("upsert user: %w", err)
	}
	sess, cookie, err := s.openSession(ctx, user.ID)
	if err != nil {
		obs.RecordVerification(obs.OutcomeError)
		return nil, "", err
	}
	obs.RecordVerification(obs.OutcomeSuccess)
	s.logger.Info("user signed in", zap.String("user_id", user.ID))
	return sess, cookie, nil
}

func (s *Service) callbackLink(token, email, callbackURL string) string {
	q := url.Values{}
	q.Set("token", token)
	q.Set("email", email)
	if callbackURL = strings.TrimSpace(callbackURL); callbackURL != "" {
		q.Set("callbackUrl", callbackURL)
	}
	return s.baseURL + callbackPath + "?" + q.Encode()
}

func (s *Service) host() string {
	u, err := url.Parse(s.baseURL)
	if err != nil {
		return s.baseURL
	}
	return u.Host
}

func emailDomain(email string) string {
	if i := strings.LastIndexByte(email, '@'); i >= 0 {
		return email[i+1:]
	}
	return ""
}
