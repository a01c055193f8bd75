package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"pinboard.dev/internal/mail"
	"pinboard.dev/internal/obs"
)

const (
	DefaultTokenTTL   = 24 * time.Hour
	DefaultSessionTTL = 30 * 24 * time.Hour
	DefaultInviteTTL  = 7 * 24 * time.Hour

	defaultTokenBytes = 32
	callbackPath      = "/api/auth/callback/email"
	defaultFrom       = "Pinboard <no-reply@localhost>"
)

// Service owns the magic-link lifecycle, session resolution, organization
// membership and the authorization gate.
type Service struct {
	store  Store
	mailer mail.Mailer
	logger *zap.Logger
	now    func() time.Time

	secret  []byte
	baseURL string
	from    string

	tokenTTL   time.Duration
	sessionTTL time.Duration
	inviteTTL  time.Duration
	tokenBytes int
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service) error

// WithSecret sets the server secret mixed into token hashes and used to sign invitations.
func WithSecret(secret string) ServiceOption {
	return func(s *Service) error {
		if strings.TrimSpace(secret) == "" {
			return errors.New("auth: secret must not be empty")
		}
		s.secret = []byte(secret)
		return nil
	}
}

// WithBaseURL sets the public origin used for links and redirect checks.
func WithBaseURL(raw string) ServiceOption {
	return func(s *Service) error {
		raw = strings.TrimRight(strings.TrimSpace(raw), "/")
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("auth: invalid base url %q", raw)
		}
		s.baseURL = raw
		return nil
	}
}

// WithFrom sets the sender address for outgoing mail.
func WithFrom(from string) ServiceOption {
	return func(s *Service) error {
		if from = strings.TrimSpace(from); from != "" {
			s.from = from
		}
		return nil
	}
}

// WithTokenTTL configures magic-link lifetime.
func WithTokenTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) error {
		if ttl > 0 {
			s.tokenTTL = ttl
		}
		return nil
	}
}

// WithSessionTTL configures session lifetime.
func WithSessionTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) error {
		if ttl > 0 {
			s.sessionTTL = ttl
		}
		return nil
	}
}

// WithInviteTTL configures invitation lifetime.
func WithInviteTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) error {
		if ttl > 0 {
			s.inviteTTL = ttl
		}
		return nil
	}
}

// WithLogger overrides the service logger.
func WithLogger(logger *zap.Logger) ServiceOption {
	return func(s *Service) error {
		if logger != nil {
			s.logger = logger
		}
		return nil
	}
}

// WithClock overrides time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) error {
		if fn != nil {
			s.now = fn
		}
		return nil
	}
}

// NewService constructs Service. WithSecret and WithBaseURL are required.
func NewService(store Store, mailer mail.Mailer, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("auth: store is required")
	}
	if mailer == nil {
		return nil, errors.New("auth: mailer is required")
	}
	svc := &Service{
		store:      store,
		mailer:     mailer,
		logger:     obs.Logger().Named("auth"),
		now:        time.Now,
		from:       defaultFrom,
		tokenTTL:   DefaultTokenTTL,
		sessionTTL: DefaultSessionTTL,
		inviteTTL:  DefaultInviteTTL,
		tokenBytes: defaultTokenBytes,
	}
	for _, opt := range opts {
		if err := opt(svc); err != nil {
			return nil, err
		}
	}
	if len(svc.secret) == 0 {
		return nil, errors.New("auth: secret is required")
	}
	if svc.baseURL == "" {
		return nil, errors.New("auth: base url is required")
	}
	return svc, nil
}

// BaseURL returns the configured public origin.
func (s *Service) BaseURL() string { return s.baseURL }

// SessionTTL returns the lifetime given to new sessions.
func (s *Service) SessionTTL() time.Duration { return s.sessionTTL }

// PurgeExpired removes expired verification tokens and sessions.
func (s *Service) PurgeExpired(ctx context.Context) (tokens, sessions int64, err error) {
	now := s.now().UTC()
	tokens, err = s.store.VerificationTokens(ctx).DeleteExpired(ctx, now)
	if err != nil {
		return 0, 0, fmt.Errorf("purge verification tokens: %w", err)
	}
	sessions, err = s.store.Sessions(ctx).DeleteExpired(ctx, now)
	if err != nil {
		return tokens, 0, fmt.Errorf("purge sessions: %w", err)
	}
	invites, err := s.store.Invitations(ctx).DeleteExpired(ctx, now)
	if err != nil {
		return tokens, sessions, fmt.Errorf("purge redeemed invitations: %w", err)
	}
	s.logger.Info("expired credentials purged",
		zap.Int64("verification_tokens", tokens),
		zap.Int64("sessions", sessions),
		zap.Int64("redeemed_invitations", invites))
	return tokens, sessions, nil
}

// hashToken derives the stored form of a magic-link token.
func (s *Service) hashToken(token string) string {
	sum := sha256.Sum256([]byte(token + string(s.secret)))
	return hex.EncodeToString(sum[:])
}

// hashSession derives the stored session id from a cookie value.
func hashSession(cookie string) string {
	sum := sha256.Sum256([]byte(cookie))
	return hex.EncodeToString(sum[:])
}
