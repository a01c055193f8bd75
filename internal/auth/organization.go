package auth

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"pinboard.dev/internal/ids"
	"pinboard.dev/internal/mail"
)

const (
	inviteIssuer     = "pinboard"
	maxOrgNameLength = 100
)

// InviteClaims is the signed payload of an organization invitation.
type InviteClaims struct {
	OrganizationID string `json:"org"`
	jwt.RegisteredClaims
}

// CreateOrganization creates a tenant and makes the caller its first member.
// Callers that already belong to an organization get ErrConflict.
func (s *Service) CreateOrganization(ctx context.Context, id Identity, name string) (*Organization, *User, error) {
	user, err := s.CurrentUser(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if user.HasOrganization() {
		return nil, nil, fmt.Errorf("%w: already a member of an organization", ErrConflict)
	}
	name = strings.TrimSpace(name)
	if name == "" || len(name) > maxOrgNameLength {
		return nil, nil, fmt.Errorf("%w: organization name must be 1-%d characters", ErrInvalidInput, maxOrgNameLength)
	}
	now := s.now().UTC()
	org := &Organization{ID: ids.New(), Name: name, CreatedAt: now, UpdatedAt: now}
	if err := s.store.Organizations(ctx).Create(ctx, org); err != nil {
		return nil, nil, fmt.Errorf("create organization: %w", err)
	}
	user, err = s.store.Users(ctx).SetOrganization(ctx, user.ID, org.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("join organization: %w", err)
	}
	s.logger.Info("organization created", zap.String("organization_id", org.ID), zap.String("user_id", user.ID))
	return org, user, nil
}

// Invite mails an invitation to join the caller's organization and returns
// the acceptance link. Unlike sign-in, a delivery failure is reported as
// ErrTransport since the inviter is already authenticated.
func (s *Service) Invite(ctx context.Context, id Identity, email string) (string, error) {
	user, err := s.Member(ctx, id)
	if err != nil {
		return "", err
	}
	email, err = NormalizeEmail(email)
	if err != nil {
		return "", err
	}
	existing, err := s.store.Users(ctx).FindByEmail(ctx, email)
	switch {
	case err == nil && existing.OrganizationID == user.OrganizationID:
		return "", fmt.Errorf("%w: %s is already a member", ErrConflict, email)
	case err != nil && !errors.Is(err, ErrNotFound):
		return "", fmt.Errorf("find invitee: %w", err)
	}
	org, err := s.store.Organizations(ctx).Find(ctx, user.OrganizationID)
	if err != nil {
		return "", fmt.Errorf("find organization: %w", err)
	}
	token, err := s.signInvite(org.ID, email)
	if err != nil {
		return "", err
	}
	link := s.baseURL + invitationPath + "?" + url.Values{"token": {token}}.Encode()
	msg, err := mail.Invitation(mail.InvitationData{
		From:         s.from,
		To:           email,
		Link:         link,
		Organization: org.Name,
		InvitedBy:    user.Email,
		TTL:          s.inviteTTL,
	})
	if err != nil {
		return "", fmt.Errorf("render invitation: %w", err)
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		s.logger.Error("invitation delivery failed",
			zap.String("organization_id", org.ID),
			zap.String("email_domain", emailDomain(email)),
			zap.Error(err))
		return "", fmt.Errorf("%w: %v", ErrTransport, err)
	}
	s.logger.Info("invitation sent", zap.String("organization_id", org.ID), zap.String("user_id", user.ID))
	return link, nil
}

// AcceptInvite moves the caller into the invitation's organization. The
// caller's verified email must match the invited address, and each
// invitation joins at most once.
func (s *Service) AcceptInvite(ctx context.Context, id Identity, token string) (*User, error) {
	user, err := s.CurrentUser(ctx, id)
	if err != nil {
		return nil, err
	}
	claims, err := s.parseInvite(token)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(claims.Subject, user.Email) {
		return nil, ErrForbidden
	}
	if _, err := s.store.Organizations(ctx).Find(ctx, claims.OrganizationID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("find organization: %w", err)
	}
	switch user.OrganizationID {
	case claims.OrganizationID:
		return user, nil
	case "":
	default:
		return nil, fmt.Errorf("%w: leave the current organization first", ErrConflict)
	}
	err = s.store.Invitations(ctx).Redeem(ctx, &RedeemedInvitation{
		ID:             claims.ID,
		OrganizationID: claims.OrganizationID,
		UserID:         user.ID,
		RedeemedAt:     s.now().UTC(),
		ExpiresAt:      claims.ExpiresAt.Time,
	})
	if err != nil {
		if errors.Is(err, ErrConflict) {
			return nil, fmt.Errorf("%w: invitation already used", ErrInvalidToken)
		}
		return nil, fmt.Errorf("redeem invitation: %w", err)
	}
	user, err = s.store.Users(ctx).SetOrganization(ctx, user.ID, claims.OrganizationID)
	if err != nil {
		return nil, fmt.Errorf("join organization: %w", err)
	}
	s.logger.Info("invitation accepted", zap.String("organization_id", claims.OrganizationID), zap.String("user_id", user.ID))
	return user, nil
}

// LeaveOrganization clears the caller's membership.
func (s *Service) LeaveOrganization(ctx context.Context, id Identity) (*User, error) {
	user, err := s.Member(ctx, id)
	if err != nil {
		return nil, err
	}
	left := user.OrganizationID
	user, err = s.store.Users(ctx).SetOrganization(ctx, user.ID, "")
	if err != nil {
		return nil, fmt.Errorf("leave organization: %w", err)
	}
	s.logger.Info("organization left", zap.String("organization_id", left), zap.String("user_id", user.ID))
	return user, nil
}

func (s *Service) signInvite(orgID, email string) (string, error) {
	now := s.now().UTC()
	claims := InviteClaims{
		OrganizationID: orgID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    inviteIssuer,
			Subject:   email,
			ID:        ids.New(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.inviteTTL)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign invitation: %w", err)
	}
	return signed, nil
}

func (s *Service) parseInvite(raw string) (*InviteClaims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrInvalidToken
	}
	claims := &InviteClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(inviteIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}
	if claims.OrganizationID == "" || claims.Subject == "" || claims.ID == "" || claims.ExpiresAt == nil {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
