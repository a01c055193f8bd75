package auth

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"pinboard.dev/internal/obs"
)

// ResourceLoader resolves the organization that owns the target resource. It
// must not filter by archived or deleted state, and returns ErrNotFound when
// the resource does not exist at all.
type ResourceLoader func(ctx context.Context) (Resource, error)

// Member returns the caller's user record, requiring an authenticated identity
// that belongs to an organization. Used by collection routes (list, create)
// where the scope is the caller's own organization.
func (s *Service) Member(ctx context.Context, id Identity) (*User, error) {
	user, err := s.CurrentUser(ctx, id)
	if err != nil {
		if errors.Is(err, ErrUnauthorized) {
			s.deny(id, ActionRead, Resource{}, ErrUnauthorized)
		}
		return nil, err
	}
	if !user.HasOrganization() {
		s.deny(id, ActionRead, Resource{}, ErrNoOrganization)
		return nil, ErrNoOrganization
	}
	return user, nil
}

// Authorize runs the full gate for a single resource: identity, membership,
// then ownership of the resource load returns. On success it returns the
// caller's user record.
func (s *Service) Authorize(ctx context.Context, id Identity, action Action, load ResourceLoader) (*User, error) {
	if id.IsAnonymous() {
		s.deny(id, action, Resource{}, ErrUnauthorized)
		return nil, ErrUnauthorized
	}
	user, err := s.Member(ctx, id)
	if err != nil {
		return nil, err
	}
	res, err := load(ctx)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load resource: %w", err)
	}
	decision := Authorize(id, user.OrganizationID, action, res)
	if !decision.Allowed {
		s.deny(id, action, res, decision.Err())
		return nil, decision.Err()
	}
	return user, nil
}

func (s *Service) deny(id Identity, action Action, res Resource, reason error) {
	obs.RecordAuthDenial(denialReason(reason))
	s.logger.Debug("access denied",
		zap.Stringer("identity", id),
		zap.String("action", string(action)),
		zap.String("resource_kind", string(res.Kind)),
		zap.String("resource_id", res.ID),
		zap.String("reason", denialReason(reason)))
}

func denialReason(err error) string {
	switch {
	case errors.Is(err, ErrUnauthorized):
		return "unauthenticated"
	case errors.Is(err, ErrNoOrganization):
		return "no_organization"
	case errors.Is(err, ErrForbidden):
		return "cross_organization"
	default:
		return "other"
	}
}
