package auth

// Action names what the caller wants to do with a resource.
type Action string

const (
	ActionRead  Action = "read"
	ActionWrite Action = "write"
)

// ResourceKind names an organization-scoped entity.
type ResourceKind string

const (
	KindBoard ResourceKind = "board"
	KindNote  ResourceKind = "note"
)

// Resource is the authorization view of an entity: its owning organization,
// resolved directly for boards and through the parent board for notes.
type Resource struct {
	Kind           ResourceKind
	ID             string
	OrganizationID string
}

// Decision is the outcome of an authorization check. Reason is one of
// ErrUnauthorized, ErrNoOrganization or ErrForbidden when Allowed is false.
type Decision struct {
	Allowed bool
	Reason  error
}

// Allow returns a permitting decision.
func Allow() Decision { return Decision{Allowed: true} }

// Deny returns a refusing decision with the given reason.
func Deny(reason error) Decision { return Decision{Reason: reason} }

// Err returns nil for an allowed decision and the deny reason otherwise.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	if d.Reason == nil {
		return ErrForbidden
	}
	return d.Reason
}

// Authorize decides whether identity, a member of callerOrgID, may perform
// action on res. Membership is the only grant: any member may read or write any
// resource of its own organization and nothing outside it.
func Authorize(identity Identity, callerOrgID string, action Action, res Resource) Decision {
	if identity.IsAnonymous() {
		return Deny(ErrUnauthorized)
	}
	if callerOrgID == "" {
		return Deny(ErrNoOrganization)
	}
	if res.OrganizationID == "" || res.OrganizationID != callerOrgID {
		return Deny(ErrForbidden)
	}
	return Allow()
}
