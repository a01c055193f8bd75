package httpapi

import (
	"net/http"

	"pinboard.dev/internal/audit"
	"pinboard.dev/internal/auth"
)

type createOrganizationRequest struct {
	Name string `json:"name"`
}

type inviteRequest struct {
	Email string `json:"email"`
}

type acceptInviteRequest struct {
	Token string `json:"token"`
}

func (a *API) createOrganization(w http.ResponseWriter, r *http.Request) {
	var req createOrganizationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	org, user, err := a.auth.CreateOrganization(r.Context(), auth.IdentityFromContext(r.Context()), req.Name)
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "organization.created", map[string]any{
		"organization_id": org.ID,
	})
	writeJSON(w, http.StatusCreated, map[string]any{"organization": org, "user": user})
}

func (a *API) inviteMember(w http.ResponseWriter, r *http.Request) {
	var req inviteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if _, err := a.auth.Invite(r.Context(), auth.IdentityFromContext(r.Context()), req.Email); err != nil {
		a.handleError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "organization.invite.sent", map[string]any{
		"invitee": req.Email,
	})
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "invited"})
}

func (a *API) acceptInvite(w http.ResponseWriter, r *http.Request) {
	var req acceptInviteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	user, err := a.auth.AcceptInvite(r.Context(), auth.IdentityFromContext(r.Context()), req.Token)
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "organization.invite.accepted", map[string]any{
		"organization_id": user.OrganizationID,
	})
	writeJSON(w, http.StatusOK, map[string]any{"user": user})
}

func (a *API) leaveOrganization(w http.ResponseWriter, r *http.Request) {
	user, err := a.auth.LeaveOrganization(r.Context(), auth.IdentityFromContext(r.Context()))
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "organization.left", nil)
	writeJSON(w, http.StatusOK, map[string]any{"user": user})
}
