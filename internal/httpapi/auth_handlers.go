package httpapi

import (
	"mime"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"pinboard.dev/internal/audit"
	"pinboard.dev/internal/auth"
	"pinboard.dev/internal/obs"
)

const verificationErrorPath = "/auth/error?error=Verification"

type signinRequest struct {
	Email       string `json:"email"`
	CallbackURL string `json:"callbackUrl"`
}

func (a *API) handleSignin(w http.ResponseWriter, r *http.Request) {
	req, err := readSignin(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if !a.admit(w, r, "ip", "ip:"+clientIP(r)) {
		return
	}
	email, err := auth.NormalizeEmail(req.Email)
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	if !a.admit(w, r, "email", "email:"+email) {
		return
	}
	if err := a.auth.Issue(r.Context(), email, req.CallbackURL); err != nil {
		a.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "check_email"})
}

func readSignin(r *http.Request) (signinRequest, error) {
	var req signinRequest
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "application/x-www-form-urlencoded" {
		if err := r.ParseForm(); err != nil {
			return req, err
		}
		req.Email = r.PostForm.Get("email")
		req.CallbackURL = r.PostForm.Get("callbackUrl")
		return req, nil
	}
	if err := decodeJSON(r, &req); err != nil {
		return req, err
	}
	return req, nil
}

// admit applies the sign-in limiter and writes 429 when the key is exhausted.
func (a *API) admit(w http.ResponseWriter, r *http.Request, scope, key string) bool {
	if a.limiter == nil {
		return true
	}
	d, err := a.limiter.Allow(r.Context(), key)
	if err != nil {
		a.logger.Warn("rate limiter unavailable", zap.String("scope", scope), zap.Error(err))
		return true
	}
	if d.Allowed {
		return true
	}
	obs.RecordRateLimited(scope)
	secs := int(d.RetryAfter.Seconds())
	if secs < 1 {
		secs = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(secs))
	writeError(w, r, http.StatusTooManyRequests, "Too many requests")
	return false
}

func (a *API) handleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	email := q.Get("email")
	if email == "" {
		email = q.Get("identifier")
	}
	sess, cookie, err := a.auth.Verify(r.Context(), q.Get("token"), email)
	if err != nil {
		if auth.IsAuthenticationFailure(err) {
			http.Redirect(w, r, a.auth.BaseURL()+verificationErrorPath, http.StatusFound)
			return
		}
		a.handleError(w, r, err)
		return
	}
	a.setSessionCookie(w, cookie, sess.ExpiresAt)

	ctx := auth.ContextWithIdentity(r.Context(), auth.Authenticated(sess.UserID))
	_ = audit.LogEvent(ctx, "auth.signin", map[string]any{"expires_at": sess.ExpiresAt})

	http.Redirect(w, r, auth.ResolveRedirect(q.Get("callbackUrl"), a.auth.BaseURL()), http.StatusFound)
}

func (a *API) handleSignout(w http.ResponseWriter, r *http.Request) {
	if token, ok := auth.SessionTokenFromContext(r.Context()); ok {
		if err := a.auth.SignOut(r.Context(), token); err != nil {
			a.handleError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "auth.signout", nil)
	}
	a.clearSessionCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleSession(w http.ResponseWriter, r *http.Request) {
	user, err := a.auth.CurrentUser(r.Context(), auth.IdentityFromContext(r.Context()))
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": user})
}
