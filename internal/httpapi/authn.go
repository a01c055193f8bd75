package httpapi

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"pinboard.dev/internal/auth"
)

const sessionCookie = "session"

// withSession resolves the session cookie into an auth.Identity. Requests
// without a live session continue as anonymous; handlers decide whether that
// is acceptable.
func (a *API) withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie(sessionCookie)
		if err != nil || c.Value == "" {
			next.ServeHTTP(w, r.WithContext(auth.ContextWithIdentity(r.Context(), auth.Anonymous())))
			return
		}
		id, err := a.auth.Resolve(r.Context(), c.Value)
		if err != nil {
			a.logger.Error("session lookup failed",
				zap.String("request_id", RequestIDFromContext(r.Context())),
				zap.Error(err))
			writeError(w, r, http.StatusInternalServerError, "Internal server error")
			return
		}
		ctx := auth.ContextWithIdentity(r.Context(), id)
		ctx = auth.ContextWithSessionToken(ctx, c.Value)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *API) setSessionCookie(w http.ResponseWriter, value string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		MaxAge:   int(time.Until(expires).Seconds()),
		HttpOnly: true,
		Secure:   a.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (a *API) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   a.secure,
		SameSite: http.SameSiteLaxMode,
	})
}
