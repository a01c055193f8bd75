package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"pinboard.dev/internal/auth"
	"pinboard.dev/internal/board"
	"pinboard.dev/internal/obs"
)

const (
	serviceName  = "pinboard-api"
	maxBodyBytes = 1 << 20
)

type readinessChecker interface {
	Check(ctx context.Context) error
}

// ReadyProbe pings the database when one is configured.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// API is the HTTP layer.
type API struct {
	auth    *auth.Service
	boards  *board.Service
	ready   readinessChecker
	limiter RateLimiter
	logger  *zap.Logger
	version string
	origins []string
	secure  bool
	proxies []netip.Prefix
}

// Option configures API.
type Option func(*API)

// WithReadiness sets the probe behind /readyz.
func WithReadiness(r readinessChecker) Option {
	return func(a *API) {
		if r != nil {
			a.ready = r
		}
	}
}

// WithRateLimiter guards sign-in with l.
func WithRateLimiter(l RateLimiter) Option {
	return func(a *API) { a.limiter = l }
}

// WithLogger overrides the request logger.
func WithLogger(l *zap.Logger) Option {
	return func(a *API) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithVersion sets the version reported by /healthz.
func WithVersion(v string) Option {
	return func(a *API) { a.version = v }
}

// WithAllowedOrigins lists extra origins allowed by CORS besides the base URL.
func WithAllowedOrigins(origins []string) Option {
	return func(a *API) { a.origins = append(a.origins, origins...) }
}

// WithTrustedProxies lists the reverse proxies whose X-Forwarded-For is believed.
func WithTrustedProxies(prefixes []netip.Prefix) Option {
	return func(a *API) { a.proxies = append(a.proxies, prefixes...) }
}

// WithSecureCookies sets the Secure attribute on session cookies. Without it
// the attribute follows the scheme of the auth service base URL.
func WithSecureCookies(secure bool) Option {
	return func(a *API) { a.secure = secure }
}

// New wires the HTTP API over the auth and board services.
func New(authSvc *auth.Service, boards *board.Service, opts ...Option) (*API, error) {
	if authSvc == nil || boards == nil {
		return nil, errors.New("httpapi: auth and board services are required")
	}
	a := &API{
		auth:    authSvc,
		boards:  boards,
		ready:   ReadyProbe{},
		logger:  obs.Logger().Named("http"),
		version: "dev",
		origins: []string{authSvc.BaseURL()},
		secure:  strings.HasPrefix(authSvc.BaseURL(), "https://"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Handler returns the routed and instrumented http.Handler.
func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(ClientIP(a.proxies))
	r.Use(LoggingJSON(a.logger))
	r.Use(middleware.Recoverer)
	r.Use(obs.Instrument)
	r.Use(SecurityHeaders)
	r.Use(CORS(a.origins))
	r.Use(MaxBodyBytes(maxBodyBytes))

	r.Get("/healthz", a.Healthz)
	r.Get("/readyz", a.Ready)
	r.Handle("/metrics", obs.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(a.withSession)

		r.Route("/auth", func(r chi.Router) {
			r.Post("/signin", a.handleSignin)
			r.Get("/callback/email", a.handleCallback)
			r.Post("/signout", a.handleSignout)
			r.Get("/session", a.handleSession)
		})

		r.Post("/organizations", a.createOrganization)
		r.Post("/organizations/invites", a.inviteMember)
		r.Post("/organizations/leave", a.leaveOrganization)
		r.Post("/invite/accept", a.acceptInvite)

		r.Get("/boards", a.listBoards)
		r.Post("/boards", a.createBoard)
		r.Get("/boards/archive/notes", a.listArchivedNotes)
		r.Get("/boards/{boardID}", a.getBoard)
		r.Get("/boards/{boardID}/notes", a.listNotes)
		r.Post("/boards/{boardID}/notes", a.createNote)

		r.Post("/notes/{noteID}/archive", a.archiveNote)
		r.Post("/notes/{noteID}/restore", a.restoreNote)
		r.Delete("/notes/{noteID}", a.deleteNote)
		r.Patch("/notes/{noteID}/items/{itemID}", a.toggleItem)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.version,
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.ready.Check(r.Context()); err != nil {
		a.logger.Warn("readiness check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
