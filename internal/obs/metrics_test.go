package obs

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
)

func TestCanonicalPath(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"", "/"},
		{"/metrics", "/metrics"},
		{"/api/boards/01HZX3K8Q6N2W7P9R4T5V6Y8ZA", "/api/boards/:id"},
		{"/api/boards/01HZX3K8Q6N2W7P9R4T5V6Y8ZA/notes", "/api/boards/:id/notes"},
		{"/api/notes/123e4567-e89b-12d3-a456-426614174000/archive", "/api/notes/:id/archive"},
		{"/api/boards/archive/notes?limit=10", "/api/boards/archive/notes"},
		{"/api/auth/callback/email", "/api/auth/callback/email"},
	}
	for _, tc := range cases {
		if got := CanonicalPath(tc.in); got != tc.want {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", tc.in, got, tc.want)
		}
	}
}

func scrape(t *testing.T) string {
	t.Helper()
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status %d", rec.Code)
	}
	return rec.Body.String()
}

func TestInstrumentUsesRoutePattern(t *testing.T) {
	Init()
	Init()

	r := chi.NewRouter()
	r.Use(Instrument)
	r.Get("/api/boards/{boardID}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/boards/b1", nil))
	if rec.Code != http.StatusTeapot {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	body := scrape(t)
	if !strings.Contains(body, `http_requests_total{method="GET",path="/api/boards/{boardID}",status="418"}`) {
		t.Fatalf("route pattern not used as path label:\n%s", body)
	}
}

func TestAuthCountersExported(t *testing.T) {
	Init()
	RecordMagicLink(OutcomeSent)
	RecordVerification(OutcomeExpired)
	RecordAuthDenial("cross_organization")
	RecordRateLimited("signin_ip")

	body := scrape(t)
	for _, want := range []string{
		`auth_magic_links_total{outcome="sent"}`,
		`auth_verifications_total{outcome="expired"}`,
		`auth_denials_total{reason="cross_organization"}`,
		`http_rate_limited_total{scope="signin_ip"}`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("missing %s in metrics output", want)
		}
	}
}

func TestBuildInfo(t *testing.T) {
	info := ResolveBuildInfo("1.2.3", "abc123")
	if info.Commit != "abc123" || info.Version != "1.2.3" || info.GoVersion == "" {
		t.Fatalf("unexpected build info %+v", info)
	}
	InitBuildInfo(info)
	InitBuildInfo(info)
	if body := scrape(t); !strings.Contains(body, `pinboard_build_info{commit="abc123",go_version=`) {
		t.Fatalf("build info not exported:\n%s", body)
	}
}
