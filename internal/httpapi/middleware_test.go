package httpapi

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestSigninRateLimitExceeded(t *testing.T) {
	limiter := NewMemoryLimiter(2, time.Minute)
	t.Cleanup(func() { _ = limiter.Close() })
	c := newTestAPI(t, WithRateLimiter(limiter))

	for i, email := range []string{"a@example.com", "b@example.com"} {
		if rr := c.do(http.MethodPost, "/api/auth/signin", map[string]string{"email": email}, ""); rr.Code != http.StatusOK {
			t.Fatalf("call %d status=%d", i, rr.Code)
		}
	}
	rr := c.do(http.MethodPost, "/api/auth/signin", map[string]string{"email": "c@example.com"}, "")
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header")
	}
	body := decode[map[string]any](t, rr)
	if body["error"] == "" || body["request_id"] == "" {
		t.Fatalf("unexpected body %v", body)
	}
}

func signinFrom(c *apiClient, remoteAddr, forwardedFor, email string) int {
	req := httptest.NewRequest(http.MethodPost, "/api/auth/signin", strings.NewReader(`{"email":"`+email+`"}`))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = remoteAddr
	if forwardedFor != "" {
		req.Header.Set("X-Forwarded-For", forwardedFor)
	}
	rr := httptest.NewRecorder()
	c.handler.ServeHTTP(rr, req)
	return rr.Code
}

func TestSigninRateLimitPerEmail(t *testing.T) {
	limiter := NewMemoryLimiter(2, time.Minute)
	t.Cleanup(func() { _ = limiter.Close() })
	c := newTestAPI(t, WithRateLimiter(limiter))

	for _, peer := range []string{"198.51.100.1:4000", "198.51.100.2:4000"} {
		if code := signinFrom(c, peer, "", "a@example.com"); code != http.StatusOK {
			t.Fatalf("signin from %s status=%d", peer, code)
		}
	}
	if code := signinFrom(c, "198.51.100.3:4000", "", "a@example.com"); code != http.StatusTooManyRequests {
		t.Fatalf("third signin status=%d, want email bucket exhausted", code)
	}
	if len(c.box.msgs) != 2 {
		t.Fatalf("mails sent=%d, want 2", len(c.box.msgs))
	}
}

func TestSigninRateLimitIgnoresForwardedForFromUntrustedPeer(t *testing.T) {
	limiter := NewMemoryLimiter(2, time.Minute)
	t.Cleanup(func() { _ = limiter.Close() })
	c := newTestAPI(t, WithRateLimiter(limiter))

	allowed := 0
	for i := 0; i < 20; i++ {
		email := fmt.Sprintf("user%d@example.com", i)
		if signinFrom(c, "192.0.2.10:5555", fmt.Sprintf("10.0.0.%d", i), email) == http.StatusOK {
			allowed++
		}
	}
	if allowed != 2 {
		t.Fatalf("allowed=%d, want 2: rotating X-Forwarded-For must not open new buckets", allowed)
	}
}

func TestSigninRateLimitBehindTrustedProxy(t *testing.T) {
	limiter := NewMemoryLimiter(1, time.Minute)
	t.Cleanup(func() { _ = limiter.Close() })
	c := newTestAPI(t, WithRateLimiter(limiter),
		WithTrustedProxies([]netip.Prefix{netip.MustParsePrefix("10.0.0.0/8")}))

	if code := signinFrom(c, "10.0.0.2:443", "203.0.113.7", "a@example.com"); code != http.StatusOK {
		t.Fatalf("first client status=%d", code)
	}
	if code := signinFrom(c, "10.0.0.2:443", "203.0.113.8", "b@example.com"); code != http.StatusOK {
		t.Fatalf("second client behind the same proxy status=%d", code)
	}
	if code := signinFrom(c, "10.0.0.3:443", "203.0.113.7", "c@example.com"); code != http.StatusTooManyRequests {
		t.Fatalf("repeat client status=%d, want 429", code)
	}
}

func TestResolveClientIP(t *testing.T) {
	trusted := []netip.Prefix{netip.MustParsePrefix("10.0.0.0/8")}
	cases := []struct {
		name   string
		remote string
		xff    []string
		want   string
	}{
		{"untrusted peer ignores header", "192.0.2.10:5555", []string{"203.0.113.1"}, "192.0.2.10"},
		{"trusted peer uses last untrusted hop", "10.0.0.1:80", []string{"198.51.100.9, 203.0.113.1, 10.0.0.5"}, "203.0.113.1"},
		{"multiple headers are joined", "10.0.0.1:80", []string{"198.51.100.9", "203.0.113.2"}, "203.0.113.2"},
		{"all hops trusted", "10.0.0.1:80", []string{"10.1.1.1"}, "10.0.0.1"},
		{"malformed hop", "10.0.0.1:80", []string{"bogus"}, "10.0.0.1"},
		{"no header", "10.0.0.1:80", nil, "10.0.0.1"},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = tc.remote
		for _, v := range tc.xff {
			req.Header.Add("X-Forwarded-For", v)
		}
		if got := resolveClientIP(req, trusted); got != tc.want {
			t.Fatalf("%s: got %q, want %q", tc.name, got, tc.want)
		}
	}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:80"
	req.Header.Set("X-Forwarded-For", "203.0.113.1")
	if got := resolveClientIP(req, nil); got != "10.0.0.1" {
		t.Fatalf("no trusted proxies: got %q", got)
	}
}

func TestLoggingJSONEmitsStructuredEntry(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	handler := RequestID(LoggingJSON(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("ok"))
	})))

	req := httptest.NewRequest(http.MethodGet, "/log-test", nil)
	req.Header.Set("User-Agent", "middleware-test")
	req.Header.Set(requestIDHeader, "req-42")
	req.RemoteAddr = "127.0.0.1:1234"

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Header().Get(requestIDHeader) != "req-42" {
		t.Fatalf("request id not propagated: %q", rr.Header().Get(requestIDHeader))
	}
	entries := logs.FilterMessage("request_complete").All()
	if len(entries) != 1 {
		t.Fatalf("expected one log entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	for _, key := range []string{"request_id", "method", "path", "status", "duration_ms"} {
		if _, ok := fields[key]; !ok {
			t.Fatalf("expected key %q in log entry", key)
		}
	}
	if fields["status"] != int64(http.StatusTeapot) || fields["request_id"] != "req-42" {
		t.Fatalf("unexpected fields: %v", fields)
	}
}

func TestRequestIDRejectsUnsafeValues(t *testing.T) {
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(requestIDHeader, "bad id\nwith newline")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	got := rr.Header().Get(requestIDHeader)
	if got == "" || got == "bad id\nwith newline" {
		t.Fatalf("unexpected request id %q", got)
	}
}

func TestCORSAllowsConfiguredOrigin(t *testing.T) {
	handler := CORS([]string{"https://app.example/"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodOptions, "/api/boards", nil)
	req.Header.Set("Origin", "https://app.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("preflight status=%d", rr.Code)
	}
	if rr.Header().Get("Access-Control-Allow-Origin") != "https://app.example" ||
		rr.Header().Get("Access-Control-Allow-Credentials") != "true" {
		t.Fatalf("unexpected headers %v", rr.Header())
	}

	req = httptest.NewRequest(http.MethodGet, "/api/boards", nil)
	req.Header.Set("Origin", "https://evil.example")
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatal("foreign origin must not be allowed")
	}
}

func TestSecurityHeaders(t *testing.T) {
	c := newTestAPI(t)
	rr := c.do(http.MethodGet, "/healthz", nil, "")
	for _, h := range []string{"X-Content-Type-Options", "X-Frame-Options", "Content-Security-Policy"} {
		if rr.Header().Get(h) == "" {
			t.Fatalf("missing %s", h)
		}
	}
}
