package auth

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"pinboard.dev/internal/mail"
)

const testBaseURL = "https://app.example.com"

type outbox struct {
	mu   sync.Mutex
	msgs []mail.Message
	err  error
}

func (o *outbox) Send(_ context.Context, msg mail.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return o.err
	}
	o.msgs = append(o.msgs, msg)
	return nil
}

func (o *outbox) last(t *testing.T) mail.Message {
	t.Helper()
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.msgs) == 0 {
		t.Fatal("no mail sent")
	}
	return o.msgs[len(o.msgs)-1]
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestService(t *testing.T, opts ...ServiceOption) (*Service, *MemoryStore, *outbox, *clock) {
	t.Helper()
	store := NewMemoryStore()
	box := &outbox{}
	clk := &clock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
	store.now = clk.Now
	base := []ServiceOption{
		WithSecret("test-secret"),
		WithBaseURL(testBaseURL),
		WithFrom("Pinboard <no-reply@example.com>"),
		WithClock(clk.Now),
		WithLogger(zap.NewNop()),
	}
	svc, err := NewService(store, box, append(base, opts...)...)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc, store, box, clk
}

// linkParams extracts token and email from the last magic link sent.
func linkParams(t *testing.T, box *outbox) (token, email, callback string) {
	t.Helper()
	u, err := url.Parse(box.last(t).Link)
	if err != nil {
		t.Fatalf("parse link: %v", err)
	}
	if u.Path != "/api/auth/callback/email" {
		t.Fatalf("unexpected link path %q", u.Path)
	}
	q := u.Query()
	return q.Get("token"), q.Get("email"), q.Get("callbackUrl")
}

func signIn(t *testing.T, svc *Service, box *outbox, email string) (Identity, string) {
	t.Helper()
	ctx := context.Background()
	if err := svc.Issue(ctx, email, ""); err != nil {
		t.Fatalf("Issue: %v", err)
	}
	token, addr, _ := linkParams(t, box)
	sess, cookie, err := svc.Verify(ctx, token, addr)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	return Authenticated(sess.UserID), cookie
}

func TestNewServiceRequiresSecretAndBaseURL(t *testing.T) {
	store := NewMemoryStore()
	if _, err := NewService(store, &outbox{}, WithBaseURL(testBaseURL)); err == nil {
		t.Fatal("expected error without secret")
	}
	if _, err := NewService(store, &outbox{}, WithSecret("s")); err == nil {
		t.Fatal("expected error without base url")
	}
	if _, err := NewService(store, &outbox{}, WithSecret("s"), WithBaseURL("not a url")); err == nil {
		t.Fatal("expected error for invalid base url")
	}
	if _, err := NewService(nil, &outbox{}, WithSecret("s"), WithBaseURL(testBaseURL)); err == nil {
		t.Fatal("expected error without store")
	}
}

func TestIssueStoresOnlyHash(t *testing.T) {
	svc, store, box, clk := newTestService(t)
	ctx := context.Background()

	if err := svc.Issue(ctx, "  Ada@Example.com ", "/boards"); err != nil {
		t.Fatalf("Issue: %v", err)
	}
	token, email, callback := linkParams(t, box)
	if email != "ada@example.com" {
		t.Fatalf("email not normalized: %q", email)
	}
	if callback != "/boards" {
		t.Fatalf("callback not carried: %q", callback)
	}
	if len(token) != 64 {
		t.Fatalf("token should be 64 hex chars, got %d", len(token))
	}
	if box.last(t).To != "ada@example.com" {
		t.Fatalf("unexpected recipient %q", box.last(t).To)
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.tokens) != 1 {
		t.Fatalf("expected one stored token, got %d", len(store.tokens))
	}
	for _, tok := range store.tokens {
		if tok.TokenHash == token {
			t.Fatal("raw token must not be stored")
		}
		if tok.TokenHash != svc.hashToken(token) {
			t.Fatal("stored hash does not match token")
		}
		if !tok.ExpiresAt.Equal(clk.Now().Add(24 * time.Hour)) {
			t.Fatalf("unexpected expiry %v", tok.ExpiresAt)
		}
	}
}

func TestIssueRejectsMalformedEmail(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	for _, email := range []string{"", "   ", "not-an-email", "Ada <ada@example.com>"} {
		if err := svc.Issue(context.Background(), email, ""); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("Issue(%q) err=%v, want ErrInvalidInput", email, err)
		}
	}
}

func TestIssueSwallowsTransportFailure(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	svc, store, box, _ := newTestService(t, WithLogger(zap.New(core)))
	box.err = errors.New("smtp down")

	if err := svc.Issue(context.Background(), "ada@example.com", ""); err != nil {
		t.Fatalf("transport failure must not surface, got %v", err)
	}
	if logs.FilterMessage("magic link delivery failed").Len() != 1 {
		t.Fatalf("expected delivery failure to be logged")
	}
	if len(store.tokens) != 1 {
		t.Fatalf("token should still be stored")
	}
}

func TestIssueDoesNotRevealExistingUsers(t *testing.T) {
	svc, _, box, _ := newTestService(t)
	signIn(t, svc, box, "known@example.com")

	errKnown := svc.Issue(context.Background(), "known@example.com", "")
	errUnknown := svc.Issue(context.Background(), "unknown@example.com", "")
	if errKnown != nil || errUnknown != nil {
		t.Fatalf("expected identical nil results, got %v / %v", errKnown, errUnknown)
	}
}

func TestVerifyCreatesUserAndSession(t *testing.T) {
	svc, store, box, clk := newTestService(t)
	ctx := context.Background()

	if err := svc.Issue(ctx, "ada@example.com", ""); err != nil {
		t.Fatalf("Issue: %v", err)
	}
	token, email, _ := linkParams(t, box)
	sess, cookie, err := svc.Verify(ctx, token, email)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if cookie == "" || sess.ID == cookie {
		t.Fatal("session id must be the hash of the cookie")
	}
	if !sess.ExpiresAt.Equal(clk.Now().Add(DefaultSessionTTL)) {
		t.Fatalf("unexpected session expiry %v", sess.ExpiresAt)
	}
	user, err := store.Users(ctx).FindByEmail(ctx, "ada@example.com")
	if err != nil {
		t.Fatalf("user not created: %v", err)
	}
	if user.EmailVerified == nil || user.HasOrganization() {
		t.Fatalf("unexpected user state %+v", user)
	}

	id, err := svc.Resolve(ctx, cookie)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if uid, ok := id.UserID(); !ok || uid != user.ID {
		t.Fatalf("Resolve returned %v, want user %s", id, user.ID)
	}

	// second sign-in reuses the same user
	id2, _ := signIn(t, svc, box, "ADA@example.com")
	if uid, _ := id2.UserID(); uid != user.ID {
		t.Fatalf("second sign-in created a new user %s", uid)
	}
}

func TestVerifyIsSingleUse(t *testing.T) {
	svc, _, box, _ := newTestService(t)
	ctx := context.Background()
	if err := svc.Issue(ctx, "ada@example.com", ""); err != nil {
		t.Fatalf("Issue: %v", err)
	}
	token, email, _ := linkParams(t, box)
	if _, _, err := svc.Verify(ctx, token, email); err != nil {
		t.Fatalf("first Verify: %v", err)
	}
	if _, _, err := svc.Verify(ctx, token, email); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("replay err=%v, want ErrInvalidToken", err)
	}
}

func TestVerifyConcurrentRedemption(t *testing.T) {
	svc, store, box, _ := newTestService(t)
	ctx := context.Background()
	if err := svc.Issue(ctx, "ada@example.com", ""); err != nil {
		t.Fatalf("Issue: %v", err)
	}
	token, email, _ := linkParams(t, box)

	const workers = 16
	var (
		wg      sync.WaitGroup
		ok      atomic.Int32
		invalid atomic.Int32
		start   = make(chan struct{})
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, _, err := svc.Verify(ctx, token, email)
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, ErrInvalidToken):
				invalid.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	if ok.Load() != 1 || invalid.Load() != workers-1 {
		t.Fatalf("ok=%d invalid=%d, want exactly one success", ok.Load(), invalid.Load())
	}
	if len(store.sessions) != 1 {
		t.Fatalf("expected exactly one session, got %d", len(store.sessions))
	}
}

func TestVerifyExpiredTokenIsConsumed(t *testing.T) {
	svc, store, box, clk := newTestService(t)
	ctx := context.Background()
	if err := svc.Issue(ctx, "ada@example.com", ""); err != nil {
		t.Fatalf("Issue: %v", err)
	}
	token, email, _ := linkParams(t, box)
	clk.Advance(24*time.Hour + time.Second)

	if _, _, err := svc.Verify(ctx, token, email); !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("err=%v, want ErrExpiredToken", err)
	}
	if len(store.tokens) != 0 {
		t.Fatal("expired token should be removed on redemption")
	}
	if _, _, err := svc.Verify(ctx, token, email); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("second attempt err=%v, want ErrInvalidToken", err)
	}
	if len(store.users) != 0 {
		t.Fatal("no user should be created for an expired token")
	}
}

func TestVerifyRejectsWrongEmailOrToken(t *testing.T) {
	svc, _, box, _ := newTestService(t)
	ctx := context.Background()
	if err := svc.Issue(ctx, "ada@example.com", ""); err != nil {
		t.Fatalf("Issue: %v", err)
	}
	token, _, _ := linkParams(t, box)

	cases := []struct{ token, email string }{
		{token, "eve@example.com"},
		{"deadbeef", "ada@example.com"},
		{"", "ada@example.com"},
		{token, ""},
	}
	for _, tc := range cases {
		if _, _, err := svc.Verify(ctx, tc.token, tc.email); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("Verify(%q,%q) err=%v, want ErrInvalidToken", tc.token, tc.email, err)
		}
	}
	// the genuine pair still works: failed attempts consume nothing
	if _, _, err := svc.Verify(ctx, token, "ada@example.com"); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}

func TestResolveAnonymousCases(t *testing.T) {
	svc, _, box, clk := newTestService(t)
	ctx := context.Background()

	for _, cookie := range []string{"", "   ", "unknown"} {
		id, err := svc.Resolve(ctx, cookie)
		if err != nil || !id.IsAnonymous() {
			t.Fatalf("Resolve(%q)=%v,%v want anonymous", cookie, id, err)
		}
	}

	_, cookie := signIn(t, svc, box, "ada@example.com")
	clk.Advance(DefaultSessionTTL)
	id, err := svc.Resolve(ctx, cookie)
	if err != nil || !id.IsAnonymous() {
		t.Fatalf("expired session resolved to %v, %v", id, err)
	}
}

func TestSignOut(t *testing.T) {
	svc, _, box, _ := newTestService(t)
	ctx := context.Background()
	_, cookie := signIn(t, svc, box, "ada@example.com")

	if err := svc.SignOut(ctx, cookie); err != nil {
		t.Fatalf("SignOut: %v", err)
	}
	id, _ := svc.Resolve(ctx, cookie)
	if !id.IsAnonymous() {
		t.Fatal("session should be gone after sign out")
	}
	if err := svc.SignOut(ctx, cookie); err != nil {
		t.Fatalf("second SignOut should be a no-op, got %v", err)
	}
}

func TestPurgeExpired(t *testing.T) {
	svc, store, box, clk := newTestService(t)
	ctx := context.Background()
	signIn(t, svc, box, "ada@example.com")
	if err := svc.Issue(ctx, "bob@example.com", ""); err != nil {
		t.Fatalf("Issue: %v", err)
	}

	clk.Advance(DefaultSessionTTL + time.Hour)
	tokens, sessions, err := svc.PurgeExpired(ctx)
	if err != nil {
		t.Fatalf("PurgeExpired: %v", err)
	}
	if tokens != 1 || sessions != 1 {
		t.Fatalf("purged tokens=%d sessions=%d, want 1/1", tokens, sessions)
	}
	if len(store.tokens) != 0 || len(store.sessions) != 0 {
		t.Fatal("store should be empty after purge")
	}
}

func TestNormalizeEmail(t *testing.T) {
	got, err := NormalizeEmail(" Ada.Lovelace@Example.COM ")
	if err != nil || got != "ada.lovelace@example.com" {
		t.Fatalf("NormalizeEmail=%q,%v", got, err)
	}
	if _, err := NormalizeEmail(strings.Repeat("a", 250) + "@x.io"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("overlong email should be rejected, got %v", err)
	}
}
