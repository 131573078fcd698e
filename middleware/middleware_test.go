package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/xraph/bastion"
	"github.com/xraph/bastion/id"
	"github.com/xraph/bastion/store/memory"
)

type plainHasher struct{}

func (plainHasher) Hash(p string) (string, error) { return "plain:" + p, nil }

type stubVerifier map[string]bastion.Principal

func (s stubVerifier) VerifyAccessToken(raw string) (bastion.Principal, error) {
	p, ok := s[raw]
	if !ok {
		return bastion.Principal{}, bastion.ErrInvalidToken
	}
	return p, nil
}

func principalEcho() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := bastion.PrincipalFrom(r.Context())
		if !ok {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		_, _ = w.Write([]byte(p.UserID.String()))
	})
}

func TestAuthenticate(t *testing.T) {
	p := bastion.Principal{CompanyID: id.NewCompanyID(), UserID: id.NewUserID()}
	h := Authenticate(stubVerifier{"good": p})(principalEcho())

	cases := []struct {
		name   string
		header string
		status int
	}{
		{"no header", "", http.StatusNoContent},
		{"valid bearer", "Bearer good", http.StatusOK},
		{"lowercase scheme", "bearer good", http.StatusOK},
		{"unknown token", "Bearer bad", http.StatusUnauthorized},
		{"basic auth", "Basic dXNlcjpwYXNz", http.StatusUnauthorized},
		{"empty bearer", "Bearer  ", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tc.status {
				t.Fatalf("status = %d, want %d", rec.Code, tc.status)
			}
			if tc.status == http.StatusOK && rec.Body.String() != p.UserID.String() {
				t.Errorf("principal = %q", rec.Body.String())
			}
			if tc.status == http.StatusUnauthorized {
				var body map[string]string
				if err := json.NewDecoder(rec.Body).Decode(&body); err != nil || body["error"] != "unauthorized" {
					t.Errorf("body = %v, %v", body, err)
				}
			}
		})
	}
}

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = bastion.RequestIDFrom(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if len(seen) != 26 || rec.Header().Get(RequestIDHeader) != seen {
		t.Fatalf("generated id = %q, header %q", seen, rec.Header().Get(RequestIDHeader))
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "upstream-42")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if seen != "upstream-42" || rec.Header().Get(RequestIDHeader) != "upstream-42" {
		t.Fatalf("propagated id = %q", seen)
	}
}

func TestRateLimit(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(3, time.Minute, WithRateLimitClock(func() time.Time { return now }))
	h := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	hit := func(addr string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	for i := range 3 {
		if rec := hit("10.0.0.1:5000"); rec.Code != http.StatusOK {
			t.Fatalf("request %d: status %d", i, rec.Code)
		}
	}
	rec := hit("10.0.0.1:5001")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "20" && got != "21" {
		t.Errorf("Retry-After = %q, want about 20s", got)
	}
	if rec := hit("10.0.0.2:5000"); rec.Code != http.StatusOK {
		t.Errorf("other client limited: %d", rec.Code)
	}

	now = now.Add(21 * time.Second)
	if rec := hit("10.0.0.1:5000"); rec.Code != http.StatusOK {
		t.Errorf("after refill: status %d", rec.Code)
	}
}

func TestRateLimitTrustProxy(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute, WithTrustProxy())
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	if got := rl.clientKey(req); got != "203.0.113.7" {
		t.Fatalf("client key = %q", got)
	}
	plain := NewRateLimiter(1, time.Minute)
	if got := plain.clientKey(req); got != "192.0.2.1" {
		t.Fatalf("untrusted client key = %q", got)
	}
}

func TestRequireDecisions(t *testing.T) {
	mem := memory.New()
	eng, err := bastion.NewEngine(bastion.WithStore(mem))
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	admin, err := eng.SeedDevelopment(ctx, plainHasher{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	c, err := mem.GetCompany(ctx, admin.CompanyID)
	if err != nil {
		t.Fatal(err)
	}
	viewerRole, err := mem.GetRoleByName(ctx, c.ID, "Viewer")
	if err != nil {
		t.Fatal(err)
	}
	_, err = eng.SeedDevelopment(ctx, plainHasher{}, &bastion.DevSeed{
		Company: c.Name, Email: "viewer@example.com", Name: "Viewer", Password: "x", Role: viewerRole.Name,
	})
	if err != nil {
		t.Fatal(err)
	}
	viewerUser, err := mem.GetUserByEmail(ctx, "viewer@example.com")
	if err != nil {
		t.Fatal(err)
	}
	viewer := bastion.Principal{CompanyID: c.ID, UserID: viewerUser.ID}

	adminCtx := bastion.WithPrincipal(ctx, admin)
	viewerCtx := bastion.WithPrincipal(ctx, viewer)

	if err := requireAll(adminCtx, eng, []string{"rbac:read", "rbac:manage_access"}); err != nil {
		t.Errorf("admin denied: %v", err)
	}
	if err := requireAll(viewerCtx, eng, []string{"tasks:read", "rbac:read"}); !errors.Is(err, bastion.ErrAccessDenied) {
		t.Errorf("viewer all: %v", err)
	}
	if err := requireAny(viewerCtx, eng, []string{"rbac:read", "tasks:read"}); err != nil {
		t.Errorf("viewer any: %v", err)
	}
	if err := requireAny(viewerCtx, eng, []string{"rbac:read", "tasks:delete"}); !errors.Is(err, bastion.ErrAccessDenied) {
		t.Errorf("viewer any denied: %v", err)
	}
	if err := requireAll(ctx, eng, []string{"tasks:read"}); !errors.Is(err, bastion.ErrUnauthenticated) {
		t.Errorf("anonymous: %v", err)
	}

	if status, msg := denial(bastion.ErrUnauthenticated); status != http.StatusUnauthorized || msg != "unauthorized" {
		t.Errorf("denial(unauthenticated) = %d %q", status, msg)
	}
	if status, msg := denial(bastion.ErrAccessDenied); status != http.StatusForbidden || msg != "forbidden" {
		t.Errorf("denial(denied) = %d %q", status, msg)
	}
}
