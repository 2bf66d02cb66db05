package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"globalbangla.org/internal/auth"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequireRoleAllowsMatchingRole(t *testing.T) {
	handler := RequireRole(auth.IsAdmin)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/admin/dashboard", nil)
	req = req.WithContext(auth.ContextWithPrincipal(req.Context(), auth.Principal{ID: "a1", Role: auth.RoleAdmin}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestRequireRoleRejectsMissingRole(t *testing.T) {
	handler := RequireRole(auth.IsAdmin)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/admin/dashboard", nil)
	req = req.WithContext(auth.ContextWithPrincipal(req.Context(), auth.Principal{ID: "s1", Role: auth.RoleStudent}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
	if got := rr.Header().Get("WWW-Authenticate"); got == "" {
		t.Fatalf("expected WWW-Authenticate header set")
	}
}

func TestRequireRoleRejectsMissingUser(t *testing.T) {
	handler := RequireRole(auth.IsAdmin)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/admin/dashboard", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	if got := rr.Header().Get("WWW-Authenticate"); got == "" {
		t.Fatalf("expected WWW-Authenticate header set")
	}
}

func TestRequireRoleComposedPredicate(t *testing.T) {
	handler := RequireRole(auth.AnyOf(auth.IsAdmin, auth.IsStudent))(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(auth.ContextWithPrincipal(req.Context(), auth.Principal{ID: "s1", Role: auth.RoleStudent}))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func newTokens(t *testing.T) *auth.TokenMechanism {
	t.Helper()
	m, err := auth.NewTokenMechanism([]byte("test-secret-0123456789abcdef0123"))
	if err != nil {
		t.Fatalf("NewTokenMechanism: %v", err)
	}
	return m
}

func TestAuthenticateAcceptsCookieAndBearer(t *testing.T) {
	tokens := newTokens(t)
	cred, err := tokens.Issue(context.Background(), auth.Principal{ID: "s1", Role: auth.RoleStudent, Email: "s1@example.com"})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	var got auth.Principal
	handler := Authenticate(tokens)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = principalOf(r)
		if c, ok := auth.CredentialFromContext(r.Context()); !ok || c != cred.Token {
			t.Errorf("credential not attached to context")
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/user/dashboard", nil)
	req.AddCookie(&http.Cookie{Name: cookieName, Value: cred.Token})
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK || got.ID != "s1" {
		t.Fatalf("cookie auth failed: code=%d principal=%+v", rr.Code, got)
	}

	got = auth.Principal{}
	req = httptest.NewRequest(http.MethodGet, "/api/user/dashboard", nil)
	req.Header.Set("Authorization", "bearer "+cred.Token)
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK || got.ID != "s1" {
		t.Fatalf("bearer auth failed: code=%d principal=%+v", rr.Code, got)
	}
}

func TestAuthenticateRejects(t *testing.T) {
	tokens := newTokens(t)
	other, err := auth.NewTokenMechanism([]byte("another-secret-0123456789abcdef0"))
	if err != nil {
		t.Fatalf("NewTokenMechanism: %v", err)
	}
	foreign, err := other.Issue(context.Background(), auth.Principal{ID: "s1", Role: auth.RoleStudent})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	handler := Authenticate(tokens)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	cases := []struct {
		name   string
		header string
	}{
		{"missing", ""},
		{"wrong scheme", "Basic dXNlcjpwYXNz"},
		{"garbage", "Bearer not-a-token"},
		{"wrong secret", "Bearer " + foreign.Token},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/user/dashboard", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)
			if rr.Code != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d", rr.Code)
			}
			if rr.Header().Get("WWW-Authenticate") == "" {
				t.Fatal("expected WWW-Authenticate header")
			}
		})
	}
}
