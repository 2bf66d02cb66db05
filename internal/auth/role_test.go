package auth

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
)

func TestParseRole(t *testing.T) {
	cases := []struct {
		in   string
		want Role
		ok   bool
	}{
		{"student", RoleStudent, true},
		{" Admin ", RoleAdmin, true},
		{"superuser", RoleUnknown, false},
		{"", RoleUnknown, false},
	}
	for _, tc := range cases {
		got, err := ParseRole(tc.in)
		if (err == nil) != tc.ok {
			t.Fatalf("ParseRole(%q) err=%v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("ParseRole(%q)=%s want %s", tc.in, got, tc.want)
		}
	}
}

func TestPrincipalJSONUsesRoleNames(t *testing.T) {
	data, err := json.Marshal(Principal{ID: "u1", Role: RoleAdmin, Name: "Asha"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out["role"] != "admin" {
		t.Fatalf("role = %v", out["role"])
	}

	var back Principal
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("round trip: %v", err)
	}
	if back.Role != RoleAdmin {
		t.Fatalf("role after round trip = %s", back.Role)
	}
	if _, err := json.Marshal(Principal{ID: "u2"}); err == nil {
		t.Fatalf("expected unknown role to fail marshalling")
	}
}

func TestAuthorize(t *testing.T) {
	if _, err := Authorize(context.Background(), IsAdmin); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}

	ctx := ContextWithPrincipal(context.Background(), Principal{ID: "s1", Role: RoleStudent})
	if _, err := Authorize(ctx, IsAdmin); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	p, err := Authorize(ctx, AnyOf(IsAdmin, IsStudent))
	if err != nil || p.ID != "s1" {
		t.Fatalf("AnyOf: p=%+v err=%v", p, err)
	}
	if _, err := Authorize(ctx, AllOf(IsStudent, IsAdmin)); !errors.Is(err, ErrForbidden) {
		t.Fatalf("AllOf should reject, got %v", err)
	}
}

func TestCredentialContext(t *testing.T) {
	ctx := ContextWithCredential(context.Background(), "")
	if _, ok := CredentialFromContext(ctx); ok {
		t.Fatalf("empty credential should not be stored")
	}
	ctx = ContextWithCredential(ctx, "tok")
	if v, ok := CredentialFromContext(ctx); !ok || v != "tok" {
		t.Fatalf("credential = %q ok=%v", v, ok)
	}
}
