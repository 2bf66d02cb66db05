package auth

import (
	"context"
	"fmt"
	"strings"
)

// Role is the closed set of account roles.
type Role uint8

const (
	RoleUnknown Role = iota
	RoleStudent
	RoleAdmin
)

func (r Role) String() string {
	switch r {
	case RoleStudent:
		return "student"
	case RoleAdmin:
		return "admin"
	default:
		return "unknown"
	}
}

// Valid reports whether r is one of the defined roles.
func (r Role) Valid() bool { return r == RoleStudent || r == RoleAdmin }

// ParseRole maps the stored/serialized name to a Role.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "student":
		return RoleStudent, nil
	case "admin":
		return RoleAdmin, nil
	default:
		return RoleUnknown, fmt.Errorf("auth: unknown role %q", s)
	}
}

func (r Role) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("auth: cannot marshal role %d", r)
	}
	return []byte(r.String()), nil
}

func (r *Role) UnmarshalText(b []byte) error {
	parsed, err := ParseRole(string(b))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// Principal is the authenticated identity resolved from a credential.
type Principal struct {
	ID    string `json:"id"`
	Role  Role   `json:"role"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Predicate decides whether a principal may proceed.
type Predicate func(Principal) bool

// HasRole matches principals with exactly role r.
func HasRole(r Role) Predicate {
	return func(p Principal) bool { return p.Role == r }
}

var (
	IsAdmin   = HasRole(RoleAdmin)
	IsStudent = HasRole(RoleStudent)
)

// AnyOf passes when at least one predicate passes.
func AnyOf(preds ...Predicate) Predicate {
	return func(p Principal) bool {
		for _, pred := range preds {
			if pred(p) {
				return true
			}
		}
		return false
	}
}

// AllOf passes when every predicate passes.
func AllOf(preds ...Predicate) Predicate {
	return func(p Principal) bool {
		for _, pred := range preds {
			if !pred(p) {
				return false
			}
		}
		return true
	}
}

// Authorize checks the principal stored in ctx against pred.
func Authorize(ctx context.Context, pred Predicate) (Principal, error) {
	p, ok := PrincipalFromContext(ctx)
	if !ok {
		return Principal{}, ErrUnauthenticated
	}
	if pred != nil && !pred(p) {
		return p, ErrForbidden
	}
	return p, nil
}
