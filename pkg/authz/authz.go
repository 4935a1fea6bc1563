// Package authz holds the principal resolved for a request and the role policies
// evaluated against it. Admin satisfies every policy; instructor and student are
// disjoint.
package authz

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/Skotchmaster/lms/pkg/apperr"
)

type Role string

const (
	RoleStudent    Role = "student"
	RoleInstructor Role = "instructor"
	RoleAdmin      Role = "admin"
)

func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	return r, r.Valid()
}

func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleInstructor, RoleAdmin:
		return true
	}
	return false
}

func (r Role) String() string { return string(r) }

type Principal struct {
	ID    uuid.UUID `json:"id"`
	Email string    `json:"email"`
	Role  Role      `json:"role"`
}

func (p Principal) IsAdmin() bool { return p.Role == RoleAdmin }

// Policy is the set of roles allowed through a guard. An empty policy admits any
// authenticated principal.
type Policy struct {
	Name  string
	roles map[Role]struct{}
}

func Roles(name string, roles ...Role) Policy {
	set := make(map[Role]struct{}, len(roles))
	for _, r := range roles {
		set[r] = struct{}{}
	}
	return Policy{Name: name, roles: set}
}

var (
	AnyAuthenticated  = Roles("authenticated")
	AdminOnly         = Roles("admin", RoleAdmin)
	InstructorOrAdmin = Roles("instructor_or_admin", RoleInstructor)
	StudentOrAdmin    = Roles("student_or_admin", RoleStudent)
)

func (p Policy) Allows(r Role) bool {
	if !r.Valid() {
		return false
	}
	if r == RoleAdmin || len(p.roles) == 0 {
		return true
	}
	_, ok := p.roles[r]
	return ok
}

var errForbidden = apperr.Forbidden("insufficient permissions")

func Authorize(p Principal, policy Policy) error {
	if !policy.Allows(p.Role) {
		return errForbidden
	}
	return nil
}

// RequireOwner admits the owner of a resource or an admin.
func RequireOwner(p Principal, ownerID uuid.UUID) error {
	if p.IsAdmin() {
		return nil
	}
	if p.ID == uuid.Nil || p.ID != ownerID {
		return apperr.Forbidden("you do not own this resource")
	}
	return nil
}

type ctxKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(ctxKey{}).(Principal)
	return p, ok
}
