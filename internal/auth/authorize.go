package auth

import "fmt"

type requirementKind uint8

const (
	requireRole requirementKind = iota + 1
	requirePermission
)

// Requirement is what an operation demands of the caller: either a role or a permission.
// The zero value is satisfied by nobody.
type Requirement struct {
	kind requirementKind
	name string
}

// RequireRole demands that the caller's role equals name.
func RequireRole(name string) Requirement {
	return Requirement{kind: requireRole, name: name}
}

// RequirePermission demands that the caller's token carries the named permission.
func RequirePermission(name string) Requirement {
	return Requirement{kind: requirePermission, name: name}
}

func (r Requirement) String() string {
	switch r.kind {
	case requireRole:
		return "role " + r.name
	case requirePermission:
		return "permission " + r.name
	default:
		return "nothing"
	}
}

// Authorize checks claims against req using only what the token carries.
func Authorize(claims *Claims, req Requirement) error {
	if claims == nil {
		return ErrUnauthenticated
	}
	switch req.kind {
	case requireRole:
		if req.name != "" && claims.Role == req.name {
			return nil
		}
	case requirePermission:
		if req.name != "" && claims.HasPermission(req.name) {
			return nil
		}
	}
	return fmt.Errorf("%w: requires %s", ErrUnauthorized, req)
}

// Policy maps operation names to their requirement.
type Policy map[string]Requirement

// Authorize evaluates the requirement registered for op. Unknown operations are denied.
func (p Policy) Authorize(claims *Claims, op string) error {
	if claims == nil {
		return ErrUnauthenticated
	}
	req, ok := p[op]
	if !ok {
		return fmt.Errorf("%w: no policy for %s", ErrUnauthorized, op)
	}
	return Authorize(claims, req)
}

// Requirement returns the requirement registered for op.
func (p Policy) Requirement(op string) (Requirement, bool) {
	req, ok := p[op]
	return req, ok
}
