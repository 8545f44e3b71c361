package domain

// Role is the caller's resolved role, supplied by the auth collaborator via
// JWT claims. The core trusts the resolution and applies its own
// ownership/role checks on top.
type Role string

const (
	RoleManager Role = "MANAGER"
	RoleAdmin   Role = "ADMIN"
)

// Valid reports whether the role is one the core recognizes.
func (r Role) Valid() bool {
	return r == RoleManager || r == RoleAdmin
}
