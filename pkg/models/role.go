package models

import "fmt"

// Role identifies a caller's privilege level for tool access.
type Role string

const (
	RoleReadonly Role = "readonly"
	RoleDev      Role = "dev"
	RoleOperator Role = "operator"
	RoleAdmin    Role = "admin"
)

var roleLevels = map[Role]int{
	RoleReadonly: 0,
	RoleDev:      1,
	RoleOperator: 2,
	RoleAdmin:    3,
}

// Level returns the privilege level of the role (0..3).
// Unknown roles map to -1 so they never satisfy a requirement.
func (r Role) Level() int {
	if lvl, ok := roleLevels[r]; ok {
		return lvl
	}
	return -1
}

// Valid reports whether the role is one of the four known roles.
func (r Role) Valid() bool {
	_, ok := roleLevels[r]
	return ok
}

// AtLeast reports whether the role has at least the privilege of other.
func (r Role) AtLeast(other Role) bool {
	return r.Valid() && other.Valid() && r.Level() >= other.Level()
}

// ParseRole validates a role string, returning an error for unknown values.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("invalid role: %q", s)
	}
	return r, nil
}

// AllRoles returns the known roles ordered by privilege.
func AllRoles() []Role {
	return []Role{RoleReadonly, RoleDev, RoleOperator, RoleAdmin}
}
