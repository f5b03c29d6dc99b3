package models

import "fmt"

// Role is a platform permission level. Roles form a total order.
type Role string

const (
	RoleViewer    Role = "viewer"
	RoleDeveloper Role = "developer"
	RoleQAAnalyst Role = "qa_analyst"
	RoleQALead    Role = "qa_lead"
	RoleAdmin     Role = "admin"
)

var roleLevels = map[Role]int{
	RoleViewer:    1,
	RoleDeveloper: 2,
	RoleQAAnalyst: 3,
	RoleQALead:    4,
	RoleAdmin:     5,
}

// Level returns the privilege level of the role, 0 for unknown roles.
func (r Role) Level() int {
	return roleLevels[r]
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	_, ok := roleLevels[r]
	return ok
}

// AtLeast reports whether r grants at least the privileges of min.
// Unknown roles never satisfy any requirement.
func (r Role) AtLeast(min Role) bool {
	return r.Valid() && r.Level() >= min.Level()
}

// ParseRole converts a raw string into a Role.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}
