package auth

import "strings"

// Role is the closed set of roles the service grants. Stores see the string
// form only.
type Role int

const (
	RoleMember Role = iota + 1
	RoleAdmin
)

var roleNames = map[Role]string{
	RoleMember: "Member",
	RoleAdmin:  "Admin",
}

func (r Role) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return ""
}

func (r Role) IsValid() bool {
	_, ok := roleNames[r]
	return ok
}

// ParseRole matches role names case-insensitively.
func ParseRole(name string) (Role, bool) {
	for role, roleName := range roleNames {
		if strings.EqualFold(roleName, strings.TrimSpace(name)) {
			return role, true
		}
	}
	return 0, false
}

func normalizeName(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}
