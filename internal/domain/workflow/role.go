package workflow

// Role is an opaque role name supplied by the identity provider
type Role string

const (
	RoleSalesSupport Role = "SalesSupport"
	RoleSalesManager Role = "SalesManager"
	RoleSuperAdmin   Role = "SuperAdmin"
	RoleSystem       Role = "system"
)

// RoleSet is the set of roles held by an actor. Only membership is checked.
type RoleSet []Role

// Has reports whether the set contains role
func (s RoleSet) Has(role Role) bool {
	for _, r := range s {
		if r == role {
			return true
		}
	}
	return false
}

// HasAny reports whether the set contains at least one of roles
func (s RoleSet) HasAny(roles ...Role) bool {
	for _, role := range roles {
		if s.Has(role) {
			return true
		}
	}
	return false
}

// Strings returns the role names as plain strings
func (s RoleSet) Strings() []string {
	out := make([]string, len(s))
	for i, r := range s {
		out[i] = string(r)
	}
	return out
}

// ParseRoles converts plain strings into a RoleSet, dropping empty entries
func ParseRoles(values []string) RoleSet {
	out := make(RoleSet, 0, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		out = append(out, Role(v))
	}
	return out
}
