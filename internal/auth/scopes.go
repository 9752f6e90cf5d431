package auth

import "strings"

// Known OAuth scopes used by the activity API.
const (
	ScopeActivitiesWrite = "activities:write"
	ScopeActivitiesRead  = "activities:read"
)

// Role is the platform role carried in the token's "role" claim.
type Role string

const (
	RoleStudent   Role = "student"
	RoleCounselor Role = "counselor"
	RoleAdmin     Role = "admin"
)

// ParseRole maps a claim value to a Role. An absent role is treated as student.
func ParseRole(raw string) (Role, bool) {
	switch r := Role(strings.ToLower(strings.TrimSpace(raw))); r {
	case "":
		return RoleStudent, true
	case RoleStudent, RoleCounselor, RoleAdmin:
		return r, true
	}
	return "", false
}
