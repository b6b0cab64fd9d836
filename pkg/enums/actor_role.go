package enums

import "fmt"

// ActorRole identifies who performed an action.
type ActorRole string

const (
	ActorRoleSystem ActorRole = "system"
	ActorRoleUser   ActorRole = "user"
	ActorRoleSeller ActorRole = "seller"
	ActorRoleAdmin  ActorRole = "admin"
)

var validActorRoles = []ActorRole{
	ActorRoleSystem,
	ActorRoleUser,
	ActorRoleSeller,
	ActorRoleAdmin,
}

// String implements fmt.Stringer.
func (v ActorRole) String() string {
	return string(v)
}

// IsValid reports whether the value is a known ActorRole.
func (v ActorRole) IsValid() bool {
	for _, candidate := range validActorRoles {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParseActorRole converts raw input into ActorRole.
func ParseActorRole(value string) (ActorRole, error) {
	for _, candidate := range validActorRoles {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid actor role %q", value)
}
