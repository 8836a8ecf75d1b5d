package domain

import "fmt"

// Role is the closed set of account roles.
type Role string

const (
	RoleGuest      Role = "ROLE_GUEST"
	RoleUser       Role = "ROLE_USER"
	RoleStaff      Role = "ROLE_STAFF"
	RoleAdmin      Role = "ROLE_ADMIN"
	RoleSuperAdmin Role = "ROLE_SUPER_ADMIN"
)

// Roles lists every role from least to most privileged.
var Roles = []Role{RoleGuest, RoleUser, RoleStaff, RoleAdmin, RoleSuperAdmin}

func (r Role) Valid() bool {
	switch r {
	case RoleGuest, RoleUser, RoleStaff, RoleAdmin, RoleSuperAdmin:
		return true
	}
	return false
}

// PreActivated reports whether accounts with this role skip OTP verification.
func (r Role) PreActivated() bool {
	switch r {
	case RoleStaff, RoleAdmin, RoleSuperAdmin:
		return true
	}
	return false
}

func (r Role) Description() string {
	switch r {
	case RoleGuest:
		return "Unauthenticated visitor"
	case RoleUser:
		return "Registered customer"
	case RoleStaff:
		return "Store staff member"
	case RoleAdmin:
		return "Store administrator"
	case RoleSuperAdmin:
		return "Full system access"
	}
	return ""
}

// ParseRole accepts either the canonical constant or the short form
// ("user", "staff", "admin", "super-admin").
func ParseRole(s string) (Role, error) {
	switch s {
	case "guest":
		return RoleGuest, nil
	case "user":
		return RoleUser, nil
	case "staff":
		return RoleStaff, nil
	case "admin":
		return RoleAdmin, nil
	case "super-admin", "super_admin", "superadmin":
		return RoleSuperAdmin, nil
	}
	if r := Role(s); r.Valid() {
		return r, nil
	}
	return "", fmt.Errorf("unknown role %q: %w", s, ErrValidation)
}

// RoleInfo is the catalogue entry served by the roles endpoint.
type RoleInfo struct {
	Name        Role   `json:"name"`
	Description string `json:"description"`
}
