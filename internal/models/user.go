package models

import (
	"time"
)

// Role is an ordinal with ascending privilege: a smaller value means a more
// privileged account. Comparisons must go through AtLeast, not raw operators.
type Role int

const (
	RoleSuperAdmin Role = 0
	RoleAdmin      Role = 1
	RoleUser       Role = 2
)

// AtLeast reports whether the role is at least as privileged as min
func (r Role) AtLeast(min Role) bool {
	return r <= min
}

func (r Role) String() string {
	switch r {
	case RoleSuperAdmin:
		return "super_admin"
	case RoleAdmin:
		return "admin"
	case RoleUser:
		return "user"
	default:
		return "unknown"
	}
}

// User profile as served by the auth service
type User struct {
	ID          int64
	Email       string
	Username    string
	Role        Role
	RoleName    string
	IsActive    bool
	CreatedAt   time.Time
	LastLoginAt *time.Time // nil if the user never logged in
}
