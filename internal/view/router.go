// Package view maps a session role to the top-level page it may see.
package view

import "github.com/drfirst/clinical-intel/internal/domain/session"

// ID names a top-level view
type ID string

const (
	Landing ID = "landing"
	Admin   ID = "admin"
	Doctor  ID = "doctor"
)

// Select returns the view for role. It is re-evaluated on every render and
// anything other than admin or doctor lands on the login page.
func Select(role session.Role) ID {
	switch role {
	case session.RoleAdmin:
		return Admin
	case session.RoleDoctor:
		return Doctor
	default:
		return Landing
	}
}
