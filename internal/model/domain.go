package model

import (
	"github.com/google/uuid"
)

type UserRole string

const (
	UserRoleAdmin     UserRole = "ADMIN"
	UserRoleInspector UserRole = "INSPECTOR"
	UserRoleViewer    UserRole = "VIEWER"
)

func (r UserRole) Valid() bool {
	switch r {
	case UserRoleAdmin, UserRoleInspector, UserRoleViewer:
		return true
	}
	return false
}

type Principal struct {
	UserID uuid.UUID
	OrgID  uuid.UUID
	Role   UserRole
}

func (p Principal) IsAdmin() bool {
	return p.Role == UserRoleAdmin
}

func (p Principal) IsInspector() bool {
	return p.Role == UserRoleInspector
}

// CanReadHistory reports whether the principal may list stored inspections.
func (p Principal) CanReadHistory() bool {
	return p.Role.Valid()
}

// CanPurgeHistory is limited to administrators.
func (p Principal) CanPurgeHistory() bool {
	return p.IsAdmin()
}
