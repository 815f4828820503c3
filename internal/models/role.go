package models

import (
	"errors"
	"strings"
)

// Role is the closed set of platform roles carried in auth tokens and
// join payloads.
type Role string

const (
	RoleStudent         Role = "student"
	RoleInstructor      Role = "instructor"
	RoleSuperInstructor Role = "super_instructor"
	RoleAdmin           Role = "admin"
	RoleSuperAdmin      Role = "super_admin"
)

var ErrUnknownRole = errors.New("unknown role")

// ParseRole normalizes s and rejects anything outside the closed set.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	switch r {
	case RoleStudent, RoleInstructor, RoleSuperInstructor, RoleAdmin, RoleSuperAdmin:
		return r, nil
	}
	return "", ErrUnknownRole
}

// CanModerate reports whether the role may change room controls and act on
// other participants.
func (r Role) CanModerate() bool {
	switch r {
	case RoleInstructor, RoleSuperInstructor, RoleAdmin, RoleSuperAdmin:
		return true
	case RoleStudent:
		return false
	}
	return false
}

// CanPublish reports whether the role joins the conference as a publisher.
func (r Role) CanPublish() bool {
	switch r {
	case RoleInstructor, RoleSuperInstructor:
		return true
	case RoleStudent, RoleAdmin, RoleSuperAdmin:
		return false
	}
	return false
}

// IsAdmin is true for the administrative back-office roles.
func (r Role) IsAdmin() bool {
	return r == RoleAdmin || r == RoleSuperAdmin
}
