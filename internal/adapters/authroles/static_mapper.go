// Package authroles maps identity provider groups to session roles.
package authroles

import (
	"strings"

	domainauth "github.com/target/waypoint/internal/domain/auth"
	"github.com/target/waypoint/internal/ports"
)

var _ ports.RoleMapper = StaticRoleMapper{}

// StaticRoleMapper maps groups by exact, case-insensitive group name.
// Admin membership wins over user membership; everyone else is a guest.
type StaticRoleMapper struct {
	AdminGroup string
	UserGroup  string
}

// Map returns the highest role granted by groups.
func (m StaticRoleMapper) Map(groups []string) domainauth.Role {
	if hasGroup(groups, m.AdminGroup) {
		return domainauth.RoleAdmin
	}
	if hasGroup(groups, m.UserGroup) {
		return domainauth.RoleUser
	}
	return domainauth.RoleGuest
}

func hasGroup(groups []string, want string) bool {
	if want == "" {
		return false
	}
	for _, g := range groups {
		if strings.EqualFold(strings.TrimSpace(g), want) {
			return true
		}
	}
	return false
}
