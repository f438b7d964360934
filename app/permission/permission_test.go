package permission

import (
	"testing"

	"github.com/m3rciful/gatekeeper/app/platform"
)

func TestIsAdmin(t *testing.T) {
	cases := map[platform.Role]bool{
		platform.RoleOwner:      true,
		platform.RoleAdmin:      true,
		platform.RoleMember:     false,
		platform.RoleRestricted: false,
		platform.RoleLeft:       false,
		platform.RoleBanned:     false,
		"":                      false,
	}
	for role, want := range cases {
		if got := IsAdmin(platform.ChatMember{UserID: 1, Role: role}); got != want {
			t.Errorf("IsAdmin(%q) = %v, want %v", role, got, want)
		}
	}
}
