// Package permission decides whether a chat member may run admin commands.
package permission

import "github.com/m3rciful/gatekeeper/app/platform"

// IsAdmin reports whether the member is the chat owner or an administrator.
// The member must be freshly fetched; roles change at any time.
func IsAdmin(member platform.ChatMember) bool {
	return member.Role == platform.RoleOwner || member.Role == platform.RoleAdmin
}
