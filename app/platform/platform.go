// Package platform describes the chat platform operations the bot relies on.
package platform

import (
	"context"
	"errors"
	"path"
	"strings"
)

// ErrNotAttached is returned by adapters used before the bot is started.
var ErrNotAttached = errors.New("platform: bot not attached")

// Role is a chat member status.
type Role string

const (
	RoleOwner      Role = "owner"
	RoleAdmin      Role = "admin"
	RoleMember     Role = "member"
	RoleRestricted Role = "restricted"
	RoleLeft       Role = "left"
	RoleBanned     Role = "banned"
)

// ChatMember is a read-only snapshot of a user's membership.
type ChatMember struct {
	UserID       int64
	Role         Role
	DisplayTitle string
}

// Permissions is the set of actions a restricted member may perform.
type Permissions struct {
	SendMessages bool
	SendMedia    bool
	SendPolls    bool
	SendOther    bool
	AddPreviews  bool
	ChangeInfo   bool
	InviteUsers  bool
	PinMessages  bool
}

// Muted denies everything.
func Muted() Permissions {
	return Permissions{}
}

// Member restores sending permissions; invite, pin and change-info stay denied.
func Member() Permissions {
	return Permissions{
		SendMessages: true,
		SendMedia:    true,
		SendPolls:    true,
		SendOther:    true,
		AddPreviews:  true,
	}
}

// Button is an inline button carrying an opaque token.
type Button struct {
	Text  string
	Token string
}

// MediaKind selects the send method for a media URL.
type MediaKind string

const (
	MediaAnimation MediaKind = "animation"
	MediaPhoto     MediaKind = "photo"
)

// ClassifyMedia picks the media kind from the URL extension.
func ClassifyMedia(rawURL string) MediaKind {
	p := rawURL
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	switch strings.ToLower(path.Ext(p)) {
	case ".gif", ".mp4", ".gifv":
		return MediaAnimation
	}
	return MediaPhoto
}

// Port is implemented by the transport adapter.
type Port interface {
	GetMember(ctx context.Context, chatID, userID int64) (ChatMember, error)
	Admins(ctx context.Context, chatID int64) ([]ChatMember, error)
	SendText(ctx context.Context, chatID int64, text string, buttons []Button) error
	SendMedia(ctx context.Context, chatID int64, url string, kind MediaKind) error
	Restrict(ctx context.Context, chatID, userID int64, perms Permissions) error
	AnswerCallback(ctx context.Context, callbackID, text string) error
}
