package commands

import (
	"context"
	"fmt"
)

// Invocation carries a parsed command call.
type Invocation struct {
	Name     string
	Args     string
	ChatID   int64
	ChatType string
	SenderID int64
	// SenderName is the display name used in replies.
	SenderName string
	// MessageID of the command message, 0 when unknown.
	MessageID int
}

// Handler is a single bot command.
type Handler interface {
	Name() string
	Summary() string
	RequiresAdmin() bool
	Invoke(ctx context.Context, inv Invocation) error
}

// Command is a Handler assembled from plain fields.
type Command struct {
	Keyword     string
	Description string
	AdminOnly   bool
	// Hidden commands work but are left out of help and the command menu.
	Hidden  bool
	Aliases []string
	Run     func(ctx context.Context, inv Invocation) error
}

// Name returns the command keyword without the leading slash.
func (c Command) Name() string { return c.Keyword }

// Summary returns the human readable help text.
func (c Command) Summary() string { return c.Description }

// RequiresAdmin reports whether the caller must be a chat administrator.
func (c Command) RequiresAdmin() bool { return c.AdminOnly }

// Invoke runs the command.
func (c Command) Invoke(ctx context.Context, inv Invocation) error {
	if c.Run == nil {
		return fmt.Errorf("command %q has no handler", c.Keyword)
	}
	return c.Run(ctx, inv)
}

// IsHidden reports whether the command is excluded from listings.
func (c Command) IsHidden() bool { return c.Hidden }

// AliasList returns alternative keywords.
func (c Command) AliasList() []string { return c.Aliases }

// Validate rejects commands that cannot be served.
func (c Command) Validate() error {
	if c.Run == nil {
		return fmt.Errorf("command %q has no handler", c.Keyword)
	}
	return nil
}
