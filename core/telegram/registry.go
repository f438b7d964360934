package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/m3rciful/gatekeeper/core/logger"
	"github.com/m3rciful/gatekeeper/core/telegram/commands"

	tele "gopkg.in/telebot.v4"
)

var (
	// ErrDuplicateCommand is returned when two handlers claim the same keyword or alias.
	ErrDuplicateCommand = errors.New("duplicate command")
	// ErrInvalidCommand is returned for handlers with a bad keyword, missing summary or no handler.
	ErrInvalidCommand = errors.New("invalid command")

	keywordRe = regexp.MustCompile(`^[a-z0-9_]{1,32}$`)
)

// HelpEntry is one line of the help listing.
type HelpEntry struct {
	Name          string
	Summary       string
	RequiresAdmin bool
}

// Registry holds bot commands in registration order. It is immutable once built.
type Registry struct {
	ordered []commands.Handler
	byName  map[string]commands.Handler
}

type hidable interface{ IsHidden() bool }

type aliased interface{ AliasList() []string }

type validator interface{ Validate() error }

// NewRegistry builds a registry from handlers. Any malformed or duplicate handler
// is a configuration error and no registry is returned.
func NewRegistry(handlers ...commands.Handler) (*Registry, error) {
	r := &Registry{byName: make(map[string]commands.Handler, len(handlers))}
	for _, h := range handlers {
		if err := r.add(h); err != nil {
			logger.Error(context.Background(), logger.CompWire, "register.command.rejected",
				slog.String("status", "fail"),
				slog.String("err", err.Error()),
			)
			return nil, err
		}
	}
	logger.Info(context.Background(), logger.CompWire, "register.commands",
		slog.String("status", "ok"),
		slog.Int("count", len(r.ordered)),
	)
	return r, nil
}

func (r *Registry) add(h commands.Handler) error {
	if h == nil {
		return fmt.Errorf("%w: nil handler", ErrInvalidCommand)
	}
	name := normalizeKeyword(h.Name())
	if !keywordRe.MatchString(name) {
		return fmt.Errorf("%w: keyword %q must match %s", ErrInvalidCommand, h.Name(), keywordRe)
	}
	if strings.TrimSpace(h.Summary()) == "" {
		return fmt.Errorf("%w: command %q has no summary", ErrInvalidCommand, name)
	}
	if v, ok := h.(validator); ok {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidCommand, err)
		}
	}

	keys := []string{name}
	if a, ok := h.(aliased); ok {
		for _, alias := range a.AliasList() {
			alias = normalizeKeyword(alias)
			if !keywordRe.MatchString(alias) {
				return fmt.Errorf("%w: alias %q of %q", ErrInvalidCommand, alias, name)
			}
			keys = append(keys, alias)
		}
	}
	for _, k := range keys {
		if _, exists := r.byName[k]; exists {
			return fmt.Errorf("%w: %q", ErrDuplicateCommand, k)
		}
	}
	for _, k := range keys {
		r.byName[k] = h
	}
	r.ordered = append(r.ordered, h)
	return nil
}

func normalizeKeyword(name string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(name), "/"))
}

// Lookup finds a command by keyword or alias. A leading slash and a "@botname" suffix are ignored.
func (r *Registry) Lookup(name string) (commands.Handler, bool) {
	if r == nil {
		return nil, false
	}
	name = normalizeKeyword(name)
	if i := strings.IndexByte(name, '@'); i >= 0 {
		name = name[:i]
	}
	h, ok := r.byName[name]
	return h, ok
}

// Len returns the number of registered commands (aliases excluded).
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.ordered)
}

// Handlers returns the commands in registration order.
func (r *Registry) Handlers() []commands.Handler {
	return append([]commands.Handler(nil), r.ordered...)
}

// ListHelp returns visible commands in registration order. Admin commands are
// included only when the requester is an admin.
func (r *Registry) ListHelp(isRequesterAdmin bool) []HelpEntry {
	if r == nil {
		return nil
	}
	list := make([]HelpEntry, 0, len(r.ordered))
	for _, h := range r.ordered {
		if hh, ok := h.(hidable); ok && hh.IsHidden() {
			continue
		}
		if h.RequiresAdmin() && !isRequesterAdmin {
			continue
		}
		list = append(list, HelpEntry{
			Name:          normalizeKeyword(h.Name()),
			Summary:       h.Summary(),
			RequiresAdmin: h.RequiresAdmin(),
		})
	}
	return list
}

// MenuCommands converts the help listing into Telegram menu commands.
func (r *Registry) MenuCommands(includeAdmin bool) []tele.Command {
	entries := r.ListHelp(includeAdmin)
	list := make([]tele.Command, 0, len(entries))
	for _, e := range entries {
		list = append(list, tele.Command{Text: e.Name, Description: e.Summary})
	}
	return list
}

// CommandSetter is the subset of the bot used to publish command menus.
type CommandSetter interface {
	SetCommands(opts ...interface{}) error
}

// PublishCommands sets the command menu: public commands for everybody and the
// full list for chat administrators.
func PublishCommands(bot CommandSetter, reg *Registry) {
	scopes := []struct {
		admin bool
		opts  []interface{}
		name  string
	}{
		{false, nil, "default"},
		{true, []interface{}{tele.CommandScope{Type: tele.CommandScopeAllChatAdmin}}, string(tele.CommandScopeAllChatAdmin)},
	}
	for _, sc := range scopes {
		args := append([]interface{}{reg.MenuCommands(sc.admin)}, sc.opts...)
		if err := bot.SetCommands(args...); err != nil {
			logger.Error(context.Background(), logger.CompWire, "register.commands.set_failed",
				slog.String("status", "fail"),
				slog.String("scope", sc.name),
				slog.String("err", err.Error()),
			)
		}
	}
}
