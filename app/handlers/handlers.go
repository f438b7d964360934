// Package handlers implements the bot commands.
package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/m3rciful/gatekeeper/app/dailygate"
	"github.com/m3rciful/gatekeeper/app/permission"
	"github.com/m3rciful/gatekeeper/app/platform"
	"github.com/m3rciful/gatekeeper/core/buildinfo"
	coreconfig "github.com/m3rciful/gatekeeper/core/config"
	"github.com/m3rciful/gatekeeper/core/logger"
	coretelegram "github.com/m3rciful/gatekeeper/core/telegram"
	"github.com/m3rciful/gatekeeper/core/telegram/commands"
)

// HelpLister lists commands visible to a requester.
type HelpLister interface {
	ListHelp(isRequesterAdmin bool) []coretelegram.HelpEntry
}

// Gate is the daily media feature.
type Gate interface {
	TryUse(ctx context.Context, userID int64, now time.Time) (dailygate.Outcome, error)
	UsedCount(ctx context.Context) (int, error)
}

// PendingCounter reports members waiting for verification.
type PendingCounter interface {
	PendingCount(ctx context.Context) (int, error)
}

// Counters exposes router diagnostics.
type Counters interface {
	Dropped() uint64
	Faults() uint64
}

// Set holds command dependencies. Help and Counters may be assigned after the
// commands are built, before the bot starts.
type Set struct {
	Platform  platform.Port
	Help      HelpLister
	Gate      Gate
	Pending   PendingCounter
	Counters  Counters
	Rules     *RulesFile
	ChatID    int64
	GroupLink string
	Messages  coreconfig.MessagesConfig
	Now       func() time.Time
}

// Commands returns the bot commands in menu order.
func (s *Set) Commands() []commands.Handler {
	return []commands.Handler{
		commands.Command{Keyword: "help", Description: "List available commands", Aliases: []string{"start"}, Run: s.help},
		commands.Command{Keyword: "rules", Description: "Show the group rules", Run: s.rules},
		commands.Command{Keyword: "admins", Description: "Show the group administrators", Run: s.admins},
		commands.Command{Keyword: "media", Description: "Get the picture of the day", Run: s.media},
		commands.Command{Keyword: "update_rules", Description: "Replace the group rules", AdminOnly: true, Run: s.updateRules},
		commands.Command{Keyword: "stats", Description: "Show bot counters", AdminOnly: true, Run: s.stats},
	}
}

// groupChat returns the moderated chat for inv; private chats map to the configured group.
func (s *Set) groupChat(inv commands.Invocation) int64 {
	if inv.ChatType == "private" && s.ChatID != 0 {
		return s.ChatID
	}
	return inv.ChatID
}

func (s *Set) reply(ctx context.Context, inv commands.Invocation, text string) error {
	return s.Platform.SendText(ctx, inv.ChatID, text, nil)
}

func (s *Set) help(ctx context.Context, inv commands.Invocation) error {
	isAdmin := false
	member, err := s.Platform.GetMember(ctx, s.groupChat(inv), inv.SenderID)
	if err != nil {
		logger.Warn(ctx, logger.CompRouter, "help.member",
			slog.String("err", err.Error()),
		)
	} else {
		isAdmin = permission.IsAdmin(member)
	}

	var b strings.Builder
	b.WriteString(s.Messages.HelpHeader)
	for _, e := range s.Help.ListHelp(isAdmin) {
		fmt.Fprintf(&b, "\n/%s - %s", e.Name, e.Summary)
	}
	return s.reply(ctx, inv, b.String())
}

func (s *Set) rules(ctx context.Context, inv commands.Invocation) error {
	text, err := s.Rules.Read()
	if err != nil {
		return err
	}
	if text == "" {
		text = s.Messages.RulesMissing
	}
	parts := []string{text}
	if roster := s.roster(ctx, inv); roster != "" {
		parts = append(parts, roster)
	}
	if s.GroupLink != "" {
		parts = append(parts, s.GroupLink)
	}
	return s.reply(ctx, inv, strings.Join(parts, "\n\n"))
}

func (s *Set) admins(ctx context.Context, inv commands.Invocation) error {
	roster := s.roster(ctx, inv)
	if roster == "" {
		roster = s.Messages.AdminsHeader
	}
	return s.reply(ctx, inv, roster)
}

// roster formats the admin list; a failed lookup yields an empty string.
func (s *Set) roster(ctx context.Context, inv commands.Invocation) string {
	list, err := s.Platform.Admins(ctx, s.groupChat(inv))
	if err != nil {
		logger.Warn(ctx, logger.CompRouter, "admins.fetch",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
		return ""
	}
	var b strings.Builder
	b.WriteString(s.Messages.AdminsHeader)
	for _, m := range list {
		b.WriteString("\n- ")
		b.WriteString(m.DisplayTitle)
		if m.Role == platform.RoleOwner {
			b.WriteString(" (owner)")
		}
	}
	return b.String()
}

func (s *Set) media(ctx context.Context, inv commands.Invocation) error {
	out, err := s.Gate.TryUse(ctx, inv.SenderID, s.now())
	if err != nil {
		return err
	}
	switch out.Result {
	case dailygate.Allowed:
		return s.Platform.SendMedia(ctx, inv.ChatID, out.URL, out.Kind)
	case dailygate.AlreadyUsedToday:
		return s.reply(ctx, inv, s.Messages.AlreadyUsed)
	case dailygate.RemoteUnavailable:
		return s.reply(ctx, inv, s.Messages.RemoteUnavailable)
	default:
		return s.reply(ctx, inv, s.Messages.OutsideWindow)
	}
}

func (s *Set) updateRules(ctx context.Context, inv commands.Invocation) error {
	text := strings.TrimSpace(inv.Args)
	if text == "" {
		return s.reply(ctx, inv, s.Messages.RulesUsage)
	}
	if err := s.Rules.Write(text); err != nil {
		return err
	}
	logger.Info(ctx, logger.CompRouter, "rules.updated",
		slog.Int64("user_id", inv.SenderID),
		slog.Int("size", len(text)),
	)
	return s.reply(ctx, inv, s.Messages.RulesUpdated)
}

func (s *Set) stats(ctx context.Context, inv commands.Invocation) error {
	pending, err := s.Pending.PendingCount(ctx)
	if err != nil {
		return err
	}
	used, err := s.Gate.UsedCount(ctx)
	if err != nil {
		return err
	}
	var dropped, faults uint64
	if s.Counters != nil {
		dropped, faults = s.Counters.Dropped(), s.Counters.Faults()
	}
	text := fmt.Sprintf("Pending verifications: %d\nMedia users: %d\nDropped events: %d\nFaults: %d\nVersion: %s",
		pending, used, dropped, faults, buildinfo.Version)
	return s.reply(ctx, inv, text)
}

func (s *Set) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}
