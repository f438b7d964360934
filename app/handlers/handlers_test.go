package handlers

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/m3rciful/gatekeeper/app/dailygate"
	"github.com/m3rciful/gatekeeper/app/platform"
	"github.com/m3rciful/gatekeeper/app/platform/platformtest"
	coreconfig "github.com/m3rciful/gatekeeper/core/config"
	coretelegram "github.com/m3rciful/gatekeeper/core/telegram"
	"github.com/m3rciful/gatekeeper/core/telegram/commands"
)

type stubGate struct {
	out  dailygate.Outcome
	err  error
	used int
}

func (g *stubGate) TryUse(context.Context, int64, time.Time) (dailygate.Outcome, error) {
	return g.out, g.err
}

func (g *stubGate) UsedCount(context.Context) (int, error) { return g.used, nil }

type stubPending int

func (p stubPending) PendingCount(context.Context) (int, error) { return int(p), nil }

type stubCounters struct{}

func (stubCounters) Dropped() uint64 { return 3 }
func (stubCounters) Faults() uint64  { return 1 }

func messages() coreconfig.MessagesConfig {
	cfg := &coreconfig.Config{Telegram: coreconfig.TelegramConfig{Token: "t"}}
	if err := coreconfig.Normalize(cfg); err != nil {
		panic(err)
	}
	return cfg.Messages
}

func newSet(t *testing.T, fake *platformtest.Fake, gate *stubGate) *Set {
	t.Helper()
	s := &Set{
		Platform:  fake,
		Gate:      gate,
		Pending:   stubPending(2),
		Counters:  stubCounters{},
		Rules:     NewRulesFile(filepath.Join(t.TempDir(), "rules.txt")),
		ChatID:    -100,
		GroupLink: "https://t.me/example",
		Messages:  messages(),
	}
	reg, err := coretelegram.NewRegistry(s.Commands()...)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	s.Help = reg
	return s
}

func invoke(t *testing.T, s *Set, name string, inv commands.Invocation) error {
	t.Helper()
	for _, h := range s.Commands() {
		if h.Name() == name {
			inv.Name = name
			return h.Invoke(context.Background(), inv)
		}
	}
	t.Fatalf("no command %q", name)
	return nil
}

func lastText(t *testing.T, fake *platformtest.Fake) string {
	t.Helper()
	msg, ok := fake.LastText()
	if !ok {
		t.Fatal("no reply sent")
	}
	return msg.Text
}

func TestRulesIncludesRosterAndLink(t *testing.T) {
	fake := platformtest.New(
		platform.ChatMember{UserID: 1, Role: platform.RoleOwner, DisplayTitle: "Ann"},
		platform.ChatMember{UserID: 2, Role: platform.RoleAdmin, DisplayTitle: "Bob"},
	)
	s := newSet(t, fake, &stubGate{})
	if err := s.Rules.Write("Be nice."); err != nil {
		t.Fatal(err)
	}
	if err := invoke(t, s, "rules", commands.Invocation{ChatID: -100, SenderID: 9}); err != nil {
		t.Fatal(err)
	}
	text := lastText(t, fake)
	for _, want := range []string{"Be nice.", "Ann (owner)", "Bob", "https://t.me/example"} {
		if !strings.Contains(text, want) {
			t.Fatalf("reply %q misses %q", text, want)
		}
	}
}

func TestRulesMissingFile(t *testing.T) {
	fake := platformtest.New()
	s := newSet(t, fake, &stubGate{})
	fake.AdminsErr = errors.New("down")
	if err := invoke(t, s, "rules", commands.Invocation{ChatID: -100}); err != nil {
		t.Fatal(err)
	}
	text := lastText(t, fake)
	if !strings.HasPrefix(text, s.Messages.RulesMissing) || !strings.HasSuffix(text, s.GroupLink) {
		t.Fatalf("reply = %q", text)
	}
}

func TestUpdateRules(t *testing.T) {
	fake := platformtest.New()
	s := newSet(t, fake, &stubGate{})

	if err := invoke(t, s, "update_rules", commands.Invocation{ChatID: -100, Args: "   "}); err != nil {
		t.Fatal(err)
	}
	if got := lastText(t, fake); got != s.Messages.RulesUsage {
		t.Fatalf("usage reply = %q", got)
	}
	if _, err := os.Stat(s.Rules.Path()); !os.IsNotExist(err) {
		t.Fatal("empty update must not create the file")
	}

	if err := invoke(t, s, "update_rules", commands.Invocation{ChatID: -100, Args: "No spam.\nNo ads."}); err != nil {
		t.Fatal(err)
	}
	if got, _ := s.Rules.Read(); got != "No spam.\nNo ads." {
		t.Fatalf("rules = %q", got)
	}
	if got := lastText(t, fake); got != s.Messages.RulesUpdated {
		t.Fatalf("reply = %q", got)
	}
}

func TestHelpHidesAdminCommandsFromMembers(t *testing.T) {
	fake := platformtest.New(platform.ChatMember{UserID: 1, Role: platform.RoleAdmin})
	s := newSet(t, fake, &stubGate{})

	if err := invoke(t, s, "help", commands.Invocation{ChatID: -100, SenderID: 5}); err != nil {
		t.Fatal(err)
	}
	member := lastText(t, fake)
	if strings.Contains(member, "/update_rules") || !strings.Contains(member, "/rules") {
		t.Fatalf("member help = %q", member)
	}

	if err := invoke(t, s, "help", commands.Invocation{ChatID: 1, ChatType: "private", SenderID: 1}); err != nil {
		t.Fatal(err)
	}
	admin := lastText(t, fake)
	if !strings.Contains(admin, "/update_rules") || !strings.Contains(admin, "/stats") {
		t.Fatalf("admin help = %q", admin)
	}
}

func TestMediaReplies(t *testing.T) {
	cases := []struct {
		out  dailygate.Outcome
		want func(*Set) string
	}{
		{dailygate.Outcome{Result: dailygate.AlreadyUsedToday}, func(s *Set) string { return s.Messages.AlreadyUsed }},
		{dailygate.Outcome{Result: dailygate.OutsideWindow}, func(s *Set) string { return s.Messages.OutsideWindow }},
		{dailygate.Outcome{Result: dailygate.RemoteUnavailable}, func(s *Set) string { return s.Messages.RemoteUnavailable }},
	}
	for _, tc := range cases {
		fake := platformtest.New()
		s := newSet(t, fake, &stubGate{out: tc.out})
		if err := invoke(t, s, "media", commands.Invocation{ChatID: -100, SenderID: 4}); err != nil {
			t.Fatal(err)
		}
		if got := lastText(t, fake); got != tc.want(s) {
			t.Fatalf("%s reply = %q", tc.out.Result, got)
		}
	}

	fake := platformtest.New()
	s := newSet(t, fake, &stubGate{out: dailygate.Outcome{Result: dailygate.Allowed, URL: "https://cdn/a.gif", Kind: platform.MediaAnimation}})
	if err := invoke(t, s, "media", commands.Invocation{ChatID: -100, SenderID: 4}); err != nil {
		t.Fatal(err)
	}
	if len(fake.Media) != 1 || fake.Media[0].Kind != platform.MediaAnimation {
		t.Fatalf("media = %+v", fake.Media)
	}
}

func TestStatsReportsCounters(t *testing.T) {
	fake := platformtest.New()
	s := newSet(t, fake, &stubGate{used: 5})
	if err := invoke(t, s, "stats", commands.Invocation{ChatID: -100}); err != nil {
		t.Fatal(err)
	}
	text := lastText(t, fake)
	for _, want := range []string{"Pending verifications: 2", "Media users: 5", "Dropped events: 3", "Faults: 1"} {
		if !strings.Contains(text, want) {
			t.Fatalf("stats %q misses %q", text, want)
		}
	}
}
