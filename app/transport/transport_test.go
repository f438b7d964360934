package transport

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"testing"

	"github.com/m3rciful/gatekeeper/app/events"
	"github.com/m3rciful/gatekeeper/app/platform"
	"github.com/m3rciful/gatekeeper/core/logger"
	"github.com/m3rciful/gatekeeper/core/telegram/callbacks"

	tele "gopkg.in/telebot.v4"
)

func TestParseCommand(t *testing.T) {
	cases := []struct {
		in, name, args string
		ok             bool
	}{
		{"/rules", "rules", "", true},
		{"/Rules@gatekeeper_bot", "rules", "", true},
		{"/update_rules  Be nice.  ", "update_rules", "Be nice.", true},
		{"/update_rules\nline one\nline two", "update_rules", "line one\nline two", true},
		{"hello", "", "", false},
		{"/", "", "", false},
		{"/@bot", "", "", false},
	}
	for _, tc := range cases {
		name, args, ok := ParseCommand(tc.in)
		if name != tc.name || args != tc.args || ok != tc.ok {
			t.Errorf("ParseCommand(%q) = %q, %q, %v", tc.in, name, args, ok)
		}
	}
}

func TestFromText(t *testing.T) {
	chat := &tele.Chat{ID: -100, Type: tele.ChatSuperGroup}
	sender := &tele.User{ID: 5, FirstName: "Mia"}

	ev := FromText(1, &tele.Message{ID: 9, Text: "/rules now", Chat: chat, Sender: sender})
	cmd, ok := ev.(events.Command)
	if !ok || cmd.Name != "rules" || cmd.Args != "now" || cmd.Sender.ID != 5 || cmd.Chat.ID != -100 || cmd.MessageID != 9 {
		t.Fatalf("command = %#v", ev)
	}

	ev = FromText(2, &tele.Message{Text: "hi all", Chat: chat, Sender: sender})
	if msg, ok := ev.(events.Message); !ok || msg.Text != "hi all" {
		t.Fatalf("message = %#v", ev)
	}
}

const multiJoinUpdate = `{
  "update_id": 501,
  "message": {
    "message_id": 77,
    "date": 1760000000,
    "chat": {"id": -1001, "title": "club", "type": "supergroup"},
    "from": {"id": 11, "is_bot": false, "first_name": "Ann"},
    "new_chat_participant": {"id": 11, "is_bot": false, "first_name": "Ann"},
    "new_chat_member": {"id": 11, "is_bot": false, "first_name": "Ann"},
    "new_chat_members": [
      {"id": 11, "is_bot": false, "first_name": "Ann"},
      {"id": 12, "is_bot": false, "first_name": "Ben"},
      {"id": 13, "is_bot": true, "first_name": "Helper", "username": "helper_bot"}
    ]
  }
}`

func decodeUpdate(t *testing.T, raw string) tele.Update {
	t.Helper()
	var upd tele.Update
	if err := json.Unmarshal([]byte(raw), &upd); err != nil {
		t.Fatal(err)
	}
	return upd
}

func memberIDs(ev events.Event) []int64 {
	nm, ok := ev.(events.NewMembers)
	if !ok {
		return nil
	}
	var ids []int64
	for _, m := range nm.Members {
		ids = append(ids, m.ID)
	}
	return ids
}

func TestFromJoin(t *testing.T) {
	upd := decodeUpdate(t, multiJoinUpdate)
	ev := FromJoin(upd.ID, upd.Message)
	if got := memberIDs(ev); !slices.Equal(got, []int64{11, 12, 13}) {
		t.Fatalf("members = %v", got)
	}
	if nm := ev.(events.NewMembers); !nm.Members[2].IsBot || nm.Chat.ID != -1001 {
		t.Fatalf("event = %+v", nm)
	}

	legacy := FromJoin(1, &tele.Message{Chat: &tele.Chat{ID: -100}, UserJoined: &tele.User{ID: 1}})
	if got := memberIDs(legacy); !slices.Equal(got, []int64{1}) {
		t.Fatalf("legacy members = %v", got)
	}
}

func routeThroughBot(t *testing.T, raw string) []events.Event {
	t.Helper()
	bot, err := tele.NewBot(tele.Settings{Offline: true, Synchronous: true})
	if err != nil {
		t.Fatal(err)
	}
	router := &recordingRouter{}
	for _, r := range New(router).Routes() {
		bot.Handle(r.Endpoint, r.Handler)
	}
	bot.ProcessUpdate(decodeUpdate(t, raw))
	return router.got
}

func TestJoinUpdateReachesRouterForEveryMember(t *testing.T) {
	got := routeThroughBot(t, multiJoinUpdate)
	var joined []int64
	for _, ev := range got {
		joined = append(joined, memberIDs(ev)...)
	}
	if !slices.Equal(joined, []int64{11, 12, 13}) {
		t.Fatalf("members routed = %v", joined)
	}
}

func TestJoinListWithoutLegacyFieldRoutedOnce(t *testing.T) {
	raw := `{"update_id": 502, "message": {"message_id": 78, "date": 1760000000,
	  "chat": {"id": -1001, "type": "supergroup"},
	  "new_chat_members": [{"id": 21, "first_name": "Cy"}, {"id": 22, "first_name": "Di"}]}}`
	got := routeThroughBot(t, raw)
	var joins int
	var joined []int64
	for _, ev := range got {
		if ev.Kind() == events.KindNewMembers {
			joins++
			joined = append(joined, memberIDs(ev)...)
		}
	}
	if joins != 1 || !slices.Equal(joined, []int64{21, 22}) {
		t.Fatalf("joins = %d, members = %v", joins, joined)
	}
}

func TestFromCallback(t *testing.T) {
	msg := &tele.Message{Chat: &tele.Chat{ID: -100}}
	cb := &tele.Callback{ID: "q1", Data: callbacks.Data(platform.CallbackKey, "correct:abc"), Sender: &tele.User{ID: 7}, Message: msg}
	ev, ok := FromCallback(3, cb).(events.CallbackQuery)
	if !ok || ev.Token != "correct:abc" || ev.ID != "q1" || ev.Sender.ID != 7 || ev.Chat.ID != -100 {
		t.Fatalf("callback = %#v", ev)
	}

	other := FromCallback(4, &tele.Callback{Data: callbacks.Data("menu", "x")})
	if other.Kind() != events.KindUnknown {
		t.Fatalf("foreign callback = %#v", other)
	}
}

type recordingRouter struct {
	got []events.Event
	rid string
	err error
}

func (r *recordingRouter) Route(ctx context.Context, ev events.Event) error {
	r.got = append(r.got, ev)
	r.rid = logger.MetaFrom(ctx).RID
	return r.err
}

func offlineContext(t *testing.T, upd tele.Update) tele.Context {
	t.Helper()
	bot, err := tele.NewBot(tele.Settings{Offline: true})
	if err != nil {
		t.Fatal(err)
	}
	return bot.NewContext(upd)
}

func TestWrapRoutesAndAbsorbsErrors(t *testing.T) {
	router := &recordingRouter{err: errors.New("send failed")}
	h := New(router)
	handler := h.wrap("text", func(c tele.Context) events.Event {
		return FromText(c.Update().ID, c.Message())
	})

	upd := tele.Update{ID: 11, Message: &tele.Message{
		Text:   "/help",
		Chat:   &tele.Chat{ID: -100, Type: tele.ChatGroup},
		Sender: &tele.User{ID: 5},
	}}
	if err := handler(offlineContext(t, upd)); err != nil {
		t.Fatalf("handler returned %v", err)
	}
	if len(router.got) != 1 || router.got[0].Kind() != events.KindCommand {
		t.Fatalf("routed = %#v", router.got)
	}
	if router.rid == "" {
		t.Fatal("event context carries no rid")
	}
}

func TestRoutesCoverCoreEndpoints(t *testing.T) {
	seen := map[interface{}]bool{}
	for _, r := range New(&recordingRouter{}).Routes() {
		seen[r.Endpoint] = true
	}
	for _, ep := range []string{tele.OnText, tele.OnUserJoined, tele.OnCallback} {
		if !seen[ep] {
			t.Fatalf("missing endpoint %q", ep)
		}
	}
}

func TestDeriveErrorCode(t *testing.T) {
	if got := deriveErrorCode(&tele.Error{Code: 400}); got != "ERROR" {
		t.Fatalf("code = %q", got)
	}
	if got := deriveErrorCode(nil); got != "" {
		t.Fatalf("nil code = %q", got)
	}
}
