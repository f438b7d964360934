package transport

import (
	"strings"

	"github.com/m3rciful/gatekeeper/app/events"
	"github.com/m3rciful/gatekeeper/app/platform"
	"github.com/m3rciful/gatekeeper/core/telegram/callbacks"

	tele "gopkg.in/telebot.v4"
)

func userOf(u *tele.User) events.User {
	if u == nil {
		return events.User{}
	}
	return events.User{
		ID:        u.ID,
		Username:  u.Username,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		IsBot:     u.IsBot,
	}
}

func chatOf(c *tele.Chat) events.Chat {
	if c == nil {
		return events.Chat{}
	}
	return events.Chat{ID: c.ID, Type: string(c.Type)}
}

// ParseCommand splits "/name@bot args" into the bare name and the argument text.
func ParseCommand(text string) (name, args string, ok bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") || len(text) < 2 {
		return "", "", false
	}
	head, rest, _ := strings.Cut(text, " ")
	if i := strings.IndexAny(head, "\n\t"); i >= 0 {
		rest = head[i:] + " " + rest
		head = head[:i]
	}
	name = strings.TrimPrefix(head, "/")
	if i := strings.IndexByte(name, '@'); i >= 0 {
		name = name[:i]
	}
	if name == "" {
		return "", "", false
	}
	return strings.ToLower(name), strings.TrimSpace(rest), true
}

// FromText turns a text message into a Command or a Message.
func FromText(updateID int, m *tele.Message) events.Event {
	if m == nil {
		return events.Unknown{UpdateID: updateID, Type: "empty_message"}
	}
	if name, args, ok := ParseCommand(m.Text); ok {
		return events.Command{
			UpdateID:  updateID,
			MessageID: m.ID,
			Name:      name,
			Args:      args,
			Sender:    userOf(m.Sender),
			Chat:      chatOf(m.Chat),
		}
	}
	return events.Message{
		UpdateID: updateID,
		Text:     m.Text,
		Sender:   userOf(m.Sender),
		Chat:     chatOf(m.Chat),
	}
}

// FromMedia turns a media message into a Message carrying its caption.
func FromMedia(updateID int, m *tele.Message) events.Event {
	if m == nil {
		return events.Unknown{UpdateID: updateID, Type: "empty_message"}
	}
	return events.Message{
		UpdateID: updateID,
		Text:     m.Caption,
		Sender:   userOf(m.Sender),
		Chat:     chatOf(m.Chat),
	}
}

// FromJoin collects the joined users of a service message. The
// new_chat_members list wins; the legacy new_chat_member field only holds
// its first entry.
func FromJoin(updateID int, m *tele.Message) events.Event {
	if m == nil {
		return events.Unknown{UpdateID: updateID, Type: "empty_message"}
	}
	var members []events.User
	for i := range m.UsersJoined {
		members = append(members, userOf(&m.UsersJoined[i]))
	}
	if len(members) == 0 && m.UserJoined != nil {
		members = append(members, userOf(m.UserJoined))
	}
	return events.NewMembers{UpdateID: updateID, Members: members, Chat: chatOf(m.Chat)}
}

// FromCallback maps an answer button press; other callbacks are unknown.
func FromCallback(updateID int, cb *tele.Callback) events.Event {
	if cb == nil {
		return events.Unknown{UpdateID: updateID, Type: "empty_callback"}
	}
	var chat events.Chat
	if cb.Message != nil {
		chat = chatOf(cb.Message.Chat)
	}
	key, payload := callbacks.ParseCallbackData(cb)
	if key != platform.CallbackKey {
		return events.Unknown{UpdateID: updateID, Type: "callback:" + key, Chat: chat}
	}
	return events.CallbackQuery{
		UpdateID: updateID,
		ID:       cb.ID,
		Token:    payload,
		Sender:   userOf(cb.Sender),
		Chat:     chat,
	}
}
