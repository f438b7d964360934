package platform

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/m3rciful/gatekeeper/core/telegram/keyboard"

	tele "gopkg.in/telebot.v4"
)

// CallbackKey is the unique prefix of answer buttons.
const CallbackKey = "answer"

// API is the part of *tele.Bot used by the adapter.
type API interface {
	ChatMemberOf(chat, user tele.Recipient) (*tele.ChatMember, error)
	AdminsOf(chat *tele.Chat) ([]tele.ChatMember, error)
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
	Restrict(chat *tele.Chat, member *tele.ChatMember) error
	Respond(c *tele.Callback, resp ...*tele.CallbackResponse) error
}

// Telebot adapts a telebot bot to Port. The bot is attached once the runtime
// starts; calls made before that fail with ErrNotAttached.
type Telebot struct {
	mu  sync.RWMutex
	api API
}

// NewTelebot returns an adapter, optionally bound to api.
func NewTelebot(api API) *Telebot {
	return &Telebot{api: api}
}

// Attach binds the adapter to a running bot.
func (t *Telebot) Attach(api API) {
	t.mu.Lock()
	t.api = api
	t.mu.Unlock()
}

func (t *Telebot) current(ctx context.Context) (API, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.api == nil {
		return nil, ErrNotAttached
	}
	return t.api, nil
}

// GetMember fetches the current membership of userID in chatID.
func (t *Telebot) GetMember(ctx context.Context, chatID, userID int64) (ChatMember, error) {
	api, err := t.current(ctx)
	if err != nil {
		return ChatMember{}, err
	}
	m, err := api.ChatMemberOf(&tele.Chat{ID: chatID}, &tele.User{ID: userID})
	if err != nil {
		return ChatMember{}, fmt.Errorf("get member %d in %d: %w", userID, chatID, err)
	}
	return memberFromTele(*m), nil
}

// Admins lists the chat owner and administrators.
func (t *Telebot) Admins(ctx context.Context, chatID int64) ([]ChatMember, error) {
	api, err := t.current(ctx)
	if err != nil {
		return nil, err
	}
	list, err := api.AdminsOf(&tele.Chat{ID: chatID})
	if err != nil {
		return nil, fmt.Errorf("admins of %d: %w", chatID, err)
	}
	out := make([]ChatMember, 0, len(list))
	for _, m := range list {
		if m.User != nil && m.User.IsBot {
			continue
		}
		out = append(out, memberFromTele(m))
	}
	return out, nil
}

// SendText posts a message, with answer buttons two per row when given.
func (t *Telebot) SendText(ctx context.Context, chatID int64, text string, buttons []Button) error {
	api, err := t.current(ctx)
	if err != nil {
		return err
	}
	var opts []interface{}
	if len(buttons) > 0 {
		btns := make([]keyboard.InlineBtn, len(buttons))
		for i, b := range buttons {
			btns[i] = keyboard.InlineBtn{Text: b.Text, Unique: CallbackKey, Data: b.Token}
		}
		opts = append(opts, keyboard.InlineButtonsNPerRow(btns, 2))
	}
	if _, err := api.Send(&tele.Chat{ID: chatID}, text, opts...); err != nil {
		return fmt.Errorf("send text to %d: %w", chatID, err)
	}
	return nil
}

// SendMedia posts an animation or a photo by URL.
func (t *Telebot) SendMedia(ctx context.Context, chatID int64, url string, kind MediaKind) error {
	api, err := t.current(ctx)
	if err != nil {
		return err
	}
	var what interface{}
	switch kind {
	case MediaAnimation:
		what = &tele.Animation{File: tele.FromURL(url)}
	default:
		what = &tele.Photo{File: tele.FromURL(url)}
	}
	if _, err := api.Send(&tele.Chat{ID: chatID}, what); err != nil {
		return fmt.Errorf("send %s to %d: %w", kind, chatID, err)
	}
	return nil
}

// Restrict applies perms to the member until lifted.
func (t *Telebot) Restrict(ctx context.Context, chatID, userID int64, perms Permissions) error {
	api, err := t.current(ctx)
	if err != nil {
		return err
	}
	member := &tele.ChatMember{
		User:            &tele.User{ID: userID},
		Rights:          rightsFor(perms),
		RestrictedUntil: tele.Forever(),
	}
	if err := api.Restrict(&tele.Chat{ID: chatID}, member); err != nil {
		return fmt.Errorf("restrict %d in %d: %w", userID, chatID, err)
	}
	return nil
}

// AnswerCallback acknowledges a button press with a short notice.
func (t *Telebot) AnswerCallback(ctx context.Context, callbackID, text string) error {
	api, err := t.current(ctx)
	if err != nil {
		return err
	}
	if err := api.Respond(&tele.Callback{ID: callbackID}, &tele.CallbackResponse{Text: text}); err != nil {
		return fmt.Errorf("answer callback: %w", err)
	}
	return nil
}

func rightsFor(p Permissions) tele.Rights {
	r := tele.NoRights()
	if p.SendMedia {
		r = tele.NoRestrictions()
	}
	r.CanSendMessages = p.SendMessages
	r.CanSendPolls = p.SendPolls
	r.CanSendOther = p.SendOther
	r.CanAddPreviews = p.AddPreviews
	r.CanChangeInfo = p.ChangeInfo
	r.CanInviteUsers = p.InviteUsers
	r.CanPinMessages = p.PinMessages
	return r
}

func memberFromTele(m tele.ChatMember) ChatMember {
	out := ChatMember{Role: roleFromTele(m.Role), DisplayTitle: strings.TrimSpace(m.Title)}
	if m.User != nil {
		out.UserID = m.User.ID
		if out.DisplayTitle == "" {
			out.DisplayTitle = displayName(m.User)
		}
	}
	return out
}

func roleFromTele(status tele.MemberStatus) Role {
	switch status {
	case tele.Creator:
		return RoleOwner
	case tele.Administrator:
		return RoleAdmin
	case tele.Member:
		return RoleMember
	case tele.Restricted:
		return RoleRestricted
	case tele.Kicked:
		return RoleBanned
	}
	return RoleLeft
}

func displayName(u *tele.User) string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name != "" {
		return name
	}
	if u.Username != "" {
		return "@" + u.Username
	}
	return fmt.Sprintf("user %d", u.ID)
}
