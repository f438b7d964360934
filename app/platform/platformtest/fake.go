// Package platformtest provides an in-memory platform for tests.
package platformtest

import (
	"context"
	"sync"

	"github.com/m3rciful/gatekeeper/app/platform"
)

// Text is a recorded text message.
type Text struct {
	ChatID  int64
	Text    string
	Buttons []platform.Button
}

// Media is a recorded media message.
type Media struct {
	ChatID int64
	URL    string
	Kind   platform.MediaKind
}

// Restriction is a recorded restrict call.
type Restriction struct {
	ChatID int64
	UserID int64
	Perms  platform.Permissions
}

// Answer is a recorded callback acknowledgement.
type Answer struct {
	CallbackID string
	Text       string
}

// Fake records every outbound call. Errors set on the struct are returned by
// the matching method.
type Fake struct {
	mu sync.Mutex

	Members map[int64]platform.ChatMember

	Texts        []Text
	Media        []Media
	Restrictions []Restriction
	Answers      []Answer
	MemberCalls  int
	AdminCalls   int

	GetMemberErr error
	AdminsErr    error
	SendErr      error
	RestrictErr  error
	// RestrictHook runs before each restrict call is recorded.
	RestrictHook func(Restriction)
}

// New returns a Fake with the given members.
func New(members ...platform.ChatMember) *Fake {
	f := &Fake{Members: make(map[int64]platform.ChatMember)}
	for _, m := range members {
		f.Members[m.UserID] = m
	}
	return f
}

func (f *Fake) GetMember(_ context.Context, _, userID int64) (platform.ChatMember, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.MemberCalls++
	if f.GetMemberErr != nil {
		return platform.ChatMember{}, f.GetMemberErr
	}
	if m, ok := f.Members[userID]; ok {
		return m, nil
	}
	return platform.ChatMember{UserID: userID, Role: platform.RoleMember}, nil
}

func (f *Fake) Admins(_ context.Context, _ int64) ([]platform.ChatMember, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.AdminCalls++
	if f.AdminsErr != nil {
		return nil, f.AdminsErr
	}
	var out []platform.ChatMember
	for _, m := range f.Members {
		if m.Role == platform.RoleOwner || m.Role == platform.RoleAdmin {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *Fake) SendText(_ context.Context, chatID int64, text string, buttons []platform.Button) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SendErr != nil {
		return f.SendErr
	}
	f.Texts = append(f.Texts, Text{ChatID: chatID, Text: text, Buttons: append([]platform.Button(nil), buttons...)})
	return nil
}

func (f *Fake) SendMedia(_ context.Context, chatID int64, url string, kind platform.MediaKind) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SendErr != nil {
		return f.SendErr
	}
	f.Media = append(f.Media, Media{ChatID: chatID, URL: url, Kind: kind})
	return nil
}

func (f *Fake) Restrict(_ context.Context, chatID, userID int64, perms platform.Permissions) error {
	r := Restriction{ChatID: chatID, UserID: userID, Perms: perms}
	if f.RestrictHook != nil {
		f.RestrictHook(r)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.RestrictErr != nil {
		return f.RestrictErr
	}
	f.Restrictions = append(f.Restrictions, r)
	return nil
}

func (f *Fake) AnswerCallback(_ context.Context, callbackID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Answers = append(f.Answers, Answer{CallbackID: callbackID, Text: text})
	return nil
}

// LastText returns the most recent text message.
func (f *Fake) LastText() (Text, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Texts) == 0 {
		return Text{}, false
	}
	return f.Texts[len(f.Texts)-1], true
}

// Snapshot returns copies of the recorded calls.
func (f *Fake) Snapshot() (texts []Text, restrictions []Restriction, answers []Answer) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Text(nil), f.Texts...),
		append([]Restriction(nil), f.Restrictions...),
		append([]Answer(nil), f.Answers...)
}

var _ platform.Port = (*Fake)(nil)
