// Package events defines the inbound event union consumed by the router.
package events

import "fmt"

// Kind names an event category.
type Kind string

const (
	KindCommand    Kind = "command"
	KindNewMembers Kind = "new_members"
	KindMessage    Kind = "message"
	KindCallback   Kind = "callback"
	KindUnknown    Kind = "unknown"
)

// User is the sender of an event.
type User struct {
	ID        int64
	Username  string
	FirstName string
	LastName  string
	IsBot     bool
}

// DisplayName returns the best human readable name of the user.
func (u User) DisplayName() string {
	switch {
	case u.FirstName != "" && u.LastName != "":
		return u.FirstName + " " + u.LastName
	case u.FirstName != "":
		return u.FirstName
	case u.Username != "":
		return "@" + u.Username
	}
	return fmt.Sprintf("user %d", u.ID)
}

// Chat is the conversation an event happened in.
type Chat struct {
	ID   int64
	Type string
}

// IsPrivate reports whether the chat is a one-to-one conversation with the bot.
func (c Chat) IsPrivate() bool {
	return c.Type == "private"
}

// Event is implemented by every inbound event.
type Event interface {
	Kind() Kind
	ChatRef() Chat
}

// Command is a slash command with its arguments.
type Command struct {
	UpdateID  int
	MessageID int
	Name      string
	Args      string
	Sender    User
	Chat      Chat
}

// NewMembers is emitted when users join the chat.
type NewMembers struct {
	UpdateID int
	Members  []User
	Chat     Chat
}

// Message is plain text without a command prefix.
type Message struct {
	UpdateID int
	Text     string
	Sender   User
	Chat     Chat
}

// CallbackQuery is an inline button press.
type CallbackQuery struct {
	UpdateID int
	// ID is the platform callback identifier used to acknowledge the press.
	ID     string
	Token  string
	Sender User
	Chat   Chat
}

// Unknown carries updates the bot does not handle.
type Unknown struct {
	UpdateID int
	Type     string
	Chat     Chat
}

func (Command) Kind() Kind       { return KindCommand }
func (NewMembers) Kind() Kind    { return KindNewMembers }
func (Message) Kind() Kind       { return KindMessage }
func (CallbackQuery) Kind() Kind { return KindCallback }
func (Unknown) Kind() Kind       { return KindUnknown }

func (e Command) ChatRef() Chat       { return e.Chat }
func (e NewMembers) ChatRef() Chat    { return e.Chat }
func (e Message) ChatRef() Chat       { return e.Chat }
func (e CallbackQuery) ChatRef() Chat { return e.Chat }
func (e Unknown) ChatRef() Chat       { return e.Chat }
