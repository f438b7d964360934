// Package router dispatches inbound events to commands and the verification flow.
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/m3rciful/gatekeeper/app/events"
	"github.com/m3rciful/gatekeeper/app/permission"
	"github.com/m3rciful/gatekeeper/app/platform"
	"github.com/m3rciful/gatekeeper/app/verification"
	"github.com/m3rciful/gatekeeper/core/logger"
	"github.com/m3rciful/gatekeeper/core/telegram/commands"
)

// ErrPanic wraps a recovered handler panic.
var ErrPanic = errors.New("handler panic")

// Commands resolves a command keyword.
type Commands interface {
	Lookup(name string) (commands.Handler, bool)
}

// Verifier runs the new member flow.
type Verifier interface {
	OnJoin(ctx context.Context, chatID int64, member events.User) (verification.Result, error)
	OnAnswer(ctx context.Context, chatID int64, callbackID string, user events.User, token string) (verification.Result, error)
}

// Platform is what the router needs from the chat platform.
type Platform interface {
	GetMember(ctx context.Context, chatID, userID int64) (platform.ChatMember, error)
	SendText(ctx context.Context, chatID int64, text string, buttons []platform.Button) error
}

// Options configure a Router.
type Options struct {
	Commands Commands
	Verifier Verifier
	Platform Platform
	// AdminChatID is where roles are checked for commands sent in private chats.
	AdminChatID int64
	Forbidden   string
	// IsAdmin decides admin rights; permission.IsAdmin when nil.
	IsAdmin func(platform.ChatMember) bool
	// Observer receives plain messages; a debug log line when nil.
	Observer func(ctx context.Context, msg events.Message)
	// OnFault receives handler errors and recovered panics after they are counted.
	OnFault func(ctx context.Context, ev events.Event, fault error)
}

// Router routes each event to exactly one destination. It is safe for
// concurrent use.
type Router struct {
	opts    Options
	dropped atomic.Uint64
	faults  atomic.Uint64
}

// New returns a router.
func New(opts Options) (*Router, error) {
	if opts.Commands == nil || opts.Verifier == nil || opts.Platform == nil {
		return nil, errors.New("router: commands, verifier and platform are required")
	}
	if opts.IsAdmin == nil {
		opts.IsAdmin = permission.IsAdmin
	}
	if opts.Observer == nil {
		opts.Observer = observe
	}
	if opts.OnFault == nil {
		opts.OnFault = logFault
	}
	return &Router{opts: opts}, nil
}

// Route handles one event. Failures are counted, reported to the fault hook
// and returned for logging; they never propagate as panics.
func (r *Router) Route(ctx context.Context, ev events.Event) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: %v", ErrPanic, p)
			logger.Debug(ctx, logger.CompRouter, "route.panic.stack",
				slog.String("stack", string(debug.Stack())),
			)
			r.fault(ctx, ev, err)
		}
	}()

	switch e := ev.(type) {
	case events.Command:
		err = r.command(ctx, e)
	case events.NewMembers:
		r.join(ctx, e)
	case events.Message:
		r.opts.Observer(ctx, e)
	case events.CallbackQuery:
		_, err = r.opts.Verifier.OnAnswer(ctx, e.Chat.ID, e.ID, e.Sender, e.Token)
	default:
		r.drop(ctx, ev, "unroutable")
		return nil
	}
	if err != nil {
		r.fault(ctx, ev, err)
	}
	return err
}

// Dropped returns the number of unroutable events.
func (r *Router) Dropped() uint64 { return r.dropped.Load() }

// Faults returns the number of failed or panicking handlers.
func (r *Router) Faults() uint64 { return r.faults.Load() }

func (r *Router) command(ctx context.Context, e events.Command) error {
	h, ok := r.opts.Commands.Lookup(e.Name)
	if !ok {
		r.drop(ctx, e, "unknown_command")
		return nil
	}

	if h.RequiresAdmin() {
		chatID := e.Chat.ID
		if e.Chat.IsPrivate() && r.opts.AdminChatID != 0 {
			chatID = r.opts.AdminChatID
		}
		member, err := r.opts.Platform.GetMember(ctx, chatID, e.Sender.ID)
		if err != nil {
			return fmt.Errorf("fetch member for /%s: %w", h.Name(), err)
		}
		if !r.opts.IsAdmin(member) {
			logger.Info(ctx, logger.CompRouter, "route.command",
				slog.String("status", "denied"),
				slog.String("command", h.Name()),
				slog.Int64("user_id", e.Sender.ID),
				slog.String("role", string(member.Role)),
			)
			if err := r.opts.Platform.SendText(ctx, e.Chat.ID, r.opts.Forbidden, nil); err != nil {
				return fmt.Errorf("send denial: %w", err)
			}
			return nil
		}
	}

	inv := commands.Invocation{
		Name:       h.Name(),
		Args:       e.Args,
		ChatID:     e.Chat.ID,
		ChatType:   e.Chat.Type,
		SenderID:   e.Sender.ID,
		SenderName: e.Sender.DisplayName(),
		MessageID:  e.MessageID,
	}
	if err := h.Invoke(ctx, inv); err != nil {
		return fmt.Errorf("/%s: %w", h.Name(), err)
	}
	return nil
}

// join handles every member on its own; a failure or panic for one member
// does not stop the rest.
func (r *Router) join(ctx context.Context, e events.NewMembers) {
	for _, m := range e.Members {
		func() {
			defer func() {
				if p := recover(); p != nil {
					r.fault(ctx, e, fmt.Errorf("%w: member %d: %v", ErrPanic, m.ID, p))
				}
			}()
			if _, err := r.opts.Verifier.OnJoin(ctx, e.Chat.ID, m); err != nil {
				r.fault(ctx, e, fmt.Errorf("member %d: %w", m.ID, err))
			}
		}()
	}
}

func (r *Router) drop(ctx context.Context, ev events.Event, reason string) {
	r.dropped.Add(1)
	logger.Debug(ctx, logger.CompRouter, "route.drop",
		slog.String("status", "dropped"),
		slog.String("kind", string(kindOf(ev))),
		slog.String("reason", reason),
	)
}

func (r *Router) fault(ctx context.Context, ev events.Event, err error) {
	r.faults.Add(1)
	r.opts.OnFault(ctx, ev, err)
}

func observe(ctx context.Context, msg events.Message) {
	if !logger.SampleDebug(ctx, "route.message") {
		return
	}
	logger.Debug(ctx, logger.CompRouter, "route.message",
		slog.Int64("user_id", msg.Sender.ID),
		slog.Int("text_len", len(msg.Text)),
	)
}

func logFault(ctx context.Context, ev events.Event, fault error) {
	var chat events.Chat
	if ev != nil {
		chat = ev.ChatRef()
	}
	logger.Error(ctx, logger.CompRouter, "route.fault",
		slog.String("status", "fail"),
		slog.Time("at", time.Now()),
		slog.String("kind", string(kindOf(ev))),
		slog.Int64("chat_id", chat.ID),
		slog.Int64("user_id", logger.MetaFrom(ctx).UserID),
		slog.String("err", fault.Error()),
	)
}

func kindOf(ev events.Event) events.Kind {
	if ev == nil {
		return events.KindUnknown
	}
	return ev.Kind()
}
