// Package transport feeds telebot updates into the event router.
package transport

import (
	"context"
	"errors"
	"log/slog"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/m3rciful/gatekeeper/app/events"
	"github.com/m3rciful/gatekeeper/core/logger"
	coretelegram "github.com/m3rciful/gatekeeper/core/telegram"
	tghelpers "github.com/m3rciful/gatekeeper/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// Router consumes events.
type Router interface {
	Route(ctx context.Context, ev events.Event) error
}

// Handler binds telebot endpoints to a Router.
type Handler struct {
	router Router

	mu   sync.RWMutex
	base context.Context

	joins recentIDs
}

// New returns a handler routing into r.
func New(r Router) *Handler {
	return &Handler{router: r, base: context.Background()}
}

const recentJoinUpdates = 64

// recentIDs remembers the last few update ids it was shown.
type recentIDs struct {
	mu   sync.Mutex
	seen map[int]struct{}
	ring [recentJoinUpdates]int
	next int
}

// first reports whether id is new and records it.
func (r *recentIDs) first(id int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.seen == nil {
		r.seen = make(map[int]struct{}, recentJoinUpdates)
	}
	if _, ok := r.seen[id]; ok {
		return false
	}
	if len(r.seen) == recentJoinUpdates {
		delete(r.seen, r.ring[r.next])
	}
	r.seen[id] = struct{}{}
	r.ring[r.next] = id
	r.next = (r.next + 1) % recentJoinUpdates
	return true
}

// Bind ties event contexts to ctx so shutdown cancels in-flight events.
func (h *Handler) Bind(ctx context.Context) {
	h.mu.Lock()
	h.base = ctx
	h.mu.Unlock()
}

// Routes returns the telebot endpoints served by the bot.
func (h *Handler) Routes() []coretelegram.Route {
	return []coretelegram.Route{
		{Endpoint: tele.OnText, Handler: h.wrap("text", func(c tele.Context) events.Event {
			return FromText(c.Update().ID, c.Message())
		})},
		{Endpoint: tele.OnMedia, Handler: h.wrap("media", func(c tele.Context) events.Event {
			return FromMedia(c.Update().ID, c.Message())
		})},
		{Endpoint: tele.OnUserJoined, Handler: h.wrap("join", h.convertJoin)},
		{Endpoint: tele.OnCallback, Handler: h.wrap("callback", func(c tele.Context) events.Event {
			return FromCallback(c.Update().ID, c.Callback())
		})},
		{Endpoint: tele.OnUserLeft, Handler: h.wrap("left", unknown("user_left"))},
		{Endpoint: tele.OnEdited, Handler: h.wrap("edited", unknown("edited"))},
		{Endpoint: tele.OnPinned, Handler: h.wrap("pinned", unknown("pinned"))},
	}
}

// convertJoin routes the whole member list once per update. telebot replays
// OnUserJoined per member when only new_chat_members is set.
func (h *Handler) convertJoin(c tele.Context) events.Event {
	id := c.Update().ID
	if !h.joins.first(id) {
		return events.Unknown{UpdateID: id, Type: "join_repeat"}
	}
	return FromJoin(id, c.Message())
}

func unknown(kind string) func(tele.Context) events.Event {
	return func(c tele.Context) events.Event {
		var chat events.Chat
		if ch := c.Chat(); ch != nil {
			chat = events.Chat{ID: ch.ID, Type: string(ch.Type)}
		}
		return events.Unknown{UpdateID: c.Update().ID, Type: kind, Chat: chat}
	}
}

// wrap converts the update and routes it under a cancellable per-event context.
// Routing errors are logged and absorbed so telebot never retries an update.
func (h *Handler) wrap(name string, convert func(tele.Context) events.Event) tele.HandlerFunc {
	return func(c tele.Context) error {
		start := time.Now()
		ev := convert(c)
		handler := handlerName(name, ev)

		h.mu.RLock()
		base := h.base
		h.mu.RUnlock()

		ctx, cancel := context.WithCancel(tghelpers.WithHandler(c, handler))
		defer cancel()
		stop := context.AfterFunc(base, cancel)
		defer stop()

		err := h.router.Route(ctx, ev)
		logHandlerSummary(ctx, handler, ev, start, err)
		return nil
	}
}

func handlerName(name string, ev events.Event) string {
	if cmd, ok := ev.(events.Command); ok {
		return "cmd:" + cmd.Name
	}
	if ev != nil && ev.Kind() == events.KindUnknown {
		return name + ":dropped"
	}
	return name
}

func logHandlerSummary(ctx context.Context, handler string, ev events.Event, start time.Time, err error) {
	status, outcome := "ok", "ok"
	if ev != nil && ev.Kind() == events.KindUnknown {
		status, outcome = "ok", "dropped"
	}
	if err != nil {
		status, outcome = "fail", "fail"
		if errors.Is(err, context.Canceled) {
			outcome = "cancelled"
		}
	}
	attrs := []slog.Attr{
		slog.String("status", status),
		slog.String("handler", handler),
		slog.String("outcome", outcome),
		slog.Int64("duration_ms", logger.RoundMS(time.Since(start)).Milliseconds()),
	}
	if ev != nil {
		attrs = append(attrs, slog.String("kind", string(ev.Kind())))
	}
	if err != nil {
		attrs = append(attrs,
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
			slog.String("err_code", deriveErrorCode(err)),
		)
	}
	logger.LogEvent(ctx, logger.Component(logger.CompTG), slog.LevelInfo, "handler.handled", attrs...)
}

func deriveErrorCode(err error) string {
	if err == nil {
		return ""
	}
	for {
		next := errors.Unwrap(err)
		if next == nil {
			break
		}
		err = next
	}
	t := reflect.TypeOf(err)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t != nil && t.Name() != "" {
		return strings.ToUpper(t.Name())
	}
	return "UNKNOWN_ERROR"
}
