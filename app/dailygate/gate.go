// Package dailygate grants a media feature once per user, only during one wall-clock minute.
package dailygate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/m3rciful/gatekeeper/app/platform"
	"github.com/m3rciful/gatekeeper/app/store"
	"github.com/m3rciful/gatekeeper/core/keylock"
	"github.com/m3rciful/gatekeeper/core/logger"
	"github.com/m3rciful/gatekeeper/core/telegram/netutil"
)

// Result is the outcome of TryUse.
type Result string

const (
	Allowed           Result = "allowed"
	AlreadyUsedToday  Result = "already_used"
	OutsideWindow     Result = "outside_window"
	RemoteUnavailable Result = "remote_unavailable"
)

// Window is a single minute of the day in a location.
type Window struct {
	Hour     int
	Minute   int
	Location *time.Location
}

// Contains reports whether t falls inside the window minute.
func (w Window) Contains(t time.Time) bool {
	if w.Location != nil {
		t = t.In(w.Location)
	}
	return t.Hour() == w.Hour && t.Minute() == w.Minute
}

// Outcome carries the selected media when the result is Allowed.
type Outcome struct {
	Result Result
	URL    string
	Kind   platform.MediaKind
}

// Gate decides whether a user may use the feature now.
type Gate struct {
	window Window
	usage  store.UsageStore
	source MediaSource
	pick   func(n int) int
	locks  keylock.Map[int64]
}

// New returns a gate. pick chooses an index in [0, n); rand.IntN when nil.
func New(window Window, usage store.UsageStore, source MediaSource, pick func(n int) int) (*Gate, error) {
	if usage == nil || source == nil {
		return nil, errors.New("dailygate: usage store and media source are required")
	}
	if pick == nil {
		pick = rand.IntN
	}
	return &Gate{window: window, usage: usage, source: source, pick: pick}, nil
}

// TryUse checks the window and the user's usage, then picks a media URL and
// records the use. A failed index fetch is reported as RemoteUnavailable and
// leaves the user free to retry.
func (g *Gate) TryUse(ctx context.Context, userID int64, now time.Time) (Outcome, error) {
	if !g.window.Contains(now) {
		return g.done(ctx, userID, Outcome{Result: OutsideWindow}), nil
	}

	unlock := g.locks.Lock(userID)
	defer unlock()

	used, err := g.usage.Used(ctx, userID)
	if err != nil {
		return Outcome{}, fmt.Errorf("check usage: %w", err)
	}
	if used {
		return g.done(ctx, userID, Outcome{Result: AlreadyUsedToday}), nil
	}

	start := time.Now()
	urls, err := g.source.List(ctx)
	if err == nil && len(urls) == 0 {
		err = fmt.Errorf("%w: empty index", ErrRemoteUnavailable)
	}
	if err != nil {
		logger.Warn(ctx, logger.CompGate, "gate.index",
			slog.String("status", "fail"),
			slog.Int64("user_id", userID),
			slog.Duration("duration", logger.RoundMS(time.Since(start))),
			slog.String("err", err.Error()),
			slog.String("err_kind", netutil.Classify(err)),
		)
		return g.done(ctx, userID, Outcome{Result: RemoteUnavailable}), nil
	}

	url := urls[g.pick(len(urls))]
	first, err := g.usage.MarkUsed(ctx, userID)
	if err != nil {
		return Outcome{}, fmt.Errorf("record usage: %w", err)
	}
	if !first {
		return g.done(ctx, userID, Outcome{Result: AlreadyUsedToday}), nil
	}
	return g.done(ctx, userID, Outcome{Result: Allowed, URL: url, Kind: platform.ClassifyMedia(url)}), nil
}

// UsedCount returns how many users have used the feature.
func (g *Gate) UsedCount(ctx context.Context) (int, error) {
	return g.usage.Count(ctx)
}

// Window returns the configured minute.
func (g *Gate) Window() Window {
	return g.window
}

func (g *Gate) done(ctx context.Context, userID int64, out Outcome) Outcome {
	attrs := []slog.Attr{
		slog.Int64("user_id", userID),
		slog.String("result", string(out.Result)),
	}
	if out.URL != "" {
		attrs = append(attrs, slog.String("url", out.URL), slog.String("media_kind", string(out.Kind)))
	}
	logger.Info(ctx, logger.CompGate, "gate.try", attrs...)
	return out
}
