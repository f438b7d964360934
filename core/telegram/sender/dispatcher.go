package sender

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/m3rciful/gatekeeper/core/logger"
	"github.com/m3rciful/gatekeeper/core/telegram/netutil"

	tele "gopkg.in/telebot.v4"
)

var (
	// ErrQueueClosed is returned when enqueue is attempted after dispatcher stop.
	ErrQueueClosed = errors.New("telegram sender: queue closed")
	// ErrQueueFull indicates the queue is saturated and the job was not accepted.
	ErrQueueFull = errors.New("telegram sender: queue full")

	tokenRe = regexp.MustCompile(`bot[0-9]+:[A-Za-z0-9_-]+`)
)

// Options controls the behaviour of the outbound dispatcher.
type Options struct {
	QueueSize    int
	Workers      int
	MaxRetries   int
	RetryBackoff time.Duration
	// MaxDuration bounds the time spent retrying a single job.
	MaxDuration time.Duration
}

type job struct {
	ctx      context.Context
	action   string
	endpoint string
	run      func() error
}

func (o Options) withDefaults() Options {
	if o.QueueSize <= 0 {
		o.QueueSize = 256
	}
	if o.Workers <= 0 {
		o.Workers = 4
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = 2 * time.Second
	}
	if o.MaxDuration <= 0 {
		o.MaxDuration = 12 * time.Second
	}
	o.MaxRetries = max(o.MaxRetries, 0)
	return o
}

// Dispatcher runs outbound Telegram calls on a worker pool with retries.
type Dispatcher struct {
	opts Options
	jobs chan job
	wg   sync.WaitGroup
	errs atomic.Uint64

	// mu guards closed and the send on jobs against Close.
	mu     sync.RWMutex
	closed bool
}

// NewDispatcher starts opts.Workers workers; zero options take defaults.
func NewDispatcher(opts Options) *Dispatcher {
	opts = opts.withDefaults()
	d := &Dispatcher{opts: opts, jobs: make(chan job, opts.QueueSize)}
	d.wg.Add(opts.Workers)
	for range opts.Workers {
		go func() {
			defer d.wg.Done()
			for j := range d.jobs {
				d.handleJob(j)
			}
		}()
	}
	return d
}

// Enqueue queues run without waiting. The job keeps the values of ctx but not
// its cancellation, so a reply queued by a finished event still gets its
// retries. run must be safe to repeat.
func (d *Dispatcher) Enqueue(ctx context.Context, action, endpoint string, run func() error) error {
	if run == nil {
		return errors.New("telegram sender: nil run function")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	j := job{ctx: context.WithoutCancel(ctx), action: action, endpoint: endpoint, run: run}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrQueueClosed
	}
	select {
	case d.jobs <- j:
		return nil
	default:
		return ErrQueueFull
	}
}

// Submit enqueues run and executes it inline when the queue cannot take it,
// so a reply is never lost to back-pressure.
func (d *Dispatcher) Submit(ctx context.Context, action, endpoint string, run func() error) error {
	if d == nil {
		return run()
	}
	err := d.Enqueue(ctx, action, endpoint, run)
	if errors.Is(err, ErrQueueFull) || errors.Is(err, ErrQueueClosed) {
		logger.Warn(ctx, logger.CompSender, "queue.fallback",
			slog.String("action", action),
			slog.String("endpoint", endpoint),
			slog.String("err", err.Error()),
		)
		return run()
	}
	return err
}

// ErrorCount returns how many jobs failed for good.
func (d *Dispatcher) ErrorCount() uint64 {
	return d.errs.Load()
}

// Close stops accepting jobs and waits until the queued ones are done.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.jobs)
	}
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) handleJob(j job) {
	ctx := j.ctx
	deadline, cancel := context.WithTimeout(ctx, d.opts.MaxDuration)
	defer cancel()

	start := time.Now()
	logger.Debug(ctx, logger.CompSender, "send.start", sendLogAttrs(j)...)

	attempts := d.opts.MaxRetries + 1
	attempt, err := d.attempt(deadline, j, attempts)
	elapsed := slog.Int64("elapsed_ms", logger.RoundMS(time.Since(start)).Milliseconds())
	if err != nil {
		d.errs.Add(1)
		logger.Error(ctx, logger.CompSender, "send.fail", append(sendLogAttrs(j),
			slog.String("error", sanitizeErrorMessage(err)),
			slog.String("error_kind", classifyError(err)),
			slog.Int("attempts", attempt),
			elapsed,
		)...)
		return
	}
	if attempt > 1 {
		logger.Info(ctx, logger.CompSender, "send.retry.success",
			append(sendLogAttrs(j), slog.Int("attempt", attempt), elapsed)...)
		return
	}
	logger.Debug(ctx, logger.CompSender, "send.success", append(sendLogAttrs(j), elapsed)...)
}

// attempt runs j until it succeeds, fails permanently, exhausts attempts or
// ctx expires. It returns the number of runs made and the last error.
func (d *Dispatcher) attempt(ctx context.Context, j job, attempts int) (int, error) {
	for n := 1; ; n++ {
		if err := ctx.Err(); err != nil {
			return n - 1, err
		}
		err := j.run()
		if err == nil {
			return n, nil
		}
		if n == attempts || !netutil.ShouldRetry(err) {
			return n, err
		}
		delay := d.opts.RetryBackoff * time.Duration(n)
		logger.Debug(ctx, logger.CompSender, "send.retry.backoff",
			append(sendLogAttrs(j), slog.Int("attempt", n), slog.Duration("delay", delay))...)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return n, ctx.Err()
		case <-timer.C:
		}
	}
}

func sendLogAttrs(j job) []slog.Attr {
	attrs := []slog.Attr{slog.String("action", j.action)}
	if j.endpoint != "" {
		attrs = append(attrs, slog.String("endpoint", j.endpoint))
	}
	return attrs
}

// classifyError extends the transport kinds with Bot API status classes.
func classifyError(err error) string {
	if kind := netutil.Classify(err); kind != netutil.KindUnknown {
		return kind
	}
	switch status := apiStatus(err); {
	case status >= 500:
		return "http_5xx"
	case status >= 400:
		return "http_4xx"
	}
	return netutil.KindUnknown
}

// sanitizeErrorMessage redacts bot tokens embedded in request URLs.
func sanitizeErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	return tokenRe.ReplaceAllString(err.Error(), "bot<redacted>")
}

var statusRe = regexp.MustCompile(`\((\d{3})\)\s*$`)

// apiStatus returns the HTTP status carried by a telebot error, or 0.
func apiStatus(err error) int {
	var apiErr *tele.Error
	var floodErr tele.FloodError
	var groupErr tele.GroupError
	switch {
	case errors.As(err, &apiErr):
		return apiErr.Code
	case errors.As(err, &floodErr):
		return http.StatusTooManyRequests
	case errors.As(err, &groupErr):
		return http.StatusBadRequest
	}
	if m := statusRe.FindStringSubmatch(err.Error()); m != nil {
		code, _ := strconv.Atoi(m[1])
		return code
	}
	return 0
}
