package dailygate

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/m3rciful/gatekeeper/app/platform"
	"github.com/m3rciful/gatekeeper/app/store"
	"github.com/m3rciful/gatekeeper/core/telegram/netutil"
)

type staticSource struct {
	urls  []string
	err   error
	calls atomic.Int32
}

func (s *staticSource) List(context.Context) ([]string, error) {
	s.calls.Add(1)
	return s.urls, s.err
}

func at(hour, minute, sec int) time.Time {
	return time.Date(2024, 3, 1, hour, minute, sec, 0, time.UTC)
}

func newGate(t *testing.T, src MediaSource) *Gate {
	t.Helper()
	g, err := New(Window{Hour: 21, Minute: 37, Location: time.UTC}, store.NewSet(), src, func(int) int { return 0 })
	if err != nil {
		t.Fatal(err)
	}
	return g
}

func TestTryUseOncePerUser(t *testing.T) {
	ctx := context.Background()
	g := newGate(t, &staticSource{urls: []string{"https://cdn/a.gif"}})

	out, err := g.TryUse(ctx, 1, at(21, 37, 0))
	if err != nil || out.Result != Allowed {
		t.Fatalf("first = %+v, %v", out, err)
	}
	if out.Kind != platform.MediaAnimation || out.URL != "https://cdn/a.gif" {
		t.Fatalf("media = %+v", out)
	}
	out, _ = g.TryUse(ctx, 1, at(21, 37, 0))
	if out.Result != AlreadyUsedToday {
		t.Fatalf("repeat = %s", out.Result)
	}
	out, _ = g.TryUse(ctx, 1, at(21, 38, 0))
	if out.Result != OutsideWindow {
		t.Fatalf("next minute = %s", out.Result)
	}
	out, _ = g.TryUse(ctx, 2, at(21, 38, 0))
	if out.Result != OutsideWindow {
		t.Fatalf("fresh user next minute = %s", out.Result)
	}
	out, _ = g.TryUse(ctx, 2, at(21, 37, 59))
	if out.Result != Allowed {
		t.Fatalf("end of minute = %s", out.Result)
	}
}

func TestTryUseRemoteFailureNotRecorded(t *testing.T) {
	ctx := context.Background()
	src := &staticSource{err: fmt.Errorf("%w: status 503", ErrRemoteUnavailable)}
	g := newGate(t, src)

	out, err := g.TryUse(ctx, 1, at(21, 37, 0))
	if err != nil || out.Result != RemoteUnavailable {
		t.Fatalf("failure = %+v, %v", out, err)
	}
	src.err = nil
	src.urls = []string{"https://cdn/b.jpg"}
	out, _ = g.TryUse(ctx, 1, at(21, 37, 10))
	if out.Result != Allowed || out.Kind != platform.MediaPhoto {
		t.Fatalf("retry = %+v", out)
	}
}

func TestTryUseEmptyIndexIsUnavailable(t *testing.T) {
	ctx := context.Background()
	src := &staticSource{urls: []string{}}
	g := newGate(t, src)

	out, err := g.TryUse(ctx, 1, at(21, 37, 0))
	if err != nil || out.Result != RemoteUnavailable {
		t.Fatalf("empty index = %+v, %v", out, err)
	}
	if used, _ := g.usage.Used(ctx, 1); used {
		t.Fatal("empty index recorded a use")
	}
}

func TestTryUseOutsideWindowSkipsFetch(t *testing.T) {
	src := &staticSource{urls: []string{"x"}}
	g := newGate(t, src)
	if out, _ := g.TryUse(context.Background(), 1, at(9, 37, 0)); out.Result != OutsideWindow {
		t.Fatalf("result = %s", out.Result)
	}
	if src.calls.Load() != 0 {
		t.Fatal("index fetched outside the window")
	}
}

func TestTryUseConcurrentSameUser(t *testing.T) {
	g := newGate(t, &staticSource{urls: []string{"https://cdn/a.png"}})
	var allowed atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := g.TryUse(context.Background(), 5, at(21, 37, 0))
			if err != nil {
				t.Errorf("try: %v", err)
			}
			if out.Result == Allowed {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()
	if allowed.Load() != 1 {
		t.Fatalf("allowed = %d", allowed.Load())
	}
}

func TestWindowUsesLocation(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*3600)
	w := Window{Hour: 21, Minute: 37, Location: loc}
	if !w.Contains(at(19, 37, 0)) {
		t.Fatal("19:37 UTC is 21:37 in UTC+2")
	}
	if w.Contains(at(21, 37, 0)) {
		t.Fatal("21:37 UTC is 23:37 in UTC+2")
	}
}

func TestHTTPSource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			fmt.Fprint(w, "# media\nhttps://cdn/a.gif\n\n  https://cdn/b.jpg  \n")
		case "/empty":
			fmt.Fprint(w, "\n# nothing\n")
		case "/slow":
			time.Sleep(200 * time.Millisecond)
			fmt.Fprint(w, "https://cdn/a.gif\n")
		default:
			http.Error(w, "gone", http.StatusNotFound)
		}
	}))
	defer srv.Close()

	urls, err := NewHTTPSource(srv.URL+"/ok", time.Second).List(context.Background())
	if err != nil || len(urls) != 2 || urls[1] != "https://cdn/b.jpg" {
		t.Fatalf("ok = %v, %v", urls, err)
	}
	for _, path := range []string{"/missing", "/empty"} {
		if _, err := NewHTTPSource(srv.URL+path, time.Second).List(context.Background()); !errors.Is(err, ErrRemoteUnavailable) {
			t.Fatalf("%s err = %v", path, err)
		}
	}
	_, err = NewHTTPSource(srv.URL+"/slow", 20*time.Millisecond).List(context.Background())
	if !errors.Is(err, ErrRemoteUnavailable) || netutil.Classify(err) != netutil.KindTimeout {
		t.Fatalf("timeout err = %v", err)
	}
	if _, err := NewHTTPSource("", time.Second).List(context.Background()); !errors.Is(err, ErrRemoteUnavailable) {
		t.Fatalf("no url err = %v", err)
	}
}
