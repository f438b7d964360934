package logger

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
)

func TestSinkDeliversConcurrentLines(t *testing.T) {
	var buf bytes.Buffer
	s := newSink(&buf)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				if err := s.Write([]byte(fmt.Sprintf("w%d-%d\n", w, i))); err != nil {
					t.Error(err)
					return
				}
			}
		}(w)
	}
	wg.Wait()
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if n := strings.Count(buf.String(), "\n"); n != 400 {
		t.Fatalf("lines = %d", n)
	}
	if err := s.Write([]byte("late\n")); !errors.Is(err, errSinkClosed) {
		t.Fatalf("write after close = %v", err)
	}
}

func TestSinkFlushWaitsForQueuedLines(t *testing.T) {
	var buf bytes.Buffer
	s := newSink(&buf)
	defer s.Close()

	for i := 0; i < 20; i++ {
		if err := s.Write([]byte("line\n")); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if n := strings.Count(buf.String(), "\n"); n != 20 {
		t.Fatalf("flushed lines = %d", n)
	}
}

type brokenOutput struct{}

func (brokenOutput) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestSinkReportsOutputFailure(t *testing.T) {
	s := newSink(brokenOutput{})
	if err := s.Write([]byte("x\n")); err != nil {
		t.Fatalf("first write = %v", err)
	}
	if err := s.Flush(); err == nil {
		t.Fatal("flush must surface the output error")
	}
	if err := s.Write([]byte("y\n")); err == nil {
		t.Fatal("writes after a failure must report it")
	}
	if err := s.Close(); err == nil {
		t.Fatal("close must report the output error")
	}
}

func TestEventSamplerPerEvent(t *testing.T) {
	s := newEventSampler(3)
	var got []bool
	for i := 0; i < 4; i++ {
		got = append(got, s.allow("update.received"))
	}
	if fmt.Sprint(got) != "[true false false true]" {
		t.Fatalf("update.received = %v", got)
	}
	if !s.allow("route.message") {
		t.Fatal("first record of another event must pass")
	}

	all := newEventSampler(0)
	for i := 0; i < 3; i++ {
		if !all.allow("db.query.add") {
			t.Fatal("sampling disabled must keep every record")
		}
	}
	var none *eventSampler
	if !none.allow("x") {
		t.Fatal("nil sampler must keep records")
	}
}

func TestSampleDebugNeedsDebugLevel(t *testing.T) {
	if SampleDebug(context.Background(), "route.message") {
		t.Fatal("debug sampling must be off before the logger is initialized")
	}
}
