package logger

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"sync"
)

var errSinkClosed = errors.New("logger: sink closed")

// sink writes log lines to its outputs from one goroutine. Lines queued during
// a burst share a single flush.
type sink struct {
	lines chan []byte
	flush chan chan error
	done  chan struct{}
	out   *bufio.Writer

	mu     sync.RWMutex
	closed bool

	errMu sync.Mutex
	err   error
}

func newSink(outputs ...io.Writer) *sink {
	s := &sink{
		lines: make(chan []byte, 512),
		flush: make(chan chan error),
		done:  make(chan struct{}),
		out:   bufio.NewWriterSize(io.MultiWriter(outputs...), 32<<10),
	}
	go s.run()
	return s
}

func (s *sink) run() {
	defer close(s.done)
	for {
		select {
		case line, ok := <-s.lines:
			if !ok {
				s.record(s.out.Flush())
				return
			}
			s.write(line)
			if len(s.lines) == 0 {
				s.record(s.out.Flush())
			}
		case ack := <-s.flush:
			s.drain()
			err := s.out.Flush()
			s.record(err)
			ack <- err
		}
	}
}

// drain writes whatever is already queued without waiting for more.
func (s *sink) drain() {
	for {
		select {
		case line, ok := <-s.lines:
			if !ok {
				return
			}
			s.write(line)
		default:
			return
		}
	}
}

func (s *sink) write(line []byte) {
	_, err := s.out.Write(line)
	s.record(err)
}

func (s *sink) record(err error) {
	if err == nil {
		return
	}
	s.errMu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.errMu.Unlock()
}

func (s *sink) firstErr() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

// Write queues a copy of line. It blocks while the queue is full.
func (s *sink) Write(line []byte) error {
	if err := s.firstErr(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return errSinkClosed
	}
	s.lines <- bytes.Clone(line)
	return nil
}

// Flush returns once every line queued before the call reached the outputs.
func (s *sink) Flush() error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return s.firstErr()
	}
	ack := make(chan error, 1)
	s.flush <- ack
	s.mu.RUnlock()
	return <-ack
}

// Close drains the queue and stops the writer goroutine.
func (s *sink) Close() error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.lines)
	}
	s.mu.Unlock()
	<-s.done
	return s.firstErr()
}
