package logger

import "sync"

// eventSampler keeps the first of every n records per event name.
type eventSampler struct {
	every uint64

	mu   sync.Mutex
	seen map[string]uint64
}

func newEventSampler(every int) *eventSampler {
	if every < 1 {
		every = 1
	}
	return &eventSampler{every: uint64(every), seen: make(map[string]uint64)}
}

func (s *eventSampler) allow(event string) bool {
	if s == nil || s.every == 1 {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.seen[event]
	s.seen[event] = n + 1
	return n%s.every == 0
}
