// Package store keeps per-user verification and feature usage state.
package store

import (
	"context"
	"sync"
)

// PendingStore is the set of users restricted until they answer the challenge.
type PendingStore interface {
	// Add inserts userID if absent and reports whether it was inserted.
	Add(ctx context.Context, userID int64) (bool, error)
	// Remove deletes userID and reports whether it was present.
	Remove(ctx context.Context, userID int64) (bool, error)
	Contains(ctx context.Context, userID int64) (bool, error)
	Count(ctx context.Context) (int, error)
}

// UsageStore is the set of users who already used the daily feature.
type UsageStore interface {
	// MarkUsed records userID and reports whether this was its first use.
	MarkUsed(ctx context.Context, userID int64) (bool, error)
	Used(ctx context.Context, userID int64) (bool, error)
	Count(ctx context.Context) (int, error)
}

// Set is an in-memory user set satisfying both stores.
type Set struct {
	mu  sync.RWMutex
	ids map[int64]struct{}
}

// NewSet returns an empty set.
func NewSet() *Set {
	return &Set{ids: make(map[int64]struct{})}
}

func (s *Set) Add(_ context.Context, userID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ids[userID]; ok {
		return false, nil
	}
	s.ids[userID] = struct{}{}
	return true, nil
}

func (s *Set) Remove(_ context.Context, userID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ids[userID]; !ok {
		return false, nil
	}
	delete(s.ids, userID)
	return true, nil
}

func (s *Set) Contains(_ context.Context, userID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.ids[userID]
	return ok, nil
}

func (s *Set) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ids), nil
}

func (s *Set) MarkUsed(ctx context.Context, userID int64) (bool, error) {
	return s.Add(ctx, userID)
}

func (s *Set) Used(ctx context.Context, userID int64) (bool, error) {
	return s.Contains(ctx, userID)
}

var (
	_ PendingStore = (*Set)(nil)
	_ UsageStore   = (*Set)(nil)
)
