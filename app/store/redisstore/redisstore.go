// Package redisstore persists user sets as Redis sets.
package redisstore

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/go-redis/redis/v8"

	"github.com/m3rciful/gatekeeper/app/store"
	"github.com/m3rciful/gatekeeper/core/logger"
)

// Set is a user set stored under a single Redis key.
type Set struct {
	client redis.UniversalClient
	key    string
}

// NewPending returns the pending verification set under prefix+"pending".
func NewPending(client redis.UniversalClient, prefix string) *Set {
	return &Set{client: client, key: prefix + "pending"}
}

// NewUsage returns the feature usage set under prefix+"usage".
func NewUsage(client redis.UniversalClient, prefix string) *Set {
	return &Set{client: client, key: prefix + "usage"}
}

// Key returns the Redis key backing the set.
func (s *Set) Key() string { return s.key }

func (s *Set) Add(ctx context.Context, userID int64) (bool, error) {
	n, err := s.client.SAdd(ctx, s.key, member(userID)).Result()
	if err != nil {
		return false, s.fail(ctx, "sadd", err)
	}
	return n == 1, nil
}

func (s *Set) Remove(ctx context.Context, userID int64) (bool, error) {
	n, err := s.client.SRem(ctx, s.key, member(userID)).Result()
	if err != nil {
		return false, s.fail(ctx, "srem", err)
	}
	return n == 1, nil
}

func (s *Set) Contains(ctx context.Context, userID int64) (bool, error) {
	ok, err := s.client.SIsMember(ctx, s.key, member(userID)).Result()
	if err != nil {
		return false, s.fail(ctx, "sismember", err)
	}
	return ok, nil
}

func (s *Set) Count(ctx context.Context) (int, error) {
	n, err := s.client.SCard(ctx, s.key).Result()
	if err != nil {
		return 0, s.fail(ctx, "scard", err)
	}
	return int(n), nil
}

func (s *Set) MarkUsed(ctx context.Context, userID int64) (bool, error) {
	return s.Add(ctx, userID)
}

func (s *Set) Used(ctx context.Context, userID int64) (bool, error) {
	return s.Contains(ctx, userID)
}

func (s *Set) fail(ctx context.Context, op string, err error) error {
	logger.Error(ctx, logger.CompStore, "redis.command",
		slog.String("status", "fail"),
		slog.String("op", op),
		slog.String("key", s.key),
		slog.String("err", err.Error()),
	)
	return fmt.Errorf("redis %s %s: %w", op, s.key, err)
}

func member(userID int64) string {
	return strconv.FormatInt(userID, 10)
}

var (
	_ store.PendingStore = (*Set)(nil)
	_ store.UsageStore   = (*Set)(nil)
)
