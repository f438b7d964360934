package redisstore

import (
	"context"
	"os"
	"testing"

	"github.com/go-redis/redis/v8"
)

func TestKeysUsePrefix(t *testing.T) {
	if got := NewPending(nil, "gk:").Key(); got != "gk:pending" {
		t.Fatalf("pending key = %q", got)
	}
	if got := NewUsage(nil, "gk:").Key(); got != "gk:usage" {
		t.Fatalf("usage key = %q", got)
	}
}

// Runs against a live server when GATEKEEPER_TEST_REDIS_ADDR is set.
func TestSetAgainstRedis(t *testing.T) {
	addr := os.Getenv("GATEKEEPER_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("GATEKEEPER_TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	s := NewPending(client, "gatekeeper_test:")
	client.Del(ctx, s.Key())
	t.Cleanup(func() { client.Del(context.Background(), s.Key()) })

	if added, err := s.Add(ctx, 5); err != nil || !added {
		t.Fatalf("add = %v, %v", added, err)
	}
	if added, _ := s.Add(ctx, 5); added {
		t.Fatal("re-add inserted")
	}
	if n, _ := s.Count(ctx); n != 1 {
		t.Fatalf("count = %d", n)
	}
	if ok, _ := s.Contains(ctx, 5); !ok {
		t.Fatal("missing member")
	}
	if removed, _ := s.Remove(ctx, 5); !removed {
		t.Fatal("remove failed")
	}
	if ok, _ := s.Contains(ctx, 5); ok {
		t.Fatal("member still present")
	}
}
