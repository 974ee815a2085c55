package storage

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

type cachedUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *RedisClient) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	cfg := DefaultConfig()
	cfg.RedisURL = "redis://" + mr.Addr()

	client, err := NewRedisClient(cfg)
	if err != nil {
		t.Fatalf("failed to create redis client: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	return mr, client
}

func TestRedisClient_InvalidURL(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RedisURL = "not-a-url"

	if _, err := NewRedisClient(cfg); err == nil {
		t.Error("expected error for invalid redis URL")
	}
}

func TestRedisClient_JSONRoundTrip(t *testing.T) {
	_, client := newTestRedis(t)
	ctx := context.Background()

	in := cachedUser{ID: "u-1", Email: "asha@school.mh.in"}
	if err := client.SetJSON(ctx, "user:id:u-1", in, time.Minute); err != nil {
		t.Fatalf("SetJSON failed: %v", err)
	}

	var out cachedUser
	found, err := client.GetJSON(ctx, "user:id:u-1", &out)
	if err != nil {
		t.Fatalf("GetJSON failed: %v", err)
	}
	if !found {
		t.Fatal("expected cache hit")
	}
	if out != in {
		t.Errorf("got %+v, want %+v", out, in)
	}
}

func TestRedisClient_Miss(t *testing.T) {
	_, client := newTestRedis(t)

	var out cachedUser
	found, err := client.GetJSON(context.Background(), "user:id:missing", &out)
	if err != nil {
		t.Fatalf("GetJSON failed: %v", err)
	}
	if found {
		t.Error("expected cache miss")
	}
}

func TestRedisClient_CorruptEntryIsDropped(t *testing.T) {
	mr, client := newTestRedis(t)
	ctx := context.Background()

	mr.Set("user:id:bad", "{not json")

	var out cachedUser
	if _, err := client.GetJSON(ctx, "user:id:bad", &out); err == nil {
		t.Fatal("expected unmarshal error for corrupt entry")
	}

	// A second read should be a clean miss
	found, err := client.GetJSON(ctx, "user:id:bad", &out)
	if err != nil {
		t.Fatalf("GetJSON after drop failed: %v", err)
	}
	if found {
		t.Error("corrupt entry should have been deleted")
	}
}

func TestRedisClient_Del(t *testing.T) {
	_, client := newTestRedis(t)
	ctx := context.Background()

	client.SetJSON(ctx, "a", cachedUser{ID: "1"}, time.Minute)
	client.SetJSON(ctx, "b", cachedUser{ID: "2"}, time.Minute)

	if err := client.Del(ctx, "a", "b"); err != nil {
		t.Fatalf("Del failed: %v", err)
	}
	if err := client.Del(ctx); err != nil {
		t.Fatalf("Del with no keys should be a no-op, got %v", err)
	}

	var out cachedUser
	if found, _ := client.GetJSON(ctx, "a", &out); found {
		t.Error("key 'a' should be gone")
	}
}

func TestRedisClient_Counters(t *testing.T) {
	mr, client := newTestRedis(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := client.Incr(ctx, "ratelimit:login:10.0.0.1"); err != nil {
			t.Fatalf("Incr failed: %v", err)
		}
	}
	if err := client.Expire(ctx, "ratelimit:login:10.0.0.1", time.Minute); err != nil {
		t.Fatalf("Expire failed: %v", err)
	}

	n, err := client.Incr(ctx, "ratelimit:login:10.0.0.1")
	if err != nil {
		t.Fatalf("Incr failed: %v", err)
	}
	if n != 4 {
		t.Errorf("counter = %d, want 4", n)
	}

	ttl, err := client.TTL(ctx, "ratelimit:login:10.0.0.1")
	if err != nil {
		t.Fatalf("TTL failed: %v", err)
	}
	if ttl <= 0 {
		t.Errorf("expected positive TTL, got %v", ttl)
	}

	mr.FastForward(2 * time.Minute)
	if mr.Exists("ratelimit:login:10.0.0.1") {
		t.Error("counter should expire after the window")
	}
}
