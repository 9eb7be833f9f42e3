package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestLoginLimiter_BlocksAfterMaxAttempts(t *testing.T) {
	_, client := newTestRedis(t)
	l := NewLoginLimiter(client, 3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		blocked, err := l.Blocked(ctx, "ada@example.com")
		if err != nil {
			t.Fatalf("Blocked: %v", err)
		}
		if blocked {
			t.Fatalf("blocked after only %d failures", i)
		}
		if err := l.RecordFailure(ctx, "ada@example.com"); err != nil {
			t.Fatalf("RecordFailure: %v", err)
		}
	}

	blocked, err := l.Blocked(ctx, "ADA@example.com ")
	if err != nil || !blocked {
		t.Fatalf("expected blocked after 3 failures (case-insensitive key), got %v, %v", blocked, err)
	}

	if other, _ := l.Blocked(ctx, "grace@example.com"); other {
		t.Fatal("limit must be per email")
	}
}

func TestLoginLimiter_WindowExpires(t *testing.T) {
	mr, client := newTestRedis(t)
	l := NewLoginLimiter(client, 1, time.Minute)
	ctx := context.Background()

	_ = l.RecordFailure(ctx, "ada@example.com")
	if blocked, _ := l.Blocked(ctx, "ada@example.com"); !blocked {
		t.Fatal("expected blocked")
	}
	if ttl := mr.TTL("login:fail:ada@example.com"); ttl != time.Minute {
		t.Fatalf("expected window TTL of 1m, got %s", ttl)
	}

	mr.FastForward(time.Minute + time.Second)
	if blocked, _ := l.Blocked(ctx, "ada@example.com"); blocked {
		t.Fatal("expected window to expire")
	}
}

func TestLoginLimiter_Reset(t *testing.T) {
	_, client := newTestRedis(t)
	l := NewLoginLimiter(client, 1, time.Minute)
	ctx := context.Background()

	_ = l.RecordFailure(ctx, "ada@example.com")
	if err := l.Reset(ctx, "ada@example.com"); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if blocked, _ := l.Blocked(ctx, "ada@example.com"); blocked {
		t.Fatal("expected counter cleared")
	}
}

func TestLoginLimiter_Outage(t *testing.T) {
	mr, client := newTestRedis(t)
	l := NewLoginLimiter(client, 1, time.Minute)
	mr.Close()

	if _, err := l.Blocked(context.Background(), "ada@example.com"); err == nil {
		t.Fatal("expected error when redis is unreachable")
	}
}

func TestConnect_PingsServer(t *testing.T) {
	mr, _ := newTestRedis(t)

	client, err := Connect(context.Background(), Config{Addr: mr.Addr()})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	_ = client.Close()

	mr.Close()
	if _, err := Connect(context.Background(), Config{Addr: mr.Addr(), Timeout: 200 * time.Millisecond}); err == nil {
		t.Fatal("expected Connect to fail against a closed server")
	}
}

func TestNewClient_ConnectsLazily(t *testing.T) {
	mr, _ := newTestRedis(t)
	addr := mr.Addr()
	mr.Close()

	client := NewClient(Config{Addr: addr, Timeout: 200 * time.Millisecond})
	defer client.Close()

	if err := Ping(context.Background(), client, 200*time.Millisecond); err == nil {
		t.Fatal("expected ping to fail while the server is down")
	}

	if err := mr.Restart(); err != nil {
		t.Fatalf("restart miniredis: %v", err)
	}
	if err := Ping(context.Background(), client, time.Second); err != nil {
		t.Fatalf("expected the client to reconnect, got %v", err)
	}
}
