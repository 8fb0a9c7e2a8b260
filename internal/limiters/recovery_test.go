package limiters

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLimiter(t *testing.T, cooldown time.Duration) (*RecoveryLimiter, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return NewRecoveryLimiter(rdb, RecoveryConfig{Cooldown: cooldown}), mr
}

func TestNotLimitedInitially(t *testing.T) {
	l, _ := newTestLimiter(t, 30*time.Minute)

	limited, err := l.IsLimited(context.Background(), "alice")
	if err != nil {
		t.Fatalf("IsLimited failed: %v", err)
	}
	if limited {
		t.Fatal("fresh username must not be limited")
	}
}

func TestLimitInstallsMarkerWithTTL(t *testing.T) {
	l, mr := newTestLimiter(t, 30*time.Minute)
	ctx := context.Background()

	if err := l.Limit(ctx, "alice"); err != nil {
		t.Fatalf("Limit failed: %v", err)
	}

	limited, err := l.IsLimited(ctx, "alice")
	if err != nil {
		t.Fatalf("IsLimited failed: %v", err)
	}
	if !limited {
		t.Fatal("expected limited after Limit")
	}

	ttl := mr.TTL("rl:recovery:alice")
	if ttl <= 0 || ttl > 30*time.Minute {
		t.Fatalf("unexpected marker TTL %v", ttl)
	}

	// Other usernames are unaffected.
	limited, err = l.IsLimited(ctx, "bob")
	if err != nil {
		t.Fatalf("IsLimited failed: %v", err)
	}
	if limited {
		t.Fatal("marker must be scoped per username")
	}
}

func TestLimitDoesNotRestartWindow(t *testing.T) {
	l, mr := newTestLimiter(t, 30*time.Minute)
	ctx := context.Background()

	if err := l.Limit(ctx, "alice"); err != nil {
		t.Fatalf("Limit failed: %v", err)
	}
	mr.FastForward(10 * time.Minute)

	if err := l.Limit(ctx, "alice"); err != nil {
		t.Fatalf("second Limit failed: %v", err)
	}

	ttl := mr.TTL("rl:recovery:alice")
	if ttl > 20*time.Minute {
		t.Fatalf("second Limit restarted the window: ttl %v", ttl)
	}
}

func TestMarkerExpires(t *testing.T) {
	l, mr := newTestLimiter(t, 30*time.Minute)
	ctx := context.Background()

	if err := l.Limit(ctx, "alice"); err != nil {
		t.Fatalf("Limit failed: %v", err)
	}
	mr.FastForward(31 * time.Minute)

	limited, err := l.IsLimited(ctx, "alice")
	if err != nil {
		t.Fatalf("IsLimited failed: %v", err)
	}
	if limited {
		t.Fatal("marker must expire with its TTL")
	}
}

func TestCacheFaultFailsClosed(t *testing.T) {
	l, mr := newTestLimiter(t, 30*time.Minute)
	mr.Close()

	limited, err := l.IsLimited(context.Background(), "alice")
	if !limited {
		t.Fatal("cache fault must report limited")
	}
	if !errors.Is(err, ErrRecoveryRedisUnavailable) {
		t.Fatalf("expected ErrRecoveryRedisUnavailable, got %v", err)
	}
}
