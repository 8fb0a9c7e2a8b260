// Package limiters implements cache-backed cooldown gates.
package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrRecoveryRateLimited      = errors.New("recovery rate limited")
	ErrRecoveryRedisUnavailable = errors.New("recovery redis unavailable")
)

type RecoveryConfig struct {
	Cooldown time.Duration
}

// RecoveryLimiter enforces the per-username mnemonic-recovery cooldown. The
// marker is presence-only: its existence blocks further attempts regardless
// of how the blocking attempt ended.
type RecoveryLimiter struct {
	redis  redis.UniversalClient
	config RecoveryConfig
}

func NewRecoveryLimiter(redisClient redis.UniversalClient, cfg RecoveryConfig) *RecoveryLimiter {
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 1800 * time.Second
	}
	return &RecoveryLimiter{
		redis:  redisClient,
		config: cfg,
	}
}

// IsLimited reports whether a cooldown marker exists for the username. A
// cache fault fails closed: the caller receives limited=true and the error.
func (l *RecoveryLimiter) IsLimited(ctx context.Context, username string) (bool, error) {
	n, err := l.redis.Exists(ctx, recoveryKey(username)).Result()
	if err != nil {
		return true, fmt.Errorf("%w: %v", ErrRecoveryRedisUnavailable, err)
	}
	return n > 0, nil
}

// Limit installs the cooldown marker. SET NX keeps a concurrent install from
// restarting an already-running window.
func (l *RecoveryLimiter) Limit(ctx context.Context, username string) error {
	if err := l.redis.SetNX(ctx, recoveryKey(username), 1, l.config.Cooldown).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRecoveryRedisUnavailable, err)
	}
	return nil
}

// Cooldown returns the configured marker TTL.
func (l *RecoveryLimiter) Cooldown() time.Duration {
	return l.config.Cooldown
}

func recoveryKey(username string) string {
	return "rl:recovery:" + username
}
