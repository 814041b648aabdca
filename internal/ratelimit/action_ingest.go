package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/pantheonhq/pantheon/internal/config"
)

const (
	keyActionIngestUser = "actions:ingest:user:%s"
	keyBundlePurgeLock  = "actions:purge:lock:%s"

	purgeLockTTL = 30 * time.Second
)

// ActionIngestLimiter throttles per-user action writes and serializes purges.
type ActionIngestLimiter struct {
	enabled bool

	bucket *TokenBucket
	locker *Locker

	rate  float64
	burst int
}

func NewActionIngestLimiter(cfg config.Config) (*ActionIngestLimiter, error) {
	limitCfg := cfg.RateLimit
	if !limitCfg.Enabled {
		return nil, nil
	}

	addr := strings.TrimSpace(limitCfg.RedisAddr)
	if addr == "" {
		return nil, errors.New("rate limit redis addr is required")
	}
	if limitCfg.Rate <= 0 || limitCfg.Burst <= 0 {
		return nil, errors.New("action ingest rate limit must be positive")
	}

	client := redis.NewClient(&redis.Options{Addr: addr})

	return &ActionIngestLimiter{
		enabled: true,
		bucket:  NewTokenBucket(client),
		locker:  NewLocker(client),
		rate:    float64(limitCfg.Rate),
		burst:   int(limitCfg.Burst),
	}, nil
}

func (l *ActionIngestLimiter) Enabled() bool {
	return l != nil && l.enabled
}

// AllowUser reports whether the user may record another action now.
func (l *ActionIngestLimiter) AllowUser(ctx context.Context, userID string) (*Result, error) {
	if !l.Enabled() {
		return &Result{Allowed: true}, nil
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyActionIngestUser, strings.TrimSpace(userID)), l.rate, l.burst)
}

// TryLockPurge acquires the per-user purge lock.
func (l *ActionIngestLimiter) TryLockPurge(ctx context.Context, userID string) (string, bool, error) {
	if !l.Enabled() {
		return "", true, nil
	}
	return l.locker.TryLock(ctx, fmt.Sprintf(keyBundlePurgeLock, strings.TrimSpace(userID)), purgeLockTTL)
}

// ReleasePurge releases a previously acquired purge lock.
func (l *ActionIngestLimiter) ReleasePurge(ctx context.Context, userID, token string) error {
	if !l.Enabled() {
		return nil
	}
	return l.locker.Release(ctx, fmt.Sprintf(keyBundlePurgeLock, strings.TrimSpace(userID)), token)
}
