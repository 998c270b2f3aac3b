// Copyright 2025 PodM Authors
// SPDX-License-Identifier: Apache-2.0

package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/LeeDigitalWorks/podm/pkg/logger"
	"github.com/LeeDigitalWorks/podm/pkg/utils"
)

// RedisConfig configures the distributed coordinator.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`

	KeyPrefix string `mapstructure:"key_prefix"`

	// LockTTL is how long a lock survives its holder crashing. Held locks
	// are refreshed every LockTTL/3.
	LockTTL time.Duration `mapstructure:"lock_ttl"`

	// RetryInterval is the base delay between acquire attempts.
	RetryInterval time.Duration `mapstructure:"retry_interval"`

	// Timeout bounds how long Run waits for a key. Zero waits for ctx.
	Timeout time.Duration `mapstructure:"timeout"`
}

func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:          "localhost:6379",
		KeyPrefix:     "podm:lock:",
		LockTTL:       30 * time.Second,
		RetryInterval: 50 * time.Millisecond,
	}
}

// Redis serializes work across PodM instances sharing a Redis server.
// Locks are SET NX PX with a random token, so only the holder can release
// or refresh them.
type Redis struct {
	client *redis.Client
	cfg    RedisConfig
}

var _ Coordinator = (*Redis)(nil)

// NewRedis connects to Redis and verifies the connection.
func NewRedis(cfg RedisConfig) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return NewRedisWithClient(client, cfg), nil
}

func NewRedisWithClient(client *redis.Client, cfg RedisConfig) *Redis {
	def := DefaultRedisConfig()
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = def.KeyPrefix
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = def.LockTTL
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = def.RetryInterval
	}
	return &Redis{client: client, cfg: cfg}
}

// releaseScript deletes the lock only if we still own it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0
`)

// refreshScript extends the lock only if we still own it.
var refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

func (r *Redis) Run(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	fullKey := r.cfg.KeyPrefix + key
	token := uuid.NewString()

	waitCtx, cancel := acquireContext(ctx, r.cfg.Timeout)
	defer cancel()

	start := time.Now()
	if err := r.acquire(waitCtx, fullKey, token); err != nil {
		if waitCtx.Err() != nil {
			return waitError(ctx, waitCtx, key)
		}
		return err
	}
	WaitDuration.WithLabelValues(keyLabel(key)).Observe(time.Since(start).Seconds())

	InFlight.Inc()
	defer InFlight.Dec()

	runCtx, stopRefresh := context.WithCancel(ctx)
	refreshed := make(chan struct{})
	go func() {
		defer close(refreshed)
		r.refresh(runCtx, fullKey, token)
	}()

	defer func() {
		stopRefresh()
		<-refreshed
		// release even when ctx is already cancelled
		relCtx, relCancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer relCancel()
		if err := releaseScript.Run(relCtx, r.client, []string{fullKey}, token).Err(); err != nil {
			logger.Warn().Err(err).Str("key", key).Msg("coordinator: lock release failed")
		}
	}()

	return fn(runCtx)
}

func (r *Redis) acquire(ctx context.Context, key, token string) error {
	for {
		ok, err := r.client.SetNX(ctx, key, token, r.cfg.LockTTL).Result()
		if err != nil && ctx.Err() == nil {
			return fmt.Errorf("coordinator: acquire %s: %w", key, err)
		}
		if ok {
			return nil
		}

		timer := time.NewTimer(utils.JitterUp(r.cfg.RetryInterval, 1))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (r *Redis) refresh(ctx context.Context, key, token string) {
	ticker := time.NewTicker(r.cfg.LockTTL / 3)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := refreshScript.Run(ctx, r.client, []string{key}, token, r.cfg.LockTTL.Milliseconds()).Int64()
			if err != nil {
				if !errors.Is(err, context.Canceled) {
					logger.Warn().Err(err).Str("key", key).Msg("coordinator: lock refresh failed")
				}
				continue
			}
			if n == 0 {
				logger.Error().Str("key", key).Msg("coordinator: lock lost while held")
				return
			}
		}
	}
}

func (r *Redis) Close() error {
	return r.client.Close()
}
