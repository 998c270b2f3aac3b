// Copyright 2025 PodM Authors
// SPDX-License-Identifier: Apache-2.0

package events

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/LeeDigitalWorks/podm/pkg/logger"
)

// RedisPublisher publishes notifications to Redis Pub/Sub channels named
// "{prefix}:{eventType}".
type RedisPublisher struct {
	client  *redis.Client
	channel string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int

	// Channel is the channel prefix (default "podm:events").
	Channel string

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

func DefaultRedisConfig(addr string) RedisConfig {
	return RedisConfig{
		Addr:         addr,
		Channel:      "podm:events",
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

func NewRedisPublisher(cfg RedisConfig) (*RedisPublisher, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis address is required")
	}
	if cfg.Channel == "" {
		cfg.Channel = "podm:events"
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 5 * time.Second
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	logger.Info().
		Str("addr", cfg.Addr).
		Str("channel", cfg.Channel).
		Msg("events: redis publisher connected")

	return &RedisPublisher{client: client, channel: cfg.Channel}, nil
}

func (p *RedisPublisher) Name() string { return "redis" }

// Channel returns the channel notifications of type t are published on.
func (p *RedisPublisher) Channel(t EventType) string {
	return p.channel + ":" + string(t)
}

func (p *RedisPublisher) Publish(ctx context.Context, n *Notification, data []byte) error {
	start := time.Now()
	channel := p.Channel(n.Type)

	result := p.client.Publish(ctx, channel, data)
	if err := result.Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	DeliveryDuration.WithLabelValues(p.Name()).Observe(time.Since(start).Seconds())

	logger.Ctx(ctx).Debug().
		Str("channel", channel).
		Int64("subscribers", result.Val()).
		Msg("events: published notification to redis")
	return nil
}

func (p *RedisPublisher) Close() error {
	if p.client != nil {
		return p.client.Close()
	}
	return nil
}
