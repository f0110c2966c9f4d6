/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package eventbus bridges the in-process event bus to external brokers so
// other deployments and dashboards can follow engine activity. The in-memory
// bus stays authoritative; bridges forward, they never gate.
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/friendsincode/signalcast/internal/events"
)

// RedisConfig contains Redis connection configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// MaxFailures consecutive publish failures trip the bridge into
	// local-only mode.
	MaxFailures int
}

// DefaultRedisConfig returns default Redis configuration.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		MaxFailures:  5,
	}
}

// RedisBridge mirrors local engine events onto Redis pub/sub channels, one
// channel per event type, and replays remote events onto the local bus.
type RedisBridge struct {
	client *redis.Client
	local  *events.Bus
	nodeID string
	logger zerolog.Logger

	mu        sync.Mutex
	failCount int
	maxFails  int
	tripped   bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRedisBridge connects to Redis and starts forwarding in both directions.
// A dead Redis leaves the local bus fully functional.
func NewRedisBridge(cfg RedisConfig, local *events.Bus, nodeID string, logger zerolog.Logger) (*RedisBridge, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer pingCancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	b := &RedisBridge{
		client:   client,
		local:    local,
		nodeID:   nodeID,
		logger:   logger.With().Str("component", "redis_bridge").Logger(),
		maxFails: cfg.MaxFailures,
		cancel:   cancel,
	}

	for _, eventType := range events.All() {
		eventType := eventType

		sub := local.Subscribe(eventType)
		b.wg.Add(1)
		go b.forwardLocal(ctx, eventType, sub)

		pubsub := client.Subscribe(ctx, b.channel(eventType))
		b.wg.Add(1)
		go b.forwardRemote(ctx, eventType, pubsub)
	}

	b.logger.Info().Str("addr", cfg.Addr).Msg("redis event bridge started")
	return b, nil
}

func (b *RedisBridge) channel(eventType events.EventType) string {
	return "signalcast:events:" + string(eventType)
}

// forwardLocal pushes local events out to Redis.
func (b *RedisBridge) forwardLocal(ctx context.Context, eventType events.EventType, sub events.Subscriber) {
	defer b.wg.Done()
	for {
		select {
		case <-ctx.Done():
			b.local.Unsubscribe(eventType, sub)
			return
		case payload, ok := <-sub:
			if !ok {
				return
			}
			if b.isTripped() {
				continue
			}
			data, err := json.Marshal(wireEvent{
				EventType: eventType,
				Payload:   payload,
				Timestamp: time.Now().UTC(),
				NodeID:    b.nodeID,
			})
			if err != nil {
				b.logger.Error().Err(err).Msg("marshal event")
				continue
			}
			pubCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
			err = b.client.Publish(pubCtx, b.channel(eventType), data).Err()
			cancel()
			if err != nil {
				b.logger.Warn().Err(err).Str("event_type", string(eventType)).Msg("redis publish failed")
				b.recordFailure()
				continue
			}
			b.resetFailures()
		}
	}
}

// forwardRemote replays events from other nodes onto the local bus.
func (b *RedisBridge) forwardRemote(ctx context.Context, eventType events.EventType, pubsub *redis.PubSub) {
	defer b.wg.Done()
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var ev wireEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				b.logger.Error().Err(err).Msg("unmarshal remote event")
				continue
			}
			// Our own events come back on the channel; drop them.
			if ev.NodeID == b.nodeID {
				continue
			}
			b.local.Publish(eventType, ev.Payload)
		}
	}
}

// Close stops forwarding and closes the Redis connection.
func (b *RedisBridge) Close() error {
	b.cancel()
	b.wg.Wait()
	return b.client.Close()
}

func (b *RedisBridge) isTripped() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tripped
}

func (b *RedisBridge) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failCount++
	if b.failCount >= b.maxFails && !b.tripped {
		b.tripped = true
		b.logger.Warn().Int("failures", b.failCount).Msg("redis bridge tripped, events stay local")
	}
}

func (b *RedisBridge) resetFailures() {
	b.mu.Lock()
	b.failCount = 0
	b.mu.Unlock()
}

// wireEvent is the envelope shared by the Redis and NATS bridges.
type wireEvent struct {
	EventType events.EventType `json:"event_type"`
	Payload   events.Payload   `json:"payload"`
	Timestamp time.Time        `json:"timestamp"`
	NodeID    string           `json:"node_id"`
}
