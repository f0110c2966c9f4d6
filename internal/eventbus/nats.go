/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/friendsincode/signalcast/internal/events"
)

// NATSConfig contains NATS connection configuration.
type NATSConfig struct {
	URL           string
	MaxReconnects int
	ReconnectWait time.Duration
	Timeout       time.Duration
}

// DefaultNATSConfig returns default NATS configuration.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
		Timeout:       5 * time.Second,
	}
}

// NATSBridge publishes engine events to NATS subjects, one subject per event
// type under "signalcast.events.". It is publish-only; remote consumers are
// dashboards and automation, not other engine instances.
type NATSBridge struct {
	conn   *nats.Conn
	local  *events.Bus
	nodeID string
	logger zerolog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewNATSBridge connects to NATS and starts forwarding local events.
func NewNATSBridge(cfg NATSConfig, local *events.Bus, nodeID string, logger zerolog.Logger) (*NATSBridge, error) {
	conn, err := nats.Connect(cfg.URL,
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.Timeout),
		nats.Name("signalcast-"+nodeID),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	b := &NATSBridge{
		conn:   conn,
		local:  local,
		nodeID: nodeID,
		logger: logger.With().Str("component", "nats_bridge").Logger(),
		cancel: cancel,
	}

	for _, eventType := range events.All() {
		eventType := eventType
		sub := local.Subscribe(eventType)
		b.wg.Add(1)
		go b.forward(ctx, eventType, sub)
	}

	b.logger.Info().Str("url", cfg.URL).Msg("nats event bridge started")
	return b, nil
}

func (b *NATSBridge) subject(eventType events.EventType) string {
	return "signalcast.events." + string(eventType)
}

func (b *NATSBridge) forward(ctx context.Context, eventType events.EventType, sub events.Subscriber) {
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
			if err := b.conn.Publish(b.subject(eventType), data); err != nil {
				// The client buffers through reconnects; a hard error here
				// means the event is gone, which is acceptable for a bridge.
				b.logger.Warn().Err(err).Str("event_type", string(eventType)).Msg("nats publish failed")
			}
		}
	}
}

// Close stops forwarding and drains the connection.
func (b *NATSBridge) Close() error {
	b.cancel()
	b.wg.Wait()
	if err := b.conn.Drain(); err != nil {
		b.conn.Close()
		return err
	}
	return nil
}
