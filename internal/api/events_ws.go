/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	ws "nhooyr.io/websocket"

	"github.com/friendsincode/signalcast/internal/events"
	"github.com/friendsincode/signalcast/internal/telemetry"
)

// wsEvent is one event frame pushed to panel clients.
type wsEvent struct {
	Type      string         `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Data      events.Payload `json:"data,omitempty"`
}

// handleEvents streams engine events over a WebSocket. Every event type is
// forwarded; clients filter on their side.
func (a *API) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := ws.Accept(w, r, &ws.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		a.logger.Error().Err(err).Msg("websocket accept failed")
		return
	}
	defer conn.Close(ws.StatusInternalError, "server error")

	telemetry.APIWebSocketConnections.Inc()
	defer telemetry.APIWebSocketConnections.Dec()

	ctx := r.Context()
	merged := make(chan wsEvent, 64)

	var cancels []func()
	for _, eventType := range events.All() {
		eventType := eventType
		sub := a.bus.Subscribe(eventType)
		cancels = append(cancels, func() { a.bus.Unsubscribe(eventType, sub) })
		go func() {
			for payload := range sub {
				select {
				case merged <- wsEvent{Type: string(eventType), Timestamp: time.Now().UTC(), Data: payload}:
				case <-ctx.Done():
					return
				}
			}
		}()
	}
	defer func() {
		for _, cancel := range cancels {
			cancel()
		}
	}()

	a.logger.Debug().Str("remote", r.RemoteAddr).Msg("events websocket connected")

	// Drain client frames so pings and close frames are processed.
	readCtx, readCancel := context.WithCancel(ctx)
	defer readCancel()
	go func() {
		for {
			if _, _, err := conn.Read(readCtx); err != nil {
				readCancel()
				return
			}
		}
	}()

	for {
		select {
		case <-readCtx.Done():
			conn.Close(ws.StatusNormalClosure, "")
			return
		case ev := <-merged:
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := writeWSJSON(writeCtx, conn, ev)
			cancel()
			if err != nil {
				a.logger.Debug().Err(err).Msg("events websocket write failed")
				return
			}
		}
	}
}

func writeWSJSON(ctx context.Context, conn *ws.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return conn.Write(ctx, ws.MessageText, data)
}
