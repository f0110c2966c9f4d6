/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package player

import (
	"context"
	"sync"
)

// MockPlayer is a scriptable Player for tests. Zero value is ready to use
// after NewMockPlayer.
type MockPlayer struct {
	mu       sync.Mutex
	started  []string
	switched []string
	stops    int
	playing  bool

	// FailStart, FailSwitch make the corresponding calls fail. FailSources
	// fails only the listed locators, for skip-on-failure scenarios.
	FailStart   error
	FailSwitch  error
	FailSources map[string]error

	// BlockStart, when non-nil, is waited on before Start returns; used to
	// exercise player timeouts and stop-during-start races.
	BlockStart chan struct{}

	notifications chan Notification
}

// NewMockPlayer creates a mock player.
func NewMockPlayer() *MockPlayer {
	return &MockPlayer{notifications: make(chan Notification, 16)}
}

func (m *MockPlayer) Start(ctx context.Context, sourceLocator, streamKey string) error {
	if m.BlockStart != nil {
		select {
		case <-m.BlockStart:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailStart != nil {
		return m.FailStart
	}
	if err := m.FailSources[sourceLocator]; err != nil {
		return err
	}
	m.started = append(m.started, sourceLocator)
	m.playing = true
	return nil
}

func (m *MockPlayer) Switch(ctx context.Context, sourceLocator string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailSwitch != nil {
		return m.FailSwitch
	}
	if err := m.FailSources[sourceLocator]; err != nil {
		return err
	}
	m.switched = append(m.switched, sourceLocator)
	m.playing = true
	return nil
}

func (m *MockPlayer) Stop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stops++
	m.playing = false
	return nil
}

func (m *MockPlayer) Notifications() <-chan Notification {
	return m.notifications
}

// EndItem simulates the current item finishing.
func (m *MockPlayer) EndItem() {
	m.notifications <- Notification{Kind: ItemEnded}
}

// Fail simulates a mid-play failure.
func (m *MockPlayer) Fail(err error) {
	m.notifications <- Notification{Kind: PlayerError, Err: err}
}

// Started returns the locators passed to Start.
func (m *MockPlayer) Started() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.started...)
}

// Switched returns the locators passed to Switch.
func (m *MockPlayer) Switched() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.switched...)
}

// Stops returns how many times Stop was called.
func (m *MockPlayer) Stops() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stops
}
