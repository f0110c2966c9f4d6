/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package events

import "sync"

// EventType enumerates event categories.
type EventType string

const (
	EventSessionStarted EventType = "session.started"
	EventSessionStopped EventType = "session.stopped"
	EventSessionFailed  EventType = "session.failed"
	EventItemChanged    EventType = "session.item_changed"
	EventItemSkipped    EventType = "session.item_skipped"
	EventTitleUpdated   EventType = "session.title_updated"

	EventScheduleCreated   EventType = "schedule.created"
	EventScheduleActivated EventType = "schedule.activated"
	EventScheduleCompleted EventType = "schedule.completed"
	EventScheduleMissed    EventType = "schedule.missed"
	EventScheduleCancelled EventType = "schedule.cancelled"

	EventVideoUploaded EventType = "library.video_uploaded"
	EventVideoDeleted  EventType = "library.video_deleted"
)

// All lists every event type, in the order bridges subscribe to them.
func All() []EventType {
	return []EventType{
		EventSessionStarted, EventSessionStopped, EventSessionFailed,
		EventItemChanged, EventItemSkipped, EventTitleUpdated,
		EventScheduleCreated, EventScheduleActivated, EventScheduleCompleted,
		EventScheduleMissed, EventScheduleCancelled,
		EventVideoUploaded, EventVideoDeleted,
	}
}

// Payload generic event payload.
type Payload map[string]any

// Subscriber receives event payloads.
type Subscriber chan Payload

// Bus implements a simple in-process pubsub.
type Bus struct {
	mu   sync.RWMutex
	subs map[EventType][]Subscriber
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[EventType][]Subscriber)}
}

// Subscribe registers a subscriber for event type.
func (b *Bus) Subscribe(eventType EventType) Subscriber {
	ch := make(Subscriber, 8)
	b.mu.Lock()
	b.subs[eventType] = append(b.subs[eventType], ch)
	b.mu.Unlock()
	return ch
}

// Publish sends payload to subscribers. Slow subscribers drop events rather
// than block the publisher.
func (b *Bus) Publish(eventType EventType, payload Payload) {
	b.mu.RLock()
	subs := append([]Subscriber(nil), b.subs[eventType]...)
	b.mu.RUnlock()
	for _, sub := range subs {
		select {
		case sub <- payload:
		default:
		}
	}
}

// Unsubscribe removes the subscriber.
func (b *Bus) Unsubscribe(eventType EventType, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subs[eventType]
	for i, candidate := range subs {
		if candidate == sub {
			subs = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	b.subs[eventType] = subs
	close(sub)
}
