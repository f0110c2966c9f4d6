/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package telemetry

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/friendsincode/signalcast/internal/events"
)

const namespace = "signalcast"

// HTTP metrics, observed by MetricsMiddleware.
var (
	APIRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "api_requests_total",
		Help:      "HTTP requests by method, endpoint and status code.",
	}, []string{"method", "endpoint", "status"})

	APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "api_request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "endpoint", "status"})

	APIActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "api_active_connections",
		Help:      "In-flight HTTP requests.",
	})

	APIWebSocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "api_websocket_connections",
		Help:      "Connected event stream clients.",
	})
)

// Broadcast engine metrics, driven off the event bus.
var (
	SessionsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sessions_started_total",
		Help:      "Broadcast sessions that reached live.",
	})

	SessionsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sessions_failed_total",
		Help:      "Broadcast sessions that ended in failure.",
	})

	ItemsPlayed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "playlist_items_played_total",
		Help:      "Playlist item transitions pushed to the player.",
	})

	ItemsSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "playlist_items_skipped_total",
		Help:      "Playlist items skipped because they could not play.",
	})

	SchedulesActivated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "schedules_activated_total",
		Help:      "Schedules handed to a broadcast session.",
	})

	SchedulesCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "schedules_completed_total",
		Help:      "Schedules that reached their terminal state.",
	})

	SchedulesMissed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "schedules_missed_total",
		Help:      "Schedules whose window elapsed before activation.",
	})

	ActiveSession = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_session",
		Help:      "1 while a broadcast session is live.",
	})
)

// Leader election metrics.
var (
	LeaderElectionStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "leader_election_status",
		Help:      "1 while this instance holds the dispatcher lease.",
	}, []string{"instance"})

	LeaderElectionChanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "leader_election_changes_total",
		Help:      "Leadership transitions by instance and direction.",
	}, []string{"instance", "change"})
)

// Handler exposes the Prometheus metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveBus maps engine events onto metrics until ctx is cancelled.
func ObserveBus(ctx context.Context, bus *events.Bus) {
	type counterSub struct {
		eventType events.EventType
		observe   func()
	}
	subs := []counterSub{
		{events.EventSessionStarted, func() { SessionsStarted.Inc(); ActiveSession.Set(1) }},
		{events.EventSessionStopped, func() { ActiveSession.Set(0) }},
		{events.EventSessionFailed, func() { SessionsFailed.Inc(); ActiveSession.Set(0) }},
		{events.EventItemChanged, func() { ItemsPlayed.Inc() }},
		{events.EventItemSkipped, func() { ItemsSkipped.Inc() }},
		{events.EventScheduleActivated, func() { SchedulesActivated.Inc() }},
		{events.EventScheduleCompleted, func() { SchedulesCompleted.Inc() }},
		{events.EventScheduleMissed, func() { SchedulesMissed.Inc() }},
	}

	for _, s := range subs {
		s := s
		ch := bus.Subscribe(s.eventType)
		go func() {
			defer bus.Unsubscribe(s.eventType, ch)
			for {
				select {
				case <-ctx.Done():
					return
				case _, ok := <-ch:
					if !ok {
						return
					}
					s.observe()
				}
			}
		}()
	}
}
