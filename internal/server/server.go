/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/signalcast/internal/api"
	"github.com/friendsincode/signalcast/internal/config"
	"github.com/friendsincode/signalcast/internal/db"
	"github.com/friendsincode/signalcast/internal/dispatch"
	"github.com/friendsincode/signalcast/internal/engine"
	"github.com/friendsincode/signalcast/internal/eventbus"
	"github.com/friendsincode/signalcast/internal/events"
	"github.com/friendsincode/signalcast/internal/leadership"
	"github.com/friendsincode/signalcast/internal/library"
	"github.com/friendsincode/signalcast/internal/player"
	"github.com/friendsincode/signalcast/internal/schedule"
	"github.com/friendsincode/signalcast/internal/session"
	"github.com/friendsincode/signalcast/internal/telemetry"
)

// Server bundles the HTTP surface and the engine services behind it.
type Server struct {
	cfg        *config.Config
	logger     zerolog.Logger
	router     chi.Router
	httpServer *http.Server
	closers    []func() error

	db         *gorm.DB
	bus        *events.Bus
	library    *library.Service
	controller *session.Controller
	store      *schedule.Store
	dispatcher *dispatch.Dispatcher
	engine     *engine.Engine
	api        *api.API
	election   *leadership.Election

	metricsServer *http.Server

	bgCancel context.CancelFunc
	bgWG     sync.WaitGroup
}

// New constructs the server and wires dependencies.
func New(cfg *config.Config, logger zerolog.Logger) (*Server, error) {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(securityHeadersMiddleware)
	router.Use(telemetry.TracingMiddleware("signalcast-api"))
	router.Use(telemetry.MetricsMiddleware)
	// Skip timeout for WebSocket and upload connections
	router.Use(func(next http.Handler) http.Handler {
		timeout := middleware.Timeout(60 * time.Second)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Skip timeout middleware for WebSocket upgrade requests
			if r.Header.Get("Upgrade") == "websocket" {
				next.ServeHTTP(w, r)
				return
			}
			// Skip timeout for large uploads that can legitimately exceed the request deadline.
			if r.URL.Path == "/api/upload" {
				next.ServeHTTP(w, r)
				return
			}
			timeout(next).ServeHTTP(w, r)
		})
	})

	srv := &Server{
		cfg:    cfg,
		logger: logger,
		router: router,
		bus:    events.NewBus(),
	}

	if err := srv.initDependencies(); err != nil {
		return nil, err
	}

	srv.configureRoutes()
	srv.startBackgroundWorkers()

	addr := fmt.Sprintf("%s:%d", cfg.HTTPBind, cfg.HTTPPort)
	srv.httpServer = &http.Server{
		Addr:    addr,
		Handler: srv.router,
		// Keep header deadline to protect against slowloris, but do not enforce a full-body
		// read deadline so large uploads are not terminated mid-request.
		ReadHeaderTimeout: 15 * time.Second,
		ReadTimeout:       0,
		// WriteTimeout set to 0 for the event stream - handlers manage their own deadlines.
		// The middleware timeout (60s) handles everything else.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	return srv, nil
}

func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'; base-uri 'self'")

		// Only advertise HSTS for requests served over HTTPS.
		if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) initDependencies() error {
	database, err := db.Connect(s.cfg)
	if err != nil {
		return err
	}
	if err := db.Migrate(database); err != nil {
		return err
	}
	s.db = database
	s.DeferClose(func() error { return db.Close(database) })

	// Ensure media directory exists
	if err := os.MkdirAll(s.cfg.MediaRoot, 0755); err != nil {
		return fmt.Errorf("failed to create media directory %s: %w", s.cfg.MediaRoot, err)
	}
	s.logger.Info().Str("path", s.cfg.MediaRoot).Msg("media directory ready")

	lib, err := library.NewService(s.cfg, database, s.bus, s.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize media library: %w", err)
	}
	s.library = lib

	gst := player.NewGStreamerPlayer(s.cfg.GStreamerBin, s.cfg.RTMPIngestURL, s.logger)
	s.controller = session.NewController(gst, lib, s.bus, s.cfg.PlayerTimeout, s.logger)

	s.store = schedule.NewStore(database, s.bus, s.logger)

	// The dispatcher activates schedules only while holding leadership.
	// Single instance deployments run without an election and always dispatch.
	var leader dispatch.Leadership
	if s.cfg.LeaderElectionEnabled {
		electionConfig := leadership.DefaultConfig()
		electionConfig.RedisAddr = s.cfg.RedisAddr
		electionConfig.RedisPassword = s.cfg.RedisPassword
		electionConfig.RedisDB = s.cfg.RedisDB
		if s.cfg.InstanceID != "" {
			electionConfig.InstanceID = s.cfg.InstanceID
		}

		election, err := leadership.NewElection(electionConfig, s.logger)
		if err != nil {
			return fmt.Errorf("create leader election: %w", err)
		}
		s.election = election
		s.DeferClose(func() error { return election.Stop() })
		leader = election

		s.logger.Info().
			Str("redis_addr", s.cfg.RedisAddr).
			Str("instance_id", electionConfig.InstanceID).
			Msg("leader election enabled for dispatcher")
	}

	s.dispatcher = dispatch.NewDispatcher(s.store, s.controller, s.bus, leader, s.cfg.DispatchTick, s.logger)
	s.engine = engine.New(s.controller, s.store, s.dispatcher, s.logger)
	s.api = api.New(s.engine, lib, database, s.bus, []byte(s.cfg.JWTSigningKey), s.cfg.APIAuthEnabled, s.logger)

	if err := s.initBridges(); err != nil {
		return err
	}

	return nil
}

// initBridges connects the in-process event bus to external brokers when
// configured. Bridge failures are fatal at startup so misconfiguration is
// caught before the engine goes live.
func (s *Server) initBridges() error {
	nodeID := s.cfg.InstanceID
	if nodeID == "" {
		nodeID = uuid.NewString()
	}

	if s.cfg.RedisAddr != "" {
		redisCfg := eventbus.DefaultRedisConfig()
		redisCfg.Addr = s.cfg.RedisAddr
		redisCfg.Password = s.cfg.RedisPassword
		redisCfg.DB = s.cfg.RedisDB
		bridge, err := eventbus.NewRedisBridge(redisCfg, s.bus, nodeID, s.logger)
		if err != nil {
			return fmt.Errorf("create redis event bridge: %w", err)
		}
		s.DeferClose(bridge.Close)
		s.logger.Info().Str("redis_addr", s.cfg.RedisAddr).Msg("redis event bridge connected")
	}

	if s.cfg.NATSURL != "" {
		natsCfg := eventbus.DefaultNATSConfig()
		natsCfg.URL = s.cfg.NATSURL
		bridge, err := eventbus.NewNATSBridge(natsCfg, s.bus, nodeID, s.logger)
		if err != nil {
			return fmt.Errorf("create nats event bridge: %w", err)
		}
		s.DeferClose(bridge.Close)
		s.logger.Info().Str("nats_url", s.cfg.NATSURL).Msg("nats event bridge connected")
	}

	return nil
}

// HTTPServer exposes the underlying net/http server.
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// Close releases owned resources in reverse order.
func (s *Server) Close() error {
	s.stopBackgroundWorkers()
	var firstErr error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// DeferClose registers a cleanup hook.
func (s *Server) DeferClose(fn func() error) {
	s.closers = append(s.closers, fn)
}

func (s *Server) startBackgroundWorkers() {
	ctx, cancel := context.WithCancel(context.Background())
	s.bgCancel = cancel

	telemetry.ObserveBus(ctx, s.bus)

	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
		if err := s.controller.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error().Err(err).Msg("session controller loop exited")
		}
	}()

	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
		if err := s.dispatcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error().Err(err).Msg("dispatcher loop exited")
		}
	}()

	if s.election != nil {
		if err := s.election.Start(ctx); err != nil {
			s.logger.Error().Err(err).Msg("leader election failed to start")
		}
	}

	if s.cfg.MetricsBind != "" {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", telemetry.Handler())
		s.metricsServer = &http.Server{
			Addr:              s.cfg.MetricsBind,
			Handler:           metricsMux,
			ReadHeaderTimeout: 15 * time.Second,
		}
		// Not tracked by bgWG: the metrics listener is shut down by its
		// closer, after the worker goroutines have drained.
		go func() {
			if err := s.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.logger.Error().Err(err).Str("bind", s.cfg.MetricsBind).Msg("metrics server exited")
			}
		}()
		s.DeferClose(func() error {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			return s.metricsServer.Shutdown(shutdownCtx)
		})
	}
}

func (s *Server) stopBackgroundWorkers() {
	if s.bgCancel == nil {
		return
	}
	s.bgCancel()
	s.bgWG.Wait()
	s.bgCancel = nil
}

func (s *Server) configureRoutes() {
	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)

		response := `{"status":"ok"`
		if s.election != nil {
			if s.election.IsLeader() {
				response += `,"leader":true`
			} else {
				response += `,"leader":false`
			}
		}
		response += `}`
		_, _ = w.Write([]byte(response))
	})

	s.router.Handle("/metrics", telemetry.Handler())

	s.router.Route("/api", s.api.Routes)
}
