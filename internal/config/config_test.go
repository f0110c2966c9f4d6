/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.DBBackend != DatabaseSQLite {
		t.Errorf("DBBackend = %q, want sqlite default", cfg.DBBackend)
	}
	if cfg.DBDSN != "signalcast.db" {
		t.Errorf("DBDSN = %q, want sqlite default DSN", cfg.DBDSN)
	}
	if cfg.HTTPPort != 8080 {
		t.Errorf("HTTPPort = %d, want 8080", cfg.HTTPPort)
	}
	if cfg.DispatchTick != time.Second {
		t.Errorf("DispatchTick = %v, want 1s", cfg.DispatchTick)
	}
	if cfg.PlayerTimeout != 15*time.Second {
		t.Errorf("PlayerTimeout = %v, want 15s", cfg.PlayerTimeout)
	}
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	t.Setenv("SIGNALCAST_DB_BACKEND", "oracle")
	if _, err := Load(); err == nil {
		t.Fatal("Load() accepted unknown database backend")
	}
}

func TestLoadRequiresDSNForPostgres(t *testing.T) {
	t.Setenv("SIGNALCAST_DB_BACKEND", "postgres")
	if _, err := Load(); err == nil {
		t.Fatal("Load() accepted postgres backend without DSN")
	}
}

func TestLoadRequiresSigningKeyWhenAuthEnabled(t *testing.T) {
	t.Setenv("SIGNALCAST_API_AUTH_ENABLED", "true")
	if _, err := Load(); err == nil {
		t.Fatal("Load() accepted enabled auth without signing key")
	}

	t.Setenv("SIGNALCAST_JWT_SIGNING_KEY", "secret")
	if _, err := Load(); err != nil {
		t.Fatalf("Load() error = %v with signing key set", err)
	}
}

func TestLoadRejectsTooFastTick(t *testing.T) {
	t.Setenv("SIGNALCAST_DISPATCH_TICK_MS", "10")
	if _, err := Load(); err == nil {
		t.Fatal("Load() accepted sub-100ms dispatch tick")
	}
}

func TestLoadRequiresRedisForLeaderElection(t *testing.T) {
	t.Setenv("SIGNALCAST_LEADER_ELECTION_ENABLED", "true")
	if _, err := Load(); err == nil {
		t.Fatal("Load() accepted leader election without redis addr")
	}
}
