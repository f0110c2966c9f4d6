/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Database backend selection.
type DatabaseBackend string

const (
	DatabasePostgres DatabaseBackend = "postgres"
	DatabaseMySQL    DatabaseBackend = "mysql"
	DatabaseSQLite   DatabaseBackend = "sqlite"
)

// Config covers process level configuration read from environment variables.
type Config struct {
	Environment string
	HTTPBind    string
	HTTPPort    int
	BaseURL     string // Public base URL (e.g., http://192.168.195.6:8080)
	MetricsBind string

	DBBackend DatabaseBackend
	DBDSN     string

	// Video library storage
	MediaRoot string

	// S3 Object Storage configuration
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3Region          string
	S3Bucket          string
	S3Endpoint        string // For S3-compatible services (MinIO, Spaces, etc.)
	S3PublicBaseURL   string // Optional CDN/CloudFront URL
	S3UsePathStyle    bool   // Required for MinIO

	// Player configuration
	GStreamerBin  string
	RTMPIngestURL string        // Base ingest URL the player pushes to (stream key is appended)
	PlayerTimeout time.Duration // Ceiling on player start/stop/switch calls

	// Dispatcher configuration
	DispatchTick time.Duration

	// API auth (optional; status and listing stay public for the panel)
	APIAuthEnabled bool
	JWTSigningKey  string

	// Event bridges (optional)
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	NATSURL       string

	// Multi-instance configuration
	LeaderElectionEnabled bool
	InstanceID            string

	// Tracing configuration
	TracingEnabled    bool
	OTLPEndpoint      string
	TracingSampleRate float64
}

// Load reads environment variables, applies defaults, and validates the result.
func Load() (*Config, error) {
	cfg := &Config{
		Environment: getEnv("SIGNALCAST_ENV", "development"),
		HTTPBind:    getEnv("SIGNALCAST_HTTP_BIND", "0.0.0.0"),
		HTTPPort:    getEnvInt("SIGNALCAST_HTTP_PORT", 8080),
		BaseURL:     getEnv("SIGNALCAST_BASE_URL", ""),
		MetricsBind: getEnv("SIGNALCAST_METRICS_BIND", "127.0.0.1:9000"),

		DBBackend: DatabaseBackend(getEnv("SIGNALCAST_DB_BACKEND", string(DatabaseSQLite))),
		DBDSN:     getEnv("SIGNALCAST_DB_DSN", ""),

		MediaRoot: getEnv("SIGNALCAST_MEDIA_ROOT", "./media"),

		S3AccessKeyID:     getEnvAny([]string{"SIGNALCAST_S3_ACCESS_KEY_ID", "AWS_ACCESS_KEY_ID"}, ""),
		S3SecretAccessKey: getEnvAny([]string{"SIGNALCAST_S3_SECRET_ACCESS_KEY", "AWS_SECRET_ACCESS_KEY"}, ""),
		S3Region:          getEnvAny([]string{"SIGNALCAST_S3_REGION", "AWS_REGION"}, "us-east-1"),
		S3Bucket:          getEnvAny([]string{"SIGNALCAST_S3_BUCKET", "S3_BUCKET"}, ""),
		S3Endpoint:        getEnvAny([]string{"SIGNALCAST_S3_ENDPOINT", "S3_ENDPOINT"}, ""),
		S3PublicBaseURL:   getEnvAny([]string{"SIGNALCAST_S3_PUBLIC_BASE_URL", "S3_PUBLIC_BASE_URL"}, ""),
		S3UsePathStyle:    getEnvBool("SIGNALCAST_S3_USE_PATH_STYLE", false),

		GStreamerBin:  getEnv("SIGNALCAST_GSTREAMER_BIN", "gst-launch-1.0"),
		RTMPIngestURL: getEnv("SIGNALCAST_RTMP_INGEST_URL", "rtmp://localhost/live"),
		PlayerTimeout: time.Duration(getEnvInt("SIGNALCAST_PLAYER_TIMEOUT_SECONDS", 15)) * time.Second,

		DispatchTick: time.Duration(getEnvInt("SIGNALCAST_DISPATCH_TICK_MS", 1000)) * time.Millisecond,

		APIAuthEnabled: getEnvBool("SIGNALCAST_API_AUTH_ENABLED", false),
		JWTSigningKey:  getEnv("SIGNALCAST_JWT_SIGNING_KEY", ""),

		RedisAddr:     getEnv("SIGNALCAST_REDIS_ADDR", ""),
		RedisPassword: getEnv("SIGNALCAST_REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("SIGNALCAST_REDIS_DB", 0),
		NATSURL:       getEnv("SIGNALCAST_NATS_URL", ""),

		LeaderElectionEnabled: getEnvBool("SIGNALCAST_LEADER_ELECTION_ENABLED", false),
		InstanceID:            getEnv("SIGNALCAST_INSTANCE_ID", ""),

		TracingEnabled:    getEnvBool("SIGNALCAST_TRACING_ENABLED", false),
		OTLPEndpoint:      getEnv("SIGNALCAST_OTLP_ENDPOINT", "localhost:4317"),
		TracingSampleRate: getEnvFloat("SIGNALCAST_TRACING_SAMPLE_RATE", 1.0),
	}

	if cfg.DBBackend != DatabasePostgres && cfg.DBBackend != DatabaseMySQL && cfg.DBBackend != DatabaseSQLite {
		return nil, fmt.Errorf("unsupported database backend %q", cfg.DBBackend)
	}

	if cfg.DBDSN == "" {
		if cfg.DBBackend == DatabaseSQLite {
			cfg.DBDSN = "signalcast.db"
		} else {
			return nil, fmt.Errorf("SIGNALCAST_DB_DSN must be provided for backend %q", cfg.DBBackend)
		}
	}

	if cfg.APIAuthEnabled && cfg.JWTSigningKey == "" {
		return nil, fmt.Errorf("SIGNALCAST_JWT_SIGNING_KEY must be provided when API auth is enabled")
	}

	if cfg.DispatchTick < 100*time.Millisecond {
		return nil, fmt.Errorf("SIGNALCAST_DISPATCH_TICK_MS must be at least 100")
	}

	if cfg.LeaderElectionEnabled && cfg.RedisAddr == "" {
		return nil, fmt.Errorf("SIGNALCAST_REDIS_ADDR must be provided when leader election is enabled")
	}

	if strings.EqualFold(cfg.Environment, "production") && !strings.HasPrefix(cfg.RTMPIngestURL, "rtmp") {
		return nil, fmt.Errorf("SIGNALCAST_RTMP_INGEST_URL must be an rtmp:// or rtmps:// URL in production")
	}

	return cfg, nil
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getEnvInt(key string, def int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return def
}

// getEnvAny returns the first non-empty environment variable value from keys, or def if none set.
func getEnvAny(keys []string, def string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "true" || v == "1" || v == "yes" {
			return true
		}
		if v == "false" || v == "0" || v == "no" {
			return false
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			return parsed
		}
	}
	return def
}
