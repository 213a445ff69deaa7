// Package config loads the client engine configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultGatewayURL is the websocket endpoint the client dials.
	DefaultGatewayURL = "ws://localhost:8432"
	// DefaultConnectAttempts bounds transport open retries per connect/reconnect.
	DefaultConnectAttempts = 12
	// DefaultConnectBackoff is the fixed delay between connect attempts.
	DefaultConnectBackoff = 5 * time.Second
	// DefaultRequestTimeout rejects a pending request that saw no response.
	DefaultRequestTimeout = 30 * time.Second
	// DefaultPingInterval controls the keepalive cadence on the websocket.
	DefaultPingInterval = 30 * time.Second
	// DefaultMaxPayloadBytes limits inbound websocket frame size.
	DefaultMaxPayloadBytes int64 = 1 << 20

	// DefaultLogLevel controls verbosity for client logs.
	DefaultLogLevel = "info"
	// DefaultLogMaxSizeMB caps the size of a single log file before rotation.
	DefaultLogMaxSizeMB = 50
	// DefaultLogMaxBackups limits retained rotated log files.
	DefaultLogMaxBackups = 5
	// DefaultLogCompress toggles gzip compression for rotated log files.
	DefaultLogCompress = true

	// DefaultDraftStorePath holds tracked games and draft orders.
	DefaultDraftStorePath = "dipnet-drafts.json"
)

// Config captures all runtime tunables for the client engine.
type Config struct {
	GatewayURL      string
	ConnectAttempts int
	ConnectBackoff  time.Duration
	RequestTimeout  time.Duration
	PingInterval    time.Duration
	MaxPayloadBytes int64
	ArchiveDir      string
	DraftStorePath  string
	Logging         LoggingConfig
}

// LoggingConfig captures structured logging configuration options.
type LoggingConfig struct {
	Level      string
	Path       string
	MaxSizeMB  int
	MaxBackups int
	Compress   bool
}

// Load reads the client configuration from environment variables, applying
// sane defaults and returning descriptive errors for invalid overrides.
func Load() (*Config, error) {
	cfg := &Config{
		GatewayURL:      getString("DIPNET_GATEWAY_URL", DefaultGatewayURL),
		ConnectAttempts: DefaultConnectAttempts,
		ConnectBackoff:  DefaultConnectBackoff,
		RequestTimeout:  DefaultRequestTimeout,
		PingInterval:    DefaultPingInterval,
		MaxPayloadBytes: DefaultMaxPayloadBytes,
		ArchiveDir:      strings.TrimSpace(os.Getenv("DIPNET_ARCHIVE_DIR")),
		DraftStorePath:  getString("DIPNET_DRAFT_STORE", DefaultDraftStorePath),
		Logging: LoggingConfig{
			Level:      strings.TrimSpace(getString("DIPNET_LOG_LEVEL", DefaultLogLevel)),
			Path:       strings.TrimSpace(os.Getenv("DIPNET_LOG_PATH")),
			MaxSizeMB:  DefaultLogMaxSizeMB,
			MaxBackups: DefaultLogMaxBackups,
			Compress:   DefaultLogCompress,
		},
	}

	var problems []string

	if raw := strings.TrimSpace(os.Getenv("DIPNET_CONNECT_ATTEMPTS")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("DIPNET_CONNECT_ATTEMPTS must be a positive integer, got %q", raw))
		} else {
			cfg.ConnectAttempts = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("DIPNET_CONNECT_BACKOFF")); raw != "" {
		duration, err := time.ParseDuration(raw)
		if err != nil || duration <= 0 {
			problems = append(problems, fmt.Sprintf("DIPNET_CONNECT_BACKOFF must be a positive duration, got %q", raw))
		} else {
			cfg.ConnectBackoff = duration
		}
	}

	if raw := strings.TrimSpace(os.Getenv("DIPNET_REQUEST_TIMEOUT")); raw != "" {
		duration, err := time.ParseDuration(raw)
		if err != nil || duration <= 0 {
			problems = append(problems, fmt.Sprintf("DIPNET_REQUEST_TIMEOUT must be a positive duration, got %q", raw))
		} else {
			cfg.RequestTimeout = duration
		}
	}

	if raw := strings.TrimSpace(os.Getenv("DIPNET_PING_INTERVAL")); raw != "" {
		duration, err := time.ParseDuration(raw)
		if err != nil || duration <= 0 {
			problems = append(problems, fmt.Sprintf("DIPNET_PING_INTERVAL must be a positive duration, got %q", raw))
		} else {
			cfg.PingInterval = duration
		}
	}

	if raw := strings.TrimSpace(os.Getenv("DIPNET_MAX_PAYLOAD_BYTES")); raw != "" {
		value, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("DIPNET_MAX_PAYLOAD_BYTES must be a positive integer, got %q", raw))
		} else {
			cfg.MaxPayloadBytes = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("DIPNET_LOG_MAX_SIZE_MB")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("DIPNET_LOG_MAX_SIZE_MB must be a positive integer, got %q", raw))
		} else {
			cfg.Logging.MaxSizeMB = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("DIPNET_LOG_MAX_BACKUPS")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			problems = append(problems, fmt.Sprintf("DIPNET_LOG_MAX_BACKUPS must be a non-negative integer, got %q", raw))
		} else {
			cfg.Logging.MaxBackups = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("DIPNET_LOG_COMPRESS")); raw != "" {
		value, err := strconv.ParseBool(raw)
		if err != nil {
			problems = append(problems, fmt.Sprintf("DIPNET_LOG_COMPRESS must be a boolean value, got %q", raw))
		} else {
			cfg.Logging.Compress = value
		}
	}

	if !strings.HasPrefix(cfg.GatewayURL, "ws://") && !strings.HasPrefix(cfg.GatewayURL, "wss://") {
		problems = append(problems, fmt.Sprintf("DIPNET_GATEWAY_URL must use the ws or wss scheme, got %q", cfg.GatewayURL))
	}

	if len(problems) > 0 {
		return nil, fmt.Errorf("%s", strings.Join(problems, "; "))
	}

	return cfg, nil
}

func getString(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}
