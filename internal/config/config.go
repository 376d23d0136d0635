// Package config loads server configuration from environment variables with
// a small set of flag overrides.
package config

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	envVarListenAddr       = "BEACON_LISTEN_ADDR"
	envVarMode             = "BEACON_MODE"
	envVarLogFormat        = "BEACON_LOG_FORMAT"
	envVarLogLevel         = "BEACON_LOG_LEVEL"
	envVarShutdownTimeout  = "BEACON_SHUTDOWN_TIMEOUT"
	envVarSnapshotPath     = "BEACON_SNAPSHOT_PATH"
	envVarSnapshotInterval = "BEACON_SNAPSHOT_INTERVAL"
	envVarAllowedOrigins   = "ALLOWED_ORIGINS"

	// WebSocket hardening knobs.
	envVarWSIdleTimeout      = "WS_IDLE_TIMEOUT"
	envVarWSPingInterval     = "WS_PING_INTERVAL"
	envVarMaxEventBytes      = "MAX_EVENT_BYTES"
	envVarMaxEventsPerSecond = "MAX_EVENTS_PER_SECOND"
	envVarSendQueueSize      = "SEND_QUEUE_SIZE"
)

const (
	DefaultListenAddr            = "127.0.0.1:8080"
	DefaultShutdownTimeout       = 15 * time.Second
	DefaultSnapshotInterval      = 30 * time.Second
	DefaultWSIdleTimeout         = 60 * time.Second
	DefaultWSPingInterval        = 20 * time.Second
	DefaultMaxEventBytes         = int64(64 * 1024)
	DefaultMaxEventsPerSecond    = 50
	DefaultSendQueueSize         = 64
	DefaultMode             Mode = ModeDev
)

type Mode string

const (
	ModeDev  Mode = "dev"
	ModeProd Mode = "prod"
)

type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

type Config struct {
	ListenAddr      string
	Mode            Mode
	LogFormat       LogFormat
	LogLevel        slog.Level
	ShutdownTimeout time.Duration

	// Snapshot persistence. An empty path disables it.
	SnapshotPath     string
	SnapshotInterval time.Duration

	// AllowedOrigins is the websocket origin allowlist ("*" allows any). When
	// empty, dev mode allows any origin and prod mode requires same-host.
	AllowedOrigins []string

	WSIdleTimeout      time.Duration
	WSPingInterval     time.Duration
	MaxEventBytes      int64
	MaxEventsPerSecond int
	SendQueueSize      int
}

func Load(args []string) (Config, error) {
	return load(os.LookupEnv, args)
}

func load(lookup func(string) (string, bool), args []string) (Config, error) {
	modeStr := envOrDefault(lookup, envVarMode, string(DefaultMode))

	logFormatStr := envOrDefault(lookup, envVarLogFormat, defaultLogFormatForMode(modeStr))
	logLevelStr := envOrDefault(lookup, envVarLogLevel, defaultLogLevelForMode(modeStr))

	listenAddr := envOrDefault(lookup, envVarListenAddr, DefaultListenAddr)
	snapshotPath := envOrDefault(lookup, envVarSnapshotPath, "")

	shutdownTimeout, err := envDurationOrDefault(lookup, envVarShutdownTimeout, DefaultShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	snapshotInterval, err := envDurationOrDefault(lookup, envVarSnapshotInterval, DefaultSnapshotInterval)
	if err != nil {
		return Config{}, err
	}
	wsIdleTimeout, err := envDurationOrDefault(lookup, envVarWSIdleTimeout, DefaultWSIdleTimeout)
	if err != nil {
		return Config{}, err
	}
	wsPingInterval, err := envDurationOrDefault(lookup, envVarWSPingInterval, DefaultWSPingInterval)
	if err != nil {
		return Config{}, err
	}
	maxEventBytes, err := envIntOrDefault(lookup, envVarMaxEventBytes, int(DefaultMaxEventBytes))
	if err != nil {
		return Config{}, err
	}
	maxEventsPerSecond, err := envIntOrDefault(lookup, envVarMaxEventsPerSecond, DefaultMaxEventsPerSecond)
	if err != nil {
		return Config{}, err
	}
	sendQueueSize, err := envIntOrDefault(lookup, envVarSendQueueSize, DefaultSendQueueSize)
	if err != nil {
		return Config{}, err
	}

	var allowedOrigins []string
	for _, o := range strings.Split(envOrDefault(lookup, envVarAllowedOrigins, ""), ",") {
		if trimmed := strings.TrimSpace(o); trimmed != "" {
			allowedOrigins = append(allowedOrigins, trimmed)
		}
	}

	fs := flag.NewFlagSet("beacon-signaling", flag.ContinueOnError)
	fs.StringVar(&listenAddr, "listen-addr", listenAddr, "TCP address to listen on")
	fs.StringVar(&snapshotPath, "snapshot-path", snapshotPath, "path of the persisted state snapshot (empty disables)")
	fs.DurationVar(&snapshotInterval, "snapshot-interval", snapshotInterval, "interval between snapshot flushes")
	fs.StringVar(&modeStr, "mode", modeStr, "dev or prod")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	mode := Mode(strings.ToLower(strings.TrimSpace(modeStr)))
	switch mode {
	case ModeDev, ModeProd:
	case "production":
		mode = ModeProd
	default:
		return Config{}, fmt.Errorf("invalid %s %q: want dev or prod", envVarMode, modeStr)
	}

	logFormat := LogFormat(strings.ToLower(strings.TrimSpace(logFormatStr)))
	switch logFormat {
	case LogFormatText, LogFormatJSON:
	default:
		return Config{}, fmt.Errorf("invalid %s %q: want text or json", envVarLogFormat, logFormatStr)
	}

	logLevel, err := parseLogLevel(logLevelStr)
	if err != nil {
		return Config{}, err
	}

	if sendQueueSize <= 0 {
		return Config{}, fmt.Errorf("invalid %s %d: must be positive", envVarSendQueueSize, sendQueueSize)
	}
	if maxEventBytes <= 0 {
		return Config{}, fmt.Errorf("invalid %s %d: must be positive", envVarMaxEventBytes, maxEventBytes)
	}

	return Config{
		ListenAddr:         listenAddr,
		Mode:               mode,
		LogFormat:          logFormat,
		LogLevel:           logLevel,
		ShutdownTimeout:    shutdownTimeout,
		SnapshotPath:       snapshotPath,
		SnapshotInterval:   snapshotInterval,
		AllowedOrigins:     allowedOrigins,
		WSIdleTimeout:      wsIdleTimeout,
		WSPingInterval:     wsPingInterval,
		MaxEventBytes:      int64(maxEventBytes),
		MaxEventsPerSecond: maxEventsPerSecond,
		SendQueueSize:      sendQueueSize,
	}, nil
}

// NewLogger builds the process logger from the configured format and level.
func NewLogger(cfg Config) (*slog.Logger, error) {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}

	var handler slog.Handler
	switch cfg.LogFormat {
	case LogFormatText:
		handler = slog.NewTextHandler(os.Stdout, opts)
	case LogFormatJSON:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	default:
		return nil, fmt.Errorf("unsupported log format %q", cfg.LogFormat)
	}

	return slog.New(handler), nil
}

func envOrDefault(lookup func(string) (string, bool), key, fallback string) string {
	if v, ok := lookup(key); ok && v != "" {
		return v
	}
	return fallback
}

func envIntOrDefault(lookup func(string) (string, bool), key string, fallback int) (int, error) {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return n, nil
}

func envDurationOrDefault(lookup func(string) (string, bool), key string, fallback time.Duration) (time.Duration, error) {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return d, nil
}

func defaultLogFormatForMode(mode string) string {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case string(ModeProd), "production":
		return string(LogFormatJSON)
	default:
		return string(LogFormatText)
	}
}

func defaultLogLevelForMode(mode string) string {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case string(ModeProd), "production":
		return "info"
	default:
		return "debug"
	}
}

func parseLogLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("invalid %s %q", envVarLogLevel, raw)
	}
}
