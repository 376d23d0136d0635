package main

import (
	"log/slog"

	"github.com/beaconrtc/beacon/internal/config"
)

func logStartupWarnings(logger *slog.Logger, cfg config.Config) {
	if logger == nil {
		logger = slog.Default()
	}

	if containsString(cfg.AllowedOrigins, "*") {
		logger.Warn("startup security warning: ALLOWED_ORIGINS contains '*' (allows any origin)",
			"warning_code", "allowed_origins_wildcard",
			"allowed_origins", cfg.AllowedOrigins,
			"mode", cfg.Mode,
		)
	}

	if cfg.Mode == config.ModeProd && len(cfg.AllowedOrigins) == 0 {
		logger.Warn("startup security warning: ALLOWED_ORIGINS is empty while mode=prod (websocket upgrades restricted to same-host browsers)",
			"warning_code", "allowed_origins_empty_in_prod",
			"mode", cfg.Mode,
		)
	}

	if cfg.MaxEventsPerSecond <= 0 {
		logger.Warn("startup security warning: MAX_EVENTS_PER_SECOND is unset/0 (per-connection rate limiting disabled)",
			"warning_code", "rate_limit_disabled",
			"max_events_per_second", cfg.MaxEventsPerSecond,
			"mode", cfg.Mode,
		)
	}

	if cfg.Mode == config.ModeProd && cfg.SnapshotPath == "" {
		logger.Warn("startup warning: BEACON_SNAPSHOT_PATH is empty while mode=prod (chat history and call records lost on restart)",
			"warning_code", "snapshot_disabled_in_prod",
			"mode", cfg.Mode,
		)
	}

	// A very large frame cap weakens the oversized message hardening; avatars
	// and file references are the only bulky payloads expected.
	if cfg.MaxEventBytes > 1<<20 {
		logger.Warn("startup security warning: MAX_EVENT_BYTES is very large (increases per-event allocation risk)",
			"warning_code", "max_event_bytes_large",
			"max_event_bytes", cfg.MaxEventBytes,
			"mode", cfg.Mode,
		)
	}

	if cfg.WSPingInterval >= cfg.WSIdleTimeout {
		logger.Warn("startup warning: WS_PING_INTERVAL >= WS_IDLE_TIMEOUT (idle connections may be dropped between keepalives)",
			"warning_code", "ping_interval_exceeds_idle_timeout",
			"ws_ping_interval", cfg.WSPingInterval,
			"ws_idle_timeout", cfg.WSIdleTimeout,
		)
	}
}

func containsString(xs []string, v string) bool {
	for _, s := range xs {
		if s == v {
			return true
		}
	}
	return false
}
