package config

import (
	"log/slog"
	"testing"
	"time"
)

func lookupFrom(env map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := load(lookupFrom(nil), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.ListenAddr != DefaultListenAddr {
		t.Errorf("ListenAddr = %q", cfg.ListenAddr)
	}
	if cfg.Mode != ModeDev {
		t.Errorf("Mode = %q", cfg.Mode)
	}
	if cfg.LogFormat != LogFormatText {
		t.Errorf("dev mode should default to text logs, got %q", cfg.LogFormat)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("dev mode should default to debug, got %v", cfg.LogLevel)
	}
	if cfg.SnapshotPath != "" {
		t.Errorf("snapshot should be disabled by default, got %q", cfg.SnapshotPath)
	}
	if cfg.SnapshotInterval != DefaultSnapshotInterval {
		t.Errorf("SnapshotInterval = %v", cfg.SnapshotInterval)
	}
	if cfg.MaxEventBytes != DefaultMaxEventBytes || cfg.MaxEventsPerSecond != DefaultMaxEventsPerSecond {
		t.Errorf("limits = %d, %d", cfg.MaxEventBytes, cfg.MaxEventsPerSecond)
	}
	if cfg.SendQueueSize != DefaultSendQueueSize {
		t.Errorf("SendQueueSize = %d", cfg.SendQueueSize)
	}
}

func TestLoadProdModeDefaults(t *testing.T) {
	cfg, err := load(lookupFrom(map[string]string{"BEACON_MODE": "prod"}), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LogFormat != LogFormatJSON {
		t.Errorf("prod mode should default to json logs, got %q", cfg.LogFormat)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("prod mode should default to info, got %v", cfg.LogLevel)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	env := map[string]string{
		"BEACON_LISTEN_ADDR":       "0.0.0.0:9000",
		"BEACON_SNAPSHOT_PATH":     "/var/lib/beacon/state.json",
		"BEACON_SNAPSHOT_INTERVAL": "1m",
		"ALLOWED_ORIGINS":          "https://a.example.com, https://b.example.com",
		"WS_IDLE_TIMEOUT":          "90s",
		"MAX_EVENTS_PER_SECOND":    "10",
		"SEND_QUEUE_SIZE":          "128",
	}
	cfg, err := load(lookupFrom(env), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.ListenAddr != "0.0.0.0:9000" {
		t.Errorf("ListenAddr = %q", cfg.ListenAddr)
	}
	if cfg.SnapshotPath != "/var/lib/beacon/state.json" || cfg.SnapshotInterval != time.Minute {
		t.Errorf("snapshot = %q %v", cfg.SnapshotPath, cfg.SnapshotInterval)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://b.example.com" {
		t.Errorf("AllowedOrigins = %v", cfg.AllowedOrigins)
	}
	if cfg.WSIdleTimeout != 90*time.Second {
		t.Errorf("WSIdleTimeout = %v", cfg.WSIdleTimeout)
	}
	if cfg.MaxEventsPerSecond != 10 || cfg.SendQueueSize != 128 {
		t.Errorf("limits = %d, %d", cfg.MaxEventsPerSecond, cfg.SendQueueSize)
	}
}

func TestLoadFlagsOverrideEnv(t *testing.T) {
	env := map[string]string{"BEACON_LISTEN_ADDR": "127.0.0.1:1111"}
	cfg, err := load(lookupFrom(env), []string{"-listen-addr", "127.0.0.1:2222", "-snapshot-path", "/tmp/s.json"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddr != "127.0.0.1:2222" {
		t.Errorf("flag should win over env, got %q", cfg.ListenAddr)
	}
	if cfg.SnapshotPath != "/tmp/s.json" {
		t.Errorf("SnapshotPath = %q", cfg.SnapshotPath)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := []map[string]string{
		{"BEACON_MODE": "staging"},
		{"BEACON_LOG_FORMAT": "xml"},
		{"BEACON_LOG_LEVEL": "loud"},
		{"BEACON_SHUTDOWN_TIMEOUT": "soon"},
		{"MAX_EVENT_BYTES": "-1"},
		{"SEND_QUEUE_SIZE": "0"},
		{"MAX_EVENTS_PER_SECOND": "ten"},
	}
	for _, env := range cases {
		if _, err := load(lookupFrom(env), nil); err == nil {
			t.Errorf("load(%v) should fail", env)
		}
	}
}

func TestNewLogger(t *testing.T) {
	for _, format := range []LogFormat{LogFormatText, LogFormatJSON} {
		cfg := Config{LogFormat: format, LogLevel: slog.LevelInfo}
		logger, err := NewLogger(cfg)
		if err != nil || logger == nil {
			t.Fatalf("NewLogger(%q) = (%v, %v)", format, logger, err)
		}
	}
	if _, err := NewLogger(Config{LogFormat: "xml"}); err == nil {
		t.Fatal("unsupported format should fail")
	}
}
