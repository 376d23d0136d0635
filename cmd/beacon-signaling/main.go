package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"sync"
	"syscall"

	"github.com/beaconrtc/beacon/internal/config"
	"github.com/beaconrtc/beacon/internal/httpserver"
	"github.com/beaconrtc/beacon/internal/metrics"
	"github.com/beaconrtc/beacon/internal/signaling"
	"github.com/beaconrtc/beacon/internal/snapshot"
)

var (
	// Set via -ldflags at build time. Values may be empty in local/dev builds.
	buildCommit = ""
	buildTime   = ""
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger, err := config.NewLogger(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	slog.SetDefault(logger)

	logger.Info("starting beacon-signaling",
		"listen_addr", cfg.ListenAddr,
		"mode", cfg.Mode,
		"snapshot_enabled", cfg.SnapshotPath != "",
		"snapshot_interval", cfg.SnapshotInterval,
		"ws_idle_timeout", cfg.WSIdleTimeout,
		"ws_ping_interval", cfg.WSPingInterval,
		"max_event_bytes", cfg.MaxEventBytes,
		"max_events_per_second", cfg.MaxEventsPerSecond,
		"send_queue_size", cfg.SendQueueSize,
	)

	logStartupWarnings(logger, cfg)

	m := metrics.New()
	hub := signaling.NewHub(cfg, logger, m)

	store := snapshot.NewStore(cfg.SnapshotPath, logger, m)
	if store.Enabled() {
		st := store.Load()
		hub.Seed(st)
		logger.Info("snapshot loaded",
			"path", cfg.SnapshotPath,
			"users", len(st.Users),
			"calls", len(st.Calls),
			"conversations", len(st.Messages),
		)
	}

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		logger.Error("failed to listen", "err", err)
		os.Exit(1)
	}

	commit, built := resolveBuildInfo(buildCommit, buildTime)
	srv := httpserver.New(cfg, logger, httpserver.BuildInfo{Commit: commit, BuildTime: built})

	srv.Mux().Handle("GET /ws", signaling.NewServer(hub, cfg, logger))
	srv.Mux().Handle("GET /metrics", metrics.PrometheusHandler(m))

	snapCtx, stopSnapshots := context.WithCancel(context.Background())
	var snapWG sync.WaitGroup
	if store.Enabled() {
		snapWG.Add(1)
		go func() {
			defer snapWG.Done()
			store.Run(snapCtx, cfg.SnapshotInterval, hub.SnapshotState)
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		stopSnapshots()
		snapWG.Wait()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server exited", "err", err)
			os.Exit(1)
		}
		return
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", "err", err)
	}

	// Cancelling the snapshot loop triggers its final flush.
	stopSnapshots()
	snapWG.Wait()

	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("http server exited after shutdown", "err", err)
		os.Exit(1)
	}
}

func resolveBuildInfo(commit, buildTime string) (string, string) {
	// Prefer ldflags-injected values (production builds) but fall back to the Go
	// build info when available (useful for `go run` / dev builds).
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				if commit == "" {
					commit = s.Value
				}
			case "vcs.time":
				if buildTime == "" {
					buildTime = s.Value
				}
			}
		}
	}

	return commit, buildTime
}
