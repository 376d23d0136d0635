// Package snapshot persists a best-effort copy of the coordination state.
//
// The snapshot is written on a fixed interval and on graceful shutdown, and
// read once at process start. It is explicitly not a durability guarantee:
// up to one interval of data may be lost on crash, and any read or write
// failure degrades to running with what is in memory.
package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/beaconrtc/beacon/internal/identity"
	"github.com/beaconrtc/beacon/internal/ledger"
	"github.com/beaconrtc/beacon/internal/metrics"
	"github.com/beaconrtc/beacon/internal/room"
)

// State is the persisted layout. Users are always seeded offline on load;
// the persisted online flag is never trusted across a restart.
type State struct {
	Users    []identity.Identity         `json:"users"`
	Calls    []ledger.CallRecord         `json:"calls"`
	Rooms    []room.Info                 `json:"rooms"`
	Messages map[string][]ledger.Message `json:"messages"`
	Unread   map[string]map[string]int   `json:"unread"`
}

// Store reads and writes the snapshot file.
type Store struct {
	path    string
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewStore returns a store writing to path. An empty path disables
// persistence: Load returns empty state and Write is a no-op.
func NewStore(path string, logger *slog.Logger, m *metrics.Metrics) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = metrics.New()
	}
	return &Store{path: path, logger: logger, metrics: m}
}

func (s *Store) Enabled() bool { return s.path != "" }

// Load reads the snapshot once at startup. A missing or corrupt file is not
// an error to the caller: the server falls back to empty initial state.
func (s *Store) Load() State {
	if !s.Enabled() {
		return State{}
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("snapshot unreadable, starting empty", "path", s.path, "err", err)
		}
		return State{}
	}

	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		s.logger.Warn("snapshot corrupt, starting empty", "path", s.path, "err", err)
		return State{}
	}
	for i := range st.Users {
		st.Users[i].Online = false
		st.Users[i].ConnID = ""
	}
	return st
}

// Write persists the state atomically (write temp, then rename) so a crash
// mid-write never leaves a half-written snapshot behind.
func (s *Store) Write(st State) error {
	if !s.Enabled() {
		return nil
	}

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp snapshot: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename snapshot: %w", err)
	}
	return nil
}

// Run flushes periodically until ctx is cancelled, then flushes one final
// time. source must return a consistent view of the state (the hub takes its
// lock), and failures are logged and counted but never fatal.
func (s *Store) Run(ctx context.Context, interval time.Duration, source func() State) {
	if !s.Enabled() || interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.flush(source)
		case <-ctx.Done():
			s.flush(source)
			return
		}
	}
}

func (s *Store) flush(source func() State) {
	if err := s.Write(source()); err != nil {
		s.metrics.Inc(metrics.EventSnapshotError)
		s.logger.Error("snapshot write failed", "path", s.path, "err", err)
		return
	}
	s.metrics.Inc(metrics.EventSnapshotWrite)
}
