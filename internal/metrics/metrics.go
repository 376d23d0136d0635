package metrics

import "sync"

// Event counter names shared across packages. Keeping them in one place keeps
// the /metrics output predictable without a registry type per event.
const (
	EventRegister      = "register"
	EventDisconnect    = "disconnect"
	EventChatMessage   = "chat_message"
	EventCallOffer     = "call_offer"
	EventCallAnswer    = "call_answer"
	EventCallRejected  = "call_rejected"
	EventCallEnded     = "call_ended"
	EventRoomCreated   = "room_created"
	EventRoomJoined    = "room_joined"
	EventRoomMessage   = "room_message"
	EventSnapshotWrite = "snapshot_write"
	EventSnapshotError = "snapshot_write_error"

	DropSendQueueFull  = "drop_send_queue_full"
	DropRateLimited    = "drop_rate_limited"
	DropTargetGone     = "drop_target_gone"
	DropUnknownEvent   = "drop_unknown_event"
	DropNotRegistered  = "drop_not_registered"
	DropMalformedEvent = "drop_malformed_event"
)

// Metrics is a minimal, concurrency-safe counter registry.
//
// Counters are exposed in Prometheus' text format by PrometheusHandler; the
// registry itself stays a plain map so coordinator tests can assert on counts
// without scraping.
type Metrics struct {
	mu sync.Mutex
	m  map[string]uint64
}

func New() *Metrics {
	return &Metrics{m: make(map[string]uint64)}
}

func (m *Metrics) Inc(name string) {
	m.mu.Lock()
	m.m[name]++
	m.mu.Unlock()
}

func (m *Metrics) Get(name string) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.m[name]
}

// Snapshot returns a copy of every counter.
func (m *Metrics) Snapshot() map[string]uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]uint64, len(m.m))
	for k, v := range m.m {
		out[k] = v
	}
	return out
}
