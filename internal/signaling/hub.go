// Package signaling is the websocket transport and event dispatcher. It owns
// the live connection table and serializes every coordinator mutation behind
// one hub lock, so the registry, ledger, and coordinators run to completion
// without their own synchronization.
package signaling

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/beaconrtc/beacon/internal/call"
	"github.com/beaconrtc/beacon/internal/config"
	"github.com/beaconrtc/beacon/internal/identity"
	"github.com/beaconrtc/beacon/internal/ledger"
	"github.com/beaconrtc/beacon/internal/metrics"
	"github.com/beaconrtc/beacon/internal/room"
	"github.com/beaconrtc/beacon/internal/snapshot"
)

// Hub routes every inbound event to the owning coordinator.
type Hub struct {
	cfg     config.Config
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu      sync.Mutex
	clients map[string]*client

	registry *identity.Registry
	ledger   *ledger.Ledger
	calls    *call.Coordinator
	rooms    *room.Coordinator
}

func NewHub(cfg config.Config, logger *slog.Logger, m *metrics.Metrics) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = metrics.New()
	}

	h := &Hub{
		cfg:     cfg,
		logger:  logger,
		metrics: m,
		clients: make(map[string]*client),
	}
	h.registry = identity.NewRegistry()
	h.ledger = ledger.New()
	h.calls = call.NewCoordinator(h.registry, h.ledger, h, m, logger)
	h.rooms = room.NewCoordinator(h.registry, h, m, logger)
	return h
}

// Emit implements call.Emitter and room.Emitter. It runs while the hub lock
// is held, so it must never take the lock itself; it only marshals and hands
// the frame to the target's write pump.
func (h *Hub) Emit(connID, event string, data any) bool {
	c, ok := h.clients[connID]
	if !ok {
		return false
	}
	frame, err := json.Marshal(outEnvelope{Event: event, Data: data})
	if err != nil {
		h.logger.Error("marshal outbound event", "event", event, "err", err)
		return false
	}
	return c.enqueue(frame)
}

// broadcast sends one event to every live connection. Hub lock held.
func (h *Hub) broadcast(event string, data any) {
	frame, err := json.Marshal(outEnvelope{Event: event, Data: data})
	if err != nil {
		h.logger.Error("marshal broadcast event", "event", event, "err", err)
		return
	}
	for _, c := range h.clients {
		c.enqueue(frame)
	}
}

func (h *Hub) addClient(c *client) {
	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()
	h.logger.Debug("connection opened", "conn", c.id)
}

// dropClient tears a connection down exactly once: calls end first so peer
// notification can still resolve names, then rooms, then the registry entry.
func (h *Hub) dropClient(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, live := h.clients[c.id]; !live {
		return
	}
	delete(h.clients, c.id)
	c.closeSend()

	h.calls.HandleDisconnect(c.id)
	h.rooms.HandleDisconnect(c.id)

	if id, ok := h.registry.Disconnect(c.id); ok {
		h.metrics.Inc(metrics.EventDisconnect)
		h.broadcast(evUserList, h.registry.Online())
		h.logger.Info("user disconnected", "conn", c.id, "name", id.Name)
		return
	}
	h.logger.Debug("connection closed before registration", "conn", c.id)
}

func (h *Hub) dispatch(c *client, env Envelope) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if env.Event == evRegister {
		h.handleRegister(c, env.Data)
		return
	}

	sender, registered := h.registry.Resolve(c.id)
	if !registered {
		h.metrics.Inc(metrics.DropNotRegistered)
		h.logger.Debug("event before registration", "conn", c.id, "event", env.Event)
		return
	}

	switch env.Event {
	case evUpdateAvatar:
		var p avatarIn
		if !h.decode(env.Data, &p) {
			return
		}
		if id, ok := h.registry.UpdateAvatar(c.id, p.Avatar); ok {
			h.broadcast(evAvatarUpdated, avatarUpdatedOut{UserName: id.Name, Avatar: id.Avatar})
			h.broadcast(evUserList, h.registry.Online())
		}

	case evChatMessage:
		var p chatMessageIn
		if !h.decode(env.Data, &p) {
			return
		}
		msg := h.ledger.Append(sender.Name, p.TargetName, p.Text, p.Type, p.File)
		if !h.Emit(p.ToConnID, evChatMessage, msg) {
			h.metrics.Inc(metrics.DropTargetGone)
		}
		h.metrics.Inc(metrics.EventChatMessage)

	case evChatHistory:
		var p chatHistoryIn
		if !h.decode(env.Data, &p) {
			return
		}
		h.Emit(c.id, evChatHistoryTo, chatHistoryOut{
			WithUser: p.WithUser,
			Messages: h.ledger.History(p.User1, p.User2),
		})
		h.ledger.ClearUnread(sender.Name, p.WithUser)

	case evGetUnread:
		var p unreadIn
		if !h.decode(env.Data, &p) {
			return
		}
		if p.UserName == "" {
			p.UserName = sender.Name
		}
		h.Emit(c.id, evUnreadUpdate, h.ledger.UnreadCounts(p.UserName))

	case evOffer:
		var p offerIn
		if !h.decode(env.Data, &p) {
			return
		}
		h.calls.Offer(c.id, p.ToConnID, p.SDP, p.IsVideo)

	case evAnswer:
		var p answerIn
		if !h.decode(env.Data, &p) {
			return
		}
		h.calls.Answer(c.id, p.ToConnID, p.SDP)

	case evCandidate:
		var p candidateIn
		if !h.decode(env.Data, &p) {
			return
		}
		h.calls.Candidate(c.id, p.ToConnID, p.Candidate)

	case evReject:
		var p targetIn
		if !h.decode(env.Data, &p) {
			return
		}
		h.calls.Reject(c.id, p.ToConnID)

	case evEndCall:
		var p targetIn
		if !h.decode(env.Data, &p) {
			return
		}
		h.calls.End(c.id, p.ToConnID)

	case evCreateRoom:
		var p createRoomIn
		if !h.decode(env.Data, &p) {
			return
		}
		h.rooms.Create(c.id, p.RoomName)

	case evJoinRoom:
		var p roomIn
		if !h.decode(env.Data, &p) {
			return
		}
		h.rooms.Join(c.id, p.RoomID)

	case evLeaveRoom:
		var p roomIn
		if !h.decode(env.Data, &p) {
			return
		}
		h.rooms.Leave(c.id, p.RoomID)

	case evRoomMessage:
		var p roomMessageIn
		if !h.decode(env.Data, &p) {
			return
		}
		h.rooms.Broadcast(c.id, p.RoomID, p.Text)

	case evRoomInvite:
		var p roomInviteIn
		if !h.decode(env.Data, &p) {
			return
		}
		h.rooms.Invite(c.id, p.RoomID, p.RoomName, p.ToUserID)

	case evActiveRooms:
		h.Emit(c.id, room.EventActive, h.rooms.Active())

	default:
		h.metrics.Inc(metrics.DropUnknownEvent)
		h.logger.Debug("unknown event", "conn", c.id, "event", env.Event)
	}
}

func (h *Hub) handleRegister(c *client, raw json.RawMessage) {
	var p registerIn
	if !h.decode(raw, &p) {
		return
	}
	if p.Name == "" {
		h.metrics.Inc(metrics.DropMalformedEvent)
		return
	}

	id := h.registry.Register(c.id, p.Name, p.Avatar)
	h.metrics.Inc(metrics.EventRegister)
	h.broadcast(evUserList, h.registry.Online())
	h.logger.Info("user registered", "conn", c.id, "name", id.Name)
}

func (h *Hub) decode(raw json.RawMessage, v any) bool {
	if err := json.Unmarshal(raw, v); err != nil {
		h.metrics.Inc(metrics.DropMalformedEvent)
		return false
	}
	return true
}

// SnapshotState captures a consistent point-in-time copy of all durable
// state for the persistence store.
func (h *Hub) SnapshotState() snapshot.State {
	h.mu.Lock()
	defer h.mu.Unlock()

	return snapshot.State{
		Users:    h.registry.Known(),
		Calls:    h.ledger.Calls(),
		Rooms:    h.rooms.Active(),
		Messages: h.ledger.Messages(),
		Unread:   h.ledger.Unread(),
	}
}

// Seed restores persisted state before the hub starts accepting connections.
// Rooms are not restored: membership is keyed by connection id, and every
// connection from before the restart is gone.
func (h *Hub) Seed(st snapshot.State) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.registry.Seed(st.Users)
	h.ledger.Seed(st.Messages, st.Unread, st.Calls)
}
