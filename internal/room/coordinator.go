// Package room manages ephemeral multi-party rooms: membership, message
// fan-out, and join/leave notifications.
package room

import (
	"crypto/rand"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/beaconrtc/beacon/internal/identity"
	"github.com/beaconrtc/beacon/internal/metrics"
)

// Outbound event names.
const (
	EventCreated    = "room-created"
	EventJoined     = "room-joined"
	EventUserJoined = "user-joined"
	EventUserLeft   = "user-left"
	EventMessage    = "room-message"
	EventActive     = "active-rooms"
	EventInvite     = "room-invite"
	EventError      = "room-error"
)

var ErrRoomNotFound = errors.New("room not found")

// codeAlphabet omits easily-confused characters; codes are meant to be read
// aloud and typed.
const (
	codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	codeLength   = 6
	codeAttempts = 3
)

// Emitter delivers a named event to one connection.
type Emitter interface {
	Emit(connID, event string, data any) bool
}

// Room is one named group of connections.
type Room struct {
	ID        string
	Name      string
	Creator   string
	Members   map[string]struct{}
	CreatedAt time.Time
}

// Info is the `active-rooms` list entry and the snapshot form of a room.
type Info struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Creator      string    `json:"creator"`
	Participants int       `json:"participants"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Participant appears in the `room-joined` member list.
type Participant struct {
	ConnID string `json:"connId"`
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
}

// CreatedOut is sent to a room's creator.
type CreatedOut struct {
	RoomID   string `json:"roomId"`
	RoomName string `json:"roomName"`
}

// JoinedOut is sent to a joiner with the resolved member list.
type JoinedOut struct {
	RoomID       string        `json:"roomId"`
	RoomName     string        `json:"roomName"`
	Participants []Participant `json:"participants"`
}

// MemberOut announces a join or leave to remaining members.
type MemberOut struct {
	UserName   string `json:"userName"`
	UserAvatar string `json:"userAvatar,omitempty"`
}

// MessageOut fans a room message out to the other members.
type MessageOut struct {
	From       string    `json:"from"`
	FromAvatar string    `json:"fromAvatar,omitempty"`
	Text       string    `json:"text"`
	Timestamp  time.Time `json:"timestamp"`
}

// InviteOut is relayed to the invited connection.
type InviteOut struct {
	RoomID      string `json:"roomId"`
	RoomName    string `json:"roomName"`
	InviterName string `json:"inviterName"`
}

// ErrorOut is the `room-error` payload.
type ErrorOut struct {
	Message string `json:"message"`
}

// Coordinator owns the room table. Not safe for concurrent use; the
// signaling hub serializes access.
type Coordinator struct {
	reg     *identity.Registry
	emitter Emitter
	metrics *metrics.Metrics
	logger  *slog.Logger

	rooms map[string]*Room
	now   func() time.Time
}

func NewCoordinator(reg *identity.Registry, emitter Emitter, m *metrics.Metrics, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = metrics.New()
	}
	return &Coordinator{
		reg:     reg,
		emitter: emitter,
		metrics: m,
		logger:  logger,
		rooms:   make(map[string]*Room),
		now:     time.Now,
	}
}

// Create makes a new room with a short unique code and seeds membership with
// the creator. Code collisions against live rooms are retried a few times;
// exhausting the attempts surfaces a generic room-error.
func (c *Coordinator) Create(connID, name string) {
	creator, ok := c.reg.Resolve(connID)
	if !ok {
		c.metrics.Inc(metrics.DropNotRegistered)
		return
	}

	var id string
	for attempt := 0; attempt < codeAttempts; attempt++ {
		code, err := newRoomCode()
		if err != nil {
			break
		}
		if _, taken := c.rooms[code]; !taken {
			id = code
			break
		}
	}
	if id == "" {
		c.emitter.Emit(connID, EventError, ErrorOut{Message: "could not create room"})
		return
	}

	c.rooms[id] = &Room{
		ID:        id,
		Name:      name,
		Creator:   creator.Name,
		Members:   map[string]struct{}{connID: {}},
		CreatedAt: c.now(),
	}
	c.emitter.Emit(connID, EventCreated, CreatedOut{RoomID: id, RoomName: name})
	c.metrics.Inc(metrics.EventRoomCreated)
	c.logger.Info("room created", "room", id, "name", name, "creator", creator.Name)
}

// Join adds connID to a room's membership, announces the join to existing
// members, and returns the joiner the current member list. Joining a room
// already joined does not duplicate membership or re-notify members.
func (c *Coordinator) Join(connID, roomID string) {
	joiner, ok := c.reg.Resolve(connID)
	if !ok {
		c.metrics.Inc(metrics.DropNotRegistered)
		return
	}
	room, ok := c.rooms[roomID]
	if !ok {
		c.emitter.Emit(connID, EventError, ErrorOut{Message: "room not found"})
		return
	}

	if _, already := room.Members[connID]; !already {
		for member := range room.Members {
			c.emitter.Emit(member, EventUserJoined, MemberOut{
				UserName:   joiner.Name,
				UserAvatar: joiner.Avatar,
			})
		}
		room.Members[connID] = struct{}{}
	}

	c.emitter.Emit(connID, EventJoined, JoinedOut{
		RoomID:       room.ID,
		RoomName:     room.Name,
		Participants: c.participants(room),
	})
	c.metrics.Inc(metrics.EventRoomJoined)
}

// Leave removes connID from a room, announces the departure, and deletes the
// room when it becomes empty.
func (c *Coordinator) Leave(connID, roomID string) {
	room, ok := c.rooms[roomID]
	if !ok {
		return
	}
	c.removeMember(room, connID)
}

// Broadcast relays a message to every other current member. The sender's
// client does its own local echo.
func (c *Coordinator) Broadcast(connID, roomID, text string) {
	sender, ok := c.reg.Resolve(connID)
	if !ok {
		c.metrics.Inc(metrics.DropNotRegistered)
		return
	}
	room, ok := c.rooms[roomID]
	if !ok {
		c.emitter.Emit(connID, EventError, ErrorOut{Message: "room not found"})
		return
	}
	if _, member := room.Members[connID]; !member {
		return
	}

	out := MessageOut{
		From:       sender.Name,
		FromAvatar: sender.Avatar,
		Text:       text,
		Timestamp:  c.now(),
	}
	for member := range room.Members {
		if member == connID {
			continue
		}
		c.emitter.Emit(member, EventMessage, out)
	}
	c.metrics.Inc(metrics.EventRoomMessage)
}

// Invite relays a room invitation to the target connection.
func (c *Coordinator) Invite(fromConn, roomID, roomName, toConn string) {
	inviter, ok := c.reg.Resolve(fromConn)
	if !ok {
		c.metrics.Inc(metrics.DropNotRegistered)
		return
	}
	if !c.emitter.Emit(toConn, EventInvite, InviteOut{
		RoomID:      roomID,
		RoomName:    roomName,
		InviterName: inviter.Name,
	}) {
		c.metrics.Inc(metrics.DropTargetGone)
	}
}

// Active returns a point-in-time listing of every live room, sorted by
// creation time then id.
func (c *Coordinator) Active() []Info {
	out := make([]Info, 0, len(c.rooms))
	for _, room := range c.rooms {
		out = append(out, Info{
			ID:           room.ID,
			Name:         room.Name,
			Creator:      room.Creator,
			Participants: len(room.Members),
			CreatedAt:    room.CreatedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// HandleDisconnect sweeps every room the connection belongs to, since a
// connection may be in several rooms at once.
func (c *Coordinator) HandleDisconnect(connID string) {
	for _, room := range c.rooms {
		if _, member := room.Members[connID]; member {
			c.removeMember(room, connID)
		}
	}
}

func (c *Coordinator) removeMember(room *Room, connID string) {
	if _, member := room.Members[connID]; !member {
		return
	}
	delete(room.Members, connID)

	if len(room.Members) == 0 {
		// Rooms never persist empty.
		delete(c.rooms, room.ID)
		c.logger.Info("room deleted", "room", room.ID)
		return
	}

	name := connID
	if id, ok := c.reg.Resolve(connID); ok {
		name = id.Name
	}
	for member := range room.Members {
		c.emitter.Emit(member, EventUserLeft, MemberOut{UserName: name})
	}
}

func (c *Coordinator) participants(room *Room) []Participant {
	out := make([]Participant, 0, len(room.Members))
	for member := range room.Members {
		p := Participant{ConnID: member}
		if id, ok := c.reg.Resolve(member); ok {
			p.Name = id.Name
			p.Avatar = id.Avatar
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ConnID < out[j].ConnID
	})
	return out
}

func newRoomCode() (string, error) {
	var buf [codeLength]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", err
	}
	for i := range buf {
		buf[i] = codeAlphabet[int(buf[i])%len(codeAlphabet)]
	}
	return string(buf[:]), nil
}
