package signaling

import (
	"encoding/json"

	"github.com/pion/webrtc/v4"

	"github.com/beaconrtc/beacon/internal/ledger"
)

// Inbound event names. Call and room outbound names live with their
// coordinators; these are the names clients send.
const (
	evRegister     = "register"
	evUpdateAvatar = "update-avatar"

	evChatMessage = "chatMessage"
	evChatHistory = "request-chat-history"
	evGetUnread   = "get-unread-messages"

	evOffer     = "webrtc-offer"
	evAnswer    = "webrtc-answer"
	evCandidate = "webrtc-icecandidate"
	evReject    = "webrtc-reject"
	evEndCall   = "webrtc-endcall"

	evCreateRoom  = "create-room"
	evJoinRoom    = "join-room"
	evLeaveRoom   = "leave-room"
	evRoomMessage = "room-message"
	evRoomInvite  = "room-invite"
	evActiveRooms = "get-active-rooms"
)

// Outbound event names emitted by the hub itself.
const (
	evUserList      = "user-list"
	evAvatarUpdated = "user-avatar-updated"
	evChatHistoryTo = "chat-history"
	evUnreadUpdate  = "unread-update"
)

// Envelope is the wire frame for every event in both directions: a name and
// an event-specific payload.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type outEnvelope struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

type registerIn struct {
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
}

type avatarIn struct {
	Avatar string `json:"avatar"`
}

type avatarUpdatedOut struct {
	UserName string `json:"userName"`
	Avatar   string `json:"avatar"`
}

type chatMessageIn struct {
	ToConnID   string      `json:"toConnId"`
	From       string      `json:"from"`
	TargetName string      `json:"targetName"`
	Text       string      `json:"text"`
	Type       ledger.Kind `json:"type,omitempty"`
	File       string      `json:"file,omitempty"`
}

type chatHistoryIn struct {
	User1    string `json:"user1"`
	User2    string `json:"user2"`
	WithUser string `json:"withUser"`
}

type chatHistoryOut struct {
	WithUser string           `json:"withUser"`
	Messages []ledger.Message `json:"messages"`
}

type unreadIn struct {
	UserName string `json:"userName"`
}

type offerIn struct {
	ToConnID string                    `json:"toConnId"`
	FromName string                    `json:"fromName"`
	SDP      webrtc.SessionDescription `json:"sdp"`
	IsVideo  bool                      `json:"isVideo,omitempty"`
}

type answerIn struct {
	ToConnID string                    `json:"toConnId"`
	SDP      webrtc.SessionDescription `json:"sdp"`
}

type candidateIn struct {
	ToConnID  string                  `json:"toConnId"`
	Candidate webrtc.ICECandidateInit `json:"candidate"`
}

// targetIn covers webrtc-reject and webrtc-endcall.
type targetIn struct {
	ToConnID string `json:"toConnId"`
}

type createRoomIn struct {
	RoomName string `json:"roomName"`
}

type roomIn struct {
	RoomID string `json:"roomId"`
}

type roomMessageIn struct {
	RoomID string `json:"roomId"`
	Text   string `json:"text"`
}

type roomInviteIn struct {
	RoomID   string `json:"roomId"`
	RoomName string `json:"roomName"`
	ToUserID string `json:"toUserId"`
}
