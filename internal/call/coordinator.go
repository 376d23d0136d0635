// Package call mediates WebRTC offer/answer/ICE exchange between two
// connections and owns the pairing table.
//
// The coordinator transports SDP and ICE payloads opaquely: it never
// validates them or constructs a PeerConnection. All relays are
// fire-and-forget; a target that vanished between lookup and send simply
// does not receive the event.
package call

import (
	"log/slog"

	"github.com/pion/webrtc/v4"

	"github.com/beaconrtc/beacon/internal/identity"
	"github.com/beaconrtc/beacon/internal/ledger"
	"github.com/beaconrtc/beacon/internal/metrics"
)

// Outbound event names.
const (
	EventOffer     = "webrtc-offer"
	EventAnswer    = "webrtc-answer"
	EventCandidate = "webrtc-icecandidate"
	EventRejected  = "webrtc-rejected"
	EventEndCall   = "webrtc-endcall"
	EventCallEnded = "call-ended"
	EventError     = "call-error"
)

// State tracks where a connection is in the call lifecycle. Terminal
// transitions delete the pairing entry instead of storing an ended state.
type State int

const (
	StateIdle State = iota
	StateOffering
	StateRinging
	StateActive
)

func (s State) String() string {
	switch s {
	case StateOffering:
		return "offering"
	case StateRinging:
		return "ringing"
	case StateActive:
		return "active"
	default:
		return "idle"
	}
}

// Emitter delivers a named event to one connection. Emit reports whether the
// target connection was live at send time.
type Emitter interface {
	Emit(connID, event string, data any) bool
}

// OfferOut is forwarded to the callee.
type OfferOut struct {
	FromConnID string                    `json:"fromConnId"`
	FromName   string                    `json:"fromName"`
	FromAvatar string                    `json:"fromAvatar,omitempty"`
	SDP        webrtc.SessionDescription `json:"sdp"`
	IsVideo    bool                      `json:"isVideo"`
}

// AnswerOut is forwarded to the original caller.
type AnswerOut struct {
	FromConnID string                    `json:"fromConnId"`
	SDP        webrtc.SessionDescription `json:"sdp"`
}

// CandidateOut relays one ICE candidate.
type CandidateOut struct {
	Candidate webrtc.ICECandidateInit `json:"candidate"`
}

// ErrorOut is the `call-error` payload.
type ErrorOut struct {
	Message string `json:"message"`
}

type pairing struct {
	peer  string
	state State
}

// Coordinator implements the per-pair call state machine. Not safe for
// concurrent use; the signaling hub serializes access.
type Coordinator struct {
	reg     *identity.Registry
	log     *ledger.Ledger
	emitter Emitter
	metrics *metrics.Metrics
	logger  *slog.Logger

	pairs map[string]pairing
}

func NewCoordinator(reg *identity.Registry, led *ledger.Ledger, emitter Emitter, m *metrics.Metrics, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = metrics.New()
	}
	return &Coordinator{
		reg:     reg,
		log:     led,
		emitter: emitter,
		metrics: m,
		logger:  logger,
		pairs:   make(map[string]pairing),
	}
}

// StateOf reports the call state of a connection.
func (c *Coordinator) StateOf(connID string) State {
	return c.pairs[connID].state
}

// PeerOf returns the counterparty in connID's pairing entry.
func (c *Coordinator) PeerOf(connID string) (string, bool) {
	p, ok := c.pairs[connID]
	return p.peer, ok
}

// Offer relays a call offer from fromConn to toConn.
//
// The caller's busy state is deliberately not pre-checked: a busy callee's
// client answers with webrtc-reject itself. Existing pairing entries are
// never displaced by a new offer.
func (c *Coordinator) Offer(fromConn, toConn string, sdp webrtc.SessionDescription, isVideo bool) {
	caller, ok := c.reg.Resolve(fromConn)
	if !ok {
		c.metrics.Inc(metrics.DropNotRegistered)
		return
	}
	callee, ok := c.reg.Resolve(toConn)
	if !ok {
		c.emitter.Emit(fromConn, EventError, ErrorOut{Message: "user is no longer available"})
		c.metrics.Inc(metrics.DropTargetGone)
		return
	}

	if _, paired := c.pairs[fromConn]; !paired {
		c.pairs[fromConn] = pairing{peer: toConn, state: StateOffering}
	}
	if _, paired := c.pairs[toConn]; !paired {
		c.pairs[toConn] = pairing{peer: fromConn, state: StateRinging}
	}

	c.log.RecordOffer(caller.Name, callee.Name)
	c.emitter.Emit(toConn, EventOffer, OfferOut{
		FromConnID: fromConn,
		FromName:   caller.Name,
		FromAvatar: caller.Avatar,
		SDP:        sdp,
		IsVideo:    isVideo,
	})
	c.metrics.Inc(metrics.EventCallOffer)
	c.logger.Debug("call offer relayed", "from", caller.Name, "to", callee.Name, "video", isVideo)
}

// Answer relays the callee's answer back to the caller and activates the
// pairing. Answering without a recorded offer is an explicit error rather
// than a silent no-op.
func (c *Coordinator) Answer(fromConn, toConn string, sdp webrtc.SessionDescription) {
	p, ok := c.pairs[fromConn]
	if !ok || p.peer != toConn {
		c.emitter.Emit(fromConn, EventError, ErrorOut{Message: "no pending call"})
		return
	}

	c.pairs[fromConn] = pairing{peer: toConn, state: StateActive}
	if q, ok := c.pairs[toConn]; ok && q.peer == fromConn {
		c.pairs[toConn] = pairing{peer: fromConn, state: StateActive}
	}

	callee, _ := c.reg.Resolve(fromConn)
	caller, _ := c.reg.Resolve(toConn)
	c.log.MarkAnswered(caller.Name, callee.Name)

	c.emitter.Emit(toConn, EventAnswer, AnswerOut{FromConnID: fromConn, SDP: sdp})
	c.metrics.Inc(metrics.EventCallAnswer)
}

// Candidate relays one ICE candidate. Candidates are best-effort and may
// legitimately arrive after teardown, so a missing target is dropped
// silently.
func (c *Coordinator) Candidate(fromConn, toConn string, cand webrtc.ICECandidateInit) {
	if !c.emitter.Emit(toConn, EventCandidate, CandidateOut{Candidate: cand}) {
		c.metrics.Inc(metrics.DropTargetGone)
	}
}

// Reject notifies the offering party and clears the pairing for both
// directions. The rejection is archived from the callee's side.
func (c *Coordinator) Reject(fromConn, toConn string) {
	c.emitter.Emit(toConn, EventRejected, struct{}{})
	c.clearPair(fromConn, toConn)

	callee, okCallee := c.reg.Resolve(fromConn)
	caller, okCaller := c.reg.Resolve(toConn)
	if okCallee && okCaller {
		c.log.RecordRejected(callee.Name, caller.Name)
	}
	c.metrics.Inc(metrics.EventCallRejected)
}

// End notifies the counterpart, clears the pairing, and archives the call
// duration when the call had been answered.
func (c *Coordinator) End(fromConn, toConn string) {
	c.emitter.Emit(toConn, EventEndCall, struct{}{})
	c.emitter.Emit(toConn, EventCallEnded, struct{}{})
	c.emitter.Emit(fromConn, EventCallEnded, struct{}{})
	c.clearPair(fromConn, toConn)

	from, okFrom := c.reg.Resolve(fromConn)
	to, okTo := c.reg.Resolve(toConn)
	if okFrom && okTo {
		c.log.MarkEnded(from.Name, to.Name)
	}
	c.metrics.Inc(metrics.EventCallEnded)
}

// HandleDisconnect force-ends any pairing held by connID, notifying the
// counterpart exactly once. Runs on every disconnect regardless of role.
func (c *Coordinator) HandleDisconnect(connID string) {
	p, ok := c.pairs[connID]
	if !ok {
		return
	}

	c.emitter.Emit(p.peer, EventEndCall, struct{}{})
	c.emitter.Emit(p.peer, EventCallEnded, struct{}{})
	c.clearPair(connID, p.peer)

	// The registry entry may already be gone; duration bookkeeping is
	// best-effort on forced teardown.
	gone, okGone := c.reg.Resolve(connID)
	peer, okPeer := c.reg.Resolve(p.peer)
	if okGone && okPeer {
		c.log.MarkEnded(gone.Name, peer.Name)
	}
	c.metrics.Inc(metrics.EventCallEnded)
	c.logger.Debug("call torn down on disconnect", "conn", connID, "peer", p.peer)
}

// clearPair removes a's entry if it points at b, and b's entry if it points
// at a. Entries pairing either side with a third connection are preserved.
func (c *Coordinator) clearPair(a, b string) {
	if p, ok := c.pairs[a]; ok && p.peer == b {
		delete(c.pairs, a)
	}
	if p, ok := c.pairs[b]; ok && p.peer == a {
		delete(c.pairs, b)
	}
}
