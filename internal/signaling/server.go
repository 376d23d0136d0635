package signaling

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/beaconrtc/beacon/internal/config"
	"github.com/beaconrtc/beacon/internal/origin"
)

// Server upgrades HTTP requests on the websocket route and runs each
// connection's pumps against the hub.
type Server struct {
	hub      *Hub
	cfg      config.Config
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

func NewServer(hub *Hub, cfg config.Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{hub: hub, cfg: cfg, logger: logger}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// checkOrigin applies the origin policy: requests without an Origin header
// (non-browser clients) always pass; browser origins must be well formed and
// then satisfy the allowlist, or same-host when none is configured. Dev mode
// with no allowlist accepts any valid origin.
func (s *Server) checkOrigin(r *http.Request) bool {
	header := r.Header.Get("Origin")
	if header == "" {
		return true
	}
	normalized, ok := origin.Normalize(header)
	if !ok {
		s.logger.Warn("rejecting malformed origin", "origin", header)
		return false
	}
	if len(s.cfg.AllowedOrigins) == 0 && s.cfg.Mode == config.ModeDev {
		return true
	}
	if !origin.Allowed(normalized, r.Host, s.cfg.AllowedOrigins) {
		s.logger.Warn("rejecting origin", "origin", normalized, "host", r.Host)
		return false
	}
	return true
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		s.logger.Debug("websocket upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}

	c := newClient(uuid.NewString(), s.hub, conn, s.cfg.SendQueueSize)
	s.hub.addClient(c)

	go c.writePump(s.cfg.WSPingInterval)
	c.readPump()
}
