// Package gateway owns the WebSocket lifecycle: player connections bound
// to a resident by a signed token, and read-only spectator connections
// bound to a target resident id from the query string. It is the only
// package that touches net/http or gorilla/websocket; everything it
// learns from a socket is translated into an arbiter.Request and handed
// to the scheduler goroutine, never applied to world state directly.
package gateway

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/havenport/worldserver/internal/arbiter"
	"github.com/havenport/worldserver/internal/auth"
	"github.com/havenport/worldserver/internal/config"
	"github.com/havenport/worldserver/internal/core/ecs"
	"github.com/havenport/worldserver/internal/world"
)

// clientEnvelope is the one shape every inbound message takes: an auth
// handshake or an action request.
type clientEnvelope struct {
	Type      string         `json:"type"`
	RequestID string         `json:"request_id,omitempty"`
	Token     string         `json:"token,omitempty"`
	Params    map[string]any `json:"params,omitempty"`
}

// outbound is the one shape every server-to-client message takes. Only
// the fields relevant to Type are populated; the rest are omitted.
type outbound struct {
	Type         string                `json:"type"`
	RequestID    string                `json:"request_id,omitempty"`
	Status       string                `json:"status,omitempty"`
	Reason       string                `json:"reason,omitempty"`
	Data         map[string]any        `json:"data,omitempty"`
	Code         int                   `json:"code,omitempty"`
	Message      string                `json:"message,omitempty"`
	Source       string                `json:"source,omitempty"`
	Intensity    float64               `json:"intensity,omitempty"`
	NeedsSnapshot *world.PainMessage   `json:"needs_snapshot,omitempty"`
	Perception   any                   `json:"perception,omitempty"`
	Resident     any                   `json:"resident,omitempty"`
	MapURL       string                `json:"map_url,omitempty"`
	WorldSeconds int64                 `json:"world_seconds,omitempty"`
	Title        string                `json:"title,omitempty"`
	Version      string                `json:"version,omitempty"`
}

// welcomeSnapshot is the resident-facing summary attached to the welcome
// packet: identity and position only, not the full perception filter.
type welcomeSnapshot struct {
	ID          string  `json:"id"`
	Passport    string  `json:"passport"`
	DisplayName string  `json:"display_name"`
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
}

// Server accepts WebSocket upgrades for both modes and holds the
// connection registry the perception and disconnect systems drain each
// tick. Removal happens on the closing connection's own goroutine
// (unregister), so every read and write of the registry maps takes mu.
type Server struct {
	world    *world.State
	tokens   *auth.Tokens
	requests *arbiter.System
	net      config.NetworkConfig
	rate     config.RateLimitConfig
	srv      config.ServerConfig
	log      *zap.Logger

	upgrader websocket.Upgrader
	// connIDs hands out and retires the ephemeral per-connection handles
	// embedded in Connection.id; unlike the teacher's original per-tick
	// gameplay use, entities here never carry components, just identity.
	connIDs *ecs.EntityPool

	mu         sync.Mutex
	byResident map[string]*Connection // residentID -> bound player connection
	spectators map[*Connection]string // connection -> watched resident id

	disconnects chan string
	admissions  chan admission
}

// admission is a freshly-upgraded socket awaiting the resident-existence
// check that only the scheduler goroutine may perform. claims is nil for
// a spectator admission.
type admission struct {
	conn   *Connection
	claims *auth.ConnectionClaims
}

func NewServer(w *world.State, tokens *auth.Tokens, requests *arbiter.System, net config.NetworkConfig, rate config.RateLimitConfig, srv config.ServerConfig, log *zap.Logger) *Server {
	return &Server{
		world:       w,
		tokens:      tokens,
		requests:    requests,
		net:         net,
		rate:        rate,
		srv:         srv,
		log:         log,
		upgrader:    websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		connIDs:     ecs.NewEntityPool(),
		byResident:  make(map[string]*Connection),
		spectators:  make(map[*Connection]string),
		disconnects: make(chan string, 256),
		admissions:  make(chan admission, 256),
	}
}

// nextConnID allocates a fresh connection handle. serveWS runs on
// net/http's per-request goroutine, so allocation needs the same lock
// that guards the registry maps.
func (s *Server) nextConnID() ecs.EntityID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connIDs.Create()
}

// Routes mounts the single WebSocket endpoint on mux.
func (s *Server) Routes(mux *http.ServeMux) {
	mux.HandleFunc(s.net.WebSocketPath, s.serveWS)
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	if target := r.URL.Query().Get("target"); target != "" {
		s.serveSpectator(w, r, target)
		return
	}
	s.servePlayer(w, r)
}

// servePlayer upgrades the socket and authenticates (query token or the
// first auth{} message), then hands the connection to GatewaySystem for
// the resident-existence check and welcome reply. Both must run on the
// scheduler goroutine, same as every world.State read.
func (s *Server) servePlayer(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	claims, err := s.authenticate(conn, r.URL.Query().Get("token"))
	if err != nil {
		s.sendAuthError(conn, err.Error())
		conn.Close()
		return
	}

	c := newConnection(s.nextConnID(), conn, modePlayer, claims.ResidentID, s.net, s.rate, s.log)
	select {
	case s.admissions <- admission{conn: c, claims: claims}:
	default:
		s.sendAuthError(conn, "server busy")
		conn.Close()
	}
}

// serveSpectator upgrades the socket with no auth step and queues it for
// GatewaySystem to validate the watched target against world state.
func (s *Server) serveSpectator(w http.ResponseWriter, r *http.Request, target string) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	c := newConnection(s.nextConnID(), conn, modeSpectator, target, s.net, s.rate, s.log)
	select {
	case s.admissions <- admission{conn: c}:
	default:
		s.sendAuthError(conn, "server busy")
		conn.Close()
	}
}

func (s *Server) authenticate(conn *websocket.Conn, queryToken string) (*auth.ConnectionClaims, error) {
	if queryToken != "" {
		return s.tokens.VerifyConnectionToken(queryToken)
	}

	conn.SetReadDeadline(time.Now().Add(s.net.ReadTimeout))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	var env clientEnvelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Type != "auth" || env.Token == "" {
		return nil, websocket.ErrBadHandshake
	}
	return s.tokens.VerifyConnectionToken(env.Token)
}

func (s *Server) sendAuthError(conn *websocket.Conn, reason string) {
	conn.SetWriteDeadline(time.Now().Add(s.net.WriteTimeout))
	conn.WriteJSON(outbound{Type: "error", Code: 4001, Message: reason})
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(4001, reason))
}

// sendWelcome must run on the scheduler goroutine: it reads resident and
// clock state directly.
func (s *Server) sendWelcome(c *Connection, r *world.Resident) {
	c.Send(outbound{
		Type: "welcome",
		Resident: welcomeSnapshot{
			ID: r.ID, Passport: r.Passport, DisplayName: r.DisplayName, X: r.X, Y: r.Y,
		},
		MapURL:       s.srv.ClientDist,
		WorldSeconds: s.world.Clock.WorldSeconds,
	})
}

// unregister drops a closed connection from the registry. Player
// connections additionally queue a disconnect notification so the
// scheduler-side DisconnectSystem can release any carried suspect or
// body on the resident's own goroutine.
func (s *Server) unregister(c *Connection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch c.mode {
	case modePlayer:
		if s.byResident[c.residentID] == c {
			delete(s.byResident, c.residentID)
			select {
			case s.disconnects <- c.residentID:
			default:
			}
		}
	case modeSpectator:
		delete(s.spectators, c)
	}
	s.connIDs.Destroy(c.id)
}

// Deliver implements arbiter.ResultSink: routes a completed action
// result back to the connection that submitted it, dropping it silently
// if the resident has since disconnected.
func (s *Server) Deliver(res arbiter.Result) {
	s.mu.Lock()
	c, ok := s.byResident[res.ResidentID]
	s.mu.Unlock()
	if !ok {
		return
	}
	if res.OK && res.Action == "inspect" {
		c.Send(outbound{Type: "inspect_result", RequestID: res.RequestID, Data: res.Data})
		return
	}
	status := "ok"
	if !res.OK {
		status = "error"
	}
	c.Send(outbound{
		Type: "action_result", RequestID: res.RequestID, Status: status, Reason: res.Error, Data: res.Data,
	})
}

// AnnounceAll pushes a system_announcement packet carrying title and
// version to every connected player.
func (s *Server) AnnounceAll(title, version string) {
	s.mu.Lock()
	conns := make([]*Connection, 0, len(s.byResident))
	for _, c := range s.byResident {
		conns = append(conns, c)
	}
	s.mu.Unlock()
	for _, c := range conns {
		c.Send(outbound{Type: "system_announcement", Title: title, Version: version})
	}
}
