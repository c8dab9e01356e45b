package gateway

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/havenport/worldserver/internal/arbiter"
	"github.com/havenport/worldserver/internal/config"
	"github.com/havenport/worldserver/internal/core/ecs"
)

// mode distinguishes a player connection (authenticated, bound to one
// resident, read-write) from a spectator connection (unauthenticated,
// bound to a watched resident id, read-only).
type mode int

const (
	modePlayer mode = iota
	modeSpectator
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Connection is one upgraded WebSocket, mirroring the teacher's
// Session: I/O runs in dedicated reader/writer goroutines, the outbound
// queue is non-blocking and drops under backpressure rather than ever
// stalling the tick, and closed is only ever flipped once.
//
// id is an ecs.EntityID rather than a bare counter: its generation half
// means a disconnected connection's handle can never alias a later one
// the way a raw incrementing id could on overflow, and Server already
// destroys it through the same pool on unregister.
type Connection struct {
	id         ecs.EntityID
	conn       *websocket.Conn
	mode       mode
	residentID string // bound resident (player) or watched target (spectator)

	out chan outbound

	closeCh   chan struct{}
	closeOnce sync.Once
	closed    atomic.Bool

	net  config.NetworkConfig
	rate config.RateLimitConfig
	log  *zap.Logger

	mu          sync.Mutex
	actionCount int
	windowStart time.Time
}

func newConnection(id ecs.EntityID, conn *websocket.Conn, m mode, residentID string, net config.NetworkConfig, rate config.RateLimitConfig, log *zap.Logger) *Connection {
	size := net.OutQueueSize
	if size <= 0 {
		size = 64
	}
	return &Connection{
		id:         id,
		conn:       conn,
		mode:       m,
		residentID: residentID,
		out:        make(chan outbound, size),
		closeCh:    make(chan struct{}),
		net:        net,
		rate:       rate,
		log:        log.With(zap.Uint64("conn", uint64(id)), zap.String("resident_id", residentID)),
	}
}

// Send enqueues a packet for the writer goroutine. Non-blocking: an
// overflowing queue drops the oldest queued packet rather than stalling
// the tick that produced this one, per the outbound backpressure policy.
func (c *Connection) Send(msg outbound) {
	if c.closed.Load() {
		return
	}
	select {
	case c.out <- msg:
	default:
		select {
		case <-c.out:
		default:
		}
		select {
		case c.out <- msg:
		default:
		}
	}
}

func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.closeCh)
		c.conn.Close()
	})
}

func (c *Connection) IsClosed() bool { return c.closed.Load() }

// start launches the reader and writer pumps. Only called once the
// connection has been registered with the server, so any inbound
// message is guaranteed a live registry entry.
func (c *Connection) start(s *Server) {
	go c.writeLoop()
	go c.readLoop(s)
}

func (c *Connection) readLoop(s *Server) {
	defer func() {
		s.unregister(c)
		c.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if c.mode == modeSpectator {
			continue // read-only: inbound messages are ignored
		}

		var env clientEnvelope
		if err := json.Unmarshal(raw, &env); err != nil {
			c.Send(outbound{Type: "action_result", Status: "error", Reason: "malformed request"})
			continue
		}
		if env.Type == "auth" {
			continue // already authenticated to reach this loop
		}
		if !c.allowAction() {
			c.Send(outbound{Type: "action_result", RequestID: env.RequestID, Status: "error", Reason: "rate limited"})
			continue
		}

		req := arbiter.Request{
			ResidentID: c.residentID,
			RequestID:  env.RequestID,
			Action:     env.Type,
			Args:       env.Params,
		}
		if !s.requests.Submit(req) {
			c.Send(outbound{Type: "action_result", RequestID: env.RequestID, Status: "error", Reason: "server busy"})
		}
	}
}

// allowAction enforces the configured per-connection action rate,
// resetting the one-second window as it rolls over.
func (c *Connection) allowAction() bool {
	if !c.rate.Enabled {
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	if now.Sub(c.windowStart) >= time.Second {
		c.windowStart = now
		c.actionCount = 0
	}
	if c.actionCount >= c.rate.ActionsPerSecond {
		return false
	}
	c.actionCount++
	return true
}

func (c *Connection) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	defer c.Close()

	for {
		select {
		case msg := <-c.out:
			c.conn.SetWriteDeadline(time.Now().Add(c.net.WriteTimeout))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.net.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.closeCh:
			return
		}
	}
}
