package gateway

import (
	"time"

	coresys "github.com/havenport/worldserver/internal/core/system"
)

// GatewaySystem completes the handshake for every socket the HTTP
// handlers have upgraded but not yet admitted: it is the only place the
// gateway package reads world.State, so it must run on the scheduler
// goroutine. Registered at coresys.PhaseInput, ahead of arbiter.System,
// so a resident bound this tick can already submit actions the same
// tick.
type GatewaySystem struct {
	server *Server
}

func NewGatewaySystem(s *Server) *GatewaySystem { return &GatewaySystem{server: s} }

func (g *GatewaySystem) Phase() coresys.Phase { return coresys.PhaseInput }

func (g *GatewaySystem) Update(dt time.Duration) {
	s := g.server
	for {
		select {
		case a := <-s.admissions:
			g.admit(a)
		default:
			return
		}
	}
}

func (g *GatewaySystem) admit(a admission) {
	s := g.server
	c := a.conn

	if a.claims == nil {
		// Spectator: the watched target need not exist yet (it may
		// arrive on a later train), but a completely unknown id is
		// rejected up front.
		if s.world.Get(c.residentID) == nil {
			s.sendAuthError(c.conn, "unknown spectator target")
			c.conn.Close()
			return
		}
		s.mu.Lock()
		s.spectators[c] = c.residentID
		s.mu.Unlock()
		c.start(s)
		return
	}

	resident := s.world.Get(a.claims.ResidentID)
	if resident == nil || !resident.IsAlive() {
		s.sendAuthError(c.conn, "resident is deceased or unknown")
		c.conn.Close()
		return
	}

	s.mu.Lock()
	if prior, ok := s.byResident[c.residentID]; ok {
		s.mu.Unlock()
		prior.Close()
		s.mu.Lock()
	}
	s.byResident[c.residentID] = c
	s.mu.Unlock()

	s.sendWelcome(c, resident)
	c.start(s)
}
