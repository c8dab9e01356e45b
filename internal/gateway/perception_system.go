package gateway

import (
	"time"

	coresys "github.com/havenport/worldserver/internal/core/system"
	"github.com/havenport/worldserver/internal/perception"
	"github.com/havenport/worldserver/internal/world"
)

// PerceptionSystem pushes a perception packet to every connected player
// and spectator once per simulation tick, and separately flushes any
// pain messages the builder drained off the resident. Registered at
// coresys.PhasePerception, after PhaseSimulation has applied the tick's
// effects and before PhaseOutput.
type PerceptionSystem struct {
	server *Server
	build  *perception.Builder
}

func NewPerceptionSystem(s *Server, build *perception.Builder) *PerceptionSystem {
	return &PerceptionSystem{server: s, build: build}
}

func (p *PerceptionSystem) Phase() coresys.Phase { return coresys.PhasePerception }

func (p *PerceptionSystem) Update(dt time.Duration) {
	s := p.server
	hour := s.world.Clock.HourOfDay()

	s.mu.Lock()
	players := make(map[string]*Connection, len(s.byResident))
	for id, c := range s.byResident {
		players[id] = c
	}
	spectators := make(map[*Connection]string, len(s.spectators))
	for c, target := range s.spectators {
		spectators[c] = target
	}
	s.mu.Unlock()

	for id, c := range players {
		r := s.world.Get(id)
		if r == nil {
			continue
		}
		pc := p.build.Build(r, hour)
		c.Send(outbound{Type: "perception", Perception: pc})
		for _, msg := range pc.Pain {
			p.sendPain(c, msg)
		}
	}

	if len(spectators) > 0 {
		spectatorView := p.build.BuildSpectator()
		for c := range spectators {
			c.Send(outbound{Type: "perception", Perception: spectatorView})
		}
	}
}

func (p *PerceptionSystem) sendPain(c *Connection, msg world.PainMessage) {
	snapshot := msg
	c.Send(outbound{
		Type:          "pain",
		Message:       msg.Message,
		Source:        msg.Source,
		Intensity:     msg.Intensity,
		NeedsSnapshot: &snapshot,
	})
}
