package gateway

import (
	"time"

	coresys "github.com/havenport/worldserver/internal/core/system"
)

// DisconnectSystem drains the gateway's disconnect notifications and
// releases anything the departed player was carrying. Clearing
// CarryingSuspectID here (rather than adding a standalone release
// method to internal/law) is enough: law.System.reconcileCustody already
// sweeps every tick for a suspect with ArrestedBy set but no escorting
// officer, and clears it there. Registered at coresys.PhaseCleanup, the
// last phase of the slow tick, so this runs before the next tick's law
// pass sees the cleared link.
type DisconnectSystem struct {
	server *Server
}

func NewDisconnectSystem(s *Server) *DisconnectSystem {
	return &DisconnectSystem{server: s}
}

func (d *DisconnectSystem) Phase() coresys.Phase { return coresys.PhaseCleanup }

func (d *DisconnectSystem) Update(dt time.Duration) {
	s := d.server
	for {
		select {
		case id := <-s.disconnects:
			d.release(id)
		default:
			return
		}
	}
}

func (d *DisconnectSystem) release(residentID string) {
	r := d.server.world.Get(residentID)
	if r == nil {
		return
	}
	if r.CarryingSuspectID != "" {
		r.CarryingSuspectID = ""
	}
	if r.CarryingBodyID != "" {
		r.CarryingBodyID = ""
	}
}
