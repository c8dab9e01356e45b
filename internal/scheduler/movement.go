// Package scheduler drives the dual-frequency tick loop: a 30 Hz pass over
// input and position, and a 10 Hz pass over simulation, perception, output,
// persistence, and cleanup. See Loop.Run and MovementSystem.
package scheduler

import (
	"math"
	"time"

	"github.com/havenport/worldserver/internal/config"
	coresys "github.com/havenport/worldserver/internal/core/system"
	"github.com/havenport/worldserver/internal/tilemap"
	"github.com/havenport/worldserver/internal/world"
)

// MovementSystem advances every resident along its velocity or queued path
// and resolves collisions against the tile grid. Registered at
// coresys.PhasePosition, run at 30 Hz by Loop.Run.
type MovementSystem struct {
	world *world.State
	cfg   config.SimulationConfig
}

func NewMovementSystem(w *world.State, cfg config.SimulationConfig) *MovementSystem {
	return &MovementSystem{world: w, cfg: cfg}
}

func (s *MovementSystem) Phase() coresys.Phase { return coresys.PhasePosition }

func (s *MovementSystem) Update(dt time.Duration) {
	s.world.AllAlive(func(r *world.Resident) {
		if r.Sleeping {
			return
		}
		if len(r.Path) > 0 {
			s.followPath(r, dt)
			return
		}
		s.applyVelocity(r, dt)
	})
}

// gaitSpeed returns the configured pixels-per-second rate for a resident's
// current gait. SpeedStopped residents have no directional velocity to
// scale, but the zero value is harmless.
func (s *MovementSystem) gaitSpeed(gait world.SpeedMode) float64 {
	switch gait {
	case world.SpeedRunning:
		return s.cfg.RunSpeedPixelsPerSecond
	case world.SpeedWalking:
		return s.cfg.WalkSpeedPixelsPerSecond
	default:
		return 0
	}
}

// applyVelocity scales a resident's unit-direction VX/VY by its gait speed
// and moves it, sliding along whichever axis isn't blocked when the direct
// move would clip a wall.
func (s *MovementSystem) applyVelocity(r *world.Resident, dt time.Duration) {
	if r.VX == 0 && r.VY == 0 {
		return
	}
	speed := s.gaitSpeed(r.Speed)
	if speed == 0 {
		return
	}
	dist := speed * dt.Seconds()
	s.step(r, r.VX*dist, r.VY*dist)
}

// followPath advances a resident toward the next waypoint of a queued
// path, popping waypoints it has arrived at and triggering auto-enter-
// building once the final waypoint is reached.
func (s *MovementSystem) followPath(r *world.Resident, dt time.Duration) {
	speed := s.gaitSpeed(r.Speed)
	if speed == 0 {
		speed = s.cfg.WalkSpeedPixelsPerSecond
	}
	budget := speed * dt.Seconds()

	for budget > 0 && len(r.Path) > 0 {
		wp := r.Path[0]
		dx, dy := wp.X-r.X, wp.Y-r.Y
		dist := math.Hypot(dx, dy)
		if dist <= s.cfg.WaypointArrivalPixels {
			r.Path = r.Path[1:]
			continue
		}
		stepDist := budget
		if stepDist > dist {
			stepDist = dist
		}
		moved := s.step(r, dx/dist*stepDist, dy/dist*stepDist)
		budget -= stepDist
		if !moved {
			r.PathBlockedTicks++
			if r.PathBlockedTicks >= s.cfg.PathStuckTicks {
				r.Path = nil
				r.AutoEnterBuildingID = ""
				r.PathBlockedTicks = 0
			}
			return
		}
		r.PathBlockedTicks = 0
	}

	if len(r.Path) == 0 {
		r.VX, r.VY = 0, 0
		r.Speed = world.SpeedStopped
		if r.AutoEnterBuildingID != "" {
			s.autoEnter(r)
		}
	}
}

func (s *MovementSystem) autoEnter(r *world.Resident) {
	id := r.AutoEnterBuildingID
	r.AutoEnterBuildingID = ""
	b := s.world.Map.ByID(id)
	if b == nil {
		return
	}
	cx, cy := b.Center()
	s.world.Move(r, cx, cy)
	r.CurrentBuilding = b.ID
}

// halfHitbox is the resident's collision half-width in pixels, derived
// from the configured fraction of a tile.
func (s *MovementSystem) halfHitbox() float64 {
	return tilemap.TileSize * s.cfg.HitboxFraction / 2
}

// step attempts to move r by (dx, dy), sliding along one axis if the
// direct diagonal move is blocked. Returns false if neither axis made any
// progress.
func (s *MovementSystem) step(r *world.Resident, dx, dy float64) bool {
	half := s.halfHitbox()
	nx, ny := r.X+dx, r.Y+dy
	if !s.world.Map.IsPositionBlocked(nx, ny, half) {
		s.world.Move(r, nx, ny)
		return true
	}
	moved := false
	if dx != 0 && !s.world.Map.IsPositionBlocked(nx, r.Y, half) {
		s.world.Move(r, nx, r.Y)
		moved = true
	} else if dy != 0 && !s.world.Map.IsPositionBlocked(r.X, ny, half) {
		s.world.Move(r, r.X, ny)
		moved = true
	}
	return moved
}
