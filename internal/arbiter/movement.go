package arbiter

import (
	"fmt"
	"math"

	"github.com/havenport/worldserver/internal/core/event"
	"github.com/havenport/worldserver/internal/pathfind"
	"github.com/havenport/worldserver/internal/tilemap"
	"github.com/havenport/worldserver/internal/world"
)

// enterRangePixels is how close a resident must be to a door before
// enter_building is accepted, matching the perception builder's
// enter_building:<id> tag range.
const enterRangePixels = 64

// handleMove sets a continuous walking/running direction. The scheduler's
// position phase scales VX/VY (here a unit direction) by the gait's
// configured speed and resolves collisions; this handler only records
// intent.
func (s *System) handleMove(r *world.Resident, args map[string]any) error {
	if r.Sleeping {
		return fmt.Errorf("cannot move while sleeping")
	}
	if r.Energy <= 0 {
		return fmt.Errorf("too exhausted to move")
	}
	dx, _ := argFloat64(args, "dx")
	dy, _ := argFloat64(args, "dy")
	mag := math.Hypot(dx, dy)
	if mag == 0 {
		return fmt.Errorf("move requires a non-zero direction")
	}
	r.Path = nil
	r.AutoEnterBuildingID = ""
	r.VX, r.VY = dx/mag, dy/mag
	r.Facing = facingDegrees(dx, dy)
	if argBool(args, "run") {
		r.Speed = world.SpeedRunning
	} else {
		r.Speed = world.SpeedWalking
	}
	return nil
}

func (s *System) handleStop(r *world.Resident) error {
	r.Path = nil
	r.AutoEnterBuildingID = ""
	r.VX, r.VY = 0, 0
	r.Speed = world.SpeedStopped
	return nil
}

func (s *System) handleFace(r *world.Resident, args map[string]any) error {
	facing, ok := argFloat64(args, "facing")
	if !ok {
		return fmt.Errorf("missing facing")
	}
	r.Facing = normalizeDegrees(int(facing))
	return nil
}

func (s *System) handleMoveTo(r *world.Resident, args map[string]any) error {
	if r.Sleeping {
		return fmt.Errorf("cannot move while sleeping")
	}
	if r.Energy <= 0 {
		return fmt.Errorf("too exhausted to move")
	}
	x, okX := argFloat64(args, "x")
	y, okY := argFloat64(args, "y")
	if !okX || !okY {
		return fmt.Errorf("move_to requires x and y")
	}
	path, ok := pathfind.Find(s.world.Map, pathfind.Point{X: r.X, Y: r.Y}, pathfind.Point{X: x, Y: y})
	if !ok {
		return fmt.Errorf("no path to destination")
	}
	r.Path = path
	r.AutoEnterBuildingID = argString(args, "enter_building_id")
	if argBool(args, "run") {
		r.Speed = world.SpeedRunning
	} else {
		r.Speed = world.SpeedWalking
	}
	return nil
}

func facingDegrees(dx, dy float64) int {
	deg := math.Atan2(dy, dx) * 180 / math.Pi
	return normalizeDegrees(int(math.Round(deg)))
}

func normalizeDegrees(d int) int {
	d %= 360
	if d < 0 {
		d += 360
	}
	return d
}

func (s *System) handleSleep(r *world.Resident) error {
	if r.Sleeping {
		return fmt.Errorf("already sleeping")
	}
	if r.Energy >= 90 {
		return fmt.Errorf("not tired enough to sleep")
	}
	r.Sleeping = true
	r.SleepStartedAt = s.world.Clock.WorldSeconds
	r.Path = nil
	r.VX, r.VY = 0, 0
	r.Speed = world.SpeedStopped
	return nil
}

func (s *System) handleWake(r *world.Resident) error {
	if !r.Sleeping {
		return fmt.Errorf("not sleeping")
	}
	r.Sleeping = false
	return nil
}

func (s *System) handleEnterBuilding(r *world.Resident, args map[string]any) error {
	id := argString(args, "building_id")
	if id == "" {
		return fmt.Errorf("missing building_id")
	}
	b := s.world.Map.ByID(id)
	if b == nil {
		return fmt.Errorf("no such building %q", id)
	}
	if _, dist := b.NearestDoor(r.X, r.Y); dist < 0 || dist > enterRangePixels {
		return fmt.Errorf("too far from the door to enter")
	}
	cx, cy := b.Center()
	s.world.Move(r, cx, cy)
	r.CurrentBuilding = b.ID
	return nil
}

func (s *System) handleExitBuilding(r *world.Resident) error {
	b := s.world.Map.BuildingAt(r.X, r.Y)
	if b == nil {
		return fmt.Errorf("not inside a building")
	}
	door, _ := b.NearestDoor(r.X, r.Y)
	x := float64(door.X*tilemap.TileSize + tilemap.TileSize/2)
	y := float64(door.Y*tilemap.TileSize + tilemap.TileSize/2)
	s.world.Move(r, x, y)
	r.CurrentBuilding = ""
	return nil
}

func (s *System) handleUseToilet(r *world.Resident) error {
	b := s.world.Map.BuildingAt(r.X, r.Y)
	if b == nil {
		return fmt.Errorf("no toilet nearby")
	}
	zone := b.ZoneAt(r.X, r.Y)
	if zone == nil || !hasAction(zone.Actions, "use_toilet") {
		return fmt.Errorf("no toilet at this spot")
	}
	r.Bladder -= s.cfg.ToiletBladderRelief
	if r.Bladder < 0 {
		r.Bladder = 0
	}
	if s.events != nil {
		s.events.Append("use_toilet", r.ID, nil)
	}
	return nil
}

func hasAction(actions []string, want string) bool {
	for _, a := range actions {
		if a == want {
			return true
		}
	}
	return false
}

func (s *System) handleDepart(r *world.Resident, worldTime int64) error {
	dx := r.X - s.world.Map.SpawnX
	dy := r.Y - s.world.Map.SpawnY
	if math.Hypot(dx, dy) > enterRangePixels {
		return fmt.Errorf("must be at the station platform to depart")
	}
	r.Status = world.StatusDeparted
	if s.bus != nil {
		event.Emit(s.bus, event.ResidentDeparted{ResidentID: r.ID})
	}
	if s.events != nil {
		s.events.Append("depart", r.ID, nil)
	}
	s.world.Remove(r.ID)
	return nil
}
