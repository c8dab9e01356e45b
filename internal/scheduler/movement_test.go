package scheduler

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/havenport/worldserver/internal/config"
	"github.com/havenport/worldserver/internal/pathfind"
	"github.com/havenport/worldserver/internal/tilemap"
	"github.com/havenport/worldserver/internal/world"
)

func testWorld(t *testing.T, artifact string) *world.State {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "map.yaml")
	if err := os.WriteFile(path, []byte(artifact), 0o644); err != nil {
		t.Fatalf("write artifact: %v", err)
	}
	m, err := tilemap.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	clock := world.NewClock(60, 120, 3600, 30, 0)
	return world.NewState(m, clock)
}

func testCfg() config.SimulationConfig {
	return config.SimulationConfig{
		WalkSpeedPixelsPerSecond: 64,
		RunSpeedPixelsPerSecond:  160,
		WaypointArrivalPixels:    16,
		PathStuckTicks:           3,
		HitboxFraction:           0.4,
	}
}

func spawnAt(w *world.State, id string, x, y float64) *world.Resident {
	r := w.Register(world.ResidentRow{ID: id, Passport: "OC-000000" + id, Type: world.TypeAgent, Status: world.StatusAlive}, true)
	w.Move(r, x, y)
	return r
}

const openArtifact = `
width: 20
height: 20
spawn_x: 10
spawn_y: 10
`

func TestApplyVelocityMovesByGaitSpeed(t *testing.T) {
	w := testWorld(t, openArtifact)
	cfg := testCfg()
	sys := NewMovementSystem(w, cfg)

	r := spawnAt(w, "1", 100, 100)
	r.VX, r.VY = 1, 0
	r.Speed = world.SpeedWalking

	sys.Update(time.Second)

	want := 100 + cfg.WalkSpeedPixelsPerSecond
	if r.X < want-0.01 || r.X > want+0.01 {
		t.Fatalf("expected x ~= %v after one second walking, got %v", want, r.X)
	}
	if r.Y != 100 {
		t.Fatalf("expected y unchanged, got %v", r.Y)
	}
}

func TestApplyVelocityStoppedDoesNotMove(t *testing.T) {
	w := testWorld(t, openArtifact)
	sys := NewMovementSystem(w, testCfg())

	r := spawnAt(w, "1", 100, 100)
	r.Speed = world.SpeedStopped

	sys.Update(time.Second)

	if r.X != 100 || r.Y != 100 {
		t.Fatalf("expected stopped resident to stay put, got (%v, %v)", r.X, r.Y)
	}
}

func TestFollowPathArrivesAndStops(t *testing.T) {
	w := testWorld(t, openArtifact)
	cfg := testCfg()
	sys := NewMovementSystem(w, cfg)

	r := spawnAt(w, "1", 100, 100)
	r.Path = []pathfind.Point{{X: 108, Y: 100}}
	r.Speed = world.SpeedWalking

	sys.Update(time.Second)

	if len(r.Path) != 0 {
		t.Fatalf("expected path to be consumed once within arrival radius, got %d waypoints left", len(r.Path))
	}
	if r.Speed != world.SpeedStopped {
		t.Fatalf("expected gait reset to stopped on arrival, got %v", r.Speed)
	}
}

func TestFollowPathAutoEntersBuildingOnArrival(t *testing.T) {
	artifact := `
width: 20
height: 20
spawn_x: 1
spawn_y: 1
buildings:
  - id: hall
    name: Council Hall
    kind: council_hall
    x: 10
    y: 10
    w: 3
    h: 3
`
	w := testWorld(t, artifact)
	cfg := testCfg()
	sys := NewMovementSystem(w, cfg)

	b := w.Map.ByID("hall")
	cx, cy := b.Center()

	r := spawnAt(w, "1", cx-1, cy-1)
	r.Path = []pathfind.Point{{X: cx, Y: cy}}
	r.Speed = world.SpeedWalking
	r.AutoEnterBuildingID = "hall"

	sys.Update(time.Second)

	if r.CurrentBuilding != "hall" {
		t.Fatalf("expected resident to auto-enter hall, got CurrentBuilding=%q", r.CurrentBuilding)
	}
	if r.AutoEnterBuildingID != "" {
		t.Fatal("expected AutoEnterBuildingID to be cleared after entry")
	}
}

func TestStepSlidesAlongUnblockedAxis(t *testing.T) {
	artifact := `
width: 20
height: 20
spawn_x: 1
spawn_y: 1
obstacles:
  - y: 6
    row: ....................
  - y: 7
    row: ......########......
`
	w := testWorld(t, artifact)
	cfg := testCfg()
	sys := NewMovementSystem(w, cfg)

	// Sitting just above the wall row, try to move straight down into it
	// while also drifting right: the y-move should be blocked but the
	// x-move should still land.
	r := spawnAt(w, "1", 200, 210)
	mag := 1.41421356
	r.VX, r.VY = 1/mag, 1/mag
	r.Speed = world.SpeedWalking

	sys.Update(200 * time.Millisecond)

	if r.Y >= 218 {
		t.Fatalf("expected y blocked by wall row at tile y=7, got %v", r.Y)
	}
	if r.X <= 200 {
		t.Fatalf("expected x to still advance via axis slide, got %v", r.X)
	}
}

func TestPathStuckClearsAfterConfiguredTicks(t *testing.T) {
	artifact := `
width: 20
height: 20
spawn_x: 1
spawn_y: 1
obstacles:
  - y: 4
    row: ####################
`
	w := testWorld(t, artifact)
	cfg := testCfg()
	sys := NewMovementSystem(w, cfg)

	r := spawnAt(w, "1", 100, 100)
	// A waypoint on the far side of a fully-blocked row: every step is
	// blocked, so PathBlockedTicks should climb until PathStuckTicks.
	r.Path = []pathfind.Point{{X: 100, Y: 130}}
	r.Speed = world.SpeedWalking

	for i := 0; i < cfg.PathStuckTicks; i++ {
		sys.Update(500 * time.Millisecond)
	}

	if r.Path != nil {
		t.Fatal("expected path to be abandoned once stuck past the configured tick budget")
	}
}
