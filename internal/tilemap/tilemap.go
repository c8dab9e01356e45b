// Package tilemap holds the immutable grid the simulation runs on: ground
// and obstacle layers, building placements with door tiles and interaction
// zones, foragable node positions, and the resident spawn point. It exposes
// only pure queries — nothing here mutates.
package tilemap

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const TileSize = 32

// Facing is a cardinal direction a door opens onto.
type Facing int

const (
	North Facing = iota
	East
	South
	West
)

// InteractionZone is a rectangle of tiles inside a building that offers a
// fixed set of action tags to a resident standing in it (shop counter, bank
// teller window, job board, mortuary slab, booking desk...).
type InteractionZone struct {
	Name    string   `yaml:"name"`
	X       int      `yaml:"x"`
	Y       int      `yaml:"y"`
	W       int      `yaml:"w"`
	H       int      `yaml:"h"`
	Actions []string `yaml:"actions"`
}

// Door is a tile on a building's perimeter a resident can path through.
type Door struct {
	X      int    `yaml:"x"`
	Y      int    `yaml:"y"`
	Facing Facing `yaml:"facing"`
}

// Building is a named interior region with its own local obstacle grid,
// one or more doors, and zero or more interaction zones.
type Building struct {
	ID    string            `yaml:"id"`
	Name  string            `yaml:"name"`
	Kind  string            `yaml:"kind"` // "shop", "bank", "police_station", "mortuary", "council_hall", "employer"
	X     int               `yaml:"x"`    // top-left, world tile coords
	Y     int               `yaml:"y"`
	W     int               `yaml:"w"`
	H     int               `yaml:"h"`
	Doors []Door            `yaml:"doors"`
	Zones []InteractionZone `yaml:"zones"`
}

// ForagePoint is a tile-space location where a foraging node spawns.
type ForagePoint struct {
	X    int    `yaml:"x"`
	Y    int    `yaml:"y"`
	Kind string `yaml:"kind"` // "berry_bush" or "spring"
}

type artifact struct {
	Width      int           `yaml:"width"`
	Height     int           `yaml:"height"`
	SpawnX     int           `yaml:"spawn_x"`
	SpawnY     int           `yaml:"spawn_y"`
	Obstacles  []obstacleRow `yaml:"obstacles"`
	Buildings  []Building    `yaml:"buildings"`
	Forage     []ForagePoint `yaml:"forage"`
}

// obstacleRow is one row of the obstacle layer, encoded as a string with one
// character per tile: '#' is blocked, anything else (conventionally '.') is
// walkable. Using a string-per-row keeps
// the artifact human-editable instead of a dense binary blob.
type obstacleRow struct {
	Y   int    `yaml:"y"`
	Row string `yaml:"row"`
}

// Map is the immutable, loaded tile grid.
type Map struct {
	Width, Height int
	SpawnX        float64
	SpawnY        float64
	blocked       []bool // row-major, blocked[y*Width+x]
	Buildings     []Building
	Forage        []ForagePoint
}

// Load parses a YAML map artifact produced by the (external) procedural map
// generator.
func Load(path string) (*Map, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read map artifact %s: %w", path, err)
	}
	var a artifact
	if err := yaml.Unmarshal(raw, &a); err != nil {
		return nil, fmt.Errorf("parse map artifact: %w", err)
	}
	if a.Width <= 0 || a.Height <= 0 {
		return nil, fmt.Errorf("map artifact %s: invalid dimensions %dx%d", path, a.Width, a.Height)
	}

	m := &Map{
		Width:     a.Width,
		Height:    a.Height,
		SpawnX:    float64(a.SpawnX)*TileSize + TileSize/2,
		SpawnY:    float64(a.SpawnY)*TileSize + TileSize/2,
		blocked:   make([]bool, a.Width*a.Height),
		Buildings: a.Buildings,
		Forage:    a.Forage,
	}
	for _, r := range a.Obstacles {
		if r.Y < 0 || r.Y >= a.Height {
			continue
		}
		for x, ch := range r.Row {
			if x >= a.Width {
				break
			}
			if ch == '#' {
				m.blocked[r.Y*a.Width+x] = true
			}
		}
	}
	return m, nil
}

// IsBlocked reports whether tile (tx, ty) is impassable or out of bounds.
func (m *Map) IsBlocked(tx, ty int) bool {
	if tx < 0 || ty < 0 || tx >= m.Width || ty >= m.Height {
		return true
	}
	return m.blocked[ty*m.Width+tx]
}

// IsPositionBlocked reports whether the square hitbox centred at pixel
// (px, py) with the given half-width overlaps any blocked tile.
func (m *Map) IsPositionBlocked(px, py, halfHitbox float64) bool {
	minTX := tileCoord(px - halfHitbox)
	maxTX := tileCoord(px + halfHitbox)
	minTY := tileCoord(py - halfHitbox)
	maxTY := tileCoord(py + halfHitbox)
	for ty := minTY; ty <= maxTY; ty++ {
		for tx := minTX; tx <= maxTX; tx++ {
			if m.IsBlocked(tx, ty) {
				return true
			}
		}
	}
	return false
}

func tileCoord(p float64) int {
	t := int(p) / TileSize
	if p < 0 {
		t--
	}
	return t
}

// HasLineOfSight walks a ray between two pixel points in half-tile steps
// and reports whether any intervening tile is blocked.
func (m *Map) HasLineOfSight(x1, y1, x2, y2 float64) bool {
	return m.countWalls(x1, y1, x2, y2, true) == 0
}

// CountWallsBetween counts contiguous blocked runs crossed by the ray
// between two pixel points; one run of adjacent blocked tiles counts as one
// wall.
func (m *Map) CountWallsBetween(x1, y1, x2, y2 float64) int {
	return m.countWalls(x1, y1, x2, y2, false)
}

func (m *Map) countWalls(x1, y1, x2, y2 float64, stopAtFirst bool) int {
	dx := x2 - x1
	dy := y2 - y1
	dist := hypot(dx, dy)
	if dist == 0 {
		return 0
	}
	step := float64(TileSize) / 2
	steps := int(dist / step)
	if steps < 1 {
		steps = 1
	}
	walls := 0
	wasBlocked := false
	for i := 0; i <= steps; i++ {
		t := float64(i) / float64(steps)
		px := x1 + dx*t
		py := y1 + dy*t
		blocked := m.IsBlocked(tileCoord(px), tileCoord(py))
		if blocked && !wasBlocked {
			walls++
			if stopAtFirst {
				return walls
			}
		}
		wasBlocked = blocked
	}
	return walls
}

func hypot(dx, dy float64) float64 {
	if dx < 0 {
		dx = -dx
	}
	if dy < 0 {
		dy = -dy
	}
	if dx > dy {
		return dx + 0.41*dy
	}
	return dy + 0.41*dx
}

// BuildingAt returns the building whose footprint contains the given pixel
// position, or nil.
func (m *Map) BuildingAt(px, py float64) *Building {
	tx, ty := tileCoord(px), tileCoord(py)
	for i := range m.Buildings {
		b := &m.Buildings[i]
		if tx >= b.X && tx < b.X+b.W && ty >= b.Y && ty < b.Y+b.H {
			return b
		}
	}
	return nil
}

// ByID looks up a building by its configured id.
func (m *Map) ByID(id string) *Building {
	for i := range m.Buildings {
		if m.Buildings[i].ID == id {
			return &m.Buildings[i]
		}
	}
	return nil
}

// ByKind returns all buildings of the given kind (e.g. "shop",
// "police_station").
func (m *Map) ByKind(kind string) []*Building {
	var out []*Building
	for i := range m.Buildings {
		if m.Buildings[i].Kind == kind {
			out = append(out, &m.Buildings[i])
		}
	}
	return out
}

// Center returns the pixel coordinates of the building's footprint center,
// used as the notification origin for building-wide announcements.
func (b *Building) Center() (float64, float64) {
	return float64(b.X*TileSize) + float64(b.W*TileSize)/2, float64(b.Y*TileSize) + float64(b.H*TileSize)/2
}

// NearestDoor returns the door of b closest to the given pixel position and
// its distance in pixels.
func (b *Building) NearestDoor(px, py float64) (Door, float64) {
	best := Door{}
	bestDist := -1.0
	for _, d := range b.Doors {
		dx := float64(d.X*TileSize+TileSize/2) - px
		dy := float64(d.Y*TileSize+TileSize/2) - py
		dist := hypot(dx, dy)
		if bestDist < 0 || dist < bestDist {
			bestDist = dist
			best = d
		}
	}
	return best, bestDist
}

// ZoneAt returns the interaction zone of b containing the given pixel
// position (translated to the building's local tile space), or nil.
func (b *Building) ZoneAt(px, py float64) *InteractionZone {
	tx := tileCoord(px) - b.X
	ty := tileCoord(py) - b.Y
	for i := range b.Zones {
		z := &b.Zones[i]
		if tx >= z.X && tx < z.X+z.W && ty >= z.Y && ty < z.Y+z.H {
			return z
		}
	}
	return nil
}
