package pathfind

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/havenport/worldserver/internal/tilemap"
)

func loadTestMap(t *testing.T, yaml string) *tilemap.Map {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "map.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("write artifact: %v", err)
	}
	m, err := tilemap.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return m
}

const openField = `
width: 6
height: 6
spawn_x: 0
spawn_y: 0
`

const wallWithGap = `
width: 6
height: 6
spawn_x: 0
spawn_y: 0
obstacles:
  - y: 3
    row: "###.##"
`

const fullyWalled = `
width: 6
height: 6
spawn_x: 0
spawn_y: 0
obstacles:
  - y: 3
    row: "######"
`

func TestFindStraightLine(t *testing.T) {
	m := loadTestMap(t, openField)
	src := Point{X: 16, Y: 16}
	dst := Point{X: 16*5 + 16, Y: 16}
	path, ok := Find(m, src, dst)
	if !ok {
		t.Fatal("expected a path across an open field")
	}
	if len(path) == 0 {
		t.Fatal("expected a non-empty waypoint list")
	}
	last := path[len(path)-1]
	if last != dst {
		t.Fatalf("last waypoint = %v, want %v", last, dst)
	}
}

func TestFindRoutesAroundGap(t *testing.T) {
	m := loadTestMap(t, wallWithGap)
	src := Point{X: tilemap.TileSize/2 + tilemap.TileSize*0, Y: tilemap.TileSize/2 + tilemap.TileSize*1}
	dst := Point{X: tilemap.TileSize/2 + tilemap.TileSize*0, Y: tilemap.TileSize/2 + tilemap.TileSize*5}
	path, ok := Find(m, src, dst)
	if !ok {
		t.Fatal("expected a path through the gap in the wall")
	}
	last := path[len(path)-1]
	if last != dst {
		t.Fatalf("last waypoint = %v, want %v", last, dst)
	}
}

func TestFindFailsWhenFullyWalled(t *testing.T) {
	m := loadTestMap(t, fullyWalled)
	src := Point{X: tilemap.TileSize / 2, Y: tilemap.TileSize/2 + tilemap.TileSize*1}
	dst := Point{X: tilemap.TileSize / 2, Y: tilemap.TileSize/2 + tilemap.TileSize*5}
	if _, ok := Find(m, src, dst); ok {
		t.Fatal("expected no path across a fully walled row")
	}
}

func TestFindSameTileReturnsDestination(t *testing.T) {
	m := loadTestMap(t, openField)
	p := Point{X: 20, Y: 20}
	path, ok := Find(m, p, p)
	if !ok || len(path) != 1 || path[0] != p {
		t.Fatalf("expected a one-element path at the destination, got %v ok=%v", path, ok)
	}
}
