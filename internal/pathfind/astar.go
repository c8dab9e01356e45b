// Package pathfind computes waypoint lists for resident movement with A*
// over the tile map's walkable graph.
package pathfind

import (
	"container/heap"
	"math"

	"github.com/havenport/worldserver/internal/tilemap"
)

// Point is a pixel-space coordinate.
type Point struct {
	X, Y float64
}

type tileCoord struct {
	X, Y int
}

var neighborOffsets = []tileCoord{
	{0, -1}, {1, 0}, {0, 1}, {-1, 0}, // cardinal
	{1, -1}, {1, 1}, {-1, 1}, {-1, -1}, // diagonal, gated on clear cardinals
}

// Find runs A* from src to dst in pixel space and returns an ordered
// waypoint list (pixel centres of the tiles on the path, ending at dst), or
// ok == false if no path exists.
func Find(m *tilemap.Map, src, dst Point) (path []Point, ok bool) {
	start := toTile(src)
	goal := toTile(dst)

	if m.IsBlocked(goal.X, goal.Y) {
		return nil, false
	}
	if start == goal {
		return []Point{dst}, true
	}

	open := &nodeHeap{}
	heap.Init(open)
	heap.Push(open, &node{coord: start, g: 0, f: heuristic(start, goal), seq: 0})

	cameFrom := map[tileCoord]tileCoord{}
	gScore := map[tileCoord]float64{start: 0}
	closed := map[tileCoord]bool{}
	seq := 1

	for open.Len() > 0 {
		cur := heap.Pop(open).(*node)
		if closed[cur.coord] {
			continue
		}
		closed[cur.coord] = true

		if cur.coord == goal {
			return reconstruct(cameFrom, cur.coord, dst), true
		}

		for _, nb := range neighbors(m, cur.coord) {
			tentativeG := gScore[cur.coord] + stepCost(cur.coord, nb)
			if existing, seen := gScore[nb]; seen && tentativeG >= existing {
				continue
			}
			cameFrom[nb] = cur.coord
			gScore[nb] = tentativeG
			heap.Push(open, &node{
				coord: nb,
				g:     tentativeG,
				f:     tentativeG + heuristic(nb, goal),
				seq:   seq,
			})
			seq++
		}
	}

	return nil, false
}

func neighbors(m *tilemap.Map, c tileCoord) []tileCoord {
	var out []tileCoord
	for i, off := range neighborOffsets {
		nb := tileCoord{c.X + off.X, c.Y + off.Y}
		if m.IsBlocked(nb.X, nb.Y) {
			continue
		}
		if i >= 4 {
			// Diagonal move: both adjacent cardinal tiles must be clear to
			// avoid cutting through a wall corner.
			cardinalA := tileCoord{c.X + off.X, c.Y}
			cardinalB := tileCoord{c.X, c.Y + off.Y}
			if m.IsBlocked(cardinalA.X, cardinalA.Y) || m.IsBlocked(cardinalB.X, cardinalB.Y) {
				continue
			}
		}
		out = append(out, nb)
	}
	return out
}

func stepCost(a, b tileCoord) float64 {
	if a.X != b.X && a.Y != b.Y {
		return math.Sqrt2
	}
	return 1
}

// heuristic is Manhattan distance scaled by tile size, per the ordering
// requirement against the straight-line cost of cardinal moves.
func heuristic(a, b tileCoord) float64 {
	dx := math.Abs(float64(a.X - b.X))
	dy := math.Abs(float64(a.Y - b.Y))
	return (dx + dy) * tilemap.TileSize
}

func reconstruct(cameFrom map[tileCoord]tileCoord, goal tileCoord, dst Point) []Point {
	var tiles []tileCoord
	for c := goal; ; {
		tiles = append(tiles, c)
		prev, ok := cameFrom[c]
		if !ok {
			break
		}
		c = prev
	}
	// tiles is goal -> start; reverse into start -> goal, skip the start
	// tile itself (the resident is already there).
	path := make([]Point, 0, len(tiles))
	for i := len(tiles) - 2; i >= 0; i-- {
		t := tiles[i]
		path = append(path, Point{
			X: float64(t.X*tilemap.TileSize + tilemap.TileSize/2),
			Y: float64(t.Y*tilemap.TileSize + tilemap.TileSize/2),
		})
	}
	if len(path) > 0 {
		path[len(path)-1] = dst
	} else {
		path = append(path, dst)
	}
	return path
}

func toTile(p Point) tileCoord {
	return tileCoord{
		X: int(math.Floor(p.X / tilemap.TileSize)),
		Y: int(math.Floor(p.Y / tilemap.TileSize)),
	}
}

// node is an open-set entry. seq breaks f-score ties toward the
// later-inserted node.
type node struct {
	coord tileCoord
	g, f  float64
	seq   int
}

type nodeHeap []*node

func (h nodeHeap) Len() int { return len(h) }
func (h nodeHeap) Less(i, j int) bool {
	if h[i].f != h[j].f {
		return h[i].f < h[j].f
	}
	return h[i].seq > h[j].seq
}
func (h nodeHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *nodeHeap) Push(x interface{}) { *h = append(*h, x.(*node)) }
func (h *nodeHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
