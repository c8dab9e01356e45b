// Package spatial computes what a resident can see and hear: the
// night-vision-scaled field-of-view cone and ambient disk, and audible
// range attenuated by intervening walls.
package spatial

import (
	"math"

	"github.com/havenport/worldserver/internal/tilemap"
)

// NightVisionMultiplier scales visibility ranges by time of day. hour is
// in [0, 24). Day is full range; dawn/dusk interpolate linearly; night is
// clamped to min.
func NightVisionMultiplier(hour float64, min float64) float64 {
	switch {
	case hour >= 7 && hour < 18:
		return 1
	case hour >= 18 && hour < 20:
		return lerp(1, min, (hour-18)/2)
	case hour >= 20 || hour < 5:
		return min
	default: // 5-7, dawn
		return lerp(min, 1, (hour-5)/2)
	}
}

func lerp(a, b, t float64) float64 {
	if t < 0 {
		t = 0
	}
	if t > 1 {
		t = 1
	}
	return a + (b-a)*t
}

// CanSeeResident reports whether a viewer at (vx, vy) facing vFacing
// degrees can see a target at (tx, ty), given the scaled ambient and FOV
// radii and the full FOV cone angle.
func CanSeeResident(m *tilemap.Map, vx, vy float64, vFacing int, tx, ty float64, ambientRadius, fovRadius, fovAngleDegrees float64) bool {
	dx, dy := tx-vx, ty-vy
	dist := math.Hypot(dx, dy)

	if dist <= ambientRadius {
		return true
	}
	if dist > fovRadius {
		return false
	}
	if !withinCone(vFacing, dx, dy, fovAngleDegrees) {
		return false
	}
	return m.HasLineOfSight(vx, vy, tx, ty)
}

// CanSeeStatic reports visibility of buildings/forage nodes: a longer
// radius, no cone, no LOS check.
func CanSeeStatic(vx, vy, tx, ty, radius float64) bool {
	dx, dy := tx-vx, ty-vy
	return dx*dx+dy*dy <= radius*radius
}

func withinCone(facingDegrees int, dx, dy, halfAngleTotalDegrees float64) bool {
	angleToTarget := math.Atan2(dy, dx) * 180 / math.Pi
	if angleToTarget < 0 {
		angleToTarget += 360
	}
	facing := float64(facingDegrees)
	diff := math.Abs(facing - angleToTarget)
	if diff > 180 {
		diff = 360 - diff
	}
	return diff <= halfAngleTotalDegrees/2
}

// VolumeRange returns the base audible range in pixels for a speech
// volume.
func VolumeRange(volume string, whisper, normal, shout float64) float64 {
	switch volume {
	case "whisper":
		return whisper
	case "shout":
		return shout
	default:
		return normal
	}
}

// AudibleRange applies wall attenuation to a base range: each contiguous
// wall run crossed multiplies the effective range by the attenuation
// factor.
func AudibleRange(baseRange, attenuation float64, wallsBetween int) float64 {
	r := baseRange
	for i := 0; i < wallsBetween; i++ {
		r *= attenuation
	}
	return r
}

// CanHear reports whether a listener at (lx, ly) can hear a speaker at
// (sx, sy) speaking at the given volume, accounting for walls between
// them.
func CanHear(m *tilemap.Map, sx, sy, lx, ly float64, volume string, whisper, normal, shout, attenuation float64) bool {
	base := VolumeRange(volume, whisper, normal, shout)
	walls := m.CountWallsBetween(sx, sy, lx, ly)
	effective := AudibleRange(base, attenuation, walls)
	dist := math.Hypot(lx-sx, ly-sy)
	return dist <= effective
}
