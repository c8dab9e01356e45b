package world

import "time"

// Clock tracks wall-clock elapsed time and simulated world time, which
// advances at a fixed scale of real time (60x by default: one real second
// is one game-minute). Train, restock, and save timers all ride on this
// clock, each at their own cadence.
type Clock struct {
	scale float64 // world-seconds per real-second

	StartedAtMillis int64 // wall-clock unix millis at boot
	WorldSeconds    int64 // simulated seconds since world start
	WallMillis      int64 // real milliseconds since world start

	lastTrainAt     int64 // world-seconds
	lastRestockAt   int64 // world-seconds
	lastSaveAtMilli int64 // wall millis

	TrainIntervalSeconds   int64
	RestockIntervalSeconds int64
	SaveIntervalMillis     int64
}

func NewClock(scale float64, trainInterval, restockInterval, saveIntervalSeconds int64, startedAtMillis int64) *Clock {
	return &Clock{
		scale:                  scale,
		StartedAtMillis:        startedAtMillis,
		TrainIntervalSeconds:   trainInterval,
		RestockIntervalSeconds: restockInterval,
		SaveIntervalMillis:     saveIntervalSeconds * 1000,
	}
}

// Advance moves the clock forward by dt of real time.
func (c *Clock) Advance(dt time.Duration) {
	ms := dt.Milliseconds()
	c.WallMillis += ms
	c.WorldSeconds = int64(float64(c.WallMillis) / 1000 * c.scale)
}

// TrainDue reports whether a train arrival is due, and if so advances the
// internal timer.
func (c *Clock) TrainDue() bool {
	if c.WorldSeconds-c.lastTrainAt < c.TrainIntervalSeconds {
		return false
	}
	c.lastTrainAt = c.WorldSeconds
	return true
}

// RestockDue reports whether a shop restock is due, and if so advances the
// internal timer.
func (c *Clock) RestockDue() bool {
	if c.WorldSeconds-c.lastRestockAt < c.RestockIntervalSeconds {
		return false
	}
	c.lastRestockAt = c.WorldSeconds
	return true
}

// SaveDue reports whether a persistence batch is due, and if so advances
// the internal timer.
func (c *Clock) SaveDue() bool {
	if c.WallMillis-c.lastSaveAtMilli < c.SaveIntervalMillis {
		return false
	}
	c.lastSaveAtMilli = c.WallMillis
	return true
}

// HourOfDay returns the current in-world hour, in [0, 24), derived from
// WorldSeconds on a 24-hour cycle.
func (c *Clock) HourOfDay() float64 {
	const daySeconds = 86400
	secOfDay := c.WorldSeconds % daySeconds
	if secOfDay < 0 {
		secOfDay += daySeconds
	}
	return float64(secOfDay) / 3600
}

// Restore re-establishes timer anchors after a load from persistence, so
// the first tick after boot doesn't immediately fire every timer.
func (c *Clock) Restore(worldSeconds int64, lastTrainAt, lastRestockAt int64) {
	c.WorldSeconds = worldSeconds
	c.WallMillis = int64(float64(worldSeconds) / c.scale * 1000)
	c.lastTrainAt = lastTrainAt
	c.lastRestockAt = lastRestockAt
}

// Snapshot returns the timer anchors Restore expects, for a periodic or
// shutdown save.
func (c *Clock) Snapshot() (worldSeconds, lastTrainAt, lastRestockAt int64) {
	return c.WorldSeconds, c.lastTrainAt, c.lastRestockAt
}
