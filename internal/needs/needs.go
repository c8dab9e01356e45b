// Package needs implements the per-resident needs decay/recovery pass that
// runs every simulation tick: hunger, thirst, energy, bladder, health,
// social, plus the health-critical webhook and bladder-accident side
// effects.
package needs

import (
	"math/rand"
	"time"

	"github.com/havenport/worldserver/internal/config"
	coresys "github.com/havenport/worldserver/internal/core/system"
	"github.com/havenport/worldserver/internal/core/event"
	"github.com/havenport/worldserver/internal/pain"
	"github.com/havenport/worldserver/internal/world"
)

// Webhook is the narrow interface the needs system needs from the
// dispatcher, kept small so tests can fake it.
type Webhook interface {
	Fire(kind string, payload map[string]any)
}

// EventLog is the narrow interface the needs system needs from the
// durable event feed.
type EventLog interface {
	Append(kind, residentID string, payload map[string]any)
}

// System runs the needs pass described for the simulation tick. It
// implements coresys.System so the scheduler can register it alongside
// law, economy, and social systems under the same phase.
type System struct {
	world  *world.State
	cfg    config.SimulationConfig
	bus    *event.Bus
	hooks  Webhook
	events EventLog
	pain   *pain.Tracker
	rng    *rand.Rand
	ticks  int
}

func New(w *world.State, cfg config.SimulationConfig, bus *event.Bus, hooks Webhook, events EventLog, painTracker *pain.Tracker) *System {
	return &System{
		world:  w,
		cfg:    cfg,
		bus:    bus,
		hooks:  hooks,
		events: events,
		pain:   painTracker,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (s *System) Phase() coresys.Phase { return coresys.PhaseSimulation }

func (s *System) Update(dt time.Duration) {
	s.ticks++
	refreshPeers := s.ticks%10 == 0

	s.world.AllAlive(func(r *world.Resident) {
		if refreshPeers {
			r.NearbyAwakePeers = s.countAwakePeers(r)
		}
		s.tickResident(r)
	})
}

func (s *System) countAwakePeers(r *world.Resident) int {
	count := 0
	for _, peer := range s.world.Nearby(r.X, r.Y, s.cfg.SocialProximityRadius, r.ID) {
		if !peer.Sleeping {
			count++
		}
	}
	return count
}

func (s *System) tickResident(r *world.Resident) {
	worldTime := s.world.Clock.WorldSeconds
	cfg := s.cfg

	// 2. conversing state
	conversing := worldTime-r.LastConversationTime <= int64(cfg.ConversationWindow.Seconds())

	// 3. decay multiplier for hunger/thirst
	mult := 1.0
	switch {
	case conversing:
		mult = 1 - cfg.StrongSocialBonus
	case r.NearbyAwakePeers > 0:
		mult = 1 - cfg.WeakSocialBonus
	}

	// 4. hunger/thirst/bladder/social
	r.Hunger = clamp(r.Hunger - cfg.HungerDecayPerTick*mult)
	r.Thirst = clamp(r.Thirst - cfg.ThirstDecayPerTick*mult)
	r.Bladder = clamp(r.Bladder + cfg.BladderFillPerTick)
	if conversing {
		r.Social = clamp(r.Social + cfg.SocialRecoveryPerTick)
	} else {
		r.Social = clamp(r.Social - cfg.SocialDecayPerTick)
	}

	// 5. energy
	if r.Sleeping {
		recovery := cfg.EnergySleepRecovery
		if r.HasItemType("sleeping_bag") {
			recovery += cfg.EnergySleepBagBonus
		}
		r.Energy = clamp(r.Energy + recovery)
		if r.Energy >= cfg.EnergyAutoWakeAt {
			r.Sleeping = false
		}
	} else {
		cost := cfg.EnergyDecayPerTick
		switch r.Speed {
		case world.SpeedWalking:
			cost += 0.02
		case world.SpeedRunning:
			cost += 0.05
		}
		r.Energy = clamp(r.Energy - cost)
	}

	// 6. shift timer advance lives in the economy system.

	// 7. collapse on energy exhaustion
	if r.Energy <= 0 && !r.Sleeping {
		r.Speed = world.SpeedStopped
		r.VX, r.VY = 0, 0
		r.Path = nil
		r.Sleeping = true
		r.SleepStartedAt = worldTime
		if s.bus != nil {
			event.Emit(s.bus, event.ResidentCollapsed{ResidentID: r.ID, X: r.X, Y: r.Y})
		}
		if s.hooks != nil {
			s.hooks.Fire("collapse", map[string]any{"resident_id": r.ID, "x": r.X, "y": r.Y})
		}
		if s.events != nil {
			s.events.Append("collapse", r.ID, map[string]any{"x": r.X, "y": r.Y})
		}
	}

	// 8. health damage/recovery
	damaged := r.Hunger <= 0 || r.Thirst <= 0 || r.Social <= 0
	if r.Hunger <= 0 {
		r.Health = clamp(r.Health - cfg.HealthDamagePerTick)
	}
	if r.Thirst <= 0 {
		r.Health = clamp(r.Health - cfg.HealthDamagePerTick)
	}
	if r.Social <= 0 {
		r.Health = clamp(r.Health - cfg.HealthDamagePerTick)
	}
	if !damaged && r.Hunger > cfg.HealthRecoveryThresh && r.Thirst > cfg.HealthRecoveryThresh &&
		r.Energy > cfg.HealthRecoveryThresh && r.Social > 0 {
		r.Health = clamp(r.Health + cfg.HealthRecoveryPerTick)
	}

	if r.Health <= 0 && r.Status == world.StatusAlive {
		r.Status = world.StatusDeceased
		if s.bus != nil {
			event.Emit(s.bus, event.ResidentDeceased{ResidentID: r.ID})
		}
		if s.events != nil {
			s.events.Append("death", r.ID, nil)
		}
		return
	}

	// 9. health-critical webhook, probabilistic throttle to ~once/10s
	if r.Health < 20 && s.hooks != nil && worldTime-r.LastHealthWebhookAt >= int64(10*s.cfg.WorldTimeScale) && s.rng.Float64() < 0.1 {
		r.LastHealthWebhookAt = worldTime
		s.hooks.Fire("health_critical", map[string]any{"resident_id": r.ID, "health": r.Health})
	}

	// 10. pain messages on severity-tier crossing
	if s.pain != nil {
		s.pain.Evaluate(r, worldTime)
	}

	// 11. bladder accident
	if r.Bladder >= 100 {
		r.Bladder = 50
		fee := cfg.BladderCleaningFee
		if r.Wallet < fee {
			fee = r.Wallet
		}
		r.Wallet -= fee
		if s.events != nil {
			s.events.Append("bladder_accident", r.ID, map[string]any{"fee": fee})
		}
	}
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
