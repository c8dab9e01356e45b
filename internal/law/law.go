// Package law implements the law-enforcement pass: prison release,
// loitering detection, suspect escorting, and the arrest/book actions.
package law

import (
	"fmt"
	"math"
	"time"

	"github.com/havenport/worldserver/internal/config"
	coresys "github.com/havenport/worldserver/internal/core/system"
	"github.com/havenport/worldserver/internal/core/event"
	"github.com/havenport/worldserver/internal/scripting"
	"github.com/havenport/worldserver/internal/tilemap"
	"github.com/havenport/worldserver/internal/world"
)

// officerJobID is the job id that confers police authority (apply_job
// seats a resident into it the same as any other job).
const officerJobID = "police_officer"

// escortOffsetPixels is how far behind the officer's facing an escorted
// suspect is placed.
const escortOffsetPixels = 24

// Webhook is the narrow interface the law system needs from the
// dispatcher.
type Webhook interface {
	Fire(kind string, payload map[string]any)
}

// EventLog is the narrow interface the law system needs from the durable
// event feed.
type EventLog interface {
	Append(kind, residentID string, payload map[string]any)
}

// System runs the per-simulation-tick law pass and exposes the arrest/
// book action handlers invoked by the arbiter.
type System struct {
	world   *world.State
	cfg     config.SimulationConfig
	bus     *event.Bus
	hooks   Webhook
	events  EventLog
	scripts *scripting.Engine // optional; nil falls back to the configured flat sentence
}

func New(w *world.State, cfg config.SimulationConfig, bus *event.Bus, hooks Webhook, events EventLog, scripts *scripting.Engine) *System {
	return &System{world: w, cfg: cfg, bus: bus, hooks: hooks, events: events, scripts: scripts}
}

func (s *System) Phase() coresys.Phase { return coresys.PhaseSimulation }

func (s *System) Update(dt time.Duration) {
	worldTime := s.world.Clock.WorldSeconds
	elapsedWorldSeconds := int64(dt.Seconds()*s.cfg.WorldTimeScale + 0.5)
	if elapsedWorldSeconds < 1 {
		elapsedWorldSeconds = 1
	}

	s.world.AllAlive(func(r *world.Resident) {
		s.checkPrisonRelease(r, worldTime)
		s.checkLoitering(r, elapsedWorldSeconds)
		s.followEscort(r)
	})
	s.reconcileCustody()
}

// checkPrisonRelease clears custody and relocates the resident to the
// police-station door once their sentence has elapsed.
func (s *System) checkPrisonRelease(r *world.Resident, worldTime int64) {
	if r.PrisonSentenceEnd == 0 || worldTime < r.PrisonSentenceEnd {
		return
	}
	r.PrisonSentenceEnd = 0
	r.ArrestedBy = ""
	r.ClearOffenses()

	if stations := s.world.Map.ByKind("police_station"); len(stations) > 0 {
		station := stations[0]
		door, _ := station.NearestDoor(r.X, r.Y)
		x := float64(door.X*tilemap.TileSize + tilemap.TileSize/2)
		y := float64(door.Y*tilemap.TileSize + tilemap.TileSize/2)
		s.world.Move(r, x, y)
	}
	if s.bus != nil {
		event.Emit(s.bus, event.SuspectReleased{ResidentID: r.ID})
	}
	if s.hooks != nil {
		s.hooks.Fire("released", map[string]any{"resident_id": r.ID})
	}
	if s.events != nil {
		s.events.Append("prison_release", r.ID, nil)
	}
}

// checkLoitering accumulates time spent within a small radius of an
// anchor position, flagging an offense once the threshold is crossed.
func (s *System) checkLoitering(r *world.Resident, elapsedWorldSeconds int64) {
	if r.IsImprisoned() || r.IsArrested() || r.Sleeping || r.CurrentBuilding != "" {
		return
	}

	dx := r.X - r.LoiterAnchorX
	dy := r.Y - r.LoiterAnchorY
	if math.Hypot(dx, dy) > s.cfg.LoiterCheckRadius {
		r.LoiterAnchorX, r.LoiterAnchorY = r.X, r.Y
		r.LoiterAccumSeconds = 0
		r.RemoveOffense("loitering")
		return
	}

	r.LoiterAccumSeconds += elapsedWorldSeconds
	if r.LoiterAccumSeconds >= s.cfg.LoiterThresholdSeconds && !r.HasOffense("loitering") {
		r.AddOffense("loitering")
		if s.bus != nil {
			event.Emit(s.bus, event.LawViolation{ResidentID: r.ID, Offense: "loitering"})
		}
		if s.events != nil {
			s.events.Append("law_violation", r.ID, map[string]any{"offense": "loitering"})
		}
	}
}

// followEscort places a carried suspect behind the officer and clears
// the link if the suspect is gone.
func (s *System) followEscort(r *world.Resident) {
	if r.CarryingSuspectID == "" {
		return
	}
	suspect := s.world.Get(r.CarryingSuspectID)
	if suspect == nil || !suspect.IsAlive() {
		r.CarryingSuspectID = ""
		return
	}
	rad := float64(r.Facing) * math.Pi / 180
	x := r.X - math.Cos(rad)*escortOffsetPixels
	y := r.Y - math.Sin(rad)*escortOffsetPixels
	s.world.Move(suspect, x, y)
	suspect.Speed = world.SpeedStopped
	suspect.VX, suspect.VY = 0, 0
}

// reconcileCustody releases any resident stuck with an arrestedBy flag
// that no officer is actually escorting and who isn't imprisoned.
func (s *System) reconcileCustody() {
	escorted := make(map[string]bool)
	s.world.All(func(r *world.Resident) {
		if r.CarryingSuspectID != "" {
			escorted[r.CarryingSuspectID] = true
		}
	})
	s.world.All(func(r *world.Resident) {
		if r.ArrestedBy != "" && !r.IsImprisoned() && !escorted[r.ID] {
			r.ArrestedBy = ""
			if s.bus != nil {
				event.Emit(s.bus, event.SuspectReleased{ResidentID: r.ID})
			}
		}
	})
}

// Reconcile is used right after a persistence load: it releases every
// resident whose sentence elapsed during downtime, then runs the same
// custody-consistency check as the per-tick pass, all before the first
// simulation tick.
func Reconcile(w *world.State) {
	worldTime := w.Clock.WorldSeconds
	w.AllAlive(func(r *world.Resident) {
		if r.PrisonSentenceEnd != 0 && worldTime >= r.PrisonSentenceEnd {
			r.PrisonSentenceEnd = 0
			r.ArrestedBy = ""
			r.ClearOffenses()
		}
	})
	escorted := make(map[string]bool)
	w.All(func(r *world.Resident) {
		if r.CarryingSuspectID != "" {
			escorted[r.CarryingSuspectID] = true
		}
	})
	w.All(func(r *world.Resident) {
		if r.ArrestedBy != "" && !r.IsImprisoned() && !escorted[r.ID] {
			r.ArrestedBy = ""
		}
	})
}

// Arrest validates and executes an arrest: only a police officer, within
// range of a suspect carrying at least one offense.
func (s *System) Arrest(officer, suspect *world.Resident) error {
	if officer.Job == nil || officer.Job.JobID != officerJobID {
		return fmt.Errorf("only a police officer may arrest")
	}
	if len(suspect.Offenses) == 0 {
		return fmt.Errorf("suspect has no active offenses")
	}
	if math.Hypot(suspect.X-officer.X, suspect.Y-officer.Y) > s.cfg.ArrestRange {
		return fmt.Errorf("suspect out of arrest range")
	}
	if officer.Energy < s.cfg.ArrestEnergyCost {
		return fmt.Errorf("insufficient energy to arrest")
	}

	suspect.ArrestedBy = officer.ID
	officer.CarryingSuspectID = suspect.ID
	suspect.Speed = world.SpeedStopped
	suspect.VX, suspect.VY = 0, 0
	suspect.Path = nil
	officer.Energy -= s.cfg.ArrestEnergyCost

	if s.bus != nil {
		event.Emit(s.bus, event.Arrested{OfficerID: officer.ID, SuspectID: suspect.ID})
	}
	if s.events != nil {
		s.events.Append("arrest", officer.ID, map[string]any{"suspect_id": suspect.ID})
	}
	return nil
}

// Book sentences the escorted suspect, provided the officer is inside
// the police station.
func (s *System) Book(officer *world.Resident, worldTime int64) error {
	if officer.CarryingSuspectID == "" {
		return fmt.Errorf("not escorting a suspect")
	}
	b := s.world.Map.BuildingAt(officer.X, officer.Y)
	if b == nil || b.Kind != "police_station" {
		return fmt.Errorf("must be inside the police station to book")
	}
	suspect := s.world.Get(officer.CarryingSuspectID)
	if suspect == nil {
		officer.CarryingSuspectID = ""
		return fmt.Errorf("suspect no longer present")
	}

	sentence := s.cfg.SentenceSeconds
	if s.scripts != nil {
		sentence = s.scripts.CalcSentenceLength(scripting.SentenceContext{
			BaseSeconds:  s.cfg.SentenceSeconds,
			OffenseCount: len(suspect.Offenses),
		})
	}
	suspect.PrisonSentenceEnd = worldTime + sentence
	suspect.ArrestedBy = ""
	officer.CarryingSuspectID = ""
	officer.Wallet += s.cfg.ArrestBounty

	if s.bus != nil {
		event.Emit(s.bus, event.SuspectBooked{OfficerID: officer.ID, SuspectID: suspect.ID, ReleaseAt: suspect.PrisonSentenceEnd})
	}
	if s.events != nil {
		s.events.Append("book_suspect", officer.ID, map[string]any{"suspect_id": suspect.ID, "release_at": suspect.PrisonSentenceEnd})
	}
	return nil
}
