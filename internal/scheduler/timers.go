package scheduler

import (
	"context"
	"time"

	"github.com/havenport/worldserver/internal/config"
	"github.com/havenport/worldserver/internal/core/event"
	coresys "github.com/havenport/worldserver/internal/core/system"
	"github.com/havenport/worldserver/internal/world"
)

// EventLog is the narrow interface the timer system needs from the
// durable event feed.
type EventLog interface {
	Append(kind, residentID string, payload map[string]any)
}

// PetitionStore persists a petition's settled status once it closes.
// Matches *persist.PetitionRepo.SetStatus directly.
type PetitionStore interface {
	SetStatus(ctx context.Context, id string, status world.PetitionStatus) error
}

// petitionStoreTimeout bounds the fire-and-forget goroutine that reports
// a closed petition's final status.
const petitionStoreTimeout = 5 * time.Second

// TimerSystem advances the world clock and fires the timers that ride on
// it: train arrivals and petition expiry. Restock and forage regrowth are
// owned by economy.System, which runs in the same phase. Registered at
// coresys.PhaseSimulation, run at 10 Hz by Loop.Run.
type TimerSystem struct {
	world    *world.State
	cfg      config.SimulationConfig
	bus      *event.Bus
	events   EventLog
	petitions PetitionStore
}

func NewTimerSystem(w *world.State, cfg config.SimulationConfig, bus *event.Bus, events EventLog) *TimerSystem {
	return &TimerSystem{world: w, cfg: cfg, bus: bus, events: events}
}

// SetPetitionStore wires the optional persistence path for settled
// petitions after construction. Nil (the default, and what every
// existing test uses) leaves expiry working in-memory only.
func (s *TimerSystem) SetPetitionStore(store PetitionStore) { s.petitions = store }

func (s *TimerSystem) Phase() coresys.Phase { return coresys.PhaseSimulation }

func (s *TimerSystem) Update(dt time.Duration) {
	s.world.Clock.Advance(dt)

	if s.world.Clock.TrainDue() {
		for _, id := range s.world.DrainTrainArrivals() {
			if s.bus != nil {
				event.Emit(s.bus, event.ResidentSpawned{ResidentID: id})
			}
			if s.events != nil {
				s.events.Append("spawn", id, nil)
			}
		}
	}

	worldTime := s.world.Clock.WorldSeconds
	for _, p := range s.world.ExpirePetitions(worldTime, s.cfg.PetitionPassThreshold) {
		if s.events != nil {
			s.events.Append("petition_expired", p.AuthorID, map[string]any{
				"petition_id": p.ID,
				"status":      string(p.Status),
			})
		}
		if s.petitions != nil {
			store := s.petitions
			id, status := p.ID, p.Status
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), petitionStoreTimeout)
				defer cancel()
				store.SetStatus(ctx, id, status)
			}()
		}
	}
}
