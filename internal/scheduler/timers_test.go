package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/havenport/worldserver/internal/config"
	"github.com/havenport/worldserver/internal/world"
)

type fakeEvents struct {
	appended []string
}

func (f *fakeEvents) Append(kind, residentID string, payload map[string]any) {
	f.appended = append(f.appended, kind)
}

func TestTimerSystemAdvancesClock(t *testing.T) {
	w := testWorld(t, openArtifact)
	sys := NewTimerSystem(w, config.SimulationConfig{PetitionPassThreshold: 0.5}, nil, nil)

	before := w.Clock.WorldSeconds
	sys.Update(time.Second)
	if w.Clock.WorldSeconds <= before {
		t.Fatal("expected world clock to advance")
	}
}

func TestTimerSystemDrainsTrainArrivals(t *testing.T) {
	w := testWorld(t, openArtifact)
	events := &fakeEvents{}
	sys := NewTimerSystem(w, config.SimulationConfig{PetitionPassThreshold: 0.5}, nil, events)

	r := w.Register(newResidentRow("1"), false) // production mode: queued, not yet spawned

	for i := 0; i < 200; i++ {
		sys.Update(time.Second)
	}

	if w.Get(r.ID) == nil {
		t.Fatal("expected resident to remain tracked")
	}
	if len(w.Nearby(w.Map.SpawnX, w.Map.SpawnY, 1, "")) != 1 {
		t.Fatal("expected train arrival to place the queued resident at the spawn point")
	}
	found := false
	for _, k := range events.appended {
		if k == "spawn" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected a spawn event to be logged once the train arrives")
	}
}

func TestTimerSystemExpiresPetitions(t *testing.T) {
	w := testWorld(t, openArtifact)
	events := &fakeEvents{}
	sys := NewTimerSystem(w, config.SimulationConfig{PetitionPassThreshold: 0.5}, nil, events)

	w.WritePetition("1", "Build a well", "please", 0, 1) // expires at worldTime=1

	for i := 0; i < 10; i++ {
		sys.Update(time.Second)
	}

	petitions := w.ListPetitions()
	if len(petitions) != 1 {
		t.Fatalf("expected one petition, got %d", len(petitions))
	}
	if petitions[0].Status == "open" {
		t.Fatal("expected petition to have expired")
	}
}

func newResidentRow(id string) world.ResidentRow {
	return world.ResidentRow{ID: id, Passport: "OC-000000" + id, Type: world.TypeAgent, Status: world.StatusAlive}
}

type fakePetitionStore struct {
	mu       sync.Mutex
	statuses map[string]world.PetitionStatus
	done     chan struct{}
}

func newFakePetitionStore() *fakePetitionStore {
	return &fakePetitionStore{statuses: make(map[string]world.PetitionStatus), done: make(chan struct{}, 4)}
}

func (f *fakePetitionStore) SetStatus(ctx context.Context, id string, status world.PetitionStatus) error {
	f.mu.Lock()
	f.statuses[id] = status
	f.mu.Unlock()
	f.done <- struct{}{}
	return nil
}

func TestTimerSystemPersistsExpiredPetitionStatus(t *testing.T) {
	w := testWorld(t, openArtifact)
	sys := NewTimerSystem(w, config.SimulationConfig{PetitionPassThreshold: 0.5}, nil, nil)
	store := newFakePetitionStore()
	sys.SetPetitionStore(store)

	p := w.WritePetition("1", "Build a well", "please", 0, 1) // expires at worldTime=1

	for i := 0; i < 10; i++ {
		sys.Update(time.Second)
	}

	select {
	case <-store.done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for petition status persistence")
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	if store.statuses[p.ID] == "" {
		t.Fatalf("expected a persisted status for petition %q", p.ID)
	}
}
