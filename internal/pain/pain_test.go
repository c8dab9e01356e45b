package pain

import (
	"testing"

	"github.com/havenport/worldserver/internal/world"
)

type fakeHooks struct {
	fired []string
}

func (f *fakeHooks) Fire(kind string, payload map[string]any) {
	f.fired = append(f.fired, kind)
}

func TestEvaluateQueuesPainOnTierCrossing(t *testing.T) {
	hooks := &fakeHooks{}
	tracker := New(hooks, nil, 0)
	r := &world.Resident{ID: "r1", Hunger: 100, Thirst: 100, Social: 100, Health: 5}

	tracker.Evaluate(r, 1000)

	if len(r.PendingPain) != 1 {
		t.Fatalf("expected exactly one pain message, got %d: %+v", len(r.PendingPain), r.PendingPain)
	}
	if r.PendingPain[0].Source != "health" || r.PendingPain[0].Tier != "agony" {
		t.Fatalf("expected health/agony, got %+v", r.PendingPain[0])
	}
	if !r.HealthWasBelow20 {
		t.Fatal("expected HealthWasBelow20 to be set")
	}
}

func TestEvaluateRespectsCooldown(t *testing.T) {
	tracker := New(nil, nil, 0)
	r := &world.Resident{ID: "r1", Hunger: 100, Thirst: 100, Social: 100, Health: 5}

	tracker.Evaluate(r, 1000)
	tracker.Evaluate(r, 1010) // within cooldownSeconds of 30

	if len(r.PendingPain) != 1 {
		t.Fatalf("expected cooldown to suppress the second pain message, got %d", len(r.PendingPain))
	}

	tracker.Evaluate(r, 1031) // cooldown elapsed
	if len(r.PendingPain) != 2 {
		t.Fatalf("expected a second pain message once cooldown elapsed, got %d", len(r.PendingPain))
	}
}

func TestMilestoneSurvived30mFiresOnce(t *testing.T) {
	hooks := &fakeHooks{}
	tracker := New(hooks, nil, 0)
	r := &world.Resident{ID: "r1", Hunger: 100, Thirst: 100, Social: 100, Health: 100, RegisteredAtMillis: 0}

	tracker.Evaluate(r, 1800)
	tracker.Evaluate(r, 1900)

	count := 0
	for _, k := range hooks.fired {
		if k == "milestone" {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected the survived_30m milestone to fire exactly once, got %d", count)
	}
}

func TestMilestoneRecoveredFromCriticalRequiresPriorCollapse(t *testing.T) {
	hooks := &fakeHooks{}
	tracker := New(hooks, nil, 0)
	r := &world.Resident{ID: "r1", Hunger: 100, Thirst: 100, Social: 100, Health: 60}

	tracker.Evaluate(r, 100)
	if r.Milestones["recovered_from_critical"] {
		t.Fatal("should not fire recovery milestone without ever having been below 20")
	}

	r.Health = 10
	tracker.Evaluate(r, 200)
	r.Health = 60
	tracker.Evaluate(r, 300)

	if !r.Milestones["recovered_from_critical"] {
		t.Fatal("expected recovery milestone after dropping below 20 then rising above 50")
	}
}

func TestReflectionFiresOnPeriodAndAttachesToken(t *testing.T) {
	hooks := &fakeHooks{}
	tokens := &fakeTokens{token: "tok-123"}
	tracker := New(hooks, tokens, 600)
	r := &world.Resident{ID: "r1", Hunger: 100, Thirst: 100, Social: 100, Health: 100}

	tracker.Evaluate(r, 0)
	tracker.Evaluate(r, 300)
	tracker.Evaluate(r, 700)

	count := 0
	for _, k := range hooks.fired {
		if k == "reflection" {
			count++
		}
	}
	if count != 2 {
		t.Fatalf("expected reflection to fire at t=0 and t=700, got %d fires", count)
	}
}

type fakeTokens struct{ token string }

func (f *fakeTokens) IssueFeedbackToken(residentID string) (string, error) { return f.token, nil }
