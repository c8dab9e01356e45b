package system

import (
	"testing"
	"time"
)

type recordingSystem struct {
	phase Phase
	calls *[]string
	name  string
	panic bool
}

func (s *recordingSystem) Phase() Phase { return s.phase }

func (s *recordingSystem) Update(dt time.Duration) {
	*s.calls = append(*s.calls, s.name)
	if s.panic {
		panic("boom: " + s.name)
	}
}

func TestTickRunsSystemsInPhaseOrder(t *testing.T) {
	var calls []string
	r := NewRunner()
	r.Register(&recordingSystem{phase: PhaseCleanup, calls: &calls, name: "cleanup"})
	r.Register(&recordingSystem{phase: PhaseInput, calls: &calls, name: "input"})
	r.Register(&recordingSystem{phase: PhaseSimulation, calls: &calls, name: "sim"})

	r.Tick(0)

	want := []string{"input", "sim", "cleanup"}
	if len(calls) != len(want) {
		t.Fatalf("expected %v, got %v", want, calls)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, calls)
		}
	}
}

func TestTickPhaseRunsOnlyMatchingPhase(t *testing.T) {
	var calls []string
	r := NewRunner()
	r.Register(&recordingSystem{phase: PhaseInput, calls: &calls, name: "a"})
	r.Register(&recordingSystem{phase: PhaseSimulation, calls: &calls, name: "b"})
	r.Register(&recordingSystem{phase: PhaseInput, calls: &calls, name: "c"})

	r.TickPhase(PhaseInput, 0)

	if len(calls) != 2 || calls[0] != "a" || calls[1] != "c" {
		t.Fatalf("expected [a c], got %v", calls)
	}
}

func TestTickRecoversPanicAndContinues(t *testing.T) {
	var calls []string
	r := NewRunner()
	r.Register(&recordingSystem{phase: PhaseInput, calls: &calls, name: "first", panic: true})
	r.Register(&recordingSystem{phase: PhaseSimulation, calls: &calls, name: "second"})

	r.Tick(0) // must not panic out of the test

	if len(calls) != 2 || calls[0] != "first" || calls[1] != "second" {
		t.Fatalf("expected both systems to run despite the panic, got %v", calls)
	}
}

type capturingPanicLogger struct {
	msgs []string
}

func (l *capturingPanicLogger) Error(msg string, phase Phase, systemIndex int, rec any) {
	l.msgs = append(l.msgs, msg)
}

func TestTickReportsPanicToLogger(t *testing.T) {
	var calls []string
	logger := &capturingPanicLogger{}
	r := NewRunner()
	r.SetPanicLogger(logger)
	r.Register(&recordingSystem{phase: PhaseInput, calls: &calls, name: "bad", panic: true})

	r.Tick(0)

	if len(logger.msgs) != 1 {
		t.Fatalf("expected one reported panic, got %d", len(logger.msgs))
	}
}
