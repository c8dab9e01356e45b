package system

import (
	"fmt"
	"sort"
	"time"
)

// PanicLogger receives a recovered system panic. Kept narrow so Runner
// doesn't import zap directly; the composition root supplies a
// zap.Logger-backed implementation.
type PanicLogger interface {
	Error(msg string, phase Phase, systemIndex int, rec any)
}

// Runner executes systems in phase order each tick. A panic inside one
// system's Update is recovered and logged rather than crashing the whole
// tick, the same discipline the packet registry uses for a single bad
// handler.
type Runner struct {
	systems []System
	sorted  bool
	onPanic PanicLogger
}

func NewRunner() *Runner {
	return &Runner{
		systems: make([]System, 0, 16),
	}
}

// SetPanicLogger wires the logger used to report a recovered panic. Safe
// to call at any time; nil disables logging (the panic is still
// recovered, just silently).
func (r *Runner) SetPanicLogger(l PanicLogger) { r.onPanic = l }

func (r *Runner) Register(s System) {
	r.systems = append(r.systems, s)
	r.sorted = false
}

func (r *Runner) ensureSorted() {
	if r.sorted {
		return
	}
	sort.SliceStable(r.systems, func(i, j int) bool {
		return r.systems[i].Phase() < r.systems[j].Phase()
	})
	r.sorted = true
}

func (r *Runner) Tick(dt time.Duration) {
	r.ensureSorted()
	for i, s := range r.systems {
		r.runOne(s, i, dt)
	}
}

// TickPhase runs only the systems registered for a single phase, in
// registration order. Used by the dual-frequency game loop: the position
// phase runs at 30 Hz while the remaining phases run at 10 Hz.
func (r *Runner) TickPhase(phase Phase, dt time.Duration) {
	r.ensureSorted()
	for i, s := range r.systems {
		if s.Phase() == phase {
			r.runOne(s, i, dt)
		}
	}
}

func (r *Runner) runOne(s System, index int, dt time.Duration) {
	defer func() {
		if rec := recover(); rec != nil {
			if r.onPanic != nil {
				r.onPanic.Error(fmt.Sprintf("system panic recovered: %v", rec), s.Phase(), index, rec)
			}
		}
	}()
	s.Update(dt)
}
