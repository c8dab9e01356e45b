// Package system provides the phase-ordered tick scheduler shared by the
// position loop (30 Hz) and the simulation/perception loop (10 Hz).
package system

import "time"

// Phase defines execution ordering within a single logical tick. The
// scheduler (internal/scheduler) drives PhaseInput and PhasePosition at
// 30 Hz and the remaining phases at 10 Hz — see Runner.TickPhase.
type Phase int

const (
	PhaseInput      Phase = iota // 0: drain inbound client commands
	PhasePosition                // 1: path-following + collision-resolved movement (30 Hz)
	PhaseSimulation              // 2: needs, law enforcement, forage, economy timers, world clock
	PhasePerception              // 3: audibility pass, perception packet assembly
	PhaseOutput                  // 4: flush buffered outbound packets
	PhasePersist                 // 5: batched saves
	PhaseCleanup                 // 6: destroy queued entities, clear per-tick buffers
)

// System is the interface every scheduler system implements.
type System interface {
	Phase() Phase
	Update(dt time.Duration)
}
