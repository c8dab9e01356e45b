package scheduler

import (
	"context"
	"time"

	"github.com/havenport/worldserver/internal/config"
	"github.com/havenport/worldserver/internal/core/event"
	coresys "github.com/havenport/worldserver/internal/core/system"
	"go.uber.org/zap"
)

// Loop drives the dual-frequency game loop: a fast ticker that keeps
// input and position latency low, and a slow ticker that runs the
// remaining phases, Simulation through Cleanup. Modeled on the position/simulation split
// documented on coresys.Phase.
type Loop struct {
	runner *coresys.Runner
	bus    *event.Bus
	log    *zap.Logger

	positionRate   time.Duration
	simulationRate time.Duration
}

func NewLoop(runner *coresys.Runner, bus *event.Bus, net config.NetworkConfig, log *zap.Logger) *Loop {
	return &Loop{
		runner:         runner,
		bus:            bus,
		log:            log,
		positionRate:   net.PositionTickRate,
		simulationRate: net.SimulationRate,
	}
}

// Run blocks until ctx is cancelled, alternating the fast position poll
// with the slow Simulation-through-Cleanup pass. onShutdown, if non-nil, runs once after the
// loop exits — the caller's hook for a final batched save.
func (l *Loop) Run(ctx context.Context, onShutdown func()) {
	posTicker := time.NewTicker(l.positionRate)
	simTicker := time.NewTicker(l.simulationRate)
	defer posTicker.Stop()
	defer simTicker.Stop()

	l.log.Info("tick loop started",
		zap.Duration("position_rate", l.positionRate),
		zap.Duration("simulation_rate", l.simulationRate),
	)

	for {
		select {
		case <-ctx.Done():
			l.log.Info("tick loop stopping")
			if onShutdown != nil {
				onShutdown()
			}
			return
		case <-posTicker.C:
			l.runner.TickPhase(coresys.PhaseInput, l.positionRate)
			l.runner.TickPhase(coresys.PhasePosition, l.positionRate)
		case <-simTicker.C:
			if l.bus != nil {
				l.bus.SwapBuffers()
			}
			l.runner.TickPhase(coresys.PhaseSimulation, l.simulationRate)
			l.runner.TickPhase(coresys.PhasePerception, l.simulationRate)
			l.runner.TickPhase(coresys.PhaseOutput, l.simulationRate)
			l.runner.TickPhase(coresys.PhasePersist, l.simulationRate)
			l.runner.TickPhase(coresys.PhaseCleanup, l.simulationRate)
			if l.bus != nil {
				l.bus.DispatchAll()
			}
		}
	}
}
