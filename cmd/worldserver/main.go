package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/havenport/worldserver/internal/arbiter"
	"github.com/havenport/worldserver/internal/auth"
	"github.com/havenport/worldserver/internal/config"
	"github.com/havenport/worldserver/internal/core/event"
	coresys "github.com/havenport/worldserver/internal/core/system"
	"github.com/havenport/worldserver/internal/data"
	"github.com/havenport/worldserver/internal/economy"
	"github.com/havenport/worldserver/internal/eventlog"
	"github.com/havenport/worldserver/internal/gateway"
	"github.com/havenport/worldserver/internal/law"
	"github.com/havenport/worldserver/internal/needs"
	"github.com/havenport/worldserver/internal/pain"
	"github.com/havenport/worldserver/internal/perception"
	"github.com/havenport/worldserver/internal/persist"
	"github.com/havenport/worldserver/internal/scheduler"
	"github.com/havenport/worldserver/internal/scripting"
	"github.com/havenport/worldserver/internal/social"
	"github.com/havenport/worldserver/internal/tilemap"
	"github.com/havenport/worldserver/internal/webhook"
	"github.com/havenport/worldserver/internal/world"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func printSection(title string) {
	fmt.Printf("\n\033[33m── %s ──\033[0m\n", title)
}

func printOK(msg string) {
	fmt.Printf("  \033[32m✓\033[0m %s\n", msg)
}

func printReady(msg string) {
	fmt.Printf("  \033[32m▶\033[0m %s\n", msg)
}

func run() error {
	cfgPath := "config/server.toml"
	if p := os.Getenv("HAVENPORT_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	fmt.Printf("\n  Havenport world server — %s (id %d, %s)\n", cfg.Server.Name, cfg.Server.ID, cfg.Server.Environment)

	printSection("database")
	connectCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := persist.NewDB(connectCtx, cfg.Database, log)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer db.Close()
	printOK("connected to postgres")

	if err := persist.RunMigrations(connectCtx, db.Pool); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	printOK("migrations applied")

	residentRepo := persist.NewResidentRepo(db)
	eventRepo := persist.NewEventRepo(db)
	petitionRepo := persist.NewPetitionRepo(db)
	referralRepo := persist.NewReferralRepo(db)
	feedbackRepo := persist.NewFeedbackRepo(db)
	worldStateRepo := persist.NewWorldStateRepo(db)

	printSection("world state")
	tm, err := tilemap.Load("data/map.yaml")
	if err != nil {
		return fmt.Errorf("load map: %w", err)
	}
	printOK(fmt.Sprintf("map loaded: %d building(s)", len(tm.Buildings)))

	itemTable, err := data.LoadItemTable("data/items.yaml")
	if err != nil {
		return fmt.Errorf("load items: %w", err)
	}
	jobTable, err := data.LoadJobTable("data/jobs.yaml")
	if err != nil {
		return fmt.Errorf("load jobs: %w", err)
	}
	shopTable, err := data.LoadShopTable("data/shops.yaml")
	if err != nil {
		return fmt.Errorf("load shops: %w", err)
	}
	printOK(fmt.Sprintf("static tables loaded: %d item type(s), %d job(s), %d shop item(s)", itemTable.Len(), jobTable.Len(), shopTable.Len()))

	stateRow, err := worldStateRepo.Load(connectCtx)
	if err != nil {
		return fmt.Errorf("load world state: %w", err)
	}
	clock := world.NewClock(cfg.Simulation.WorldTimeScale, cfg.Simulation.TrainIntervalSeconds, cfg.Simulation.RestockIntervalSeconds, cfg.Simulation.SaveIntervalSeconds, cfg.Server.StartTimeUnixMilli)
	clock.Restore(stateRow.WorldSeconds, stateRow.LastTrainAt, stateRow.LastRestockAt)

	worldState := world.NewState(tm, clock)

	residentRows, err := residentRepo.LoadAll(connectCtx)
	if err != nil {
		return fmt.Errorf("load residents: %w", err)
	}
	worldState.LoadFromStore(residentRows)
	printOK(fmt.Sprintf("residents loaded: %d", len(residentRows)))

	openPetitions, err := petitionRepo.LoadOpen(connectCtx)
	if err != nil {
		return fmt.Errorf("load petitions: %w", err)
	}
	worldState.LoadPetitions(openPetitions)

	referrals, err := referralRepo.LoadAll(connectCtx)
	if err != nil {
		return fmt.Errorf("load referrals: %w", err)
	}
	worldState.LoadReferrals(referrals)
	printOK(fmt.Sprintf("civic state loaded: %d open petition(s), %d referral code(s)", len(openPetitions), len(referrals)))

	printSection("scripting")
	scriptEngine, err := scripting.NewEngine("scripts", log)
	if err != nil {
		return fmt.Errorf("scripting engine: %w", err)
	}
	defer scriptEngine.Close()
	printOK("lua engine initialised")

	bus := event.NewBus()
	tokens := auth.New(cfg.Auth)

	eventLog := eventlog.New(eventRepo, cfg.Persistence.EventQueueSize, log)
	eventLogCtx, stopEventLog := context.WithCancel(context.Background())
	defer stopEventLog()
	go eventLog.Run(eventLogCtx)

	dispatcher := webhook.New(cfg.Webhook, log)
	hooks := webhook.NewRouter(dispatcher, worldState)
	painTracker := pain.New(hooks, tokens, int64(cfg.Webhook.ReflectionPeriod.Seconds()*cfg.Simulation.WorldTimeScale))

	printSection("domain systems")
	econ := economy.New(worldState, shopTable, jobTable, itemTable, cfg.Simulation, bus, hooks, eventLog, scriptEngine)
	if savedStock, err := worldStateRepo.LoadShopStock(connectCtx); err != nil {
		log.Warn("failed to load shop stock, using table defaults", zap.Error(err))
	} else {
		econ.LoadStock(savedStock)
	}
	lawSys := law.New(worldState, cfg.Simulation, bus, hooks, eventLog, scriptEngine)
	socialSys := social.New(worldState, cfg.Simulation, bus, hooks, eventLog)
	needsSys := needs.New(worldState, cfg.Simulation, bus, hooks, eventLog, painTracker)
	law.Reconcile(worldState)
	printOK("economy, law, social, needs constructed")

	// arbiter.System needs a ResultSink, which in turn needs the arbiter
	// to build requests against — gateway.Server and arbiter.System are
	// constructed in two steps to break the cycle, same as gateway_test.go.
	arb := arbiter.New(worldState, itemTable, cfg.Simulation, bus, hooks, eventLog, econ, lawSys, socialSys, tokens, nil, cfg.Network.InQueueSize)
	gatewayServer := gateway.NewServer(worldState, tokens, arb, cfg.Network, cfg.RateLimit, cfg.Server, log)
	arb.SetResults(gatewayServer)
	arb.SetPetitionStore(petitionRepo)
	arb.SetReferralStore(referralRepo)
	arb.SetFeedbackStore(feedbackRepo)

	perceptionBuilder := perception.New(worldState, itemTable, cfg.Simulation, scriptEngine)

	movementSys := scheduler.NewMovementSystem(worldState, cfg.Simulation)
	timerSys := scheduler.NewTimerSystem(worldState, cfg.Simulation, bus, eventLog)
	timerSys.SetPetitionStore(petitionRepo)

	runner := coresys.NewRunner()
	runner.SetPanicLogger(zapPanicLogger{log})

	runner.Register(gateway.NewGatewaySystem(gatewayServer))
	runner.Register(arb)
	runner.Register(movementSys)
	runner.Register(econ)
	runner.Register(lawSys)
	runner.Register(needsSys)
	runner.Register(timerSys)
	runner.Register(socialSys)
	runner.Register(gateway.NewPerceptionSystem(gatewayServer, perceptionBuilder))
	runner.Register(gateway.NewDisconnectSystem(gatewayServer))

	mux := http.NewServeMux()
	gatewayServer.Routes(mux)
	httpServer := &http.Server{
		Addr:         cfg.Network.BindAddress,
		Handler:      mux,
		ReadTimeout:  cfg.Network.ReadTimeout,
		WriteTimeout: cfg.Network.WriteTimeout,
	}

	printSection("ready")
	printReady(fmt.Sprintf("listening on %s (ws path %s)", cfg.Network.BindAddress, cfg.Network.WebSocketPath))
	printReady(fmt.Sprintf("position %s / simulation %s", cfg.Network.PositionTickRate, cfg.Network.SimulationRate))
	fmt.Println()

	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server stopped", zap.Error(err))
		}
	}()

	gcTicker := time.NewTicker(time.Minute)
	defer gcTicker.Stop()
	go func() {
		for range gcTicker.C {
			tokens.GCFeedbackTokens()
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loop := scheduler.NewLoop(runner, bus, cfg.Network, log)
	loop.Run(ctx, func() {
		log.Info("shutting down")
		saveCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		if errs := residentRepo.SaveAll(saveCtx, worldState.SnapshotRows()); len(errs) > 0 {
			for _, e := range errs {
				log.Error("resident save failed", zap.Error(e))
			}
		}
		worldSeconds, lastTrainAt, lastRestockAt := worldState.Clock.Snapshot()
		if err := worldStateRepo.Save(saveCtx, persist.WorldStateRow{
			WorldSeconds:  worldSeconds,
			LastTrainAt:   lastTrainAt,
			LastRestockAt: lastRestockAt,
		}); err != nil {
			log.Error("world state save failed", zap.Error(err))
		}
		if err := worldStateRepo.SaveShopStock(saveCtx, econ.Stock()); err != nil {
			log.Error("shop stock save failed", zap.Error(err))
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)

		stopEventLog()
		log.Info("shutdown complete")
	})

	return nil
}

// zapPanicLogger adapts a zap.Logger to coresys.PanicLogger.
type zapPanicLogger struct{ log *zap.Logger }

func (z zapPanicLogger) Error(msg string, phase coresys.Phase, systemIndex int, rec any) {
	z.log.Error(msg, zap.Int("phase", int(phase)), zap.Int("system_index", systemIndex), zap.Any("panic", rec))
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapCfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		zapCfg.EncoderConfig.ConsoleSeparator = "  "
		zapCfg.DisableCaller = true
		zapCfg.DisableStacktrace = true
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
