package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/talgya/pantheon/internal/api"
	"github.com/talgya/pantheon/internal/broadcast"
	"github.com/talgya/pantheon/internal/config"
	"github.com/talgya/pantheon/internal/engine"
	"github.com/talgya/pantheon/internal/entropy"
	"github.com/talgya/pantheon/internal/eventlog"
	"github.com/talgya/pantheon/internal/logging"
	"github.com/talgya/pantheon/internal/persistence"
	"github.com/talgya/pantheon/internal/replay"
	"github.com/talgya/pantheon/internal/world"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the tick loop and the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if addrFlag != "" {
			cfg.Addr = addrFlag
		}
		logging.Setup(cfg.LogFormat, cfg.LogLevel)
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return run(ctx, cfg)
	},
}

var addrFlag string

func init() {
	runCmd.Flags().StringVar(&addrFlag, "addr", "", "HTTP listen address (overrides config)")
	rootCmd.AddCommand(runCmd)
}

// restored is the world recovered at startup.
type restored struct {
	state       *world.State
	season      int
	seasonStart uint64
	source      string
}

// restore rebuilds the shard from its event log, falling back to the last
// snapshot when the log is empty. A nil state means a fresh world.
func restore(ctx context.Context, db *persistence.DB, store eventlog.Store, shard string) (restored, error) {
	events, err := replay.Load(ctx, store, shard, 0, math.MaxUint64)
	if err != nil {
		return restored{}, fmt.Errorf("load event log: %w", err)
	}
	if len(events) > 0 {
		st, skipped := replay.Rebuild(shard, events, replay.EndTick(events))
		season, start := replay.LastSeason(events)
		if skipped > 0 {
			slog.Warn("events skipped during restore", "shard", shard, "skipped", skipped)
		}
		return restored{state: st, season: season, seasonStart: start, source: "event_log"}, nil
	}

	st, err := db.LoadState(ctx, shard)
	switch {
	case errors.Is(err, persistence.ErrNotFound):
		return restored{source: "fresh"}, nil
	case err != nil:
		return restored{}, fmt.Errorf("load snapshot: %w", err)
	}
	// Snapshots carry no season bookkeeping; count from the snapshot tick.
	return restored{state: st, season: 1, seasonStart: st.Tick, source: "snapshot"}, nil
}

func run(ctx context.Context, cfg config.Config) error {
	slog.Info("Pantheon world shard", "config", cfg)

	// ── Database ──────────────────────────────────────────────────────
	db, err := persistence.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	store := db.Events()
	slog.Info("database opened", "path", cfg.DBPath)

	// ── Restore ──────────────────────────────────────────────────────
	prev, err := restore(ctx, db, store, cfg.Shard)
	if err != nil {
		return err
	}
	if prev.state != nil {
		slog.Info("world state restored",
			"source", prev.source,
			"tick", prev.state.Tick,
			"factions", len(prev.state.Factions),
			"territories", len(prev.state.Territories),
			"season", prev.season,
		)
	}

	// Background workers outlive the tick loop until the final drain.
	bg, cancelBG := context.WithCancel(context.Background())
	defer cancelBG()

	log := eventlog.NewLog(cfg.Shard, store, cfg.FlushThreshold)
	if err := log.Resume(ctx); err != nil {
		return err
	}
	go log.Run(bg)

	// ── Simulation ───────────────────────────────────────────────────
	seed := cfg.Seed
	if seed == 0 {
		seed = entropy.CryptoSeed()
	}
	slog.Info("entropy seeded", "seed", seed)

	sim := engine.NewSimulation(engine.Options{
		Shard:         cfg.Shard,
		Radius:        cfg.Radius,
		SeasonLength:  cfg.SeasonLength,
		BatchInterval: cfg.BatchInterval,
	}, prev.state, log, entropy.NewSeeded(seed))
	if prev.season > 0 {
		sim.ResumeSeason(prev.season, prev.seasonStart)
	}
	sim.Bootstrap(cfg.Factions)

	writer := persistence.NewWriter(db)
	go writer.Run(bg)

	bus := broadcast.NewBus()
	defer bus.Close()
	caster := broadcast.NewBroadcaster(bus, cfg.Shard, cfg.SnapshotEvery)
	go caster.Run(bg)

	sim.Phases.OnBroadcast = caster.Observe
	sim.Phases.OnPersist = func(st *world.State) { writer.Submit(st.Clone()) }

	eng := engine.NewEngine(cfg.TickInterval)
	eng.OnTick = sim.Step

	// ── HTTP API ─────────────────────────────────────────────────────
	proxies, err := cfg.ProxyPrefixes()
	if err != nil {
		return err
	}
	limiter := api.NewRateLimiter(cfg.RateLimit, cfg.RateWindow)
	limiter.TrustProxies(proxies)
	srv := (&api.Server{
		Sim:      sim,
		Eng:      eng,
		Store:    store,
		Bus:      bus,
		AdminKey: cfg.AdminKey,
		Limiter:  limiter,
	}).Start(cfg.Addr)

	eng.Start(ctx)
	slog.Info("simulation running", "shard", cfg.Shard, "tick", sim.Tick(), "interval", cfg.TickInterval)

	<-ctx.Done()
	slog.Info("shutting down", "tick", sim.Tick())
	return shutdown(cfg.ShutdownTimeout, eng, srv.Shutdown, sim, writer)
}

// shutdown stops ticking, closes the API, drains the event log and writes a
// final snapshot. Every step runs even when an earlier one fails.
func shutdown(timeout time.Duration, eng *engine.Engine, closeAPI func(context.Context) error,
	sim *engine.Simulation, writer *persistence.Writer) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	eng.Stop()

	var errs []error
	if err := closeAPI(ctx); err != nil {
		errs = append(errs, fmt.Errorf("close api: %w", err))
	}
	if err := sim.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("drain events: %w", err))
	}
	writer.Submit(sim.Snapshot())
	if err := writer.Flush(ctx); err != nil {
		errs = append(errs, fmt.Errorf("final snapshot: %w", err))
	}
	if tick, ok := writer.Saved(); ok {
		slog.Info("world state saved", "tick", tick)
	}
	return errors.Join(errs...)
}
