// Simulation ties together all world systems and runs them each tick.
package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/talgya/pantheon/internal/ai"
	"github.com/talgya/pantheon/internal/diplomacy"
	"github.com/talgya/pantheon/internal/entropy"
	"github.com/talgya/pantheon/internal/eventlog"
	"github.com/talgya/pantheon/internal/siege"
	"github.com/talgya/pantheon/internal/world"
)

// Defaults for Options fields left at zero.
const (
	DefaultRadius       = 6
	DefaultSeasonLength = 5000
)

// Options configures a Simulation.
type Options struct {
	Shard         string
	Radius        int
	SeasonLength  uint64 // Ticks per season; 0 disables season turnover
	BatchInterval uint64 // Ticks between event compaction passes; 0 disables
}

// Phase is an optional per-tick hook. It runs on the tick goroutine with the
// simulation lock held and must not retain st.
type Phase func(st *world.State)

// TickPhases are transport and persistence hooks, each invoked once per tick
// right after the built-in phase of the same name.
type TickPhases struct {
	OnResources  Phase
	OnPopulation Phase
	OnAI         Phase
	OnCombat     Phase
	OnPersist    Phase
	OnBroadcast  Phase
}

// Season tracks the running season. Dominance counts, per faction, the
// ticks it held the most territory.
type Season struct {
	Number    int               `json:"number"`
	StartTick uint64            `json:"start_tick"`
	Dominance map[string]uint64 `json:"dominance"`
}

func (s Season) clone() Season {
	c := s
	c.Dominance = make(map[string]uint64, len(s.Dominance))
	for k, v := range s.Dominance {
		c.Dominance[k] = v
	}
	return c
}

// Simulation holds one shard's world state and the systems that mutate it.
// All mutation goes through Step or the command methods, which serialize on mu.
type Simulation struct {
	opts   Options
	Phases TickPhases

	mu        sync.Mutex
	state     *world.State
	season    Season
	rnd       entropy.Source
	rec       eventlog.Recorder
	log       *eventlog.Log
	compactor *eventlog.Compactor

	diplomacy *diplomacy.Engine
	sieges    *siege.Engine
	ai        *ai.Engine

	bg sync.WaitGroup // in-flight flushes and compactions
}

// NewSimulation wraps st. log may be nil, in which case events are discarded.
func NewSimulation(opts Options, st *world.State, log *eventlog.Log, rnd entropy.Source) *Simulation {
	if opts.Radius <= 0 {
		opts.Radius = DefaultRadius
	}
	if st == nil {
		st = world.NewState(opts.Shard)
	}
	if rnd == nil {
		rnd = entropy.NewRandom()
	}

	s := &Simulation{
		opts:   opts,
		state:  st,
		rnd:    rnd,
		rec:    eventlog.Nop{},
		season: Season{Dominance: make(map[string]uint64)},
	}
	if log != nil {
		s.log = log
		s.rec = log
		s.compactor = eventlog.NewCompactor(log)
	}
	s.diplomacy = diplomacy.New(st, s.rec)
	s.sieges = siege.New(st, s.diplomacy, s.rec)
	s.ai = ai.New(st, s.diplomacy, s.sieges, rnd, s.rec)
	return s
}

// Shard returns the shard id.
func (s *Simulation) Shard() string {
	return s.state.Shard
}

// Tick returns the last completed tick.
func (s *Simulation) Tick() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Tick
}

// Season returns a copy of the running season.
func (s *Simulation) Season() Season {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.season.clone()
}

// Snapshot returns a deep copy of the current state.
func (s *Simulation) Snapshot() *world.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// View runs fn against the live state under the simulation lock.
func (s *Simulation) View(fn func(st *world.State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.state)
}

// Step advances the world by exactly one tick.
func (s *Simulation) Step(ctx context.Context) {
	start := time.Now()
	s.mu.Lock()

	st := s.state
	st.Tick++
	tick := st.Tick

	s.produceResources()
	s.hook(s.Phases.OnResources)

	s.updatePopulation()
	s.hook(s.Phases.OnPopulation)

	s.runAI()
	s.hook(s.Phases.OnAI)

	s.resolveCombat()
	s.hook(s.Phases.OnCombat)

	s.advanceSeason()
	s.recordEconomy()

	s.hook(s.Phases.OnBroadcast)
	s.hook(s.Phases.OnPersist)

	factions, sieges := len(st.Factions), len(st.Sieges)
	s.mu.Unlock()

	s.flushAsync(ctx, tick)
	slog.Debug("tick complete",
		"tick", tick,
		"factions", factions,
		"sieges", sieges,
		"elapsed", time.Since(start),
	)
}

// hook invokes a transport phase, isolating the tick from its panics.
func (s *Simulation) hook(p Phase) {
	if p == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			slog.Error("tick phase panicked", "tick", s.state.Tick, "panic", r)
		}
	}()
	p(s.state)
}

// flushAsync pushes buffered events to storage and, on batch boundaries,
// compacts them. Neither blocks the tick loop.
func (s *Simulation) flushAsync(ctx context.Context, tick uint64) {
	if s.log == nil {
		return
	}
	compact := s.opts.BatchInterval > 0 && tick%s.opts.BatchInterval == 0

	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		if err := s.log.Flush(ctx); err != nil {
			slog.Error("event flush failed", "tick", tick, "error", err)
			return
		}
		if !compact {
			return
		}
		if _, err := s.compactor.Compact(ctx, tick); err != nil {
			slog.Error("event compaction failed", "tick", tick, "error", err)
		}
	}()
}

// Close waits for background writes and drains the event buffer, giving up
// when ctx expires.
func (s *Simulation) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.bg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		slog.Warn("background event writes still running at shutdown")
	}
	if s.log == nil {
		return nil
	}
	return s.log.Close(ctx)
}
