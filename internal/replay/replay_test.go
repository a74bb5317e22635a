package replay

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/pantheon/internal/engine"
	"github.com/talgya/pantheon/internal/entropy"
	"github.com/talgya/pantheon/internal/eventlog"
	"github.com/talgya/pantheon/internal/world"
)

const shard = "replay"

// liveRun drives a seeded simulation for the given number of ticks and
// returns it with the store its log was written to.
func liveRun(t *testing.T, ticks int) (*engine.Simulation, *eventlog.MemoryStore) {
	t.Helper()
	store := eventlog.NewMemoryStore()
	log := eventlog.NewLog(shard, store, 50)
	sim := engine.NewSimulation(engine.Options{Shard: shard, Radius: 3, BatchInterval: 20}, nil, log, entropy.NewSeeded(42))
	sim.Bootstrap([]engine.FactionSpec{
		{Name: "Ember", Policy: world.Policy{Expansion: 0.9, Aggression: 0.9}},
		{Name: "Tide", Policy: world.Policy{Expansion: 0.8, Aggression: 0.3}},
		{Name: "Stone", Policy: world.Policy{Expansion: 0.7, Aggression: 0.7}},
	})
	player := sim.CreateFaction("Player", "#fff", "deity-1", world.Policy{}).ID
	require.True(t, sim.ChooseSpecialization(player, world.SpecBastion).Success)

	ctx := context.Background()
	for i := 1; i <= ticks; i++ {
		sim.Step(ctx)
		if i == 10 {
			for _, f := range sim.Snapshot().SortedFactions() {
				if f.ID != player {
					sim.DeclareWar(player, f.ID)
					sim.SendMessage(player, f.ID, "yield")
					break
				}
			}
		}
	}
	cctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	require.NoError(t, sim.Close(cctx))
	return sim, store
}

func load(t *testing.T, store eventlog.Store, to uint64) []eventlog.GameEvent {
	t.Helper()
	events, err := Load(context.Background(), store, shard, 0, to)
	require.NoError(t, err)
	require.NotEmpty(t, events)
	return events
}

func TestReplayMatchesLiveState(t *testing.T) {
	sim, store := liveRun(t, 60)
	events := load(t, store, 60)

	batches, err := store.LoadBatches(context.Background(), shard, 0, 60)
	require.NoError(t, err)
	assert.NotEmpty(t, batches, "compaction should have archived history")

	st, skipped := Rebuild(shard, events, 60)
	assert.Zero(t, skipped)
	assert.Equal(t, sim.Snapshot().Digest(), st.Digest())
}

func TestRebuildPastEndStopsAtLastEvent(t *testing.T) {
	sim, store := liveRun(t, 5)
	events := load(t, store, math.MaxUint64)

	st, _ := Rebuild(shard, events, math.MaxUint64)
	assert.Equal(t, uint64(5), st.Tick)
	assert.Equal(t, uint64(5), EndTick(events))
	assert.Equal(t, sim.Snapshot().Digest(), st.Digest())

	resumed := engine.NewSimulation(engine.Options{Shard: shard, Radius: 3}, st, nil, entropy.NewSeeded(1))
	resumed.Step(context.Background())
	assert.Equal(t, uint64(6), resumed.Tick())
}

func TestReplayIsDeterministic(t *testing.T) {
	_, store := liveRun(t, 40)
	events := load(t, store, 40)

	first, _ := Rebuild(shard, events, 25)
	second, _ := Rebuild(shard, events, 25)
	assert.Equal(t, first.Digest(), second.Digest())
	assert.Equal(t, uint64(25), first.Tick)
}

func TestSessionSeekMatchesRebuild(t *testing.T) {
	_, store := liveRun(t, 40)
	events := load(t, store, 40)
	s := NewSession(shard, events)
	assert.Equal(t, uint64(40), s.EndTick)

	for _, target := range []uint64{30, 10, 20, 40, 5} {
		want, _ := Rebuild(shard, events, target)
		got := s.Seek(target)
		assert.Equal(t, want.Digest(), got.Digest(), "seek to %d", target)
		assert.Equal(t, target, s.Cursor())
	}

	s.Seek(1000)
	assert.Equal(t, s.EndTick, s.Cursor())
}

func TestSessionAdvanceUsesSpeed(t *testing.T) {
	_, store := liveRun(t, 20)
	s := NewSession(shard, load(t, store, 20))
	s.Speed = 4

	assert.False(t, s.Advance(500*time.Millisecond))
	assert.Equal(t, uint64(2), s.Cursor())
	s.Advance(100 * time.Millisecond)
	s.Advance(200 * time.Millisecond)
	assert.Equal(t, uint64(3), s.Cursor())
	assert.True(t, s.Advance(time.Minute))
	assert.Equal(t, uint64(20), s.Cursor())
}

func TestLoadSurfacesCorruptBatch(t *testing.T) {
	store := eventlog.NewMemoryStore()
	require.NoError(t, store.SaveBatch(context.Background(), eventlog.Batch{
		ID: "broken", Shard: shard, FromTick: 1, ToTick: 5, EventCount: 3, Data: []byte("not gzip"),
	}))
	_, err := Load(context.Background(), store, shard, 0, 10)
	assert.ErrorIs(t, err, eventlog.ErrCorruptBatch)
}

func TestLoadDeduplicatesAndFilters(t *testing.T) {
	ctx := context.Background()
	store := eventlog.NewMemoryStore()
	var events []eventlog.GameEvent
	for i, tick := range []uint64{1, 2, 3, 9} {
		ev, err := eventlog.NewEvent(shard, tick, uint64(i+1), eventlog.PopulationChanged{TerritoryID: "0,0", Population: i})
		require.NoError(t, err)
		events = append(events, ev)
	}
	b, err := eventlog.EncodeBatch(shard, events[:3])
	require.NoError(t, err)
	require.NoError(t, store.SaveBatch(ctx, b))
	// Compaction stopped after saving the batch but before deleting the raw rows.
	require.NoError(t, store.AppendEvents(ctx, events[1:]))

	got, err := Load(ctx, store, shard, 2, 9)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []uint64{2, 3, 9}, []uint64{got[0].Tick, got[1].Tick, got[2].Tick})
}

func TestRebuildSkipsUnappliableEvents(t *testing.T) {
	seed, err := eventlog.NewEvent(shard, 0, 1, eventlog.WorldSeeded{Radius: 1})
	require.NoError(t, err)
	orphan, err := eventlog.NewEvent(shard, 1, 2, eventlog.FactionEconomy{FactionID: "ghost"})
	require.NoError(t, err)
	garbled, err := eventlog.NewEvent(shard, 1, 3, eventlog.PopulationChanged{TerritoryID: "0,0", Population: 70})
	require.NoError(t, err)
	garbled.Payload = []byte("{")
	pop, err := eventlog.NewEvent(shard, 2, 4, eventlog.PopulationChanged{TerritoryID: "0,0", Population: 80})
	require.NoError(t, err)

	st, skipped := Rebuild(shard, []eventlog.GameEvent{seed, orphan, garbled, pop}, 2)
	assert.Equal(t, 2, skipped)
	assert.Len(t, st.Territories, 7)
	assert.Equal(t, 80, st.Territory("0,0").Population)
}

func TestEveryEventTypeHasAFoldRule(t *testing.T) {
	for typ, ctor := range eventlog.Registry {
		err := apply(world.NewState(shard), 1, ctor())
		assert.NotErrorIs(t, err, ErrUnhandled, "event type %s", typ)
	}
}

func TestEffectsExpireAsReplayAdvances(t *testing.T) {
	st := world.NewState(shard)
	st.SeedGrid(0)
	f := world.NewFaction("f", "F", "#000", "deity", world.Policy{})
	st.AddFaction(f)
	st.TransferTerritory("0,0", "f")

	ev, err := eventlog.NewEvent(shard, 3, 1, eventlog.EffectApplied{
		FactionID:   "f",
		TerritoryID: "0,0",
		Action:      "shield",
		Effect:      &world.Effect{Kind: world.EffectShield, Shield: true, ExpiresTick: 5},
		PowerAfter:  60,
	})
	require.NoError(t, err)
	require.NoError(t, Apply(st, ev))
	assert.True(t, st.Territory("0,0").Shielded(4))
	assert.InDelta(t, 60, f.DivinePower, 1e-9)

	advance(st, 5)
	assert.Empty(t, st.Territory("0,0").Effects)
}

func TestLastSeason(t *testing.T) {
	var events []eventlog.GameEvent
	for i, p := range []eventlog.Payload{
		eventlog.SeasonStarted{Season: 1, StartTick: 0},
		eventlog.SeasonEnded{Season: 1},
		eventlog.SeasonStarted{Season: 2, StartTick: 500},
		eventlog.MessageSent{From: "a", To: "b", Text: "hi"},
	} {
		ev, err := eventlog.NewEvent(shard, uint64(i*250), uint64(i+1), p)
		require.NoError(t, err)
		events = append(events, ev)
	}
	n, start := LastSeason(events)
	assert.Equal(t, 2, n)
	assert.Equal(t, uint64(500), start)

	n, _ = LastSeason(nil)
	assert.Zero(t, n)
}
