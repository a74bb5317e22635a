package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/pantheon/internal/engine"
	"github.com/talgya/pantheon/internal/entropy"
	"github.com/talgya/pantheon/internal/eventlog"
	"github.com/talgya/pantheon/internal/persistence"
	"github.com/talgya/pantheon/internal/world"
)

func openDB(t *testing.T) *persistence.DB {
	t.Helper()
	db, err := persistence.Open(filepath.Join(t.TempDir(), "shard.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRestoreFreshShard(t *testing.T) {
	db := openDB(t)
	prev, err := restore(context.Background(), db, db.Events(), "main")
	require.NoError(t, err)
	assert.Nil(t, prev.state)
	assert.Equal(t, "fresh", prev.source)
}

func TestRestoreFallsBackToSnapshot(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()
	st := world.NewState("main")
	st.SeedGrid(1)
	st.Tick = 40
	st.AddFaction(world.NewFaction("a", "A", "#f00", world.AIDeity, world.Policy{}))
	require.NoError(t, db.SaveState(ctx, st))

	prev, err := restore(ctx, db, db.Events(), "main")
	require.NoError(t, err)
	require.NotNil(t, prev.state)
	assert.Equal(t, "snapshot", prev.source)
	assert.Equal(t, st.Digest(), prev.state.Digest())
	assert.Equal(t, 1, prev.season)
	assert.Equal(t, uint64(40), prev.seasonStart)
}

func TestRestorePrefersEventLog(t *testing.T) {
	db := openDB(t)
	store := db.Events()
	ctx := context.Background()

	log := eventlog.NewLog("main", store, 25)
	sim := engine.NewSimulation(engine.Options{Shard: "main", Radius: 2, BatchInterval: 10}, nil, log, entropy.NewSeeded(11))
	sim.Bootstrap([]engine.FactionSpec{
		{Name: "Ember", Policy: world.Policy{Expansion: 1, Aggression: 0.5}},
		{Name: "Tide", Policy: world.Policy{Expansion: 0.8}},
	})
	for i := 0; i < 25; i++ {
		sim.Step(ctx)
	}
	cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, sim.Close(cctx))

	// A stale snapshot must not win over the log.
	stale := world.NewState("main")
	stale.Tick = 3
	require.NoError(t, db.SaveState(ctx, stale))

	prev, err := restore(ctx, db, store, "main")
	require.NoError(t, err)
	assert.Equal(t, "event_log", prev.source)
	assert.Equal(t, sim.Snapshot().Digest(), prev.state.Digest())
	assert.Equal(t, uint64(25), prev.state.Tick)
	assert.Equal(t, 1, prev.season)
	assert.Zero(t, prev.seasonStart)

	resumed := engine.NewSimulation(engine.Options{Shard: "main", Radius: 2}, prev.state, nil, entropy.NewSeeded(11))
	resumed.ResumeSeason(prev.season, prev.seasonStart)
	resumed.Step(ctx)
	assert.Equal(t, uint64(26), resumed.Tick())
}
