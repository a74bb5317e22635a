package persistence

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/pantheon/internal/eventlog"
	"github.com/talgya/pantheon/internal/world"
)

func openTest(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "world.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func sampleState(tick uint64) *world.State {
	st := world.NewState("s1")
	st.Tick = tick
	st.SeedGrid(1)
	a := world.NewFaction("a", "Ash", "#111", world.AIDeity, world.Policy{Expansion: 0.5})
	b := world.NewFaction("b", "Birch", "#222", "deity-b", world.Policy{})
	b.Specialization = world.SpecOracle
	st.AddFaction(a)
	st.AddFaction(b)
	st.TransferTerritory("0,0", "a")
	st.TransferTerritory("1,0", "b")
	st.Territory("1,0").Effects = []world.Effect{{Kind: world.EffectShield, Shield: true, ExpiresTick: tick + 10}}
	st.Sieges["sg"] = &world.Siege{
		ID: "sg", AttackerID: "a", TerritoryID: "1,0", StartTick: tick,
		Progress: 2.5, RequiredProgress: 20, AttackerStrength: 40, DefenderStrength: 12, Status: world.SiegeActive,
	}
	r := &world.Relation{ID: "rel", FactionA: "a", FactionB: "b", Status: world.StatusWar, ChangedTick: tick,
		Proposal: &world.Proposal{ProposedBy: "b", Type: world.ProposalPeace, Tick: tick}}
	st.Relations[r.Key()] = r
	return st
}

func TestSaveAndLoadState(t *testing.T) {
	db := openTest(t)
	ctx := context.Background()
	st := sampleState(7)
	require.NoError(t, db.SaveState(ctx, st))

	got, err := db.LoadState(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, st.Digest(), got.Digest())

	_, err = db.LoadState(ctx, "other")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSaveStatePrunesRemovedEntities(t *testing.T) {
	db := openTest(t)
	ctx := context.Background()
	require.NoError(t, db.SaveState(ctx, sampleState(7)))

	st := sampleState(8)
	st.RemoveFaction("b")
	require.NoError(t, db.SaveState(ctx, st))

	got, err := db.LoadState(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, got.Factions, 1)
	assert.Empty(t, got.Relations)
	assert.Equal(t, world.SiegeActive, got.Sieges["sg"].Status)
	assert.Empty(t, got.Territory("1,0").OwnerID())
	assert.Equal(t, st.Digest(), got.Digest())
}

func TestRepoIgnoresOlderTicks(t *testing.T) {
	db := openTest(t)
	ctx := context.Background()
	f := world.NewFaction("a", "Ash", "#111", world.AIDeity, world.Policy{})
	f.DivinePower = 300
	require.NoError(t, db.Factions.Upsert(ctx, "s1", 10, f))

	stale := world.NewFaction("a", "Ash", "#111", world.AIDeity, world.Policy{})
	require.NoError(t, db.Factions.Upsert(ctx, "s1", 9, stale))

	got, err := db.Factions.Get(ctx, "s1", "a")
	require.NoError(t, err)
	assert.InDelta(t, 300, got.DivinePower, 1e-9)

	_, err = db.Factions.Get(ctx, "s1", "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, db.Factions.Delete(ctx, "s1", "a"))
	list, err := db.Factions.ListByShard(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestMetaRoundTrip(t *testing.T) {
	db := openTest(t)
	ctx := context.Background()
	require.NoError(t, db.SaveMeta(ctx, "k", "v1"))
	require.NoError(t, db.SaveMeta(ctx, "k", "v2"))
	v, err := db.GetMeta(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v2", v)
}

func events(t *testing.T, shard string, n int) []eventlog.GameEvent {
	t.Helper()
	out := make([]eventlog.GameEvent, 0, n)
	for i := 0; i < n; i++ {
		ev, err := eventlog.NewEvent(shard, uint64(i/2), uint64(i+1),
			eventlog.PopulationChanged{TerritoryID: "0,0", Population: i})
		require.NoError(t, err)
		out = append(out, ev)
	}
	return out
}

func TestEventStoreAppendLoadDelete(t *testing.T) {
	store := openTest(t).Events()
	ctx := context.Background()
	evs := events(t, "s1", 1200)
	require.NoError(t, store.AppendEvents(ctx, evs))
	require.NoError(t, store.AppendEvents(ctx, evs[:10]))

	got, err := store.LoadEvents(ctx, "s1", 5, 9)
	require.NoError(t, err)
	require.Len(t, got, 10)
	assert.Equal(t, evs[10].ID, got[0].ID)
	assert.Equal(t, evs[10].CreatedAt.UnixNano(), got[0].CreatedAt.UnixNano())
	assert.JSONEq(t, string(evs[10].Payload), string(got[0].Payload))

	ids := make([]string, len(evs))
	for i, e := range evs {
		ids[i] = e.ID
	}
	removed, err := store.DeleteEvents(ctx, "s1", ids)
	require.NoError(t, err)
	assert.Equal(t, 1200, removed)

	seq, err := store.MaxSeq(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, uint64(1200), seq, "sequence must survive compaction")
}

func TestEventStoreCompactionRoundTrip(t *testing.T) {
	store := openTest(t).Events()
	ctx := context.Background()
	log := eventlog.NewLog("s1", store, 100)
	for i := 0; i < 30; i++ {
		log.Record(uint64(i), eventlog.PopulationChanged{TerritoryID: "0,0", Population: i})
	}

	b, err := eventlog.NewCompactor(log).Compact(ctx, 19)
	require.NoError(t, err)
	require.NotNil(t, b)
	assert.Equal(t, 20, b.EventCount)

	end, ok, err := store.LastBatchEnd(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, uint64(19), end)

	batches, err := store.LoadBatches(ctx, "s1", 10, 40)
	require.NoError(t, err)
	require.Len(t, batches, 1)
	decoded, err := eventlog.DecodeBatch(batches[0])
	require.NoError(t, err)
	assert.Len(t, decoded, 20)

	raw, err := store.LoadEvents(ctx, "s1", 0, 100)
	require.NoError(t, err)
	assert.Len(t, raw, 10)

	resumed := eventlog.NewLog("s1", store, 100)
	require.NoError(t, resumed.Resume(ctx))
	resumed.Record(30, eventlog.PopulationChanged{TerritoryID: "0,0", Population: 30})
	require.NoError(t, resumed.Flush(ctx))
	last, err := store.LoadEvents(ctx, "s1", 30, 30)
	require.NoError(t, err)
	require.Len(t, last, 1)
	assert.Equal(t, uint64(31), last[0].Seq)
}

func TestEventStoreAcceptsOpenEndedRange(t *testing.T) {
	store := openTest(t).Events()
	ctx := context.Background()
	log := eventlog.NewLog("s1", store, 100)
	for i := 0; i < 12; i++ {
		log.Record(uint64(i), eventlog.PopulationChanged{TerritoryID: "0,0", Population: i})
	}
	_, err := eventlog.NewCompactor(log).Compact(ctx, 5)
	require.NoError(t, err)

	batches, err := store.LoadBatches(ctx, "s1", 0, math.MaxUint64)
	require.NoError(t, err)
	assert.Len(t, batches, 1)
	raw, err := store.LoadEvents(ctx, "s1", 0, math.MaxUint64)
	require.NoError(t, err)
	assert.Len(t, raw, 6)
}

func TestLastBatchEndEmpty(t *testing.T) {
	_, ok, err := openTest(t).Events().LastBatchEnd(context.Background(), "s1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestWriterKeepsNewestSnapshot(t *testing.T) {
	db := openTest(t)
	ctx := context.Background()
	w := NewWriter(db)

	w.Submit(sampleState(5))
	w.Submit(sampleState(9))
	w.Submit(sampleState(6))
	require.NoError(t, w.Flush(ctx))
	saved, ok := w.Saved()
	require.True(t, ok)
	assert.Equal(t, uint64(9), saved)

	w.Submit(sampleState(3))
	require.NoError(t, w.Flush(ctx))
	got, err := db.LoadState(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, uint64(9), got.Tick)
}

func TestWriterRunDrainsSubmissions(t *testing.T) {
	db := openTest(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w := NewWriter(db)
	go w.Run(ctx)

	for tick := uint64(1); tick <= 20; tick++ {
		w.Submit(sampleState(tick))
	}
	assert.Eventually(t, func() bool {
		saved, ok := w.Saved()
		return ok && saved == 20
	}, 5*time.Second, 10*time.Millisecond)
}
