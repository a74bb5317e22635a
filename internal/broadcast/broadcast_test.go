package broadcast

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/pantheon/internal/world"
)

func testState() *world.State {
	st := world.NewState("s1")
	st.SeedGrid(1)
	st.AddFaction(world.NewFaction("a", "Ash", "#111", world.AIDeity, world.Policy{}))
	return st
}

func drain(t *testing.T, b *Broadcaster) Update {
	t.Helper()
	select {
	case u := <-b.queue:
		return u
	default:
		t.Fatal("no update queued")
		return Update{}
	}
}

func TestFirstUpdateIsSnapshot(t *testing.T) {
	b := NewBroadcaster(NewBus(), "s1", 30)
	st := testState()
	st.Tick = 7
	b.Observe(st)

	u := drain(t, b)
	assert.Equal(t, KindSnapshot, u.Kind)
	assert.Equal(t, uint64(1), u.Seq)
	require.NotNil(t, u.State)
	assert.Equal(t, st.Digest(), u.State.Digest())

	st.Faction("a").DivinePower = 1
	assert.NotEqual(t, st.Digest(), u.State.Digest(), "snapshot must not alias live state")
}

func TestDiffListsOnlyChanges(t *testing.T) {
	b := NewBroadcaster(NewBus(), "s1", 30)
	st := testState()
	st.Tick = 1
	b.Observe(st)
	drain(t, b)

	st.Tick = 2
	st.TransferTerritory("0,0", "a")
	st.Sieges["sg"] = &world.Siege{ID: "sg", AttackerID: "a", TerritoryID: "1,0", Status: world.SiegeActive}
	b.Observe(st)
	u := drain(t, b)
	require.Equal(t, KindDiff, u.Kind)
	assert.Len(t, u.Diff.Territories, 1)
	assert.Len(t, u.Diff.Factions, 1)
	assert.Len(t, u.Diff.Sieges, 1)

	var tr world.Territory
	require.NoError(t, json.Unmarshal(u.Diff.Territories[0], &tr))
	assert.Equal(t, "0,0", tr.ID)
	assert.Equal(t, "a", tr.OwnerID())

	st.Tick = 3
	b.Observe(st)
	assert.True(t, drain(t, b).Diff.Empty())

	st.Tick = 4
	st.RemoveFaction("a")
	delete(st.Sieges, "sg")
	u = observe(t, b, st)
	assert.Equal(t, []string{"a"}, u.Diff.Removed.Factions)
	assert.Equal(t, []string{"sg"}, u.Diff.Removed.Sieges)
}

func observe(t *testing.T, b *Broadcaster, st *world.State) Update {
	t.Helper()
	b.Observe(st)
	return drain(t, b)
}

func TestSnapshotEveryN(t *testing.T) {
	b := NewBroadcaster(NewBus(), "s1", 5)
	st := testState()
	var kinds []Kind
	for tick := uint64(1); tick <= 10; tick++ {
		st.Tick = tick
		kinds = append(kinds, observe(t, b, st).Kind)
	}
	assert.Equal(t, []Kind{
		KindSnapshot, KindDiff, KindDiff, KindDiff, KindSnapshot,
		KindDiff, KindDiff, KindDiff, KindDiff, KindSnapshot,
	}, kinds)
}

func TestBusDeliversInOrder(t *testing.T) {
	bus := NewBus()
	defer bus.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	updates, err := bus.Subscribe(ctx, Topic("s1"), 64)
	require.NoError(t, err)

	b := NewBroadcaster(bus, "s1", 30)
	go b.Run(ctx)
	st := testState()
	for tick := uint64(1); tick <= 20; tick++ {
		st.Tick = tick
		b.Observe(st)
	}

	var seqs []uint64
	timeout := time.After(5 * time.Second)
	for len(seqs) < 20 {
		select {
		case u := <-updates:
			seqs = append(seqs, u.Seq)
		case <-timeout:
			t.Fatalf("received %d of 20 updates", len(seqs))
		}
	}
	for i, s := range seqs {
		assert.Equal(t, uint64(i+1), s)
	}
}
