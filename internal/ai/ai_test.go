package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/pantheon/internal/diplomacy"
	"github.com/talgya/pantheon/internal/entropy"
	"github.com/talgya/pantheon/internal/eventlog"
	"github.com/talgya/pantheon/internal/siege"
	"github.com/talgya/pantheon/internal/world"
)

type harness struct {
	state  *world.State
	dip    *diplomacy.Engine
	sieges *siege.Engine
	ai     *Engine
}

func newHarness(t *testing.T, rnd entropy.Source, policies map[string]world.Policy) *harness {
	t.Helper()
	st := world.NewState("test")
	st.SeedGrid(3)
	for _, tr := range st.Territories {
		tr.Population = 100
	}
	for id, p := range policies {
		st.AddFaction(world.NewFaction(id, id, "#fff", world.AIDeity, p))
	}
	dip := diplomacy.New(st, nil)
	sg := siege.New(st, dip, nil)
	return &harness{state: st, dip: dip, sieges: sg, ai: New(st, dip, sg, rnd, nil)}
}

func (h *harness) give(t *testing.T, factionID string, pop int, ids ...string) {
	t.Helper()
	for _, id := range ids {
		require.True(t, h.state.TransferTerritory(id, factionID))
		h.state.Territory(id).Population = pop
	}
}

// Neutral jitter: every Float64 is 0.5, so policies are used as-is and
// Chance(p) succeeds only for p > 0.5.
func neutral() entropy.Source { return entropy.NewFixed(0.5) }

func TestExpandsWhenPolicyAllows(t *testing.T) {
	h := newHarness(t, neutral(), map[string]world.Policy{
		"a": {Expansion: 0.9},
	})
	h.give(t, "a", 100, "0,0")
	f := h.state.Faction("a")

	rep := h.ai.Decide("a")
	assert.Equal(t, 1, rep.Claimed)
	require.Len(t, f.Territories, 2)
	assert.InDelta(t, world.StartProdReserve-ExpansionCost, f.Resources.Production, 1e-9)
	claimed := h.state.Territory(f.Territories[1])
	assert.True(t, world.Adjacent(claimed.Coord, world.HexCoord{}))
	assert.Equal(t, "a", claimed.OwnerID())
}

func TestLandlessFactionSettlesAnywhere(t *testing.T) {
	h := newHarness(t, neutral(), map[string]world.Policy{"a": {Expansion: 0.9}})
	rep := h.ai.Decide("a")
	assert.Equal(t, 1, rep.Claimed)
	assert.Len(t, h.state.Faction("a").Territories, 1)
}

func TestNoExpansionBelowThresholdOrBudget(t *testing.T) {
	h := newHarness(t, neutral(), map[string]world.Policy{
		"a": {Expansion: 0.4},
		"b": {Expansion: 0.9},
	})
	h.state.Faction("b").Resources.Production = ExpansionCost - 1

	assert.Zero(t, h.ai.Decide("a").Claimed)
	assert.Zero(t, h.ai.Decide("b").Claimed)
}

func TestPlayerFactionsAreIgnored(t *testing.T) {
	h := newHarness(t, neutral(), nil)
	h.state.AddFaction(world.NewFaction("p", "Player", "#000", "deity-1", world.Policy{Expansion: 1}))
	assert.False(t, h.ai.Decide("p").Acted())
	assert.False(t, h.ai.Decide("missing").Acted())
}

func TestWeakerFactionAcceptsPeace(t *testing.T) {
	h := newHarness(t, neutral(), map[string]world.Policy{
		"a": {Aggression: 1},
		"b": {},
	})
	h.give(t, "a", 100, "0,0")
	h.give(t, "b", 1000, "2,0", "2,-1")
	require.NoError(t, h.dip.DeclareWar("b", "a"))
	require.NoError(t, h.dip.OfferPeace("b", "a"))

	rep := h.ai.Decide("a")
	assert.Equal(t, 1, rep.Accepted)
	assert.Equal(t, world.StatusTruce, h.dip.Status("a", "b"))
}

func TestStrongAggressiveFactionRejectsPeace(t *testing.T) {
	h := newHarness(t, neutral(), map[string]world.Policy{
		"a": {Aggression: 0.55},
		"b": {},
	})
	h.give(t, "a", 1000, "0,0", "1,0")
	h.give(t, "b", 100, "-2,0")
	require.NoError(t, h.dip.DeclareWar("a", "b"))
	require.NoError(t, h.dip.OfferPeace("b", "a"))

	rep := h.ai.Decide("a")
	assert.Equal(t, 1, rep.Rejected)
	assert.Equal(t, world.StatusWar, h.dip.Status("a", "b"))
}

func TestAllianceAcceptance(t *testing.T) {
	h := newHarness(t, neutral(), map[string]world.Policy{
		"a": {Aggression: 1},
		"b": {},
		"c": {},
	})
	h.give(t, "a", 500, "0,0")
	h.give(t, "b", 10, "3,0")
	h.give(t, "c", 2000, "-3,0")

	require.NoError(t, h.dip.ProposeAlliance("b", "a"))
	require.NoError(t, h.dip.ProposeAlliance("c", "a"))
	rep := h.ai.Decide("a")

	assert.Equal(t, 1, rep.Accepted)
	assert.Equal(t, 1, rep.Rejected)
	assert.True(t, h.dip.AreAllied("a", "c"))
	assert.False(t, h.dip.AreAllied("a", "b"))
}

func TestDeclaresWarOnWeakerNeighbour(t *testing.T) {
	h := newHarness(t, neutral(), map[string]world.Policy{
		"a": {Aggression: 0.9},
		"b": {},
		"c": {},
	})
	h.give(t, "a", 1000, "0,0")
	h.give(t, "b", 50, "1,0", "1,-1")
	h.give(t, "c", 50, "-3,3")

	rep := h.ai.Decide("a")
	assert.Equal(t, 1, rep.WarsDeclared)
	assert.Equal(t, world.StatusWar, h.dip.Status("a", "b"))
	assert.Equal(t, world.StatusNeutral, h.dip.Status("a", "c"))
}

func TestSiegesEnemyTerritoryThenReinforces(t *testing.T) {
	h := newHarness(t, neutral(), map[string]world.Policy{
		"a": {Aggression: 0.9},
		"b": {},
	})
	h.give(t, "a", 1000, "0,0", "0,1")
	h.give(t, "b", 100, "1,0")
	require.NoError(t, h.dip.DeclareWar("a", "b"))
	force := h.state.FactionStrength("a") * SiegeCommitment

	rep := h.ai.Decide("a")
	require.Equal(t, 1, rep.Sieged)
	s := h.sieges.ActiveFor("1,0")
	require.NotNil(t, s)
	assert.InDelta(t, force, s.AttackerStrength, 1e-9)
	before := s.AttackerStrength

	rep = h.ai.Decide("a")
	assert.Equal(t, 1, rep.Reinforced)
	assert.InDelta(t, before+ReinforceStrength, s.AttackerStrength, 1e-9)
}

func TestDefenderBreaksSiegeWhenStrong(t *testing.T) {
	h := newHarness(t, entropy.NewFixed(0.0), map[string]world.Policy{
		"a": {},
		"b": {},
	})
	h.give(t, "a", 1000, "0,0")
	h.give(t, "b", 10, "3,0")
	require.NoError(t, h.dip.DeclareWar("b", "a"))
	s, err := h.sieges.StartSiege("b", "0,0", 5)
	require.NoError(t, err)

	rep := h.ai.Decide("a")
	assert.Equal(t, 1, rep.SiegesBroken)
	assert.Equal(t, world.SiegeBroken, s.Status)
	assert.InDelta(t, world.StartProdReserve-DefendCost, h.state.Faction("a").Resources.Production, 1e-9)
}

func TestWeakDefenderHarassesOrConcedes(t *testing.T) {
	h := newHarness(t, neutral(), map[string]world.Policy{
		"a": {},
		"b": {},
	})
	h.give(t, "a", 10, "0,0")
	h.give(t, "b", 10, "3,0")
	require.NoError(t, h.dip.DeclareWar("b", "a"))
	s, err := h.sieges.StartSiege("b", "0,0", 100)
	require.NoError(t, err)

	rep := h.ai.Decide("a")
	assert.Equal(t, 1, rep.Harassed)
	assert.InDelta(t, 100-HarassStrength, s.AttackerStrength, 1e-9)

	s.Progress = s.RequiredProgress * 0.9
	rep = h.ai.Decide("a")
	assert.Equal(t, 1, rep.Conceded)
	assert.True(t, s.Active())
}

func TestSeededRunsAreReproducible(t *testing.T) {
	policies := map[string]world.Policy{
		"a": {Expansion: 0.8, Aggression: 0.7},
		"b": {Expansion: 0.6, Aggression: 0.5},
		"c": {Expansion: 0.7, Aggression: 0.8},
	}
	run := func() ([]Report, map[string]string) {
		h := newHarness(t, entropy.NewSeeded(42), policies)
		var reports []Report
		for tick := uint64(1); tick <= 60; tick++ {
			h.state.Tick = tick
			for _, id := range h.state.FactionIDs() {
				h.state.Faction(id).Resources.Production += 20
				h.state.Faction(id).DivinePower += 5
				reports = append(reports, h.ai.Decide(id))
			}
			h.sieges.ProcessSieges()
			h.dip.ExpireTruces()
		}
		owners := make(map[string]string)
		for id, tr := range h.state.Territories {
			owners[id] = tr.OwnerID()
		}
		return reports, owners
	}

	r1, o1 := run()
	r2, o2 := run()
	assert.Equal(t, r1, r2)
	assert.Equal(t, o1, o2)
}

func TestClaimIsRecorded(t *testing.T) {
	rec := &recorder{}
	h := newHarness(t, neutral(), map[string]world.Policy{"a": {Expansion: 1}})
	h.ai = New(h.state, h.dip, h.sieges, neutral(), rec)
	h.ai.Decide("a")
	require.Len(t, rec.events, 1)
	claim, ok := rec.events[0].(eventlog.TerritoryClaimed)
	require.True(t, ok)
	assert.Equal(t, "a", claim.FactionID)
	assert.Equal(t, ExpansionCost, claim.Cost)
}

type recorder struct {
	events []eventlog.Payload
}

func (r *recorder) Record(_ uint64, p eventlog.Payload) { r.events = append(r.events, p) }
