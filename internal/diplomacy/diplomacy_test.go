package diplomacy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/pantheon/internal/eventlog"
	"github.com/talgya/pantheon/internal/world"
)

type captured struct {
	events []eventlog.Payload
}

func (c *captured) Record(_ uint64, p eventlog.Payload) { c.events = append(c.events, p) }

func (c *captured) types() []eventlog.Type {
	out := make([]eventlog.Type, len(c.events))
	for i, p := range c.events {
		out[i] = p.Type()
	}
	return out
}

func setup(t *testing.T) (*Engine, *world.State, *captured) {
	t.Helper()
	st := world.NewState("test")
	st.AddFaction(world.NewFaction("a", "Alpha", "#f00", "deity-a", world.Policy{}))
	st.AddFaction(world.NewFaction("b", "Beta", "#0f0", world.AIDeity, world.Policy{}))
	st.AddFaction(world.NewFaction("c", "Gamma", "#00f", world.AIDeity, world.Policy{}))
	rec := &captured{}
	return New(st, rec), st, rec
}

func TestPairLookupIsNormalized(t *testing.T) {
	e, st, _ := setup(t)
	require.NoError(t, e.DeclareWar("b", "a"))

	r := e.Relation("a", "b")
	require.NotNil(t, r)
	assert.Same(t, r, e.Relation("b", "a"))
	assert.Equal(t, "a", r.FactionA)
	assert.Equal(t, "b", r.FactionB)
	assert.Len(t, st.Relations, 1)
}

func TestDeclareWarTwiceFailsWithoutChange(t *testing.T) {
	e, st, rec := setup(t)
	require.NoError(t, e.DeclareWar("a", "b"))
	power := st.Faction("a").DivinePower
	before := st.Digest()

	err := e.DeclareWar("a", "b")
	assert.ErrorIs(t, err, ErrAlreadyAtWar)
	err = e.DeclareWar("b", "a")
	assert.ErrorIs(t, err, ErrAlreadyAtWar)

	assert.Equal(t, power, st.Faction("a").DivinePower)
	assert.Equal(t, before, st.Digest())
	assert.Len(t, rec.events, 1)
}

func TestDeclareWarCostsDivinePower(t *testing.T) {
	e, st, _ := setup(t)
	st.Faction("a").DivinePower = DeclareWarCost - 1

	assert.ErrorIs(t, e.DeclareWar("a", "b"), ErrInsufficientPower)
	assert.Nil(t, e.Relation("a", "b"))

	st.Faction("a").DivinePower = DeclareWarCost
	require.NoError(t, e.DeclareWar("a", "b"))
	assert.Zero(t, st.Faction("a").DivinePower)
	assert.True(t, e.CanAttack("b", "a"))
}

func TestPeaceOfferRejectedKeepsWar(t *testing.T) {
	e, st, rec := setup(t)
	require.NoError(t, e.DeclareWar("a", "b"))
	st.Faction("a").DivinePower = OfferPeaceCost

	require.NoError(t, e.OfferPeace("a", "b"))
	r := e.Relation("a", "b")
	require.NotNil(t, r.Proposal)
	assert.Equal(t, world.Proposal{ProposedBy: "a", Type: world.ProposalPeace, Tick: st.Tick}, *r.Proposal)

	assert.ErrorIs(t, e.Respond("a", "b", false), ErrOwnProposal)
	require.NoError(t, e.Respond("b", "a", false))
	assert.Nil(t, r.Proposal)
	assert.Equal(t, world.StatusWar, r.Status)
	assert.Equal(t, []eventlog.Type{
		eventlog.TypeWarDeclared, eventlog.TypePeaceOffered, eventlog.TypePeaceRejected,
	}, rec.types())
}

func TestPeaceAcceptedThenTruceExpires(t *testing.T) {
	e, st, _ := setup(t)
	require.NoError(t, e.DeclareWar("a", "b"))
	require.NoError(t, e.OfferPeace("b", "a"))
	st.Tick = 10
	require.NoError(t, e.Respond("a", "b", true))
	assert.Equal(t, world.StatusTruce, e.Status("a", "b"))

	assert.ErrorIs(t, e.DeclareWar("a", "b"), ErrInTruce)

	st.Tick = 10 + TruceDurationTicks - 1
	assert.Zero(t, e.ExpireTruces())
	st.Tick = 10 + TruceDurationTicks
	assert.Equal(t, 1, e.ExpireTruces())
	assert.Equal(t, world.StatusNeutral, e.Status("a", "b"))
}

func TestOfferPeaceRequiresWar(t *testing.T) {
	e, _, _ := setup(t)
	assert.ErrorIs(t, e.OfferPeace("a", "b"), ErrNotAtWar)
	require.NoError(t, e.DeclareWar("a", "b"))
	require.NoError(t, e.OfferPeace("a", "b"))
	assert.ErrorIs(t, e.OfferPeace("b", "a"), ErrProposalPending)
}

func TestAllianceLifecycle(t *testing.T) {
	e, st, _ := setup(t)

	require.NoError(t, e.ProposeAlliance("a", "c"))
	assert.ErrorIs(t, e.ProposeAlliance("c", "a"), ErrProposalPending)
	require.NoError(t, e.Respond("c", "a", false))
	assert.Equal(t, world.StatusNeutral, e.Status("a", "c"))

	require.NoError(t, e.ProposeAlliance("a", "c"))
	require.NoError(t, e.Respond("c", "a", true))
	assert.True(t, e.AreAllied("c", "a"))
	assert.Equal(t, []string{"c"}, e.Allies("a"))
	assert.ErrorIs(t, e.DeclareWar("a", "c"), ErrAllied)
	assert.ErrorIs(t, e.ProposeAlliance("a", "c"), ErrAlreadyAllied)

	st.Faction("a").DivinePower = 500
	rep := st.Faction("a").Reputation
	require.NoError(t, e.BreakAlliance("a", "c"))
	assert.Equal(t, rep-BetrayalReputationLoss, st.Faction("a").Reputation)
	assert.Equal(t, world.StatusNeutral, e.Status("a", "c"))
	assert.InDelta(t, 500-BreakAllianceCost, st.Faction("a").DivinePower, 1e-9)

	// A betrayed ally may be attacked at once.
	require.NoError(t, e.DeclareWar("a", "c"))
	assert.Equal(t, []string{"c"}, e.Enemies("a"))
}

func TestAllianceForbiddenDuringWar(t *testing.T) {
	e, _, _ := setup(t)
	require.NoError(t, e.DeclareWar("a", "b"))
	assert.ErrorIs(t, e.ProposeAlliance("a", "b"), ErrAlreadyAtWar)
	assert.ErrorIs(t, e.BreakAlliance("a", "b"), ErrNotAllied)
}

func TestAllianceFromTruce(t *testing.T) {
	e, _, _ := setup(t)
	require.NoError(t, e.DeclareWar("a", "b"))
	require.NoError(t, e.OfferPeace("a", "b"))
	require.NoError(t, e.Respond("b", "a", true))

	require.NoError(t, e.ProposeAlliance("b", "a"))
	require.NoError(t, e.Respond("a", "b", false))
	assert.Equal(t, world.StatusTruce, e.Status("a", "b"))
}

func TestAllianceOfferSurvivesTruceExpiry(t *testing.T) {
	e, st, rec := setup(t)
	require.NoError(t, e.DeclareWar("a", "b"))
	require.NoError(t, e.OfferPeace("a", "b"))
	require.NoError(t, e.Respond("b", "a", true))
	require.NoError(t, e.ProposeAlliance("b", "a"))

	st.Tick = TruceDurationTicks
	require.Equal(t, 1, e.ExpireTruces())
	r := e.Relation("a", "b")
	assert.Equal(t, world.StatusNeutral, r.Status)
	require.NotNil(t, r.Proposal)
	assert.Equal(t, world.ProposalAlliance, r.Proposal.Type)
	assert.Equal(t, "b", r.Proposal.ProposedBy)

	last := rec.events[len(rec.events)-1].(eventlog.TruceExpired)
	require.NotNil(t, last.Relation.Proposal)

	require.NoError(t, e.Respond("a", "b", true))
	assert.True(t, e.AreAllied("a", "b"))
}

func TestQueries(t *testing.T) {
	e, _, _ := setup(t)
	require.NoError(t, e.DeclareWar("a", "b"))
	require.NoError(t, e.DeclareWar("c", "b"))
	require.NoError(t, e.ProposeAlliance("a", "c"))

	assert.True(t, e.SharedEnemies("a", "c"))
	assert.Len(t, e.RelationsOf("a"), 2)
	pending := e.PendingFor("c")
	require.Len(t, pending, 1)
	assert.Equal(t, "a", pending[0].Proposal.ProposedBy)
	assert.Empty(t, e.PendingFor("a"))

	assert.ErrorIs(t, e.DeclareWar("a", "a"), ErrSameFaction)
	assert.ErrorIs(t, e.DeclareWar("a", "zz"), ErrUnknownFaction)
}
