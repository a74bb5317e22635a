// Package diplomacy maintains pairwise relations between factions: war,
// truce, alliance and pending proposals. Every pair has at most one record,
// stored under its canonical (lexicographically ordered) key.
package diplomacy

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/talgya/pantheon/internal/eventlog"
	"github.com/talgya/pantheon/internal/world"
)

// Divine power costs and fixed penalties.
const (
	DeclareWarCost         = 50.0
	OfferPeaceCost         = 25.0
	ProposeAllianceCost    = 20.0
	BreakAllianceCost      = 75.0
	BetrayalReputationLoss = 20.0
	TruceDurationTicks     = 50
)

var (
	ErrUnknownFaction    = errors.New("unknown faction")
	ErrSameFaction       = errors.New("a faction cannot treat with itself")
	ErrInsufficientPower = errors.New("insufficient divine power")
	ErrAlreadyAtWar      = errors.New("already at war")
	ErrAllied            = errors.New("factions are allied")
	ErrInTruce           = errors.New("factions are in truce")
	ErrNotAtWar          = errors.New("factions are not at war")
	ErrAlreadyAllied     = errors.New("factions are already allied")
	ErrNotAllied         = errors.New("factions are not allied")
	ErrProposalPending   = errors.New("a proposal is already pending")
	ErrNoProposal        = errors.New("no pending proposal")
	ErrOwnProposal       = errors.New("cannot answer your own proposal")
)

// Engine applies diplomatic transitions to a shard state.
type Engine struct {
	state *world.State
	rec   eventlog.Recorder
}

// New creates a diplomacy engine over st, recording transitions to rec.
func New(st *world.State, rec eventlog.Recorder) *Engine {
	if rec == nil {
		rec = eventlog.Nop{}
	}
	return &Engine{state: st, rec: rec}
}

// Relation returns the record for the pair, normalizing order; nil if none exists.
func (e *Engine) Relation(a, b string) *world.Relation {
	return e.state.Relations[world.PairKey(a, b)]
}

// Status returns the pair's status; pairs without a record are neutral.
func (e *Engine) Status(a, b string) world.RelationStatus {
	if r := e.Relation(a, b); r != nil {
		return r.Status
	}
	return world.StatusNeutral
}

func (e *Engine) ensure(a, b string) *world.Relation {
	key := world.PairKey(a, b)
	if r := e.state.Relations[key]; r != nil {
		return r
	}
	fa, fb := world.OrderPair(a, b)
	r := &world.Relation{
		ID:          world.RelationID(e.state.Shard, a, b),
		FactionA:    fa,
		FactionB:    fb,
		Status:      world.StatusNeutral,
		ChangedTick: e.state.Tick,
	}
	e.state.Relations[key] = r
	return r
}

func (e *Engine) pair(a, b string) (*world.Faction, *world.Faction, error) {
	if a == b {
		return nil, nil, ErrSameFaction
	}
	fa := e.state.Faction(a)
	if fa == nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownFaction, a)
	}
	fb := e.state.Faction(b)
	if fb == nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownFaction, b)
	}
	return fa, fb, nil
}

func (e *Engine) change(r *world.Relation, actor *world.Faction) eventlog.DiplomacyChange {
	return eventlog.DiplomacyChange{
		Relation:        *r,
		Actor:           actor.ID,
		ActorPower:      actor.DivinePower,
		ActorReputation: actor.Reputation,
	}
}

func (e *Engine) setStatus(r *world.Relation, status world.RelationStatus) {
	r.Status = status
	r.ChangedTick = e.state.Tick
	r.Proposal = nil
}

// DeclareWar moves a neutral pair to war.
func (e *Engine) DeclareWar(attacker, target string) error {
	fa, _, err := e.pair(attacker, target)
	if err != nil {
		return err
	}
	switch e.Status(attacker, target) {
	case world.StatusWar:
		return ErrAlreadyAtWar
	case world.StatusAlliance:
		return ErrAllied
	case world.StatusTruce:
		return ErrInTruce
	}
	if !fa.SpendDivinePower(DeclareWarCost) {
		return ErrInsufficientPower
	}
	r := e.ensure(attacker, target)
	e.setStatus(r, world.StatusWar)
	e.rec.Record(e.state.Tick, eventlog.WarDeclared{DiplomacyChange: e.change(r, fa)})
	slog.Info("war declared", "tick", e.state.Tick, "attacker", attacker, "target", target)
	return nil
}

// OfferPeace attaches a peace proposal to a war relation.
func (e *Engine) OfferPeace(from, to string) error {
	ff, _, err := e.pair(from, to)
	if err != nil {
		return err
	}
	r := e.Relation(from, to)
	if r == nil || r.Status != world.StatusWar {
		return ErrNotAtWar
	}
	if r.Proposal != nil {
		return ErrProposalPending
	}
	if !ff.SpendDivinePower(OfferPeaceCost) {
		return ErrInsufficientPower
	}
	r.Proposal = &world.Proposal{ProposedBy: from, Type: world.ProposalPeace, Tick: e.state.Tick}
	e.rec.Record(e.state.Tick, eventlog.PeaceOffered{DiplomacyChange: e.change(r, ff)})
	return nil
}

// ProposeAlliance attaches an alliance proposal to a neutral or truce relation.
func (e *Engine) ProposeAlliance(from, to string) error {
	ff, _, err := e.pair(from, to)
	if err != nil {
		return err
	}
	switch e.Status(from, to) {
	case world.StatusWar:
		return ErrAlreadyAtWar
	case world.StatusAlliance:
		return ErrAlreadyAllied
	}
	if r := e.Relation(from, to); r != nil && r.Proposal != nil {
		return ErrProposalPending
	}
	if !ff.SpendDivinePower(ProposeAllianceCost) {
		return ErrInsufficientPower
	}
	r := e.ensure(from, to)
	r.Proposal = &world.Proposal{ProposedBy: from, Type: world.ProposalAlliance, Tick: e.state.Tick}
	e.rec.Record(e.state.Tick, eventlog.AllianceProposed{DiplomacyChange: e.change(r, ff)})
	return nil
}

// Respond answers the pending proposal between responder and other.
func (e *Engine) Respond(responder, other string, accept bool) error {
	fr, _, err := e.pair(responder, other)
	if err != nil {
		return err
	}
	r := e.Relation(responder, other)
	if r == nil || r.Proposal == nil {
		return ErrNoProposal
	}
	if r.Proposal.ProposedBy == responder {
		return ErrOwnProposal
	}

	switch r.Proposal.Type {
	case world.ProposalPeace:
		if accept {
			e.setStatus(r, world.StatusTruce)
			e.rec.Record(e.state.Tick, eventlog.PeaceAccepted{DiplomacyChange: e.change(r, fr)})
			slog.Info("peace accepted", "tick", e.state.Tick, "a", r.FactionA, "b", r.FactionB)
		} else {
			r.Proposal = nil
			e.rec.Record(e.state.Tick, eventlog.PeaceRejected{DiplomacyChange: e.change(r, fr)})
		}
	case world.ProposalAlliance:
		if accept {
			e.setStatus(r, world.StatusAlliance)
			e.rec.Record(e.state.Tick, eventlog.AllianceAccepted{DiplomacyChange: e.change(r, fr)})
			slog.Info("alliance formed", "tick", e.state.Tick, "a", r.FactionA, "b", r.FactionB)
		} else {
			// Status never changed while pending, so rejection restores the prior state.
			r.Proposal = nil
			e.rec.Record(e.state.Tick, eventlog.AllianceRejected{DiplomacyChange: e.change(r, fr)})
		}
	default:
		return fmt.Errorf("%w: type %q", ErrNoProposal, r.Proposal.Type)
	}
	return nil
}

// BreakAlliance returns an allied pair to neutral and costs the breaker reputation.
func (e *Engine) BreakAlliance(breaker, ally string) error {
	fb, _, err := e.pair(breaker, ally)
	if err != nil {
		return err
	}
	r := e.Relation(breaker, ally)
	if r == nil || r.Status != world.StatusAlliance {
		return ErrNotAllied
	}
	if !fb.SpendDivinePower(BreakAllianceCost) {
		return ErrInsufficientPower
	}
	fb.AdjustReputation(-BetrayalReputationLoss)
	e.setStatus(r, world.StatusNeutral)
	e.rec.Record(e.state.Tick, eventlog.AllianceBroken{DiplomacyChange: e.change(r, fb)})
	slog.Info("alliance broken", "tick", e.state.Tick, "breaker", breaker, "ally", ally, "reputation", fb.Reputation)
	return nil
}

// ExpireTruces returns truces older than TruceDurationTicks to neutral.
func (e *Engine) ExpireTruces() int {
	expired := 0
	for _, r := range e.state.SortedRelations() {
		if r.Status != world.StatusTruce || r.ChangedTick+TruceDurationTicks > e.state.Tick {
			continue
		}
		// An alliance offer made during the truce stays open.
		pending := r.Proposal
		e.setStatus(r, world.StatusNeutral)
		r.Proposal = pending
		e.rec.Record(e.state.Tick, eventlog.TruceExpired{DiplomacyChange: eventlog.DiplomacyChange{
			Relation: *r,
		}})
		expired++
	}
	return expired
}
