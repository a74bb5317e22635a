// Package ai drives AI-controlled factions. Each tick a faction answers
// pending proposals, reviews its alliances, defends besieged territory,
// expands into free land and picks fights according to its policy sliders.
// All randomness comes from the injected entropy.Source.
package ai

import (
	"log/slog"

	"github.com/talgya/pantheon/internal/diplomacy"
	"github.com/talgya/pantheon/internal/entropy"
	"github.com/talgya/pantheon/internal/eventlog"
	"github.com/talgya/pantheon/internal/siege"
	"github.com/talgya/pantheon/internal/world"
)

// Policy thresholds and action costs. Costs are in production unless noted.
const (
	ExpansionThreshold  = 0.5
	AggressionThreshold = 0.6
	PolicyJitter        = 0.2

	ExpansionCost     = 30.0
	SiegeCost         = 40.0
	ReinforceCost     = 20.0
	ReinforceStrength = 25.0
	DefendCost        = 15.0
	HarassStrength    = 10.0

	AllianceReviewInterval = 20 // ticks

	// Share of a faction's strength committed to a new siege.
	SiegeCommitment = 0.5
	// Minimum committed strength relative to the target's defense.
	FavorableRatio = 0.5
	// Defender-to-attacker ratio below which a defense is hopeless.
	HopelessRatio = 0.3
	// Siege fraction past which a hopeless defense is given up.
	HopelessProgress = 0.8
)

// Report counts what a faction did in one decision pass.
type Report struct {
	Accepted     int
	Rejected     int
	Broken       int // alliances broken
	SiegesBroken int
	Harassed     int
	Conceded     int
	Claimed      int
	Sieged       int
	Reinforced   int
	WarsDeclared int
}

// Acted reports whether anything happened.
func (r Report) Acted() bool {
	return r != Report{}
}

// Engine evaluates AI faction policy.
type Engine struct {
	state  *world.State
	dip    *diplomacy.Engine
	sieges *siege.Engine
	rnd    entropy.Source
	rec    eventlog.Recorder
}

// New creates an AI engine. rnd must not be nil.
func New(st *world.State, dip *diplomacy.Engine, sieges *siege.Engine, rnd entropy.Source, rec eventlog.Recorder) *Engine {
	if rec == nil {
		rec = eventlog.Nop{}
	}
	return &Engine{state: st, dip: dip, sieges: sieges, rnd: rnd, rec: rec}
}

// Decide runs one decision pass for factionID. Player factions are skipped.
func (e *Engine) Decide(factionID string) Report {
	var rep Report
	f := e.state.Faction(factionID)
	if f == nil || !f.IsAI() {
		return rep
	}

	e.resolveProposals(f, &rep)
	if e.state.Tick > 0 && e.state.Tick%AllianceReviewInterval == 0 {
		e.reviewAlliances(f, &rep)
	}
	e.defend(f, &rep)

	if entropy.Jitter(e.rnd, f.Policy.Expansion, PolicyJitter) > ExpansionThreshold {
		e.expand(f, &rep)
	}
	if entropy.Jitter(e.rnd, f.Policy.Aggression, PolicyJitter) > AggressionThreshold {
		e.aggress(f, &rep)
	}

	if rep.Acted() {
		slog.Debug("ai decided", "tick", e.state.Tick, "faction", factionID, "report", rep)
	}
	return rep
}

func (e *Engine) strength(factionID string) float64 {
	return e.state.FactionStrength(factionID)
}
