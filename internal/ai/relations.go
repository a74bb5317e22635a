package ai

import (
	"log/slog"

	"github.com/talgya/pantheon/internal/diplomacy"
	"github.com/talgya/pantheon/internal/entropy"
	"github.com/talgya/pantheon/internal/world"
)

// Alliance acceptance thresholds, relative to the deciding faction's strength.
const (
	weakAllyRatio   = 0.5 // Proposers weaker than this are refused outright
	strongAllyRatio = 1.5 // Proposers this much stronger are welcome
	uselessAlly     = 0.3 // Allies below this ratio are candidates for betrayal
)

func (e *Engine) resolveProposals(f *world.Faction, rep *Report) {
	mine := e.strength(f.ID)
	for _, r := range e.dip.PendingFor(f.ID) {
		other := r.Other(f.ID)
		theirs := e.strength(other)

		var accept bool
		switch r.Proposal.Type {
		case world.ProposalPeace:
			pressured := len(e.sieges.ActiveAgainst(f.ID)) > 0
			accept = mine < theirs || pressured || entropy.Chance(e.rnd, 1-f.Policy.Aggression)
		case world.ProposalAlliance:
			switch {
			case theirs < mine*weakAllyRatio:
				accept = false
			case e.dip.SharedEnemies(f.ID, other) || theirs >= mine*strongAllyRatio:
				accept = true
			default:
				accept = entropy.Chance(e.rnd, (1-f.Policy.Aggression)*0.5)
			}
		}

		if err := e.dip.Respond(f.ID, other, accept); err != nil {
			slog.Warn("ai proposal response failed", "faction", f.ID, "other", other, "error", err)
			continue
		}
		if accept {
			rep.Accepted++
		} else {
			rep.Rejected++
		}
	}
}

func (e *Engine) reviewAlliances(f *world.Faction, rep *Report) {
	mine := e.strength(f.ID)
	for _, ally := range e.dip.Allies(f.ID) {
		if f.DivinePower < diplomacy.BreakAllianceCost {
			return
		}
		af := e.state.Faction(ally)
		if af == nil {
			continue
		}
		weak := e.strength(ally) < mine*uselessAlly
		losing := len(e.sieges.ActiveAgainst(ally)) > len(af.Territories)/2
		blocking := f.Policy.Aggression > AggressionThreshold && len(e.unclaimedFrontier(f)) == 0 && e.borders(f, ally) > 0
		if !weak && !losing && !blocking {
			continue
		}
		if !entropy.Chance(e.rnd, f.Policy.Aggression*0.5) {
			continue
		}
		if err := e.dip.BreakAlliance(f.ID, ally); err != nil {
			slog.Warn("ai alliance break failed", "faction", f.ID, "ally", ally, "error", err)
			continue
		}
		rep.Broken++
	}
}

// declareOnBestTarget picks the weaker neutral neighbour with the best
// adjacency × weakness score and declares war on it.
func (e *Engine) declareOnBestTarget(f *world.Faction, rep *Report) {
	if f.DivinePower < diplomacy.DeclareWarCost {
		return
	}
	mine := e.strength(f.ID)
	best, bestScore := "", 0.0
	for _, other := range e.state.FactionIDs() {
		if other == f.ID || e.dip.Status(f.ID, other) != world.StatusNeutral {
			continue
		}
		theirs := e.strength(other)
		if theirs >= mine {
			continue
		}
		adj := e.borders(f, other)
		if adj == 0 {
			continue
		}
		weakness := 1.0
		if mine > 0 {
			weakness = 1 - theirs/mine
		}
		if score := float64(adj) * weakness; score > bestScore {
			best, bestScore = other, score
		}
	}
	if best == "" {
		return
	}
	if err := e.dip.DeclareWar(f.ID, best); err != nil {
		slog.Warn("ai war declaration failed", "faction", f.ID, "target", best, "error", err)
		return
	}
	rep.WarsDeclared++
}

// borders counts territories of other adjacent to territories of f.
func (e *Engine) borders(f *world.Faction, other string) int {
	seen := make(map[string]bool)
	for _, tid := range f.Territories {
		for _, n := range e.state.Neighbors(tid) {
			if n.OwnerID() == other && !seen[n.ID] {
				seen[n.ID] = true
			}
		}
	}
	return len(seen)
}
