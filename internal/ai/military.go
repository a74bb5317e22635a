package ai

import (
	"log/slog"
	"sort"

	"github.com/talgya/pantheon/internal/entropy"
	"github.com/talgya/pantheon/internal/eventlog"
	"github.com/talgya/pantheon/internal/siege"
	"github.com/talgya/pantheon/internal/world"
)

func (e *Engine) defend(f *world.Faction, rep *Report) {
	for _, s := range e.sieges.ActiveAgainst(f.ID) {
		mine := e.strength(f.ID)
		ratio := 1.0
		if s.AttackerStrength > 0 {
			ratio = mine / s.AttackerStrength
		}
		if ratio < HopelessRatio && s.Fraction() >= HopelessProgress {
			rep.Conceded++
			slog.Debug("ai concedes territory", "tick", e.state.Tick, "faction", f.ID, "territory", s.TerritoryID)
			continue
		}
		if !f.SpendProduction(DefendCost) {
			return
		}
		if ratio >= 1 && entropy.Chance(e.rnd, mine/(mine+s.AttackerStrength)) {
			if err := e.sieges.BreakSiege(s.ID, f.ID); err == nil {
				rep.SiegesBroken++
				continue
			}
		}
		if e.sieges.WeakenSiege(s.ID, f.ID, HarassStrength) {
			rep.Harassed++
		}
	}
}

// unclaimedFrontier returns unclaimed, unbesieged territories adjacent to
// f's holdings, sorted by id. A faction with no land may settle anywhere free.
func (e *Engine) unclaimedFrontier(f *world.Faction) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(t *world.Territory) {
		if t.OwnerID() == "" && !seen[t.ID] && !e.sieges.Besieged(t.ID) {
			seen[t.ID] = true
			out = append(out, t.ID)
		}
	}
	if len(f.Territories) == 0 {
		for _, t := range e.state.SortedTerritories() {
			add(t)
		}
		return out
	}
	for _, tid := range f.Territories {
		for _, n := range e.state.Neighbors(tid) {
			add(n)
		}
	}
	sort.Strings(out)
	return out
}

func (e *Engine) expand(f *world.Faction, rep *Report) {
	if f.Resources.Production < ExpansionCost {
		return
	}
	frontier := e.unclaimedFrontier(f)
	if len(frontier) == 0 {
		return
	}
	tid := frontier[e.rnd.IntN(len(frontier))]
	f.SpendProduction(ExpansionCost)
	e.state.TransferTerritory(tid, f.ID)
	e.rec.Record(e.state.Tick, eventlog.TerritoryClaimed{FactionID: f.ID, TerritoryID: tid, Cost: ExpansionCost})
	rep.Claimed++
}

func (e *Engine) aggress(f *world.Faction, rep *Report) {
	enemies := e.dip.Enemies(f.ID)
	if len(enemies) == 0 {
		e.declareOnBestTarget(f, rep)
		return
	}

	var targets []*world.Territory
	for _, enemy := range enemies {
		ef := e.state.Faction(enemy)
		if ef == nil {
			continue
		}
		for _, tid := range ef.Territories {
			if t := e.state.Territory(tid); t != nil && !e.sieges.Besieged(tid) && !t.Shielded(e.state.Tick) {
				targets = append(targets, t)
			}
		}
	}
	sort.Slice(targets, func(i, j int) bool { return targets[i].ID < targets[j].ID })

	force := e.strength(f.ID) * SiegeCommitment
	if len(targets) > 0 && f.Resources.Production >= SiegeCost {
		t := targets[e.rnd.IntN(len(targets))]
		if force > 0 && force >= siege.DefenderStrength(e.state, t)*FavorableRatio {
			_, err := e.sieges.StartSiege(f.ID, t.ID, force)
			if err == nil {
				f.SpendProduction(SiegeCost)
				rep.Sieged++
				return
			}
			slog.Debug("ai siege refused", "faction", f.ID, "territory", t.ID, "error", err)
		}
	}

	own := e.sieges.ActiveByAttacker(f.ID)
	if len(own) == 0 || !f.SpendProduction(ReinforceCost) {
		return
	}
	s := own[e.rnd.IntN(len(own))]
	if e.sieges.ReinforceSiege(s.ID, ReinforceStrength) {
		rep.Reinforced++
	}
}
