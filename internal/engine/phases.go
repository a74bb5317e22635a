package engine

import (
	"log/slog"
	"math"

	"github.com/talgya/pantheon/internal/eventlog"
	"github.com/talgya/pantheon/internal/world"
)

// Economy tuning.
const (
	ProductionFraction = 0.1  // Share of a territory's stock yielded per tick
	FoodPerCapita      = 0.01 // Food eaten per person per tick
	GrowthRate         = 0.02
	StarvationRate     = 0.05
	FarmFoodMultiplier = 1.25
	TempleFaith        = 1.0

	DivineRegenBase         = 1.0
	DivineRegenPerTerritory = 0.1
)

// produceResources moves each owned territory's yield into its faction's
// stockpile and regenerates divine power.
func (s *Simulation) produceResources() {
	st := s.state
	for _, t := range st.SortedTerritories() {
		owner := st.Faction(t.OwnerID())
		if owner == nil {
			continue
		}
		food := t.Food * ProductionFraction
		if t.HasBuilding(world.BuildingFarm) {
			food *= FarmFoodMultiplier
		}
		owner.Resources.Food += food
		owner.Resources.Production += t.Production * ProductionFraction * owner.Specialization.ProductionMultiplier()
		if t.HasBuilding(world.BuildingTemple) {
			owner.Resources.Faith += TempleFaith
		}
	}
	for _, f := range st.SortedFactions() {
		regen := (DivineRegenBase + DivineRegenPerTerritory*float64(len(f.Territories))) * f.Specialization.DivineRegenMultiplier()
		f.DivinePower = math.Min(f.DivinePower+regen, world.MaxDivinePower)
	}
}

// updatePopulation feeds each faction's territories from its food stock.
// Fed territories grow; a shortfall shrinks them in proportion to the deficit.
func (s *Simulation) updatePopulation() {
	st := s.state
	for _, f := range st.SortedFactions() {
		var owned []*world.Territory
		total := 0
		for _, tid := range f.Territories {
			if t := st.Territory(tid); t != nil {
				owned = append(owned, t)
				total += t.Population
			}
		}
		if len(owned) == 0 {
			continue
		}

		need := float64(total) * FoodPerCapita
		deficit := 0.0
		if f.Resources.Food >= need {
			f.Resources.Food -= need
		} else {
			if need > 0 {
				deficit = (need - f.Resources.Food) / need
			}
			f.Resources.Food = 0
		}

		for _, t := range owned {
			s.isolate("population", t.ID, func() {
				before := t.Population
				if deficit > 0 {
					t.Population -= int(math.Ceil(float64(t.Population) * StarvationRate * deficit))
				} else {
					t.Population += max(1, int(math.Ceil(float64(t.Population)*GrowthRate)))
				}
				t.ClampPopulation()
				if t.Population != before {
					s.rec.Record(st.Tick, eventlog.PopulationChanged{TerritoryID: t.ID, Population: t.Population})
				}
			})
		}
	}
}

// runAI lets every AI faction act, one at a time in id order.
func (s *Simulation) runAI() {
	for _, id := range s.state.FactionIDs() {
		f := s.state.Faction(id)
		if f == nil || !f.IsAI() {
			continue
		}
		s.isolate("ai", id, func() { s.ai.Decide(id) })
	}
}

// resolveCombat expires timed effects, advances sieges and lapses truces.
func (s *Simulation) resolveCombat() {
	st := s.state
	for _, t := range st.SortedTerritories() {
		t.ExpireEffects(st.Tick)
	}
	s.sieges.ProcessSieges()
	if n := s.diplomacy.ExpireTruces(); n > 0 {
		slog.Debug("truces expired", "tick", st.Tick, "count", n)
	}
}

// recordEconomy snapshots every faction's spendable totals.
func (s *Simulation) recordEconomy() {
	for _, f := range s.state.SortedFactions() {
		s.rec.Record(s.state.Tick, eventlog.FactionEconomy{
			FactionID:   f.ID,
			Resources:   f.Resources,
			DivinePower: f.DivinePower,
			Reputation:  f.Reputation,
		})
	}
}

// isolate runs fn, logging instead of propagating a panic so one bad entity
// cannot abort the tick for the others.
func (s *Simulation) isolate(phase, entity string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("entity update panicked",
				"phase", phase,
				"entity", entity,
				"tick", s.state.Tick,
				"panic", r,
			)
		}
	}()
	fn()
}
