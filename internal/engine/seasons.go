// Seasons: world seeding, dominance tracking and turnover.
package engine

import (
	"log/slog"
	"math"
	"sort"

	"github.com/talgya/pantheon/internal/entropy"
	"github.com/talgya/pantheon/internal/eventlog"
	"github.com/talgya/pantheon/internal/world"
)

// Territory seeding ranges.
const (
	seedMinPopulation = 50
	seedPopulationVar = 151
	seedMinFood       = 20
	seedFoodVar       = 61
	seedMinProduction = 10
	seedProductionVar = 41

	seedFortressChance = 0.08
	seedTempleChance   = 0.08
	seedFarmChance     = 0.12
)

// FactionSpec describes a faction to create at bootstrap.
type FactionSpec struct {
	Name    string       `yaml:"name"`
	Color   string       `yaml:"color"`
	DeityID string       `yaml:"deity"` // Empty means AI-controlled
	Policy  world.Policy `yaml:"policy"`
}

// Bootstrap seeds a fresh world when the state has no territories, then
// creates any listed faction whose name is not yet taken.
func (s *Simulation) Bootstrap(factions []FactionSpec) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.state.Territories) == 0 {
		s.startSeason(1)
	}

	taken := make(map[string]bool)
	for _, f := range s.state.Factions {
		taken[f.Name] = true
	}
	for _, spec := range factions {
		if taken[spec.Name] {
			continue
		}
		deity := spec.DeityID
		if deity == "" {
			deity = world.AIDeity
		}
		if _, err := s.createFaction(spec.Name, spec.Color, deity, spec.Policy); err != nil {
			slog.Warn("bootstrap faction skipped", "name", spec.Name, "error", err)
		}
	}
}

// ResumeSeason restores season bookkeeping after a restart. Dominance
// counts start over.
func (s *Simulation) ResumeSeason(number int, startTick uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.season = Season{Number: number, StartTick: startTick, Dominance: make(map[string]uint64)}
}

// startSeason resets the map and records the new season and its seeds.
func (s *Simulation) startSeason(number int) {
	st := s.state
	st.ResetSeason()
	s.season = Season{Number: number, StartTick: st.Tick, Dominance: make(map[string]uint64)}
	s.rec.Record(st.Tick, eventlog.SeasonStarted{Season: number, StartTick: st.Tick})

	seeded := eventlog.WorldSeeded{Radius: s.opts.Radius, Territories: SeedTerritories(s.rnd, s.opts.Radius)}
	seeded.ApplyTo(st)
	s.rec.Record(st.Tick, seeded)
	slog.Info("season started", "season", number, "tick", st.Tick, "territories", len(seeded.Territories))
}

// advanceSeason credits dominance and turns the season over when it has run
// its length.
func (s *Simulation) advanceSeason() {
	st := s.state
	if leader := territoryLeader(st); leader != "" {
		s.season.Dominance[leader]++
	}
	if s.opts.SeasonLength == 0 || st.Tick-s.season.StartTick < s.opts.SeasonLength {
		return
	}

	winner := dominanceWinner(s.season.Dominance)
	s.rec.Record(st.Tick, eventlog.SeasonEnded{
		Season:    s.season.Number,
		WinnerID:  winner,
		Dominance: s.season.clone().Dominance,
	})
	slog.Info("season ended", "season", s.season.Number, "tick", st.Tick, "winner", winner)
	s.startSeason(s.season.Number + 1)
}

// territoryLeader returns the faction holding strictly the most territory.
func territoryLeader(st *world.State) string {
	leader, best, tied := "", 0, false
	for _, f := range st.SortedFactions() {
		n := len(f.Territories)
		switch {
		case n > best:
			leader, best, tied = f.ID, n, false
		case n == best && n > 0:
			tied = true
		}
	}
	if tied {
		return ""
	}
	return leader
}

func dominanceWinner(d map[string]uint64) string {
	ids := make([]string, 0, len(d))
	for id := range d {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	winner, best := "", uint64(0)
	for _, id := range ids {
		if d[id] > best {
			winner, best = id, d[id]
		}
	}
	return winner
}

// SeedTerritories draws initial stocks for every hex within radius. Food and
// production follow a fertility field so rich land forms regions.
func SeedTerritories(rnd entropy.Source, radius int) []eventlog.TerritorySeed {
	coords := world.Spiral(radius)
	field := world.NewFertility(int64(rnd.IntN(math.MaxInt32)))
	seeds := make([]eventlog.TerritorySeed, 0, len(coords))
	for _, c := range coords {
		soil, ore := field.At(c)
		seed := eventlog.TerritorySeed{
			ID:         c.ID(),
			Coord:      c,
			Population: seedMinPopulation + rnd.IntN(seedPopulationVar),
			Food:       seedMinFood + math.Round(soil*(seedFoodVar-1)),
			Production: seedMinProduction + math.Round(ore*(seedProductionVar-1)),
		}
		if entropy.Chance(rnd, seedFortressChance) {
			seed.Buildings = append(seed.Buildings, world.BuildingFortress)
		}
		if entropy.Chance(rnd, seedTempleChance) {
			seed.Buildings = append(seed.Buildings, world.BuildingTemple)
		}
		if entropy.Chance(rnd, seedFarmChance) {
			seed.Buildings = append(seed.Buildings, world.BuildingFarm)
		}
		seeds = append(seeds, seed)
	}
	return seeds
}
