package world

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
)

// DefensePerPopulation converts territory population into base defender strength.
const DefensePerPopulation = 0.1

// State is the complete simulated state of one shard.
type State struct {
	Shard       string                `json:"shard"`
	Tick        uint64                `json:"tick"`
	Radius      int                   `json:"radius"`
	Territories map[string]*Territory `json:"territories"`
	Factions    map[string]*Faction   `json:"factions"`
	Sieges      map[string]*Siege     `json:"sieges"`
	Relations   map[string]*Relation  `json:"relations"` // Keyed by PairKey
}

// NewState creates an empty state for shard.
func NewState(shard string) *State {
	return &State{
		Shard:       shard,
		Territories: make(map[string]*Territory),
		Factions:    make(map[string]*Faction),
		Sieges:      make(map[string]*Siege),
		Relations:   make(map[string]*Relation),
	}
}

// SeedGrid fills the state with unclaimed territories within radius.
func (s *State) SeedGrid(radius int) {
	s.Radius = radius
	for _, c := range Spiral(radius) {
		if _, ok := s.Territories[c.ID()]; !ok {
			s.Territories[c.ID()] = NewTerritory(c)
		}
	}
}

// Territory returns the territory with id, or nil.
func (s *State) Territory(id string) *Territory {
	return s.Territories[id]
}

// TerritoryAt returns the territory at coord, or nil if off the grid.
func (s *State) TerritoryAt(c HexCoord) *Territory {
	return s.Territories[c.ID()]
}

// Faction returns the faction with id, or nil.
func (s *State) Faction(id string) *Faction {
	return s.Factions[id]
}

// AddFaction registers a faction.
func (s *State) AddFaction(f *Faction) {
	s.Factions[f.ID] = f
}

// RemoveFaction drops a faction, releases its territories, forgets its
// relations and abandons the sieges it was running.
func (s *State) RemoveFaction(id string) {
	f := s.Factions[id]
	if f == nil {
		return
	}
	for _, tid := range f.Territories {
		if t := s.Territories[tid]; t != nil && t.OwnerID() == id {
			t.SetOwner("")
		}
	}
	for k, r := range s.Relations {
		if r.Involves(id) {
			delete(s.Relations, k)
		}
	}
	for _, sg := range s.Sieges {
		if sg.Active() && sg.AttackerID == id {
			sg.Status = SiegeAbandoned
			sg.EndTick = s.Tick
		}
	}
	delete(s.Factions, id)
}

// ResetSeason clears the map and returns every faction to its starting
// stockpile. Specializations survive; everything won during the season does not.
func (s *State) ResetSeason() {
	for _, t := range s.Territories {
		t.Owner = nil
		t.Population = 0
		t.Food = 0
		t.Production = 0
		t.Buildings = nil
		t.Effects = nil
	}
	for _, f := range s.Factions {
		f.Territories = []string{}
		f.Resources = Resources{Food: StartFoodReserve, Production: StartProdReserve}
		f.DivinePower = StartDivinePower
		f.Reputation = StartReputation
	}
	s.Sieges = make(map[string]*Siege)
	s.Relations = make(map[string]*Relation)
}

// TransferTerritory moves ownership of territoryID to factionID ("" releases it),
// keeping both faction lists consistent with Territory.Owner.
func (s *State) TransferTerritory(territoryID, factionID string) bool {
	t := s.Territories[territoryID]
	if t == nil {
		return false
	}
	if prev := s.Factions[t.OwnerID()]; prev != nil {
		prev.RemoveTerritory(territoryID)
	}
	t.SetOwner(factionID)
	if next := s.Factions[factionID]; next != nil {
		next.AddTerritory(territoryID)
	} else {
		t.SetOwner("")
	}
	return true
}

// FactionIDs returns all faction ids in sorted order.
func (s *State) FactionIDs() []string {
	ids := make([]string, 0, len(s.Factions))
	for id := range s.Factions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// SortedFactions returns factions ordered by id.
func (s *State) SortedFactions() []*Faction {
	out := make([]*Faction, 0, len(s.Factions))
	for _, id := range s.FactionIDs() {
		out = append(out, s.Factions[id])
	}
	return out
}

// SortedTerritories returns territories ordered by id.
func (s *State) SortedTerritories() []*Territory {
	ids := make([]string, 0, len(s.Territories))
	for id := range s.Territories {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]*Territory, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.Territories[id])
	}
	return out
}

// SortedSieges returns sieges ordered by start tick, then territory and
// attacker. Random ids only break ties between otherwise identical sieges.
func (s *State) SortedSieges() []*Siege {
	out := make([]*Siege, 0, len(s.Sieges))
	for _, sg := range s.Sieges {
		out = append(out, sg)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.StartTick != b.StartTick {
			return a.StartTick < b.StartTick
		}
		if a.TerritoryID != b.TerritoryID {
			return a.TerritoryID < b.TerritoryID
		}
		if a.AttackerID != b.AttackerID {
			return a.AttackerID < b.AttackerID
		}
		return a.ID < b.ID
	})
	return out
}

// SortedRelations returns relations ordered by pair key.
func (s *State) SortedRelations() []*Relation {
	keys := make([]string, 0, len(s.Relations))
	for k := range s.Relations {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]*Relation, 0, len(keys))
	for _, k := range keys {
		out = append(out, s.Relations[k])
	}
	return out
}

// Neighbors returns the on-grid territories adjacent to territoryID.
func (s *State) Neighbors(territoryID string) []*Territory {
	t := s.Territories[territoryID]
	if t == nil {
		return nil
	}
	var out []*Territory
	for _, c := range t.Coord.Neighbors() {
		if n := s.TerritoryAt(c); n != nil {
			out = append(out, n)
		}
	}
	return out
}

// FactionStrength estimates a faction's military weight from its holdings.
func (s *State) FactionStrength(factionID string) float64 {
	f := s.Factions[factionID]
	if f == nil {
		return 0
	}
	total := 0.0
	for _, tid := range f.Territories {
		if t := s.Territories[tid]; t != nil {
			total += float64(t.Population) * DefensePerPopulation
		}
	}
	return total + f.Resources.Production*0.05
}

// Clone returns a deep copy safe to hand to other goroutines.
func (s *State) Clone() *State {
	c := &State{
		Shard:       s.Shard,
		Tick:        s.Tick,
		Radius:      s.Radius,
		Territories: make(map[string]*Territory, len(s.Territories)),
		Factions:    make(map[string]*Faction, len(s.Factions)),
		Sieges:      make(map[string]*Siege, len(s.Sieges)),
		Relations:   make(map[string]*Relation, len(s.Relations)),
	}
	for id, t := range s.Territories {
		c.Territories[id] = t.clone()
	}
	for id, f := range s.Factions {
		c.Factions[id] = f.clone()
	}
	for id, sg := range s.Sieges {
		cp := *sg
		c.Sieges[id] = &cp
	}
	for k, r := range s.Relations {
		c.Relations[k] = r.clone()
	}
	return c
}

// Digest returns a SHA-256 of the canonical JSON encoding of the state.
// encoding/json sorts map keys, so equal states hash equally.
func (s *State) Digest() string {
	b, err := json.Marshal(s)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
