package world

// PopulationCap is the maximum population a single territory can hold.
const PopulationCap = 10000

// Building kinds a territory may hold.
type Building string

const (
	BuildingFortress Building = "fortress" // Defense ×1.5 during sieges
	BuildingTemple   Building = "temple"   // +1 faith per tick to the owner
	BuildingFarm     Building = "farm"     // +25% food contribution
)

// FortressDefenseMultiplier is applied to defender strength when a fortress stands.
const FortressDefenseMultiplier = 1.5

// EffectKind names a timed modifier on a territory.
type EffectKind string

const (
	EffectShield   EffectKind = "shield"
	EffectBlessing EffectKind = "blessing"
)

// Effect is a timed modifier attached to a territory.
type Effect struct {
	Kind              EffectKind `json:"kind"`
	DefenseMultiplier float64    `json:"defense_multiplier,omitempty"` // 0 means no change
	Shield            bool       `json:"shield,omitempty"`
	ExpiresTick       uint64     `json:"expires_tick"`
}

// Active reports whether the effect still applies at tick.
func (e Effect) Active(tick uint64) bool {
	return tick < e.ExpiresTick
}

// Territory is a single claimable hex.
type Territory struct {
	ID         string     `json:"id"`
	Coord      HexCoord   `json:"coord"`
	Owner      *string    `json:"owner,omitempty"` // Faction id, nil when unclaimed
	Population int        `json:"population"`
	Food       float64    `json:"food"`       // Food stock (yield base)
	Production float64    `json:"production"` // Production stock (yield base)
	Buildings  []Building `json:"buildings,omitempty"`
	Effects    []Effect   `json:"effects,omitempty"`
}

// NewTerritory creates an unclaimed territory at coord.
func NewTerritory(coord HexCoord) *Territory {
	return &Territory{ID: coord.ID(), Coord: coord}
}

// OwnerID returns the owning faction id or "" when unclaimed.
func (t *Territory) OwnerID() string {
	if t.Owner == nil {
		return ""
	}
	return *t.Owner
}

// SetOwner assigns the territory to a faction; "" clears ownership.
func (t *Territory) SetOwner(factionID string) {
	if factionID == "" {
		t.Owner = nil
		return
	}
	id := factionID
	t.Owner = &id
}

// HasBuilding reports whether the territory holds a building of kind b.
func (t *Territory) HasBuilding(b Building) bool {
	for _, have := range t.Buildings {
		if have == b {
			return true
		}
	}
	return false
}

// Shielded reports whether an active shield protects the territory at tick.
func (t *Territory) Shielded(tick uint64) bool {
	for _, e := range t.Effects {
		if e.Shield && e.Active(tick) {
			return true
		}
	}
	return false
}

// EffectDefenseMultiplier multiplies every active effect's defense modifier.
func (t *Territory) EffectDefenseMultiplier(tick uint64) float64 {
	m := 1.0
	for _, e := range t.Effects {
		if e.DefenseMultiplier > 0 && e.Active(tick) {
			m *= e.DefenseMultiplier
		}
	}
	return m
}

// ExpireEffects drops effects that no longer apply. Returns the number removed.
func (t *Territory) ExpireEffects(tick uint64) int {
	kept := t.Effects[:0]
	for _, e := range t.Effects {
		if e.Active(tick) {
			kept = append(kept, e)
		}
	}
	removed := len(t.Effects) - len(kept)
	if len(kept) == 0 {
		t.Effects = nil
	} else {
		t.Effects = kept
	}
	return removed
}

// ClampPopulation keeps population inside [0, PopulationCap].
func (t *Territory) ClampPopulation() {
	if t.Population < 0 {
		t.Population = 0
	}
	if t.Population > PopulationCap {
		t.Population = PopulationCap
	}
}

func (t *Territory) clone() *Territory {
	c := *t
	if t.Owner != nil {
		o := *t.Owner
		c.Owner = &o
	}
	if t.Buildings != nil {
		c.Buildings = append([]Building(nil), t.Buildings...)
	}
	if t.Effects != nil {
		c.Effects = append([]Effect(nil), t.Effects...)
	}
	return &c
}
