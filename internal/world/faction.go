// Factions: deity-led or AI-run powers competing for territory.
package world

import "slices"

// AIDeity is the deity id sentinel marking a faction as AI-controlled.
const AIDeity = "ai"

// Reputation bounds.
const (
	MaxReputation    = 100.0
	StartReputation  = 50.0
	MaxDivinePower   = 1000.0
	StartDivinePower = 100.0
	StartFoodReserve = 200.0
	StartProdReserve = 100.0
)

// Policy holds the faction's behavioral sliders, each in [0, 1].
type Policy struct {
	Expansion     float64 `json:"expansion" yaml:"expansion"`
	Aggression    float64 `json:"aggression" yaml:"aggression"`
	ResourceFocus float64 `json:"resource_focus" yaml:"resource_focus"`
}

// Resources is a faction's stockpile.
type Resources struct {
	Food       float64 `json:"food"`
	Production float64 `json:"production"`
	Gold       float64 `json:"gold"`
	Faith      float64 `json:"faith"`
}

// Specialization is a permanent faction perk.
type Specialization string

const (
	SpecNone    Specialization = ""
	SpecBastion Specialization = "bastion" // Defense ×1.3
	SpecWarlord Specialization = "warlord" // Siege attack ×1.2
	SpecGranary Specialization = "granary" // Production ×1.25
	SpecOracle  Specialization = "oracle"  // Divine power regen ×1.5
)

// Valid reports whether s names a known specialization.
func (s Specialization) Valid() bool {
	switch s {
	case SpecBastion, SpecWarlord, SpecGranary, SpecOracle:
		return true
	}
	return false
}

// DefenseMultiplier is the specialization's modifier on defender strength.
func (s Specialization) DefenseMultiplier() float64 {
	if s == SpecBastion {
		return 1.3
	}
	return 1.0
}

// AttackMultiplier is the specialization's modifier on siege attacker strength.
func (s Specialization) AttackMultiplier() float64 {
	if s == SpecWarlord {
		return 1.2
	}
	return 1.0
}

// ProductionMultiplier is the specialization's modifier on resource income.
func (s Specialization) ProductionMultiplier() float64 {
	if s == SpecGranary {
		return 1.25
	}
	return 1.0
}

// DivineRegenMultiplier is the specialization's modifier on divine power regen.
func (s Specialization) DivineRegenMultiplier() float64 {
	if s == SpecOracle {
		return 1.5
	}
	return 1.0
}

// Faction represents a competing power.
type Faction struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Color   string `json:"color"`
	DeityID string `json:"deity_id"` // AIDeity for AI-controlled factions

	Policy Policy `json:"policy"`

	// Owned territory ids, kept as the inverse of Territory.Owner.
	Territories []string `json:"territories"`

	Resources      Resources      `json:"resources"`
	DivinePower    float64        `json:"divine_power"`
	Reputation     float64        `json:"reputation"` // 0–100
	Specialization Specialization `json:"specialization,omitempty"`
}

// NewFaction creates a faction with starting reserves.
func NewFaction(id, name, color, deityID string, policy Policy) *Faction {
	return &Faction{
		ID:          id,
		Name:        name,
		Color:       color,
		DeityID:     deityID,
		Policy:      policy,
		Territories: []string{},
		Resources: Resources{
			Food:       StartFoodReserve,
			Production: StartProdReserve,
		},
		DivinePower: StartDivinePower,
		Reputation:  StartReputation,
	}
}

// IsAI reports whether the faction is driven by the AI decision engine.
func (f *Faction) IsAI() bool {
	return f.DeityID == AIDeity
}

// Owns reports whether territoryID is in the faction's territory list.
func (f *Faction) Owns(territoryID string) bool {
	return slices.Contains(f.Territories, territoryID)
}

// AddTerritory appends territoryID if absent.
func (f *Faction) AddTerritory(territoryID string) {
	if !f.Owns(territoryID) {
		f.Territories = append(f.Territories, territoryID)
	}
}

// RemoveTerritory drops territoryID from the list.
func (f *Faction) RemoveTerritory(territoryID string) {
	f.Territories = slices.DeleteFunc(f.Territories, func(id string) bool { return id == territoryID })
}

// SpendDivinePower deducts cost if affordable.
func (f *Faction) SpendDivinePower(cost float64) bool {
	if f.DivinePower < cost {
		return false
	}
	f.DivinePower -= cost
	return true
}

// SpendProduction deducts cost from the production stockpile if affordable.
func (f *Faction) SpendProduction(cost float64) bool {
	if f.Resources.Production < cost {
		return false
	}
	f.Resources.Production -= cost
	return true
}

// AdjustReputation adds delta and clamps to [0, MaxReputation].
func (f *Faction) AdjustReputation(delta float64) {
	f.Reputation = min(max(f.Reputation+delta, 0), MaxReputation)
}

func (f *Faction) clone() *Faction {
	c := *f
	c.Territories = append([]string{}, f.Territories...)
	return &c
}
