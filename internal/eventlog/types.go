// Event catalogue: every state transition the simulation records.
// Each Type has exactly one payload struct; Registry maps types to decoders.
package eventlog

import "github.com/talgya/pantheon/internal/world"

// Type identifies the kind of a world event.
type Type string

// World lifecycle events.
const (
	TypeWorldSeeded   Type = "world.seeded"
	TypeSeasonStarted Type = "season.started"
	TypeSeasonEnded   Type = "season.ended"
)

// Faction events.
const (
	TypeFactionCreated       Type = "faction.created"
	TypeFactionRemoved       Type = "faction.removed"
	TypeFactionEconomy       Type = "faction.economy"
	TypeSpecializationChosen Type = "faction.specialization_chosen"
)

// Territory events.
const (
	TypeTerritoryClaimed  Type = "territory.claimed"
	TypePopulationChanged Type = "territory.population_changed"
	TypeEffectApplied     Type = "territory.effect_applied"
	TypeTerritoryCaptured Type = "territory.captured"
)

// Siege events.
const (
	TypeSiegeStarted    Type = "siege.started"
	TypeSiegeProgressed Type = "siege.progressed"
	TypeSiegeMilestone  Type = "siege.milestone"
	TypeSiegeReinforced Type = "siege.reinforced"
	TypeSiegeHarassed   Type = "siege.harassed"
	TypeSiegeCompleted  Type = "siege.completed"
	TypeSiegeBroken     Type = "siege.broken"
	TypeSiegeAbandoned  Type = "siege.abandoned"
)

// Diplomacy events.
const (
	TypeWarDeclared      Type = "diplomacy.war_declared"
	TypePeaceOffered     Type = "diplomacy.peace_offered"
	TypePeaceAccepted    Type = "diplomacy.peace_accepted"
	TypePeaceRejected    Type = "diplomacy.peace_rejected"
	TypeAllianceProposed Type = "diplomacy.alliance_proposed"
	TypeAllianceAccepted Type = "diplomacy.alliance_accepted"
	TypeAllianceRejected Type = "diplomacy.alliance_rejected"
	TypeAllianceBroken   Type = "diplomacy.alliance_broken"
	TypeTruceExpired     Type = "diplomacy.truce_expired"
)

// Informational events.
const (
	TypeMessageSent Type = "message.sent"
)

// Refs names the entities an event is about.
type Refs struct {
	Subject string
	Target  string
}

// Payload is the typed body of an event. Each payload struct reports its Type.
type Payload interface {
	Type() Type
	Refs() Refs
}

// TerritorySeed is the initial shape of one territory.
type TerritorySeed struct {
	ID         string           `json:"id"`
	Coord      world.HexCoord   `json:"coord"`
	Population int              `json:"population"`
	Food       float64          `json:"food"`
	Production float64          `json:"production"`
	Buildings  []world.Building `json:"buildings,omitempty"`
}

type WorldSeeded struct {
	Radius      int             `json:"radius"`
	Territories []TerritorySeed `json:"territories"`
}

// ApplyTo lays the seeded grid onto st.
func (p WorldSeeded) ApplyTo(st *world.State) {
	st.SeedGrid(p.Radius)
	for _, seed := range p.Territories {
		t := st.Territory(seed.ID)
		if t == nil {
			t = world.NewTerritory(seed.Coord)
			st.Territories[seed.ID] = t
		}
		t.Population = seed.Population
		t.Food = seed.Food
		t.Production = seed.Production
		t.Buildings = append([]world.Building(nil), seed.Buildings...)
		t.ClampPopulation()
	}
}

type SeasonStarted struct {
	Season    int    `json:"season"`
	StartTick uint64 `json:"start_tick"`
}

type SeasonEnded struct {
	Season    int               `json:"season"`
	WinnerID  string            `json:"winner_id,omitempty"`
	Dominance map[string]uint64 `json:"dominance"`
}

type FactionCreated struct {
	Faction world.Faction `json:"faction"`
}

type FactionRemoved struct {
	FactionID string `json:"faction_id"`
}

// FactionEconomy is the end-of-tick stockpile of a faction.
type FactionEconomy struct {
	FactionID   string          `json:"faction_id"`
	Resources   world.Resources `json:"resources"`
	DivinePower float64         `json:"divine_power"`
	Reputation  float64         `json:"reputation"`
}

type SpecializationChosen struct {
	FactionID      string               `json:"faction_id"`
	Specialization world.Specialization `json:"specialization"`
}

type TerritoryClaimed struct {
	FactionID   string  `json:"faction_id"`
	TerritoryID string  `json:"territory_id"`
	Cost        float64 `json:"cost"`
}

type PopulationChanged struct {
	TerritoryID string `json:"territory_id"`
	Population  int    `json:"population"`
}

type EffectApplied struct {
	FactionID   string        `json:"faction_id"`
	TerritoryID string        `json:"territory_id"`
	Action      string        `json:"action"`
	Effect      *world.Effect `json:"effect,omitempty"`
	FoodBonus   float64       `json:"food_bonus,omitempty"`
	PowerAfter  float64       `json:"power_after"`
}

// TerritoryCaptured is informational; SiegeCompleted carries the transfer.
type TerritoryCaptured struct {
	TerritoryID string `json:"territory_id"`
	From        string `json:"from,omitempty"`
	To          string `json:"to"`
}

type SiegeStarted struct {
	Siege world.Siege `json:"siege"`
}

type SiegeProgressed struct {
	SiegeID          string  `json:"siege_id"`
	Progress         float64 `json:"progress"`
	DefenderStrength float64 `json:"defender_strength"`
}

type SiegeMilestone struct {
	SiegeID  string  `json:"siege_id"`
	Percent  int     `json:"percent"`
	Progress float64 `json:"progress"`
}

type SiegeReinforced struct {
	SiegeID          string  `json:"siege_id"`
	FactionID        string  `json:"faction_id"`
	Delta            float64 `json:"delta"`
	AttackerStrength float64 `json:"attacker_strength"`
}

type SiegeHarassed struct {
	SiegeID          string  `json:"siege_id"`
	FactionID        string  `json:"faction_id"`
	Delta            float64 `json:"delta"`
	AttackerStrength float64 `json:"attacker_strength"`
}

type SiegeCompleted struct {
	SiegeID     string  `json:"siege_id"`
	TerritoryID string  `json:"territory_id"`
	AttackerID  string  `json:"attacker_id"`
	DefenderID  string  `json:"defender_id,omitempty"`
	Population  int     `json:"population"`
	Progress    float64 `json:"progress"`
}

type SiegeBroken struct {
	SiegeID  string `json:"siege_id"`
	BrokenBy string `json:"broken_by,omitempty"`
}

type SiegeAbandoned struct {
	SiegeID string `json:"siege_id"`
}

// DiplomacyChange carries the relation after the transition plus the acting
// faction's spendable totals after any cost was paid.
type DiplomacyChange struct {
	Relation        world.Relation `json:"relation"`
	Actor           string         `json:"actor"`
	ActorPower      float64        `json:"actor_power"`
	ActorReputation float64        `json:"actor_reputation"`
}

func (d DiplomacyChange) Refs() Refs {
	return Refs{Subject: d.Actor, Target: d.Relation.Other(d.Actor)}
}

type WarDeclared struct{ DiplomacyChange }
type PeaceOffered struct{ DiplomacyChange }
type PeaceAccepted struct{ DiplomacyChange }
type PeaceRejected struct{ DiplomacyChange }
type AllianceProposed struct{ DiplomacyChange }
type AllianceAccepted struct{ DiplomacyChange }
type AllianceRejected struct{ DiplomacyChange }
type AllianceBroken struct{ DiplomacyChange }
type TruceExpired struct{ DiplomacyChange }

type MessageSent struct {
	From string `json:"from"`
	To   string `json:"to"`
	Text string `json:"text"`
}

func (WorldSeeded) Type() Type          { return TypeWorldSeeded }
func (SeasonStarted) Type() Type        { return TypeSeasonStarted }
func (SeasonEnded) Type() Type          { return TypeSeasonEnded }
func (FactionCreated) Type() Type       { return TypeFactionCreated }
func (FactionRemoved) Type() Type       { return TypeFactionRemoved }
func (FactionEconomy) Type() Type       { return TypeFactionEconomy }
func (SpecializationChosen) Type() Type { return TypeSpecializationChosen }
func (TerritoryClaimed) Type() Type     { return TypeTerritoryClaimed }
func (PopulationChanged) Type() Type    { return TypePopulationChanged }
func (EffectApplied) Type() Type        { return TypeEffectApplied }
func (TerritoryCaptured) Type() Type    { return TypeTerritoryCaptured }
func (SiegeStarted) Type() Type         { return TypeSiegeStarted }
func (SiegeProgressed) Type() Type      { return TypeSiegeProgressed }
func (SiegeMilestone) Type() Type       { return TypeSiegeMilestone }
func (SiegeReinforced) Type() Type      { return TypeSiegeReinforced }
func (SiegeHarassed) Type() Type        { return TypeSiegeHarassed }
func (SiegeCompleted) Type() Type       { return TypeSiegeCompleted }
func (SiegeBroken) Type() Type          { return TypeSiegeBroken }
func (SiegeAbandoned) Type() Type       { return TypeSiegeAbandoned }
func (WarDeclared) Type() Type          { return TypeWarDeclared }
func (PeaceOffered) Type() Type         { return TypePeaceOffered }
func (PeaceAccepted) Type() Type        { return TypePeaceAccepted }
func (PeaceRejected) Type() Type        { return TypePeaceRejected }
func (AllianceProposed) Type() Type     { return TypeAllianceProposed }
func (AllianceAccepted) Type() Type     { return TypeAllianceAccepted }
func (AllianceRejected) Type() Type     { return TypeAllianceRejected }
func (AllianceBroken) Type() Type       { return TypeAllianceBroken }
func (TruceExpired) Type() Type         { return TypeTruceExpired }
func (MessageSent) Type() Type          { return TypeMessageSent }

func (WorldSeeded) Refs() Refs      { return Refs{} }
func (SeasonStarted) Refs() Refs    { return Refs{} }
func (p SeasonEnded) Refs() Refs    { return Refs{Subject: p.WinnerID} }
func (p FactionCreated) Refs() Refs { return Refs{Subject: p.Faction.ID} }
func (p FactionRemoved) Refs() Refs { return Refs{Subject: p.FactionID} }
func (p FactionEconomy) Refs() Refs { return Refs{Subject: p.FactionID} }
func (p SpecializationChosen) Refs() Refs {
	return Refs{Subject: p.FactionID}
}
func (p TerritoryClaimed) Refs() Refs {
	return Refs{Subject: p.FactionID, Target: p.TerritoryID}
}
func (p PopulationChanged) Refs() Refs { return Refs{Target: p.TerritoryID} }
func (p EffectApplied) Refs() Refs {
	return Refs{Subject: p.FactionID, Target: p.TerritoryID}
}
func (p TerritoryCaptured) Refs() Refs {
	return Refs{Subject: p.To, Target: p.TerritoryID}
}
func (p SiegeStarted) Refs() Refs {
	return Refs{Subject: p.Siege.AttackerID, Target: p.Siege.TerritoryID}
}
func (p SiegeProgressed) Refs() Refs { return Refs{Subject: p.SiegeID} }
func (p SiegeMilestone) Refs() Refs  { return Refs{Subject: p.SiegeID} }
func (p SiegeReinforced) Refs() Refs {
	return Refs{Subject: p.FactionID, Target: p.SiegeID}
}
func (p SiegeHarassed) Refs() Refs {
	return Refs{Subject: p.FactionID, Target: p.SiegeID}
}
func (p SiegeCompleted) Refs() Refs {
	return Refs{Subject: p.AttackerID, Target: p.TerritoryID}
}
func (p SiegeBroken) Refs() Refs    { return Refs{Subject: p.BrokenBy, Target: p.SiegeID} }
func (p SiegeAbandoned) Refs() Refs { return Refs{Target: p.SiegeID} }
func (p MessageSent) Refs() Refs    { return Refs{Subject: p.From, Target: p.To} }

// Registry maps every event type to a constructor for its payload.
var Registry = map[Type]func() Payload{
	TypeWorldSeeded:          func() Payload { return &WorldSeeded{} },
	TypeSeasonStarted:        func() Payload { return &SeasonStarted{} },
	TypeSeasonEnded:          func() Payload { return &SeasonEnded{} },
	TypeFactionCreated:       func() Payload { return &FactionCreated{} },
	TypeFactionRemoved:       func() Payload { return &FactionRemoved{} },
	TypeFactionEconomy:       func() Payload { return &FactionEconomy{} },
	TypeSpecializationChosen: func() Payload { return &SpecializationChosen{} },
	TypeTerritoryClaimed:     func() Payload { return &TerritoryClaimed{} },
	TypePopulationChanged:    func() Payload { return &PopulationChanged{} },
	TypeEffectApplied:        func() Payload { return &EffectApplied{} },
	TypeTerritoryCaptured:    func() Payload { return &TerritoryCaptured{} },
	TypeSiegeStarted:         func() Payload { return &SiegeStarted{} },
	TypeSiegeProgressed:      func() Payload { return &SiegeProgressed{} },
	TypeSiegeMilestone:       func() Payload { return &SiegeMilestone{} },
	TypeSiegeReinforced:      func() Payload { return &SiegeReinforced{} },
	TypeSiegeHarassed:        func() Payload { return &SiegeHarassed{} },
	TypeSiegeCompleted:       func() Payload { return &SiegeCompleted{} },
	TypeSiegeBroken:          func() Payload { return &SiegeBroken{} },
	TypeSiegeAbandoned:       func() Payload { return &SiegeAbandoned{} },
	TypeWarDeclared:          func() Payload { return &WarDeclared{} },
	TypePeaceOffered:         func() Payload { return &PeaceOffered{} },
	TypePeaceAccepted:        func() Payload { return &PeaceAccepted{} },
	TypePeaceRejected:        func() Payload { return &PeaceRejected{} },
	TypeAllianceProposed:     func() Payload { return &AllianceProposed{} },
	TypeAllianceAccepted:     func() Payload { return &AllianceAccepted{} },
	TypeAllianceRejected:     func() Payload { return &AllianceRejected{} },
	TypeAllianceBroken:       func() Payload { return &AllianceBroken{} },
	TypeTruceExpired:         func() Payload { return &TruceExpired{} },
	TypeMessageSent:          func() Payload { return &MessageSent{} },
}
