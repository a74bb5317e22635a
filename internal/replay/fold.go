// Package replay reconstructs world state from the event log. The fold is
// pure: the same ordered events always produce the same state.
package replay

import (
	"errors"
	"fmt"

	"github.com/talgya/pantheon/internal/eventlog"
	"github.com/talgya/pantheon/internal/world"
)

var (
	// ErrMissingEntity marks an event that references state which no longer exists.
	ErrMissingEntity = errors.New("event references a missing entity")
	// ErrUnhandled marks an event type the fold has no rule for.
	ErrUnhandled = errors.New("no replay rule for event type")
)

// Apply folds one event into st. Events that cannot be applied return an
// error and leave st unchanged apart from the tick advance.
func Apply(st *world.State, ev eventlog.GameEvent) error {
	advance(st, ev.Tick)
	p, err := ev.Decode()
	if err != nil {
		return err
	}
	return apply(st, ev.Tick, p)
}

// advance moves the clock forward and drops effects that lapsed on the way.
func advance(st *world.State, tick uint64) {
	if tick <= st.Tick {
		return
	}
	st.Tick = tick
	for _, t := range st.Territories {
		t.ExpireEffects(tick)
	}
}

func missing(kind, id string) error {
	return fmt.Errorf("%w: %s %q", ErrMissingEntity, kind, id)
}

func apply(st *world.State, tick uint64, p eventlog.Payload) error {
	switch p := p.(type) {
	case *eventlog.WorldSeeded:
		p.ApplyTo(st)
	case *eventlog.SeasonStarted:
		st.ResetSeason()
	case *eventlog.SeasonEnded:
	case *eventlog.FactionCreated:
		f := p.Faction
		if f.Territories == nil {
			f.Territories = []string{}
		}
		st.AddFaction(&f)
	case *eventlog.FactionRemoved:
		if st.Faction(p.FactionID) == nil {
			return missing("faction", p.FactionID)
		}
		st.RemoveFaction(p.FactionID)
	case *eventlog.FactionEconomy:
		f := st.Faction(p.FactionID)
		if f == nil {
			return missing("faction", p.FactionID)
		}
		f.Resources = p.Resources
		f.DivinePower = p.DivinePower
		f.Reputation = p.Reputation
	case *eventlog.SpecializationChosen:
		f := st.Faction(p.FactionID)
		if f == nil {
			return missing("faction", p.FactionID)
		}
		f.Specialization = p.Specialization
	case *eventlog.TerritoryClaimed:
		if st.Faction(p.FactionID) == nil {
			return missing("faction", p.FactionID)
		}
		if !st.TransferTerritory(p.TerritoryID, p.FactionID) {
			return missing("territory", p.TerritoryID)
		}
	case *eventlog.PopulationChanged:
		t := st.Territory(p.TerritoryID)
		if t == nil {
			return missing("territory", p.TerritoryID)
		}
		t.Population = p.Population
		t.ClampPopulation()
	case *eventlog.EffectApplied:
		return applyEffect(st, p)
	case *eventlog.TerritoryCaptured:
	case *eventlog.SiegeStarted:
		s := p.Siege
		st.Sieges[s.ID] = &s
	case *eventlog.SiegeProgressed:
		s := st.Sieges[p.SiegeID]
		if s == nil {
			return missing("siege", p.SiegeID)
		}
		s.Progress = p.Progress
		s.DefenderStrength = p.DefenderStrength
	case *eventlog.SiegeMilestone:
	case *eventlog.SiegeReinforced:
		return setAttackerStrength(st, p.SiegeID, p.AttackerStrength)
	case *eventlog.SiegeHarassed:
		return setAttackerStrength(st, p.SiegeID, p.AttackerStrength)
	case *eventlog.SiegeCompleted:
		return completeSiege(st, tick, p)
	case *eventlog.SiegeBroken:
		return endSiege(st, tick, p.SiegeID, world.SiegeBroken)
	case *eventlog.SiegeAbandoned:
		return endSiege(st, tick, p.SiegeID, world.SiegeAbandoned)
	case *eventlog.WarDeclared:
		applyRelation(st, p.DiplomacyChange)
	case *eventlog.PeaceOffered:
		applyRelation(st, p.DiplomacyChange)
	case *eventlog.PeaceAccepted:
		applyRelation(st, p.DiplomacyChange)
	case *eventlog.PeaceRejected:
		applyRelation(st, p.DiplomacyChange)
	case *eventlog.AllianceProposed:
		applyRelation(st, p.DiplomacyChange)
	case *eventlog.AllianceAccepted:
		applyRelation(st, p.DiplomacyChange)
	case *eventlog.AllianceRejected:
		applyRelation(st, p.DiplomacyChange)
	case *eventlog.AllianceBroken:
		applyRelation(st, p.DiplomacyChange)
	case *eventlog.TruceExpired:
		applyRelation(st, p.DiplomacyChange)
	case *eventlog.MessageSent:
	default:
		return fmt.Errorf("%w: %T", ErrUnhandled, p)
	}
	return nil
}

func applyEffect(st *world.State, p *eventlog.EffectApplied) error {
	t := st.Territory(p.TerritoryID)
	if t == nil {
		return missing("territory", p.TerritoryID)
	}
	f := st.Faction(p.FactionID)
	if f == nil {
		return missing("faction", p.FactionID)
	}
	if p.Effect != nil {
		t.Effects = append(t.Effects, *p.Effect)
	}
	t.Food += p.FoodBonus
	f.DivinePower = p.PowerAfter
	return nil
}

func setAttackerStrength(st *world.State, id string, strength float64) error {
	s := st.Sieges[id]
	if s == nil {
		return missing("siege", id)
	}
	s.AttackerStrength = strength
	return nil
}

func completeSiege(st *world.State, tick uint64, p *eventlog.SiegeCompleted) error {
	s := st.Sieges[p.SiegeID]
	if s == nil {
		return missing("siege", p.SiegeID)
	}
	t := st.Territory(p.TerritoryID)
	if t == nil {
		return missing("territory", p.TerritoryID)
	}
	st.TransferTerritory(t.ID, p.AttackerID)
	t.Population = p.Population
	s.Progress = p.Progress
	s.Status = world.SiegeCompleted
	s.EndTick = tick
	return nil
}

func endSiege(st *world.State, tick uint64, id string, status world.SiegeStatus) error {
	s := st.Sieges[id]
	if s == nil {
		return missing("siege", id)
	}
	s.Status = status
	s.EndTick = tick
	return nil
}

// applyRelation stores the post-transition relation and the actor's
// remaining divine power and reputation.
func applyRelation(st *world.State, d eventlog.DiplomacyChange) {
	r := d.Relation
	if r.Proposal != nil {
		prop := *r.Proposal
		r.Proposal = &prop
	}
	st.Relations[world.PairKey(r.FactionA, r.FactionB)] = &r
	if d.Actor == "" {
		return
	}
	if f := st.Faction(d.Actor); f != nil {
		f.DivinePower = d.ActorPower
		f.Reputation = d.ActorReputation
	}
}
