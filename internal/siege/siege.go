// Package siege models multi-tick territory captures.
//
// A siege accrues progress each tick according to the ratio between the
// attacker's strength and the territory's current defense. When progress
// reaches the requirement fixed at start, the territory changes hands.
package siege

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/talgya/pantheon/internal/eventlog"
	"github.com/talgya/pantheon/internal/world"
)

// Progress tuning.
const (
	BaseDuration       = 10.0 // Required progress for an undefended territory
	BaseRate           = 1.0  // Progress per tick at an even strength ratio
	DefendedMultiplier = 2.0  // Requirement multiplier when the territory is defended
	OutmatchedRatio    = 0.5  // Below this ratio the attacker only trickles forward
	OutmatchedRate     = 0.1  // Share of BaseRate gained when outmatched
	MaxRatio           = 2.0  // Ratio cap on progress speed
)

// Milestones are the progress fractions announced once per siege.
var Milestones = []float64{0.5, 0.9}

var (
	ErrUnknownFaction    = errors.New("unknown faction")
	ErrUnknownTerritory  = errors.New("unknown territory")
	ErrAlreadyOwned      = errors.New("attacker already owns the territory")
	ErrAlreadyBesieged   = errors.New("territory is already under siege")
	ErrTerritoryShielded = errors.New("territory is shielded")
	ErrNotAtWar          = errors.New("attacker is not at war with the owner")
	ErrInvalidStrength   = errors.New("attacker strength must be positive")
	ErrSiegeNotFound     = errors.New("siege not found")
	ErrSiegeNotActive    = errors.New("siege is not active")
	ErrNotDefender       = errors.New("only the defending faction may break a siege")
)

// Gate decides whether one faction may attack another's territory.
type Gate interface {
	CanAttack(attacker, defender string) bool
}

// Engine runs sieges against a shard state.
type Engine struct {
	state *world.State
	gate  Gate
	rec   eventlog.Recorder
}

// New creates a siege engine. gate is consulted before sieging owned territory.
func New(st *world.State, gate Gate, rec eventlog.Recorder) *Engine {
	if rec == nil {
		rec = eventlog.Nop{}
	}
	return &Engine{state: st, gate: gate, rec: rec}
}

// DefenderStrength is the current defense of a territory: population scaled by
// active effects, a fortress and the owner's specialization.
func DefenderStrength(st *world.State, t *world.Territory) float64 {
	strength := float64(t.Population) * world.DefensePerPopulation
	strength *= t.EffectDefenseMultiplier(st.Tick)
	if t.HasBuilding(world.BuildingFortress) {
		strength *= world.FortressDefenseMultiplier
	}
	if owner := st.Faction(t.OwnerID()); owner != nil {
		strength *= owner.Specialization.DefenseMultiplier()
	}
	return strength
}

// ProgressRate returns the progress gained in one tick at the given strengths.
func ProgressRate(attacker, defender float64) float64 {
	if defender <= 0 {
		return BaseRate * MaxRatio
	}
	ratio := attacker / defender
	if ratio < OutmatchedRatio {
		return BaseRate * OutmatchedRate
	}
	return BaseRate * math.Min(ratio, MaxRatio)
}

// RequiredProgress is the progress a siege must accumulate to capture t.
func RequiredProgress(t *world.Territory, defense float64) float64 {
	if t.OwnerID() != "" && defense > 0 {
		return BaseDuration * DefendedMultiplier
	}
	return BaseDuration
}

// Get returns the siege with id, or nil.
func (e *Engine) Get(id string) *world.Siege {
	return e.state.Sieges[id]
}

// StartSiege opens a siege by attacker against territoryID.
func (e *Engine) StartSiege(attackerID, territoryID string, attackerStrength float64) (*world.Siege, error) {
	attacker := e.state.Faction(attackerID)
	if attacker == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFaction, attackerID)
	}
	t := e.state.Territory(territoryID)
	if t == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTerritory, territoryID)
	}
	if attackerStrength <= 0 {
		return nil, ErrInvalidStrength
	}
	owner := t.OwnerID()
	if owner == attackerID {
		return nil, ErrAlreadyOwned
	}
	if e.ActiveFor(territoryID) != nil {
		return nil, ErrAlreadyBesieged
	}
	if t.Shielded(e.state.Tick) {
		return nil, ErrTerritoryShielded
	}
	if owner != "" && e.gate != nil && !e.gate.CanAttack(attackerID, owner) {
		return nil, ErrNotAtWar
	}

	defense := DefenderStrength(e.state, t)
	s := &world.Siege{
		ID:               world.SiegeID(e.state.Shard, territoryID, attackerID, e.state.Tick, len(e.state.Sieges)),
		AttackerID:       attackerID,
		TerritoryID:      territoryID,
		StartTick:        e.state.Tick,
		RequiredProgress: RequiredProgress(t, defense),
		AttackerStrength: attackerStrength,
		DefenderStrength: defense,
		Status:           world.SiegeActive,
	}
	e.state.Sieges[s.ID] = s
	e.rec.Record(e.state.Tick, eventlog.SiegeStarted{Siege: *s})
	slog.Info("siege started",
		"tick", e.state.Tick,
		"siege", s.ID,
		"attacker", attackerID,
		"territory", territoryID,
		"defender", owner,
		"required", s.RequiredProgress,
	)
	return s, nil
}

// ProcessSieges advances every active siege by one tick and returns the
// sieges that completed.
func (e *Engine) ProcessSieges() []*world.Siege {
	var completed []*world.Siege
	for _, s := range e.state.SortedSieges() {
		if !s.Active() {
			continue
		}
		if e.advance(s) {
			completed = append(completed, s)
		}
	}
	return completed
}

func (e *Engine) advance(s *world.Siege) bool {
	t := e.state.Territory(s.TerritoryID)
	attacker := e.state.Faction(s.AttackerID)
	if t == nil || attacker == nil {
		e.end(s, world.SiegeAbandoned)
		e.rec.Record(e.state.Tick, eventlog.SiegeAbandoned{SiegeID: s.ID})
		return false
	}
	owner := t.OwnerID()
	if owner == s.AttackerID || (owner != "" && e.gate != nil && !e.gate.CanAttack(s.AttackerID, owner)) {
		// Peace or a transfer by other means ends the siege.
		e.end(s, world.SiegeAbandoned)
		e.rec.Record(e.state.Tick, eventlog.SiegeAbandoned{SiegeID: s.ID})
		return false
	}

	s.DefenderStrength = DefenderStrength(e.state, t)
	prev := s.Fraction()
	if !t.Shielded(e.state.Tick) {
		attack := s.AttackerStrength * attacker.Specialization.AttackMultiplier()
		s.Progress = math.Min(s.Progress+ProgressRate(attack, s.DefenderStrength), s.RequiredProgress)
	}
	e.rec.Record(e.state.Tick, eventlog.SiegeProgressed{
		SiegeID:          s.ID,
		Progress:         s.Progress,
		DefenderStrength: s.DefenderStrength,
	})

	now := s.Fraction()
	for _, m := range Milestones {
		if prev < m && now >= m {
			e.rec.Record(e.state.Tick, eventlog.SiegeMilestone{
				SiegeID:  s.ID,
				Percent:  int(math.Round(m * 100)),
				Progress: s.Progress,
			})
		}
	}

	if s.Progress < s.RequiredProgress {
		return false
	}
	e.capture(s, t, owner)
	return true
}

func (e *Engine) capture(s *world.Siege, t *world.Territory, defender string) {
	e.state.TransferTerritory(t.ID, s.AttackerID)
	t.Population /= 2
	e.end(s, world.SiegeCompleted)

	e.rec.Record(e.state.Tick, eventlog.SiegeCompleted{
		SiegeID:     s.ID,
		TerritoryID: t.ID,
		AttackerID:  s.AttackerID,
		DefenderID:  defender,
		Population:  t.Population,
		Progress:    s.Progress,
	})
	e.rec.Record(e.state.Tick, eventlog.TerritoryCaptured{TerritoryID: t.ID, From: defender, To: s.AttackerID})
	slog.Info("territory captured",
		"tick", e.state.Tick,
		"territory", t.ID,
		"from", defender,
		"to", s.AttackerID,
		"ticks", e.state.Tick-s.StartTick,
	)
}

func (e *Engine) end(s *world.Siege, status world.SiegeStatus) {
	s.Status = status
	s.EndTick = e.state.Tick
}

func (e *Engine) active(id string) (*world.Siege, error) {
	s := e.state.Sieges[id]
	if s == nil {
		return nil, fmt.Errorf("%w: %s", ErrSiegeNotFound, id)
	}
	if !s.Active() {
		return nil, ErrSiegeNotActive
	}
	return s, nil
}

// BreakSiege ends a siege in the defender's favour. by may be empty when the
// break is not attributed to a faction.
func (e *Engine) BreakSiege(id, by string) error {
	s, err := e.active(id)
	if err != nil {
		return err
	}
	if by != "" {
		if t := e.state.Territory(s.TerritoryID); t == nil || t.OwnerID() != by {
			return ErrNotDefender
		}
	}
	e.end(s, world.SiegeBroken)
	e.rec.Record(e.state.Tick, eventlog.SiegeBroken{SiegeID: id, BrokenBy: by})
	slog.Info("siege broken", "tick", e.state.Tick, "siege", id, "territory", s.TerritoryID, "by", by)
	return nil
}

// AbandonSiege ends a siege at the attacker's request.
func (e *Engine) AbandonSiege(id string) error {
	s, err := e.active(id)
	if err != nil {
		return err
	}
	e.end(s, world.SiegeAbandoned)
	e.rec.Record(e.state.Tick, eventlog.SiegeAbandoned{SiegeID: id})
	slog.Info("siege abandoned", "tick", e.state.Tick, "siege", id, "attacker", s.AttackerID)
	return nil
}

// ReinforceSiege adds delta to the attacker's strength. Returns false and
// changes nothing when the siege is missing or no longer active.
func (e *Engine) ReinforceSiege(id string, delta float64) bool {
	s, err := e.active(id)
	if err != nil || delta <= 0 {
		return false
	}
	s.AttackerStrength += delta
	e.rec.Record(e.state.Tick, eventlog.SiegeReinforced{
		SiegeID:          id,
		FactionID:        s.AttackerID,
		Delta:            delta,
		AttackerStrength: s.AttackerStrength,
	})
	return true
}

// WeakenSiege lowers the attacker's strength on behalf of the defender,
// never below zero.
func (e *Engine) WeakenSiege(id, by string, delta float64) bool {
	s, err := e.active(id)
	if err != nil || delta <= 0 {
		return false
	}
	s.AttackerStrength = math.Max(0, s.AttackerStrength-delta)
	e.rec.Record(e.state.Tick, eventlog.SiegeHarassed{
		SiegeID:          id,
		FactionID:        by,
		Delta:            delta,
		AttackerStrength: s.AttackerStrength,
	})
	return true
}
