// Inbound commands: validated state changes requested by players or admins.
package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/talgya/pantheon/internal/diplomacy"
	"github.com/talgya/pantheon/internal/eventlog"
	"github.com/talgya/pantheon/internal/siege"
	"github.com/talgya/pantheon/internal/world"
)

// Divine actions a deity may cast on its own territory.
const (
	ActionShield  = "shield"
	ActionBless   = "bless"
	ActionHarvest = "harvest"
)

// Divine action tuning.
const (
	ShieldCost           = 40.0
	ShieldDuration       = 20
	BlessCost            = 25.0
	BlessDuration        = 30
	BlessDefense         = 1.5
	HarvestCost          = 15.0
	HarvestFood          = 50.0
	MaxMessageLength     = 500
	MaxFactionNameLength = 40
)

var (
	ErrUnknownFaction        = errors.New("unknown faction")
	ErrUnknownTerritory      = errors.New("unknown territory")
	ErrNotOwner              = errors.New("territory is not owned by the faction")
	ErrUnknownAction         = errors.New("unknown divine action")
	ErrInsufficientPower     = errors.New("insufficient divine power")
	ErrInvalidSpecialization = errors.New("invalid specialization")
	ErrSpecializationSet     = errors.New("specialization already chosen")
	ErrInvalidMessage        = errors.New("message must be 1-500 characters")
	ErrInvalidFaction        = errors.New("invalid faction definition")
)

// Result codes relayed to clients.
const (
	CodeNotFound          = "not_found"
	CodeForbidden         = "forbidden"
	CodeInsufficientPower = "insufficient_power"
	CodeInvalidTransition = "invalid_transition"
	CodeInvalid           = "invalid"
)

// Result is the typed outcome of a command.
type Result struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
	ID      string `json:"id,omitempty"`
}

func ok(id string) Result {
	return Result{Success: true, ID: id}
}

func fail(err error) Result {
	return Result{Error: err.Error(), Code: classify(err)}
}

// classify maps validation errors onto result codes.
func classify(err error) string {
	switch {
	case errors.Is(err, ErrUnknownFaction), errors.Is(err, ErrUnknownTerritory),
		errors.Is(err, diplomacy.ErrUnknownFaction), errors.Is(err, siege.ErrUnknownFaction),
		errors.Is(err, siege.ErrUnknownTerritory), errors.Is(err, siege.ErrSiegeNotFound):
		return CodeNotFound
	case errors.Is(err, ErrNotOwner), errors.Is(err, siege.ErrNotDefender),
		errors.Is(err, diplomacy.ErrOwnProposal):
		return CodeForbidden
	case errors.Is(err, ErrInsufficientPower), errors.Is(err, diplomacy.ErrInsufficientPower):
		return CodeInsufficientPower
	case errors.Is(err, diplomacy.ErrAlreadyAtWar), errors.Is(err, diplomacy.ErrAllied),
		errors.Is(err, diplomacy.ErrInTruce), errors.Is(err, diplomacy.ErrNotAtWar),
		errors.Is(err, diplomacy.ErrAlreadyAllied), errors.Is(err, diplomacy.ErrNotAllied),
		errors.Is(err, diplomacy.ErrProposalPending), errors.Is(err, diplomacy.ErrNoProposal),
		errors.Is(err, ErrSpecializationSet):
		return CodeInvalidTransition
	}
	return CodeInvalid
}

func (s *Simulation) logResult(cmd string, r Result, attrs ...any) Result {
	if r.Success {
		slog.Info("command applied", append([]any{"command", cmd, "tick", s.state.Tick}, attrs...)...)
	} else {
		slog.Debug("command rejected", append([]any{"command", cmd, "error", r.Error}, attrs...)...)
	}
	return r
}

// CreateFaction registers a new faction. deityID empty creates an AI faction.
func (s *Simulation) CreateFaction(name, color, deityID string, policy world.Policy) Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	if deityID == "" {
		deityID = world.AIDeity
	}
	id, err := s.createFaction(name, color, deityID, policy)
	if err != nil {
		return s.logResult("create_faction", fail(err), "name", name)
	}
	return s.logResult("create_faction", ok(id), "faction", id, "name", name)
}

func (s *Simulation) createFaction(name, color, deityID string, policy world.Policy) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > MaxFactionNameLength {
		return "", fmt.Errorf("%w: name must be 1-%d characters", ErrInvalidFaction, MaxFactionNameLength)
	}
	for _, v := range []float64{policy.Expansion, policy.Aggression, policy.ResourceFocus} {
		if v < 0 || v > 1 {
			return "", fmt.Errorf("%w: policy sliders must be within [0, 1]", ErrInvalidFaction)
		}
	}
	id := world.FactionID(s.state.Shard, name)
	if s.state.Faction(id) != nil {
		return "", fmt.Errorf("%w: name %q already taken", ErrInvalidFaction, name)
	}
	f := world.NewFaction(id, name, color, deityID, policy)
	s.state.AddFaction(f)
	s.rec.Record(s.state.Tick, eventlog.FactionCreated{Faction: *f})
	return f.ID, nil
}

// RemoveFaction deletes a faction and releases everything it held.
func (s *Simulation) RemoveFaction(factionID string) Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Faction(factionID) == nil {
		return fail(fmt.Errorf("%w: %s", ErrUnknownFaction, factionID))
	}
	s.state.RemoveFaction(factionID)
	s.rec.Record(s.state.Tick, eventlog.FactionRemoved{FactionID: factionID})
	return s.logResult("remove_faction", ok(factionID), "faction", factionID)
}

// CastAction spends divine power on one of the caster's territories.
func (s *Simulation) CastAction(factionID, action, territoryID string) Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.castAction(factionID, action, territoryID)
	return s.logResult("cast_action", r, "faction", factionID, "action", action, "territory", territoryID)
}

func (s *Simulation) castAction(factionID, action, territoryID string) Result {
	st := s.state
	f := st.Faction(factionID)
	if f == nil {
		return fail(fmt.Errorf("%w: %s", ErrUnknownFaction, factionID))
	}
	t := st.Territory(territoryID)
	if t == nil {
		return fail(fmt.Errorf("%w: %s", ErrUnknownTerritory, territoryID))
	}
	if t.OwnerID() != factionID {
		return fail(ErrNotOwner)
	}

	var (
		cost   float64
		effect *world.Effect
		food   float64
	)
	switch action {
	case ActionShield:
		cost = ShieldCost
		effect = &world.Effect{Kind: world.EffectShield, Shield: true, ExpiresTick: st.Tick + ShieldDuration}
	case ActionBless:
		cost = BlessCost
		effect = &world.Effect{Kind: world.EffectBlessing, DefenseMultiplier: BlessDefense, ExpiresTick: st.Tick + BlessDuration}
	case ActionHarvest:
		cost = HarvestCost
		food = HarvestFood
	default:
		return fail(fmt.Errorf("%w: %q", ErrUnknownAction, action))
	}
	if !f.SpendDivinePower(cost) {
		return fail(ErrInsufficientPower)
	}

	if effect != nil {
		t.Effects = append(t.Effects, *effect)
	}
	t.Food += food
	s.rec.Record(st.Tick, eventlog.EffectApplied{
		FactionID:   factionID,
		TerritoryID: territoryID,
		Action:      action,
		Effect:      effect,
		FoodBonus:   food,
		PowerAfter:  f.DivinePower,
	})
	return ok("")
}

// DeclareWar moves the pair to war.
func (s *Simulation) DeclareWar(attacker, target string) Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.diplomatic("declare_war", attacker, target, s.diplomacy.DeclareWar(attacker, target))
}

// OfferPeace proposes peace to a faction at war.
func (s *Simulation) OfferPeace(from, to string) Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.diplomatic("offer_peace", from, to, s.diplomacy.OfferPeace(from, to))
}

// ProposeAlliance proposes an alliance.
func (s *Simulation) ProposeAlliance(from, to string) Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.diplomatic("propose_alliance", from, to, s.diplomacy.ProposeAlliance(from, to))
}

// Respond answers a pending proposal from other.
func (s *Simulation) Respond(responder, other string, accept bool) Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.diplomatic("respond", responder, other, s.diplomacy.Respond(responder, other, accept))
}

// BreakAlliance ends an alliance at a reputation cost.
func (s *Simulation) BreakAlliance(breaker, ally string) Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.diplomatic("break_alliance", breaker, ally, s.diplomacy.BreakAlliance(breaker, ally))
}

func (s *Simulation) diplomatic(cmd, from, to string, err error) Result {
	if err != nil {
		return s.logResult(cmd, fail(err), "from", from, "to", to)
	}
	var id string
	if r := s.diplomacy.Relation(from, to); r != nil {
		id = r.ID
	}
	return s.logResult(cmd, ok(id), "from", from, "to", to)
}

// ChooseSpecialization sets a faction's permanent specialization.
func (s *Simulation) ChooseSpecialization(factionID string, spec world.Specialization) Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	f := s.state.Faction(factionID)
	switch {
	case f == nil:
		return fail(fmt.Errorf("%w: %s", ErrUnknownFaction, factionID))
	case !spec.Valid():
		return fail(fmt.Errorf("%w: %q", ErrInvalidSpecialization, spec))
	case f.Specialization != world.SpecNone:
		return fail(ErrSpecializationSet)
	}
	f.Specialization = spec
	s.rec.Record(s.state.Tick, eventlog.SpecializationChosen{FactionID: factionID, Specialization: spec})
	return s.logResult("choose_specialization", ok(factionID), "faction", factionID, "specialization", spec)
}

// SendMessage records a diplomatic message between two factions.
func (s *Simulation) SendMessage(from, to, text string) Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range []string{from, to} {
		if s.state.Faction(id) == nil {
			return fail(fmt.Errorf("%w: %s", ErrUnknownFaction, id))
		}
	}
	text = strings.TrimSpace(text)
	if text == "" || len(text) > MaxMessageLength {
		return fail(ErrInvalidMessage)
	}
	s.rec.Record(s.state.Tick, eventlog.MessageSent{From: from, To: to, Text: text})
	return ok("")
}
