package diplomacy

import "github.com/talgya/pantheon/internal/world"

// CanAttack reports whether a may siege b's territory.
func (e *Engine) CanAttack(a, b string) bool {
	return a != b && e.Status(a, b) == world.StatusWar
}

// AreAllied reports whether a and b are in alliance.
func (e *Engine) AreAllied(a, b string) bool {
	return a != b && e.Status(a, b) == world.StatusAlliance
}

// Allies returns the ids allied with factionID, sorted.
func (e *Engine) Allies(factionID string) []string {
	return e.counterparts(factionID, world.StatusAlliance)
}

// Enemies returns the ids at war with factionID, sorted.
func (e *Engine) Enemies(factionID string) []string {
	return e.counterparts(factionID, world.StatusWar)
}

func (e *Engine) counterparts(factionID string, status world.RelationStatus) []string {
	var out []string
	for _, r := range e.state.SortedRelations() {
		if r.Status == status && r.Involves(factionID) {
			out = append(out, r.Other(factionID))
		}
	}
	return out
}

// RelationsOf returns every relation record that references factionID.
func (e *Engine) RelationsOf(factionID string) []*world.Relation {
	var out []*world.Relation
	for _, r := range e.state.SortedRelations() {
		if r.Involves(factionID) {
			out = append(out, r)
		}
	}
	return out
}

// PendingFor returns relations holding a proposal addressed to factionID.
func (e *Engine) PendingFor(factionID string) []*world.Relation {
	var out []*world.Relation
	for _, r := range e.RelationsOf(factionID) {
		if r.Proposal != nil && r.Proposal.ProposedBy != factionID {
			out = append(out, r)
		}
	}
	return out
}

// SharedEnemies reports whether a and b are at war with a common faction.
func (e *Engine) SharedEnemies(a, b string) bool {
	theirs := make(map[string]bool)
	for _, id := range e.Enemies(b) {
		theirs[id] = true
	}
	for _, id := range e.Enemies(a) {
		if theirs[id] {
			return true
		}
	}
	return false
}
