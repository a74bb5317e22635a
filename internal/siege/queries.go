package siege

import "github.com/talgya/pantheon/internal/world"

// ActiveFor returns the active siege on territoryID, or nil.
func (e *Engine) ActiveFor(territoryID string) *world.Siege {
	for _, s := range e.state.Sieges {
		if s.Active() && s.TerritoryID == territoryID {
			return s
		}
	}
	return nil
}

// ActiveByAttacker returns active sieges launched by factionID.
func (e *Engine) ActiveByAttacker(factionID string) []*world.Siege {
	var out []*world.Siege
	for _, s := range e.state.SortedSieges() {
		if s.Active() && s.AttackerID == factionID {
			out = append(out, s)
		}
	}
	return out
}

// ActiveAgainst returns active sieges on territory currently owned by factionID.
func (e *Engine) ActiveAgainst(factionID string) []*world.Siege {
	var out []*world.Siege
	for _, s := range e.state.SortedSieges() {
		if !s.Active() {
			continue
		}
		if t := e.state.Territory(s.TerritoryID); t != nil && t.OwnerID() == factionID {
			out = append(out, s)
		}
	}
	return out
}

// Besieged reports whether territoryID has an active siege.
func (e *Engine) Besieged(territoryID string) bool {
	return e.ActiveFor(territoryID) != nil
}
