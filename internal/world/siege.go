package world

// SiegeStatus is the lifecycle state of a siege.
type SiegeStatus string

const (
	SiegeActive    SiegeStatus = "active"
	SiegeCompleted SiegeStatus = "completed"
	SiegeBroken    SiegeStatus = "broken"
	SiegeAbandoned SiegeStatus = "abandoned"
)

// Siege is a multi-tick capture attempt on one territory.
type Siege struct {
	ID               string      `json:"id"`
	AttackerID       string      `json:"attacker_id"`
	TerritoryID      string      `json:"territory_id"`
	StartTick        uint64      `json:"start_tick"`
	Progress         float64     `json:"progress"`
	RequiredProgress float64     `json:"required_progress"`
	AttackerStrength float64     `json:"attacker_strength"`
	DefenderStrength float64     `json:"defender_strength"`
	Status           SiegeStatus `json:"status"`
	EndTick          uint64      `json:"end_tick,omitempty"`
}

// Active reports whether the siege is still running.
func (s *Siege) Active() bool {
	return s.Status == SiegeActive
}

// Fraction returns progress as a share of the requirement.
func (s *Siege) Fraction() float64 {
	if s.RequiredProgress <= 0 {
		return 1
	}
	return s.Progress / s.RequiredProgress
}
