package world

// RelationStatus is the diplomatic status between two factions.
type RelationStatus string

const (
	StatusNeutral  RelationStatus = "neutral"
	StatusWar      RelationStatus = "war"
	StatusTruce    RelationStatus = "truce"
	StatusAlliance RelationStatus = "alliance"
)

// ProposalType is the kind of pending diplomatic offer.
type ProposalType string

const (
	ProposalPeace    ProposalType = "peace"
	ProposalAlliance ProposalType = "alliance"
)

// Proposal is a pending offer awaiting the other side's answer.
type Proposal struct {
	ProposedBy string       `json:"proposed_by"`
	Type       ProposalType `json:"type"`
	Tick       uint64       `json:"tick"`
}

// Relation is the single record for an unordered faction pair.
// FactionA < FactionB always holds.
type Relation struct {
	ID          string         `json:"id"`
	FactionA    string         `json:"faction_a"`
	FactionB    string         `json:"faction_b"`
	Status      RelationStatus `json:"status"`
	ChangedTick uint64         `json:"changed_tick"`
	Proposal    *Proposal      `json:"proposal,omitempty"`
}

// OrderPair returns the pair in canonical (lexicographic) order.
func OrderPair(a, b string) (string, string) {
	if b < a {
		return b, a
	}
	return a, b
}

// PairKey is the canonical key for an unordered faction pair.
func PairKey(a, b string) string {
	a, b = OrderPair(a, b)
	return a + "|" + b
}

// Key returns the relation's canonical pair key.
func (r *Relation) Key() string {
	return PairKey(r.FactionA, r.FactionB)
}

// Involves reports whether factionID is one side of the relation.
func (r *Relation) Involves(factionID string) bool {
	return r.FactionA == factionID || r.FactionB == factionID
}

// Other returns the counterpart of factionID.
func (r *Relation) Other(factionID string) string {
	if r.FactionA == factionID {
		return r.FactionB
	}
	return r.FactionA
}

func (r *Relation) clone() *Relation {
	c := *r
	if r.Proposal != nil {
		p := *r.Proposal
		c.Proposal = &p
	}
	return &c
}
