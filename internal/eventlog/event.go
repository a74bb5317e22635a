// Package eventlog records world state transitions as an append-only event
// stream, buffers them for durable storage, and compacts raw events into
// gzip-compressed batches.
package eventlog

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// GameEvent is one immutable, append-only record of a world transition.
type GameEvent struct {
	ID        string          `json:"id" db:"id"`
	Shard     string          `json:"shard" db:"shard"`
	Tick      uint64          `json:"tick" db:"tick"`
	Seq       uint64          `json:"seq" db:"seq"` // Creation order within the shard
	Type      Type            `json:"type" db:"type"`
	Subject   string          `json:"subject,omitempty" db:"subject"`
	Target    string          `json:"target,omitempty" db:"target"`
	Payload   json.RawMessage `json:"payload" db:"payload"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}

// NewEvent builds an event from a typed payload.
func NewEvent(shard string, tick, seq uint64, p Payload) (GameEvent, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return GameEvent{}, fmt.Errorf("marshal %s: %w", p.Type(), err)
	}
	refs := p.Refs()
	return GameEvent{
		ID:        uuid.NewString(),
		Shard:     shard,
		Tick:      tick,
		Seq:       seq,
		Type:      p.Type(),
		Subject:   refs.Subject,
		Target:    refs.Target,
		Payload:   body,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// Decode returns the typed payload of the event. The returned value is a
// pointer to the payload struct registered for the event's type.
func (e GameEvent) Decode() (Payload, error) {
	ctor, ok := Registry[e.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, e.Type)
	}
	p := ctor()
	if err := json.Unmarshal(e.Payload, p); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", e.Type, err)
	}
	return p, nil
}

// Less orders events by tick, then by creation sequence.
func Less(a, b GameEvent) bool {
	if a.Tick != b.Tick {
		return a.Tick < b.Tick
	}
	if a.Seq != b.Seq {
		return a.Seq < b.Seq
	}
	return a.ID < b.ID
}

// Sort orders events in place by (tick, seq).
func Sort(events []GameEvent) {
	sort.SliceStable(events, func(i, j int) bool { return Less(events[i], events[j]) })
}
