package broadcast

import (
	"context"
	"encoding/json"
	"log/slog"
	"maps"
	"slices"

	"github.com/talgya/pantheon/internal/world"
)

// DefaultSnapshotEvery is the tick spacing of full snapshots.
const DefaultSnapshotEvery = 30

// Kind distinguishes full snapshots from incremental diffs.
type Kind string

const (
	KindSnapshot Kind = "snapshot"
	KindDiff     Kind = "diff"
)

// Update is one message on the bus. Seq increases by one per update, so a
// gap means updates were lost and the consumer needs a fresh snapshot.
type Update struct {
	Kind  Kind         `json:"kind"`
	Shard string       `json:"shard"`
	Seq   uint64       `json:"seq"`
	Tick  uint64       `json:"tick"`
	State *world.State `json:"state,omitempty"`
	Diff  *Diff        `json:"diff,omitempty"`
}

// Diff lists entities changed or removed since the previous update.
// Changed entities are carried in their JSON form.
type Diff struct {
	Territories []json.RawMessage `json:"territories,omitempty"`
	Factions    []json.RawMessage `json:"factions,omitempty"`
	Sieges      []json.RawMessage `json:"sieges,omitempty"`
	Relations   []json.RawMessage `json:"relations,omitempty"`
	Removed     Removed           `json:"removed"`
}

// Removed holds the ids of entities that no longer exist.
type Removed struct {
	Territories []string `json:"territories,omitempty"`
	Factions    []string `json:"factions,omitempty"`
	Sieges      []string `json:"sieges,omitempty"`
	Relations   []string `json:"relations,omitempty"`
}

// Empty reports whether nothing changed.
func (d *Diff) Empty() bool {
	return len(d.Territories)+len(d.Factions)+len(d.Sieges)+len(d.Relations)+
		len(d.Removed.Territories)+len(d.Removed.Factions)+len(d.Removed.Sieges)+len(d.Removed.Relations) == 0
}

type encoded map[string]json.RawMessage

// Broadcaster turns successive states of one shard into updates.
type Broadcaster struct {
	bus   *Bus
	shard string
	every uint64

	seq   uint64
	prev  [4]encoded // territories, factions, sieges, relations
	queue chan Update
}

// NewBroadcaster creates a broadcaster publishing to bus. every <= 0 uses
// DefaultSnapshotEvery.
func NewBroadcaster(bus *Bus, shard string, every int) *Broadcaster {
	if every <= 0 {
		every = DefaultSnapshotEvery
	}
	return &Broadcaster{bus: bus, shard: shard, every: uint64(every), queue: make(chan Update, 256)}
}

// Observe builds the update for st and queues it for publishing. It must be
// called with st quiescent; the queued update shares nothing with st.
func (b *Broadcaster) Observe(st *world.State) {
	cur := [4]encoded{
		encodeAll(st.Territories),
		encodeAll(st.Factions),
		encodeAll(st.Sieges),
		encodeAll(st.Relations),
	}
	b.seq++
	u := Update{Shard: b.shard, Seq: b.seq, Tick: st.Tick}
	if b.seq == 1 || st.Tick%b.every == 0 {
		u.Kind = KindSnapshot
		u.State = st.Clone()
	} else {
		u.Kind = KindDiff
		u.Diff = &Diff{}
		u.Diff.Territories, u.Diff.Removed.Territories = compare(b.prev[0], cur[0])
		u.Diff.Factions, u.Diff.Removed.Factions = compare(b.prev[1], cur[1])
		u.Diff.Sieges, u.Diff.Removed.Sieges = compare(b.prev[2], cur[2])
		u.Diff.Relations, u.Diff.Removed.Relations = compare(b.prev[3], cur[3])
	}
	b.prev = cur

	select {
	case b.queue <- u:
	default:
		slog.Warn("broadcast queue full, update dropped", "shard", b.shard, "tick", st.Tick, "seq", u.Seq)
	}
}

// Run publishes queued updates until ctx is done.
func (b *Broadcaster) Run(ctx context.Context) {
	topic := Topic(b.shard)
	for {
		select {
		case <-ctx.Done():
			return
		case u := <-b.queue:
			if err := b.bus.Publish(topic, u); err != nil {
				slog.Error("broadcast publish failed", "shard", b.shard, "seq", u.Seq, "error", err)
			}
		}
	}
}

func encodeAll[T any](m map[string]*T) encoded {
	out := make(encoded, len(m))
	for id, v := range m {
		body, err := json.Marshal(v)
		if err != nil {
			slog.Error("broadcast encode failed", "id", id, "error", err)
			continue
		}
		out[id] = body
	}
	return out
}

// compare returns the entries of cur that are new or differ from prev, and
// the ids present in prev but gone from cur, both in id order.
func compare(prev, cur encoded) ([]json.RawMessage, []string) {
	var changed []json.RawMessage
	for _, id := range slices.Sorted(maps.Keys(cur)) {
		if old, ok := prev[id]; !ok || string(old) != string(cur[id]) {
			changed = append(changed, cur[id])
		}
	}
	var removed []string
	for _, id := range slices.Sorted(maps.Keys(prev)) {
		if _, ok := cur[id]; !ok {
			removed = append(removed, id)
		}
	}
	return changed, removed
}
