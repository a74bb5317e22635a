package replay

import (
	"context"
	"fmt"

	"github.com/talgya/pantheon/internal/eventlog"
)

// Load gathers every event of the shard in [from, to], reading compressed
// batches first and raw events after. Events present in both are kept once.
// A batch that fails to decode aborts the load with ErrCorruptBatch in the
// error chain.
func Load(ctx context.Context, store eventlog.Store, shard string, from, to uint64) ([]eventlog.GameEvent, error) {
	batches, err := store.LoadBatches(ctx, shard, from, to)
	if err != nil {
		return nil, fmt.Errorf("load batches: %w", err)
	}

	seen := make(map[string]bool)
	var events []eventlog.GameEvent
	keep := func(ev eventlog.GameEvent) {
		if ev.Tick < from || ev.Tick > to || seen[ev.ID] {
			return
		}
		seen[ev.ID] = true
		events = append(events, ev)
	}

	for _, b := range batches {
		decoded, err := eventlog.DecodeBatch(b)
		if err != nil {
			return nil, fmt.Errorf("batch %s (ticks %d-%d): %w", b.ID, b.FromTick, b.ToTick, err)
		}
		for _, ev := range decoded {
			keep(ev)
		}
	}

	raw, err := store.LoadEvents(ctx, shard, from, to)
	if err != nil {
		return nil, fmt.Errorf("load events: %w", err)
	}
	for _, ev := range raw {
		keep(ev)
	}

	eventlog.Sort(events)
	return events, nil
}
