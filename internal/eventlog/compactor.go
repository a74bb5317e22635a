package eventlog

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// DefaultBatchInterval is the tick spacing between compaction passes.
const DefaultBatchInterval = 100

// Compactor folds raw events into compressed batches. A batch is durably
// saved before the raw rows it covers are deleted, so a crash between the two
// steps leaves duplicates (deduplicated on read) rather than gaps.
type Compactor struct {
	log   *Log
	store Store

	mu sync.Mutex // one pass at a time
}

// NewCompactor creates a compactor over the log's store.
func NewCompactor(l *Log) *Compactor {
	return &Compactor{log: l, store: l.store}
}

// Compact batches every raw event with tick <= throughTick. Returns nil when
// there was nothing to batch.
func (c *Compactor) Compact(ctx context.Context, throughTick uint64) (*Batch, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	shard := c.log.Shard()
	if err := c.log.Flush(ctx); err != nil {
		return nil, fmt.Errorf("compact: %w", err)
	}

	var from uint64
	if end, ok, err := c.store.LastBatchEnd(ctx, shard); err != nil {
		return nil, fmt.Errorf("compact: last batch: %w", err)
	} else if ok {
		from = end + 1
	}

	// Stragglers recorded at or before the previous boundary are swept up too.
	events, err := c.store.LoadEvents(ctx, shard, 0, throughTick)
	if err != nil {
		return nil, fmt.Errorf("compact: load raw: %w", err)
	}
	if len(events) == 0 {
		return nil, nil
	}

	b, err := EncodeBatch(shard, events)
	if err != nil {
		return nil, fmt.Errorf("compact: %w", err)
	}
	if b.FromTick > from && from <= throughTick {
		b.FromTick = from
	}
	b.ToTick = throughTick
	if err := c.store.SaveBatch(ctx, b); err != nil {
		return nil, fmt.Errorf("compact: save batch: %w", err)
	}

	ids := make([]string, len(events))
	for i, e := range events {
		ids[i] = e.ID
	}
	removed, err := c.store.DeleteEvents(ctx, shard, ids)
	if err != nil {
		// The batch is durable; leftovers are re-batched or deduplicated later.
		slog.Warn("raw event cleanup failed", "shard", shard, "batch", b.ID, "error", err)
	}

	slog.Info("event batch created",
		"shard", shard,
		"from_tick", b.FromTick,
		"to_tick", b.ToTick,
		"events", b.EventCount,
		"removed", removed,
		"ratio", fmt.Sprintf("%.3f", b.Ratio()),
	)
	return &b, nil
}
