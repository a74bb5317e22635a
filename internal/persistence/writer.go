package persistence

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/talgya/pantheon/internal/world"
)

// Writer is the single writer of world snapshots for one shard. Submit
// never blocks the tick; snapshots queued faster than they are written
// collapse to the newest, and the stored tick never moves backward.
type Writer struct {
	db *DB

	mu      sync.Mutex
	pending *world.State
	saved   uint64
	wrote   bool

	flushMu sync.Mutex
	kick    chan struct{}
}

// NewWriter creates a writer over db.
func NewWriter(db *DB) *Writer {
	return &Writer{db: db, kick: make(chan struct{}, 1)}
}

// Submit queues st for writing. st must not be mutated afterwards.
func (w *Writer) Submit(st *world.State) {
	w.mu.Lock()
	if w.pending == nil || st.Tick >= w.pending.Tick {
		w.pending = st
	}
	w.mu.Unlock()

	select {
	case w.kick <- struct{}{}:
	default:
	}
}

// Saved returns the tick of the last snapshot written.
func (w *Writer) Saved() (uint64, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.saved, w.wrote
}

// Flush writes the queued snapshot, if any.
func (w *Writer) Flush(ctx context.Context) error {
	w.flushMu.Lock()
	defer w.flushMu.Unlock()

	w.mu.Lock()
	st := w.pending
	w.pending = nil
	stale := st != nil && w.wrote && st.Tick < w.saved
	w.mu.Unlock()

	if st == nil || stale {
		return nil
	}
	if err := w.db.SaveState(ctx, st); err != nil {
		w.mu.Lock()
		if w.pending == nil {
			w.pending = st
		}
		w.mu.Unlock()
		return fmt.Errorf("save tick %d: %w", st.Tick, err)
	}

	w.mu.Lock()
	w.saved, w.wrote = st.Tick, true
	w.mu.Unlock()
	return nil
}

// Run writes snapshots as they are submitted. Blocks until ctx is done.
func (w *Writer) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.kick:
			if err := w.Flush(ctx); err != nil {
				slog.Error("snapshot write failed", "error", err)
			}
		}
	}
}
