package eventlog

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// DefaultFlushThreshold is the buffered event count that triggers a flush.
const DefaultFlushThreshold = 100

// Recorder accepts typed events from the simulation.
type Recorder interface {
	Record(tick uint64, p Payload)
}

// Nop discards every event.
type Nop struct{}

func (Nop) Record(uint64, Payload) {}

// Log buffers events in memory and flushes them to a Store. Appends and
// flushes are serialized, so background flushing may run alongside the tick loop.
type Log struct {
	shard     string
	store     Store
	threshold int

	mu  sync.Mutex
	buf []GameEvent
	seq uint64

	flushMu sync.Mutex
	kick    chan struct{}
}

// NewLog creates a buffered log for shard.
func NewLog(shard string, store Store, threshold int) *Log {
	if threshold <= 0 {
		threshold = DefaultFlushThreshold
	}
	return &Log{
		shard:     shard,
		store:     store,
		threshold: threshold,
		kick:      make(chan struct{}, 1),
	}
}

// Shard returns the shard this log writes to.
func (l *Log) Shard() string { return l.shard }

// Resume continues sequence numbering after whatever the store already holds.
func (l *Log) Resume(ctx context.Context) error {
	seq, err := l.store.MaxSeq(ctx, l.shard)
	if err != nil {
		return fmt.Errorf("resume event log: %w", err)
	}
	l.mu.Lock()
	if seq > l.seq {
		l.seq = seq
	}
	l.mu.Unlock()
	return nil
}

// Record appends an event to the buffer. It never blocks on storage.
func (l *Log) Record(tick uint64, p Payload) {
	l.mu.Lock()
	l.seq++
	ev, err := NewEvent(l.shard, tick, l.seq, p)
	if err != nil {
		l.seq--
		l.mu.Unlock()
		slog.Error("event dropped", "type", p.Type(), "tick", tick, "error", err)
		return
	}
	l.buf = append(l.buf, ev)
	full := len(l.buf) >= l.threshold
	l.mu.Unlock()

	if full {
		select {
		case l.kick <- struct{}{}:
		default:
		}
	}
}

// Pending returns the number of buffered, unflushed events.
func (l *Log) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buf)
}

// Flush writes buffered events to the store. On failure the events are put
// back at the head of the buffer so a later flush retries them.
func (l *Log) Flush(ctx context.Context) error {
	l.flushMu.Lock()
	defer l.flushMu.Unlock()

	l.mu.Lock()
	batch := l.buf
	l.buf = nil
	l.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}
	if err := l.store.AppendEvents(ctx, batch); err != nil {
		l.mu.Lock()
		l.buf = append(batch, l.buf...)
		l.mu.Unlock()
		return fmt.Errorf("flush %d events: %w", len(batch), err)
	}
	slog.Debug("events flushed", "shard", l.shard, "count", len(batch))
	return nil
}

// Run flushes whenever the buffer crosses the threshold. Blocks until ctx is done.
func (l *Log) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-l.kick:
			if err := l.Flush(ctx); err != nil {
				slog.Error("threshold flush failed", "shard", l.shard, "error", err)
			}
		}
	}
}

// Close drains the buffer, giving up when ctx expires.
func (l *Log) Close(ctx context.Context) error {
	done := make(chan error, 1)
	go func() { done <- l.Flush(ctx) }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("drain event log: %w (%d events pending)", ctx.Err(), l.Pending())
	}
}
