package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/talgya/pantheon/internal/eventlog"
)

// deleteChunk keeps IN lists under SQLite's bound-parameter limit.
const deleteChunk = 500

// sqlTick clamps a tick bound to SQLite's signed integer range. database/sql
// refuses uint64 arguments with the high bit set.
func sqlTick(t uint64) int64 {
	if t > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(t)
}

// EventStore is the SQLite implementation of eventlog.Store.
type EventStore struct {
	db *DB
}

var _ eventlog.Store = (*EventStore)(nil)

// Events returns the event store backed by db.
func (db *DB) Events() *EventStore {
	return &EventStore{db: db}
}

type eventRow struct {
	ID        string `db:"id"`
	Shard     string `db:"shard"`
	Tick      uint64 `db:"tick"`
	Seq       uint64 `db:"seq"`
	Type      string `db:"type"`
	Subject   string `db:"subject"`
	Target    string `db:"target"`
	Payload   []byte `db:"payload"`
	CreatedAt int64  `db:"created_at"` // Unix nanoseconds
}

func toEventRow(e eventlog.GameEvent) eventRow {
	return eventRow{
		ID:        e.ID,
		Shard:     e.Shard,
		Tick:      e.Tick,
		Seq:       e.Seq,
		Type:      string(e.Type),
		Subject:   e.Subject,
		Target:    e.Target,
		Payload:   e.Payload,
		CreatedAt: e.CreatedAt.UnixNano(),
	}
}

func (r eventRow) event() eventlog.GameEvent {
	return eventlog.GameEvent{
		ID:        r.ID,
		Shard:     r.Shard,
		Tick:      r.Tick,
		Seq:       r.Seq,
		Type:      eventlog.Type(r.Type),
		Subject:   r.Subject,
		Target:    r.Target,
		Payload:   r.Payload,
		CreatedAt: time.Unix(0, r.CreatedAt).UTC(),
	}
}

type batchRow struct {
	ID               string `db:"id"`
	Shard            string `db:"shard"`
	FromTick         uint64 `db:"from_tick"`
	ToTick           uint64 `db:"to_tick"`
	EventCount       int    `db:"event_count"`
	Data             []byte `db:"data"`
	UncompressedSize int    `db:"uncompressed_size"`
	CompressedSize   int    `db:"compressed_size"`
	CreatedAt        int64  `db:"created_at"`
}

// AppendEvents inserts raw events. Re-appending an id already stored is a no-op.
func (s *EventStore) AppendEvents(ctx context.Context, events []eventlog.GameEvent) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := s.db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareNamedContext(ctx, `INSERT OR IGNORE INTO events
		(id, shard, tick, seq, type, subject, target, payload, created_at)
		VALUES (:id, :shard, :tick, :seq, :type, :subject, :target, :payload, :created_at)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	maxSeq := make(map[string]uint64)
	for _, e := range events {
		if _, err := stmt.ExecContext(ctx, toEventRow(e)); err != nil {
			return fmt.Errorf("insert event %s: %w", e.ID, err)
		}
		if e.Seq > maxSeq[e.Shard] {
			maxSeq[e.Shard] = e.Seq
		}
	}
	for shard, seq := range maxSeq {
		if _, err := tx.ExecContext(ctx, `INSERT INTO event_seq (shard, seq) VALUES (?, ?)
			ON CONFLICT (shard) DO UPDATE SET seq = MAX(seq, excluded.seq)`, shard, seq); err != nil {
			return fmt.Errorf("advance sequence: %w", err)
		}
	}
	return tx.Commit()
}

func (s *EventStore) LoadEvents(ctx context.Context, shard string, fromTick, toTick uint64) ([]eventlog.GameEvent, error) {
	var rows []eventRow
	if err := s.db.conn.SelectContext(ctx, &rows, `SELECT * FROM events
		WHERE shard = ? AND tick >= ? AND tick <= ?
		ORDER BY tick, seq, id`, shard, sqlTick(fromTick), sqlTick(toTick)); err != nil {
		return nil, fmt.Errorf("load events: %w", err)
	}
	out := make([]eventlog.GameEvent, len(rows))
	for i, r := range rows {
		out[i] = r.event()
	}
	return out, nil
}

func (s *EventStore) DeleteEvents(ctx context.Context, shard string, ids []string) (int, error) {
	removed := 0
	for start := 0; start < len(ids); start += deleteChunk {
		chunk := ids[start:min(start+deleteChunk, len(ids))]
		query, args, err := sqlx.In("DELETE FROM events WHERE shard = ? AND id IN (?)", shard, chunk)
		if err != nil {
			return removed, err
		}
		res, err := s.db.conn.ExecContext(ctx, s.db.conn.Rebind(query), args...)
		if err != nil {
			return removed, fmt.Errorf("delete events: %w", err)
		}
		n, _ := res.RowsAffected()
		removed += int(n)
	}
	return removed, nil
}

// SaveBatch commits the batch before returning.
func (s *EventStore) SaveBatch(ctx context.Context, b eventlog.Batch) error {
	_, err := s.db.conn.NamedExecContext(ctx, `INSERT INTO event_batches
		(id, shard, from_tick, to_tick, event_count, data, uncompressed_size, compressed_size, created_at)
		VALUES (:id, :shard, :from_tick, :to_tick, :event_count, :data, :uncompressed_size, :compressed_size, :created_at)`,
		batchRow{
			ID:               b.ID,
			Shard:            b.Shard,
			FromTick:         b.FromTick,
			ToTick:           b.ToTick,
			EventCount:       b.EventCount,
			Data:             b.Data,
			UncompressedSize: b.UncompressedSize,
			CompressedSize:   b.CompressedSize,
			CreatedAt:        b.CreatedAt.UnixNano(),
		})
	if err != nil {
		return fmt.Errorf("save batch %s: %w", b.ID, err)
	}
	return nil
}

func (s *EventStore) LoadBatches(ctx context.Context, shard string, fromTick, toTick uint64) ([]eventlog.Batch, error) {
	var rows []batchRow
	if err := s.db.conn.SelectContext(ctx, &rows, `SELECT * FROM event_batches
		WHERE shard = ? AND from_tick <= ? AND to_tick >= ?
		ORDER BY from_tick, id`, shard, sqlTick(toTick), sqlTick(fromTick)); err != nil {
		return nil, fmt.Errorf("load batches: %w", err)
	}
	out := make([]eventlog.Batch, len(rows))
	for i, r := range rows {
		out[i] = eventlog.Batch{
			ID:               r.ID,
			Shard:            r.Shard,
			FromTick:         r.FromTick,
			ToTick:           r.ToTick,
			EventCount:       r.EventCount,
			Data:             r.Data,
			UncompressedSize: r.UncompressedSize,
			CompressedSize:   r.CompressedSize,
			CreatedAt:        time.Unix(0, r.CreatedAt).UTC(),
		}
	}
	return out, nil
}

func (s *EventStore) LastBatchEnd(ctx context.Context, shard string) (uint64, bool, error) {
	var end sql.NullInt64
	if err := s.db.conn.GetContext(ctx, &end,
		"SELECT MAX(to_tick) FROM event_batches WHERE shard = ?", shard); err != nil {
		return 0, false, err
	}
	if !end.Valid {
		return 0, false, nil
	}
	return uint64(end.Int64), true, nil
}

func (s *EventStore) MaxSeq(ctx context.Context, shard string) (uint64, error) {
	var seq uint64
	err := s.db.conn.GetContext(ctx, &seq, "SELECT COALESCE(MAX(seq), 0) FROM event_seq WHERE shard = ?", shard)
	return seq, err
}
