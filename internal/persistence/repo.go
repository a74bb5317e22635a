package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Repo stores one entity type as JSON documents keyed by (shard, id).
// A row's tick only moves forward: writes carrying an older tick than the
// stored row are ignored.
type Repo[T any] struct {
	db    *DB
	table string
	key   func(*T) string
}

type docRow struct {
	Shard string `db:"shard"`
	ID    string `db:"id"`
	Tick  uint64 `db:"tick"`
	Data  string `db:"data"`
}

func (r *Repo[T]) decode(row docRow) (*T, error) {
	v := new(T)
	if err := json.Unmarshal([]byte(row.Data), v); err != nil {
		return nil, fmt.Errorf("decode %s %s: %w", r.table, row.ID, err)
	}
	return v, nil
}

// Get returns one entity, or ErrNotFound.
func (r *Repo[T]) Get(ctx context.Context, shard, id string) (*T, error) {
	var row docRow
	err := r.db.conn.GetContext(ctx, &row,
		"SELECT shard, id, tick, data FROM "+r.table+" WHERE shard = ? AND id = ?", shard, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s %s: %w", r.table, id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return r.decode(row)
}

// ListByShard returns every entity of shard ordered by id.
func (r *Repo[T]) ListByShard(ctx context.Context, shard string) ([]*T, error) {
	var rows []docRow
	if err := r.db.conn.SelectContext(ctx, &rows,
		"SELECT shard, id, tick, data FROM "+r.table+" WHERE shard = ? ORDER BY id", shard); err != nil {
		return nil, err
	}
	out := make([]*T, 0, len(rows))
	for _, row := range rows {
		v, err := r.decode(row)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// Upsert writes one entity as of tick.
func (r *Repo[T]) Upsert(ctx context.Context, shard string, tick uint64, v *T) error {
	return r.UpsertBatch(ctx, shard, tick, []*T{v})
}

// UpsertBatch writes entities as of tick in one transaction.
func (r *Repo[T]) UpsertBatch(ctx context.Context, shard string, tick uint64, items []*T) error {
	tx, err := r.db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := r.upsert(ctx, tx, shard, tick, items); err != nil {
		return err
	}
	return tx.Commit()
}

// Delete removes one entity.
func (r *Repo[T]) Delete(ctx context.Context, shard, id string) error {
	_, err := r.db.conn.ExecContext(ctx, "DELETE FROM "+r.table+" WHERE shard = ? AND id = ?", shard, id)
	return err
}

func (r *Repo[T]) upsert(ctx context.Context, tx *sqlx.Tx, shard string, tick uint64, items []*T) error {
	if len(items) == 0 {
		return nil
	}
	stmt, err := tx.PrepareNamedContext(ctx, `INSERT INTO `+r.table+` (shard, id, tick, data)
		VALUES (:shard, :id, :tick, :data)
		ON CONFLICT (shard, id) DO UPDATE SET tick = excluded.tick, data = excluded.data
		WHERE excluded.tick >= `+r.table+`.tick`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, v := range items {
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", r.table, r.key(v), err)
		}
		row := docRow{Shard: shard, ID: r.key(v), Tick: tick, Data: string(data)}
		if _, err := stmt.ExecContext(ctx, row); err != nil {
			return fmt.Errorf("upsert %s %s: %w", r.table, row.ID, err)
		}
	}
	return nil
}

// replace upserts items and prunes rows older than tick, so the table
// mirrors exactly the snapshot taken at tick.
func (r *Repo[T]) replace(ctx context.Context, tx *sqlx.Tx, shard string, tick uint64, items []*T) error {
	if err := r.upsert(ctx, tx, shard, tick, items); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, "DELETE FROM "+r.table+" WHERE shard = ? AND tick < ?", shard, tick)
	return err
}
