// Package persistence provides SQLite-based world state and event storage.
package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/pantheon/internal/world"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("not found")

// DB wraps a SQLite connection for world state persistence.
type DB struct {
	conn *sqlx.DB

	Factions    *Repo[world.Faction]
	Territories *Repo[world.Territory]
	Sieges      *Repo[world.Siege]
	Relations   *Repo[world.Relation]
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// SQLite allows one writer; a single connection serializes everything.
	conn.SetMaxOpenConns(1)

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	db.Factions = &Repo[world.Faction]{db: db, table: "factions", key: func(f *world.Faction) string { return f.ID }}
	db.Territories = &Repo[world.Territory]{db: db, table: "territories", key: func(t *world.Territory) string { return t.ID }}
	db.Sieges = &Repo[world.Siege]{db: db, table: "sieges", key: func(s *world.Siege) string { return s.ID }}
	db.Relations = &Repo[world.Relation]{db: db, table: "relations", key: (*world.Relation).Key}
	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS factions (
		shard TEXT NOT NULL,
		id TEXT NOT NULL,
		tick INTEGER NOT NULL,
		data TEXT NOT NULL,
		PRIMARY KEY (shard, id)
	);

	CREATE TABLE IF NOT EXISTS territories (
		shard TEXT NOT NULL,
		id TEXT NOT NULL,
		tick INTEGER NOT NULL,
		data TEXT NOT NULL,
		PRIMARY KEY (shard, id)
	);

	CREATE TABLE IF NOT EXISTS sieges (
		shard TEXT NOT NULL,
		id TEXT NOT NULL,
		tick INTEGER NOT NULL,
		data TEXT NOT NULL,
		PRIMARY KEY (shard, id)
	);

	CREATE TABLE IF NOT EXISTS relations (
		shard TEXT NOT NULL,
		id TEXT NOT NULL,
		tick INTEGER NOT NULL,
		data TEXT NOT NULL,
		PRIMARY KEY (shard, id)
	);

	CREATE TABLE IF NOT EXISTS events (
		id TEXT PRIMARY KEY,
		shard TEXT NOT NULL,
		tick INTEGER NOT NULL,
		seq INTEGER NOT NULL,
		type TEXT NOT NULL,
		subject TEXT NOT NULL,
		target TEXT NOT NULL,
		payload BLOB NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS event_batches (
		id TEXT PRIMARY KEY,
		shard TEXT NOT NULL,
		from_tick INTEGER NOT NULL,
		to_tick INTEGER NOT NULL,
		event_count INTEGER NOT NULL,
		data BLOB NOT NULL,
		uncompressed_size INTEGER NOT NULL,
		compressed_size INTEGER NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS event_seq (
		shard TEXT PRIMARY KEY,
		seq INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS world_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_events_shard_tick ON events(shard, tick, seq);
	CREATE INDEX IF NOT EXISTS idx_batches_shard_range ON event_batches(shard, from_tick, to_tick);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// SaveMeta stores a key-value pair in world metadata.
func (db *DB) SaveMeta(ctx context.Context, key, value string) error {
	return saveMeta(ctx, db.conn, key, value)
}

func saveMeta(ctx context.Context, ex sqlx.ExecerContext, key, value string) error {
	_, err := ex.ExecContext(ctx,
		"INSERT OR REPLACE INTO world_meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta retrieves a metadata value.
func (db *DB) GetMeta(ctx context.Context, key string) (string, error) {
	var value string
	err := db.conn.GetContext(ctx, &value, "SELECT value FROM world_meta WHERE key = ?", key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return value, err
}

func tickKey(shard string) string   { return shard + "/last_tick" }
func radiusKey(shard string) string { return shard + "/radius" }

// SaveState writes a full snapshot of st in one transaction. Rows the
// snapshot no longer contains are pruned; rows written by a newer snapshot
// are left alone.
func (db *DB) SaveState(ctx context.Context, st *world.State) error {
	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := db.Factions.replace(ctx, tx, st.Shard, st.Tick, values(st.Factions)); err != nil {
		return fmt.Errorf("save factions: %w", err)
	}
	if err := db.Territories.replace(ctx, tx, st.Shard, st.Tick, values(st.Territories)); err != nil {
		return fmt.Errorf("save territories: %w", err)
	}
	if err := db.Sieges.replace(ctx, tx, st.Shard, st.Tick, values(st.Sieges)); err != nil {
		return fmt.Errorf("save sieges: %w", err)
	}
	if err := db.Relations.replace(ctx, tx, st.Shard, st.Tick, values(st.Relations)); err != nil {
		return fmt.Errorf("save relations: %w", err)
	}
	if err := saveMeta(ctx, tx, tickKey(st.Shard), strconv.FormatUint(st.Tick, 10)); err != nil {
		return fmt.Errorf("save meta: %w", err)
	}
	if err := saveMeta(ctx, tx, radiusKey(st.Shard), strconv.Itoa(st.Radius)); err != nil {
		return fmt.Errorf("save meta: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	slog.Debug("world state saved", "shard", st.Shard, "tick", st.Tick,
		"factions", len(st.Factions), "territories", len(st.Territories))
	return nil
}

// LoadState reads the latest snapshot of shard. Returns ErrNotFound when the
// shard was never saved.
func (db *DB) LoadState(ctx context.Context, shard string) (*world.State, error) {
	raw, err := db.GetMeta(ctx, tickKey(shard))
	if err != nil {
		return nil, err
	}
	tick, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse last tick %q: %w", raw, err)
	}
	st := world.NewState(shard)
	st.Tick = tick
	if raw, err := db.GetMeta(ctx, radiusKey(shard)); err == nil {
		st.Radius, _ = strconv.Atoi(raw)
	}

	factions, err := db.Factions.ListByShard(ctx, shard)
	if err != nil {
		return nil, fmt.Errorf("load factions: %w", err)
	}
	for _, f := range factions {
		if f.Territories == nil {
			f.Territories = []string{}
		}
		st.Factions[f.ID] = f
	}
	territories, err := db.Territories.ListByShard(ctx, shard)
	if err != nil {
		return nil, fmt.Errorf("load territories: %w", err)
	}
	for _, t := range territories {
		st.Territories[t.ID] = t
	}
	sieges, err := db.Sieges.ListByShard(ctx, shard)
	if err != nil {
		return nil, fmt.Errorf("load sieges: %w", err)
	}
	for _, s := range sieges {
		st.Sieges[s.ID] = s
	}
	relations, err := db.Relations.ListByShard(ctx, shard)
	if err != nil {
		return nil, fmt.Errorf("load relations: %w", err)
	}
	for _, r := range relations {
		st.Relations[r.Key()] = r
	}
	return st, nil
}

func values[T any](m map[string]*T) []*T {
	out := make([]*T, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	return out
}
