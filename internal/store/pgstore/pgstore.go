// Package pgstore keeps the timeline in PostgreSQL.
package pgstore

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/atsora/pomamo-engine-sub026/internal/resolver"
	"github.com/atsora/pomamo-engine-sub026/internal/store"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS reason_slots (
	id                 TEXT PRIMARY KEY,
	machine            BIGINT NOT NULL,
	lower_ns           BIGINT,
	upper_ns           BIGINT,
	day_lower          TEXT,
	day_upper          TEXT,
	reason             BIGINT NOT NULL,
	color              TEXT NOT NULL DEFAULT '',
	mode_id            BIGINT NOT NULL DEFAULT 0,
	mode_category      BIGINT NOT NULL DEFAULT 0,
	mode_running       BIGINT NOT NULL DEFAULT 0,
	observation        BIGINT NOT NULL DEFAULT 0,
	score              DOUBLE PRECISION NOT NULL DEFAULT 0,
	source             BIGINT NOT NULL DEFAULT 0,
	auto_count         BIGINT NOT NULL DEFAULT 0,
	overwrite_required BIGINT NOT NULL DEFAULT 0,
	details            TEXT NOT NULL DEFAULT '',
	default_reason     BIGINT NOT NULL DEFAULT 0,
	json_data          TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS reason_slots_machine_lower ON reason_slots (machine, lower_ns);
CREATE INDEX IF NOT EXISTS reason_slots_machine_upper ON reason_slots (machine, upper_ns);

CREATE TABLE IF NOT EXISTS machine_status (
	machine            BIGINT PRIMARY KEY,
	reason             BIGINT NOT NULL,
	mode_id            BIGINT NOT NULL DEFAULT 0,
	mode_category      BIGINT NOT NULL DEFAULT 0,
	mode_running       BIGINT NOT NULL DEFAULT 0,
	reason_slot_end_ns BIGINT NOT NULL,
	score              DOUBLE PRECISION NOT NULL DEFAULT 0,
	source             BIGINT NOT NULL DEFAULT 0,
	auto_count         BIGINT NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS current_machine_mode (
	machine       BIGINT PRIMARY KEY,
	mode_id       BIGINT NOT NULL,
	mode_category BIGINT NOT NULL DEFAULT 0,
	mode_running  BIGINT NOT NULL DEFAULT 0,
	date_time_ns  BIGINT NOT NULL,
	change_ns     BIGINT
);

CREATE TABLE IF NOT EXISTS facts (
	id            TEXT PRIMARY KEY,
	machine       BIGINT NOT NULL,
	lower_ns      BIGINT,
	upper_ns      BIGINT,
	mode_id       BIGINT NOT NULL,
	mode_category BIGINT NOT NULL DEFAULT 0,
	mode_running  BIGINT NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS facts_machine_upper ON facts (machine, upper_ns);

CREATE TABLE IF NOT EXISTS observation_state_slots (
	id       TEXT PRIMARY KEY,
	machine  BIGINT NOT NULL,
	lower_ns BIGINT,
	upper_ns BIGINT,
	state    BIGINT NOT NULL
);
`
// #endregion schema

// Store is the PostgreSQL backend. Snapshots are repeatable-read read-only
// transactions.
type Store struct {
	store.Queries
	pool *pgxpool.Pool
}

var _ store.Backend = (*Store)(nil)

// Open connects to dsn and runs migrations.
func Open(ctx context.Context, dsn string, log zerolog.Logger) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("pgstore: failed to parse connection string: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("pgstore: failed to initialize pool: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgstore: migrate: %w", err)
	}
	log.Info().
		Str("host", cfg.ConnConfig.Host).
		Int32("max_conns", cfg.MaxConns).
		Msg("connected to postgres")
	return &Store{Queries: store.NewQueries(pgQuerier{pool}), pool: pool}, nil
}

// Close releases the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// ReadOnly runs fn inside one repeatable-read transaction, so every read
// sees the same snapshot.
func (s *Store) ReadOnly(ctx context.Context, label string, fn func(resolver.Reader) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return fmt.Errorf("begin %s: %w", label, err)
	}
	defer tx.Rollback(ctx)

	if err := fn(store.NewQueries(pgQuerier{tx})); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit %s: %w", label, err)
	}
	return nil
}

// Load writes ds in one transaction.
func (s *Store) Load(ctx context.Context, ds store.Dataset) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin load: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := store.NewQueries(pgQuerier{tx}).Load(ctx, ds); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// #region querier
type pgConn interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type pgQuerier struct {
	conn pgConn
}

func (q pgQuerier) Query(ctx context.Context, query string, args []any, row func(store.Scanner) error) error {
	rows, err := q.conn.Query(ctx, rebind(query), args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		if err := row(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (q pgQuerier) Exec(ctx context.Context, query string, args ...any) error {
	_, err := q.conn.Exec(ctx, rebind(query), args...)
	return err
}

// rebind turns ? placeholders into $n.
func rebind(query string) string {
	var sb strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}
// #endregion querier
