package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/atsora/pomamo-engine-sub026/internal/resolver"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS reason_slots (
	id                 TEXT PRIMARY KEY,
	machine            INTEGER NOT NULL,
	lower_ns           INTEGER,
	upper_ns           INTEGER,
	day_lower          TEXT,
	day_upper          TEXT,
	reason             INTEGER NOT NULL,
	color              TEXT NOT NULL DEFAULT '',
	mode_id            INTEGER NOT NULL DEFAULT 0,
	mode_category      INTEGER NOT NULL DEFAULT 0,
	mode_running       INTEGER NOT NULL DEFAULT 0,
	observation        INTEGER NOT NULL DEFAULT 0,
	score              REAL NOT NULL DEFAULT 0,
	source             INTEGER NOT NULL DEFAULT 0,
	auto_count         INTEGER NOT NULL DEFAULT 0,
	overwrite_required INTEGER NOT NULL DEFAULT 0,
	details            TEXT NOT NULL DEFAULT '',
	default_reason     INTEGER NOT NULL DEFAULT 0,
	json_data          TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS reason_slots_machine_lower ON reason_slots (machine, lower_ns);
CREATE INDEX IF NOT EXISTS reason_slots_machine_upper ON reason_slots (machine, upper_ns);

CREATE TABLE IF NOT EXISTS machine_status (
	machine            INTEGER PRIMARY KEY,
	reason             INTEGER NOT NULL,
	mode_id            INTEGER NOT NULL DEFAULT 0,
	mode_category      INTEGER NOT NULL DEFAULT 0,
	mode_running       INTEGER NOT NULL DEFAULT 0,
	reason_slot_end_ns INTEGER NOT NULL,
	score              REAL NOT NULL DEFAULT 0,
	source             INTEGER NOT NULL DEFAULT 0,
	auto_count         INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS current_machine_mode (
	machine       INTEGER PRIMARY KEY,
	mode_id       INTEGER NOT NULL,
	mode_category INTEGER NOT NULL DEFAULT 0,
	mode_running  INTEGER NOT NULL DEFAULT 0,
	date_time_ns  INTEGER NOT NULL,
	change_ns     INTEGER
);

CREATE TABLE IF NOT EXISTS facts (
	id            TEXT PRIMARY KEY,
	machine       INTEGER NOT NULL,
	lower_ns      INTEGER,
	upper_ns      INTEGER,
	mode_id       INTEGER NOT NULL,
	mode_category INTEGER NOT NULL DEFAULT 0,
	mode_running  INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS facts_machine_upper ON facts (machine, upper_ns);

CREATE TABLE IF NOT EXISTS observation_state_slots (
	id       TEXT PRIMARY KEY,
	machine  INTEGER NOT NULL,
	lower_ns INTEGER,
	upper_ns INTEGER,
	state    INTEGER NOT NULL
);
`
// #endregion schema

// #region store-struct
// Store keeps the timeline in SQLite. Its embedded Queries run outside any
// transaction; ReadOnly runs a group of them on one snapshot.
type Store struct {
	Queries
	db *sql.DB
}
// #endregion store-struct

// #region constructor
// NewStore opens a SQLite database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		return nil, fmt.Errorf("pragma busy timeout: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{Queries: NewQueries(sqlQuerier{db}), db: db}, nil
}
// #endregion constructor

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for use by other packages (e.g. provenance).
func (s *Store) DB() *sql.DB {
	return s.db
}

// #region read-only
// ReadOnly runs fn inside one read-only transaction. In WAL mode every read
// of the transaction sees the snapshot taken by its first read, and
// query_only rejects writes for its duration.
func (s *Store) ReadOnly(ctx context.Context, label string, fn func(resolver.Reader) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return fmt.Errorf("begin %s: %w", label, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "PRAGMA query_only = ON"); err != nil {
		return fmt.Errorf("query only %s: %w", label, err)
	}
	fnErr := fn(NewQueries(sqlQuerier{tx}))
	// the pragma outlives the transaction on the pooled connection
	if _, err := tx.ExecContext(context.WithoutCancel(ctx), "PRAGMA query_only = OFF"); err != nil {
		return fmt.Errorf("reset query only %s: %w", label, err)
	}
	if fnErr != nil {
		return fnErr
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit %s: %w", label, err)
	}
	return nil
}

// #endregion read-only

// Load writes ds in one transaction.
func (s *Store) Load(ctx context.Context, ds Dataset) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin load: %w", err)
	}
	defer tx.Rollback()

	if err := NewQueries(sqlQuerier{tx}).Load(ctx, ds); err != nil {
		return err
	}
	return tx.Commit()
}

// #region querier
type sqlConn interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type sqlQuerier struct {
	conn sqlConn
}

func (q sqlQuerier) Query(ctx context.Context, query string, args []any, row func(Scanner) error) error {
	rows, err := q.conn.QueryContext(ctx, query, args...)
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

func (q sqlQuerier) Exec(ctx context.Context, query string, args ...any) error {
	_, err := q.conn.ExecContext(ctx, query, args...)
	return err
}
// #endregion querier
