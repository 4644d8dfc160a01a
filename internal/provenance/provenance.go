// Package provenance records every answer of the current-state resolver.
package provenance

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/atsora/pomamo-engine-sub026/internal/resolver"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS resolution_log (
	id               TEXT PRIMARY KEY,
	machine          INTEGER NOT NULL,
	period           TEXT NOT NULL,
	not_running_only INTEGER NOT NULL,
	origin           TEXT NOT NULL,
	mode_origin      TEXT NOT NULL,
	reason           INTEGER NOT NULL,
	machine_mode     INTEGER NOT NULL,
	date_time        TEXT,
	period_start     TEXT,
	state_json       TEXT NOT NULL,
	resolved_at      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS resolution_log_machine ON resolution_log (machine, resolved_at);
`
// #endregion schema

// timeLayout is fixed width so that stored times sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Log writes resolution entries to a SQLite database.
type Log struct {
	db  *sql.DB
	log zerolog.Logger
}

var _ resolver.Observer = (*Log)(nil)

// NewLog creates the resolution_log table when missing.
func NewLog(db *sql.DB, log zerolog.Logger) (*Log, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate resolution log: %w", err)
	}
	return &Log{db: db, log: log}, nil
}

// #region record
// Record writes e. An empty ID gets a fresh UUID and a zero ResolvedAt the
// current time.
func (l *Log) Record(ctx context.Context, e Entry) (string, error) {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.ResolvedAt.IsZero() {
		e.ResolvedAt = time.Now().UTC()
	}
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO resolution_log (id, machine, period, not_running_only, origin, mode_origin,
		 reason, machine_mode, date_time, period_start, state_json, resolved_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Machine, e.Period, e.NotRunningOnly, e.Origin, e.ModeOrigin,
		e.Reason, e.MachineMode, timeOrNull(e.DateTime), timeOrNull(e.PeriodStart),
		e.StateJSON, e.ResolvedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return "", fmt.Errorf("record resolution: %w", err)
	}
	return e.ID, nil
}
// #endregion record

// Resolved implements resolver.Observer. Failures are logged, never
// returned to the resolver.
func (l *Log) Resolved(ctx context.Context, q resolver.Query, s resolver.State) {
	e, err := EntryOf(q, s)
	if err == nil {
		_, err = l.Record(ctx, e)
	}
	if err != nil {
		l.log.Warn().Err(err).Int("machine", int(q.Machine)).Msg("resolution not logged")
	}
}

// EntryOf flattens a resolution into an entry.
func EntryOf(q resolver.Query, s resolver.State) (Entry, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return Entry{}, fmt.Errorf("marshal state: %w", err)
	}
	e := Entry{
		Machine:        int(q.Machine),
		Period:         q.Period.String(),
		NotRunningOnly: q.NotRunningOnly,
		Origin:         s.Origin.String(),
		ModeOrigin:     s.ModeOrigin.String(),
		Reason:         int(s.Reason),
		MachineMode:    int(s.MachineMode.ID),
		DateTime:       s.DateTime,
		StateJSON:      string(data),
		ResolvedAt:     s.CurrentDateTime,
	}
	if s.PeriodStart != nil {
		e.PeriodStart = *s.PeriodStart
	}
	return e, nil
}

// #region recent
// Recent returns the last entries of machine, most recent first.
func (l *Log) Recent(ctx context.Context, machine, limit int) ([]Entry, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, machine, period, not_running_only, origin, mode_origin, reason, machine_mode,
		 date_time, period_start, state_json, resolved_at
		 FROM resolution_log WHERE machine = ? ORDER BY resolved_at DESC LIMIT ?`, machine, limit)
	if err != nil {
		return nil, fmt.Errorf("query resolution log: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var dateTime, periodStart sql.NullString
		var resolvedAt string
		if err := rows.Scan(&e.ID, &e.Machine, &e.Period, &e.NotRunningOnly, &e.Origin, &e.ModeOrigin,
			&e.Reason, &e.MachineMode, &dateTime, &periodStart, &e.StateJSON, &resolvedAt); err != nil {
			return nil, fmt.Errorf("scan resolution: %w", err)
		}
		e.DateTime = parseTime(dateTime)
		e.PeriodStart = parseTime(periodStart)
		e.ResolvedAt, _ = time.Parse(timeLayout, resolvedAt)
		out = append(out, e)
	}
	return out, rows.Err()
}
// #endregion recent

// #region helpers
func timeOrNull(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s sql.NullString) time.Time {
	if !s.Valid {
		return time.Time{}
	}
	t, _ := time.Parse(timeLayout, s.String)
	return t
}
// #endregion helpers
