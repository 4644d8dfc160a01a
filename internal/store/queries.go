package store

// #region imports
import (
	"context"
	"database/sql"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/atsora/pomamo-engine-sub026/internal/model"
	"github.com/atsora/pomamo-engine-sub026/internal/timerange"
)

// #endregion

// #region querier

// Scanner reads the columns of one row.
type Scanner interface {
	Scan(dest ...any) error
}

// Querier is the part of a SQL connection or transaction Queries needs.
// Statements use ? placeholders.
type Querier interface {
	Query(ctx context.Context, query string, args []any, row func(Scanner) error) error
	Exec(ctx context.Context, query string, args ...any) error
}

// Queries implements the reads and writes of every backend on top of a
// Querier.
type Queries struct {
	q Querier
}

// NewQueries wraps q.
func NewQueries(q Querier) Queries {
	return Queries{q: q}
}

// #endregion

// #region encoding

const dayLayout = "2006-01-02"

func nanos(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UnixNano()
}

func fromNanos(n sql.NullInt64) time.Time {
	if !n.Valid {
		return time.Time{}
	}
	return time.Unix(0, n.Int64).UTC()
}

func day(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.Format(dayLayout)
}

func fromDay(s sql.NullString) time.Time {
	if !s.Valid {
		return time.Time{}
	}
	t, _ := time.Parse(dayLayout, s.String)
	return t
}

func flag(b bool) int {
	if b {
		return 1
	}
	return 0
}

// overlapClause restricts [lower_col, upper_col) to r.
func overlapClause(r timerange.Range, args []any) (string, []any) {
	var sb strings.Builder
	if r.HasLower() {
		sb.WriteString(" AND (upper_ns IS NULL OR upper_ns > ?)")
		args = append(args, r.Lower.UnixNano())
	}
	if r.HasUpper() {
		sb.WriteString(" AND (lower_ns IS NULL OR lower_ns < ?)")
		args = append(args, r.Upper.UnixNano())
	}
	return sb.String(), args
}

// #endregion

// #region reason-slots

const slotColumns = `machine, lower_ns, upper_ns, day_lower, day_upper, reason, color,
	mode_id, mode_category, mode_running, observation, score, source, auto_count,
	overwrite_required, details, default_reason, json_data`

func scanSlot(sc Scanner) (model.ReasonSlot, error) {
	var (
		s                                model.ReasonSlot
		machine, reason, modeID, modeCat int64
		running, obs, source, auto       int64
		overwrite, defaultReason         int64
		lower, upper                     sql.NullInt64
		dayLower, dayUpper               sql.NullString
	)
	err := sc.Scan(&machine, &lower, &upper, &dayLower, &dayUpper, &reason, &s.Color,
		&modeID, &modeCat, &running, &obs, &s.ReasonScore, &source, &auto,
		&overwrite, &s.Details, &defaultReason, &s.JSONData)
	if err != nil {
		return model.ReasonSlot{}, fmt.Errorf("scan reason slot: %w", err)
	}
	s.Machine = model.MachineID(machine)
	s.Range = timerange.Range{Lower: fromNanos(lower), Upper: fromNanos(upper)}
	s.DayRange = timerange.DayRange{Lower: fromDay(dayLower), Upper: fromDay(dayUpper)}
	s.Reason = model.ReasonID(reason)
	s.MachineMode = model.MachineMode{ID: model.MachineModeID(modeID), Category: model.MachineModeCategoryID(modeCat), Running: model.Running(running)}
	s.ObservationState = model.ObservationStateID(obs)
	s.ReasonSource = model.ReasonSource(source)
	s.AutoReasonCount = int(auto)
	s.OverwriteRequired = overwrite != 0
	s.DefaultReason = defaultReason != 0
	return s, nil
}

func (q Queries) slots(ctx context.Context, query string, args ...any) ([]model.ReasonSlot, error) {
	var out []model.ReasonSlot
	err := q.q.Query(ctx, query, args, func(sc Scanner) error {
		s, err := scanSlot(sc)
		if err != nil {
			return err
		}
		out = append(out, s)
		return nil
	})
	return out, err
}

func (q Queries) slot(ctx context.Context, query string, args ...any) (*model.ReasonSlot, error) {
	out, err := q.slots(ctx, query, args...)
	if err != nil || len(out) == 0 {
		return nil, err
	}
	return &out[0], nil
}

// FindAt returns the slot covering at.
func (q Queries) FindAt(ctx context.Context, machine model.MachineID, at time.Time) (*model.ReasonSlot, error) {
	s, err := q.slot(ctx, `SELECT `+slotColumns+` FROM reason_slots
		WHERE machine = ? AND (lower_ns IS NULL OR lower_ns <= ?) AND (upper_ns IS NULL OR upper_ns > ?)
		LIMIT 1`, int64(machine), at.UnixNano(), at.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("find slot at %s: %w", at, err)
	}
	return s, nil
}

// FindWithEnd returns the slot ending at end.
func (q Queries) FindWithEnd(ctx context.Context, machine model.MachineID, end time.Time) (*model.ReasonSlot, error) {
	s, err := q.slot(ctx, `SELECT `+slotColumns+` FROM reason_slots
		WHERE machine = ? AND upper_ns = ?
		ORDER BY lower_ns DESC NULLS LAST LIMIT 1`, int64(machine), end.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("find slot ending at %s: %w", end, err)
	}
	return s, nil
}

// FindOverlapsRange returns the slots overlapping r in ascending order.
func (q Queries) FindOverlapsRange(ctx context.Context, machine model.MachineID, r timerange.Range) ([]model.ReasonSlot, error) {
	clause, args := overlapClause(r, []any{int64(machine)})
	out, err := q.slots(ctx, `SELECT `+slotColumns+` FROM reason_slots
		WHERE machine = ?`+clause+` ORDER BY lower_ns ASC NULLS FIRST`, args...)
	if err != nil {
		return nil, fmt.Errorf("find slots in %s: %w", r, err)
	}
	return out, nil
}

// FindOverlapsRangeDescending scans the slots overlapping r from the most
// recent one, step by step.
func (q Queries) FindOverlapsRangeDescending(ctx context.Context, machine model.MachineID, r timerange.Range, step time.Duration) iter.Seq2[model.ReasonSlot, error] {
	return Descending(ctx, r, step, func(ctx context.Context, chunk timerange.Range) ([]model.ReasonSlot, error) {
		return q.FindOverlapsRange(ctx, machine, chunk)
	}, func(s model.ReasonSlot) timerange.Range { return s.Range })
}

// #endregion

// #region current-sources

// MachineStatus returns the status snapshot of machine.
func (q Queries) MachineStatus(ctx context.Context, machine model.MachineID) (*model.MachineStatus, error) {
	var out *model.MachineStatus
	err := q.q.Query(ctx, `SELECT machine, reason, mode_id, mode_category, mode_running,
		reason_slot_end_ns, score, source, auto_count
		FROM machine_status WHERE machine = ?`, []any{int64(machine)}, func(sc Scanner) error {
		var (
			st                              model.MachineStatus
			m, reason, modeID, modeCat      int64
			running, end, source, autoCount int64
		)
		if err := sc.Scan(&m, &reason, &modeID, &modeCat, &running, &end, &st.ReasonScore, &source, &autoCount); err != nil {
			return fmt.Errorf("scan machine status: %w", err)
		}
		st.Machine = model.MachineID(m)
		st.Reason = model.ReasonID(reason)
		st.MachineMode = model.MachineMode{ID: model.MachineModeID(modeID), Category: model.MachineModeCategoryID(modeCat), Running: model.Running(running)}
		st.ReasonSlotEnd = time.Unix(0, end).UTC()
		st.ReasonSource = model.ReasonSource(source)
		st.AutoReasonCount = int(autoCount)
		out = &st
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("get machine status %d: %w", machine, err)
	}
	return out, nil
}

// CurrentMachineMode returns the live machine-mode pointer of machine.
func (q Queries) CurrentMachineMode(ctx context.Context, machine model.MachineID) (*model.CurrentMachineMode, error) {
	var out *model.CurrentMachineMode
	err := q.q.Query(ctx, `SELECT machine, mode_id, mode_category, mode_running, date_time_ns, change_ns
		FROM current_machine_mode WHERE machine = ?`, []any{int64(machine)}, func(sc Scanner) error {
		var (
			c                               model.CurrentMachineMode
			m, modeID, modeCat, running, dt int64
			change                          sql.NullInt64
		)
		if err := sc.Scan(&m, &modeID, &modeCat, &running, &dt, &change); err != nil {
			return fmt.Errorf("scan current machine mode: %w", err)
		}
		c.Machine = model.MachineID(m)
		c.MachineMode = model.MachineMode{ID: model.MachineModeID(modeID), Category: model.MachineModeCategoryID(modeCat), Running: model.Running(running)}
		c.DateTime = time.Unix(0, dt).UTC()
		c.Change = fromNanos(change)
		out = &c
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("get current machine mode %d: %w", machine, err)
	}
	return out, nil
}

func scanFact(sc Scanner) (model.Fact, error) {
	var (
		f                           model.Fact
		m, modeID, modeCat, running int64
		lower, upper                sql.NullInt64
	)
	if err := sc.Scan(&m, &lower, &upper, &modeID, &modeCat, &running); err != nil {
		return model.Fact{}, fmt.Errorf("scan fact: %w", err)
	}
	f.Machine = model.MachineID(m)
	f.Range = timerange.Range{Lower: fromNanos(lower), Upper: fromNanos(upper)}
	f.MachineMode = model.MachineMode{ID: model.MachineModeID(modeID), Category: model.MachineModeCategoryID(modeCat), Running: model.Running(running)}
	return f, nil
}

const factColumns = `machine, lower_ns, upper_ns, mode_id, mode_category, mode_running`

func (q Queries) facts(ctx context.Context, query string, args ...any) ([]model.Fact, error) {
	var out []model.Fact
	err := q.q.Query(ctx, query, args, func(sc Scanner) error {
		f, err := scanFact(sc)
		if err != nil {
			return err
		}
		out = append(out, f)
		return nil
	})
	return out, err
}

// LastFact returns the most recent fact of machine.
func (q Queries) LastFact(ctx context.Context, machine model.MachineID) (*model.Fact, error) {
	out, err := q.facts(ctx, `SELECT `+factColumns+` FROM facts WHERE machine = ?
		ORDER BY upper_ns DESC NULLS LAST LIMIT 1`, int64(machine))
	if err != nil {
		return nil, fmt.Errorf("get last fact %d: %w", machine, err)
	}
	if len(out) == 0 {
		return nil, nil
	}
	return &out[0], nil
}

// FindFactsOverlapsRange returns the facts overlapping r in ascending order.
func (q Queries) FindFactsOverlapsRange(ctx context.Context, machine model.MachineID, r timerange.Range) ([]model.Fact, error) {
	clause, args := overlapClause(r, []any{int64(machine)})
	out, err := q.facts(ctx, `SELECT `+factColumns+` FROM facts
		WHERE machine = ?`+clause+` ORDER BY lower_ns ASC NULLS FIRST`, args...)
	if err != nil {
		return nil, fmt.Errorf("find facts in %s: %w", r, err)
	}
	return out, nil
}

// FindFactsDescending scans the facts overlapping r from the most recent one.
func (q Queries) FindFactsDescending(ctx context.Context, machine model.MachineID, r timerange.Range, step time.Duration) iter.Seq2[model.Fact, error] {
	return Descending(ctx, r, step, func(ctx context.Context, chunk timerange.Range) ([]model.Fact, error) {
		return q.FindFactsOverlapsRange(ctx, machine, chunk)
	}, func(f model.Fact) timerange.Range { return f.Range })
}

// ObservationStateAt returns the observation state slot covering at.
func (q Queries) ObservationStateAt(ctx context.Context, machine model.MachineID, at time.Time) (*model.ObservationStateSlot, error) {
	var out *model.ObservationStateSlot
	err := q.q.Query(ctx, `SELECT machine, lower_ns, upper_ns, state FROM observation_state_slots
		WHERE machine = ? AND (lower_ns IS NULL OR lower_ns <= ?) AND (upper_ns IS NULL OR upper_ns > ?)
		LIMIT 1`, []any{int64(machine), at.UnixNano(), at.UnixNano()}, func(sc Scanner) error {
		var (
			o            model.ObservationStateSlot
			m, state     int64
			lower, upper sql.NullInt64
		)
		if err := sc.Scan(&m, &lower, &upper, &state); err != nil {
			return fmt.Errorf("scan observation state: %w", err)
		}
		o.Machine = model.MachineID(m)
		o.Range = timerange.Range{Lower: fromNanos(lower), Upper: fromNanos(upper)}
		o.State = model.ObservationStateID(state)
		out = &o
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("get observation state at %s: %w", at, err)
	}
	return out, nil
}

// #endregion

// #region dataset

// Machines lists the machines that have reason slots or a status.
func (q Queries) Machines(ctx context.Context) ([]model.MachineID, error) {
	var out []model.MachineID
	err := q.q.Query(ctx, `SELECT machine FROM reason_slots UNION SELECT machine FROM machine_status
		ORDER BY machine`, nil, func(sc Scanner) error {
		var m int64
		if err := sc.Scan(&m); err != nil {
			return err
		}
		out = append(out, model.MachineID(m))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list machines: %w", err)
	}
	return out, nil
}

// Dataset reads every record of machine.
func (q Queries) Dataset(ctx context.Context, machine model.MachineID) (Dataset, error) {
	var ds Dataset
	var err error
	if ds.Slots, err = q.FindOverlapsRange(ctx, machine, timerange.Unbounded()); err != nil {
		return Dataset{}, err
	}
	if ds.Facts, err = q.FindFactsOverlapsRange(ctx, machine, timerange.Unbounded()); err != nil {
		return Dataset{}, err
	}
	err = q.q.Query(ctx, `SELECT machine, lower_ns, upper_ns, state FROM observation_state_slots
		WHERE machine = ? ORDER BY lower_ns ASC NULLS FIRST`, []any{int64(machine)}, func(sc Scanner) error {
		var (
			o            model.ObservationStateSlot
			m, state     int64
			lower, upper sql.NullInt64
		)
		if err := sc.Scan(&m, &lower, &upper, &state); err != nil {
			return fmt.Errorf("scan observation state: %w", err)
		}
		o.Machine = model.MachineID(m)
		o.Range = timerange.Range{Lower: fromNanos(lower), Upper: fromNanos(upper)}
		o.State = model.ObservationStateID(state)
		ds.Observations = append(ds.Observations, o)
		return nil
	})
	if err != nil {
		return Dataset{}, fmt.Errorf("list observation states: %w", err)
	}
	st, err := q.MachineStatus(ctx, machine)
	if err != nil {
		return Dataset{}, err
	}
	if st != nil {
		ds.Statuses = append(ds.Statuses, *st)
	}
	ptr, err := q.CurrentMachineMode(ctx, machine)
	if err != nil {
		return Dataset{}, err
	}
	if ptr != nil {
		ds.Pointers = append(ds.Pointers, *ptr)
	}
	return ds, nil
}

// Load writes every record of ds. Status and pointer rows replace the
// existing ones of their machine.
func (q Queries) Load(ctx context.Context, ds Dataset) error {
	for _, s := range ds.Slots {
		err := q.q.Exec(ctx, `INSERT INTO reason_slots (id, `+slotColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			uuid.New().String(), int64(s.Machine), nanos(s.Range.Lower), nanos(s.Range.Upper),
			day(s.DayRange.Lower), day(s.DayRange.Upper), int64(s.Reason), s.Color,
			int64(s.MachineMode.ID), int64(s.MachineMode.Category), int64(s.MachineMode.Running),
			int64(s.ObservationState), s.ReasonScore, int64(s.ReasonSource), int64(s.AutoReasonCount),
			flag(s.OverwriteRequired), s.Details, flag(s.DefaultReason), s.JSONData)
		if err != nil {
			return fmt.Errorf("insert slot %s: %w", s, err)
		}
	}
	for _, st := range ds.Statuses {
		err := q.q.Exec(ctx, `INSERT INTO machine_status (machine, reason, mode_id, mode_category, mode_running,
			reason_slot_end_ns, score, source, auto_count) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (machine) DO UPDATE SET reason = excluded.reason, mode_id = excluded.mode_id,
			mode_category = excluded.mode_category, mode_running = excluded.mode_running,
			reason_slot_end_ns = excluded.reason_slot_end_ns, score = excluded.score,
			source = excluded.source, auto_count = excluded.auto_count`,
			int64(st.Machine), int64(st.Reason), int64(st.MachineMode.ID), int64(st.MachineMode.Category),
			int64(st.MachineMode.Running), st.ReasonSlotEnd.UnixNano(), st.ReasonScore,
			int64(st.ReasonSource), int64(st.AutoReasonCount))
		if err != nil {
			return fmt.Errorf("upsert machine status %d: %w", st.Machine, err)
		}
	}
	for _, c := range ds.Pointers {
		err := q.q.Exec(ctx, `INSERT INTO current_machine_mode (machine, mode_id, mode_category, mode_running,
			date_time_ns, change_ns) VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (machine) DO UPDATE SET mode_id = excluded.mode_id,
			mode_category = excluded.mode_category, mode_running = excluded.mode_running,
			date_time_ns = excluded.date_time_ns, change_ns = excluded.change_ns`,
			int64(c.Machine), int64(c.MachineMode.ID), int64(c.MachineMode.Category),
			int64(c.MachineMode.Running), c.DateTime.UnixNano(), nanos(c.Change))
		if err != nil {
			return fmt.Errorf("upsert current machine mode %d: %w", c.Machine, err)
		}
	}
	for _, f := range ds.Facts {
		err := q.q.Exec(ctx, `INSERT INTO facts (id, `+factColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			uuid.New().String(), int64(f.Machine), nanos(f.Range.Lower), nanos(f.Range.Upper),
			int64(f.MachineMode.ID), int64(f.MachineMode.Category), int64(f.MachineMode.Running))
		if err != nil {
			return fmt.Errorf("insert fact: %w", err)
		}
	}
	for _, o := range ds.Observations {
		err := q.q.Exec(ctx, `INSERT INTO observation_state_slots (id, machine, lower_ns, upper_ns, state)
			VALUES (?, ?, ?, ?, ?)`,
			uuid.New().String(), int64(o.Machine), nanos(o.Range.Lower), nanos(o.Range.Upper), int64(o.State))
		if err != nil {
			return fmt.Errorf("insert observation state: %w", err)
		}
	}
	return nil
}

// #endregion
