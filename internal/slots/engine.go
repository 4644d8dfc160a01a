package slots

// #region imports
import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/atsora/pomamo-engine-sub026/internal/config"
	"github.com/atsora/pomamo-engine-sub026/internal/metrics"
	"github.com/atsora/pomamo-engine-sub026/internal/model"
	"github.com/atsora/pomamo-engine-sub026/internal/timerange"
)

// #endregion

// #region options

const (
	FetchMarginKey      = "Business.Reason.Slots.FetchMargin"
	ProcessingMaxAgeKey = "Business.Reason.Slots.ProcessingMaxAge"

	DefaultFetchMargin = 12 * time.Hour
)

// Options tunes an Engine. Zero values take the defaults.
type Options struct {
	// FetchMargin widens the fetch window of extended range queries.
	FetchMargin time.Duration
	// ProcessingMaxAge drops Processing slots that ended more than this long
	// ago. Zero keeps them all.
	ProcessingMaxAge time.Duration
	Now              func() time.Time
	Logger           zerolog.Logger
	Metrics          metrics.Recorder
}

// OptionsFromConfig reads the engine tunables from cfg.
func OptionsFromConfig(cfg config.Getter) Options {
	return Options{
		FetchMargin:      cfg.Duration(FetchMarginKey, DefaultFetchMargin),
		ProcessingMaxAge: cfg.Duration(ProcessingMaxAgeKey, 0),
		Logger:           zerolog.Nop(),
	}
}

// #endregion

// #region engine

// Engine answers range and point queries for one view variant.
type Engine[R any] struct {
	source  Source
	variant Variant[R]
	days    timerange.DayResolver
	opts    Options
	log     zerolog.Logger
	metrics metrics.Recorder
}

// NewEngine wires an engine. days may be nil when the store already fills the
// raw day ranges and clipped results can keep them.
func NewEngine[R any](source Source, variant Variant[R], days timerange.DayResolver, opts Options) *Engine[R] {
	if opts.FetchMargin <= 0 {
		opts.FetchMargin = DefaultFetchMargin
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Engine[R]{
		source:  source,
		variant: variant,
		days:    days,
		opts:    opts,
		log:     opts.Logger.With().Str("variant", variant.Name()).Logger(),
		metrics: metrics.OrNoop(opts.Metrics),
	}
}

// Variant returns the projection the engine runs.
func (e *Engine[R]) Variant() Variant[R] {
	return e.variant
}

// #endregion

// #region project

// project maps raw onto a one-raw-slot view. ok=false means filtered out.
func (e *Engine[R]) project(ctx context.Context, raw model.ReasonSlot) (Slot[R], bool, error) {
	if e.agedOut(raw) {
		return Slot[R]{}, false, nil
	}
	ref, ok, err := e.variant.Project(ctx, raw)
	if err != nil {
		return Slot[R]{}, false, fmt.Errorf("project %s: %w", raw, err)
	}
	if !ok {
		return Slot[R]{}, false, nil
	}
	s := Slot[R]{
		Machine:  raw.Machine,
		Range:    raw.Range,
		DayRange: raw.DayRange,
		Ref:      ref,
	}
	if s.DayRange == (timerange.DayRange{}) && e.days != nil {
		s.DayRange = e.days.DayRange(raw.Range)
	}
	kinds := e.variant.SubSlots()
	if kinds&ModeSubSlots != 0 {
		s.ModeSlots = []SubSlot[model.MachineMode]{{Range: raw.Range, Value: raw.MachineMode}}
	}
	if kinds&ObservationSubSlots != 0 {
		s.ObservationSlots = []SubSlot[model.ObservationStateID]{{Range: raw.Range, Value: raw.ObservationState}}
	}
	return s, true, nil
}

func (e *Engine[R]) agedOut(raw model.ReasonSlot) bool {
	if e.opts.ProcessingMaxAge <= 0 || !raw.IsProcessing() || !raw.Range.HasUpper() {
		return false
	}
	return raw.Range.Upper.Before(e.opts.Now().Add(-e.opts.ProcessingMaxAge))
}

func (e *Engine[R]) mergeable(a, b Slot[R]) bool {
	return Mergeable(e.variant.Equal, a, b)
}

// Merge projects an ascending sequence of raw slots and coalesces it.
func (e *Engine[R]) Merge(ctx context.Context, raws []model.ReasonSlot) ([]Slot[R], error) {
	out := make([]Slot[R], 0, len(raws))
	for _, raw := range raws {
		s, ok, err := e.project(ctx, raw)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		out = appendOrMerge(e.variant.Equal, out, s)
	}
	return out, nil
}

// #endregion

// #region extend

// ExtendLeft merges left neighbors into s while they are mergeable.
func (e *Engine[R]) ExtendLeft(ctx context.Context, s Slot[R]) (Slot[R], error) {
	out, _, err := e.ExtendLeftUntil(ctx, s, timerange.Unbounded())
	return out, err
}

// ExtendRight merges right neighbors into s while they are mergeable.
func (e *Engine[R]) ExtendRight(ctx context.Context, s Slot[R]) (Slot[R], error) {
	out, _, err := e.ExtendRightUntil(ctx, s, timerange.Unbounded())
	return out, err
}

// ExtendLeftUntil is ExtendLeft bounded by limit. limitReached is true once
// the lower bound of the slot is at or before the lower bound of limit; no
// neighbor is fetched past that point. An unbounded side never reaches it.
func (e *Engine[R]) ExtendLeftUntil(ctx context.Context, s Slot[R], limit timerange.Range) (out Slot[R], limitReached bool, err error) {
	for {
		if !s.Range.HasLower() {
			return s, false, nil
		}
		if limit.HasLower() && !s.Range.Lower.After(limit.Lower) {
			return s, true, nil
		}
		raw, err := e.source.FindWithEnd(ctx, s.Machine, s.Range.Lower)
		if err != nil {
			return s, false, fmt.Errorf("find slot ending at %s: %w", s.Range.Lower, err)
		}
		if raw == nil {
			return s, false, nil
		}
		next, ok, err := e.absorb(ctx, s, *raw, "left")
		if err != nil || !ok {
			return s, false, err
		}
		s = next
	}
}

// ExtendRightUntil is the right-hand counterpart of ExtendLeftUntil.
func (e *Engine[R]) ExtendRightUntil(ctx context.Context, s Slot[R], limit timerange.Range) (out Slot[R], limitReached bool, err error) {
	for {
		if !s.Range.HasUpper() {
			return s, false, nil
		}
		if limit.HasUpper() && !limit.Upper.After(s.Range.Upper) {
			return s, true, nil
		}
		raw, err := e.source.FindAt(ctx, s.Machine, s.Range.Upper)
		if err != nil {
			return s, false, fmt.Errorf("find slot at %s: %w", s.Range.Upper, err)
		}
		if raw == nil {
			return s, false, nil
		}
		next, ok, err := e.absorb(ctx, s, *raw, "right")
		if err != nil || !ok {
			return s, false, err
		}
		s = next
	}
}

// absorb merges the raw neighbor into s. ok=false when it cannot.
func (e *Engine[R]) absorb(ctx context.Context, s Slot[R], raw model.ReasonSlot, direction string) (Slot[R], bool, error) {
	if raw.IsEmpty() {
		e.fault(raw, direction, true)
		return s, false, nil
	}
	n, ok, err := e.project(ctx, raw)
	if err != nil || !ok {
		return s, false, err
	}
	if !e.mergeable(s, n) {
		return s, false, nil
	}
	return Merge(s, n), true, nil
}

// fault reports a zero-width raw slot met while extending. stopped tells
// whether the walk ended on it or skipped it.
func (e *Engine[R]) fault(raw model.ReasonSlot, direction string, stopped bool) {
	msg := "zero-width neighbor slot, extension stopped"
	if !stopped {
		msg = "zero-width neighbor slot skipped"
	}
	e.log.Error().
		Str("fault", "invariant").
		Int("machine", int(raw.Machine)).
		Str("direction", direction).
		Str("range", raw.Range.String()).
		Msg(msg)
	e.metrics.IncExtendFault(direction)
}

// #endregion

// #region range-query

// FindOverlapsRange returns the maximal view of the slots overlapping r.
// Without extension each slot is clipped to r.
func (e *Engine[R]) FindOverlapsRange(ctx context.Context, machine model.MachineID, r timerange.Range, opts ExtendOptions) (RangeResult[R], error) {
	start := time.Now()
	defer func() { e.metrics.ObserveRangeQuery(e.variant.Name(), time.Since(start)) }()

	fetch := r
	if opts.Extend {
		widened := r.Widen(e.opts.FetchMargin).Intersect(opts.Limit)
		fetch, _ = r.Union(widened)
	}
	raws, err := e.source.FindOverlapsRange(ctx, machine, fetch)
	if err != nil {
		return RangeResult[R]{}, fmt.Errorf("find slots of machine %d in %s: %w", machine, fetch, err)
	}

	var left, right []model.ReasonSlot
	var result RangeResult[R]
	for _, raw := range raws {
		switch {
		case raw.Range.IsStrictlyLeftOf(r):
			left = append(left, raw)
		case raw.Range.IsStrictlyRightOf(r):
			right = append(right, raw)
		case raw.Range.Overlaps(r):
			s, ok, err := e.project(ctx, raw)
			if err != nil {
				return RangeResult[R]{}, err
			}
			if !ok {
				continue
			}
			if !opts.Extend {
				s = clip(s, r, e.days)
			}
			result.Slots = appendOrMerge(e.variant.Equal, result.Slots, s)
		}
	}

	if opts.Extend && len(result.Slots) > 0 {
		if err := e.extendResult(ctx, &result, left, right, opts.Limit); err != nil {
			return RangeResult[R]{}, err
		}
	}
	e.metrics.AddMergedSlots(e.variant.Name(), len(result.Slots))
	return result, nil
}

// extendResult grows the first and last slots, first with the already
// fetched neighbors, then through the source up to limit.
func (e *Engine[R]) extendResult(ctx context.Context, result *RangeResult[R], left, right []model.ReasonSlot, limit timerange.Range) error {
	first := result.Slots[0]
	for i := len(left) - 1; i >= 0 && !result.LeftHalted; i-- {
		if limit.HasLower() && first.Range.HasLower() && !first.Range.Lower.After(limit.Lower) {
			result.LowerLimitReached = true
			break
		}
		next, ok, err := e.absorbFetched(ctx, first, left[i], "left")
		if err != nil {
			return err
		}
		if !ok {
			result.LeftHalted = true
			break
		}
		first = next
	}
	if !result.LeftHalted && !result.LowerLimitReached {
		var err error
		first, result.LowerLimitReached, err = e.ExtendLeftUntil(ctx, first, limit)
		if err != nil {
			return err
		}
	}
	result.Slots[0] = first

	last := result.Slots[len(result.Slots)-1]
	for i := 0; i < len(right) && !result.RightHalted; i++ {
		if limit.HasUpper() && last.Range.HasUpper() && !limit.Upper.After(last.Range.Upper) {
			result.UpperLimitReached = true
			break
		}
		next, ok, err := e.absorbFetched(ctx, last, right[i], "right")
		if err != nil {
			return err
		}
		if !ok {
			result.RightHalted = true
			break
		}
		last = next
	}
	if !result.RightHalted && !result.UpperLimitReached {
		var err error
		last, result.UpperLimitReached, err = e.ExtendRightUntil(ctx, last, limit)
		if err != nil {
			return err
		}
	}
	result.Slots[len(result.Slots)-1] = last
	return nil
}

// absorbFetched is absorb for a neighbor that is already in memory. A
// zero-width one is skipped rather than stopping the walk.
func (e *Engine[R]) absorbFetched(ctx context.Context, s Slot[R], raw model.ReasonSlot, direction string) (Slot[R], bool, error) {
	if raw.IsEmpty() {
		e.fault(raw, direction, false)
		return s, true, nil
	}
	return e.absorb(ctx, s, raw, direction)
}

// #endregion

// #region point-query

// FindAt returns the view slot covering at, extended when requested.
func (e *Engine[R]) FindAt(ctx context.Context, machine model.MachineID, at time.Time, opts ExtendOptions) (PointResult[R], error) {
	raw, err := e.source.FindAt(ctx, machine, at)
	if err != nil {
		return PointResult[R]{}, fmt.Errorf("find slot of machine %d at %s: %w", machine, at, err)
	}
	if raw == nil {
		return PointResult[R]{}, nil
	}
	s, ok, err := e.project(ctx, *raw)
	if err != nil || !ok {
		return PointResult[R]{}, err
	}
	var result PointResult[R]
	if opts.Extend {
		s, result.LowerLimitReached, err = e.ExtendLeftUntil(ctx, s, opts.Limit)
		if err != nil {
			return PointResult[R]{}, err
		}
		s, result.UpperLimitReached, err = e.ExtendRightUntil(ctx, s, opts.Limit)
		if err != nil {
			return PointResult[R]{}, err
		}
	}
	result.Slot = &s
	return result, nil
}

// #endregion
