package slots

// #region imports
import (
	"context"
	"iter"
	"time"

	"github.com/atsora/pomamo-engine-sub026/internal/model"
	"github.com/atsora/pomamo-engine-sub026/internal/timerange"
)

// #endregion

// #region source

// Source supplies the raw reason slots of a machine. Slots never overlap.
// Point lookups return nil, nil when nothing matches.
type Source interface {
	// FindAt returns the slot covering at.
	FindAt(ctx context.Context, machine model.MachineID, at time.Time) (*model.ReasonSlot, error)
	// FindWithEnd returns the slot whose upper bound is exactly end.
	FindWithEnd(ctx context.Context, machine model.MachineID, end time.Time) (*model.ReasonSlot, error)
	// FindOverlapsRange returns the slots overlapping r in ascending order.
	FindOverlapsRange(ctx context.Context, machine model.MachineID, r timerange.Range) ([]model.ReasonSlot, error)
}

// DescendingSource adds a lazy most-recent-first scan, fetched in chunks of
// step. The sequence stops at the first error.
type DescendingSource interface {
	Source
	FindOverlapsRangeDescending(ctx context.Context, machine model.MachineID, r timerange.Range, step time.Duration) iter.Seq2[model.ReasonSlot, error]
}

// #endregion

// #region slot

// SubSlot is a part of a view slot over which Value stays constant.
type SubSlot[K comparable] struct {
	Range timerange.Range
	Value K
}

// Slot is an immutable view over one or more merged raw slots sharing the
// same reference data Ref.
type Slot[R any] struct {
	Machine          model.MachineID
	Range            timerange.Range
	DayRange         timerange.DayRange
	Ref              R
	ModeSlots        []SubSlot[model.MachineMode]
	ObservationSlots []SubSlot[model.ObservationStateID]
}

// SubSlotKinds selects which sub-slot lists a variant tracks.
type SubSlotKinds uint8

const (
	ModeSubSlots SubSlotKinds = 1 << iota
	ObservationSubSlots
)

// #endregion

// #region variant

// Variant projects a raw slot onto the reference data R of one view.
type Variant[R any] interface {
	// Name labels the variant in logs and metrics.
	Name() string
	// Project returns the reference data of raw. ok=false filters raw out of
	// the view.
	Project(ctx context.Context, raw model.ReasonSlot) (ref R, ok bool, err error)
	// Equal compares reference data, time range excluded.
	Equal(a, b R) bool
	// SubSlots returns the tracked sub-slot lists.
	SubSlots() SubSlotKinds
}

// #endregion

// #region query-types

// ExtendOptions controls extension of a query result beyond the query range.
// The zero Limit is unbounded: Extend with no limit extends fully.
type ExtendOptions struct {
	Extend bool
	Limit  timerange.Range
}

// RangeResult is the answer to a range query.
// LeftHalted/RightHalted report that extension met a non-mergeable neighbor.
// LowerLimitReached/UpperLimitReached report that it hit the extend limit.
type RangeResult[R any] struct {
	Slots             []Slot[R]
	LeftHalted        bool
	RightHalted       bool
	LowerLimitReached bool
	UpperLimitReached bool
}

// PointResult is the answer to a point query. Slot is nil when nothing
// covers the instant or the raw slot is filtered out of the view.
type PointResult[R any] struct {
	Slot              *Slot[R]
	LowerLimitReached bool
	UpperLimitReached bool
}

// #endregion
