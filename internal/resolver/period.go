package resolver

import (
	"context"
	"fmt"
	"time"

	"github.com/atsora/pomamo-engine-sub026/internal/model"
	"github.com/atsora/pomamo-engine-sub026/internal/timerange"
)

// #region match

// matchSlot reports whether slot belongs to the period of mode and reason.
func (f PeriodFlags) matchSlot(slot model.ReasonSlot, mode model.MachineMode, reason model.ReasonID) bool {
	if f.Has(PeriodMachineModeCategory) && slot.MachineMode.Category != mode.Category {
		return false
	}
	if f.Has(PeriodReason) && slot.Reason != reason {
		return false
	}
	if f.Has(PeriodRunning) && slot.MachineMode.Running != mode.Running {
		return false
	}
	return true
}

// matchFact is matchSlot for facts, which carry no reason.
func (f PeriodFlags) matchFact(fact model.Fact, mode model.MachineMode) bool {
	if f.Has(PeriodMachineModeCategory) && fact.MachineMode.Category != mode.Category {
		return false
	}
	if f.Has(PeriodRunning) && fact.MachineMode.Running != mode.Running {
		return false
	}
	return true
}

// wantsPeriod is false when no flag is set or when only not-running periods
// are measured and mode is running.
func (r *Resolver) wantsPeriod(c call, mode model.MachineMode) bool {
	if c.Period == PeriodNone {
		return false
	}
	return !c.NotRunningOnly || mode.Running != model.RunningOn
}

// #endregion

// #region scans

// periodFromSlots returns the upper bound of the most recent slot before
// dateTime that does not match, looking back at most MaxPeriod.
func (r *Resolver) periodFromSlots(ctx context.Context, rd Reader, c call, mode model.MachineMode, reason model.ReasonID, dateTime time.Time) (time.Time, bool, error) {
	window := timerange.New(dateTime.Add(-r.opts.MaxPeriod), dateTime)
	for slot, err := range rd.FindOverlapsRangeDescending(ctx, c.Machine, window, r.opts.ReasonSlotStep) {
		if err != nil {
			return time.Time{}, false, fmt.Errorf("period slots: %w", err)
		}
		if !c.Period.matchSlot(slot, mode, reason) {
			return slot.Range.Upper, slot.Range.HasUpper(), nil
		}
	}
	return time.Time{}, false, nil
}

// periodFromFacts is periodFromSlots over facts. It does not apply when the
// reason flag is set.
func (r *Resolver) periodFromFacts(ctx context.Context, rd Reader, c call, mode model.MachineMode, dateTime time.Time) (time.Time, bool, error) {
	if c.Period == PeriodNone || c.Period.Has(PeriodReason) {
		return time.Time{}, false, nil
	}
	window := timerange.New(dateTime.Add(-r.opts.MaxPeriod), dateTime)
	for fact, err := range rd.FindFactsDescending(ctx, c.Machine, window, r.opts.FactStep) {
		if err != nil {
			return time.Time{}, false, fmt.Errorf("period facts: %w", err)
		}
		if !c.Period.matchFact(fact, mode) {
			return fact.End(), fact.Range.HasUpper(), nil
		}
	}
	return time.Time{}, false, nil
}

// periodFromRestricted walks the slots back from the resolved date/time over
// the restricted range of the guessed reason. Contiguous matching slots move
// the period start to their lower bound. When the most recent slot does not
// match, the period starts at its end. Without any slot the period starts at
// the restricted lower bound.
func (r *Resolver) periodFromRestricted(ctx context.Context, rd Reader, c call, res resolution, restricted timerange.Range) (time.Time, bool, error) {
	periodStart, has := res.periodStart, res.hasPeriod
	lower := restricted.Lower
	if has && (!restricted.HasLower() || restricted.Lower.Before(periodStart)) {
		lower = periodStart
	}
	if lower.IsZero() {
		lower = res.dateTime.Add(-r.opts.MaxPeriod)
	}

	window := timerange.New(lower, res.dateTime)
	first := true
	for slot, err := range rd.FindOverlapsRangeDescending(ctx, c.Machine, window, r.opts.ReasonSlotStep) {
		if err != nil {
			return time.Time{}, false, fmt.Errorf("restricted period slots: %w", err)
		}
		contiguous := first || (has && slot.Range.HasUpper() && slot.Range.Upper.Equal(periodStart))
		if contiguous && c.Period.matchSlot(slot, res.mode, res.reason) {
			if !slot.Range.HasLower() {
				has = false
				break
			}
			periodStart, has = slot.Range.Lower, true
		} else {
			if first {
				periodStart, has = slot.Range.Upper, slot.Range.HasUpper()
			}
			break
		}
		first = false
	}
	if !has && restricted.HasLower() {
		periodStart, has = restricted.Lower, true
	}
	return periodStart, has, nil
}

// #endregion
