package timerange

import (
	"fmt"
	"time"
)

// #region day-range

// DayRange is a half-open range of calendar days. Each day is represented by
// midnight UTC of its civil date; a zero bound is unbounded.
type DayRange struct {
	Lower time.Time
	Upper time.Time
}

// Day returns the civil date of t as a day label.
func Day(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// IsEmpty reports whether the day range holds no day.
func (d DayRange) IsEmpty() bool {
	return !d.Lower.IsZero() && !d.Upper.IsZero() && !d.Lower.Before(d.Upper)
}

// Union returns the covering day range. Day ranges of two adjacent time ranges
// overlap or touch, so the hull is exact for merges.
func (d DayRange) Union(other DayRange) DayRange {
	if other.IsEmpty() {
		return d
	}
	if d.IsEmpty() {
		return other
	}
	h := Range{Lower: d.Lower, Upper: d.Upper}.hull(Range{Lower: other.Lower, Upper: other.Upper})
	return DayRange{Lower: h.Lower, Upper: h.Upper}
}

// Equal compares bounds.
func (d DayRange) Equal(other DayRange) bool {
	return d.Lower.Equal(other.Lower) && d.Upper.Equal(other.Upper)
}

func (d DayRange) String() string {
	lower, upper := "-oo", "+oo"
	if !d.Lower.IsZero() {
		lower = d.Lower.Format("2006-01-02")
	}
	if !d.Upper.IsZero() {
		upper = d.Upper.Format("2006-01-02")
	}
	return fmt.Sprintf("[%s,%s)", lower, upper)
}

// #endregion day-range

// #region resolver

// DayResolver maps a time range to the calendar days it covers.
type DayResolver interface {
	DayRange(r Range) DayRange
}

// CutoffDays starts each day Cutoff after local midnight in Location.
// A nil Location means UTC.
type CutoffDays struct {
	Location *time.Location
	Cutoff   time.Duration
}

// DayOf returns the day label containing t.
func (c CutoffDays) DayOf(t time.Time) time.Time {
	loc := c.Location
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc).Add(-c.Cutoff)
	return Day(local.Year(), local.Month(), local.Day())
}

// DayRange implements DayResolver.
func (c CutoffDays) DayRange(r Range) DayRange {
	var out DayRange
	if r.HasLower() {
		out.Lower = c.DayOf(r.Lower)
	}
	if r.HasUpper() {
		if r.IsEmpty() {
			return DayRange{Lower: out.Lower, Upper: out.Lower}
		}
		out.Upper = c.DayOf(r.Upper.Add(-time.Nanosecond)).AddDate(0, 0, 1)
	}
	return out
}

// #endregion resolver
