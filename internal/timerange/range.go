package timerange

import (
	"fmt"
	"time"
)

// #region range

// Range is a half-open [Lower, Upper) interval of UTC instants.
// A zero Lower means unbounded on the left, a zero Upper unbounded on the right.
type Range struct {
	Lower time.Time
	Upper time.Time
}

// New builds a range from two instants, normalized to UTC.
func New(lower, upper time.Time) Range {
	return Range{Lower: utc(lower), Upper: utc(upper)}
}

// Since returns [lower, +oo).
func Since(lower time.Time) Range {
	return Range{Lower: utc(lower)}
}

// Until returns (-oo, upper).
func Until(upper time.Time) Range {
	return Range{Upper: utc(upper)}
}

// Unbounded returns (-oo, +oo).
func Unbounded() Range {
	return Range{}
}

func utc(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC()
}

// HasLower reports whether the range is bounded on the left.
func (r Range) HasLower() bool { return !r.Lower.IsZero() }

// HasUpper reports whether the range is bounded on the right.
func (r Range) HasUpper() bool { return !r.Upper.IsZero() }

// IsEmpty reports whether the range contains no instant.
func (r Range) IsEmpty() bool {
	return r.HasLower() && r.HasUpper() && !r.Lower.Before(r.Upper)
}

// Duration returns Upper-Lower. ok is false when a side is unbounded.
func (r Range) Duration() (d time.Duration, ok bool) {
	if !r.HasLower() || !r.HasUpper() {
		return 0, false
	}
	if r.IsEmpty() {
		return 0, true
	}
	return r.Upper.Sub(r.Lower), true
}

// Contains reports whether t is inside the range.
func (r Range) Contains(t time.Time) bool {
	if r.IsEmpty() {
		return false
	}
	if r.HasLower() && t.Before(r.Lower) {
		return false
	}
	if r.HasUpper() && !t.Before(r.Upper) {
		return false
	}
	return true
}

// Equal compares bounds by instant.
func (r Range) Equal(other Range) bool {
	if r.IsEmpty() && other.IsEmpty() {
		return true
	}
	return r.Lower.Equal(other.Lower) && r.Upper.Equal(other.Upper)
}

// #endregion range

// #region algebra

// lowerBefore reports whether lower bound a is strictly before upper bound b.
func lowerBefore(a, b time.Time) bool {
	if a.IsZero() || b.IsZero() {
		return true
	}
	return a.Before(b)
}

// Overlaps reports whether the two ranges share at least one instant.
func (r Range) Overlaps(other Range) bool {
	if r.IsEmpty() || other.IsEmpty() {
		return false
	}
	return lowerBefore(r.Lower, other.Upper) && lowerBefore(other.Lower, r.Upper)
}

// IsAdjacentTo reports whether the ranges touch with no gap and no overlap.
func (r Range) IsAdjacentTo(other Range) bool {
	if r.IsEmpty() || other.IsEmpty() {
		return false
	}
	if r.HasUpper() && other.HasLower() && r.Upper.Equal(other.Lower) {
		return true
	}
	if other.HasUpper() && r.HasLower() && other.Upper.Equal(r.Lower) {
		return true
	}
	return false
}

// IsStrictlyLeftOf reports whether every instant of r is before every instant of other.
func (r Range) IsStrictlyLeftOf(other Range) bool {
	if !r.HasUpper() || !other.HasLower() {
		return false
	}
	return !other.Lower.Before(r.Upper)
}

// IsStrictlyRightOf reports whether every instant of r is after every instant of other.
func (r Range) IsStrictlyRightOf(other Range) bool {
	return other.IsStrictlyLeftOf(r)
}

// Intersect returns the common part of the two ranges. The result may be empty.
func (r Range) Intersect(other Range) Range {
	lower := r.Lower
	if other.HasLower() && (!r.HasLower() || other.Lower.After(r.Lower)) {
		lower = other.Lower
	}
	upper := r.Upper
	if other.HasUpper() && (!r.HasUpper() || other.Upper.Before(r.Upper)) {
		upper = other.Upper
	}
	if !lower.IsZero() && !upper.IsZero() && !lower.Before(upper) {
		return Range{Lower: lower, Upper: lower}
	}
	return Range{Lower: lower, Upper: upper}
}

// Union returns the smallest range covering both. ok is false when the two
// ranges neither overlap nor touch, in which case r is returned unchanged.
func (r Range) Union(other Range) (Range, bool) {
	if other.IsEmpty() {
		return r, true
	}
	if r.IsEmpty() {
		return other, true
	}
	if !r.Overlaps(other) && !r.IsAdjacentTo(other) {
		return r, false
	}
	return r.hull(other), true
}

func (r Range) hull(other Range) Range {
	var lower, upper time.Time
	if r.HasLower() && other.HasLower() {
		lower = r.Lower
		if other.Lower.Before(lower) {
			lower = other.Lower
		}
	}
	if r.HasUpper() && other.HasUpper() {
		upper = r.Upper
		if other.Upper.After(upper) {
			upper = other.Upper
		}
	}
	return Range{Lower: lower, Upper: upper}
}

// Widen moves each bounded side outward by margin.
func (r Range) Widen(margin time.Duration) Range {
	out := r
	if r.HasLower() {
		out.Lower = r.Lower.Add(-margin)
	}
	if r.HasUpper() {
		out.Upper = r.Upper.Add(margin)
	}
	return out
}

// #endregion algebra

// #region format

const layout = "2006-01-02T15:04:05.000Z"

func (r Range) String() string {
	lower, upper := "-oo", "+oo"
	if r.HasLower() {
		lower = r.Lower.Format(layout)
	}
	if r.HasUpper() {
		upper = r.Upper.Format(layout)
	}
	return fmt.Sprintf("[%s,%s)", lower, upper)
}

// #endregion format
