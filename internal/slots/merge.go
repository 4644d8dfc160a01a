package slots

import "github.com/atsora/pomamo-engine-sub026/internal/timerange"

// #region mergeable

// Mergeable reports whether a and b can be merged: both non-empty, same
// machine, equal reference data and adjacent ranges.
func Mergeable[R any](equal func(a, b R) bool, a, b Slot[R]) bool {
	if a.Range.IsEmpty() || b.Range.IsEmpty() {
		return false
	}
	if a.Machine != b.Machine {
		return false
	}
	if !a.Range.IsAdjacentTo(b.Range) {
		return false
	}
	return equal(a.Ref, b.Ref)
}

// Merge joins two mergeable slots. The order of the arguments does not
// matter; the reference data of the left one is kept.
func Merge[R any](a, b Slot[R]) Slot[R] {
	if b.Range.IsStrictlyLeftOf(a.Range) {
		a, b = b, a
	}
	union, _ := a.Range.Union(b.Range)
	return Slot[R]{
		Machine:          a.Machine,
		Range:            union,
		DayRange:         a.DayRange.Union(b.DayRange),
		Ref:              a.Ref,
		ModeSlots:        joinSubSlots(a.ModeSlots, b.ModeSlots),
		ObservationSlots: joinSubSlots(a.ObservationSlots, b.ObservationSlots),
	}
}

// joinSubSlots appends right onto left, collapsing the boundary pair when it
// holds the same value over adjacent ranges. Inputs are never modified.
func joinSubSlots[K comparable](left, right []SubSlot[K]) []SubSlot[K] {
	if len(left) == 0 && len(right) == 0 {
		return nil
	}
	out := make([]SubSlot[K], 0, len(left)+len(right))
	out = append(out, left...)
	for i, s := range right {
		if i == 0 && len(out) > 0 {
			last := out[len(out)-1]
			if last.Value == s.Value && last.Range.IsAdjacentTo(s.Range) {
				out[len(out)-1].Range, _ = last.Range.Union(s.Range)
				continue
			}
		}
		out = append(out, s)
	}
	return out
}

// #endregion

// #region coalesce

// Coalesce merges an ascending sequence of view slots into a maximal one:
// each slot replaces the last result when mergeable with it, else it is
// appended.
func Coalesce[R any](equal func(a, b R) bool, in []Slot[R]) []Slot[R] {
	out := make([]Slot[R], 0, len(in))
	for _, s := range in {
		out = appendOrMerge(equal, out, s)
	}
	return out
}

func appendOrMerge[R any](equal func(a, b R) bool, out []Slot[R], s Slot[R]) []Slot[R] {
	if n := len(out); n > 0 && Mergeable(equal, out[n-1], s) {
		out[n-1] = Merge(out[n-1], s)
		return out
	}
	return append(out, s)
}

// #endregion

// #region clip

// clip restricts s and its sub-slots to r. The day range is recomputed with
// days when available.
func clip[R any](s Slot[R], r timerange.Range, days timerange.DayResolver) Slot[R] {
	out := s
	out.Range = s.Range.Intersect(r)
	if out.Range.Equal(s.Range) {
		return s
	}
	if days != nil {
		out.DayRange = days.DayRange(out.Range)
	}
	out.ModeSlots = clipSubSlots(s.ModeSlots, r)
	out.ObservationSlots = clipSubSlots(s.ObservationSlots, r)
	return out
}

func clipSubSlots[K comparable](in []SubSlot[K], r timerange.Range) []SubSlot[K] {
	if in == nil {
		return nil
	}
	out := make([]SubSlot[K], 0, len(in))
	for _, s := range in {
		if !s.Range.Overlaps(r) {
			continue
		}
		out = append(out, SubSlot[K]{Range: s.Range.Intersect(r), Value: s.Value})
	}
	return out
}

// #endregion
