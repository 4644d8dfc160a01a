package store

import (
	"context"
	"iter"
	"time"

	"github.com/atsora/pomamo-engine-sub026/internal/timerange"
)

// Descending scans r from its upper bound down to its lower bound, fetching
// one step-wide chunk at a time, and yields the records of each chunk from the
// most recent one. A record is yielded once even when it spans several chunks.
//
// The scan stops at r's lower bound, or at the first empty chunk when r has
// none. A fetch error is yielded once and ends the scan.
func Descending[T any](
	ctx context.Context,
	r timerange.Range,
	step time.Duration,
	fetch func(context.Context, timerange.Range) ([]T, error),
	rangeOf func(T) timerange.Range,
) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		if r.IsEmpty() {
			return
		}
		var zero T
		cursor := r.Upper
		for first := true; ; first = false {
			chunk := timerange.Range{Lower: r.Lower, Upper: cursor}
			if !cursor.IsZero() && step > 0 {
				if lower := cursor.Add(-step); !r.HasLower() || lower.After(r.Lower) {
					chunk.Lower = lower
				}
			}
			items, err := fetch(ctx, chunk)
			if err != nil {
				yield(zero, err)
				return
			}
			for i := len(items) - 1; i >= 0; i-- {
				// already yielded by a more recent chunk
				ir := rangeOf(items[i])
				if !first && (!ir.HasUpper() || ir.Upper.After(cursor)) {
					continue
				}
				if !yield(items[i], nil) {
					return
				}
			}
			if !chunk.HasLower() || chunk.Lower.Equal(r.Lower) {
				return
			}
			if len(items) == 0 && !r.HasLower() {
				return
			}
			cursor = chunk.Lower
		}
	}
}
