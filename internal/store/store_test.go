package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atsora/pomamo-engine-sub026/internal/model"
	"github.com/atsora/pomamo-engine-sub026/internal/resolver"
	"github.com/atsora/pomamo-engine-sub026/internal/timerange"
)

var t0 = time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

func at(min int) time.Time { return t0.Add(time.Duration(min) * time.Minute) }

func tempDB(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

var idle = model.MachineMode{ID: 2, Category: 2, Running: model.RunningOff}

func fixture() Dataset {
	return Dataset{
		Slots: []model.ReasonSlot{
			{Machine: 1, Range: timerange.New(at(0), at(10)), DayRange: timerange.DayRange{Lower: timerange.Day(2024, 3, 1), Upper: timerange.Day(2024, 3, 2)},
				Reason: 5, Color: "#ff0000", MachineMode: idle, ObservationState: 3, ReasonScore: 12.5,
				ReasonSource: model.SourceAuto, AutoReasonCount: 2, OverwriteRequired: true, Details: "d", JSONData: `{"a":1}`},
			{Machine: 1, Range: timerange.New(at(10), at(20)), Reason: 6, MachineMode: idle},
			{Machine: 1, Range: timerange.New(at(20), at(30)), Reason: 6, MachineMode: idle},
			{Machine: 1, Range: timerange.Since(at(30)), Reason: model.ProcessingReason, MachineMode: idle},
			{Machine: 2, Range: timerange.New(at(0), at(60)), Reason: 9},
		},
		Statuses: []model.MachineStatus{
			{Machine: 1, Reason: 6, MachineMode: idle, ReasonSlotEnd: at(30), ReasonScore: 40, ReasonSource: model.SourceManual, AutoReasonCount: 1},
		},
		Pointers: []model.CurrentMachineMode{
			{Machine: 1, MachineMode: idle, DateTime: at(35), Change: at(25)},
		},
		Facts: []model.Fact{
			{Machine: 1, Range: timerange.New(at(0), at(15)), MachineMode: idle},
			{Machine: 1, Range: timerange.New(at(15), at(32)), MachineMode: idle},
		},
		Observations: []model.ObservationStateSlot{
			{Machine: 1, Range: timerange.Since(at(0)), State: 3},
		},
	}
}

// backends returns a loaded SQLite store and a loaded memory store.
func backends(t *testing.T) map[string]Backend {
	t.Helper()
	out := map[string]Backend{"sqlite": tempDB(t), "memory": NewMemory()}
	for name, b := range out {
		require.NoError(t, b.Load(context.Background(), fixture()), name)
	}
	return out
}

func TestSlotLookups(t *testing.T) {
	ctx := context.Background()
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s, err := b.FindAt(ctx, 1, at(5))
			require.NoError(t, err)
			require.NotNil(t, s)
			assert.Equal(t, fixture().Slots[0].Reason, s.Reason)
			assert.True(t, s.Range.Equal(timerange.New(at(0), at(10))))
			assert.True(t, s.DayRange.Equal(fixture().Slots[0].DayRange))
			assert.Equal(t, "#ff0000", s.Color)
			assert.Equal(t, idle, s.MachineMode)
			assert.Equal(t, model.ObservationStateID(3), s.ObservationState)
			assert.Equal(t, 12.5, s.ReasonScore)
			assert.Equal(t, model.SourceAuto, s.ReasonSource)
			assert.Equal(t, 2, s.AutoReasonCount)
			assert.True(t, s.OverwriteRequired)
			assert.Equal(t, `{"a":1}`, s.JSONData)

			s, err = b.FindAt(ctx, 1, at(10))
			require.NoError(t, err)
			assert.Equal(t, model.ReasonID(6), s.Reason, "lower bound is inclusive")

			s, err = b.FindAt(ctx, 1, at(500))
			require.NoError(t, err)
			assert.True(t, s.IsProcessing(), "unbounded slot covers the future")
			assert.False(t, s.Range.HasUpper())

			s, err = b.FindAt(ctx, 3, at(5))
			require.NoError(t, err)
			assert.Nil(t, s)

			s, err = b.FindWithEnd(ctx, 1, at(20))
			require.NoError(t, err)
			require.NotNil(t, s)
			assert.True(t, s.Range.Lower.Equal(at(10)))

			s, err = b.FindWithEnd(ctx, 1, at(25))
			require.NoError(t, err)
			assert.Nil(t, s)
		})
	}
}

func TestFindOverlapsRange(t *testing.T) {
	ctx := context.Background()
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			got, err := b.FindOverlapsRange(ctx, 1, timerange.New(at(10), at(25)))
			require.NoError(t, err)
			require.Len(t, got, 2)
			assert.True(t, got[0].Range.Lower.Equal(at(10)))
			assert.True(t, got[1].Range.Lower.Equal(at(20)))

			got, err = b.FindOverlapsRange(ctx, 1, timerange.Since(at(25)))
			require.NoError(t, err)
			require.Len(t, got, 2)
			assert.True(t, got[1].IsProcessing())

			got, err = b.FindOverlapsRange(ctx, 1, timerange.Unbounded())
			require.NoError(t, err)
			assert.Len(t, got, 4)
		})
	}
}

func TestDescendingScans(t *testing.T) {
	ctx := context.Background()
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			var lowers []time.Time
			for s, err := range b.FindOverlapsRangeDescending(ctx, 1, timerange.Until(at(45)), 7*time.Minute) {
				require.NoError(t, err)
				lowers = append(lowers, s.Range.Lower)
			}
			require.Len(t, lowers, 4, "each slot once, most recent first")
			assert.True(t, lowers[0].Equal(at(30)))
			assert.True(t, lowers[3].Equal(at(0)))

			var n int
			for f, err := range b.FindFactsDescending(ctx, 1, timerange.New(at(0), at(40)), time.Hour) {
				require.NoError(t, err)
				if n == 0 {
					assert.True(t, f.Range.Upper.Equal(at(32)))
				}
				n++
			}
			assert.Equal(t, 2, n)
		})
	}
}

func TestDescendingStopsEarly(t *testing.T) {
	var fetched int
	seq := Descending(context.Background(), timerange.New(at(0), at(100)), 10*time.Minute,
		func(_ context.Context, r timerange.Range) ([]timerange.Range, error) {
			fetched++
			return []timerange.Range{r}, nil
		}, func(r timerange.Range) timerange.Range { return r })
	for r := range seq {
		assert.True(t, r.Upper.Equal(at(100)))
		break
	}
	assert.Equal(t, 1, fetched)
}

func TestDescendingStopsOnEmptyChunkWhenUnbounded(t *testing.T) {
	var fetched int
	seq := Descending(context.Background(), timerange.Until(at(100)), 10*time.Minute,
		func(_ context.Context, r timerange.Range) ([]timerange.Range, error) {
			fetched++
			return nil, nil
		}, func(r timerange.Range) timerange.Range { return r })
	for range seq {
		t.Fatal("nothing to yield")
	}
	assert.Equal(t, 1, fetched)
}

func TestCurrentSources(t *testing.T) {
	ctx := context.Background()
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			st, err := b.MachineStatus(ctx, 1)
			require.NoError(t, err)
			require.NotNil(t, st)
			assert.True(t, st.ReasonSlotEnd.Equal(at(30)))
			assert.Equal(t, model.SourceManual, st.ReasonSource)

			ptr, err := b.CurrentMachineMode(ctx, 1)
			require.NoError(t, err)
			require.NotNil(t, ptr)
			assert.True(t, ptr.Change.Equal(at(25)))

			last, err := b.LastFact(ctx, 1)
			require.NoError(t, err)
			require.NotNil(t, last)
			assert.True(t, last.End().Equal(at(32)))

			obs, err := b.ObservationStateAt(ctx, 1, at(100))
			require.NoError(t, err)
			require.NotNil(t, obs)
			assert.Equal(t, model.ObservationStateID(3), obs.State)

			st, err = b.MachineStatus(ctx, 2)
			require.NoError(t, err)
			assert.Nil(t, st)
			ptr, err = b.CurrentMachineMode(ctx, 2)
			require.NoError(t, err)
			assert.Nil(t, ptr)
			last, err = b.LastFact(ctx, 2)
			require.NoError(t, err)
			assert.Nil(t, last)
		})
	}
}

func TestReadOnlySnapshot(t *testing.T) {
	ctx := context.Background()
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			err := b.ReadOnly(ctx, "test", func(r resolver.Reader) error {
				st, err := r.MachineStatus(ctx, 1)
				if err != nil {
					return err
				}
				assert.Equal(t, model.ReasonID(6), st.Reason)
				s, err := r.FindAt(ctx, 1, at(15))
				if err != nil {
					return err
				}
				assert.Equal(t, model.ReasonID(6), s.Reason)
				return nil
			})
			require.NoError(t, err)
		})
	}
}

func TestReadOnlyRejectsWrites(t *testing.T) {
	ctx := context.Background()
	s := tempDB(t)
	require.NoError(t, s.Load(ctx, fixture()))

	err := s.ReadOnly(ctx, "test", func(r resolver.Reader) error {
		q, ok := r.(Queries)
		require.True(t, ok)
		return q.Load(ctx, Dataset{Slots: []model.ReasonSlot{
			{Machine: 3, Range: timerange.New(at(0), at(10)), Reason: 1},
		}})
	})
	require.Error(t, err)

	slots, err := s.FindOverlapsRange(ctx, 3, timerange.Unbounded())
	require.NoError(t, err)
	assert.Empty(t, slots)

	// the connection is writable again afterwards
	require.NoError(t, s.Load(ctx, Dataset{Slots: []model.ReasonSlot{
		{Machine: 3, Range: timerange.New(at(0), at(10)), Reason: 1},
	}}))
}

func TestStatusUpsertReplaces(t *testing.T) {
	ctx := context.Background()
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, b.Load(ctx, Dataset{Statuses: []model.MachineStatus{{Machine: 1, Reason: 7, ReasonSlotEnd: at(40)}}}))
			st, err := b.MachineStatus(ctx, 1)
			require.NoError(t, err)
			assert.Equal(t, model.ReasonID(7), st.Reason)
		})
	}
}

func TestMachinesAndDataset(t *testing.T) {
	ctx := context.Background()
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ms, err := b.Machines(ctx)
			require.NoError(t, err)
			assert.Equal(t, []model.MachineID{1, 2}, ms)

			ds, err := b.Dataset(ctx, 1)
			require.NoError(t, err)
			assert.Len(t, ds.Slots, 4)
			assert.Len(t, ds.Facts, 2)
			assert.Len(t, ds.Observations, 1)
			assert.Len(t, ds.Statuses, 1)
			assert.Len(t, ds.Pointers, 1)
		})
	}
}
