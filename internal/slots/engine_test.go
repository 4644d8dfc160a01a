package slots

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atsora/pomamo-engine-sub026/internal/metrics"
	"github.com/atsora/pomamo-engine-sub026/internal/model"
	"github.com/atsora/pomamo-engine-sub026/internal/timerange"
)

// #region helpers

var t0 = time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

func at(min int) time.Time { return t0.Add(time.Duration(min) * time.Minute) }

func span(lower, upper int) timerange.Range { return timerange.New(at(lower), at(upper)) }

const machine model.MachineID = 7

func raw(lower, upper int, reason model.ReasonID) model.ReasonSlot {
	return model.ReasonSlot{
		Machine:     machine,
		Range:       span(lower, upper),
		Reason:      reason,
		MachineMode: model.MachineMode{ID: 1, Running: model.RunningOff},
	}
}

// reasonVariant keeps the reason only and filters out reason 99.
type reasonVariant struct{ kinds SubSlotKinds }

func (reasonVariant) Name() string { return "test" }

func (reasonVariant) Project(_ context.Context, r model.ReasonSlot) (model.ReasonID, bool, error) {
	return r.Reason, r.Reason != 99, nil
}

func (reasonVariant) Equal(a, b model.ReasonID) bool { return a == b }

func (v reasonVariant) SubSlots() SubSlotKinds { return v.kinds }

// fakeSource serves an ascending slice and counts point lookups.
type fakeSource struct {
	slots   []model.ReasonSlot
	lookups int
	err     error
}

func (f *fakeSource) FindAt(_ context.Context, m model.MachineID, t time.Time) (*model.ReasonSlot, error) {
	f.lookups++
	if f.err != nil {
		return nil, f.err
	}
	for _, s := range f.slots {
		if s.Machine == m && s.Range.Contains(t) {
			s := s
			return &s, nil
		}
	}
	return nil, nil
}

func (f *fakeSource) FindWithEnd(_ context.Context, m model.MachineID, end time.Time) (*model.ReasonSlot, error) {
	f.lookups++
	if f.err != nil {
		return nil, f.err
	}
	for _, s := range f.slots {
		if s.Machine == m && s.Range.HasUpper() && s.Range.Upper.Equal(end) {
			s := s
			return &s, nil
		}
	}
	return nil, nil
}

func (f *fakeSource) FindOverlapsRange(_ context.Context, m model.MachineID, r timerange.Range) ([]model.ReasonSlot, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []model.ReasonSlot
	for _, s := range f.slots {
		if s.Machine == m && (s.Range.Overlaps(r) || s.IsEmpty() && r.Contains(s.Range.Lower)) {
			out = append(out, s)
		}
	}
	return out, nil
}

func newEngine(src Source, opts Options) *Engine[model.ReasonID] {
	return NewEngine[model.ReasonID](src, reasonVariant{kinds: ModeSubSlots}, nil, opts)
}

// scenario is [(A,[0,10)), (A,[10,20)), (B,[20,30))].
func scenario() *fakeSource {
	return &fakeSource{slots: []model.ReasonSlot{raw(0, 10, 10), raw(10, 20, 10), raw(20, 30, 20)}}
}

// faultRecorder counts extension faults per direction.
type faultRecorder struct {
	metrics.NoopRecorder
	faults map[string]int
}

func (r *faultRecorder) IncExtendFault(direction string) {
	if r.faults == nil {
		r.faults = map[string]int{}
	}
	r.faults[direction]++
}

func ranges[R any](in []Slot[R]) []timerange.Range {
	out := make([]timerange.Range, len(in))
	for i, s := range in {
		out[i] = s.Range
	}
	return out
}

// #endregion

// #region merge

func TestMergeScenario(t *testing.T) {
	e := newEngine(scenario(), Options{})
	out, err := e.Merge(context.Background(), scenario().slots)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, []timerange.Range{span(0, 20), span(20, 30)}, ranges(out))
	assert.Equal(t, model.ReasonID(10), out[0].Ref)
	assert.Equal(t, model.ReasonID(20), out[1].Ref)
	require.Len(t, out[0].ModeSlots, 1, "same mode sub-slots collapse")
	assert.Equal(t, span(0, 20), out[0].ModeSlots[0].Range)
}

func TestMergeIsIdempotentAndMaximal(t *testing.T) {
	in := []model.ReasonSlot{raw(0, 5, 1), raw(5, 10, 2), raw(10, 15, 2), raw(15, 20, 2), raw(20, 25, 1), raw(25, 30, 1)}
	e := newEngine(&fakeSource{}, Options{})
	out, err := e.Merge(context.Background(), in)
	require.NoError(t, err)

	again := Coalesce(reasonVariant{}.Equal, out)
	assert.Equal(t, out, again)
	for i := 0; i+1 < len(out); i++ {
		assert.False(t, Mergeable(reasonVariant{}.Equal, out[i], out[i+1]), "pair %d", i)
	}
	assert.Len(t, out, 3)
}

func TestMergeFilterLeavesGap(t *testing.T) {
	in := []model.ReasonSlot{raw(0, 10, 1), raw(10, 20, 99), raw(20, 30, 1)}
	out, err := newEngine(&fakeSource{}, Options{}).Merge(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, []timerange.Range{span(0, 10), span(20, 30)}, ranges(out))
}

func TestMergeDropsAgedProcessing(t *testing.T) {
	now := at(100)
	in := []model.ReasonSlot{raw(0, 10, model.ProcessingReason), raw(10, 20, 3), raw(90, 95, model.ProcessingReason)}
	e := newEngine(&fakeSource{}, Options{ProcessingMaxAge: 30 * time.Minute, Now: func() time.Time { return now }})
	out, err := e.Merge(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, []timerange.Range{span(10, 20), span(90, 95)}, ranges(out))
}

func TestMergeSubSlotsKeepDistinctModes(t *testing.T) {
	a := raw(0, 10, 1)
	b := raw(10, 20, 1)
	b.MachineMode = model.MachineMode{ID: 2, Running: model.RunningOn}
	out, err := newEngine(&fakeSource{}, Options{}).Merge(context.Background(), []model.ReasonSlot{a, b})
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Len(t, out[0].ModeSlots, 2)
	assert.Equal(t, model.MachineModeID(2), out[0].ModeSlots[1].Value.ID)
}

func TestMergeOrderIndependent(t *testing.T) {
	a := Slot[int]{Machine: 1, Range: span(0, 10), Ref: 1}
	b := Slot[int]{Machine: 1, Range: span(10, 20), Ref: 1}
	assert.Equal(t, span(0, 20), Merge(b, a).Range)
	assert.False(t, Mergeable(func(x, y int) bool { return x == y }, a, Slot[int]{Machine: 2, Range: span(10, 20), Ref: 1}))
}

// #endregion

// #region extend

func TestExtendLeftBlocked(t *testing.T) {
	src := scenario()
	e := newEngine(src, Options{})
	b := Slot[model.ReasonID]{Machine: machine, Range: span(20, 30), Ref: 20}

	out, err := e.ExtendLeft(context.Background(), b)
	require.NoError(t, err)
	assert.Equal(t, span(20, 30), out.Range)

	res, err := e.FindOverlapsRange(context.Background(), machine, span(20, 30), ExtendOptions{Extend: true})
	require.NoError(t, err)
	require.Len(t, res.Slots, 1)
	assert.Equal(t, span(20, 30), res.Slots[0].Range)
	assert.True(t, res.LeftHalted)
}

func TestExtendRightMergesChain(t *testing.T) {
	e := newEngine(scenario(), Options{})
	a := Slot[model.ReasonID]{Machine: machine, Range: span(0, 10), Ref: 10}
	out, err := e.ExtendRight(context.Background(), a)
	require.NoError(t, err)
	assert.Equal(t, span(0, 20), out.Range)
}

func TestExtendLeftIsMonotonic(t *testing.T) {
	src := &fakeSource{slots: []model.ReasonSlot{raw(0, 10, 1), raw(10, 20, 1), raw(20, 30, 1)}}
	e := newEngine(src, Options{})
	s := Slot[model.ReasonID]{Machine: machine, Range: span(20, 30), Ref: 1}

	once, err := e.ExtendLeft(context.Background(), s)
	require.NoError(t, err)
	assert.False(t, once.Range.Lower.After(s.Range.Lower))
	assert.Equal(t, at(0), once.Range.Lower)

	twice, err := e.ExtendLeft(context.Background(), once)
	require.NoError(t, err)
	assert.Equal(t, once.Range, twice.Range, "fixed point")
}

func TestExtendUntilStopsAtLimit(t *testing.T) {
	src := &fakeSource{slots: []model.ReasonSlot{raw(0, 10, 1), raw(10, 20, 1), raw(20, 30, 1), raw(30, 40, 1)}}
	e := newEngine(src, Options{})
	s := Slot[model.ReasonID]{Machine: machine, Range: span(20, 30), Ref: 1}

	out, reached, err := e.ExtendLeftUntil(context.Background(), s, timerange.Since(at(15)))
	require.NoError(t, err)
	assert.True(t, reached)
	assert.Equal(t, at(10), out.Range.Lower)
	assert.Equal(t, 1, src.lookups, "no fetch past the limit")

	src.lookups = 0
	out, reached, err = e.ExtendRightUntil(context.Background(), s, timerange.Until(at(30)))
	require.NoError(t, err)
	assert.True(t, reached)
	assert.Equal(t, at(30), out.Range.Upper)
	assert.Zero(t, src.lookups)

	out, reached, err = e.ExtendRightUntil(context.Background(), s, timerange.Unbounded())
	require.NoError(t, err)
	assert.False(t, reached, "ran out of data")
	assert.Equal(t, at(40), out.Range.Upper)
}

func TestExtendStopsOnZeroWidthNeighbor(t *testing.T) {
	src := &fakeSource{slots: []model.ReasonSlot{raw(10, 10, 1), raw(0, 10, 1), raw(10, 20, 1)}}
	e := newEngine(src, Options{})
	s := Slot[model.ReasonID]{Machine: machine, Range: span(10, 20), Ref: 1}

	out, err := e.ExtendLeft(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, span(10, 20), out.Range)

	var buf bytes.Buffer
	rec := &faultRecorder{}
	e = newEngine(src, Options{Logger: zerolog.New(&buf), Metrics: rec})
	_, err = e.ExtendLeft(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"left": 1}, rec.faults)
	assert.Contains(t, buf.String(), "zero-width neighbor slot, extension stopped")
}

func TestExtendFetchedZeroWidthNeighborIsSkipped(t *testing.T) {
	src := &fakeSource{slots: []model.ReasonSlot{raw(0, 10, 1), raw(10, 10, 1), raw(10, 20, 1), raw(20, 30, 1)}}
	var buf bytes.Buffer
	rec := &faultRecorder{}
	e := newEngine(src, Options{Logger: zerolog.New(&buf), Metrics: rec})

	res, err := e.FindOverlapsRange(context.Background(), machine, span(22, 28), ExtendOptions{Extend: true})
	require.NoError(t, err)
	require.Len(t, res.Slots, 1)
	assert.Equal(t, span(0, 30), res.Slots[0].Range)
	assert.False(t, res.LeftHalted)
	assert.Equal(t, map[string]int{"left": 1}, rec.faults)
	assert.Contains(t, buf.String(), `"fault":"invariant"`)
	assert.Contains(t, buf.String(), "zero-width neighbor slot skipped")
	assert.NotContains(t, buf.String(), "extension stopped")
}

func TestExtendPropagatesSourceError(t *testing.T) {
	boom := errors.New("boom")
	e := newEngine(&fakeSource{err: boom}, Options{})
	_, err := e.ExtendLeft(context.Background(), Slot[model.ReasonID]{Machine: machine, Range: span(10, 20)})
	require.ErrorIs(t, err, boom)
}

// #endregion

// #region range-query

func TestRangeQueryClipped(t *testing.T) {
	e := newEngine(scenario(), Options{})
	res, err := e.FindOverlapsRange(context.Background(), machine, span(5, 15), ExtendOptions{})
	require.NoError(t, err)
	require.Len(t, res.Slots, 1)
	assert.Equal(t, span(5, 15), res.Slots[0].Range)
	assert.Equal(t, model.ReasonID(10), res.Slots[0].Ref)
	assert.Equal(t, span(5, 15), res.Slots[0].ModeSlots[0].Range)
}

func TestRangeQueryCoverage(t *testing.T) {
	e := newEngine(scenario(), Options{})
	q := span(-5, 25)
	res, err := e.FindOverlapsRange(context.Background(), machine, q, ExtendOptions{})
	require.NoError(t, err)
	assert.Equal(t, []timerange.Range{span(0, 20), span(20, 25)}, ranges(res.Slots))
}

func TestRangeQueryExtendFully(t *testing.T) {
	src := &fakeSource{slots: []model.ReasonSlot{
		raw(-2000, -1000, 1), raw(-1000, 0, 1), raw(0, 10, 1), raw(10, 20, 1), raw(20, 30, 2),
	}}
	e := newEngine(src, Options{FetchMargin: time.Hour})
	res, err := e.FindOverlapsRange(context.Background(), machine, span(5, 15), ExtendOptions{Extend: true})
	require.NoError(t, err)
	require.Len(t, res.Slots, 1)
	assert.Equal(t, span(-2000, 20), res.Slots[0].Range)
	assert.False(t, res.LeftHalted)
	assert.False(t, res.LowerLimitReached)
	assert.True(t, res.RightHalted)
}

func TestRangeQueryExtendBounded(t *testing.T) {
	src := &fakeSource{slots: []model.ReasonSlot{
		raw(-2000, -1000, 1), raw(-1000, 0, 1), raw(0, 10, 1), raw(10, 20, 1), raw(20, 30, 1),
	}}
	e := newEngine(src, Options{FetchMargin: time.Minute})
	res, err := e.FindOverlapsRange(context.Background(), machine, span(5, 15),
		ExtendOptions{Extend: true, Limit: span(-500, 25)})
	require.NoError(t, err)
	require.Len(t, res.Slots, 1)
	assert.Equal(t, span(-1000, 30), res.Slots[0].Range)
	assert.True(t, res.LowerLimitReached)
	assert.True(t, res.UpperLimitReached)
}

func TestRangeQueryEmpty(t *testing.T) {
	e := newEngine(scenario(), Options{})
	res, err := e.FindOverlapsRange(context.Background(), machine, span(100, 200), ExtendOptions{Extend: true})
	require.NoError(t, err)
	assert.Empty(t, res.Slots)
}

// #endregion

// #region point-query

func TestFindAt(t *testing.T) {
	e := newEngine(scenario(), Options{})
	res, err := e.FindAt(context.Background(), machine, at(12), ExtendOptions{})
	require.NoError(t, err)
	require.NotNil(t, res.Slot)
	assert.Equal(t, span(10, 20), res.Slot.Range)

	res, err = e.FindAt(context.Background(), machine, at(12), ExtendOptions{Extend: true})
	require.NoError(t, err)
	assert.Equal(t, span(0, 20), res.Slot.Range)

	res, err = e.FindAt(context.Background(), machine, at(500), ExtendOptions{})
	require.NoError(t, err)
	assert.Nil(t, res.Slot)
}

func TestFindAtUnboundedSideReachesNoLimit(t *testing.T) {
	open := raw(0, 10, 1)
	open.Range = timerange.Until(at(10))
	src := &fakeSource{slots: []model.ReasonSlot{open, raw(10, 20, 1)}}
	e := newEngine(src, Options{})

	res, err := e.FindAt(context.Background(), machine, at(15), ExtendOptions{Extend: true})
	require.NoError(t, err)
	require.NotNil(t, res.Slot)
	assert.Equal(t, timerange.Until(at(20)), res.Slot.Range)
	assert.False(t, res.LowerLimitReached)
	assert.False(t, res.UpperLimitReached)

	res, err = e.FindAt(context.Background(), machine, at(15), ExtendOptions{Extend: true, Limit: span(-100, 100)})
	require.NoError(t, err)
	assert.False(t, res.LowerLimitReached, "an unbounded slot hits no wall")
}

// #endregion
