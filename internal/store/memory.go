package store

import (
	"context"
	"iter"
	"slices"
	"sync"
	"time"

	"github.com/atsora/pomamo-engine-sub026/internal/model"
	"github.com/atsora/pomamo-engine-sub026/internal/resolver"
	"github.com/atsora/pomamo-engine-sub026/internal/timerange"
)

// Memory is an in-process store used by tests and the replay harness.
// It stores what it is given without checking for overlaps.
type Memory struct {
	mu   sync.RWMutex
	data memoryData
}

type memoryData struct {
	slots        map[model.MachineID][]model.ReasonSlot
	statuses     map[model.MachineID]model.MachineStatus
	pointers     map[model.MachineID]model.CurrentMachineMode
	facts        map[model.MachineID][]model.Fact
	observations map[model.MachineID][]model.ObservationStateSlot
}

// NewMemory returns an empty store.
func NewMemory() *Memory {
	return &Memory{data: memoryData{
		slots:        map[model.MachineID][]model.ReasonSlot{},
		statuses:     map[model.MachineID]model.MachineStatus{},
		pointers:     map[model.MachineID]model.CurrentMachineMode{},
		facts:        map[model.MachineID][]model.Fact{},
		observations: map[model.MachineID][]model.ObservationStateSlot{},
	}}
}

// #region write

// Load adds the records of ds.
func (m *Memory) Load(_ context.Context, ds Dataset) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := &m.data
	for _, s := range ds.Slots {
		d.slots[s.Machine] = append(d.slots[s.Machine], s)
		slices.SortStableFunc(d.slots[s.Machine], func(a, b model.ReasonSlot) int { return byLower(a.Range, b.Range) })
	}
	for _, st := range ds.Statuses {
		d.statuses[st.Machine] = st
	}
	for _, p := range ds.Pointers {
		d.pointers[p.Machine] = p
	}
	for _, f := range ds.Facts {
		d.facts[f.Machine] = append(d.facts[f.Machine], f)
		slices.SortStableFunc(d.facts[f.Machine], func(a, b model.Fact) int { return byLower(a.Range, b.Range) })
	}
	for _, o := range ds.Observations {
		d.observations[o.Machine] = append(d.observations[o.Machine], o)
	}
	return nil
}

// byLower orders ranges by lower bound, unbounded first.
func byLower(a, b timerange.Range) int {
	switch {
	case a.Lower.Equal(b.Lower):
		return 0
	case !a.HasLower():
		return -1
	case !b.HasLower():
		return 1
	}
	return a.Lower.Compare(b.Lower)
}

// #endregion

// #region read

// ReadOnly runs fn under the read lock.
func (m *Memory) ReadOnly(_ context.Context, _ string, fn func(resolver.Reader) error) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return fn(&m.data)
}

func (m *Memory) FindAt(ctx context.Context, machine model.MachineID, at time.Time) (*model.ReasonSlot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.FindAt(ctx, machine, at)
}

func (m *Memory) FindWithEnd(ctx context.Context, machine model.MachineID, end time.Time) (*model.ReasonSlot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.FindWithEnd(ctx, machine, end)
}

func (m *Memory) FindOverlapsRange(ctx context.Context, machine model.MachineID, r timerange.Range) ([]model.ReasonSlot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.FindOverlapsRange(ctx, machine, r)
}

// FindOverlapsRangeDescending takes the read lock once per chunk.
func (m *Memory) FindOverlapsRangeDescending(ctx context.Context, machine model.MachineID, r timerange.Range, step time.Duration) iter.Seq2[model.ReasonSlot, error] {
	return Descending(ctx, r, step, func(ctx context.Context, chunk timerange.Range) ([]model.ReasonSlot, error) {
		return m.FindOverlapsRange(ctx, machine, chunk)
	}, func(s model.ReasonSlot) timerange.Range { return s.Range })
}

func (m *Memory) MachineStatus(ctx context.Context, machine model.MachineID) (*model.MachineStatus, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.MachineStatus(ctx, machine)
}

func (m *Memory) CurrentMachineMode(ctx context.Context, machine model.MachineID) (*model.CurrentMachineMode, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.CurrentMachineMode(ctx, machine)
}

func (m *Memory) LastFact(ctx context.Context, machine model.MachineID) (*model.Fact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.LastFact(ctx, machine)
}

func (m *Memory) FindFactsDescending(ctx context.Context, machine model.MachineID, r timerange.Range, step time.Duration) iter.Seq2[model.Fact, error] {
	return Descending(ctx, r, step, func(ctx context.Context, chunk timerange.Range) ([]model.Fact, error) {
		m.mu.RLock()
		defer m.mu.RUnlock()
		return m.data.factsIn(machine, chunk), nil
	}, func(f model.Fact) timerange.Range { return f.Range })
}

func (m *Memory) ObservationStateAt(ctx context.Context, machine model.MachineID, at time.Time) (*model.ObservationStateSlot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.ObservationStateAt(ctx, machine, at)
}

// Machines lists the machines that have reason slots or a status.
func (m *Memory) Machines(_ context.Context) ([]model.MachineID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.MachineID
	for id := range m.data.slots {
		out = append(out, id)
	}
	for id := range m.data.statuses {
		out = append(out, id)
	}
	slices.Sort(out)
	return slices.Compact(out), nil
}

// Dataset copies every record of machine.
func (m *Memory) Dataset(_ context.Context, machine model.MachineID) (Dataset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ds := Dataset{
		Slots:        slices.Clone(m.data.slots[machine]),
		Facts:        slices.Clone(m.data.facts[machine]),
		Observations: slices.Clone(m.data.observations[machine]),
	}
	if st, ok := m.data.statuses[machine]; ok {
		ds.Statuses = append(ds.Statuses, st)
	}
	if p, ok := m.data.pointers[machine]; ok {
		ds.Pointers = append(ds.Pointers, p)
	}
	return ds, nil
}

// Close is a no-op.
func (m *Memory) Close() error { return nil }

// #endregion

// #region unlocked-view

func (d *memoryData) FindAt(_ context.Context, machine model.MachineID, at time.Time) (*model.ReasonSlot, error) {
	for _, s := range d.slots[machine] {
		if s.Range.Contains(at) {
			return &s, nil
		}
	}
	return nil, nil
}

func (d *memoryData) FindWithEnd(_ context.Context, machine model.MachineID, end time.Time) (*model.ReasonSlot, error) {
	list := d.slots[machine]
	for i := len(list) - 1; i >= 0; i-- {
		if list[i].Range.HasUpper() && list[i].Range.Upper.Equal(end) {
			s := list[i]
			return &s, nil
		}
	}
	return nil, nil
}

func (d *memoryData) FindOverlapsRange(_ context.Context, machine model.MachineID, r timerange.Range) ([]model.ReasonSlot, error) {
	var out []model.ReasonSlot
	for _, s := range d.slots[machine] {
		if touches(s.Range, r) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (d *memoryData) FindOverlapsRangeDescending(ctx context.Context, machine model.MachineID, r timerange.Range, step time.Duration) iter.Seq2[model.ReasonSlot, error] {
	return Descending(ctx, r, step, func(ctx context.Context, chunk timerange.Range) ([]model.ReasonSlot, error) {
		return d.FindOverlapsRange(ctx, machine, chunk)
	}, func(s model.ReasonSlot) timerange.Range { return s.Range })
}

func (d *memoryData) MachineStatus(_ context.Context, machine model.MachineID) (*model.MachineStatus, error) {
	if st, ok := d.statuses[machine]; ok {
		return &st, nil
	}
	return nil, nil
}

func (d *memoryData) CurrentMachineMode(_ context.Context, machine model.MachineID) (*model.CurrentMachineMode, error) {
	if p, ok := d.pointers[machine]; ok {
		return &p, nil
	}
	return nil, nil
}

func (d *memoryData) LastFact(_ context.Context, machine model.MachineID) (*model.Fact, error) {
	var last *model.Fact
	for _, f := range d.facts[machine] {
		if last == nil || !f.Range.HasUpper() || (last.Range.HasUpper() && f.Range.Upper.After(last.Range.Upper)) {
			last = &f
		}
	}
	return last, nil
}

func (d *memoryData) factsIn(machine model.MachineID, r timerange.Range) []model.Fact {
	var out []model.Fact
	for _, f := range d.facts[machine] {
		if touches(f.Range, r) {
			out = append(out, f)
		}
	}
	return out
}

func (d *memoryData) FindFactsDescending(ctx context.Context, machine model.MachineID, r timerange.Range, step time.Duration) iter.Seq2[model.Fact, error] {
	return Descending(ctx, r, step, func(_ context.Context, chunk timerange.Range) ([]model.Fact, error) {
		return d.factsIn(machine, chunk), nil
	}, func(f model.Fact) timerange.Range { return f.Range })
}

func (d *memoryData) ObservationStateAt(_ context.Context, machine model.MachineID, at time.Time) (*model.ObservationStateSlot, error) {
	for _, o := range d.observations[machine] {
		if o.Range.Contains(at) {
			return &o, nil
		}
	}
	return nil, nil
}

// touches mirrors the SQL overlap filter: a zero-width record strictly inside
// r is returned too.
func touches(rec, r timerange.Range) bool {
	if r.HasLower() && rec.HasUpper() && !rec.Upper.After(r.Lower) {
		return false
	}
	if r.HasUpper() && rec.HasLower() && !rec.Lower.Before(r.Upper) {
		return false
	}
	return true
}

// #endregion
