package guess

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atsora/pomamo-engine-sub026/internal/model"
	"github.com/atsora/pomamo-engine-sub026/internal/timerange"
)

var idle = model.MachineMode{ID: 2, Running: model.RunningOff}

func candidates(t *testing.T, tbl *Table, machine model.MachineID, mode model.MachineMode, obs model.ObservationStateID) []model.PossibleReason {
	t.Helper()
	gs, err := tbl.ReasonGuessers(context.Background(), machine)
	require.NoError(t, err)
	require.Len(t, gs, 1)
	out, err := gs[0].TryActiveAt(context.Background(), time.Now(), mode, obs)
	require.NoError(t, err)
	return out
}

func TestTableMatchesModeAndObservation(t *testing.T) {
	tbl := NewTable([]Rule{
		{MachineMode: 2, ObservationState: 1, Reason: 10, Score: 5, Color: "#00ff00"},
		{MachineMode: 2, ObservationState: 1, Reason: 11, Score: 9, Priority: 1, Auto: true},
		{MachineMode: 2, ObservationState: 2, Reason: 12},
		{Machine: 7, MachineMode: 2, ObservationState: 1, Reason: 13},
	}, zerolog.Nop())

	got := candidates(t, tbl, 1, idle, 1)
	require.Len(t, got, 2)
	assert.Equal(t, model.ReasonID(10), got[0].Reason)
	assert.Equal(t, model.SourceDefault, got[0].Source)
	assert.Equal(t, "#00ff00", got[0].Color)
	assert.Equal(t, model.SourceAuto, got[1].Source)

	got = candidates(t, tbl, 7, idle, 1)
	assert.Len(t, got, 3, "machine specific rule applies on its machine only")

	assert.Empty(t, candidates(t, tbl, 1, model.MachineMode{ID: 3}, 1))
}

func TestTableAmbiguousKeyAnswersNothing(t *testing.T) {
	var buf bytes.Buffer
	tbl := NewTable([]Rule{
		{MachineMode: 2, ObservationState: 1, Reason: 10, Priority: 3},
		{MachineMode: 2, ObservationState: 1, Reason: 11, Priority: 3},
		{MachineMode: 2, ObservationState: 1, Reason: 12, Priority: 4},
	}, zerolog.New(&buf))

	got := candidates(t, tbl, 1, idle, 1)
	require.Len(t, got, 1)
	assert.Equal(t, model.ReasonID(12), got[0].Reason)
	assert.Equal(t, map[Key]int{{MachineMode: 2, ObservationState: 1, Priority: 3}: 2}, tbl.Ambiguous())
	assert.Equal(t, 1, bytes.Count(buf.Bytes(), []byte("ambiguous-configuration")), "logged once per key")
}

func TestLoadRules(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
rules:
  - mode: 2
    observation: 1
    reason: 10
    score: 12.5
    color: "#ffcc00"
    auto: true
  - machine: 4
    mode: 3
    observation: 1
    reason: 11
    priority: 2
    overwrite_required: true
`), 0o644))

	rules, err := LoadRules(path)
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, Rule{MachineMode: 2, ObservationState: 1, Reason: 10, Score: 12.5, Color: "#ffcc00", Auto: true}, rules[0])
	assert.Equal(t, model.MachineID(4), rules[1].Machine)
	assert.True(t, rules[1].OverwriteRequired)

	_, err = LoadRules(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestSelectableReasonsKeepAmbiguousRules(t *testing.T) {
	tbl := NewTable([]Rule{
		{MachineMode: 2, ObservationState: 1, Reason: 10},
		{MachineMode: 2, ObservationState: 1, Reason: 11},
		{Machine: 5, MachineMode: 2, ObservationState: 1, Reason: 12, Priority: 1},
		{MachineMode: 2, ObservationState: 2, Reason: 13},
	}, zerolog.Nop())

	got, err := tbl.SelectableReasons(context.Background(), 1, timerange.Range{}, idle, 1)
	require.NoError(t, err)
	assert.Equal(t, []model.ReasonID{10, 11}, got)

	got, err = tbl.SelectableReasons(context.Background(), 5, timerange.Range{}, idle, 1)
	require.NoError(t, err)
	assert.Equal(t, []model.ReasonID{10, 11, 12}, got)
}
