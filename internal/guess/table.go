// Package guess is a default-reason rule table: each rule proposes a reason
// for a machine mode under an observation state.
package guess

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/atsora/pomamo-engine-sub026/internal/model"
	"github.com/atsora/pomamo-engine-sub026/internal/resolver"
	"github.com/atsora/pomamo-engine-sub026/internal/timerange"
)

// #region types

// Rule proposes Reason when a machine is in MachineMode under
// ObservationState. Machine zero applies to every machine.
type Rule struct {
	Machine           model.MachineID          `yaml:"machine"`
	MachineMode       model.MachineModeID      `yaml:"mode"`
	ObservationState  model.ObservationStateID `yaml:"observation"`
	Reason            model.ReasonID           `yaml:"reason"`
	Score             float64                  `yaml:"score"`
	Priority          int                      `yaml:"priority"`
	Color             string                   `yaml:"color"`
	Details           string                   `yaml:"details"`
	Auto              bool                     `yaml:"auto"`
	OverwriteRequired bool                     `yaml:"overwrite_required"`
}

// Key identifies the rules that must not compete with each other.
type Key struct {
	Machine          model.MachineID
	MachineMode      model.MachineModeID
	ObservationState model.ObservationStateID
	Priority         int
}

func (r Rule) key() Key {
	return Key{Machine: r.Machine, MachineMode: r.MachineMode, ObservationState: r.ObservationState, Priority: r.Priority}
}

func (r Rule) candidate() model.PossibleReason {
	source := model.SourceDefault
	if r.Auto {
		source = model.SourceAuto
	}
	return model.PossibleReason{
		Reason:            r.Reason,
		Color:             r.Color,
		Score:             r.Score,
		Source:            source,
		OverwriteRequired: r.OverwriteRequired,
		Details:           r.Details,
	}
}

// #endregion

// #region table

// Table answers reason guesses from a fixed rule set.
type Table struct {
	all       []Rule
	rules     []Rule
	ambiguous map[Key]int
}

var _ resolver.GuesserProvider = (*Table)(nil)

// NewTable indexes rules. Rules sharing a key are ambiguous: they are logged
// and that key answers nothing.
func NewTable(rules []Rule, log zerolog.Logger) *Table {
	counts := make(map[Key]int, len(rules))
	for _, r := range rules {
		counts[r.key()]++
	}
	t := &Table{all: rules, ambiguous: map[Key]int{}}
	for _, r := range rules {
		k := r.key()
		if n := counts[k]; n > 1 {
			if _, seen := t.ambiguous[k]; !seen {
				log.Error().
					Str("fault", "ambiguous-configuration").
					Int("machine", int(k.Machine)).
					Int("mode", int(k.MachineMode)).
					Int("observation", int(k.ObservationState)).
					Int("priority", k.Priority).
					Int("rules", n).
					Msg("several default reasons share one key")
			}
			t.ambiguous[k] = n
			continue
		}
		t.rules = append(t.rules, r)
	}
	return t
}

// Ambiguous returns the rejected keys and how many rules each had.
func (t *Table) Ambiguous() map[Key]int {
	return t.ambiguous
}

// ReasonGuessers implements resolver.GuesserProvider.
func (t *Table) ReasonGuessers(_ context.Context, machine model.MachineID) ([]resolver.Guesser, error) {
	return []resolver.Guesser{machineRules{table: t, machine: machine}}, nil
}

type machineRules struct {
	table   *Table
	machine model.MachineID
}

// TryActiveAt returns the candidates of every rule matching the mode and
// observation state, in rule order.
func (m machineRules) TryActiveAt(_ context.Context, _ time.Time, mode model.MachineMode, observation model.ObservationStateID) ([]model.PossibleReason, error) {
	var out []model.PossibleReason
	for _, r := range m.table.rules {
		if r.Machine != 0 && r.Machine != m.machine {
			continue
		}
		if r.MachineMode == mode.ID && r.ObservationState == observation {
			out = append(out, r.candidate())
		}
	}
	return out, nil
}

// SelectableReasons returns the reasons of the rules that match mode and
// observation on machine, ambiguous keys included: an operator may pick any
// of them.
func (t *Table) SelectableReasons(_ context.Context, machine model.MachineID, _ timerange.Range, mode model.MachineMode, observation model.ObservationStateID) ([]model.ReasonID, error) {
	var out []model.ReasonID
	for _, r := range t.all {
		if r.Machine != 0 && r.Machine != machine {
			continue
		}
		if r.MachineMode == mode.ID && r.ObservationState == observation {
			out = append(out, r.Reason)
		}
	}
	return out, nil
}

// #endregion

// #region load

type rulesFile struct {
	Rules []Rule `yaml:"rules"`
}

// LoadRules reads a YAML file with a top-level rules list.
func LoadRules(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules: %w", err)
	}
	var f rulesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse rules %s: %w", path, err)
	}
	return f.Rules, nil
}

// #endregion
