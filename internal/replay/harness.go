package replay

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"slices"
	"time"

	"github.com/rs/zerolog"

	"github.com/atsora/pomamo-engine-sub026/internal/config"
	"github.com/atsora/pomamo-engine-sub026/internal/guess"
	"github.com/atsora/pomamo-engine-sub026/internal/model"
	"github.com/atsora/pomamo-engine-sub026/internal/orchestrator"
	"github.com/atsora/pomamo-engine-sub026/internal/resolver"
	"github.com/atsora/pomamo-engine-sub026/internal/slots"
	"github.com/atsora/pomamo-engine-sub026/internal/store"
	"github.com/atsora/pomamo-engine-sub026/internal/timerange"
)

// #region types

// Step kinds.
const (
	KindRange   = "range"
	KindAt      = "at"
	KindCurrent = "current"
)

// Result captures the outcome of replaying one step.
type Result struct {
	StepID string
	Kind   string
	Got    any
	Match  bool
	Diff   string // first mismatch, empty when Match
}

// Summary provides aggregate stats from a replay run.
type Summary struct {
	TotalSteps int
	Matches    int
	Diverged   int
}

// #endregion types

// #region replay

// Replay loads the fixture timeline into an in-memory store and runs every
// step through the orchestrator, comparing the answer with the expectation.
// Days start at midnight UTC.
func Replay(ctx context.Context, f *Fixture, log zerolog.Logger) ([]Result, error) {
	clock, err := ParseTime(f.Now)
	if err != nil {
		return nil, err
	}
	ds, err := f.Dataset.ToDataset(timerange.CutoffDays{})
	if err != nil {
		return nil, err
	}
	mem := store.NewMemory()
	if err := mem.Load(ctx, ds); err != nil {
		return nil, err
	}

	opts := orchestrator.Options{
		Days:   timerange.CutoffDays{},
		Logger: log,
		Now:    func() time.Time { return clock },
	}
	if len(f.Rules) > 0 {
		table := guess.NewTable(f.ToRules(), log)
		opts.Guessers, opts.Selector = table, table
	}
	orch := orchestrator.New(mem, config.Map(f.Settings), opts)

	results := make([]Result, 0, len(f.Steps))
	for _, step := range f.Steps {
		if step.Now != "" {
			if clock, err = ParseTime(step.Now); err != nil {
				return nil, fmt.Errorf("step %s: %w", step.ID, err)
			}
		}
		got, err := run(ctx, orch, step)
		if err != nil {
			return nil, fmt.Errorf("step %s: %w", step.ID, err)
		}
		diff := compare("$", step.Expect, got)
		results = append(results, Result{
			StepID: step.ID,
			Kind:   step.Kind,
			Got:    got,
			Match:  diff == "",
			Diff:   diff,
		})
	}
	return results, nil
}

func run(ctx context.Context, orch *orchestrator.Orchestrator, step FixtureStep) (any, error) {
	machine := model.MachineID(step.Machine)
	limit, err := parseRange(step.LimitLower, step.LimitUpper)
	if err != nil {
		return nil, err
	}
	extend := slots.ExtendOptions{Extend: step.Extend, Limit: limit}

	var answer any
	switch step.Kind {
	case KindRange:
		r, err := parseRange(step.Lower, step.Upper)
		if err != nil {
			return nil, err
		}
		answer, err = orch.Range(ctx, orchestrator.RangeQuery{
			Variant: orchestrator.VariantID(step.Variant), Machine: machine, Range: r, Extend: extend,
		})
		if err != nil {
			return nil, err
		}
	case KindAt:
		at, err := ParseTime(step.At)
		if err != nil {
			return nil, err
		}
		answer, err = orch.At(ctx, orchestrator.PointQuery{
			Variant: orchestrator.VariantID(step.Variant), Machine: machine, At: at, Extend: extend,
		})
		if err != nil {
			return nil, err
		}
	case KindCurrent:
		period, ok := resolver.ParsePeriodFlags(step.Period)
		if !ok {
			return nil, fmt.Errorf("unknown period %q", step.Period)
		}
		s, err := orch.Current(ctx, machine, period, step.NotRunningOnly)
		if err != nil {
			return nil, err
		}
		answer = orchestrator.StateRecord(s)
	default:
		return nil, fmt.Errorf("unknown step kind %q", step.Kind)
	}
	return normalize(answer)
}

// normalize turns an answer into the generic JSON shape of Expect.
func normalize(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// compare checks that got contains want. Objects only check the keys of
// want; arrays must have the same length. It returns the first mismatch.
func compare(path string, want, got any) string {
	switch w := want.(type) {
	case map[string]any:
		g, ok := got.(map[string]any)
		if !ok {
			return fmt.Sprintf("%s: want object, got %v", path, got)
		}
		keys := make([]string, 0, len(w))
		for k := range w {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, k := range keys {
			gv, ok := g[k]
			if !ok {
				if w[k] == nil {
					continue
				}
				return fmt.Sprintf("%s.%s: missing", path, k)
			}
			if d := compare(path+"."+k, w[k], gv); d != "" {
				return d
			}
		}
		return ""
	case []any:
		g, ok := got.([]any)
		if !ok {
			return fmt.Sprintf("%s: want array, got %v", path, got)
		}
		if len(g) != len(w) {
			return fmt.Sprintf("%s: want %d items, got %d", path, len(w), len(g))
		}
		for i := range w {
			if d := compare(fmt.Sprintf("%s[%d]", path, i), w[i], g[i]); d != "" {
				return d
			}
		}
		return ""
	default:
		if !reflect.DeepEqual(want, got) {
			return fmt.Sprintf("%s: want %v, got %v", path, want, got)
		}
		return ""
	}
}

// Summarize computes aggregate stats from replay results.
func Summarize(results []Result) Summary {
	s := Summary{TotalSteps: len(results)}
	for _, r := range results {
		if r.Match {
			s.Matches++
		} else {
			s.Diverged++
		}
	}
	return s
}

// #endregion replay
