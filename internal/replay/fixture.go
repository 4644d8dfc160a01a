package replay

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/atsora/pomamo-engine-sub026/internal/guess"
	"github.com/atsora/pomamo-engine-sub026/internal/model"
	"github.com/atsora/pomamo-engine-sub026/internal/store"
	"github.com/atsora/pomamo-engine-sub026/internal/timerange"
)

// #region fixture-types

// Fixture is the top-level JSON structure for a replay fixture: a raw
// timeline, the queries to run on it and what they must answer.
type Fixture struct {
	Description string            `json:"description"`
	Now         string            `json:"now"`
	Settings    map[string]string `json:"settings"`
	Rules       []FixtureRule     `json:"rules"`
	Dataset     FixtureDataset    `json:"dataset"`
	Steps       []FixtureStep     `json:"steps"`
}

// FixtureDataset is the JSON form of store.Dataset. It is also the
// import/export format of the command line.
type FixtureDataset struct {
	Slots        []FixtureSlot        `json:"slots,omitempty"`
	Statuses     []FixtureStatus      `json:"statuses,omitempty"`
	Pointers     []FixturePointer     `json:"pointers,omitempty"`
	Facts        []FixtureFact        `json:"facts,omitempty"`
	Observations []FixtureObservation `json:"observations,omitempty"`
}

// FixtureMode is a machine mode. Running is "on", "off" or empty.
type FixtureMode struct {
	ID       int    `json:"id"`
	Category int    `json:"category,omitempty"`
	Running  string `json:"running,omitempty"`
}

// FixtureSlot mirrors model.ReasonSlot. Empty bounds are unbounded.
type FixtureSlot struct {
	Machine           int         `json:"machine"`
	Lower             string      `json:"lower,omitempty"`
	Upper             string      `json:"upper,omitempty"`
	Reason            int         `json:"reason"`
	Color             string      `json:"color,omitempty"`
	Mode              FixtureMode `json:"mode"`
	Observation       int         `json:"observation,omitempty"`
	Score             float64     `json:"score,omitempty"`
	Source            string      `json:"source,omitempty"`
	AutoReasonCount   int         `json:"auto_reason_count,omitempty"`
	OverwriteRequired bool        `json:"overwrite_required,omitempty"`
	Details           string      `json:"details,omitempty"`
	DefaultReason     bool        `json:"default_reason,omitempty"`
	JSONData          string      `json:"json_data,omitempty"`
}

// FixtureStatus mirrors model.MachineStatus.
type FixtureStatus struct {
	Machine         int         `json:"machine"`
	Reason          int         `json:"reason"`
	Mode            FixtureMode `json:"mode"`
	ReasonSlotEnd   string      `json:"reason_slot_end"`
	Score           float64     `json:"score,omitempty"`
	Source          string      `json:"source,omitempty"`
	AutoReasonCount int         `json:"auto_reason_count,omitempty"`
}

// FixturePointer mirrors model.CurrentMachineMode.
type FixturePointer struct {
	Machine  int         `json:"machine"`
	Mode     FixtureMode `json:"mode"`
	DateTime string      `json:"date_time"`
	Change   string      `json:"change,omitempty"`
}

// FixtureFact mirrors model.Fact.
type FixtureFact struct {
	Machine int         `json:"machine"`
	Lower   string      `json:"lower,omitempty"`
	Upper   string      `json:"upper,omitempty"`
	Mode    FixtureMode `json:"mode"`
}

// FixtureObservation mirrors model.ObservationStateSlot.
type FixtureObservation struct {
	Machine int    `json:"machine"`
	Lower   string `json:"lower,omitempty"`
	Upper   string `json:"upper,omitempty"`
	State   int    `json:"state"`
}

// FixtureRule mirrors guess.Rule with JSON tags.
type FixtureRule struct {
	Machine           int     `json:"machine,omitempty"`
	Mode              int     `json:"mode"`
	Observation       int     `json:"observation"`
	Reason            int     `json:"reason"`
	Score             float64 `json:"score,omitempty"`
	Priority          int     `json:"priority,omitempty"`
	Color             string  `json:"color,omitempty"`
	Details           string  `json:"details,omitempty"`
	Auto              bool    `json:"auto,omitempty"`
	OverwriteRequired bool    `json:"overwrite_required,omitempty"`
}

// FixtureStep is one query. Kind is "range", "at" or "current". Now, when
// set, replaces the fixture clock for this step. Expect is compared as a
// subset: only the keys it names are checked.
type FixtureStep struct {
	ID             string `json:"id"`
	Kind           string `json:"kind"`
	Now            string `json:"now,omitempty"`
	Variant        string `json:"variant,omitempty"`
	Machine        int    `json:"machine"`
	Lower          string `json:"lower,omitempty"`
	Upper          string `json:"upper,omitempty"`
	At             string `json:"at,omitempty"`
	Extend         bool   `json:"extend,omitempty"`
	LimitLower     string `json:"limit_lower,omitempty"`
	LimitUpper     string `json:"limit_upper,omitempty"`
	Period         string `json:"period,omitempty"`
	NotRunningOnly bool   `json:"not_running_only,omitempty"`
	Expect         any    `json:"expect"`
}

// #endregion fixture-types

// #region fixture-loader

// LoadFixture reads and parses a JSON fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	return &f, nil
}

// ToRules converts the fixture rules to guess rules.
func (f *Fixture) ToRules() []guess.Rule {
	out := make([]guess.Rule, len(f.Rules))
	for i, r := range f.Rules {
		out[i] = guess.Rule{
			Machine:           model.MachineID(r.Machine),
			MachineMode:       model.MachineModeID(r.Mode),
			ObservationState:  model.ObservationStateID(r.Observation),
			Reason:            model.ReasonID(r.Reason),
			Score:             r.Score,
			Priority:          r.Priority,
			Color:             r.Color,
			Details:           r.Details,
			Auto:              r.Auto,
			OverwriteRequired: r.OverwriteRequired,
		}
	}
	return out
}

// #endregion fixture-loader

// #region dataset-codec

// ParseTime parses an RFC 3339 instant. The empty string is the zero time.
func ParseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t.UTC(), nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseRange(lower, upper string) (timerange.Range, error) {
	l, err := ParseTime(lower)
	if err != nil {
		return timerange.Range{}, err
	}
	u, err := ParseTime(upper)
	if err != nil {
		return timerange.Range{}, err
	}
	return timerange.Range{Lower: l, Upper: u}, nil
}

func parseSource(s string) (model.ReasonSource, error) {
	var out model.ReasonSource
	for _, p := range strings.FieldsFunc(s, func(r rune) bool { return r == '+' || r == '|' || r == ',' }) {
		switch strings.ToLower(strings.TrimSpace(p)) {
		case "default":
			out |= model.SourceDefault
		case "auto":
			out |= model.SourceAuto
		case "manual":
			out |= model.SourceManual
		default:
			return 0, fmt.Errorf("unknown reason source %q", p)
		}
	}
	return out, nil
}

func formatSource(s model.ReasonSource) string {
	if s == 0 {
		return ""
	}
	return s.String()
}

func (m FixtureMode) toModel() (model.MachineMode, error) {
	out := model.MachineMode{ID: model.MachineModeID(m.ID), Category: model.MachineModeCategoryID(m.Category)}
	switch m.Running {
	case "":
	case "on":
		out.Running = model.RunningOn
	case "off":
		out.Running = model.RunningOff
	default:
		return model.MachineMode{}, fmt.Errorf("running %q: want on, off or empty", m.Running)
	}
	return out, nil
}

func modeOf(m model.MachineMode) FixtureMode {
	out := FixtureMode{ID: int(m.ID), Category: int(m.Category)}
	switch m.Running {
	case model.RunningOn:
		out.Running = "on"
	case model.RunningOff:
		out.Running = "off"
	}
	return out
}

// ToDataset converts d to the store representation. Day ranges of the slots
// are computed with days.
func (d FixtureDataset) ToDataset(days timerange.DayResolver) (store.Dataset, error) {
	var ds store.Dataset
	for i, s := range d.Slots {
		r, err := parseRange(s.Lower, s.Upper)
		if err != nil {
			return store.Dataset{}, fmt.Errorf("slot %d: %w", i, err)
		}
		mode, err := s.Mode.toModel()
		if err != nil {
			return store.Dataset{}, fmt.Errorf("slot %d: %w", i, err)
		}
		src, err := parseSource(s.Source)
		if err != nil {
			return store.Dataset{}, fmt.Errorf("slot %d: %w", i, err)
		}
		if r.IsEmpty() {
			return store.Dataset{}, fmt.Errorf("slot %d: empty range %s", i, r)
		}
		ds.Slots = append(ds.Slots, model.ReasonSlot{
			Machine:           model.MachineID(s.Machine),
			Range:             r,
			DayRange:          days.DayRange(r),
			Reason:            model.ReasonID(s.Reason),
			Color:             s.Color,
			MachineMode:       mode,
			ObservationState:  model.ObservationStateID(s.Observation),
			ReasonScore:       s.Score,
			ReasonSource:      src,
			AutoReasonCount:   s.AutoReasonCount,
			OverwriteRequired: s.OverwriteRequired,
			Details:           s.Details,
			DefaultReason:     s.DefaultReason,
			JSONData:          s.JSONData,
		})
	}
	for i, s := range d.Statuses {
		end, err := ParseTime(s.ReasonSlotEnd)
		if err != nil {
			return store.Dataset{}, fmt.Errorf("status %d: %w", i, err)
		}
		mode, err := s.Mode.toModel()
		if err != nil {
			return store.Dataset{}, fmt.Errorf("status %d: %w", i, err)
		}
		src, err := parseSource(s.Source)
		if err != nil {
			return store.Dataset{}, fmt.Errorf("status %d: %w", i, err)
		}
		ds.Statuses = append(ds.Statuses, model.MachineStatus{
			Machine:         model.MachineID(s.Machine),
			Reason:          model.ReasonID(s.Reason),
			MachineMode:     mode,
			ReasonSlotEnd:   end,
			ReasonScore:     s.Score,
			ReasonSource:    src,
			AutoReasonCount: s.AutoReasonCount,
		})
	}
	for i, p := range d.Pointers {
		at, err := ParseTime(p.DateTime)
		if err != nil {
			return store.Dataset{}, fmt.Errorf("pointer %d: %w", i, err)
		}
		change, err := ParseTime(p.Change)
		if err != nil {
			return store.Dataset{}, fmt.Errorf("pointer %d: %w", i, err)
		}
		mode, err := p.Mode.toModel()
		if err != nil {
			return store.Dataset{}, fmt.Errorf("pointer %d: %w", i, err)
		}
		ds.Pointers = append(ds.Pointers, model.CurrentMachineMode{
			Machine: model.MachineID(p.Machine), MachineMode: mode, DateTime: at, Change: change,
		})
	}
	for i, f := range d.Facts {
		r, err := parseRange(f.Lower, f.Upper)
		if err != nil {
			return store.Dataset{}, fmt.Errorf("fact %d: %w", i, err)
		}
		mode, err := f.Mode.toModel()
		if err != nil {
			return store.Dataset{}, fmt.Errorf("fact %d: %w", i, err)
		}
		ds.Facts = append(ds.Facts, model.Fact{Machine: model.MachineID(f.Machine), Range: r, MachineMode: mode})
	}
	for i, o := range d.Observations {
		r, err := parseRange(o.Lower, o.Upper)
		if err != nil {
			return store.Dataset{}, fmt.Errorf("observation %d: %w", i, err)
		}
		ds.Observations = append(ds.Observations, model.ObservationStateSlot{
			Machine: model.MachineID(o.Machine), Range: r, State: model.ObservationStateID(o.State),
		})
	}
	return ds, nil
}

// DatasetOf converts a store dataset to its JSON form.
func DatasetOf(ds store.Dataset) FixtureDataset {
	var out FixtureDataset
	for _, s := range ds.Slots {
		out.Slots = append(out.Slots, FixtureSlot{
			Machine:           int(s.Machine),
			Lower:             formatTime(s.Range.Lower),
			Upper:             formatTime(s.Range.Upper),
			Reason:            int(s.Reason),
			Color:             s.Color,
			Mode:              modeOf(s.MachineMode),
			Observation:       int(s.ObservationState),
			Score:             s.ReasonScore,
			Source:            formatSource(s.ReasonSource),
			AutoReasonCount:   s.AutoReasonCount,
			OverwriteRequired: s.OverwriteRequired,
			Details:           s.Details,
			DefaultReason:     s.DefaultReason,
			JSONData:          s.JSONData,
		})
	}
	for _, s := range ds.Statuses {
		out.Statuses = append(out.Statuses, FixtureStatus{
			Machine:         int(s.Machine),
			Reason:          int(s.Reason),
			Mode:            modeOf(s.MachineMode),
			ReasonSlotEnd:   formatTime(s.ReasonSlotEnd),
			Score:           s.ReasonScore,
			Source:          formatSource(s.ReasonSource),
			AutoReasonCount: s.AutoReasonCount,
		})
	}
	for _, p := range ds.Pointers {
		out.Pointers = append(out.Pointers, FixturePointer{
			Machine: int(p.Machine), Mode: modeOf(p.MachineMode), DateTime: formatTime(p.DateTime), Change: formatTime(p.Change),
		})
	}
	for _, f := range ds.Facts {
		out.Facts = append(out.Facts, FixtureFact{
			Machine: int(f.Machine), Lower: formatTime(f.Range.Lower), Upper: formatTime(f.Range.Upper), Mode: modeOf(f.MachineMode),
		})
	}
	for _, o := range ds.Observations {
		out.Observations = append(out.Observations, FixtureObservation{
			Machine: int(o.Machine), Lower: formatTime(o.Range.Lower), Upper: formatTime(o.Range.Upper), State: int(o.State),
		})
	}
	return out
}

// #endregion dataset-codec
