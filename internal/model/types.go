package model

import (
	"fmt"
	"time"

	"github.com/atsora/pomamo-engine-sub026/internal/timerange"
)

// #region identifiers

// MachineID identifies a monitored machine.
type MachineID int

// ReasonID identifies a reason. NoReason is the null reason.
type ReasonID int

// MachineModeID identifies a machine mode.
type MachineModeID int

// MachineModeCategoryID groups machine modes.
type MachineModeCategoryID int

// ObservationStateID identifies a machine observation state.
type ObservationStateID int

const (
	// NoReason means no reason was recorded.
	NoReason ReasonID = 0
	// ProcessingReason is a placeholder meaning the reason is not determined yet.
	// It is never an answer.
	ProcessingReason ReasonID = 1
)

// IsProcessing reports whether r is the placeholder reason.
func (r ReasonID) IsProcessing() bool { return r == ProcessingReason }

// Known reports whether r is an actual reason (neither null nor Processing).
func (r ReasonID) Known() bool { return r != NoReason && r != ProcessingReason }

// #endregion identifiers

// #region reason-source

// ReasonSource is a set of flags describing where a reason came from.
type ReasonSource int

const (
	SourceDefault ReasonSource = 1 << iota
	SourceAuto
	SourceManual
)

// IsAuto reports whether the auto flag is set.
func (s ReasonSource) IsAuto() bool { return s&SourceAuto != 0 }

// IsManual reports whether the manual flag is set.
func (s ReasonSource) IsManual() bool { return s&SourceManual != 0 }

// IsDefault reports whether the default flag is set.
func (s ReasonSource) IsDefault() bool { return s&SourceDefault != 0 }

func (s ReasonSource) String() string {
	if s == 0 {
		return "invalid"
	}
	out := ""
	for _, f := range []struct {
		flag ReasonSource
		name string
	}{{SourceDefault, "default"}, {SourceAuto, "auto"}, {SourceManual, "manual"}} {
		if s&f.flag != 0 {
			if out != "" {
				out += "+"
			}
			out += f.name
		}
	}
	return out
}

// #endregion reason-source

// #region machine-mode

// Running is a tri-state running flag of a machine mode.
type Running int8

const (
	RunningUnknown Running = iota
	RunningOn
	RunningOff
)

// MachineMode is the mode a machine reports (active, idle, alarm...).
type MachineMode struct {
	ID       MachineModeID
	Category MachineModeCategoryID
	Running  Running
}

// IsRunning reports whether the mode is known to be running.
func (m MachineMode) IsRunning() bool { return m.Running == RunningOn }

// IsSet reports whether a mode is present.
func (m MachineMode) IsSet() bool { return m.ID != 0 }

// #endregion machine-mode

// #region reason-slot

// ReasonSlot is one raw, persisted interval of the machine-state timeline.
// Slots of one machine never overlap.
type ReasonSlot struct {
	Machine           MachineID
	Range             timerange.Range
	DayRange          timerange.DayRange
	Reason            ReasonID
	Color             string
	MachineMode       MachineMode
	ObservationState  ObservationStateID
	ReasonScore       float64
	ReasonSource      ReasonSource
	AutoReasonCount   int
	OverwriteRequired bool
	Details           string
	DefaultReason     bool
	JSONData          string
}

// IsProcessing reports whether the slot still waits for a reason.
func (s ReasonSlot) IsProcessing() bool { return s.Reason.IsProcessing() }

// Running reports whether the slot's machine mode is running.
func (s ReasonSlot) Running() bool { return s.MachineMode.Running == RunningOn }

// NotRunning reports whether the slot's machine mode is known not to be running.
func (s ReasonSlot) NotRunning() bool { return s.MachineMode.Running == RunningOff }

// IsEmpty reports a zero-width slot, which the store must never return.
func (s ReasonSlot) IsEmpty() bool { return s.Range.IsEmpty() }

func (s ReasonSlot) String() string {
	return fmt.Sprintf("[ReasonSlot Machine=%d Range=%s Reason=%d]", s.Machine, s.Range, s.Reason)
}

// #endregion reason-slot

// #region current-sources

// MachineStatus is the cached status snapshot of a machine.
type MachineStatus struct {
	Machine         MachineID
	Reason          ReasonID
	MachineMode     MachineMode
	ReasonSlotEnd   time.Time
	ReasonScore     float64
	ReasonSource    ReasonSource
	AutoReasonCount int
}

// CurrentMachineMode is the live machine-mode pointer.
// Change is when the mode last changed; zero means unknown.
type CurrentMachineMode struct {
	Machine     MachineID
	MachineMode MachineMode
	DateTime    time.Time
	Change      time.Time
}

// ChangedBefore reports whether the pointer's last change is strictly before t.
// An unknown change is treated as infinitely old.
func (c CurrentMachineMode) ChangedBefore(t time.Time) bool {
	return c.Change.IsZero() || c.Change.Before(t)
}

// Fact is a raw activity sample.
type Fact struct {
	Machine     MachineID
	Range       timerange.Range
	MachineMode MachineMode
}

// End returns the upper bound of the sample.
func (f Fact) End() time.Time { return f.Range.Upper }

// ObservationStateSlot is the observation state in effect over a range.
type ObservationStateSlot struct {
	Machine MachineID
	Range   timerange.Range
	State   ObservationStateID
}

// PossibleReason is a candidate produced by a reason guesser.
// Restricted, when set, limits the range on which the candidate applies.
type PossibleReason struct {
	Reason            ReasonID
	Color             string
	Score             float64
	Source            ReasonSource
	OverwriteRequired bool
	Details           string
	Restricted        *timerange.Range
}

// #endregion current-sources
