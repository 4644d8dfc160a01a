package orchestrator

// #region imports
import (
	"time"

	"github.com/atsora/pomamo-engine-sub026/internal/model"
	"github.com/atsora/pomamo-engine-sub026/internal/slots"
	"github.com/atsora/pomamo-engine-sub026/internal/timerange"
)

// #endregion

// #region variant-id

// VariantID names a view of the timeline.
type VariantID string

const (
	VariantColor             VariantID = "color"
	VariantReasonOnly        VariantID = "reason-only"
	VariantSelection         VariantID = "selection"
	VariantOverwriteRequired VariantID = "overwrite-required"
	VariantManualOrOverwrite VariantID = "manual-or-overwrite"
)

// Variants lists every view, in display order.
var Variants = []VariantID{
	VariantColor,
	VariantReasonOnly,
	VariantSelection,
	VariantOverwriteRequired,
	VariantManualOrOverwrite,
}

// #endregion

// #region queries

// RangeQuery asks for the view of a machine over a window.
type RangeQuery struct {
	Variant VariantID
	Machine model.MachineID
	Range   timerange.Range
	Extend  slots.ExtendOptions
}

// PointQuery asks for the view slot covering an instant.
type PointQuery struct {
	Variant VariantID
	Machine model.MachineID
	At      time.Time
	Extend  slots.ExtendOptions
}

// #endregion

// #region answers

// Record is one view slot flattened for output: JSON, protobuf structs and
// replay fixtures all read it. Values are strings, bools, ints, floats, or
// lists and maps of those.
type Record map[string]any

// RangeAnswer is the view of a window.
type RangeAnswer struct {
	Variant           VariantID `json:"variant"`
	Slots             []Record  `json:"slots"`
	LeftHalted        bool      `json:"left_halted,omitempty"`
	RightHalted       bool      `json:"right_halted,omitempty"`
	LowerLimitReached bool      `json:"lower_limit_reached,omitempty"`
	UpperLimitReached bool      `json:"upper_limit_reached,omitempty"`
}

// PointAnswer is the view slot covering an instant. Slot is nil when there is
// none.
type PointAnswer struct {
	Variant           VariantID `json:"variant"`
	Slot              Record    `json:"slot"`
	LowerLimitReached bool      `json:"lower_limit_reached,omitempty"`
	UpperLimitReached bool      `json:"upper_limit_reached,omitempty"`
}

// #endregion
