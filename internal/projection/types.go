package projection

// #region imports
import (
	"context"
	"time"

	"github.com/atsora/pomamo-engine-sub026/internal/model"
	"github.com/atsora/pomamo-engine-sub026/internal/slots"
	"github.com/atsora/pomamo-engine-sub026/internal/timerange"
)

// #endregion

// #region collaborators

// ReasonSelector returns the reasons an operator may pick for a slot.
type ReasonSelector interface {
	SelectableReasons(ctx context.Context, machine model.MachineID, r timerange.Range, mode model.MachineMode, observation model.ObservationStateID) ([]model.ReasonID, error)
}

// ColorGuesser returns the best reason candidate for a machine in mode at an
// instant, nil when there is none.
type ColorGuesser interface {
	GuessAt(ctx context.Context, machine model.MachineID, mode model.MachineMode, at time.Time) (*model.PossibleReason, error)
}

// #endregion

// #region reference-data

// ColorRef is the reference data of the color view.
type ColorRef struct {
	Processing        bool
	Color             string
	OverwriteRequired bool
	Auto              bool
	Running           bool
	NotRunning        bool
}

// ReasonOnlyRef is the reference data of the reason-only view.
type ReasonOnlyRef struct {
	Reason            model.ReasonID
	JSONData          string
	Running           bool
	Score             float64
	Source            model.ReasonSource
	AutoReasonCount   int
	OverwriteRequired bool
	Details           string
	DefaultReason     bool
}

// SelectionRef is the reference data of the selection view.
// Selectable is sorted and free of duplicates.
type SelectionRef struct {
	Reason            model.ReasonID
	Running           bool
	OverwriteRequired bool
	Details           string
	DefaultReason     bool
	Selectable        []model.ReasonID
}

// OverwriteRequiredRef is the reference data of the overwrite-required view.
type OverwriteRequiredRef struct {
	Reason  model.ReasonID
	Details string
	Running bool
}

// ManualOrOverwriteRef is the reference data of the manual-or-overwrite view.
type ManualOrOverwriteRef struct {
	Reason            model.ReasonID
	Manual            bool
	OverwriteRequired bool
	Details           string
}

type (
	ColorSlot             = slots.Slot[ColorRef]
	ReasonOnlySlot        = slots.Slot[ReasonOnlyRef]
	SelectionSlot         = slots.Slot[SelectionRef]
	OverwriteRequiredSlot = slots.Slot[OverwriteRequiredRef]
	ManualOrOverwriteSlot = slots.Slot[ManualOrOverwriteRef]
)

// #endregion
