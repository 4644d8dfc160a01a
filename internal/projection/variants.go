package projection

// #region imports
import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/rs/zerolog"

	"github.com/atsora/pomamo-engine-sub026/internal/config"
	"github.com/atsora/pomamo-engine-sub026/internal/model"
	"github.com/atsora/pomamo-engine-sub026/internal/slots"
	"github.com/atsora/pomamo-engine-sub026/internal/timerange"
)

// #endregion

// #region color

const (
	GuessColorKey = "ReasonColorSlot.Processing.GuessColor"

	// ProcessingColor is shown for a Processing slot without a guessed color.
	ProcessingColor = "transparent"
)

// Color projects a raw slot onto its display color. A Processing slot takes
// the color of the best guessed reason when GuessColor is set.
type Color struct {
	Guesser    ColorGuesser
	GuessColor bool
	Logger     zerolog.Logger
}

func (Color) Name() string { return "color" }

func (Color) SubSlots() slots.SubSlotKinds { return 0 }

func (v Color) Project(ctx context.Context, raw model.ReasonSlot) (ColorRef, bool, error) {
	ref := ColorRef{
		Processing:        raw.IsProcessing(),
		Color:             raw.Color,
		OverwriteRequired: raw.OverwriteRequired,
		Auto:              raw.ReasonSource.IsAuto(),
		Running:           raw.Running(),
		NotRunning:        raw.NotRunning(),
	}
	if !ref.Processing {
		return ref, true, nil
	}
	ref.Color = ProcessingColor
	if !v.GuessColor || v.Guesser == nil {
		return ref, true, nil
	}
	guess, err := v.Guesser.GuessAt(ctx, raw.Machine, raw.MachineMode, raw.Range.Lower)
	if err != nil {
		return ColorRef{}, false, fmt.Errorf("guess color: %w", err)
	}
	if guess == nil {
		v.Logger.Debug().Int("machine", int(raw.Machine)).Int("mode", int(raw.MachineMode.ID)).
			Msg("no reason guessed for processing slot")
		return ref, true, nil
	}
	if guess.Color != "" {
		ref.Color = guess.Color
	}
	ref.OverwriteRequired = guess.OverwriteRequired
	ref.Auto = guess.Source.IsAuto()
	return ref, true, nil
}

func (Color) Equal(a, b ColorRef) bool {
	return a.Processing == b.Processing &&
		strings.EqualFold(a.Color, b.Color) &&
		a.OverwriteRequired == b.OverwriteRequired &&
		a.Auto == b.Auto &&
		a.Running == b.Running &&
		a.NotRunning == b.NotRunning
}

// #endregion

// #region reason-only

// ReasonOnly keeps the reason and its attributes.
type ReasonOnly struct{}

func (ReasonOnly) Name() string { return "reason-only" }

func (ReasonOnly) SubSlots() slots.SubSlotKinds {
	return slots.ModeSubSlots | slots.ObservationSubSlots
}

func (ReasonOnly) Project(_ context.Context, raw model.ReasonSlot) (ReasonOnlyRef, bool, error) {
	return ReasonOnlyRef{
		Reason:            raw.Reason,
		JSONData:          raw.JSONData,
		Running:           raw.Running(),
		Score:             raw.ReasonScore,
		Source:            raw.ReasonSource,
		AutoReasonCount:   raw.AutoReasonCount,
		OverwriteRequired: raw.OverwriteRequired,
		Details:           raw.Details,
		DefaultReason:     raw.DefaultReason,
	}, true, nil
}

func (ReasonOnly) Equal(a, b ReasonOnlyRef) bool { return a == b }

// #endregion

// #region selection

// Selection annotates each slot with the reasons that can be selected on it.
type Selection struct {
	Selector ReasonSelector
}

func (Selection) Name() string { return "selection" }

func (Selection) SubSlots() slots.SubSlotKinds {
	return slots.ModeSubSlots | slots.ObservationSubSlots
}

func (v Selection) Project(ctx context.Context, raw model.ReasonSlot) (SelectionRef, bool, error) {
	ref := SelectionRef{
		Reason:            raw.Reason,
		Running:           raw.Running(),
		OverwriteRequired: raw.OverwriteRequired,
		Details:           raw.Details,
		DefaultReason:     raw.DefaultReason,
	}
	if v.Selector != nil {
		selectable, err := v.Selector.SelectableReasons(ctx, raw.Machine, raw.Range, raw.MachineMode, raw.ObservationState)
		if err != nil {
			return SelectionRef{}, false, fmt.Errorf("selectable reasons: %w", err)
		}
		ref.Selectable = slices.Compact(slices.Sorted(slices.Values(selectable)))
	}
	return ref, true, nil
}

func (Selection) Equal(a, b SelectionRef) bool {
	return a.Reason == b.Reason &&
		a.Running == b.Running &&
		a.OverwriteRequired == b.OverwriteRequired &&
		a.Details == b.Details &&
		a.DefaultReason == b.DefaultReason &&
		slices.Equal(a.Selectable, b.Selectable)
}

// #endregion

// #region overwrite-required

// OverwriteRequired keeps only the slots whose reason must be overwritten.
type OverwriteRequired struct{}

func (OverwriteRequired) Name() string { return "overwrite-required" }

func (OverwriteRequired) SubSlots() slots.SubSlotKinds { return slots.ModeSubSlots }

func (OverwriteRequired) Project(_ context.Context, raw model.ReasonSlot) (OverwriteRequiredRef, bool, error) {
	if !raw.OverwriteRequired {
		return OverwriteRequiredRef{}, false, nil
	}
	return OverwriteRequiredRef{Reason: raw.Reason, Details: raw.Details, Running: raw.Running()}, true, nil
}

func (OverwriteRequired) Equal(a, b OverwriteRequiredRef) bool { return a == b }

// #endregion

// #region manual-or-overwrite

// ManualOrOverwrite keeps the slots with a manual reason or a reason to
// overwrite.
type ManualOrOverwrite struct{}

func (ManualOrOverwrite) Name() string { return "manual-or-overwrite" }

func (ManualOrOverwrite) SubSlots() slots.SubSlotKinds { return slots.ModeSubSlots }

func (ManualOrOverwrite) Project(_ context.Context, raw model.ReasonSlot) (ManualOrOverwriteRef, bool, error) {
	manual := raw.ReasonSource.IsManual()
	if !manual && !raw.OverwriteRequired {
		return ManualOrOverwriteRef{}, false, nil
	}
	return ManualOrOverwriteRef{
		Reason:            raw.Reason,
		Manual:            manual,
		OverwriteRequired: raw.OverwriteRequired,
		Details:           raw.Details,
	}, true, nil
}

func (ManualOrOverwrite) Equal(a, b ManualOrOverwriteRef) bool { return a == b }

// #endregion

// #region engines

// NewColorEngine returns the color view engine. GuessColor is read from cfg.
func NewColorEngine(source slots.Source, days timerange.DayResolver, cfg config.Getter, guesser ColorGuesser, opts slots.Options) *slots.Engine[ColorRef] {
	v := Color{Guesser: guesser, GuessColor: cfg.Bool(GuessColorKey, true), Logger: opts.Logger}
	return slots.NewEngine[ColorRef](source, v, days, opts)
}

// NewReasonOnlyEngine returns the reason-only view engine.
func NewReasonOnlyEngine(source slots.Source, days timerange.DayResolver, opts slots.Options) *slots.Engine[ReasonOnlyRef] {
	return slots.NewEngine[ReasonOnlyRef](source, ReasonOnly{}, days, opts)
}

// NewSelectionEngine returns the selection view engine.
func NewSelectionEngine(source slots.Source, days timerange.DayResolver, selector ReasonSelector, opts slots.Options) *slots.Engine[SelectionRef] {
	return slots.NewEngine[SelectionRef](source, Selection{Selector: selector}, days, opts)
}

// NewOverwriteRequiredEngine returns the overwrite-required view engine.
func NewOverwriteRequiredEngine(source slots.Source, days timerange.DayResolver, opts slots.Options) *slots.Engine[OverwriteRequiredRef] {
	return slots.NewEngine[OverwriteRequiredRef](source, OverwriteRequired{}, days, opts)
}

// NewManualOrOverwriteEngine returns the manual-or-overwrite view engine.
func NewManualOrOverwriteEngine(source slots.Source, days timerange.DayResolver, opts slots.Options) *slots.Engine[ManualOrOverwriteRef] {
	return slots.NewEngine[ManualOrOverwriteRef](source, ManualOrOverwrite{}, days, opts)
}

// #endregion
