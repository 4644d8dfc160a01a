package resolver

// #region imports
import (
	"context"
	"iter"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/atsora/pomamo-engine-sub026/internal/config"
	"github.com/atsora/pomamo-engine-sub026/internal/metrics"
	"github.com/atsora/pomamo-engine-sub026/internal/model"
	"github.com/atsora/pomamo-engine-sub026/internal/slots"
	"github.com/atsora/pomamo-engine-sub026/internal/timerange"
)

// #endregion

// #region collaborators

// ObservationReader looks up the observation state in effect at an instant.
type ObservationReader interface {
	ObservationStateAt(ctx context.Context, machine model.MachineID, at time.Time) (*model.ObservationStateSlot, error)
}

// Reader gives access to every source the cascade consults. Lookups return
// nil, nil when there is nothing.
type Reader interface {
	slots.DescendingSource
	ObservationReader
	MachineStatus(ctx context.Context, machine model.MachineID) (*model.MachineStatus, error)
	CurrentMachineMode(ctx context.Context, machine model.MachineID) (*model.CurrentMachineMode, error)
	LastFact(ctx context.Context, machine model.MachineID) (*model.Fact, error)
	FindFactsDescending(ctx context.Context, machine model.MachineID, r timerange.Range, step time.Duration) iter.Seq2[model.Fact, error]
}

// Snapshotter runs fn against a consistent read-only view of the store.
// label names the scope in logs.
type Snapshotter interface {
	ReadOnly(ctx context.Context, label string, fn func(Reader) error) error
}

// Guesser proposes reasons for a machine mode and observation state.
type Guesser interface {
	TryActiveAt(ctx context.Context, at time.Time, mode model.MachineMode, observation model.ObservationStateID) ([]model.PossibleReason, error)
}

// GuesserProvider returns the guessers that apply to a machine.
type GuesserProvider interface {
	ReasonGuessers(ctx context.Context, machine model.MachineID) ([]Guesser, error)
}

// Observer is told about every resolved state.
type Observer interface {
	Resolved(ctx context.Context, q Query, s State)
}

// #endregion

// #region period-flags

// PeriodFlags selects which attributes must stay equal for a record to be in
// the current period. Zero disables the period computation.
type PeriodFlags uint8

const (
	PeriodReason PeriodFlags = 1 << iota
	PeriodMachineModeCategory
	PeriodRunning

	PeriodNone PeriodFlags = 0
)

// Has reports whether all the flags of other are set.
func (f PeriodFlags) Has(other PeriodFlags) bool { return f&other == other }

func (f PeriodFlags) String() string {
	if f == PeriodNone {
		return "None"
	}
	var parts []string
	if f.Has(PeriodReason) {
		parts = append(parts, "Reason")
	}
	if f.Has(PeriodMachineModeCategory) {
		parts = append(parts, "MachineModeCategory")
	}
	if f.Has(PeriodRunning) {
		parts = append(parts, "Running")
	}
	return strings.Join(parts, "|")
}

// ParsePeriodFlags parses the String form, also accepting lower case and
// comma separators.
func ParsePeriodFlags(s string) (PeriodFlags, bool) {
	var f PeriodFlags
	for _, p := range strings.FieldsFunc(s, func(r rune) bool { return r == '|' || r == ',' || r == ' ' }) {
		switch strings.ToLower(p) {
		case "none":
		case "reason":
			f |= PeriodReason
		case "machinemodecategory", "category":
			f |= PeriodMachineModeCategory
		case "running":
			f |= PeriodRunning
		default:
			return 0, false
		}
	}
	return f, true
}

// #endregion

// #region state

// Origin tells which tier of the cascade produced a value.
type Origin uint8

const (
	Unresolved Origin = iota
	FromStatus
	FromRecentSlots
	FromLivePointer
	FromLastFact
	FromGuess
)

func (o Origin) String() string {
	switch o {
	case FromStatus:
		return "status"
	case FromRecentSlots:
		return "recent-slots"
	case FromLivePointer:
		return "live-pointer"
	case FromLastFact:
		return "last-fact"
	case FromGuess:
		return "guess"
	default:
		return "unresolved"
	}
}

// Query is the input of a resolution.
type Query struct {
	Machine        model.MachineID
	Period         PeriodFlags
	NotRunningOnly bool
}

// State is the best-known current state of a machine. Origin is the tier
// that gave the reason and ModeOrigin the one that gave the machine mode.
// Only CurrentDateTime is set on an unresolved state.
type State struct {
	Reason          model.ReasonID
	MachineMode     model.MachineMode
	DateTime        time.Time
	ReasonScore     *float64
	ReasonSource    *model.ReasonSource
	AutoReasonCount *int
	PeriodStart     *time.Time
	Origin          Origin
	ModeOrigin      Origin
	CurrentDateTime time.Time
}

// Resolved reports whether a reason is known.
func (s State) Resolved() bool { return s.Origin != Unresolved }

// #endregion

// #region options

const (
	ReasonSlotMarginKey  = "Business.Reason.CurrentReason.UseReasonSlotMargin"
	CurrentModeMarginKey = "Business.Reason.CurrentReason.CurrentMachineModeMargin"
	LimitMarginKey       = "Business.Reason.CurrentReason.LimitMargin"
	MaxPeriodKey         = "Business.Reason.CurrentReason.MaxPeriodDuration"
	ReasonSlotStepKey    = "Business.Reason.CurrentReason.ReasonSlotStep"
	FactStepKey          = "Business.Reason.CurrentReason.FactStep"
	CacheTTLKey          = "Business.Reason.CurrentReason.CacheTTL"
)

// Options holds the margins and scan bounds of the cascade. Zero values take
// the defaults.
type Options struct {
	ReasonSlotMargin  time.Duration // M1
	CurrentModeMargin time.Duration // M2
	LimitMargin       time.Duration // M3
	MaxPeriod         time.Duration
	ReasonSlotStep    time.Duration
	FactStep          time.Duration

	Now      func() time.Time
	Logger   zerolog.Logger
	Metrics  metrics.Recorder
	Observer Observer
}

// DefaultOptions returns the built-in margins.
func DefaultOptions() Options {
	return Options{
		ReasonSlotMargin:  10 * time.Second,
		CurrentModeMargin: 30 * time.Second,
		LimitMargin:       time.Minute,
		MaxPeriod:         24 * time.Hour,
		ReasonSlotStep:    8 * time.Hour,
		FactStep:          8 * time.Hour,
		Logger:            zerolog.Nop(),
	}
}

// OptionsFromConfig reads the margins from cfg.
func OptionsFromConfig(cfg config.Getter) Options {
	d := DefaultOptions()
	d.ReasonSlotMargin = cfg.Duration(ReasonSlotMarginKey, d.ReasonSlotMargin)
	d.CurrentModeMargin = cfg.Duration(CurrentModeMarginKey, d.CurrentModeMargin)
	d.LimitMargin = cfg.Duration(LimitMarginKey, d.LimitMargin)
	d.MaxPeriod = cfg.Duration(MaxPeriodKey, d.MaxPeriod)
	d.ReasonSlotStep = cfg.Duration(ReasonSlotStepKey, d.ReasonSlotStep)
	d.FactStep = cfg.Duration(FactStepKey, d.FactStep)
	return d
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.ReasonSlotMargin <= 0 {
		o.ReasonSlotMargin = d.ReasonSlotMargin
	}
	if o.CurrentModeMargin <= 0 {
		o.CurrentModeMargin = d.CurrentModeMargin
	}
	if o.LimitMargin <= 0 {
		o.LimitMargin = d.LimitMargin
	}
	if o.MaxPeriod <= 0 {
		o.MaxPeriod = d.MaxPeriod
	}
	if o.ReasonSlotStep <= 0 {
		o.ReasonSlotStep = d.ReasonSlotStep
	}
	if o.FactStep <= 0 {
		o.FactStep = d.FactStep
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// #endregion
