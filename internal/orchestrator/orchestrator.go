package orchestrator

// #region imports
import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/atsora/pomamo-engine-sub026/internal/cache"
	"github.com/atsora/pomamo-engine-sub026/internal/config"
	"github.com/atsora/pomamo-engine-sub026/internal/metrics"
	"github.com/atsora/pomamo-engine-sub026/internal/model"
	"github.com/atsora/pomamo-engine-sub026/internal/projection"
	"github.com/atsora/pomamo-engine-sub026/internal/resolver"
	"github.com/atsora/pomamo-engine-sub026/internal/slots"
	"github.com/atsora/pomamo-engine-sub026/internal/store"
	"github.com/atsora/pomamo-engine-sub026/internal/timerange"
)

// #endregion

// #region options

// Options carries the collaborators of an Orchestrator. Nil values disable
// the matching feature: no guessers means no guess tier and no guessed
// colors, no cache means every Current call resolves.
type Options struct {
	Days     timerange.DayResolver
	Guessers resolver.GuesserProvider
	Selector projection.ReasonSelector
	Cache    cache.Cache
	Observer resolver.Observer
	Metrics  metrics.Recorder
	Logger   zerolog.Logger
	Now      func() time.Time
}

// #endregion

// #region orchestrator-struct

// Orchestrator is the top-level coordinator: it owns one engine per view
// and the current-state resolver, all reading the same backend.
type Orchestrator struct {
	backend  store.Backend
	views    map[VariantID]view
	resolver resolver.StateResolver
	log      zerolog.Logger
}

// view hides the reference data type of an engine.
type view interface {
	findRange(ctx context.Context, q RangeQuery) (RangeAnswer, error)
	findAt(ctx context.Context, q PointQuery) (PointAnswer, error)
}

type engineView[R any] struct {
	id     VariantID
	engine *slots.Engine[R]
	ref    func(R) Record
}

func (v engineView[R]) findRange(ctx context.Context, q RangeQuery) (RangeAnswer, error) {
	res, err := v.engine.FindOverlapsRange(ctx, q.Machine, q.Range, q.Extend)
	if err != nil {
		return RangeAnswer{}, err
	}
	out := RangeAnswer{
		Variant:           v.id,
		Slots:             make([]Record, len(res.Slots)),
		LeftHalted:        res.LeftHalted,
		RightHalted:       res.RightHalted,
		LowerLimitReached: res.LowerLimitReached,
		UpperLimitReached: res.UpperLimitReached,
	}
	for i, s := range res.Slots {
		out.Slots[i] = render(s, v.ref)
	}
	return out, nil
}

func (v engineView[R]) findAt(ctx context.Context, q PointQuery) (PointAnswer, error) {
	res, err := v.engine.FindAt(ctx, q.Machine, q.At, q.Extend)
	if err != nil {
		return PointAnswer{}, err
	}
	out := PointAnswer{
		Variant:           v.id,
		LowerLimitReached: res.LowerLimitReached,
		UpperLimitReached: res.UpperLimitReached,
	}
	if res.Slot != nil {
		out.Slot = render(*res.Slot, v.ref)
	}
	return out, nil
}

// #endregion

// #region constructor

// New wires the five view engines and the resolver on backend. Tunables are
// read from cfg.
func New(backend store.Backend, cfg config.Getter, opts Options) *Orchestrator {
	engineOpts := slots.OptionsFromConfig(cfg)
	engineOpts.Logger = opts.Logger.With().Str("component", "slots").Logger()
	engineOpts.Metrics = opts.Metrics
	engineOpts.Now = opts.Now

	guessPolicy := resolver.GuessPolicy{
		Observations: backend,
		Guessers:     opts.Guessers,
		Logger:       engineOpts.Logger,
	}
	var colorGuesser projection.ColorGuesser
	if opts.Guessers != nil {
		colorGuesser = guessPolicy
	}

	views := map[VariantID]view{
		VariantColor: engineView[projection.ColorRef]{
			id:     VariantColor,
			engine: projection.NewColorEngine(backend, opts.Days, cfg, colorGuesser, engineOpts),
			ref:    colorRecord,
		},
		VariantReasonOnly: engineView[projection.ReasonOnlyRef]{
			id:     VariantReasonOnly,
			engine: projection.NewReasonOnlyEngine(backend, opts.Days, engineOpts),
			ref:    reasonOnlyRecord,
		},
		VariantSelection: engineView[projection.SelectionRef]{
			id:     VariantSelection,
			engine: projection.NewSelectionEngine(backend, opts.Days, opts.Selector, engineOpts),
			ref:    selectionRecord,
		},
		VariantOverwriteRequired: engineView[projection.OverwriteRequiredRef]{
			id:     VariantOverwriteRequired,
			engine: projection.NewOverwriteRequiredEngine(backend, opts.Days, engineOpts),
			ref:    overwriteRequiredRecord,
		},
		VariantManualOrOverwrite: engineView[projection.ManualOrOverwriteRef]{
			id:     VariantManualOrOverwrite,
			engine: projection.NewManualOrOverwriteEngine(backend, opts.Days, engineOpts),
			ref:    manualOrOverwriteRecord,
		},
	}

	resolverOpts := resolver.OptionsFromConfig(cfg)
	resolverOpts.Logger = opts.Logger.With().Str("component", "resolver").Logger()
	resolverOpts.Metrics = opts.Metrics
	resolverOpts.Observer = opts.Observer
	resolverOpts.Now = opts.Now
	var current resolver.StateResolver = resolver.New(backend, opts.Guessers, resolverOpts)
	if opts.Cache != nil {
		current = resolver.NewCached(current, opts.Cache, cfg, opts.Metrics)
	}

	return &Orchestrator{
		backend:  backend,
		views:    views,
		resolver: current,
		log:      opts.Logger,
	}
}

// #endregion

// #region queries

// ErrUnknownVariant is returned for a variant outside Variants.
var ErrUnknownVariant = errors.New("unknown variant")

func (o *Orchestrator) view(id VariantID) (view, error) {
	v, ok := o.views[id]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownVariant, id)
	}
	return v, nil
}

// Range returns the view of a machine over a window.
func (o *Orchestrator) Range(ctx context.Context, q RangeQuery) (RangeAnswer, error) {
	v, err := o.view(q.Variant)
	if err != nil {
		return RangeAnswer{}, err
	}
	ans, err := v.findRange(ctx, q)
	if err != nil {
		return RangeAnswer{}, err
	}
	o.log.Debug().
		Str("variant", string(q.Variant)).
		Int("machine", int(q.Machine)).
		Stringer("range", q.Range).
		Int("slots", len(ans.Slots)).
		Msg("range query")
	return ans, nil
}

// At returns the view slot covering an instant.
func (o *Orchestrator) At(ctx context.Context, q PointQuery) (PointAnswer, error) {
	v, err := o.view(q.Variant)
	if err != nil {
		return PointAnswer{}, err
	}
	return v.findAt(ctx, q)
}

// Current resolves the current state of machine.
func (o *Orchestrator) Current(ctx context.Context, machine model.MachineID, period resolver.PeriodFlags, notRunningOnly bool) (resolver.State, error) {
	return o.resolver.Resolve(ctx, machine, period, notRunningOnly)
}

// Machines lists the machines known to the backend.
func (o *Orchestrator) Machines(ctx context.Context) ([]model.MachineID, error) {
	return o.backend.Machines(ctx)
}

// #endregion
