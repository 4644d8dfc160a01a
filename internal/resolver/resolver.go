package resolver

// #region imports
import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/atsora/pomamo-engine-sub026/internal/metrics"
	"github.com/atsora/pomamo-engine-sub026/internal/model"
	"github.com/atsora/pomamo-engine-sub026/internal/timerange"
)

// #endregion

// #region resolution

// resolution is the immutable working value threaded through the tiers.
type resolution struct {
	reason      model.ReasonID
	mode        model.MachineMode
	hasMode     bool
	dateTime    time.Time
	score       *float64
	source      *model.ReasonSource
	autoCount   *int
	periodStart time.Time
	hasPeriod   bool
	origin      Origin
	modeOrigin  Origin
}

func (r resolution) hasReason() bool { return r.reason.Known() }

func (r resolution) withPeriod(t time.Time, ok bool) resolution {
	if ok {
		r.periodStart, r.hasPeriod = t, true
	}
	return r
}

func (r resolution) state(now time.Time) State {
	if !r.hasReason() {
		return State{CurrentDateTime: now}
	}
	s := State{
		Reason:          r.reason,
		MachineMode:     r.mode,
		DateTime:        r.dateTime,
		ReasonScore:     r.score,
		ReasonSource:    r.source,
		AutoReasonCount: r.autoCount,
		Origin:          r.origin,
		ModeOrigin:      r.modeOrigin,
		CurrentDateTime: now,
	}
	if r.hasPeriod {
		ps := r.periodStart
		s.PeriodStart = &ps
	}
	return s
}

func ptr[T any](v T) *T { return &v }

// #endregion

// #region resolver

// Resolver computes the current state of a machine from sources that are
// updated independently and go stale at different paces.
type Resolver struct {
	snap     Snapshotter
	guessers GuesserProvider
	opts     Options
	log      zerolog.Logger
	metrics  metrics.Recorder
}

// New wires a resolver.
func New(snap Snapshotter, guessers GuesserProvider, opts Options) *Resolver {
	opts = opts.withDefaults()
	return &Resolver{
		snap:     snap,
		guessers: guessers,
		opts:     opts,
		log:      opts.Logger,
		metrics:  metrics.OrNoop(opts.Metrics),
	}
}

// call carries the per-resolution constants.
type call struct {
	Query
	now time.Time
}

// Resolve returns the best-known current state of machine. An unresolved
// state is not an error.
func (r *Resolver) Resolve(ctx context.Context, machine model.MachineID, period PeriodFlags, notRunningOnly bool) (State, error) {
	start := time.Now()
	c := call{Query: Query{Machine: machine, Period: period, NotRunningOnly: notRunningOnly}, now: r.opts.Now().UTC()}
	res := resolution{dateTime: c.now}

	err := r.snap.ReadOnly(ctx, "resolver.current", func(rd Reader) error {
		var err error
		res, err = r.current(ctx, rd, c, res)
		return err
	})
	if err != nil {
		return State{}, fmt.Errorf("resolve machine %d: %w", machine, err)
	}

	if res.hasMode && !res.hasReason() {
		err = r.snap.ReadOnly(ctx, "resolver.guess", func(rd Reader) error {
			var err error
			res, err = r.guess(ctx, rd, c, res)
			return err
		})
		if err != nil {
			return State{}, fmt.Errorf("guess reason of machine %d: %w", machine, err)
		}
	}

	s := res.state(c.now)
	r.metrics.IncResolve(s.Origin.String())
	r.metrics.ObserveResolve(time.Since(start))
	r.log.Debug().
		Int("machine", int(machine)).
		Str("origin", s.Origin.String()).
		Int("reason", int(s.Reason)).
		Msg("resolved current state")
	if r.opts.Observer != nil {
		r.opts.Observer.Resolved(ctx, c.Query, s)
	}
	return s, nil
}

// #endregion

// #region current

// current runs the status, recent-slots, live-pointer and last-fact tiers.
func (r *Resolver) current(ctx context.Context, rd Reader, c call, res resolution) (resolution, error) {
	status, err := rd.MachineStatus(ctx, c.Machine)
	if err != nil {
		return res, fmt.Errorf("machine status: %w", err)
	}
	if res, err = r.fromStatusWithin(ctx, rd, c, res, status, r.opts.ReasonSlotMargin); err != nil || res.hasReason() {
		return res, err
	}

	if res, err = r.fromRecentSlots(ctx, rd, c, res); err != nil || res.hasReason() {
		return res, err
	}

	pointer, err := rd.CurrentMachineMode(ctx, c.Machine)
	if err != nil {
		return res, fmt.Errorf("current machine mode: %w", err)
	}
	if res, err = r.fromLivePointer(ctx, rd, c, res, status, pointer); err != nil || res.hasMode {
		return res, err
	}

	if status != nil && (pointer == nil || pointer.ChangedBefore(status.ReasonSlotEnd)) {
		if res, err = r.fromStatusWithin(ctx, rd, c, res, status, r.opts.LimitMargin); err != nil || res.hasMode {
			return res, err
		}
	}
	return r.fromLastFact(ctx, rd, c, res, pointer)
}

// fromStatusWithin accepts status when now is within margin of its slot end.
func (r *Resolver) fromStatusWithin(ctx context.Context, rd Reader, c call, res resolution, status *model.MachineStatus, margin time.Duration) (resolution, error) {
	if status == nil || c.now.After(status.ReasonSlotEnd.Add(margin)) {
		return res, nil
	}
	return r.fromStatus(ctx, rd, c, res, *status)
}

// fromStatus copies the status snapshot. A Processing reason stays absent.
func (r *Resolver) fromStatus(ctx context.Context, rd Reader, c call, res resolution, status model.MachineStatus) (resolution, error) {
	out := res
	if status.Reason.Known() {
		out.reason = status.Reason
		out.origin = FromStatus
	}
	out.mode, out.hasMode, out.modeOrigin = status.MachineMode, true, FromStatus
	out.dateTime = status.ReasonSlotEnd
	out.score = ptr(status.ReasonScore)
	out.source = ptr(status.ReasonSource)
	out.autoCount = ptr(status.AutoReasonCount)
	if r.wantsPeriod(c, out.mode) {
		ps, ok, err := r.periodFromSlots(ctx, rd, c, out.mode, status.Reason, out.dateTime)
		if err != nil {
			return res, err
		}
		out = out.withPeriod(ps, ok)
	}
	return out, nil
}

// fromRecentSlots scans the slots of the last M1 from the most recent one.
// The first slot always gives the mode. When it has no reason, one more slot
// is examined and the scan gives up after it.
func (r *Resolver) fromRecentSlots(ctx context.Context, rd Reader, c call, res resolution) (resolution, error) {
	margin := r.opts.ReasonSlotMargin
	window := timerange.Since(c.now.Add(-margin))
	out := res
	first := true
	for slot, err := range rd.FindOverlapsRangeDescending(ctx, c.Machine, window, margin) {
		if err != nil {
			return res, fmt.Errorf("recent slots: %w", err)
		}
		known := slot.Reason.Known()
		if first || known {
			out = res
			if known {
				out.reason, out.origin = slot.Reason, FromRecentSlots
			}
			out.mode, out.hasMode, out.modeOrigin = slot.MachineMode, true, FromRecentSlots
			out.dateTime = c.now
			if slot.Range.HasUpper() {
				out.dateTime = slot.Range.Upper
			}
			out.score = ptr(slot.ReasonScore)
			out.source = ptr(slot.ReasonSource)
			out.autoCount = ptr(slot.AutoReasonCount)
			if known && r.wantsPeriod(c, out.mode) {
				ps, ok, err := r.periodFromSlots(ctx, rd, c, out.mode, slot.Reason, out.dateTime)
				if err != nil {
					return res, err
				}
				out = out.withPeriod(ps, ok)
			}
		}
		if known || !first {
			break
		}
		first = false
	}
	return out, nil
}

// fromLivePointer accepts the current-machine-mode pointer within M2. When
// the status slot ended after the pointer last changed, the status wins.
func (r *Resolver) fromLivePointer(ctx context.Context, rd Reader, c call, res resolution, status *model.MachineStatus, pointer *model.CurrentMachineMode) (resolution, error) {
	if pointer == nil || c.now.After(pointer.DateTime.Add(r.opts.CurrentModeMargin)) {
		return res, nil
	}
	if status != nil && pointer.ChangedBefore(status.ReasonSlotEnd) {
		return r.fromStatus(ctx, rd, c, res, *status)
	}
	out := res
	out.mode, out.hasMode, out.modeOrigin = pointer.MachineMode, true, FromLivePointer
	out.dateTime = pointer.DateTime
	return out, nil
}

// fromLastFact accepts the last fact within M3 when it is at least as recent
// as the pointer, else the pointer within M3.
func (r *Resolver) fromLastFact(ctx context.Context, rd Reader, c call, res resolution, pointer *model.CurrentMachineMode) (resolution, error) {
	fact, err := rd.LastFact(ctx, c.Machine)
	if err != nil {
		return res, fmt.Errorf("last fact: %w", err)
	}
	margin := r.opts.LimitMargin
	out := res
	switch {
	case fact != nil && (pointer == nil || !pointer.DateTime.After(fact.End())):
		if c.now.After(fact.End().Add(margin)) {
			return res, nil
		}
		out.mode, out.hasMode, out.modeOrigin = fact.MachineMode, true, FromLastFact
		out.dateTime = fact.End()
		if r.wantsPeriod(c, out.mode) {
			ps, ok, err := r.periodFromFacts(ctx, rd, c, out.mode, out.dateTime)
			if err != nil {
				return res, err
			}
			out = out.withPeriod(ps, ok)
		}
	case pointer != nil && !c.now.After(pointer.DateTime.Add(margin)):
		out.mode, out.hasMode, out.modeOrigin = pointer.MachineMode, true, FromLivePointer
		out.dateTime = pointer.DateTime
	}
	return out, nil
}

// #endregion

// #region guess

// guess asks the reason guessers for the observation state at the resolved
// date/time. The highest score wins.
func (r *Resolver) guess(ctx context.Context, rd Reader, c call, res resolution) (resolution, error) {
	obs, err := rd.ObservationStateAt(ctx, c.Machine, res.dateTime)
	if err != nil {
		return res, fmt.Errorf("observation state: %w", err)
	}
	if obs == nil {
		r.log.Error().Int("machine", int(c.Machine)).Time("at", res.dateTime).Msg("no observation state")
		return res, nil
	}
	candidates, err := rankCandidates(ctx, r.guessers, c.Machine, res.dateTime, res.mode, obs.State)
	if err != nil {
		return res, err
	}
	if len(candidates) == 0 {
		r.log.Warn().Int("machine", int(c.Machine)).Int("mode", int(res.mode.ID)).Msg("no reason guessed")
		return res, nil
	}

	best := candidates[0]
	out := res
	out.reason, out.origin = best.Reason, FromGuess
	out.score = ptr(best.Score)
	out.source = ptr(best.Source)
	auto := 0
	for _, p := range candidates {
		if p.Source.IsAuto() {
			auto++
		}
	}
	out.autoCount = ptr(auto)

	// not-running-only periods do not apply to guessed reasons
	if c.Period == PeriodNone {
		return out, nil
	}
	switch {
	case c.Period.Has(PeriodReason):
		if best.Restricted == nil {
			return out, nil
		}
		ps, ok, err := r.periodFromRestricted(ctx, rd, c, out, *best.Restricted)
		if err != nil {
			return res, err
		}
		out = out.withPeriod(ps, ok)
	case !out.hasPeriod:
		ps, ok, err := r.periodFromFacts(ctx, rd, c, out.mode, out.dateTime)
		if err != nil {
			return res, err
		}
		out = out.withPeriod(ps, ok)
	}
	return out, nil
}

// #endregion
