// Package watch resolves the current state of every machine on a schedule
// and publishes each answer.
package watch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog"

	"github.com/atsora/pomamo-engine-sub026/internal/model"
	"github.com/atsora/pomamo-engine-sub026/internal/orchestrator"
	"github.com/atsora/pomamo-engine-sub026/internal/resolver"
)

// #region types

// Source lists the machines and resolves their state;
// *orchestrator.Orchestrator implements it.
type Source interface {
	Machines(ctx context.Context) ([]model.MachineID, error)
	Current(ctx context.Context, machine model.MachineID, period resolver.PeriodFlags, notRunningOnly bool) (resolver.State, error)
}

// Publisher delivers one encoded state.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// Options configures a Watcher. Subject is a prefix: each machine publishes
// on "<Subject>.<machine>".
type Options struct {
	Interval       time.Duration
	Subject        string
	Period         resolver.PeriodFlags
	NotRunningOnly bool
	Timeout        time.Duration
	Logger         zerolog.Logger
}

// DefaultSubject is the subject prefix used when Options.Subject is empty.
const DefaultSubject = "pomamo.reasonslots.current"

// Watcher periodically resolves every machine.
type Watcher struct {
	src       Source
	pub       Publisher
	opts      Options
	scheduler gocron.Scheduler
}

// #endregion

// New returns a stopped Watcher. pub may be nil, in which case states are
// only logged.
func New(src Source, pub Publisher, opts Options) *Watcher {
	if opts.Interval <= 0 {
		opts.Interval = time.Minute
	}
	if opts.Timeout <= 0 {
		opts.Timeout = opts.Interval
	}
	if opts.Subject == "" {
		opts.Subject = DefaultSubject
	}
	return &Watcher{src: src, pub: pub, opts: opts}
}

// #region schedule

// Start schedules Tick every interval, the first one immediately. A tick
// still running when the next is due delays it.
func (w *Watcher) Start() error {
	s, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("failed to create gocron scheduler: %w", err)
	}
	_, err = s.NewJob(
		gocron.DurationJob(w.opts.Interval),
		gocron.NewTask(w.run),
		gocron.WithName("resolve-current"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		_ = s.Shutdown()
		return fmt.Errorf("failed to create resolve job: %w", err)
	}
	w.scheduler = s
	w.opts.Logger.Info().Dur("interval", w.opts.Interval).Str("subject", w.opts.Subject).Msg("watch started")
	s.Start()
	return nil
}

// Stop waits for a running tick and shuts the scheduler down.
func (w *Watcher) Stop() error {
	if w.scheduler == nil {
		return nil
	}
	w.opts.Logger.Info().Msg("watch stopped")
	return w.scheduler.Shutdown()
}

func (w *Watcher) run() {
	ctx, cancel := context.WithTimeout(context.Background(), w.opts.Timeout)
	defer cancel()
	if err := w.Tick(ctx); err != nil {
		w.opts.Logger.Error().Err(err).Msg("watch tick failed")
	}
}

// #endregion

// #region tick

// Message is the published payload.
type Message struct {
	Machine model.MachineID     `json:"machine"`
	State   orchestrator.Record `json:"state"`
}

// Tick resolves every machine once. A failing machine is logged and skipped;
// only listing the machines fails the tick.
func (w *Watcher) Tick(ctx context.Context) error {
	machines, err := w.src.Machines(ctx)
	if err != nil {
		return fmt.Errorf("list machines: %w", err)
	}
	published := 0
	for _, m := range machines {
		log := w.opts.Logger.With().Int("machine", int(m)).Logger()
		s, err := w.src.Current(ctx, m, w.opts.Period, w.opts.NotRunningOnly)
		if err != nil {
			log.Warn().Err(err).Msg("resolve failed")
			continue
		}
		log.Debug().Str("origin", s.Origin.String()).Int("reason", int(s.Reason)).Msg("resolved")
		if w.pub == nil {
			continue
		}
		data, err := json.Marshal(Message{Machine: m, State: orchestrator.StateRecord(s)})
		if err != nil {
			log.Error().Err(err).Msg("encode state")
			continue
		}
		if err := w.pub.Publish(ctx, fmt.Sprintf("%s.%d", w.opts.Subject, m), data); err != nil {
			log.Warn().Err(err).Msg("publish failed")
			continue
		}
		published++
	}
	w.opts.Logger.Debug().Int("machines", len(machines)).Int("published", published).Msg("watch tick")
	return nil
}

// #endregion
