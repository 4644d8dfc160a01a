package resolver

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/rs/zerolog"

	"github.com/atsora/pomamo-engine-sub026/internal/model"
)

// rankCandidates collects the candidates of every guesser of machine, highest
// score first. Ties keep the guesser order.
func rankCandidates(ctx context.Context, provider GuesserProvider, machine model.MachineID, at time.Time, mode model.MachineMode, observation model.ObservationStateID) ([]model.PossibleReason, error) {
	if provider == nil {
		return nil, nil
	}
	guessers, err := provider.ReasonGuessers(ctx, machine)
	if err != nil {
		return nil, fmt.Errorf("reason guessers of machine %d: %w", machine, err)
	}
	var all []model.PossibleReason
	for _, g := range guessers {
		candidates, err := g.TryActiveAt(ctx, at, mode, observation)
		if err != nil {
			return nil, fmt.Errorf("try active at %s: %w", at, err)
		}
		all = append(all, candidates...)
	}
	slices.SortStableFunc(all, func(a, b model.PossibleReason) int {
		return cmp.Compare(b.Score, a.Score)
	})
	return all, nil
}

// GuessPolicy picks the best reason candidate outside of a resolution. The
// color view uses it for Processing slots.
type GuessPolicy struct {
	Observations ObservationReader
	Guessers     GuesserProvider
	Logger       zerolog.Logger
}

// GuessAt returns the best candidate for machine in mode at at, nil when no
// observation state or no candidate is found.
func (g GuessPolicy) GuessAt(ctx context.Context, machine model.MachineID, mode model.MachineMode, at time.Time) (*model.PossibleReason, error) {
	obs, err := g.Observations.ObservationStateAt(ctx, machine, at)
	if err != nil {
		return nil, fmt.Errorf("observation state: %w", err)
	}
	if obs == nil {
		g.Logger.Error().Int("machine", int(machine)).Time("at", at).Msg("no observation state")
		return nil, nil
	}
	candidates, err := rankCandidates(ctx, g.Guessers, machine, at, mode, obs.State)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		g.Logger.Warn().Int("machine", int(machine)).Int("mode", int(mode.ID)).Msg("no reason guessed")
		return nil, nil
	}
	return &candidates[0], nil
}
