package resolver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atsora/pomamo-engine-sub026/internal/model"
)

func TestGuessPolicyBestCandidate(t *testing.T) {
	rd := newFake()
	g := fixed(
		model.PossibleReason{Reason: 60, Score: 1, Color: "#00ff00"},
		model.PossibleReason{Reason: 61, Score: 9, Color: "#ff0000"},
	)
	p := GuessPolicy{Observations: rd, Guessers: g}

	best, err := p.GuessAt(context.Background(), machine, idle, now)
	require.NoError(t, err)
	require.NotNil(t, best)
	assert.Equal(t, model.ReasonID(61), best.Reason)
	assert.Equal(t, "#ff0000", best.Color)
}

func TestGuessPolicyNoObservationState(t *testing.T) {
	rd := newFake()
	rd.obs = nil
	best, err := GuessPolicy{Observations: rd, Guessers: fixed(model.PossibleReason{Reason: 60})}.
		GuessAt(context.Background(), machine, idle, now)
	require.NoError(t, err)
	assert.Nil(t, best)
}
