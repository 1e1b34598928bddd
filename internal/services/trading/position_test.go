package trading

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinAgent/internal/domain/models"
)

func TestStepAllInRoundTrip(t *testing.T) {
	state := models.PortfolioState{CashBalance: 1000}

	state, out, err := Step(state, StepInput{Signal: models.SignalBuy, Price: 100}, AllIn{})
	require.NoError(t, err)
	assert.Equal(t, models.SignalBuy, out.Action)
	assert.Equal(t, 10.0, out.Quantity)
	assert.Equal(t, 1000.0, out.PositionSize)
	assert.Equal(t, 0.0, state.CashBalance)
	assert.Equal(t, models.Position{Held: true, EntryPrice: 100, Quantity: 10}, state.Position)

	state, out, err = Step(state, StepInput{Signal: models.SignalHold, Price: 110}, AllIn{})
	require.NoError(t, err)
	assert.Equal(t, models.SignalHold, out.Action)
	assert.Equal(t, 100.0, out.UnrealizedPL)

	state, out, err = Step(state, StepInput{Signal: models.SignalSell, Price: 120}, AllIn{})
	require.NoError(t, err)
	assert.Equal(t, models.SignalSell, out.Action)
	assert.Equal(t, 200.0, out.RealizedPL)
	assert.Equal(t, 0.0, out.UnrealizedPL)
	assert.Equal(t, 1200.0, state.CashBalance)
	assert.Equal(t, models.Flat(), state.Position)
}

func TestStepRiskWeightedBuy(t *testing.T) {
	state := models.PortfolioState{CashBalance: 1000}
	state, out, err := Step(state, StepInput{Signal: models.SignalBuy, Price: 50, Confidence: 0.8, RiskLevel: 0.5}, RiskWeighted{})
	require.NoError(t, err)
	assert.InDelta(t, 400.0, out.PositionSize, 1e-9)
	assert.InDelta(t, 8.0, out.Quantity, 1e-9)
	assert.InDelta(t, 600.0, state.CashBalance, 1e-9)
}

func TestStepZeroSizeBuyHolds(t *testing.T) {
	in := models.PortfolioState{CashBalance: 1000}
	state, out, err := Step(in, StepInput{Signal: models.SignalBuy, Price: 50, Confidence: 0, RiskLevel: 0.5}, RiskWeighted{})
	require.NoError(t, err)
	assert.Equal(t, models.SignalHold, out.Action)
	assert.Equal(t, in, state)
}

func TestStepNoOps(t *testing.T) {
	flat := models.PortfolioState{CashBalance: 500}
	state, out, err := Step(flat, StepInput{Signal: models.SignalSell, Price: 10}, AllIn{})
	require.NoError(t, err)
	assert.Equal(t, models.SignalHold, out.Action)
	assert.Equal(t, flat, state)

	long := models.PortfolioState{Position: models.Position{Held: true, EntryPrice: 10, Quantity: 2}}
	state, out, err = Step(long, StepInput{Signal: models.SignalBuy, Price: 8}, AllIn{})
	require.NoError(t, err)
	assert.Equal(t, models.SignalHold, out.Action)
	assert.Equal(t, long, state)
	assert.Equal(t, -4.0, out.UnrealizedPL)
}

func TestStepRejectsInvalidPrice(t *testing.T) {
	long := models.PortfolioState{Position: models.Position{Held: true, EntryPrice: 10, Quantity: 2}}
	for _, price := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		for _, sig := range []models.Signal{models.SignalBuy, models.SignalSell, models.SignalHold} {
			state, _, err := Step(long, StepInput{Signal: sig, Price: price}, AllIn{})
			require.Error(t, err)
			assert.True(t, errors.Is(err, models.ErrInvalidPrice))
			assert.Equal(t, long, state)
		}
	}
}

func TestStepRejectsInconsistentPosition(t *testing.T) {
	bad := models.PortfolioState{Position: models.Position{Held: false, Quantity: 3}}
	_, _, err := Step(bad, StepInput{Signal: models.SignalHold, Price: 1}, AllIn{})
	assert.ErrorIs(t, err, models.ErrInvalidRequest)
}

func TestStepDoesNotMutateInput(t *testing.T) {
	in := models.PortfolioState{CashBalance: 100}
	_, _, err := Step(in, StepInput{Signal: models.SignalBuy, Price: 10}, AllIn{})
	require.NoError(t, err)
	assert.Equal(t, 100.0, in.CashBalance)
	assert.False(t, in.Position.Held)
}
