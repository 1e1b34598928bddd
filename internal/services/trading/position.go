package trading

import (
	"fmt"
	"math"
	"time"

	"FinAgent/internal/domain/models"
)

// Sizer decides how much cash a buy commits.
type Sizer interface {
	Size(cash, confidence, riskLevel float64) float64
}

// RiskWeighted commits cash * confidence * risk. Live execution uses it.
type RiskWeighted struct{}

func (RiskWeighted) Size(cash, confidence, risk float64) float64 { return cash * confidence * risk }

// AllIn commits the whole balance. The backtest uses it.
type AllIn struct{}

func (AllIn) Size(cash, _, _ float64) float64 { return cash }

// StepInput is one observation fed to the state machine.
type StepInput struct {
	Signal     models.Signal
	Price      float64
	Confidence float64
	RiskLevel  float64
	Timestamp  time.Time
}

// Step advances the long-only state machine by one observation.
//
// Buy while flat opens a position of Size/price units; if the sizer commits
// nothing the step is a hold. Sell while long closes the whole position and
// realizes (price - entry) * quantity. Every other combination is a hold
// that leaves the state untouched. The price is validated on every step.
func Step(state models.PortfolioState, in StepInput, sizer Sizer) (models.PortfolioState, models.StepOutcome, error) {
	if math.IsNaN(in.Price) || math.IsInf(in.Price, 0) || in.Price <= 0 {
		return state, models.StepOutcome{}, fmt.Errorf("%w: %v", models.ErrInvalidPrice, in.Price)
	}
	if !state.Position.Valid() {
		return state, models.StepOutcome{}, fmt.Errorf("%w: inconsistent position %+v", models.ErrInvalidRequest, state.Position)
	}

	out := models.StepOutcome{Action: models.SignalHold, Price: in.Price}

	switch {
	case in.Signal == models.SignalBuy && !state.Position.Held:
		size := sizer.Size(state.CashBalance, in.Confidence, in.RiskLevel)
		if size > state.CashBalance {
			size = state.CashBalance
		}
		if size <= 0 || math.IsNaN(size) {
			break
		}
		qty := size / in.Price
		state.CashBalance -= size
		state.Position = models.Position{Held: true, EntryPrice: in.Price, Quantity: qty}
		out.Action = models.SignalBuy
		out.Quantity = qty
		out.PositionSize = size

	case in.Signal == models.SignalSell && state.Position.Held:
		pos := state.Position
		proceeds := pos.Quantity * in.Price
		state.CashBalance += proceeds
		state.Position = models.Flat()
		out.Action = models.SignalSell
		out.Quantity = pos.Quantity
		out.PositionSize = proceeds
		out.RealizedPL = (in.Price - pos.EntryPrice) * pos.Quantity
	}

	if state.Position.Held {
		out.UnrealizedPL = (in.Price - state.Position.EntryPrice) * state.Position.Quantity
	}
	return state, out, nil
}
