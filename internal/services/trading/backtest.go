package trading

import (
	"context"
	"fmt"
	"math"

	"FinAgent/internal/domain/models"
	"FinAgent/internal/services/features"
)

// Simulator replays a probability sequence against a price series.
//
// Step i (0 <= i < N-L) consumes probability i, which was produced from the
// window over bars [i, i+L), and trades at the close of bar i+L. Its true
// label is close[i+L] > close[i+L-1].
type Simulator struct {
	WindowLength int
	Policy       Policy
	Sizer        Sizer
}

// NewSimulator returns the default backtest: binary >0.5 policy and all-in sizing.
func NewSimulator(windowLength int) *Simulator {
	return &Simulator{WindowLength: windowLength, Policy: Binary{}, Sizer: AllIn{}}
}

// Run executes the backtest. The series must already be validated and sorted.
//
// If ctx is cancelled between steps the partial result is returned with
// Completed == false together with an error wrapping ErrRunCancelled.
func (s *Simulator) Run(ctx context.Context, series models.Series, probs []float64, initialBalance float64) (*models.BacktestResult, error) {
	l := s.WindowLength
	if l <= 0 {
		return nil, fmt.Errorf("window length must be positive, got %d", l)
	}
	if len(series) < l+1 {
		return nil, fmt.Errorf("%w: %d bars for window length %d", models.ErrInsufficientData, len(series), l)
	}
	total := len(series) - l
	if len(probs) != total {
		return nil, fmt.Errorf("%w: %d probabilities for %d steps", models.ErrMalformedSeries, len(probs), total)
	}
	for i, p := range probs {
		if !ValidProbability(p) {
			return nil, &models.SeriesError{Index: i, Field: "probability", Reason: fmt.Sprintf("%v outside [0,1]", p), Kind: models.ErrMalformedSeries}
		}
	}
	if math.IsNaN(initialBalance) || math.IsInf(initialBalance, 0) || initialBalance < 0 {
		return nil, fmt.Errorf("invalid initial balance %v", initialBalance)
	}

	policy, sizer := s.Policy, s.Sizer
	if policy == nil {
		policy = Binary{}
	}
	if sizer == nil {
		sizer = AllIn{}
	}

	state := models.PortfolioState{CashBalance: initialBalance}
	res := &models.BacktestResult{
		Ledger:      []models.TradeRecord{},
		EquityCurve: make([]float64, 0, total),
		TotalSteps:  total,
	}
	var cm confusion
	lastPrice := 0.0

	var cancelled error
	for i := 0; i < total; i++ {
		if err := ctx.Err(); err != nil {
			cancelled = fmt.Errorf("%w after %d of %d steps: %v", models.ErrRunCancelled, i, total, err)
			break
		}
		bar := series[i+l]
		p := probs[i]

		cm.add(p > 0.5, bar.Close > series[i+l-1].Close)

		next, out, err := Step(state, StepInput{
			Signal:     policy.Decide(p, 0),
			Price:      bar.Close,
			Confidence: Confidence(p),
			Timestamp:  bar.Timestamp,
		}, sizer)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
		state = next
		lastPrice = bar.Close

		switch out.Action {
		case models.SignalBuy:
			res.Ledger = append(res.Ledger, models.TradeRecord{
				Action: models.SignalBuy, Price: out.Price, Quantity: out.Quantity, Timestamp: bar.Timestamp,
			})
		case models.SignalSell:
			pl := out.RealizedPL
			res.Ledger = append(res.Ledger, models.TradeRecord{
				Action: models.SignalSell, Price: out.Price, Quantity: out.Quantity, Timestamp: bar.Timestamp, RealizedPL: &pl,
			})
		}
		res.EquityCurve = append(res.EquityCurve, state.Equity(bar.Close))
		res.Steps++
	}

	res.Metrics = summarize(res, state, cm, initialBalance, lastPrice)
	res.Completed = cancelled == nil
	if cancelled != nil {
		return res, cancelled
	}
	return res, nil
}

func summarize(res *models.BacktestResult, state models.PortfolioState, cm confusion, initial, lastPrice float64) models.PerformanceMetrics {
	m := models.PerformanceMetrics{
		Accuracy:       cm.accuracy(),
		Precision:      cm.precision(),
		Recall:         cm.recall(),
		F1Score:        cm.f1(),
		InitialBalance: initial,
		FinalBalance:   state.CashBalance,
	}

	// Liquidate an open position at the last traded close without a ledger entry.
	if state.Position.Held && lastPrice > 0 {
		m.Liquidated = true
		m.LiquidationValue = state.Position.Quantity * lastPrice
		m.FinalBalance = state.CashBalance + m.LiquidationValue
	}

	m.ProfitLoss = m.FinalBalance - initial
	if initial > 0 {
		m.ProfitLossPct = m.ProfitLoss / initial * 100
	}

	wins := 0
	for _, tr := range res.Ledger {
		if tr.Action != models.SignalSell {
			continue
		}
		m.NumTrades++
		if tr.RealizedPL != nil && *tr.RealizedPL > 0 {
			wins++
		}
	}
	m.WinRate = ratio(wins, m.NumTrades)
	m.MaxDrawdown = maxDrawdown(initial, res.EquityCurve)
	m.SharpeRatio = sharpe(initial, res.EquityCurve)
	return m
}

// maxDrawdown is the deepest peak-to-trough fall of the equity curve in percent (<= 0).
func maxDrawdown(initial float64, curve []float64) float64 {
	peak := initial
	worst := 0.0
	for _, eq := range curve {
		if eq > peak {
			peak = eq
		}
		if peak <= 0 {
			continue
		}
		if dd := (eq - peak) / peak * 100; dd < worst {
			worst = dd
		}
	}
	return worst
}

// sharpe is mean/std of per-step log equity returns, 0 when undefined.
func sharpe(initial float64, curve []float64) float64 {
	if len(curve) == 0 {
		return 0
	}
	points := make([]float64, 0, len(curve)+1)
	points = append(points, initial)
	points = append(points, curve...)
	mean, std := features.MeanStd(features.ComputeLogReturns(points))
	if std == 0 || math.IsNaN(std) {
		return 0
	}
	return mean / std
}
