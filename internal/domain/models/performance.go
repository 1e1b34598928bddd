package models

// PerformanceMetrics summarizes a backtest run.
//
// When the run ends while long, the position is liquidated at the last close:
// FinalBalance includes that value and Liquidated is set, but no sell is
// appended to the ledger, so NumTrades and WinRate ignore it.
type PerformanceMetrics struct {
	Accuracy         float64 `json:"accuracy"`
	Precision        float64 `json:"precision"`
	Recall           float64 `json:"recall"`
	F1Score          float64 `json:"f1_score"`
	ProfitLoss       float64 `json:"profit_loss"`
	ProfitLossPct    float64 `json:"profit_loss_pct"`
	WinRate          float64 `json:"win_rate"`
	NumTrades        int     `json:"num_trades"`
	InitialBalance   float64 `json:"initial_balance"`
	FinalBalance     float64 `json:"final_balance"`
	MaxDrawdown      float64 `json:"max_drawdown"`
	SharpeRatio      float64 `json:"sharpe_ratio"`
	Liquidated       bool    `json:"liquidated"`
	LiquidationValue float64 `json:"liquidation_value"`
}

// AsMap flattens the metrics into the agent record shape.
func (m PerformanceMetrics) AsMap() map[string]float64 {
	liquidated := 0.0
	if m.Liquidated {
		liquidated = 1
	}
	return map[string]float64{
		"accuracy":          m.Accuracy,
		"precision":         m.Precision,
		"recall":            m.Recall,
		"f1_score":          m.F1Score,
		"profit_loss":       m.ProfitLoss,
		"profit_loss_pct":   m.ProfitLossPct,
		"win_rate":          m.WinRate,
		"num_trades":        float64(m.NumTrades),
		"initial_balance":   m.InitialBalance,
		"final_balance":     m.FinalBalance,
		"max_drawdown":      m.MaxDrawdown,
		"sharpe_ratio":      m.SharpeRatio,
		"liquidated":        liquidated,
		"liquidation_value": m.LiquidationValue,
	}
}

// BacktestResult is the ledger plus metrics of one run.
// Completed is false when the run was cancelled; such results are partial.
type BacktestResult struct {
	Ledger      []TradeRecord      `json:"ledger"`
	Metrics     PerformanceMetrics `json:"metrics"`
	EquityCurve []float64          `json:"equity_curve"`
	Steps       int                `json:"steps"`
	TotalSteps  int                `json:"total_steps"`
	Completed   bool               `json:"completed"`
}
