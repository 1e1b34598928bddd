package models

import (
	"math"
	"time"
)

// Signal is a discrete trading decision. It doubles as the action reported by a step.
type Signal string

const (
	SignalBuy  Signal = "buy"
	SignalSell Signal = "sell"
	SignalHold Signal = "hold"
)

// Window is a contiguous run of L bars, already scaled, ready for a predictor.
type Window struct {
	// Start is the index of the first bar inside the source series.
	Start int `json:"start"`
	// Features holds L rows of NumFeatures columns.
	Features [][]float64 `json:"features"`
	// Timestamp is the time of the last bar inside the window.
	Timestamp time.Time `json:"timestamp"`
}

// Prediction is a single-point decision derived from the latest window.
type Prediction struct {
	Probability float64   `json:"probability"`
	Signal      Signal    `json:"signal"`
	Confidence  float64   `json:"confidence"`
	Timestamp   time.Time `json:"timestamp"`
	RiskLevel   float64   `json:"risk_level"`
}

// Position is the current holding. Held == false implies EntryPrice == 0 and Quantity == 0.
type Position struct {
	Held       bool    `json:"held"`
	EntryPrice float64 `json:"entry_price"`
	Quantity   float64 `json:"quantity"`
}

// Flat returns the empty position.
func Flat() Position { return Position{} }

// Valid reports whether the position satisfies its invariant and holds finite values.
func (p Position) Valid() bool {
	if math.IsNaN(p.EntryPrice) || math.IsInf(p.EntryPrice, 0) || math.IsNaN(p.Quantity) || math.IsInf(p.Quantity, 0) {
		return false
	}
	if p.EntryPrice < 0 || p.Quantity < 0 {
		return false
	}
	if !p.Held {
		return p.EntryPrice == 0 && p.Quantity == 0
	}
	return true
}

// PortfolioState is the cash balance plus the current position.
type PortfolioState struct {
	CashBalance float64  `json:"cash_balance"`
	Position    Position `json:"position"`
}

// Equity marks the state to market at price.
func (s PortfolioState) Equity(price float64) float64 {
	if !s.Position.Held {
		return s.CashBalance
	}
	return s.CashBalance + s.Position.Quantity*price
}

// StepOutcome reports what a single state machine step did.
// UnrealizedPL is always computed: (price - entry) * quantity while long, 0 when flat.
type StepOutcome struct {
	Action       Signal  `json:"action"`
	Price        float64 `json:"price"`
	Quantity     float64 `json:"quantity"`
	PositionSize float64 `json:"position_size"`
	RealizedPL   float64 `json:"realized_profit_loss"`
	UnrealizedPL float64 `json:"unrealized_profit_loss"`
}

// TradeRecord is one ledger entry. RealizedPL is set only on sells.
type TradeRecord struct {
	Action     Signal    `json:"action"`
	Price      float64   `json:"price"`
	Quantity   float64   `json:"quantity"`
	Timestamp  time.Time `json:"timestamp"`
	RealizedPL *float64  `json:"realized_profit_loss,omitempty"`
}

// Decision is a live execution step as published downstream.
type Decision struct {
	AgentID    string         `json:"agent_id"`
	Symbol     string         `json:"symbol"`
	Prediction Prediction     `json:"prediction"`
	Outcome    StepOutcome    `json:"outcome"`
	State      PortfolioState `json:"state"`
	Equity     float64        `json:"equity"`
	BarTime    time.Time      `json:"bar_time"`
}
