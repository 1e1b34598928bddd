// Package trading turns predictor probabilities into signals and runs the
// long-only position state machine and the backtest simulator on top of it.
package trading

import (
	"fmt"
	"math"

	"FinAgent/internal/domain/models"
)

// Policy maps an up-move probability to a discrete signal.
type Policy interface {
	Name() string
	Decide(probability, riskLevel float64) models.Signal
}

// RiskBanded widens a hold band around 0.5 by the agent's risk level:
// buy above 0.5 + 0.1*risk, sell below 0.5 - 0.1*risk, hold otherwise.
// Both comparisons are strict, so the thresholds themselves hold.
type RiskBanded struct{}

func (RiskBanded) Name() string { return "risk_banded" }

func (RiskBanded) Decide(p, risk float64) models.Signal {
	switch {
	case p > 0.5+0.1*risk:
		return models.SignalBuy
	case p < 0.5-0.1*risk:
		return models.SignalSell
	default:
		return models.SignalHold
	}
}

// Binary buys above 0.5 and sells otherwise. The backtest uses it.
type Binary struct{}

func (Binary) Name() string { return "binary" }

func (Binary) Decide(p, _ float64) models.Signal {
	if p > 0.5 {
		return models.SignalBuy
	}
	return models.SignalSell
}

// PolicyByName returns the policy registered under name.
func PolicyByName(name string) (Policy, error) {
	switch name {
	case "", "risk_banded":
		return RiskBanded{}, nil
	case "binary":
		return Binary{}, nil
	default:
		return nil, fmt.Errorf("unknown signal policy %q", name)
	}
}

// Confidence is the distance of p from 0.5 scaled to [0,1].
func Confidence(p float64) float64 {
	c := math.Abs(p-0.5) * 2
	if c > 1 {
		return 1
	}
	return c
}

// GenerateSignal applies the risk-banded policy and returns the signal with its confidence.
func GenerateSignal(p, risk float64) (models.Signal, float64) {
	return RiskBanded{}.Decide(p, risk), Confidence(p)
}

// ValidProbability reports whether p is finite and inside [0,1].
func ValidProbability(p float64) bool {
	return !math.IsNaN(p) && p >= 0 && p <= 1
}
