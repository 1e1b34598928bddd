package models

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// Strategy types understood by the predictor factory.
const (
	StrategyLSTM     = "lstm"
	StrategyDNN      = "dnn"
	StrategyMomentum = "momentum"
)

// Agent is the persisted agent record.
type Agent struct {
	AgentID            string             `json:"agent_id"`
	Name               string             `json:"name"`
	StrategyType       string             `json:"strategy_type"`
	RiskLevel          float64            `json:"risk_level"`
	Trained            bool               `json:"trained"`
	PerformanceMetrics map[string]float64 `json:"performance_metrics"`
	Metadata           map[string]any     `json:"metadata"`
	WindowLength       int                `json:"window_length"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

// DefaultPerformanceMetrics is the metric set of an untrained agent.
func DefaultPerformanceMetrics() map[string]float64 {
	return map[string]float64{
		"accuracy":     0,
		"profit_loss":  0,
		"win_rate":     0,
		"sharpe_ratio": 0,
	}
}

// Hash returns the sha256 of the record's JSON encoding.
func (a *Agent) Hash() (string, error) {
	b, err := json.Marshal(a)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// MergeMetrics overwrites or adds the given metrics.
func (a *Agent) MergeMetrics(m map[string]float64) {
	if a.PerformanceMetrics == nil {
		a.PerformanceMetrics = DefaultPerformanceMetrics()
	}
	for k, v := range m {
		a.PerformanceMetrics[k] = v
	}
}
