package models

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAgentRoundTrip(t *testing.T) {
	in := Agent{
		AgentID:      "a-1",
		Name:         "btc scalper",
		StrategyType: StrategyDNN,
		RiskLevel:    0.1 + 0.2,
		Trained:      true,
		PerformanceMetrics: map[string]float64{
			"accuracy":    0.5833333333333334,
			"profit_loss": -123.45678901234567,
			"tiny":        math.SmallestNonzeroFloat64,
			"huge":        math.MaxFloat64,
		},
		Metadata: map[string]any{
			"owner":  "desk-7",
			"active": false,
			"limits": map[string]any{"max": 1.0000000000000002, "tags": []any{"x", 2.5}},
		},
		WindowLength: 60,
		CreatedAt:    time.Date(2024, 3, 1, 12, 0, 0, 123456789, time.UTC),
		UpdatedAt:    time.Date(2024, 3, 2, 12, 0, 0, 0, time.UTC),
	}

	b, err := json.Marshal(in)
	require.NoError(t, err)

	var out Agent
	require.NoError(t, json.Unmarshal(b, &out))

	assert.Equal(t, in, out)
	assert.Equal(t, math.Float64bits(in.RiskLevel), math.Float64bits(out.RiskLevel))
	for k, v := range in.PerformanceMetrics {
		assert.Equal(t, math.Float64bits(v), math.Float64bits(out.PerformanceMetrics[k]), k)
	}
}

func TestAgentHashStable(t *testing.T) {
	a := &Agent{AgentID: "x", Name: "n", StrategyType: StrategyLSTM, PerformanceMetrics: DefaultPerformanceMetrics()}
	h1, err := a.Hash()
	require.NoError(t, err)
	h2, err := a.Hash()
	require.NoError(t, err)
	assert.Len(t, h1, 64)
	assert.Equal(t, h1, h2)

	a.RiskLevel = 0.7
	h3, err := a.Hash()
	require.NoError(t, err)
	assert.NotEqual(t, h1, h3)
}

func TestBarUnmarshalFormats(t *testing.T) {
	var bars []Bar
	payload := `[
		{"timestamp":"2024-01-01T00:00:00Z","open":1,"high":2,"low":0.5,"close":1.5,"volume":10},
		{"timestamp":"2024-01-01T01:00:00","open":"1.5","high":"2","low":"1","close":"1.8","volume":"3"},
		{"timestamp":1704074400,"open":1,"high":1,"low":1,"close":1,"volume":0},
		{"timestamp":1704078000000,"open":1,"high":1,"low":1,"close":1,"volume":0}
	]`
	require.NoError(t, json.Unmarshal([]byte(payload), &bars))
	require.Len(t, bars, 4)

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, b := range bars {
		assert.True(t, b.Timestamp.Equal(base.Add(time.Duration(i)*time.Hour)), "bar %d at %v", i, b.Timestamp)
	}
	assert.Equal(t, 1.8, bars[1].Close)
}

func TestBarUnmarshalMissingField(t *testing.T) {
	var b Bar
	err := json.Unmarshal([]byte(`{"timestamp":"2024-01-01T00:00:00Z","open":1,"high":2,"low":0.5,"volume":10}`), &b)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformedSeries))

	var se *SeriesError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "close", se.Field)
}

func TestPortfolioEquity(t *testing.T) {
	flat := PortfolioState{CashBalance: 500}
	assert.Equal(t, 500.0, flat.Equity(99))

	long := PortfolioState{CashBalance: 100, Position: Position{Held: true, EntryPrice: 10, Quantity: 3}}
	assert.Equal(t, 136.0, long.Equity(12))
}

func TestPositionValid(t *testing.T) {
	assert.True(t, Flat().Valid())
	assert.False(t, Position{Held: false, Quantity: 1}.Valid())
	assert.False(t, Position{Held: true, EntryPrice: -1, Quantity: 1}.Valid())
	assert.True(t, Position{Held: true, EntryPrice: 10, Quantity: 1}.Valid())
}
