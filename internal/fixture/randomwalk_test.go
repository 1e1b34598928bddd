package fixture

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRandomWalkDeterministic(t *testing.T) {
	spec := Spec{Symbol: "BTCUSDT", Interval: time.Minute, Count: 200}
	a := RandomWalk(spec)
	b := RandomWalk(spec)
	require.Len(t, a, 200)
	assert.Equal(t, a, b)
	assert.Equal(t, 50000.0, BasePrice("btcusdt"))
	assert.Equal(t, 100.0, BasePrice("SOLUSDT"))
}

func TestRandomWalkShape(t *testing.T) {
	end := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	bars := RandomWalk(Spec{Symbol: "ETHUSDT", Interval: time.Hour, Count: 50, End: end})
	require.Len(t, bars, 50)
	assert.True(t, bars[49].Timestamp.Equal(end))
	for i, b := range bars {
		assert.Greater(t, b.Low, 0.0, "bar %d", i)
		assert.LessOrEqual(t, b.Low, b.Open)
		assert.LessOrEqual(t, b.Open, b.High)
		assert.LessOrEqual(t, b.Low, b.Close)
		assert.LessOrEqual(t, b.Close, b.High)
		assert.GreaterOrEqual(t, b.Volume, 0.0)
		if i > 0 {
			assert.Equal(t, time.Hour, b.Timestamp.Sub(bars[i-1].Timestamp))
		}
	}
}

func TestRandomWalkSeedChangesSeries(t *testing.T) {
	a := RandomWalk(Spec{Count: 10, Seed: 1})
	b := RandomWalk(Spec{Count: 10, Seed: 2})
	assert.NotEqual(t, a[9].Close, b[9].Close)
}
