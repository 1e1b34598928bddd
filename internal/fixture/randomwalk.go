// Package fixture generates deterministic market data for tests and the mock source.
package fixture

import (
	"math"
	"math/rand"
	"strings"
	"time"

	"FinAgent/internal/domain/models"
)

// DefaultSeed keeps generated series reproducible across runs.
const DefaultSeed = 42

// Spec describes a generated series. Zero fields take defaults.
type Spec struct {
	Symbol    string
	Interval  time.Duration
	Count     int
	Seed      int64
	End       time.Time
	BasePrice float64
}

// BasePrice returns the starting price used for a symbol.
func BasePrice(symbol string) float64 {
	s := strings.ToUpper(symbol)
	switch {
	case strings.HasPrefix(s, "BTC"):
		return 50000
	case strings.HasPrefix(s, "ETH"):
		return 3000
	default:
		return 100
	}
}

// RandomWalk returns Count bars ending at End, one Interval apart.
// Closes follow a 1% gaussian random walk; highs and lows bracket the walk
// and opens and closes are drawn inside that range.
func RandomWalk(spec Spec) []models.Bar {
	if spec.Count <= 0 {
		return nil
	}
	if spec.Interval <= 0 {
		spec.Interval = time.Hour
	}
	if spec.Seed == 0 {
		spec.Seed = DefaultSeed
	}
	if spec.End.IsZero() {
		spec.End = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	if spec.BasePrice <= 0 {
		spec.BasePrice = BasePrice(spec.Symbol)
	}

	rng := rand.New(rand.NewSource(spec.Seed))
	prices := make([]float64, spec.Count)
	prices[0] = spec.BasePrice
	for i := 1; i < spec.Count; i++ {
		prices[i] = prices[i-1] * (1 + rng.NormFloat64()*0.01)
	}

	start := spec.End.Add(-time.Duration(spec.Count-1) * spec.Interval)
	bars := make([]models.Bar, spec.Count)
	for i, p := range prices {
		high := p * (1 + math.Abs(rng.NormFloat64()*0.005))
		low := p * (1 - math.Abs(rng.NormFloat64()*0.005))
		bars[i] = models.Bar{
			Symbol:    spec.Symbol,
			Timestamp: start.Add(time.Duration(i) * spec.Interval),
			Open:      low + (high-low)*rng.Float64(),
			High:      high,
			Low:       low,
			Close:     low + (high-low)*rng.Float64(),
			Volume:    math.Abs(1000 + rng.NormFloat64()*200),
		}
	}
	return bars
}

// FromCloses builds bars whose open, high and low equal the close.
func FromCloses(start time.Time, step time.Duration, closes ...float64) []models.Bar {
	bars := make([]models.Bar, len(closes))
	for i, c := range closes {
		bars[i] = models.Bar{
			Timestamp: start.Add(time.Duration(i) * step),
			Open:      c,
			High:      c,
			Low:       c,
			Close:     c,
			Volume:    1,
		}
	}
	return bars
}
