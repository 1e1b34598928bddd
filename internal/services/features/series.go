package features

import (
	"fmt"
	"math"
	"sort"

	"FinAgent/internal/domain/models"
)

// NewSeries validates bars and returns them sorted by timestamp.
//
// Out-of-order input is re-sorted. Duplicate or zero timestamps, non-finite
// values and negative volume fail with ErrMalformedSeries; a non-positive
// open, high, low or close fails with ErrInvalidPrice. The input slice is
// not modified.
func NewSeries(bars []models.Bar) (models.Series, error) {
	out := make(models.Series, len(bars))
	copy(out, bars)

	for i, b := range out {
		if b.Timestamp.IsZero() {
			return nil, &models.SeriesError{Index: i, Field: "timestamp", Reason: "missing", Kind: models.ErrMalformedSeries}
		}
		prices := [...]struct {
			name string
			v    float64
		}{{"open", b.Open}, {"high", b.High}, {"low", b.Low}, {"close", b.Close}}
		for _, p := range prices {
			if !finite(p.v) {
				return nil, &models.SeriesError{Index: i, Field: p.name, Reason: "not finite", Kind: models.ErrMalformedSeries}
			}
			if p.v <= 0 {
				return nil, &models.SeriesError{Index: i, Field: p.name, Reason: fmt.Sprintf("%v <= 0", p.v), Kind: models.ErrInvalidPrice}
			}
		}
		if !finite(b.Volume) {
			return nil, &models.SeriesError{Index: i, Field: "volume", Reason: "not finite", Kind: models.ErrMalformedSeries}
		}
		if b.Volume < 0 {
			return nil, &models.SeriesError{Index: i, Field: "volume", Reason: "negative", Kind: models.ErrMalformedSeries}
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })

	for i := 1; i < len(out); i++ {
		if !out[i].Timestamp.After(out[i-1].Timestamp) {
			return nil, &models.SeriesError{
				Index:  i,
				Field:  "timestamp",
				Reason: fmt.Sprintf("duplicate %s", out[i].Timestamp.Format("2006-01-02T15:04:05Z07:00")),
				Kind:   models.ErrMalformedSeries,
			}
		}
	}
	return out, nil
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
