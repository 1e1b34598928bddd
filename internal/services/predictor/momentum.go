package predictor

import (
	"context"
	"fmt"
	"math"

	"github.com/cinar/indicator/v2/helper"
	"github.com/cinar/indicator/v2/momentum"

	"FinAgent/internal/domain/models"
	domsvc "FinAgent/internal/domain/service"
)

// MomentumFile is the artifact name of a momentum model.
const MomentumFile = "momentum.json"

// DefaultRSIPeriod is the RSI lookback used when none is configured.
const DefaultRSIPeriod = 14

// Momentum reads the up-move probability off the RSI of the window closes:
// p = RSI/100. Windows too short for the period, or without any price change,
// yield 0.5. RSI is invariant to the min-max scaling applied to windows.
type Momentum struct {
	Period int `json:"period"`
	ready  bool
}

func NewMomentum(period int) *Momentum {
	if period <= 0 {
		period = DefaultRSIPeriod
	}
	return &Momentum{Period: period}
}

func (m *Momentum) Name() string { return models.StrategyMomentum }

func (m *Momentum) Ready() bool { return m.ready }

// Fit has nothing to learn; it scores the rule against the labels.
func (m *Momentum) Fit(ctx context.Context, windows []models.Window, labels []bool, p domsvc.FitParams) (domsvc.FitReport, error) {
	if len(windows) == 0 {
		return domsvc.FitReport{}, fmt.Errorf("%w: no training windows", models.ErrInsufficientData)
	}
	if len(labels) != len(windows) {
		return domsvc.FitReport{}, fmt.Errorf("%d labels for %d windows", len(labels), len(windows))
	}
	m.ready = true
	probs, err := m.PredictBatch(ctx, windows)
	if err != nil {
		m.ready = false
		return domsvc.FitReport{}, err
	}

	nTrain, nVal := splitCounts(len(windows), p.ValidationSplit)
	rep := domsvc.FitReport{Samples: nTrain, ValSamples: nVal}
	rep.Accuracy, rep.Loss = hitRate(probs[:nTrain], labels[:nTrain])
	if nVal > 0 {
		rep.ValAccuracy, rep.ValLoss = hitRate(probs[nTrain:], labels[nTrain:])
	}
	return rep, nil
}

func (m *Momentum) PredictBatch(ctx context.Context, windows []models.Window) ([]float64, error) {
	if !m.ready {
		return nil, models.ErrModelNotReady
	}
	out := make([]float64, len(windows))
	for i, w := range windows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = m.probability(w)
	}
	return out, nil
}

func (m *Momentum) probability(w models.Window) float64 {
	closes := make([]float64, 0, len(w.Features))
	for _, row := range w.Features {
		if len(row) > models.CloseColumn {
			closes = append(closes, row[models.CloseColumn])
		}
	}
	if len(closes) < m.Period+1 {
		return 0.5
	}
	rsi := helper.ChanToSlice(momentum.NewRsiWithPeriod[float64](m.Period).Compute(helper.SliceToChan(closes)))
	if len(rsi) == 0 {
		return 0.5
	}
	last := rsi[len(rsi)-1]
	if math.IsNaN(last) || math.IsInf(last, 0) {
		return 0.5
	}
	return math.Min(1, math.Max(0, last/100))
}

func (m *Momentum) Save(dir string) error {
	if !m.ready {
		return models.ErrModelNotReady
	}
	return writeArtifact(dir, MomentumFile, m)
}

func (m *Momentum) Load(dir string) error {
	var tmp Momentum
	if err := readArtifact(dir, MomentumFile, &tmp); err != nil {
		return err
	}
	if tmp.Period <= 0 {
		return fmt.Errorf("momentum artifact has invalid period %d", tmp.Period)
	}
	m.Period, m.ready = tmp.Period, true
	return nil
}

// hitRate returns accuracy and log loss of probabilities against labels.
func hitRate(probs []float64, labels []bool) (acc, loss float64) {
	if len(probs) == 0 {
		return 0, 0
	}
	const eps = 1e-12
	hits := 0
	for i, p := range probs {
		y := 0.0
		if labels[i] {
			y = 1
		}
		if (p > 0.5) == labels[i] {
			hits++
		}
		loss -= y*math.Log(p+eps) + (1-y)*math.Log(1-p+eps)
	}
	n := float64(len(probs))
	return float64(hits) / n, loss / n
}

var _ domsvc.Predictor = (*Momentum)(nil)
