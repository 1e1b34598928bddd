// Package predictor holds the directional model capabilities an agent can be
// backed by and the adapter the engine consumes them through.
package predictor

import (
	"context"
	"fmt"
	"math"

	"FinAgent/internal/domain/models"
	domsvc "FinAgent/internal/domain/service"
)

// Adapter guards a Predictor: readiness, batch shape and probability range
// are checked before anything reaches the engine.
type Adapter struct {
	model domsvc.Predictor
}

func NewAdapter(model domsvc.Predictor) *Adapter { return &Adapter{model: model} }

func (a *Adapter) Model() domsvc.Predictor { return a.model }

// PredictBatch returns one probability per window, in window order.
func (a *Adapter) PredictBatch(ctx context.Context, windows []models.Window) ([]float64, error) {
	if a.model == nil || !a.model.Ready() {
		return nil, models.ErrModelNotReady
	}
	if len(windows) == 0 {
		return nil, fmt.Errorf("%w: no windows to predict", models.ErrInsufficientData)
	}
	probs, err := a.model.PredictBatch(ctx, windows)
	if err != nil {
		return nil, fmt.Errorf("%s predict: %w", a.model.Name(), err)
	}
	if len(probs) != len(windows) {
		return nil, fmt.Errorf("%s predict: %d probabilities for %d windows", a.model.Name(), len(probs), len(windows))
	}
	for i, p := range probs {
		if math.IsNaN(p) || p < 0 || p > 1 {
			return nil, fmt.Errorf("%s predict: probability %d = %v outside [0,1]", a.model.Name(), i, p)
		}
	}
	return probs, nil
}

// Latest predicts the batch and keeps only the most recent probability.
func (a *Adapter) Latest(ctx context.Context, windows []models.Window) (float64, error) {
	probs, err := a.PredictBatch(ctx, windows)
	if err != nil {
		return 0, err
	}
	return probs[len(probs)-1], nil
}
