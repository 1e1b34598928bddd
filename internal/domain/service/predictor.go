package service

import (
	"context"

	"FinAgent/internal/domain/models"
)

// FitParams controls predictor training.
type FitParams struct {
	Epochs          int
	BatchSize       int
	ValidationSplit float64
	LearningRate    float64
	Seed            int64
}

// FitReport summarizes a training run. Val* are zero when no validation windows were held out.
type FitReport struct {
	Accuracy    float64 `json:"accuracy"`
	Loss        float64 `json:"loss"`
	ValAccuracy float64 `json:"val_accuracy"`
	ValLoss     float64 `json:"val_loss"`
	Samples     int     `json:"samples"`
	ValSamples  int     `json:"val_samples"`
}

// Predictor is the opaque directional model capability.
// PredictBatch returns one probability of an up move per window, in window order.
type Predictor interface {
	Name() string
	Ready() bool
	Fit(ctx context.Context, windows []models.Window, labels []bool, p FitParams) (FitReport, error)
	PredictBatch(ctx context.Context, windows []models.Window) ([]float64, error)
	Save(dir string) error
	Load(dir string) error
}

// Scaler is a column-wise numeric transform with persisted parameters.
type Scaler interface {
	Fit(m [][]float64) error
	Transform(m [][]float64) ([][]float64, error)
	FitTransform(m [][]float64) ([][]float64, error)
	InverseTransform(m [][]float64) ([][]float64, error)
	Fitted() bool
	Save(dir string) error
	Load(dir string) error
}
