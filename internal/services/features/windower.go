package features

import (
	"fmt"

	"FinAgent/internal/domain/models"
	domsvc "FinAgent/internal/domain/service"
)

// DefaultWindowLength is the number of bars per model input.
const DefaultWindowLength = 60

// Window slices a series into N-L overlapping windows of raw OHLCV rows.
// Window i covers bars [i, i+L) and labels[i] is close[i+L] > close[i+L-1].
// It fails with ErrInsufficientData when len(series) <= length.
func Window(series models.Series, length int) ([]models.Window, []bool, error) {
	return slice(series, series.Matrix(), length)
}

// BuildWindows is Window over scaled features: the whole series matrix goes
// through scaler.Transform first. Labels still come from unscaled closes.
func BuildWindows(series models.Series, length int, scaler domsvc.Scaler) ([]models.Window, []bool, error) {
	if err := checkLength(len(series), length); err != nil {
		return nil, nil, err
	}
	scaled, err := scaler.Transform(series.Matrix())
	if err != nil {
		return nil, nil, fmt.Errorf("scale features: %w", err)
	}
	return slice(series, scaled, length)
}

// Labels returns only the direction labels of Window.
func Labels(series models.Series, length int) ([]bool, error) {
	if err := checkLength(len(series), length); err != nil {
		return nil, err
	}
	n := len(series) - length
	labels := make([]bool, n)
	for i := 0; i < n; i++ {
		labels[i] = series[i+length].Close > series[i+length-1].Close
	}
	return labels, nil
}

func slice(series models.Series, matrix [][]float64, length int) ([]models.Window, []bool, error) {
	if err := checkLength(len(series), length); err != nil {
		return nil, nil, err
	}
	if len(matrix) != len(series) {
		return nil, nil, fmt.Errorf("feature rows %d != bars %d", len(matrix), len(series))
	}

	labels, _ := Labels(series, length)
	n := len(series) - length
	windows := make([]models.Window, n)
	for i := 0; i < n; i++ {
		rows := make([][]float64, length)
		for j := 0; j < length; j++ {
			row := make([]float64, len(matrix[i+j]))
			copy(row, matrix[i+j])
			rows[j] = row
		}
		windows[i] = models.Window{
			Start:     i,
			Features:  rows,
			Timestamp: series[i+length-1].Timestamp,
		}
	}
	return windows, labels, nil
}

func checkLength(n, length int) error {
	if length <= 0 {
		return fmt.Errorf("window length must be positive, got %d", length)
	}
	if n <= length {
		return fmt.Errorf("%w: %d bars for window length %d", models.ErrInsufficientData, n, length)
	}
	return nil
}
