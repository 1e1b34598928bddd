package features

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	domsvc "FinAgent/internal/domain/service"
)

// ScalerFile is the artifact name of a persisted scaler.
const ScalerFile = "scaler.json"

// MinMaxScaler maps every column to [0,1] over the fitted range.
// Constant columns map to 0.
type MinMaxScaler struct {
	Min []float64 `json:"min"`
	Max []float64 `json:"max"`
}

func NewMinMaxScaler() *MinMaxScaler { return &MinMaxScaler{} }

func (s *MinMaxScaler) Fitted() bool { return len(s.Min) > 0 && len(s.Min) == len(s.Max) }

func (s *MinMaxScaler) Fit(m [][]float64) error {
	if len(m) == 0 || len(m[0]) == 0 {
		return fmt.Errorf("fit scaler: empty matrix")
	}
	cols := len(m[0])
	lo := make([]float64, cols)
	hi := make([]float64, cols)
	copy(lo, m[0])
	copy(hi, m[0])
	for i, row := range m {
		if len(row) != cols {
			return fmt.Errorf("fit scaler: row %d has %d columns, want %d", i, len(row), cols)
		}
		for j, v := range row {
			if v < lo[j] {
				lo[j] = v
			}
			if v > hi[j] {
				hi[j] = v
			}
		}
	}
	s.Min, s.Max = lo, hi
	return nil
}

func (s *MinMaxScaler) Transform(m [][]float64) ([][]float64, error) {
	return s.apply(m, func(v, lo, span float64) float64 {
		if span == 0 {
			return 0
		}
		return (v - lo) / span
	})
}

func (s *MinMaxScaler) FitTransform(m [][]float64) ([][]float64, error) {
	if err := s.Fit(m); err != nil {
		return nil, err
	}
	return s.Transform(m)
}

func (s *MinMaxScaler) InverseTransform(m [][]float64) ([][]float64, error) {
	return s.apply(m, func(v, lo, span float64) float64 { return v*span + lo })
}

func (s *MinMaxScaler) apply(m [][]float64, fn func(v, lo, span float64) float64) ([][]float64, error) {
	if !s.Fitted() {
		return nil, fmt.Errorf("scaler not fitted")
	}
	out := make([][]float64, len(m))
	for i, row := range m {
		if len(row) != len(s.Min) {
			return nil, fmt.Errorf("row %d has %d columns, scaler expects %d", i, len(row), len(s.Min))
		}
		r := make([]float64, len(row))
		for j, v := range row {
			r[j] = fn(v, s.Min[j], s.Max[j]-s.Min[j])
		}
		out[i] = r
	}
	return out, nil
}

// Save writes the fitted parameters to dir/scaler.json.
func (s *MinMaxScaler) Save(dir string) error {
	if !s.Fitted() {
		return fmt.Errorf("scaler not fitted")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create scaler dir: %w", err)
	}
	b, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode scaler: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, ScalerFile), b, 0o644)
}

// Load restores parameters written by Save.
func (s *MinMaxScaler) Load(dir string) error {
	b, err := os.ReadFile(filepath.Join(dir, ScalerFile))
	if err != nil {
		return fmt.Errorf("read scaler: %w", err)
	}
	var tmp MinMaxScaler
	if err := json.Unmarshal(b, &tmp); err != nil {
		return fmt.Errorf("decode scaler: %w", err)
	}
	if !tmp.Fitted() {
		return fmt.Errorf("scaler artifact is empty")
	}
	*s = tmp
	return nil
}

var _ domsvc.Scaler = (*MinMaxScaler)(nil)
