package predictor

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"

	"FinAgent/internal/domain/models"
	domsvc "FinAgent/internal/domain/service"
)

// DenseFile is the artifact name of a fitted dense model.
const DenseFile = "model.json"

// Dense is a logistic model over the flattened window, trained in process
// with mini-batch gradient descent. Training is deterministic for a seed.
type Dense struct {
	Weights []float64 `json:"weights"`
	Bias    float64   `json:"bias"`
	ready   bool
}

func NewDense() *Dense { return &Dense{} }

func (d *Dense) Name() string { return models.StrategyDNN }

func (d *Dense) Ready() bool { return d.ready }

func (d *Dense) Fit(ctx context.Context, windows []models.Window, labels []bool, p domsvc.FitParams) (domsvc.FitReport, error) {
	xs, err := flattenAll(windows)
	if err != nil {
		return domsvc.FitReport{}, err
	}
	if len(labels) != len(xs) {
		return domsvc.FitReport{}, fmt.Errorf("%d labels for %d windows", len(labels), len(xs))
	}
	ys := make([]float64, len(labels))
	for i, up := range labels {
		if up {
			ys[i] = 1
		}
	}

	nTrain, nVal := splitCounts(len(xs), p.ValidationSplit)
	epochs, batch, lr := p.Epochs, p.BatchSize, p.LearningRate
	if epochs <= 0 {
		epochs = 1
	}
	if batch <= 0 {
		batch = 32
	}
	if lr <= 0 {
		lr = 0.05
	}

	w := make([]float64, len(xs[0]))
	b := 0.0
	rng := rand.New(rand.NewSource(p.Seed))
	order := make([]int, nTrain)
	for i := range order {
		order[i] = i
	}
	grad := make([]float64, len(w))

	for e := 0; e < epochs; e++ {
		if err := ctx.Err(); err != nil {
			return domsvc.FitReport{}, err
		}
		rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
		for start := 0; start < nTrain; start += batch {
			end := min(start+batch, nTrain)
			for k := range grad {
				grad[k] = 0
			}
			gb := 0.0
			for _, idx := range order[start:end] {
				diff := sigmoid(dot(w, xs[idx])+b) - ys[idx]
				for k, v := range xs[idx] {
					grad[k] += diff * v
				}
				gb += diff
			}
			scale := lr / float64(end-start)
			for k := range w {
				w[k] -= scale * grad[k]
			}
			b -= scale * gb
		}
	}

	d.Weights, d.Bias, d.ready = w, b, true

	rep := domsvc.FitReport{Samples: nTrain, ValSamples: nVal}
	rep.Accuracy, rep.Loss = d.score(xs[:nTrain], ys[:nTrain])
	if nVal > 0 {
		rep.ValAccuracy, rep.ValLoss = d.score(xs[nTrain:], ys[nTrain:])
	}
	return rep, nil
}

func (d *Dense) PredictBatch(ctx context.Context, windows []models.Window) ([]float64, error) {
	if !d.ready {
		return nil, models.ErrModelNotReady
	}
	out := make([]float64, len(windows))
	for i, win := range windows {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		x := flatten(win)
		if len(x) != len(d.Weights) {
			return nil, fmt.Errorf("window %d has %d features, model expects %d", i, len(x), len(d.Weights))
		}
		out[i] = sigmoid(dot(d.Weights, x) + d.Bias)
	}
	return out, nil
}

func (d *Dense) Save(dir string) error {
	if !d.ready {
		return models.ErrModelNotReady
	}
	return writeArtifact(dir, DenseFile, d)
}

func (d *Dense) Load(dir string) error {
	var tmp Dense
	if err := readArtifact(dir, DenseFile, &tmp); err != nil {
		return err
	}
	if len(tmp.Weights) == 0 {
		return fmt.Errorf("dense artifact has no weights")
	}
	d.Weights, d.Bias, d.ready = tmp.Weights, tmp.Bias, true
	return nil
}

func (d *Dense) score(xs [][]float64, ys []float64) (acc, loss float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	const eps = 1e-12
	hits := 0
	for i, x := range xs {
		p := sigmoid(dot(d.Weights, x) + d.Bias)
		if (p > 0.5) == (ys[i] == 1) {
			hits++
		}
		loss -= ys[i]*math.Log(p+eps) + (1-ys[i])*math.Log(1-p+eps)
	}
	n := float64(len(xs))
	return float64(hits) / n, loss / n
}

// splitCounts holds out the trailing fraction of samples for validation,
// always leaving at least one training sample.
func splitCounts(n int, split float64) (train, val int) {
	if split <= 0 || split >= 1 || n < 2 {
		return n, 0
	}
	val = int(math.Round(float64(n) * split))
	if val >= n {
		val = n - 1
	}
	return n - val, val
}

func flattenAll(windows []models.Window) ([][]float64, error) {
	if len(windows) == 0 {
		return nil, fmt.Errorf("%w: no training windows", models.ErrInsufficientData)
	}
	xs := make([][]float64, len(windows))
	for i, w := range windows {
		xs[i] = flatten(w)
		if len(xs[i]) != len(xs[0]) {
			return nil, fmt.Errorf("window %d has %d features, want %d", i, len(xs[i]), len(xs[0]))
		}
	}
	if len(xs[0]) == 0 {
		return nil, fmt.Errorf("%w: empty windows", models.ErrInsufficientData)
	}
	return xs, nil
}

func flatten(w models.Window) []float64 {
	n := 0
	for _, row := range w.Features {
		n += len(row)
	}
	out := make([]float64, 0, n)
	for _, row := range w.Features {
		out = append(out, row...)
	}
	return out
}

func dot(a, b []float64) float64 {
	s := 0.0
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}

func writeArtifact(dir, name string, v any) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create artifact dir: %w", err)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	return os.WriteFile(filepath.Join(dir, name), b, 0o644)
}

func readArtifact(dir, name string, v any) error {
	b, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("decode %s: %w", name, err)
	}
	return nil
}

var _ domsvc.Predictor = (*Dense)(nil)
