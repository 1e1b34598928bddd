package predictor

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinAgent/internal/domain/models"
	domsvc "FinAgent/internal/domain/service"
)

type stubModel struct {
	ready bool
	probs []float64
	err   error
}

func (s *stubModel) Name() string { return "stub" }
func (s *stubModel) Ready() bool  { return s.ready }
func (s *stubModel) Fit(context.Context, []models.Window, []bool, domsvc.FitParams) (domsvc.FitReport, error) {
	return domsvc.FitReport{}, nil
}
func (s *stubModel) PredictBatch(context.Context, []models.Window) ([]float64, error) {
	return s.probs, s.err
}
func (s *stubModel) Save(string) error { return nil }
func (s *stubModel) Load(string) error { return nil }

func closeWindows(closes ...[]float64) []models.Window {
	out := make([]models.Window, len(closes))
	for i, cs := range closes {
		rows := make([][]float64, len(cs))
		for j, c := range cs {
			rows[j] = []float64{c, c, c, c, 1}
		}
		out[i] = models.Window{Start: i, Features: rows}
	}
	return out
}

func TestAdapterGuards(t *testing.T) {
	ctx := context.Background()
	w := closeWindows([]float64{1, 2}, []float64{2, 3})

	_, err := NewAdapter(&stubModel{}).PredictBatch(ctx, w)
	assert.True(t, errors.Is(err, models.ErrModelNotReady))

	_, err = NewAdapter(&stubModel{ready: true}).PredictBatch(ctx, nil)
	assert.True(t, errors.Is(err, models.ErrInsufficientData))

	_, err = NewAdapter(&stubModel{ready: true, probs: []float64{0.5}}).PredictBatch(ctx, w)
	assert.Error(t, err)

	_, err = NewAdapter(&stubModel{ready: true, probs: []float64{0.5, 1.5}}).PredictBatch(ctx, w)
	assert.Error(t, err)

	_, err = NewAdapter(&stubModel{ready: true, err: errors.New("boom")}).PredictBatch(ctx, w)
	assert.ErrorContains(t, err, "boom")

	p, err := NewAdapter(&stubModel{ready: true, probs: []float64{0.2, 0.7}}).Latest(ctx, w)
	require.NoError(t, err)
	assert.Equal(t, 0.7, p)
}

func linearData(n int, seed int64) ([]models.Window, []bool) {
	rng := rand.New(rand.NewSource(seed))
	windows := make([]models.Window, n)
	labels := make([]bool, n)
	for i := range windows {
		a, b := rng.Float64(), rng.Float64()
		windows[i] = models.Window{Start: i, Features: [][]float64{{a}, {b}}}
		labels[i] = b > a
	}
	return windows, labels
}

func TestDenseLearnsAndIsDeterministic(t *testing.T) {
	ctx := context.Background()
	windows, labels := linearData(300, 7)
	params := domsvc.FitParams{Epochs: 200, BatchSize: 16, ValidationSplit: 0.2, LearningRate: 0.5, Seed: 42}

	d := NewDense()
	assert.False(t, d.Ready())
	rep, err := d.Fit(ctx, windows, labels, params)
	require.NoError(t, err)
	assert.True(t, d.Ready())
	assert.Equal(t, 240, rep.Samples)
	assert.Equal(t, 60, rep.ValSamples)
	assert.Greater(t, rep.Accuracy, 0.8)
	assert.Greater(t, rep.ValAccuracy, 0.8)

	again := NewDense()
	_, err = again.Fit(ctx, windows, labels, params)
	require.NoError(t, err)
	assert.Equal(t, d.Weights, again.Weights)
	assert.Equal(t, d.Bias, again.Bias)

	probs, err := d.PredictBatch(ctx, closeWindows([]float64{0.1, 0.9}, []float64{0.9, 0.1}))
	require.Error(t, err, "feature count mismatch")
	assert.Nil(t, probs)

	probs, err = d.PredictBatch(ctx, []models.Window{{Features: [][]float64{{0.1}, {0.9}}}, {Features: [][]float64{{0.9}, {0.1}}}})
	require.NoError(t, err)
	assert.Greater(t, probs[0], 0.5)
	assert.Less(t, probs[1], 0.5)
}

func TestDensePersistence(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	d := NewDense()
	assert.True(t, errors.Is(d.Save(dir), models.ErrModelNotReady))
	_, err := d.PredictBatch(ctx, nil)
	assert.True(t, errors.Is(err, models.ErrModelNotReady))

	windows, labels := linearData(50, 1)
	_, err = d.Fit(ctx, windows, labels, domsvc.FitParams{Epochs: 5, BatchSize: 8, LearningRate: 0.1})
	require.NoError(t, err)
	require.NoError(t, d.Save(dir))

	loaded := NewDense()
	require.NoError(t, loaded.Load(dir))
	assert.True(t, loaded.Ready())
	a, err := d.PredictBatch(ctx, windows)
	require.NoError(t, err)
	b, err := loaded.PredictBatch(ctx, windows)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	assert.Error(t, NewDense().Load(t.TempDir()))
}

func TestDenseFitValidation(t *testing.T) {
	ctx := context.Background()
	_, err := NewDense().Fit(ctx, nil, nil, domsvc.FitParams{})
	assert.True(t, errors.Is(err, models.ErrInsufficientData))

	windows, _ := linearData(4, 1)
	_, err = NewDense().Fit(ctx, windows, []bool{true}, domsvc.FitParams{})
	assert.Error(t, err)
}

func TestSplitCounts(t *testing.T) {
	tr, va := splitCounts(10, 0.2)
	assert.Equal(t, 8, tr)
	assert.Equal(t, 2, va)
	tr, va = splitCounts(1, 0.5)
	assert.Equal(t, 1, tr)
	assert.Equal(t, 0, va)
	tr, va = splitCounts(3, 0.99)
	assert.Equal(t, 1, tr)
	assert.Equal(t, 2, va)
}

func TestMomentumDirection(t *testing.T) {
	ctx := context.Background()
	rising := make([]float64, 30)
	falling := make([]float64, 30)
	flat := make([]float64, 30)
	for i := range rising {
		rising[i] = float64(i) / 29
		falling[i] = 1 - float64(i)/29
		flat[i] = 0.5
	}

	m := NewMomentum(14)
	_, err := m.PredictBatch(ctx, closeWindows(rising))
	assert.True(t, errors.Is(err, models.ErrModelNotReady))

	rep, err := m.Fit(ctx, closeWindows(rising, falling), []bool{true, false}, domsvc.FitParams{})
	require.NoError(t, err)
	assert.Equal(t, 1.0, rep.Accuracy)

	probs, err := m.PredictBatch(ctx, closeWindows(rising, falling, flat, rising[:5]))
	require.NoError(t, err)
	assert.Greater(t, probs[0], 0.5)
	assert.Less(t, probs[1], 0.5)
	assert.Equal(t, 0.5, probs[2])
	assert.Equal(t, 0.5, probs[3], "window shorter than the period")

	dir := t.TempDir()
	require.NoError(t, m.Save(dir))
	loaded := NewMomentum(0)
	require.NoError(t, loaded.Load(dir))
	assert.Equal(t, 14, loaded.Period)
	assert.True(t, loaded.Ready())
}

func TestRemoteFitAndPredict(t *testing.T) {
	var fitCalls, predictCalls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/models/agent-1/fit":
			atomic.AddInt32(&fitCalls, 1)
			var req remoteFitReq
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Len(t, req.Windows, 2)
			assert.Equal(t, []int{1, 0}, req.Labels)
			assert.Equal(t, 7, req.Epochs)
			_ = json.NewEncoder(w).Encode(domsvc.FitReport{Accuracy: 0.75, ValAccuracy: 0.6, Samples: 2})
		case "/models/agent-1/predict":
			if atomic.AddInt32(&predictCalls, 1) == 1 {
				http.Error(w, "warming up", http.StatusServiceUnavailable)
				return
			}
			var req remotePredictReq
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			probs := make([]float64, len(req.Windows))
			for i := range probs {
				probs[i] = 0.25
			}
			_ = json.NewEncoder(w).Encode(remotePredictResp{Probabilities: probs})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	ctx := context.Background()
	windows := closeWindows([]float64{1, 2}, []float64{2, 1})
	r := NewRemote(srv.URL+"/", "agent-1", time.Second, WithRetries(3))

	_, err := r.PredictBatch(ctx, windows)
	assert.True(t, errors.Is(err, models.ErrModelNotReady))

	rep, err := r.Fit(ctx, windows, []bool{true, false}, domsvc.FitParams{Epochs: 7})
	require.NoError(t, err)
	assert.Equal(t, 0.6, rep.ValAccuracy)
	assert.True(t, r.Ready())

	probs, err := r.PredictBatch(ctx, windows)
	require.NoError(t, err)
	assert.Equal(t, []float64{0.25, 0.25}, probs)
	assert.Equal(t, int32(2), atomic.LoadInt32(&predictCalls))
	assert.Equal(t, int32(1), atomic.LoadInt32(&fitCalls))

	dir := t.TempDir()
	require.NoError(t, r.Save(dir))
	_, err = os.Stat(filepath.Join(dir, RemoteFile))
	require.NoError(t, err)

	loaded := NewRemote(srv.URL, "", time.Second)
	require.NoError(t, loaded.Load(dir))
	assert.Equal(t, "agent-1", loaded.modelID)
	assert.True(t, loaded.Ready())
}

func TestRemoteClientErrorNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "unknown model", http.StatusNotFound)
	}))
	defer srv.Close()

	r := NewRemote(srv.URL, "ghost", time.Second, WithRetries(5))
	r.ready = true
	_, err := r.PredictBatch(context.Background(), closeWindows([]float64{1}))
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestFactory(t *testing.T) {
	p, err := New(models.StrategyDNN, Options{})
	require.NoError(t, err)
	assert.Equal(t, models.StrategyDNN, p.Name())

	p, err = New(models.StrategyMomentum, Options{RSIPeriod: 7})
	require.NoError(t, err)
	assert.Equal(t, 7, p.(*Momentum).Period)

	_, err = New(models.StrategyLSTM, Options{})
	assert.Error(t, err)

	p, err = New(models.StrategyLSTM, Options{ServiceURL: "http://models:8000", ModelID: "a"})
	require.NoError(t, err)
	assert.Equal(t, models.StrategyLSTM, p.Name())

	_, err = New("xgboost", Options{})
	assert.Error(t, err)
}
