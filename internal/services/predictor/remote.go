package predictor

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"FinAgent/internal/domain/models"
	domsvc "FinAgent/internal/domain/service"
)

// RemoteFile stores the reference to a model hosted by the model service.
const RemoteFile = "remote.json"

// Remote is a sequence model (LSTM) hosted by an external model service.
// Windows are sent as-is; the service owns the weights.
type Remote struct {
	base    *serviceBase
	modelID string
	retries int
	ready   bool
}

type RemoteOption func(*Remote)

func WithRetries(n int) RemoteOption {
	return func(r *Remote) { r.retries = n }
}

func NewRemote(serviceURL, modelID string, timeout time.Duration, opts ...RemoteOption) *Remote {
	r := &Remote{
		base:    newServiceBase(serviceURL, timeout),
		modelID: modelID,
		retries: 3,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Remote) Name() string { return models.StrategyLSTM }

func (r *Remote) Ready() bool { return r.ready }

type remoteFitReq struct {
	Windows         [][][]float64 `json:"windows"`
	Labels          []int         `json:"labels"`
	Epochs          int           `json:"epochs"`
	BatchSize       int           `json:"batch_size"`
	ValidationSplit float64       `json:"validation_split"`
	LearningRate    float64       `json:"learning_rate"`
	Seed            int64         `json:"seed"`
}

type remotePredictReq struct {
	Windows [][][]float64 `json:"windows"`
}

type remotePredictResp struct {
	Probabilities []float64 `json:"probabilities"`
}

type remoteRef struct {
	ModelID    string `json:"model_id"`
	ServiceURL string `json:"service_url"`
}

func (r *Remote) Fit(ctx context.Context, windows []models.Window, labels []bool, p domsvc.FitParams) (domsvc.FitReport, error) {
	if len(windows) == 0 {
		return domsvc.FitReport{}, fmt.Errorf("%w: no training windows", models.ErrInsufficientData)
	}
	if len(labels) != len(windows) {
		return domsvc.FitReport{}, fmt.Errorf("%d labels for %d windows", len(labels), len(windows))
	}
	ys := make([]int, len(labels))
	for i, up := range labels {
		if up {
			ys[i] = 1
		}
	}
	req := remoteFitReq{
		Windows:         features(windows),
		Labels:          ys,
		Epochs:          p.Epochs,
		BatchSize:       p.BatchSize,
		ValidationSplit: p.ValidationSplit,
		LearningRate:    p.LearningRate,
		Seed:            p.Seed,
	}
	// Fit is not retried: the service trains on every call.
	var rep domsvc.FitReport
	if err := r.base.postJSON(ctx, r.path("fit"), req, &rep); err != nil {
		return domsvc.FitReport{}, fmt.Errorf("remote fit: %w", err)
	}
	r.ready = true
	return rep, nil
}

func (r *Remote) PredictBatch(ctx context.Context, windows []models.Window) ([]float64, error) {
	if !r.ready {
		return nil, models.ErrModelNotReady
	}
	var resp remotePredictResp
	if err := r.base.postJSONWithRetry(ctx, r.path("predict"), remotePredictReq{Windows: features(windows)}, &resp, r.retries); err != nil {
		return nil, fmt.Errorf("remote predict: %w", err)
	}
	return resp.Probabilities, nil
}

func (r *Remote) Save(dir string) error {
	if !r.ready {
		return models.ErrModelNotReady
	}
	return writeArtifact(dir, RemoteFile, remoteRef{ModelID: r.modelID, ServiceURL: r.base.baseURL})
}

// Load restores the model reference. A configured service URL wins over the stored one.
func (r *Remote) Load(dir string) error {
	var ref remoteRef
	if err := readArtifact(dir, RemoteFile, &ref); err != nil {
		return err
	}
	if ref.ModelID == "" {
		return fmt.Errorf("remote artifact has no model id")
	}
	r.modelID = ref.ModelID
	if r.base.baseURL == "" {
		r.base.baseURL = ref.ServiceURL
	}
	r.ready = true
	return nil
}

func (r *Remote) path(op string) string {
	return "/models/" + url.PathEscape(r.modelID) + "/" + op
}

func features(windows []models.Window) [][][]float64 {
	out := make([][][]float64, len(windows))
	for i, w := range windows {
		out[i] = w.Features
	}
	return out
}

var _ domsvc.Predictor = (*Remote)(nil)
