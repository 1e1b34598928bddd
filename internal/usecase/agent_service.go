package usecase

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"FinAgent/internal/domain/models"
	domrepo "FinAgent/internal/domain/repository"
	domsvc "FinAgent/internal/domain/service"
	"FinAgent/internal/services/features"
	"FinAgent/internal/services/predictor"
	"FinAgent/internal/services/trading"
	applogger "FinAgent/pkg/logger"

	"github.com/google/uuid"
)

var (
	ErrAgentExists        = errors.New("agent already exists")
	ErrTrainingInProgress = errors.New("training already in progress")
	ErrInvalidRequest     = models.ErrInvalidRequest
)

// PredictorFactory builds the predictor of an agent's strategy.
type PredictorFactory func(strategy, agentID string) (domsvc.Predictor, error)

// NewPredictorFactory binds predictor.New to fixed options. The model id of
// remote predictors is the agent id.
func NewPredictorFactory(opts predictor.Options) PredictorFactory {
	return func(strategy, agentID string) (domsvc.Predictor, error) {
		o := opts
		o.ModelID = agentID
		return predictor.New(strategy, o)
	}
}

type AgentServiceConfig struct {
	WindowLength     int
	DefaultRiskLevel float64
	InitialBalance   float64
	DefaultBalance   float64
	// EvalSplit is the fraction of training bars kept out of the post-training backtest.
	EvalSplit    float64
	EvalTimeout  time.Duration
	Seed         int64
	SignalPolicy string
	TrainLockTTL time.Duration
}

// AgentService runs the agent lifecycle: create, train, predict, execute and evaluate.
type AgentService struct {
	store      domrepo.AgentStore
	source     domrepo.BarSource
	predictors PredictorFactory
	metrics    domrepo.Metrics
	l          *applogger.Logger
	cfg        AgentServiceConfig
	policy     trading.Policy

	now   func() time.Time
	newID func() string

	mu     sync.Mutex
	loaded map[string]*loadedModel
}

type loadedModel struct {
	stamp  time.Time
	model  domsvc.Predictor
	scaler *features.MinMaxScaler
}

func NewAgentService(
	store domrepo.AgentStore,
	source domrepo.BarSource,
	predictors PredictorFactory,
	metrics domrepo.Metrics,
	l *applogger.Logger,
	cfg AgentServiceConfig,
) (*AgentService, error) {
	if cfg.WindowLength <= 0 {
		cfg.WindowLength = features.DefaultWindowLength
	}
	if cfg.EvalSplit <= 0 || cfg.EvalSplit >= 1 {
		cfg.EvalSplit = 0.8
	}
	if cfg.InitialBalance <= 0 {
		cfg.InitialBalance = 10000
	}
	if cfg.TrainLockTTL <= 0 {
		cfg.TrainLockTTL = 30 * time.Minute
	}
	policy, err := trading.PolicyByName(cfg.SignalPolicy)
	if err != nil {
		return nil, err
	}
	if metrics == nil {
		metrics = domrepo.NopMetrics{}
	}
	if l == nil {
		l = applogger.Nop()
	}
	return &AgentService{
		store:      store,
		source:     source,
		predictors: predictors,
		metrics:    metrics,
		l:          l,
		cfg:        cfg,
		policy:     policy,
		now:        func() time.Time { return time.Now().UTC() },
		newID:      func() string { return uuid.NewString() },
		loaded:     make(map[string]*loadedModel),
	}, nil
}

func (s *AgentService) WindowLength() int { return s.cfg.WindowLength }

type CreateResult struct {
	Agent        *models.Agent `json:"agent"`
	AgentID      string        `json:"agent_id"`
	MetadataHash string        `json:"metadata_hash"`
}

func (s *AgentService) Create(ctx context.Context, req models.CreateAgentRequest) (*CreateResult, error) {
	strategy := strings.ToLower(strings.TrimSpace(req.StrategyType))
	if strategy == "" {
		strategy = models.StrategyDNN
	}
	switch strategy {
	case models.StrategyDNN, models.StrategyLSTM, models.StrategyMomentum:
	default:
		return nil, fmt.Errorf("%w: unknown strategy type %q", ErrInvalidRequest, req.StrategyType)
	}
	if strings.TrimSpace(req.Name) == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidRequest)
	}
	risk := s.cfg.DefaultRiskLevel
	if req.RiskLevel != nil {
		risk = *req.RiskLevel
	}
	if risk < 0 || risk > 1 {
		return nil, fmt.Errorf("%w: risk level %v outside [0,1]", ErrInvalidRequest, risk)
	}

	id := req.AgentID
	if id == "" {
		id = s.newID()
	} else if _, err := s.store.Get(ctx, id); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrAgentExists, id)
	} else if !errors.Is(err, models.ErrAgentNotFound) {
		return nil, err
	}

	now := s.now()
	a := &models.Agent{
		AgentID:            id,
		Name:               req.Name,
		StrategyType:       strategy,
		RiskLevel:          risk,
		PerformanceMetrics: models.DefaultPerformanceMetrics(),
		Metadata:           req.Metadata,
		WindowLength:       s.cfg.WindowLength,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.store.Save(ctx, a); err != nil {
		return nil, fmt.Errorf("save agent: %w", err)
	}
	hash, err := a.Hash()
	if err != nil {
		return nil, err
	}
	s.l.Info("agent created",
		applogger.String("agent_id", id),
		applogger.String("strategy", strategy),
		applogger.Float64("risk_level", risk))
	return &CreateResult{Agent: a, AgentID: id, MetadataHash: hash}, nil
}

func (s *AgentService) Get(ctx context.Context, id string) (*models.Agent, error) {
	return s.store.Get(ctx, id)
}

func (s *AgentService) List(ctx context.Context) ([]*models.Agent, error) {
	return s.store.List(ctx)
}

type TrainResult struct {
	AgentID    string                     `json:"agent_id"`
	Bars       int                        `json:"bars"`
	Windows    int                        `json:"windows"`
	Fit        domsvc.FitReport           `json:"fit"`
	Evaluation *models.PerformanceMetrics `json:"evaluation,omitempty"`
	// EvaluationSkipped is set when the held-out tail is too short to backtest.
	EvaluationSkipped bool                `json:"evaluation_skipped"`
	Metrics           map[string]float64 `json:"performance_metrics"`
}

// Train fits the scaler and the predictor on the bars of req.Source, stores
// both artifacts and backtests the trailing part of the data.
func (s *AgentService) Train(ctx context.Context, id string, req models.TrainAgentRequest) (*TrainResult, error) {
	start := time.Now()
	defer func() { s.metrics.RecordLatency("train", time.Since(start).Seconds()) }()

	if locker, ok := s.store.(domrepo.TrainLocker); ok {
		release, acquired, err := locker.TrainLock(ctx, id, s.cfg.TrainLockTTL)
		if err != nil {
			return nil, fmt.Errorf("train lock: %w", err)
		}
		defer release()
		if !acquired {
			return nil, fmt.Errorf("%w: %s", ErrTrainingInProgress, id)
		}
	}

	a, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	series, err := s.resolve(ctx, req.Source, nil)
	if err != nil {
		s.metrics.RecordError(errorKind(err))
		return nil, err
	}
	l := a.WindowLength
	if l <= 0 {
		l = s.cfg.WindowLength
	}
	if len(series) <= l {
		return nil, fmt.Errorf("%w: %d bars for window length %d", models.ErrInsufficientData, len(series), l)
	}

	scaler := features.NewMinMaxScaler()
	if err := scaler.Fit(series.Matrix()); err != nil {
		return nil, err
	}
	windows, labels, err := features.BuildWindows(series, l, scaler)
	if err != nil {
		return nil, err
	}

	model, err := s.predictors(a.StrategyType, a.AgentID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	report, err := model.Fit(ctx, windows, labels, domsvc.FitParams{
		Epochs:          req.Epochs,
		BatchSize:       req.BatchSize,
		ValidationSplit: req.ValidationSplit,
		LearningRate:    req.LearningRate,
		Seed:            s.cfg.Seed,
	})
	if err != nil {
		s.metrics.RecordError("fit")
		return nil, fmt.Errorf("fit %s: %w", a.StrategyType, err)
	}

	dir := s.store.ArtifactDir(a.AgentID)
	if err := model.Save(dir); err != nil {
		return nil, fmt.Errorf("save model: %w", err)
	}
	if err := scaler.Save(dir); err != nil {
		return nil, fmt.Errorf("save scaler: %w", err)
	}
	s.forget(a.AgentID)

	accuracy := report.Accuracy
	if report.ValSamples > 0 {
		accuracy = report.ValAccuracy
	}
	a.Trained = true
	a.WindowLength = l
	a.MergeMetrics(map[string]float64{"accuracy": accuracy, "loss": report.Loss})

	res := &TrainResult{AgentID: a.AgentID, Bars: len(series), Windows: len(windows), Fit: report}

	split := int(float64(len(series)) * s.cfg.EvalSplit)
	tail := series[split:]
	if len(tail) > l {
		bt, err := s.backtest(ctx, model, scaler, tail, l, s.cfg.InitialBalance, s.cfg.EvalTimeout)
		switch {
		case err != nil:
			s.l.Warn("post-training evaluation failed", applogger.String("agent_id", a.AgentID), applogger.Error(err))
			res.EvaluationSkipped = true
		case !bt.Completed:
			s.l.Warn("post-training evaluation cancelled", applogger.String("agent_id", a.AgentID))
			res.EvaluationSkipped = true
		default:
			m := bt.Metrics
			res.Evaluation = &m
			evalMetrics := m.AsMap()
			// accuracy stays the validation accuracy of the fit
			evalMetrics["backtest_accuracy"] = evalMetrics["accuracy"]
			delete(evalMetrics, "accuracy")
			a.MergeMetrics(evalMetrics)
		}
	} else {
		s.l.Warn("not enough bars to evaluate after training",
			applogger.String("agent_id", a.AgentID),
			applogger.Int("tail_bars", len(tail)),
			applogger.Int("window_length", l))
		res.EvaluationSkipped = true
	}

	a.UpdatedAt = s.now()
	if err := s.store.Save(ctx, a); err != nil {
		return nil, fmt.Errorf("save agent: %w", err)
	}
	res.Metrics = a.PerformanceMetrics

	s.l.Info("agent trained",
		applogger.String("agent_id", a.AgentID),
		applogger.Int("bars", len(series)),
		applogger.Float64("accuracy", accuracy),
		applogger.Duration("took", time.Since(start)))
	return res, nil
}

// Predict returns the decision of the most recent window.
func (s *AgentService) Predict(ctx context.Context, id string, req models.PredictRequest) (*models.Prediction, error) {
	a, model, scaler, err := s.ready(ctx, id)
	if err != nil {
		return nil, err
	}
	series, err := s.resolve(ctx, req.Source, req.Bars)
	if err != nil {
		s.metrics.RecordError(errorKind(err))
		return nil, err
	}
	return s.predict(ctx, a, model, scaler, series)
}

func (s *AgentService) predict(ctx context.Context, a *models.Agent, model domsvc.Predictor, scaler *features.MinMaxScaler, series models.Series) (*models.Prediction, error) {
	start := time.Now()
	windows, _, err := features.BuildWindows(series, a.WindowLength, scaler)
	if err != nil {
		s.metrics.RecordError(errorKind(err))
		return nil, err
	}
	p, err := predictor.NewAdapter(model).Latest(ctx, windows)
	if err != nil {
		s.metrics.RecordError(errorKind(err))
		return nil, err
	}
	sig := s.policy.Decide(p, a.RiskLevel)
	s.metrics.RecordPrediction(a.StrategyType, string(sig))
	s.metrics.RecordLatency("predict", time.Since(start).Seconds())

	return &models.Prediction{
		Probability: p,
		Signal:      sig,
		Confidence:  trading.Confidence(p),
		Timestamp:   series.Last().Timestamp,
		RiskLevel:   a.RiskLevel,
	}, nil
}

type ExecuteResult struct {
	Prediction *models.Prediction    `json:"prediction"`
	Outcome    models.StepOutcome    `json:"outcome"`
	State      models.PortfolioState `json:"state"`
	Equity     float64               `json:"equity"`
}

// Execute predicts on the bars and advances the given portfolio by one
// risk-weighted step at the last close.
func (s *AgentService) Execute(ctx context.Context, id string, req models.ExecuteRequest) (*ExecuteResult, error) {
	a, model, scaler, err := s.ready(ctx, id)
	if err != nil {
		return nil, err
	}
	series, err := s.resolve(ctx, req.Source, req.Bars)
	if err != nil {
		s.metrics.RecordError(errorKind(err))
		return nil, err
	}
	balance := s.cfg.DefaultBalance
	if req.Balance != nil {
		balance = *req.Balance
	}
	return s.execute(ctx, a, model, scaler, series, models.PortfolioState{CashBalance: balance, Position: req.Position})
}

func (s *AgentService) execute(ctx context.Context, a *models.Agent, model domsvc.Predictor, scaler *features.MinMaxScaler, series models.Series, state models.PortfolioState) (*ExecuteResult, error) {
	pred, err := s.predict(ctx, a, model, scaler, series)
	if err != nil {
		return nil, err
	}
	last := series.Last()
	next, out, err := trading.Step(state, trading.StepInput{
		Signal:     pred.Signal,
		Price:      last.Close,
		Confidence: pred.Confidence,
		RiskLevel:  a.RiskLevel,
		Timestamp:  last.Timestamp,
	}, trading.RiskWeighted{})
	if err != nil {
		s.metrics.RecordError(errorKind(err))
		return nil, err
	}
	if out.Action != models.SignalHold {
		s.metrics.RecordTrade(string(out.Action))
	}
	equity := next.Equity(last.Close)
	s.metrics.RecordEquity(a.AgentID, equity)
	return &ExecuteResult{Prediction: pred, Outcome: out, State: next, Equity: equity}, nil
}

// Evaluate backtests the agent over historical bars. A run cut short by the
// timeout returns the partial result with Completed unset and is not stored.
func (s *AgentService) Evaluate(ctx context.Context, id string, req models.EvaluateRequest) (*models.BacktestResult, error) {
	start := time.Now()
	defer func() { s.metrics.RecordLatency("evaluate", time.Since(start).Seconds()) }()

	a, model, scaler, err := s.ready(ctx, id)
	if err != nil {
		return nil, err
	}
	series, err := s.resolve(ctx, req.Source, req.Bars)
	if err != nil {
		s.metrics.RecordError(errorKind(err))
		return nil, err
	}
	initial := req.InitialBalance
	if initial <= 0 {
		initial = s.cfg.InitialBalance
	}
	timeout := s.cfg.EvalTimeout
	if req.TimeoutMs > 0 {
		timeout = time.Duration(req.TimeoutMs) * time.Millisecond
	}

	res, err := s.backtest(ctx, model, scaler, series, a.WindowLength, initial, timeout)
	if err != nil {
		s.metrics.RecordError(errorKind(err))
		return nil, err
	}
	if !res.Completed {
		s.l.Warn("evaluation cancelled",
			applogger.String("agent_id", a.AgentID),
			applogger.Int("steps", res.Steps),
			applogger.Int("total_steps", res.TotalSteps))
		return res, nil
	}

	a.MergeMetrics(res.Metrics.AsMap())
	a.UpdatedAt = s.now()
	if err := s.store.Save(ctx, a); err != nil {
		return nil, fmt.Errorf("save agent: %w", err)
	}
	s.l.Info("agent evaluated",
		applogger.String("agent_id", a.AgentID),
		applogger.Float64("profit_loss", res.Metrics.ProfitLoss),
		applogger.Int("num_trades", res.Metrics.NumTrades))
	return res, nil
}

// backtest predicts every window up front and replays the probabilities.
// Cancellation yields a partial result and a nil error.
func (s *AgentService) backtest(ctx context.Context, model domsvc.Predictor, scaler *features.MinMaxScaler, series models.Series, l int, initial float64, timeout time.Duration) (*models.BacktestResult, error) {
	windows, _, err := features.BuildWindows(series, l, scaler)
	if err != nil {
		return nil, err
	}
	probs, err := predictor.NewAdapter(model).PredictBatch(ctx, windows)
	if err != nil {
		return nil, err
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	res, err := trading.NewSimulator(l).Run(ctx, series, probs, initial)
	if errors.Is(err, models.ErrRunCancelled) && res != nil {
		return res, nil
	}
	return res, err
}

// ready returns a trained agent with its model and scaler loaded.
func (s *AgentService) ready(ctx context.Context, id string) (*models.Agent, domsvc.Predictor, *features.MinMaxScaler, error) {
	a, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, nil, nil, err
	}
	if !a.Trained {
		return nil, nil, nil, fmt.Errorf("%w: agent %s is not trained", models.ErrModelNotReady, id)
	}
	if a.WindowLength <= 0 {
		a.WindowLength = s.cfg.WindowLength
	}
	model, scaler, err := s.load(a)
	if err != nil {
		return nil, nil, nil, err
	}
	return a, model, scaler, nil
}

// load returns the artifacts of a, reusing the loaded copy while the scaler
// file on disk is unchanged.
func (s *AgentService) load(a *models.Agent) (domsvc.Predictor, *features.MinMaxScaler, error) {
	dir := s.store.ArtifactDir(a.AgentID)
	info, err := os.Stat(filepath.Join(dir, features.ScalerFile))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", models.ErrModelNotReady, err)
	}

	s.mu.Lock()
	lm, ok := s.loaded[a.AgentID]
	s.mu.Unlock()
	if ok && lm.stamp.Equal(info.ModTime()) {
		return lm.model, lm.scaler, nil
	}

	model, err := s.predictors(a.StrategyType, a.AgentID)
	if err != nil {
		return nil, nil, err
	}
	if err := model.Load(dir); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", models.ErrModelNotReady, err)
	}
	scaler := features.NewMinMaxScaler()
	if err := scaler.Load(dir); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", models.ErrModelNotReady, err)
	}

	s.mu.Lock()
	s.loaded[a.AgentID] = &loadedModel{stamp: info.ModTime(), model: model, scaler: scaler}
	s.mu.Unlock()
	return model, scaler, nil
}

func (s *AgentService) forget(id string) {
	s.mu.Lock()
	delete(s.loaded, id)
	s.mu.Unlock()
}

// resolve prefers inline bars over the source spec.
func (s *AgentService) resolve(ctx context.Context, source string, bars []models.Bar) (models.Series, error) {
	if len(bars) == 0 {
		if source == "" {
			return nil, fmt.Errorf("%w: no bars and no source", ErrInvalidRequest)
		}
		if s.source == nil {
			return nil, fmt.Errorf("%w: no data source configured", ErrInvalidRequest)
		}
		loaded, err := s.source.Load(ctx, source)
		if err != nil {
			return nil, err
		}
		bars = loaded
	}
	return features.NewSeries(bars)
}

// errorKind labels err for the errors metric.
func errorKind(err error) string {
	switch {
	case errors.Is(err, models.ErrInsufficientData):
		return "insufficient_data"
	case errors.Is(err, models.ErrModelNotReady):
		return "model_not_ready"
	case errors.Is(err, models.ErrInvalidPrice):
		return "invalid_price"
	case errors.Is(err, models.ErrMalformedSeries):
		return "malformed_series"
	case errors.Is(err, models.ErrRunCancelled):
		return "cancelled"
	case errors.Is(err, models.ErrAgentNotFound):
		return "agent_not_found"
	case errors.Is(err, models.ErrInvalidRequest):
		return "invalid_request"
	default:
		return "internal"
	}
}
