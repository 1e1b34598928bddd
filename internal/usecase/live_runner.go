package usecase

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"FinAgent/internal/domain/models"
	domrepo "FinAgent/internal/domain/repository"
	"FinAgent/internal/middleware"
	"FinAgent/internal/services/features"
	applogger "FinAgent/pkg/logger"
)

// LiveRunner executes one agent against live bars. Each symbol keeps its own
// ring of the last window_length+1 bars and its own portfolio; every bar
// that completes a ring triggers one execution step. The window length is the
// one the agent was trained with, not the current engine setting.
type LiveRunner struct {
	svc       *AgentService
	agentID   string
	balance   float64
	publisher domrepo.DecisionPublisher
	metrics   domrepo.Metrics
	l         *applogger.Logger

	mu      sync.Mutex
	window  int
	symbols map[string]*symbolBook
}

type symbolBook struct {
	mu    sync.Mutex
	bars  []models.Bar
	state models.PortfolioState
}

func NewLiveRunner(svc *AgentService, agentID string, balance float64, publisher domrepo.DecisionPublisher, metrics domrepo.Metrics, l *applogger.Logger) *LiveRunner {
	if metrics == nil {
		metrics = domrepo.NopMetrics{}
	}
	if l == nil {
		l = applogger.Nop()
	}
	return &LiveRunner{
		svc:       svc,
		agentID:   agentID,
		balance:   balance,
		publisher: publisher,
		metrics:   metrics,
		l:         l.With(applogger.String("agent_id", agentID)),
		symbols:   make(map[string]*symbolBook),
	}
}

func (r *LiveRunner) book(symbol string) *symbolBook {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.symbols[symbol]
	if !ok {
		b = &symbolBook{state: models.PortfolioState{CashBalance: r.balance}}
		r.symbols[symbol] = b
	}
	return b
}

// capacity resolves the agent's window length once and returns the ring size.
func (r *LiveRunner) capacity(ctx context.Context) (int, error) {
	r.mu.Lock()
	w := r.window
	r.mu.Unlock()
	if w > 0 {
		return w + 1, nil
	}

	a, _, _, err := r.svc.ready(ctx, r.agentID)
	if err != nil {
		return 0, err
	}
	r.mu.Lock()
	r.window = a.WindowLength
	r.mu.Unlock()
	r.l.Info("live window resolved", applogger.Int("window_length", a.WindowLength))
	return a.WindowLength + 1, nil
}

// Warmup fills the ring of symbol with the most recent historical bars and
// returns the time of the newest one.
func (r *LiveRunner) Warmup(ctx context.Context, symbol string, bars []models.Bar) (time.Time, error) {
	n, err := r.capacity(ctx)
	if err != nil {
		return time.Time{}, err
	}
	series, err := features.NewSeries(bars)
	if err != nil {
		return time.Time{}, err
	}
	if len(series) == 0 {
		return time.Time{}, nil
	}
	if len(series) > n {
		series = series[len(series)-n:]
	}
	b := r.book(strings.ToUpper(symbol))
	b.mu.Lock()
	b.bars = append(b.bars[:0], series...)
	b.mu.Unlock()
	return series.Last().Timestamp, nil
}

// State returns the live portfolio of symbol.
func (r *LiveRunner) State(symbol string) (models.PortfolioState, bool) {
	r.mu.Lock()
	b, ok := r.symbols[strings.ToUpper(symbol)]
	r.mu.Unlock()
	if !ok {
		return models.PortfolioState{}, false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state, true
}

// Process appends a closed bar and executes once the ring is full. Bars must
// arrive in order per symbol; BarGate enforces that upstream.
func (r *LiveRunner) Process(ctx context.Context, bar *models.Bar) error {
	capacity, err := r.capacity(ctx)
	if err != nil {
		return err
	}
	symbol := strings.ToUpper(bar.Symbol)
	b := r.book(symbol)
	b.mu.Lock()
	defer b.mu.Unlock()

	if n := len(b.bars); n > 0 && !bar.Timestamp.After(b.bars[n-1].Timestamp) {
		return fmt.Errorf("%w: %s at %s", middleware.ErrStaleBar, symbol, bar.Timestamp.Format(time.RFC3339))
	}
	b.bars = append(b.bars, *bar)
	if len(b.bars) > capacity {
		b.bars = append(b.bars[:0], b.bars[len(b.bars)-capacity:]...)
	}
	if len(b.bars) < capacity {
		r.l.Debug("warming up", applogger.String("symbol", symbol), applogger.Int("bars", len(b.bars)))
		return nil
	}

	a, model, scaler, err := r.svc.ready(ctx, r.agentID)
	if err != nil {
		return err
	}
	series, err := features.NewSeries(b.bars)
	if err != nil {
		return err
	}
	res, err := r.svc.execute(ctx, a, model, scaler, series, b.state)
	if err != nil {
		return err
	}
	b.state = res.State

	d := &models.Decision{
		AgentID:    r.agentID,
		Symbol:     symbol,
		Prediction: *res.Prediction,
		Outcome:    res.Outcome,
		State:      res.State,
		Equity:     res.Equity,
		BarTime:    bar.Timestamp,
	}
	if res.Outcome.Action != models.SignalHold {
		r.l.Info("live trade",
			applogger.String("symbol", symbol),
			applogger.String("action", string(res.Outcome.Action)),
			applogger.Float64("price", res.Outcome.Price),
			applogger.Float64("equity", res.Equity))
	}
	if r.publisher != nil {
		if err := r.publisher.Publish(ctx, d); err != nil {
			r.metrics.RecordError("decision_publish")
			r.l.Error("publish decision failed", applogger.String("symbol", symbol), applogger.Error(err))
		}
	}
	return nil
}

// Run feeds stream bars through gate until ctx ends, reconnecting on read errors.
func (r *LiveRunner) Run(ctx context.Context, stream domrepo.MarketStream, gate *middleware.BarGate) error {
	if err := stream.Connect(ctx); err != nil {
		return err
	}
	defer stream.Close()
	if err := stream.Subscribe(ctx); err != nil {
		return err
	}

	for {
		bars, errs := stream.Read(ctx)
		if err := r.consume(ctx, bars, errs, gate); err != nil {
			r.metrics.RecordError("stream")
			r.l.Warn("stream interrupted, reconnecting", applogger.Error(err))
			for {
				if ctx.Err() != nil {
					return nil
				}
				if rerr := stream.Reconnect(ctx); rerr == nil {
					break
				} else {
					r.l.Warn("reconnect failed", applogger.Error(rerr))
				}
			}
			continue
		}
		return nil
	}
}

// consume drains one Read session. It returns nil when ctx ends and the
// stream error otherwise.
func (r *LiveRunner) consume(ctx context.Context, bars <-chan *models.Bar, errs <-chan error, gate *middleware.BarGate) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-errs:
			if ok && err != nil {
				return err
			}
			if !ok {
				errs = nil
			}
		case bar, ok := <-bars:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("stream closed")
			}
			if err := gate.Process(ctx, bar); err != nil {
				r.l.Warn("bar rejected", applogger.String("symbol", bar.Symbol), applogger.Error(err))
			}
		}
	}
}
