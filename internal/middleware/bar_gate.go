package middleware

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"FinAgent/internal/domain/models"
	domrepo "FinAgent/internal/domain/repository"
)

// ErrStaleBar is returned for a bar not newer than the last accepted bar of its symbol.
var ErrStaleBar = errors.New("stale bar")

// BarProcessor is the downstream of the gate.
type BarProcessor interface {
	Process(ctx context.Context, b *models.Bar) error
}

// BarGate sits between a live feed and the runner. It validates bars, keeps
// only configured symbols and drops duplicates and out-of-order bars per symbol.
type BarGate struct {
	next    BarProcessor
	metrics domrepo.Metrics

	mu       sync.Mutex
	allowed  map[string]bool
	lastSeen map[string]time.Time
}

type GateOption func(*BarGate)

// WithSymbols restricts the gate to symbols. Empty means every symbol passes.
func WithSymbols(symbols []string) GateOption {
	return func(g *BarGate) {
		if len(symbols) == 0 {
			return
		}
		g.allowed = make(map[string]bool, len(symbols))
		for _, s := range symbols {
			g.allowed[strings.ToUpper(s)] = true
		}
	}
}

func NewBarGate(next BarProcessor, metrics domrepo.Metrics, opts ...GateOption) *BarGate {
	if metrics == nil {
		metrics = domrepo.NopMetrics{}
	}
	g := &BarGate{next: next, metrics: metrics, lastSeen: make(map[string]time.Time)}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Process forwards b when it passes. A bar is accepted at most once, even if
// the downstream fails on it.
func (g *BarGate) Process(ctx context.Context, b *models.Bar) error {
	if err := validateBar(b); err != nil {
		g.metrics.RecordError("gate_validate")
		return err
	}
	b.Symbol = strings.ToUpper(b.Symbol)

	g.mu.Lock()
	if g.allowed != nil && !g.allowed[b.Symbol] {
		g.mu.Unlock()
		return nil
	}
	if last, ok := g.lastSeen[b.Symbol]; ok && !b.Timestamp.After(last) {
		g.mu.Unlock()
		g.metrics.RecordError("gate_stale")
		return fmt.Errorf("%w: %s at %s", ErrStaleBar, b.Symbol, b.Timestamp.Format(time.RFC3339))
	}
	g.lastSeen[b.Symbol] = b.Timestamp
	g.mu.Unlock()

	return g.next.Process(ctx, b)
}

// Seed marks ts as the last accepted bar of symbol, e.g. after a warmup load.
func (g *BarGate) Seed(symbol string, ts time.Time) {
	g.mu.Lock()
	g.lastSeen[strings.ToUpper(symbol)] = ts
	g.mu.Unlock()
}

func validateBar(b *models.Bar) error {
	if b == nil {
		return fmt.Errorf("%w: nil bar", models.ErrMalformedSeries)
	}
	if b.Symbol == "" {
		return &models.SeriesError{Index: -1, Field: "symbol", Reason: "missing", Kind: models.ErrMalformedSeries}
	}
	if b.Timestamp.IsZero() {
		return &models.SeriesError{Index: -1, Field: "timestamp", Reason: "missing", Kind: models.ErrMalformedSeries}
	}
	for _, p := range []struct {
		name string
		v    float64
	}{{"open", b.Open}, {"high", b.High}, {"low", b.Low}, {"close", b.Close}} {
		if math.IsNaN(p.v) || math.IsInf(p.v, 0) {
			return &models.SeriesError{Index: -1, Field: p.name, Reason: "not finite", Kind: models.ErrMalformedSeries}
		}
		if p.v <= 0 {
			return &models.SeriesError{Index: -1, Field: p.name, Reason: fmt.Sprintf("%v <= 0", p.v), Kind: models.ErrInvalidPrice}
		}
	}
	if math.IsNaN(b.Volume) || math.IsInf(b.Volume, 0) || b.Volume < 0 {
		return &models.SeriesError{Index: -1, Field: "volume", Reason: "not finite or negative", Kind: models.ErrMalformedSeries}
	}
	return nil
}
