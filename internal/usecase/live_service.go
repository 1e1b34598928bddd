package usecase

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	domrepo "FinAgent/internal/domain/repository"
	"FinAgent/internal/middleware"
	applogger "FinAgent/pkg/logger"
)

// SymbolPlaceholder is replaced by each live symbol in the warmup source spec,
// e.g. binance://{symbol}?interval=1m&limit=200.
const SymbolPlaceholder = "{symbol}"

const warmupTimeout = time.Minute

// LiveService adapts a LiveRunner to the app lifecycle. Start warms every
// symbol up from the configured source and, when a stream is set, runs it in
// the background. Without a stream bars are expected through the gate from
// another component such as the Kafka consumer.
type LiveService struct {
	runner  *LiveRunner
	gate    *middleware.BarGate
	stream  domrepo.MarketStream
	source  domrepo.BarSource
	warmup  string
	symbols []string
	l       *applogger.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

type LiveOption func(*LiveService)

func WithLiveStream(s domrepo.MarketStream) LiveOption {
	return func(ls *LiveService) { ls.stream = s }
}

// WithWarmup loads spec for every symbol from source before live bars flow.
func WithWarmup(source domrepo.BarSource, spec string) LiveOption {
	return func(ls *LiveService) {
		ls.source = source
		ls.warmup = spec
	}
}

func NewLiveService(runner *LiveRunner, gate *middleware.BarGate, symbols []string, l *applogger.Logger, opts ...LiveOption) *LiveService {
	if l == nil {
		l = applogger.Nop()
	}
	ls := &LiveService{runner: runner, gate: gate, symbols: symbols, l: l}
	for _, opt := range opts {
		opt(ls)
	}
	return ls
}

func (ls *LiveService) Start() error {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	if ls.done != nil {
		return nil
	}

	if _, err := ls.runner.capacity(context.Background()); err != nil {
		return fmt.Errorf("live agent %s: %w", ls.runner.agentID, err)
	}
	if err := ls.warm(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	ls.cancel = cancel
	ls.done = make(chan struct{})
	if ls.stream == nil {
		close(ls.done)
		return nil
	}
	go func() {
		defer close(ls.done)
		if err := ls.runner.Run(ctx, ls.stream, ls.gate); err != nil {
			ls.l.Error("live stream stopped", applogger.Error(err))
		}
	}()
	return nil
}

func (ls *LiveService) warm() error {
	if ls.source == nil || ls.warmup == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), warmupTimeout)
	defer cancel()

	for _, symbol := range ls.symbols {
		spec := strings.ReplaceAll(ls.warmup, SymbolPlaceholder, strings.ToUpper(symbol))
		bars, err := ls.source.Load(ctx, spec)
		if err != nil {
			return fmt.Errorf("warmup %s: %w", symbol, err)
		}
		last, err := ls.runner.Warmup(ctx, symbol, bars)
		if err != nil {
			return fmt.Errorf("warmup %s: %w", symbol, err)
		}
		if !last.IsZero() {
			ls.gate.Seed(symbol, last)
		}
		ls.l.Info("warmed up",
			applogger.String("symbol", symbol),
			applogger.Int("bars", len(bars)),
			applogger.String("last", last.Format(time.RFC3339)))
	}
	return nil
}

func (ls *LiveService) Stop(ctx context.Context) error {
	ls.mu.Lock()
	cancel, done := ls.cancel, ls.done
	ls.mu.Unlock()
	if done == nil {
		return nil
	}
	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
