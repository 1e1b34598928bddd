package repository

import (
	"context"
	"time"

	"FinAgent/internal/domain/models"
)

// BarSource resolves a data source spec (file path, URL, inline JSON or a
// scheme such as binance:// or mock://) into raw bars.
type BarSource interface {
	Load(ctx context.Context, spec string) ([]models.Bar, error)
}

// KlineFetcher downloads exchange klines.
type KlineFetcher interface {
	Klines(ctx context.Context, symbol, interval string, limit int) ([]models.Bar, error)
}

// BarStore provides read-only access to historical bars.
type BarStore interface {
	GetBars(ctx context.Context, symbol string, from, to time.Time, tf Timeframe) ([]models.Bar, error)
	GetLatestNBars(ctx context.Context, symbol string, n int, tf Timeframe) ([]models.Bar, error)
}

// BarSink persists bars to a destination path.
type BarSink interface {
	WriteBars(path string, bars []models.Bar) error
}

// AgentStore persists agent records and owns their artifact directories.
type AgentStore interface {
	Save(ctx context.Context, a *models.Agent) error
	Get(ctx context.Context, id string) (*models.Agent, error)
	List(ctx context.Context) ([]*models.Agent, error)
	// ArtifactDir is where model and scaler artifacts of an agent live.
	ArtifactDir(id string) string
}

// TrainLocker serializes training of one agent across processes.
// release is always safe to call.
type TrainLocker interface {
	TrainLock(ctx context.Context, id string, ttl time.Duration) (release func(), ok bool, err error)
}

// MarketStream delivers closed bars from a live feed.
type MarketStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Read(ctx context.Context) (<-chan *models.Bar, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

// DecisionPublisher ships live decisions downstream.
type DecisionPublisher interface {
	Publish(ctx context.Context, d *models.Decision) error
	Close() error
}

type Metrics interface {
	RecordPrediction(strategy string, signal string)
	RecordTrade(action string)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
	RecordEquity(agentID string, equity float64)
}

// NopMetrics discards everything.
type NopMetrics struct{}

func (NopMetrics) RecordPrediction(string, string) {}
func (NopMetrics) RecordTrade(string) {}
func (NopMetrics) RecordError(string) {}
func (NopMetrics) RecordLatency(string, float64) {}
func (NopMetrics) RecordEquity(string, float64) {}
