package usecase

import (
	"context"
	"errors"
	"fmt"

	"FinAgent/internal/domain/models"
	domrepo "FinAgent/internal/domain/repository"
	"FinAgent/internal/services/features"
	applogger "FinAgent/pkg/logger"
)

// BarArchiver stores bars for later clickhouse:// loads.
type BarArchiver interface {
	InsertBars(ctx context.Context, symbol string, tf domrepo.Timeframe, bars []models.Bar) error
}

// FetchRequest downloads Source and writes it to Out and, when Archive is
// set, to the bar archive under Symbol and Interval.
type FetchRequest struct {
	Source   string `json:"source" validate:"required"`
	Out      string `json:"out"`
	Archive  bool   `json:"archive"`
	Symbol   string `json:"symbol"`
	Interval string `json:"interval" default:"1h"`
}

type FetchResult struct {
	Bars     int    `json:"bars"`
	First    string `json:"first,omitempty"`
	Last     string `json:"last,omitempty"`
	Out      string `json:"out,omitempty"`
	Archived bool   `json:"archived"`
}

// Fetcher snapshots a data source to a file or to ClickHouse.
type Fetcher struct {
	source  domrepo.BarSource
	sink    domrepo.BarSink
	archive BarArchiver
	l       *applogger.Logger
}

// NewFetcher builds a Fetcher. archive may be nil when ClickHouse is off.
func NewFetcher(source domrepo.BarSource, sink domrepo.BarSink, archive BarArchiver, l *applogger.Logger) *Fetcher {
	if l == nil {
		l = applogger.Nop()
	}
	return &Fetcher{source: source, sink: sink, archive: archive, l: l}
}

var ErrNoArchive = errors.New("bar archive not configured")

func (f *Fetcher) Fetch(ctx context.Context, req FetchRequest) (*FetchResult, error) {
	if req.Out == "" && !req.Archive {
		return nil, fmt.Errorf("%w: fetch needs out or archive", ErrInvalidRequest)
	}
	if req.Archive && f.archive == nil {
		return nil, ErrNoArchive
	}
	if req.Archive && req.Symbol == "" {
		return nil, fmt.Errorf("%w: archive needs symbol", ErrInvalidRequest)
	}

	raw, err := f.source.Load(ctx, req.Source)
	if err != nil {
		return nil, err
	}
	series, err := features.NewSeries(raw)
	if err != nil {
		return nil, err
	}

	res := &FetchResult{Bars: len(series)}
	if len(series) > 0 {
		res.First = series[0].Timestamp.Format("2006-01-02T15:04:05Z")
		res.Last = series.Last().Timestamp.Format("2006-01-02T15:04:05Z")
	}
	if req.Out != "" {
		if err := f.sink.WriteBars(req.Out, series); err != nil {
			return nil, err
		}
		res.Out = req.Out
	}
	if req.Archive {
		tf := domrepo.NormalizeTimeframe(req.Interval)
		if err := f.archive.InsertBars(ctx, req.Symbol, tf, series); err != nil {
			return nil, err
		}
		res.Archived = true
	}
	f.l.Info("fetched bars",
		applogger.String("source", req.Source),
		applogger.Int("bars", res.Bars),
		applogger.String("out", res.Out),
		applogger.Bool("archived", res.Archived))
	return res, nil
}
