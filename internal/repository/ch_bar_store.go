package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"FinAgent/internal/domain/models"
	domrepo "FinAgent/internal/domain/repository"
	pkgch "FinAgent/pkg/clickhouse"
	applogger "FinAgent/pkg/logger"
)

// CHBarStore reads and archives OHLCV bars in ClickHouse.
type CHBarStore struct {
	client *pkgch.Client
	db     *sql.DB
	table  string
	l      *applogger.Logger
}

// NewCHBarStore uses <database>.<table> of the client.
func NewCHBarStore(ch *pkgch.Client, table string, l *applogger.Logger) *CHBarStore {
	if l == nil {
		l = applogger.Nop()
	}
	return &CHBarStore{client: ch, db: ch.DB(), table: ch.Database() + "." + table, l: l}
}

const barColumns = "ts, symbol, open, high, low, close, volume"

func barsRangeQuery(table string) string {
	return fmt.Sprintf(`
        SELECT %s
        FROM %s FINAL
        WHERE symbol = ? AND interval = ? AND ts >= ? AND ts <= ?
        ORDER BY ts ASC
    `, barColumns, table)
}

func barsLatestQuery(table string) string {
	return fmt.Sprintf(`
        SELECT %s
        FROM %s FINAL
        WHERE symbol = ? AND interval = ?
        ORDER BY ts DESC
        LIMIT ?
    `, barColumns, table)
}

func barsInsertQuery(table string) string {
	return fmt.Sprintf("INSERT INTO %s (symbol, interval, ts, open, high, low, close, volume)", table)
}

func (s *CHBarStore) GetBars(ctx context.Context, symbol string, from, to time.Time, tf domrepo.Timeframe) ([]models.Bar, error) {
	start := time.Now()
	rows, err := s.db.QueryContext(ctx, barsRangeQuery(s.table), symbol, string(tf), from, to)
	if err != nil {
		s.l.Error("clickhouse get_bars query error",
			applogger.String("table", s.table),
			applogger.String("symbol", symbol),
			applogger.String("tf", string(tf)),
			applogger.Error(err))
		return nil, fmt.Errorf("get bars: %w", err)
	}
	defer rows.Close()

	out, err := scanBars(rows, 1024)
	if err != nil {
		return nil, err
	}
	s.l.Debug("clickhouse get_bars ok",
		applogger.String("symbol", symbol),
		applogger.String("tf", string(tf)),
		applogger.Int("rows", len(out)),
		applogger.Duration("duration_ms", time.Since(start)))
	return out, nil
}

// GetLatestNBars returns the n most recent bars in ascending order.
func (s *CHBarStore) GetLatestNBars(ctx context.Context, symbol string, n int, tf domrepo.Timeframe) ([]models.Bar, error) {
	start := time.Now()
	rows, err := s.db.QueryContext(ctx, barsLatestQuery(s.table), symbol, string(tf), n)
	if err != nil {
		s.l.Error("clickhouse latest_bars query error",
			applogger.String("table", s.table),
			applogger.String("symbol", symbol),
			applogger.Int("limit", n),
			applogger.Error(err))
		return nil, fmt.Errorf("get latest bars: %w", err)
	}
	defer rows.Close()

	out, err := scanBars(rows, n)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	s.l.Debug("clickhouse latest_bars ok",
		applogger.String("symbol", symbol),
		applogger.Int("limit", n),
		applogger.Int("rows", len(out)),
		applogger.Duration("duration_ms", time.Since(start)))
	return out, nil
}

// InsertBars archives bars of one symbol and interval.
func (s *CHBarStore) InsertBars(ctx context.Context, symbol string, tf domrepo.Timeframe, bars []models.Bar) error {
	rows := make([][]any, 0, len(bars))
	for _, b := range bars {
		sym := b.Symbol
		if sym == "" {
			sym = symbol
		}
		rows = append(rows, []any{sym, string(tf), b.Timestamp.UTC(), b.Open, b.High, b.Low, b.Close, b.Volume})
	}
	if err := s.client.InsertBatch(ctx, barsInsertQuery(s.table), rows); err != nil {
		s.l.Error("clickhouse insert_bars error",
			applogger.String("symbol", symbol),
			applogger.Int("rows", len(rows)),
			applogger.Error(err))
		return fmt.Errorf("insert bars: %w", err)
	}
	return nil
}

func scanBars(rows *sql.Rows, capHint int) ([]models.Bar, error) {
	if capHint <= 0 {
		capHint = 64
	}
	out := make([]models.Bar, 0, capHint)
	for rows.Next() {
		var b models.Bar
		if err := rows.Scan(&b.Timestamp, &b.Symbol, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("scan bar: %w", err)
		}
		b.Timestamp = b.Timestamp.UTC()
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

var _ domrepo.BarStore = (*CHBarStore)(nil)
