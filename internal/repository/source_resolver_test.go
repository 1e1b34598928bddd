package repository

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"FinAgent/internal/domain/models"
	domrepo "FinAgent/internal/domain/repository"
	"FinAgent/internal/fixture"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubKlines struct {
	symbol, interval string
	limit            int
}

func (s *stubKlines) Klines(_ context.Context, symbol, interval string, limit int) ([]models.Bar, error) {
	s.symbol, s.interval, s.limit = symbol, interval, limit
	return fixture.FromCloses(time.Unix(0, 0).UTC(), time.Hour, 1, 2, 3), nil
}

type stubStore struct {
	latestN int
	tf      domrepo.Timeframe
	ranged  bool
}

func (s *stubStore) GetBars(_ context.Context, _ string, _, _ time.Time, tf domrepo.Timeframe) ([]models.Bar, error) {
	s.ranged, s.tf = true, tf
	return nil, nil
}

func (s *stubStore) GetLatestNBars(_ context.Context, _ string, n int, tf domrepo.Timeframe) ([]models.Bar, error) {
	s.latestN, s.tf = n, tf
	return fixture.FromCloses(time.Unix(0, 0).UTC(), time.Minute, 5), nil
}

func TestResolverInlineJSON(t *testing.T) {
	r := NewSourceResolver()
	bars, err := r.Load(context.Background(), ` [{"timestamp":1704067200,"open":1,"high":1,"low":1,"close":1,"volume":1}]`)
	require.NoError(t, err)
	require.Len(t, bars, 1)
}

func TestResolverMock(t *testing.T) {
	r := NewSourceResolver()
	a, err := r.Load(context.Background(), "mock://btcusdt?interval=15m&limit=30")
	require.NoError(t, err)
	require.Len(t, a, 30)
	assert.Equal(t, "BTCUSDT", a[0].Symbol)
	assert.Equal(t, 15*time.Minute, a[1].Timestamp.Sub(a[0].Timestamp))

	b, err := r.Load(context.Background(), "mock://BTCUSDT?interval=15m&limit=30")
	require.NoError(t, err)
	assert.Equal(t, a, b)

	c, err := r.Load(context.Background(), "mock://BTCUSDT?interval=15m&limit=30&seed=7")
	require.NoError(t, err)
	assert.NotEqual(t, a[5].Close, c[5].Close)

	_, err = r.Load(context.Background(), "mock://BTCUSDT?limit=-1")
	assert.Error(t, err)
	_, err = r.Load(context.Background(), "mock://?limit=5")
	assert.Error(t, err)
}

func TestResolverFileAndDataDir(t *testing.T) {
	dir := t.TempDir()
	bars := fixture.FromCloses(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), time.Hour, 1, 2, 3)
	require.NoError(t, NewBarFiles().WriteBars(filepath.Join(dir, "btc.csv"), bars))

	r := NewSourceResolver(WithDataDir(dir))
	got, err := r.Load(context.Background(), "btc.csv")
	require.NoError(t, err)
	assert.Len(t, got, 3)

	got, err = r.Load(context.Background(), "file://"+filepath.Join(dir, "btc.csv"))
	require.NoError(t, err)
	assert.Len(t, got, 3)

	_, err = r.Load(context.Background(), "missing.csv")
	assert.Error(t, err)
}

func TestResolverHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": fixture.FromCloses(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), time.Hour, 10, 11),
		})
	}))
	defer srv.Close()

	got, err := NewSourceResolver().Load(context.Background(), srv.URL+"/bars")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 11.0, got[1].Close)
}

func TestResolverBinance(t *testing.T) {
	k := &stubKlines{}
	r := NewSourceResolver(WithKlines(k))
	got, err := r.Load(context.Background(), "binance://ethusdt?interval=4h&limit=100")
	require.NoError(t, err)
	assert.Len(t, got, 3)
	assert.Equal(t, "ETHUSDT", k.symbol)
	assert.Equal(t, "4h", k.interval)
	assert.Equal(t, 100, k.limit)

	_, err = r.Load(context.Background(), "binance://ethusdt")
	require.NoError(t, err)
	assert.Equal(t, defaultSourceLimit, k.limit)
	assert.Equal(t, "1h", k.interval)

	_, err = r.Load(context.Background(), "binance://ethusdt?limit=lots")
	assert.ErrorContains(t, err, "limit")

	_, err = NewSourceResolver().Load(context.Background(), "binance://BTCUSDT")
	assert.Error(t, err)
}

func TestResolverClickHouse(t *testing.T) {
	s := &stubStore{}
	r := NewSourceResolver(WithBarStore(s))

	got, err := r.Load(context.Background(), "clickhouse://BTCUSDT?tf=1h&n=42")
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, 42, s.latestN)
	assert.Equal(t, domrepo.TF1h, s.tf)

	_, err = r.Load(context.Background(), "clickhouse://BTCUSDT?from=2024-01-01T00:00:00Z")
	require.NoError(t, err)
	assert.True(t, s.ranged)
	assert.Equal(t, domrepo.TF1m, s.tf)

	_, err = r.Load(context.Background(), "clickhouse://BTCUSDT?tf=7m")
	assert.Error(t, err)
}

func TestResolverRejects(t *testing.T) {
	r := NewSourceResolver()
	_, err := r.Load(context.Background(), "  ")
	assert.ErrorIs(t, err, models.ErrMalformedSeries)
	_, err = r.Load(context.Background(), "ftp://x")
	assert.Error(t, err)
}

func TestCHQueries(t *testing.T) {
	assert.Contains(t, barsRangeQuery("finagent.bars"), "FROM finagent.bars FINAL")
	assert.Contains(t, barsLatestQuery("finagent.bars"), "ORDER BY ts DESC")
	assert.Equal(t, "INSERT INTO finagent.bars (symbol, interval, ts, open, high, low, close, volume)", barsInsertQuery("finagent.bars"))
}
