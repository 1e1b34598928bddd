package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"FinAgent/internal/domain/models"
	domrepo "FinAgent/internal/domain/repository"
	"FinAgent/internal/fixture"
	xhttp "FinAgent/pkg/http"
	"FinAgent/pkg/util"
)

const defaultSourceLimit = 500

// SourceResolver turns a data source spec into bars. Accepted specs:
//
//	path/to/bars.csv | .json | .parquet
//	[{"timestamp":...,"open":...}, ...]   inline JSON, or {"data":[...]}
//	https://host/bars.json                 JSON bars over HTTP
//	binance://BTCUSDT?interval=1h&limit=500
//	mock://BTCUSDT?interval=1h&limit=500&seed=42
//	clickhouse://BTCUSDT?tf=1m&n=500
//
// Relative paths that do not exist are retried under dataDir.
type SourceResolver struct {
	files   *BarFiles
	http    *xhttp.Client
	klines  domrepo.KlineFetcher
	store   domrepo.BarStore
	dataDir string
}

type ResolverOption func(*SourceResolver)

func WithKlines(k domrepo.KlineFetcher) ResolverOption {
	return func(r *SourceResolver) { r.klines = k }
}

func WithBarStore(s domrepo.BarStore) ResolverOption {
	return func(r *SourceResolver) { r.store = s }
}

func WithHTTPClient(c *xhttp.Client) ResolverOption {
	return func(r *SourceResolver) { r.http = c }
}

func WithDataDir(dir string) ResolverOption {
	return func(r *SourceResolver) { r.dataDir = dir }
}

func NewSourceResolver(opts ...ResolverOption) *SourceResolver {
	r := &SourceResolver{files: NewBarFiles()}
	for _, opt := range opts {
		opt(r)
	}
	if r.http == nil {
		r.http = xhttp.NewClient(xhttp.WithTimeout(30 * time.Second))
	}
	return r
}

func (r *SourceResolver) Load(ctx context.Context, spec string) ([]models.Bar, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, fmt.Errorf("%w: empty data source", models.ErrMalformedSeries)
	}
	if spec[0] == '[' || spec[0] == '{' {
		return DecodeJSONBars([]byte(spec))
	}

	if scheme, rest, ok := strings.Cut(spec, "://"); ok {
		switch strings.ToLower(scheme) {
		case "http", "https":
			return r.loadURL(ctx, spec)
		case "binance":
			return r.loadBinance(ctx, rest)
		case "mock":
			return loadMock(rest)
		case "clickhouse":
			return r.loadClickHouse(ctx, rest)
		case "file":
			return r.loadFile(rest)
		default:
			return nil, fmt.Errorf("unsupported data source scheme %q", scheme)
		}
	}
	return r.loadFile(spec)
}

func (r *SourceResolver) loadFile(path string) ([]models.Bar, error) {
	if _, err := os.Stat(path); err != nil && r.dataDir != "" && !filepath.IsAbs(path) {
		alt := filepath.Join(r.dataDir, path)
		if _, altErr := os.Stat(alt); altErr == nil {
			path = alt
		}
	}
	bars, err := r.files.ReadBars(path)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return bars, nil
}

func (r *SourceResolver) loadURL(ctx context.Context, rawURL string) ([]models.Bar, error) {
	var body json.RawMessage
	if err := r.http.GetJSON(ctx, rawURL, nil, &body); err != nil {
		return nil, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	return DecodeJSONBars(body)
}

// symbolQuery splits "SYMBOL?k=v" into the upper-cased symbol and its query.
func symbolQuery(rest string) (string, url.Values, error) {
	sym, rawQuery, _ := strings.Cut(rest, "?")
	sym = strings.ToUpper(strings.Trim(sym, "/"))
	if sym == "" {
		return "", nil, fmt.Errorf("data source needs a symbol")
	}
	q, err := url.ParseQuery(rawQuery)
	if err != nil {
		return "", nil, fmt.Errorf("bad data source query %q: %w", rawQuery, err)
	}
	return sym, q, nil
}

func intParam(q url.Values, key string, def int) (int, error) {
	n, err := util.ParsePositiveInt(q.Get(key), def)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func (r *SourceResolver) loadBinance(ctx context.Context, rest string) ([]models.Bar, error) {
	if r.klines == nil {
		return nil, fmt.Errorf("binance source not configured")
	}
	sym, q, err := symbolQuery(rest)
	if err != nil {
		return nil, err
	}
	limit, err := intParam(q, "limit", defaultSourceLimit)
	if err != nil {
		return nil, err
	}
	interval := q.Get("interval")
	if interval == "" {
		interval = "1h"
	}
	return r.klines.Klines(ctx, sym, interval, limit)
}

func loadMock(rest string) ([]models.Bar, error) {
	sym, q, err := symbolQuery(rest)
	if err != nil {
		return nil, err
	}
	limit, err := intParam(q, "limit", defaultSourceLimit)
	if err != nil {
		return nil, err
	}
	interval := q.Get("interval")
	if interval == "" {
		interval = "1h"
	}
	step, ok := util.ParseInterval(interval)
	if !ok {
		return nil, fmt.Errorf("bad interval %q", interval)
	}
	spec := fixture.Spec{Symbol: sym, Interval: step, Count: limit, Seed: fixture.DefaultSeed}
	if v := q.Get("seed"); v != "" {
		seed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad seed %q", v)
		}
		spec.Seed = seed
	}
	if v := q.Get("end"); v != "" {
		end, ok := util.ParseTime(v)
		if !ok {
			return nil, fmt.Errorf("bad end %q", v)
		}
		spec.End = end.UTC()
	}
	return fixture.RandomWalk(spec), nil
}

func (r *SourceResolver) loadClickHouse(ctx context.Context, rest string) ([]models.Bar, error) {
	if r.store == nil {
		return nil, fmt.Errorf("clickhouse source not configured")
	}
	sym, q, err := symbolQuery(rest)
	if err != nil {
		return nil, err
	}
	tf := domrepo.Timeframe(q.Get("tf"))
	if tf == "" {
		tf = domrepo.TF1m
	}
	if !domrepo.IsValidTimeframe(tf) {
		return nil, fmt.Errorf("unsupported timeframe %q", tf)
	}

	from, hasFrom := util.ParseTime(q.Get("from"))
	if hasFrom {
		to := util.ParseTimeDefault(q.Get("to"), time.Now().UTC())
		return r.store.GetBars(ctx, sym, from, to, tf)
	}
	n, err := intParam(q, "n", defaultSourceLimit)
	if err != nil {
		return nil, err
	}
	return r.store.GetLatestNBars(ctx, sym, n, tf)
}

var _ domrepo.BarSource = (*SourceResolver)(nil)
