// Package binance reads klines from the Binance spot REST API and its
// websocket kline stream.
package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"FinAgent/internal/domain/models"
	domrepo "FinAgent/internal/domain/repository"
	xhttp "FinAgent/pkg/http"

	"github.com/shopspring/decimal"
)

const (
	DefaultBaseURL = "https://api.binance.com"
	// maxPage is the largest limit /api/v3/klines accepts.
	maxPage = 1000
)

// Client fetches historical klines.
type Client struct {
	http    *xhttp.Client
	baseURL string
}

// NewClient builds a REST client. apiKey is optional for public market data.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	opts := []xhttp.ClientOption{xhttp.WithTimeout(timeout)}
	if apiKey != "" {
		opts = append(opts, xhttp.WithHeader("X-MBX-APIKEY", apiKey))
	}
	return &Client{http: xhttp.NewClient(opts...), baseURL: strings.TrimRight(baseURL, "/")}
}

// Klines returns the most recent limit klines in ascending order. Limits
// above one page are fetched backwards page by page.
func (c *Client) Klines(ctx context.Context, symbol, interval string, limit int) ([]models.Bar, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive")
	}
	symbol = strings.ToUpper(symbol)

	var out []models.Bar
	var endTime int64
	for remaining := limit; remaining > 0; {
		page := remaining
		if page > maxPage {
			page = maxPage
		}
		query := map[string][]string{
			"symbol":   {symbol},
			"interval": {interval},
			"limit":    {strconv.Itoa(page)},
		}
		if endTime > 0 {
			query["endTime"] = []string{strconv.FormatInt(endTime, 10)}
		}

		var rows [][]json.RawMessage
		if err := c.http.GetJSON(ctx, c.baseURL+"/api/v3/klines", query, &rows); err != nil {
			return nil, fmt.Errorf("binance klines %s %s: %w", symbol, interval, err)
		}
		bars, err := parseKlineRows(symbol, rows)
		if err != nil {
			return nil, err
		}
		out = append(bars, out...)
		if len(bars) < page {
			break
		}
		remaining -= len(bars)
		endTime = bars[0].Timestamp.UnixMilli() - 1
	}
	return out, nil
}

// parseKlineRows reads [openTime, open, high, low, close, volume, ...] rows.
func parseKlineRows(symbol string, rows [][]json.RawMessage) ([]models.Bar, error) {
	bars := make([]models.Bar, 0, len(rows))
	for i, row := range rows {
		if len(row) < 6 {
			return nil, &models.SeriesError{Index: i, Field: "kline", Reason: fmt.Sprintf("%d columns", len(row)), Kind: models.ErrMalformedSeries}
		}
		var openTime int64
		if err := json.Unmarshal(row[0], &openTime); err != nil {
			return nil, &models.SeriesError{Index: i, Field: "timestamp", Reason: err.Error(), Kind: models.ErrMalformedSeries}
		}
		var vals [5]float64
		for j, name := range []string{"open", "high", "low", "close", "volume"} {
			var s string
			if err := json.Unmarshal(row[j+1], &s); err != nil {
				return nil, &models.SeriesError{Index: i, Field: name, Reason: err.Error(), Kind: models.ErrMalformedSeries}
			}
			v, err := parseDecimal(s)
			if err != nil {
				return nil, &models.SeriesError{Index: i, Field: name, Reason: err.Error(), Kind: models.ErrMalformedSeries}
			}
			vals[j] = v
		}
		bars = append(bars, models.Bar{
			Symbol:    symbol,
			Timestamp: time.UnixMilli(openTime).UTC(),
			Open:      vals[0],
			High:      vals[1],
			Low:       vals[2],
			Close:     vals[3],
			Volume:    vals[4],
		})
	}
	return bars, nil
}

// parseDecimal reads Binance's fixed point strings ("50000.01000000").
func parseDecimal(s string) (float64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, err
	}
	return d.InexactFloat64(), nil
}

var _ domrepo.KlineFetcher = (*Client)(nil)
