package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"FinAgent/pkg/util"
)

// Bar is one OHLCV observation. Immutable once ingested.
type Bar struct {
	Symbol    string    `json:"symbol,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// Series is a MarketSeries: bars strictly increasing by timestamp.
// Build one with features.NewSeries; the zero value is an empty series.
type Series []Bar

// Closes returns the unscaled close column.
func (s Series) Closes() []float64 {
	out := make([]float64, len(s))
	for i, b := range s {
		out[i] = b.Close
	}
	return out
}

// Matrix returns the raw OHLCV matrix, one row per bar.
func (s Series) Matrix() [][]float64 {
	out := make([][]float64, len(s))
	for i, b := range s {
		out[i] = []float64{b.Open, b.High, b.Low, b.Close, b.Volume}
	}
	return out
}

// Last returns the most recent bar. It panics on an empty series.
func (s Series) Last() Bar { return s[len(s)-1] }

// NumFeatures is the width of a window row (open, high, low, close, volume).
const NumFeatures = 5

// CloseColumn is the index of the close price inside a feature row.
const CloseColumn = 3

// UnmarshalJSON accepts timestamps as RFC3339 strings, unix seconds or unix
// milliseconds, and prices as numbers or numeric strings.
func (b *Bar) UnmarshalJSON(data []byte) error {
	var raw struct {
		Symbol    string          `json:"symbol"`
		Timestamp json.RawMessage `json:"timestamp"`
		Open      json.RawMessage `json:"open"`
		High      json.RawMessage `json:"high"`
		Low       json.RawMessage `json:"low"`
		Close     json.RawMessage `json:"close"`
		Volume    json.RawMessage `json:"volume"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	ts, err := parseTimestamp(raw.Timestamp)
	if err != nil {
		return &SeriesError{Index: -1, Field: "timestamp", Reason: err.Error(), Kind: ErrMalformedSeries}
	}

	fields := []struct {
		name string
		raw  json.RawMessage
		dst  *float64
	}{
		{"open", raw.Open, &b.Open},
		{"high", raw.High, &b.High},
		{"low", raw.Low, &b.Low},
		{"close", raw.Close, &b.Close},
		{"volume", raw.Volume, &b.Volume},
	}
	for _, f := range fields {
		v, err := parseNumber(f.raw)
		if err != nil {
			return &SeriesError{Index: -1, Field: f.name, Reason: err.Error(), Kind: ErrMalformedSeries}
		}
		*f.dst = v
	}

	b.Symbol = raw.Symbol
	b.Timestamp = ts
	return nil
}

func parseTimestamp(raw json.RawMessage) (time.Time, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return time.Time{}, fmt.Errorf("missing")
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if t, ok := util.ParseTime(s); ok {
			return t.UTC(), nil
		}
		return time.Time{}, fmt.Errorf("unparseable %q", s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return time.Time{}, fmt.Errorf("unsupported value %s", raw)
	}
	if t, ok := util.ParseTime(n.String()); ok {
		return t.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unparseable %s", raw)
}

func parseNumber(raw json.RawMessage) (float64, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, fmt.Errorf("missing")
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, fmt.Errorf("unsupported value %s", raw)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("not a number %q", s)
	}
	return v, nil
}
