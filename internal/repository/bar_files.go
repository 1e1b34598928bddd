package repository

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"FinAgent/internal/domain/models"
	domrepo "FinAgent/internal/domain/repository"
	"FinAgent/pkg/util"

	"github.com/parquet-go/parquet-go"
)

// barRow is the parquet layout of a bar. Timestamps are unix milliseconds.
type barRow struct {
	Symbol    string  `parquet:"symbol,optional"`
	Timestamp int64   `parquet:"t"`
	Open      float64 `parquet:"o"`
	High      float64 `parquet:"h"`
	Low       float64 `parquet:"l"`
	Close     float64 `parquet:"c"`
	Volume    float64 `parquet:"v"`
}

// barCodec reads and writes one file format.
type barCodec interface {
	Extension() string
	Read(path string) ([]models.Bar, error)
	Write(path string, bars []models.Bar) error
}

func codecFor(path string) (barCodec, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return csvCodec{}, nil
	case ".json":
		return jsonCodec{}, nil
	case ".parquet":
		return parquetCodec{}, nil
	default:
		return nil, fmt.Errorf("unsupported bar file %q (use .csv, .json or .parquet)", path)
	}
}

// BarFiles reads and writes bar files, picking the format from the extension.
type BarFiles struct{}

func NewBarFiles() *BarFiles { return &BarFiles{} }

func (BarFiles) ReadBars(path string) ([]models.Bar, error) {
	c, err := codecFor(path)
	if err != nil {
		return nil, err
	}
	return c.Read(path)
}

// WriteBars creates parent directories as needed.
func (BarFiles) WriteBars(path string, bars []models.Bar) error {
	c, err := codecFor(path)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return c.Write(path, bars)
}

var _ domrepo.BarSink = BarFiles{}

type jsonCodec struct{}

func (jsonCodec) Extension() string { return "json" }

func (jsonCodec) Read(path string) ([]models.Bar, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return DecodeJSONBars(b)
}

func (jsonCodec) Write(path string, bars []models.Bar) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(bars)
}

// DecodeJSONBars accepts a bare array or an object holding the array under
// "data" or "bars".
func DecodeJSONBars(b []byte) ([]models.Bar, error) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return nil, fmt.Errorf("%w: empty json", models.ErrMalformedSeries)
	}
	if b[0] == '{' {
		var wrapped struct {
			Data []models.Bar `json:"data"`
			Bars []models.Bar `json:"bars"`
		}
		if err := json.Unmarshal(b, &wrapped); err != nil {
			return nil, wrapDecode(err)
		}
		if wrapped.Data != nil {
			return wrapped.Data, nil
		}
		if wrapped.Bars != nil {
			return wrapped.Bars, nil
		}
		return nil, fmt.Errorf("%w: object has no data or bars array", models.ErrMalformedSeries)
	}
	var bars []models.Bar
	if err := json.Unmarshal(b, &bars); err != nil {
		return nil, wrapDecode(err)
	}
	return bars, nil
}

func wrapDecode(err error) error {
	var se *models.SeriesError
	if errors.As(err, &se) {
		return err
	}
	return fmt.Errorf("%w: %v", models.ErrMalformedSeries, err)
}

type csvCodec struct{}

func (csvCodec) Extension() string { return "csv" }

var csvTimeColumns = []string{"timestamp", "time", "date", "datetime", "open_time", "t"}

func (csvCodec) Read(path string) ([]models.Bar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return readCSV(f)
}

func readCSV(r io.Reader) ([]models.Bar, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: csv header: %v", models.ErrMalformedSeries, err)
	}

	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	tsCol := -1
	for _, name := range csvTimeColumns {
		if i, ok := cols[name]; ok {
			tsCol = i
			break
		}
	}
	if tsCol < 0 {
		return nil, &models.SeriesError{Index: -1, Field: "timestamp", Reason: "no timestamp column", Kind: models.ErrMalformedSeries}
	}
	priceCols := [5]int{}
	for i, name := range []string{"open", "high", "low", "close", "volume"} {
		c, ok := cols[name]
		if !ok {
			return nil, &models.SeriesError{Index: -1, Field: name, Reason: "missing column", Kind: models.ErrMalformedSeries}
		}
		priceCols[i] = c
	}
	symCol, hasSym := cols["symbol"]

	var bars []models.Bar
	for i := 0; ; i++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: csv row %d: %v", models.ErrMalformedSeries, i, err)
		}
		ts, ok := util.ParseTime(rec[tsCol])
		if !ok {
			return nil, &models.SeriesError{Index: i, Field: "timestamp", Reason: fmt.Sprintf("unparseable %q", rec[tsCol]), Kind: models.ErrMalformedSeries}
		}
		var vals [5]float64
		for j, c := range priceCols {
			v, err := strconv.ParseFloat(strings.TrimSpace(rec[c]), 64)
			if err != nil {
				return nil, &models.SeriesError{Index: i, Field: header[c], Reason: fmt.Sprintf("not a number %q", rec[c]), Kind: models.ErrMalformedSeries}
			}
			vals[j] = v
		}
		b := models.Bar{Timestamp: ts.UTC(), Open: vals[0], High: vals[1], Low: vals[2], Close: vals[3], Volume: vals[4]}
		if hasSym {
			b.Symbol = rec[symCol]
		}
		bars = append(bars, b)
	}
	return bars, nil
}

func (csvCodec) Write(path string, bars []models.Bar) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	_ = w.Write([]string{"timestamp", "open", "high", "low", "close", "volume"})
	for _, b := range bars {
		_ = w.Write([]string{
			b.Timestamp.UTC().Format(time.RFC3339),
			strconv.FormatFloat(b.Open, 'f', -1, 64),
			strconv.FormatFloat(b.High, 'f', -1, 64),
			strconv.FormatFloat(b.Low, 'f', -1, 64),
			strconv.FormatFloat(b.Close, 'f', -1, 64),
			strconv.FormatFloat(b.Volume, 'f', -1, 64),
		})
	}
	w.Flush()
	return w.Error()
}

type parquetCodec struct{}

func (parquetCodec) Extension() string { return "parquet" }

func (parquetCodec) Read(path string) ([]models.Bar, error) {
	rows, err := parquet.ReadFile[barRow](path)
	if err != nil {
		return nil, fmt.Errorf("%w: parquet: %v", models.ErrMalformedSeries, err)
	}
	bars := make([]models.Bar, len(rows))
	for i, r := range rows {
		bars[i] = models.Bar{
			Symbol:    r.Symbol,
			Timestamp: time.UnixMilli(r.Timestamp).UTC(),
			Open:      r.Open,
			High:      r.High,
			Low:       r.Low,
			Close:     r.Close,
			Volume:    r.Volume,
		}
	}
	return bars, nil
}

func (parquetCodec) Write(path string, bars []models.Bar) error {
	rows := make([]barRow, len(bars))
	for i, b := range bars {
		rows[i] = barRow{
			Symbol:    b.Symbol,
			Timestamp: b.Timestamp.UnixMilli(),
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    b.Volume,
		}
	}
	return parquet.WriteFile(path, rows)
}
