package repository

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"FinAgent/internal/domain/models"
	"FinAgent/internal/fixture"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBarFilesRoundTrip(t *testing.T) {
	dir := t.TempDir()
	bars := fixture.RandomWalk(fixture.Spec{Symbol: "ETHUSDT", Count: 20, Interval: time.Hour})
	files := NewBarFiles()

	for _, ext := range []string{"csv", "json", "parquet"} {
		t.Run(ext, func(t *testing.T) {
			path := filepath.Join(dir, "nested", "bars."+ext)
			require.NoError(t, files.WriteBars(path, bars))

			got, err := files.ReadBars(path)
			require.NoError(t, err)
			require.Len(t, got, len(bars))
			for i := range bars {
				assert.True(t, bars[i].Timestamp.Equal(got[i].Timestamp), "ts %d", i)
				assert.Equal(t, bars[i].Close, got[i].Close)
				assert.Equal(t, bars[i].Volume, got[i].Volume)
			}
		})
	}
}

func TestBarFilesUnsupported(t *testing.T) {
	_, err := NewBarFiles().ReadBars("bars.xlsx")
	assert.Error(t, err)
	assert.Error(t, NewBarFiles().WriteBars(filepath.Join(t.TempDir(), "bars.txt"), nil))
}

func TestReadCSVHeaders(t *testing.T) {
	in := "Date,Open,High,Low,Close,Volume,Symbol\n" +
		"2024-01-01,1,2,0.5,1.5,10,BTC\n" +
		"1704153600,1.5,2,1,1.8,3,BTC\n"
	bars, err := readCSV(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, "BTC", bars[0].Symbol)
	assert.True(t, bars[1].Timestamp.Equal(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, 1.8, bars[1].Close)
}

func TestReadCSVErrors(t *testing.T) {
	_, err := readCSV(strings.NewReader("timestamp,open,high,low,volume\n"))
	var se *models.SeriesError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "close", se.Field)

	_, err = readCSV(strings.NewReader("timestamp,open,high,low,close,volume\n2024-01-01,1,2,x,1,1\n"))
	require.True(t, errors.As(err, &se))
	assert.Equal(t, 0, se.Index)
	assert.Equal(t, "low", se.Field)
	assert.ErrorIs(t, err, models.ErrMalformedSeries)

	_, err = readCSV(strings.NewReader("open,high,low,close,volume\n"))
	assert.ErrorIs(t, err, models.ErrMalformedSeries)
}

func TestDecodeJSONBars(t *testing.T) {
	bar := `{"timestamp":"2024-01-01T00:00:00Z","open":1,"high":1,"low":1,"close":1,"volume":1}`

	got, err := DecodeJSONBars([]byte("[" + bar + "]"))
	require.NoError(t, err)
	assert.Len(t, got, 1)

	got, err = DecodeJSONBars([]byte(`{"success":true,"data":[` + bar + `,` + strings.Replace(bar, "00:00:00", "01:00:00", 1) + `]}`))
	require.NoError(t, err)
	assert.Len(t, got, 2)

	_, err = DecodeJSONBars([]byte(`{"rows":[]}`))
	assert.ErrorIs(t, err, models.ErrMalformedSeries)

	_, err = DecodeJSONBars([]byte(`[{"timestamp":"2024-01-01T00:00:00Z","open":1}]`))
	assert.ErrorIs(t, err, models.ErrMalformedSeries)

	_, err = DecodeJSONBars([]byte(`not json`))
	assert.ErrorIs(t, err, models.ErrMalformedSeries)
}

func TestJSONFileIsIndented(t *testing.T) {
	path := filepath.Join(t.TempDir(), "b.json")
	require.NoError(t, NewBarFiles().WriteBars(path, fixture.FromCloses(time.Unix(0, 0).UTC(), time.Minute, 1, 2)))
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), "\n  {")
}
