package binance

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"FinAgent/internal/domain/models"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func klineRow(openMs int64, close string) []any {
	return []any{openMs, "100.00000000", "101.50000000", "99.25000000", close, "12.00000000", openMs + 59999, "0", 10, "0", "0", "0"}
}

func TestClientKlines(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/klines", r.URL.Path)
		assert.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
		assert.Equal(t, "1m", r.URL.Query().Get("interval"))
		assert.Equal(t, "2", r.URL.Query().Get("limit"))
		assert.Equal(t, "k", r.Header.Get("X-MBX-APIKEY"))
		_ = json.NewEncoder(w).Encode([][]any{
			klineRow(1704067200000, "100.10000000"),
			klineRow(1704067260000, "100.20000000"),
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "k", 5*time.Second)
	bars, err := c.Klines(context.Background(), "btcusdt", "1m", 2)
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, "BTCUSDT", bars[0].Symbol)
	assert.True(t, bars[0].Timestamp.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, 101.5, bars[0].High)
	assert.Equal(t, 99.25, bars[0].Low)
	assert.Equal(t, 100.2, bars[1].Close)
	assert.Equal(t, 12.0, bars[1].Volume)
}

func TestClientKlinesPagesBackwards(t *testing.T) {
	const step = int64(60000)
	last := int64(1704067200000) + 1499*step
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		end := last
		if v := r.URL.Query().Get("endTime"); v != "" {
			end, _ = strconv.ParseInt(v, 10, 64)
			end -= end % step
		}
		rows := make([][]any, 0, limit)
		for i := limit - 1; i >= 0; i-- {
			rows = append(rows, klineRow(end-int64(i)*step, "1"))
		}
		_ = json.NewEncoder(w).Encode(rows)
	}))
	defer srv.Close()

	bars, err := NewClient(srv.URL, "", time.Second).Klines(context.Background(), "ETHUSDT", "1m", 1500)
	require.NoError(t, err)
	require.Len(t, bars, 1500)
	assert.Equal(t, 2, calls)
	for i := 1; i < len(bars); i++ {
		require.True(t, bars[i].Timestamp.After(bars[i-1].Timestamp), "bar %d out of order", i)
	}
	assert.Equal(t, last, bars[len(bars)-1].Timestamp.UnixMilli())
}

func TestClientKlinesBadRow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[[1704067200000,"1","2","0.5","abc","3"]]`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "", time.Second).Klines(context.Background(), "BTCUSDT", "1m", 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrMalformedSeries))

	var se *models.SeriesError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "close", se.Field)
}

func TestClientKlinesStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"code":-1121,"msg":"Invalid symbol."}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "", time.Second).Klines(context.Background(), "NOPE", "1m", 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NOPE")
}

func TestDecodeKline(t *testing.T) {
	open := []byte(`{"e":"kline","s":"BTCUSDT","k":{"t":1704067200000,"i":"1m","o":"1","h":"2","l":"0.5","c":"1.5","v":"9","x":false}}`)
	_, ok, err := decodeKline(open)
	require.NoError(t, err)
	assert.False(t, ok)

	closed := []byte(`{"stream":"btcusdt@kline_1m","data":{"e":"kline","s":"BTCUSDT","k":{"t":1704067200000,"i":"1m","o":"1","h":"2","l":"0.5","c":"1.5","v":"9","x":true}}}`)
	bar, ok, err := decodeKline(closed)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "BTCUSDT", bar.Symbol)
	assert.Equal(t, 1.5, bar.Close)

	_, ok, err = decodeKline([]byte(`{"result":null,"id":1}`))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStreamNames(t *testing.T) {
	assert.Equal(t, []string{"btcusdt@kline_5m", "ethusdt@kline_5m"}, StreamNames([]string{"BTCUSDT", "ethusdt"}, "5m"))
}

func TestStreamDeliversClosedKlines(t *testing.T) {
	upgrader := websocket.Upgrader{}
	subscribed := make(chan subscribeRequest, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if !assert.NoError(t, err) {
			return
		}
		defer conn.Close()

		var req subscribeRequest
		if !assert.NoError(t, conn.ReadJSON(&req)) {
			return
		}
		subscribed <- req
		frames := []string{
			`{"result":null,"id":1}`,
			`{"e":"kline","s":"BTCUSDT","k":{"t":1704067200000,"i":"1m","o":"1","h":"2","l":"0.5","c":"1.4","v":"9","x":false}}`,
			`{"e":"kline","s":"BTCUSDT","k":{"t":1704067200000,"i":"1m","o":"1","h":"2","l":"0.5","c":"1.5","v":"9","x":true}}`,
		}
		for _, f := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
				return
			}
		}
		// Hold the connection open until the client goes away.
		_, _, _ = conn.ReadMessage()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s := NewStream("ws"+strings.TrimPrefix(srv.URL, "http"), []string{"BTCUSDT"}, "1m")
	require.NoError(t, s.Connect(ctx))
	defer s.Close()
	require.NoError(t, s.Subscribe(ctx))
	assert.True(t, s.IsConnected())

	req := <-subscribed
	assert.Equal(t, "SUBSCRIBE", req.Method)
	assert.Equal(t, []string{"btcusdt@kline_1m"}, req.Params)

	bars, _ := s.Read(ctx)
	select {
	case bar := <-bars:
		require.NotNil(t, bar)
		assert.Equal(t, 1.5, bar.Close)
	case <-ctx.Done():
		t.Fatal("no bar received")
	}
}

func TestStreamSubscribeRequiresConnection(t *testing.T) {
	s := NewStream("", []string{"BTCUSDT"}, "1m")
	assert.Error(t, s.Subscribe(context.Background()))
	assert.False(t, s.IsConnected())
	assert.NoError(t, s.Close())
}
