package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientGetJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
		assert.Equal(t, "key", r.Header.Get("X-MBX-APIKEY"))
		_ = json.NewEncoder(w).Encode(map[string]int{"n": 3})
	}))
	defer srv.Close()

	c := NewClient(WithTimeout(time.Second), WithHeader("X-MBX-APIKEY", "key"))
	var out map[string]int
	require.NoError(t, c.GetJSON(context.Background(), srv.URL, map[string][]string{"symbol": {"BTCUSDT"}}, &out))
	assert.Equal(t, 3, out["n"])
}

func TestClientPostsJSONBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var in map[string]float64
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		_ = json.NewEncoder(w).Encode(map[string]float64{"double": in["x"] * 2})
	}))
	defer srv.Close()

	var out map[string]float64
	err := NewClient().SendAndParse(context.Background(), &RequestOptions{
		Method: MethodPost,
		URL:    srv.URL,
		Body:   map[string]float64{"x": 1.5},
	}, &out)
	require.NoError(t, err)
	assert.Equal(t, 3.0, out["double"])
}

func TestClientStatusErrors(t *testing.T) {
	code := http.StatusNotFound
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", code)
	}))
	defer srv.Close()

	c := NewClient()
	err := c.GetJSON(context.Background(), srv.URL, nil, nil)
	require.Error(t, err)
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusNotFound, se.StatusCode)
	assert.Equal(t, "nope", se.Body)
	assert.True(t, IsClientError(err))

	code = http.StatusTooManyRequests
	err = c.GetJSON(context.Background(), srv.URL, nil, nil)
	assert.False(t, IsClientError(err))

	code = http.StatusBadGateway
	err = c.GetJSON(context.Background(), srv.URL, nil, nil)
	assert.False(t, IsClientError(err))
	assert.False(t, IsClientError(errors.New("dial tcp: refused")))
}
