package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"FinAgent/internal/repository"
	"FinAgent/internal/service/ratelimit"
	"FinAgent/internal/services/predictor"
	"FinAgent/internal/usecase"
	xhttp "FinAgent/pkg/http"
	"FinAgent/pkg/queue"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeQueue struct{ enqueued int }

func (q *fakeQueue) Enqueue(context.Context, string, interface{}) (string, error) {
	q.enqueued++
	return "job-7", nil
}

func (q *fakeQueue) Status(_ context.Context, id string) (*queue.JobStatus, error) {
	if id != "job-7" {
		return nil, queue.ErrNoStatus
	}
	return &queue.JobStatus{ID: id, State: queue.StateSucceeded}, nil
}

func newEcho(t *testing.T, jobs *usecase.TrainEnqueuer, limiter *ratelimit.Limiter) *echo.Echo {
	t.Helper()
	svc, err := usecase.NewAgentService(
		repository.NewFileAgentStore(t.TempDir()),
		repository.NewSourceResolver(),
		usecase.NewPredictorFactory(predictor.Options{RSIPeriod: 14}),
		nil, nil,
		usecase.AgentServiceConfig{WindowLength: 20, DefaultRiskLevel: 0.5, InitialBalance: 10000, DefaultBalance: 1000},
	)
	require.NoError(t, err)
	e := echo.New()
	NewAgentsHandler(nil, svc, jobs, limiter).RegisterRoutes(e)
	return e
}

func call(e *echo.Echo, method, path, body string) (*httptest.ResponseRecorder, xhttp.APIResponse) {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	var resp xhttp.APIResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	return rec, resp
}

func createAgent(t *testing.T, e *echo.Echo) string {
	t.Helper()
	rec, resp := call(e, http.MethodPost, "/api/agents", `{"name":"rsi","strategy_type":"momentum","risk_level":0.2}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	data := resp.Data.(map[string]any)
	assert.Len(t, data["metadata_hash"], 64)
	return data["agent_id"].(string)
}

func TestAgentLifecycle(t *testing.T) {
	e := newEcho(t, nil, nil)
	id := createAgent(t, e)

	rec, resp := call(e, http.MethodGet, "/api/agents/"+id, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "momentum", resp.Data.(map[string]any)["strategy_type"])

	rec, resp = call(e, http.MethodPost, "/api/agents/"+id+"/predict", `{"source":"mock://BTCUSDT?limit=50"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.False(t, resp.Success)

	rec, resp = call(e, http.MethodPost, "/api/agents/"+id+"/train", `{"source":"mock://BTCUSDT?limit=300"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	train := resp.Data.(map[string]any)
	assert.Equal(t, float64(300), train["bars"])
	assert.Equal(t, false, train["evaluation_skipped"])

	rec, resp = call(e, http.MethodPost, "/api/agents/"+id+"/predict", `{"source":"mock://BTCUSDT?limit=50"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	pred := resp.Data.(map[string]any)
	assert.Contains(t, []any{"buy", "sell", "hold"}, pred["signal"])
	assert.Equal(t, 0.2, pred["risk_level"])

	rec, resp = call(e, http.MethodPost, "/api/agents/"+id+"/execute", `{"source":"mock://BTCUSDT?limit=50","balance":500}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, resp.Data.(map[string]any), "outcome")

	rec, resp = call(e, http.MethodPost, "/api/agents/"+id+"/execute", `{"source":"mock://BTCUSDT?limit=50","position":{"held":false,"quantity":3}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	assert.False(t, resp.Success)

	rec, resp = call(e, http.MethodPost, "/api/agents/"+id+"/evaluate", `{"source":"mock://BTCUSDT?limit=120"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	bt := resp.Data.(map[string]any)
	assert.Equal(t, true, bt["completed"])
	assert.Equal(t, float64(100), bt["total_steps"])

	rec, resp = call(e, http.MethodGet, "/api/agents", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), resp.Data.(map[string]any)["total"])
}

func TestAgentErrors(t *testing.T) {
	e := newEcho(t, nil, nil)

	rec, resp := call(e, http.MethodPost, "/api/agents", `{"strategy_type":"dnn"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotEmpty(t, resp.Errors)
	assert.Equal(t, "name", resp.Errors[0].Field)

	rec, _ = call(e, http.MethodPost, "/api/agents", `{"name":"x","strategy_type":"gpt"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, resp = call(e, http.MethodPost, "/api/agents", `{"name":"x","agent_id":"a/b"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	require.NotEmpty(t, resp.Errors)
	assert.Equal(t, "ERR_BAD_REQUEST", resp.Errors[0].Code)

	rec, _ = call(e, http.MethodGet, "/api/agents/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	id := createAgent(t, e)
	rec, resp = call(e, http.MethodPost, "/api/agents/"+id+"/train", `{"source":"mock://BTCUSDT?limit=10"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotEmpty(t, resp.Errors)
	assert.Equal(t, "ERR_INSUFFICIENT_DATA", resp.Errors[0].Code)

	rec, _ = call(e, http.MethodPost, "/api/agents/"+id+"/predict", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = call(e, http.MethodPost, "/api/agents/"+id+"/train", `{"source":"mock://BTCUSDT","async":true}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestAsyncTrainAndJobStatus(t *testing.T) {
	q := &fakeQueue{}
	e := newEcho(t, usecase.NewTrainEnqueuer(q), nil)
	id := createAgent(t, e)

	rec, resp := call(e, http.MethodPost, "/api/agents/"+id+"/train", `{"source":"mock://BTCUSDT","async":true}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	assert.Equal(t, "job-7", resp.Data.(map[string]any)["job_id"])
	assert.Equal(t, 1, q.enqueued)

	rec, resp = call(e, http.MethodGet, "/api/jobs/job-7", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, queue.StateSucceeded, resp.Data.(map[string]any)["state"])

	rec, _ = call(e, http.MethodGet, "/api/jobs/other", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTrainRateLimited(t *testing.T) {
	e := newEcho(t, nil, ratelimit.New(1, 1))
	id := createAgent(t, e)

	rec, _ := call(e, http.MethodPost, "/api/agents/"+id+"/train", `{"source":"mock://BTCUSDT?limit=10"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec, _ = call(e, http.MethodPost, "/api/agents/"+id+"/train", `{"source":"mock://BTCUSDT?limit=10"}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}
