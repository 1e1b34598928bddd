package api

import (
	"errors"
	"net/http"

	"FinAgent/internal/domain/models"
	"FinAgent/internal/service/ratelimit"
	"FinAgent/internal/usecase"
	xhttp "FinAgent/pkg/http"
	xlogger "FinAgent/pkg/logger"
	"FinAgent/pkg/queue"

	"github.com/labstack/echo/v4"
)

// AgentsHandler serves the agent lifecycle over HTTP.
type AgentsHandler struct {
	logger  *xlogger.Logger
	svc     *usecase.AgentService
	jobs    *usecase.TrainEnqueuer
	limiter *ratelimit.Limiter
}

// NewAgentsHandler builds the handler. jobs may be nil when the queue is
// disabled; asynchronous training is then refused.
func NewAgentsHandler(logger *xlogger.Logger, svc *usecase.AgentService, jobs *usecase.TrainEnqueuer, limiter *ratelimit.Limiter) *AgentsHandler {
	if logger == nil {
		logger = xlogger.Nop()
	}
	if limiter == nil {
		limiter = ratelimit.New(30, 5)
	}
	return &AgentsHandler{logger: logger, svc: svc, jobs: jobs, limiter: limiter}
}

func (h *AgentsHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	limited := h.limiter.Middleware()

	g.POST("/agents", h.Create)
	g.GET("/agents", h.List)
	g.GET("/agents/:id", h.Get)
	g.POST("/agents/:id/train", h.Train, limited)
	g.POST("/agents/:id/predict", h.Predict)
	g.POST("/agents/:id/execute", h.Execute)
	g.POST("/agents/:id/evaluate", h.Evaluate, limited)
	g.GET("/jobs/:id", h.Job)
}

func (h *AgentsHandler) Create(c echo.Context) error {
	req := &models.CreateAgentRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.svc.Create(c.Request().Context(), *req)
	if err != nil {
		return h.fail(c, "create", err)
	}
	return xhttp.CreatedResponse(c, res)
}

func (h *AgentsHandler) List(c echo.Context) error {
	agents, err := h.svc.List(c.Request().Context())
	if err != nil {
		return h.fail(c, "list", err)
	}
	return xhttp.ListResponse(c, agents, int64(len(agents)))
}

func (h *AgentsHandler) Get(c echo.Context) error {
	a, err := h.svc.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.fail(c, "get", err)
	}
	return xhttp.SuccessResponse(c, a)
}

func (h *AgentsHandler) Train(c echo.Context) error {
	req := &models.TrainAgentRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	ctx := c.Request().Context()
	id := c.Param("id")

	if req.Async {
		if h.jobs == nil {
			return xhttp.AppErrorResponse(c, xhttp.UnavailableError("training queue is disabled"))
		}
		jobID, err := h.jobs.Enqueue(ctx, h.svc, id, *req)
		if err != nil {
			return h.fail(c, "train enqueue", err)
		}
		return xhttp.AcceptedResponse(c, map[string]string{"agent_id": id, "job_id": jobID})
	}

	res, err := h.svc.Train(ctx, id, *req)
	if err != nil {
		return h.fail(c, "train", err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *AgentsHandler) Predict(c echo.Context) error {
	req := &models.PredictRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.svc.Predict(c.Request().Context(), c.Param("id"), *req)
	if err != nil {
		return h.fail(c, "predict", err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *AgentsHandler) Execute(c echo.Context) error {
	req := &models.ExecuteRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.svc.Execute(c.Request().Context(), c.Param("id"), *req)
	if err != nil {
		return h.fail(c, "execute", err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *AgentsHandler) Evaluate(c echo.Context) error {
	req := &models.EvaluateRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.svc.Evaluate(c.Request().Context(), c.Param("id"), *req)
	if err != nil {
		return h.fail(c, "evaluate", err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *AgentsHandler) Job(c echo.Context) error {
	if h.jobs == nil {
		return xhttp.AppErrorResponse(c, xhttp.UnavailableError("training queue is disabled"))
	}
	st, err := h.jobs.Status(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.fail(c, "job status", err)
	}
	return xhttp.SuccessResponse(c, st)
}

func (h *AgentsHandler) fail(c echo.Context, op string, err error) error {
	appErr := toAppError(err)
	if appErr.Status >= 500 {
		h.logger.Error(op+" failed", xlogger.String("path", c.Path()), xlogger.Error(err))
	} else {
		h.logger.Warn(op+" rejected", xlogger.String("path", c.Path()), xlogger.Error(err))
	}
	return xhttp.AppErrorResponse(c, appErr)
}

// toAppError maps domain errors onto HTTP statuses.
func toAppError(err error) *xhttp.AppError {
	var appErr *xhttp.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	var badReq *xhttp.AppError
	switch {
	case errors.Is(err, models.ErrAgentNotFound):
		return xhttp.NotFoundError("agent not found").WithError(err)
	case errors.Is(err, queue.ErrNoStatus):
		return xhttp.NotFoundError("job not found").WithError(err)
	case errors.Is(err, models.ErrModelNotReady):
		return xhttp.NewAppError("ERR_MODEL_NOT_READY", "", "model not ready", http.StatusConflict).WithError(err)
	case errors.Is(err, usecase.ErrAgentExists), errors.Is(err, usecase.ErrTrainingInProgress):
		return xhttp.ConflictError(err.Error())
	case errors.Is(err, queue.ErrQueueFull), errors.Is(err, queue.ErrNotRunning):
		return xhttp.UnavailableError(err.Error())
	case errors.Is(err, models.ErrInsufficientData):
		badReq = xhttp.NewAppError("ERR_INSUFFICIENT_DATA", "", err.Error(), http.StatusBadRequest)
	case errors.Is(err, models.ErrInvalidPrice):
		badReq = xhttp.NewAppError("ERR_INVALID_PRICE", "", err.Error(), http.StatusBadRequest)
	case errors.Is(err, models.ErrMalformedSeries):
		badReq = xhttp.NewAppError("ERR_MALFORMED_SERIES", "", err.Error(), http.StatusBadRequest)
	case errors.Is(err, usecase.ErrInvalidRequest):
		badReq = xhttp.BadRequestError(err.Error())
	default:
		return xhttp.InternalError("something went wrong").WithError(err)
	}
	var se *models.SeriesError
	if errors.As(err, &se) {
		badReq.Field = se.Field
		if se.Index >= 0 {
			badReq.WithParam("index", se.Index)
		}
	}
	return badReq
}
