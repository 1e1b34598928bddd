package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"FinAgent/internal/domain/models"
	applogger "FinAgent/pkg/logger"
	"FinAgent/pkg/queue"
)

// TrainJobType is the queue message type of asynchronous training.
const TrainJobType = "agent.train"

// TrainJob runs queued training requests on a worker.
type TrainJob struct {
	svc *AgentService
	l   *applogger.Logger
}

func NewTrainJob(svc *AgentService, l *applogger.Logger) *TrainJob {
	if l == nil {
		l = applogger.Nop()
	}
	return &TrainJob{svc: svc, l: l}
}

func (j *TrainJob) Name() string { return "train_agent" }

func (j *TrainJob) Type() string { return TrainJobType }

// Handle trains the agent of the payload. Input errors are final and are
// not handed back to the queue for retry.
func (j *TrainJob) Handle(ctx context.Context, payload json.RawMessage) error {
	p, err := queue.ParsePayload[models.TrainJobPayload](payload)
	if err != nil {
		j.l.Error("bad train payload", applogger.Error(err))
		return nil
	}
	res, err := j.svc.Train(ctx, p.AgentID, p.Request)
	if err != nil {
		if permanent(err) {
			j.l.Error("train job failed", applogger.String("agent_id", p.AgentID), applogger.Error(err))
			return nil
		}
		return fmt.Errorf("train %s: %w", p.AgentID, err)
	}
	j.l.Info("train job done",
		applogger.String("agent_id", p.AgentID),
		applogger.Int("bars", res.Bars),
		applogger.Float64("accuracy", res.Metrics["accuracy"]))
	return nil
}

func permanent(err error) bool {
	return errors.Is(err, models.ErrAgentNotFound) ||
		errors.Is(err, models.ErrInsufficientData) ||
		errors.Is(err, models.ErrMalformedSeries) ||
		errors.Is(err, models.ErrInvalidPrice) ||
		errors.Is(err, ErrInvalidRequest)
}

// TrainEnqueuer queues training requests for TrainJob.
type TrainEnqueuer struct {
	q queue.QueueService
}

func NewTrainEnqueuer(q queue.QueueService) *TrainEnqueuer { return &TrainEnqueuer{q: q} }

// Enqueue checks the agent exists and returns the job id.
func (e *TrainEnqueuer) Enqueue(ctx context.Context, svc *AgentService, id string, req models.TrainAgentRequest) (string, error) {
	if _, err := svc.Get(ctx, id); err != nil {
		return "", err
	}
	return e.q.Enqueue(ctx, TrainJobType, models.TrainJobPayload{AgentID: id, Request: req})
}

func (e *TrainEnqueuer) Status(ctx context.Context, id string) (*queue.JobStatus, error) {
	return e.q.Status(ctx, id)
}

var _ queue.Job = (*TrainJob)(nil)
