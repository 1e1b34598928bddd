package repository

import (
	"context"

	"FinAgent/internal/domain/models"
	domrepo "FinAgent/internal/domain/repository"
	pkgkafka "FinAgent/pkg/kafka"
	applogger "FinAgent/pkg/logger"
)

// KafkaDecisionPublisher keys decisions by symbol so one symbol stays on one partition.
type KafkaDecisionPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

func NewKafkaDecisionPublisher(producer *pkgkafka.Producer, topic string) *KafkaDecisionPublisher {
	return &KafkaDecisionPublisher{producer: producer, topic: topic}
}

func (p *KafkaDecisionPublisher) Publish(ctx context.Context, d *models.Decision) error {
	return p.producer.Publish(ctx, p.topic, []byte(d.Symbol), d)
}

func (p *KafkaDecisionPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

// LogDecisionPublisher writes decisions to the log. Used when Kafka is disabled.
type LogDecisionPublisher struct {
	l *applogger.Logger
}

func NewLogDecisionPublisher(l *applogger.Logger) *LogDecisionPublisher {
	return &LogDecisionPublisher{l: l}
}

func (p *LogDecisionPublisher) Publish(_ context.Context, d *models.Decision) error {
	p.l.Info("decision",
		applogger.String("agent_id", d.AgentID),
		applogger.String("symbol", d.Symbol),
		applogger.String("signal", string(d.Prediction.Signal)),
		applogger.String("action", string(d.Outcome.Action)),
		applogger.Float64("probability", d.Prediction.Probability),
		applogger.Float64("price", d.Outcome.Price),
		applogger.Float64("equity", d.Equity))
	return nil
}

func (p *LogDecisionPublisher) Close() error { return nil }

var (
	_ domrepo.DecisionPublisher = (*KafkaDecisionPublisher)(nil)
	_ domrepo.DecisionPublisher = (*LogDecisionPublisher)(nil)
)
