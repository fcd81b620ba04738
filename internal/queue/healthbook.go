package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Group592024/petbooking-notifier/internal/observability"
	"go.uber.org/zap"
)

// RemindersPublisher publishes health-book visit reminders.
type RemindersPublisher interface {
	PublishReminders(ctx context.Context, reminders []HealthBookReminder) Result
}

// HealthbookPublisher publishes reminder batches to the healthbook exchange.
// Reminders travel as one JSON array per message; the consumer fans them out
// per entry.
type HealthbookPublisher struct {
	broker     wire
	exchange   string
	routingKey string
	logger     *zap.Logger
	metrics    *observability.Metrics
}

var _ RemindersPublisher = (*HealthbookPublisher)(nil)

func NewHealthbookPublisher(
	broker *Broker,
	exchange string,
	routingKey string,
	logger *zap.Logger,
	metrics *observability.Metrics,
) (*HealthbookPublisher, error) {
	if broker == nil {
		return nil, fmt.Errorf("broker is required")
	}
	return newHealthbookPublisher(broker, exchange, routingKey, logger, metrics)
}

func newHealthbookPublisher(
	broker wire,
	exchange string,
	routingKey string,
	logger *zap.Logger,
	metrics *observability.Metrics,
) (*HealthbookPublisher, error) {
	if exchange == "" || routingKey == "" {
		return nil, fmt.Errorf("exchange and routing key are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &HealthbookPublisher{
		broker:     broker,
		exchange:   exchange,
		routingKey: routingKey,
		logger:     logger,
		metrics:    metrics,
	}, nil
}

func (p *HealthbookPublisher) PublishReminders(ctx context.Context, reminders []HealthBookReminder) Result {
	if len(reminders) == 0 {
		return Success("no reminders to publish", 0)
	}
	if !p.broker.Available() {
		if outcome := p.broker.Connect(ctx); outcome != OutcomeOK {
			return Failure(fmt.Sprintf("messaging connection is unavailable: %s", outcome), nil)
		}
	}

	start := time.Now()
	body, err := json.Marshal(reminders)
	if err != nil {
		return Failure("failed to marshal reminders", err)
	}

	if err := p.broker.Publish(ctx, p.exchange, p.routingKey, body); err != nil {
		if p.metrics != nil {
			p.metrics.IncPublishFailed(p.routingKey)
		}
		p.logger.Error("reminder publish failed",
			zap.Int("reminders", len(reminders)),
			zap.Error(err),
		)
		return Failure(fmt.Sprintf("failed to publish %d reminders", len(reminders)), err)
	}

	if p.metrics != nil {
		p.metrics.AddPublished(p.routingKey, len(reminders))
		p.metrics.ObservePublishDuration(p.routingKey, time.Since(start))
	}
	return Success(fmt.Sprintf("published %d reminders", len(reminders)), len(reminders))
}
