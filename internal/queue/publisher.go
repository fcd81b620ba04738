package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Group592024/petbooking-notifier/internal/observability"
	"github.com/Group592024/petbooking-notifier/internal/ratelimit"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const defaultChunkSize = 100

// wire is the broker surface the publisher needs. Broker satisfies it; tests
// substitute a fake.
type wire interface {
	Available() bool
	Connect(ctx context.Context) Outcome
	Publish(ctx context.Context, exchange, routingKey string, body []byte) error
	Close() error
}

type PublisherConfig struct {
	Exchange        string
	PushRoutingKey  string
	EmailRoutingKey string
	ChunkSize       int
}

// RabbitPublisher publishes notification batches in receiver chunks. Chunk
// publishes run concurrently; the broker serializes the actual socket writes.
// A failed publish is not retried here: the caller decides whether to requeue
// or drop, and reconnection happens only through Initialize, gated by the
// broker's connection guard.
type RabbitPublisher struct {
	broker  wire
	cfg     PublisherConfig
	limiter ratelimit.RateLimiter
	logger  *zap.Logger
	metrics *observability.Metrics
}

var _ Publisher = (*RabbitPublisher)(nil)

func NewRabbitPublisher(
	broker *Broker,
	cfg PublisherConfig,
	limiter ratelimit.RateLimiter,
	logger *zap.Logger,
	metrics *observability.Metrics,
) (*RabbitPublisher, error) {
	if broker == nil {
		return nil, fmt.Errorf("broker is required")
	}
	return newRabbitPublisher(broker, cfg, limiter, logger, metrics)
}

func newRabbitPublisher(
	broker wire,
	cfg PublisherConfig,
	limiter ratelimit.RateLimiter,
	logger *zap.Logger,
	metrics *observability.Metrics,
) (*RabbitPublisher, error) {
	if cfg.Exchange == "" || cfg.PushRoutingKey == "" || cfg.EmailRoutingKey == "" {
		return nil, fmt.Errorf("exchange and routing keys are required")
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = defaultChunkSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &RabbitPublisher{
		broker:  broker,
		cfg:     cfg,
		limiter: limiter,
		logger:  logger,
		metrics: metrics,
	}, nil
}

// Initialize attempts one guard-gated connection. Callers get a Result, never
// an error value to unwrap.
func (p *RabbitPublisher) Initialize(ctx context.Context) Result {
	outcome := p.broker.Connect(ctx)
	switch outcome {
	case OutcomeOK:
		return Success("messaging connection established", 0)
	case OutcomeSuppressed:
		return Failure("messaging connection attempt suppressed by circuit breaker", nil)
	default:
		return Failure(fmt.Sprintf("messaging connection failed: %s", outcome), nil)
	}
}

// PublishPushBatch splits the receiver list into chunks and publishes each
// chunk as an independent message on the push routing key. Reports the total
// receiver count on success; the first chunk error fails the whole batch.
func (p *RabbitPublisher) PublishPushBatch(ctx context.Context, msg PushNotification) Result {
	if !p.broker.Available() {
		return Failure("messaging connection is unavailable; push batch was not published", nil)
	}
	if err := msg.Validate(); err != nil {
		return Failure("invalid push notification", err)
	}

	start := time.Now()
	chunks := ChunkReceivers(msg.Receivers, p.cfg.ChunkSize)

	g, groupCtx := errgroup.WithContext(ctx)
	for _, chunk := range chunks {
		chunk := chunk
		g.Go(func() error {
			return p.publishChunk(groupCtx, p.cfg.PushRoutingKey, PushNotification{
				NotificationID: msg.NotificationID,
				Receivers:      chunk,
				IsEmail:        msg.IsEmail,
			})
		})
	}

	if err := g.Wait(); err != nil {
		p.recordFailure(p.cfg.PushRoutingKey)
		p.logger.Error("push batch publish failed",
			zap.String("notificationId", msg.NotificationID),
			zap.Int("receivers", len(msg.Receivers)),
			zap.Error(err),
		)
		return Failure(fmt.Sprintf("failed to publish push batch of %d receivers", len(msg.Receivers)), err)
	}

	p.recordSuccess(p.cfg.PushRoutingKey, len(msg.Receivers), time.Since(start))
	return Success(fmt.Sprintf("published push batch in %d chunks", len(chunks)), len(msg.Receivers))
}

// PublishEmailAndPushBatch publishes two messages per chunk: the email
// payload first (title and content included), then the push payload for the
// same receivers. Order across chunks is not guaranteed.
func (p *RabbitPublisher) PublishEmailAndPushBatch(ctx context.Context, msg SendNotification) Result {
	if !p.broker.Available() {
		return Failure("messaging connection is unavailable; email batch was not published", nil)
	}
	if err := msg.Validate(); err != nil {
		return Failure("invalid send notification", err)
	}

	start := time.Now()
	chunks := ChunkReceivers(msg.Receivers, p.cfg.ChunkSize)

	g, groupCtx := errgroup.WithContext(ctx)
	for _, chunk := range chunks {
		chunk := chunk
		g.Go(func() error {
			if err := p.publishChunk(groupCtx, p.cfg.EmailRoutingKey, SendNotification{
				NotificationID: msg.NotificationID,
				Title:          msg.Title,
				Content:        msg.Content,
				Receivers:      chunk,
			}); err != nil {
				return err
			}

			return p.publishChunk(groupCtx, p.cfg.PushRoutingKey, PushNotification{
				NotificationID: msg.NotificationID,
				Receivers:      chunk,
				IsEmail:        true,
			})
		})
	}

	if err := g.Wait(); err != nil {
		p.recordFailure(p.cfg.EmailRoutingKey)
		p.logger.Error("email+push batch publish failed",
			zap.String("notificationId", msg.NotificationID),
			zap.Int("receivers", len(msg.Receivers)),
			zap.Error(err),
		)
		return Failure(fmt.Sprintf("failed to publish email batch of %d receivers", len(msg.Receivers)), err)
	}

	p.recordSuccess(p.cfg.EmailRoutingKey, len(msg.Receivers), time.Since(start))
	return Success(fmt.Sprintf("published email and push batches in %d chunks", len(chunks)), len(msg.Receivers))
}

func (p *RabbitPublisher) publishChunk(ctx context.Context, routingKey string, payload any) error {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx, routingKey); err != nil {
			return fmt.Errorf("rate limiter wait failed: %w", err)
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal chunk payload: %w", err)
	}

	return p.broker.Publish(ctx, p.cfg.Exchange, routingKey, body)
}

func (p *RabbitPublisher) recordSuccess(routingKey string, receivers int, elapsed time.Duration) {
	if p.metrics == nil {
		return
	}
	p.metrics.AddPublished(routingKey, receivers)
	p.metrics.ObservePublishDuration(routingKey, elapsed)
}

func (p *RabbitPublisher) recordFailure(routingKey string) {
	if p.metrics == nil {
		return
	}
	p.metrics.IncPublishFailed(routingKey)
}

func (p *RabbitPublisher) Close() error {
	if p == nil || p.broker == nil {
		return nil
	}
	return p.broker.Close()
}
