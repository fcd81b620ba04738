package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Group592024/petbooking-notifier/internal/domain"
	"github.com/Group592024/petbooking-notifier/internal/observability"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// NotificationStore is the downstream collaborator the consumers fan out
// into. Its operations must be idempotent: a nacked message is redelivered
// with its already-processed receivers included.
type NotificationStore interface {
	PushSingleNotification(ctx context.Context, notificationID, userID string) error
	CreateHealthBookNotification(ctx context.Context, userID string, n *domain.Notification) error
}

// Mailer delivers one email to a platform user.
type Mailer interface {
	Send(ctx context.Context, userID, subject, body string) error
}

// subscriber is the broker surface the consumer needs.
type subscriber interface {
	Available() bool
	Connect(ctx context.Context) Outcome
	Subscribe(queue string, prefetch int) (<-chan amqp.Delivery, error)
	Close() error
}

type ConsumerConfig struct {
	PushQueue            string
	EmailQueue           string
	HealthbookQueue      string
	Prefetch             int
	HealthbookNotiTypeID string
}

// Consumer subscribes to the notification queues and applies incoming
// messages with manual acknowledgment. A message is acked only when every
// receiver in it succeeded; the first failing receiver nacks the whole
// message back onto the queue and stops processing. Reconnection is
// caller-driven: each Start entry point re-checks availability and goes
// through the guard, never a background polling loop.
type Consumer struct {
	broker  subscriber
	store   NotificationStore
	mailer  Mailer
	cfg     ConsumerConfig
	logger  *zap.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

func NewConsumer(
	broker *Broker,
	store NotificationStore,
	mailer Mailer,
	cfg ConsumerConfig,
	logger *zap.Logger,
	metrics *observability.Metrics,
) (*Consumer, error) {
	if broker == nil {
		return nil, fmt.Errorf("broker is required")
	}
	return newConsumer(broker, store, mailer, cfg, logger, metrics)
}

func newConsumer(
	broker subscriber,
	store NotificationStore,
	mailer Mailer,
	cfg ConsumerConfig,
	logger *zap.Logger,
	metrics *observability.Metrics,
) (*Consumer, error) {
	if store == nil {
		return nil, fmt.Errorf("notification store is required")
	}
	if cfg.Prefetch < 1 {
		cfg.Prefetch = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Consumer{
		broker:  broker,
		store:   store,
		mailer:  mailer,
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
	}, nil
}

// Available reports the underlying connection's current state.
func (c *Consumer) Available() bool {
	return c.broker.Available()
}

// StartPushConsumer subscribes to the push queue. The returned Result only
// covers subscription registration; message handling is event-driven after
// that.
func (c *Consumer) StartPushConsumer(ctx context.Context) Result {
	return c.start(ctx, c.cfg.PushQueue, c.handlePushDelivery)
}

// StartEmailConsumer subscribes to the email queue and delivers through the
// mail gateway.
func (c *Consumer) StartEmailConsumer(ctx context.Context) Result {
	if c.mailer == nil {
		return Failure("mail gateway is not configured; email consumer was not started", nil)
	}
	return c.start(ctx, c.cfg.EmailQueue, c.handleEmailDelivery)
}

// StartHealthbookConsumer subscribes to the healthbook reminder queue.
func (c *Consumer) StartHealthbookConsumer(ctx context.Context) Result {
	return c.start(ctx, c.cfg.HealthbookQueue, c.handleHealthbookDelivery)
}

func (c *Consumer) start(ctx context.Context, queue string, handle func(ctx context.Context, d amqp.Delivery)) Result {
	if queue == "" {
		return Failure("queue name is not configured", nil)
	}

	if !c.broker.Available() {
		if outcome := c.broker.Connect(ctx); outcome != OutcomeOK {
			return Failure(fmt.Sprintf("cannot subscribe to %s: %s", queue, outcome), nil)
		}
	}

	deliveries, err := c.broker.Subscribe(queue, c.cfg.Prefetch)
	if err != nil {
		return Failure(fmt.Sprintf("failed to subscribe to %s", queue), err)
	}

	go c.run(ctx, queue, deliveries, handle)

	return Success(fmt.Sprintf("subscribed to %s", queue), 0)
}

func (c *Consumer) run(ctx context.Context, queue string, deliveries <-chan amqp.Delivery, handle func(ctx context.Context, d amqp.Delivery)) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				c.logger.Warn("delivery stream closed", zap.String("queue", queue))
				return
			}
			handle(ctx, d)
		}
	}
}

func (c *Consumer) handlePushDelivery(ctx context.Context, d amqp.Delivery) {
	var msg PushNotification
	if err := json.Unmarshal(d.Body, &msg); err != nil {
		c.requeue(d, c.cfg.PushQueue, "invalid JSON", err)
		return
	}

	for _, receiver := range msg.Receivers {
		if err := c.store.PushSingleNotification(ctx, msg.NotificationID, receiver.UserID); err != nil {
			c.logger.Error("push fan-out failed",
				zap.String("notificationId", msg.NotificationID),
				zap.String("userId", receiver.UserID),
				zap.Error(err),
			)
			c.requeue(d, c.cfg.PushQueue, "receiver processing failed", err)
			return
		}
	}

	c.ack(d, c.cfg.PushQueue)
}

func (c *Consumer) handleEmailDelivery(ctx context.Context, d amqp.Delivery) {
	var msg SendNotification
	if err := json.Unmarshal(d.Body, &msg); err != nil {
		c.requeue(d, c.cfg.EmailQueue, "invalid JSON", err)
		return
	}

	for _, receiver := range msg.Receivers {
		if err := c.mailer.Send(ctx, receiver.UserID, msg.Title, msg.Content); err != nil {
			c.logger.Error("email delivery failed",
				zap.String("notificationId", msg.NotificationID),
				zap.String("userId", receiver.UserID),
				zap.Error(err),
			)
			c.requeue(d, c.cfg.EmailQueue, "email delivery failed", err)
			return
		}
	}

	c.ack(d, c.cfg.EmailQueue)
}

func (c *Consumer) handleHealthbookDelivery(ctx context.Context, d amqp.Delivery) {
	var reminders []HealthBookReminder
	if err := json.Unmarshal(d.Body, &reminders); err != nil {
		c.requeue(d, c.cfg.HealthbookQueue, "invalid JSON", err)
		return
	}

	for _, reminder := range reminders {
		notification := c.reminderNotification(reminder)
		if err := c.store.CreateHealthBookNotification(ctx, reminder.UserID, notification); err != nil {
			c.logger.Error("healthbook notification create failed",
				zap.String("userId", reminder.UserID),
				zap.String("petName", reminder.PetName),
				zap.Error(err),
			)
			c.requeue(d, c.cfg.HealthbookQueue, "reminder processing failed", err)
			return
		}
	}

	c.ack(d, c.cfg.HealthbookQueue)
}

// reminderNamespace keys deterministic reminder notification ids, so a
// redelivered reminder upserts the same row instead of duplicating it.
var reminderNamespace = uuid.MustParse("9f2c1a66-55d4-43c2-8a07-5f0f2f9ab1d4")

func (c *Consumer) reminderNotification(reminder HealthBookReminder) *domain.Notification {
	visit := reminder.NextVisitDate.Format("02/01/2006")
	seed := fmt.Sprintf("%s|%s|%s", reminder.UserID, reminder.PetName, reminder.NextVisitDate.UTC().Format(time.RFC3339))
	return &domain.Notification{
		ID:         uuid.NewSHA1(reminderNamespace, []byte(seed)).String(),
		NotiTypeID: c.cfg.HealthbookNotiTypeID,
		Title:      fmt.Sprintf("Checkup reminder for %s on %s", reminder.PetName, visit),
		Content:    fmt.Sprintf("%s has a clinic visit scheduled for %s. Please arrive 10 minutes early.", reminder.PetName, visit),
		CreatedAt:  c.now(),
		IsPushed:   true,
		IsDeleted:  false,
	}
}

func (c *Consumer) ack(d amqp.Delivery, queue string) {
	if err := d.Ack(false); err != nil {
		c.logger.Error("failed to ack delivery", zap.String("queue", queue), zap.Error(err))
		return
	}
	if c.metrics != nil {
		c.metrics.IncConsumed(queue, "acked")
	}
}

// requeue negatively acknowledges the whole message with requeue so the
// broker redelivers it. The store must tolerate re-running receivers that
// already succeeded.
func (c *Consumer) requeue(d amqp.Delivery, queue, reason string, cause error) {
	c.logger.Warn("requeueing message",
		zap.String("queue", queue),
		zap.String("reason", reason),
		zap.Error(cause),
	)
	if err := d.Nack(false, true); err != nil {
		c.logger.Error("failed to nack delivery", zap.String("queue", queue), zap.Error(err))
		return
	}
	if c.metrics != nil {
		c.metrics.IncConsumed(queue, "requeued")
	}
}

// Close releases the underlying broker handles. Safe to call twice.
func (c *Consumer) Close() error {
	if c == nil || c.broker == nil {
		return nil
	}
	return c.broker.Close()
}
