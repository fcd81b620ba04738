package queue

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const (
	defaultConnectTimeout = 20 * time.Second
	defaultHeartbeat      = 30 * time.Second
)

// ErrUnavailable is returned by publish primitives when no live connection
// exists. It never escapes the package boundary; public operations convert it
// to a failure Result.
var ErrUnavailable = fmt.Errorf("broker connection is unavailable")

// Binding declares one queue bound to a direct exchange by a routing key.
type Binding struct {
	Exchange   string
	Queue      string
	RoutingKey string
}

type BrokerConfig struct {
	URL            string
	ConnectTimeout time.Duration
	Heartbeat      time.Duration
	Bindings       []Binding
}

// Broker owns one AMQP connection and one channel, declares the configured
// topology on connect, and tracks availability from the connection's
// shutdown/blocked callbacks. Connection attempts are gated by the injected
// ConnectionGuard. The channel is not safe for concurrent writes, so all
// publishes are serialized behind a single-writer lock.
type Broker struct {
	cfg    BrokerConfig
	guard  *ConnectionGuard
	logger *zap.Logger

	writeMu sync.Mutex

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel

	available atomic.Bool
	closed    atomic.Bool
}

func NewBroker(cfg BrokerConfig, guard *ConnectionGuard, logger *zap.Logger) (*Broker, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, fmt.Errorf("broker url is required")
	}
	if guard == nil {
		return nil, fmt.Errorf("connection guard is required")
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = defaultHeartbeat
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Broker{
		cfg:    cfg,
		guard:  guard,
		logger: logger,
	}, nil
}

// Available reports whether the connection is currently usable.
func (b *Broker) Available() bool {
	return b.available.Load()
}

// Connect establishes the connection and declares topology. The guard may
// suppress the attempt entirely, in which case the network is never touched.
func (b *Broker) Connect(ctx context.Context) Outcome {
	if b.closed.Load() {
		return OutcomeOther
	}
	if b.Available() {
		return OutcomeOK
	}
	if !b.guard.ShouldAttempt(false) {
		return OutcomeSuppressed
	}

	conn, err := amqp.DialConfig(b.cfg.URL, amqp.Config{
		Heartbeat: b.cfg.Heartbeat,
		Dial:      amqp.DefaultDial(b.cfg.ConnectTimeout),
	})
	if err != nil {
		outcome := ClassifyError(err)
		b.guard.RecordFailure(outcome)
		b.logger.Error("broker dial failed",
			zap.String("outcome", outcome.String()),
			zap.Error(err),
		)
		return outcome
	}

	ch, err := conn.Channel()
	if err == nil {
		err = declareTopology(ch, b.cfg.Bindings)
	}
	if err != nil {
		_ = conn.Close()
		outcome := ClassifyError(err)
		b.guard.RecordFailure(outcome)
		b.logger.Error("broker setup failed",
			zap.String("outcome", outcome.String()),
			zap.Error(err),
		)
		return outcome
	}

	b.mu.Lock()
	old := b.conn
	b.conn = conn
	b.ch = ch
	b.mu.Unlock()

	if old != nil && !old.IsClosed() {
		_ = old.Close()
	}

	b.watch(conn)
	b.guard.RecordSuccess()
	b.available.Store(true)

	b.logger.Info("broker connected", zap.Int("bindings", len(b.cfg.Bindings)))
	return OutcomeOK
}

// watch flips the availability flag from the connection's shutdown and
// blocked notifications. The goroutine exits when the connection dies.
func (b *Broker) watch(conn *amqp.Connection) {
	closes := conn.NotifyClose(make(chan *amqp.Error, 1))
	blocks := conn.NotifyBlocked(make(chan amqp.Blocking, 1))

	go func() {
		for {
			select {
			case err, ok := <-closes:
				b.available.Store(false)
				if ok && err != nil {
					b.logger.Warn("broker connection closed", zap.Error(err))
				}
				return
			case blocking, ok := <-blocks:
				if !ok {
					return
				}
				b.available.Store(!blocking.Active)
				if blocking.Active {
					b.logger.Warn("broker connection blocked", zap.String("reason", blocking.Reason))
				} else {
					b.logger.Info("broker connection unblocked")
				}
			}
		}
	}()
}

// Publish writes one message. No basic properties are set; the body is the
// whole wire contract. Serialized against other publishes on this broker.
func (b *Broker) Publish(ctx context.Context, exchange, routingKey string, body []byte) error {
	if !b.Available() {
		return ErrUnavailable
	}

	b.mu.Lock()
	ch := b.ch
	b.mu.Unlock()
	if ch == nil {
		return ErrUnavailable
	}

	b.writeMu.Lock()
	err := ch.PublishWithContext(ctx, exchange, routingKey, false, false, amqp.Publishing{Body: body})
	b.writeMu.Unlock()

	if err != nil {
		outcome := ClassifyError(err)
		if outcome == OutcomeBrokerUnreachable || outcome == OutcomeSocketError {
			b.available.Store(false)
			b.guard.RecordFailure(outcome)
		}
		return fmt.Errorf("failed to publish to %s/%s: %w", exchange, routingKey, err)
	}

	return nil
}

// Subscribe registers a manual-ack consumer on the named queue and returns
// its delivery stream.
func (b *Broker) Subscribe(queue string, prefetch int) (<-chan amqp.Delivery, error) {
	if !b.Available() {
		return nil, ErrUnavailable
	}
	if prefetch < 1 {
		prefetch = 1
	}

	b.mu.Lock()
	ch := b.ch
	b.mu.Unlock()
	if ch == nil {
		return nil, ErrUnavailable
	}

	if err := ch.Qos(prefetch, 0, false); err != nil {
		return nil, fmt.Errorf("failed to set qos: %w", err)
	}

	deliveries, err := ch.Consume(
		queue,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to consume queue %q: %w", queue, err)
	}

	return deliveries, nil
}

// Close releases the channel then the connection. Teardown errors are logged
// and swallowed; calling Close twice is safe.
func (b *Broker) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}
	b.available.Store(false)

	b.mu.Lock()
	ch := b.ch
	conn := b.conn
	b.ch = nil
	b.conn = nil
	b.mu.Unlock()

	if ch != nil {
		if err := ch.Close(); err != nil {
			b.logger.Warn("channel close failed", zap.Error(err))
		}
	}
	if conn != nil && !conn.IsClosed() {
		if err := conn.Close(); err != nil {
			b.logger.Warn("connection close failed", zap.Error(err))
		}
	}

	return nil
}

func declareTopology(ch *amqp.Channel, bindings []Binding) error {
	declaredExchanges := make(map[string]struct{}, len(bindings))

	for _, binding := range bindings {
		if _, ok := declaredExchanges[binding.Exchange]; !ok {
			if err := ch.ExchangeDeclare(
				binding.Exchange,
				"direct",
				false,
				false,
				false,
				false,
				nil,
			); err != nil {
				return fmt.Errorf("failed to declare exchange %q: %w", binding.Exchange, err)
			}
			declaredExchanges[binding.Exchange] = struct{}{}
		}

		if _, err := ch.QueueDeclare(
			binding.Queue,
			false,
			false,
			false,
			false,
			nil,
		); err != nil {
			return fmt.Errorf("failed to declare queue %q: %w", binding.Queue, err)
		}

		if err := ch.QueueBind(binding.Queue, binding.RoutingKey, binding.Exchange, false, nil); err != nil {
			return fmt.Errorf("failed to bind queue %q: %w", binding.Queue, err)
		}
	}

	return nil
}
