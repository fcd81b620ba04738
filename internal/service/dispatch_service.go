package service

import (
	"context"
	"fmt"
	"time"

	"github.com/Group592024/petbooking-notifier/internal/queue"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const defaultResubscribeInterval = 15 * time.Second

// consumerPort is the queue.Consumer surface the worker drives.
type consumerPort interface {
	Available() bool
	StartPushConsumer(ctx context.Context) queue.Result
	StartEmailConsumer(ctx context.Context) queue.Result
	StartHealthbookConsumer(ctx context.Context) queue.Result
}

// DispatchWorker keeps the notification consumers subscribed. Subscriptions
// are re-established from here when the connection drops; the broker's guard
// decides whether an attempt actually touches the network, so a dead broker
// costs one suppressed call per tick at worst.
type DispatchWorker struct {
	consumer  consumerPort
	withEmail bool
	interval  time.Duration
	logger    *zap.Logger
}

func NewDispatchWorker(
	consumer *queue.Consumer,
	withEmail bool,
	interval time.Duration,
	logger *zap.Logger,
) (*DispatchWorker, error) {
	if consumer == nil {
		return nil, fmt.Errorf("consumer is required")
	}
	return newDispatchWorker(consumer, withEmail, interval, logger)
}

func newDispatchWorker(
	consumer consumerPort,
	withEmail bool,
	interval time.Duration,
	logger *zap.Logger,
) (*DispatchWorker, error) {
	if interval <= 0 {
		interval = defaultResubscribeInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &DispatchWorker{
		consumer:  consumer,
		withEmail: withEmail,
		interval:  interval,
		logger:    logger,
	}, nil
}

// Start runs all consumers until context cancellation.
func (w *DispatchWorker) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	starters := []struct {
		name  string
		start func(ctx context.Context) queue.Result
	}{
		{name: "push", start: w.consumer.StartPushConsumer},
		{name: "healthbook", start: w.consumer.StartHealthbookConsumer},
	}
	if w.withEmail {
		starters = append(starters, struct {
			name  string
			start func(ctx context.Context) queue.Result
		}{name: "email", start: w.consumer.StartEmailConsumer})
	}

	g, groupCtx := errgroup.WithContext(ctx)
	for _, starter := range starters {
		starter := starter
		g.Go(func() error {
			w.keepSubscribed(groupCtx, starter.name, starter.start)
			return nil
		})
	}

	return g.Wait()
}

func (w *DispatchWorker) keepSubscribed(
	ctx context.Context,
	name string,
	start func(ctx context.Context) queue.Result,
) {
	subscribed := w.trySubscribe(ctx, name, start)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if subscribed && !w.consumer.Available() {
				w.logger.Warn("consumer connection lost", zap.String("consumer", name))
				subscribed = false
			}
			if !subscribed {
				subscribed = w.trySubscribe(ctx, name, start)
			}
		}
	}
}

func (w *DispatchWorker) trySubscribe(
	ctx context.Context,
	name string,
	start func(ctx context.Context) queue.Result,
) bool {
	result := start(ctx)
	if result.Flag {
		w.logger.Info("consumer subscribed", zap.String("consumer", name))
		return true
	}

	w.logger.Warn("consumer subscription failed",
		zap.String("consumer", name),
		zap.String("reason", result.Message),
		zap.Error(result.Err),
	)
	return false
}
