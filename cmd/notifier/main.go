package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/Group592024/petbooking-notifier/internal/config"
	"github.com/Group592024/petbooking-notifier/internal/handler"
	"github.com/Group592024/petbooking-notifier/internal/infra/postgresql"
	"github.com/Group592024/petbooking-notifier/internal/infra/postgresql/migrations"
	infraredis "github.com/Group592024/petbooking-notifier/internal/infra/redis"
	"github.com/Group592024/petbooking-notifier/internal/mailer"
	"github.com/Group592024/petbooking-notifier/internal/observability"
	"github.com/Group592024/petbooking-notifier/internal/queue"
	"github.com/Group592024/petbooking-notifier/internal/repository"
	"github.com/Group592024/petbooking-notifier/internal/service"
	"github.com/Group592024/petbooking-notifier/internal/transport"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := postgresql.NewPostgres(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("postgres initialization failed", zap.Error(err))
	}

	if err := migrations.Migrate(db); err != nil {
		logger.Fatal("database migrations failed", zap.Error(err))
	}

	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("postgres underlying db init failed", zap.Error(err))
	}
	defer sqlDB.Close()

	rdb, err := infraredis.NewRedis(cfg.RedisURL)
	if err != nil {
		logger.Fatal("redis initialization failed", zap.Error(err))
	}
	defer rdb.Close()

	limiter, err := infraredis.NewRedisRateLimiter(rdb, cfg.RateLimitPerSec)
	if err != nil {
		logger.Fatal("rate limiter initialization failed", zap.Error(err))
	}

	metrics := observability.NewMetrics()

	bindings := topologyBindings(cfg)
	brokerCfg := queue.BrokerConfig{
		URL:            cfg.RabbitMQURL,
		ConnectTimeout: cfg.ConnectTimeout(),
		Heartbeat:      cfg.Heartbeat(),
		Bindings:       bindings,
	}
	guardCfg := queue.GuardConfig{
		ReconnectDelay:   cfg.ReconnectDelay(),
		FailureThreshold: cfg.AllowedFailureCount,
		BreakDuration:    cfg.BreakDuration(),
	}

	pubGuard := queue.NewConnectionGuard(guardCfg)
	pubBroker, err := queue.NewBroker(brokerCfg, pubGuard, logger.Named("publisher"))
	if err != nil {
		logger.Fatal("publisher broker initialization failed", zap.Error(err))
	}
	defer pubBroker.Close() //nolint:errcheck

	consGuard := queue.NewConnectionGuard(guardCfg)
	consBroker, err := queue.NewBroker(brokerCfg, consGuard, logger.Named("consumer"))
	if err != nil {
		logger.Fatal("consumer broker initialization failed", zap.Error(err))
	}
	defer consBroker.Close() //nolint:errcheck

	var publisher queue.Publisher
	if outcome := pubBroker.Connect(ctx); outcome == queue.OutcomeOK {
		publisher, err = queue.NewRabbitPublisher(pubBroker, queue.PublisherConfig{
			Exchange:        cfg.NotificationExchange,
			PushRoutingKey:  cfg.PushRoutingKey,
			EmailRoutingKey: cfg.EmailRoutingKey,
			ChunkSize:       cfg.PublishChunkSize,
		}, limiter, logger, metrics)
		if err != nil {
			logger.Fatal("publisher initialization failed", zap.Error(err))
		}
	} else {
		logger.Warn("broker unreachable at startup; publishing disabled",
			zap.String("outcome", outcome.String()),
		)
		publisher = queue.NewNullPublisher()
	}

	reminderPublisher, err := queue.NewHealthbookPublisher(
		pubBroker,
		cfg.HealthbookExchange,
		cfg.HealthbookRoutingKey,
		logger,
		metrics,
	)
	if err != nil {
		logger.Fatal("reminder publisher initialization failed", zap.Error(err))
	}

	gatewayMailer, err := mailer.NewGatewayMailer(cfg.MailGatewayURL)
	if err != nil {
		logger.Fatal("mail gateway initialization failed", zap.Error(err))
	}

	notificationRepo := repository.NewGormNotificationRepo(db)
	healthBookRepo := repository.NewGormHealthBookRepo(db)

	consumer, err := queue.NewConsumer(consBroker, notificationRepo, gatewayMailer, queue.ConsumerConfig{
		PushQueue:            cfg.NotificationQueue,
		EmailQueue:           cfg.EmailQueue,
		HealthbookQueue:      cfg.HealthbookQueue,
		Prefetch:             cfg.ConsumerPrefetch,
		HealthbookNotiTypeID: cfg.NotiTypeID,
	}, logger, metrics)
	if err != nil {
		logger.Fatal("consumer initialization failed", zap.Error(err))
	}
	defer consumer.Close() //nolint:errcheck

	notifier, err := service.NewNotifierService(notificationRepo, publisher, logger)
	if err != nil {
		logger.Fatal("notifier service initialization failed", zap.Error(err))
	}

	worker, err := service.NewDispatchWorker(consumer, true, 0, logger)
	if err != nil {
		logger.Fatal("dispatch worker initialization failed", zap.Error(err))
	}

	scanner, err := service.NewReminderScanner(healthBookRepo, reminderPublisher, 0, 0, 0, logger, metrics)
	if err != nil {
		logger.Fatal("reminder scanner initialization failed", zap.Error(err))
	}

	app := fiber.New(fiber.Config{
		ErrorHandler:          transport.ErrorHandler(logger),
		DisableStartupMessage: true,
	})
	app.Use(metrics.HTTPMiddleware())
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))
	handler.RegisterHealthRoutes(app, sqlDB, rdb, pubBroker)
	if err := handler.RegisterNotifyRoutes(app, notifier); err != nil {
		logger.Fatal("route registration failed", zap.Error(err))
	}

	g, groupCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return worker.Start(groupCtx)
	})
	g.Go(func() error {
		return scanner.Start(groupCtx)
	})
	g.Go(func() error {
		return app.Listen(fmt.Sprintf(":%d", cfg.APIPort))
	})
	g.Go(func() error {
		sampleBreakerState(groupCtx, metrics, pubGuard, consGuard)
		return nil
	})
	g.Go(func() error {
		<-groupCtx.Done()
		return app.Shutdown()
	})

	logger.Info("petbooking-notifier started", zap.Int("port", cfg.APIPort))

	if err := g.Wait(); err != nil && groupCtx.Err() == nil {
		logger.Fatal("service terminated", zap.Error(err))
	}
	logger.Info("petbooking-notifier stopped")
}

func sampleBreakerState(ctx context.Context, metrics *observability.Metrics, pubGuard, consGuard *queue.ConnectionGuard) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			metrics.SetBreakerOpen("publisher", pubGuard.Open())
			metrics.SetBreakerOpen("consumer", consGuard.Open())
		}
	}
}

func topologyBindings(cfg *config.Config) []queue.Binding {
	return []queue.Binding{
		{Exchange: cfg.NotificationExchange, Queue: cfg.NotificationQueue, RoutingKey: cfg.PushRoutingKey},
		{Exchange: cfg.NotificationExchange, Queue: cfg.EmailQueue, RoutingKey: cfg.EmailRoutingKey},
		{Exchange: cfg.HealthbookExchange, Queue: cfg.HealthbookQueue, RoutingKey: cfg.HealthbookRoutingKey},
	}
}
