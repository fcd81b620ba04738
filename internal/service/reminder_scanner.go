package service

import (
	"context"
	"fmt"
	"time"

	"github.com/Group592024/petbooking-notifier/internal/observability"
	"github.com/Group592024/petbooking-notifier/internal/queue"
	"github.com/Group592024/petbooking-notifier/internal/repository"
	"go.uber.org/zap"
)

const (
	defaultReminderScanInterval = 15 * time.Minute
	defaultReminderScanLimit    = 100
	defaultReminderLead         = 24 * time.Hour
)

// ReminderScanner periodically publishes reminders for pets whose next
// clinic visit is coming up. Books stay unmarked when the publish fails, so
// the next tick picks them up again.
type ReminderScanner struct {
	healthbooks repository.HealthBookRepository
	publisher   queue.RemindersPublisher
	logger      *zap.Logger
	metrics     *observability.Metrics
	interval    time.Duration
	lead        time.Duration
	limit       int
	now         func() time.Time
}

func NewReminderScanner(
	healthbooks repository.HealthBookRepository,
	publisher queue.RemindersPublisher,
	interval time.Duration,
	lead time.Duration,
	limit int,
	logger *zap.Logger,
	metrics *observability.Metrics,
) (*ReminderScanner, error) {
	if healthbooks == nil {
		return nil, fmt.Errorf("health book repository is required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("reminders publisher is required")
	}
	if interval <= 0 {
		interval = defaultReminderScanInterval
	}
	if lead <= 0 {
		lead = defaultReminderLead
	}
	if limit <= 0 {
		limit = defaultReminderScanLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &ReminderScanner{
		healthbooks: healthbooks,
		publisher:   publisher,
		logger:      logger,
		metrics:     metrics,
		interval:    interval,
		lead:        lead,
		limit:       limit,
		now:         time.Now,
	}, nil
}

func (s *ReminderScanner) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	// Run an initial scan so already-due visits do not wait for the first
	// ticker edge.
	if err := s.scanDue(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("reminder scanner initial scan failed", zap.Error(err))
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.scanDue(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				s.logger.Error("reminder scanner scan failed", zap.Error(err))
			}
		}
	}
}

func (s *ReminderScanner) scanDue(ctx context.Context) error {
	dueBefore := s.now().Add(s.lead)
	books, err := s.healthbooks.GetDueReminders(ctx, dueBefore, s.limit)
	if err != nil {
		return fmt.Errorf("failed to fetch due reminders: %w", err)
	}
	if len(books) == 0 {
		return nil
	}

	reminders := make([]queue.HealthBookReminder, 0, len(books))
	ids := make([]string, 0, len(books))
	for _, book := range books {
		reminders = append(reminders, queue.HealthBookReminder{
			UserID:        book.OwnerID,
			PetName:       book.PetName,
			NextVisitDate: book.NextVisitDate,
		})
		ids = append(ids, book.ID)
	}

	result := s.publisher.PublishReminders(ctx, reminders)
	if !result.Flag {
		s.logger.Warn("reminder publish failed; will retry next scan",
			zap.Int("reminders", len(reminders)),
			zap.String("reason", result.Message),
			zap.Error(result.Err),
		)
		return nil
	}

	if err := s.healthbooks.MarkReminded(ctx, ids); err != nil {
		// Reminders were published but not marked; the next scan republishes
		// them, and the consumer's fixed notification ids absorb duplicates.
		return fmt.Errorf("failed to mark reminders sent: %w", err)
	}

	if s.metrics != nil {
		s.metrics.IncRemindersPublished(len(reminders))
	}
	s.logger.Info("reminders published", zap.Int("count", len(reminders)))
	return nil
}
