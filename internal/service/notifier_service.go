package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Group592024/petbooking-notifier/internal/domain"
	"github.com/Group592024/petbooking-notifier/internal/observability"
	"github.com/Group592024/petbooking-notifier/internal/queue"
	"github.com/Group592024/petbooking-notifier/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const maxReceivers = 10000

// SendRequest is one notification to deliver to a set of platform users.
type SendRequest struct {
	NotiTypeID  string
	Title       string
	Content     string
	ReceiverIDs []string
	WithEmail   bool
}

// NotifierService stores a notification and hands its receiver batch to the
// publisher. A failed publish is reported through the Result, never retried
// here: the stored row keeps IsPushed=false so the send can be replayed.
type NotifierService struct {
	notifications repository.NotificationRepository
	publisher     queue.Publisher
	logger        *zap.Logger
	now           func() time.Time
}

func NewNotifierService(
	notifications repository.NotificationRepository,
	publisher queue.Publisher,
	logger *zap.Logger,
) (*NotifierService, error) {
	if notifications == nil {
		return nil, fmt.Errorf("notification repository is required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &NotifierService{
		notifications: notifications,
		publisher:     publisher,
		logger:        logger,
		now:           time.Now,
	}, nil
}

// Send stores the notification and publishes it. The returned notification is
// always valid when err is nil; the Result says whether messaging succeeded.
func (s *NotifierService) Send(ctx context.Context, req SendRequest) (*domain.Notification, queue.Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	receivers, err := normalizeReceivers(req.ReceiverIDs)
	if err != nil {
		return nil, queue.Result{}, err
	}

	notification := &domain.Notification{
		ID:         uuid.NewString(),
		NotiTypeID: strings.TrimSpace(req.NotiTypeID),
		Title:      strings.TrimSpace(req.Title),
		Content:    strings.TrimSpace(req.Content),
		CreatedAt:  s.now().UTC(),
	}
	if err := s.notifications.Create(ctx, notification); err != nil {
		return nil, queue.Result{}, err
	}

	ctx = observability.WithNotificationID(ctx, notification.ID)
	result := s.publish(ctx, notification, receivers, req.WithEmail)
	if !result.Flag {
		observability.WithContextLogger(s.logger, ctx).Warn("notification stored but not published",
			zap.String("reason", result.Message),
			zap.Error(result.Err),
		)
	}

	return notification, result, nil
}

func (s *NotifierService) publish(
	ctx context.Context,
	notification *domain.Notification,
	receivers []queue.Receiver,
	withEmail bool,
) queue.Result {
	result := s.publishOnce(ctx, notification, receivers, withEmail)
	if result.Flag || result.Err != nil {
		return result
	}

	// Unavailable short-circuit: one guard-gated reconnect, then one retry.
	// A publish that actually hit the wire and failed is never retried here.
	if init := s.publisher.Initialize(ctx); !init.Flag {
		return result
	}
	return s.publishOnce(ctx, notification, receivers, withEmail)
}

func (s *NotifierService) publishOnce(
	ctx context.Context,
	notification *domain.Notification,
	receivers []queue.Receiver,
	withEmail bool,
) queue.Result {
	if withEmail {
		return s.publisher.PublishEmailAndPushBatch(ctx, queue.SendNotification{
			NotificationID: notification.ID,
			Title:          notification.Title,
			Content:        notification.Content,
			Receivers:      receivers,
		})
	}

	return s.publisher.PublishPushBatch(ctx, queue.PushNotification{
		NotificationID: notification.ID,
		Receivers:      receivers,
	})
}

func normalizeReceivers(ids []string) ([]queue.Receiver, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: at least one receiver is required", domain.ErrValidation)
	}
	if len(ids) > maxReceivers {
		return nil, fmt.Errorf("%w: receiver count exceeds %d", domain.ErrValidation, maxReceivers)
	}

	seen := make(map[string]struct{}, len(ids))
	receivers := make([]queue.Receiver, 0, len(ids))
	for _, id := range ids {
		trimmed := strings.TrimSpace(id)
		if trimmed == "" {
			return nil, fmt.Errorf("%w: receiver id is required", domain.ErrValidation)
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		receivers = append(receivers, queue.Receiver{UserID: trimmed})
	}

	return receivers, nil
}
