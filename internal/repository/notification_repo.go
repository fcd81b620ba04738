package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Group592024/petbooking-notifier/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// NotificationRepository is the notification store the consumers fan out
// into. PushSingleNotification and CreateHealthBookNotification are
// idempotent per (notification, user): a requeued message may legitimately
// re-run receivers that already succeeded.
type NotificationRepository interface {
	Create(ctx context.Context, n *domain.Notification) error
	GetByID(ctx context.Context, id string) (*domain.Notification, error)
	PushSingleNotification(ctx context.Context, notificationID, userID string) error
	CreateHealthBookNotification(ctx context.Context, userID string, n *domain.Notification) error
}

type GormNotificationRepo struct {
	db  *gorm.DB
	now func() time.Time
}

var _ NotificationRepository = (*GormNotificationRepo)(nil)

func NewGormNotificationRepo(db *gorm.DB) *GormNotificationRepo {
	return &GormNotificationRepo{db: db, now: time.Now}
}

func (r *GormNotificationRepo) Create(ctx context.Context, n *domain.Notification) error {
	if err := n.Validate(); err != nil {
		return err
	}

	model := notificationModelFromDomain(n)
	if model.CreatedAt.IsZero() {
		model.CreatedAt = r.now().UTC()
	}

	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}

	*n = *notificationModelToDomain(model)
	return nil
}

func (r *GormNotificationRepo) GetByID(ctx context.Context, id string) (*domain.Notification, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: notification id is required", domain.ErrValidation)
	}

	var model NotificationModel
	err := r.db.WithContext(ctx).First(&model, "id = ? AND is_deleted = false", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return notificationModelToDomain(&model), nil
}

// PushSingleNotification records delivery of a notification to one user and
// marks the notification pushed. The fan-out insert is an upsert that ignores
// conflicts, so redelivered messages are safe.
func (r *GormNotificationRepo) PushSingleNotification(ctx context.Context, notificationID, userID string) error {
	if strings.TrimSpace(notificationID) == "" || strings.TrimSpace(userID) == "" {
		return fmt.Errorf("%w: notification id and user id are required", domain.ErrValidation)
	}

	row := UserNotificationModel{
		NotificationID: notificationID,
		UserID:         userID,
		CreatedAt:      r.now().UTC(),
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
			return fmt.Errorf("failed to record push for user %s: %w", userID, err)
		}

		result := tx.Model(&NotificationModel{}).
			Where("id = ? AND is_deleted = false", notificationID).
			Update("is_pushed", true)
		if result.Error != nil {
			return fmt.Errorf("failed to mark notification pushed: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("%w: notification %s", domain.ErrNotFound, notificationID)
		}
		return nil
	})
}

// CreateHealthBookNotification stores a reminder notification and its
// fan-out row for the pet owner in one transaction. The notification id is
// fixed by the caller, so a redelivered reminder upserts instead of
// duplicating.
func (r *GormNotificationRepo) CreateHealthBookNotification(ctx context.Context, userID string, n *domain.Notification) error {
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("%w: user id is required", domain.ErrValidation)
	}
	if err := n.Validate(); err != nil {
		return err
	}

	model := notificationModelFromDomain(n)
	if model.CreatedAt.IsZero() {
		model.CreatedAt = r.now().UTC()
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(model).Error; err != nil {
			return fmt.Errorf("failed to create healthbook notification: %w", err)
		}

		row := UserNotificationModel{
			NotificationID: model.ID,
			UserID:         userID,
			CreatedAt:      model.CreatedAt,
		}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
			return fmt.Errorf("failed to record healthbook push for user %s: %w", userID, err)
		}
		return nil
	})
}
