package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/Group592024/petbooking-notifier/internal/domain"
	"gorm.io/gorm"
)

// HealthBookRepository feeds the reminder scanner with pets whose next visit
// is coming up.
type HealthBookRepository interface {
	GetDueReminders(ctx context.Context, dueBefore time.Time, limit int) ([]domain.HealthBook, error)
	MarkReminded(ctx context.Context, ids []string) error
}

type GormHealthBookRepo struct {
	db *gorm.DB
}

var _ HealthBookRepository = (*GormHealthBookRepo)(nil)

func NewGormHealthBookRepo(db *gorm.DB) *GormHealthBookRepo {
	return &GormHealthBookRepo{db: db}
}

func (r *GormHealthBookRepo) GetDueReminders(ctx context.Context, dueBefore time.Time, limit int) ([]domain.HealthBook, error) {
	if limit <= 0 {
		limit = 100
	}

	var models []HealthBookModel
	err := r.db.WithContext(ctx).
		Where("reminder_sent = false AND next_visit_date <= ?", dueBefore).
		Order("next_visit_date").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load due health book reminders: %w", err)
	}

	books := make([]domain.HealthBook, 0, len(models))
	for i := range models {
		books = append(books, *healthBookModelToDomain(&models[i]))
	}
	return books, nil
}

func (r *GormHealthBookRepo) MarkReminded(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	err := r.db.WithContext(ctx).
		Model(&HealthBookModel{}).
		Where("id IN ?", ids).
		Update("reminder_sent", true).Error
	if err != nil {
		return fmt.Errorf("failed to mark reminders sent: %w", err)
	}
	return nil
}
