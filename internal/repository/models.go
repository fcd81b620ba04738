package repository

import (
	"time"

	"github.com/Group592024/petbooking-notifier/internal/domain"
)

// NotificationModel is the persistence model for the notifications table.
type NotificationModel struct {
	ID         string    `gorm:"type:uuid;primaryKey"`
	NotiTypeID string    `gorm:"type:uuid;not null;column:noti_type_id"`
	Title      string    `gorm:"type:varchar(255);not null"`
	Content    string    `gorm:"type:text;not null"`
	CreatedAt  time.Time `gorm:"column:created_date"`
	IsPushed   bool      `gorm:"not null;default:false"`
	IsDeleted  bool      `gorm:"not null;default:false"`
}

func (NotificationModel) TableName() string {
	return "notifications"
}

// UserNotificationModel is the persistence model for the per-recipient
// fan-out rows. The composite primary key makes re-pushing the same
// notification to the same user a no-op.
type UserNotificationModel struct {
	NotificationID string `gorm:"type:uuid;primaryKey"`
	UserID         string `gorm:"type:uuid;primaryKey"`
	IsRead         bool   `gorm:"not null;default:false"`
	CreatedAt      time.Time
}

func (UserNotificationModel) TableName() string {
	return "user_notifications"
}

// HealthBookModel is the persistence model for pet health books.
type HealthBookModel struct {
	ID            string `gorm:"type:uuid;primaryKey"`
	PetID         string `gorm:"type:uuid;not null"`
	PetName       string `gorm:"type:varchar(255);not null"`
	OwnerID       string `gorm:"type:uuid;not null"`
	NextVisitDate time.Time
	ReminderSent  bool `gorm:"not null;default:false"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (HealthBookModel) TableName() string {
	return "health_books"
}

func notificationModelFromDomain(n *domain.Notification) *NotificationModel {
	if n == nil {
		return nil
	}

	return &NotificationModel{
		ID:         n.ID,
		NotiTypeID: n.NotiTypeID,
		Title:      n.Title,
		Content:    n.Content,
		CreatedAt:  n.CreatedAt,
		IsPushed:   n.IsPushed,
		IsDeleted:  n.IsDeleted,
	}
}

func notificationModelToDomain(m *NotificationModel) *domain.Notification {
	if m == nil {
		return nil
	}

	return &domain.Notification{
		ID:         m.ID,
		NotiTypeID: m.NotiTypeID,
		Title:      m.Title,
		Content:    m.Content,
		CreatedAt:  m.CreatedAt,
		IsPushed:   m.IsPushed,
		IsDeleted:  m.IsDeleted,
	}
}

func healthBookModelToDomain(m *HealthBookModel) *domain.HealthBook {
	if m == nil {
		return nil
	}

	return &domain.HealthBook{
		ID:            m.ID,
		PetID:         m.PetID,
		PetName:       m.PetName,
		OwnerID:       m.OwnerID,
		NextVisitDate: m.NextVisitDate,
		ReminderSent:  m.ReminderSent,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}
