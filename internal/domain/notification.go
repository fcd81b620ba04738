package domain

import (
	"fmt"
	"strings"
	"time"
)

// Content limits (in characters).
const (
	MaxTitleLength   = 255
	MaxContentLength = 10000
)

// Notification is a stored platform notification. One row fans out to many
// users through UserNotification rows.
type Notification struct {
	ID         string    `gorm:"type:uuid;primaryKey"`
	NotiTypeID string    `gorm:"type:uuid;not null;column:noti_type_id"`
	Title      string    `gorm:"type:varchar(255);not null"`
	Content    string    `gorm:"type:text;not null"`
	CreatedAt  time.Time `gorm:"column:created_date"`
	IsPushed   bool      `gorm:"not null;default:false"`
	IsDeleted  bool      `gorm:"not null;default:false"`
}

func (n *Notification) Validate() error {
	if n == nil {
		return fmt.Errorf("%w: notification is required", ErrValidation)
	}
	if strings.TrimSpace(n.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrValidation)
	}
	if strings.TrimSpace(n.Content) == "" {
		return fmt.Errorf("%w: content is required", ErrValidation)
	}
	if strings.TrimSpace(n.NotiTypeID) == "" {
		return fmt.Errorf("%w: notification type id is required", ErrValidation)
	}

	if titleLen := len([]rune(n.Title)); titleLen > MaxTitleLength {
		return fmt.Errorf("%w: title exceeds %d characters (got %d)", ErrValidation, MaxTitleLength, titleLen)
	}
	if contentLen := len([]rune(n.Content)); contentLen > MaxContentLength {
		return fmt.Errorf("%w: content exceeds %d characters (got %d)", ErrValidation, MaxContentLength, contentLen)
	}

	return nil
}

// UserNotification is the per-recipient fan-out row for a notification.
// The composite key keeps re-pushes of the same notification idempotent.
type UserNotification struct {
	NotificationID string `gorm:"type:uuid;primaryKey"`
	UserID         string `gorm:"type:uuid;primaryKey"`
	IsRead         bool   `gorm:"not null;default:false"`
	CreatedAt      time.Time
}

// HealthBook tracks a pet's medical record and its next scheduled visit.
// The reminder scanner turns due visits into healthbook queue messages.
type HealthBook struct {
	ID            string `gorm:"type:uuid;primaryKey"`
	PetID         string `gorm:"type:uuid;not null"`
	PetName       string `gorm:"type:varchar(255);not null"`
	OwnerID       string `gorm:"type:uuid;not null"`
	NextVisitDate time.Time
	ReminderSent  bool `gorm:"not null;default:false"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
