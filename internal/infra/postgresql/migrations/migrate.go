package migrations

import (
	"github.com/Group592024/petbooking-notifier/internal/repository"
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

func Migrate(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		{
			ID: "000001_create_notifications",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&repository.NotificationModel{}); err != nil {
					return err
				}
				return tx.Exec(
					`CREATE INDEX IF NOT EXISTS idx_notifications_created_date ON notifications (created_date) WHERE is_deleted = false`,
				).Error
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&repository.NotificationModel{})
			},
		},
		{
			ID: "000002_create_user_notifications",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&repository.UserNotificationModel{}); err != nil {
					return err
				}
				return tx.Exec(
					`CREATE INDEX IF NOT EXISTS idx_user_notifications_user_id ON user_notifications (user_id)`,
				).Error
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&repository.UserNotificationModel{})
			},
		},
		{
			ID: "000003_create_health_books",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&repository.HealthBookModel{}); err != nil {
					return err
				}
				return tx.Exec(
					`CREATE INDEX IF NOT EXISTS idx_health_books_due ON health_books (next_visit_date) WHERE reminder_sent = false`,
				).Error
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&repository.HealthBookModel{})
			},
		},
	})

	return m.Migrate()
}
