package migrations

import (
	"github.com/ksred/astrade-api/internal/trading"
	"gorm.io/gorm"
)

// AddOrderSubmissions creates the order audit table
func AddOrderSubmissions(db *gorm.DB) error {
	if err := db.AutoMigrate(trading.Models()...); err != nil {
		return err
	}

	// Per-user audit listing and idempotency expiry sweeps
	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_order_submissions_user_created_at
		 ON order_submissions(user_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_order_submissions_expires_at
		 ON order_submissions(expires_at)`,
	}

	for _, idx := range indexes {
		if err := db.Exec(idx).Error; err != nil {
			return err
		}
	}

	return nil
}
