package migrations

import (
	"github.com/ksred/astrade-api/internal/users"
	"gorm.io/gorm"
)

// AddUserTables creates users and their exchange credentials
func AddUserTables(db *gorm.DB) error {
	return db.AutoMigrate(users.Models()...)
}
