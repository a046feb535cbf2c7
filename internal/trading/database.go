package trading

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

func (d *Database) CreateSubmission(ctx context.Context, sub *OrderSubmission) error {
	return d.db.WithContext(ctx).Create(sub).Error
}

// UpdateSubmission writes every column of sub, including a cleared key
func (d *Database) UpdateSubmission(ctx context.Context, sub *OrderSubmission) error {
	return d.db.WithContext(ctx).Save(sub).Error
}

// GetByIdempotencyKey returns nil when no submission carries the key
func (d *Database) GetByIdempotencyKey(ctx context.Context, userID, key string) (*OrderSubmission, error) {
	var sub OrderSubmission
	err := d.db.WithContext(ctx).
		Where("idempotency_key = ? AND user_id = ?", key, userID).
		First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (d *Database) ListSubmissions(ctx context.Context, userID string, limit int) ([]OrderSubmission, error) {
	var subs []OrderSubmission
	err := d.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&subs).Error
	return subs, err
}

// ReleaseKey frees the idempotency key held by one submission
func (d *Database) ReleaseKey(ctx context.Context, id uint) error {
	return d.db.WithContext(ctx).
		Model(&OrderSubmission{}).
		Where("id = ?", id).
		Update("idempotency_key", nil).Error
}

// ReleaseExpiredKeys frees every key whose replay window ended before now
func (d *Database) ReleaseExpiredKeys(ctx context.Context, now time.Time) (int64, error) {
	result := d.db.WithContext(ctx).
		Model(&OrderSubmission{}).
		Where("idempotency_key IS NOT NULL AND expires_at <= ?", now).
		Update("idempotency_key", nil)
	return result.RowsAffected, result.Error
}
