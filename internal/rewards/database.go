package rewards

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

// Transaction runs fn against a transaction-scoped Database
func (d *Database) Transaction(ctx context.Context, fn func(tx *Database) error) error {
	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Database{db: tx})
	})
}

// GetOrCreateProfile returns the user's profile, creating it on first access
func (d *Database) GetOrCreateProfile(userID string) (*UserProfile, error) {
	var profile UserProfile
	err := d.db.Where("user_id = ?", userID).First(&profile).Error
	if err == nil {
		return &profile, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	// another first access may insert between the read and the write
	if err := d.insertProfile(userID); err != nil {
		return nil, err
	}
	if err := d.db.Where("user_id = ?", userID).First(&profile).Error; err != nil {
		return nil, err
	}
	return &profile, nil
}

func (d *Database) insertProfile(userID string) error {
	return d.db.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&UserProfile{UserID: userID, Level: 1}).Error
}

func (d *Database) SaveProfile(profile *UserProfile) error {
	return d.db.Save(profile).Error
}

// LockStreak loads (or creates) a streak row and holds a row lock on it for the
// rest of the transaction. SQLite ignores the locking clause.
func (d *Database) LockStreak(userID, streakType string) (*UserStreak, error) {
	var streak UserStreak
	err := d.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ? AND streak_type = ?", userID, streakType).
		First(&streak).Error
	if err == nil {
		return &streak, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	streak = UserStreak{UserID: userID, StreakType: streakType}
	if err := d.db.Create(&streak).Error; err != nil {
		return nil, err
	}
	return &streak, nil
}

func (d *Database) SaveStreak(streak *UserStreak) error {
	return d.db.Save(streak).Error
}

// GetStreaks returns every streak of a user keyed by type
func (d *Database) GetStreaks(userID string) (map[string]UserStreak, error) {
	var streaks []UserStreak
	if err := d.db.Where("user_id = ?", userID).Find(&streaks).Error; err != nil {
		return nil, err
	}
	out := make(map[string]UserStreak, len(streaks))
	for _, s := range streaks {
		out[s.StreakType] = s
	}
	return out, nil
}

func (d *Database) HasClaim(userID, rewardType, date string) (bool, error) {
	var count int64
	err := d.db.Model(&ClaimedReward{}).
		Where("user_id = ? AND reward_type = ? AND reward_date = ?", userID, rewardType, date).
		Count(&count).Error
	return count > 0, err
}

func (d *Database) CreateClaim(claim *ClaimedReward) error {
	return d.db.Create(claim).Error
}

func (d *Database) RecentClaims(userID string, limit int) ([]ClaimedReward, error) {
	var claims []ClaimedReward
	err := d.db.Where("user_id = ?", userID).
		Order("claimed_at DESC").Order("id DESC").
		Limit(limit).
		Find(&claims).Error
	return claims, err
}

func (d *Database) UnlockedAchievements(userID string) (map[string]bool, error) {
	var rows []UserAchievement
	if err := d.db.Where("user_id = ?", userID).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]bool, len(rows))
	for _, r := range rows {
		out[r.AchievementID] = true
	}
	return out, nil
}

// UnlockAchievement records a badge; unlocking twice is a no-op
func (d *Database) UnlockAchievement(userID, achievementID string, at time.Time) error {
	return d.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&UserAchievement{
		UserID:        userID,
		AchievementID: achievementID,
		UnlockedAt:    at,
	}).Error
}

func (d *Database) CreateNFT(nft *UserNFT) error {
	return d.db.Create(nft).Error
}

func (d *Database) ListNFTs(userID, nftType, rarity string) ([]UserNFT, error) {
	query := d.db.Where("user_id = ?", userID)
	if nftType != "" {
		query = query.Where("nft_type = ?", nftType)
	}
	if rarity != "" {
		query = query.Where("rarity = ?", rarity)
	}
	var nfts []UserNFT
	err := query.Order("minted_at DESC").Find(&nfts).Error
	return nfts, err
}

func (d *Database) GetNFT(userID, nftID string) (*UserNFT, error) {
	var nft UserNFT
	if err := d.db.Where("user_id = ? AND id = ?", userID, nftID).First(&nft).Error; err != nil {
		return nil, err
	}
	return &nft, nil
}

func (d *Database) ActiveRewardConfigs(ctx context.Context) ([]RewardConfigRow, error) {
	var rows []RewardConfigRow
	err := d.db.WithContext(ctx).
		Where("is_active = ? AND day_number BETWEEN ? AND ?", true, 1, MaxRewardDay).
		Order("day_number").
		Find(&rows).Error
	return rows, err
}

func (d *Database) IncrementTrades(userID string) error {
	if _, err := d.GetOrCreateProfile(userID); err != nil {
		return err
	}
	return d.db.Model(&UserProfile{}).
		Where("user_id = ?", userID).
		UpdateColumn("total_trades", gorm.Expr("total_trades + ?", 1)).Error
}

// isDuplicate reports a unique-constraint violation regardless of driver
func isDuplicate(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "duplicate key value")
}
