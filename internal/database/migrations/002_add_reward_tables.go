package migrations

import (
	"github.com/ksred/astrade-api/internal/rewards"
	"gorm.io/gorm"
)

// AddRewardTables creates the streak, claim, achievement and NFT tables
func AddRewardTables(db *gorm.DB) error {
	if err := db.AutoMigrate(rewards.Models()...); err != nil {
		return err
	}

	indexes := []string{
		// Claim history per user, newest first
		`CREATE INDEX IF NOT EXISTS idx_claimed_rewards_user_claimed_at
		 ON claimed_rewards(user_id, claimed_at)`,

		// NFT gallery listing
		`CREATE INDEX IF NOT EXISTS idx_user_nfts_user_minted_at
		 ON user_nfts(user_id, minted_at)`,

		// Active reward table lookups
		`CREATE INDEX IF NOT EXISTS idx_reward_configs_active_day
		 ON reward_configs(is_active, day_number)`,
	}

	for _, idx := range indexes {
		if err := db.Exec(idx).Error; err != nil {
			return err
		}
	}

	return nil
}
