package rewards

import (
	"time"

	"github.com/shopspring/decimal"
)

// Streak kinds
const (
	StreakDailyLogin     = "daily_login"
	StreakGalaxyExplorer = "galaxy_explorer"
)

// Claimed reward types; one claim per type per user per day
const (
	RewardTypeDaily          = "daily_login"
	RewardTypeGalaxyExplorer = "galaxy_explorer"
)

// DateLayout is how streak and claim dates are stored (UTC calendar days)
const DateLayout = "2006-01-02"

type UserProfile struct {
	UserID      string          `gorm:"primaryKey;type:varchar(36)" json:"user_id"`
	Level       int             `gorm:"not null;default:1" json:"level"`
	Experience  int             `gorm:"not null;default:0" json:"experience"`
	TotalTrades int             `gorm:"not null;default:0" json:"total_trades"`
	TotalPnL    decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0" json:"total_pnl"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

type UserStreak struct {
	ID               uint      `gorm:"primaryKey" json:"-"`
	UserID           string    `gorm:"type:varchar(36);not null;uniqueIndex:idx_user_streaks_user_type" json:"user_id"`
	StreakType       string    `gorm:"type:varchar(32);not null;uniqueIndex:idx_user_streaks_user_type" json:"streak_type"`
	CurrentCount     int       `gorm:"not null;default:0" json:"current_streak"`
	LongestCount     int       `gorm:"not null;default:0" json:"longest_streak"`
	LastActivityDate string    `gorm:"type:varchar(10)" json:"last_activity_date,omitempty"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func (s UserStreak) state() StreakState {
	return StreakState{Current: s.CurrentCount, Longest: s.LongestCount, LastActivity: s.LastActivityDate}
}

func (s *UserStreak) apply(t Transition) {
	s.CurrentCount = t.Current
	s.LongestCount = t.Longest
	s.LastActivityDate = t.Date
}

type ClaimedReward struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	UserID      string    `gorm:"type:varchar(36);not null;uniqueIndex:idx_claimed_rewards_user_type_date" json:"user_id"`
	RewardType  string    `gorm:"type:varchar(32);not null;uniqueIndex:idx_claimed_rewards_user_type_date" json:"reward_type"`
	RewardDate  string    `gorm:"type:varchar(10);not null;uniqueIndex:idx_claimed_rewards_user_type_date" json:"reward_date"`
	DayNumber   int       `json:"day_number"`
	StreakCount int       `json:"streak_count"`
	Amount      int       `json:"amount"`
	Currency    string    `gorm:"type:varchar(32)" json:"currency"`
	Kind        string    `gorm:"type:varchar(64)" json:"reward_kind"`
	ClaimedAt   time.Time `json:"claimed_at"`
}

type UserAchievement struct {
	ID            uint      `gorm:"primaryKey" json:"-"`
	UserID        string    `gorm:"type:varchar(36);not null;uniqueIndex:idx_user_achievements_user_badge" json:"user_id"`
	AchievementID string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_user_achievements_user_badge" json:"achievement_id"`
	UnlockedAt    time.Time `json:"unlocked_at"`
}

type UserNFT struct {
	ID           string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	UserID       string    `gorm:"type:varchar(36);not null;index" json:"user_id"`
	Name         string    `json:"nft_name"`
	Description  string    `json:"nft_description"`
	ImageURL     string    `json:"image_url"`
	NFTType      string    `gorm:"type:varchar(32);index" json:"nft_type"`
	Rarity       string    `gorm:"type:varchar(16)" json:"rarity"`
	AcquiredFrom string    `json:"acquired_from"`
	Metadata     string    `gorm:"type:text" json:"-"`
	MintedAt     time.Time `json:"minted_at"`
}

// RewardConfigRow is one persisted day of the reward table
type RewardConfigRow struct {
	ID        uint   `gorm:"primaryKey"`
	DayNumber int    `gorm:"not null;index"`
	Amount    int    `gorm:"not null"`
	Currency  string `gorm:"type:varchar(32);not null;default:credits"`
	Type      string `gorm:"type:varchar(64);not null"`
	ImageURL  string
	IsActive  bool `gorm:"not null;default:true"`
	CreatedAt time.Time
}

func (RewardConfigRow) TableName() string { return "reward_configs" }

// Models lists every table owned by this package, for migrations
func Models() []interface{} {
	return []interface{}{
		&UserProfile{},
		&UserStreak{},
		&ClaimedReward{},
		&UserAchievement{},
		&UserNFT{},
		&RewardConfigRow{},
	}
}
