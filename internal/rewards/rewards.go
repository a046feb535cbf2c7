package rewards

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/ksred/astrade-api/pkg/response"
)

const recentRewardsLimit = 10

// Service evaluates and persists streaks, rewards, achievements and collectibles
type Service struct {
	db       *Database
	locks    *userLocks
	fallback RewardTable
	now      func() time.Time
}

// NewService creates a rewards service. fallback is used for days the
// reward_configs table does not define.
func NewService(gormDB *gorm.DB, fallback RewardTable) *Service {
	return &Service{
		db:       NewDatabase(gormDB),
		locks:    newUserLocks(),
		fallback: fallback,
		now:      time.Now,
	}
}

// ClaimResult is the outcome of a daily claim
type ClaimResult struct {
	Success       bool          `json:"success"`
	Message       string        `json:"message"`
	DayNumber     int           `json:"day_number"`
	StreakCount   int           `json:"streak_count"`
	LongestStreak int           `json:"longest_streak"`
	StreakReset   bool          `json:"streak_reset"`
	Reward        *RewardConfig `json:"reward,omitempty"`
	NFT           *NFTView      `json:"nft,omitempty"`
	Level         int           `json:"level"`
	Experience    int           `json:"experience"`
}

// ActivityResult is the outcome of recording a galaxy explorer day
type ActivityResult struct {
	Success     bool          `json:"success"`
	Message     string        `json:"message"`
	StreakCount int           `json:"streak_count"`
	Reward      *RewardConfig `json:"reward,omitempty"`
	Level       int           `json:"level"`
	Experience  int           `json:"experience"`
}

type WeekReward struct {
	Day       int          `json:"day"`
	Reward    RewardConfig `json:"reward"`
	IsClaimed bool         `json:"is_claimed"`
	IsToday   bool         `json:"is_today"`
	IsLocked  bool         `json:"is_locked"`
}

type DailyStatus struct {
	CanClaim           bool         `json:"can_claim"`
	CurrentStreak      int          `json:"current_streak"`
	LongestStreak      int          `json:"longest_streak"`
	NextRewardIn       int64        `json:"next_reward_in"`
	TodayReward        RewardConfig `json:"today_reward"`
	WeekRewards        []WeekReward `json:"week_rewards"`
	GalaxyExplorerDays int          `json:"galaxy_explorer_days"`
}

type StreakInfo struct {
	CurrentStreak    int    `json:"current_streak"`
	LongestStreak    int    `json:"longest_streak"`
	LastActivityDate string `json:"last_activity_date,omitempty"`
	ActiveToday      bool   `json:"active_today"`
}

type Profile struct {
	UserID        string                `json:"user_id"`
	Level         int                   `json:"level"`
	Experience    int                   `json:"experience"`
	TotalTrades   int                   `json:"total_trades"`
	TotalPnL      string                `json:"total_pnl"`
	Achievements  []Achievement         `json:"achievements"`
	Streaks       map[string]StreakInfo `json:"streaks"`
	RecentRewards []ClaimedReward       `json:"recent_rewards"`
}

// NFTView is a collectible with decoded metadata
type NFTView struct {
	UserNFT
	Metadata map[string]interface{} `json:"metadata"`
}

type NFTStats struct {
	Total     int            `json:"total"`
	ByType    map[string]int `json:"by_type"`
	ByRarity  map[string]int `json:"by_rarity"`
	RecentNFT []NFTView      `json:"recent"`
}

// RewardTable resolves the active reward table: database rows over the fallback
func (s *Service) RewardTable(ctx context.Context) RewardTable {
	rows, err := s.db.ActiveRewardConfigs(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("failed to load reward configs, using fallback table")
		return s.fallback
	}
	return merge(s.fallback, rows)
}

// ClaimDaily claims today's login reward. A second claim on the same day fails
// without changing any state.
func (s *Service) ClaimDaily(ctx context.Context, userID string) (*ClaimResult, error) {
	logger := log.With().
		Str("operation", "claim_daily").
		Str("user_id", userID).
		Logger()

	unlock := s.locks.Lock(userID)
	defer unlock()

	table := s.RewardTable(ctx)
	now := s.now().UTC()
	var result *ClaimResult

	err := s.db.Transaction(ctx, func(tx *Database) error {
		profile, err := tx.GetOrCreateProfile(userID)
		if err != nil {
			return err
		}
		streak, err := tx.LockStreak(userID, StreakDailyLogin)
		if err != nil {
			return err
		}

		transition := Evaluate(streak.state(), now)
		claimed, err := tx.HasClaim(userID, RewardTypeDaily, transition.Date)
		if err != nil {
			return err
		}
		if !transition.Accepted || claimed {
			result = &ClaimResult{
				Success:       false,
				Message:       "daily reward already claimed today",
				StreakCount:   streak.CurrentCount,
				LongestStreak: streak.LongestCount,
				Level:         profile.Level,
				Experience:    profile.Experience,
			}
			return nil
		}

		reward := table.Lookup(transition.DayNumber)
		streak.apply(transition)
		if err := tx.SaveStreak(streak); err != nil {
			return err
		}

		profile.Experience += reward.Amount
		profile.Level = LevelFor(profile.Experience)
		if err := tx.SaveProfile(profile); err != nil {
			return err
		}

		if err := tx.CreateClaim(&ClaimedReward{
			UserID:      userID,
			RewardType:  RewardTypeDaily,
			RewardDate:  transition.Date,
			DayNumber:   transition.DayNumber,
			StreakCount: transition.Current,
			Amount:      reward.Amount,
			Currency:    reward.Currency,
			Kind:        reward.Type,
			ClaimedAt:   now,
		}); err != nil {
			return err
		}

		result = &ClaimResult{
			Success:       true,
			Message:       fmt.Sprintf("claimed day %d reward", transition.DayNumber),
			DayNumber:     transition.DayNumber,
			StreakCount:   transition.Current,
			LongestStreak: transition.Longest,
			StreakReset:   transition.Reset,
			Reward:        &reward,
			Level:         profile.Level,
			Experience:    profile.Experience,
		}

		if MintsNFT(reward) {
			nft, err := mintDailyNFT(tx, userID, reward, transition, now)
			if err != nil {
				return err
			}
			result.NFT = nft
		}

		return s.syncAchievements(tx, userID, profile, now)
	})
	if isDuplicate(err) {
		// another process won the race for today's claim
		logger.Warn().Msg("concurrent claim rejected by unique constraint")
		return &ClaimResult{Success: false, Message: "daily reward already claimed today"}, nil
	}
	if err != nil {
		logger.Error().Err(err).Msg("failed to claim daily reward")
		return nil, err
	}

	if result.Success {
		logger.Info().
			Int("day_number", result.DayNumber).
			Int("streak", result.StreakCount).
			Int("amount", result.Reward.Amount).
			Msg("daily reward claimed")
	}
	return result, nil
}

// RecordActivity records today's galaxy explorer activity and awards explorer credits
func (s *Service) RecordActivity(ctx context.Context, userID string) (*ActivityResult, error) {
	logger := log.With().
		Str("operation", "record_activity").
		Str("user_id", userID).
		Logger()

	unlock := s.locks.Lock(userID)
	defer unlock()

	now := s.now().UTC()
	var result *ActivityResult

	err := s.db.Transaction(ctx, func(tx *Database) error {
		profile, err := tx.GetOrCreateProfile(userID)
		if err != nil {
			return err
		}
		streak, err := tx.LockStreak(userID, StreakGalaxyExplorer)
		if err != nil {
			return err
		}

		transition := Evaluate(streak.state(), now)
		if !transition.Accepted {
			result = &ActivityResult{
				Success:     false,
				Message:     "activity already recorded today",
				StreakCount: streak.CurrentCount,
				Level:       profile.Level,
				Experience:  profile.Experience,
			}
			return nil
		}

		reward := GalaxyExplorerReward
		streak.apply(transition)
		if err := tx.SaveStreak(streak); err != nil {
			return err
		}

		profile.Experience += reward.Amount
		profile.Level = LevelFor(profile.Experience)
		if err := tx.SaveProfile(profile); err != nil {
			return err
		}

		if err := tx.CreateClaim(&ClaimedReward{
			UserID:      userID,
			RewardType:  RewardTypeGalaxyExplorer,
			RewardDate:  transition.Date,
			StreakCount: transition.Current,
			Amount:      reward.Amount,
			Currency:    reward.Currency,
			Kind:        reward.Type,
			ClaimedAt:   now,
		}); err != nil {
			return err
		}

		result = &ActivityResult{
			Success:     true,
			Message:     "activity recorded",
			StreakCount: transition.Current,
			Reward:      &reward,
			Level:       profile.Level,
			Experience:  profile.Experience,
		}
		return s.syncAchievements(tx, userID, profile, now)
	})
	if isDuplicate(err) {
		return &ActivityResult{Success: false, Message: "activity already recorded today"}, nil
	}
	if err != nil {
		logger.Error().Err(err).Msg("failed to record activity")
		return nil, err
	}
	return result, nil
}

// RecordTrade counts a placed order towards the user's profile
func (s *Service) RecordTrade(ctx context.Context, userID string) error {
	unlock := s.locks.Lock(userID)
	defer unlock()

	return s.db.Transaction(ctx, func(tx *Database) error {
		if err := tx.IncrementTrades(userID); err != nil {
			return err
		}
		profile, err := tx.GetOrCreateProfile(userID)
		if err != nil {
			return err
		}
		return s.syncAchievements(tx, userID, profile, s.now().UTC())
	})
}

// DailyStatus describes what the user can claim today and the week ahead
func (s *Service) DailyStatus(ctx context.Context, userID string) (*DailyStatus, error) {
	table := s.RewardTable(ctx)
	now := s.now().UTC()

	streaks, err := s.db.GetStreaks(userID)
	if err != nil {
		return nil, err
	}
	daily := streaks[StreakDailyLogin]
	explorer := streaks[StreakGalaxyExplorer]

	transition := Evaluate(daily.state(), now)
	status := &DailyStatus{
		CanClaim:           transition.Accepted,
		CurrentStreak:      EffectiveCurrent(daily.state(), now),
		LongestStreak:      daily.LongestCount,
		GalaxyExplorerDays: EffectiveCurrent(explorer.state(), now),
	}

	todayDay := transition.DayNumber
	claimedUpTo := todayDay
	if status.CanClaim {
		claimedUpTo = todayDay - 1
	} else {
		status.NextRewardIn = int64(UntilNextDay(now).Seconds())
	}
	status.TodayReward = table.Lookup(todayDay)

	status.WeekRewards = make([]WeekReward, 0, MaxRewardDay)
	for day := 1; day <= MaxRewardDay; day++ {
		status.WeekRewards = append(status.WeekRewards, WeekReward{
			Day:       day,
			Reward:    table.Lookup(day),
			IsClaimed: day <= claimedUpTo,
			IsToday:   day == todayDay,
			IsLocked:  day > todayDay,
		})
	}
	return status, nil
}

// StreakInfo returns both streak kinds as they stand today
func (s *Service) StreakInfo(ctx context.Context, userID string) (map[string]StreakInfo, error) {
	streaks, err := s.db.GetStreaks(userID)
	if err != nil {
		return nil, err
	}
	return streakInfos(streaks, s.now().UTC()), nil
}

// Achievements evaluates every badge and persists newly unlocked ones
func (s *Service) Achievements(ctx context.Context, userID string) ([]Achievement, error) {
	unlock := s.locks.Lock(userID)
	defer unlock()

	var achievements []Achievement
	err := s.db.Transaction(ctx, func(tx *Database) error {
		profile, err := tx.GetOrCreateProfile(userID)
		if err != nil {
			return err
		}
		if err := s.syncAchievements(tx, userID, profile, s.now().UTC()); err != nil {
			return err
		}
		achievements, err = s.loadAchievements(tx, userID, profile)
		return err
	})
	return achievements, err
}

// Profile returns the gamification profile, creating it on first access
func (s *Service) Profile(ctx context.Context, userID string) (*Profile, error) {
	unlock := s.locks.Lock(userID)
	defer unlock()

	profile, err := s.db.GetOrCreateProfile(userID)
	if err != nil {
		return nil, err
	}
	achievements, err := s.loadAchievements(s.db, userID, profile)
	if err != nil {
		return nil, err
	}
	streaks, err := s.db.GetStreaks(userID)
	if err != nil {
		return nil, err
	}
	recent, err := s.db.RecentClaims(userID, recentRewardsLimit)
	if err != nil {
		return nil, err
	}

	return &Profile{
		UserID:        profile.UserID,
		Level:         profile.Level,
		Experience:    profile.Experience,
		TotalTrades:   profile.TotalTrades,
		TotalPnL:      profile.TotalPnL.String(),
		Achievements:  achievements,
		Streaks:       streakInfos(streaks, s.now().UTC()),
		RecentRewards: recent,
	}, nil
}

func (s *Service) ListNFTs(ctx context.Context, userID, nftType, rarity string) ([]NFTView, error) {
	nfts, err := s.db.ListNFTs(userID, nftType, rarity)
	if err != nil {
		return nil, err
	}
	return toViews(nfts), nil
}

func (s *Service) GetNFT(ctx context.Context, userID, nftID string) (*NFTView, error) {
	nft, err := s.db.GetNFT(userID, nftID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("nft %s: %w", nftID, response.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	view := toView(*nft)
	return &view, nil
}

func (s *Service) NFTStats(ctx context.Context, userID string) (*NFTStats, error) {
	nfts, err := s.db.ListNFTs(userID, "", "")
	if err != nil {
		return nil, err
	}
	stats := &NFTStats{
		Total:    len(nfts),
		ByType:   make(map[string]int),
		ByRarity: make(map[string]int),
	}
	for _, n := range nfts {
		stats.ByType[n.NFTType]++
		stats.ByRarity[n.Rarity]++
	}
	recent := nfts
	if len(recent) > 5 {
		recent = recent[:5]
	}
	stats.RecentNFT = toViews(recent)
	return stats, nil
}

func (s *Service) syncAchievements(tx *Database, userID string, profile *UserProfile, at time.Time) error {
	unlocked, err := tx.UnlockedAchievements(userID)
	if err != nil {
		return err
	}
	streaks, err := tx.GetStreaks(userID)
	if err != nil {
		return err
	}
	inputs := progressInputs{
		daily:       streaks[StreakDailyLogin].state(),
		explorer:    streaks[StreakGalaxyExplorer].state(),
		totalTrades: profile.TotalTrades,
	}
	for _, a := range evaluateAchievements(inputs, unlocked) {
		if a.Unlocked && !unlocked[a.ID] {
			if err := tx.UnlockAchievement(userID, a.ID, at); err != nil {
				return err
			}
			log.Info().Str("user_id", userID).Str("achievement", a.ID).Msg("achievement unlocked")
		}
	}
	return nil
}

func (s *Service) loadAchievements(tx *Database, userID string, profile *UserProfile) ([]Achievement, error) {
	unlocked, err := tx.UnlockedAchievements(userID)
	if err != nil {
		return nil, err
	}
	streaks, err := tx.GetStreaks(userID)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	daily := streaks[StreakDailyLogin].state()
	explorer := streaks[StreakGalaxyExplorer].state()
	daily.Current = EffectiveCurrent(daily, now)
	explorer.Current = EffectiveCurrent(explorer, now)

	return evaluateAchievements(progressInputs{
		daily:       daily,
		explorer:    explorer,
		totalTrades: profile.TotalTrades,
	}, unlocked), nil
}

func mintDailyNFT(tx *Database, userID string, reward RewardConfig, t Transition, at time.Time) (*NFTView, error) {
	metadata := map[string]interface{}{
		"day_number":   t.DayNumber,
		"streak_count": t.Current,
		"reward_type":  reward.Type,
	}
	raw, err := json.Marshal(metadata)
	if err != nil {
		return nil, err
	}

	nft := UserNFT{
		ID:           uuid.New().String(),
		UserID:       userID,
		Name:         fmt.Sprintf("Day %d Card", t.DayNumber),
		Description:  fmt.Sprintf("Earned for a %d day login streak", t.DayNumber),
		ImageURL:     reward.ImageURL,
		NFTType:      "daily_reward",
		Rarity:       NFTRarity(t.DayNumber),
		AcquiredFrom: fmt.Sprintf("daily_reward_day_%d", t.DayNumber),
		Metadata:     string(raw),
		MintedAt:     at,
	}
	if err := tx.CreateNFT(&nft); err != nil {
		return nil, err
	}
	view := toView(nft)
	return &view, nil
}

func streakInfos(streaks map[string]UserStreak, now time.Time) map[string]StreakInfo {
	today := now.Format(DateLayout)
	out := make(map[string]StreakInfo, 2)
	for _, kind := range []string{StreakDailyLogin, StreakGalaxyExplorer} {
		s := streaks[kind]
		out[kind] = StreakInfo{
			CurrentStreak:    EffectiveCurrent(s.state(), now),
			LongestStreak:    s.LongestCount,
			LastActivityDate: s.LastActivityDate,
			ActiveToday:      s.LastActivityDate == today,
		}
	}
	return out
}

func toView(n UserNFT) NFTView {
	view := NFTView{UserNFT: n, Metadata: map[string]interface{}{}}
	if n.Metadata != "" {
		if err := json.Unmarshal([]byte(n.Metadata), &view.Metadata); err != nil {
			log.Warn().Err(err).Str("nft_id", n.ID).Msg("invalid nft metadata")
		}
	}
	return view
}

func toViews(nfts []UserNFT) []NFTView {
	views := make([]NFTView, 0, len(nfts))
	for _, n := range nfts {
		views = append(views, toView(n))
	}
	return views
}
