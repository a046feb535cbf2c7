package rewards

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ksred/astrade-api/pkg/response"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatal(err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := db.AutoMigrate(Models()...); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// clock is a settable time source
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(days int) {
	c.mu.Lock()
	c.now = c.now.AddDate(0, 0, days)
	c.mu.Unlock()
}

func newTestService(t *testing.T, table RewardTable) (*Service, *clock) {
	t.Helper()
	svc := NewService(newTestDB(t), table)
	clk := &clock{now: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)}
	svc.now = clk.Now
	return svc, clk
}

func TestClaimDaily_Sequence(t *testing.T) {
	svc, clk := newTestService(t, DefaultRewardTable)
	ctx := context.Background()
	user := uuid.NewString()

	first, err := svc.ClaimDaily(ctx, user)
	if err != nil {
		t.Fatal(err)
	}
	if !first.Success || first.DayNumber != 1 || first.Reward.Amount != 50 || first.Experience != 50 {
		t.Fatalf("first claim = %+v", first)
	}

	again, err := svc.ClaimDaily(ctx, user)
	if err != nil {
		t.Fatal(err)
	}
	if again.Success {
		t.Fatal("second claim on the same day should fail")
	}
	if again.StreakCount != 1 || again.Experience != 50 {
		t.Errorf("rejected claim changed state: %+v", again)
	}

	clk.Advance(1)
	second, err := svc.ClaimDaily(ctx, user)
	if err != nil {
		t.Fatal(err)
	}
	if !second.Success || second.DayNumber != 2 || second.StreakCount != 2 || second.Experience != 125 {
		t.Fatalf("day 2 claim = %+v", second)
	}

	clk.Advance(3)
	reset, err := svc.ClaimDaily(ctx, user)
	if err != nil {
		t.Fatal(err)
	}
	if !reset.Success || !reset.StreakReset || reset.DayNumber != 1 || reset.LongestStreak != 2 {
		t.Fatalf("claim after gap = %+v", reset)
	}
}

func TestClaimDaily_LevelUp(t *testing.T) {
	table := DefaultRewardTable
	table[0].Amount = 1200
	svc, _ := newTestService(t, table)

	result, err := svc.ClaimDaily(context.Background(), uuid.NewString())
	if err != nil {
		t.Fatal(err)
	}
	if result.Level != 2 {
		t.Errorf("level = %d, want 2", result.Level)
	}
}

func TestClaimDaily_MintsNFT(t *testing.T) {
	table := DefaultRewardTable
	table[1].ImageURL = "https://cdn.example/day2.png"
	svc, clk := newTestService(t, table)
	ctx := context.Background()
	user := uuid.NewString()

	first, err := svc.ClaimDaily(ctx, user)
	if err != nil {
		t.Fatal(err)
	}
	if first.NFT != nil {
		t.Fatal("day 1 should not mint")
	}

	clk.Advance(1)
	second, err := svc.ClaimDaily(ctx, user)
	if err != nil {
		t.Fatal(err)
	}
	if second.NFT == nil {
		t.Fatal("day 2 with image should mint")
	}
	nft := second.NFT
	if nft.Rarity != "common" || nft.NFTType != "daily_reward" || nft.AcquiredFrom != "daily_reward_day_2" {
		t.Errorf("nft = %+v", nft)
	}
	if nft.Metadata["day_number"] != float64(2) {
		t.Errorf("metadata = %v", nft.Metadata)
	}

	listed, err := svc.ListNFTs(ctx, user, "daily_reward", "")
	if err != nil || len(listed) != 1 {
		t.Fatalf("list = %v, %v", listed, err)
	}
	got, err := svc.GetNFT(ctx, user, nft.ID)
	if err != nil || got.Name != nft.Name {
		t.Fatalf("get = %+v, %v", got, err)
	}

	if _, err := svc.GetNFT(ctx, uuid.NewString(), nft.ID); !errors.Is(err, response.ErrNotFound) {
		t.Errorf("other user's nft: got %v", err)
	}

	stats, err := svc.NFTStats(ctx, user)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Total != 1 || stats.ByRarity["common"] != 1 || len(stats.RecentNFT) != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestClaimDaily_ConcurrentSingleWinner(t *testing.T) {
	svc, _ := newTestService(t, DefaultRewardTable)
	user := uuid.NewString()

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := svc.ClaimDaily(context.Background(), user)
			if err != nil {
				t.Error(err)
				return
			}
			if result.Success {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	if wins.Load() != 1 {
		t.Fatalf("expected exactly one successful claim, got %d", wins.Load())
	}
	profile, err := svc.Profile(context.Background(), user)
	if err != nil {
		t.Fatal(err)
	}
	if profile.Experience != 50 || len(profile.RecentRewards) != 1 {
		t.Errorf("profile = %+v", profile)
	}
}

func TestDailyStatus(t *testing.T) {
	svc, clk := newTestService(t, DefaultRewardTable)
	ctx := context.Background()
	user := uuid.NewString()

	status, err := svc.DailyStatus(ctx, user)
	if err != nil {
		t.Fatal(err)
	}
	if !status.CanClaim || status.CurrentStreak != 0 || status.TodayReward.Day != 1 || len(status.WeekRewards) != 7 {
		t.Fatalf("fresh status = %+v", status)
	}
	if status.WeekRewards[0].IsClaimed || !status.WeekRewards[0].IsToday || !status.WeekRewards[1].IsLocked {
		t.Errorf("fresh week = %+v", status.WeekRewards[:2])
	}

	if _, err := svc.ClaimDaily(ctx, user); err != nil {
		t.Fatal(err)
	}
	status, err = svc.DailyStatus(ctx, user)
	if err != nil {
		t.Fatal(err)
	}
	if status.CanClaim || status.CurrentStreak != 1 {
		t.Fatalf("claimed status = %+v", status)
	}
	if status.NextRewardIn != int64(15*time.Hour/time.Second) {
		t.Errorf("next_reward_in = %d", status.NextRewardIn)
	}
	if !status.WeekRewards[0].IsClaimed || !status.WeekRewards[0].IsToday {
		t.Errorf("day 1 = %+v", status.WeekRewards[0])
	}

	clk.Advance(1)
	status, err = svc.DailyStatus(ctx, user)
	if err != nil {
		t.Fatal(err)
	}
	if !status.CanClaim || status.TodayReward.Day != 2 {
		t.Fatalf("next day status = %+v", status)
	}
	if !status.WeekRewards[0].IsClaimed || status.WeekRewards[1].IsClaimed || !status.WeekRewards[1].IsToday {
		t.Errorf("next day week = %+v", status.WeekRewards[:2])
	}
}

func TestRecordActivity(t *testing.T) {
	svc, clk := newTestService(t, DefaultRewardTable)
	ctx := context.Background()
	user := uuid.NewString()

	first, err := svc.RecordActivity(ctx, user)
	if err != nil {
		t.Fatal(err)
	}
	if !first.Success || first.Reward.Amount != 25 || first.Reward.Type != "galaxy_credits" {
		t.Fatalf("first = %+v", first)
	}

	dup, err := svc.RecordActivity(ctx, user)
	if err != nil {
		t.Fatal(err)
	}
	if dup.Success {
		t.Error("duplicate activity should be rejected")
	}

	clk.Advance(1)
	next, err := svc.RecordActivity(ctx, user)
	if err != nil {
		t.Fatal(err)
	}
	if next.StreakCount != 2 || next.Experience != 50 {
		t.Errorf("next = %+v", next)
	}

	info, err := svc.StreakInfo(ctx, user)
	if err != nil {
		t.Fatal(err)
	}
	if info[StreakGalaxyExplorer].CurrentStreak != 2 || !info[StreakGalaxyExplorer].ActiveToday {
		t.Errorf("explorer = %+v", info[StreakGalaxyExplorer])
	}
	if info[StreakDailyLogin].CurrentStreak != 0 {
		t.Errorf("daily = %+v", info[StreakDailyLogin])
	}
}

func TestRecordTradeUnlocksFirstTrade(t *testing.T) {
	svc, _ := newTestService(t, DefaultRewardTable)
	ctx := context.Background()
	user := uuid.NewString()

	if err := svc.RecordTrade(ctx, user); err != nil {
		t.Fatal(err)
	}
	achievements, err := svc.Achievements(ctx, user)
	if err != nil {
		t.Fatal(err)
	}
	for _, a := range achievements {
		if a.ID == "first_trade" && !a.Unlocked {
			t.Error("first_trade should be unlocked")
		}
	}

	profile, err := svc.Profile(ctx, user)
	if err != nil {
		t.Fatal(err)
	}
	if profile.TotalTrades != 1 || profile.TotalPnL != "0" {
		t.Errorf("profile = %+v", profile)
	}
}

func TestRewardTable_DatabaseOverridesFallback(t *testing.T) {
	svc, _ := newTestService(t, DefaultRewardTable)
	row := RewardConfigRow{DayNumber: 1, Amount: 70, Currency: "credits", Type: "credits", IsActive: true}
	if err := svc.db.db.Create(&row).Error; err != nil {
		t.Fatal(err)
	}

	result, err := svc.ClaimDaily(context.Background(), uuid.NewString())
	if err != nil {
		t.Fatal(err)
	}
	if result.Reward.Amount != 70 {
		t.Errorf("amount = %d, want 70", result.Reward.Amount)
	}
}

func TestProfile_ConcurrentWithClaimOnFreshUser(t *testing.T) {
	svc, _ := newTestService(t, DefaultRewardTable)
	user := uuid.NewString()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var err error
			if i%2 == 0 {
				_, err = svc.Profile(context.Background(), user)
			} else {
				_, err = svc.ClaimDaily(context.Background(), user)
			}
			if err != nil {
				t.Error(err)
			}
		}(i)
	}
	wg.Wait()

	profile, err := svc.Profile(context.Background(), user)
	if err != nil {
		t.Fatal(err)
	}
	if profile.Level < 1 || profile.Experience != 50 {
		t.Errorf("profile = %+v", profile)
	}
}

func TestGetOrCreateProfile_LosingInsertKeepsExistingRow(t *testing.T) {
	svc, _ := newTestService(t, DefaultRewardTable)
	user := uuid.NewString()
	if err := svc.db.db.Create(&UserProfile{UserID: user, Level: 3, Experience: 120}).Error; err != nil {
		t.Fatal(err)
	}

	// the insert a racing first access would issue
	if err := svc.db.insertProfile(user); err != nil {
		t.Fatalf("conflicting insert should be a no-op, got %v", err)
	}
	profile, err := svc.db.GetOrCreateProfile(user)
	if err != nil {
		t.Fatal(err)
	}
	if profile.Level != 3 || profile.Experience != 120 {
		t.Errorf("existing profile overwritten: %+v", profile)
	}
}
