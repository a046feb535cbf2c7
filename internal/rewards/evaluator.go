package rewards

import "time"

// StreakState is the stored state of one streak kind
type StreakState struct {
	Current      int
	Longest      int
	LastActivity string // DateLayout, empty when never active
}

// Transition is the outcome of evaluating an activity on a given day
type Transition struct {
	Accepted  bool
	Reset     bool
	Current   int
	Longest   int
	DayNumber int
	Date      string
}

// Evaluate applies one activity dated today to a streak.
// Same day: rejected, state unchanged. Previous day or never active: current+1.
// Any larger gap: current resets to 1. The same rule holds for every streak kind.
func Evaluate(state StreakState, today time.Time) Transition {
	date := today.UTC().Format(DateLayout)

	if state.LastActivity == date {
		return Transition{
			Accepted:  false,
			Current:   state.Current,
			Longest:   state.Longest,
			DayNumber: dayNumber(state.Current),
			Date:      date,
		}
	}

	t := Transition{Accepted: true, Date: date}
	yesterday := today.UTC().AddDate(0, 0, -1).Format(DateLayout)
	switch state.LastActivity {
	case "", yesterday:
		t.Current = state.Current + 1
	default:
		t.Current = 1
		t.Reset = true
	}

	t.Longest = state.Longest
	if t.Current > t.Longest {
		t.Longest = t.Current
	}
	t.DayNumber = dayNumber(t.Current)
	return t
}

// EffectiveCurrent is the streak as it stands today: a streak whose last
// activity is older than yesterday is already broken.
func EffectiveCurrent(state StreakState, today time.Time) int {
	switch state.LastActivity {
	case today.UTC().Format(DateLayout), today.UTC().AddDate(0, 0, -1).Format(DateLayout):
		return state.Current
	}
	return 0
}

// LevelFor returns the level reached with the given experience
func LevelFor(experience int) int {
	if experience < 0 {
		experience = 0
	}
	return experience/1000 + 1
}

// MintsNFT reports whether claiming this reward mints a collectible
func MintsNFT(reward RewardConfig) bool {
	switch reward.Day {
	case 2, 4, 6:
		return reward.ImageURL != ""
	}
	return false
}

// NFTRarity for a daily reward collectible
func NFTRarity(day int) string {
	if day == 6 {
		return "rare"
	}
	return "common"
}

// UntilNextDay returns the time left until the next UTC midnight
func UntilNextDay(now time.Time) time.Duration {
	now = now.UTC()
	next := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, time.UTC)
	return next.Sub(now)
}

func dayNumber(current int) int {
	if current < 1 {
		return 1
	}
	if current > MaxRewardDay {
		return MaxRewardDay
	}
	return current
}
