package rewards

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// MaxRewardDay is the last slot of the weekly reward table
const MaxRewardDay = 7

// RewardConfig is the reward awarded on one day of a streak
type RewardConfig struct {
	Day      int    `yaml:"day" json:"day"`
	Amount   int    `yaml:"amount" json:"amount"`
	Currency string `yaml:"currency" json:"currency"`
	Type     string `yaml:"type" json:"type"`
	ImageURL string `yaml:"image_url,omitempty" json:"image_url,omitempty"`
}

// RewardTable holds days 1..7, index 0 is day 1
type RewardTable [MaxRewardDay]RewardConfig

// DefaultRewardTable is used when neither the database nor a file provides one
var DefaultRewardTable = RewardTable{
	{Day: 1, Amount: 50, Currency: "credits", Type: "credits"},
	{Day: 2, Amount: 75, Currency: "credits", Type: "credits"},
	{Day: 3, Amount: 100, Currency: "credits", Type: "mystery_nft"},
	{Day: 4, Amount: 125, Currency: "credits", Type: "credits"},
	{Day: 5, Amount: 150, Currency: "credits", Type: "credits"},
	{Day: 6, Amount: 200, Currency: "credits", Type: "credits"},
	{Day: 7, Amount: 500, Currency: "credits", Type: "premium_mystery_variant"},
}

// GalaxyExplorerReward is awarded for each recorded explorer day
var GalaxyExplorerReward = RewardConfig{Day: 0, Amount: 25, Currency: "credits", Type: "galaxy_credits"}

// Lookup returns the reward for a streak day, clamped to 1..7
func (t RewardTable) Lookup(day int) RewardConfig {
	if day < 1 {
		day = 1
	}
	if day > MaxRewardDay {
		day = MaxRewardDay
	}
	return t[day-1]
}

type rewardFile struct {
	Rewards []RewardConfig `yaml:"rewards"`
}

// LoadRewardFile reads a reward table from YAML. Days missing from the file keep
// their DefaultRewardTable values.
func LoadRewardFile(path string) (RewardTable, error) {
	table := DefaultRewardTable

	data, err := os.ReadFile(path)
	if err != nil {
		return table, fmt.Errorf("read reward file: %w", err)
	}

	var file rewardFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return table, fmt.Errorf("parse reward file: %w", err)
	}

	seen := make(map[int]bool)
	for _, r := range file.Rewards {
		if r.Day < 1 || r.Day > MaxRewardDay {
			return table, fmt.Errorf("reward file: day %d out of range 1..%d", r.Day, MaxRewardDay)
		}
		if seen[r.Day] {
			return table, fmt.Errorf("reward file: day %d defined twice", r.Day)
		}
		if r.Amount < 0 {
			return table, fmt.Errorf("reward file: day %d has negative amount", r.Day)
		}
		if r.Currency == "" {
			r.Currency = "credits"
		}
		seen[r.Day] = true
		table[r.Day-1] = r
	}
	return table, nil
}

// merge overlays active database rows onto a fallback table
func merge(fallback RewardTable, rows []RewardConfigRow) RewardTable {
	table := fallback
	for _, row := range rows {
		if !row.IsActive || row.DayNumber < 1 || row.DayNumber > MaxRewardDay {
			continue
		}
		currency := row.Currency
		if currency == "" {
			currency = "credits"
		}
		table[row.DayNumber-1] = RewardConfig{
			Day:      row.DayNumber,
			Amount:   row.Amount,
			Currency: currency,
			Type:     row.Type,
			ImageURL: row.ImageURL,
		}
	}
	return table
}
