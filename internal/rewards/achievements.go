package rewards

// Achievement is a badge with progress towards unlocking it
type Achievement struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Target      int     `json:"target"`
	Progress    float64 `json:"progress"`
	Unlocked    bool    `json:"unlocked"`
}

type achievementDef struct {
	id          string
	name        string
	description string
	target      int
	measure     func(progressInputs) (current, best int)
}

type progressInputs struct {
	daily       StreakState
	explorer    StreakState
	totalTrades int
}

var achievementCatalog = []achievementDef{
	{
		id:          "week_warrior",
		name:        "Week Warrior",
		description: "Claim the daily reward 7 days in a row",
		target:      7,
		measure:     func(in progressInputs) (int, int) { return in.daily.Current, in.daily.Longest },
	},
	{
		id:          "galaxy_master",
		name:        "Galaxy Master",
		description: "Explore the galaxy 30 days in a row",
		target:      30,
		measure:     func(in progressInputs) (int, int) { return in.explorer.Current, in.explorer.Longest },
	},
	{
		id:          "first_trade",
		name:        "First Trade",
		description: "Place your first order",
		target:      1,
		measure:     func(in progressInputs) (int, int) { return in.totalTrades, in.totalTrades },
	},
}

// evaluateAchievements computes every badge. A badge is unlocked once the best
// value reaches the target; otherwise progress tracks the current value.
func evaluateAchievements(in progressInputs, unlocked map[string]bool) []Achievement {
	out := make([]Achievement, 0, len(achievementCatalog))
	for _, def := range achievementCatalog {
		current, best := def.measure(in)
		a := Achievement{
			ID:          def.id,
			Name:        def.name,
			Description: def.description,
			Target:      def.target,
		}
		if unlocked[def.id] || best >= def.target {
			a.Unlocked = true
			a.Progress = 100
		} else {
			a.Progress = float64(current) / float64(def.target) * 100
			if a.Progress > 100 {
				a.Progress = 100
			}
		}
		out = append(out, a)
	}
	return out
}
