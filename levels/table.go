// Package levels holds the fixed level table: how many units each level
// spawns and what clearing it pays.
package levels

const (
	// MaxLevel is the last playable level; clearing it completes a session.
	MaxLevel uint32 = 5
	// UnitsPerLevelStep is the unit count added per level.
	UnitsPerLevelStep uint64 = 11
	// RewardPerLevel is the token reward for each validated completion.
	RewardPerLevel uint64 = 100
	// LevelDuration is the time window for one level, in milliseconds.
	LevelDuration int64 = 60_000
)

// Valid reports whether level is playable.
func Valid(level uint32) bool {
	return level >= 1 && level <= MaxLevel
}

// ExpectedUnits returns the exact number of units a player must destroy to
// clear level, or 0 for a level outside 1..MaxLevel.
func ExpectedUnits(level uint32) uint64 {
	if !Valid(level) {
		return 0
	}
	return uint64(level) * UnitsPerLevelStep
}

// Reward returns the reward for clearing level, or 0 if level is invalid.
func Reward(level uint32) uint64 {
	if !Valid(level) {
		return 0
	}
	return RewardPerLevel
}

// TotalReward returns the reward for n cleared levels.
func TotalReward(n uint32) uint64 {
	return uint64(n) * RewardPerLevel
}
