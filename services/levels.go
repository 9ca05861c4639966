package services

// levelThresholds[n-1] is the XP required to hold level n. This is the single
// canonical table — the engine never derives levels from anywhere else.
var levelThresholds = []int64{0, 100, 250, 500, 1000, 2000, 3500, 5000, 7000, 10000}

const (
	maxTableLevel      = 10
	xpPerExtendedLevel = 1000 // levels past the table: level n needs n*1000 XP
)

// ResolveLevel maps accumulated XP to a level: the highest level whose
// threshold is <= xp. Pure and total; negative input clamps to level 1.
func ResolveLevel(xp int64) int {
	if xp < 0 {
		return 1
	}
	if extended := int(xp / xpPerExtendedLevel); extended > maxTableLevel {
		return extended
	}
	level := 1
	for i, threshold := range levelThresholds {
		if xp >= threshold {
			level = i + 1
		}
	}
	return level
}

// LevelThreshold returns the XP required to hold the given level.
func LevelThreshold(level int) int64 {
	if level <= 1 {
		return 0
	}
	if level <= maxTableLevel {
		return levelThresholds[level-1]
	}
	return int64(level) * xpPerExtendedLevel
}

// LevelUpBonus is the flat XP grant paid when a user reaches newLevel,
// logged as "level_up".
func LevelUpBonus(newLevel int) int64 {
	if newLevel < 1 {
		return 0
	}
	return int64(newLevel) * 10
}
