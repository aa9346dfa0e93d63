package progression

import (
	"fmt"
	"math"

	"github.com/vijayaragavanr18/Vervathon25/internal/domain"
)

// XPPerLevel is the fixed stride between levels.
const XPPerLevel = 100

// LevelProgress describes where an XP total sits within its level.
type LevelProgress struct {
	XP              int64 `json:"xp"`
	Level           int   `json:"level"`
	XPToNext        int64 `json:"xp_to_next"`
	ProgressPercent int   `json:"progress_percent"`
}

func checkXP(xp int64) error {
	if xp < 0 {
		return fmt.Errorf("%w: negative xp %d", domain.ErrInvalidState, xp)
	}
	return nil
}

// LevelForXP returns floor(xp/100) + 1.
func LevelForXP(xp int64) (int, error) {
	if err := checkXP(xp); err != nil {
		return 0, err
	}
	return int(xp/XPPerLevel) + 1, nil
}

// XPForLevel returns the cumulative XP at which level begins.
func XPForLevel(level int) int64 {
	if level <= 1 {
		return 0
	}
	return int64(level-1) * XPPerLevel
}

// XPToNextLevel returns XP remaining until the next level boundary.
func XPToNextLevel(xp int64) (int64, error) {
	level, err := LevelForXP(xp)
	if err != nil {
		return 0, err
	}
	return int64(level)*XPPerLevel - xp, nil
}

// LevelProgressPercent returns progress through the current level (0-99),
// rounded to the nearest integer.
func LevelProgressPercent(xp int64) (int, error) {
	level, err := LevelForXP(xp)
	if err != nil {
		return 0, err
	}
	within := xp - XPForLevel(level)
	return int(math.Round(float64(within) / XPPerLevel * 100)), nil
}

// DescribeLevel bundles the level calculations for one XP total.
func DescribeLevel(xp int64) (LevelProgress, error) {
	level, err := LevelForXP(xp)
	if err != nil {
		return LevelProgress{}, err
	}
	next, _ := XPToNextLevel(xp)
	pct, _ := LevelProgressPercent(xp)
	return LevelProgress{XP: xp, Level: level, XPToNext: next, ProgressPercent: pct}, nil
}

// levelOf is LevelForXP for totals the engine itself produced.
func levelOf(xp int64) int {
	if xp < 0 {
		return 1
	}
	return int(xp/XPPerLevel) + 1
}
