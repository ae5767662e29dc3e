package schedule

import (
	"errors"
	"fmt"
	"time"
)

const (
	// MaxGameNumber is the last game slot of a season (66 slots, 0-65).
	MaxGameNumber = 65
	// WeekLength is the number of days in a scoring week.
	WeekLength = 7
	// GamesPerWeek is the number of game slots inside one week.
	GamesPerWeek = 3

	// DateLayout is the calendar date format used for windows.
	DateLayout = "2006-01-02"
)

// ErrInvalidGameNumber is returned for game numbers outside 0-MaxGameNumber.
var ErrInvalidGameNumber = errors.New("invalid game number")

// slotWindows splits a week into a 2-day, 3-day and 2-day window, as
// (start, end) day offsets from the week start.
var slotWindows = [GamesPerWeek][2]int{
	{0, 1},
	{2, 4},
	{5, 6},
}

// DefaultAnchor is the first day of week 1 of the 2025-2026 season.
var DefaultAnchor = time.Date(2025, 10, 19, 0, 0, 0, 0, time.UTC)

// Window is the scoring date range of a single game slot.
type Window struct {
	GameNumber int
	WeekNumber int
	StartDate  time.Time
	EndDate    time.Time
}

// Calculator maps game numbers to week windows relative to a season anchor.
type Calculator struct {
	anchor time.Time
}

// NewCalculator returns a Calculator anchored at the calendar date of anchor.
func NewCalculator(anchor time.Time) *Calculator {
	return &Calculator{anchor: truncateDate(anchor)}
}

// Anchor returns the first day of week 1.
func (c *Calculator) Anchor() time.Time {
	return c.anchor
}

// Compute derives the week number and date window for a game number.
func (c *Calculator) Compute(gameNumber int) (Window, error) {
	if gameNumber < 0 || gameNumber > MaxGameNumber {
		return Window{}, fmt.Errorf("%w: %d (must be 0-%d)", ErrInvalidGameNumber, gameNumber, MaxGameNumber)
	}

	weekNumber := gameNumber/GamesPerWeek + 1
	offsets := slotWindows[gameNumber%GamesPerWeek]
	weekStart := c.anchor.AddDate(0, 0, (weekNumber-1)*WeekLength)

	return Window{
		GameNumber: gameNumber,
		WeekNumber: weekNumber,
		StartDate:  weekStart.AddDate(0, 0, offsets[0]),
		EndDate:    weekStart.AddDate(0, 0, offsets[1]),
	}, nil
}

// All returns the windows of every game slot in the season, in order.
func (c *Calculator) All() []Window {
	windows := make([]Window, 0, MaxGameNumber+1)
	for g := 0; g <= MaxGameNumber; g++ {
		w, _ := c.Compute(g)
		windows = append(windows, w)
	}
	return windows
}

func truncateDate(value time.Time) time.Time {
	return time.Date(value.Year(), value.Month(), value.Day(), 0, 0, 0, 0, time.UTC)
}
