package validator

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/derekprior/hoops/internal/config"
	"github.com/derekprior/hoops/internal/excel"
	"github.com/derekprior/hoops/internal/schedule"
)

// Violation represents a rule or guideline violation found during validation.
type Violation struct {
	Row     int    // sheet row, 0 when the violation isn't tied to one row
	Type    string // "error" or "warning"
	Message string
}

// Validate reads a schedule workbook and checks its master sheet against the
// configured teams and the season's game windows.
func Validate(cfg *config.Config, path string) ([]Violation, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()

	rows, err := excel.ReadMaster(f)
	if err != nil {
		return nil, fmt.Errorf("reading games: %w", err)
	}
	return check(cfg, rows), nil
}

func check(cfg *config.Config, rows []excel.MasterRow) []Violation {
	var violations []Violation

	violations = append(violations, checkParseProblems(rows)...)
	games := parsedGames(rows)

	// Check rules
	violations = append(violations, checkGameNumbers(games)...)
	violations = append(violations, checkTeams(cfg, games)...)
	violations = append(violations, checkWindows(cfg, games)...)
	violations = append(violations, checkGameCompleteness(cfg, games)...)

	// Check guidelines
	violations = append(violations, checkRepeatPairings(games)...)
	violations = append(violations, checkBalance(cfg, games)...)

	return violations
}

func parsedGames(rows []excel.MasterRow) []excel.MasterRow {
	var games []excel.MasterRow
	for _, r := range rows {
		if r.Problem == "" {
			games = append(games, r)
		}
	}
	return games
}

func checkParseProblems(rows []excel.MasterRow) []Violation {
	var violations []Violation
	for _, r := range rows {
		if r.Problem != "" {
			violations = append(violations, Violation{
				Row:     r.Row,
				Type:    "error",
				Message: fmt.Sprintf("row %d: %s", r.Row, r.Problem),
			})
		}
	}
	return violations
}

func checkGameNumbers(games []excel.MasterRow) []Violation {
	var violations []Violation
	firstRow := make(map[int]int)
	for _, g := range games {
		if g.GameNumber < 0 || g.GameNumber > schedule.MaxGameNumber {
			violations = append(violations, Violation{
				Row:     g.Row,
				Type:    "error",
				Message: fmt.Sprintf("game %d is outside 0-%d", g.GameNumber, schedule.MaxGameNumber),
			})
			continue
		}
		if prev, ok := firstRow[g.GameNumber]; ok {
			violations = append(violations, Violation{
				Row:     g.Row,
				Type:    "error",
				Message: fmt.Sprintf("game %d already exists (row %d)", g.GameNumber, prev),
			})
			continue
		}
		firstRow[g.GameNumber] = g.Row
	}
	return violations
}

func checkTeams(cfg *config.Config, games []excel.MasterRow) []Violation {
	var violations []Violation
	for _, g := range games {
		for _, team := range []string{g.TeamA, g.TeamB} {
			if team == "" {
				violations = append(violations, Violation{
					Row:     g.Row,
					Type:    "error",
					Message: fmt.Sprintf("game %d is missing a team", g.GameNumber),
				})
				continue
			}
			if _, ok := cfg.LookupTeam(team); !ok {
				violations = append(violations, Violation{
					Row:     g.Row,
					Type:    "error",
					Message: fmt.Sprintf("game %d: unknown team %q", g.GameNumber, team),
				})
			}
		}
		if g.TeamA != "" && teamKey(cfg, g.TeamA) == teamKey(cfg, g.TeamB) {
			violations = append(violations, Violation{
				Row:     g.Row,
				Type:    "error",
				Message: fmt.Sprintf("game %d: %s cannot play itself", g.GameNumber, g.TeamA),
			})
		}
	}
	return violations
}

// checkWindows compares each game's week and dates with the computed window
// for its game number.
func checkWindows(cfg *config.Config, games []excel.MasterRow) []Violation {
	calc := schedule.NewCalculator(cfg.Season.Week1Start.Time)
	var violations []Violation
	for _, g := range games {
		w, err := calc.Compute(g.GameNumber)
		if err != nil {
			continue // reported by checkGameNumbers
		}
		var diffs []string
		if g.WeekNumber != 0 && g.WeekNumber != w.WeekNumber {
			diffs = append(diffs, fmt.Sprintf("week %d (want %d)", g.WeekNumber, w.WeekNumber))
		}
		if !g.StartDate.Equal(w.StartDate) {
			diffs = append(diffs, fmt.Sprintf("start %s (want %s)",
				g.StartDate.Format("01/02"), w.StartDate.Format("01/02")))
		}
		if !g.EndDate.Equal(w.EndDate) {
			diffs = append(diffs, fmt.Sprintf("end %s (want %s)",
				g.EndDate.Format("01/02"), w.EndDate.Format("01/02")))
		}
		if len(diffs) > 0 {
			violations = append(violations, Violation{
				Row:     g.Row,
				Type:    "error",
				Message: fmt.Sprintf("game %d window mismatch: %s", g.GameNumber, strings.Join(diffs, ", ")),
			})
		}
	}
	return violations
}

func checkGameCompleteness(cfg *config.Config, games []excel.MasterRow) []Violation {
	counts := teamCounts(cfg, games)

	var violations []Violation
	for _, team := range cfg.Teams {
		if counts[team.TeamID()] == 0 {
			violations = append(violations, Violation{
				Type:    "error",
				Message: fmt.Sprintf("%s has no games scheduled", team.Name),
			})
		}
	}
	return violations
}

// checkRepeatPairings warns when the same two teams meet more than once.
func checkRepeatPairings(games []excel.MasterRow) []Violation {
	type matchup struct{ a, b string }
	seen := make(map[matchup][]int)
	var order []matchup
	for _, g := range games {
		if g.TeamA == "" || g.TeamB == "" || g.TeamA == g.TeamB {
			continue
		}
		a, b := g.TeamA, g.TeamB
		if a > b {
			a, b = b, a
		}
		mk := matchup{a, b}
		if _, ok := seen[mk]; !ok {
			order = append(order, mk)
		}
		seen[mk] = append(seen[mk], g.GameNumber)
	}

	var violations []Violation
	for _, mk := range order {
		numbers := seen[mk]
		if len(numbers) < 2 {
			continue
		}
		sort.Ints(numbers)
		parts := make([]string, len(numbers))
		for i, n := range numbers {
			parts[i] = fmt.Sprintf("%d", n)
		}
		violations = append(violations, Violation{
			Type: "warning",
			Message: fmt.Sprintf("%s vs %s meet %d times (games %s)",
				mk.a, mk.b, len(numbers), strings.Join(parts, ", ")),
		})
	}
	return violations
}

// checkBalance warns when games per team differ by more than one.
func checkBalance(cfg *config.Config, games []excel.MasterRow) []Violation {
	if len(cfg.Teams) < 2 || len(games) == 0 {
		return nil
	}
	counts := teamCounts(cfg, games)

	maxGames, minGames := 0, math.MaxInt
	for _, team := range cfg.Teams {
		c := counts[team.TeamID()]
		if c > maxGames {
			maxGames = c
		}
		if c < minGames {
			minGames = c
		}
	}
	if maxGames-minGames > 1 {
		return []Violation{{
			Type:    "warning",
			Message: fmt.Sprintf("Game count imbalance: min %d, max %d across teams", minGames, maxGames),
		}}
	}
	return nil
}

// teamCounts counts games per configured team ID. Unknown teams are ignored.
func teamCounts(cfg *config.Config, games []excel.MasterRow) map[string]int {
	counts := make(map[string]int)
	for _, g := range games {
		for _, ref := range []string{g.TeamA, g.TeamB} {
			if t, ok := cfg.LookupTeam(ref); ok {
				counts[t.TeamID()]++
			}
		}
	}
	return counts
}

// teamKey resolves a team reference to its ID, falling back to the raw text.
func teamKey(cfg *config.Config, ref string) string {
	if t, ok := cfg.LookupTeam(ref); ok {
		return t.TeamID()
	}
	return ref
}
