package excel

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/derekprior/hoops/internal/config"
	"github.com/derekprior/hoops/internal/schedule"
)

const (
	MasterSheet = "Master Schedule"
	// CellDateLayout is how dates appear in workbook cells.
	CellDateLayout = "01/02/2006"

	maxSheetNameLen = 31
)

var (
	masterHeaders = []string{"Game", "Week", "Start", "End", "Team A", "Team B", "Notes"}
	teamHeaders   = []string{"Game", "Week", "Start", "End", "Opponent", "Notes"}
)

// MasterRow is one parsed row of the master sheet. Teams are display names.
type MasterRow struct {
	Row        int
	GameNumber int
	WeekNumber int
	StartDate  time.Time
	EndDate    time.Time
	TeamA      string
	TeamB      string
	Notes      string
	// Problem describes why the row could not be fully parsed.
	Problem string
}

// Generate creates a workbook with the master schedule and one sheet per
// team. teamNames maps team IDs to display names; unknown IDs are written
// as-is.
func Generate(cfg *config.Config, games []schedule.GameSlot, teamNames map[string]string) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", MasterSheet); err != nil {
		return nil, err
	}

	// Set default font for the workbook
	f.SetDefaultFont("Arial")

	rows := make([]MasterRow, 0, len(games))
	for _, g := range games {
		rows = append(rows, MasterRow{
			GameNumber: g.GameNumber,
			WeekNumber: g.WeekNumber,
			StartDate:  g.StartDate,
			EndDate:    g.EndDate,
			TeamA:      displayName(teamNames, g.TeamA),
			TeamB:      displayName(teamNames, g.TeamB),
			Notes:      g.Notes,
		})
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].GameNumber < rows[j].GameNumber })

	if err := writeMasterSheet(f, rows); err != nil {
		return nil, fmt.Errorf("writing master sheet: %w", err)
	}
	if err := writeTeamSheets(f, cfg, rows); err != nil {
		return nil, fmt.Errorf("writing team sheets: %w", err)
	}
	return f, nil
}

func displayName(names map[string]string, id string) string {
	if n, ok := names[id]; ok {
		return n
	}
	return id
}

func writeMasterSheet(f *excelize.File, rows []MasterRow) error {
	if _, err := f.NewSheet(MasterSheet); err != nil {
		return err
	}
	writeHeaders(f, MasterSheet, masterHeaders)

	cellStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Size: 16, Family: "Arial"},
	})
	teamCellStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Size: 16, Family: "Arial"},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})

	for i, r := range rows {
		row := i + 2
		f.SetCellValue(MasterSheet, cellRef(1, row), r.GameNumber)
		f.SetCellValue(MasterSheet, cellRef(2, row), r.WeekNumber)
		f.SetCellValue(MasterSheet, cellRef(3, row), r.StartDate.Format(CellDateLayout))
		f.SetCellValue(MasterSheet, cellRef(4, row), r.EndDate.Format(CellDateLayout))
		f.SetCellValue(MasterSheet, cellRef(5, row), r.TeamA)
		f.SetCellValue(MasterSheet, cellRef(6, row), r.TeamB)
		if r.Notes != "" {
			f.SetCellValue(MasterSheet, cellRef(7, row), r.Notes)
		}

		if cellStyle != 0 {
			for col := 1; col <= len(masterHeaders); col++ {
				style := cellStyle
				if col == 5 || col == 6 {
					style = teamCellStyle
				}
				f.SetCellStyle(MasterSheet, cellRef(col, row), cellRef(col, row), style)
			}
		}
	}

	// Set column widths (sized for Arial 16)
	widths := map[string]float64{"A": 10, "B": 10, "C": 18, "D": 18, "E": 28, "F": 28, "G": 36}
	for col, w := range widths {
		f.SetColWidth(MasterSheet, col, col, w)
	}

	// Conditional formatting: a team playing itself gets light red. The
	// range runs past the generated rows so hand-added games are covered.
	lastRow := len(rows) + 1 + schedule.MaxGameNumber + 1
	redFill, _ := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#FFC7CE"}},
		Font: &excelize.Font{Size: 16, Family: "Arial"},
	})
	f.SetConditionalFormat(MasterSheet, fmt.Sprintf("E2:F%d", lastRow), []excelize.ConditionalFormatOptions{
		{
			Type:     "formula",
			Criteria: `AND($E2<>"",$E2=$F2)`,
			Format:   &redFill,
		},
	})

	return nil
}

func writeTeamSheets(f *excelize.File, cfg *config.Config, rows []MasterRow) error {
	sheets := teamSheetNames(cfg.Teams)
	for i, team := range cfg.Teams {
		sheet := sheets[i]
		if _, err := f.NewSheet(sheet); err != nil {
			return fmt.Errorf("sheet for %s: %w", team.Name, err)
		}
		writeHeaders(f, sheet, teamHeaders)

		cellStyle, _ := f.NewStyle(&excelize.Style{
			Font: &excelize.Font{Size: 16, Family: "Arial"},
		})

		row := 2
		for _, r := range rows {
			var opponent string
			switch team.Name {
			case r.TeamA:
				opponent = r.TeamB
			case r.TeamB:
				opponent = r.TeamA
			default:
				continue
			}
			f.SetCellValue(sheet, cellRef(1, row), r.GameNumber)
			f.SetCellValue(sheet, cellRef(2, row), r.WeekNumber)
			f.SetCellValue(sheet, cellRef(3, row), r.StartDate.Format(CellDateLayout))
			f.SetCellValue(sheet, cellRef(4, row), r.EndDate.Format(CellDateLayout))
			f.SetCellValue(sheet, cellRef(5, row), opponent)
			if r.Notes != "" {
				f.SetCellValue(sheet, cellRef(6, row), r.Notes)
			}
			if cellStyle != 0 {
				for col := 1; col <= len(teamHeaders); col++ {
					f.SetCellStyle(sheet, cellRef(col, row), cellRef(col, row), cellStyle)
				}
			}
			row++
		}

		widths := map[string]float64{"A": 10, "B": 10, "C": 18, "D": 18, "E": 28, "F": 36}
		for col, w := range widths {
			f.SetColWidth(sheet, col, col, w)
		}
	}
	return nil
}

func writeHeaders(f *excelize.File, sheet string, headers []string) {
	for i, h := range headers {
		f.SetCellValue(sheet, cellRef(i+1, 1), h)
	}

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "#FFFFFF", Size: 16, Family: "Arial"},
		Fill:      excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#4472C4"}},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if headerStyle != 0 {
		for i := range headers {
			f.SetCellStyle(sheet, cellRef(i+1, 1), cellRef(i+1, 1), headerStyle)
		}
	}
}

// SheetName turns a team name into a valid worksheet name.
func SheetName(team string) string {
	name := strings.Map(func(r rune) rune {
		if strings.ContainsRune(`[]:*?/\`, r) {
			return '-'
		}
		return r
	}, team)
	return truncate(name, maxSheetNameLen)
}

// teamSheetNames returns a distinct sheet name per team, in team order.
// Sheet names compare case-insensitively, and the master sheet's name is
// taken, so clashes get a numeric suffix.
func teamSheetNames(teams []config.Team) []string {
	used := map[string]bool{strings.ToLower(MasterSheet): true}
	names := make([]string, len(teams))
	for i, t := range teams {
		base := SheetName(t.Name)
		name := base
		for n := 2; used[strings.ToLower(name)]; n++ {
			suffix := fmt.Sprintf(" (%d)", n)
			name = truncate(base, maxSheetNameLen-len(suffix)) + suffix
		}
		used[strings.ToLower(name)] = true
		names[i] = name
	}
	return names
}

func truncate(s string, n int) string {
	if runes := []rune(s); len(runes) > n {
		return string(runes[:n])
	}
	return s
}

// ReadMaster parses the master sheet. Rows with an empty Game cell are
// skipped; rows that can't be parsed are returned with Problem set.
func ReadMaster(f *excelize.File) ([]MasterRow, error) {
	rows, err := f.GetRows(MasterSheet)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", MasterSheet, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%s is empty", MasterSheet)
	}

	var out []MasterRow
	for i, row := range rows {
		if i == 0 {
			continue
		}
		cell := func(col int) string {
			if col < len(row) {
				return strings.TrimSpace(row[col])
			}
			return ""
		}
		if cell(0) == "" {
			continue
		}

		r := MasterRow{Row: i + 1, TeamA: cell(4), TeamB: cell(5), Notes: cell(6)}
		var problems []string
		if r.GameNumber, err = strconv.Atoi(cell(0)); err != nil {
			problems = append(problems, fmt.Sprintf("game number %q is not a number", cell(0)))
		}
		if w := cell(1); w != "" {
			if r.WeekNumber, err = strconv.Atoi(w); err != nil {
				problems = append(problems, fmt.Sprintf("week %q is not a number", w))
			}
		}
		if r.StartDate, err = parseCellDate(cell(2)); err != nil {
			problems = append(problems, fmt.Sprintf("start date %q: %v", cell(2), err))
		}
		if r.EndDate, err = parseCellDate(cell(3)); err != nil {
			problems = append(problems, fmt.Sprintf("end date %q: %v", cell(3), err))
		}
		r.Problem = strings.Join(problems, "; ")
		out = append(out, r)
	}
	return out, nil
}

// parseCellDate accepts the workbook layout and ISO dates.
func parseCellDate(s string) (time.Time, error) {
	if t, err := time.Parse(CellDateLayout, s); err == nil {
		return t, nil
	}
	return time.Parse(schedule.DateLayout, s)
}

// UpdateTeamSheets rebuilds every team sheet from the (possibly hand-edited)
// master sheet and saves the workbook in place.
func UpdateTeamSheets(path string, cfg *config.Config) error {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()

	rows, err := ReadMaster(f)
	if err != nil {
		return err
	}
	var parsed []MasterRow
	for _, r := range rows {
		if r.Problem == "" {
			parsed = append(parsed, r)
		}
	}
	sort.SliceStable(parsed, func(i, j int) bool { return parsed[i].GameNumber < parsed[j].GameNumber })

	for i, sheet := range teamSheetNames(cfg.Teams) {
		if idx, _ := f.GetSheetIndex(sheet); idx >= 0 {
			if err := f.DeleteSheet(sheet); err != nil {
				return fmt.Errorf("removing sheet for %s: %w", cfg.Teams[i].Name, err)
			}
		}
	}
	if err := writeTeamSheets(f, cfg, parsed); err != nil {
		return fmt.Errorf("writing team sheets: %w", err)
	}
	if idx, _ := f.GetSheetIndex(MasterSheet); idx >= 0 {
		f.SetActiveSheet(idx)
	}
	return f.Save()
}

func cellRef(col, row int) string {
	return fmt.Sprintf("%s%d", colLetter(col), row)
}

func colLetter(col int) string {
	result := ""
	for col > 0 {
		col--
		result = string(rune('A'+col%26)) + result
		col /= 26
	}
	return result
}
