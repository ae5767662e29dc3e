package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/derekprior/hoops/internal/config"
	"github.com/derekprior/hoops/internal/excel"
	"github.com/derekprior/hoops/internal/manager"
	"github.com/derekprior/hoops/internal/schedule"
	"github.com/derekprior/hoops/internal/store"
	"github.com/derekprior/hoops/internal/validator"
)

func newScheduleCmd(configFile *string) *cobra.Command {
	scheduleCmd := &cobra.Command{
		Use:   "schedule",
		Short: "Compute game windows and generate, edit and validate schedules",
	}

	windowCmd := &cobra.Command{
		Use:          "window <game-number>",
		Short:        "Show the date window for a game number",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("game number must be an integer: %q", args[0])
			}
			return runWindow(*configFile, n)
		},
	}

	windowsCmd := &cobra.Command{
		Use:          "windows",
		Short:        "List the date windows for every game number",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWindows(*configFile)
		},
	}

	var genOpts generateOptions
	generateCmd := &cobra.Command{
		Use:          "generate",
		Short:        "Fill every open game slot with shuffled team pairings",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("seed") {
				genOpts.seed = &genOpts.seedValue
			}
			return runGenerate(cmd.Context(), *configFile, genOpts)
		},
	}
	generateCmd.Flags().Int64Var(&genOpts.seedValue, "seed", 0, "Random seed for a reproducible shuffle")
	generateCmd.Flags().StringVar(&genOpts.policy, "policy", "", "Override on_insufficient_pairs (truncate, error, allow-repeat)")
	generateCmd.Flags().BoolVar(&genOpts.dryRun, "dry-run", false, "Generate without reading or writing the database")
	generateCmd.Flags().StringVarP(&genOpts.output, "output", "o", "", "Also write the schedule to an Excel file")

	var addOpts manager.GameInput
	addCmd := &cobra.Command{
		Use:          "add",
		Short:        "Add a single game",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdd(cmd.Context(), *configFile, addOpts)
		},
	}
	addCmd.Flags().IntVar(&addOpts.GameNumber, "game", 0, "Game number (0-65)")
	addCmd.Flags().StringVar(&addOpts.TeamA, "team-a", "", "First team (name or id)")
	addCmd.Flags().StringVar(&addOpts.TeamB, "team-b", "", "Second team (name or id)")
	addCmd.Flags().StringVar(&addOpts.Notes, "notes", "", "Optional notes")
	addCmd.MarkFlagRequired("game")
	addCmd.MarkFlagRequired("team-a")
	addCmd.MarkFlagRequired("team-b")

	var listWeek int
	listCmd := &cobra.Command{
		Use:          "list",
		Short:        "List stored games by week",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd.Context(), *configFile, listWeek)
		},
	}
	listCmd.Flags().IntVar(&listWeek, "week", 0, "Only show this week")

	deleteCmd := &cobra.Command{
		Use:          "delete <game-number>",
		Short:        "Delete a stored game",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("game number must be an integer: %q", args[0])
			}
			return runDelete(cmd.Context(), *configFile, n)
		},
	}

	var exportOutput string
	exportCmd := &cobra.Command{
		Use:          "export",
		Short:        "Write the stored schedule to an Excel file",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd.Context(), *configFile, exportOutput)
		},
	}
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "schedule.xlsx", "Output Excel file path")

	validateCmd := &cobra.Command{
		Use:          "validate <schedule.xlsx>",
		Short:        "Validate a schedule workbook against the game windows and teams",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(*configFile, args[0])
		},
	}

	scheduleCmd.AddCommand(windowCmd, windowsCmd, generateCmd, addCmd, listCmd, deleteCmd, exportCmd, validateCmd)
	return scheduleCmd
}

type generateOptions struct {
	seedValue int64
	seed      *int64
	policy    string
	dryRun    bool
	output    string
}

// calculatorFor uses the configured week 1 start when a config is available.
func calculatorFor(configFlag string) (*schedule.Calculator, error) {
	if _, err := resolveConfigPath(configFlag); err != nil {
		if configFlag != "" {
			return nil, err
		}
		return schedule.NewCalculator(schedule.DefaultAnchor), nil
	}
	cfg, err := loadConfig(configFlag)
	if err != nil {
		return nil, err
	}
	return schedule.NewCalculator(cfg.Season.Week1Start.Time), nil
}

func runWindow(configFlag string, gameNumber int) error {
	calc, err := calculatorFor(configFlag)
	if err != nil {
		return err
	}
	w, err := calc.Compute(gameNumber)
	if err != nil {
		return err
	}
	fmt.Printf("Game %d: week %d, %s to %s\n", w.GameNumber, w.WeekNumber,
		w.StartDate.Format(schedule.DateLayout), w.EndDate.Format(schedule.DateLayout))
	return nil
}

func runWindows(configFlag string) error {
	calc, err := calculatorFor(configFlag)
	if err != nil {
		return err
	}
	fmt.Printf("  %4s %4s  %-10s  %-10s\n", "Game", "Week", "Start", "End")
	for _, w := range calc.All() {
		fmt.Printf("  %4d %4d  %s  %s\n", w.GameNumber, w.WeekNumber,
			w.StartDate.Format(schedule.DateLayout), w.EndDate.Format(schedule.DateLayout))
	}
	return nil
}

// openManager opens the configured store and builds a manager on it. The
// caller closes the store.
func openManager(ctx context.Context, cfg *config.Config) (*manager.Manager, *store.Store, error) {
	st, err := store.Open(cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	m, err := manager.New(ctx, cfg, st, nil)
	if err != nil {
		st.Close()
		return nil, nil, err
	}
	return m, st, nil
}

func runGenerate(ctx context.Context, configFlag string, opts generateOptions) error {
	cfg, err := loadConfig(configFlag)
	if err != nil {
		return err
	}
	if opts.policy != "" {
		p, err := schedule.ParsePolicy(opts.policy)
		if err != nil {
			return err
		}
		cfg.Schedule.OnInsufficientPairs = string(p)
	}
	if opts.seed == nil {
		opts.seed = cfg.Schedule.Seed
	}

	if opts.dryRun {
		return runDryRun(cfg, opts)
	}

	m, st, err := openManager(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	fmt.Printf("Scheduling %d teams into open game slots 0-%d (policy: %s)...\n",
		len(cfg.Teams), cfg.MaxGameNumber(), m.Policy())

	res, genErr := m.BulkGenerate(ctx, opts.seed)
	if res == nil {
		return genErr
	}
	printGenerateResult(res.Result, genErr)
	if genErr != nil {
		return genErr
	}
	fmt.Printf("✓ %d games saved to the %s season\n", len(res.Inserted), m.Season().Name)

	games, err := m.Games(ctx)
	if err != nil {
		return err
	}
	slots := gameSlots(games)
	printTeamMetrics(cfg, slots)

	if opts.output != "" {
		return writeWorkbook(cfg, slots, opts.output)
	}
	return nil
}

// runDryRun generates against an empty season without touching the database.
func runDryRun(cfg *config.Config, opts generateOptions) error {
	policy, err := schedule.ParsePolicy(cfg.Schedule.OnInsufficientPairs)
	if err != nil {
		return err
	}
	seed := time.Now().UnixNano()
	if opts.seed != nil {
		seed = *opts.seed
	}
	ceiling := cfg.MaxGameNumber()

	fmt.Printf("Dry run: scheduling %d teams into game slots 0-%d (policy: %s)...\n",
		len(cfg.Teams), ceiling, policy)

	res, genErr := schedule.Generate(cfg.TeamIDs(), nil, schedule.Options{
		MaxGameNumber: &ceiling,
		Policy:        policy,
		Source:        schedule.NewSeededSource(seed),
		Calculator:    schedule.NewCalculator(cfg.Season.Week1Start.Time),
	})
	if res == nil {
		return genErr
	}
	printGenerateResult(res, genErr)
	printTeamMetrics(cfg, res.Games)

	if opts.output != "" {
		if err := writeWorkbook(cfg, res.Games, opts.output); err != nil {
			return err
		}
	}
	return genErr
}

func printGenerateResult(res *schedule.Result, genErr error) {
	if genErr != nil {
		fmt.Fprintf(os.Stderr, "⚠ %s\n", genErr)
	} else {
		fmt.Printf("✓ %d games generated in %d round(s) of pairings\n", len(res.Games), res.Rounds)
	}

	if len(res.Warnings) > 0 {
		fmt.Printf("\nWarnings (%d):\n", len(res.Warnings))
		for _, w := range res.Warnings {
			fmt.Printf("  ⚠ %s\n", w)
		}
	}
}

func printTeamMetrics(cfg *config.Config, slots []schedule.GameSlot) {
	counts := make(map[string]int)
	for _, s := range slots {
		counts[s.TeamA]++
		counts[s.TeamB]++
	}

	fmt.Println("\nPer Team Metrics:")
	fmt.Printf("  %-28s %6s\n", "Team", "Games")
	for _, team := range cfg.Teams {
		fmt.Printf("  %-28s %6d\n", team.Name, counts[team.TeamID()])
	}
}

func writeWorkbook(cfg *config.Config, slots []schedule.GameSlot, path string) error {
	f, err := excel.Generate(cfg, slots, cfg.TeamNames())
	if err != nil {
		return fmt.Errorf("generating Excel: %w", err)
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("saving file: %w", err)
	}
	fmt.Printf("\n✓ Schedule saved to %s\n", path)
	return nil
}

func gameSlots(games []store.Game) []schedule.GameSlot {
	slots := make([]schedule.GameSlot, 0, len(games))
	for _, g := range games {
		slots = append(slots, g.GameSlot)
	}
	return slots
}

func runAdd(ctx context.Context, configFlag string, in manager.GameInput) error {
	cfg, err := loadConfig(configFlag)
	if err != nil {
		return err
	}
	m, st, err := openManager(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	g, err := m.CreateGame(ctx, in)
	if err != nil {
		return err
	}
	names := cfg.TeamNames()
	fmt.Printf("✓ Game %d added: %s vs %s, week %d (%s to %s)\n",
		g.GameNumber, names[g.TeamA], names[g.TeamB], g.WeekNumber,
		g.StartDate.Format(schedule.DateLayout), g.EndDate.Format(schedule.DateLayout))
	return nil
}

func runList(ctx context.Context, configFlag string, week int) error {
	cfg, err := loadConfig(configFlag)
	if err != nil {
		return err
	}
	m, st, err := openManager(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	weeks, err := m.GamesByWeek(ctx)
	if err != nil {
		return err
	}

	names := cfg.TeamNames()
	shown := 0
	for _, w := range weeks {
		if week != 0 && w.Number != week {
			continue
		}
		fmt.Printf("Week %d\n", w.Number)
		for _, g := range w.Games {
			fmt.Printf("  #%-3d %s to %s  %s vs %s", g.GameNumber,
				g.StartDate.Format(schedule.DateLayout), g.EndDate.Format(schedule.DateLayout),
				nameOr(names, g.TeamA), nameOr(names, g.TeamB))
			if g.Notes != "" {
				fmt.Printf("  (%s)", g.Notes)
			}
			fmt.Println()
			shown++
		}
	}
	if shown == 0 {
		fmt.Println("No games scheduled.")
	}
	return nil
}

func nameOr(names map[string]string, id string) string {
	if n, ok := names[id]; ok {
		return n
	}
	return id
}

func runDelete(ctx context.Context, configFlag string, gameNumber int) error {
	cfg, err := loadConfig(configFlag)
	if err != nil {
		return err
	}
	m, st, err := openManager(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := m.DeleteGameNumber(ctx, gameNumber); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("game %d is not scheduled", gameNumber)
		}
		return err
	}
	fmt.Printf("✓ Game %d deleted\n", gameNumber)
	return nil
}

func runExport(ctx context.Context, configFlag, outputPath string) error {
	cfg, err := loadConfig(configFlag)
	if err != nil {
		return err
	}
	m, st, err := openManager(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	games, err := m.Games(ctx)
	if err != nil {
		return err
	}
	return writeWorkbook(cfg, gameSlots(games), outputPath)
}

func runValidate(configFlag, schedulePath string) error {
	cfg, err := loadConfig(configFlag)
	if err != nil {
		return err
	}

	violations, err := validator.Validate(cfg, schedulePath)
	if err != nil {
		return fmt.Errorf("validating: %w", err)
	}

	failures := 0
	warnings := 0
	for _, v := range violations {
		switch v.Type {
		case "error":
			failures++
			fmt.Printf("✗ Rule violation: %s\n", v.Message)
		case "warning":
			warnings++
			fmt.Printf("⚠ Guideline violation: %s\n", v.Message)
		}
	}

	fmt.Printf("\nValidation complete: %d rule violations, %d guideline violations\n", failures, warnings)

	// Regenerate team sheets from master schedule
	if err := excel.UpdateTeamSheets(schedulePath, cfg); err != nil {
		return fmt.Errorf("updating team sheets: %w", err)
	}
	fmt.Printf("✓ Team sheets updated in %s\n", schedulePath)

	if failures > 0 {
		return fmt.Errorf("%d rule violations found", failures)
	}
	return nil
}
