package manager

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/derekprior/hoops/internal/cache"
	"github.com/derekprior/hoops/internal/config"
	"github.com/derekprior/hoops/internal/schedule"
	"github.com/derekprior/hoops/internal/store"
)

// ErrUnknownTeam is returned when a game references a team that isn't
// configured.
var ErrUnknownTeam = errors.New("unknown team")

// Store is the persistence the manager needs. *store.Store satisfies it.
type Store interface {
	EnsureSeason(ctx context.Context, name string) (store.Season, error)
	SyncTeams(ctx context.Context, teams []store.Team) error
	Teams(ctx context.Context) ([]store.Team, error)
	Games(ctx context.Context, seasonID uuid.UUID) ([]store.Game, error)
	InsertGames(ctx context.Context, seasonID uuid.UUID, slots []schedule.GameSlot) ([]store.Game, error)
	DeleteGame(ctx context.Context, id uuid.UUID) error
}

// GameInput is a manually entered game. Teams may be given by ID or name.
type GameInput struct {
	GameNumber int
	TeamA      string
	TeamB      string
	Notes      string
}

// GenerateResult is a generation pass together with the rows it stored.
type GenerateResult struct {
	*schedule.Result
	Inserted []store.Game
}

// Week groups a week's games.
type Week struct {
	Number int
	Games  []store.Game
}

const teamsKey = "teams"

// Manager runs the schedule workflow for one season: read the games already
// stored, generate or validate new ones, persist them.
type Manager struct {
	store  Store
	cfg    *config.Config
	calc   *schedule.Calculator
	policy schedule.Policy
	season store.Season

	teams *cache.Cache[string, []store.Team]
	games *cache.Cache[uuid.UUID, []store.Game]

	// writeMu serializes read-existing-then-insert sequences in this process.
	// The unique index on (season_id, game_number) covers other processes.
	writeMu sync.Mutex
}

// New ensures the configured season exists, syncs the configured teams and
// returns a ready Manager. A nil clock uses the system time.
func New(ctx context.Context, cfg *config.Config, st Store, clock cache.Clock) (*Manager, error) {
	policy, err := schedule.ParsePolicy(cfg.Schedule.OnInsufficientPairs)
	if err != nil {
		return nil, err
	}

	season, err := st.EnsureSeason(ctx, cfg.Season.Name)
	if err != nil {
		return nil, fmt.Errorf("ensuring season: %w", err)
	}

	teams := make([]store.Team, 0, len(cfg.Teams))
	for _, t := range cfg.Teams {
		teams = append(teams, store.Team{ID: t.TeamID(), Name: t.Name})
	}
	if err := st.SyncTeams(ctx, teams); err != nil {
		return nil, fmt.Errorf("syncing teams: %w", err)
	}

	ttl := cfg.Server.CacheTTL
	return &Manager{
		store:  st,
		cfg:    cfg,
		calc:   schedule.NewCalculator(cfg.Season.Week1Start.Time),
		policy: policy,
		season: season,
		teams:  cache.New[string, []store.Team](ttl, clock),
		games:  cache.New[uuid.UUID, []store.Game](ttl, clock),
	}, nil
}

func (m *Manager) Calculator() *schedule.Calculator {
	return m.calc
}

func (m *Manager) Season() store.Season {
	return m.season
}

func (m *Manager) Policy() schedule.Policy {
	return m.policy
}

// RegisterCaches hands the manager's caches to a sweeper.
func (m *Manager) RegisterCaches(s *cache.Sweeper) error {
	if err := s.Register("teams", m.teams); err != nil {
		return err
	}
	return s.Register("games", m.games)
}

// Teams returns the stored teams, ordered by name.
func (m *Manager) Teams(ctx context.Context) ([]store.Team, error) {
	if teams, ok := m.teams.Get(teamsKey); ok {
		return teams, nil
	}
	teams, err := m.store.Teams(ctx)
	if err != nil {
		return nil, err
	}
	m.teams.Set(teamsKey, teams)
	return teams, nil
}

// Games returns the season's games ordered by game number.
func (m *Manager) Games(ctx context.Context) ([]store.Game, error) {
	if games, ok := m.games.Get(m.season.ID); ok {
		return games, nil
	}
	games, err := m.store.Games(ctx, m.season.ID)
	if err != nil {
		return nil, err
	}
	m.games.Set(m.season.ID, games)
	return games, nil
}

// GamesByWeek returns the season's games grouped by week, in week order.
func (m *Manager) GamesByWeek(ctx context.Context) ([]Week, error) {
	games, err := m.Games(ctx)
	if err != nil {
		return nil, err
	}
	byWeek := make(map[int][]store.Game)
	for _, g := range games {
		byWeek[g.WeekNumber] = append(byWeek[g.WeekNumber], g)
	}
	weeks := make([]Week, 0, len(byWeek))
	for n, gs := range byWeek {
		weeks = append(weeks, Week{Number: n, Games: gs})
	}
	sort.Slice(weeks, func(i, j int) bool { return weeks[i].Number < weeks[j].Number })
	return weeks, nil
}

// BulkGenerate fills every open game slot up to the configured ceiling with
// shuffled pairings of the configured teams and persists them. A nil seed falls
// back to the configured seed, then to the current time.
//
// Under the error policy nothing is stored: the partial result is returned
// together with the policy error.
func (m *Manager) BulkGenerate(ctx context.Context, seed *int64) (*GenerateResult, error) {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	// Configured teams only, in config order, so a dry run with the same
	// seed previews the same schedule.
	ids := m.cfg.TeamIDs()

	existing, err := m.existingNumbers(ctx)
	if err != nil {
		return nil, err
	}

	ceiling := m.cfg.MaxGameNumber()
	res, err := schedule.Generate(ids, existing, schedule.Options{
		MaxGameNumber: &ceiling,
		Policy:        m.policy,
		Source:        schedule.NewSeededSource(m.seed(seed)),
		Calculator:    m.calc,
	})
	if res == nil {
		return nil, err
	}
	out := &GenerateResult{Result: res}
	if err != nil {
		log.Warn().Err(err).Int("generated", len(res.Games)).Msg("Generation rejected by policy")
		return out, err
	}
	for _, w := range res.Warnings {
		log.Warn().Str("season", m.season.Name).Msg(w)
	}
	if len(res.Games) == 0 {
		return out, nil
	}

	out.Inserted, err = m.store.InsertGames(ctx, m.season.ID, res.Games)
	m.games.Delete(m.season.ID)
	if err != nil {
		return out, fmt.Errorf("saving generated games: %w", err)
	}
	log.Info().
		Str("season", m.season.Name).
		Int("inserted", len(out.Inserted)).
		Int("skipped", len(existing)).
		Int("rounds", res.Rounds).
		Msg("Generated games")
	return out, nil
}

func (m *Manager) seed(seed *int64) int64 {
	if seed != nil {
		return *seed
	}
	if m.cfg.Schedule.Seed != nil {
		return *m.cfg.Schedule.Seed
	}
	return time.Now().UnixNano()
}

// CreateGame validates and stores a single manually entered game.
func (m *Manager) CreateGame(ctx context.Context, in GameInput) (store.Game, error) {
	teamA, err := m.resolveTeam(in.TeamA)
	if err != nil {
		return store.Game{}, err
	}
	teamB, err := m.resolveTeam(in.TeamB)
	if err != nil {
		return store.Game{}, err
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	existing, err := m.existingNumbers(ctx)
	if err != nil {
		return store.Game{}, err
	}
	slot, err := schedule.NewGameSlot(m.calc, in.GameNumber, teamA, teamB, strings.TrimSpace(in.Notes), existing)
	if err != nil {
		return store.Game{}, err
	}

	inserted, err := m.store.InsertGames(ctx, m.season.ID, []schedule.GameSlot{slot})
	m.games.Delete(m.season.ID)
	if err != nil {
		return store.Game{}, err
	}
	log.Info().Int("game_number", slot.GameNumber).Str("season", m.season.Name).Msg("Created game")
	return inserted[0], nil
}

// resolveTeam maps a team name or ID to its ID. Empty input passes through so
// that slot validation reports the missing team.
func (m *Manager) resolveTeam(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", nil
	}
	t, ok := m.cfg.LookupTeam(ref)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownTeam, ref)
	}
	return t.TeamID(), nil
}

// DeleteGame removes a game by ID.
func (m *Manager) DeleteGame(ctx context.Context, id uuid.UUID) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	err := m.store.DeleteGame(ctx, id)
	m.games.Delete(m.season.ID)
	if err != nil {
		return err
	}
	log.Info().Str("game_id", id.String()).Msg("Deleted game")
	return nil
}

// DeleteGameNumber removes the season's game with the given number.
func (m *Manager) DeleteGameNumber(ctx context.Context, gameNumber int) error {
	games, err := m.Games(ctx)
	if err != nil {
		return err
	}
	for _, g := range games {
		if g.GameNumber == gameNumber {
			return m.DeleteGame(ctx, g.ID)
		}
	}
	return fmt.Errorf("game %d: %w", gameNumber, store.ErrNotFound)
}

func (m *Manager) existingNumbers(ctx context.Context) (map[int]bool, error) {
	games, err := m.store.Games(ctx, m.season.ID)
	if err != nil {
		return nil, fmt.Errorf("loading existing games: %w", err)
	}
	existing := make(map[int]bool, len(games))
	for _, g := range games {
		existing[g.GameNumber] = true
	}
	return existing, nil
}
