package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"

	"github.com/derekprior/hoops/internal/config"
	"github.com/derekprior/hoops/internal/schedule"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// ErrNotFound is returned when a row to update or delete does not exist.
var ErrNotFound = errors.New("not found")

type Season struct {
	ID   uuid.UUID
	Name string
}

type Team struct {
	ID   string
	Name string
}

// Game is a persisted game slot.
type Game struct {
	ID       uuid.UUID
	SeasonID uuid.UUID
	schedule.GameSlot
	CreatedAt time.Time
}

// Store persists seasons, teams, games and their matchups.
type Store struct {
	db     *sql.DB
	driver string
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Open connects to the configured database and applies the embedded
// migrations.
func Open(cfg config.Database) (*Store, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case DriverSQLite:
		if err := os.MkdirAll(filepath.Dir(cfg.Filename), 0755); err != nil {
			return nil, fmt.Errorf("error creating database directory: %w", err)
		}
		db, err = sql.Open("sqlite3", ensureForeignKeysEnabledDSN(cfg.Filename))
	case DriverPostgres:
		db, err = sql.Open("pgx", cfg.URL)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}
	if cfg.Driver == DriverSQLite {
		// sqlite allows a single writer.
		db.SetMaxOpenConns(1)
	}

	if err := runMigrations(db, cfg.Driver); err != nil {
		db.Close()
		return nil, fmt.Errorf("error running migrations: %w", err)
	}

	log.Info().Str("driver", cfg.Driver).Msg("Database ready")
	return &Store{db: db, driver: cfg.Driver}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ensureForeignKeysEnabledDSN adds _fk=1 to a sqlite DSN unless it is
// already set.
func ensureForeignKeysEnabledDSN(dsn string) string {
	if strings.Contains(dsn, "_fk=") {
		return dsn
	}
	if strings.Contains(dsn, "?") {
		return dsn + "&_fk=1"
	}
	return dsn + "?_fk=1"
}

// rebind rewrites ? placeholders to $n for postgres.
func (s *Store) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// runInTx runs fn in a transaction, rolling back if fn fails or panics.
func (s *Store) runInTx(ctx context.Context, fn func(q querier) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error beginning transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("error rolling back: %v (original error: %w)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("error committing: %w", err)
	}
	return nil
}

// EnsureSeason returns the season with the given name, creating it if needed.
func (s *Store) EnsureSeason(ctx context.Context, name string) (Season, error) {
	season, err := s.seasonByName(ctx, name)
	if err == nil {
		return season, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Season{}, err
	}

	season = Season{ID: uuid.New(), Name: name}
	_, err = s.db.ExecContext(ctx,
		s.rebind(`INSERT INTO seasons (id, name, created_at) VALUES (?, ?, ?)`),
		season.ID.String(), season.Name, now())
	if isUniqueViolation(err) {
		// Lost a race with another writer.
		return s.seasonByName(ctx, name)
	}
	if err != nil {
		return Season{}, fmt.Errorf("creating season %q: %w", name, err)
	}
	log.Info().Str("season", name).Str("season_id", season.ID.String()).Msg("Created season")
	return season, nil
}

func (s *Store) seasonByName(ctx context.Context, name string) (Season, error) {
	var id string
	season := Season{}
	err := s.db.QueryRowContext(ctx,
		s.rebind(`SELECT id, name FROM seasons WHERE name = ?`), name).Scan(&id, &season.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return Season{}, fmt.Errorf("season %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return Season{}, fmt.Errorf("loading season %q: %w", name, err)
	}
	if season.ID, err = uuid.Parse(id); err != nil {
		return Season{}, fmt.Errorf("season %q has a malformed id: %w", name, err)
	}
	return season, nil
}

// SyncTeams upserts the given teams so that game rows can reference them,
// and removes teams that are no longer listed unless a game still refers to
// them.
func (s *Store) SyncTeams(ctx context.Context, teams []Team) error {
	return s.runInTx(ctx, func(q querier) error {
		args := make([]any, 0, len(teams))
		for _, t := range teams {
			_, err := q.ExecContext(ctx, s.rebind(
				`INSERT INTO teams (id, name) VALUES (?, ?)
				 ON CONFLICT (id) DO UPDATE SET name = excluded.name`),
				t.ID, t.Name)
			if err != nil {
				return fmt.Errorf("syncing team %q: %w", t.Name, err)
			}
			args = append(args, t.ID)
		}

		query := `DELETE FROM teams
			WHERE id NOT IN (SELECT team_a_id FROM games)
			AND id NOT IN (SELECT team_b_id FROM games)`
		if len(args) > 0 {
			query += ` AND id NOT IN (?` + strings.Repeat(", ?", len(args)-1) + `)`
		}
		res, err := q.ExecContext(ctx, s.rebind(query), args...)
		if err != nil {
			return fmt.Errorf("pruning teams: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n > 0 {
			log.Info().Int64("removed", n).Msg("Removed teams no longer configured")
		}
		return nil
	})
}

// Teams returns all teams ordered by name.
func (s *Store) Teams(ctx context.Context) ([]Team, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM teams ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("listing teams: %w", err)
	}
	defer rows.Close()

	var teams []Team
	for rows.Next() {
		var t Team
		if err := rows.Scan(&t.ID, &t.Name); err != nil {
			return nil, fmt.Errorf("scanning team: %w", err)
		}
		teams = append(teams, t)
	}
	return teams, rows.Err()
}

const gameColumns = `id, season_id, game_number, week_number, start_date, end_date,
	team_a_id, team_b_id, notes, created_at`

// Games returns the season's games ordered by game number.
func (s *Store) Games(ctx context.Context, seasonID uuid.UUID) ([]Game, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT `+gameColumns+` FROM games WHERE season_id = ? ORDER BY game_number`),
		seasonID.String())
	if err != nil {
		return nil, fmt.Errorf("listing games: %w", err)
	}
	defer rows.Close()

	var games []Game
	for rows.Next() {
		g, err := scanGame(rows)
		if err != nil {
			return nil, err
		}
		games = append(games, g)
	}
	return games, rows.Err()
}

func scanGame(rows *sql.Rows) (Game, error) {
	var (
		g                           Game
		id, seasonID                string
		startDate, endDate, created string
		notes                       sql.NullString
	)
	err := rows.Scan(&id, &seasonID, &g.GameNumber, &g.WeekNumber, &startDate, &endDate,
		&g.TeamA, &g.TeamB, &notes, &created)
	if err != nil {
		return Game{}, fmt.Errorf("scanning game: %w", err)
	}
	if g.ID, err = uuid.Parse(id); err != nil {
		return Game{}, fmt.Errorf("game has a malformed id %q: %w", id, err)
	}
	if g.SeasonID, err = uuid.Parse(seasonID); err != nil {
		return Game{}, fmt.Errorf("game %s has a malformed season id: %w", id, err)
	}
	if g.StartDate, err = time.Parse(schedule.DateLayout, startDate); err != nil {
		return Game{}, fmt.Errorf("game %s start date: %w", id, err)
	}
	if g.EndDate, err = time.Parse(schedule.DateLayout, endDate); err != nil {
		return Game{}, fmt.Errorf("game %s end date: %w", id, err)
	}
	if g.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
		return Game{}, fmt.Errorf("game %s created_at: %w", id, err)
	}
	g.Notes = notes.String
	return g, nil
}

// InsertGames stores the slots and one matchup row per game in a single
// transaction. Either every slot is stored or none is. A game number already
// taken in the season returns schedule.ErrDuplicateGameNumber.
func (s *Store) InsertGames(ctx context.Context, seasonID uuid.UUID, slots []schedule.GameSlot) ([]Game, error) {
	created := time.Now().UTC()
	games := make([]Game, 0, len(slots))

	err := s.runInTx(ctx, func(q querier) error {
		for _, slot := range slots {
			g := Game{ID: uuid.New(), SeasonID: seasonID, GameSlot: slot, CreatedAt: created}
			var notes sql.NullString
			if slot.Notes != "" {
				notes = sql.NullString{String: slot.Notes, Valid: true}
			}

			_, err := q.ExecContext(ctx, s.rebind(
				`INSERT INTO games (`+gameColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
				g.ID.String(), seasonID.String(), slot.GameNumber, slot.WeekNumber,
				slot.StartDate.Format(schedule.DateLayout), slot.EndDate.Format(schedule.DateLayout),
				slot.TeamA, slot.TeamB, notes, created.Format(time.RFC3339Nano))
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: game %d", schedule.ErrDuplicateGameNumber, slot.GameNumber)
			}
			if err != nil {
				return fmt.Errorf("inserting game %d: %w", slot.GameNumber, err)
			}

			_, err = q.ExecContext(ctx, s.rebind(
				`INSERT INTO matchups (id, game_id, week, team_a_id, team_b_id) VALUES (?, ?, ?, ?, ?)`),
				uuid.New().String(), g.ID.String(), slot.WeekNumber, slot.TeamA, slot.TeamB)
			if err != nil {
				return fmt.Errorf("inserting matchup for game %d: %w", slot.GameNumber, err)
			}
			games = append(games, g)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Debug().Int("count", len(games)).Str("season_id", seasonID.String()).Msg("Inserted games")
	return games, nil
}

// DeleteGame removes a game and its matchup.
func (s *Store) DeleteGame(ctx context.Context, id uuid.UUID) error {
	return s.runInTx(ctx, func(q querier) error {
		if _, err := q.ExecContext(ctx,
			s.rebind(`DELETE FROM matchups WHERE game_id = ?`), id.String()); err != nil {
			return fmt.Errorf("deleting matchups for game %s: %w", id, err)
		}
		res, err := q.ExecContext(ctx, s.rebind(`DELETE FROM games WHERE id = ?`), id.String())
		if err != nil {
			return fmt.Errorf("deleting game %s: %w", id, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("deleting game %s: %w", id, err)
		}
		if n == 0 {
			return fmt.Errorf("game %s: %w", id, ErrNotFound)
		}
		return nil
	})
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
