package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// teamNamespace derives stable team IDs from team names when the config
// doesn't pin one.
var teamNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/derekprior/hoops/teams"))

// Date is a wrapper around time.Time for YAML date parsing.
type Date struct {
	Time time.Time
}

func (d *Date) UnmarshalYAML(value *yaml.Node) error {
	t, err := time.Parse("2006-01-02", value.Value)
	if err != nil {
		return fmt.Errorf("invalid date %q: %w", value.Value, err)
	}
	d.Time = t
	return nil
}

type Season struct {
	Name       string `yaml:"name"`
	Week1Start Date   `yaml:"week1_start"`
	StartDate  Date   `yaml:"start_date"`
	EndDate    Date   `yaml:"end_date"`
}

type Team struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// TeamID returns the configured ID, or one derived from the team name.
func (t Team) TeamID() string {
	if t.ID != "" {
		return t.ID
	}
	return uuid.NewSHA1(teamNamespace, []byte(t.Name)).String()
}

type Schedule struct {
	MaxGameNumber       *int   `yaml:"max_game_number"`
	OnInsufficientPairs string `yaml:"on_insufficient_pairs"`
	Seed                *int64 `yaml:"seed"`
}

type Database struct {
	Driver   string `yaml:"driver"`
	Filename string `yaml:"filename"`
	URL      string `yaml:"url"`
}

type Server struct {
	Addr        string        `yaml:"addr"`
	CORSOrigins []string      `yaml:"cors_origins"`
	CacheTTL    time.Duration `yaml:"cache_ttl"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type Config struct {
	Season   Season   `yaml:"season"`
	Teams    []Team   `yaml:"teams"`
	Schedule Schedule `yaml:"schedule"`
	Database Database `yaml:"database"`
	Server   Server   `yaml:"server"`
	Log      Log      `yaml:"log"`
}

// TeamIDs returns the IDs of all configured teams in config order.
func (c *Config) TeamIDs() []string {
	ids := make([]string, 0, len(c.Teams))
	for _, t := range c.Teams {
		ids = append(ids, t.TeamID())
	}
	return ids
}

// TeamNames maps team IDs to display names.
func (c *Config) TeamNames() map[string]string {
	names := make(map[string]string, len(c.Teams))
	for _, t := range c.Teams {
		names[t.TeamID()] = t.Name
	}
	return names
}

// LookupTeam finds a team by ID or by name.
func (c *Config) LookupTeam(ref string) (Team, bool) {
	for _, t := range c.Teams {
		if t.Name == ref || t.TeamID() == ref {
			return t, true
		}
	}
	return Team{}, false
}

// MaxGameNumber returns the configured generation ceiling (default 65).
func (c *Config) MaxGameNumber() int {
	if c.Schedule.MaxGameNumber == nil {
		return 65
	}
	return *c.Schedule.MaxGameNumber
}

// LoadFromBytes parses YAML bytes into a Config and validates it.
func LoadFromBytes(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	cfg.applyDefaults()
	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFromFile reads and parses a YAML config file. A .env file next to it
// is loaded first so environment overrides can live alongside the config.
func LoadFromFile(path string) (*Config, error) {
	envPath := filepath.Join(filepath.Dir(path), ".env")
	if err := godotenv.Load(envPath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("loading .env file: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return LoadFromBytes(data)
}

func (c *Config) applyDefaults() {
	if c.Season.Name == "" {
		c.Season.Name = "2025-2026"
	}
	if c.Season.Week1Start.Time.IsZero() {
		c.Season.Week1Start.Time = time.Date(2025, 10, 19, 0, 0, 0, 0, time.UTC)
	}
	if c.Schedule.OnInsufficientPairs == "" {
		c.Schedule.OnInsufficientPairs = "truncate"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.Driver == "sqlite" && c.Database.Filename == "" {
		c.Database.Filename = "data/hoops.db"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.CacheTTL == 0 {
		c.Server.CacheTTL = 5 * time.Minute
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
}

func (c *Config) applyEnv() {
	if v, ok := os.LookupEnv("HOOPS_DB_DRIVER"); ok && v != "" {
		c.Database.Driver = v
	}
	if v, ok := os.LookupEnv("DATABASE_URL"); ok && v != "" {
		c.Database.URL = v
	}
	if v, ok := os.LookupEnv("HOOPS_LOG_LEVEL"); ok && v != "" {
		c.Log.Level = v
	}
}

func (c *Config) validate() error {
	if !c.Season.StartDate.Time.IsZero() && !c.Season.EndDate.Time.IsZero() &&
		!c.Season.EndDate.Time.After(c.Season.StartDate.Time) {
		return fmt.Errorf("end date %s must be after start date %s",
			c.Season.EndDate.Time.Format("2006-01-02"),
			c.Season.StartDate.Time.Format("2006-01-02"))
	}

	// Check for duplicate or malformed teams
	names := make(map[string]bool)
	ids := make(map[string]string)
	for i, t := range c.Teams {
		if t.Name == "" {
			return fmt.Errorf("team name is required")
		}
		if names[t.Name] {
			return fmt.Errorf("team %q is listed more than once", t.Name)
		}
		names[t.Name] = true
		if t.ID != "" {
			id, err := uuid.Parse(t.ID)
			if err != nil {
				return fmt.Errorf("team %q: invalid id %q: %w", t.Name, t.ID, err)
			}
			// Postgres hands back the canonical form.
			t.ID = id.String()
			c.Teams[i].ID = t.ID
		}
		id := t.TeamID()
		if prev, ok := ids[id]; ok {
			return fmt.Errorf("teams %q and %q share id %s", prev, t.Name, id)
		}
		ids[id] = t.Name
	}

	if n := c.MaxGameNumber(); n < 0 || n > 65 {
		return fmt.Errorf("max_game_number %d must be between 0 and 65", n)
	}

	switch c.Schedule.OnInsufficientPairs {
	case "truncate", "error", "allow-repeat":
	default:
		return fmt.Errorf("unknown on_insufficient_pairs policy %q (want truncate, error or allow-repeat)", c.Schedule.OnInsufficientPairs)
	}

	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Filename == "" {
			return fmt.Errorf("database filename is required for the sqlite driver")
		}
	case "postgres":
		if c.Database.URL == "" {
			return fmt.Errorf("database url (or DATABASE_URL) is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unsupported database driver: %q", c.Database.Driver)
	}

	if c.Server.CacheTTL < 0 {
		return fmt.Errorf("cache_ttl must not be negative")
	}

	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("unknown log format %q (want console or json)", c.Log.Format)
	}

	return nil
}
