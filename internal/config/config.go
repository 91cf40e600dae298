// Package config loads server settings from the environment.
package config

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/caarlos0/env/v11"
)

// Config holds every setting the server reads at startup.
type Config struct {
	Port      string `env:"PORT" envDefault:"8080"`
	ProjectID string `env:"GCP_PROJECT_ID"`
	Region    string `env:"GCP_REGION" envDefault:"europe-west1"`

	// GeminiModel reads puzzle photos.
	GeminiModel string `env:"XWORD_GEMINI_MODEL" envDefault:"gemini-2.5-flash"`

	// DBPath is the SQLite progress database. Empty keeps progress in memory.
	DBPath    string `env:"XWORD_DB_PATH"`
	PuzzleDir string `env:"XWORD_PUZZLE_DIR"`
	LogLevel  string `env:"XWORD_LOG_LEVEL" envDefault:"info"`
	DevLog    bool   `env:"XWORD_LOG_DEV"`

	SaveDelay          time.Duration `env:"XWORD_SAVE_DELAY" envDefault:"1s"`
	AnonymousRetention time.Duration `env:"XWORD_ANON_RETENTION" envDefault:"24h"`
	MemberRetention    time.Duration `env:"XWORD_MEMBER_RETENTION" envDefault:"720h"`
	PruneInterval      time.Duration `env:"XWORD_PRUNE_INTERVAL" envDefault:"1h"`

	SolutionTimezone string `env:"XWORD_SOLUTION_TZ" envDefault:"Europe/London"`
	SolutionHour     int    `env:"XWORD_SOLUTION_HOUR" envDefault:"5"`

	HintDifficulties []string `env:"XWORD_HINT_DIFFICULTIES" envSeparator:"," envDefault:"easy,medium"`
	Themes           []string `env:"XWORD_THEMES" envSeparator:","`
}

// Load parses the environment and validates the result.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks value ranges env.Parse cannot express.
func (c Config) Validate() error {
	if c.SolutionHour < 0 || c.SolutionHour > 23 {
		return fmt.Errorf("XWORD_SOLUTION_HOUR must be 0-23, got %d", c.SolutionHour)
	}
	if _, err := time.LoadLocation(c.SolutionTimezone); err != nil {
		return fmt.Errorf("XWORD_SOLUTION_TZ: %w", err)
	}
	if c.SaveDelay < 0 {
		return fmt.Errorf("XWORD_SAVE_DELAY must not be negative")
	}
	if c.AnonymousRetention <= 0 || c.MemberRetention <= 0 {
		return fmt.Errorf("retention windows must be positive")
	}
	return nil
}

// Location returns the solution release timezone. Validate has already
// checked it loads.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.SolutionTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Retention returns how long saved progress is kept for a player.
func (c Config) Retention(member bool) time.Duration {
	if member {
		return c.MemberRetention
	}
	return c.AnonymousRetention
}

// LongestRetention is the age past which no record can be loaded.
func (c Config) LongestRetention() time.Duration {
	return max(c.AnonymousRetention, c.MemberRetention)
}

// HintsAllowed reports whether hints are enabled for difficulty.
func (c Config) HintsAllowed(difficulty string) bool {
	for _, d := range c.HintDifficulties {
		if strings.EqualFold(strings.TrimSpace(d), difficulty) {
			return true
		}
	}
	return false
}
