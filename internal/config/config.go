// Package config reads server settings from the environment and an
// optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"go.uber.org/multierr"

	"github.com/DoyleJ11/servant-draft/internal/balance"
	"github.com/DoyleJ11/servant-draft/internal/engine"
	"github.com/DoyleJ11/servant-draft/internal/platform"
	"github.com/DoyleJ11/servant-draft/internal/storage"
)

type Config struct {
	HTTPAddr       string `env:"HTTP_ADDR" envDefault:":8080"`
	LogLevel       string `env:"LOG_LEVEL" envDefault:"info"`
	LogDevelopment bool   `env:"LOG_DEVELOPMENT"`
	CatalogPath    string `env:"CATALOG_PATH"`
	SynergyPath    string `env:"SYNERGY_PATH" envDefault:"./data/synergy.json"`
	// OperatorSecret signs operator API tokens. Empty leaves the API open.
	OperatorSecret string `env:"OPERATOR_JWT_SECRET"`

	Discord  Discord  `envPrefix:"DISCORD_"`
	Database Database `envPrefix:"DATABASE_"`
	Redis    Redis    `envPrefix:"REDIS_"`
	Draft    Draft    `envPrefix:"DRAFT_"`
	Balance  Balance  `envPrefix:"BALANCE_"`
	Platform Platform `envPrefix:"PLATFORM_"`
}

type Discord struct {
	Token string `env:"TOKEN"`
	// GuildID registers slash commands on one guild instead of globally.
	GuildID string `env:"GUILD_ID"`
}

type Database struct {
	URL        string `env:"URL"`
	SQLitePath string `env:"SQLITE_PATH" envDefault:"./data/draft.db"`
	Debug      bool   `env:"DEBUG"`
}

type Redis struct {
	Addr     string        `env:"ADDR"`
	Password string        `env:"PASSWORD"`
	DB       int           `env:"DB"`
	TTL      time.Duration `env:"TTL" envDefault:"5m"`
}

type Draft struct {
	TeamSize           int           `env:"TEAM_SIZE" envDefault:"5"`
	CaptainVoteTimeout time.Duration `env:"CAPTAIN_VOTE_TIMEOUT" envDefault:"120s"`
	SelectionTimeout   time.Duration `env:"SELECTION_TIMEOUT" envDefault:"90s"`
	ReselectionTimeout time.Duration `env:"RESELECTION_TIMEOUT" envDefault:"90s"`
	ReselectionCap     int           `env:"RESELECTION_CAP" envDefault:"5"`
	RerollAttempts     int           `env:"REROLL_ATTEMPTS" envDefault:"5"`
	// BotDelay paces simulated players so a human can follow along.
	BotDelay time.Duration `env:"BOT_DELAY" envDefault:"1s"`
}

type Balance struct {
	Algorithm            string  `env:"ALGORITHM" envDefault:"genetic"`
	MonteCarloIterations int     `env:"MONTE_CARLO_ITERATIONS" envDefault:"400"`
	Population           int     `env:"POPULATION" envDefault:"30"`
	Generations          int     `env:"GENERATIONS" envDefault:"50"`
	MutationRate         float64 `env:"MUTATION_RATE" envDefault:"0.1"`
	SkillWeight          float64 `env:"WEIGHT_SKILL" envDefault:"0.30"`
	SynergyWeight        float64 `env:"WEIGHT_SYNERGY" envDefault:"0.25"`
	RoleWeight           float64 `env:"WEIGHT_ROLE" envDefault:"0.20"`
	TierWeight           float64 `env:"WEIGHT_TIER" envDefault:"0.10"`
	ComfortWeight        float64 `env:"WEIGHT_COMFORT" envDefault:"0.10"`
	MetaWeight           float64 `env:"WEIGHT_META" envDefault:"0.05"`
}

type Platform struct {
	RequestsPerMinute int           `env:"REQUESTS_PER_MINUTE" envDefault:"50"`
	MaxRetries        int           `env:"MAX_RETRIES" envDefault:"3"`
	BackoffInitial    time.Duration `env:"BACKOFF_INITIAL" envDefault:"500ms"`
	BackoffMax        time.Duration `env:"BACKOFF_MAX" envDefault:"8s"`
}

// Load reads .env files (missing ones are skipped), then the environment.
func Load(files ...string) (*Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load env file: %w", err)
	}
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs error
	if _, ok := engine.PickOrder[c.Draft.TeamSize]; !ok {
		errs = multierr.Append(errs, fmt.Errorf("DRAFT_TEAM_SIZE must be 2, 3, 5 or 6, got %d", c.Draft.TeamSize))
	}
	for name, d := range map[string]time.Duration{
		"DRAFT_CAPTAIN_VOTE_TIMEOUT": c.Draft.CaptainVoteTimeout,
		"DRAFT_SELECTION_TIMEOUT":    c.Draft.SelectionTimeout,
		"DRAFT_RESELECTION_TIMEOUT":  c.Draft.ReselectionTimeout,
	} {
		if d <= 0 {
			errs = multierr.Append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	if c.Draft.ReselectionCap < 1 || c.Draft.RerollAttempts < 1 {
		errs = multierr.Append(errs, errors.New("DRAFT_RESELECTION_CAP and DRAFT_REROLL_ATTEMPTS must be at least 1"))
	}
	if _, err := balance.ParseAlgorithm(c.Balance.Algorithm); err != nil {
		errs = multierr.Append(errs, err)
	}
	errs = multierr.Append(errs, c.Weights().Validate())
	if c.Platform.RequestsPerMinute < 1 || c.Platform.MaxRetries < 0 {
		errs = multierr.Append(errs, errors.New("PLATFORM_REQUESTS_PER_MINUTE must be positive and PLATFORM_MAX_RETRIES not negative"))
	}
	if errs != nil {
		return fmt.Errorf("invalid config: %w", errs)
	}
	return nil
}

func (c *Config) Limits() engine.Limits {
	return engine.Limits{
		CaptainVote:    c.Draft.CaptainVoteTimeout,
		Selection:      c.Draft.SelectionTimeout,
		Reselection:    c.Draft.ReselectionTimeout,
		ReselectionCap: c.Draft.ReselectionCap,
		RerollAttempts: c.Draft.RerollAttempts,
	}
}

func (c *Config) Weights() balance.Weights {
	return balance.Weights{
		Skill:   c.Balance.SkillWeight,
		Synergy: c.Balance.SynergyWeight,
		Role:    c.Balance.RoleWeight,
		Tier:    c.Balance.TierWeight,
		Comfort: c.Balance.ComfortWeight,
		Meta:    c.Balance.MetaWeight,
	}
}

func (c *Config) BalanceSettings() balance.Settings {
	s := balance.DefaultSettings()
	s.MonteCarloIterations = c.Balance.MonteCarloIterations
	s.Population = c.Balance.Population
	s.Generations = c.Balance.Generations
	s.MutationRate = c.Balance.MutationRate
	return s
}

func (c *Config) Resilient() platform.ResilientConfig {
	return platform.ResilientConfig{
		RequestsPerMinute: c.Platform.RequestsPerMinute,
		MaxRetries:        c.Platform.MaxRetries,
		InitialInterval:   c.Platform.BackoffInitial,
		MaxInterval:       c.Platform.BackoffMax,
	}
}

func (c *Config) Storage() storage.Config {
	return storage.Config{
		DatabaseURL: c.Database.URL,
		SQLitePath:  c.Database.SQLitePath,
		Debug:       c.Database.Debug,
	}
}
