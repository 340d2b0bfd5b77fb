// Package config loads process configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Port           string `env:"PORT" envDefault:"8080"`
	Env            string `env:"ENV" envDefault:"development"`
	GinMode        string `env:"GIN_MODE"`
	DatabaseURL    string `env:"DATABASE_URL"`
	ParagraphsPath string `env:"PARAGRAPHS_PATH"`
	TokenSecret    string `env:"TOKEN_SECRET"`

	MinPlayers   int           `env:"MIN_PLAYERS" envDefault:"2"`
	MaxPlayers   int           `env:"MAX_PLAYERS" envDefault:"4"`
	QueueTimeout time.Duration `env:"QUEUE_TIMEOUT" envDefault:"1s"`
	MaxWait      time.Duration `env:"MAX_WAIT" envDefault:"5s"`
	GameTTL      time.Duration `env:"GAME_TTL" envDefault:"30m"`

	CookieMaxAge   time.Duration `env:"COOKIE_MAX_AGE" envDefault:"2h"`
	StaticCacheAge time.Duration `env:"STATIC_CACHE_AGE" envDefault:"5m"`
	RateLimitRPS   int           `env:"RATE_LIMIT_RPS" envDefault:"20"`
	RateLimitBurst int           `env:"RATE_LIMIT_BURST" envDefault:"40"`
	RateLimiterTTL time.Duration `env:"RATE_LIMITER_TTL" envDefault:"1h"`

	// CORSOrigins lists browser origins allowed to call the API with credentials. Empty
	// disables cross-origin access.
	CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:","`
}

// Load parses the environment into a Config and validates it.
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

func (c Config) IsProduction() bool {
	return c.GinMode == "release" || c.Env == "production"
}

func (c Config) Validate() error {
	if c.MinPlayers < 2 {
		return fmt.Errorf("MIN_PLAYERS must be at least 2, got %d", c.MinPlayers)
	}
	if c.MaxPlayers < c.MinPlayers {
		return fmt.Errorf("MAX_PLAYERS (%d) must not be below MIN_PLAYERS (%d)", c.MaxPlayers, c.MinPlayers)
	}
	if c.QueueTimeout <= 0 || c.MaxWait <= 0 || c.GameTTL <= 0 {
		return errors.New("QUEUE_TIMEOUT, MAX_WAIT and GAME_TTL must be positive")
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		return errors.New("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive")
	}
	return nil
}
