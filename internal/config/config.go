// Package config loads process configuration from the environment once at
// startup. Any failure here is fatal: the process must not serve requests
// with a partial configuration.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

var ErrConfiguration = errors.New("configuration error")

type Config struct {
	AppEnv      string `env:"APP_ENV" envDefault:"development"`
	Port        string `env:"PORT" envDefault:"8080"`
	DatabaseURL string `env:"DATABASE_URL,required,notEmpty"`
	SentryDSN   string `env:"SENTRY_DSN"`

	RunMigrationsOnStartup bool `env:"RUN_MIGRATIONS_ON_STARTUP" envDefault:"false"`

	DB    DBConfig
	JWT   JWTConfig   `envPrefix:"JWT_"`
	Login LoginConfig
	Admin AdminConfig `envPrefix:"ADMIN_"`

	CronSecret              string `env:"CRON_SECRET"`
	LockoutCleanupBatchSize int    `env:"LOCKOUT_CLEANUP_BATCH_SIZE" envDefault:"500"`
}

type DBConfig struct {
	MaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS" envDefault:"10"`
	MaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
	ConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"30m"`
	ConnMaxIdleTime time.Duration `env:"DB_CONN_MAX_IDLE_TIME" envDefault:"10m"`
}

// JWTConfig is read once and handed to the token issuer; it is never mutated
// afterwards.
type JWTConfig struct {
	Secret   string        `env:"SECRET,required,notEmpty"`
	Issuer   string        `env:"ISSUER,required,notEmpty"`
	Audience string        `env:"AUDIENCE,required,notEmpty"`
	TokenTTL time.Duration `env:"TOKEN_TTL" envDefault:"3h"`
}

type LoginConfig struct {
	// MaxAttempts of zero disables account lockout.
	MaxAttempts     int           `env:"LOGIN_MAX_ATTEMPTS" envDefault:"0"`
	LockDuration    time.Duration `env:"LOGIN_LOCK_DURATION" envDefault:"15m"`
	RateLimitMax    int           `env:"AUTH_RATE_LIMIT_MAX" envDefault:"10"`
	RateLimitWindow time.Duration `env:"AUTH_RATE_LIMIT_WINDOW" envDefault:"1m"`

	RegisterAdminRequiresAdmin bool `env:"REGISTER_ADMIN_REQUIRES_ADMIN" envDefault:"false"`
}

type AdminConfig struct {
	Username string `env:"USERNAME"`
	Email    string `env:"EMAIL"`
	Password string `env:"PASSWORD"`
}

type Options struct {
	LoadDotEnv bool
}

func Load(options Options) (*Config, error) {
	if options.LoadDotEnv {
		_ = godotenv.Load()
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.JWT.Secret) == "" {
		return errors.New("JWT_SECRET is blank")
	}
	if c.JWT.TokenTTL <= 0 {
		return errors.New("JWT_TOKEN_TTL must be positive")
	}

	// Presence is judged on trimmed values; the password itself is kept verbatim.
	c.Admin.Username = strings.TrimSpace(c.Admin.Username)
	if (c.Admin.Username == "") != (strings.TrimSpace(c.Admin.Password) == "") {
		return errors.New("ADMIN_USERNAME and ADMIN_PASSWORD are required together")
	}

	if c.Login.MaxAttempts < 0 {
		return errors.New("LOGIN_MAX_ATTEMPTS must not be negative")
	}
	if c.LockoutCleanupBatchSize <= 0 {
		c.LockoutCleanupBatchSize = 500
	}

	return nil
}

func (c *Config) Addr() string {
	return ":" + strings.TrimPrefix(c.Port, ":")
}
