// internal/config/config.go
//
// Server settings from the environment.
// Responsibilities:
//   - Apply a .env file in the working directory, if present.
//   - Parse typed settings with defaults from env struct tags.
//   - Reject values the server cannot run with.
//
// Notes:
//   - Variables already set in the process environment win over .env.
//   - TABLE_IDLE_TTL of zero disables idle eviction; MAX_TABLES of zero
//     disables the table limit.

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds every tunable of the server.
type Config struct {
	Port           string        `env:"PORT"            envDefault:"5175"`
	LogLevel       string        `env:"LOG_LEVEL"       envDefault:"info"`
	LogPretty      bool          `env:"LOG_PRETTY"      envDefault:"false"`
	ClientOrigin   string        `env:"CLIENT_ORIGIN"   envDefault:"http://localhost:5173"`
	TokenSecret    string        `env:"TOKEN_SECRET"    envDefault:"dev_secret_change_me"`
	TokenTTL       time.Duration `env:"TOKEN_TTL"       envDefault:"12h"`
	MaxTables      int           `env:"MAX_TABLES"      envDefault:"256"`
	TableIdleTTL   time.Duration `env:"TABLE_IDLE_TTL"  envDefault:"1h"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"10s"`
}

// Load reads .env files (missing files are ignored) and parses the environment.
func Load(files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load dotenv: %w", err)
	}
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.TokenTTL <= 0 {
		return Config{}, fmt.Errorf("TOKEN_TTL must be positive, got %s", cfg.TokenTTL)
	}
	return cfg, nil
}

// Addr is the listen address.
func (c Config) Addr() string { return ":" + c.Port }
