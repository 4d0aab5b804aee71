// Package config loads service and CLI settings from an optional .env file,
// an optional YAML file and the environment, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Port        string   `yaml:"port"`
	DatabaseURL string   `yaml:"databaseUrl"`
	DBMigrate   bool     `yaml:"dbMigrate"`
	RedisURL    string   `yaml:"redisUrl"`
	RateRPS     float64  `yaml:"rateRps"`
	RateBurst   int      `yaml:"rateBurst"`
	LogLevel    string   `yaml:"logLevel"`
	Solver      Solver   `yaml:"solver"`
	Callback    Callback `yaml:"callback"`
	TomTom      TomTom   `yaml:"tomtom"`
}

type Solver struct {
	TimeBudget    time.Duration `yaml:"timeBudget"`
	MaxTimeBudget time.Duration `yaml:"maxTimeBudget"`
	Lambda        float64       `yaml:"lambda"`
	MaxIterations int           `yaml:"maxIterations"`
	MaxNodes      int           `yaml:"maxNodes"`
}

type Callback struct {
	Secret      string        `yaml:"secret"`
	MaxAttempts int           `yaml:"maxAttempts"`
	Timeout     time.Duration `yaml:"timeout"`
}

type TomTom struct {
	APIKey  string  `yaml:"apiKey"`
	BaseURL string  `yaml:"baseUrl"`
	RPS     float64 `yaml:"rps"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Port:      "8080",
		DBMigrate: true,
		RateRPS:   5,
		RateBurst: 10,
		LogLevel:  "info",
		Solver: Solver{
			TimeBudget:    time.Second,
			MaxTimeBudget: time.Minute,
			Lambda:        0.1,
			MaxNodes:      2000,
		},
		Callback: Callback{MaxAttempts: 5, Timeout: 5 * time.Second},
		TomTom:   TomTom{BaseURL: "https://api.tomtom.com", RPS: 5},
	}
}

// Load reads .env (if present), the YAML file named by CONFIG_PATH (if set)
// and environment overrides, then validates the result.
func Load() (Config, error) {
	_ = godotenv.Load()
	cfg := Default()
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		if err := LoadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadFile overlays the YAML document at path onto cfg.
func LoadFile(path string, cfg *Config) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overlays environment variables onto cfg.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	var errs []error
	num := func(key string, dst *int) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("config: %s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	float := func(key string, dst *float64) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("config: %s: %w", key, err))
				return
			}
			*dst = f
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("config: %s: %w", key, err))
				return
			}
			*dst = d
		}
	}

	str("PORT", &c.Port)
	str("DATABASE_URL", &c.DatabaseURL)
	if v := getenv("DB_MIGRATE"); v != "" {
		c.DBMigrate = v != "false"
	}
	str("REDIS_URL", &c.RedisURL)
	float("RATE_RPS", &c.RateRPS)
	num("RATE_BURST", &c.RateBurst)
	str("LOG_LEVEL", &c.LogLevel)
	dur("SOLVER_TIME_BUDGET", &c.Solver.TimeBudget)
	dur("SOLVER_MAX_TIME_BUDGET", &c.Solver.MaxTimeBudget)
	float("SOLVER_LAMBDA", &c.Solver.Lambda)
	num("SOLVER_MAX_ITERATIONS", &c.Solver.MaxIterations)
	num("SOLVER_MAX_NODES", &c.Solver.MaxNodes)
	str("CALLBACK_SECRET", &c.Callback.Secret)
	num("CALLBACK_MAX_ATTEMPTS", &c.Callback.MaxAttempts)
	dur("CALLBACK_TIMEOUT", &c.Callback.Timeout)
	str("TOMTOM_API_KEY", &c.TomTom.APIKey)
	str("TOMTOM_BASE_URL", &c.TomTom.BaseURL)
	float("TOMTOM_RPS", &c.TomTom.RPS)
	return errors.Join(errs...)
}

// Validate rejects settings the service cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.Port == "" {
		errs = append(errs, errors.New("config: port is empty"))
	}
	if c.RateRPS <= 0 {
		errs = append(errs, fmt.Errorf("config: rate rps must be > 0, got %v", c.RateRPS))
	}
	if c.RateBurst <= 0 {
		errs = append(errs, fmt.Errorf("config: rate burst must be > 0, got %d", c.RateBurst))
	}
	if c.Solver.TimeBudget < 0 {
		errs = append(errs, fmt.Errorf("config: solver time budget %v is negative", c.Solver.TimeBudget))
	}
	if c.Solver.MaxTimeBudget < c.Solver.TimeBudget {
		errs = append(errs, fmt.Errorf("config: solver max time budget %v is below the default %v", c.Solver.MaxTimeBudget, c.Solver.TimeBudget))
	}
	if c.Solver.Lambda < 0 {
		errs = append(errs, fmt.Errorf("config: solver lambda %v is negative", c.Solver.Lambda))
	}
	if c.Solver.MaxIterations < 0 {
		errs = append(errs, fmt.Errorf("config: solver max iterations %d is negative", c.Solver.MaxIterations))
	}
	if c.Solver.MaxNodes <= 0 {
		errs = append(errs, fmt.Errorf("config: solver max nodes must be > 0, got %d", c.Solver.MaxNodes))
	}
	if c.Callback.MaxAttempts <= 0 {
		errs = append(errs, fmt.Errorf("config: callback max attempts must be > 0, got %d", c.Callback.MaxAttempts))
	}
	if c.TomTom.RPS < 0 {
		errs = append(errs, fmt.Errorf("config: tomtom rps %v is negative", c.TomTom.RPS))
	}
	return errors.Join(errs...)
}
