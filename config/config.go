package config

import (
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Simulator  SimulatorConfig  `yaml:"simulator"`
	Business   BusinessConfig   `yaml:"business"`
	Series     SeriesConfig     `yaml:"series"`
	Database   DatabaseConfig   `yaml:"database"`
	Retention  RetentionConfig  `yaml:"retention"`
	Push       PushConfig       `yaml:"push"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool"`
}

// WorkerPoolConfig holds the configuration for the alert worker pool.
type WorkerPoolConfig struct {
	Size int `yaml:"size"`
}

// PushConfig holds the VAPID keys for web push alerts.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// Enabled reports whether both VAPID keys are configured.
func (p PushConfig) Enabled() bool {
	return p.PublicKey != "" && p.PrivateKey != ""
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port            int     `yaml:"port"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int     `yaml:"rate_limit_burst"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
}

// SimulatorConfig controls the tick loop and the per-unit random behaviour.
// Enabled defaults to true. Other zero values fall back to the defaults in
// internal/sim.
type SimulatorConfig struct {
	Enabled         bool          `yaml:"enabled"`
	IntervalSeconds int           `yaml:"interval_seconds"`
	Interval        time.Duration `yaml:"-"`
	EquipmentIDs    []string      `yaml:"equipment_ids"`
	Seed            uint64        `yaml:"seed"`

	MTBFHoursRange           [2]float64 `yaml:"mtbf_hours_range"`
	MTTRMinutesRange         [2]float64 `yaml:"mttr_minutes_range"`
	IdleIntervalMinutesRange [2]float64 `yaml:"idle_interval_minutes_range"`
	IdleDurationSecondsRange [2]int     `yaml:"idle_duration_seconds_range"`
	ScrapRateRange           [2]float64 `yaml:"scrap_rate_range"`
	RecoveryBoost            float64    `yaml:"recovery_boost"`
}

// BusinessConfig defines the business-day clock used for daily totals.
type BusinessConfig struct {
	Timezone string         `yaml:"timezone"`
	Location *time.Location `yaml:"-"`
}

// SeriesConfig holds settings for the chart series queries.
type SeriesConfig struct {
	FallbackRows int `yaml:"fallback_rows"`
}

// RetentionConfig controls the nightly purge of old metric rows.
type RetentionConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Days     int    `yaml:"days"`
	Schedule string `yaml:"schedule"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	Driver                 string `yaml:"driver"`
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
	EnableTimescale        bool   `yaml:"enable_timescale"`
}

// Load reads the configuration from the given path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	// The simulator runs unless the file turns it off.
	cfg := Config{Simulator: SimulatorConfig{Enabled: true}}
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8000
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 20
	}
	if cfg.Server.CacheTTLSeconds < 0 {
		cfg.Server.CacheTTLSeconds = 0
	}

	if cfg.Simulator.IntervalSeconds <= 0 {
		cfg.Simulator.IntervalSeconds = 5
	}
	cfg.Simulator.Interval = time.Duration(cfg.Simulator.IntervalSeconds) * time.Second
	if len(cfg.Simulator.EquipmentIDs) == 0 {
		cfg.Simulator.EquipmentIDs = []string{"M1", "M2", "M3", "M4"}
	}

	if cfg.Business.Timezone == "" {
		cfg.Business.Timezone = "Asia/Taipei"
	}
	loc, err := time.LoadLocation(cfg.Business.Timezone)
	if err != nil {
		log.Warn().Err(err).Str("timezone", cfg.Business.Timezone).Msg("unknown business timezone; using fixed UTC+8")
		loc = time.FixedZone("UTC+8", 8*60*60)
	}
	cfg.Business.Location = loc

	if cfg.Series.FallbackRows <= 0 {
		cfg.Series.FallbackRows = 200
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	if cfg.Database.DSN == "" && cfg.Database.Driver == "sqlite" {
		cfg.Database.DSN = "file:linemon.db?_busy_timeout=5000"
	}

	if cfg.Retention.Days <= 0 {
		cfg.Retention.Days = 30
	}
	if cfg.Retention.Schedule == "" {
		cfg.Retention.Schedule = "0 30 3 * * *"
	}

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}

	if cfg.WorkerPool.Size <= 0 {
		log.Info().Msg("worker_pool.size is not set or invalid; defaulting to 1")
		cfg.WorkerPool.Size = 1
	}
}
