// Package config loads pulsar's runtime settings from viper.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment overrides (PULSAR_MAX_CONCURRENT).
const EnvPrefix = "PULSAR"

// ErrInvalid indicates a configuration value outside its valid range.
var ErrInvalid = errors.New("invalid configuration")

// WorkloadConfig tunes the simulated payload.
type WorkloadConfig struct {
	Unit      time.Duration `mapstructure:"unit"`
	SlowIDs   []uint32      `mapstructure:"slow_ids"`
	SlowUnits int           `mapstructure:"slow_units"`
}

// Config holds all runtime configuration for a pulsar session.
// Values are populated from .pulsar.yaml, PULSAR_* env vars, and CLI flags.
type Config struct {
	MaxConcurrent     int            `mapstructure:"max_concurrent"`
	AdmissionInterval time.Duration  `mapstructure:"admission_interval"`
	AdmissionRetries  int            `mapstructure:"admission_retries"`
	Workload          WorkloadConfig `mapstructure:"workload"`
	TelemetryDir      string         `mapstructure:"telemetry_dir"`
	HistoryDB         string         `mapstructure:"history_db"`
	Verbose           bool           `mapstructure:"verbose"`
}

// SetDefaults registers the built-in defaults on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("max_concurrent", 4)
	v.SetDefault("admission_interval", 100*time.Millisecond)
	v.SetDefault("admission_retries", 1000)
	v.SetDefault("workload.unit", time.Second)
	v.SetDefault("workload.slow_ids", []uint32{2})
	v.SetDefault("workload.slow_units", 10)
	v.SetDefault("telemetry_dir", ".pulsar/telemetry")
	v.SetDefault("history_db", ".pulsar/history.db")
	v.SetDefault("verbose", false)
}

// BindEnv makes v read PULSAR_* variables, mapping nested keys with
// underscores (workload.unit -> PULSAR_WORKLOAD_UNIT).
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// LoadDotEnv loads KEY=value pairs from the given files (default ".env")
// into the process environment. Missing files are ignored; variables already
// set are not overridden.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("config: load %s: %w", p, err)
		}
	}
	return nil
}

// Load reads configuration from the global viper instance, applying built-in
// defaults for any values not set by config file, environment, or flags.
func Load() (Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom reads configuration from v.
func LoadFrom(v *viper.Viper) (Config, error) {
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c Config) Validate() error {
	switch {
	case c.MaxConcurrent < 0:
		return fmt.Errorf("%w: max_concurrent must be >= 0, got %d", ErrInvalid, c.MaxConcurrent)
	case c.AdmissionInterval <= 0:
		return fmt.Errorf("%w: admission_interval must be positive, got %s", ErrInvalid, c.AdmissionInterval)
	case c.AdmissionRetries < 0:
		return fmt.Errorf("%w: admission_retries must be >= 0, got %d", ErrInvalid, c.AdmissionRetries)
	case c.Workload.Unit < 0:
		return fmt.Errorf("%w: workload.unit must be >= 0, got %s", ErrInvalid, c.Workload.Unit)
	}
	return nil
}

// AdmissionBudget returns how long a release may wait for a free slot.
func (c Config) AdmissionBudget() time.Duration {
	return c.AdmissionInterval * time.Duration(c.AdmissionRetries)
}
