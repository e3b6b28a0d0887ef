// Package config loads wpfleet configuration from defaults, an optional
// YAML file, and WPFLEET_-prefixed environment variables, in that order of
// precedence. Nested keys use a double underscore in the environment, e.g.
// WPFLEET_SYNC__WORKERS=20 sets sync.workers.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"wpfleet/internal/scoring"
)

const envPrefix = "WPFLEET_"

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "WPFLEET_CONFIG"

// DefaultConfigPaths are searched in order; the first file found is used.
var DefaultConfigPaths = []string{
	"wpfleet.yaml",
	"wpfleet.yml",
	"/etc/wpfleet/config.yaml",
}

type Config struct {
	Env         string `koanf:"env"`
	ListenAddr  string `koanf:"listen_addr" validate:"required"`
	DatabaseURL string `koanf:"database_url"`

	Log     Log                `koanf:"log"`
	Sync    Sync               `koanf:"sync"`
	Scan    Scan               `koanf:"scan"`
	Circuit Circuit            `koanf:"circuit"`
	Scoring scoring.Thresholds `koanf:"scoring"`
}

type Log struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// Sync controls the fleet sync coordinator.
type Sync struct {
	// Interval between scheduled fleet syncs; 0 disables the scheduler.
	Interval time.Duration `koanf:"interval"`
	// Workers bounds concurrent site fetches.
	Workers int `koanf:"workers" validate:"gte=1"`
	// ClientTimeout is the per-call timeout of the remote site client.
	ClientTimeout time.Duration `koanf:"client_timeout" validate:"gt=0"`
	// RequestsPerSecond paces outbound fleet traffic; 0 means unlimited.
	RequestsPerSecond float64 `koanf:"requests_per_second"`
	Burst             int     `koanf:"burst"`
}

// Scan controls the background scan workers and the front-page probe.
type Scan struct {
	// Workers claiming pending scan records; 0 disables background workers
	// (scans then only run via the blocking API path).
	Workers      int           `koanf:"workers" validate:"gte=0"`
	PollInterval time.Duration `koanf:"poll_interval" validate:"gt=0"`
	ProbeTimeout time.Duration `koanf:"probe_timeout" validate:"gt=0"`
}

// Circuit controls per-site circuit breaking.
type Circuit struct {
	// FailureThreshold is the consecutive-failure count that starts backoff.
	FailureThreshold int `koanf:"failure_threshold" validate:"gte=1"`
	// BackoffSteps is the geometric skip ladder keyed by failures past the
	// threshold; the last step is the cap.
	BackoffSteps []time.Duration `koanf:"backoff_steps" validate:"min=1"`
}

func defaultConfig() Config {
	return Config{
		Env:        "development",
		ListenAddr: ":8080",
		Log: Log{
			Level:  "info",
			Format: "json",
		},
		Sync: Sync{
			Interval:          15 * time.Minute,
			Workers:           10,
			ClientTimeout:     15 * time.Second,
			RequestsPerSecond: 0,
			Burst:             1,
		},
		Scan: Scan{
			Workers:      2,
			PollInterval: 500 * time.Millisecond,
			ProbeTimeout: 20 * time.Second,
		},
		Circuit: Circuit{
			FailureThreshold: 3,
			BackoffSteps: []time.Duration{
				time.Minute,
				5 * time.Minute,
				15 * time.Minute,
				time.Hour,
			},
		},
		Scoring: scoring.DefaultThresholds(),
	}
}

// Load builds the effective configuration. A missing config file is not an
// error; a malformed one is.
func Load() (Config, error) {
	k := koanf.New(".")

	def := defaultConfig()
	if err := k.Load(structs.Provider(def, "koanf"), nil); err != nil {
		return def, fmt.Errorf("config defaults: %w", err)
	}

	if path := configFilePath(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return def, fmt.Errorf("config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKey), nil); err != nil {
		return def, fmt.Errorf("config env: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return def, fmt.Errorf("config unmarshal: %w", err)
	}
	if err := validator.New().Struct(cfg); err != nil {
		return cfg, fmt.Errorf("config invalid: %w", err)
	}
	return cfg, nil
}

func configFilePath() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		return p
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// envKey maps WPFLEET_SYNC__WORKERS to sync.workers.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
	return strings.ReplaceAll(s, "__", ".")
}
