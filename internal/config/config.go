// Package config loads the bridge configuration.
//
// Precedence, lowest first: built-in defaults, the YAML file, a .env file,
// SIMBRIDGE_* environment variables. The result is validated once and never
// re-read while the bridge runs.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/roach88/simbridge/internal/model"
)

// DefaultFile is read when no explicit path is given and it exists.
const DefaultFile = "simbridge.yaml"

// EnvFile is loaded into the process environment if present.
const EnvFile = ".env"

// Config is the complete bridge configuration.
type Config struct {
	Serial   SerialConfig   `yaml:"serial"`
	Sim      SimConfig      `yaml:"sim"`
	Dispatch DispatchConfig `yaml:"dispatch"`
	// Profile is a CUE aircraft profile path; empty selects the built-in one.
	Profile string        `yaml:"profile"`
	Journal JournalConfig `yaml:"journal"`
	Logging LoggingConfig `yaml:"logging"`
}

// SerialConfig holds both hardware channels.
type SerialConfig struct {
	Primary   PortConfig `yaml:"primary"`
	Secondary PortConfig `yaml:"secondary"`
}

// PortConfig describes one serial device.
type PortConfig struct {
	Port        string        `yaml:"port"`
	Baud        int           `yaml:"baud"`
	ReadTimeout time.Duration `yaml:"readTimeout"`
}

// SimConfig holds the simulator gateway settings.
type SimConfig struct {
	URL          string        `yaml:"url"`
	ConnectRetry time.Duration `yaml:"connectRetry"`
	QueryTimeout time.Duration `yaml:"queryTimeout"`
	// Keepalive is the longest silence tolerated on the gateway connection
	// before it is treated as dead. Zero disables pings.
	Keepalive time.Duration `yaml:"keepalive"`
}

// DispatchConfig tunes the dispatch core.
type DispatchConfig struct {
	RefreshInterval      time.Duration `yaml:"refreshInterval"`
	CRSSelector          string        `yaml:"crsSelector"`
	AltitudeCoarseRepeat int           `yaml:"altitudeCoarseRepeat"`
}

// JournalConfig enables the SQLite dispatch journal when Path is set.
type JournalConfig struct {
	Path   string `yaml:"path"`
	Buffer int    `yaml:"buffer"`
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"maxSizeMB"`
	MaxBackups int    `yaml:"maxBackups"`
	MaxAgeDays int    `yaml:"maxAgeDays"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Serial: SerialConfig{
			Primary:   PortConfig{Port: "COM4", Baud: 115200},
			Secondary: PortConfig{Port: "COM6", Baud: 115200},
		},
		Sim: SimConfig{
			URL:          "ws://127.0.0.1:8765/simconnect",
			ConnectRetry: 5 * time.Second,
			QueryTimeout: 500 * time.Millisecond,
			Keepalive:    15 * time.Second,
		},
		Dispatch: DispatchConfig{
			RefreshInterval:      time.Second,
			CRSSelector:          "vor1",
			AltitudeCoarseRepeat: 10,
		},
		Journal: JournalConfig{
			Buffer: 256,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// Load builds the configuration. An explicit path must exist; with an empty
// path DefaultFile is used only if present.
func Load(path string) (*Config, error) {
	cfg := Default()

	switch {
	case path != "":
		if err := loadFromFile(cfg, path); err != nil {
			return nil, fmt.Errorf("load config %s: %w", path, err)
		}
	default:
		err := loadFromFile(cfg, DefaultFile)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load config %s: %w", DefaultFile, err)
		}
	}

	// Variables already in the environment win over .env.
	if err := godotenv.Load(EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", EnvFile, err)
	}

	if err := applyEnvOverrides(cfg, os.LookupEnv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func loadFromFile(cfg *Config, filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return err
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

type lookupFunc func(string) (string, bool)

func applyEnvOverrides(cfg *Config, lookup lookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	integer := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = n
		return nil
	}
	duration := func(key string, dst *time.Duration) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = d
		return nil
	}

	str("SIMBRIDGE_PRIMARY_PORT", &cfg.Serial.Primary.Port)
	str("SIMBRIDGE_SECONDARY_PORT", &cfg.Serial.Secondary.Port)
	str("SIMBRIDGE_SIM_URL", &cfg.Sim.URL)
	str("SIMBRIDGE_CRS_SELECTOR", &cfg.Dispatch.CRSSelector)
	str("SIMBRIDGE_PROFILE", &cfg.Profile)
	str("SIMBRIDGE_JOURNAL", &cfg.Journal.Path)
	str("SIMBRIDGE_LOG_LEVEL", &cfg.Logging.Level)
	str("SIMBRIDGE_LOG_FORMAT", &cfg.Logging.Format)
	str("SIMBRIDGE_LOG_FILE", &cfg.Logging.File)

	return errors.Join(
		integer("SIMBRIDGE_PRIMARY_BAUD", &cfg.Serial.Primary.Baud),
		integer("SIMBRIDGE_SECONDARY_BAUD", &cfg.Serial.Secondary.Baud),
		integer("SIMBRIDGE_ALTITUDE_COARSE_REPEAT", &cfg.Dispatch.AltitudeCoarseRepeat),
		duration("SIMBRIDGE_REFRESH_INTERVAL", &cfg.Dispatch.RefreshInterval),
		duration("SIMBRIDGE_CONNECT_RETRY", &cfg.Sim.ConnectRetry),
		duration("SIMBRIDGE_QUERY_TIMEOUT", &cfg.Sim.QueryTimeout),
		duration("SIMBRIDGE_SIM_KEEPALIVE", &cfg.Sim.Keepalive),
	)
}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	ports := []struct {
		name string
		PortConfig
	}{
		{"primary", c.Serial.Primary},
		{"secondary", c.Serial.Secondary},
	}
	for _, p := range ports {
		name := p.name
		if p.Port == "" {
			return fmt.Errorf("serial.%s.port is required", name)
		}
		if p.Baud <= 0 {
			return fmt.Errorf("serial.%s.baud %d must be positive", name, p.Baud)
		}
		if p.ReadTimeout < 0 {
			return fmt.Errorf("serial.%s.readTimeout must not be negative", name)
		}
	}
	if c.Serial.Primary.Port == c.Serial.Secondary.Port {
		return fmt.Errorf("serial.primary and serial.secondary both use %s", c.Serial.Primary.Port)
	}

	if c.Sim.URL == "" {
		return fmt.Errorf("sim.url is required")
	}
	if c.Sim.ConnectRetry <= 0 {
		return fmt.Errorf("sim.connectRetry must be positive")
	}
	if c.Sim.QueryTimeout < 0 {
		return fmt.Errorf("sim.queryTimeout must not be negative")
	}
	if c.Sim.Keepalive != 0 && c.Sim.Keepalive < 100*time.Millisecond {
		return fmt.Errorf("sim.keepalive %s must be zero or at least 100ms", c.Sim.Keepalive)
	}

	if c.Dispatch.RefreshInterval < 10*time.Millisecond || c.Dispatch.RefreshInterval > time.Minute {
		return fmt.Errorf("dispatch.refreshInterval %s is outside reasonable range [10ms, 1m]", c.Dispatch.RefreshInterval)
	}
	if _, err := c.CRS(); err != nil {
		return fmt.Errorf("dispatch.crsSelector: %w", err)
	}
	if c.Dispatch.AltitudeCoarseRepeat < 1 || c.Dispatch.AltitudeCoarseRepeat > 100 {
		return fmt.Errorf("dispatch.altitudeCoarseRepeat %d is outside range [1, 100]", c.Dispatch.AltitudeCoarseRepeat)
	}

	if c.Journal.Buffer < 1 {
		return fmt.Errorf("journal.buffer must be at least 1")
	}

	if !contains([]string{"debug", "info", "warn", "error"}, c.Logging.Level) {
		return fmt.Errorf("invalid logging.level %q", c.Logging.Level)
	}
	if !contains([]string{"text", "json"}, c.Logging.Format) {
		return fmt.Errorf("invalid logging.format %q", c.Logging.Format)
	}
	return nil
}

// CRS parses the configured CRS selector.
func (c *Config) CRS() (model.CRSSelector, error) {
	return model.ParseCRSSelector(c.Dispatch.CRSSelector)
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
