package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/san-kum/deepsim/internal/sample"
	"github.com/san-kum/deepsim/internal/scene"
	"gopkg.in/yaml.v3"
)

const (
	DefaultReceiveTimeout = 30 * time.Second
	DefaultDialTimeout    = 10 * time.Second
	DefaultPort           = 10000
	DefaultMaxSamples     = 1000
)

// Config is an environment definition: the scene a worker builds plus the
// session, server and logging settings around it.
type Config struct {
	Scene   scene.BeamConfig `yaml:"scene"`
	Session SessionConfig    `yaml:"session"`
	Server  ServerConfig     `yaml:"server"`
	Logging LoggingConfig    `yaml:"logging"`
}

type SessionConfig struct {
	// MaxSteps stops the session after that many steps; 0 runs until the
	// server closes it.
	MaxSteps       int           `yaml:"max_steps"`
	ReceiveTimeout time.Duration `yaml:"receive_timeout"`
	DialTimeout    time.Duration `yaml:"dial_timeout"`
	Encoding       string        `yaml:"encoding"`
	// OutputFill is "zero" or "rest", see sample.Fill.
	OutputFill    string  `yaml:"output_fill"`
	GridTolerance float64 `yaml:"grid_tolerance"`
	Color         string  `yaml:"color"`
}

type ServerConfig struct {
	Address    string `yaml:"address"`
	Port       int    `yaml:"port"`
	Dataset    string `yaml:"dataset"`
	Predictor  string `yaml:"predictor"`
	MaxSamples int    `yaml:"max_samples"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func DefaultConfig() *Config {
	return &Config{
		Scene: scene.DefaultBeamConfig(),
		Session: SessionConfig{
			ReceiveTimeout: DefaultReceiveTimeout,
			DialTimeout:    DefaultDialTimeout,
			Encoding:       sample.FirstNonZero.String(),
			OutputFill:     sample.FillZero.String(),
			GridTolerance:  1e-6,
			Color:          "green",
		},
		Server: ServerConfig{
			Address:    "127.0.0.1",
			Port:       DefaultPort,
			Dataset:    "dataset/deepsim.db",
			Predictor:  "none",
			MaxSamples: DefaultMaxSamples,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads a YAML file over the defaults and applies environment
// overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (c *Config) Validate() error {
	if err := c.Scene.Validate(); err != nil {
		return err
	}
	if c.Session.MaxSteps < 0 {
		return fmt.Errorf("max_steps must be non-negative, got %d", c.Session.MaxSteps)
	}
	if c.Session.ReceiveTimeout <= 0 {
		return fmt.Errorf("receive_timeout must be positive, got %v", c.Session.ReceiveTimeout)
	}
	if c.Session.DialTimeout < 0 {
		return fmt.Errorf("dial_timeout must be non-negative, got %v", c.Session.DialTimeout)
	}
	if _, err := sample.ParseEncoding(c.Session.Encoding); err != nil {
		return err
	}
	if _, err := sample.ParseFill(c.Session.OutputFill); err != nil {
		return err
	}
	if c.Session.GridTolerance < 0 {
		return fmt.Errorf("grid_tolerance must be non-negative, got %g", c.Session.GridTolerance)
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}
	validPredictors := map[string]bool{"none": true, "zero": true, "echo": true}
	if !validPredictors[c.Server.Predictor] {
		return fmt.Errorf("invalid predictor: %s (valid: none, zero, echo)", c.Server.Predictor)
	}
	if c.Server.MaxSamples < 0 {
		return fmt.Errorf("max_samples must be non-negative, got %d", c.Server.MaxSamples)
	}
	validLevels := map[string]bool{"": true, "debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error)", c.Logging.Level)
	}
	validFormats := map[string]bool{"": true, "text": true, "json": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s (valid: text, json)", c.Logging.Format)
	}
	return nil
}

// EncodingMode returns the parsed force encoding. Call Validate first.
func (c *Config) EncodingMode() sample.Encoding {
	enc, _ := sample.ParseEncoding(c.Session.Encoding)
	return enc
}

func (c *Config) FillMode() sample.Fill {
	fill, _ := sample.ParseFill(c.Session.OutputFill)
	return fill
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DEEPSIM_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("DEEPSIM_MAX_STEPS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Session.MaxSteps = n
		}
	}
	if v := os.Getenv("DEEPSIM_RECEIVE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Session.ReceiveTimeout = d
		}
	}
}
