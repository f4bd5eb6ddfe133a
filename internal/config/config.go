package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Engine   EngineConfig  `yaml:"engine"`
	Audio    AudioConfig   `yaml:"audio"`
	Filter   FilterConfig  `yaml:"filter"`
	Metrics  MetricsConfig `yaml:"metrics"`
	LogLevel string        `yaml:"log_level"`

	// ModelPath is the legacy top-level form of engine.model_path, kept so
	// old config files continue to load.
	ModelPath string `yaml:"model_path,omitempty"`
}

// EngineConfig holds speech-engine settings.
type EngineConfig struct {
	Backend   string `yaml:"backend"` // "whisper"
	ModelPath string `yaml:"model_path"`
	Language  string `yaml:"language"`
}

// AudioConfig holds native-rate capture settings.
type AudioConfig struct {
	SampleRate uint32 `yaml:"sample_rate"`
	Channels   uint32 `yaml:"channels"`
}

// FilterConfig holds the filler-detection tunables.
type FilterConfig struct {
	FillerPThreshold float32 `yaml:"filler_p_threshold"`
}

// MetricsConfig holds the Prometheus endpoint settings. An empty address
// disables the endpoint.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "cleanstream")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// DefaultModelsDir returns the default directory for downloaded models.
func DefaultModelsDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".local", "share", "cleanstream", "models")
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Engine: EngineConfig{
			Backend:   "whisper",
			ModelPath: filepath.Join(DefaultModelsDir(), "ggml-tiny.en.bin"),
			Language:  "en",
		},
		Audio: AudioConfig{
			SampleRate: 48000,
			Channels:   1,
		},
		Filter: FilterConfig{
			FillerPThreshold: 0.75,
		},
		Metrics:  MetricsConfig{Addr: ""},
		LogLevel: "info",
	}
}

// Load reads and parses a YAML config file. Missing fields are filled with
// defaults. Tilde (~) in model paths is expanded to the user's home
// directory, and the legacy top-level model_path maps to engine.model_path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if cfg.ModelPath != "" {
		cfg.Engine.ModelPath = cfg.ModelPath
		cfg.ModelPath = ""
	}
	cfg.Engine.ModelPath = expandTilde(cfg.Engine.ModelPath)

	return cfg, nil
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	switch c.Engine.Backend {
	case "whisper", "":
	default:
		return fmt.Errorf("engine.backend must be \"whisper\", got %q", c.Engine.Backend)
	}

	if c.Engine.ModelPath == "" {
		return fmt.Errorf("engine.model_path must not be empty")
	}

	if c.Audio.SampleRate == 0 {
		return fmt.Errorf("audio.sample_rate must be > 0")
	}

	if c.Audio.Channels == 0 || c.Audio.Channels > 2 {
		return fmt.Errorf("audio.channels must be 1 or 2, got %d", c.Audio.Channels)
	}

	if c.Filter.FillerPThreshold < 0 || c.Filter.FillerPThreshold > 1 {
		return fmt.Errorf("filter.filler_p_threshold must be in [0, 1], got %v", c.Filter.FillerPThreshold)
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	return nil
}

// WriteDefault writes the default config to the default path when no config
// file exists yet. It returns the written path, or "" when a file was
// already present.
func WriteDefault() (string, error) {
	dir := DefaultConfigDir()
	if dir == "" {
		return "", fmt.Errorf("cannot determine config directory")
	}
	path := filepath.Join(dir, "config.yaml")

	if _, err := os.Stat(path); err == nil {
		return "", nil
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating config dir: %w", err)
	}

	data, err := yaml.Marshal(Default())
	if err != nil {
		return "", fmt.Errorf("marshaling default config: %w", err)
	}
	header := "# cleanstream configuration\n# See README.md for the full set of options.\n"
	if err := os.WriteFile(path, append([]byte(header), data...), 0o644); err != nil {
		return "", fmt.Errorf("writing default config: %w", err)
	}

	return path, nil
}

// ParseLogLevel maps a config log level string to a zap level. Unknown
// values default to info.
func ParseLogLevel(s string) zapcore.Level {
	switch s {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// expandTilde replaces a leading ~ with the user's home directory.
func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
