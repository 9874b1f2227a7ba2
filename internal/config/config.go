package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/skypro1111/storyreel/internal/style"
)

// EnvPrefix prefixes every environment override
const EnvPrefix = "STORYREEL_"

// Config represents the complete client configuration
type Config struct {
	Service ServiceConfig `yaml:"service"`
	Audio   AudioConfig   `yaml:"audio"`
	Run     RunConfig     `yaml:"run"`
	Status  StatusConfig  `yaml:"status"`
	History HistoryConfig `yaml:"history"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServiceConfig contains the generation service connection settings
type ServiceConfig struct {
	BaseURL         string  `yaml:"base_url"`
	RequestTimeout  int     `yaml:"request_timeout"`  // seconds
	GenerateTimeout int     `yaml:"generate_timeout"` // seconds, 0 waits indefinitely
	PollInterval    float64 `yaml:"poll_interval"`    // seconds
}

// AudioConfig contains microphone capture parameters
type AudioConfig struct {
	FramesPerBuffer int     `yaml:"frames_per_buffer"`
	QueueSize       int     `yaml:"queue_size"`
	PreviewDir      string  `yaml:"preview_dir"` // empty uses the OS temp dir
	NamePrefix      string  `yaml:"name_prefix"`
	VoiceThreshold  float64 `yaml:"voice_threshold"` // frame RMS counted as speech
}

// RunConfig contains generation run defaults
type RunConfig struct {
	DefaultStyle  string `yaml:"default_style"`
	DefaultScenes int    `yaml:"default_scenes"` // 0 lets the service decide
	MinScenes     int    `yaml:"min_scenes"`
	MaxScenes     int    `yaml:"max_scenes"`
}

// StatusConfig contains the local status HTTP server configuration
type StatusConfig struct {
	Port    int    `yaml:"port"`
	Address string `yaml:"address"`
	Enabled bool   `yaml:"enabled"`
}

// HistoryConfig contains run history storage configuration
type HistoryConfig struct {
	Path string `yaml:"path"` // empty disables history
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Default returns a configuration that works against a local service
func Default() *Config {
	return &Config{
		Service: ServiceConfig{
			BaseURL:         "http://localhost:8000",
			RequestTimeout:  10,
			GenerateTimeout: 0,
			PollInterval:    2,
		},
		Audio: AudioConfig{
			FramesPerBuffer: 4096,
			QueueSize:       64,
			NamePrefix:      "voice-recording",
			VoiceThreshold:  0.01,
		},
		Run: RunConfig{
			DefaultStyle: string(style.Default),
			MinScenes:    1,
			MaxScenes:    20,
		},
		Status: StatusConfig{
			Port:    9090,
			Address: "127.0.0.1",
			Enabled: false,
		},
		History: HistoryConfig{
			Path: "storyreel.db",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}

// Load reads the configuration file at path on top of the defaults, applies
// environment overrides and validates the result. A missing file is not an
// error when allowMissing is set.
func Load(path string, allowMissing bool) (*Config, error) {
	config := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	case allowMissing && errors.Is(err, fs.ErrNotExist):
	default:
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err := config.ApplyEnv(os.LookupEnv); err != nil {
		return nil, fmt.Errorf("environment overrides: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// LoadDotEnv loads variables from the given .env files into the process
// environment. Missing files are skipped; variables already set win.
func LoadDotEnv(files ...string) error {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}

// ApplyEnv overrides configuration values from STORYREEL_* variables
// returned by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	env := envReader{lookup: lookup}

	env.str("BASE_URL", &c.Service.BaseURL)
	env.int("REQUEST_TIMEOUT", &c.Service.RequestTimeout)
	env.int("GENERATE_TIMEOUT", &c.Service.GenerateTimeout)
	env.float("POLL_INTERVAL", &c.Service.PollInterval)
	env.str("PREVIEW_DIR", &c.Audio.PreviewDir)
	env.str("DEFAULT_STYLE", &c.Run.DefaultStyle)
	env.int("DEFAULT_SCENES", &c.Run.DefaultScenes)
	env.bool("STATUS_ENABLED", &c.Status.Enabled)
	env.str("STATUS_ADDRESS", &c.Status.Address)
	env.int("STATUS_PORT", &c.Status.Port)
	env.str("HISTORY_PATH", &c.History.Path)
	env.str("LOG_LEVEL", &c.Logging.Level)
	env.str("LOG_FORMAT", &c.Logging.Format)
	env.str("LOG_OUTPUT", &c.Logging.Output)

	return errors.Join(env.errs...)
}

type envReader struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (e *envReader) get(key string) (string, bool) {
	v, ok := e.lookup(EnvPrefix + key)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func (e *envReader) str(key string, dst *string) {
	if v, ok := e.get(key); ok {
		*dst = v
	}
}

func (e *envReader) int(key string, dst *int) {
	v, ok := e.get(key)
	if !ok || v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s%s: invalid integer %q", EnvPrefix, key, v))
		return
	}
	*dst = n
}

func (e *envReader) float(key string, dst *float64) {
	v, ok := e.get(key)
	if !ok || v == "" {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s%s: invalid number %q", EnvPrefix, key, v))
		return
	}
	*dst = f
}

func (e *envReader) bool(key string, dst *bool) {
	v, ok := e.get(key)
	if !ok || v == "" {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s%s: invalid boolean %q", EnvPrefix, key, v))
		return
	}
	*dst = b
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.Service.Validate(); err != nil {
		return fmt.Errorf("service config: %w", err)
	}

	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}

	if err := c.Run.Validate(); err != nil {
		return fmt.Errorf("run config: %w", err)
	}

	if err := c.Status.Validate(); err != nil {
		return fmt.Errorf("status config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates service configuration
func (s *ServiceConfig) Validate() error {
	if s.BaseURL == "" {
		return fmt.Errorf("base_url cannot be empty")
	}

	if !strings.HasPrefix(s.BaseURL, "http://") && !strings.HasPrefix(s.BaseURL, "https://") {
		return fmt.Errorf("base_url must start with http:// or https://, got '%s'", s.BaseURL)
	}

	if s.RequestTimeout < 1 {
		return fmt.Errorf("request_timeout must be at least 1 second, got %d", s.RequestTimeout)
	}

	if s.GenerateTimeout < 0 {
		return fmt.Errorf("generate_timeout cannot be negative, got %d", s.GenerateTimeout)
	}

	if s.PollInterval < 0.1 {
		return fmt.Errorf("poll_interval must be at least 0.1 seconds, got %f", s.PollInterval)
	}

	return nil
}

// Validate validates audio configuration
func (a *AudioConfig) Validate() error {
	if a.FramesPerBuffer < 64 || a.FramesPerBuffer > 65536 {
		return fmt.Errorf("frames_per_buffer must be between 64 and 65536, got %d", a.FramesPerBuffer)
	}

	if a.QueueSize < 1 {
		return fmt.Errorf("queue_size must be at least 1, got %d", a.QueueSize)
	}

	if a.NamePrefix == "" {
		return fmt.Errorf("name_prefix cannot be empty")
	}

	if a.VoiceThreshold <= 0 || a.VoiceThreshold >= 1 {
		return fmt.Errorf("voice_threshold must be between 0 and 1, got %f", a.VoiceThreshold)
	}

	return nil
}

// Validate validates run configuration
func (r *RunConfig) Validate() error {
	if !style.Builtin().Valid(style.Key(r.DefaultStyle)) {
		return fmt.Errorf("default_style must be one of [%s], got '%s'",
			strings.Join(style.Builtin().Keys(), ", "), r.DefaultStyle)
	}

	if r.MinScenes < 1 {
		return fmt.Errorf("min_scenes must be at least 1, got %d", r.MinScenes)
	}

	if r.MaxScenes < r.MinScenes {
		return fmt.Errorf("max_scenes (%d) must not be less than min_scenes (%d)", r.MaxScenes, r.MinScenes)
	}

	if r.DefaultScenes != 0 && (r.DefaultScenes < r.MinScenes || r.DefaultScenes > r.MaxScenes) {
		return fmt.Errorf("default_scenes must be 0 or between %d and %d, got %d",
			r.MinScenes, r.MaxScenes, r.DefaultScenes)
	}

	return nil
}

// CheckScenes reports whether n is an acceptable scene count. Zero means
// unset and is always accepted.
func (r *RunConfig) CheckScenes(n int) error {
	if n == 0 {
		return nil
	}
	if n < r.MinScenes || n > r.MaxScenes {
		return fmt.Errorf("number of scenes must be between %d and %d, got %d", r.MinScenes, r.MaxScenes, n)
	}
	return nil
}

// Validate validates status server configuration
func (s *StatusConfig) Validate() error {
	if s.Enabled {
		if s.Port < 1 || s.Port > 65535 {
			return fmt.Errorf("status port must be between 1 and 65535, got %d", s.Port)
		}

		if s.Address == "" {
			return fmt.Errorf("status address cannot be empty when the status server is enabled")
		}
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	// Any other output value is treated as a file path
	return nil
}

// GetRequestTimeout returns the request timeout as a time.Duration
func (s *ServiceConfig) GetRequestTimeout() time.Duration {
	return time.Duration(s.RequestTimeout) * time.Second
}

// GetGenerateTimeout returns the generate timeout as a time.Duration
func (s *ServiceConfig) GetGenerateTimeout() time.Duration {
	return time.Duration(s.GenerateTimeout) * time.Second
}

// GetPollInterval returns the log polling interval as a time.Duration
func (s *ServiceConfig) GetPollInterval() time.Duration {
	return time.Duration(s.PollInterval * float64(time.Second))
}

// GetAddr returns the status server listen address
func (s *StatusConfig) GetAddr() string {
	return fmt.Sprintf("%s:%d", s.Address, s.Port)
}
