package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/billm/baaaht/mpchan/pkg/types"
)

// Config represents the complete configuration for a channel process
type Config struct {
	Logging LoggingConfig `json:"logging" yaml:"logging"`
	Channel ChannelConfig `json:"channel" yaml:"channel"`
	Process ProcessConfig `json:"process" yaml:"process"`
	Metrics MetricsConfig `json:"metrics" yaml:"metrics"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level"`   // debug, info, warn, error
	Format string `json:"format" yaml:"format"` // json, text
	Output string `json:"output" yaml:"output"` // stdout, stderr, file path
}

// ChannelConfig contains multi-process channel configuration
type ChannelConfig struct {
	// RequestTimeout is the default reply deadline used when a caller passes zero.
	RequestTimeout time.Duration `json:"request_timeout" yaml:"request_timeout"`
	// SendTimeout bounds retries against a peer whose receive queue is full.
	SendTimeout time.Duration `json:"send_timeout" yaml:"send_timeout"`
	// SocketPrefix overrides the socket path derived from the process runtime directory.
	SocketPrefix string `json:"socket_prefix,omitempty" yaml:"socket_prefix,omitempty"`
}

// ProcessConfig describes how this process joins the shared runtime
type ProcessConfig struct {
	Type       string `json:"type" yaml:"type"` // primary, secondary, auto
	RuntimeDir string `json:"runtime_dir" yaml:"runtime_dir"`
	FilePrefix string `json:"file_prefix" yaml:"file_prefix"`
}

// MetricsConfig contains metrics configuration
type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Address string `json:"address" yaml:"address"`
	Path    string `json:"path" yaml:"path"`
}

// OverrideOptions holds CLI flag values applied after defaults, file and environment
type OverrideOptions struct {
	LogLevel       string
	LogFormat      string
	LogOutput      string
	ProcessType    string
	RuntimeDir     string
	FilePrefix     string
	MetricsAddr    string
	SendTimeout    time.Duration
	RequestTimeout time.Duration
}

// applyDefaults fills zero-valued fields left unset by a configuration file
func applyDefaults(cfg *Config) {
	defLog := DefaultLoggingConfig()
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = defLog.Level
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = defLog.Format
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = defLog.Output
	}

	defChan := DefaultChannelConfig()
	if cfg.Channel.RequestTimeout == 0 {
		cfg.Channel.RequestTimeout = defChan.RequestTimeout
	}
	if cfg.Channel.SendTimeout == 0 {
		cfg.Channel.SendTimeout = defChan.SendTimeout
	}

	defProc := DefaultProcessConfig()
	if cfg.Process.Type == "" {
		cfg.Process.Type = defProc.Type
	}
	if cfg.Process.RuntimeDir == "" {
		cfg.Process.RuntimeDir = defProc.RuntimeDir
	}
	if cfg.Process.FilePrefix == "" {
		cfg.Process.FilePrefix = defProc.FilePrefix
	}

	defMetrics := DefaultMetricsConfig()
	if cfg.Metrics.Address == "" {
		cfg.Metrics.Address = defMetrics.Address
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = defMetrics.Path
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration
func applyEnvOverrides(cfg *Config) error {
	// Logging
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv(EnvLogFormat); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv(EnvLogOutput); v != "" {
		cfg.Logging.Output = v
	}

	// Channel
	if v := os.Getenv(EnvRequestTimeout); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return types.WrapError(types.ErrCodeInvalid, "invalid "+EnvRequestTimeout, err)
		}
		cfg.Channel.RequestTimeout = d
	}
	if v := os.Getenv(EnvSendTimeout); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return types.WrapError(types.ErrCodeInvalid, "invalid "+EnvSendTimeout, err)
		}
		cfg.Channel.SendTimeout = d
	}
	if v := os.Getenv(EnvSocketPrefix); v != "" {
		cfg.Channel.SocketPrefix = v
	}

	// Process
	if v := os.Getenv(EnvProcessType); v != "" {
		cfg.Process.Type = v
	}
	if v := os.Getenv(EnvRuntimeDir); v != "" {
		cfg.Process.RuntimeDir = v
	}
	if v := os.Getenv(EnvFilePrefix); v != "" {
		cfg.Process.FilePrefix = v
	}

	// Metrics
	if v := os.Getenv(EnvMetricsEnabled); v != "" {
		cfg.Metrics.Enabled = strings.ToLower(v) == "true" || v == "1"
	}
	if v := os.Getenv(EnvMetricsAddr); v != "" {
		cfg.Metrics.Address = v
	}

	return nil
}

// Default returns a configuration populated entirely from defaults
func Default() *Config {
	return &Config{
		Logging: DefaultLoggingConfig(),
		Channel: DefaultChannelConfig(),
		Process: DefaultProcessConfig(),
		Metrics: DefaultMetricsConfig(),
	}
}

// Load creates a new Config from defaults, the default config file if present,
// and environment variables
func Load() (*Config, error) {
	configPath, err := GetDefaultConfigPath()
	if err != nil {
		configPath = ""
	}
	return LoadPath(configPath, false)
}

// LoadPath loads configuration from path (if it exists, or unconditionally when
// required is set) and applies environment overrides
func LoadPath(path string, required bool) (*Config, error) {
	var cfg *Config

	if path != "" {
		_, statErr := os.Stat(path)
		switch {
		case statErr == nil || required:
			loaded, err := LoadFromFile(path)
			if err != nil {
				return nil, err
			}
			cfg = loaded
		case !os.IsNotExist(statErr):
			return nil, fmt.Errorf("failed to check config file: %w", statErr)
		}
	}

	if cfg == nil {
		cfg = Default()
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the configuration for validity
func (c *Config) Validate() error {
	validLogLevels := map[string]bool{
		"debug":   true,
		"info":    true,
		"warn":    true,
		"warning": true,
		"error":   true,
	}
	if !validLogLevels[c.Logging.Level] {
		return types.NewError(types.ErrCodeInvalid, "invalid log level: "+c.Logging.Level)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		return types.NewError(types.ErrCodeInvalid, "log format must be json or text")
	}

	if c.Channel.RequestTimeout <= 0 {
		return types.NewError(types.ErrCodeInvalid, "channel request timeout must be positive")
	}
	if c.Channel.SendTimeout < 0 {
		return types.NewError(types.ErrCodeInvalid, "channel send timeout cannot be negative")
	}

	if _, err := types.ParseProcessRole(c.Process.Type); err != nil {
		return err
	}
	if c.Process.RuntimeDir == "" && c.Channel.SocketPrefix == "" {
		return types.NewError(types.ErrCodeInvalid, "runtime directory cannot be empty")
	}
	if c.Process.FilePrefix == "" {
		return types.NewError(types.ErrCodeInvalid, "file prefix cannot be empty")
	}
	if strings.ContainsAny(c.Process.FilePrefix, "/*?[") {
		return types.NewError(types.ErrCodeInvalid, "file prefix must not contain path separators or glob characters")
	}

	if c.Metrics.Enabled && c.Metrics.Address == "" {
		return types.NewError(types.ErrCodeInvalid, "metrics address cannot be empty when metrics are enabled")
	}

	return nil
}

// ApplyOverrides applies CLI flag-style overrides to the configuration.
func (c *Config) ApplyOverrides(opts OverrideOptions) {
	if opts.LogLevel != "" {
		c.Logging.Level = opts.LogLevel
	}
	if opts.LogFormat != "" {
		c.Logging.Format = opts.LogFormat
	}
	if opts.LogOutput != "" {
		c.Logging.Output = opts.LogOutput
	}
	if opts.ProcessType != "" {
		c.Process.Type = opts.ProcessType
	}
	if opts.RuntimeDir != "" {
		c.Process.RuntimeDir = opts.RuntimeDir
	}
	if opts.FilePrefix != "" {
		c.Process.FilePrefix = opts.FilePrefix
	}
	if opts.MetricsAddr != "" {
		c.Metrics.Enabled = true
		c.Metrics.Address = opts.MetricsAddr
	}
	if opts.SendTimeout > 0 {
		c.Channel.SendTimeout = opts.SendTimeout
	}
	if opts.RequestTimeout > 0 {
		c.Channel.RequestTimeout = opts.RequestTimeout
	}
}

// String returns a string representation of the configuration
func (c *Config) String() string {
	return fmt.Sprintf("Config{Logging: %s, Channel: %s, Process: %s, Metrics: %s}",
		c.Logging, c.Channel, c.Process, c.Metrics)
}

func (c LoggingConfig) String() string {
	return fmt.Sprintf("LoggingConfig{Level: %s, Format: %s, Output: %s}", c.Level, c.Format, c.Output)
}

func (c ChannelConfig) String() string {
	return fmt.Sprintf("ChannelConfig{RequestTimeout: %s, SendTimeout: %s, SocketPrefix: %s}",
		c.RequestTimeout, c.SendTimeout, c.SocketPrefix)
}

func (c ProcessConfig) String() string {
	return fmt.Sprintf("ProcessConfig{Type: %s, RuntimeDir: %s, FilePrefix: %s}", c.Type, c.RuntimeDir, c.FilePrefix)
}

func (c MetricsConfig) String() string {
	return fmt.Sprintf("MetricsConfig{Enabled: %v, Address: %s, Path: %s}", c.Enabled, c.Address, c.Path)
}
