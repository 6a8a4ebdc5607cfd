package config

import (
	"os"
	"path/filepath"
	"time"
)

// testConfigPath is an override for the default config path used in testing
// If set, GetDefaultConfigPath will return this value instead of the standard path
var testConfigPath string

// SetTestConfigPath sets a custom config path for testing purposes
// This should only be called from tests
func SetTestConfigPath(path string) {
	testConfigPath = path
}

// GetConfigDir returns the mpchan configuration directory
// Uses ~/.config/mpchan/ on Unix systems
func GetConfigDir() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "mpchan"), nil
}

// GetDefaultConfigPath returns the default config file path
func GetDefaultConfigPath() (string, error) {
	if testConfigPath != "" {
		return testConfigPath, nil
	}

	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "config.yaml"), nil
}

// DefaultRuntimeDir returns the base directory that holds per-prefix runtime state.
// Root uses /var/run/mpchan; other users prefer $XDG_RUNTIME_DIR and fall back to the
// system temp directory.
func DefaultRuntimeDir() string {
	if os.Geteuid() == 0 {
		return "/var/run/mpchan"
	}
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "mpchan")
	}
	return filepath.Join(os.TempDir(), "mpchan")
}

const (
	// Environment variable names
	EnvLogLevel       = "MP_LOG_LEVEL"
	EnvLogFormat      = "MP_LOG_FORMAT"
	EnvLogOutput      = "MP_LOG_OUTPUT"
	EnvRequestTimeout = "MP_REQUEST_TIMEOUT"
	EnvSendTimeout    = "MP_SEND_TIMEOUT"
	EnvSocketPrefix   = "MP_SOCKET_PREFIX"
	EnvProcessType    = "MP_PROCESS_TYPE"
	EnvRuntimeDir     = "MP_RUNTIME_DIR"
	EnvFilePrefix     = "MP_FILE_PREFIX"
	EnvMetricsEnabled = "MP_METRICS_ENABLED"
	EnvMetricsAddr    = "MP_METRICS_ADDR"
)

const (
	// Default logging settings
	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"

	// Default channel settings
	DefaultRequestTimeout = 5 * time.Second
	DefaultSendTimeout    = 100 * time.Millisecond

	// Default process settings
	DefaultProcessType = "auto"
	DefaultFilePrefix  = "mp"

	// Default metrics settings
	DefaultMetricsAddr = "127.0.0.1:9464"
	DefaultMetricsPath = "/metrics"
)

// DefaultLoggingConfig returns the default logging configuration
func DefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		Level:  DefaultLogLevel,
		Format: DefaultLogFormat,
		Output: "stderr",
	}
}

// DefaultChannelConfig returns the default channel configuration
func DefaultChannelConfig() ChannelConfig {
	return ChannelConfig{
		RequestTimeout: DefaultRequestTimeout,
		SendTimeout:    DefaultSendTimeout,
	}
}

// DefaultProcessConfig returns the default process configuration
func DefaultProcessConfig() ProcessConfig {
	return ProcessConfig{
		Type:       DefaultProcessType,
		RuntimeDir: DefaultRuntimeDir(),
		FilePrefix: DefaultFilePrefix,
	}
}

// DefaultMetricsConfig returns the default metrics configuration
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Enabled: false,
		Address: DefaultMetricsAddr,
		Path:    DefaultMetricsPath,
	}
}
