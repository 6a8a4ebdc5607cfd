package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/billm/baaaht/mpchan/pkg/types"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, env := range []string{
		EnvLogLevel, EnvLogFormat, EnvLogOutput, EnvRequestTimeout, EnvSendTimeout,
		EnvSocketPrefix, EnvProcessType, EnvRuntimeDir, EnvFilePrefix,
		EnvMetricsEnabled, EnvMetricsAddr,
	} {
		t.Setenv(env, "")
		os.Unsetenv(env)
	}
}

func TestConfigPrecedence(t *testing.T) {
	tmpDir := t.TempDir()

	t.Run("defaults are used when nothing else is specified", func(t *testing.T) {
		clearEnv(t)
		SetTestConfigPath(filepath.Join(tmpDir, "nonexistent.yaml"))
		defer SetTestConfigPath("")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load() error = %v, want nil", err)
		}

		if cfg.Logging.Level != DefaultLogLevel {
			t.Errorf("Logging.Level = %s, want default %s", cfg.Logging.Level, DefaultLogLevel)
		}
		if cfg.Channel.RequestTimeout != DefaultRequestTimeout {
			t.Errorf("Channel.RequestTimeout = %v, want default %v", cfg.Channel.RequestTimeout, DefaultRequestTimeout)
		}
		if cfg.Process.Type != DefaultProcessType {
			t.Errorf("Process.Type = %s, want default %s", cfg.Process.Type, DefaultProcessType)
		}
		if cfg.Metrics.Enabled {
			t.Error("Metrics.Enabled = true, want false")
		}
	})

	t.Run("YAML overrides defaults", func(t *testing.T) {
		clearEnv(t)
		configPath := filepath.Join(tmpDir, "config-override.yaml")
		yamlContent := `
logging:
  level: debug
  format: text
channel:
  request_timeout: 250ms
  send_timeout: 20ms
process:
  type: secondary
  runtime_dir: /tmp/mp-yaml
  file_prefix: app
`
		if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
			t.Fatalf("failed to write config: %v", err)
		}
		SetTestConfigPath(configPath)
		defer SetTestConfigPath("")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if cfg.Logging.Level != "debug" {
			t.Errorf("Logging.Level = %s, want debug", cfg.Logging.Level)
		}
		if cfg.Channel.RequestTimeout != 250*time.Millisecond {
			t.Errorf("Channel.RequestTimeout = %v, want 250ms", cfg.Channel.RequestTimeout)
		}
		if cfg.Channel.SendTimeout != 20*time.Millisecond {
			t.Errorf("Channel.SendTimeout = %v, want 20ms", cfg.Channel.SendTimeout)
		}
		if cfg.Process.Type != "secondary" {
			t.Errorf("Process.Type = %s, want secondary", cfg.Process.Type)
		}
		if cfg.Process.FilePrefix != "app" {
			t.Errorf("Process.FilePrefix = %s, want app", cfg.Process.FilePrefix)
		}
		// unspecified field falls back to default
		if cfg.Logging.Output != DefaultLoggingConfig().Output {
			t.Errorf("Logging.Output = %s, want default %s", cfg.Logging.Output, DefaultLoggingConfig().Output)
		}
	})

	t.Run("environment overrides YAML", func(t *testing.T) {
		clearEnv(t)
		configPath := filepath.Join(tmpDir, "config-env.yaml")
		if err := os.WriteFile(configPath, []byte("process:\n  type: primary\n"), 0644); err != nil {
			t.Fatalf("failed to write config: %v", err)
		}
		SetTestConfigPath(configPath)
		defer SetTestConfigPath("")

		t.Setenv(EnvProcessType, "secondary")
		t.Setenv(EnvSendTimeout, "7ms")
		t.Setenv(EnvMetricsEnabled, "true")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if cfg.Process.Type != "secondary" {
			t.Errorf("Process.Type = %s, want secondary", cfg.Process.Type)
		}
		if cfg.Channel.SendTimeout != 7*time.Millisecond {
			t.Errorf("Channel.SendTimeout = %v, want 7ms", cfg.Channel.SendTimeout)
		}
		if !cfg.Metrics.Enabled {
			t.Error("Metrics.Enabled = false, want true")
		}
	})

	t.Run("invalid duration in environment is rejected", func(t *testing.T) {
		clearEnv(t)
		SetTestConfigPath(filepath.Join(tmpDir, "nonexistent.yaml"))
		defer SetTestConfigPath("")
		t.Setenv(EnvRequestTimeout, "soon")

		if _, err := Load(); !types.IsErrCode(err, types.ErrCodeInvalid) {
			t.Errorf("Load() error = %v, want %s", err, types.ErrCodeInvalid)
		}
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }, true},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, true},
		{"zero request timeout", func(c *Config) { c.Channel.RequestTimeout = 0 }, true},
		{"negative send timeout", func(c *Config) { c.Channel.SendTimeout = -time.Second }, true},
		{"unknown process type", func(c *Config) { c.Process.Type = "tertiary" }, true},
		{"empty file prefix", func(c *Config) { c.Process.FilePrefix = "" }, true},
		{"glob in file prefix", func(c *Config) { c.Process.FilePrefix = "mp*" }, true},
		{"empty runtime dir without socket prefix", func(c *Config) { c.Process.RuntimeDir = "" }, true},
		{"empty runtime dir with socket prefix", func(c *Config) {
			c.Process.RuntimeDir = ""
			c.Channel.SocketPrefix = "/tmp/x/mp_socket"
		}, false},
		{"metrics enabled without address", func(c *Config) {
			c.Metrics.Enabled = true
			c.Metrics.Address = ""
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestApplyOverrides(t *testing.T) {
	cfg := Default()
	cfg.ApplyOverrides(OverrideOptions{
		LogLevel:    "warn",
		ProcessType: "primary",
		RuntimeDir:  "/run/test",
		MetricsAddr: "127.0.0.1:9999",
		SendTimeout: 3 * time.Millisecond,
	})

	if cfg.Logging.Level != "warn" {
		t.Errorf("Logging.Level = %s, want warn", cfg.Logging.Level)
	}
	if cfg.Process.Type != "primary" {
		t.Errorf("Process.Type = %s, want primary", cfg.Process.Type)
	}
	if cfg.Process.RuntimeDir != "/run/test" {
		t.Errorf("Process.RuntimeDir = %s, want /run/test", cfg.Process.RuntimeDir)
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.Address != "127.0.0.1:9999" {
		t.Errorf("Metrics = %s, want enabled on 127.0.0.1:9999", cfg.Metrics)
	}
	if cfg.Channel.SendTimeout != 3*time.Millisecond {
		t.Errorf("Channel.SendTimeout = %v, want 3ms", cfg.Channel.SendTimeout)
	}
	// untouched fields keep their values
	if cfg.Channel.RequestTimeout != DefaultRequestTimeout {
		t.Errorf("Channel.RequestTimeout = %v, want %v", cfg.Channel.RequestTimeout, DefaultRequestTimeout)
	}
}
