package config

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/billm/baaaht/mpchan/pkg/types"
	"gopkg.in/yaml.v3"
)

// envVarPattern matches ${NAME} and ${NAME:-fallback}
var envVarPattern = regexp.MustCompile(`\$\{([a-zA-Z_][a-zA-Z0-9_]*)(?::-([^}]*))?\}`)

// interpolateEnvVars expands ${NAME} placeholders in s. An unset or empty
// variable yields its fallback, or nothing.
func interpolateEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if value := os.Getenv(groups[1]); value != "" {
			return value
		}
		return groups[2]
	})
}

// LoadFromFile reads a YAML configuration file. Fields the file leaves out get
// their defaults; environment overrides are applied by LoadPath, not here.
func LoadFromFile(path string) (*Config, error) {
	if ext := strings.ToLower(filepath.Ext(path)); ext != ".yaml" && ext != ".yml" {
		return nil, types.NewError(types.ErrCodeInvalid, "configuration file must be .yaml or .yml: "+path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, types.WrapError(types.ErrCodeNotFound, "configuration file not found: "+path, err)
		}
		return nil, types.WrapError(types.ErrCodeInvalid, "failed to read configuration file: "+path, err)
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, types.WrapError(types.ErrCodeInvalid, "invalid YAML in "+path, err)
	}
	if len(doc.Content) == 0 {
		return nil, types.NewError(types.ErrCodeInvalid, "configuration file is empty: "+path)
	}

	var cfg Config
	if err := doc.Decode(&cfg); err != nil {
		return nil, types.WrapError(types.ErrCodeInvalid, "failed to decode "+path, err)
	}

	for _, field := range []*string{
		&cfg.Logging.Level, &cfg.Logging.Format, &cfg.Logging.Output,
		&cfg.Channel.SocketPrefix,
		&cfg.Process.Type, &cfg.Process.RuntimeDir, &cfg.Process.FilePrefix,
		&cfg.Metrics.Address, &cfg.Metrics.Path,
	} {
		*field = interpolateEnvVars(*field)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, types.WrapError(types.ErrCodeInvalid, "invalid configuration in "+path, err)
	}
	return &cfg, nil
}
