package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/billm/baaaht/mpchan/internal/config"
	"github.com/billm/baaaht/mpchan/internal/logger"
	"github.com/billm/baaaht/mpchan/pkg/mp"
	"github.com/billm/baaaht/mpchan/pkg/process"
)

// version is the mpctl release
const version = "0.1.0"

var (
	// CLI flags
	cfgFile        string
	logLevel       string
	logFormat      string
	logOutput      string
	processType    string
	runtimeDir     string
	filePrefix     string
	socketPrefix   string
	requestTimeout time.Duration
	sendTimeout    time.Duration
	metricsAddr    string

	// Global variables
	rootLog *logger.Logger
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "mpctl",
	Short: "Multi-process channel tool",
	Long: `mpctl runs and talks to processes sharing a multi-process channel.

One primary process binds the channel socket; secondary processes bind their
own sockets next to it and exchange fixed-size messages with the primary,
including file descriptors.`,
	Version:      version,
	SilenceUsage: true,
}

// loadConfig loads the configuration from file, environment and CLI flags.
// defaultType replaces the configured process type when --type is not given.
func loadConfig(cmd *cobra.Command, defaultType string) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if cfgFile != "" {
		cfg, err = config.LoadPath(cfgFile, true)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	if defaultType != "" && !cmd.Flags().Changed("type") {
		cfg.Process.Type = defaultType
	}
	cfg.ApplyOverrides(config.OverrideOptions{
		LogLevel:       logLevel,
		LogFormat:      logFormat,
		LogOutput:      logOutput,
		ProcessType:    processType,
		RuntimeDir:     runtimeDir,
		FilePrefix:     filePrefix,
		MetricsAddr:    metricsAddr,
		SendTimeout:    sendTimeout,
		RequestTimeout: requestTimeout,
	})
	if socketPrefix != "" {
		cfg.Channel.SocketPrefix = socketPrefix
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// initLogger initializes the global logger from the configuration
func initLogger(cfg config.LoggingConfig) error {
	log, err := logger.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	rootLog = log
	logger.SetGlobal(log)
	return nil
}

// openChannel resolves the process role and creates a channel that is not
// initialized yet
func openChannel(cmd *cobra.Command, defaultType string) (*config.Config, *process.Runtime, *mp.Channel, error) {
	cfg, err := loadConfig(cmd, defaultType)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := initLogger(cfg.Logging); err != nil {
		return nil, nil, nil, err
	}

	rt, err := process.Setup(cfg.Process, cfg.Channel.SocketPrefix)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to set up process runtime: %w", err)
	}

	ch, err := mp.New(cfg.Channel, rt, rootLog)
	if err != nil {
		rt.Close()
		return nil, nil, nil, fmt.Errorf("failed to create channel: %w", err)
	}
	return cfg, rt, ch, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"Config file path (default: ~/.config/mpchan/config.yaml if present)")

	// Logging flags
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Log level: debug, info, warn, error (default: from config or env)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "",
		"Log format: json, text (default: from config or env)")
	rootCmd.PersistentFlags().StringVar(&logOutput, "log-output", "",
		"Log output: stdout, stderr, or file path (default: from config or env)")

	// Process flags
	rootCmd.PersistentFlags().StringVar(&processType, "type", "",
		"Process type: primary, secondary, auto")
	rootCmd.PersistentFlags().StringVar(&runtimeDir, "runtime-dir", "",
		"Directory holding the runtime files of every channel")
	rootCmd.PersistentFlags().StringVar(&filePrefix, "file-prefix", "",
		"Name of this channel under the runtime directory")
	rootCmd.PersistentFlags().StringVar(&socketPrefix, "socket", "",
		"Primary socket path, overriding the one derived from the runtime directory")

	// Channel flags
	rootCmd.PersistentFlags().DurationVar(&requestTimeout, "timeout", 0,
		"Request timeout (default: from config or env)")
	rootCmd.PersistentFlags().DurationVar(&sendTimeout, "send-timeout", 0,
		"How long to retry a peer whose queue is full")

	rootCmd.AddCommand(daemonCmd, sendCmd, requestCmd, peersCmd, aliveCmd)
}
