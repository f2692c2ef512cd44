// Package cmd provides the CLI commands for carechat.
package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/inercia/carechat/internal/appdir"
	"github.com/inercia/carechat/internal/config"
	"github.com/inercia/carechat/internal/logging"
)

var (
	// Global flags
	configPath    string
	debug         bool
	logLevel      string // --log-level flag (debug, info, warn, error)
	logFile       string
	logJSON       bool
	logComponents string

	// Loaded configuration
	cfg *config.Config
	// configResult contains metadata about where config was loaded from
	configResult *config.LoadResult
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "carechat",
	Short: "carechat - a terminal client for the patient care chat",
	Long: `carechat connects patients and care experts to the care chat server.

Patients talk either to a human expert or to the automated assistant,
and can upload their discharge note so the expert (or the assistant)
knows the context of the conversation.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip config loading for help and completion commands
		if cmd.Name() == "help" || cmd.Name() == "completion" {
			return nil
		}

		var err error
		configResult, err = config.LoadWithFallback(configPath)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		cfg = configResult.Config

		if err := logging.Initialize(loggingConfig(cfg.Logging)); err != nil {
			return fmt.Errorf("failed to initialize logging: %w", err)
		}

		if err := appdir.EnsureDir(); err != nil {
			return fmt.Errorf("failed to create carechat directory: %w", err)
		}

		logging.CLI().Debug("configuration loaded",
			"source", configResult.Source.String(),
			"path", configResult.SourcePath)
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		// Clean up logging resources
		return logging.Close()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Configuration file path (default: ~/.carechatrc or $"+config.RCFileEnv+")")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging (shorthand for --log-level=debug)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (default: info)")
	rootCmd.PersistentFlags().StringVarP(&logFile, "logfile", "l", "", "Log file path (logs are also written to console)")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "Write logs as JSON")
	rootCmd.PersistentFlags().StringVar(&logComponents, "log-components", "", "Comma-separated list of components to log (e.g., 'session,transport'). Empty means all components.")
}

// loggingConfig merges the logging flags over the configuration file.
// Priority: --log-level flag > --debug flag > config file > info.
func loggingConfig(fileCfg config.LoggingConfig) logging.Config {
	level := "info"
	switch {
	case logLevel != "":
		level = logLevel
	case debug:
		level = "debug"
	case fileCfg.Level != "":
		level = fileCfg.Level
	}

	file := logFile
	if file == "" {
		file = fileCfg.File
	}

	return logging.Config{
		Level:      level,
		File:       file,
		JSON:       logJSON || fileCfg.JSON,
		Components: splitComponents(logComponents),
	}
}

// splitComponents parses the --log-components value.
func splitComponents(s string) []string {
	var components []string
	for _, c := range strings.Split(s, ",") {
		c = strings.TrimSpace(c)
		if c != "" {
			components = append(components, c)
		}
	}
	return components
}
