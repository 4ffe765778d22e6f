package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/straja-ai/triage/internal/config"
	"github.com/straja-ai/triage/internal/logging"
)

// version is set at build time via -ldflags.
var version = "dev"

var (
	configPath string
	logLevel   string

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "triage",
	Short: "Classify security evidence as safe, suspicious or malicious",
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		loaded, err := loadConfig(configPath, logLevel)
		if err != nil {
			return err
		}
		cfg = loaded
		logging.Init(cfg.Logging.Level, cfg.Logging.Format)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "triage.yaml", "Path to config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level override (debug, info, warn, error)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(classifyCmd)
	rootCmd.AddCommand(monitorCmd)
	rootCmd.AddCommand(benchCmd)
	rootCmd.Version = version
}

// loadConfig reads and validates the config file. A missing file yields
// defaults.
func loadConfig(path, levelOverride string) (*config.Config, error) {
	c, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if levelOverride != "" {
		c.Logging.Level = levelOverride
	}
	if err := config.Validate(c); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return c, nil
}
