package main

import (
	"github.com/spf13/cobra"

	"github.com/NicolasKol/reforge/internal/config"
	"github.com/NicolasKol/reforge/internal/logging"
	"github.com/NicolasKol/reforge/internal/version"
)

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "reforge",
	Short: "Reforge - reverse-engineering experiment pipeline",
	Long: `Reforge compiles synthetic C programs across a build matrix, extracts
function-level ground truth from DWARF, indexes preprocessed source with
tree-sitter, and joins both views to decompiler output, producing a
provenance-rich substrate for downstream evaluation.`,
	Version: version.Version,
}

func init() {
	rootCmd.SetVersionTemplate("Reforge version {{.Version}}\n")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to reforge.json")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
}

// loadConfig resolves the workspace configuration with CLI overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	return cfg, nil
}

// newLogger builds the process logger from config.
func newLogger(cfg *config.Config) *logging.Logger {
	format := logging.HumanFormat
	if cfg.Logging.Format == "json" {
		format = logging.JSONFormat
	}
	return logging.NewLogger(logging.Config{
		Format: format,
		Level:  logging.LogLevel(cfg.Logging.Level),
	})
}
