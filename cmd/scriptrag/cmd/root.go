// Package cmd provides the CLI commands for ScriptRAG.
package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/trieloff/scriptrag/internal/config"
	"github.com/trieloff/scriptrag/internal/logging"
	"github.com/trieloff/scriptrag/pkg/version"
)

var (
	configPath     string
	debugMode      bool
	loggingCleanup func()
)

// NewRootCmd creates the root command for the scriptrag CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scriptrag",
		Short: "Hybrid search over screenplay projects",
		Long: `ScriptRAG indexes screenplays and series bibles, generates
embeddings for scenes and lines, and serves hybrid search combining
SQL text search with semantic similarity.

Index a script, then search it:
  scriptrag index pilot.json
  scriptrag search "where does sarah confront marcus"`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.SetVersionTemplate("scriptrag version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default ~/.scriptrag/config.yaml)")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to ~/.scriptrag/logs/")

	cmd.PersistentPreRunE = setupLogging
	cmd.PersistentPostRunE = teardownLogging

	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func setupLogging(_ *cobra.Command, _ []string) error {
	cfg := logging.DefaultConfig()
	if debugMode {
		cfg = logging.DebugConfig()
	}

	logger, cleanup, err := logging.Setup(cfg)
	if err != nil {
		// Logging must never block the CLI; fall back to the default.
		slog.Warn("cannot set up file logging", slog.String("error", err.Error()))
		return nil
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)
	return nil
}

func teardownLogging(_ *cobra.Command, _ []string) error {
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
	return nil
}

// loadConfig loads the configured or default config file, falling back
// to defaults when none exists.
func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.Load(configPath)
	}
	return config.LoadOrDefault(config.DefaultPath())
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
