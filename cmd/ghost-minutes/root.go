package main

import (
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sjawhar/ghost-minutes/internal/config"
)

var version = "dev"

// globalOptions is shared by every subcommand once PersistentPreRunE has
// loaded the configuration.
type globalOptions struct {
	configPath string
	debug      bool

	cfg      config.Config
	warnings []string
}

func newRootCommand() *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:   "ghost-minutes",
		Short: "Ghost Minutes - meeting transcription and minutes pipeline",
		Long: `Ghost Minutes turns meeting recordings and live transcripts into
segmented transcripts and structured minutes (summary, topics, decisions,
action items).`,
		Version:      version,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "config.yaml", "Path to the YAML config file")
	cmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "Enable debug logging")
	cmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		cfg, warnings, err := config.Load(opts.configPath)
		if err != nil {
			return err
		}
		if opts.debug {
			cfg.Server.LogLevel = "debug"
		}
		opts.cfg = cfg
		opts.warnings = warnings

		slog.SetDefault(newLogger(cmd.ErrOrStderr(), cfg.Server))
		for _, w := range warnings {
			slog.Warn("config", "warning", w)
		}
		return nil
	}

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newTranscribeCommand(opts))
	cmd.AddCommand(newBlocksCommand(opts))

	return cmd
}

func execute() error {
	rootCmd := newRootCommand()
	return rootCmd.Execute()
}

func newLogger(w io.Writer, cfg config.Server) *slog.Logger {
	handlerOpts := &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}
	if strings.EqualFold(cfg.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(w, handlerOpts))
	}
	return slog.New(slog.NewTextHandler(w, handlerOpts))
}

func parseLevel(raw string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(raw))); err != nil {
		return slog.LevelInfo
	}
	return level
}
