package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sjawhar/ghost-minutes/internal/server"
)

func newServeCommand(opts *globalOptions) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the processing workers",
		Long: `Run the HTTP API and the background processing workers.

Meetings are created live (segments pushed over the API) or from an audio
reference (local path, http(s) URL or azblob://container/blob). Processing
runs in the background; pass ?wait=true to block on a trigger instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.cfg
			if listen != "" {
				cfg.Server.Listen = listen
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg, opts.warnings)
			if err != nil {
				return err
			}
			defer func() {
				if err := a.close(); err != nil {
					slog.Warn("shutdown", "error", err)
				}
			}()

			slog.Info("ghost-minutes starting", "version", version, "listen", cfg.Server.Listen)
			return server.Serve(ctx, cfg.Server.Listen, server.Handler(a.deps))
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "Override the listen address (e.g. :8080)")
	return cmd
}
