package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sjawhar/ghost-minutes/internal/audiosrc"
	"github.com/sjawhar/ghost-minutes/internal/transcribe"
)

func newTranscribeCommand(opts *globalOptions) *cobra.Command {
	var language string
	cmd := &cobra.Command{
		Use:   "transcribe <audio>",
		Short: "Transcribe a recording and print the merged segments as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			segments, err := transcribeRef(cmd.Context(), opts, args[0], language)
			if err != nil {
				return err
			}
			return writeIndentedJSON(cmd.OutOrStdout(), segments)
		},
	}
	cmd.Flags().StringVar(&language, "language", "", "Language hint (defaults to transcription.language)")
	return cmd
}

func newBlocksCommand(opts *globalOptions) *cobra.Command {
	var language string
	cmd := &cobra.Command{
		Use:   "blocks <audio>",
		Short: "Transcribe a recording and print paragraph blocks as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			segments, err := transcribeRef(cmd.Context(), opts, args[0], language)
			if err != nil {
				return err
			}
			blocks := transcribe.Group(segments, opts.cfg.Grouping)
			if blocks == nil {
				blocks = []transcribe.Block{}
			}
			return writeIndentedJSON(cmd.OutOrStdout(), blocks)
		},
	}
	cmd.Flags().StringVar(&language, "language", "", "Language hint (defaults to transcription.language)")
	return cmd
}

func transcribeRef(ctx context.Context, opts *globalOptions, ref, language string) ([]transcribe.Segment, error) {
	// Local runs read the operator's own files, so only the blob settings
	// carry over from the server configuration.
	fetcher, err := audiosrc.New(audiosrc.Options{
		AzureConnectionString: opts.cfg.AzureStorageConnection,
		LocalRoot:             string(filepath.Separator),
	})
	if err != nil {
		return nil, err
	}
	if !strings.Contains(ref, "://") {
		if abs, err := filepath.Abs(ref); err == nil {
			ref = abs
		}
	}
	consolidator, err := newConsolidator(opts.cfg)
	if err != nil {
		return nil, err
	}

	audio, err := fetcher.Fetch(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", ref, err)
	}

	segments, err := consolidator.Transcribe(ctx, audio.Data, audio.Filename, language, func(partial []transcribe.Segment) {
		slog.Info("transcription progress", "segments", len(partial))
	})
	if err != nil {
		return nil, err
	}
	if segments == nil {
		segments = []transcribe.Segment{}
	}
	return segments, nil
}

func writeIndentedJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
