package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/guoyu-zhang/say-like-a-native/internal/ingest"
	"github.com/guoyu-zhang/say-like-a-native/internal/output"
	"github.com/guoyu-zhang/say-like-a-native/internal/ui"
)

type indexOptions struct {
	plain     bool
	noColor   bool
	batchSize int
	remove    []string
}

func newIndexCmd() *cobra.Command {
	var opts indexOptions

	cmd := &cobra.Command{
		Use:   "index [paths...]",
		Short: "Index transcript files into the segment store",
		Long: `Index transcript JSON files. Each file holds one video's transcript; its
stored segments are replaced, so re-running index on an updated file is safe.

Without paths the configured transcripts directory is indexed.`,
		Example: `  # Index ./transcripts (or ingest.dir)
  sayln index

  # Index specific files or directories
  sayln index downloads/abc123.json more-transcripts/

  # Remove a video's segments
  sayln index --remove dQw4w9WgXcQ`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIndex(cmd.Context(), cmd, args, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.plain, "plain", false, "Plain line output instead of the progress view")
	cmd.Flags().BoolVar(&opts.noColor, "no-color", false, "Disable colors")
	cmd.Flags().IntVar(&opts.batchSize, "batch-size", 0, "Segments per store write (overrides ingest.batch_size)")
	cmd.Flags().StringSliceVar(&opts.remove, "remove", nil, "Video IDs whose segments should be deleted")

	return cmd
}

func runIndex(ctx context.Context, cmd *cobra.Command, paths []string, opts indexOptions) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if opts.batchSize > 0 {
		cfg.Ingest.BatchSize = opts.batchSize
	}

	a, err := openApp(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	out := output.New(cmd.OutOrStdout())

	if len(opts.remove) > 0 {
		for _, id := range opts.remove {
			n, err := a.store.DeleteVideo(ctx, id)
			if err != nil {
				return fmt.Errorf("failed to remove %s: %w", id, err)
			}
			out.Successf("Removed %d segments of %s", n, id)
		}
		if len(paths) == 0 {
			return nil
		}
	}

	if len(paths) == 0 {
		paths = []string{cfg.Ingest.Dir}
	}

	renderer := ui.NewRenderer(ui.Config{
		Output:     cmd.OutOrStdout(),
		ForcePlain: opts.plain,
		NoColor:    opts.noColor || ui.DetectNoColor(),
		Source:     paths[0],
	})
	if err := renderer.Start(ctx); err != nil {
		return err
	}

	ix := ingest.NewIndexer(a.store, cfg.Ingest.BatchSize)
	sum, err := ix.IndexPaths(ctx, paths, renderer.Update)
	if err == nil || sum.Files > 0 {
		renderer.Complete(sum)
	}
	if stopErr := renderer.Stop(); stopErr != nil {
		slog.Debug("renderer stop failed", slog.String("error", stopErr.Error()))
	}
	if err != nil {
		return err
	}

	if sum.Files == 0 {
		out.Warningf("No transcript files found in %v", paths)
	}
	return nil
}
