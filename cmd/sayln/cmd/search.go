package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/guoyu-zhang/say-like-a-native/internal/output"
)

type searchOptions struct {
	size         int
	video        string
	single       bool
	autocomplete bool
	format       string
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search transcript segments from the terminal",
		Long: `Search indexed transcripts for a phrase. Each hit is shown with the
segment spoken just before it and a link that starts the video there.

--autocomplete lists phrase completions instead; --video restricts the
search to one video.`,
		Example: `  sayln search "break the ice"
  sayln search "how are you" --size 5 --format json
  sayln search "kind of" --autocomplete
  sayln search "actually" --video dQw4w9WgXcQ --single`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd.Context(), cmd, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().IntVarP(&opts.size, "size", "n", 0, "Maximum results (default from search config)")
	cmd.Flags().StringVar(&opts.video, "video", "", "Search within one video ID")
	cmd.Flags().BoolVar(&opts.single, "single", false, "With --video, return only the best hit")
	cmd.Flags().BoolVar(&opts.autocomplete, "autocomplete", false, "Suggest completions for a phrase prefix")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, query string, opts searchOptions) error {
	if opts.format != "text" && opts.format != "json" {
		return fmt.Errorf("invalid format %q (expected text or json)", opts.format)
	}
	if opts.single && opts.video == "" {
		return fmt.Errorf("--single requires --video")
	}
	if opts.autocomplete && opts.video != "" {
		return fmt.Errorf("--autocomplete cannot be combined with --video")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := openApp(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	size := opts.size
	engineCfg := a.engine.Config()
	if size <= 0 {
		size = engineCfg.DefaultSize
		if opts.autocomplete {
			size = engineCfg.AutocompleteDefaultSize
		}
	}

	out := output.New(cmd.OutOrStdout())

	var (
		resp   any
		errMsg string
	)
	switch {
	case opts.autocomplete:
		r := a.engine.Autocomplete(ctx, query, size)
		resp, errMsg = r, r.Error
		if opts.format == "text" {
			out.Suggestions(query, r.Suggestions, r.Error)
		}
	case opts.video != "":
		r := a.engine.VideoSearch(ctx, opts.video, query, size, opts.single)
		resp, errMsg = r, r.Error
		if opts.format == "text" {
			out.Results(query, r.Results, r.Error)
		}
	default:
		r := a.engine.Search(ctx, query, size)
		resp, errMsg = r, r.Error
		if opts.format == "text" {
			out.Results(query, r.Results, r.Error)
		}
	}

	if opts.format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(resp); err != nil {
			return err
		}
	}

	if errMsg != "" {
		return fmt.Errorf("search failed: %s", errMsg)
	}
	return nil
}
