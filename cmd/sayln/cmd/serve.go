package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/guoyu-zhang/say-like-a-native/internal/api"
	"github.com/guoyu-zhang/say-like-a-native/internal/config"
	"github.com/guoyu-zhang/say-like-a-native/internal/ingest"
	"github.com/guoyu-zhang/say-like-a-native/internal/logging"
	"github.com/guoyu-zhang/say-like-a-native/internal/waitlist"
)

// selfLogging marks commands that configure logging themselves.
const selfLogging = "self-logging"

type serveOptions struct {
	addr  string
	watch bool
	dir   string
}

func newServeCmd() *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP search API",
		Long: `Run the HTTP API used by the web frontend: search, autocomplete,
video search, the waitlist and query statistics.

With --watch, transcript files under the transcripts directory are indexed
at startup and re-indexed whenever they change.`,
		Example: `  # Serve on the configured address (default :8000)
  sayln serve

  # Serve on another port and keep the index in sync with ./transcripts
  sayln serve --addr :9000 --watch`,
		Annotations: map[string]string{selfLogging: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, opts)
		},
	}

	cmd.Flags().StringVar(&opts.addr, "addr", "", "Listen address (overrides server.addr)")
	cmd.Flags().BoolVar(&opts.watch, "watch", false, "Index and watch the transcripts directory")
	cmd.Flags().StringVar(&opts.dir, "transcripts", "", "Transcripts directory to watch (overrides ingest.dir)")

	return cmd
}

func runServe(ctx context.Context, opts serveOptions) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if opts.addr != "" {
		cfg.Server.Addr = opts.addr
	}
	if opts.dir != "" {
		cfg.Ingest.Dir = opts.dir
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.Server.LogLevel
	if debugMode {
		logCfg.Level = "debug"
	}
	cleanup, err := logging.SetupDefault(logCfg)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	defer cleanup()

	a, err := openApp(ctx, cfg, true)
	if err != nil {
		slog.Error("startup failed", slog.String("error", err.Error()))
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			slog.Warn("shutdown cleanup failed", slog.String("error", err.Error()))
		}
	}()

	srv, err := api.NewServer(api.Deps{
		Engine:   a.engine,
		Waitlist: waitlist.New(cfg.Waitlist.Path),
		Metrics:  a.metrics,
		Store:    a.store,
	}, cfg.Server)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ListenAndServe(gctx)
	})
	if opts.watch {
		w := newTranscriptWatcher(a, cfg.Ingest)
		g.Go(func() error {
			return w.Run(gctx)
		})
	}

	slog.Info("server_started",
		slog.String("addr", cfg.Server.Addr),
		slog.String("backend", cfg.Store.Backend),
		slog.String("index", cfg.Store.Index),
		slog.Bool("watch", opts.watch))

	return g.Wait()
}

func newTranscriptWatcher(a *app, cfg config.IngestConfig) *ingest.Watcher {
	w := ingest.NewWatcher(ingest.NewIndexer(a.store, cfg.BatchSize), cfg.Dir, cfg.WatchDebounce)
	w.OnIndexed = func(path string, segments int, err error) {
		if err != nil {
			slog.Warn("transcript_reindex_failed", slog.String("path", path), slog.String("error", err.Error()))
			return
		}
		slog.Debug("transcript_reindexed", slog.String("path", path), slog.Int("segments", segments))
	}
	return w
}
