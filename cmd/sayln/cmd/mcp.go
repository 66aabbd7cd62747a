package cmd

import (
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/guoyu-zhang/say-like-a-native/internal/logging"
	"github.com/guoyu-zhang/say-like-a-native/internal/mcp"
)

func newMCPCmd() *cobra.Command {
	var transport string

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve transcript search to AI assistants over MCP",
		Long: `Run an MCP server exposing transcript search, phrase autocomplete and
per-video search as tools, plus query metrics and index status as resources.

stdout carries the protocol, so all logging goes to ~/.sayln/logs/server.log.`,
		Example: `  # Claude Desktop / Cursor config entry
  {"command": "sayln", "args": ["mcp"]}`,
		Annotations: map[string]string{selfLogging: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			level := cfg.Server.LogLevel
			if debugMode {
				level = "debug"
			}
			cleanup, err := logging.SetupStdioMode(level)
			if err != nil {
				return fmt.Errorf("failed to setup logging: %w", err)
			}
			defer cleanup()

			a, err := openApp(ctx, cfg, true)
			if err != nil {
				slog.Error("startup failed", slog.String("error", err.Error()))
				return err
			}
			defer func() { _ = a.Close() }()

			srv, err := mcp.NewServer(a.engine, a.store)
			if err != nil {
				return err
			}
			if a.metrics != nil {
				srv.SetMetrics(a.metrics)
			}
			return srv.Serve(ctx, transport)
		},
	}

	cmd.Flags().StringVar(&transport, "transport", "stdio", "MCP transport (stdio)")

	return cmd
}
