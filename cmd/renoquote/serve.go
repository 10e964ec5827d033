package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrWong99/renoquote/internal/app"
	"github.com/MrWong99/renoquote/internal/config"
	"github.com/MrWong99/renoquote/internal/observe"
)

const shutdownTimeout = 15 * time.Second

func newServeCmd(c *cli) *cobra.Command {
	var noWatch bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the pricing API server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.serve(cmd.Context(), cmd.OutOrStdout(), !noWatch)
		},
	}
	cmd.Flags().BoolVar(&noWatch, "no-watch", false, "do not reload the config file on change")
	return cmd
}

func (c *cli) serve(ctx context.Context, out io.Writer, watch bool) error {
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	slog.Info("renoquote starting",
		"config", c.configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Telemetry ─────────────────────────────────────────────────────────────
	tel, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: version,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := tel.Shutdown(sctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	printStartupSummary(out, cfg)

	application, err := c.newApp(ctx, cfg, app.WithTelemetry(tel))
	if err != nil {
		return fmt.Errorf("initialise application: %w", err)
	}

	if watch {
		w, err := config.NewWatcher(c.configPath, application.Reload)
		if err != nil {
			slog.Warn("config watcher disabled", "err", err)
		} else {
			defer w.Stop()
		}
	}

	slog.Info("server ready, press Ctrl+C to shut down")

	runErr := application.Run(ctx)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		slog.Error("run error", "err", runErr)
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	slog.Info("shutting down")
	if err := application.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	slog.Info("goodbye")
	return nil
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(out io.Writer, cfg *config.Config) {
	embed := cfg.Providers.Embeddings.Name
	if embed == "" {
		embed = "(none, fuzzy search only)"
	} else if cfg.Providers.Embeddings.Model != "" {
		embed += " / " + cfg.Providers.Embeddings.Model
	}
	metrics := cfg.Observability.MetricsAddr
	if metrics == "" {
		metrics = "(disabled)"
	}
	events := cfg.Events.NATSURL
	if events == "" {
		events = "(disabled)"
	}

	fmt.Fprintln(out, "╔═══════════════════════════════════════╗")
	fmt.Fprintln(out, "║       renoquote · startup summary     ║")
	fmt.Fprintln(out, "╚═══════════════════════════════════════╝")
	fmt.Fprintf(out, "  listen      : %s\n", cfg.Server.ListenAddr)
	fmt.Fprintf(out, "  metrics     : %s\n", metrics)
	fmt.Fprintf(out, "  embeddings  : %s (%d dims)\n", embed, cfg.Catalog.EmbeddingDimensions)
	fmt.Fprintf(out, "  catalog     : %s, %d seed file(s)\n", cfg.Catalog.Backend, len(cfg.Catalog.Files))
	fmt.Fprintf(out, "  quotes      : %s\n", cfg.Storage.Quotes)
	fmt.Fprintf(out, "  feedback    : %s\n", cfg.Storage.Feedback)
	fmt.Fprintf(out, "  events      : %s\n", events)
	fmt.Fprintln(out)
}
