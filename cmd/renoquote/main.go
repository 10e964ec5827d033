// Command renoquote is the entry point of the renovation pricing engine. It
// serves the HTTP API and offers one-shot search, quote and catalog import
// commands against the same configuration.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/MrWong99/renoquote/internal/app"
	"github.com/MrWong99/renoquote/internal/config"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "renoquote: %v\n", err)
		return 1
	}
	return 0
}

// cli holds the flags shared by every subcommand.
type cli struct {
	configPath string
	logLevel   string

	// level backs the process logger so serve can change it at runtime.
	level slog.LevelVar
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:           "renoquote",
		Short:         "Semantic pricing engine for renovation quotes",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", "renoquote.yaml", "path to the YAML configuration file")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "override server.log_level (debug|info|warn|error)")

	root.AddCommand(
		newServeCmd(c),
		newSearchCmd(c),
		newQuoteCmd(c),
		newCatalogCmd(c),
	)
	return root
}

// loadConfig reads the config file and installs the process logger.
func (c *cli) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config file %q not found, copy configs/renoquote.example.yaml to get started", c.configPath)
		}
		return nil, err
	}
	if c.logLevel != "" {
		lvl := config.LogLevel(c.logLevel)
		if !lvl.IsValid() {
			return nil, fmt.Errorf("invalid --log-level %q", c.logLevel)
		}
		cfg.Server.LogLevel = lvl
	}
	c.level.Set(cfg.Server.LogLevel.Slog())
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: &c.level})))
	return cfg, nil
}

// newApp builds providers from cfg and wires the application.
func (c *cli) newApp(ctx context.Context, cfg *config.Config, opts ...app.Option) (*app.App, error) {
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	providers, err := buildProviders(cfg, reg)
	if err != nil {
		return nil, err
	}
	opts = append([]app.Option{app.WithLevelVar(&c.level)}, opts...)
	return app.New(ctx, cfg, providers, opts...)
}
