package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/MrWong99/renoquote/internal/app"
	"github.com/MrWong99/renoquote/internal/config"
	"github.com/MrWong99/renoquote/pkg/catalog"
)

func newCatalogCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Manage the material catalog",
	}
	cmd.AddCommand(newCatalogImportCmd(c), newCatalogValidateCmd())
	return cmd
}

func newCatalogImportCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "import <seed.yaml>...",
		Short: "Embed and load seed files into the configured catalog backend",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var backend config.CatalogBackend
			mutate := func(cfg *config.Config) {
				cfg.Catalog.Files = args
				backend = cfg.Catalog.Backend
			}
			return c.withApp(cmd.Context(), mutate, func(context.Context, *app.App) error {
				if backend == config.CatalogMemory {
					slog.Warn("catalog backend is memory, imported records are discarded on exit")
				}
				fmt.Fprintf(cmd.OutOrStdout(), "imported %d file(s) into the %s catalog\n", len(args), backend)
				return nil
			})
		},
	}
}

func newCatalogValidateCmd() *cobra.Command {
	var dims int
	cmd := &cobra.Command{
		Use:   "validate <seed.yaml>...",
		Short: "Check seed files without loading them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var errs []error
			for _, path := range args {
				n, err := validateSeed(path, dims)
				if err != nil {
					errs = append(errs, err)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d record(s) ok\n", path, n)
			}
			return errors.Join(errs...)
		},
	}
	cmd.Flags().IntVar(&dims, "dims", 0, "expected embedding dimensionality of inline vectors (0 skips the check)")
	return cmd
}

func validateSeed(path string, dims int) (int, error) {
	cf, err := catalog.LoadFile(path)
	if err != nil {
		return 0, err
	}
	var errs []error
	seen := make(map[string]bool, len(cf.Materials))
	for _, r := range cf.Materials {
		if err := catalog.Validate(r, dims); err != nil {
			errs = append(errs, err)
		}
		if seen[r.ID] {
			errs = append(errs, fmt.Errorf("catalog: duplicate id %q", r.ID))
		}
		seen[r.ID] = true
	}
	if err := errors.Join(errs...); err != nil {
		return 0, fmt.Errorf("%s: %w", path, err)
	}
	return len(cf.Materials), nil
}
