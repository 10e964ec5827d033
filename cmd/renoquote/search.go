package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"text/tabwriter"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/MrWong99/renoquote/internal/app"
	"github.com/MrWong99/renoquote/internal/config"
	"github.com/MrWong99/renoquote/internal/search"
	"github.com/MrWong99/renoquote/pkg/catalog"
)

type searchFlags struct {
	region     string
	unit       string
	vendor     string
	category   string
	minQuality int
	minPrice   string
	maxPrice   string
	limit      int
	asJSON     bool
}

func newSearchCmd(c *cli) *cobra.Command {
	var f searchFlags
	cmd := &cobra.Command{
		Use:   "search <query>...",
		Short: "Search the catalog for materials matching a description",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := f.request(strings.Join(args, " "))
			if err != nil {
				return err
			}
			return c.withApp(cmd.Context(), nil, func(ctx context.Context, a *app.App) error {
				res, err := a.Searcher().Search(ctx, req)
				if err != nil {
					return err
				}
				if f.asJSON {
					return writeIndented(cmd.OutOrStdout(), res)
				}
				printMatches(cmd.OutOrStdout(), res)
				return nil
			})
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.region, "region", "", "only materials from this region")
	fl.StringVar(&f.unit, "unit", "", "only materials sold in this unit")
	fl.StringVar(&f.vendor, "vendor", "", "only materials from vendors containing this text")
	fl.StringVar(&f.category, "category", "", "only materials in this category")
	fl.IntVar(&f.minQuality, "min-quality", 0, "minimum quality score (1-10)")
	fl.StringVar(&f.minPrice, "min-price", "", "minimum unit price")
	fl.StringVar(&f.maxPrice, "max-price", "", "maximum unit price")
	fl.IntVarP(&f.limit, "limit", "n", 10, "maximum number of matches")
	fl.BoolVar(&f.asJSON, "json", false, "print the result as JSON")
	return cmd
}

func (f searchFlags) request(query string) (search.Request, error) {
	req := search.Request{
		Query: query,
		Limit: f.limit,
		Filters: catalog.Filters{
			Region:     f.region,
			Unit:       f.unit,
			Vendor:     f.vendor,
			Category:   catalog.Category(strings.ToLower(f.category)),
			MinQuality: f.minQuality,
		},
	}
	var err error
	if req.Filters.MinPrice, err = parsePrice("min-price", f.minPrice); err != nil {
		return req, err
	}
	if req.Filters.MaxPrice, err = parsePrice("max-price", f.maxPrice); err != nil {
		return req, err
	}
	return req, nil
}

func parsePrice(flag, v string) (decimal.NullDecimal, error) {
	if v == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.NullDecimal{}, fmt.Errorf("invalid --%s %q: %w", flag, v, err)
	}
	return decimal.NewNullDecimal(d), nil
}

func printMatches(out io.Writer, res search.Result) {
	if res.Degraded {
		fmt.Fprintf(out, "answered by the %s tier (degraded)\n\n", res.Tier)
	}
	if len(res.Matches) == 0 {
		fmt.Fprintln(out, "no matches")
		return
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tPRICE\tREGION\tVENDOR\tSIMILARITY\tCONFIDENCE")
	for _, m := range res.Matches {
		r := m.Record
		fmt.Fprintf(tw, "%s\t%s\t%s/%s\t%s\t%s\t%.3f\t%.2f %s\n",
			r.ID, r.Name, r.UnitPrice.StringFixed(2), r.Unit, r.Region, r.Vendor,
			m.Similarity, m.Confidence.Score, m.Confidence.Tier)
	}
	_ = tw.Flush()
}

// withApp builds the application for a one-shot command, runs fn and shuts
// the application down again. mutate, when non-nil, adjusts the loaded
// config before the application is built.
func (c *cli) withApp(ctx context.Context, mutate func(*config.Config), fn func(context.Context, *app.App) error) error {
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	if mutate != nil {
		mutate(cfg)
	}
	a, err := c.newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := a.Shutdown(sctx); err != nil {
			slog.Warn("shutdown error", "err", err)
		}
	}()
	return fn(ctx, a)
}

func writeIndented(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
