package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/MrWong99/renoquote/internal/app"
	"github.com/MrWong99/renoquote/internal/quote"
)

func newQuoteCmd(c *cli) *cobra.Command {
	var (
		req    quote.Request
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "quote <transcript>...",
		Short: "Generate a priced proposal from a job description",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Transcript = strings.Join(args, " ")
			return c.withApp(cmd.Context(), nil, func(ctx context.Context, a *app.App) error {
				q, err := a.Assembler().Generate(ctx, req)
				if err != nil {
					return err
				}
				if asJSON {
					return writeIndented(cmd.OutOrStdout(), q)
				}
				printQuote(cmd.OutOrStdout(), q)
				return nil
			})
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&req.UserType, "user-type", "contractor", "who the quote is for (contractor|client)")
	fl.StringVar(&req.Region, "region", "", "region or city of the job site")
	fl.StringVar(&req.ProjectType, "project-type", "renovation", "renovation or new_build")
	fl.BoolVar(&asJSON, "json", false, "print the quote as JSON")
	return cmd
}

func printQuote(out io.Writer, q quote.Quote) {
	fmt.Fprintf(out, "quote %s v%d (%s, %s)\n", q.ID, q.Version, q.UserType, q.ProjectType)
	if q.Degraded {
		fmt.Fprintln(out, "some materials were found by a fallback search")
	}
	fmt.Fprintln(out)

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, t := range q.Tasks {
		fmt.Fprintf(tw, "%s\t\t\t%s\t%.2f %s\n", t.Label, t.Price.StringFixed(2), t.Confidence, t.ConfidenceTier)
		for _, l := range t.Lines {
			fmt.Fprintf(tw, "  %s\t%s %s\t× %s\t%s\t\n",
				l.Name, l.Quantity.String(), l.Unit, l.UnitPrice.StringFixed(2), l.Cost.StringFixed(2))
		}
	}
	_ = tw.Flush()

	fmt.Fprintln(out)
	fmt.Fprintf(out, "total excl. VAT : %s\n", q.TotalEstimate.StringFixed(2))
	fmt.Fprintf(out, "VAT (%s%%)       : %s\n", q.VATRate.Shift(2).String(), q.VATAmount.StringFixed(2))
	fmt.Fprintf(out, "total incl. VAT : %s\n", q.TotalWithVAT.StringFixed(2))
	fmt.Fprintf(out, "confidence      : %.2f %s\n", q.Confidence, q.ConfidenceTier)
}
