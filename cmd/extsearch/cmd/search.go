package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/extsearch/internal/output"
	"github.com/Aman-CERP/extsearch/internal/search"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	facet        string
	model        string
	limit        int
	offset       int
	jsonOutput   bool
	autocomplete bool
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search indexed documents",
		Long: `Search the configured engine with the boosted query of a model.

The model is chosen with --model or through a facet (all, pages, news,
people, teams). Hits are restricted to documents of that model and its
subtypes.`,
		Example: `  extsearch search "jane doe" --facet people
  extsearch search budget --model news.newspage --limit 5
  extsearch search ja --facet people --autocomplete`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd.Context(), cmd, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().StringVar(&opts.facet, "facet", search.DefaultFacet, "Facet: all, pages, news, people, teams")
	cmd.Flags().StringVarP(&opts.model, "model", "m", "", "Model label (overrides --facet)")
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 0, "Maximum number of results (default from config)")
	cmd.Flags().IntVar(&opts.offset, "offset", 0, "Number of results to skip")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&opts.autocomplete, "autocomplete", false, "Match the query as a prefix on autocomplete fields")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, q string, opts searchOptions) error {
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	svc, err := a.Service()
	if err != nil {
		return err
	}

	req := search.SearchRequest{
		Query:  q,
		Model:  opts.model,
		Facet:  opts.facet,
		Limit:  opts.limit,
		Offset: opts.offset,
	}
	slog.Debug("search_started", slog.String("query", q), slog.String("facet", opts.facet))

	var resp *search.SearchResponse
	if opts.autocomplete {
		resp, err = svc.Autocomplete(ctx, req)
	} else {
		resp, err = svc.Search(ctx, req)
	}
	if err != nil {
		return err
	}

	out := output.New(cmd.OutOrStdout())
	if opts.jsonOutput {
		return out.JSON(resp)
	}
	return printHits(out, q, resp)
}

func printHits(out *output.Writer, q string, resp *search.SearchResponse) error {
	if len(resp.Hits) == 0 {
		out.Statusf("🔍", "No results for %q in %s", q, resp.Model)
		return nil
	}

	out.Statusf("🔍", "%d of %d results for %q in %s (%s)",
		len(resp.Hits), resp.Total, q, resp.Model, resp.Took.Round(time.Microsecond))
	out.Newline()

	rows := make([][]string, 0, len(resp.Hits))
	for i, hit := range resp.Hits {
		rows = append(rows, []string{
			fmt.Sprintf("%d.", i+1),
			hit.ID,
			fmt.Sprintf("%.3f", hit.Score),
			contentType(hit.ContentType),
		})
	}
	return out.Table([]string{"#", "ID", "SCORE", "TYPE"}, rows)
}

// contentType returns the most specific label of a hit.
func contentType(labels []string) string {
	if len(labels) == 0 {
		return "-"
	}
	return labels[len(labels)-1]
}
