package cmd

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/extsearch/internal/backend"
	"github.com/Aman-CERP/extsearch/internal/indexed"
	"github.com/Aman-CERP/extsearch/internal/output"
	"github.com/Aman-CERP/extsearch/internal/query"
	"github.com/Aman-CERP/extsearch/internal/search"
)

type queryOptions struct {
	tree        bool
	ignoreCache bool
	from        int
	size        int
}

func newQueryCmd() *cobra.Command {
	var opts queryOptions

	cmd := &cobra.Command{
		Use:   "query <model> [text...]",
		Short: "Show the query built for a model",
		Long: `Build the search query of a model and print it.

Without text the cached tree is printed with its search_query placeholders.
With text the placeholders are bound and the request body sent to the
engine is printed as Elasticsearch/OpenSearch query DSL, or as a tree
with --tree.`,
		Example: `  extsearch query people.person
  extsearch query people.person jane doe
  extsearch query news.newspage budget --tree`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd.Context(), cmd, args[0], strings.Join(args[1:], " "), opts)
		},
	}

	cmd.Flags().BoolVar(&opts.tree, "tree", false, "Print the query tree instead of the DSL")
	cmd.Flags().BoolVar(&opts.ignoreCache, "ignore-cache", false, "Rebuild the tree even if it is cached")
	cmd.Flags().IntVar(&opts.from, "from", 0, "Offset written to the request body")
	cmd.Flags().IntVarP(&opts.size, "size", "n", 0, "Page size written to the request body (0 omits it)")

	return cmd
}

func runQuery(ctx context.Context, cmd *cobra.Command, label, text string, opts queryOptions) error {
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	out := output.New(cmd.OutOrStdout())

	m, err := a.registry.Get(label)
	if err != nil {
		return err
	}
	tree, err := a.builder.BuildSearchQuery(m, opts.ignoreCache)
	if err != nil {
		return err
	}
	if tree == nil {
		out.Warning(label + " has no searchable fields")
		return nil
	}

	if text == "" {
		out.Code(tree.String())
		return nil
	}

	bound, err := search.Bind(tree, text)
	if err != nil {
		return err
	}
	if bound == nil {
		out.Warning("the query binds to nothing for " + label)
		return nil
	}
	if opts.tree {
		out.Code(bound.String())
		return nil
	}
	return printDSL(out, a, m, bound, opts)
}

// printDSL prints the request body an OpenSearch search on m would send.
func printDSL(out *output.Writer, a *app, m *indexed.Model, n query.Node, opts queryOptions) error {
	fields, err := a.builder.FieldsFor(m)
	if err != nil {
		return err
	}
	body, err := backend.NewCompiler(fields, a.cfg.Search.TieBreaker).SearchBody(n, m.Label(), opts.from, opts.size)
	if err != nil {
		return err
	}
	return out.JSON(body)
}
