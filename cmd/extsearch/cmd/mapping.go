package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/extsearch/internal/backend"
	"github.com/Aman-CERP/extsearch/internal/indexed"
	"github.com/Aman-CERP/extsearch/internal/output"
)

type mappingOptions struct {
	engine string
	list   bool
	fields bool
}

func newMappingCmd() *cobra.Command {
	var opts mappingOptions

	cmd := &cobra.Command{
		Use:   "mapping [model]",
		Short: "Show index mappings and searchable fields",
		Long: `Print the index mapping for a model and its subtypes.

Without a model the mapping covers every registered model, the layout of
the shared index. --fields prints the physical fields instead and --list
prints the registered models.`,
		Example: `  extsearch mapping --list
  extsearch mapping people.person --fields
  extsearch mapping pages.page --engine bleve`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			label := ""
			if len(args) == 1 {
				label = args[0]
			}
			return runMapping(cmd.Context(), cmd, label, opts)
		},
	}

	cmd.Flags().StringVar(&opts.engine, "engine", "opensearch", "Mapping format: opensearch, bleve")
	cmd.Flags().BoolVar(&opts.list, "list", false, "List registered models")
	cmd.Flags().BoolVar(&opts.fields, "fields", false, "Print physical fields as a table")

	return cmd
}

func runMapping(ctx context.Context, cmd *cobra.Command, label string, opts mappingOptions) error {
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	out := output.New(cmd.OutOrStdout())

	if opts.list {
		return printModels(out, a.registry)
	}

	models := a.registry.Models()
	if label != "" {
		m, err := a.registry.Get(label)
		if err != nil {
			return err
		}
		models = append([]*indexed.Model{m}, a.registry.Descendants(m)...)
	}
	fields, err := backend.CollectFields(models, a.settings)
	if err != nil {
		return err
	}

	if opts.fields {
		return printFields(out, fields)
	}

	switch strings.ToLower(opts.engine) {
	case "opensearch", "elasticsearch":
		return out.JSON(backend.BuildMapping(fields))
	case "bleve":
		im, err := backend.BuildBleveMapping(fields)
		if err != nil {
			return err
		}
		return out.JSON(im)
	default:
		return fmt.Errorf("unknown engine %q: use opensearch or bleve", opts.engine)
	}
}

func printModels(out *output.Writer, registry *indexed.Registry) error {
	rows := make([][]string, 0, len(registry.Models()))
	for _, m := range registry.Models() {
		parent := "-"
		if m.Parent != nil {
			parent = m.Parent.Label()
		}
		rows = append(rows, []string{
			m.Label(),
			parent,
			strconv.Itoa(len(m.Mappings())),
			strconv.FormatBool(registry.HasUniqueFields(m)),
		})
	}
	return out.Table([]string{"MODEL", "PARENT", "FIELDS", "UNIQUE"}, rows)
}

func printFields(out *output.Writer, fields []indexed.PhysicalField) error {
	var rows [][]string
	var walk func(prefix string, fields []indexed.PhysicalField)
	walk = func(prefix string, fields []indexed.PhysicalField) {
		for _, pf := range fields {
			col := prefix + pf.ColumnName()
			boost := "-"
			if pf.Kind == indexed.KindSearch {
				boost = strconv.FormatFloat(pf.Boost, 'g', -1, 64)
			}
			analyzer := pf.Analyzer
			if analyzer == "" {
				analyzer = "-"
			}
			rows = append(rows, []string{col, string(pf.Kind), analyzer, boost})
			if len(pf.Children) > 0 {
				walk(col+".", pf.Children)
			}
		}
	}
	walk("", fields)
	return out.Table([]string{"COLUMN", "KIND", "ANALYZER", "BOOST"}, rows)
}
