package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/extsearch/internal/output"
	"github.com/Aman-CERP/extsearch/internal/settings"
)

func newSettingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Manage search setting overrides",
		Long: `Inspect the resolved search settings and manage the overrides stored
in the settings database.

Keys are flattened paths joined with "__", for example
boost_parts__query_types__phrase or boost_parts__fields__people.person.full_name.
Database overrides take precedence over SEARCH_EXTENDED__<key> environment
variables, field declarations, the config file and the built-in defaults.`,
	}

	cmd.AddCommand(newSettingsListCmd())
	cmd.AddCommand(newSettingsGetCmd())
	cmd.AddCommand(newSettingsSetCmd())
	cmd.AddCommand(newSettingsDeleteCmd())
	cmd.AddCommand(newSettingsKeysCmd())
	cmd.AddCommand(newSettingsShowCmd())

	return cmd
}

func newSettingsListCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored overrides",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			rows, err := a.store.ListSettings(cmd.Context())
			if err != nil {
				return err
			}
			out := output.New(cmd.OutOrStdout())
			if jsonOutput {
				return out.JSON(rows)
			}
			if len(rows) == 0 {
				out.Status("📭", "No overrides stored")
				return nil
			}
			table := make([][]string, 0, len(rows))
			for _, row := range rows {
				value := "NULL"
				if row.Value != nil {
					value = *row.Value
				}
				table = append(table, []string{row.Key, value})
			}
			return out.Table([]string{"KEY", "VALUE"}, table)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newSettingsGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <key>",
		Short: "Show the resolved value of a key and the layer it comes from",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()
			return printSetting(output.New(cmd.OutOrStdout()), a.settings, args[0])
		},
	}
	return cmd
}

func printSetting(out *output.Writer, ss *settings.SearchSettings, key string) error {
	v, err := ss.Resolve(key)
	if err != nil {
		return err
	}
	layer, err := ss.Source(key)
	if err != nil {
		return err
	}
	if branch, ok := v.(*settings.NestedChainMap); ok {
		v = branch.ToDict()
	}
	return out.JSON(map[string]any{"key": key, "value": v, "layer": layer})
}

func newSettingsSetCmd() *cobra.Command {
	var null bool

	cmd := &cobra.Command{
		Use:   "set <key> [value]",
		Short: "Store an override",
		Long: `Store an override in the settings database. The value is kept as a
string; numeric settings parse it when resolved. --null stores a NULL
value, which carries no override.`,
		Example: `  extsearch settings set boost_parts__query_types__phrase 20
  extsearch settings set boost_parts__fields__people.person.full_name 9`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var value *string
			switch {
			case null:
			case len(args) == 2:
				value = &args[1]
			default:
				return fmt.Errorf("a value is required unless --null is set")
			}
			return runSettingsSet(cmd.Context(), cmd, args[0], value)
		},
	}

	cmd.Flags().BoolVar(&null, "null", false, "Store a NULL value")
	return cmd
}

func runSettingsSet(ctx context.Context, cmd *cobra.Command, key string, value *string) error {
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	if err := a.store.Set(ctx, key, value); err != nil {
		return err
	}
	out := output.New(cmd.OutOrStdout())
	out.Successf("Saved %s", key)
	if value == nil {
		return nil
	}
	return printSetting(out, a.settings, key)
}

func newSettingsDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "delete <key>",
		Aliases: []string{"rm"},
		Short:   "Remove an override",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			if err := a.store.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			output.New(cmd.OutOrStdout()).Successf("Deleted %s", args[0])
			return nil
		},
	}
	return cmd
}

func newSettingsKeysCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "List every resolvable key with its value",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			flat := a.settings.Flatten()
			rows := make([][]string, 0, len(flat))
			for _, key := range a.settings.AllKeys() {
				layer, _ := a.settings.Source(key)
				rows = append(rows, []string{key, fmt.Sprint(flat[key]), layer})
			}
			return output.New(cmd.OutOrStdout()).Table([]string{"KEY", "VALUE", "LAYER"}, rows)
		},
	}
	return cmd
}

func newSettingsShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show [branch]",
		Short: "Print the resolved settings tree",
		Long: `Print the resolved settings as one nested document. With a branch key
only that sub-tree is printed.`,
		Example: `  extsearch settings show
  extsearch settings show boost_parts__query_types`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			out := output.New(cmd.OutOrStdout())
			if len(args) == 0 {
				return out.JSON(a.settings.Snapshot())
			}
			branch, err := a.settings.Branch(args[0])
			if err != nil {
				return err
			}
			return out.JSON(branch.ToDict())
		},
	}
	return cmd
}
