package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/0x6d61/sec360/internal/catalog"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Inspect and validate pattern catalogs",
}

var catalogValidateCmd = &cobra.Command{
	Use:   "validate [path]",
	Short: "Check that a catalog file loads (default: the configured catalog)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runCatalogValidate,
}

var catalogShowCmd = &cobra.Command{
	Use:   "show",
	Short: "List the rules and weights of the configured catalog",
	Args:  cobra.NoArgs,
	RunE:  runCatalogShow,
}

var catalogExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Print the built-in catalog as YAML, as a starting point for a custom one",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := cmd.OutOrStdout().Write(catalog.DefaultSource())
		return err
	},
}

func init() {
	rootCmd.AddCommand(catalogCmd)
	catalogCmd.AddCommand(catalogValidateCmd, catalogShowCmd, catalogExportCmd)
}

func runCatalogValidate(cmd *cobra.Command, args []string) error {
	path := ""
	if len(args) == 1 {
		path = args[0]
	} else {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		path = cfg.CatalogPath
	}

	cat, err := catalog.Load(path)
	if err != nil {
		return err
	}
	name := path
	if name == "" {
		name = "built-in catalog"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: OK (%d rules, %s)\n", name, cat.Len(), cat.Version())
	return nil
}

func runCatalogShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Catalog %s\n\n", cat.Version())
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CATEGORY\tFIELD\tDATA\tMULTIPLIER\tVALUE PATTERN")
	for _, r := range cat.Rules() {
		value := "-"
		if r.ValuePattern != nil {
			value = "yes"
		}
		fmt.Fprintf(tw, "%s\t%g\t%g\t%g\t%s\n", r.Category, r.FieldWeight, r.DataWeight, r.Multiplier, value)
	}
	return tw.Flush()
}
