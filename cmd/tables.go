package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"paimon-mirror/paimon"
)

var tablesCmd = &cobra.Command{
	Use:   "tables",
	Short: "List the tables in the warehouse",
	Args:  cobra.NoArgs,
	RunE:  runTables,
}

func init() {
	rootCmd.AddCommand(tablesCmd)
}

func runTables(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	_, fsys, err := openStorage(ctx)
	if err != nil {
		return err
	}
	catalog, err := paimon.NewCatalog(ctx, fsys, "")
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "TABLE\tFORMAT\tSNAPSHOTS\tMANIFESTS\tDATA")
	for _, t := range catalog.Tables() {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%t\t%t\t%t\n",
			t.QualifiedName(), t.Format, t.HasSnapshot, t.HasManifest, t.HasData)
	}
	return w.Flush()
}
