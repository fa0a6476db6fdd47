package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"paimon-mirror/paimon"
	"paimon-mirror/predicate"
)

var (
	fileFilters []string
	fileURIs    bool
)

var filesCmd = &cobra.Command{
	Use:   "files DATABASE.TABLE",
	Short: "List the data files a filtered read of a table would open",
	Example: `  paimon-mirror files public.users --warehouse /data/warehouse \
    --filter "age >= 30" --filter "city = 'oslo' OR city IS NULL"`,
	Args: cobra.ExactArgs(1),
	RunE: runFiles,
}

func init() {
	filesCmd.Flags().StringArrayVar(&fileFilters, "filter", nil, "filter expression; repeat for a conjunction")
	filesCmd.Flags().BoolVar(&fileURIs, "uri", false, "print locations external readers can open")
	rootCmd.AddCommand(filesCmd)
}

func runFiles(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	root, err := tableRoot(args[0])
	if err != nil {
		return err
	}

	filters := make([]predicate.Filter, 0, len(fileFilters))
	for _, expr := range fileFilters {
		f, err := predicate.Parse(expr)
		if err != nil {
			return err
		}
		filters = append(filters, f)
	}

	cfg, fsys, err := openStorage(ctx)
	if err != nil {
		return err
	}
	opts, err := paimon.ReadOptionsFromConfig(cfg.Read)
	if err != nil {
		return err
	}
	md, err := paimon.ResolveCurrent(ctx, fsys, root, opts)
	if err != nil {
		return err
	}

	files, err := paimon.ListDataFiles(ctx, fsys, md, filters)
	if err != nil {
		return err
	}
	for _, f := range files {
		if fileURIs {
			f = fsys.URI(f)
		}
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), f)
	}
	return nil
}
