package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"paimon-mirror/paimon"
)

var manifestEntries bool

var manifestCmd = &cobra.Command{
	Use:   "manifest DATABASE.TABLE",
	Short: "Dump the manifest files of a table's current snapshot",
	Args:  cobra.ExactArgs(1),
	RunE:  runManifest,
}

func init() {
	manifestCmd.Flags().BoolVar(&manifestEntries, "entries", false, "also print every manifest entry")
	rootCmd.AddCommand(manifestCmd)
}

func runManifest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	root, err := tableRoot(args[0])
	if err != nil {
		return err
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

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "snapshot %d schema %d\n", md.Current.ID, md.Current.SchemaID)
	_, _ = fmt.Fprintf(out, "  base list:  %s\n", md.Current.BaseManifestList.OrElse("-"))
	_, _ = fmt.Fprintf(out, "  delta list: %s\n", md.Current.DeltaManifestList.OrElse("-"))

	metas, err := paimon.SnapshotManifests(ctx, fsys, md)
	if err != nil {
		return err
	}
	for _, m := range metas {
		_, _ = fmt.Fprintf(out, "%s size=%d added=%d deleted=%d schema=%d\n",
			m.FileName, m.FileSize, m.NumAddedFiles, m.NumDeletedFiles, m.SchemaID)
		printPartitionStats(out, m.PartitionStats)
		if !manifestEntries {
			continue
		}
		entries, err := paimon.ReadManifest(ctx, fsys, md, m.FileName)
		if err != nil {
			return err
		}
		for _, e := range entries {
			_, _ = fmt.Fprintf(out, "  %s %s rows=%d seq=[%d,%d]\n",
				e.Kind, e.RelPath(md.Schema.PartitionKeys)+"/"+e.File.FileName,
				e.File.RowCount, e.File.MinSequenceNumber, e.File.MaxSequenceNumber)
		}
	}
	return nil
}

func printPartitionStats(out io.Writer, s paimon.SimpleStats) {
	for i, col := range s.ColNames {
		_, _ = fmt.Fprintf(out, "  partition %s: min=%s max=%s nulls=%s\n",
			col, statString(s.MinValues, i), statString(s.MaxValues, i), countString(s.NullCounts, i))
	}
}

func statString(vals []*string, i int) string {
	if i >= len(vals) || vals[i] == nil {
		return "null"
	}
	return *vals[i]
}

func countString(vals []*int64, i int) string {
	if i >= len(vals) || vals[i] == nil {
		return "null"
	}
	return fmt.Sprint(*vals[i])
}
