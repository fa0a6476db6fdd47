package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"paimon-mirror/paimon"
)

var snapshotsCmd = &cobra.Command{
	Use:   "snapshots DATABASE.TABLE",
	Short: "List the committed snapshots of a table",
	Args:  cobra.ExactArgs(1),
	RunE:  runSnapshots,
}

func init() {
	rootCmd.AddCommand(snapshotsCmd)
}

func runSnapshots(cmd *cobra.Command, args []string) error {
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

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "SNAPSHOT\tSEQUENCE\tTIME\tKIND\tRECORDS\tMANIFEST LIST\t")
	for _, s := range md.ListSnapshots() {
		current := ""
		if s.SnapshotID == md.Current.ID {
			current = "*"
		}
		_, _ = fmt.Fprintf(w, "%d\t%d\t%s\t%s\t%d\t%s\t%s\n",
			s.SnapshotID, s.SequenceNumber,
			time.UnixMilli(s.TimestampMs).UTC().Format(time.RFC3339),
			s.CommitKind, s.TotalRecords, s.ManifestList, current)
	}
	return w.Flush()
}
