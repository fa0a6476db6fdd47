package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"paimon-mirror/paimon"
)

var (
	createColumns       []string
	createPartitionKeys []string
	createPrimaryKeys   []string
	createBuckets       int
	createFileFormat    string
)

var createCmd = &cobra.Command{
	Use:   "create DATABASE.TABLE",
	Short: "Create an empty table",
	Example: `  paimon-mirror create public.users --warehouse /data/warehouse \
    --column "id BIGINT NOT NULL" --column "name STRING" --column "city STRING" \
    --primary-key id --partition-key city --buckets 4`,
	Args: cobra.ExactArgs(1),
	RunE: runCreate,
}

func init() {
	createCmd.Flags().StringArrayVar(&createColumns, "column", nil, `column as "NAME TYPE [NOT NULL]"; repeat in order`)
	createCmd.Flags().StringSliceVar(&createPartitionKeys, "partition-key", nil, "partition key columns")
	createCmd.Flags().StringSliceVar(&createPrimaryKeys, "primary-key", nil, "primary key columns")
	createCmd.Flags().IntVar(&createBuckets, "buckets", 1, "number of buckets")
	createCmd.Flags().StringVar(&createFileFormat, "file-format", "", "data file format (default from config)")
	_ = createCmd.MarkFlagRequired("column")
	rootCmd.AddCommand(createCmd)
}

// parseColumn parses "NAME TYPE [NOT NULL]".
func parseColumn(s string) (paimon.SchemaField, error) {
	name, typ, ok := strings.Cut(strings.TrimSpace(s), " ")
	if !ok || strings.TrimSpace(typ) == "" {
		return paimon.SchemaField{}, fmt.Errorf("column %q: expected NAME TYPE", s)
	}
	t, nullable := paimon.ParseTypeString(typ)
	return paimon.SchemaField{Name: name, Type: t, Nullable: nullable}, nil
}

func runCreate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	root, err := tableRoot(args[0])
	if err != nil {
		return err
	}
	cfg, fsys, err := openStorage(ctx)
	if err != nil {
		return err
	}

	fields := make([]paimon.SchemaField, 0, len(createColumns))
	for _, c := range createColumns {
		f, err := parseColumn(c)
		if err != nil {
			return err
		}
		fields = append(fields, f)
	}

	format := createFileFormat
	if format == "" {
		format = cfg.Commit.FileFormat
	}
	if _, err := paimon.ParseFileFormat(format); err != nil {
		return err
	}

	s := paimon.NewSchema(fields, createPartitionKeys, createPrimaryKeys, map[string]string{
		paimon.OptionBucket:     strconv.Itoa(createBuckets),
		paimon.OptionFileFormat: format,
	})
	if err := paimon.CreateTable(ctx, fsys, root, s); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "created %s\n", args[0])
	return nil
}
