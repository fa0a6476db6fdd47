package paimon

import (
	"context"
	"path"
	"strings"

	"paimon-mirror/storage"
)

// TableFormat is the open table format a directory holds.
type TableFormat int

const (
	TableFormatUnknown TableFormat = iota
	TableFormatPaimon
	TableFormatIceberg
)

func (f TableFormat) String() string {
	switch f {
	case TableFormatPaimon:
		return "paimon"
	case TableFormatIceberg:
		return "iceberg"
	default:
		return "unknown"
	}
}

// DetectFormat inspects the table root: snapshot/ or schema/ means Paimon,
// metadata/ means Iceberg.
func DetectFormat(ctx context.Context, fsys storage.Storage, root string) (TableFormat, error) {
	for _, probe := range []struct {
		dir    string
		format TableFormat
	}{
		{snapshotDir, TableFormatPaimon},
		{schemaDir, TableFormatPaimon},
		{"metadata", TableFormatIceberg},
	} {
		ok, err := fsys.DirExists(ctx, path.Join(root, probe.dir))
		if err != nil {
			return TableFormatUnknown, err
		}
		if ok {
			return probe.format, nil
		}
	}
	return TableFormatUnknown, nil
}

// DetectFileFormat infers a data file format from its extension.
func DetectFileFormat(name string) (FileFormat, bool) {
	switch strings.ToLower(path.Ext(name)) {
	case ".parquet":
		return FormatParquet, true
	case ".orc":
		return FormatORC, true
	case ".avro":
		return FormatAvro, true
	}
	return "", false
}
