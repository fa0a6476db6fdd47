package paimon

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/parquet-go/parquet-go"

	"paimon-mirror/bucket"
	"paimon-mirror/metrics"
	"paimon-mirror/paimonerr"
	"paimon-mirror/stats"
	"paimon-mirror/storage"
)

// fileGroup is the rows of one partition bucket, in stored form.
type fileGroup struct {
	partition []string
	bucket    int
	rows      []map[string]any
}

// Write stores rows as data files, one per partition bucket, and returns the
// entries to hand to Commit. Nothing is visible to readers until Commit
// publishes a snapshot referencing the files.
func (t *Table) Write(ctx context.Context, rows []map[string]any) ([]ManifestEntry, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	for _, f := range t.schema.Fields {
		if f.Type.IsNested() {
			return nil, paimonerr.Unsupported("column %s has nested type %s", f.Name, f.Type)
		}
	}
	if t.format != FormatParquet {
		return nil, paimonerr.Unsupported("writing %s data files", t.format)
	}
	pschema, err := parquetSchema(t.schema)
	if err != nil {
		return nil, err
	}

	groups := make(map[string]*fileGroup)
	var order []string
	for i, row := range rows {
		stored, err := t.normalizeRow(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		pv := t.partitionValues(stored)
		b := t.buckets.Assign(pv, t.bucketKey(stored))
		key := BucketRelPath(t.schema.PartitionKeys, pv, b)
		g, ok := groups[key]
		if !ok {
			g = &fileGroup{partition: pv, bucket: b}
			groups[key] = g
			order = append(order, key)
		}
		g.rows = append(g.rows, stored)
	}

	writeID := uuid.NewString()
	entries := make([]ManifestEntry, 0, len(order))
	for i, key := range order {
		e, err := t.writeDataFile(ctx, pschema, groups[key], writeID, i)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	metrics.DataFilesWritten.WithLabelValues(t.name).Add(float64(len(entries)))
	t.logger.Debug("wrote data files", "files", len(entries), "rows", len(rows))
	return entries, nil
}

func (t *Table) normalizeRow(row map[string]any) (map[string]any, error) {
	for name := range row {
		if _, ok := t.schema.Field(name); !ok {
			return nil, paimonerr.InvalidArgument("unknown column %q", name)
		}
	}
	stored := make(map[string]any, len(t.schema.Fields))
	for _, f := range t.schema.Fields {
		v, err := NormalizeValue(f.Type, row[f.Name])
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", f.Name, err)
		}
		if v == nil && !f.Nullable {
			return nil, paimonerr.InvalidArgument("column %s is NOT NULL", f.Name)
		}
		stored[f.Name] = v
	}
	return stored, nil
}

func (t *Table) partitionValues(stored map[string]any) []string {
	pv := make([]string, len(t.schema.PartitionKeys))
	for i, k := range t.schema.PartitionKeys {
		f, _ := t.schema.Field(k)
		pv[i] = PartitionString(f.Type, stored[k])
	}
	return pv
}

// bucketKey is the primary key, or every non-partition column when the
// table has none.
func (t *Table) bucketKey(stored map[string]any) any {
	if len(t.schema.PrimaryKeys) == 1 {
		return stored[t.schema.PrimaryKeys[0]]
	}
	var key []any
	if len(t.schema.PrimaryKeys) > 0 {
		for _, k := range t.schema.PrimaryKeys {
			key = append(key, stored[k])
		}
		return key
	}
	partition := make(map[string]bool, len(t.schema.PartitionKeys))
	for _, k := range t.schema.PartitionKeys {
		partition[k] = true
	}
	for _, f := range t.schema.Fields {
		if !partition[f.Name] {
			key = append(key, stored[f.Name])
		}
	}
	return key
}

func (t *Table) writeDataFile(ctx context.Context, pschema *parquet.Schema, g *fileGroup, writeID string, counter int) (ManifestEntry, error) {
	buf := storage.NewBuffer()
	w := parquet.NewWriter(buf, pschema, parquet.Compression(&parquet.Snappy))

	// parquet orders the columns of a group by name, not by schema position.
	columns := pschema.Columns()
	collector := stats.NewCollector(t.schema.FieldNames()...)
	var minKey, maxKey string

	prows := make([]parquet.Row, len(g.rows))
	for i, r := range g.rows {
		row := make(parquet.Row, len(columns))
		for c, colPath := range columns {
			f, _ := t.schema.Field(colPath[0])
			v := r[f.Name]
			if v == nil {
				row[c] = parquet.Value{}.Level(0, 0, c)
				continue
			}
			def := 0
			if f.Nullable {
				def = 1
			}
			row[c] = parquet.ValueOf(v).Level(0, def, c)
		}
		prows[i] = row

		canonical := make(map[string]any, len(r))
		for _, f := range t.schema.Fields {
			canonical[f.Name] = StatValue(f.Type, r[f.Name])
		}
		collector.ObserveRow(canonical)

		if len(t.schema.PrimaryKeys) > 0 {
			k := bucket.KeyString(t.bucketKey(r))
			if i == 0 || k < minKey {
				minKey = k
			}
			if i == 0 || k > maxKey {
				maxKey = k
			}
		}
	}
	if _, err := w.WriteRows(prows); err != nil {
		return ManifestEntry{}, fmt.Errorf("writing parquet rows: %w", err)
	}
	if err := w.Close(); err != nil {
		return ManifestEntry{}, fmt.Errorf("closing parquet writer: %w", err)
	}

	name := DataFileName(writeID, counter, t.format)
	p := t.pf.PartitionedDataFilePath(t.schema.PartitionKeys, g.partition, g.bucket, writeID, counter, t.format)
	size, err := buf.Flush(ctx, t.fsys, p)
	if err != nil {
		return ManifestEntry{}, fmt.Errorf("writing data file %s: %w", p, err)
	}

	colStats := collector.Stats()
	var keyStats []stats.ColumnStats
	for _, k := range t.schema.PrimaryKeys {
		for _, cs := range colStats {
			if cs.Name == k {
				keyStats = append(keyStats, cs)
			}
		}
	}

	return ManifestEntry{
		Kind:         FileKindAdd,
		Partition:    g.partition,
		Bucket:       int32(g.bucket),
		TotalBuckets: int32(t.buckets.NumBuckets()),
		File: DataFileMeta{
			FileName:       name,
			FileSize:       size,
			RowCount:       collector.RowCount(),
			MinKey:         []byte(minKey),
			MaxKey:         []byte(maxKey),
			KeyStats:       toSimpleStats(keyStats),
			ValueStats:     toSimpleStats(colStats),
			SchemaID:       t.schema.ID,
			Level:          0,
			CreationTimeMs: t.now().UnixMilli(),
			DeleteRowCount: Some(int64(0)),
			FileSource:     Some(FileSourceAppend),
		},
	}, nil
}

// toSimpleStats encodes collected statistics. Columns without valid bounds
// store null bounds, which readers treat as unknown.
func toSimpleStats(cols []stats.ColumnStats) SimpleStats {
	s := SimpleStats{
		ColNames:   make([]string, len(cols)),
		MinValues:  make([]*string, len(cols)),
		MaxValues:  make([]*string, len(cols)),
		NullCounts: make([]*int64, len(cols)),
	}
	for i, c := range cols {
		s.ColNames[i] = c.Name
		if c.BoundsValid {
			lo, hi := EncodeStat(c.Min), EncodeStat(c.Max)
			s.MinValues[i], s.MaxValues[i] = &lo, &hi
		}
		n := c.NullCount
		s.NullCounts[i] = &n
	}
	return s
}

// parquetSchema maps a table schema to the data file schema. Field ids are
// carried so readers can match columns across renames.
func parquetSchema(s *Schema) (*parquet.Schema, error) {
	root := make(parquet.Group)

	for _, field := range s.Fields {
		var node parquet.Node

		switch field.Type.Root {
		case TypeInt:
			node = parquet.Int(32)
		case TypeLong:
			node = parquet.Int(64)
		case TypeString, TypeDecimal:
			node = parquet.String()
		case TypeDouble:
			node = parquet.Leaf(parquet.DoubleType)
		case TypeFloat:
			node = parquet.Leaf(parquet.FloatType)
		case TypeBoolean:
			node = parquet.Leaf(parquet.BooleanType)
		case TypeDate:
			node = parquet.Date()
		case TypeTimestamp:
			node = parquet.Timestamp(parquet.Millisecond)
		case TypeBinary:
			node = parquet.Leaf(parquet.ByteArrayType)
		default:
			return nil, paimonerr.Unsupported("column %s has type %s", field.Name, field.Type)
		}

		if field.Nullable {
			node = parquet.Optional(node)
		}
		root[field.Name] = parquet.FieldID(node, field.ID)
	}

	return parquet.NewSchema("paimon_"+strconv.Itoa(int(s.ID)), root), nil
}
