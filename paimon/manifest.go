package paimon

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/hamba/avro/v2/ocf"

	"paimon-mirror/predicate"
)

type FileKind int32

const (
	FileKindAdd FileKind = iota
	FileKindDelete
)

func (k FileKind) String() string {
	if k == FileKindDelete {
		return "DELETE"
	}
	return "ADD"
}

type FileSource int32

const (
	FileSourceAppend FileSource = iota
	FileSourceCompact
)

// SimpleStats holds per-column bounds as text (see EncodeStat) plus null
// counts. A nil entry is unknown.
type SimpleStats struct {
	ColNames   []string
	MinValues  []*string
	MaxValues  []*string
	NullCounts []*int64
}

// StatsSource decodes the stats against schema for pruning. Columns whose
// bounds fail to decode report unknown bounds.
func (s SimpleStats) StatsSource(schema *Schema, rowCount int64) predicate.StatsSource {
	out := make(predicate.StatsMap, len(s.ColNames))
	for i, name := range s.ColNames {
		f, ok := schema.Field(name)
		if !ok {
			continue
		}
		var lo, hi any
		if i < len(s.MinValues) && s.MinValues[i] != nil && i < len(s.MaxValues) && s.MaxValues[i] != nil {
			l, err1 := DecodeStat(f.Type, *s.MinValues[i])
			h, err2 := DecodeStat(f.Type, *s.MaxValues[i])
			if err1 == nil && err2 == nil {
				lo, hi = l, h
			}
		}
		var nulls *int64
		if i < len(s.NullCounts) {
			nulls = s.NullCounts[i]
		}
		rc := rowCount
		out[name] = predicate.FromCounts(lo, hi, nulls, &rc)
	}
	return out
}

// DataFileMeta describes one data file.
type DataFileMeta struct {
	FileName          string
	FileSize          int64
	RowCount          int64
	MinKey            []byte
	MaxKey            []byte
	KeyStats          SimpleStats
	ValueStats        SimpleStats
	MinSequenceNumber int64
	MaxSequenceNumber int64
	SchemaID          int64
	Level             int32
	ExtraFiles        []string
	CreationTimeMs    int64
	DeleteRowCount    Optional[int64]
	EmbeddedIndex     []byte
	FileSource        Optional[FileSource]
	ValueStatsCols    []string
	ExternalPath      Optional[string]
	FirstRowID        Optional[int64]
	WriteCols         []string
}

// ManifestEntry adds or deletes one data file in a partition bucket.
// Partition holds the path values of the partition keys.
type ManifestEntry struct {
	Kind         FileKind
	Partition    []string
	Bucket       int32
	TotalBuckets int32
	File         DataFileMeta
}

// RelPath is the file's path relative to the table root.
func (e ManifestEntry) RelPath(partitionKeys []string) string {
	return BucketRelPath(partitionKeys, e.Partition, int(e.Bucket)) + "/" + e.File.FileName
}

func (e ManifestEntry) identifier() string {
	return strings.Join(e.Partition, "/") + "|" + fmt.Sprint(e.Bucket) + "|" + e.File.FileName
}

// ManifestFileMeta is one manifest list entry.
type ManifestFileMeta struct {
	FileName        string
	FileSize        int64
	NumAddedFiles   int64
	NumDeletedFiles int64
	PartitionStats  SimpleStats
	SchemaID        int64
	MinBucket       Optional[int32]
	MaxBucket       Optional[int32]
	MinLevel        Optional[int32]
	MaxLevel        Optional[int32]
}

const simpleStatsAvroSchema = `{
	"type": "record",
	"name": "SimpleStats",
	"fields": [
		{"name": "_COL_NAMES", "type": {"type": "array", "items": "string"}},
		{"name": "_MIN_VALUES", "type": {"type": "array", "items": ["null", "string"]}},
		{"name": "_MAX_VALUES", "type": {"type": "array", "items": ["null", "string"]}},
		{"name": "_NULL_COUNTS", "type": {"type": "array", "items": ["null", "long"]}}
	]
}`

const manifestEntryAvroSchema = `{
	"type": "record",
	"name": "ManifestEntry",
	"fields": [
		{"name": "_KIND", "type": "int"},
		{"name": "_PARTITION", "type": {"type": "array", "items": "string"}},
		{"name": "_BUCKET", "type": "int"},
		{"name": "_TOTAL_BUCKETS", "type": "int"},
		{"name": "_FILE", "type": {
			"type": "record",
			"name": "DataFileMeta",
			"fields": [
				{"name": "_FILE_NAME", "type": "string"},
				{"name": "_FILE_SIZE", "type": "long"},
				{"name": "_ROW_COUNT", "type": "long"},
				{"name": "_MIN_KEY", "type": "bytes"},
				{"name": "_MAX_KEY", "type": "bytes"},
				{"name": "_KEY_STATS", "type": ` + simpleStatsAvroSchema + `},
				{"name": "_VALUE_STATS", "type": "SimpleStats"},
				{"name": "_MIN_SEQUENCE_NUMBER", "type": "long"},
				{"name": "_MAX_SEQUENCE_NUMBER", "type": "long"},
				{"name": "_SCHEMA_ID", "type": "long"},
				{"name": "_LEVEL", "type": "int"},
				{"name": "_EXTRA_FILES", "type": {"type": "array", "items": "string"}},
				{"name": "_CREATION_TIME", "type": "long"},
				{"name": "_DELETE_ROW_COUNT", "type": ["null", "long"], "default": null},
				{"name": "_EMBEDDED_FILE_INDEX", "type": ["null", "bytes"], "default": null},
				{"name": "_FILE_SOURCE", "type": ["null", "int"], "default": null},
				{"name": "_VALUE_STATS_COLS", "type": ["null", {"type": "array", "items": "string"}], "default": null},
				{"name": "_EXTERNAL_PATH", "type": ["null", "string"], "default": null},
				{"name": "_FIRST_ROW_ID", "type": ["null", "long"], "default": null},
				{"name": "_WRITE_COLS", "type": ["null", {"type": "array", "items": "string"}], "default": null}
			]
		}}
	]
}`

const manifestFileMetaAvroSchema = `{
	"type": "record",
	"name": "ManifestFileMeta",
	"fields": [
		{"name": "_FILE_NAME", "type": "string"},
		{"name": "_FILE_SIZE", "type": "long"},
		{"name": "_NUM_ADDED_FILES", "type": "long"},
		{"name": "_NUM_DELETED_FILES", "type": "long"},
		{"name": "_PARTITION_STATS", "type": ` + simpleStatsAvroSchema + `},
		{"name": "_SCHEMA_ID", "type": "long"},
		{"name": "_MIN_BUCKET", "type": ["null", "int"], "default": null},
		{"name": "_MAX_BUCKET", "type": ["null", "int"], "default": null},
		{"name": "_MIN_LEVEL", "type": ["null", "int"], "default": null},
		{"name": "_MAX_LEVEL", "type": ["null", "int"], "default": null}
	]
}`

type simpleStatsAvro struct {
	ColNames   []string  `avro:"_COL_NAMES"`
	MinValues  []*string `avro:"_MIN_VALUES"`
	MaxValues  []*string `avro:"_MAX_VALUES"`
	NullCounts []*int64  `avro:"_NULL_COUNTS"`
}

type manifestEntryAvro struct {
	Kind         int32            `avro:"_KIND"`
	Partition    []string         `avro:"_PARTITION"`
	Bucket       int32            `avro:"_BUCKET"`
	TotalBuckets int32            `avro:"_TOTAL_BUCKETS"`
	File         dataFileMetaAvro `avro:"_FILE"`
}

type dataFileMetaAvro struct {
	FileName          string          `avro:"_FILE_NAME"`
	FileSize          int64           `avro:"_FILE_SIZE"`
	RowCount          int64           `avro:"_ROW_COUNT"`
	MinKey            []byte          `avro:"_MIN_KEY"`
	MaxKey            []byte          `avro:"_MAX_KEY"`
	KeyStats          simpleStatsAvro `avro:"_KEY_STATS"`
	ValueStats        simpleStatsAvro `avro:"_VALUE_STATS"`
	MinSequenceNumber int64           `avro:"_MIN_SEQUENCE_NUMBER"`
	MaxSequenceNumber int64           `avro:"_MAX_SEQUENCE_NUMBER"`
	SchemaID          int64           `avro:"_SCHEMA_ID"`
	Level             int32           `avro:"_LEVEL"`
	ExtraFiles        []string        `avro:"_EXTRA_FILES"`
	CreationTime      int64           `avro:"_CREATION_TIME"`
	DeleteRowCount    *int64          `avro:"_DELETE_ROW_COUNT"`
	EmbeddedIndex     []byte          `avro:"_EMBEDDED_FILE_INDEX"`
	FileSource        *int32          `avro:"_FILE_SOURCE"`
	ValueStatsCols    []string        `avro:"_VALUE_STATS_COLS"`
	ExternalPath      *string         `avro:"_EXTERNAL_PATH"`
	FirstRowID        *int64          `avro:"_FIRST_ROW_ID"`
	WriteCols         []string        `avro:"_WRITE_COLS"`
}

type manifestFileMetaAvro struct {
	FileName        string          `avro:"_FILE_NAME"`
	FileSize        int64           `avro:"_FILE_SIZE"`
	NumAddedFiles   int64           `avro:"_NUM_ADDED_FILES"`
	NumDeletedFiles int64           `avro:"_NUM_DELETED_FILES"`
	PartitionStats  simpleStatsAvro `avro:"_PARTITION_STATS"`
	SchemaID        int64           `avro:"_SCHEMA_ID"`
	MinBucket       *int32          `avro:"_MIN_BUCKET"`
	MaxBucket       *int32          `avro:"_MAX_BUCKET"`
	MinLevel        *int32          `avro:"_MIN_LEVEL"`
	MaxLevel        *int32          `avro:"_MAX_LEVEL"`
}

// ManifestCodec maps a metadata compression name to the OCF block codec.
// Unknown names fall back to deflate, the codec gzip is built on.
func ManifestCodec(name string) ocf.CodecName {
	switch strings.ToLower(name) {
	case "none", "null", "uncompressed":
		return ocf.Null
	case "snappy":
		return ocf.Snappy
	case "zstd", "zstandard":
		return ocf.ZStandard
	default:
		return ocf.Deflate
	}
}

// EncodeManifest writes entries as an Avro object container file.
func EncodeManifest(entries []ManifestEntry, codec ocf.CodecName) ([]byte, error) {
	var buf bytes.Buffer
	enc, err := ocf.NewEncoder(manifestEntryAvroSchema, &buf,
		ocf.WithMetadata(map[string][]byte{"paimon.file-type": []byte("manifest")}),
		ocf.WithCodec(codec),
	)
	if err != nil {
		return nil, fmt.Errorf("create manifest encoder: %w", err)
	}
	for _, e := range entries {
		if err := enc.Encode(toManifestEntryAvro(e)); err != nil {
			return nil, fmt.Errorf("encode manifest entry: %w", err)
		}
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("close manifest encoder: %w", err)
	}
	return buf.Bytes(), nil
}

func DecodeManifest(data []byte) ([]ManifestEntry, error) {
	dec, err := ocf.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create manifest decoder: %w", err)
	}
	var out []ManifestEntry
	for dec.HasNext() {
		var rec manifestEntryAvro
		if err := dec.Decode(&rec); err != nil {
			return nil, fmt.Errorf("decode manifest entry: %w", err)
		}
		out = append(out, fromManifestEntryAvro(rec))
	}
	if err := dec.Error(); err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return out, nil
}

func EncodeManifestList(metas []ManifestFileMeta, codec ocf.CodecName) ([]byte, error) {
	var buf bytes.Buffer
	enc, err := ocf.NewEncoder(manifestFileMetaAvroSchema, &buf,
		ocf.WithMetadata(map[string][]byte{"paimon.file-type": []byte("manifest-list")}),
		ocf.WithCodec(codec),
	)
	if err != nil {
		return nil, fmt.Errorf("create manifest list encoder: %w", err)
	}
	for _, m := range metas {
		rec := manifestFileMetaAvro{
			FileName:        m.FileName,
			FileSize:        m.FileSize,
			NumAddedFiles:   m.NumAddedFiles,
			NumDeletedFiles: m.NumDeletedFiles,
			PartitionStats:  toSimpleStatsAvro(m.PartitionStats),
			SchemaID:        m.SchemaID,
			MinBucket:       optionalPtr(m.MinBucket),
			MaxBucket:       optionalPtr(m.MaxBucket),
			MinLevel:        optionalPtr(m.MinLevel),
			MaxLevel:        optionalPtr(m.MaxLevel),
		}
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("encode manifest list entry: %w", err)
		}
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("close manifest list encoder: %w", err)
	}
	return buf.Bytes(), nil
}

func DecodeManifestList(data []byte) ([]ManifestFileMeta, error) {
	dec, err := ocf.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create manifest list decoder: %w", err)
	}
	var out []ManifestFileMeta
	for dec.HasNext() {
		var rec manifestFileMetaAvro
		if err := dec.Decode(&rec); err != nil {
			return nil, fmt.Errorf("decode manifest list entry: %w", err)
		}
		out = append(out, ManifestFileMeta{
			FileName:        rec.FileName,
			FileSize:        rec.FileSize,
			NumAddedFiles:   rec.NumAddedFiles,
			NumDeletedFiles: rec.NumDeletedFiles,
			PartitionStats:  fromSimpleStatsAvro(rec.PartitionStats),
			SchemaID:        rec.SchemaID,
			MinBucket:       ptrOptional(rec.MinBucket),
			MaxBucket:       ptrOptional(rec.MaxBucket),
			MinLevel:        ptrOptional(rec.MinLevel),
			MaxLevel:        ptrOptional(rec.MaxLevel),
		})
	}
	if err := dec.Error(); err != nil {
		return nil, fmt.Errorf("read manifest list: %w", err)
	}
	return out, nil
}

func toManifestEntryAvro(e ManifestEntry) manifestEntryAvro {
	f := e.File
	var source *int32
	if s, ok := f.FileSource.Get(); ok {
		v := int32(s)
		source = &v
	}
	return manifestEntryAvro{
		Kind:         int32(e.Kind),
		Partition:    nonNilSlice(e.Partition),
		Bucket:       e.Bucket,
		TotalBuckets: e.TotalBuckets,
		File: dataFileMetaAvro{
			FileName:          f.FileName,
			FileSize:          f.FileSize,
			RowCount:          f.RowCount,
			MinKey:            nonNilBytes(f.MinKey),
			MaxKey:            nonNilBytes(f.MaxKey),
			KeyStats:          toSimpleStatsAvro(f.KeyStats),
			ValueStats:        toSimpleStatsAvro(f.ValueStats),
			MinSequenceNumber: f.MinSequenceNumber,
			MaxSequenceNumber: f.MaxSequenceNumber,
			SchemaID:          f.SchemaID,
			Level:             f.Level,
			ExtraFiles:        nonNilSlice(f.ExtraFiles),
			CreationTime:      f.CreationTimeMs,
			DeleteRowCount:    optionalPtr(f.DeleteRowCount),
			EmbeddedIndex:     f.EmbeddedIndex,
			FileSource:        source,
			ValueStatsCols:    f.ValueStatsCols,
			ExternalPath:      optionalPtr(f.ExternalPath),
			FirstRowID:        optionalPtr(f.FirstRowID),
			WriteCols:         f.WriteCols,
		},
	}
}

func fromManifestEntryAvro(r manifestEntryAvro) ManifestEntry {
	f := r.File
	var source Optional[FileSource]
	if f.FileSource != nil {
		source = Some(FileSource(*f.FileSource))
	}
	return ManifestEntry{
		Kind:         FileKind(r.Kind),
		Partition:    r.Partition,
		Bucket:       r.Bucket,
		TotalBuckets: r.TotalBuckets,
		File: DataFileMeta{
			FileName:          f.FileName,
			FileSize:          f.FileSize,
			RowCount:          f.RowCount,
			MinKey:            f.MinKey,
			MaxKey:            f.MaxKey,
			KeyStats:          fromSimpleStatsAvro(f.KeyStats),
			ValueStats:        fromSimpleStatsAvro(f.ValueStats),
			MinSequenceNumber: f.MinSequenceNumber,
			MaxSequenceNumber: f.MaxSequenceNumber,
			SchemaID:          f.SchemaID,
			Level:             f.Level,
			ExtraFiles:        f.ExtraFiles,
			CreationTimeMs:    f.CreationTime,
			DeleteRowCount:    ptrOptional(f.DeleteRowCount),
			EmbeddedIndex:     f.EmbeddedIndex,
			FileSource:        source,
			ValueStatsCols:    f.ValueStatsCols,
			ExternalPath:      ptrOptional(f.ExternalPath),
			FirstRowID:        ptrOptional(f.FirstRowID),
			WriteCols:         f.WriteCols,
		},
	}
}

func toSimpleStatsAvro(s SimpleStats) simpleStatsAvro {
	return simpleStatsAvro{
		ColNames:   nonNilSlice(s.ColNames),
		MinValues:  nonNilSlice(s.MinValues),
		MaxValues:  nonNilSlice(s.MaxValues),
		NullCounts: nonNilSlice(s.NullCounts),
	}
}

func fromSimpleStatsAvro(s simpleStatsAvro) SimpleStats {
	return SimpleStats{
		ColNames:   s.ColNames,
		MinValues:  s.MinValues,
		MaxValues:  s.MaxValues,
		NullCounts: s.NullCounts,
	}
}

// optionalPtr maps a set value to a pointer and absent or null to nil,
// matching an Avro ["null", T] union.
func optionalPtr[T any](o Optional[T]) *T {
	if v, ok := o.Get(); ok {
		return &v
	}
	return nil
}

func ptrOptional[T any](p *T) Optional[T] {
	if p == nil {
		return Null[T]()
	}
	return Some(*p)
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func nonNilBytes(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}
