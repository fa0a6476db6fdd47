package paimon

import (
	"testing"

	"github.com/hamba/avro/v2/ocf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strp(s string) *string { return &s }
func i64p(v int64) *int64   { return &v }

func TestManifestRoundTrip(t *testing.T) {
	stats := SimpleStats{
		ColNames:   []string{"id", "name"},
		MinValues:  []*string{strp("1"), nil},
		MaxValues:  []*string{strp("9"), nil},
		NullCounts: []*int64{i64p(0), i64p(3)},
	}
	entry := ManifestEntry{
		Kind:         FileKindAdd,
		Partition:    []string{"2024-01-01", "paris"},
		Bucket:       2,
		TotalBuckets: 4,
		File: DataFileMeta{
			FileName:          "data-u-0.parquet",
			FileSize:          1024,
			RowCount:          3,
			MinKey:            []byte("1"),
			MaxKey:            []byte("9"),
			KeyStats:          stats,
			ValueStats:        stats,
			MinSequenceNumber: 7,
			MaxSequenceNumber: 7,
			SchemaID:          1,
			ExtraFiles:        []string{"extra"},
			CreationTimeMs:    1_700_000_000_000,
			DeleteRowCount:    Some(int64(0)),
			EmbeddedIndex:     []byte{1, 2},
			FileSource:        Some(FileSourceAppend),
			ValueStatsCols:    []string{"id"},
			ExternalPath:      Some("s3://b/k"),
			FirstRowID:        Some(int64(100)),
			WriteCols:         []string{"id", "name"},
		},
	}
	deleted := entry
	deleted.Kind = FileKindDelete
	deleted.File.FileSource = Some(FileSourceCompact)

	for _, codec := range []ocf.CodecName{ocf.Null, ocf.Deflate, ocf.Snappy, ocf.ZStandard} {
		t.Run(string(codec), func(t *testing.T) {
			data, err := EncodeManifest([]ManifestEntry{entry, deleted}, codec)
			require.NoError(t, err)
			got, err := DecodeManifest(data)
			require.NoError(t, err)
			assert.Equal(t, []ManifestEntry{entry, deleted}, got)
		})
	}
}

func TestManifestOptionalFieldsDecodeAsNull(t *testing.T) {
	data, err := EncodeManifest([]ManifestEntry{{
		Kind:      FileKindAdd,
		Partition: []string{"x"},
		File:      DataFileMeta{FileName: "f", MinKey: []byte("a"), ExtraFiles: []string{"e"}},
	}}, ocf.Deflate)
	require.NoError(t, err)
	got, err := DecodeManifest(data)
	require.NoError(t, err)
	require.Len(t, got, 1)

	f := got[0].File
	assert.True(t, f.DeleteRowCount.IsNull())
	assert.True(t, f.FileSource.IsNull())
	assert.True(t, f.ExternalPath.IsNull())
	assert.True(t, f.FirstRowID.IsNull())
	assert.Nil(t, f.ValueStatsCols)
}

func TestManifestListRoundTrip(t *testing.T) {
	metas := []ManifestFileMeta{{
		FileName:        "manifest-u-0.avro",
		FileSize:        2048,
		NumAddedFiles:   3,
		NumDeletedFiles: 1,
		PartitionStats: SimpleStats{
			ColNames:   []string{"city"},
			MinValues:  []*string{strp("oslo")},
			MaxValues:  []*string{strp("paris")},
			NullCounts: []*int64{i64p(1)},
		},
		SchemaID:  2,
		MinBucket: Some(int32(0)),
		MaxBucket: Some(int32(3)),
		MinLevel:  Some(int32(0)),
		MaxLevel:  Some(int32(0)),
	}}
	data, err := EncodeManifestList(metas, ManifestCodec("gzip"))
	require.NoError(t, err)
	got, err := DecodeManifestList(data)
	require.NoError(t, err)
	assert.Equal(t, metas, got)
}

func TestManifestCodec(t *testing.T) {
	assert.Equal(t, ocf.Deflate, ManifestCodec("gzip"))
	assert.Equal(t, ocf.Deflate, ManifestCodec(""))
	assert.Equal(t, ocf.Snappy, ManifestCodec("SNAPPY"))
	assert.Equal(t, ocf.ZStandard, ManifestCodec("zstd"))
	assert.Equal(t, ocf.Null, ManifestCodec("none"))
}

func TestMergeEntries(t *testing.T) {
	add := func(name string) ManifestEntry {
		return ManifestEntry{Kind: FileKindAdd, Bucket: 0, File: DataFileMeta{FileName: name}}
	}
	del := add("b")
	del.Kind = FileKindDelete

	got := mergeEntries([]ManifestEntry{add("a"), add("b"), add("c"), del})
	var names []string
	for _, e := range got {
		names = append(names, e.File.FileName)
	}
	assert.Equal(t, []string{"a", "c"}, names)
}

func TestSimpleStatsSource(t *testing.T) {
	schema := usersSchema("1")
	s := SimpleStats{
		ColNames:   []string{"age", "city", "ghost"},
		MinValues:  []*string{strp("18"), strp("bad"), strp("1")},
		MaxValues:  []*string{strp("65"), nil, strp("2")},
		NullCounts: []*int64{i64p(0), nil, i64p(0)},
	}
	src := s.StatsSource(schema, 10)

	age, ok := src.ColumnStats("age")
	require.True(t, ok)
	assert.Equal(t, int64(18), age.Lower)
	assert.Equal(t, int64(65), age.Upper)
	assert.False(t, age.HasNull)
	assert.True(t, age.HasNotNull)

	city, ok := src.ColumnStats("city")
	require.True(t, ok)
	assert.Nil(t, city.Lower, "half-known bounds are dropped")
	assert.True(t, city.HasNull)

	_, ok = src.ColumnStats("ghost")
	assert.False(t, ok)
}
