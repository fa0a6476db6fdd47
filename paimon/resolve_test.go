package paimon

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paimon-mirror/paimonerr"
	"paimon-mirror/storage"
)

const testRoot = "default.db/users"

func newTestStorage(t *testing.T) *storage.LocalStorage {
	t.Helper()
	s, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	return s
}

func putSnapshot(t *testing.T, fsys storage.Storage, root string, snap *Snapshot) {
	t.Helper()
	data, err := EncodeSnapshot(snap)
	require.NoError(t, err)
	require.NoError(t, storage.WriteFile(context.Background(), fsys, NewPathFactory(root).SnapshotFilePath(snap.ID), data))
}

func putFile(t *testing.T, fsys storage.Storage, p, content string) {
	t.Helper()
	require.NoError(t, storage.WriteFile(context.Background(), fsys, p, []byte(content)))
}

func snapshotAt(id, ms int64) *Snapshot {
	return &Snapshot{
		Version:          Some(int32(3)),
		ID:               id,
		CommitIdentifier: Some(id),
		CommitKind:       Some(CommitKindAppend),
		TimeMillis:       Some(ms),
	}
}

func TestResolveCurrentPathLatestPointer(t *testing.T) {
	ctx := context.Background()
	fsys := newTestStorage(t)
	pf := NewPathFactory(testRoot)
	putSnapshot(t, fsys, testRoot, snapshotAt(1, 10))
	putSnapshot(t, fsys, testRoot, snapshotAt(2, 20))

	putFile(t, fsys, pf.LatestPath(), "snapshot-1\n")
	p, err := ResolveCurrentPath(ctx, fsys, testRoot, DefaultReadOptions())
	require.NoError(t, err)
	assert.Equal(t, pf.SnapshotFilePath(1), p)

	// a bare id is accepted too
	putFile(t, fsys, pf.LatestPath(), "2")
	p, err = ResolveCurrentPath(ctx, fsys, testRoot, DefaultReadOptions())
	require.NoError(t, err)
	assert.Equal(t, pf.SnapshotFilePath(2), p)
}

func TestResolveCurrentPathListingFallback(t *testing.T) {
	ctx := context.Background()
	fsys := newTestStorage(t)
	for _, id := range []int64{2, 9, 10} {
		putSnapshot(t, fsys, testRoot, snapshotAt(id, id))
	}
	putFile(t, fsys, NewPathFactory(testRoot).EarliestPath(), "2")

	// snapshot-10 wins over snapshot-9 even though it sorts first as text
	p, err := ResolveCurrentPath(ctx, fsys, testRoot, DefaultReadOptions())
	require.NoError(t, err)
	assert.Equal(t, NewPathFactory(testRoot).SnapshotFilePath(10), p)
}

func TestResolveCurrentPathExplicitVersion(t *testing.T) {
	ctx := context.Background()
	fsys := newTestStorage(t)
	putSnapshot(t, fsys, testRoot, snapshotAt(3, 30))

	p, err := ResolveCurrentPath(ctx, fsys, testRoot, ReadOptions{Version: "3"})
	require.NoError(t, err)
	assert.Equal(t, NewPathFactory(testRoot).SnapshotFilePath(3), p)

	_, err = ResolveCurrentPath(ctx, fsys, testRoot, ReadOptions{Version: "4"})
	assert.ErrorIs(t, err, paimonerr.ErrNotFound)
}

func TestResolveCurrentPathNotFound(t *testing.T) {
	ctx := context.Background()
	fsys := newTestStorage(t)

	_, err := ResolveCurrentPath(ctx, fsys, testRoot, DefaultReadOptions())
	assert.ErrorIs(t, err, paimonerr.ErrNotFound, "missing snapshot directory")

	require.NoError(t, fsys.MkdirAll(ctx, NewPathFactory(testRoot).SnapshotDir()))
	putFile(t, fsys, NewPathFactory(testRoot).SnapshotDir()+"/README", "x")
	_, err = ResolveCurrentPath(ctx, fsys, testRoot, DefaultReadOptions())
	assert.ErrorIs(t, err, paimonerr.ErrNotFound, "no snapshot files")
}

func TestResolveCurrentLookupModes(t *testing.T) {
	ctx := context.Background()
	fsys := newTestStorage(t)
	for _, id := range []int64{1, 2, 3} {
		putSnapshot(t, fsys, testRoot, snapshotAt(id, id*10))
	}
	putFile(t, fsys, NewPathFactory(testRoot).LatestPath(), "3")

	md, err := ResolveCurrent(ctx, fsys, testRoot, DefaultReadOptions())
	require.NoError(t, err)
	assert.Equal(t, int64(3), md.Current.ID)
	assert.Len(t, md.Snapshots, 3)

	tests := []struct {
		at   int64
		want int64
	}{
		{10, 1},
		{15, 1},
		{20, 2},
		{25, 2},
		{30, 3},
		{99, 3},
	}
	for _, tt := range tests {
		ts := time.UnixMilli(tt.at)
		md, err := ResolveCurrent(ctx, fsys, testRoot, ReadOptions{SnapshotFromTimestamp: &ts})
		require.NoError(t, err)
		assert.Equal(t, tt.want, md.Current.ID, "as of %d", tt.at)
	}

	early := time.UnixMilli(5)
	_, err = ResolveCurrent(ctx, fsys, testRoot, ReadOptions{SnapshotFromTimestamp: &early})
	assert.ErrorIs(t, err, paimonerr.ErrNotFound)

	id := int64(2)
	md, err = ResolveCurrent(ctx, fsys, testRoot, ReadOptions{Version: "1", SnapshotFromID: &id})
	require.NoError(t, err)
	assert.Equal(t, int64(2), md.Current.ID, "snapshot_from_id overrides version")

	missing := int64(7)
	_, err = ResolveCurrent(ctx, fsys, testRoot, ReadOptions{SnapshotFromID: &missing})
	assert.ErrorIs(t, err, paimonerr.ErrNotFound)

	_, err = ResolveCurrent(ctx, fsys, testRoot, ReadOptions{SnapshotFromID: &id, SnapshotFromTimestamp: &early})
	assert.ErrorIs(t, err, paimonerr.ErrInvalidArgument)
}

func TestResolveCurrentIgnoresOrphans(t *testing.T) {
	ctx := context.Background()
	fsys := newTestStorage(t)
	putSnapshot(t, fsys, testRoot, snapshotAt(1, 10))
	putSnapshot(t, fsys, testRoot, snapshotAt(2, 20))
	putFile(t, fsys, NewPathFactory(testRoot).LatestPath(), "1")

	md, err := ResolveCurrent(ctx, fsys, testRoot, DefaultReadOptions())
	require.NoError(t, err)
	assert.Equal(t, int64(1), md.Current.ID)
	assert.NotContains(t, md.Snapshots, int64(2))
}

func TestParseSchemaSources(t *testing.T) {
	ctx := context.Background()
	fsys := newTestStorage(t)
	pf := NewPathFactory(testRoot)

	// no schema anywhere: the default schema is substituted
	putSnapshot(t, fsys, testRoot, snapshotAt(1, 10))
	md, err := Parse(ctx, fsys, pf.SnapshotFilePath(1), DefaultReadOptions())
	require.NoError(t, err)
	assert.True(t, md.SchemaFromDefault)
	assert.Equal(t, []string{"id", "name", "age", "city"}, md.Schema.FieldNames())
	assert.Equal(t, "3", md.FormatVersion)
	assert.Equal(t, "gzip", md.Properties["metadata.compression-codec"])

	// schema file by id
	s := NewSchema([]SchemaField{{Name: "k", Type: DataType{Root: TypeLong}}}, nil, nil, nil)
	data, err := EncodeSchema(s)
	require.NoError(t, err)
	putFile(t, fsys, pf.SchemaFilePath(0), string(data))
	md, err = Parse(ctx, fsys, pf.SnapshotFilePath(1), DefaultReadOptions())
	require.NoError(t, err)
	assert.False(t, md.SchemaFromDefault)
	assert.Equal(t, []string{"k"}, md.Schema.FieldNames())

	// an embedded schema wins over the file
	snap := snapshotAt(2, 20)
	snap.Schema = []byte(`{"id": 0, "fields": [{"id": 0, "name": "embedded", "type": "STRING"}]}`)
	putSnapshot(t, fsys, testRoot, snap)
	md, err = Parse(ctx, fsys, pf.SnapshotFilePath(2), ReadOptions{MetadataCompressionCodec: "zstd"})
	require.NoError(t, err)
	assert.Equal(t, []string{"embedded"}, md.Schema.FieldNames())
	assert.Equal(t, "3", md.FormatVersion)
	assert.Equal(t, "zstd", md.Properties["metadata.compression-codec"])
}

func TestResolveCurrentIceberg(t *testing.T) {
	ctx := context.Background()
	fsys := newTestStorage(t)
	putFile(t, fsys, "default.db/ice/metadata/v1.metadata.json", "{}")

	_, err := ResolveCurrent(ctx, fsys, "default.db/ice", DefaultReadOptions())
	assert.ErrorIs(t, err, paimonerr.ErrUnsupported)
}

func TestListSnapshots(t *testing.T) {
	md := &TableMetadata{Snapshots: map[int64]*Snapshot{
		2: {ID: 2, SequenceNumber: Some(int64(5)), TimestampMs: Some(int64(200)), DeltaManifestList: Some("b")},
		1: {ID: 1, CommitIdentifier: Some(int64(1)), TimeMillis: Some(int64(100)), DeltaManifestList: Some("a")},
	}}
	rows := md.ListSnapshots()
	require.Len(t, rows, 2)
	assert.Equal(t, SnapshotInfo{SnapshotID: 1, SequenceNumber: 1, TimestampMs: 100, ManifestList: "a"}, rows[0])
	assert.Equal(t, int64(5), rows[1].SequenceNumber)
	assert.Equal(t, int64(200), rows[1].TimestampMs)
}
