package replication

import (
	"bytes"
	"context"
	"testing"

	"github.com/hamba/avro/v2/ocf"
	"github.com/jackc/pglogrepl"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paimon-mirror/config"
	"paimon-mirror/paimon"
	"paimon-mirror/paimonerr"
	"paimon-mirror/predicate"
	"paimon-mirror/schema"
	"paimon-mirror/storage"
)

const (
	usersRelID  = 16384
	eventsRelID = 16390
)

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Commit.User = "mirror-test"
	cfg.Commit.FileFormat = "parquet"
	cfg.Tables = []config.Table{{Schema: "public", Name: "users", Buckets: 2}}
	return cfg
}

func relation(id uint32, name string, cols ...*pglogrepl.RelationMessageColumn) *pglogrepl.RelationMessageV2 {
	return &pglogrepl.RelationMessageV2{
		RelationMessage: pglogrepl.RelationMessage{
			RelationID:   id,
			Namespace:    "public",
			RelationName: name,
			ColumnNum:    uint16(len(cols)),
			Columns:      cols,
		},
	}
}

func usersRelation() *pglogrepl.RelationMessageV2 {
	return relation(usersRelID, "users",
		&pglogrepl.RelationMessageColumn{Flags: 1, Name: "id", DataType: pgtype.Int8OID, TypeModifier: -1},
		&pglogrepl.RelationMessageColumn{Name: "name", DataType: pgtype.TextOID, TypeModifier: -1},
		&pglogrepl.RelationMessageColumn{Name: "age", DataType: pgtype.Int4OID, TypeModifier: -1},
		&pglogrepl.RelationMessageColumn{Name: "ext_id", DataType: pgtype.UUIDOID, TypeModifier: -1},
	)
}

func textTuple(values ...*string) *pglogrepl.TupleData {
	td := &pglogrepl.TupleData{ColumnNum: uint16(len(values))}
	for _, v := range values {
		if v == nil {
			td.Columns = append(td.Columns, &pglogrepl.TupleDataColumn{DataType: 'n'})
			continue
		}
		td.Columns = append(td.Columns, &pglogrepl.TupleDataColumn{
			DataType: 't',
			Length:   uint32(len(*v)),
			Data:     []byte(*v),
		})
	}
	return td
}

func str(s string) *string { return &s }

func insert(relID uint32, tuple *pglogrepl.TupleData) *pglogrepl.InsertMessageV2 {
	return &pglogrepl.InsertMessageV2{
		InsertMessage: pglogrepl.InsertMessage{RelationID: relID, Tuple: tuple},
	}
}

func newTestApplier(t *testing.T, fsys storage.Storage) *Applier {
	t.Helper()
	return NewApplier(testConfig(), fsys, schema.NewSchemaManager(nil), nil)
}

func apply(t *testing.T, a *Applier, msgs ...pglogrepl.Message) bool {
	t.Helper()
	var committed bool
	for _, m := range msgs {
		var err error
		committed, err = a.Apply(context.Background(), m)
		require.NoError(t, err)
	}
	return committed
}

func TestApplierMirrorsInserts(t *testing.T) {
	ctx := context.Background()
	fsys, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	a := newTestApplier(t, fsys)

	committed := apply(t, a,
		usersRelation(),
		&pglogrepl.BeginMessage{},
		insert(usersRelID, textTuple(str("1"), str("alice"), str("30"), str("6f1c1f6e-3c55-4d6b-9f43-0c8d7b0c3b2a"))),
		insert(usersRelID, textTuple(str("2"), nil, str("41"), nil)),
	)
	assert.False(t, committed)
	assert.True(t, a.InTransaction())

	committed = apply(t, a, &pglogrepl.CommitMessage{CommitLSN: 100, TransactionEndLSN: 120})
	assert.True(t, committed)
	assert.False(t, a.InTransaction())

	root := config.Table{Schema: "public", Name: "users"}.Path()
	md, err := paimon.ResolveCurrent(ctx, fsys, root, paimon.DefaultReadOptions())
	require.NoError(t, err)
	assert.Equal(t, int64(1), md.Current.ID)
	assert.Equal(t, int64(2), md.Current.TotalRecordCount.OrElse(0))
	assert.Equal(t, "mirror-test", md.Current.CommitUser.OrElse(""))

	ext, ok := md.Schema.Field("ext_id")
	require.True(t, ok)
	assert.Equal(t, paimon.TypeString, ext.Type.Root)
	id, _ := md.Schema.Field("id")
	assert.False(t, id.Nullable)

	files, err := paimon.Scan(ctx, fsys, md, nil)
	require.NoError(t, err)
	var rows int64
	for _, f := range files {
		rows += f.File.RowCount
	}
	assert.Equal(t, int64(2), rows)

	files, err = paimon.Scan(ctx, fsys, md, []predicate.Filter{predicate.Gt("age", 50)})
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestApplierResumesExistingTable(t *testing.T) {
	ctx := context.Background()
	fsys, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	for i, name := range []string{"alice", "bob"} {
		a := newTestApplier(t, fsys)
		apply(t, a,
			usersRelation(),
			&pglogrepl.BeginMessage{},
			insert(usersRelID, textTuple(str(string(rune('1'+i))), str(name), nil, nil)),
			&pglogrepl.CommitMessage{},
		)
	}

	md, err := paimon.ResolveCurrent(ctx, fsys, "public.db/users", paimon.DefaultReadOptions())
	require.NoError(t, err)
	assert.Equal(t, int64(2), md.Current.ID)
	assert.Equal(t, int64(2), md.Current.TotalRecordCount.OrElse(0))
}

func TestApplierIgnoresUnmirroredTables(t *testing.T) {
	fsys, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	a := newTestApplier(t, fsys)

	events := relation(eventsRelID, "events",
		&pglogrepl.RelationMessageColumn{Name: "payload", DataType: pgtype.TextOID, TypeModifier: -1})
	committed := apply(t, a,
		events,
		&pglogrepl.BeginMessage{},
		insert(eventsRelID, textTuple(str("x"))),
		&pglogrepl.UpdateMessageV2{UpdateMessage: pglogrepl.UpdateMessage{RelationID: eventsRelID}},
		&pglogrepl.CommitMessage{},
	)
	assert.True(t, committed)

	exists, err := fsys.DirExists(context.Background(), "public.db/events")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestApplierRejectsUpdatesAndDeletes(t *testing.T) {
	fsys, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	a := newTestApplier(t, fsys)
	apply(t, a, usersRelation(), &pglogrepl.BeginMessage{})

	_, err = a.Apply(context.Background(), &pglogrepl.UpdateMessageV2{
		UpdateMessage: pglogrepl.UpdateMessage{RelationID: usersRelID},
	})
	assert.ErrorIs(t, err, paimonerr.ErrUnsupported)

	_, err = a.Apply(context.Background(), &pglogrepl.DeleteMessageV2{
		DeleteMessage: pglogrepl.DeleteMessage{RelationID: usersRelID},
	})
	assert.ErrorIs(t, err, paimonerr.ErrUnsupported)
}

func TestApplierSchemaChange(t *testing.T) {
	fsys, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	a := newTestApplier(t, fsys)
	apply(t, a, usersRelation())

	changed := relation(usersRelID, "users",
		&pglogrepl.RelationMessageColumn{Flags: 1, Name: "id", DataType: pgtype.Int8OID, TypeModifier: -1},
		&pglogrepl.RelationMessageColumn{Name: "email", DataType: pgtype.TextOID, TypeModifier: -1},
	)
	_, err = a.Apply(context.Background(), changed)
	assert.ErrorIs(t, err, paimonerr.ErrUnsupported)

	// inserts for the dropped table are skipped rather than failing
	committed := apply(t, a,
		&pglogrepl.BeginMessage{},
		insert(usersRelID, textTuple(str("1"), str("a@example.com"))),
		&pglogrepl.CommitMessage{},
	)
	assert.True(t, committed)
}

func TestDecodeColumnData(t *testing.T) {
	m := pgtype.NewMap()

	v, err := decodeColumnData(m, []byte("42"), pgtype.Int4OID, pgtype.TextFormatCode)
	require.NoError(t, err)
	assert.Equal(t, int32(42), v)

	v, err = decodeColumnData(m, []byte("t"), pgtype.BoolOID, pgtype.TextFormatCode)
	require.NoError(t, err)
	assert.Equal(t, true, v)

	v, err = decodeColumnData(m, []byte("raw"), 999999, pgtype.TextFormatCode)
	require.NoError(t, err)
	assert.Equal(t, "raw", v)

	_, err = decodeColumnData(m, []byte("nope"), pgtype.Int4OID, pgtype.TextFormatCode)
	assert.Error(t, err)
}

func TestApplierManifestCodec(t *testing.T) {
	ctx := context.Background()
	fsys, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	cfg := testConfig()
	cfg.Read.MetadataCompressionCodec = "snappy"
	a := NewApplier(cfg, fsys, schema.NewSchemaManager(nil), nil)

	apply(t, a,
		usersRelation(),
		&pglogrepl.BeginMessage{},
		insert(usersRelID, textTuple(str("1"), str("alice"), str("30"), nil)),
		&pglogrepl.CommitMessage{CommitLSN: 100, TransactionEndLSN: 120},
	)

	root := config.Table{Schema: "public", Name: "users"}.Path()
	md, err := paimon.ResolveCurrent(ctx, fsys, root, paimon.DefaultReadOptions())
	require.NoError(t, err)
	metas, err := paimon.SnapshotManifests(ctx, fsys, md)
	require.NoError(t, err)
	require.NotEmpty(t, metas)

	pf := paimon.NewPathFactory(root)
	for _, m := range metas {
		data, err := storage.ReadFile(ctx, fsys, pf.ManifestPath(m.FileName))
		require.NoError(t, err)
		dec, err := ocf.NewDecoder(bytes.NewReader(data))
		require.NoError(t, err)
		assert.Equal(t, "snappy", string(dec.Metadata()["avro.codec"]), m.FileName)
	}
}
