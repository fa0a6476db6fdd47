package schema

import (
	"testing"

	"github.com/jackc/pglogrepl"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paimon-mirror/config"
	"paimon-mirror/paimon"
	"paimon-mirror/paimonerr"
)

func usersRelation() *pglogrepl.RelationMessageV2 {
	return &pglogrepl.RelationMessageV2{
		RelationMessage: pglogrepl.RelationMessage{
			RelationID:   16384,
			Namespace:    "public",
			RelationName: "users",
			Columns: []*pglogrepl.RelationMessageColumn{
				{Flags: 1, Name: "id", DataType: pgtype.Int8OID, TypeModifier: -1},
				{Name: "name", DataType: pgtype.TextOID, TypeModifier: -1},
				{Name: "balance", DataType: pgtype.NumericOID, TypeModifier: (12<<16 | 2) + 4},
				{Name: "created", DataType: pgtype.TimestamptzOID, TypeModifier: -1},
			},
		},
	}
}

func TestHandleRelationMessage(t *testing.T) {
	m := NewSchemaManager(nil)

	ts, err := m.HandleRelationMessage(usersRelation())
	require.NoError(t, err)
	assert.Equal(t, "public.users", ts.QualifiedName())
	require.Len(t, ts.Columns, 4)

	assert.True(t, ts.Columns[0].Key)
	assert.False(t, ts.Columns[1].Key)
	assert.True(t, ts.Columns[1].Nullable)
	assert.Equal(t, 12, ts.Columns[2].Precision)
	assert.Equal(t, 2, ts.Columns[2].Scale)

	got, err := m.GetSchema(16384)
	require.NoError(t, err)
	assert.Same(t, ts, got)

	byName, ok := m.GetSchemaByName("public", "users")
	require.True(t, ok)
	assert.Same(t, ts, byName)

	_, err = m.GetSchema(1)
	assert.Error(t, err)
}

func TestHandleRelationMessageKeepsNullability(t *testing.T) {
	m := NewSchemaManager(nil)
	m.schemasByName["public.users"] = &TableSchema{
		Schema: "public",
		Name:   "users",
		Columns: []Column{
			{Name: "id", TypeOID: pgtype.Int8OID, TypeName: "int8"},
			{Name: "name", TypeOID: pgtype.TextOID, TypeName: "text", Nullable: true},
		},
	}

	ts, err := m.HandleRelationMessage(usersRelation())
	require.NoError(t, err)
	assert.False(t, ts.Columns[0].Nullable)
	assert.Equal(t, "int8", ts.Columns[0].TypeName)
	assert.True(t, ts.Columns[1].Nullable)
}

func TestNumericTypmod(t *testing.T) {
	p, s, ok := numericTypmod((10<<16 | 3) + 4)
	require.True(t, ok)
	assert.Equal(t, 10, p)
	assert.Equal(t, 3, s)

	_, _, ok = numericTypmod(-1)
	assert.False(t, ok)
}

func TestPostgresTypeToPaimon(t *testing.T) {
	tests := []struct {
		oid  uint32
		want paimon.TypeRoot
	}{
		{pgtype.Int2OID, paimon.TypeInt},
		{pgtype.Int4OID, paimon.TypeInt},
		{pgtype.Int8OID, paimon.TypeLong},
		{pgtype.Float4OID, paimon.TypeFloat},
		{pgtype.Float8OID, paimon.TypeDouble},
		{pgtype.BoolOID, paimon.TypeBoolean},
		{pgtype.DateOID, paimon.TypeDate},
		{pgtype.TimestampOID, paimon.TypeTimestamp},
		{pgtype.TimestamptzOID, paimon.TypeTimestamp},
		{pgtype.NumericOID, paimon.TypeDecimal},
		{pgtype.ByteaOID, paimon.TypeBinary},
		{pgtype.TextArrayOID, paimon.TypeArray},
		{pgtype.TextOID, paimon.TypeString},
		{pgtype.UUIDOID, paimon.TypeString},
		{pgtype.JSONBOID, paimon.TypeString},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, PostgresTypeToPaimon(tt.oid, 0, 0).Root, "oid %d", tt.oid)
	}

	dec := PostgresTypeToPaimon(pgtype.NumericOID, 0, 0)
	assert.Equal(t, "DECIMAL(38, 10)", dec.String())
	dec = PostgresTypeToPaimon(pgtype.NumericOID, 12, 2)
	assert.Equal(t, "DECIMAL(12, 2)", dec.String())
}

func TestToPaimon(t *testing.T) {
	m := NewSchemaManager(nil)
	ts, err := m.HandleRelationMessage(usersRelation())
	require.NoError(t, err)

	s, err := ToPaimon(ts, config.Table{Schema: "public", Name: "users", Buckets: 4}, "parquet")
	require.NoError(t, err)

	assert.Equal(t, []string{"id"}, s.PrimaryKeys)
	assert.Equal(t, []string{"id", "name", "balance", "created"}, s.FieldNames())
	id, _ := s.Field("id")
	assert.False(t, id.Nullable)
	assert.Equal(t, 0, id.ID)
	name, _ := s.Field("name")
	assert.True(t, name.Nullable)

	n, err := s.NumBuckets()
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, "parquet", s.Options[paimon.OptionFileFormat])

	// configured keys win over the replica identity
	s, err = ToPaimon(ts, config.Table{Name: "users", Buckets: 1, PrimaryKeys: []string{"name"}}, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"name"}, s.PrimaryKeys)
	id, _ = s.Field("id")
	assert.True(t, id.Nullable)

	_, err = ToPaimon(ts, config.Table{Name: "users", Buckets: 1, PartitionKeys: []string{"region"}}, "")
	assert.ErrorIs(t, err, paimonerr.ErrInvalidArgument)
}
