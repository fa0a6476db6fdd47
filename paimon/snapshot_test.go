package paimon

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paimon-mirror/paimonerr"
)

func TestOptionalThreeStates(t *testing.T) {
	type doc struct {
		A Optional[int64] `json:"a,omitzero"`
		B Optional[int64] `json:"b,omitzero"`
		C Optional[int64] `json:"c,omitzero"`
	}

	var d doc
	require.NoError(t, json.Unmarshal([]byte(`{"b": null, "c": 0}`), &d))
	assert.True(t, d.A.IsAbsent())
	assert.True(t, d.B.IsNull())
	assert.True(t, d.C.IsSet())
	v, ok := d.C.Get()
	assert.True(t, ok)
	assert.Equal(t, int64(0), v)
	assert.Equal(t, int64(7), d.B.OrElse(7))

	out, err := json.Marshal(d)
	require.NoError(t, err)
	assert.JSONEq(t, `{"b": null, "c": 0}`, string(out))
}

func TestDecodeSnapshot(t *testing.T) {
	data := []byte(`{
		"version": 3,
		"id": 4,
		"schemaId": 0,
		"baseManifestList": "manifest-list-a-0.avro",
		"deltaManifestList": "manifest-list-a-1.avro",
		"changelogManifestList": null,
		"commitUser": "u",
		"commitIdentifier": 4,
		"commitKind": "APPEND",
		"timeMillis": 1700000000000,
		"totalRecordCount": 12,
		"deltaRecordCount": 3,
		"watermark": null
	}`)
	snap, err := DecodeSnapshot("snapshot-4", data)
	require.NoError(t, err)

	assert.Equal(t, int64(4), snap.ID)
	assert.Equal(t, "manifest-list-a-1.avro", snap.DeltaManifestList.OrElse(""))
	assert.True(t, snap.ChangelogManifestList.IsNull())
	assert.True(t, snap.IndexManifest.IsAbsent())
	assert.True(t, snap.Watermark.IsNull())
	assert.True(t, snap.ChangelogRecordCount.IsAbsent())
	assert.Equal(t, CommitKindAppend, snap.CommitKind.OrElse(""))

	// null and absent members survive a rewrite unchanged
	out, err := EncodeSnapshot(snap)
	require.NoError(t, err)
	var fields map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(out, &fields))
	assert.Equal(t, "null", string(fields["changelogManifestList"]))
	assert.Equal(t, "null", string(fields["watermark"]))
	assert.NotContains(t, fields, "indexManifest")
	assert.NotContains(t, fields, "changelogRecordCount")
}

func TestDecodeSnapshotErrors(t *testing.T) {
	for name, data := range map[string]string{
		"malformed":  `{"id": `,
		"array root": `[1, 2]`,
		"null root":  `null`,
		"missing id": `{"schemaId": 0}`,
		"null id":    `{"id": null}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeSnapshot("snapshot-1", []byte(data))
			require.Error(t, err)
			assert.ErrorIs(t, err, paimonerr.ErrParse)
		})
	}
}

func TestSnapshotSequencePrecedence(t *testing.T) {
	both := &Snapshot{CommitIdentifier: Some(int64(10)), SequenceNumber: Some(int64(3))}
	legacy := &Snapshot{SequenceNumber: Some(int64(3))}

	v, ok := both.Sequence(PreferCommitIdentifier)
	assert.True(t, ok)
	assert.Equal(t, int64(10), v)

	v, _ = both.Sequence(PreferSequenceNumber)
	assert.Equal(t, int64(3), v)

	// the other member is used when the preferred one is unset
	v, ok = legacy.Sequence(PreferCommitIdentifier)
	assert.True(t, ok)
	assert.Equal(t, int64(3), v)

	_, ok = (&Snapshot{}).Sequence(PreferCommitIdentifier)
	assert.False(t, ok)

	p, ok := ParseSequencePrecedence("sequence_number")
	assert.True(t, ok)
	assert.Equal(t, PreferSequenceNumber, p)
	_, ok = ParseSequencePrecedence("newest")
	assert.False(t, ok)
}

func TestSnapshotMillisFallback(t *testing.T) {
	s := &Snapshot{TimestampMs: Some(int64(42))}
	ms, ok := s.Millis()
	assert.True(t, ok)
	assert.Equal(t, int64(42), ms)

	s.TimeMillis = Some(int64(50))
	ms, _ = s.Millis()
	assert.Equal(t, int64(50), ms)
}

func TestParseTypeString(t *testing.T) {
	tests := []struct {
		in       string
		root     TypeRoot
		nullable bool
	}{
		{"BIGINT NOT NULL", TypeLong, false},
		{"long", TypeLong, true},
		{"VARCHAR(20)", TypeString, true},
		{"INTEGER", TypeInt, true},
		{"TIMESTAMP(6) NOT NULL", TypeTimestamp, false},
		{"GEOMETRY", TypeString, true},
		{"ARRAY<INT>", TypeArray, true},
	}
	for _, tt := range tests {
		got, nullable := ParseTypeString(tt.in)
		assert.Equal(t, tt.root, got.Root, tt.in)
		assert.Equal(t, tt.nullable, nullable, tt.in)
	}

	dec, _ := ParseTypeString("DECIMAL(12, 4)")
	assert.Equal(t, DataType{Root: TypeDecimal, Precision: 12, Scale: 4}, dec)
	assert.Equal(t, "DECIMAL(12, 4)", dec.String())

	obj, nullable := ParseDataType(json.RawMessage(`{"type": "ROW", "fields": []}`))
	assert.Equal(t, TypeString, obj.Root)
	assert.True(t, nullable)
}

func TestSchemaRoundTrip(t *testing.T) {
	s := NewSchema([]SchemaField{
		{Name: "id", Type: DataType{Root: TypeLong}},
		{Name: "dt", Type: DataType{Root: TypeDate}, Nullable: true},
		{Name: "price", Type: DataType{Root: TypeDecimal, Precision: 10, Scale: 2}, Nullable: true},
	}, []string{"dt"}, []string{"id"}, map[string]string{OptionBucket: "4"})
	require.NoError(t, s.Validate())

	data, err := EncodeSchema(s)
	require.NoError(t, err)
	got, err := DecodeSchema(data)
	require.NoError(t, err)

	assert.Equal(t, s.Fields, got.Fields)
	assert.Equal(t, []string{"dt"}, got.PartitionKeys)
	assert.Equal(t, []string{"id"}, got.PrimaryKeys)
	n, err := got.NumBuckets()
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestDecodeSchemaNullableMember(t *testing.T) {
	s, err := DecodeSchema([]byte(`{"id": 2, "fields": [
		{"id": 0, "name": "a", "type": "INT NOT NULL", "nullable": true},
		{"id": 1, "name": "b", "type": "STRING", "nullable": false}
	]}`))
	require.NoError(t, err)
	assert.True(t, s.Fields[0].Nullable)
	assert.False(t, s.Fields[1].Nullable)
	assert.Equal(t, int64(2), s.ID)
}
