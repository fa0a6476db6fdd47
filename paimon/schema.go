package paimon

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"paimon-mirror/paimonerr"
)

// SchemaField is one column. ID is stable across schema versions and
// independent of the field's position.
type SchemaField struct {
	ID       int
	Name     string
	Type     DataType
	Nullable bool
}

type Schema struct {
	ID            int64
	Fields        []SchemaField
	PartitionKeys []string
	PrimaryKeys   []string
	Options       map[string]string
	TimeMillis    int64
}

// Option keys stored in the schema.
const (
	OptionBucket     = "bucket"
	OptionFileFormat = "file.format"
)

// DefaultSchema is substituted when a snapshot neither embeds a schema nor
// has a readable schema file, so callers always get a usable schema.
func DefaultSchema() *Schema {
	return &Schema{
		Fields: []SchemaField{
			{ID: 1, Name: "id", Type: DataType{Root: TypeLong}, Nullable: true},
			{ID: 2, Name: "name", Type: DataType{Root: TypeString}, Nullable: true},
			{ID: 3, Name: "age", Type: DataType{Root: TypeInt}, Nullable: true},
			{ID: 4, Name: "city", Type: DataType{Root: TypeString}, Nullable: true},
		},
		Options: map[string]string{},
	}
}

func (s *Schema) Field(name string) (SchemaField, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return SchemaField{}, false
}

func (s *Schema) FieldNames() []string {
	out := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		out[i] = f.Name
	}
	return out
}

// NumBuckets returns the "bucket" option, 1 when unset.
func (s *Schema) NumBuckets() (int, error) {
	v, ok := s.Options[OptionBucket]
	if !ok || v == "" {
		return 1, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 0, paimonerr.InvalidArgument("bucket option %q", v)
	}
	return n, nil
}

// Validate checks that partition and primary keys name existing fields and
// that field names and ids are unique.
func (s *Schema) Validate() error {
	if len(s.Fields) == 0 {
		return paimonerr.InvalidArgument("schema has no fields")
	}
	names := make(map[string]bool, len(s.Fields))
	ids := make(map[int]bool, len(s.Fields))
	for _, f := range s.Fields {
		if names[f.Name] {
			return paimonerr.InvalidArgument("duplicate field name %q", f.Name)
		}
		if ids[f.ID] {
			return paimonerr.InvalidArgument("duplicate field id %d", f.ID)
		}
		names[f.Name], ids[f.ID] = true, true
	}
	for _, k := range append(append([]string{}, s.PartitionKeys...), s.PrimaryKeys...) {
		if !names[k] {
			return paimonerr.InvalidArgument("key %q is not a field", k)
		}
	}
	return nil
}

type schemaJSON struct {
	Version        int               `json:"version"`
	ID             int64             `json:"id"`
	Fields         []fieldJSON       `json:"fields"`
	HighestFieldID int               `json:"highestFieldId"`
	PartitionKeys  []string          `json:"partitionKeys"`
	PrimaryKeys    []string          `json:"primaryKeys"`
	Options        map[string]string `json:"options"`
	Comment        *string           `json:"comment,omitempty"`
	TimeMillis     int64             `json:"timeMillis"`
}

type fieldJSON struct {
	ID          int             `json:"id"`
	Name        string          `json:"name"`
	Type        json.RawMessage `json:"type"`
	Nullable    *bool           `json:"nullable,omitempty"`
	Description *string         `json:"description,omitempty"`
}

// EncodeSchema renders s in the schema file format.
func EncodeSchema(s *Schema) ([]byte, error) {
	doc := schemaJSON{
		Version:       3,
		ID:            s.ID,
		Fields:        make([]fieldJSON, len(s.Fields)),
		PartitionKeys: nonNil(s.PartitionKeys),
		PrimaryKeys:   nonNil(s.PrimaryKeys),
		Options:       s.Options,
		TimeMillis:    s.TimeMillis,
	}
	if doc.Options == nil {
		doc.Options = map[string]string{}
	}
	for i, f := range s.Fields {
		typ := f.Type.String()
		if !f.Nullable {
			typ += " NOT NULL"
		}
		raw, err := json.Marshal(typ)
		if err != nil {
			return nil, err
		}
		doc.Fields[i] = fieldJSON{ID: f.ID, Name: f.Name, Type: raw}
		if f.ID > doc.HighestFieldID {
			doc.HighestFieldID = f.ID
		}
	}
	return json.MarshalIndent(doc, "", "  ")
}

// DecodeSchema reads a schema file, or a schema object embedded in a
// snapshot. An explicit "nullable" member overrides a NOT NULL suffix.
func DecodeSchema(data []byte) (*Schema, error) {
	var doc schemaJSON
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc.Fields == nil {
		return nil, fmt.Errorf("schema has no fields member")
	}
	s := &Schema{
		ID:            doc.ID,
		Fields:        make([]SchemaField, len(doc.Fields)),
		PartitionKeys: doc.PartitionKeys,
		PrimaryKeys:   doc.PrimaryKeys,
		Options:       doc.Options,
		TimeMillis:    doc.TimeMillis,
	}
	if s.Options == nil {
		s.Options = map[string]string{}
	}
	for i, f := range doc.Fields {
		t, nullable := ParseDataType(f.Type)
		if f.Nullable != nil {
			nullable = *f.Nullable
		}
		s.Fields[i] = SchemaField{ID: f.ID, Name: f.Name, Type: t, Nullable: nullable}
	}
	return s, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// NewSchema builds a schema with sequential field ids starting at 0.
func NewSchema(fields []SchemaField, partitionKeys, primaryKeys []string, options map[string]string) *Schema {
	s := &Schema{
		Fields:        make([]SchemaField, len(fields)),
		PartitionKeys: partitionKeys,
		PrimaryKeys:   primaryKeys,
		Options:       map[string]string{},
		TimeMillis:    time.Now().UnixMilli(),
	}
	for k, v := range options {
		s.Options[k] = v
	}
	for i, f := range fields {
		f.ID = i
		s.Fields[i] = f
	}
	return s
}
