package schema

import (
	"fmt"
	"slices"

	"github.com/jackc/pgx/v5/pgtype"

	"paimon-mirror/config"
	"paimon-mirror/paimon"
)

const (
	defaultDecimalPrecision = 38
	defaultDecimalScale     = 10
)

// ToPaimon derives the Paimon schema of a mirrored table. Primary keys come
// from the table config, falling back to the replica identity columns, and
// are always NOT NULL.
func ToPaimon(ts *TableSchema, tc config.Table, fileFormat string) (*paimon.Schema, error) {
	pks := tc.PrimaryKeys
	if len(pks) == 0 {
		for _, c := range ts.Columns {
			if c.Key {
				pks = append(pks, c.Name)
			}
		}
	}

	fields := make([]paimon.SchemaField, 0, len(ts.Columns))
	for _, c := range ts.Columns {
		fields = append(fields, paimon.SchemaField{
			Name:     c.Name,
			Type:     PostgresTypeToPaimon(c.TypeOID, c.Precision, c.Scale),
			Nullable: c.Nullable && !slices.Contains(pks, c.Name),
		})
	}

	options := map[string]string{
		paimon.OptionBucket: fmt.Sprint(tc.Buckets),
	}
	if fileFormat != "" {
		options[paimon.OptionFileFormat] = fileFormat
	}

	s := paimon.NewSchema(fields, tc.PartitionKeys, pks, options)
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("table %s: %w", ts.QualifiedName(), err)
	}
	return s, nil
}

// PostgresTypeToPaimon maps a column type. Types without a Paimon
// counterpart are carried as their text form.
func PostgresTypeToPaimon(oid uint32, precision, scale int) paimon.DataType {
	switch oid {
	case pgtype.Int2OID, pgtype.Int4OID:
		return paimon.DataType{Root: paimon.TypeInt}
	case pgtype.Int8OID:
		return paimon.DataType{Root: paimon.TypeLong}
	case pgtype.Float4OID:
		return paimon.DataType{Root: paimon.TypeFloat}
	case pgtype.Float8OID:
		return paimon.DataType{Root: paimon.TypeDouble}
	case pgtype.BoolOID:
		return paimon.DataType{Root: paimon.TypeBoolean}
	case pgtype.DateOID:
		return paimon.DataType{Root: paimon.TypeDate}
	case pgtype.TimestampOID, pgtype.TimestamptzOID:
		return paimon.DataType{Root: paimon.TypeTimestamp}
	case pgtype.NumericOID:
		if precision == 0 {
			precision, scale = defaultDecimalPrecision, defaultDecimalScale
		}
		return paimon.DataType{Root: paimon.TypeDecimal, Precision: precision, Scale: scale}
	case pgtype.ByteaOID:
		return paimon.DataType{Root: paimon.TypeBinary}
	case pgtype.Int2ArrayOID, pgtype.Int4ArrayOID, pgtype.Int8ArrayOID,
		pgtype.TextArrayOID, pgtype.VarcharArrayOID, pgtype.Float8ArrayOID:
		return paimon.DataType{Root: paimon.TypeArray}
	default:
		// text, varchar, bpchar, uuid, json, jsonb and anything unknown
		return paimon.DataType{Root: paimon.TypeString}
	}
}
