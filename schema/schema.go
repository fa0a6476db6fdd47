package schema

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

type Column struct {
	Name     string
	TypeOID  uint32
	TypeName string
	Nullable bool

	// Precision and Scale are set for numeric columns declared with them.
	Precision int
	Scale     int

	// Key marks a replica identity column.
	Key bool
}

type TableSchema struct {
	Schema  string
	Name    string
	Columns []Column
}

// QualifiedName is "schema.table".
func (s *TableSchema) QualifiedName() string {
	return s.Schema + "." + s.Name
}

func GetTableSchema(ctx context.Context, conn *pgx.Conn, schemaName, tableName string) (*TableSchema, error) {
	query := `
        SELECT 
            c.column_name,
            c.is_nullable,
            t.oid AS type_oid,
            t.typname AS data_type,
            COALESCE(c.numeric_precision, 0),
            COALESCE(c.numeric_scale, 0),
            EXISTS (
                SELECT 1
                FROM information_schema.table_constraints tc
                JOIN information_schema.key_column_usage k
                  ON k.constraint_name = tc.constraint_name
                 AND k.table_schema = tc.table_schema
                WHERE tc.constraint_type = 'PRIMARY KEY'
                  AND tc.table_schema = c.table_schema
                  AND tc.table_name = c.table_name
                  AND k.column_name = c.column_name
            ) AS is_key
        FROM information_schema.columns c
        JOIN pg_catalog.pg_type t ON c.udt_name = t.typname
        WHERE c.table_schema = $1 AND c.table_name = $2
        ORDER BY c.ordinal_position;
    `

	rows, err := conn.Query(ctx, query, schemaName, tableName)
	if err != nil {
		return nil, fmt.Errorf("querying schema: %w", err)
	}
	defer rows.Close()

	schema := &TableSchema{
		Schema:  schemaName,
		Name:    tableName,
		Columns: make([]Column, 0),
	}

	for rows.Next() {
		var col Column
		var nullable string
		var precision, scale int32
		if err := rows.Scan(&col.Name, &nullable, &col.TypeOID, &col.TypeName, &precision, &scale, &col.Key); err != nil {
			return nil, fmt.Errorf("scanning column: %w", err)
		}
		col.Nullable = nullable == "YES"
		col.Precision, col.Scale = int(precision), int(scale)
		schema.Columns = append(schema.Columns, col)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading rows: %w", err)
	}
	if len(schema.Columns) == 0 {
		return nil, fmt.Errorf("table %s.%s not found", schemaName, tableName)
	}

	return schema, nil
}
