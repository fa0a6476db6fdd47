package schema

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jackc/pglogrepl"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// relationKeyFlag marks a replica identity column in a relation message.
const relationKeyFlag = 1

// Manager caches Postgres table schemas by relation id and by name.
type Manager struct {
	conn          *pgx.Conn
	schemas       map[uint32]*TableSchema // Maps relation ID to schema
	schemasByName map[string]*TableSchema // Maps "schema.table" to schema
	mu            sync.RWMutex
}

// NewSchemaManager returns a Manager. conn is only used by
// InitializeSchema and may be nil when schemas arrive as relation messages.
func NewSchemaManager(conn *pgx.Conn) *Manager {
	return &Manager{
		conn:          conn,
		schemas:       make(map[uint32]*TableSchema),
		schemasByName: make(map[string]*TableSchema),
	}
}

// GetSchema returns the cached schema of a relation.
func (m *Manager) GetSchema(relationID uint32) (*TableSchema, error) {
	m.mu.RLock()
	schema, exists := m.schemas[relationID]
	m.mu.RUnlock()

	if exists {
		return schema, nil
	}

	return nil, fmt.Errorf("schema not found for relation ID: %d", relationID)
}

func (m *Manager) GetSchemaByName(schemaName, tableName string) (*TableSchema, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.schemasByName[schemaName+"."+tableName]
	return s, ok
}

// HandleRelationMessage caches the schema a relation message describes.
// Relation messages carry no nullability, so a column keeps what was loaded
// from the catalog and is nullable otherwise. Numeric precision comes from
// the type modifier.
func (m *Manager) HandleRelationMessage(msg *pglogrepl.RelationMessageV2) (*TableSchema, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	name := msg.Namespace + "." + msg.RelationName
	known := map[string]Column{}
	if prev, ok := m.schemasByName[name]; ok {
		for _, c := range prev.Columns {
			known[c.Name] = c
		}
	}

	schema := &TableSchema{
		Schema:  msg.Namespace,
		Name:    msg.RelationName,
		Columns: make([]Column, len(msg.Columns)),
	}

	for i, col := range msg.Columns {
		c := Column{
			Name:     col.Name,
			TypeOID:  col.DataType,
			Nullable: true,
			Key:      col.Flags&relationKeyFlag != 0,
		}
		if prev, ok := known[col.Name]; ok && prev.TypeOID == col.DataType {
			c.Nullable, c.TypeName = prev.Nullable, prev.TypeName
			c.Precision, c.Scale = prev.Precision, prev.Scale
		}
		if p, s, ok := numericTypmod(col.TypeModifier); ok && col.DataType == pgtype.NumericOID {
			c.Precision, c.Scale = p, s
		}
		schema.Columns[i] = c
	}

	m.schemas[msg.RelationID] = schema
	m.schemasByName[name] = schema
	slog.Debug("schema: relation updated", "relation_id", msg.RelationID, "table", name,
		"columns", len(schema.Columns))

	return schema, nil
}

// InitializeSchema loads schema for specified tables
func (m *Manager) InitializeSchema(ctx context.Context, schemaName, tableName string) error {
	schema, err := GetTableSchema(ctx, m.conn, schemaName, tableName)
	if err != nil {
		return fmt.Errorf("getting table schema: %w", err)
	}

	// Get relation ID
	var relationID uint32
	err = m.conn.QueryRow(ctx, `
        SELECT c.oid 
        FROM pg_class c 
        JOIN pg_namespace n ON n.oid = c.relnamespace 
        WHERE n.nspname = $1 AND c.relname = $2
    `, schemaName, tableName).Scan(&relationID)
	if err != nil {
		return fmt.Errorf("getting relation ID: %w", err)
	}

	m.mu.Lock()
	m.schemas[relationID] = schema
	m.schemasByName[fmt.Sprintf("%s.%s", schemaName, tableName)] = schema
	m.mu.Unlock()

	return nil
}

// numericTypmod decodes the (precision, scale) packed into a numeric type
// modifier. It is false for an unconstrained numeric.
func numericTypmod(typmod int32) (precision, scale int, ok bool) {
	if typmod < 4 {
		return 0, 0, false
	}
	v := typmod - 4
	return int(v>>16) & 0xffff, int(v) & 0xffff, true
}
