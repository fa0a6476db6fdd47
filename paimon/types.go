package paimon

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

type TypeRoot int

const (
	TypeString TypeRoot = iota
	TypeBoolean
	TypeInt
	TypeLong
	TypeFloat
	TypeDouble
	TypeTimestamp
	TypeDate
	TypeBinary
	TypeDecimal
	TypeArray
	TypeMap
	TypeStruct
)

var typeRoots = map[string]TypeRoot{
	"BOOLEAN":       TypeBoolean,
	"BOOL":          TypeBoolean,
	"INT":           TypeInt,
	"INTEGER":       TypeInt,
	"TINYINT":       TypeInt,
	"SMALLINT":      TypeInt,
	"LONG":          TypeLong,
	"BIGINT":        TypeLong,
	"FLOAT":         TypeFloat,
	"REAL":          TypeFloat,
	"DOUBLE":        TypeDouble,
	"STRING":        TypeString,
	"VARCHAR":       TypeString,
	"CHAR":          TypeString,
	"DATE":          TypeDate,
	"TIMESTAMP":     TypeTimestamp,
	"TIMESTAMP_LTZ": TypeTimestamp,
	"BINARY":        TypeBinary,
	"VARBINARY":     TypeBinary,
	"BYTES":         TypeBinary,
	"DECIMAL":       TypeDecimal,
	"ARRAY":         TypeArray,
	"MAP":           TypeMap,
	"STRUCT":        TypeStruct,
	"ROW":           TypeStruct,
}

// StringToTypeRoot maps a type name to its root, ignoring case, type
// arguments and a NOT NULL suffix. Unknown names map to TypeString.
func StringToTypeRoot(name string) TypeRoot {
	n, _ := stripNotNull(name)
	if i := strings.IndexAny(n, "(<"); i >= 0 {
		n = n[:i]
	}
	n = strings.ToUpper(strings.TrimSpace(n))
	n = strings.TrimSuffix(n, " WITH LOCAL TIME ZONE")
	if r, ok := typeRoots[n]; ok {
		return r
	}
	return TypeString
}

func (r TypeRoot) String() string {
	switch r {
	case TypeBoolean:
		return "BOOLEAN"
	case TypeInt:
		return "INT"
	case TypeLong:
		return "BIGINT"
	case TypeFloat:
		return "FLOAT"
	case TypeDouble:
		return "DOUBLE"
	case TypeTimestamp:
		return "TIMESTAMP"
	case TypeDate:
		return "DATE"
	case TypeBinary:
		return "BYTES"
	case TypeDecimal:
		return "DECIMAL"
	case TypeArray:
		return "ARRAY"
	case TypeMap:
		return "MAP"
	case TypeStruct:
		return "ROW"
	default:
		return "STRING"
	}
}

// DataType is a column type. Element, key/value and field types are only
// set for nested roots, and only when they were known.
type DataType struct {
	Root      TypeRoot
	Precision int
	Scale     int
	Elem      *DataType
	Key       *DataType
	Value     *DataType
	Fields    []SchemaField
}

func (t DataType) IsNested() bool {
	return t.Root == TypeArray || t.Root == TypeMap || t.Root == TypeStruct
}

func (t DataType) String() string {
	switch t.Root {
	case TypeDecimal:
		return fmt.Sprintf("DECIMAL(%d, %d)", t.Precision, t.Scale)
	case TypeTimestamp:
		return "TIMESTAMP(3)"
	default:
		return t.Root.String()
	}
}

// ParseTypeString parses a type such as "BIGINT NOT NULL" or
// "DECIMAL(10, 2)". It reports whether the type is nullable.
func ParseTypeString(s string) (DataType, bool) {
	base, notNull := stripNotNull(s)
	t := DataType{Root: StringToTypeRoot(base)}
	if t.Root == TypeDecimal {
		t.Precision, t.Scale = 10, 0
		if args := typeArgs(base); len(args) > 0 {
			if p, err := strconv.Atoi(args[0]); err == nil {
				t.Precision = p
			}
			if len(args) > 1 {
				if sc, err := strconv.Atoi(args[1]); err == nil {
					t.Scale = sc
				}
			}
		}
	}
	return t, !notNull
}

// ParseDataType reads the "type" member of a schema field. Object-typed
// (nested) definitions are not interpreted and degrade to STRING.
func ParseDataType(raw json.RawMessage) (DataType, bool) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return ParseTypeString(s)
	}
	return DataType{Root: TypeString}, true
}

func stripNotNull(s string) (string, bool) {
	s = strings.TrimSpace(s)
	u := strings.ToUpper(s)
	if strings.HasSuffix(u, " NOT NULL") {
		return strings.TrimSpace(s[:len(s)-len(" NOT NULL")]), true
	}
	return s, false
}

func typeArgs(s string) []string {
	open := strings.IndexByte(s, '(')
	end := strings.LastIndexByte(s, ')')
	if open < 0 || end < open {
		return nil
	}
	parts := strings.Split(s[open+1:end], ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
