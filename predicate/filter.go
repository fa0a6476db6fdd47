// Package predicate decides whether a data file can be skipped for a query
// filter, from stored column statistics or from the partition values encoded
// in the file's path.
//
// Every decision is conservative: CanEliminate returns true only when the
// file provably holds no matching row. Any missing statistic, unknown filter
// kind or incomparable value resolves to false and the file is scanned.
package predicate

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"paimon-mirror/stats"
)

type Op int

const (
	OpEq Op = iota
	OpNotEq
	OpGt
	OpGtEq
	OpLt
	OpLtEq
)

func (o Op) String() string {
	switch o {
	case OpEq:
		return "="
	case OpNotEq:
		return "!="
	case OpGt:
		return ">"
	case OpGtEq:
		return ">="
	case OpLt:
		return "<"
	case OpLtEq:
		return "<="
	default:
		return fmt.Sprintf("Op(%d)", int(o))
	}
}

// Filter is a predicate over table columns. Implementations outside this
// package are allowed; CanEliminate never eliminates on them.
type Filter interface {
	String() string
}

// Comparison compares a column with a constant.
type Comparison struct {
	Column string
	Op     Op
	Value  any
}

type IsNull struct{ Column string }

type IsNotNull struct{ Column string }

type And struct{ Children []Filter }

type Or struct{ Children []Filter }

func Eq(col string, v any) Comparison    { return Comparison{Column: col, Op: OpEq, Value: v} }
func NotEq(col string, v any) Comparison { return Comparison{Column: col, Op: OpNotEq, Value: v} }
func Gt(col string, v any) Comparison    { return Comparison{Column: col, Op: OpGt, Value: v} }
func GtEq(col string, v any) Comparison  { return Comparison{Column: col, Op: OpGtEq, Value: v} }
func Lt(col string, v any) Comparison    { return Comparison{Column: col, Op: OpLt, Value: v} }
func LtEq(col string, v any) Comparison  { return Comparison{Column: col, Op: OpLtEq, Value: v} }

func AllOf(children ...Filter) And { return And{Children: children} }
func AnyOf(children ...Filter) Or  { return Or{Children: children} }

func (c Comparison) String() string {
	return c.Column + " " + c.Op.String() + " " + formatLiteral(c.Value)
}

func (f IsNull) String() string    { return f.Column + " IS NULL" }
func (f IsNotNull) String() string { return f.Column + " IS NOT NULL" }
func (f And) String() string       { return join(f.Children, " AND ") }
func (f Or) String() string        { return join(f.Children, " OR ") }

func join(children []Filter, sep string) string {
	parts := make([]string, len(children))
	for i, c := range children {
		parts[i] = c.String()
	}
	return "(" + strings.Join(parts, sep) + ")"
}

func formatLiteral(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case string:
		return "'" + strings.ReplaceAll(x, "'", "''") + "'"
	case []byte:
		return "x'" + hex.EncodeToString(x) + "'"
	case time.Time:
		return "'" + x.UTC().Format(time.RFC3339Nano) + "'"
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'g', -1, 32)
	case *big.Rat:
		return stats.FormatRat(x)
	default:
		return fmt.Sprint(x)
	}
}

// Strings renders each filter, for plan output and logging.
func Strings(filters []Filter) []string {
	out := make([]string, len(filters))
	for i, f := range filters {
		out[i] = f.String()
	}
	return out
}

// Columns returns the distinct columns referenced by f, in first-use order.
func Columns(f Filter) []string {
	var out []string
	seen := map[string]bool{}
	var walk func(Filter)
	walk = func(f Filter) {
		var col string
		switch x := f.(type) {
		case Comparison:
			col = x.Column
		case IsNull:
			col = x.Column
		case IsNotNull:
			col = x.Column
		case And:
			for _, c := range x.Children {
				walk(c)
			}
		case Or:
			for _, c := range x.Children {
				walk(c)
			}
		}
		if col != "" && !seen[col] {
			seen[col] = true
			out = append(out, col)
		}
	}
	walk(f)
	return out
}
