// Package stats collects per-column statistics while rows are written and
// orders the values those statistics are made of.
package stats

import (
	"bytes"
	"math"
	"math/big"
	"strings"
	"time"
)

// Normalize maps a value onto the canonical representation used for
// statistics: signed integers become int64, floats become float64. Other
// values are returned unchanged.
func Normalize(v any) any {
	switch x := v.(type) {
	case int:
		return int64(x)
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case uint8:
		return int64(x)
	case uint16:
		return int64(x)
	case uint32:
		return int64(x)
	case float32:
		return float64(x)
	default:
		return v
	}
}

// Compare orders two values. ok is false when the values are not comparable
// (different kinds, NaN, unsupported types); callers must then treat the
// comparison as unknown. Exact decimals (*big.Rat) order against each other
// and against integers and floats without rounding.
func Compare(a, b any) (cmp int, ok bool) {
	a, b = Normalize(a), Normalize(b)

	switch x := a.(type) {
	case int64:
		switch y := b.(type) {
		case int64:
			return cmpOrdered(x, y), true
		case float64:
			return cmpFloat(float64(x), y)
		case *big.Rat:
			return -y.Cmp(new(big.Rat).SetInt64(x)), true
		}
	case float64:
		switch y := b.(type) {
		case float64:
			return cmpFloat(x, y)
		case int64:
			return cmpFloat(x, float64(y))
		case *big.Rat:
			r, ok := cmpRatFloat(y, x)
			return -r, ok
		}
	case *big.Rat:
		switch y := b.(type) {
		case *big.Rat:
			return x.Cmp(y), true
		case int64:
			return x.Cmp(new(big.Rat).SetInt64(y)), true
		case float64:
			return cmpRatFloat(x, y)
		}
	case string:
		if y, ok := b.(string); ok {
			return strings.Compare(x, y), true
		}
	case bool:
		if y, ok := b.(bool); ok {
			switch {
			case x == y:
				return 0, true
			case !x:
				return -1, true
			default:
				return 1, true
			}
		}
	case []byte:
		if y, ok := b.([]byte); ok {
			return bytes.Compare(x, y), true
		}
	case time.Time:
		if y, ok := b.(time.Time); ok {
			return x.Compare(y), true
		}
	}
	return 0, false
}

func cmpOrdered[T int64 | float64](x, y T) int {
	switch {
	case x < y:
		return -1
	case x > y:
		return 1
	default:
		return 0
	}
}

func cmpFloat(x, y float64) (int, bool) {
	if math.IsNaN(x) || math.IsNaN(y) {
		return 0, false
	}
	return cmpOrdered(x, y), true
}

func cmpRatFloat(x *big.Rat, y float64) (int, bool) {
	switch {
	case math.IsNaN(y):
		return 0, false
	case math.IsInf(y, 1):
		return -1, true
	case math.IsInf(y, -1):
		return 1, true
	}
	return x.Cmp(new(big.Rat).SetFloat64(y)), true
}

// maxRatPlaces bounds the decimal rendering of FormatRat.
const maxRatPlaces = 1000

// FormatRat renders r in plain decimal notation. Values parsed from decimal
// text always terminate; anything else is rendered as "a/b", which
// big.Rat.SetString also reads.
func FormatRat(r *big.Rat) string {
	if r.IsInt() {
		return r.Num().String()
	}
	scaled := new(big.Rat).Set(r)
	ten := big.NewRat(10, 1)
	for places := 1; places <= maxRatPlaces; places++ {
		scaled.Mul(scaled, ten)
		if scaled.IsInt() {
			return r.FloatString(places)
		}
	}
	return r.RatString()
}
