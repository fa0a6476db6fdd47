package paimon

import (
	"database/sql/driver"
	"encoding/base64"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
	"time"

	"paimon-mirror/predicate"
	"paimon-mirror/stats"
)

const (
	dateLayout = "2006-01-02"
	msPerDay   = int64(24 * time.Hour / time.Millisecond)

	// maxDecimalExponent bounds the exponent of a decimal literal.
	maxDecimalExponent = 400
)

// NormalizeValue converts an incoming row value to the primitive stored in
// data files for type t:
//
//	INT int32, BIGINT int64, FLOAT float32, DOUBLE float64, BOOLEAN bool,
//	STRING string, BYTES []byte, DATE int32 days since epoch,
//	TIMESTAMP int64 epoch millis, DECIMAL its decimal string.
//
// nil stays nil.
func NormalizeValue(t DataType, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if dv, ok := v.(driver.Valuer); ok {
		inner, err := dv.Value()
		if err != nil {
			return nil, err
		}
		return NormalizeValue(t, inner)
	}

	switch t.Root {
	case TypeInt:
		i, err := toInt64(v)
		if err != nil {
			return nil, err
		}
		if i < math.MinInt32 || i > math.MaxInt32 {
			return nil, fmt.Errorf("value %d overflows INT", i)
		}
		return int32(i), nil
	case TypeLong:
		return toInt64(v)
	case TypeFloat:
		f, err := toFloat64(v)
		return float32(f), err
	case TypeDouble:
		return toFloat64(v)
	case TypeBoolean:
		switch x := v.(type) {
		case bool:
			return x, nil
		case string:
			return strconv.ParseBool(x)
		}
	case TypeString:
		switch x := v.(type) {
		case string:
			return x, nil
		case []byte:
			return string(x), nil
		case time.Time:
			return x.UTC().Format(time.RFC3339Nano), nil
		}
		return fmt.Sprint(v), nil
	case TypeBinary:
		switch x := v.(type) {
		case []byte:
			return x, nil
		case string:
			return []byte(x), nil
		}
	case TypeDate:
		switch x := v.(type) {
		case time.Time:
			return int32(floorDiv(x.UnixMilli(), msPerDay)), nil
		case string:
			d, err := time.Parse(dateLayout, x)
			if err != nil {
				return nil, err
			}
			return int32(floorDiv(d.UnixMilli(), msPerDay)), nil
		}
		i, err := toInt64(v)
		return int32(i), err
	case TypeTimestamp:
		switch x := v.(type) {
		case time.Time:
			return x.UnixMilli(), nil
		case string:
			ts, err := time.Parse(time.RFC3339Nano, x)
			if err != nil {
				return nil, err
			}
			return ts.UnixMilli(), nil
		}
		return toInt64(v)
	case TypeDecimal:
		switch x := v.(type) {
		case string:
			if _, ok := toRat(x); !ok && !specialDecimal(x) {
				return nil, fmt.Errorf("bad decimal %q", x)
			}
			return x, nil
		case *big.Rat:
			return x.FloatString(t.Scale), nil
		case float32, float64:
			f, _ := toFloat64(x)
			return strconv.FormatFloat(f, 'f', t.Scale, 64), nil
		}
		i, err := toInt64(v)
		if err != nil {
			return nil, err
		}
		return strconv.FormatInt(i, 10), nil
	default:
		return nil, fmt.Errorf("cannot store %s values", t)
	}
	return nil, fmt.Errorf("cannot convert %T to %s", v, t)
}

// StatValue maps a stored primitive to the canonical value kept in
// statistics. DECIMAL bounds are exact *big.Rat values; NaN and infinite
// decimals map to NaN, which leaves the column without bounds.
func StatValue(t DataType, v any) any {
	if v == nil {
		return nil
	}
	if t.Root == TypeDecimal {
		if r, ok := toRat(v); ok {
			return r
		}
		return math.NaN()
	}
	return stats.Normalize(v)
}

// EncodeStat renders a canonical statistics value as text.
func EncodeStat(v any) string {
	switch x := stats.Normalize(v).(type) {
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case []byte:
		return base64.StdEncoding.EncodeToString(x)
	case string:
		return x
	case *big.Rat:
		return stats.FormatRat(x)
	default:
		return fmt.Sprint(x)
	}
}

// DecodeStat parses text written by EncodeStat for a column of type t.
func DecodeStat(t DataType, s string) (any, error) {
	switch t.Root {
	case TypeInt, TypeLong, TypeDate, TypeTimestamp:
		return strconv.ParseInt(s, 10, 64)
	case TypeFloat, TypeDouble:
		return strconv.ParseFloat(s, 64)
	case TypeDecimal:
		var r *big.Rat
		var ok bool
		if strings.Contains(s, "/") {
			r, ok = new(big.Rat).SetString(s)
		} else {
			r, ok = toRat(s)
		}
		if !ok {
			return nil, fmt.Errorf("bad decimal statistic %q", s)
		}
		return r, nil
	case TypeBoolean:
		return strconv.ParseBool(s)
	case TypeBinary:
		return base64.StdEncoding.DecodeString(s)
	case TypeString:
		return s, nil
	default:
		return nil, fmt.Errorf("no statistics for %s", t)
	}
}

// PartitionString renders a stored value as a partition path value.
func PartitionString(t DataType, v any) string {
	if v == nil {
		return predicate.DefaultPartitionName
	}
	switch t.Root {
	case TypeDate:
		if d, ok := v.(int32); ok {
			return time.UnixMilli(int64(d) * msPerDay).UTC().Format(dateLayout)
		}
	case TypeTimestamp:
		if ms, ok := v.(int64); ok {
			return time.UnixMilli(ms).UTC().Format(time.RFC3339Nano)
		}
	case TypeDecimal:
		if s, ok := v.(string); ok {
			return s
		}
	}
	return EncodeStat(v)
}

// CoerceLiteral converts a filter constant or a partition path value to the
// canonical statistics value for type t. ok is false when v does not
// represent a value of t.
//
// FLOAT values are rounded to float32 the way they are stored. DECIMAL
// values become exact *big.Rat. TIMESTAMP values finer than a millisecond
// do not convert, since stored timestamps carry milliseconds only.
func CoerceLiteral(t DataType, v any) (any, bool) {
	if v == nil {
		return nil, false
	}
	if s, isStr := v.(string); isStr && t.Root != TypeString {
		v = strings.TrimSpace(s)
	}
	switch t.Root {
	case TypeDecimal:
		return toRat(v)
	case TypeFloat:
		f, err := toFloat64(v)
		return float64(float32(f)), err == nil
	case TypeDouble:
		f, err := toFloat64(v)
		return f, err == nil
	case TypeTimestamp:
		if subMillisecond(v) {
			return nil, false
		}
	}
	stored, err := NormalizeValue(t, v)
	if err != nil {
		return nil, false
	}
	return StatValue(t, stored), true
}

// floatRange returns the smallest and largest values the constant v can
// denote against a FLOAT or DOUBLE column: the literal itself, its float64
// rounding and, for FLOAT, its float32 rounding. lo or hi is an exact
// *big.Rat when the literal lies outside its roundings.
func floatRange(t DataType, v any) (lo, hi any, ok bool) {
	r, ok := toRat(v)
	if !ok {
		return nil, nil, false
	}
	d, _ := r.Float64()
	if math.IsInf(d, 0) {
		return nil, nil, false
	}
	loF, hiF := d, d
	if t.Root == TypeFloat {
		f32, _ := r.Float32()
		loF, hiF = math.Min(d, float64(f32)), math.Max(d, float64(f32))
	}

	lo, hi = loF, hiF
	if !math.IsInf(loF, 0) && new(big.Rat).SetFloat64(loF).Cmp(r) > 0 {
		lo = r
	}
	if !math.IsInf(hiF, 0) && new(big.Rat).SetFloat64(hiF).Cmp(r) < 0 {
		hi = r
	}
	return lo, hi, true
}

// toRat reads v as an exact decimal. Floats are taken at their shortest
// decimal rendering, which is how they were written in a filter.
func toRat(v any) (*big.Rat, bool) {
	switch x := v.(type) {
	case *big.Rat:
		return x, x != nil
	case string:
		s := strings.TrimSpace(x)
		if s == "" || strings.Contains(s, "/") {
			return nil, false
		}
		// Exponents are bounded; big.Rat materializes 10^exp.
		if i := strings.IndexAny(s, "eE"); i >= 0 {
			exp, err := strconv.Atoi(s[i+1:])
			if err != nil || exp > maxDecimalExponent || exp < -maxDecimalExponent {
				return nil, false
			}
		}
		return new(big.Rat).SetString(s)
	case float32:
		return toRat(float64(x))
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil, false
		}
		return new(big.Rat).SetString(strconv.FormatFloat(x, 'g', -1, 64))
	}
	i, err := toInt64(v)
	if err != nil {
		return nil, false
	}
	return new(big.Rat).SetInt64(i), true
}

// specialDecimal reports whether s is one of the non-finite values Postgres
// numeric columns can hold.
func specialDecimal(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "nan", "infinity", "+infinity", "-infinity":
		return true
	}
	return false
}

// subMillisecond reports whether v names an instant with a fraction finer
// than a millisecond.
func subMillisecond(v any) bool {
	switch x := v.(type) {
	case time.Time:
		return x.Nanosecond()%int(time.Millisecond) != 0
	case string:
		ts, err := time.Parse(time.RFC3339Nano, x)
		return err == nil && ts.Nanosecond()%int(time.Millisecond) != 0
	}
	return false
}

func toInt64(v any) (int64, error) {
	switch x := v.(type) {
	case int:
		return int64(x), nil
	case int8:
		return int64(x), nil
	case int16:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case int64:
		return x, nil
	case uint8:
		return int64(x), nil
	case uint16:
		return int64(x), nil
	case uint32:
		return int64(x), nil
	case uint64:
		if x > math.MaxInt64 {
			return 0, fmt.Errorf("value %d overflows BIGINT", x)
		}
		return int64(x), nil
	case float64:
		if x != math.Trunc(x) {
			return 0, fmt.Errorf("value %v is not integral", x)
		}
		return int64(x), nil
	case string:
		return strconv.ParseInt(x, 10, 64)
	}
	return 0, fmt.Errorf("cannot convert %T to integer", v)
}

func toFloat64(v any) (float64, error) {
	switch x := v.(type) {
	case float32:
		return float64(x), nil
	case float64:
		return x, nil
	case *big.Rat:
		f, _ := x.Float64()
		return f, nil
	case string:
		return strconv.ParseFloat(strings.TrimSpace(x), 64)
	}
	i, err := toInt64(v)
	return float64(i), err
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
