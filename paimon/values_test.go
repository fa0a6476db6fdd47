package paimon

import (
	"math"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeValue(t *testing.T) {
	day := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		typ  DataType
		in   any
		want any
	}{
		{DataType{Root: TypeInt}, 7, int32(7)},
		{DataType{Root: TypeLong}, int32(7), int64(7)},
		{DataType{Root: TypeLong}, "42", int64(42)},
		{DataType{Root: TypeFloat}, 1.5, float32(1.5)},
		{DataType{Root: TypeDouble}, 2, float64(2)},
		{DataType{Root: TypeBoolean}, "true", true},
		{DataType{Root: TypeString}, []byte("x"), "x"},
		{DataType{Root: TypeBinary}, "ab", []byte("ab")},
		{DataType{Root: TypeDate}, day, int32(19844)},
		{DataType{Root: TypeDate}, "2024-05-01", int32(19844)},
		{DataType{Root: TypeTimestamp}, day, day.UnixMilli()},
		{DataType{Root: TypeDecimal, Precision: 10, Scale: 2}, 1.5, "1.50"},
		{DataType{Root: TypeDecimal}, "12.345", "12.345"},
		{DataType{Root: TypeDecimal}, "NaN", "NaN"},
		{DataType{Root: TypeLong}, nil, nil},
	}
	for _, tt := range tests {
		got, err := NormalizeValue(tt.typ, tt.in)
		require.NoError(t, err, "%s %v", tt.typ, tt.in)
		assert.Equal(t, tt.want, got, "%s %v", tt.typ, tt.in)
	}

	_, err := NormalizeValue(DataType{Root: TypeInt}, int64(1)<<40)
	assert.Error(t, err)
	_, err = NormalizeValue(DataType{Root: TypeDecimal}, "abc")
	assert.Error(t, err)
	_, err = NormalizeValue(DataType{Root: TypeArray}, []int{1})
	assert.Error(t, err)
}

func TestStatEncoding(t *testing.T) {
	tests := []struct {
		typ    DataType
		stored any
		want   any
		text   string
	}{
		{DataType{Root: TypeInt}, int32(-3), int64(-3), "-3"},
		{DataType{Root: TypeFloat}, float32(0.5), float64(0.5), "0.5"},
		{DataType{Root: TypeString}, "abc", "abc", "abc"},
		{DataType{Root: TypeBoolean}, true, true, "true"},
		{DataType{Root: TypeBinary}, []byte{0xff}, []byte{0xff}, "/w=="},
	}
	for _, tt := range tests {
		v := StatValue(tt.typ, tt.stored)
		assert.Equal(t, tt.want, v)
		text := EncodeStat(v)
		assert.Equal(t, tt.text, text)
		back, err := DecodeStat(tt.typ, text)
		require.NoError(t, err)
		assert.Equal(t, tt.want, back)
	}

	dec := DataType{Root: TypeDecimal, Precision: 38, Scale: 20}
	for _, text := range []string{"10.25", "-7", "0.30000000000000000001"} {
		v, ok := StatValue(dec, text).(*big.Rat)
		require.True(t, ok, text)
		assert.Equal(t, text, EncodeStat(v))
		back, err := DecodeStat(dec, EncodeStat(v))
		require.NoError(t, err)
		assert.Zero(t, v.Cmp(back.(*big.Rat)), text)
	}
	nan, ok := StatValue(dec, "NaN").(float64)
	require.True(t, ok)
	assert.True(t, math.IsNaN(nan))

	// bounds written as floats by earlier versions still decode
	back, err := DecodeStat(dec, "1e+21")
	require.NoError(t, err)
	assert.Equal(t, "1000000000000000000000", EncodeStat(back))
	_, err = DecodeStat(dec, "abc")
	assert.Error(t, err)
}

func TestPartitionStringAndCoerce(t *testing.T) {
	date := DataType{Root: TypeDate}
	assert.Equal(t, "2024-05-01", PartitionString(date, int32(19844)))
	assert.Equal(t, "__DEFAULT_PARTITION__", PartitionString(date, nil))
	assert.Equal(t, "12", PartitionString(DataType{Root: TypeInt}, int32(12)))

	v, ok := CoerceLiteral(date, "2024-05-01")
	assert.True(t, ok)
	assert.Equal(t, int64(19844), v)

	v, ok = CoerceLiteral(DataType{Root: TypeInt}, " 12 ")
	assert.True(t, ok)
	assert.Equal(t, int64(12), v)

	_, ok = CoerceLiteral(DataType{Root: TypeInt}, "twelve")
	assert.False(t, ok)

	v, ok = CoerceLiteral(DataType{Root: TypeDouble}, int64(3))
	assert.True(t, ok)
	assert.Equal(t, float64(3), v)
}

func TestCoerceLiteralPrecision(t *testing.T) {
	v, ok := CoerceLiteral(DataType{Root: TypeFloat}, 0.1)
	require.True(t, ok)
	assert.Equal(t, float64(float32(0.1)), v)

	dec := DataType{Root: TypeDecimal, Precision: 38, Scale: 20}
	v, ok = CoerceLiteral(dec, " 0.30000000000000000001 ")
	require.True(t, ok)
	assert.Equal(t, "0.30000000000000000001", v.(*big.Rat).FloatString(20))
	v, ok = CoerceLiteral(dec, 0.3)
	require.True(t, ok)
	assert.Zero(t, big.NewRat(3, 10).Cmp(v.(*big.Rat)))
	_, ok = CoerceLiteral(dec, "1/3")
	assert.False(t, ok)
	_, ok = CoerceLiteral(dec, "1e999999999")
	assert.False(t, ok)

	ts := DataType{Root: TypeTimestamp}
	v, ok = CoerceLiteral(ts, "2024-05-01T10:00:00.001Z")
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, int(time.Millisecond), time.UTC).UnixMilli(), v)
	_, ok = CoerceLiteral(ts, "2024-05-01T10:00:00.0005Z")
	assert.False(t, ok)
	_, ok = CoerceLiteral(ts, time.Date(2024, 5, 1, 10, 0, 0, 1500, time.UTC))
	assert.False(t, ok)
}

func TestFloatRange(t *testing.T) {
	float := DataType{Root: TypeFloat}
	lo, hi, ok := floatRange(float, 0.1)
	require.True(t, ok)
	assert.Zero(t, big.NewRat(1, 10).Cmp(lo.(*big.Rat)))
	assert.Equal(t, float64(float32(0.1)), hi)

	lo, hi, ok = floatRange(DataType{Root: TypeDouble}, 0.5)
	require.True(t, ok)
	assert.Equal(t, 0.5, lo)
	assert.Equal(t, 0.5, hi)

	_, _, ok = floatRange(float, "abc")
	assert.False(t, ok)
	_, _, ok = floatRange(DataType{Root: TypeDouble}, "1e399")
	assert.False(t, ok)
}
