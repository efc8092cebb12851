package record

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sushant-115/minidb/core/catalog"
)

func TestLocation_RoundTrip(t *testing.T) {
	for _, tc := range []struct {
		page int32
		slot int
	}{
		{0, 0}, {1, 203}, {0x7FFF, 0xFFFF}, {0x8000, 1}, {0xFFFF, 0xFFFE},
	} {
		loc, err := EncodeLocation(tc.page, tc.slot)
		require.NoError(t, err)
		assert.Equal(t, uint32(tc.page)<<16 | uint32(tc.slot), uint32(loc))
		page, slot := loc.Decode()
		assert.Equal(t, tc.page, page)
		assert.Equal(t, tc.slot, slot)
	}

	_, err := EncodeLocation(1<<16, 0)
	require.ErrorIs(t, err, ErrLocationOverflow)
	_, err = EncodeLocation(0, 1<<16)
	require.ErrorIs(t, err, ErrLocationOverflow)
	_, err = EncodeLocation(-1, 0)
	require.ErrorIs(t, err, ErrLocationOverflow)
}

func TestLayout_EncodeFieldLeavesOtherBytesAlone(t *testing.T) {
	l := NewLayout([]catalog.FieldDef{
		{Name: "id", Type: catalog.TypeInt},
		{Name: "name", Type: catalog.TypeChar, Length: 8},
		{Name: "gpa", Type: catalog.TypeFloat},
	})
	require.Equal(t, 16, l.RecordLength())

	rec := make([]byte, l.RecordLength())
	l.Encode(Row{IntValue(-7), CharValue("grace"), FloatValue(3.25)}, rec)
	assert.Equal(t, Row{IntValue(-7), CharValue("grace"), FloatValue(3.25)}, l.Decode(rec))

	before := append([]byte(nil), rec...)
	l.EncodeField(rec, 1, CharValue("ada"))
	assert.Equal(t, before[:4], rec[:4])
	assert.Equal(t, before[12:], rec[12:])
	assert.Equal(t, []byte("ada\x00\x00\x00\x00\x00"), l.Field(rec, 1))
	assert.Equal(t, "ada", l.DecodeField(rec, 1).Str)
}

func TestParseValue(t *testing.T) {
	name := catalog.FieldDef{Name: "name", Type: catalog.TypeChar, Length: 4}

	v, err := ParseValue(name, `"bob"`)
	require.NoError(t, err)
	assert.Equal(t, "bob", v.Str)

	_, err = ParseValue(name, "'alice'")
	require.ErrorIs(t, err, ErrInvalidValue)

	v, err = ParseValue(catalog.FieldDef{Name: "n", Type: catalog.TypeInt}, " -12 ")
	require.NoError(t, err)
	assert.Equal(t, int32(-12), v.Int)

	_, err = ParseValue(catalog.FieldDef{Name: "n", Type: catalog.TypeInt}, "4294967296")
	require.ErrorIs(t, err, ErrInvalidValue)

	gpa := catalog.FieldDef{Name: "gpa", Type: catalog.TypeFloat}
	v, err = ParseValue(gpa, "-0")
	require.NoError(t, err)
	assert.False(t, math.Signbit(float64(v.Float)))
	assert.Equal(t, NewLayout([]catalog.FieldDef{gpa}).Key(0, FloatValue(0)), NewLayout([]catalog.FieldDef{gpa}).Key(0, v))
	_, err = ParseValue(gpa, "nan")
	require.ErrorIs(t, err, ErrInvalidValue)
}

func TestParseCompareOp(t *testing.T) {
	for s, want := range map[string]CompareOp{"=": OpEq, "<>": OpNe, "!=": OpNe, "<": OpLt, ">": OpGt, "<=": OpLe, ">=": OpGe} {
		op, err := ParseCompareOp(s)
		require.NoError(t, err)
		assert.Equal(t, want, op, s)
	}
	_, err := ParseCompareOp("~")
	require.ErrorIs(t, err, ErrInvalidOperator)
	assert.Equal(t, "<=", OpLe.String())
}
