package record

import (
	"bytes"
	"encoding/binary"
	"math"

	"github.com/sushant-115/minidb/core/catalog"
)

// Layout encodes and decodes the fixed-length records of one table. Field offsets are
// computed once from the schema.
//
// int and float fields are 4 native-endian bytes; char(n) fields are n bytes, zero padded.
type Layout struct {
	fields  []catalog.FieldDef
	offsets []int
	length  int
}

func NewLayout(fields []catalog.FieldDef) *Layout {
	l := &Layout{
		fields:  append([]catalog.FieldDef(nil), fields...),
		offsets: make([]int, len(fields)),
	}
	for i, f := range fields {
		l.offsets[i] = l.length
		l.length += f.Size()
	}
	return l
}

func (l *Layout) RecordLength() int { return l.length }
func (l *Layout) NumFields() int    { return len(l.fields) }

// Field returns the bytes of field i inside rec.
func (l *Layout) Field(rec []byte, i int) []byte {
	return rec[l.offsets[i] : l.offsets[i]+l.fields[i].Size()]
}

// EncodeField writes v into the byte range of field i of rec, leaving the other fields untouched.
func (l *Layout) EncodeField(rec []byte, i int, v Value) {
	dst := l.Field(rec, i)
	switch l.fields[i].Type {
	case catalog.TypeInt:
		binary.NativeEndian.PutUint32(dst, uint32(v.Int))
	case catalog.TypeFloat:
		binary.NativeEndian.PutUint32(dst, math.Float32bits(v.Float))
	default:
		n := copy(dst, v.Str)
		clear(dst[n:])
	}
}

// Key is the encoded form of v as field i, the form indexes store.
func (l *Layout) Key(i int, v Value) []byte {
	rec := make([]byte, l.length)
	l.EncodeField(rec, i, v)
	return append([]byte(nil), l.Field(rec, i)...)
}

// Encode writes a whole row into dst, which must be RecordLength bytes.
func (l *Layout) Encode(row Row, dst []byte) {
	for i, v := range row {
		l.EncodeField(dst, i, v)
	}
}

// Decode reads a whole record.
func (l *Layout) Decode(rec []byte) Row {
	row := make(Row, len(l.fields))
	for i := range l.fields {
		row[i] = l.DecodeField(rec, i)
	}
	return row
}

func (l *Layout) DecodeField(rec []byte, i int) Value {
	src := l.Field(rec, i)
	switch l.fields[i].Type {
	case catalog.TypeInt:
		return IntValue(int32(binary.NativeEndian.Uint32(src)))
	case catalog.TypeFloat:
		return FloatValue(math.Float32frombits(binary.NativeEndian.Uint32(src)))
	default:
		if n := bytes.IndexByte(src, 0); n >= 0 {
			src = src[:n]
		}
		return CharValue(string(src))
	}
}
