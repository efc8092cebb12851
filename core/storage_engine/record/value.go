package record

import (
	"cmp"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/sushant-115/minidb/core/catalog"
)

// Value is one typed field of a record.
type Value struct {
	Type  catalog.FieldType
	Int   int32
	Float float32
	Str   string
}

// Row is a decoded record, in schema field order.
type Row []Value

func IntValue(v int32) Value { return Value{Type: catalog.TypeInt, Int: v} }

// FloatValue stores -0 as +0, so equal floats always encode to the same key bytes.
func FloatValue(v float32) Value {
	if v == 0 {
		v = 0
	}
	return Value{Type: catalog.TypeFloat, Float: v}
}

func CharValue(v string) Value { return Value{Type: catalog.TypeChar, Str: v} }

// ParseValue converts a literal to the type of field. Char literals may be quoted with ' or ".
func ParseValue(field catalog.FieldDef, literal string) (Value, error) {
	s := strings.TrimSpace(literal)
	switch field.Type {
	case catalog.TypeInt:
		n, err := strconv.ParseInt(s, 10, 32)
		if err != nil {
			return Value{}, fmt.Errorf("%w: %q is not an int for %s", ErrInvalidValue, literal, field.Name)
		}
		return IntValue(int32(n)), nil
	case catalog.TypeFloat:
		f, err := strconv.ParseFloat(s, 32)
		if err != nil {
			return Value{}, fmt.Errorf("%w: %q is not a float for %s", ErrInvalidValue, literal, field.Name)
		}
		if math.IsNaN(f) {
			return Value{}, fmt.Errorf("%w: NaN is not comparable, in %s", ErrInvalidValue, field.Name)
		}
		return FloatValue(float32(f)), nil
	case catalog.TypeChar:
		if len(s) >= 2 && (s[0] == '\'' || s[0] == '"') && s[len(s)-1] == s[0] {
			s = s[1 : len(s)-1]
		}
		if len(s) > field.Length {
			return Value{}, fmt.Errorf("%w: %q is longer than char(%d) for %s", ErrInvalidValue, s, field.Length, field.Name)
		}
		if strings.IndexByte(s, 0) >= 0 {
			return Value{}, fmt.Errorf("%w: NUL byte in %s", ErrInvalidValue, field.Name)
		}
		return CharValue(s), nil
	}
	return Value{}, fmt.Errorf("%w: field %s has unknown type %q", ErrInvalidValue, field.Name, field.Type)
}

// Compare orders two values of the same type.
func Compare(a, b Value) int {
	switch a.Type {
	case catalog.TypeInt:
		return cmp.Compare(a.Int, b.Int)
	case catalog.TypeFloat:
		return cmp.Compare(a.Float, b.Float)
	default:
		return strings.Compare(a.Str, b.Str)
	}
}

func (v Value) String() string {
	switch v.Type {
	case catalog.TypeInt:
		return strconv.FormatInt(int64(v.Int), 10)
	case catalog.TypeFloat:
		return strconv.FormatFloat(float64(v.Float), 'g', -1, 32)
	default:
		return v.Str
	}
}

// Strings renders every field of the row.
func (r Row) Strings() []string {
	out := make([]string, len(r))
	for i, v := range r {
		out[i] = v.String()
	}
	return out
}
