package catalog

import (
	"fmt"
	"strings"

	pagemanager "github.com/sushant-115/minidb/core/write_engine/page_manager"
)

// FieldType is the storage type of a column.
type FieldType string

const (
	TypeInt   FieldType = "int"   // 4-byte signed integer
	TypeFloat FieldType = "float" // 4-byte IEEE 754
	TypeChar  FieldType = "char"  // fixed-length, zero padded
)

// MaxCharLength bounds char(n) columns.
const MaxCharLength = 255

// ParseFieldType accepts "int", "float", "char" in any case.
func ParseFieldType(s string) (FieldType, error) {
	switch FieldType(strings.ToLower(strings.TrimSpace(s))) {
	case TypeInt:
		return TypeInt, nil
	case TypeFloat:
		return TypeFloat, nil
	case TypeChar:
		return TypeChar, nil
	}
	return "", fmt.Errorf("%w: unknown field type %q", ErrInvalidSchema, s)
}

// FieldDef describes one column. Length is only meaningful for char columns.
type FieldDef struct {
	Name    string    `json:"name"`
	Type    FieldType `json:"type"`
	Length  int       `json:"length,omitempty"`
	Primary bool      `json:"primary,omitempty"`
	Unique  bool      `json:"unique,omitempty"`
}

// Size returns the number of bytes the field occupies in a record.
func (f FieldDef) Size() int {
	if f.Type == TypeChar {
		return f.Length
	}
	return 4
}

// IsKey reports whether values of the column must be unique within the table.
func (f FieldDef) IsKey() bool { return f.Primary || f.Unique }

func (f FieldDef) String() string {
	if f.Type == TypeChar {
		return fmt.Sprintf("%s char(%d)", f.Name, f.Length)
	}
	return fmt.Sprintf("%s %s", f.Name, f.Type)
}

// IndexDef describes a secondary index. Buckets is fixed at creation; PageCount is the
// allocation counter of the index file and only grows.
type IndexDef struct {
	Name      string `json:"name"`
	Table     string `json:"table"`
	Column    string `json:"column"`
	Buckets   int32  `json:"buckets"`
	PageCount int32  `json:"page_count"`
}

// TableSchema is everything the record store needs to find and decode a table's records:
// the ordered fields and the heads of the live and free page chains.
type TableSchema struct {
	Name      string     `json:"name"`
	Fields    []FieldDef `json:"fields"`
	LiveHead  int32      `json:"live_head"`
	FreeHead  int32      `json:"free_head"`
	PageCount int32      `json:"page_count"`
	Indexes   []IndexDef `json:"indexes,omitempty"`
}

// RecordLength is the sum of the field sizes.
func (ts *TableSchema) RecordLength() int {
	n := 0
	for _, f := range ts.Fields {
		n += f.Size()
	}
	return n
}

// MaxRecordsPerPage is how many records fit after the page header.
func (ts *TableSchema) MaxRecordsPerPage() int {
	rl := ts.RecordLength()
	if rl == 0 {
		return 0
	}
	return (pagemanager.PageSize - pagemanager.HeaderSize) / rl
}

// Column returns the position of the named column, or -1.
func (ts *TableSchema) Column(name string) int {
	for i, f := range ts.Fields {
		if strings.EqualFold(f.Name, name) {
			return i
		}
	}
	return -1
}

// PrimaryKey returns the position of the primary key column, or -1 when there is none.
func (ts *TableSchema) PrimaryKey() int {
	for i, f := range ts.Fields {
		if f.Primary {
			return i
		}
	}
	return -1
}

// IndexesOn returns the indexes built over the named column.
func (ts *TableSchema) IndexesOn(column string) []IndexDef {
	var out []IndexDef
	for _, idx := range ts.Indexes {
		if strings.EqualFold(idx.Column, column) {
			out = append(out, idx)
		}
	}
	return out
}

func (ts *TableSchema) validate() error {
	if err := validateName(ts.Name); err != nil {
		return err
	}
	if len(ts.Fields) == 0 {
		return fmt.Errorf("%w: table %s has no fields", ErrInvalidSchema, ts.Name)
	}
	seen := make(map[string]bool, len(ts.Fields))
	primaries := 0
	for _, f := range ts.Fields {
		if err := validateName(f.Name); err != nil {
			return err
		}
		key := strings.ToLower(f.Name)
		if seen[key] {
			return fmt.Errorf("%w: duplicate field %s", ErrInvalidSchema, f.Name)
		}
		seen[key] = true
		switch f.Type {
		case TypeInt, TypeFloat:
		case TypeChar:
			if f.Length < 1 || f.Length > MaxCharLength {
				return fmt.Errorf("%w: char length of %s must be in [1, %d], got %d", ErrInvalidSchema, f.Name, MaxCharLength, f.Length)
			}
		default:
			return fmt.Errorf("%w: field %s has unknown type %q", ErrInvalidSchema, f.Name, f.Type)
		}
		if f.Primary {
			primaries++
		}
	}
	if primaries > 1 {
		return fmt.Errorf("%w: table %s declares %d primary keys", ErrInvalidSchema, ts.Name, primaries)
	}
	if rl := ts.RecordLength(); rl > pagemanager.PageSize-pagemanager.HeaderSize {
		return fmt.Errorf("%w: record length %d does not fit in a page", ErrInvalidSchema, rl)
	}
	return nil
}

func validateName(name string) error {
	if name == "" || strings.ContainsAny(name, `/\. `) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}
