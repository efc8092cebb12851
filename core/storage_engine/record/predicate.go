package record

import (
	"fmt"
	"strings"

	"github.com/sushant-115/minidb/core/catalog"
)

// CompareOp is the comparison of a predicate.
type CompareOp int

const (
	OpEq CompareOp = iota
	OpNe
	OpLt
	OpGt
	OpLe
	OpGe
)

var opSymbols = [...]string{OpEq: "=", OpNe: "<>", OpLt: "<", OpGt: ">", OpLe: "<=", OpGe: ">="}

// ParseCompareOp accepts =, <>, !=, <, >, <= and >=.
func ParseCompareOp(s string) (CompareOp, error) {
	switch strings.TrimSpace(s) {
	case "=", "==":
		return OpEq, nil
	case "<>", "!=":
		return OpNe, nil
	case "<":
		return OpLt, nil
	case ">":
		return OpGt, nil
	case "<=":
		return OpLe, nil
	case ">=":
		return OpGe, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidOperator, s)
}

func (op CompareOp) String() string {
	if op < 0 || int(op) >= len(opSymbols) {
		return fmt.Sprintf("CompareOp(%d)", int(op))
	}
	return opSymbols[op]
}

// holds reports whether a comparison result c (as from Compare) satisfies op.
func (op CompareOp) holds(c int) bool {
	switch op {
	case OpEq:
		return c == 0
	case OpNe:
		return c != 0
	case OpLt:
		return c < 0
	case OpGt:
		return c > 0
	case OpLe:
		return c <= 0
	case OpGe:
		return c >= 0
	}
	return false
}

// Predicate is "Column Op Operand". A predicate list is a conjunction.
type Predicate struct {
	Column  string
	Op      CompareOp
	Operand string
}

func (p Predicate) String() string { return fmt.Sprintf("%s %s %s", p.Column, p.Op, p.Operand) }

// Assignment sets Column to Value in Update.
type Assignment struct {
	Column string
	Value  string
}

// condition is a predicate bound to a field position with its operand parsed.
type condition struct {
	field int
	op    CompareOp
	value Value
}

func compile(ts *catalog.TableSchema, preds []Predicate) ([]condition, error) {
	conds := make([]condition, 0, len(preds))
	for _, p := range preds {
		col := ts.Column(p.Column)
		if col < 0 {
			return nil, fmt.Errorf("%w: %s.%s", ErrUnknownColumn, ts.Name, p.Column)
		}
		if p.Op < OpEq || p.Op > OpGe {
			return nil, fmt.Errorf("%w: %v", ErrInvalidOperator, p.Op)
		}
		v, err := ParseValue(ts.Fields[col], p.Operand)
		if err != nil {
			return nil, err
		}
		conds = append(conds, condition{field: col, op: p.Op, value: v})
	}
	return conds, nil
}

func matches(conds []condition, row Row) bool {
	for _, c := range conds {
		if !c.op.holds(Compare(row[c.field], c.value)) {
			return false
		}
	}
	return true
}
