package record

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Update overwrites the assigned fields of every record satisfying all predicates, in place,
// and returns how many records it touched.
//
// Qualifying records are collected before anything is written. Assigning a primary key or
// unique column fails when more than one record qualifies, or when a record other than the
// one qualifying already holds the new value.
func (s *Store) Update(ctx context.Context, table string, assigns []Assignment, preds []Predicate) (n int, err error) {
	ctx, span, start := s.startOp(ctx, "update", table)
	defer func() { s.endOp(ctx, span, start, "update", table, n, err) }()

	ts, l, err := s.table(table)
	if err != nil {
		return 0, err
	}
	assigned := make(map[int]Value, len(assigns))
	for _, a := range assigns {
		col := ts.Column(a.Column)
		if col < 0 {
			return 0, fmt.Errorf("%w: %s.%s", ErrUnknownColumn, ts.Name, a.Column)
		}
		v, err := ParseValue(ts.Fields[col], a.Value)
		if err != nil {
			return 0, err
		}
		assigned[col] = v
	}
	conds, err := compile(ts, preds)
	if err != nil {
		return 0, err
	}

	found, err := s.collect(ctx, ts, l, conds)
	if err != nil {
		return 0, err
	}
	if len(found) == 0 {
		return 0, nil
	}
	for col, v := range assigned {
		if !ts.Fields[col].IsKey() {
			continue
		}
		if len(found) > 1 {
			return 0, conflictError(ts, col, v)
		}
		holder, taken, err := s.keyHolder(ctx, ts, l, col, v)
		if err != nil {
			return 0, err
		}
		if taken && holder != found[0].loc {
			return 0, conflictError(ts, col, v)
		}
	}

	for _, m := range found {
		num, slot := m.loc.Decode()
		p, err := s.fetch(ctx, ts, num)
		if err != nil {
			return n, err
		}
		rec := slotBytes(p, l, slot)
		var ops []indexOp
		for col := range ts.Fields {
			v, ok := assigned[col]
			if !ok {
				continue
			}
			l.EncodeField(rec, col, v)
			if len(ts.IndexesOn(ts.Fields[col].Name)) > 0 {
				ops = append(ops,
					indexOp{remove: true, field: col, value: m.row[col]},
					indexOp{field: col, value: v, loc: m.loc},
				)
			}
		}
		s.buf.MarkDirty(p)
		if err := s.applyIndexOps(ts, l, ops); err != nil {
			return n, err
		}
		n++
	}

	if err := s.finish(ctx, false); err != nil {
		return n, err
	}
	s.logger.Debug("records updated", zap.String("table", ts.Name), zap.Int("count", n))
	return n, nil
}
