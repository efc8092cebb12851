package record

import (
	"context"

	"github.com/sushant-115/minidb/core/catalog"
	"github.com/sushant-115/minidb/core/indexmanager"
	"go.uber.org/zap"
)

// match is a qualifying record and where it lives.
type match struct {
	loc Location
	row Row
}

// indexedLookup picks the first equality condition on an indexed column. ok is false when
// no condition can be answered by an index.
func (s *Store) indexedLookup(ts *catalog.TableSchema, l *Layout, conds []condition) (indexmanager.Index, []byte, bool, error) {
	for _, c := range conds {
		if c.op != OpEq {
			continue
		}
		idxs, err := s.indexes.ForColumn(ts, ts.Fields[c.field].Name)
		if err != nil {
			return nil, nil, false, err
		}
		if len(idxs) > 0 {
			return idxs[0], l.Key(c.field, c.value), true, nil
		}
	}
	return nil, nil, false, nil
}

// collect returns every record satisfying all conditions, in live chain order. An equality
// on an indexed column turns the scan into a single point lookup whose record is still
// checked against every condition.
func (s *Store) collect(ctx context.Context, ts *catalog.TableSchema, l *Layout, conds []condition) ([]match, error) {
	idx, key, ok, err := s.indexedLookup(ts, l, conds)
	if err != nil {
		return nil, err
	}
	if ok {
		raw, err := idx.GetVal(key)
		if err != nil || raw == indexmanager.NotFound {
			return nil, err
		}
		loc := Location(raw)
		num, slot := loc.Decode()
		p, err := s.fetch(ctx, ts, num)
		if err != nil {
			return nil, err
		}
		if slot >= int(p.RecordCount()) {
			s.logger.Warn("index points past the end of a page", zap.String("table", ts.Name), zap.Stringer("location", loc))
			return nil, nil
		}
		row := l.Decode(slotBytes(p, l, slot))
		if !matches(conds, row) {
			return nil, nil
		}
		return []match{{loc: loc, row: row}}, nil
	}

	var out []match
	err = s.walk(ctx, ts, l, func(loc Location, row Row) error {
		if matches(conds, row) {
			out = append(out, match{loc: loc, row: row})
		}
		return nil
	})
	return out, err
}

// Select returns the records satisfying every predicate, in live chain order.
func (s *Store) Select(ctx context.Context, table string, preds []Predicate) (rows []Row, err error) {
	ctx, span, start := s.startOp(ctx, "select", table)
	defer func() { s.endOp(ctx, span, start, "select", table, len(rows), err) }()

	ts, l, err := s.table(table)
	if err != nil {
		return nil, err
	}
	conds, err := compile(ts, preds)
	if err != nil {
		return nil, err
	}
	found, err := s.collect(ctx, ts, l, conds)
	if err != nil {
		return nil, err
	}
	rows = make([]Row, len(found))
	for i, m := range found {
		rows[i] = m.row
	}
	return rows, nil
}
