package record

import (
	"context"
	"fmt"

	"github.com/sushant-115/minidb/core/catalog"
	pagemanager "github.com/sushant-115/minidb/core/write_engine/page_manager"
	"go.uber.org/zap"
)

// parseRow converts one literal per field, in schema order.
func parseRow(ts *catalog.TableSchema, values []string) (Row, error) {
	if len(values) != len(ts.Fields) {
		return nil, fmt.Errorf("%w: %s has %d fields, got %d values", ErrValueCount, ts.Name, len(ts.Fields), len(values))
	}
	row := make(Row, len(values))
	for i, lit := range values {
		v, err := ParseValue(ts.Fields[i], lit)
		if err != nil {
			return nil, err
		}
		row[i] = v
	}
	return row, nil
}

// Insert adds one record and returns where it was stored. Key columns are checked for
// uniqueness before any page is touched.
func (s *Store) Insert(ctx context.Context, table string, values []string) (loc Location, err error) {
	ctx, span, start := s.startOp(ctx, "insert", table)
	defer func() {
		rows := 0
		if err == nil {
			rows = 1
		}
		s.endOp(ctx, span, start, "insert", table, rows, err)
	}()

	ts, l, err := s.table(table)
	if err != nil {
		return 0, err
	}
	row, err := parseRow(ts, values)
	if err != nil {
		return 0, err
	}
	for col, f := range ts.Fields {
		if !f.IsKey() {
			continue
		}
		_, taken, err := s.keyHolder(ctx, ts, l, col, row[col])
		if err != nil {
			return 0, err
		}
		if taken {
			return 0, conflictError(ts, col, row[col])
		}
	}

	rec := make([]byte, l.RecordLength())
	l.Encode(row, rec)

	loc, structural, err := s.place(ctx, ts, l, rec)
	if err != nil {
		return 0, err
	}
	if err := s.applyIndexOps(ts, l, rowIndexOps(ts, row, loc, false)); err != nil {
		return 0, err
	}
	if err := s.finish(ctx, structural); err != nil {
		return 0, err
	}
	s.logger.Debug("record inserted", zap.String("table", ts.Name), zap.Stringer("location", loc))
	return loc, nil
}

// place writes rec into the table's chains: the first live page with room, else the head
// of the free chain appended to the live tail, else a newly minted page prepended to the
// live head. structural reports whether the chain heads or the page counter changed.
func (s *Store) place(ctx context.Context, ts *catalog.TableSchema, l *Layout, rec []byte) (Location, bool, error) {
	maxRecords := int32(ts.MaxRecordsPerPage())

	tail := pagemanager.NoPage
	for num := ts.LiveHead; num != pagemanager.NoPage; {
		p, err := s.fetch(ctx, ts, num)
		if err != nil {
			return 0, false, err
		}
		if count := p.RecordCount(); count < maxRecords {
			loc, err := EncodeLocation(num, int(count))
			if err != nil {
				return 0, false, err
			}
			copy(slotBytes(p, l, int(count)), rec)
			p.SetRecordCount(count + 1)
			s.buf.MarkDirty(p)
			return loc, false, nil
		}
		tail, num = num, p.NextPage()
	}

	if free := ts.FreeHead; free != pagemanager.NoPage {
		loc, err := EncodeLocation(free, 0)
		if err != nil {
			return 0, false, err
		}
		p, err := s.fetch(ctx, ts, free)
		if err != nil {
			return 0, false, err
		}
		nextFree := p.NextPage()
		p.InitChainHeader(tail, pagemanager.NoPage, 1)
		copy(slotBytes(p, l, 0), rec)
		s.buf.MarkDirty(p)

		if tail == pagemanager.NoPage {
			ts.LiveHead = free
		} else {
			tp, err := s.fetch(ctx, ts, tail)
			if err != nil {
				return 0, false, err
			}
			tp.SetNextPage(free)
			s.buf.MarkDirty(tp)
		}
		ts.FreeHead = nextFree
		s.logger.Debug("reused free page", zap.String("table", ts.Name), zap.Int32("page", free), zap.Int32("after", tail))
		return loc, true, nil
	}

	num := ts.PageCount
	loc, err := EncodeLocation(num, 0)
	if err != nil {
		return 0, false, err
	}
	p, err := s.fetch(ctx, ts, num)
	if err != nil {
		return 0, false, err
	}
	clear(p.GetData())
	p.InitChainHeader(pagemanager.NoPage, ts.LiveHead, 1)
	copy(slotBytes(p, l, 0), rec)
	s.buf.MarkDirty(p)

	if head := ts.LiveHead; head != pagemanager.NoPage {
		hp, err := s.fetch(ctx, ts, head)
		if err != nil {
			return 0, false, err
		}
		hp.SetPrevPage(num)
		s.buf.MarkDirty(hp)
	}
	ts.LiveHead = num
	ts.PageCount++
	s.logger.Debug("minted page", zap.String("table", ts.Name), zap.Int32("page", num))
	return loc, true, nil
}
