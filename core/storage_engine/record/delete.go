package record

import (
	"context"
	"fmt"

	"github.com/sushant-115/minidb/core/catalog"
	"github.com/sushant-115/minidb/core/indexmanager"
	pagemanager "github.com/sushant-115/minidb/core/write_engine/page_manager"
	"go.uber.org/zap"
)

// Delete removes every record satisfying all predicates and returns how many went.
func (s *Store) Delete(ctx context.Context, table string, preds []Predicate) (n int, err error) {
	ctx, span, start := s.startOp(ctx, "delete", table)
	defer func() { s.endOp(ctx, span, start, "delete", table, n, err) }()

	ts, l, err := s.table(table)
	if err != nil {
		return 0, err
	}
	conds, err := compile(ts, preds)
	if err != nil {
		return 0, err
	}

	structural := false
	idx, key, ok, err := s.indexedLookup(ts, l, conds)
	if err != nil {
		return 0, err
	}
	if ok {
		raw, err := idx.GetVal(key)
		if err != nil {
			return 0, err
		}
		if raw != indexmanager.NotFound {
			num, slot := Location(raw).Decode()
			res, err := s.deleteInPage(ctx, ts, l, num, conds, slot)
			if err != nil {
				return 0, err
			}
			n, structural = res.deleted, res.emptied
		}
	} else {
		for num := ts.LiveHead; num != pagemanager.NoPage; {
			res, err := s.deleteInPage(ctx, ts, l, num, conds, -1)
			if err != nil {
				return n, err
			}
			n += res.deleted
			structural = structural || res.emptied
			num = res.next
		}
	}

	if err := s.finish(ctx, structural); err != nil {
		return n, err
	}
	if n > 0 {
		s.logger.Debug("records deleted", zap.String("table", ts.Name), zap.Int("count", n))
	}
	return n, nil
}

type pageDeletion struct {
	deleted int
	next    int32
	emptied bool
}

// deleteInPage removes the qualifying records of one live page by swap-compaction: the last
// record is copied over the removed one and the count drops by one. The slot is not advanced
// after a removal, so the record just moved into it is checked in the same pass. With only
// >= 0, just that slot is considered.
//
// A page left empty is unlinked from the live chain and pushed onto the free chain.
func (s *Store) deleteInPage(ctx context.Context, ts *catalog.TableSchema, l *Layout, num int32, conds []condition, only int) (pageDeletion, error) {
	p, err := s.fetch(ctx, ts, num)
	if err != nil {
		return pageDeletion{}, err
	}
	res := pageDeletion{next: p.NextPage()}
	prev := p.PrevPage()
	count := int(p.RecordCount())
	if count < 0 || count > ts.MaxRecordsPerPage() {
		return res, fmt.Errorf("%w: page %d of %s has record count %d", ErrCorruptChain, num, ts.Name, count)
	}

	var ops []indexOp
	slot := 0
	if only >= 0 {
		if only >= count {
			return res, nil
		}
		slot = only
	}
	for slot < count {
		row := l.Decode(slotBytes(p, l, slot))
		if !matches(conds, row) {
			if only >= 0 {
				break
			}
			slot++
			continue
		}
		loc, err := EncodeLocation(num, slot)
		if err != nil {
			return res, err
		}
		ops = append(ops, rowIndexOps(ts, row, loc, true)...)
		if last := count - 1; slot != last {
			copy(slotBytes(p, l, slot), slotBytes(p, l, last))
			ops = append(ops, rowIndexOps(ts, l.Decode(slotBytes(p, l, slot)), loc, false)...)
		}
		count--
		res.deleted++
		if only >= 0 {
			break
		}
	}
	if res.deleted == 0 {
		return res, nil
	}
	p.SetRecordCount(int32(count))
	s.buf.MarkDirty(p)

	if err := s.applyIndexOps(ts, l, ops); err != nil {
		return res, err
	}
	if count == 0 {
		if err := s.release(ctx, ts, num, prev, res.next); err != nil {
			return res, err
		}
		res.emptied = true
	}
	return res, nil
}

// release unlinks an empty page from the live chain and makes it the free chain head.
func (s *Store) release(ctx context.Context, ts *catalog.TableSchema, num, prev, next int32) error {
	if prev == pagemanager.NoPage {
		ts.LiveHead = next
	} else {
		pp, err := s.fetch(ctx, ts, prev)
		if err != nil {
			return err
		}
		pp.SetNextPage(next)
		s.buf.MarkDirty(pp)
	}
	if next != pagemanager.NoPage {
		np, err := s.fetch(ctx, ts, next)
		if err != nil {
			return err
		}
		np.SetPrevPage(prev)
		s.buf.MarkDirty(np)
	}
	p, err := s.fetch(ctx, ts, num)
	if err != nil {
		return err
	}
	p.InitChainHeader(pagemanager.NoPage, ts.FreeHead, 0)
	s.buf.MarkDirty(p)
	ts.FreeHead = num
	s.logger.Debug("page moved to free chain", zap.String("table", ts.Name), zap.Int32("page", num))
	return nil
}
