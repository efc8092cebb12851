package record

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sushant-115/minidb/core/catalog"
	"github.com/sushant-115/minidb/core/indexmanager"
	"github.com/sushant-115/minidb/core/write_engine/memtable"
	pagemanager "github.com/sushant-115/minidb/core/write_engine/page_manager"
	internaltelemetry "github.com/sushant-115/minidb/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
)

// Store keeps the records of every table of one database in block chains: a doubly linked
// live chain of pages holding at least one record, and a singly linked free chain of emptied
// pages waiting for reuse. Records are packed densely after the page header; deleting one
// moves the page's last record into the hole.
//
// The store never keeps a *Page across a second fetch. Pages are addressed by number and
// fetched again whenever they are needed, so eviction can never pull a page out from under it.
type Store struct {
	cat     *catalog.Catalog
	buf     *memtable.BufferPoolManager
	indexes *indexmanager.Manager
	logger  *zap.Logger
	metrics *internaltelemetry.RecordMetrics
	tracer  trace.Tracer
	layouts map[string]*Layout
}

func NewStore(cat *catalog.Catalog, buf *memtable.BufferPoolManager, indexes *indexmanager.Manager, logger *zap.Logger, metrics *internaltelemetry.RecordMetrics, tracer trace.Tracer) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = internaltelemetry.NoopRecordMetrics()
	}
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("")
	}
	return &Store{
		cat:     cat,
		buf:     buf,
		indexes: indexes,
		logger:  logger.Named("record_store"),
		metrics: metrics,
		tracer:  tracer,
		layouts: make(map[string]*Layout),
	}
}

func (s *Store) table(name string) (*catalog.TableSchema, *Layout, error) {
	ts, err := s.cat.Table(name)
	if err != nil {
		return nil, nil, err
	}
	key := strings.ToLower(ts.Name)
	l, ok := s.layouts[key]
	if !ok {
		l = NewLayout(ts.Fields)
		s.layouts[key] = l
	}
	return ts, l, nil
}

// Layout returns the record layout of a table.
func (s *Store) Layout(table string) (*Layout, error) {
	_, l, err := s.table(table)
	return l, err
}

// Forget drops the cached layout of a table, once the table itself is dropped.
func (s *Store) Forget(table string) {
	delete(s.layouts, strings.ToLower(table))
}

func (s *Store) fetch(ctx context.Context, ts *catalog.TableSchema, num int32) (*pagemanager.Page, error) {
	return s.buf.FetchPage(ctx, s.cat.Database(), ts.Name, pagemanager.KindRecord, num)
}

// slotBytes is the record at slot of a record page.
func slotBytes(p *pagemanager.Page, l *Layout, slot int) []byte {
	rl := l.RecordLength()
	return p.Content()[slot*rl : (slot+1)*rl]
}

// readPage decodes every record of a live page and reports its successor, so the caller can
// let go of the page before doing anything else.
func (s *Store) readPage(ctx context.Context, ts *catalog.TableSchema, l *Layout, num int32) ([]Row, int32, error) {
	p, err := s.fetch(ctx, ts, num)
	if err != nil {
		return nil, 0, err
	}
	count := int(p.RecordCount())
	if count < 0 || count > ts.MaxRecordsPerPage() {
		return nil, 0, fmt.Errorf("%w: page %d of %s has record count %d", ErrCorruptChain, num, ts.Name, count)
	}
	rows := make([]Row, count)
	for i := range rows {
		rows[i] = l.Decode(slotBytes(p, l, i))
	}
	return rows, p.NextPage(), nil
}

// Scan calls fn for every record of the table in live chain order.
func (s *Store) Scan(ctx context.Context, table string, fn func(Location, Row) error) error {
	ts, l, err := s.table(table)
	if err != nil {
		return err
	}
	return s.walk(ctx, ts, l, fn)
}

func (s *Store) walk(ctx context.Context, ts *catalog.TableSchema, l *Layout, fn func(Location, Row) error) error {
	visited := int32(0)
	for num := ts.LiveHead; num != pagemanager.NoPage; {
		if visited++; visited > ts.PageCount {
			return fmt.Errorf("%w: live chain of %s is longer than its %d pages", ErrCorruptChain, ts.Name, ts.PageCount)
		}
		rows, next, err := s.readPage(ctx, ts, l, num)
		if err != nil {
			return err
		}
		for slot, row := range rows {
			loc, err := EncodeLocation(num, slot)
			if err != nil {
				return err
			}
			if err := fn(loc, row); err != nil {
				return err
			}
		}
		num = next
	}
	return nil
}

// ChainPage is one live page as its header describes it.
type ChainPage struct {
	Page  int32
	Prev  int32
	Next  int32
	Count int
}

// ChainInfo describes the page chains of a table.
type ChainInfo struct {
	Table             string
	RecordLength      int
	MaxRecordsPerPage int
	PageCount         int32
	Live              []ChainPage
	Free              []int32
}

// Chains walks both chains of a table.
func (s *Store) Chains(ctx context.Context, table string) (ChainInfo, error) {
	ts, l, err := s.table(table)
	if err != nil {
		return ChainInfo{}, err
	}
	info := ChainInfo{
		Table:             ts.Name,
		RecordLength:      l.RecordLength(),
		MaxRecordsPerPage: ts.MaxRecordsPerPage(),
		PageCount:         ts.PageCount,
	}
	for num := ts.LiveHead; num != pagemanager.NoPage; {
		if int32(len(info.Live)) >= ts.PageCount {
			return info, fmt.Errorf("%w: live chain of %s loops", ErrCorruptChain, ts.Name)
		}
		p, err := s.fetch(ctx, ts, num)
		if err != nil {
			return info, err
		}
		info.Live = append(info.Live, ChainPage{Page: num, Prev: p.PrevPage(), Next: p.NextPage(), Count: int(p.RecordCount())})
		num = p.NextPage()
	}
	for num := ts.FreeHead; num != pagemanager.NoPage; {
		if int32(len(info.Free)) >= ts.PageCount {
			return info, fmt.Errorf("%w: free chain of %s loops", ErrCorruptChain, ts.Name)
		}
		p, err := s.fetch(ctx, ts, num)
		if err != nil {
			return info, err
		}
		info.Free = append(info.Free, num)
		num = p.NextPage()
	}
	return info, nil
}

// finish flushes every dirty page and, when the chains or the page counter moved, persists the catalog.
func (s *Store) finish(ctx context.Context, structural bool) error {
	if err := s.buf.FlushAll(ctx); err != nil {
		return err
	}
	if structural {
		return s.cat.Persist()
	}
	return nil
}

// keyHolder finds the record whose field col equals v, through an index on the column when
// there is one.
func (s *Store) keyHolder(ctx context.Context, ts *catalog.TableSchema, l *Layout, col int, v Value) (Location, bool, error) {
	key := l.Key(col, v)
	idxs, err := s.indexes.ForColumn(ts, ts.Fields[col].Name)
	if err != nil {
		return 0, false, err
	}
	if len(idxs) > 0 {
		loc, err := idxs[0].GetVal(key)
		if err != nil || loc == indexmanager.NotFound {
			return 0, false, err
		}
		return Location(loc), true, nil
	}

	var (
		holder Location
		found  bool
	)
	err = s.walk(ctx, ts, l, func(loc Location, row Row) error {
		if Compare(row[col], v) == 0 {
			holder, found = loc, true
			return errStopWalk
		}
		return nil
	})
	if err != nil && !errors.Is(err, errStopWalk) {
		return 0, false, err
	}
	return holder, found, nil
}

func conflictError(ts *catalog.TableSchema, col int, v Value) error {
	f := ts.Fields[col]
	if f.Primary {
		return fmt.Errorf("%w: %s.%s = %s", ErrPrimaryKeyConflict, ts.Name, f.Name, v)
	}
	return fmt.Errorf("%w: %s.%s = %s", ErrUniqueConflict, ts.Name, f.Name, v)
}

var errStopWalk = errors.New("stop walk")

// indexOp is an index change to apply once the record page it came from is no longer needed.
type indexOp struct {
	remove bool
	field  int
	value  Value
	loc    Location
}

func (s *Store) applyIndexOps(ts *catalog.TableSchema, l *Layout, ops []indexOp) error {
	for _, op := range ops {
		idxs, err := s.indexes.ForColumn(ts, ts.Fields[op.field].Name)
		if err != nil {
			return err
		}
		key := l.Key(op.field, op.value)
		for _, idx := range idxs {
			if op.remove {
				err = idx.Remove(key)
			} else {
				err = idx.Add(key, int32(op.loc))
			}
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// rowIndexOps returns one op per indexed field of row.
func rowIndexOps(ts *catalog.TableSchema, row Row, loc Location, remove bool) []indexOp {
	var ops []indexOp
	for i, f := range ts.Fields {
		if len(ts.IndexesOn(f.Name)) > 0 {
			ops = append(ops, indexOp{remove: remove, field: i, value: row[i], loc: loc})
		}
	}
	return ops
}

// startOp begins the telemetry recording for a record store operation.
func (s *Store) startOp(ctx context.Context, op, table string) (context.Context, trace.Span, time.Time) {
	ctx, span := s.tracer.Start(ctx, "record."+op, trace.WithAttributes(
		attribute.String("minidb.database", s.cat.Database()),
		attribute.String("minidb.table", table),
	))
	return ctx, span, time.Now()
}

// endOp completes the telemetry recording for a record store operation.
func (s *Store) endOp(ctx context.Context, span trace.Span, start time.Time, op, table string, rows int, err error) {
	status := "ok"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
	} else {
		span.SetStatus(otelcodes.Ok, "Success")
	}
	span.SetAttributes(attribute.Int("minidb.rows", rows))
	span.End()

	attrs := metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("table", table),
		attribute.String("status", status),
	)
	s.metrics.OpsCounter.Add(ctx, 1, attrs)
	s.metrics.RowsCounter.Add(ctx, int64(rows), attrs)
	s.metrics.DurationHistogram.Record(ctx, time.Since(start).Microseconds(), attrs)
}
