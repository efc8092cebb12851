package indexmanager

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/sushant-115/minidb/core/catalog"
	"github.com/sushant-115/minidb/core/write_engine/memtable"
	internaltelemetry "github.com/sushant-115/minidb/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// NotFound is what GetVal returns for an absent key.
const NotFound int32 = -1

// Index is a point-lookup secondary index mapping an encoded column value to a record location.
type Index interface {
	// Add inserts key, or repoints it when it is already present.
	Add(key []byte, loc int32) error
	Remove(key []byte) error
	// GetVal returns the location stored for key, or NotFound.
	GetVal(key []byte) (int32, error)
	// Print writes a diagnostic dump of the index structure.
	Print(w io.Writer) error
}

// Opener binds an index definition of database to its page file.
type Opener func(def catalog.IndexDef, buf *memtable.BufferPoolManager, cat *catalog.Catalog, database string) (Index, error)

// Manager keeps the open indexes of one database, keyed by index name.
type Manager struct {
	opener  Opener
	buf     *memtable.BufferPoolManager
	cat     *catalog.Catalog
	logger  *zap.Logger
	metrics *internaltelemetry.IndexMetrics
	open    map[string]Index
}

func NewManager(opener Opener, buf *memtable.BufferPoolManager, cat *catalog.Catalog, logger *zap.Logger, metrics *internaltelemetry.IndexMetrics) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = internaltelemetry.NoopIndexMetrics()
	}
	return &Manager{
		opener:  opener,
		buf:     buf,
		cat:     cat,
		logger:  logger.Named("index_manager"),
		metrics: metrics,
		open:    make(map[string]Index),
	}
}

// Get returns the open index for def, opening it on first use.
func (m *Manager) Get(def catalog.IndexDef) (Index, error) {
	key := strings.ToLower(def.Name)
	if idx, ok := m.open[key]; ok {
		return idx, nil
	}
	raw, err := m.opener(def, m.buf, m.cat, m.cat.Database())
	if err != nil {
		return nil, fmt.Errorf("failed to open index %s: %w", def.Name, err)
	}
	idx := &instrumentedIndex{inner: raw, name: def.Name, logger: m.logger, metrics: m.metrics}
	m.open[key] = idx
	m.logger.Debug("index opened", zap.String("index", def.Name), zap.String("table", def.Table), zap.String("column", def.Column))
	return idx, nil
}

// ForColumn returns every index of the table built over column.
func (m *Manager) ForColumn(ts *catalog.TableSchema, column string) ([]Index, error) {
	defs := ts.IndexesOn(column)
	out := make([]Index, 0, len(defs))
	for _, def := range defs {
		idx, err := m.Get(def)
		if err != nil {
			return nil, err
		}
		out = append(out, idx)
	}
	return out, nil
}

// Forget drops the open handle of an index, after the index itself is dropped.
func (m *Manager) Forget(name string) {
	delete(m.open, strings.ToLower(name))
}

// instrumentedIndex records a metric for every call into the wrapped index.
type instrumentedIndex struct {
	inner   Index
	name    string
	logger  *zap.Logger
	metrics *internaltelemetry.IndexMetrics
}

func (ix *instrumentedIndex) Add(key []byte, loc int32) error {
	start := time.Now()
	err := ix.inner.Add(key, loc)
	ix.record("add", start, err)
	return err
}

func (ix *instrumentedIndex) Remove(key []byte) error {
	start := time.Now()
	err := ix.inner.Remove(key)
	ix.record("remove", start, err)
	return err
}

func (ix *instrumentedIndex) GetVal(key []byte) (int32, error) {
	start := time.Now()
	loc, err := ix.inner.GetVal(key)
	ix.record("get", start, err)
	return loc, err
}

func (ix *instrumentedIndex) Print(w io.Writer) error { return ix.inner.Print(w) }

func (ix *instrumentedIndex) record(op string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
		ix.logger.Error("index call failed", zap.String("index", ix.name), zap.String("op", op), zap.Error(err))
	}
	attrs := metric.WithAttributes(
		attribute.String("index", ix.name),
		attribute.String("op", op),
		attribute.String("status", status),
	)
	ctx := context.Background()
	ix.metrics.OpsCounter.Add(ctx, 1, attrs)
	ix.metrics.LatencyHistogram.Record(ctx, float64(time.Since(start).Microseconds())/1000, attrs)
}
