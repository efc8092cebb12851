// Package engine ties the catalog, the page buffer, the hash indexes and the record store
// together behind one handle per data directory.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/sushant-115/minidb/config"
	"github.com/sushant-115/minidb/core/catalog"
	"github.com/sushant-115/minidb/core/indexing/hashindex"
	"github.com/sushant-115/minidb/core/indexmanager"
	"github.com/sushant-115/minidb/core/storage_engine/record"
	flushmanager "github.com/sushant-115/minidb/core/write_engine/flush_manager"
	"github.com/sushant-115/minidb/core/write_engine/memtable"
	pagemanager "github.com/sushant-115/minidb/core/write_engine/page_manager"
	internaltelemetry "github.com/sushant-115/minidb/internal/telemetry"
	"github.com/sushant-115/minidb/pkg/telemetry"
	"go.uber.org/zap"
)

var (
	ErrNoDatabase = errors.New("no database selected")
	ErrClosed     = errors.New("engine is closed")
)

// Engine serializes every call with one mutex; the layers below it are single threaded.
type Engine struct {
	mu     sync.Mutex
	cfg    config.StorageConfig
	logger *zap.Logger
	tel    *telemetry.Telemetry

	disk          *flushmanager.DiskManager
	buf           *memtable.BufferPoolManager
	recordMetrics *internaltelemetry.RecordMetrics
	indexMetrics  *internaltelemetry.IndexMetrics

	// set by UseDatabase
	cat     *catalog.Catalog
	indexes *indexmanager.Manager
	store   *record.Store

	closed bool
}

// Open prepares the data directory and the page buffer. No database is selected yet.
func Open(cfg config.Config, logger *zap.Logger, tel *telemetry.Telemetry) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if tel == nil {
		tel = telemetry.Noop()
	}

	bufMetrics, err := internaltelemetry.NewBufferMetrics(tel.Meter)
	if err != nil {
		return nil, fmt.Errorf("failed to create buffer metrics: %w", err)
	}
	recMetrics, err := internaltelemetry.NewRecordMetrics(tel.Meter)
	if err != nil {
		return nil, fmt.Errorf("failed to create record metrics: %w", err)
	}
	idxMetrics, err := internaltelemetry.NewIndexMetrics(tel.Meter)
	if err != nil {
		return nil, fmt.Errorf("failed to create index metrics: %w", err)
	}

	disk, err := flushmanager.NewDiskManager(cfg.Storage.DataDir, logger)
	if err != nil {
		return nil, err
	}
	buf, err := memtable.NewBufferPoolManager(cfg.Storage.PoolSize, disk, logger, bufMetrics)
	if err != nil {
		disk.Close()
		return nil, err
	}

	logger.Info("engine opened",
		zap.String("data_dir", cfg.Storage.DataDir),
		zap.Int("pool_size", cfg.Storage.PoolSize),
	)
	return &Engine{
		cfg:           cfg.Storage,
		logger:        logger.Named("engine"),
		tel:           tel,
		disk:          disk,
		buf:           buf,
		recordMetrics: recMetrics,
		indexMetrics:  idxMetrics,
	}, nil
}

func (e *Engine) check() error {
	if e.closed {
		return ErrClosed
	}
	if e.store == nil {
		return ErrNoDatabase
	}
	return nil
}

// CreateDatabase makes an empty database. It does not select it.
func (e *Engine) CreateDatabase(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	if _, err := catalog.CreateDatabase(e.cfg.DataDir, name); err != nil {
		return err
	}
	e.logger.Info("database created", zap.String("database", name))
	return nil
}

// UseDatabase selects the database every later call works on.
func (e *Engine) UseDatabase(ctx context.Context, name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	cat, err := catalog.Open(e.cfg.DataDir, name)
	if err != nil {
		return err
	}
	if e.store != nil {
		if err := e.buf.FlushAll(ctx); err != nil {
			return err
		}
	}
	e.cat = cat
	e.indexes = indexmanager.NewManager(hashindex.Open, e.buf, cat, e.logger, e.indexMetrics)
	e.store = record.NewStore(cat, e.buf, e.indexes, e.logger, e.recordMetrics, e.tel.Tracer)
	e.logger.Info("database selected", zap.String("database", name), zap.Int("tables", len(cat.Tables())))
	return nil
}

// Database returns the selected database, or "" before UseDatabase.
func (e *Engine) Database() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cat == nil {
		return ""
	}
	return e.cat.Database()
}

func (e *Engine) Databases() ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return catalog.ListDatabases(e.cfg.DataDir)
}

// DropDatabase removes a database and all of its files. Its resident pages go back to the
// pool without being written. Dropping the selected database leaves none selected.
func (e *Engine) DropDatabase(ctx context.Context, name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	cat, err := catalog.Open(e.cfg.DataDir, name)
	if err != nil {
		return err
	}
	for _, table := range cat.Tables() {
		ts, err := cat.Table(table)
		if err != nil {
			return err
		}
		if err := e.dropFiles(ctx, name, *ts); err != nil {
			return err
		}
	}
	if err := catalog.DropDatabase(e.cfg.DataDir, name); err != nil {
		return err
	}
	if e.cat != nil && e.cat.Database() == cat.Database() {
		e.cat, e.indexes, e.store = nil, nil, nil
	}
	e.logger.Info("database dropped", zap.String("database", name))
	return nil
}

// dropFiles releases and removes the record file of a table and the files of its indexes.
func (e *Engine) dropFiles(ctx context.Context, database string, ts catalog.TableSchema) error {
	for _, idx := range ts.Indexes {
		id := pagemanager.FileIdentity{Database: database, Table: idx.Name, Kind: pagemanager.KindIndex}
		if err := e.buf.DropFile(ctx, id); err != nil {
			return err
		}
	}
	id := pagemanager.FileIdentity{Database: database, Table: ts.Name, Kind: pagemanager.KindRecord}
	return e.buf.DropFile(ctx, id)
}

// CreateTable adds a table with an empty live and free chain.
func (e *Engine) CreateTable(name string, fields []catalog.FieldDef) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.check(); err != nil {
		return err
	}
	ts, err := e.cat.CreateTable(catalog.TableSchema{Name: name, Fields: fields})
	if err != nil {
		return err
	}
	e.logger.Info("table created",
		zap.String("table", ts.Name),
		zap.Int("record_length", ts.RecordLength()),
		zap.Int("records_per_page", ts.MaxRecordsPerPage()),
	)
	return nil
}

// DropTable removes a table, its indexes and their page files.
func (e *Engine) DropTable(ctx context.Context, name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.check(); err != nil {
		return err
	}
	ts, err := e.cat.Table(name)
	if err != nil {
		return err
	}
	for _, idx := range ts.Indexes {
		e.indexes.Forget(idx.Name)
	}
	if err := e.dropFiles(ctx, e.cat.Database(), *ts); err != nil {
		return err
	}
	dropped, err := e.cat.DropTable(name)
	if err != nil {
		return err
	}
	e.store.Forget(dropped.Name)
	e.logger.Info("table dropped", zap.String("table", dropped.Name), zap.Int("indexes", len(dropped.Indexes)))
	return nil
}

func (e *Engine) Tables() ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.check(); err != nil {
		return nil, err
	}
	return e.cat.Tables(), nil
}

// Schema returns a copy of a table's schema.
func (e *Engine) Schema(table string) (catalog.TableSchema, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.check(); err != nil {
		return catalog.TableSchema{}, err
	}
	ts, err := e.cat.Table(table)
	if err != nil {
		return catalog.TableSchema{}, err
	}
	out := *ts
	out.Fields = append([]catalog.FieldDef(nil), ts.Fields...)
	out.Indexes = append([]catalog.IndexDef(nil), ts.Indexes...)
	return out, nil
}

// CreateIndex builds a hash index over a primary key or unique column and fills it from the
// records already stored. buckets <= 0 uses the configured default.
func (e *Engine) CreateIndex(ctx context.Context, name, table, column string, buckets int32) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.check(); err != nil {
		return err
	}
	if buckets <= 0 {
		buckets = e.cfg.IndexBuckets
	}
	def, err := e.cat.CreateIndex(catalog.IndexDef{Name: name, Table: table, Column: column, Buckets: buckets})
	if err != nil {
		return err
	}
	n, err := e.buildIndex(ctx, *def)
	if err != nil {
		e.discardIndex(ctx, name)
		return fmt.Errorf("failed to build index %s: %w", name, err)
	}
	e.logger.Info("index created",
		zap.String("index", def.Name),
		zap.String("table", def.Table),
		zap.String("column", def.Column),
		zap.Int32("buckets", def.Buckets),
		zap.Int("entries", n),
	)
	return nil
}

func (e *Engine) buildIndex(ctx context.Context, def catalog.IndexDef) (int, error) {
	idx, err := hashindex.Create(def, e.buf, e.cat, e.cat.Database())
	if err != nil {
		return 0, err
	}
	ts, err := e.cat.Table(def.Table)
	if err != nil {
		return 0, err
	}
	l, err := e.store.Layout(def.Table)
	if err != nil {
		return 0, err
	}
	col := ts.Column(def.Column)
	n := 0
	err = e.store.Scan(ctx, def.Table, func(loc record.Location, row record.Row) error {
		n++
		return idx.Add(l.Key(col, row[col]), int32(loc))
	})
	if err != nil {
		return n, err
	}
	if err := e.buf.FlushAll(ctx); err != nil {
		return n, err
	}
	return n, e.cat.Persist()
}

// discardIndex undoes a half built index; failures are only logged.
func (e *Engine) discardIndex(ctx context.Context, name string) {
	if _, err := e.cat.DropIndex(name); err != nil {
		e.logger.Error("failed to drop index from catalog", zap.String("index", name), zap.Error(err))
	}
	e.indexes.Forget(name)
	id := pagemanager.FileIdentity{Database: e.cat.Database(), Table: name, Kind: pagemanager.KindIndex}
	if err := e.buf.DropFile(ctx, id); err != nil {
		e.logger.Error("failed to remove index file", zap.String("index", name), zap.Error(err))
	}
}

// DropIndex removes an index and its page file.
func (e *Engine) DropIndex(ctx context.Context, name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.check(); err != nil {
		return err
	}
	def, err := e.cat.DropIndex(name)
	if err != nil {
		return err
	}
	e.indexes.Forget(def.Name)
	id := pagemanager.FileIdentity{Database: e.cat.Database(), Table: def.Name, Kind: pagemanager.KindIndex}
	if err := e.buf.DropFile(ctx, id); err != nil {
		return err
	}
	e.logger.Info("index dropped", zap.String("index", def.Name), zap.String("table", def.Table))
	return nil
}

// PrintIndex writes the bucket chains of an index to w.
func (e *Engine) PrintIndex(name string, w io.Writer) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.check(); err != nil {
		return err
	}
	def, _, err := e.cat.Index(name)
	if err != nil {
		return err
	}
	idx, err := e.indexes.Get(*def)
	if err != nil {
		return err
	}
	return idx.Print(w)
}

func (e *Engine) Insert(ctx context.Context, table string, values []string) (record.Location, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.check(); err != nil {
		return 0, err
	}
	return e.store.Insert(ctx, table, values)
}

func (e *Engine) Select(ctx context.Context, table string, preds []record.Predicate) ([]record.Row, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.check(); err != nil {
		return nil, err
	}
	return e.store.Select(ctx, table, preds)
}

func (e *Engine) Delete(ctx context.Context, table string, preds []record.Predicate) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.check(); err != nil {
		return 0, err
	}
	return e.store.Delete(ctx, table, preds)
}

func (e *Engine) Update(ctx context.Context, table string, assigns []record.Assignment, preds []record.Predicate) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.check(); err != nil {
		return 0, err
	}
	return e.store.Update(ctx, table, assigns, preds)
}

// Chains describes the live and free chains of a table.
func (e *Engine) Chains(ctx context.Context, table string) (record.ChainInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.check(); err != nil {
		return record.ChainInfo{}, err
	}
	return e.store.Chains(ctx, table)
}

func (e *Engine) Stats() memtable.BufferStats {
	return e.buf.Stats()
}

// Close flushes the buffer and closes every page file. Later calls fail with ErrClosed.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	err := e.buf.Close()
	if err != nil {
		e.logger.Error("failed to close buffer", zap.Error(err))
	} else {
		e.logger.Info("engine closed")
	}
	return err
}
