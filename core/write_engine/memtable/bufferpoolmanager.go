package memtable

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	flushmanager "github.com/sushant-115/minidb/core/write_engine/flush_manager"
	pagemanager "github.com/sushant-115/minidb/core/write_engine/page_manager"
	internaltelemetry "github.com/sushant-115/minidb/internal/telemetry"
	"go.uber.org/zap"
)

// BufferStats is a point-in-time view of the buffer.
type BufferStats struct {
	Capacity  int
	Free      int
	Resident  int
	Dirty     int
	Hits      uint64
	Misses    uint64
	Evictions uint64
	Flushes   uint64
}

// BufferPoolManager is the one entry point the record store and the indexes use to get a page.
// Every page lives in exactly one of two places: the free pool or the resident cache.
// A fetch either hits a resident page or loads the page into a frame taken from the pool,
// evicting the oldest resident page when the pool is empty.
//
// Pages are not pinned. A *Page returned by FetchPage is only valid until the next FetchPage,
// which may evict it; callers hold page numbers and fetch again.
type BufferPoolManager struct {
	mu      sync.Mutex
	pool    *pagemanager.PagePool
	cache   *ResidentCache
	disk    *flushmanager.DiskManager
	logger  *zap.Logger
	metrics *internaltelemetry.BufferMetrics

	hits   uint64
	misses uint64
}

// NewBufferPoolManager creates and initializes a new BufferPoolManager.
func NewBufferPoolManager(poolSize int, diskManager *flushmanager.DiskManager, logger *zap.Logger, metrics *internaltelemetry.BufferMetrics) (*BufferPoolManager, error) {
	if diskManager == nil {
		return nil, errors.New("buffer pool manager needs a disk manager")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = internaltelemetry.NoopBufferMetrics()
	}
	pool, err := pagemanager.NewPagePool(poolSize)
	if err != nil {
		return nil, err
	}
	bpm := &BufferPoolManager{
		pool:    pool,
		cache:   NewResidentCache(pool, diskManager, logger, metrics),
		disk:    diskManager,
		logger:  logger.Named("buffer_pool"),
		metrics: metrics,
	}
	bpm.logger.Info("buffer pool initialized", zap.Int("pool_size", poolSize), zap.Int("page_size", pagemanager.PageSize))
	return bpm, nil
}

// FetchPage returns page pageNum of the file named by (database, table, kind).
// Pages past the end of the file come back zero-filled.
func (bpm *BufferPoolManager) FetchPage(ctx context.Context, database, table string, kind pagemanager.FileKind, pageNum int32) (*pagemanager.Page, error) {
	return bpm.Fetch(ctx, pagemanager.FileIdentity{Database: database, Table: table, Kind: kind}, pageNum)
}

// Fetch is FetchPage keyed by a FileIdentity.
func (bpm *BufferPoolManager) Fetch(ctx context.Context, id pagemanager.FileIdentity, pageNum int32) (*pagemanager.Page, error) {
	if pageNum < 0 {
		return nil, fmt.Errorf("%w: %d", flushmanager.ErrInvalidPageNum, pageNum)
	}
	bpm.mu.Lock()
	defer bpm.mu.Unlock()

	// Every fetch ages all resident pages by one; the fetched page is then reset to zero.
	bpm.cache.Tick()

	if page, ok := bpm.cache.Lookup(id, pageNum); ok {
		bpm.cache.Touch(page)
		bpm.hits++
		bpm.metrics.HitsCounter.Add(ctx, 1)
		return page, nil
	}

	page, ok := bpm.pool.Take()
	if !ok {
		victim, err := bpm.cache.EvictOldest(ctx)
		if err != nil {
			bpm.logger.Error("failed to get victim page", zap.Stringer("file", id), zap.Int32("page", pageNum), zap.Error(err))
			return nil, err
		}
		page = victim
	}

	page.Bind(id, pageNum)
	if err := bpm.disk.ReadPage(id, pageNum, page.GetData()); err != nil {
		bpm.giveBack(page)
		return nil, fmt.Errorf("failed to read page %d of %s: %w", pageNum, id, err)
	}
	if err := bpm.cache.Register(page); err != nil {
		bpm.giveBack(page)
		return nil, err
	}
	bpm.misses++
	bpm.metrics.MissesCounter.Add(ctx, 1)
	bpm.logger.Debug("page loaded", zap.Stringer("file", id), zap.Int32("page", pageNum), zap.Int("frame", page.Frame()))
	return page, nil
}

// giveBack returns a page that failed to load to the pool. A failure here only gets logged,
// the caller is already reporting the load error.
func (bpm *BufferPoolManager) giveBack(page *pagemanager.Page) bool {
	if err := bpm.pool.Return(page); err != nil {
		bpm.logger.Error("failed to return page to pool", zap.Int("frame", page.Frame()), zap.Error(err))
		return false
	}
	return true
}

// MarkDirty records that a resident page has been modified and must be written before it is reused.
func (bpm *BufferPoolManager) MarkDirty(page *pagemanager.Page) {
	page.SetDirty(true)
}

// FlushAll writes every dirty resident page and syncs the files. Pages stay resident.
func (bpm *BufferPoolManager) FlushAll(ctx context.Context) error {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()
	return bpm.cache.FlushAll(ctx)
}

// DropFile discards the resident pages of a file without writing them, closes it and
// removes it from disk.
func (bpm *BufferPoolManager) DropFile(ctx context.Context, id pagemanager.FileIdentity) error {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()

	released := bpm.cache.Release(id)
	for _, p := range released {
		if err := bpm.pool.Return(p); err != nil {
			return err
		}
	}
	if err := bpm.disk.CloseFile(id); err != nil {
		return err
	}
	path := bpm.disk.FilePath(id)
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: removing %s: %v", flushmanager.ErrIO, path, err)
	}
	bpm.logger.Debug("dropped page file", zap.Stringer("file", id), zap.Int("released", len(released)))
	return nil
}

// Close flushes every dirty page and closes the files.
func (bpm *BufferPoolManager) Close() error {
	ferr := bpm.FlushAll(context.Background())
	bpm.mu.Lock()
	defer bpm.mu.Unlock()
	if err := bpm.disk.Close(); err != nil && ferr == nil {
		ferr = err
	}
	return ferr
}

// Stats reports pool occupancy and counters.
func (bpm *BufferPoolManager) Stats() BufferStats {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()
	return BufferStats{
		Capacity:  bpm.pool.Capacity(),
		Free:      bpm.pool.Available(),
		Resident:  bpm.cache.Len(),
		Dirty:     bpm.cache.DirtyCount(),
		Hits:      bpm.hits,
		Misses:    bpm.misses,
		Evictions: bpm.cache.evictions,
		Flushes:   bpm.cache.pageWrites,
	}
}

// Disk returns the disk manager under the buffer.
func (bpm *BufferPoolManager) Disk() *flushmanager.DiskManager { return bpm.disk }
