package memtable

import (
	"context"
	"fmt"

	flushmanager "github.com/sushant-115/minidb/core/write_engine/flush_manager"
	pagemanager "github.com/sushant-115/minidb/core/write_engine/page_manager"
	internaltelemetry "github.com/sushant-115/minidb/internal/telemetry"
	"go.uber.org/zap"
)

const noFrame = -1

// residentFile is one File Identity and the chain of its pages currently in memory.
type residentFile struct {
	id    pagemanager.FileIdentity
	head  int           // first frame of the chain, linked through Page.Link
	pages map[int32]int // page number -> frame
}

// ResidentCache maps (file identity, page number) to resident pages, keeps the global
// recency clock and decides which page to give up when the pool is empty.
//
// Age is kept as clock - stamp: Tick advances the clock, which ages every resident page by
// one at once, and touching a page restamps it with the current clock.
type ResidentCache struct {
	frames  *pagemanager.PagePool // arena the frame indices refer to
	disk    *flushmanager.DiskManager
	files   map[pagemanager.FileIdentity]*residentFile
	order   []*residentFile // registration order; eviction ties resolve along it
	clock   uint64
	count   int
	logger  *zap.Logger
	metrics *internaltelemetry.BufferMetrics

	evictions  uint64
	pageWrites uint64
}

// NewResidentCache creates an empty cache over the frames of pool.
func NewResidentCache(pool *pagemanager.PagePool, disk *flushmanager.DiskManager, logger *zap.Logger, metrics *internaltelemetry.BufferMetrics) *ResidentCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = internaltelemetry.NoopBufferMetrics()
	}
	return &ResidentCache{
		frames:  pool,
		disk:    disk,
		files:   make(map[pagemanager.FileIdentity]*residentFile),
		logger:  logger.Named("resident_cache"),
		metrics: metrics,
	}
}

// Lookup returns the resident page for (id, num). It never allocates.
func (rc *ResidentCache) Lookup(id pagemanager.FileIdentity, num int32) (*pagemanager.Page, bool) {
	rf, ok := rc.files[id]
	if !ok {
		return nil, false
	}
	frame, ok := rf.pages[num]
	if !ok {
		return nil, false
	}
	return rc.frames.Frame(frame), true
}

// Tick ages every resident page by one.
func (rc *ResidentCache) Tick() { rc.clock++ }

// Touch resets the age of a resident page to zero.
func (rc *ResidentCache) Touch(p *pagemanager.Page) { p.SetStamp(rc.clock) }

// Age returns how many ticks have passed since the page was registered or last touched.
func (rc *ResidentCache) Age(p *pagemanager.Page) uint64 { return rc.clock - p.Stamp() }

// Register links a page, already bound and loaded, into its file's resident chain with age zero.
func (rc *ResidentCache) Register(p *pagemanager.Page) error {
	id, num := p.File(), p.GetPageNum()
	if num < 0 {
		return fmt.Errorf("%w: registering unbound page %d", flushmanager.ErrInvalidPageNum, num)
	}
	if p.IsResident() || p.InPool() {
		return fmt.Errorf("frame %d is already owned by a container", p.Frame())
	}
	rf, ok := rc.files[id]
	if !ok {
		rf = &residentFile{id: id, head: noFrame, pages: make(map[int32]int)}
		rc.files[id] = rf
		rc.order = append(rc.order, rf)
	}
	if _, dup := rf.pages[num]; dup {
		return fmt.Errorf("page %d of %s is already resident", num, id)
	}
	p.SetLink(rf.head)
	rf.head = p.Frame()
	rf.pages[num] = p.Frame()
	p.MarkResident()
	p.SetStamp(rc.clock)
	rc.count++
	return nil
}

// EvictOldest picks the resident page with the greatest age, writes it back if it is dirty,
// unbinds it and hands it back for reuse. A dirty page is never unbound before its bytes
// reach the disk; if that write fails the page stays resident and the error is returned.
func (rc *ResidentCache) EvictOldest(ctx context.Context) (*pagemanager.Page, error) {
	var (
		victim     *pagemanager.Page
		victimFile *residentFile
		victimPrev = noFrame
		maxAge     uint64
	)
	for _, rf := range rc.order {
		prev := noFrame
		for f := rf.head; f != noFrame; {
			p := rc.frames.Frame(f)
			if age := rc.Age(p); victim == nil || age > maxAge {
				victim, victimFile, victimPrev, maxAge = p, rf, prev, age
			}
			prev, f = f, p.Link()
		}
	}
	if victim == nil {
		return nil, flushmanager.ErrPoolExhausted
	}

	if victim.IsDirty() {
		rc.logger.Debug("flushing dirty victim page",
			zap.Stringer("file", victimFile.id), zap.Int32("page", victim.GetPageNum()), zap.Int("frame", victim.Frame()))
		if err := rc.writeBack(ctx, victim); err != nil {
			return nil, fmt.Errorf("failed to flush dirty victim page %d of %s: %w", victim.GetPageNum(), victimFile.id, err)
		}
	}

	rc.unlink(victimFile, victim, victimPrev)
	rc.evictions++
	rc.metrics.EvictionsCounter.Add(ctx, 1)
	rc.logger.Debug("evicted page", zap.Int("frame", victim.Frame()), zap.Uint64("age", maxAge))
	victim.Unbind()
	return victim, nil
}

func (rc *ResidentCache) unlink(rf *residentFile, p *pagemanager.Page, prev int) {
	if prev == noFrame {
		rf.head = p.Link()
	} else {
		rc.frames.Frame(prev).SetLink(p.Link())
	}
	delete(rf.pages, p.GetPageNum())
	rc.count--
}

func (rc *ResidentCache) writeBack(ctx context.Context, p *pagemanager.Page) error {
	if err := rc.disk.WritePage(p.File(), p.GetPageNum(), p.GetData()); err != nil {
		return err
	}
	p.SetDirty(false)
	rc.pageWrites++
	rc.metrics.PageWritesCounter.Add(ctx, 1)
	return nil
}

// FlushAll writes every dirty resident page to disk and syncs the files. Nothing is evicted.
// A failed write leaves that page dirty; the first error is returned after trying the rest.
func (rc *ResidentCache) FlushAll(ctx context.Context) error {
	var firstErr error
	flushed := 0
	for _, rf := range rc.order {
		for f := rf.head; f != noFrame; {
			p := rc.frames.Frame(f)
			if p.IsDirty() {
				if err := rc.writeBack(ctx, p); err != nil {
					rc.logger.Error("failed to flush page", zap.Stringer("file", rf.id), zap.Int32("page", p.GetPageNum()), zap.Error(err))
					if firstErr == nil {
						firstErr = err
					}
				} else {
					flushed++
				}
			}
			f = p.Link()
		}
	}
	if err := rc.disk.Sync(); err != nil && firstErr == nil {
		firstErr = err
	}
	if flushed > 0 {
		rc.logger.Debug("flushed dirty pages", zap.Int("count", flushed))
	}
	return firstErr
}

// Release unbinds every resident page of a file without writing it and returns them.
func (rc *ResidentCache) Release(id pagemanager.FileIdentity) []*pagemanager.Page {
	rf, ok := rc.files[id]
	if !ok {
		return nil
	}
	var out []*pagemanager.Page
	for f := rf.head; f != noFrame; {
		p := rc.frames.Frame(f)
		f = p.Link()
		p.SetDirty(false)
		p.Unbind()
		out = append(out, p)
	}
	rc.count -= len(out)
	delete(rc.files, id)
	for i, o := range rc.order {
		if o == rf {
			rc.order = append(rc.order[:i], rc.order[i+1:]...)
			break
		}
	}
	return out
}

// Len returns the number of resident pages.
func (rc *ResidentCache) Len() int { return rc.count }

// DirtyCount returns the number of resident pages waiting to be written.
func (rc *ResidentCache) DirtyCount() int {
	n := 0
	for _, rf := range rc.order {
		for f := rf.head; f != noFrame; f = rc.frames.Frame(f).Link() {
			if rc.frames.Frame(f).IsDirty() {
				n++
			}
		}
	}
	return n
}

// Files lists the identities that have, or had, resident pages, in registration order.
func (rc *ResidentCache) Files() []pagemanager.FileIdentity {
	out := make([]pagemanager.FileIdentity, 0, len(rc.order))
	for _, rf := range rc.order {
		out = append(out, rf.id)
	}
	return out
}
