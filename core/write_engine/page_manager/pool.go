package pagemanager

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidPoolSize = errors.New("page pool capacity must be positive")
	ErrForeignPage     = errors.New("page does not belong to this pool")
	ErrPageInPool      = errors.New("page is already in the pool")
)

// PagePool is a bounded allocator over a fixed arena of pages. All page buffers are
// allocated once in NewPagePool; Take and Return only move pages in and out of the
// free list. It never evicts: when it is empty the caller must evict from the resident cache.
type PagePool struct {
	frames    []*Page // arena, indexed by frame
	head      int     // first free frame, or noFrame
	available int
}

// NewPagePool allocates capacity pages and threads them all into the free list.
func NewPagePool(capacity int) (*PagePool, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPoolSize, capacity)
	}
	pp := &PagePool{
		frames: make([]*Page, capacity),
		head:   noFrame,
	}
	for i := capacity - 1; i >= 0; i-- {
		p := newPage(i)
		pp.frames[i] = p
		pp.push(p)
	}
	return pp, nil
}

// Take pops one page from the free list. ok is false when the pool is exhausted.
func (pp *PagePool) Take() (*Page, bool) {
	if pp.available == 0 {
		return nil, false
	}
	p := pp.frames[pp.head]
	pp.head = p.link
	pp.available--
	p.link = noFrame
	p.where = inNone
	p.stamp = 0
	return p, true
}

// Return resets the page's recency, severs its bindings and puts it back in the free list.
func (pp *PagePool) Return(p *Page) error {
	if p == nil || p.frame < 0 || p.frame >= len(pp.frames) || pp.frames[p.frame] != p {
		return ErrForeignPage
	}
	if p.where == inPool {
		return fmt.Errorf("%w: frame %d", ErrPageInPool, p.frame)
	}
	p.Unbind()
	p.dirty = false
	p.stamp = 0
	pp.push(p)
	return nil
}

func (pp *PagePool) push(p *Page) {
	p.link = pp.head
	p.where = inPool
	pp.head = p.frame
	pp.available++
}

// Available returns the number of pages currently held by the pool.
func (pp *PagePool) Available() int { return pp.available }

// Capacity returns the fixed number of pages owned by the pool arena.
func (pp *PagePool) Capacity() int { return len(pp.frames) }

// Frame returns the arena page at index i, wherever it currently lives.
func (pp *PagePool) Frame(i int) *Page { return pp.frames[i] }

// FreeLen walks the free list and counts its pages. It always agrees with Available.
func (pp *PagePool) FreeLen() int {
	n := 0
	for f := pp.head; f != noFrame; f = pp.frames[f].link {
		n++
	}
	return n
}
