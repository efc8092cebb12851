package hashindex

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/cespare/xxhash/v2"
	"github.com/sushant-115/minidb/core/catalog"
	"github.com/sushant-115/minidb/core/indexmanager"
	"github.com/sushant-115/minidb/core/write_engine/memtable"
	pagemanager "github.com/sushant-115/minidb/core/write_engine/page_manager"
)

var (
	ErrKeyNotFound = errors.New("key not found in index")
	ErrKeyLength   = errors.New("key length does not match the indexed column")
)

// Index page layout: bytes 0-3 next overflow page (-1 = none), bytes 4-7 entry count,
// then entries of keyLen key bytes followed by a native-endian int32 location.
const (
	nextOffset    = 0
	countOffset   = 4
	entriesOffset = 8
)

// HashIndex is a static hash table over the index-kind page file of one index. Pages
// 0..Buckets-1 are the primary bucket pages; overflow pages are minted from the index's
// page counter in the catalog and chained from the bucket.
type HashIndex struct {
	name     string
	database string
	buckets  int32
	keyLen   int
	perPage  int
	file     pagemanager.FileIdentity
	buf      *memtable.BufferPoolManager
	cat      *catalog.Catalog
}

// Create initializes the bucket pages of a new index and opens it.
func Create(def catalog.IndexDef, buf *memtable.BufferPoolManager, cat *catalog.Catalog, database string) (*HashIndex, error) {
	h, err := open(def, buf, cat, database)
	if err != nil {
		return nil, err
	}
	ctx := context.Background()
	for b := int32(0); b < h.buckets; b++ {
		p, err := buf.Fetch(ctx, h.file, b)
		if err != nil {
			return nil, err
		}
		clear(p.GetData())
		p.PutInt32At(nextOffset, pagemanager.NoPage)
		p.PutInt32At(countOffset, 0)
		buf.MarkDirty(p)
	}
	if err := buf.FlushAll(ctx); err != nil {
		return nil, err
	}
	return h, nil
}

// Open binds an existing index. It has the indexmanager.Opener signature.
func Open(def catalog.IndexDef, buf *memtable.BufferPoolManager, cat *catalog.Catalog, database string) (indexmanager.Index, error) {
	return open(def, buf, cat, database)
}

func open(def catalog.IndexDef, buf *memtable.BufferPoolManager, cat *catalog.Catalog, database string) (*HashIndex, error) {
	ts, err := cat.Table(def.Table)
	if err != nil {
		return nil, err
	}
	col := ts.Column(def.Column)
	if col < 0 {
		return nil, fmt.Errorf("%w: %s.%s", catalog.ErrColumnNotFound, def.Table, def.Column)
	}
	if def.Buckets <= 0 {
		return nil, fmt.Errorf("index %s has no buckets", def.Name)
	}
	keyLen := ts.Fields[col].Size()
	return &HashIndex{
		name:     def.Name,
		database: database,
		buckets:  def.Buckets,
		keyLen:   keyLen,
		perPage:  (pagemanager.PageSize - entriesOffset) / (keyLen + 4),
		file:     pagemanager.FileIdentity{Database: database, Table: def.Name, Kind: pagemanager.KindIndex},
		buf:      buf,
		cat:      cat,
	}, nil
}

func (h *HashIndex) bucket(key []byte) int32 {
	return int32(xxhash.Sum64(key) % uint64(h.buckets))
}

func (h *HashIndex) entryOffset(i int) int { return entriesOffset + i*(h.keyLen+4) }

func (h *HashIndex) fetch(num int32) (*pagemanager.Page, error) {
	return h.buf.Fetch(context.Background(), h.file, num)
}

// find walks the bucket chain of key. It reports the page and slot holding key, or -1, -1.
func (h *HashIndex) find(key []byte) (int32, int, error) {
	for num := h.bucket(key); num != pagemanager.NoPage; {
		p, err := h.fetch(num)
		if err != nil {
			return 0, 0, err
		}
		data := p.GetData()
		count := int(p.Int32At(countOffset))
		for i := 0; i < count; i++ {
			off := h.entryOffset(i)
			if bytes.Equal(data[off:off+h.keyLen], key) {
				return num, i, nil
			}
		}
		num = p.Int32At(nextOffset)
	}
	return pagemanager.NoPage, -1, nil
}

func (h *HashIndex) checkKey(key []byte) error {
	if len(key) != h.keyLen {
		return fmt.Errorf("%w: got %d bytes, index %s wants %d", ErrKeyLength, len(key), h.name, h.keyLen)
	}
	return nil
}

func (h *HashIndex) Add(key []byte, loc int32) error {
	if err := h.checkKey(key); err != nil {
		return err
	}
	num, slot, err := h.find(key)
	if err != nil {
		return err
	}
	if slot >= 0 {
		p, err := h.fetch(num)
		if err != nil {
			return err
		}
		p.PutInt32At(h.entryOffset(slot)+h.keyLen, loc)
		h.buf.MarkDirty(p)
		return nil
	}

	// first page of the chain with room, else a new overflow page after the tail
	tail := pagemanager.NoPage
	for num := h.bucket(key); num != pagemanager.NoPage; {
		p, err := h.fetch(num)
		if err != nil {
			return err
		}
		if count := int(p.Int32At(countOffset)); count < h.perPage {
			h.put(p, count, key, loc)
			return nil
		}
		tail, num = num, p.Int32At(nextOffset)
	}

	def, _, err := h.cat.Index(h.name)
	if err != nil {
		return err
	}
	overflow := def.PageCount
	def.PageCount++
	if err := h.cat.Persist(); err != nil {
		return err
	}
	p, err := h.fetch(tail)
	if err != nil {
		return err
	}
	p.PutInt32At(nextOffset, overflow)
	h.buf.MarkDirty(p)

	p, err = h.fetch(overflow)
	if err != nil {
		return err
	}
	clear(p.GetData())
	p.PutInt32At(nextOffset, pagemanager.NoPage)
	h.put(p, 0, key, loc)
	return nil
}

func (h *HashIndex) put(p *pagemanager.Page, slot int, key []byte, loc int32) {
	off := h.entryOffset(slot)
	copy(p.GetData()[off:off+h.keyLen], key)
	p.PutInt32At(off+h.keyLen, loc)
	p.PutInt32At(countOffset, int32(slot+1))
	h.buf.MarkDirty(p)
}

// Remove deletes key, moving the page's last entry into its slot.
func (h *HashIndex) Remove(key []byte) error {
	if err := h.checkKey(key); err != nil {
		return err
	}
	num, slot, err := h.find(key)
	if err != nil {
		return err
	}
	if slot < 0 {
		return fmt.Errorf("%w: index %s", ErrKeyNotFound, h.name)
	}
	p, err := h.fetch(num)
	if err != nil {
		return err
	}
	data := p.GetData()
	last := int(p.Int32At(countOffset)) - 1
	if slot != last {
		from, to := h.entryOffset(last), h.entryOffset(slot)
		copy(data[to:to+h.keyLen+4], data[from:from+h.keyLen+4])
	}
	p.PutInt32At(countOffset, int32(last))
	h.buf.MarkDirty(p)
	return nil
}

func (h *HashIndex) GetVal(key []byte) (int32, error) {
	if err := h.checkKey(key); err != nil {
		return indexmanager.NotFound, err
	}
	num, slot, err := h.find(key)
	if err != nil || slot < 0 {
		return indexmanager.NotFound, err
	}
	p, err := h.fetch(num)
	if err != nil {
		return indexmanager.NotFound, err
	}
	return p.Int32At(h.entryOffset(slot) + h.keyLen), nil
}

// Print lists every non-empty bucket chain as page[key->page:slot ...].
func (h *HashIndex) Print(w io.Writer) error {
	fmt.Fprintf(w, "index %s: %d buckets, %d-byte keys, %d entries per page\n", h.name, h.buckets, h.keyLen, h.perPage)
	for b := int32(0); b < h.buckets; b++ {
		var line bytes.Buffer
		total := 0
		for num := b; num != pagemanager.NoPage; {
			p, err := h.fetch(num)
			if err != nil {
				return err
			}
			data := p.GetData()
			count := int(p.Int32At(countOffset))
			total += count
			fmt.Fprintf(&line, " page %d[", num)
			for i := 0; i < count; i++ {
				off := h.entryOffset(i)
				loc := p.Int32At(off + h.keyLen)
				if i > 0 {
					line.WriteByte(' ')
				}
				fmt.Fprintf(&line, "%x->%d:%d", bytes.TrimRight(data[off:off+h.keyLen], "\x00"), uint32(loc)>>16, loc&0xFFFF)
			}
			line.WriteByte(']')
			num = p.Int32At(nextOffset)
		}
		if total > 0 {
			if _, err := fmt.Fprintf(w, "bucket %d:%s\n", b, line.String()); err != nil {
				return err
			}
		}
	}
	return nil
}
