package pagemanager

import (
	"encoding/binary"
	"fmt"
)

// --- Page Management ---

const (
	// PageSize is the fixed size of every on-disk and in-memory page.
	PageSize = 4096
	// HeaderSize is the size of the record page header (prev, next, record count).
	HeaderSize = 12
	// NoPage marks an absent link in a page header or a table chain head.
	NoPage int32 = -1
	// DefaultPoolSize is the number of pages pre-allocated by the page pool.
	DefaultPoolSize = 300

	prevOffset  = 0
	nextOffset  = 4
	countOffset = 8

	noFrame = -1
)

// FileKind distinguishes the record file of a table from an index file.
type FileKind uint8

const (
	KindRecord FileKind = iota
	KindIndex
)

func (k FileKind) String() string {
	switch k {
	case KindRecord:
		return "record"
	case KindIndex:
		return "index"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Ext returns the file name extension used on disk for this kind.
func (k FileKind) Ext() string {
	if k == KindIndex {
		return ".idx"
	}
	return ".rec"
}

// FileIdentity names one physical page file. For index files Table holds the index name.
type FileIdentity struct {
	Database string
	Table    string
	Kind     FileKind
}

func (f FileIdentity) String() string {
	return fmt.Sprintf("%s.%s(%s)", f.Database, f.Table, f.Kind)
}

// residence tracks which container currently owns a page.
type residence uint8

const (
	inNone residence = iota
	inPool
	inCache
)

// Page represents an in-memory copy of a disk page.
type Page struct {
	frame int // stable slot in the pool arena
	file  FileIdentity
	num   int32
	data  [PageSize]byte
	dirty bool
	stamp uint64 // recency clock value at the last touch

	// link is the frame index of the next page in whichever list currently owns this page:
	// the pool free list or a resident file chain, never both.
	link  int
	where residence
}

func newPage(frame int) *Page {
	return &Page{frame: frame, num: NoPage, link: noFrame}
}

func (p *Page) GetData() []byte          { return p.data[:] }
func (p *Page) GetPageNum() int32        { return p.num }
func (p *Page) File() FileIdentity       { return p.file }
func (p *Page) Frame() int               { return p.frame }
func (p *Page) IsDirty() bool            { return p.dirty }
func (p *Page) SetDirty(dirty bool)      { p.dirty = dirty }
func (p *Page) Stamp() uint64            { return p.stamp }
func (p *Page) SetStamp(stamp uint64)    { p.stamp = stamp }
func (p *Page) Link() int                { return p.link }
func (p *Page) SetLink(frame int)        { p.link = frame }
func (p *Page) IsResident() bool         { return p.where == inCache }
func (p *Page) InPool() bool             { return p.where == inPool }
func (p *Page) MarkResident()            { p.where = inCache }
func (p *Page) Owns(f FileIdentity) bool { return p.where == inCache && p.file == f }

// Bind attaches the page to a file identity and page number ahead of loading it.
func (p *Page) Bind(file FileIdentity, num int32) {
	p.file = file
	p.num = num
}

// Unbind severs the page from its file identity.
func (p *Page) Unbind() {
	p.file = FileIdentity{}
	p.num = NoPage
	p.where = inNone
	p.link = noFrame
}

// Reset clears metadata and zeroes the buffer.
func (p *Page) Reset() {
	p.Unbind()
	p.dirty = false
	p.stamp = 0
	clear(p.data[:])
}

// Int32At reads a native-endian int32 at off.
func (p *Page) Int32At(off int) int32 {
	return int32(binary.NativeEndian.Uint32(p.data[off : off+4]))
}

// PutInt32At writes a native-endian int32 at off.
func (p *Page) PutInt32At(off int, v int32) {
	binary.NativeEndian.PutUint32(p.data[off:off+4], uint32(v))
}

// byte index 0-3 previous page, 4-7 next page, 8-11 record count, 12 onwards records.

func (p *Page) PrevPage() int32        { return p.Int32At(prevOffset) }
func (p *Page) SetPrevPage(num int32)  { p.PutInt32At(prevOffset, num) }
func (p *Page) NextPage() int32        { return p.Int32At(nextOffset) }
func (p *Page) SetNextPage(num int32)  { p.PutInt32At(nextOffset, num) }
func (p *Page) RecordCount() int32     { return p.Int32At(countOffset) }
func (p *Page) SetRecordCount(n int32) { p.PutInt32At(countOffset, n) }
func (p *Page) Content() []byte        { return p.data[HeaderSize:] }

// InitChainHeader writes a fresh record page header.
func (p *Page) InitChainHeader(prev, next, count int32) {
	p.SetPrevPage(prev)
	p.SetNextPage(next)
	p.SetRecordCount(count)
}
