package flushmanager

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	pagemanager "github.com/sushant-115/minidb/core/write_engine/page_manager"
	"go.uber.org/zap"
)

// --- DiskManager ---

// DiskManager owns one file handle per FileIdentity and moves whole pages between those
// files and caller buffers. Page i of a file lives at bytes [i*PageSize, (i+1)*PageSize).
type DiskManager struct {
	dataDir string
	files   map[pagemanager.FileIdentity]*os.File
	order   []pagemanager.FileIdentity // open order, so Sync and Close are deterministic
	closed  bool
	logger  *zap.Logger
}

// NewDiskManager creates the data directory if needed.
func NewDiskManager(dataDir string, logger *zap.Logger) (*DiskManager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: creating data dir %s: %v", ErrIO, dataDir, err)
	}
	return &DiskManager{
		dataDir: dataDir,
		files:   make(map[pagemanager.FileIdentity]*os.File),
		logger:  logger.Named("disk_manager"),
	}, nil
}

func (dm *DiskManager) DataDir() string { return dm.dataDir }

// FilePath returns the on-disk location of a page file.
func (dm *DiskManager) FilePath(id pagemanager.FileIdentity) string {
	return filepath.Join(dm.dataDir, id.Database, id.Table+id.Kind.Ext())
}

func (dm *DiskManager) file(id pagemanager.FileIdentity) (*os.File, error) {
	if dm.closed {
		return nil, ErrDiskClosed
	}
	if f, ok := dm.files[id]; ok {
		return f, nil
	}
	path := dm.FilePath(id)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("%w: creating database dir for %s: %v", ErrIO, id, err)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %v", ErrIO, path, err)
	}
	dm.files[id] = f
	dm.order = append(dm.order, id)
	dm.logger.Debug("opened page file", zap.Stringer("file", id), zap.String("path", path))
	return f, nil
}

// ReadPage fills buf with page num of the file. Bytes past the end of the file read as zeros,
// which is how pages minted but never flushed look.
func (dm *DiskManager) ReadPage(id pagemanager.FileIdentity, num int32, buf []byte) error {
	if num < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidPageNum, num)
	}
	if len(buf) != pagemanager.PageSize {
		return fmt.Errorf("%w: buffer size %d != page size %d", ErrInvalidPageData, len(buf), pagemanager.PageSize)
	}
	f, err := dm.file(id)
	if err != nil {
		return err
	}
	offset := int64(num) * pagemanager.PageSize
	n, err := f.ReadAt(buf, offset)
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: reading page %d of %s at offset %d: %v", ErrIO, num, id, offset, err)
	}
	clear(buf[n:])
	return nil
}

// WritePage writes buf as page num of the file. It does not sync.
func (dm *DiskManager) WritePage(id pagemanager.FileIdentity, num int32, buf []byte) error {
	if num < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidPageNum, num)
	}
	if len(buf) != pagemanager.PageSize {
		return fmt.Errorf("%w: buffer size %d != page size %d", ErrInvalidPageData, len(buf), pagemanager.PageSize)
	}
	f, err := dm.file(id)
	if err != nil {
		return err
	}
	offset := int64(num) * pagemanager.PageSize
	if _, err := f.WriteAt(buf, offset); err != nil {
		return fmt.Errorf("%w: writing page %d of %s at offset %d: %v", ErrIO, num, id, offset, err)
	}
	return nil
}

// NumPages reports how many whole pages the file currently holds on disk.
func (dm *DiskManager) NumPages(id pagemanager.FileIdentity) (int64, error) {
	f, err := dm.file(id)
	if err != nil {
		return 0, err
	}
	fi, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("%w: stat %s: %v", ErrIO, id, err)
	}
	return fi.Size() / pagemanager.PageSize, nil
}

// Sync flushes every open file to stable storage.
func (dm *DiskManager) Sync() error {
	for _, id := range dm.order {
		if err := dm.files[id].Sync(); err != nil {
			return fmt.Errorf("%w: syncing %s: %v", ErrIO, id, err)
		}
	}
	return nil
}

// CloseFile syncs and closes one file handle; the next access reopens it.
func (dm *DiskManager) CloseFile(id pagemanager.FileIdentity) error {
	f, ok := dm.files[id]
	if !ok {
		return nil
	}
	delete(dm.files, id)
	for i, o := range dm.order {
		if o == id {
			dm.order = append(dm.order[:i], dm.order[i+1:]...)
			break
		}
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("%w: syncing %s: %v", ErrIO, id, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: closing %s: %v", ErrIO, id, err)
	}
	return nil
}

// Close syncs and closes every open file. It returns the first error encountered.
func (dm *DiskManager) Close() error {
	if dm.closed {
		return nil
	}
	var firstErr error
	for _, id := range append([]pagemanager.FileIdentity(nil), dm.order...) {
		if err := dm.CloseFile(id); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	dm.closed = true
	return firstErr
}
