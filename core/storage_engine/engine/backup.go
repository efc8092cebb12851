package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sushant-115/minidb/core/catalog"
	"github.com/sushant-115/minidb/core/storage_engine/common"
	pagemanager "github.com/sushant-115/minidb/core/write_engine/page_manager"
	"go.uber.org/zap"
)

// BackupFile is one copied file. SHA256 is empty when backups are not verified.
type BackupFile struct {
	Name   string
	Bytes  int64
	SHA256 string
}

type BackupInfo struct {
	ID       string
	Database string
	Dir      string
	Files    []BackupFile
	Took     time.Duration
}

// Bytes is the total size of the backup.
func (b BackupInfo) Bytes() int64 {
	var n int64
	for _, f := range b.Files {
		n += f.Bytes
	}
	return n
}

func backupFile(name string) bool {
	switch filepath.Ext(name) {
	case pagemanager.KindRecord.Ext(), pagemanager.KindIndex.Ext():
		return true
	}
	return name == catalog.FileName
}

// Backup flushes the buffer and copies the catalog and every page file of the selected
// database into a fresh <backup_dir>/<database>-<uuid> directory.
func (e *Engine) Backup(ctx context.Context) (BackupInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.check(); err != nil {
		return BackupInfo{}, err
	}

	start := time.Now()
	if err := e.buf.FlushAll(ctx); err != nil {
		return BackupInfo{}, err
	}
	if err := e.disk.Sync(); err != nil {
		return BackupInfo{}, err
	}

	info := BackupInfo{ID: uuid.NewString(), Database: e.cat.Database()}
	info.Dir = filepath.Join(e.cfg.BackupDir, info.Database+"-"+info.ID)
	if err := os.MkdirAll(info.Dir, 0o755); err != nil {
		return BackupInfo{}, fmt.Errorf("failed to create backup dir %s: %w", info.Dir, err)
	}

	entries, err := os.ReadDir(e.cat.Dir())
	if err != nil {
		return BackupInfo{}, fmt.Errorf("failed to list %s: %w", e.cat.Dir(), err)
	}
	names := make([]string, 0, len(entries))
	for _, ent := range entries {
		if ent.Type().IsRegular() && backupFile(ent.Name()) {
			names = append(names, ent.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		res, err := common.CopyThrottled(ctx,
			filepath.Join(e.cat.Dir(), name),
			filepath.Join(info.Dir, name),
			e.cfg.BackupRateBytesPerSec,
			e.cfg.VerifyBackups,
		)
		if err != nil {
			e.logger.Error("backup copy failed", zap.String("backup_id", info.ID), zap.String("file", name), zap.Error(err))
			return info, fmt.Errorf("failed to back up %s: %w", name, err)
		}
		info.Files = append(info.Files, BackupFile{Name: name, Bytes: res.Bytes, SHA256: res.SHA256})
	}
	info.Took = time.Since(start)

	e.logger.Info("backup finished",
		zap.String("backup_id", info.ID),
		zap.String("database", info.Database),
		zap.String("dir", info.Dir),
		zap.Int("files", len(info.Files)),
		zap.Int64("bytes", info.Bytes()),
		zap.Duration("took", info.Took),
	)
	return info, nil
}
