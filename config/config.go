// Package config loads the minidb configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"os"

	pagemanager "github.com/sushant-115/minidb/core/write_engine/page_manager"
	"github.com/sushant-115/minidb/pkg/logger"
	"github.com/sushant-115/minidb/pkg/telemetry"
	"gopkg.in/yaml.v3"
)

var ErrInvalidConfig = errors.New("invalid configuration")

// StorageConfig places the data files and sizes the page buffer.
type StorageConfig struct {
	// DataDir holds one directory per database.
	DataDir string `yaml:"data_dir"`
	// PoolSize is the number of 4096-byte pages in the buffer.
	PoolSize int `yaml:"pool_size"`
	// IndexBuckets is the number of primary bucket pages a new index gets.
	IndexBuckets int32 `yaml:"index_buckets"`
	// BackupDir receives one directory per backup.
	BackupDir string `yaml:"backup_dir"`
	// BackupRateBytesPerSec throttles backup copies; 0 means unlimited.
	BackupRateBytesPerSec int64 `yaml:"backup_rate_bytes_per_sec"`
	// VerifyBackups re-reads every copied file and compares checksums.
	VerifyBackups bool `yaml:"verify_backups"`
}

type Config struct {
	Storage   StorageConfig    `yaml:"storage"`
	Logger    logger.Config    `yaml:"logger"`
	Telemetry telemetry.Config `yaml:"telemetry"`
}

// Default returns a configuration that works out of the box in ./data.
func Default() Config {
	return Config{
		Storage: StorageConfig{
			DataDir:       "data",
			PoolSize:      pagemanager.DefaultPoolSize,
			IndexBuckets:  64,
			BackupDir:     "backups",
			VerifyBackups: true,
		},
		Logger: logger.DefaultConfig(),
		Telemetry: telemetry.Config{
			ServiceName:      "minidb",
			PrometheusPort:   9464,
			TraceSampleRatio: 1.0,
		},
	}
}

// Load reads a YAML file over the defaults, so a file only needs the keys it changes.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if c.Storage.DataDir == "" {
		return fmt.Errorf("%w: storage.data_dir is empty", ErrInvalidConfig)
	}
	if c.Storage.PoolSize <= 0 {
		return fmt.Errorf("%w: storage.pool_size must be positive, got %d", ErrInvalidConfig, c.Storage.PoolSize)
	}
	if c.Storage.IndexBuckets <= 0 {
		return fmt.Errorf("%w: storage.index_buckets must be positive, got %d", ErrInvalidConfig, c.Storage.IndexBuckets)
	}
	if c.Storage.BackupRateBytesPerSec < 0 {
		return fmt.Errorf("%w: storage.backup_rate_bytes_per_sec is negative", ErrInvalidConfig)
	}
	return nil
}
