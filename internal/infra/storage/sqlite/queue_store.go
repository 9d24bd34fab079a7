package sqlite

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/vietddude/resilience/internal/core/domain"
	"github.com/vietddude/resilience/internal/infra/storage"
	"github.com/vietddude/resilience/internal/metrics"
)

// Config holds the on-device database settings.
type Config struct {
	Path string `yaml:"path"`
}

// KVEntry is one row of the key/value table.
type KVEntry struct {
	Key       string `gorm:"primaryKey;size:255"`
	Value     string `gorm:"type:text;not null"`
	UpdatedAt time.Time
}

func (KVEntry) TableName() string {
	return "kv_store"
}

// Open opens (creating if needed) the SQLite database and migrates it.
func Open(cfg Config) (*gorm.DB, error) {
	path := cfg.Path
	if path == "" {
		path = "resilience.db"
	}

	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	logLevel := logger.Error
	if os.Getenv("DB_DEBUG") == "true" {
		logLevel = logger.Info
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	if err := db.AutoMigrate(&KVEntry{}); err != nil {
		_ = Close(db)
		return nil, fmt.Errorf("failed to migrate sqlite database: %w", err)
	}
	return db, nil
}

// Close closes the underlying connection.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// QueueStore implements storage.SyncQueueStore on SQLite through GORM.
type QueueStore struct {
	db  *gorm.DB
	key string
}

// NewQueueStore creates a SQLite-backed queue store under key.
func NewQueueStore(db *gorm.DB, key string) *QueueStore {
	if key == "" {
		key = storage.DefaultQueueKey
	}
	return &QueueStore{db: db, key: key}
}

func (s *QueueStore) Load(ctx context.Context) (*domain.SyncQueue, error) {
	start := time.Now()
	defer func() {
		metrics.QueueStoreLatency.WithLabelValues("load").Observe(time.Since(start).Seconds())
	}()

	var entry KVEntry
	res := s.db.WithContext(ctx).Where(&KVEntry{Key: s.key}).Limit(1).Find(&entry)
	if res.Error != nil {
		return nil, fmt.Errorf("failed to load sync queue: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return storage.DecodeQueue(nil)
	}
	return storage.DecodeQueue([]byte(entry.Value))
}

func (s *QueueStore) Save(ctx context.Context, q *domain.SyncQueue) error {
	start := time.Now()
	defer func() {
		metrics.QueueStoreLatency.WithLabelValues("save").Observe(time.Since(start).Seconds())
	}()

	data, err := storage.EncodeQueue(q)
	if err != nil {
		return err
	}
	entry := KVEntry{Key: s.key, Value: string(data), UpdatedAt: time.Now()}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&entry).Error
	if err != nil {
		return fmt.Errorf("failed to save sync queue: %w", err)
	}
	return nil
}
