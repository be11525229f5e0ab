package kvstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/plugin/opentelemetry/tracing"
)

// blobRecord is the row backing one (namespace, key) blob in the kv_blobs
// table.
type blobRecord struct {
	Namespace string `gorm:"primaryKey;column:namespace"`
	Key       string `gorm:"primaryKey;column:key"`
	Data      []byte `gorm:"column:data"`
	UpdatedAt time.Time
}

func (blobRecord) TableName() string {
	return "kv_blobs"
}

// GormConfig selects the SQL driver and connection string for GormStore.
type GormConfig struct {
	Driver string // mysql, postgres, or sqlite
	DSN    string
}

// GormStore implements Store against a SQL table, one row per blob, row
// locked with FOR UPDATE across the read-modify-write of Save the way the
// teacher's task repository locks a row before updating it.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens cfg.DSN with the given driver and migrates the
// kv_blobs table.
func NewGormStore(cfg GormConfig) (*GormStore, error) {
	dialector, err := dialectorFor(cfg)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("kvstore: open gorm database: %w", err)
	}

	if err := db.Use(tracing.NewPlugin()); err != nil {
		return nil, fmt.Errorf("kvstore: install tracing plugin: %w", err)
	}

	if err := db.AutoMigrate(&blobRecord{}); err != nil {
		return nil, fmt.Errorf("kvstore: migrate kv_blobs table: %w", err)
	}

	return &GormStore{db: db}, nil
}

// newGormStoreFromDB wraps an already-open *gorm.DB, used by tests to point
// GormStore at a sqlmock-backed connection without a real driver DSN.
func newGormStoreFromDB(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func dialectorFor(cfg GormConfig) (gorm.Dialector, error) {
	switch cfg.Driver {
	case "mysql":
		return mysql.Open(cfg.DSN), nil
	case "postgres":
		return postgres.Open(cfg.DSN), nil
	case "sqlite", "":
		return sqlite.Open(cfg.DSN), nil
	default:
		return nil, fmt.Errorf("kvstore: unsupported gorm driver: %s", cfg.Driver)
	}
}

// Save upserts the blob at (namespace, key) inside a transaction: a locked
// read decides whether to insert or update, mirroring the teacher's
// lock-then-update pattern rather than relying on a driver-specific
// upsert clause.
func (s *GormStore) Save(ctx context.Context, namespace, key string, data []byte) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing blobRecord
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("namespace = ? AND key = ?", namespace, key).
			First(&existing).Error

		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			record := &blobRecord{Namespace: namespace, Key: key, Data: data, UpdatedAt: time.Now()}
			if err := tx.Create(record).Error; err != nil {
				return fmt.Errorf("kvstore: insert blob: %w", err)
			}
			return nil
		case err != nil:
			return fmt.Errorf("kvstore: lock blob row: %w", err)
		default:
			res := tx.Model(&blobRecord{}).
				Where("namespace = ? AND key = ?", namespace, key).
				Updates(map[string]interface{}{"data": data, "updated_at": time.Now()})
			if res.Error != nil {
				return fmt.Errorf("kvstore: update blob: %w", res.Error)
			}
			return nil
		}
	})
}

// Load reads the blob at (namespace, key).
func (s *GormStore) Load(ctx context.Context, namespace, key string) ([]byte, error) {
	var record blobRecord
	err := s.db.WithContext(ctx).Where("namespace = ? AND key = ?", namespace, key).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("kvstore: blob not found: %s/%s", namespace, key)
		}
		return nil, fmt.Errorf("kvstore: query blob: %w", err)
	}
	return record.Data, nil
}

// Delete removes the blob at (namespace, key). A missing row is not an
// error.
func (s *GormStore) Delete(ctx context.Context, namespace, key string) error {
	err := s.db.WithContext(ctx).
		Where("namespace = ? AND key = ?", namespace, key).
		Delete(&blobRecord{}).Error
	if err != nil {
		return fmt.Errorf("kvstore: delete blob: %w", err)
	}
	return nil
}

// Exists reports whether a row is present at (namespace, key).
func (s *GormStore) Exists(ctx context.Context, namespace, key string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&blobRecord{}).
		Where("namespace = ? AND key = ?", namespace, key).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("kvstore: count blob rows: %w", err)
	}
	return count > 0, nil
}
