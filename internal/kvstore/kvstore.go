// Package kvstore provides the blob storage abstraction a coordinator uses
// to persist repository snapshots: one opaque blob per (namespace, key).
// internal/persistence stores every snapshot under the "repo" namespace,
// keyed by the RepoId's string form followed by "/snapshot".
package kvstore

import (
	"context"
	"fmt"

	"github.com/replistore/crdb/pkg/rconfig"
)

// Store defines the interface for blob storage operations a repository
// snapshot is persisted through.
type Store interface {
	// Save writes data under (namespace, key), replacing any prior value.
	Save(ctx context.Context, namespace, key string, data []byte) error

	// Load reads the blob at (namespace, key).
	Load(ctx context.Context, namespace, key string) ([]byte, error)

	// Delete removes the blob at (namespace, key). Deleting an already
	// absent blob is not an error.
	Delete(ctx context.Context, namespace, key string) error

	// Exists reports whether a blob is present at (namespace, key).
	Exists(ctx context.Context, namespace, key string) (bool, error)
}

// BackendType names one of the supported Store implementations.
type BackendType string

const (
	BackendLocal BackendType = "local"
	BackendGorm  BackendType = "gorm"
	BackendCOS   BackendType = "cos"
)

// New constructs a Store from cfg, choosing the backend the way the
// coordinator's configuration names it.
func New(cfg *rconfig.KVStoreConfig) (Store, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}

	switch BackendType(cfg.Type) {
	case BackendLocal, "":
		return NewLocalStore(cfg.LocalPath)
	case BackendGorm:
		return NewGormStore(GormConfig{Driver: cfg.Driver, DSN: cfg.DSN})
	case BackendCOS:
		return NewCOSStore(COSConfig{
			Bucket:    cfg.Bucket,
			Region:    cfg.Region,
			SecretID:  cfg.SecretID,
			SecretKey: cfg.SecretKey,
			Domain:    cfg.Domain,
			Scheme:    cfg.Scheme,
		})
	default:
		return nil, fmt.Errorf("kvstore: unsupported backend type: %s", cfg.Type)
	}
}

// ValidateConfig checks that cfg carries the fields its chosen backend
// requires, without constructing the backend itself.
func ValidateConfig(cfg *rconfig.KVStoreConfig) error {
	if cfg == nil {
		return fmt.Errorf("kvstore: config is nil")
	}

	backend := BackendType(cfg.Type)
	if backend == "" {
		backend = BackendLocal
	}

	switch backend {
	case BackendLocal:
		if cfg.LocalPath == "" {
			return fmt.Errorf("kvstore: local_path is required for the local backend")
		}
	case BackendGorm:
		if cfg.DSN == "" {
			return fmt.Errorf("kvstore: dsn is required for the gorm backend")
		}
		switch cfg.Driver {
		case "mysql", "postgres", "sqlite", "":
		default:
			return fmt.Errorf("kvstore: unsupported gorm driver: %s", cfg.Driver)
		}
	case BackendCOS:
		if cfg.Bucket == "" {
			return fmt.Errorf("kvstore: bucket is required for the cos backend")
		}
		if cfg.Region == "" {
			return fmt.Errorf("kvstore: region is required for the cos backend")
		}
		if cfg.SecretID == "" || cfg.SecretKey == "" {
			return fmt.Errorf("kvstore: credentials are required for the cos backend")
		}
	default:
		return fmt.Errorf("kvstore: unsupported backend type: %s", cfg.Type)
	}

	return nil
}

// blobKey joins namespace and key into one path-safe identifier, used by
// backends whose natural addressing is a single string (local paths, COS
// object keys).
func blobKey(namespace, key string) string {
	return namespace + "/" + key
}
