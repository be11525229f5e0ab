package kvstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// LocalStore implements Store against the local filesystem, one file per
// blob, rooted under basePath.
type LocalStore struct {
	basePath string
}

// NewLocalStore creates a LocalStore rooted at basePath, creating the
// directory if it doesn't exist yet.
func NewLocalStore(basePath string) (*LocalStore, error) {
	if basePath == "" {
		basePath = "./data/repos"
	}
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("kvstore: create local store directory: %w", err)
	}
	return &LocalStore{basePath: basePath}, nil
}

func (s *LocalStore) path(namespace, key string) string {
	return filepath.Join(s.basePath, filepath.FromSlash(blobKey(namespace, key)))
}

// Save writes data to the file backing (namespace, key), creating parent
// directories as needed.
func (s *LocalStore) Save(ctx context.Context, namespace, key string, data []byte) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	full := s.path(namespace, key)
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return fmt.Errorf("kvstore: create directory: %w", err)
	}
	if err := os.WriteFile(full, data, 0644); err != nil {
		return fmt.Errorf("kvstore: write blob: %w", err)
	}
	return nil
}

// Load reads the blob at (namespace, key).
func (s *LocalStore) Load(ctx context.Context, namespace, key string) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	data, err := os.ReadFile(s.path(namespace, key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("kvstore: blob not found: %s/%s", namespace, key)
		}
		return nil, fmt.Errorf("kvstore: read blob: %w", err)
	}
	return data, nil
}

// Delete removes the blob at (namespace, key). A missing blob is not an
// error.
func (s *LocalStore) Delete(ctx context.Context, namespace, key string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if err := os.Remove(s.path(namespace, key)); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("kvstore: delete blob: %w", err)
	}
	return nil
}

// Exists reports whether the blob at (namespace, key) is present.
func (s *LocalStore) Exists(ctx context.Context, namespace, key string) (bool, error) {
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	default:
	}

	_, err := os.Stat(s.path(namespace, key))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("kvstore: stat blob: %w", err)
	}
	return true, nil
}
