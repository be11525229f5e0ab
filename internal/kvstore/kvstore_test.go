package kvstore

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/replistore/crdb/pkg/rconfig"
)

func TestValidateConfig(t *testing.T) {
	t.Run("NilConfig", func(t *testing.T) {
		assert.Error(t, ValidateConfig(nil))
	})

	t.Run("LocalMissingPath", func(t *testing.T) {
		assert.Error(t, ValidateConfig(&rconfig.KVStoreConfig{Type: "local"}))
	})

	t.Run("LocalValid", func(t *testing.T) {
		assert.NoError(t, ValidateConfig(&rconfig.KVStoreConfig{Type: "local", LocalPath: "./data"}))
	})

	t.Run("GormMissingDSN", func(t *testing.T) {
		assert.Error(t, ValidateConfig(&rconfig.KVStoreConfig{Type: "gorm", Driver: "sqlite"}))
	})

	t.Run("GormUnsupportedDriver", func(t *testing.T) {
		assert.Error(t, ValidateConfig(&rconfig.KVStoreConfig{Type: "gorm", Driver: "oracle", DSN: "x"}))
	})

	t.Run("CosMissingCredentials", func(t *testing.T) {
		assert.Error(t, ValidateConfig(&rconfig.KVStoreConfig{Type: "cos", Bucket: "b", Region: "r"}))
	})

	t.Run("UnknownType", func(t *testing.T) {
		assert.Error(t, ValidateConfig(&rconfig.KVStoreConfig{Type: "ftp"}))
	})
}

func TestNew_UnknownBackend(t *testing.T) {
	_, err := New(&rconfig.KVStoreConfig{Type: "ftp"})
	assert.Error(t, err)
}
