package kvstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewCOSStore_Validation(t *testing.T) {
	t.Run("MissingBucket", func(t *testing.T) {
		store, err := NewCOSStore(COSConfig{
			Region:    "ap-guangzhou",
			SecretID:  "id",
			SecretKey: "key",
		})
		assert.Error(t, err)
		assert.Nil(t, store)
		assert.Contains(t, err.Error(), "bucket and region")
	})

	t.Run("MissingCredentials", func(t *testing.T) {
		store, err := NewCOSStore(COSConfig{
			Bucket: "bucket",
			Region: "ap-guangzhou",
		})
		assert.Error(t, err)
		assert.Nil(t, store)
		assert.Contains(t, err.Error(), "credentials")
	})

	t.Run("ValidConfig", func(t *testing.T) {
		store, err := NewCOSStore(COSConfig{
			Bucket:    "bucket",
			Region:    "ap-guangzhou",
			SecretID:  "id",
			SecretKey: "key",
		})
		assert.NoError(t, err)
		assert.NotNil(t, store)
	})
}
