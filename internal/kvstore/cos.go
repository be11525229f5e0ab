package kvstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/tencentyun/cos-go-sdk-v5"
)

// COSConfig holds Tencent Cloud COS connection settings.
type COSConfig struct {
	Bucket    string
	Region    string
	SecretID  string
	SecretKey string
	Domain    string // e.g. "myqcloud.com"
	Scheme    string // e.g. "https"
}

// COSStore implements Store against a Tencent Cloud COS bucket, addressing
// blobs by the joined namespace/key object path.
type COSStore struct {
	client *cos.Client
}

// NewCOSStore builds a COSStore from cfg.
func NewCOSStore(cfg COSConfig) (*COSStore, error) {
	if cfg.Bucket == "" || cfg.Region == "" {
		return nil, fmt.Errorf("kvstore: bucket and region are required for the cos backend")
	}
	if cfg.SecretID == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("kvstore: credentials are required for the cos backend")
	}

	domain := cfg.Domain
	if domain == "" {
		domain = "myqcloud.com"
	}
	scheme := cfg.Scheme
	if scheme == "" {
		scheme = "https"
	}

	bucketURL, err := url.Parse(fmt.Sprintf("%s://%s.cos.%s.%s", scheme, cfg.Bucket, cfg.Region, domain))
	if err != nil {
		return nil, fmt.Errorf("kvstore: parse bucket url: %w", err)
	}
	serviceURL, err := url.Parse(fmt.Sprintf("%s://cos.%s.%s", scheme, cfg.Region, domain))
	if err != nil {
		return nil, fmt.Errorf("kvstore: parse service url: %w", err)
	}

	client := cos.NewClient(&cos.BaseURL{
		BucketURL:  bucketURL,
		ServiceURL: serviceURL,
	}, &http.Client{
		Transport: &cos.AuthorizationTransport{
			SecretID:  cfg.SecretID,
			SecretKey: cfg.SecretKey,
		},
	})

	return &COSStore{client: client}, nil
}

// Save uploads data to the object named by (namespace, key).
func (s *COSStore) Save(ctx context.Context, namespace, key string, data []byte) error {
	_, err := s.client.Object.Put(ctx, blobKey(namespace, key), bytes.NewReader(data), nil)
	if err != nil {
		return fmt.Errorf("kvstore: put object to cos: %w", err)
	}
	return nil
}

// Load downloads the object named by (namespace, key).
func (s *COSStore) Load(ctx context.Context, namespace, key string) ([]byte, error) {
	resp, err := s.client.Object.Get(ctx, blobKey(namespace, key), nil)
	if err != nil {
		return nil, fmt.Errorf("kvstore: get object from cos: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("kvstore: read cos response body: %w", err)
	}
	return data, nil
}

// Delete removes the object named by (namespace, key).
func (s *COSStore) Delete(ctx context.Context, namespace, key string) error {
	_, err := s.client.Object.Delete(ctx, blobKey(namespace, key), nil)
	if err != nil {
		return fmt.Errorf("kvstore: delete object from cos: %w", err)
	}
	return nil
}

// Exists reports whether the object named by (namespace, key) is present.
func (s *COSStore) Exists(ctx context.Context, namespace, key string) (bool, error) {
	ok, err := s.client.Object.IsExist(ctx, blobKey(namespace, key))
	if err != nil {
		return false, fmt.Errorf("kvstore: check existence in cos: %w", err)
	}
	return ok, nil
}
