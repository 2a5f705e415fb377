package content

import (
	"context"

	"github.com/platinummonkey/masthead/pkg/storage"
)

// AssetStore removes uploaded files that belong to a deleted item
type AssetStore interface {
	Delete(ctx context.Context, key string) error
}

// S3AssetStore deletes assets from the configured bucket
type S3AssetStore struct {
	client *storage.S3Client
}

// NewS3AssetStore wraps client
func NewS3AssetStore(client *storage.S3Client) *S3AssetStore {
	return &S3AssetStore{client: client}
}

// Delete removes key from the bucket
func (s *S3AssetStore) Delete(ctx context.Context, key string) error {
	return s.client.DeleteObject(ctx, key)
}
