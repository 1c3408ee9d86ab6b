package testutil

import (
	"context"
	"sync"

	"promoreel/internal/storage"
)

// BlobStore is an in-memory storage.BlobStore.
type BlobStore struct {
	mu    sync.Mutex
	Blobs map[string][]byte
}

func NewBlobStore() *BlobStore {
	return &BlobStore{Blobs: map[string][]byte{}}
}

func (b *BlobStore) Write(ctx context.Context, key string, data []byte) (string, error) {
	clean, err := storage.SanitizeKey(key)
	if err != nil {
		return "", err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Blobs[clean] = append([]byte(nil), data...)
	return clean, nil
}

func (b *BlobStore) Read(ctx context.Context, key string) ([]byte, error) {
	clean, err := storage.SanitizeKey(key)
	if err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.Blobs[clean]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return data, nil
}

func (b *BlobStore) Delete(ctx context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.Blobs, key)
	return nil
}

// Has reports whether a blob exists under key.
func (b *BlobStore) Has(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.Blobs[key]
	return ok
}

var _ storage.BlobStore = (*BlobStore)(nil)
