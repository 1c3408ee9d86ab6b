package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path"
	"strings"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCSStore persists assets in a Google Cloud Storage bucket.
type GCSStore struct {
	client *gcs.Client
	bucket string
	prefix string
}

// GCSOptions configures NewGCSStore.
type GCSOptions struct {
	Bucket          string
	Prefix          string
	CredentialsFile string
}

// NewGCSStore connects to the bucket using application default credentials
// unless a credentials file is supplied.
func NewGCSStore(ctx context.Context, opts GCSOptions) (*GCSStore, error) {
	if strings.TrimSpace(opts.Bucket) == "" {
		return nil, errors.New("storage: bucket is required")
	}
	var clientOpts []option.ClientOption
	if opts.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(opts.CredentialsFile))
	}
	client, err := gcs.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("storage: gcs client: %w", err)
	}
	return &GCSStore{client: client, bucket: opts.Bucket, prefix: strings.Trim(opts.Prefix, "/")}, nil
}

func (s *GCSStore) objectName(key string) (string, string, error) {
	cleanKey, err := SanitizeKey(key)
	if err != nil {
		return "", "", err
	}
	if s.prefix == "" {
		return cleanKey, cleanKey, nil
	}
	return s.prefix + "/" + cleanKey, cleanKey, nil
}

// Write uploads data and returns the canonical key.
func (s *GCSStore) Write(ctx context.Context, key string, data []byte) (string, error) {
	name, cleanKey, err := s.objectName(key)
	if err != nil {
		return "", err
	}
	w := s.client.Bucket(s.bucket).Object(name).NewWriter(ctx)
	if ct := mime.TypeByExtension(path.Ext(name)); ct != "" {
		w.ContentType = ct
	}
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("storage: gcs write: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("storage: gcs commit: %w", err)
	}
	return cleanKey, nil
}

// Read downloads the object stored under key.
func (s *GCSStore) Read(ctx context.Context, key string) ([]byte, error) {
	name, _, err := s.objectName(key)
	if err != nil {
		return nil, err
	}
	r, err := s.client.Bucket(s.bucket).Object(name).NewReader(ctx)
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("storage: gcs open: %w", err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("storage: gcs read: %w", err)
	}
	return data, nil
}

// Delete removes the object. Missing objects are not an error.
func (s *GCSStore) Delete(ctx context.Context, key string) error {
	name, _, err := s.objectName(key)
	if err != nil {
		return err
	}
	if err := s.client.Bucket(s.bucket).Object(name).Delete(ctx); err != nil && !errors.Is(err, gcs.ErrObjectNotExist) {
		return fmt.Errorf("storage: gcs delete: %w", err)
	}
	return nil
}

// Close releases the underlying client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}

var _ BlobStore = (*GCSStore)(nil)
