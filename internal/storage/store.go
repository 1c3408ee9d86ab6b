package storage

import (
	"context"
	"errors"
	"path"
	"strings"
)

var (
	// ErrInvalidKey is returned for empty keys, absolute keys and keys with ".." segments.
	ErrInvalidKey = errors.New("storage: invalid key")
	// ErrNotFound is returned when no blob exists under the key.
	ErrNotFound = errors.New("storage: not found")
)

// BlobStore persists artifact bytes under slash separated logical keys.
type BlobStore interface {
	Write(ctx context.Context, key string, data []byte) (string, error)
	Read(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// SanitizeKey validates a logical key and returns its canonical form.
// Unlike a plain path clean it refuses traversal instead of rewriting it.
func SanitizeKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", ErrInvalidKey
	}
	key = strings.ReplaceAll(key, "\\", "/")
	if strings.HasPrefix(key, "/") || hasDriveLetter(key) {
		return "", ErrInvalidKey
	}
	for _, segment := range strings.Split(key, "/") {
		if segment == ".." {
			return "", ErrInvalidKey
		}
	}
	cleaned := path.Clean(strings.TrimPrefix(key, "./"))
	if cleaned == "." || cleaned == "" {
		return "", ErrInvalidKey
	}
	return cleaned, nil
}

func hasDriveLetter(key string) bool {
	return len(key) >= 2 && key[1] == ':' && ((key[0] >= 'a' && key[0] <= 'z') || (key[0] >= 'A' && key[0] <= 'Z'))
}

// ClipKey is the storage key of a downloaded clip.
func ClipKey(taskID, clipID string) string {
	return "generated/videos/" + taskID + "/" + clipID + ".mp4"
}

// ImageKey is the storage key of a generated promo image.
func ImageKey(taskID, imageID, ext string) string {
	if ext == "" {
		ext = "png"
	}
	return "generated/images/" + taskID + "/" + imageID + "." + strings.TrimPrefix(ext, ".")
}
