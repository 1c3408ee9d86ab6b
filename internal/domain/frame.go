package domain

import (
	"context"
	"fmt"
)

// FrameSource tells which table a frame reference points into.
type FrameSource string

const (
	FrameSourceGenerated FrameSource = "generated"
	FrameSourceUploaded  FrameSource = "uploaded"
)

// FrameRef points at the image used as the first or last frame of a shot.
// It is either a GeneratedRef or an UploadedRef.
type FrameRef interface {
	ID() string
	Source() FrameSource
	isFrameRef()
}

// GeneratedRef references a PromoImage produced by this service.
type GeneratedRef string

func (r GeneratedRef) ID() string          { return string(r) }
func (r GeneratedRef) Source() FrameSource { return FrameSourceGenerated }
func (GeneratedRef) isFrameRef()           {}

// UploadedRef references a SourceImage the user uploaded.
type UploadedRef string

func (r UploadedRef) ID() string          { return string(r) }
func (r UploadedRef) Source() FrameSource { return FrameSourceUploaded }
func (UploadedRef) isFrameRef()           {}

// NewFrameRef rebuilds a reference from its stored columns. Empty id yields nil.
func NewFrameRef(id string, source FrameSource) (FrameRef, error) {
	if id == "" {
		return nil, nil
	}
	switch source {
	case FrameSourceGenerated:
		return GeneratedRef(id), nil
	case FrameSourceUploaded:
		return UploadedRef(id), nil
	default:
		return nil, fmt.Errorf("%w: source %q", ErrUnsupportedFrame, source)
	}
}

// FrameColumns splits a reference into nullable id and source columns.
func FrameColumns(ref FrameRef) (*string, *string) {
	if ref == nil {
		return nil, nil
	}
	id := ref.ID()
	source := string(ref.Source())
	return &id, &source
}

// ResolvedFrame is the stored blob a frame reference points at.
type ResolvedFrame struct {
	StorageKey string
	MIME       string
	Width      int
	Height     int
}

// FrameResolver turns frame references into stored blobs.
type FrameResolver interface {
	ResolveFrame(ctx context.Context, ref FrameRef) (*ResolvedFrame, error)
}
