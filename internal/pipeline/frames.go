package pipeline

import (
	"context"
	"fmt"

	"promoreel/internal/domain"
)

// repoFrameResolver resolves frame references for one user's task.
type repoFrameResolver struct {
	artifacts domain.ArtifactRepository
	userID    string
}

// NewFrameResolver resolves generated frames by image id and uploaded frames
// by source image id, scoped to userID.
func NewFrameResolver(artifacts domain.ArtifactRepository, userID string) domain.FrameResolver {
	return &repoFrameResolver{artifacts: artifacts, userID: userID}
}

func (r *repoFrameResolver) ResolveFrame(ctx context.Context, ref domain.FrameRef) (*domain.ResolvedFrame, error) {
	switch v := ref.(type) {
	case domain.GeneratedRef:
		img, err := r.artifacts.ImageByID(ctx, v.ID())
		if err != nil {
			return nil, fmt.Errorf("resolve generated frame %s: %w", v.ID(), err)
		}
		return &domain.ResolvedFrame{StorageKey: img.StorageKey, MIME: img.MIME, Width: img.Width, Height: img.Height}, nil
	case domain.UploadedRef:
		imgs, err := r.artifacts.SourceImages(ctx, r.userID, []string{v.ID()})
		if err != nil {
			return nil, fmt.Errorf("resolve uploaded frame %s: %w", v.ID(), err)
		}
		if len(imgs) == 0 {
			return nil, fmt.Errorf("resolve uploaded frame %s: %w", v.ID(), domain.ErrNotFound)
		}
		img := imgs[0]
		return &domain.ResolvedFrame{StorageKey: img.StorageKey, MIME: img.MIME, Width: img.Width, Height: img.Height}, nil
	default:
		return nil, fmt.Errorf("%w: %T", domain.ErrUnsupportedFrame, ref)
	}
}
