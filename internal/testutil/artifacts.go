package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"promoreel/internal/domain"
)

// ArtifactRepo is an in-memory domain.ArtifactRepository that counts writes.
type ArtifactRepo struct {
	mu        sync.Mutex
	Sources   map[string]domain.SourceImage
	Analyses  map[string]domain.ProductAnalysis
	Scripts   []domain.Script
	Shots     []domain.Shot
	Clips     map[string]*domain.Clip
	clipOrder []string
	Images    []domain.PromoImage

	// Writes counts every mutating call.
	Writes int
	// ClipWrites counts mutating clip calls by clip id.
	ClipWrites map[string]int
}

func NewArtifactRepo() *ArtifactRepo {
	return &ArtifactRepo{
		Sources:    map[string]domain.SourceImage{},
		Analyses:   map[string]domain.ProductAnalysis{},
		Clips:      map[string]*domain.Clip{},
		ClipWrites: map[string]int{},
	}
}

// AddSource registers an uploaded image.
func (r *ArtifactRepo) AddSource(img domain.SourceImage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Sources[img.ID] = img
}

// AddClip stores a clip directly, without counting a write.
func (r *ArtifactRepo) AddClip(c domain.Clip) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	cp := c
	r.Clips[c.ID] = &cp
	r.clipOrder = append(r.clipOrder, c.ID)
}

// Clip returns a copy of a stored clip or nil.
func (r *ArtifactRepo) Clip(id string) *domain.Clip {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.Clips[id]
	if !ok {
		return nil
	}
	cp := *c
	return &cp
}

func (r *ArtifactRepo) SourceImages(ctx context.Context, userID string, ids []string) ([]domain.SourceImage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.SourceImage
	for _, id := range ids {
		if img, ok := r.Sources[id]; ok && img.UserID == userID {
			out = append(out, img)
		}
	}
	return out, nil
}

func (r *ArtifactRepo) CreateAnalysis(ctx context.Context, a *domain.ProductAnalysis) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	r.Analyses[a.TaskID] = *a
	r.Writes++
	return nil
}

func (r *ArtifactRepo) AnalysisByTask(ctx context.Context, taskID string) (*domain.ProductAnalysis, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.Analyses[taskID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &a, nil
}

func (r *ArtifactRepo) CreateScripts(ctx context.Context, scripts []domain.Script) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range scripts {
		if scripts[i].ID == "" {
			scripts[i].ID = uuid.NewString()
		}
		r.Scripts = append(r.Scripts, scripts[i])
	}
	r.Writes++
	return nil
}

func (r *ArtifactRepo) ScriptsByTask(ctx context.Context, taskID string) ([]domain.Script, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Script
	for _, s := range r.Scripts {
		if s.TaskID == taskID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *ArtifactRepo) CreateShots(ctx context.Context, shots []domain.Shot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range shots {
		if shots[i].ID == "" {
			shots[i].ID = uuid.NewString()
		}
		r.Shots = append(r.Shots, shots[i])
	}
	r.Writes++
	return nil
}

func (r *ArtifactRepo) ShotsByScript(ctx context.Context, scriptID string) ([]domain.Shot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Shot
	for _, s := range r.Shots {
		if s.ScriptID == scriptID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}

func (r *ArtifactRepo) CreateClip(ctx context.Context, c *domain.Clip) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	cp := *c
	r.Clips[c.ID] = &cp
	r.clipOrder = append(r.clipOrder, c.ID)
	r.Writes++
	return nil
}

func (r *ArtifactRepo) ClipsByTask(ctx context.Context, taskID string) ([]domain.Clip, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Clip
	for _, id := range r.clipOrder {
		if c := r.Clips[id]; c != nil && c.TaskID == taskID {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (r *ArtifactRepo) ClipsByIDs(ctx context.Context, ids []string) ([]domain.Clip, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Clip
	for _, id := range ids {
		if c, ok := r.Clips[id]; ok {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (r *ArtifactRepo) mutateClip(id string, fn func(c *domain.Clip)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.Clips[id]
	if !ok {
		return domain.ErrNotFound
	}
	fn(c)
	c.UpdatedAt = time.Now()
	r.Writes++
	r.ClipWrites[id]++
	return nil
}

func (r *ArtifactRepo) UpdateClipStatus(ctx context.Context, id string, status domain.ClipStatus, errMsg *string) error {
	return r.mutateClip(id, func(c *domain.Clip) {
		c.Status = status
		if errMsg != nil {
			msg := *errMsg
			c.ErrorMessage = &msg
		}
	})
}

func (r *ArtifactRepo) MarkClipSucceeded(ctx context.Context, id, sourceURL string) error {
	return r.mutateClip(id, func(c *domain.Clip) {
		c.Status = domain.ClipStatusSucceeded
		c.SourceURL = &sourceURL
		c.DownloadStatus = domain.DownloadStatusDownloading
	})
}

func (r *ArtifactRepo) MarkClipDownloaded(ctx context.Context, id, storageKey string, at time.Time) error {
	return r.mutateClip(id, func(c *domain.Clip) {
		c.StorageKey = &storageKey
		c.DownloadedAt = &at
		c.DownloadStatus = domain.DownloadStatusCompleted
	})
}

func (r *ArtifactRepo) MarkClipDownloadFailed(ctx context.Context, id, errMsg string) error {
	return r.mutateClip(id, func(c *domain.Clip) {
		c.DownloadStatus = domain.DownloadStatusFailed
		c.ErrorMessage = &errMsg
	})
}

func (r *ArtifactRepo) CreateImage(ctx context.Context, img *domain.PromoImage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if img.ID == "" {
		img.ID = uuid.NewString()
	}
	r.Images = append(r.Images, *img)
	r.Writes++
	return nil
}

func (r *ArtifactRepo) ImagesByTask(ctx context.Context, taskID string) ([]domain.PromoImage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.PromoImage
	for _, img := range r.Images {
		if img.TaskID == taskID {
			out = append(out, img)
		}
	}
	return out, nil
}

func (r *ArtifactRepo) ImageByID(ctx context.Context, id string) (*domain.PromoImage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, img := range r.Images {
		if img.ID == id {
			cp := img
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *ArtifactRepo) StorageKeysByTask(ctx context.Context, taskID string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var keys []string
	for _, img := range r.Images {
		if img.TaskID == taskID && img.StorageKey != "" {
			keys = append(keys, img.StorageKey)
		}
	}
	for _, id := range r.clipOrder {
		if c := r.Clips[id]; c != nil && c.TaskID == taskID && c.StorageKey != nil {
			keys = append(keys, *c.StorageKey)
		}
	}
	return keys, nil
}

var _ domain.ArtifactRepository = (*ArtifactRepo)(nil)
