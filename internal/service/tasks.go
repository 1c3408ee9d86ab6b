// Package service implements the task use cases behind the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"promoreel/internal/domain"
	"promoreel/internal/locale"
	"promoreel/internal/storage"
	"promoreel/pkg/zip"
)

const (
	MaxSourceImages    = 9
	MinTargetDuration  = 5
	MaxTargetDuration  = 60
	MaxImageCount      = 10
	DefaultListLimit   = 20
	MaxListLimit       = 100
	DefaultAspectRatio = "1:1"
)

// AspectRatios lists the accepted aspect ratios.
var AspectRatios = []string{"1:1", "4:3", "3:4", "16:9", "9:16", "21:9"}

// ErrInvalidInput is wrapped by every ValidationError.
var ErrInvalidInput = errors.New("invalid input")

// ValidationError names the request field that failed validation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return e.Field + ": " + e.Message }
func (e *ValidationError) Unwrap() error { return ErrInvalidInput }

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// WorkflowEnqueuer publishes the workflow job of a task.
type WorkflowEnqueuer interface {
	EnqueueWorkflow(ctx context.Context, taskID string) (string, error)
}

// StatusReader serves task status from a cache.
type StatusReader interface {
	CachedStatus(ctx context.Context, id string) (domain.TaskStatus, bool)
}

type CreateTaskInput struct {
	UserID           string
	Kind             domain.TaskKind
	SourceImageIDs   []string
	TargetDuration   *int
	AspectRatio      string
	Language         string
	Count            int
	ReferenceMediaID *string
	Audio            bool
	Draft            bool
}

// TaskDetail is a task with everything its pipeline produced so far.
type TaskDetail struct {
	Task     *domain.Task
	Analysis *domain.ProductAnalysis
	Scripts  []domain.Script
	Clips    []domain.Clip
	Images   []domain.PromoImage
}

type TaskServiceConfig struct {
	Tasks     domain.TaskRepository
	Artifacts domain.ArtifactRepository
	Blobs     storage.BlobStore
	Enqueuer  WorkflowEnqueuer
	// Status is optional; without it status reads go to the task store.
	Status StatusReader
	Logger zerolog.Logger
}

type TaskService struct {
	tasks     domain.TaskRepository
	artifacts domain.ArtifactRepository
	blobs     storage.BlobStore
	enqueuer  WorkflowEnqueuer
	status    StatusReader
	logger    zerolog.Logger
	now       func() time.Time
}

func NewTaskService(cfg TaskServiceConfig) *TaskService {
	return &TaskService{
		tasks:     cfg.Tasks,
		artifacts: cfg.Artifacts,
		blobs:     cfg.Blobs,
		enqueuer:  cfg.Enqueuer,
		status:    cfg.Status,
		logger:    cfg.Logger,
		now:       time.Now,
	}
}

// Create validates the request, stores a pending task and enqueues its
// workflow. A task whose job cannot be enqueued is marked failed.
func (s *TaskService) Create(ctx context.Context, in CreateTaskInput) (*domain.Task, error) {
	params, err := validateCreate(&in)
	if err != nil {
		return nil, err
	}
	sources, err := s.artifacts.SourceImages(ctx, in.UserID, in.SourceImageIDs)
	if err != nil {
		return nil, fmt.Errorf("load source images: %w", err)
	}
	if len(sources) != len(in.SourceImageIDs) {
		return nil, invalid("source_image_ids", "unknown source image")
	}
	if ref := params.ReferenceMediaID; ref != nil {
		refs, err := s.artifacts.SourceImages(ctx, in.UserID, []string{*ref})
		if err != nil {
			return nil, fmt.Errorf("load reference media: %w", err)
		}
		if len(refs) == 0 {
			return nil, invalid("reference_media_id", "unknown media")
		}
	}

	now := s.now().UTC()
	task := &domain.Task{
		ID:             uuid.NewString(),
		UserID:         in.UserID,
		Kind:           in.Kind,
		SourceImageIDs: in.SourceImageIDs,
		Params:         params,
		Status:         domain.TaskStatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.tasks.Create(ctx, task); err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	if err := s.enqueue(ctx, task); err != nil {
		return nil, err
	}
	s.logger.Info().Str("task_id", task.ID).Str("user_id", task.UserID).Str("kind", string(task.Kind)).Msg("service: task created")
	return task, nil
}

func (s *TaskService) enqueue(ctx context.Context, task *domain.Task) error {
	jobID, err := s.enqueuer.EnqueueWorkflow(ctx, task.ID)
	if err != nil {
		msg := "failed to schedule task: " + err.Error()
		if uerr := s.tasks.UpdateStatus(context.WithoutCancel(ctx), task.ID, domain.TaskStatusFailed, &msg); uerr != nil {
			s.logger.Error().Err(uerr).Str("task_id", task.ID).Msg("service: failed to mark task failed")
		}
		return fmt.Errorf("enqueue task %s: %w", task.ID, err)
	}
	if err := s.tasks.SetJobID(ctx, task.ID, jobID); err != nil {
		return fmt.Errorf("record job id: %w", err)
	}
	task.JobID = &jobID
	return nil
}

func validateCreate(in *CreateTaskInput) (domain.TaskParams, error) {
	var p domain.TaskParams
	if strings.TrimSpace(in.UserID) == "" {
		return p, invalid("user_id", "required")
	}
	if !in.Kind.Valid() {
		return p, invalid("kind", "must be video or image")
	}
	if n := len(in.SourceImageIDs); n == 0 || n > MaxSourceImages {
		return p, invalid("source_image_ids", "between 1 and %d images required", MaxSourceImages)
	}
	seen := make(map[string]bool, len(in.SourceImageIDs))
	for _, id := range in.SourceImageIDs {
		if _, err := uuid.Parse(id); err != nil {
			return p, invalid("source_image_ids", "%q is not a valid id", id)
		}
		if seen[id] {
			return p, invalid("source_image_ids", "duplicate id %q", id)
		}
		seen[id] = true
	}

	if in.TargetDuration != nil {
		d := *in.TargetDuration
		if d < MinTargetDuration || d > MaxTargetDuration {
			return p, invalid("target_duration", "must be between %d and %d seconds", MinTargetDuration, MaxTargetDuration)
		}
		p.TargetDuration = &d
	}
	if in.Kind == domain.TaskKindVideo && p.TargetDuration == nil {
		return p, invalid("target_duration", "required for video tasks")
	}

	p.AspectRatio = in.AspectRatio
	if p.AspectRatio == "" {
		p.AspectRatio = DefaultAspectRatio
	}
	if !slices.Contains(AspectRatios, p.AspectRatio) {
		return p, invalid("aspect_ratio", "must be one of %s", strings.Join(AspectRatios, ", "))
	}

	p.Language = strings.ToLower(strings.TrimSpace(in.Language))
	if p.Language == "" {
		p.Language = locale.Default
	}
	if !locale.IsSupported(p.Language) {
		return p, invalid("language", "must be one of %s", strings.Join(locale.Supported, ", "))
	}

	p.Count = in.Count
	if p.Count == 0 {
		p.Count = 1
	}
	if p.Count < 1 || p.Count > MaxImageCount {
		return p, invalid("count", "must be between 1 and %d", MaxImageCount)
	}

	if in.ReferenceMediaID != nil && *in.ReferenceMediaID != "" {
		if _, err := uuid.Parse(*in.ReferenceMediaID); err != nil {
			return p, invalid("reference_media_id", "not a valid id")
		}
		ref := *in.ReferenceMediaID
		p.ReferenceMediaID = &ref
	}
	p.Audio, p.Draft = in.Audio, in.Draft
	return p, nil
}

// ownedTask loads a task scoped to its owner. Malformed ids are reported as
// not found.
func (s *TaskService) ownedTask(ctx context.Context, userID, id string) (*domain.Task, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.ErrNotFound
	}
	return s.tasks.GetForUser(ctx, id, userID)
}

// Get returns the owner's task with its artifacts.
func (s *TaskService) Get(ctx context.Context, userID, id string) (*TaskDetail, error) {
	task, err := s.ownedTask(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	detail := &TaskDetail{Task: task}
	if detail.Analysis, err = s.artifacts.AnalysisByTask(ctx, id); err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("load analysis: %w", err)
	}
	if detail.Scripts, err = s.artifacts.ScriptsByTask(ctx, id); err != nil {
		return nil, fmt.Errorf("load scripts: %w", err)
	}
	if detail.Clips, err = s.artifacts.ClipsByTask(ctx, id); err != nil {
		return nil, fmt.Errorf("load clips: %w", err)
	}
	if detail.Images, err = s.artifacts.ImagesByTask(ctx, id); err != nil {
		return nil, fmt.Errorf("load images: %w", err)
	}
	return detail, nil
}

// Status reads the task status from the cache, falling back to the owner
// scoped store read on a miss.
func (s *TaskService) Status(ctx context.Context, userID, id string) (domain.TaskStatus, error) {
	if s.status != nil {
		if st, ok := s.status.CachedStatus(ctx, id); ok {
			return st, nil
		}
	}
	task, err := s.ownedTask(ctx, userID, id)
	if err != nil {
		return "", err
	}
	return task.Status, nil
}

func (s *TaskService) List(ctx context.Context, userID string, limit, offset int) ([]domain.Task, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	limit = min(limit, MaxListLimit)
	offset = max(offset, 0)
	return s.tasks.ListByUser(ctx, userID, limit, offset)
}

// Retry re-runs a failed task. Artifacts from the failed run are reused.
func (s *TaskService) Retry(ctx context.Context, userID, id string) (*domain.Task, error) {
	task, err := s.ownedTask(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if task.Status != domain.TaskStatusFailed {
		return nil, fmt.Errorf("%w: only failed tasks can be retried (status %s)", domain.ErrInvalidState, task.Status)
	}
	if err := s.tasks.ResetForRetry(ctx, id); err != nil {
		return nil, fmt.Errorf("reset task: %w", err)
	}
	if task, err = s.tasks.GetByID(ctx, id); err != nil {
		return nil, err
	}
	if err := s.enqueue(ctx, task); err != nil {
		return nil, err
	}
	s.logger.Info().Str("task_id", id).Msg("service: task retried")
	return task, nil
}

// Cancel stops a task that has not finished. The running stage completes;
// the pipeline stops before the next one.
func (s *TaskService) Cancel(ctx context.Context, userID, id string) (*domain.Task, error) {
	task, err := s.ownedTask(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if task.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: task already %s", domain.ErrInvalidState, task.Status)
	}
	if err := s.tasks.UpdateStatus(ctx, id, domain.TaskStatusCancelled, nil); err != nil {
		return nil, fmt.Errorf("cancel task: %w", err)
	}
	s.logger.Info().Str("task_id", id).Msg("service: task cancelled")
	return s.tasks.GetByID(ctx, id)
}

// Delete removes the task and its artifact rows, then its blobs. Blob
// deletion is best effort.
func (s *TaskService) Delete(ctx context.Context, userID, id string) error {
	if _, err := s.ownedTask(ctx, userID, id); err != nil {
		return err
	}
	keys, err := s.artifacts.StorageKeysByTask(ctx, id)
	if err != nil {
		return fmt.Errorf("list task blobs: %w", err)
	}
	if err := s.tasks.Delete(ctx, id, userID); err != nil {
		return err
	}
	for _, key := range keys {
		if err := s.blobs.Delete(ctx, key); err != nil && !errors.Is(err, storage.ErrNotFound) {
			s.logger.Warn().Err(err).Str("task_id", id).Str("storage_key", key).Msg("service: blob delete failed")
		}
	}
	s.logger.Info().Str("task_id", id).Int("blobs", len(keys)).Msg("service: task deleted")
	return nil
}

// Archive zips the task's downloaded clips and generated images.
func (s *TaskService) Archive(ctx context.Context, userID, id string) ([]byte, error) {
	detail, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	var assets []zip.Asset
	for i, c := range detail.Clips {
		if c.StorageKey == nil || c.DownloadStatus != domain.DownloadStatusCompleted {
			continue
		}
		data, err := s.blobs.Read(ctx, *c.StorageKey)
		if err != nil {
			return nil, fmt.Errorf("read clip %s: %w", c.ID, err)
		}
		modified := c.UpdatedAt
		if c.DownloadedAt != nil {
			modified = *c.DownloadedAt
		}
		assets = append(assets, zip.Asset{Filename: fmt.Sprintf("clip-%02d.mp4", i+1), MIME: "video/mp4", Data: data, Modified: modified})
	}
	for _, img := range detail.Images {
		data, err := s.blobs.Read(ctx, img.StorageKey)
		if err != nil {
			return nil, fmt.Errorf("read image %s: %w", img.ID, err)
		}
		name := fmt.Sprintf("image-%02d%s", img.Position+1, path.Ext(img.StorageKey))
		assets = append(assets, zip.Asset{Filename: name, MIME: img.MIME, Data: data, Modified: img.CreatedAt})
	}
	if len(assets) == 0 {
		return nil, fmt.Errorf("%w: task has no stored assets yet", domain.ErrNotFound)
	}
	return zip.ArchiveAssets(assets)
}

// Asset reads a stored blob the user owns. Keys are either under the
// user's upload prefix or under a generated prefix naming one of their tasks.
func (s *TaskService) Asset(ctx context.Context, userID, key string) ([]byte, string, error) {
	clean, err := storage.SanitizeKey(key)
	if err != nil {
		return nil, "", invalid("path", "invalid asset path")
	}
	segments := strings.Split(clean, "/")
	switch {
	case len(segments) >= 3 && segments[0] == "uploads":
		if segments[1] != userID {
			return nil, "", domain.ErrNotFound
		}
	case len(segments) == 4 && segments[0] == "generated" && (segments[1] == "videos" || segments[1] == "images"):
		if _, err := s.ownedTask(ctx, userID, segments[2]); err != nil {
			return nil, "", err
		}
	default:
		return nil, "", domain.ErrNotFound
	}
	data, err := s.blobs.Read(ctx, clean)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, "", domain.ErrNotFound
	}
	if err != nil {
		return nil, "", fmt.Errorf("read asset: %w", err)
	}
	contentType := mime.TypeByExtension(path.Ext(clean))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return data, contentType, nil
}
