package domain

import (
	"context"
	"time"
)

// TaskRepository defines persistence for tasks.
type TaskRepository interface {
	Create(ctx context.Context, task *Task) error
	GetByID(ctx context.Context, id string) (*Task, error)
	GetForUser(ctx context.Context, id, userID string) (*Task, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]Task, error)
	// UpdateStatus stamps started/completed timestamps the same way
	// Task.ApplyStatus does. A terminal task only accepts its own status;
	// any other write returns ErrTaskFinished.
	UpdateStatus(ctx context.Context, id string, status TaskStatus, errMsg *string) error
	SetJobID(ctx context.Context, id, jobID string) error
	ResetForRetry(ctx context.Context, id string) error
	Delete(ctx context.Context, id, userID string) error
}

// SourceImageRepository reads uploaded product photos.
type SourceImageRepository interface {
	SourceImages(ctx context.Context, userID string, ids []string) ([]SourceImage, error)
}

// ClipRepository is the slice of artifact storage the poller needs.
type ClipRepository interface {
	ClipsByIDs(ctx context.Context, ids []string) ([]Clip, error)
	UpdateClipStatus(ctx context.Context, id string, status ClipStatus, errMsg *string) error
	MarkClipSucceeded(ctx context.Context, id, sourceURL string) error
	MarkClipDownloaded(ctx context.Context, id, storageKey string, at time.Time) error
	MarkClipDownloadFailed(ctx context.Context, id, errMsg string) error
}

// ArtifactRepository persists every pipeline artifact.
type ArtifactRepository interface {
	SourceImageRepository
	ClipRepository

	CreateAnalysis(ctx context.Context, analysis *ProductAnalysis) error
	AnalysisByTask(ctx context.Context, taskID string) (*ProductAnalysis, error)

	CreateScripts(ctx context.Context, scripts []Script) error
	ScriptsByTask(ctx context.Context, taskID string) ([]Script, error)

	CreateShots(ctx context.Context, shots []Shot) error
	ShotsByScript(ctx context.Context, scriptID string) ([]Shot, error)

	CreateClip(ctx context.Context, clip *Clip) error
	ClipsByTask(ctx context.Context, taskID string) ([]Clip, error)

	CreateImage(ctx context.Context, image *PromoImage) error
	ImagesByTask(ctx context.Context, taskID string) ([]PromoImage, error)
	ImageByID(ctx context.Context, id string) (*PromoImage, error)

	// StorageKeysByTask lists every blob key owned by the task's artifacts.
	StorageKeysByTask(ctx context.Context, taskID string) ([]string, error)
}
