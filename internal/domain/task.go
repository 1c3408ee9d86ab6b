package domain

import "time"

// TaskKind selects the pipeline a task runs through.
type TaskKind string

const (
	TaskKindVideo TaskKind = "video"
	TaskKindImage TaskKind = "image"
)

// Valid reports whether k is a known task kind.
func (k TaskKind) Valid() bool {
	return k == TaskKindVideo || k == TaskKindImage
}

// TaskStatus enumerates task lifecycle states.
type TaskStatus string

const (
	TaskStatusPending          TaskStatus = "pending"
	TaskStatusAnalyzing        TaskStatus = "analyzing"
	TaskStatusScripting        TaskStatus = "scripting"
	TaskStatusStoryboarding    TaskStatus = "storyboarding"
	TaskStatusGeneratingFrames TaskStatus = "generating_frames"
	TaskStatusGeneratingVideos TaskStatus = "generating_videos"
	TaskStatusGeneratingImages TaskStatus = "generating_images"
	TaskStatusCompositing      TaskStatus = "compositing"
	TaskStatusCompleted        TaskStatus = "completed"
	TaskStatusFailed           TaskStatus = "failed"
	TaskStatusCancelled        TaskStatus = "cancelled"
)

// ProcessingStatuses lists the non-terminal states past pending, in pipeline order.
var ProcessingStatuses = []TaskStatus{
	TaskStatusAnalyzing,
	TaskStatusScripting,
	TaskStatusStoryboarding,
	TaskStatusGeneratingFrames,
	TaskStatusGeneratingVideos,
	TaskStatusGeneratingImages,
	TaskStatusCompositing,
}

// TerminalStatuses lists the states a task never leaves without an explicit retry.
var TerminalStatuses = []TaskStatus{
	TaskStatusCompleted,
	TaskStatusFailed,
	TaskStatusCancelled,
}

// CanMoveTo reports whether a status write from s to next is allowed.
// Terminal states only accept a repeat of themselves.
func (s TaskStatus) CanMoveTo(next TaskStatus) bool {
	return !s.IsTerminal() || s == next
}

func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled:
		return true
	}
	return false
}

func (s TaskStatus) IsProcessing() bool {
	for _, p := range ProcessingStatuses {
		if s == p {
			return true
		}
	}
	return false
}

// Valid reports whether s is one of the known states.
func (s TaskStatus) Valid() bool {
	return s == TaskStatusPending || s.IsProcessing() || s.IsTerminal()
}

// TaskParams carries the user supplied generation parameters.
type TaskParams struct {
	TargetDuration   *int    `json:"target_duration,omitempty"`
	AspectRatio      string  `json:"aspect_ratio"`
	Language         string  `json:"language"`
	Count            int     `json:"count"`
	ReferenceMediaID *string `json:"reference_media_id,omitempty"`
	// Audio asks the video provider for a soundtrack. Draft trades quality
	// for a faster preview render.
	Audio bool `json:"audio,omitempty"`
	Draft bool `json:"draft,omitempty"`
}

// Task is one user request to turn source images into promotional media.
type Task struct {
	ID             string
	UserID         string
	Kind           TaskKind
	SourceImageIDs []string
	Params         TaskParams
	Status         TaskStatus
	ErrorMessage   *string
	JobID          *string
	CreatedAt      time.Time
	StartedAt      *time.Time
	CompletedAt    *time.Time
	UpdatedAt      time.Time
}

// ApplyStatus moves the task to status and stamps lifecycle timestamps.
// Entering a processing state without an error stamps StartedAt once; entering a
// terminal state stamps CompletedAt. CompletedAt is cleared for any non-terminal
// state so it is set exactly when the status is terminal.
func (t *Task) ApplyStatus(status TaskStatus, errMsg *string, now time.Time) {
	t.Status = status
	if errMsg != nil {
		msg := *errMsg
		t.ErrorMessage = &msg
	}
	if status.IsProcessing() && errMsg == nil && t.StartedAt == nil {
		started := now
		t.StartedAt = &started
	}
	if status.IsTerminal() {
		if t.CompletedAt == nil {
			completed := now
			t.CompletedAt = &completed
		}
	} else {
		t.CompletedAt = nil
	}
	t.UpdatedAt = now
}

// ResetForRetry returns a failed task to pending and drops everything the
// previous run stamped on it.
func (t *Task) ResetForRetry(now time.Time) {
	t.Status = TaskStatusPending
	t.ErrorMessage = nil
	t.StartedAt = nil
	t.CompletedAt = nil
	t.JobID = nil
	t.UpdatedAt = now
}

// SourceImage is a user uploaded product photo referenced by tasks.
type SourceImage struct {
	ID         string
	UserID     string
	StorageKey string
	MIME       string
	Width      int
	Height     int
	CreatedAt  time.Time
}
