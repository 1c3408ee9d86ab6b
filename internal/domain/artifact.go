package domain

import (
	"fmt"
	"time"
)

// Usage records token accounting reported by a generator call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// AnalysisSummary is the structured product description extracted from source images.
type AnalysisSummary struct {
	ProductName string   `json:"product_name"`
	Category    string   `json:"category"`
	Features    []string `json:"features"`
	Audience    string   `json:"audience"`
	Tone        string   `json:"tone"`
	Colors      []string `json:"colors"`
}

// Validate checks the fields every downstream stage relies on.
func (s AnalysisSummary) Validate() error {
	if s.ProductName == "" {
		return fmt.Errorf("%w: product_name is required", ErrInvalidResponse)
	}
	if len(s.Features) == 0 {
		return fmt.Errorf("%w: features are required", ErrInvalidResponse)
	}
	return nil
}

type ProductAnalysis struct {
	ID        string
	TaskID    string
	Summary   AnalysisSummary
	Provider  string
	Model     string
	Usage     *Usage
	CreatedAt time.Time
}

type Script struct {
	ID              string
	TaskID          string
	AnalysisID      string
	Position        int
	Title           string
	Hook            string
	Narration       string
	CallToAction    string
	DurationSeconds int
	Provider        string
	Model           string
	Usage           *Usage
	CreatedAt       time.Time
}

type Shot struct {
	ID              string
	TaskID          string
	ScriptID        string
	Index           int
	Description     string
	Camera          string
	DurationSeconds int
	ImagePrompt     string
	VideoPrompt     string
	FirstFrame      FrameRef
	LastFrame       FrameRef
	Provider        string
	Model           string
	Usage           *Usage
	CreatedAt       time.Time
}

// ClipStatus mirrors the remote video operation lifecycle.
type ClipStatus string

const (
	ClipStatusQueued    ClipStatus = "queued"
	ClipStatusRunning   ClipStatus = "running"
	ClipStatusSucceeded ClipStatus = "succeeded"
	ClipStatusFailed    ClipStatus = "failed"
	ClipStatusCancelled ClipStatus = "cancelled"
	ClipStatusExpired   ClipStatus = "expired"
)

func (s ClipStatus) IsTerminal() bool {
	switch s {
	case ClipStatusSucceeded, ClipStatusFailed, ClipStatusCancelled, ClipStatusExpired:
		return true
	}
	return false
}

// DownloadStatus tracks copying a finished clip into blob storage.
type DownloadStatus string

const (
	DownloadStatusPending     DownloadStatus = "pending"
	DownloadStatusDownloading DownloadStatus = "downloading"
	DownloadStatusCompleted   DownloadStatus = "completed"
	DownloadStatusFailed      DownloadStatus = "failed"
)

// Clip is a rendered video produced by a remote asynchronous operation.
type Clip struct {
	ID              string
	TaskID          string
	ScriptID        string
	ShotIDs         []string
	RemoteID        string
	Provider        string
	Model           string
	Prompt          string
	Status          ClipStatus
	DownloadStatus  DownloadStatus
	SourceURL       *string
	StorageKey      *string
	DownloadedAt    *time.Time
	ErrorMessage    *string
	DurationSeconds int
	AspectRatio     string
	FirstFrame      FrameRef
	LastFrame       FrameRef
	Usage           *Usage
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Reusable reports whether a later run of the task can keep waiting on this
// clip instead of submitting a new render. Failed, cancelled and expired
// renders and clips whose download failed are not reusable.
func (c *Clip) Reusable() bool {
	switch c.Status {
	case ClipStatusFailed, ClipStatusCancelled, ClipStatusExpired:
		return false
	}
	return c.DownloadStatus != DownloadStatusFailed
}

// PromoImage is a generated promotional still.
type PromoImage struct {
	ID         string
	TaskID     string
	Position   int
	StorageKey string
	MIME       string
	Width      int
	Height     int
	Prompt     string
	Provider   string
	Model      string
	Usage      *Usage
	CreatedAt  time.Time
}
