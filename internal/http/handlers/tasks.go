package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"promoreel/internal/domain"
	"promoreel/internal/middleware"
	"promoreel/internal/service"
)

type createTaskRequest struct {
	Kind             string   `json:"kind"`
	SourceImageIDs   []string `json:"source_image_ids"`
	TargetDuration   *int     `json:"target_duration"`
	AspectRatio      string   `json:"aspect_ratio"`
	Language         string   `json:"language"`
	Count            int      `json:"count"`
	ReferenceMediaID *string  `json:"reference_media_id"`
	Audio            bool     `json:"audio"`
	Draft            bool     `json:"draft"`
}

type taskAcceptedResponse struct {
	TaskID string `json:"task_id"`
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

type taskDTO struct {
	ID             string            `json:"id"`
	Kind           string            `json:"kind"`
	Status         string            `json:"status"`
	Error          *string           `json:"error,omitempty"`
	JobID          *string           `json:"job_id,omitempty"`
	SourceImageIDs []string          `json:"source_image_ids"`
	Params         domain.TaskParams `json:"params"`
	CreatedAt      time.Time         `json:"created_at"`
	StartedAt      *time.Time        `json:"started_at,omitempty"`
	CompletedAt    *time.Time        `json:"completed_at,omitempty"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

type taskDetailDTO struct {
	taskDTO
	Analysis *domain.AnalysisSummary `json:"analysis,omitempty"`
	Scripts  []scriptDTO             `json:"scripts"`
	Clips    []clipDTO               `json:"clips"`
	Images   []imageDTO              `json:"images"`
}

type scriptDTO struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Hook      string `json:"hook"`
	Narration string `json:"narration"`
}

type clipDTO struct {
	ID              string  `json:"id"`
	Status          string  `json:"status"`
	DownloadStatus  string  `json:"download_status"`
	URL             string  `json:"url,omitempty"`
	DurationSeconds int     `json:"duration_seconds"`
	AspectRatio     string  `json:"aspect_ratio"`
	Error           *string `json:"error,omitempty"`
}

type imageDTO struct {
	ID       string `json:"id"`
	Position int    `json:"position"`
	URL      string `json:"url"`
	MIME     string `json:"mime"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
}

func toTaskDTO(t *domain.Task) taskDTO {
	return taskDTO{
		ID:             t.ID,
		Kind:           string(t.Kind),
		Status:         string(t.Status),
		Error:          t.ErrorMessage,
		JobID:          t.JobID,
		SourceImageIDs: t.SourceImageIDs,
		Params:         t.Params,
		CreatedAt:      t.CreatedAt,
		StartedAt:      t.StartedAt,
		CompletedAt:    t.CompletedAt,
		UpdatedAt:      t.UpdatedAt,
	}
}

func (a *App) toDetailDTO(d *service.TaskDetail) taskDetailDTO {
	out := taskDetailDTO{
		taskDTO: toTaskDTO(d.Task),
		Scripts: []scriptDTO{},
		Clips:   []clipDTO{},
		Images:  []imageDTO{},
	}
	if d.Analysis != nil {
		summary := d.Analysis.Summary
		out.Analysis = &summary
	}
	for _, s := range d.Scripts {
		out.Scripts = append(out.Scripts, scriptDTO{ID: s.ID, Title: s.Title, Hook: s.Hook, Narration: s.Narration})
	}
	for _, c := range d.Clips {
		dto := clipDTO{
			ID:              c.ID,
			Status:          string(c.Status),
			DownloadStatus:  string(c.DownloadStatus),
			DurationSeconds: c.DurationSeconds,
			AspectRatio:     c.AspectRatio,
			Error:           c.ErrorMessage,
		}
		if c.StorageKey != nil && c.DownloadStatus == domain.DownloadStatusCompleted {
			dto.URL = a.assetURL(*c.StorageKey)
		}
		out.Clips = append(out.Clips, dto)
	}
	for _, img := range d.Images {
		out.Images = append(out.Images, imageDTO{
			ID:       img.ID,
			Position: img.Position,
			URL:      a.assetURL(img.StorageKey),
			MIME:     img.MIME,
			Width:    img.Width,
			Height:   img.Height,
		})
	}
	return out
}

func (a *App) CreateTask(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	var req createTaskRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if req.Language == "" {
		req.Language = middleware.LocaleFromContext(r.Context())
	}
	task, err := a.Tasks.Create(r.Context(), service.CreateTaskInput{
		UserID:           userID,
		Kind:             domain.TaskKind(req.Kind),
		SourceImageIDs:   req.SourceImageIDs,
		TargetDuration:   req.TargetDuration,
		AspectRatio:      req.AspectRatio,
		Language:         req.Language,
		Count:            req.Count,
		ReferenceMediaID: req.ReferenceMediaID,
		Audio:            req.Audio,
		Draft:            req.Draft,
	})
	if err != nil {
		a.serviceError(w, r, err, "failed to create task")
		return
	}
	resp := taskAcceptedResponse{TaskID: task.ID, Status: string(task.Status)}
	if task.JobID != nil {
		resp.JobID = *task.JobID
	}
	a.json(w, http.StatusAccepted, resp)
}

func (a *App) GetTask(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	detail, err := a.Tasks.Get(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		a.serviceError(w, r, err, "failed to load task")
		return
	}
	a.json(w, http.StatusOK, a.toDetailDTO(detail))
}

func (a *App) TaskStatus(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	id := chi.URLParam(r, "id")
	status, err := a.Tasks.Status(r.Context(), userID, id)
	if err != nil {
		a.serviceError(w, r, err, "failed to load task status")
		return
	}
	a.json(w, http.StatusOK, map[string]string{"id": id, "status": string(status)})
}

func (a *App) ListTasks(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	tasks, err := a.Tasks.List(r.Context(), userID, limit, offset)
	if err != nil {
		a.serviceError(w, r, err, "failed to list tasks")
		return
	}
	items := make([]taskDTO, 0, len(tasks))
	for i := range tasks {
		items = append(items, toTaskDTO(&tasks[i]))
	}
	a.json(w, http.StatusOK, map[string]any{"items": items})
}

func (a *App) RetryTask(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	task, err := a.Tasks.Retry(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		a.serviceError(w, r, err, "failed to retry task")
		return
	}
	resp := taskAcceptedResponse{TaskID: task.ID, Status: string(task.Status)}
	if task.JobID != nil {
		resp.JobID = *task.JobID
	}
	a.json(w, http.StatusAccepted, resp)
}

func (a *App) CancelTask(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	task, err := a.Tasks.Cancel(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		a.serviceError(w, r, err, "failed to cancel task")
		return
	}
	a.json(w, http.StatusOK, toTaskDTO(task))
}

func (a *App) DeleteTask(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	if err := a.Tasks.Delete(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		a.serviceError(w, r, err, "failed to delete task")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *App) TaskArchive(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	id := chi.URLParam(r, "id")
	archive, err := a.Tasks.Archive(r.Context(), userID, id)
	if err != nil {
		a.serviceError(w, r, err, "failed to build archive")
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=task-%s.zip", id))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(archive)
}
