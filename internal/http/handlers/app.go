package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"promoreel/internal/domain"
	"promoreel/internal/middleware"
	"promoreel/internal/service"
)

// TaskAPI is the use-case surface the handlers call; service.TaskService
// implements it.
type TaskAPI interface {
	Create(ctx context.Context, in service.CreateTaskInput) (*domain.Task, error)
	Get(ctx context.Context, userID, id string) (*service.TaskDetail, error)
	Status(ctx context.Context, userID, id string) (domain.TaskStatus, error)
	List(ctx context.Context, userID string, limit, offset int) ([]domain.Task, error)
	Retry(ctx context.Context, userID, id string) (*domain.Task, error)
	Cancel(ctx context.Context, userID, id string) (*domain.Task, error)
	Delete(ctx context.Context, userID, id string) error
	Archive(ctx context.Context, userID, id string) ([]byte, error)
	Asset(ctx context.Context, userID, key string) ([]byte, string, error)
}

type App struct {
	Tasks          TaskAPI
	Logger         zerolog.Logger
	StorageBaseURL string
	// Ping reports dependency health for /v1/healthz; nil means always healthy.
	Ping func(ctx context.Context) error
}

func NewApp(tasks TaskAPI, storageBaseURL string, logger zerolog.Logger) *App {
	return &App{Tasks: tasks, StorageBaseURL: strings.TrimRight(storageBaseURL, "/"), Logger: logger}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, slug, msg string) {
	a.json(w, code, map[string]any{
		"error": map[string]string{"code": slug, "message": msg},
	})
}

func (a *App) currentUserID(r *http.Request) string {
	return middleware.UserIDFromContext(r.Context())
}

func (a *App) assetURL(key string) string {
	if key == "" {
		return ""
	}
	return a.StorageBaseURL + "/" + strings.TrimLeft(key, "/")
}

// serviceError maps use-case errors to the error envelope. Internal errors
// are logged and replaced by a generic message.
func (a *App) serviceError(w http.ResponseWriter, r *http.Request, err error, internalMsg string) {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		a.error(w, http.StatusBadRequest, "bad_request", verr.Error())
	case errors.Is(err, service.ErrInvalidInput):
		a.error(w, http.StatusBadRequest, "bad_request", "invalid request")
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "not_found", "not found")
	case errors.Is(err, domain.ErrForbidden):
		a.error(w, http.StatusForbidden, "forbidden", "not allowed")
	case errors.Is(err, domain.ErrInvalidState):
		a.error(w, http.StatusConflict, "conflict", conflictMessage(err))
	default:
		a.Logger.Error().Err(err).
			Str("request_id", middleware.RequestIDFromContext(r.Context())).
			Str("path", r.URL.Path).
			Msg("http: request failed")
		a.error(w, http.StatusInternalServerError, "internal", internalMsg)
	}
}

// conflictMessage strips the sentinel prefix so clients see only the reason.
func conflictMessage(err error) string {
	msg := err.Error()
	if i := strings.Index(msg, domain.ErrInvalidState.Error()+": "); i >= 0 {
		return msg[i+len(domain.ErrInvalidState.Error())+2:]
	}
	return msg
}
