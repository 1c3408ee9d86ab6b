package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"promoreel/internal/domain"
	"promoreel/internal/http/handlers"
	"promoreel/internal/middleware"
	"promoreel/internal/service"
	"promoreel/internal/testutil"
)

const secret = "test-secret"

type stubEnqueuer struct{ calls int }

func (s *stubEnqueuer) EnqueueWorkflow(ctx context.Context, taskID string) (string, error) {
	s.calls++
	return "job-" + taskID, nil
}

type env struct {
	handler   http.Handler
	app       *handlers.App
	tasks     *testutil.TaskRepo
	artifacts *testutil.ArtifactRepo
	blobs     *testutil.BlobStore
	enq       *stubEnqueuer
	sourceID  string
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{
		tasks:     testutil.NewTaskRepo(),
		artifacts: testutil.NewArtifactRepo(),
		blobs:     testutil.NewBlobStore(),
		enq:       &stubEnqueuer{},
		sourceID:  uuid.NewString(),
	}
	e.artifacts.AddSource(domain.SourceImage{ID: e.sourceID, UserID: "owner-1", StorageKey: "uploads/owner-1/a.png", MIME: "image/png"})
	svc := service.NewTaskService(service.TaskServiceConfig{
		Tasks:     e.tasks,
		Artifacts: e.artifacts,
		Blobs:     e.blobs,
		Enqueuer:  e.enq,
		Logger:    zerolog.Nop(),
	})
	e.app = handlers.NewApp(svc, "http://localhost:8080/v1/assets/", zerolog.Nop())
	e.handler = NewRouter(e.app, RouterConfig{JWTSecret: secret, DefaultLocale: "en", Logger: zerolog.Nop()})
	return e
}

func (e *env) do(t *testing.T, method, path, user string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if user != "" {
		token, err := middleware.SignJWT(secret, middleware.TokenClaims{Sub: user, Exp: time.Now().Add(time.Hour).Unix()})
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error.Code
}

func TestHealth(t *testing.T) {
	e := newEnv(t)
	rec := e.do(t, http.MethodGet, "/v1/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	e.app.Ping = func(ctx context.Context) error { return errors.New("db down") }
	rec = e.do(t, http.MethodGet, "/v1/healthz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestOpenAPIDocument(t *testing.T) {
	e := newEnv(t)
	rec := e.do(t, http.MethodGet, "/v1/openapi.json", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, json.Valid(rec.Body.Bytes()))
	etag := rec.Header().Get("ETag")
	require.NotEmpty(t, etag)

	req := httptest.NewRequest(http.MethodGet, "/v1/openapi.json", nil)
	req.Header.Set("If-None-Match", etag)
	rec = httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotModified, rec.Code)
	assert.Zero(t, rec.Body.Len())
}

func TestTasksRequireAuth(t *testing.T) {
	e := newEnv(t)
	rec := e.do(t, http.MethodGet, "/v1/tasks", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthorized", errorCode(t, rec))
}

func TestCreateAndGetTask(t *testing.T) {
	e := newEnv(t)
	rec := e.do(t, http.MethodPost, "/v1/tasks", "owner-1", map[string]any{
		"kind":             "video",
		"source_image_ids": []string{e.sourceID},
		"target_duration":  20,
		"aspect_ratio":     "16:9",
	})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	var accepted struct {
		TaskID string `json:"task_id"`
		JobID  string `json:"job_id"`
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &accepted))
	assert.Equal(t, "job-"+accepted.TaskID, accepted.JobID)
	assert.Equal(t, "pending", accepted.Status)
	assert.Equal(t, 1, e.enq.calls)

	rec = e.do(t, http.MethodGet, "/v1/tasks/"+accepted.TaskID, "owner-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var detail map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &detail))
	assert.Equal(t, "video", detail["kind"])
	assert.Equal(t, []any{}, detail["clips"])
	params := detail["params"].(map[string]any)
	assert.Equal(t, "en", params["language"])

	rec = e.do(t, http.MethodGet, "/v1/tasks/"+accepted.TaskID, "owner-2", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = e.do(t, http.MethodGet, "/v1/tasks/"+accepted.TaskID+"/status", "owner-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"pending"`)

	rec = e.do(t, http.MethodGet, "/v1/tasks?limit=5", "owner-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), accepted.TaskID)
}

func TestCreateTaskValidation(t *testing.T) {
	e := newEnv(t)
	rec := e.do(t, http.MethodPost, "/v1/tasks", "owner-1", map[string]any{
		"kind":             "video",
		"source_image_ids": []string{e.sourceID},
		"target_duration":  90,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "target_duration")

	rec = e.do(t, http.MethodPost, "/v1/tasks", "owner-1", map[string]any{"kind": "image", "bogus": true})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, e.enq.calls)
}

func TestRetryConflictsUnlessFailed(t *testing.T) {
	e := newEnv(t)
	task := &domain.Task{ID: uuid.NewString(), UserID: "owner-1", Kind: domain.TaskKindImage, Status: domain.TaskStatusGeneratingImages}
	require.NoError(t, e.tasks.Create(context.Background(), task))

	rec := e.do(t, http.MethodPost, "/v1/tasks/"+task.ID+"/retry", "owner-1", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "conflict", errorCode(t, rec))
	assert.Zero(t, e.enq.calls)

	msg := "generation failed"
	require.NoError(t, e.tasks.UpdateStatus(context.Background(), task.ID, domain.TaskStatusFailed, &msg))
	rec = e.do(t, http.MethodPost, "/v1/tasks/"+task.ID+"/retry", "owner-1", nil)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, 1, e.enq.calls)
}

func TestCancelAndDelete(t *testing.T) {
	e := newEnv(t)
	task := &domain.Task{ID: uuid.NewString(), UserID: "owner-1", Kind: domain.TaskKindImage, Status: domain.TaskStatusAnalyzing}
	require.NoError(t, e.tasks.Create(context.Background(), task))

	rec := e.do(t, http.MethodPost, "/v1/tasks/"+task.ID+"/cancel", "owner-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"cancelled"`)

	rec = e.do(t, http.MethodPost, "/v1/tasks/"+task.ID+"/cancel", "owner-1", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = e.do(t, http.MethodDelete, "/v1/tasks/"+task.ID, "owner-1", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = e.do(t, http.MethodDelete, "/v1/tasks/"+task.ID, "owner-1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAssetsAndArchive(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	task := &domain.Task{ID: uuid.NewString(), UserID: "owner-1", Kind: domain.TaskKindImage, Status: domain.TaskStatusCompleted}
	require.NoError(t, e.tasks.Create(ctx, task))
	img := domain.PromoImage{ID: uuid.NewString(), TaskID: task.ID, MIME: "image/png", Width: 10, Height: 10}
	img.StorageKey = "generated/images/" + task.ID + "/" + img.ID + ".png"
	_, err := e.blobs.Write(ctx, img.StorageKey, []byte("png-bytes"))
	require.NoError(t, err)
	require.NoError(t, e.artifacts.CreateImage(ctx, &img))

	rec := e.do(t, http.MethodGet, "/v1/tasks/"+task.ID, "owner-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "http://localhost:8080/v1/assets/"+img.StorageKey)

	rec = e.do(t, http.MethodGet, "/v1/assets/"+img.StorageKey, "owner-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Equal(t, "png-bytes", rec.Body.String())

	rec = e.do(t, http.MethodGet, "/v1/assets/"+img.StorageKey, "owner-2", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = e.do(t, http.MethodGet, "/v1/assets/generated/../../etc/passwd", "owner-1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(t, http.MethodGet, "/v1/tasks/"+task.ID+"/archive", "owner-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/zip", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Body.Bytes())
}
