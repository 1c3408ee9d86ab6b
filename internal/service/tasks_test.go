package service

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"promoreel/internal/domain"
	"promoreel/internal/testutil"
)

type fakeEnqueuer struct {
	taskIDs []string
	err     error
}

func (f *fakeEnqueuer) EnqueueWorkflow(ctx context.Context, taskID string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.taskIDs = append(f.taskIDs, taskID)
	return "job-" + taskID, nil
}

type fakeStatus map[string]domain.TaskStatus

func (f fakeStatus) CachedStatus(ctx context.Context, id string) (domain.TaskStatus, bool) {
	st, ok := f[id]
	return st, ok
}

type fixture struct {
	svc       *TaskService
	tasks     *testutil.TaskRepo
	artifacts *testutil.ArtifactRepo
	blobs     *testutil.BlobStore
	enq       *fakeEnqueuer
	sourceID  string
}

const owner = "user-1"

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		tasks:     testutil.NewTaskRepo(),
		artifacts: testutil.NewArtifactRepo(),
		blobs:     testutil.NewBlobStore(),
		enq:       &fakeEnqueuer{},
		sourceID:  uuid.NewString(),
	}
	f.artifacts.AddSource(domain.SourceImage{ID: f.sourceID, UserID: owner, StorageKey: "uploads/user-1/photo.png", MIME: "image/png"})
	_, err := f.blobs.Write(context.Background(), "uploads/user-1/photo.png", []byte("png"))
	require.NoError(t, err)
	f.svc = NewTaskService(TaskServiceConfig{
		Tasks:     f.tasks,
		Artifacts: f.artifacts,
		Blobs:     f.blobs,
		Enqueuer:  f.enq,
		Logger:    zerolog.Nop(),
	})
	return f
}

func (f *fixture) seed(t *testing.T, status domain.TaskStatus) *domain.Task {
	t.Helper()
	task := &domain.Task{ID: uuid.NewString(), UserID: owner, Kind: domain.TaskKindImage, SourceImageIDs: []string{f.sourceID}, Status: status}
	require.NoError(t, f.tasks.Create(context.Background(), task))
	return task
}

func intPtr(v int) *int { return &v }

func TestCreateEnqueuesWorkflow(t *testing.T) {
	f := newFixture(t)
	task, err := f.svc.Create(context.Background(), CreateTaskInput{
		UserID:         owner,
		Kind:           domain.TaskKindVideo,
		SourceImageIDs: []string{f.sourceID},
		TargetDuration: intPtr(15),
		AspectRatio:    "9:16",
		Language:       "ID",
	})
	require.NoError(t, err)

	assert.Equal(t, domain.TaskStatusPending, task.Status)
	assert.Equal(t, []string{task.ID}, f.enq.taskIDs)
	stored := f.tasks.Task(task.ID)
	require.NotNil(t, stored.JobID)
	assert.Equal(t, "job-"+task.ID, *stored.JobID)
	assert.Equal(t, "id", stored.Params.Language)
	assert.Equal(t, 1, stored.Params.Count)
	assert.Equal(t, 15, *stored.Params.TargetDuration)
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	valid := func() CreateTaskInput {
		return CreateTaskInput{UserID: owner, Kind: domain.TaskKindImage, SourceImageIDs: []string{f.sourceID}, Count: 2}
	}
	tooMany := make([]string, MaxSourceImages+1)
	for i := range tooMany {
		tooMany[i] = uuid.NewString()
	}

	cases := []struct {
		name  string
		edit  func(in *CreateTaskInput)
		field string
	}{
		{"unknown kind", func(in *CreateTaskInput) { in.Kind = "gif" }, "kind"},
		{"no sources", func(in *CreateTaskInput) { in.SourceImageIDs = nil }, "source_image_ids"},
		{"too many sources", func(in *CreateTaskInput) { in.SourceImageIDs = tooMany }, "source_image_ids"},
		{"malformed source", func(in *CreateTaskInput) { in.SourceImageIDs = []string{"nope"} }, "source_image_ids"},
		{"duplicate source", func(in *CreateTaskInput) { in.SourceImageIDs = []string{f.sourceID, f.sourceID} }, "source_image_ids"},
		{"unknown source", func(in *CreateTaskInput) { in.SourceImageIDs = []string{uuid.NewString()} }, "source_image_ids"},
		{"video without duration", func(in *CreateTaskInput) { in.Kind = domain.TaskKindVideo }, "target_duration"},
		{"duration too short", func(in *CreateTaskInput) { in.TargetDuration = intPtr(4) }, "target_duration"},
		{"duration too long", func(in *CreateTaskInput) { in.TargetDuration = intPtr(61) }, "target_duration"},
		{"aspect", func(in *CreateTaskInput) { in.AspectRatio = "2:1" }, "aspect_ratio"},
		{"language", func(in *CreateTaskInput) { in.Language = "pt" }, "language"},
		{"count too high", func(in *CreateTaskInput) { in.Count = 11 }, "count"},
		{"negative count", func(in *CreateTaskInput) { in.Count = -1 }, "count"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := valid()
			tc.edit(&in)
			_, err := f.svc.Create(context.Background(), in)
			require.ErrorIs(t, err, ErrInvalidInput)
			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tc.field, verr.Field)
		})
	}
	assert.Empty(t, f.enq.taskIDs)
}

func TestCreateSourcesAreOwnerScoped(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Create(context.Background(), CreateTaskInput{UserID: "user-2", Kind: domain.TaskKindImage, SourceImageIDs: []string{f.sourceID}})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestCreateReferenceMediaIsOwnerScoped(t *testing.T) {
	f := newFixture(t)
	foreign := uuid.NewString()
	f.artifacts.AddSource(domain.SourceImage{ID: foreign, UserID: "user-2", StorageKey: "uploads/user-2/ref.png", MIME: "image/png"})

	_, err := f.svc.Create(context.Background(), CreateTaskInput{UserID: owner, Kind: domain.TaskKindImage, SourceImageIDs: []string{f.sourceID}, ReferenceMediaID: &foreign})
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "reference_media_id", verr.Field)

	ref := f.sourceID
	task, err := f.svc.Create(context.Background(), CreateTaskInput{UserID: owner, Kind: domain.TaskKindImage, SourceImageIDs: []string{f.sourceID}, ReferenceMediaID: &ref, Audio: true})
	require.NoError(t, err)
	assert.True(t, task.Params.Audio)
	require.NotNil(t, task.Params.ReferenceMediaID)
	assert.Equal(t, ref, *task.Params.ReferenceMediaID)
}

func TestCreateEnqueueFailureFailsTask(t *testing.T) {
	f := newFixture(t)
	f.enq.err = errors.New("broker unavailable")

	_, err := f.svc.Create(context.Background(), CreateTaskInput{UserID: owner, Kind: domain.TaskKindImage, SourceImageIDs: []string{f.sourceID}})
	require.Error(t, err)

	tasks, err := f.tasks.ListByUser(context.Background(), owner, 10, 0)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, domain.TaskStatusFailed, tasks[0].Status)
	require.NotNil(t, tasks[0].ErrorMessage)
	assert.Contains(t, *tasks[0].ErrorMessage, "broker unavailable")
}

func TestRetryOnlyFailedTasks(t *testing.T) {
	f := newFixture(t)
	for _, status := range []domain.TaskStatus{domain.TaskStatusPending, domain.TaskStatusScripting, domain.TaskStatusCompleted, domain.TaskStatusCancelled} {
		task := f.seed(t, status)
		_, err := f.svc.Retry(context.Background(), owner, task.ID)
		assert.ErrorIs(t, err, domain.ErrInvalidState, status)
		assert.Equal(t, status, f.tasks.Task(task.ID).Status)
	}
	assert.Empty(t, f.enq.taskIDs)

	failed := f.seed(t, domain.TaskStatusPending)
	msg := "analysis: provider failure"
	require.NoError(t, f.tasks.UpdateStatus(context.Background(), failed.ID, domain.TaskStatusFailed, &msg))

	task, err := f.svc.Retry(context.Background(), owner, failed.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusPending, task.Status)
	assert.Nil(t, task.ErrorMessage)
	assert.Nil(t, task.CompletedAt)
	assert.Equal(t, []string{failed.ID}, f.enq.taskIDs)
}

func TestRetryIsOwnerScoped(t *testing.T) {
	f := newFixture(t)
	task := f.seed(t, domain.TaskStatusFailed)
	_, err := f.svc.Retry(context.Background(), "someone-else", task.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = f.svc.Retry(context.Background(), owner, "not-a-uuid")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCancel(t *testing.T) {
	f := newFixture(t)
	running := f.seed(t, domain.TaskStatusStoryboarding)
	task, err := f.svc.Cancel(context.Background(), owner, running.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusCancelled, task.Status)
	assert.NotNil(t, task.CompletedAt)

	_, err = f.svc.Cancel(context.Background(), owner, running.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestStatusPrefersCache(t *testing.T) {
	f := newFixture(t)
	task := f.seed(t, domain.TaskStatusAnalyzing)

	st, err := f.svc.Status(context.Background(), owner, task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusAnalyzing, st)

	f.svc.status = fakeStatus{task.ID: domain.TaskStatusScripting}
	st, err = f.svc.Status(context.Background(), owner, task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusScripting, st)
}

func (f *fixture) addImage(t *testing.T, taskID string, pos int) domain.PromoImage {
	t.Helper()
	img := domain.PromoImage{ID: uuid.NewString(), TaskID: taskID, Position: pos, MIME: "image/png", CreatedAt: time.Now()}
	img.StorageKey = "generated/images/" + taskID + "/" + img.ID + ".png"
	_, err := f.blobs.Write(context.Background(), img.StorageKey, []byte("img"))
	require.NoError(t, err)
	require.NoError(t, f.artifacts.CreateImage(context.Background(), &img))
	return img
}

func TestDeleteRemovesBlobs(t *testing.T) {
	f := newFixture(t)
	task := f.seed(t, domain.TaskStatusCompleted)
	img := f.addImage(t, task.ID, 0)

	require.ErrorIs(t, f.svc.Delete(context.Background(), "intruder", task.ID), domain.ErrNotFound)
	assert.True(t, f.blobs.Has(img.StorageKey))

	require.NoError(t, f.svc.Delete(context.Background(), owner, task.ID))
	assert.Nil(t, f.tasks.Task(task.ID))
	assert.False(t, f.blobs.Has(img.StorageKey))
	assert.True(t, f.blobs.Has("uploads/user-1/photo.png"))
}

func TestArchive(t *testing.T) {
	f := newFixture(t)
	task := f.seed(t, domain.TaskStatusCompleted)

	_, err := f.svc.Archive(context.Background(), owner, task.ID)
	require.ErrorIs(t, err, domain.ErrNotFound)

	f.addImage(t, task.ID, 0)
	f.addImage(t, task.ID, 1)
	data, err := f.svc.Archive(context.Background(), owner, task.ID)
	require.NoError(t, err)

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	var names []string
	for _, file := range zr.File {
		names = append(names, file.Name)
	}
	assert.ElementsMatch(t, []string{"image-01.png", "image-02.png"}, names)
}

func TestAsset(t *testing.T) {
	f := newFixture(t)
	task := f.seed(t, domain.TaskStatusCompleted)
	img := f.addImage(t, task.ID, 0)

	data, contentType, err := f.svc.Asset(context.Background(), owner, img.StorageKey)
	require.NoError(t, err)
	assert.Equal(t, []byte("img"), data)
	assert.Equal(t, "image/png", contentType)

	_, _, err = f.svc.Asset(context.Background(), owner, "uploads/user-1/photo.png")
	require.NoError(t, err)

	_, _, err = f.svc.Asset(context.Background(), "intruder", img.StorageKey)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, _, err = f.svc.Asset(context.Background(), "intruder", "uploads/user-1/photo.png")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	for _, bad := range []string{"../etc/passwd", "generated/../../secret", "/etc/passwd", ""} {
		_, _, err = f.svc.Asset(context.Background(), owner, bad)
		assert.ErrorIs(t, err, ErrInvalidInput, bad)
	}
}

func TestListClampsLimit(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 3; i++ {
		f.seed(t, domain.TaskStatusPending)
	}
	tasks, err := f.svc.List(context.Background(), owner, 0, -5)
	require.NoError(t, err)
	assert.Len(t, tasks, 3)

	tasks, err = f.svc.List(context.Background(), owner, 2, 0)
	require.NoError(t, err)
	assert.Len(t, tasks, 2)
}
