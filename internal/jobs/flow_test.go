package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"promoreel/internal/domain"
	"promoreel/internal/pipeline"
	"promoreel/internal/poller"
	"promoreel/internal/providers/synthetic"
	"promoreel/internal/queue"
	"promoreel/internal/testutil"
)

// TestVideoTaskEndToEnd drives a video task through the in-memory queue:
// workflow job, poll job, clip download and completion.
func TestVideoTaskEndToEnd(t *testing.T) {
	ctx := context.Background()
	blobs := testutil.NewBlobStore()
	_, err := blobs.Write(ctx, "uploads/u/photo.png", []byte("png"))
	require.NoError(t, err)

	artifacts := testutil.NewArtifactRepo()
	src := domain.SourceImage{ID: uuid.NewString(), UserID: "u", StorageKey: "uploads/u/photo.png", MIME: "image/png"}
	artifacts.AddSource(src)

	duration := 10
	task := &domain.Task{
		ID:             uuid.NewString(),
		UserID:         "u",
		Kind:           domain.TaskKindVideo,
		SourceImageIDs: []string{src.ID},
		Params:         domain.TaskParams{TargetDuration: &duration, AspectRatio: "16:9", Language: "en", Count: 1},
		Status:         domain.TaskStatusPending,
	}
	tasks := testutil.NewTaskRepo(task)

	gen := synthetic.New(zerolog.Nop())
	stages := pipeline.NewGeneratorStages(pipeline.GeneratorStagesConfig{
		Text: gen, Image: gen, Video: gen, Blobs: blobs, Artifacts: artifacts, Logger: zerolog.Nop(),
	})
	orch := pipeline.NewOrchestrator(tasks, artifacts, stages, zerolog.Nop())

	pool := poller.NewDownloadPool(poller.DownloadPoolConfig{Clips: artifacts, Blobs: blobs, Workers: 2, Logger: zerolog.Nop()})
	pool.Start(ctx)
	reconciler := poller.NewReconciler(artifacts, map[string]poller.StatusSource{synthetic.ProviderName: gen}, pool, zerolog.Nop())
	pollJob := poller.NewPollJob(tasks, poller.NewWaiter(reconciler), 5*time.Millisecond, 20, zerolog.Nop())

	svc := queue.NewService(queue.NewMemoryBroker(0), zerolog.Nop())
	enq := NewEnqueuer(svc, EnqueuerConfig{WorkflowRetryLimit: 1, WorkflowRetryDelay: time.Millisecond})
	NewHandlers(tasks, orch, pollJob, enq, zerolog.Nop()).Register(svc)

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = svc.Run(runCtx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	_, err = enq.EnqueueWorkflow(ctx, task.ID)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return tasks.Task(task.ID).Status == domain.TaskStatusCompleted
	}, 5*time.Second, 10*time.Millisecond)
	pool.Close()

	stored := tasks.Task(task.ID)
	assert.Nil(t, stored.ErrorMessage)
	assert.NotNil(t, stored.CompletedAt)
	assert.Contains(t, tasks.History[task.ID], domain.TaskStatusGeneratingVideos)

	clips, err := artifacts.ClipsByTask(ctx, task.ID)
	require.NoError(t, err)
	require.Len(t, clips, 1)
	assert.Equal(t, domain.ClipStatusSucceeded, clips[0].Status)
	assert.Equal(t, domain.DownloadStatusCompleted, clips[0].DownloadStatus)
	require.NotNil(t, clips[0].StorageKey)
	assert.True(t, blobs.Has(*clips[0].StorageKey))
}
