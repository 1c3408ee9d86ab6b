package pipeline_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"promoreel/internal/domain"
	"promoreel/internal/pipeline"
	"promoreel/internal/testutil"
)

// fakeStages returns canned artifacts and counts calls per stage.
type fakeStages struct {
	calls     map[string]int
	imageErrs map[int]error
	analyzeFn func() error
	// onScript runs before the script stage returns.
	onScript func()
	// onImage runs before the image stage returns.
	onImage func(position int)
}

func newFakeStages() *fakeStages {
	return &fakeStages{calls: map[string]int{}, imageErrs: map[int]error{}}
}

func (f *fakeStages) Analyze(ctx context.Context, task *domain.Task, sources []domain.SourceImage) (*domain.ProductAnalysis, error) {
	f.calls["analyze"]++
	if f.analyzeFn != nil {
		if err := f.analyzeFn(); err != nil {
			return nil, err
		}
	}
	return &domain.ProductAnalysis{TaskID: task.ID, Summary: domain.AnalysisSummary{ProductName: "Kopi", Features: []string{"bold"}}, Provider: "fake", Model: "m"}, nil
}

func (f *fakeStages) Script(ctx context.Context, task *domain.Task, analysis *domain.ProductAnalysis) ([]domain.Script, error) {
	f.calls["script"]++
	if f.onScript != nil {
		f.onScript()
	}
	out := make([]domain.Script, max(1, task.Params.Count))
	for i := range out {
		out[i] = domain.Script{TaskID: task.ID, AnalysisID: analysis.ID, Position: i, Title: "t", Narration: "n", DurationSeconds: *task.Params.TargetDuration}
	}
	return out, nil
}

func (f *fakeStages) Storyboard(ctx context.Context, task *domain.Task, analysis *domain.ProductAnalysis, script *domain.Script, sources []domain.SourceImage) ([]domain.Shot, error) {
	f.calls["storyboard"]++
	return []domain.Shot{
		{TaskID: task.ID, ScriptID: script.ID, Index: 0, DurationSeconds: 5, VideoPrompt: "a", FirstFrame: domain.UploadedRef(sources[0].ID)},
		{TaskID: task.ID, ScriptID: script.ID, Index: 1, DurationSeconds: 5, VideoPrompt: "b"},
	}, nil
}

func (f *fakeStages) SubmitVideo(ctx context.Context, task *domain.Task, script *domain.Script, shots []domain.Shot) (*domain.Clip, error) {
	f.calls["video"]++
	ids := make([]string, len(shots))
	for i, s := range shots {
		ids[i] = s.ID
	}
	return &domain.Clip{TaskID: task.ID, ScriptID: script.ID, ShotIDs: ids, RemoteID: "remote-1", Provider: "fake", Status: domain.ClipStatusQueued}, nil
}

func (f *fakeStages) Image(ctx context.Context, task *domain.Task, analysis *domain.ProductAnalysis, sources []domain.SourceImage, position int) (*domain.PromoImage, error) {
	f.calls["image"]++
	if f.onImage != nil {
		f.onImage(position)
	}
	if err := f.imageErrs[position]; err != nil {
		return nil, err
	}
	return &domain.PromoImage{ID: uuid.NewString(), TaskID: task.ID, Position: position, StorageKey: "generated/images/x.png"}, nil
}

type fixture struct {
	tasks     *testutil.TaskRepo
	artifacts *testutil.ArtifactRepo
	stages    *fakeStages
	orch      *pipeline.Orchestrator
	task      *domain.Task
}

func newFixture(t *testing.T, kind domain.TaskKind, params domain.TaskParams) *fixture {
	t.Helper()
	artifacts := testutil.NewArtifactRepo()
	src := domain.SourceImage{ID: uuid.NewString(), UserID: "user-1", StorageKey: "uploads/a.png", MIME: "image/png"}
	artifacts.AddSource(src)
	task := &domain.Task{
		ID:             uuid.NewString(),
		UserID:         "user-1",
		Kind:           kind,
		SourceImageIDs: []string{src.ID},
		Params:         params,
		Status:         domain.TaskStatusPending,
		CreatedAt:      time.Now(),
	}
	tasks := testutil.NewTaskRepo(task)
	stages := newFakeStages()
	return &fixture{
		tasks:     tasks,
		artifacts: artifacts,
		stages:    stages,
		orch:      pipeline.NewOrchestrator(tasks, artifacts, stages, zerolog.Nop()),
		task:      task,
	}
}

func intPtr(v int) *int { return &v }

func TestVideoPipelineHappyPath(t *testing.T) {
	f := newFixture(t, domain.TaskKindVideo, domain.TaskParams{TargetDuration: intPtr(10), AspectRatio: "9:16", Count: 1})

	res, err := f.orch.Execute(context.Background(), f.task)
	require.NoError(t, err)

	assert.Equal(t, domain.TaskStatusGeneratingVideos, res.Status)
	assert.Equal(t, []domain.TaskStatus{
		domain.TaskStatusAnalyzing,
		domain.TaskStatusScripting,
		domain.TaskStatusStoryboarding,
		domain.TaskStatusGeneratingVideos,
	}, f.tasks.History[f.task.ID])
	require.Len(t, res.ClipIDs, 1)
	assert.Len(t, res.ShotIDs, 2)

	clip := f.artifacts.Clip(res.ClipIDs[0])
	require.NotNil(t, clip)
	assert.Equal(t, res.ShotIDs, clip.ShotIDs)

	stored := f.tasks.Task(f.task.ID)
	assert.NotNil(t, stored.StartedAt)
	assert.Nil(t, stored.CompletedAt)
}

func TestVideoPipelineRequiresTargetDuration(t *testing.T) {
	f := newFixture(t, domain.TaskKindVideo, domain.TaskParams{AspectRatio: "9:16", Count: 1})

	_, err := f.orch.Execute(context.Background(), f.task)
	require.ErrorIs(t, err, domain.ErrPrecondition)

	stored := f.tasks.Task(f.task.ID)
	assert.Equal(t, domain.TaskStatusFailed, stored.Status)
	require.NotNil(t, stored.ErrorMessage)
	assert.Contains(t, *stored.ErrorMessage, "target_duration")
	assert.NotNil(t, stored.CompletedAt)
	assert.Zero(t, f.artifacts.Writes)
	assert.Empty(t, f.stages.calls)
}

func TestVideoPipelineReusesExistingArtifacts(t *testing.T) {
	f := newFixture(t, domain.TaskKindVideo, domain.TaskParams{TargetDuration: intPtr(10), Count: 1})

	first, err := f.orch.Execute(context.Background(), f.task)
	require.NoError(t, err)
	writes := f.artifacts.Writes

	second, err := f.orch.Execute(context.Background(), f.task)
	require.NoError(t, err)

	assert.Equal(t, writes, f.artifacts.Writes)
	assert.Equal(t, 1, f.stages.calls["analyze"])
	assert.Equal(t, 1, f.stages.calls["script"])
	assert.Equal(t, 1, f.stages.calls["storyboard"])
	assert.Equal(t, 1, f.stages.calls["video"])
	assert.Equal(t, first.ClipIDs, second.ClipIDs)
}

func TestVideoRetrySubmitsNewRenderForUnusableClip(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		name string
		kill func(t *testing.T, f *fixture, clipID string)
	}{
		{"render failed", func(t *testing.T, f *fixture, id string) {
			msg := "content rejected"
			require.NoError(t, f.artifacts.UpdateClipStatus(ctx, id, domain.ClipStatusFailed, &msg))
		}},
		{"render cancelled", func(t *testing.T, f *fixture, id string) {
			require.NoError(t, f.artifacts.UpdateClipStatus(ctx, id, domain.ClipStatusCancelled, nil))
		}},
		{"render expired", func(t *testing.T, f *fixture, id string) {
			require.NoError(t, f.artifacts.UpdateClipStatus(ctx, id, domain.ClipStatusExpired, nil))
		}},
		{"download failed", func(t *testing.T, f *fixture, id string) {
			require.NoError(t, f.artifacts.MarkClipSucceeded(ctx, id, "https://cdn/a.mp4"))
			require.NoError(t, f.artifacts.MarkClipDownloadFailed(ctx, id, "404"))
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, domain.TaskKindVideo, domain.TaskParams{TargetDuration: intPtr(10), Count: 1})

			first, err := f.orch.Execute(ctx, f.task)
			require.NoError(t, err)
			require.Len(t, first.ClipIDs, 1)
			tc.kill(t, f, first.ClipIDs[0])

			msg := "all 1 clips failed to render"
			require.NoError(t, f.tasks.UpdateStatus(ctx, f.task.ID, domain.TaskStatusFailed, &msg))
			require.NoError(t, f.tasks.ResetForRetry(ctx, f.task.ID))

			second, err := f.orch.Execute(ctx, f.task)
			require.NoError(t, err)

			assert.Equal(t, 2, f.stages.calls["video"])
			assert.Equal(t, 1, f.stages.calls["storyboard"])
			require.Len(t, second.ClipIDs, 1)
			assert.NotEqual(t, first.ClipIDs[0], second.ClipIDs[0])
			assert.Equal(t, domain.ClipStatusQueued, f.artifacts.Clip(second.ClipIDs[0]).Status)
		})
	}
}

func TestStageFailureMarksTaskFailed(t *testing.T) {
	f := newFixture(t, domain.TaskKindVideo, domain.TaskParams{TargetDuration: intPtr(10), Count: 1})
	f.stages.analyzeFn = func() error { return domain.ErrInvalidResponse }

	_, err := f.orch.Execute(context.Background(), f.task)
	require.ErrorIs(t, err, domain.ErrInvalidResponse)

	stored := f.tasks.Task(f.task.ID)
	assert.Equal(t, domain.TaskStatusFailed, stored.Status)
	require.NotNil(t, stored.ErrorMessage)
	assert.Contains(t, *stored.ErrorMessage, "analysis")
	assert.Zero(t, f.stages.calls["script"])
}

func TestCancelledTaskIsNotAdvanced(t *testing.T) {
	f := newFixture(t, domain.TaskKindVideo, domain.TaskParams{TargetDuration: intPtr(10), Count: 1})
	f.stages.onScript = func() { f.tasks.SetStatus(f.task.ID, domain.TaskStatusCancelled) }

	_, err := f.orch.Execute(context.Background(), f.task)
	require.ErrorIs(t, err, domain.ErrTaskCancelled)

	stored := f.tasks.Task(f.task.ID)
	assert.Equal(t, domain.TaskStatusCancelled, stored.Status)
	assert.Zero(t, f.stages.calls["storyboard"])
}

func TestStageFailureAfterCancelKeepsCancelled(t *testing.T) {
	f := newFixture(t, domain.TaskKindVideo, domain.TaskParams{TargetDuration: intPtr(10), Count: 1})
	f.stages.analyzeFn = func() error {
		require.NoError(t, f.tasks.UpdateStatus(context.Background(), f.task.ID, domain.TaskStatusCancelled, nil))
		return domain.ErrInvalidResponse
	}

	_, err := f.orch.Execute(context.Background(), f.task)
	require.ErrorIs(t, err, domain.ErrTaskCancelled)

	stored := f.tasks.Task(f.task.ID)
	assert.Equal(t, domain.TaskStatusCancelled, stored.Status)
	assert.Nil(t, stored.ErrorMessage)
}

func TestCancelDuringImagesKeepsCancelled(t *testing.T) {
	for _, count := range []int{1, 2} {
		f := newFixture(t, domain.TaskKindImage, domain.TaskParams{Count: count})
		f.stages.onImage = func(position int) {
			if position == 0 {
				require.NoError(t, f.tasks.UpdateStatus(context.Background(), f.task.ID, domain.TaskStatusCancelled, nil))
			}
		}

		_, err := f.orch.Execute(context.Background(), f.task)
		require.ErrorIs(t, err, domain.ErrTaskCancelled, "count=%d", count)
		assert.Equal(t, domain.TaskStatusCancelled, f.tasks.Task(f.task.ID).Status, "count=%d", count)
		assert.Equal(t, 1, f.stages.calls["image"], "count=%d", count)
	}
}

func TestInterruptedRunLeavesStatus(t *testing.T) {
	f := newFixture(t, domain.TaskKindVideo, domain.TaskParams{TargetDuration: intPtr(10), Count: 1})
	ctx, cancel := context.WithCancel(context.Background())
	f.stages.onScript = cancel

	_, err := f.orch.Execute(ctx, f.task)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, domain.TaskStatusScripting, f.tasks.Task(f.task.ID).Status)
}

func TestImagePipelinePartialSuccess(t *testing.T) {
	f := newFixture(t, domain.TaskKindImage, domain.TaskParams{Count: 3})
	f.stages.imageErrs[1] = errors.New("provider timeout")

	res, err := f.orch.Execute(context.Background(), f.task)
	require.NoError(t, err)

	assert.Equal(t, domain.TaskStatusCompleted, res.Status)
	assert.Len(t, res.ImageIDs, 2)
	assert.Equal(t, "1 of 3 images failed to generate", res.Advisory)
	assert.Equal(t, 3, f.stages.calls["image"])

	stored := f.tasks.Task(f.task.ID)
	assert.Equal(t, domain.TaskStatusCompleted, stored.Status)
	require.NotNil(t, stored.ErrorMessage)
	assert.Equal(t, res.Advisory, *stored.ErrorMessage)
	assert.NotNil(t, stored.CompletedAt)
}

func TestImagePipelineAllFailed(t *testing.T) {
	f := newFixture(t, domain.TaskKindImage, domain.TaskParams{Count: 2})
	f.stages.imageErrs[0] = errors.New("boom")
	f.stages.imageErrs[1] = errors.New("boom")

	_, err := f.orch.Execute(context.Background(), f.task)
	require.Error(t, err)

	stored := f.tasks.Task(f.task.ID)
	assert.Equal(t, domain.TaskStatusFailed, stored.Status)
	require.NotNil(t, stored.ErrorMessage)
	assert.Contains(t, *stored.ErrorMessage, "all 2 images failed")
}

func TestImagePipelineOnlyGeneratesMissingPositions(t *testing.T) {
	f := newFixture(t, domain.TaskKindImage, domain.TaskParams{Count: 3})
	f.stages.imageErrs[2] = errors.New("boom")
	_, err := f.orch.Execute(context.Background(), f.task)
	require.NoError(t, err)
	require.Equal(t, 3, f.stages.calls["image"])

	delete(f.stages.imageErrs, 2)
	res, err := f.orch.Execute(context.Background(), f.task)
	require.NoError(t, err)
	assert.Equal(t, 4, f.stages.calls["image"])
	assert.Len(t, res.ImageIDs, 3)
	assert.Empty(t, res.Advisory)
}

func TestMissingSourcesFailFast(t *testing.T) {
	f := newFixture(t, domain.TaskKindImage, domain.TaskParams{Count: 1})
	f.task.SourceImageIDs = []string{uuid.NewString()}

	_, err := f.orch.Execute(context.Background(), f.task)
	require.ErrorIs(t, err, domain.ErrPrecondition)
	assert.Equal(t, domain.TaskStatusFailed, f.tasks.Task(f.task.ID).Status)
}
