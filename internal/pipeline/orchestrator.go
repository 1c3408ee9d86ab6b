package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"promoreel/internal/domain"
)

// Result summarises what one Execute call produced or reused.
type Result struct {
	Status     domain.TaskStatus
	AnalysisID string
	ScriptIDs  []string
	ShotIDs    []string
	ClipIDs    []string
	ImageIDs   []string
	// Advisory is set when the task completed with partial failures.
	Advisory string
}

// Orchestrator drives a task through the stages of its pipeline.
type Orchestrator struct {
	tasks     domain.TaskRepository
	artifacts domain.ArtifactRepository
	stages    Stages
	logger    zerolog.Logger
}

func NewOrchestrator(tasks domain.TaskRepository, artifacts domain.ArtifactRepository, stages Stages, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{tasks: tasks, artifacts: artifacts, stages: stages, logger: logger}
}

// Execute runs the task's pipeline. Each stage reuses an artifact persisted by
// an earlier run, so re-running a task does not regenerate finished work.
// Any stage error marks the task failed and is returned. A video run stops
// at generating_videos; the poller finishes it.
func (o *Orchestrator) Execute(ctx context.Context, task *domain.Task) (*Result, error) {
	log := o.logger.With().Str("task_id", task.ID).Str("kind", string(task.Kind)).Logger()

	var (
		res *Result
		err error
	)
	switch task.Kind {
	case domain.TaskKindVideo:
		res, err = o.runVideo(ctx, task)
	case domain.TaskKindImage:
		res, err = o.runImage(ctx, task)
	default:
		err = fmt.Errorf("%w: unknown task kind %q", domain.ErrPrecondition, task.Kind)
	}
	if err == nil {
		log.Info().Str("status", string(res.Status)).Msg("pipeline: run finished")
		return res, nil
	}

	switch {
	case errors.Is(err, domain.ErrTaskCancelled):
		log.Info().Msg("pipeline: task cancelled, stopping")
		return nil, err
	case ctx.Err() != nil:
		log.Warn().Err(err).Msg("pipeline: run interrupted")
		return nil, err
	}

	log.Error().Err(err).Msg("pipeline: run failed")
	msg := err.Error()
	if uerr := o.finish(context.WithoutCancel(ctx), task.ID, domain.TaskStatusFailed, &msg); uerr != nil {
		if errors.Is(uerr, domain.ErrTaskCancelled) {
			log.Info().Msg("pipeline: task cancelled, keeping status")
			return nil, uerr
		}
		log.Error().Err(uerr).Msg("pipeline: failed to mark task failed")
	}
	return nil, err
}

func (o *Orchestrator) runVideo(ctx context.Context, task *domain.Task) (*Result, error) {
	if task.Params.TargetDuration == nil {
		return nil, fmt.Errorf("%w: target_duration is required for video tasks", domain.ErrPrecondition)
	}
	sources, err := o.sources(ctx, task)
	if err != nil {
		return nil, err
	}
	res := &Result{}

	if err := o.advance(ctx, task, domain.TaskStatusAnalyzing); err != nil {
		return nil, err
	}
	analysis, err := o.analysis(ctx, task, sources)
	if err != nil {
		return nil, err
	}
	res.AnalysisID = analysis.ID

	if err := o.advance(ctx, task, domain.TaskStatusScripting); err != nil {
		return nil, err
	}
	scripts, err := o.artifacts.ScriptsByTask(ctx, task.ID)
	if err != nil {
		return nil, fmt.Errorf("load scripts: %w", err)
	}
	if len(scripts) == 0 {
		if scripts, err = o.stages.Script(ctx, task, analysis); err != nil {
			return nil, fmt.Errorf("scripting: %w", err)
		}
		if err := o.artifacts.CreateScripts(ctx, scripts); err != nil {
			return nil, fmt.Errorf("save scripts: %w", err)
		}
	}
	for _, s := range scripts {
		res.ScriptIDs = append(res.ScriptIDs, s.ID)
	}
	primary := &scripts[0]

	if err := o.advance(ctx, task, domain.TaskStatusStoryboarding); err != nil {
		return nil, err
	}
	shots, err := o.artifacts.ShotsByScript(ctx, primary.ID)
	if err != nil {
		return nil, fmt.Errorf("load shots: %w", err)
	}
	if len(shots) == 0 {
		if shots, err = o.stages.Storyboard(ctx, task, analysis, primary, sources); err != nil {
			return nil, fmt.Errorf("storyboarding: %w", err)
		}
		if err := o.artifacts.CreateShots(ctx, shots); err != nil {
			return nil, fmt.Errorf("save shots: %w", err)
		}
	}
	for _, s := range shots {
		res.ShotIDs = append(res.ShotIDs, s.ID)
	}

	if err := o.advance(ctx, task, domain.TaskStatusGeneratingVideos); err != nil {
		return nil, err
	}
	existing, err := o.artifacts.ClipsByTask(ctx, task.ID)
	if err != nil {
		return nil, fmt.Errorf("load clips: %w", err)
	}
	for i := range existing {
		if existing[i].Reusable() {
			res.ClipIDs = append(res.ClipIDs, existing[i].ID)
		}
	}
	if len(res.ClipIDs) == 0 {
		if len(existing) > 0 {
			o.logger.Info().
				Str("task_id", task.ID).
				Int("stale_clips", len(existing)).
				Msg("pipeline: previous renders unusable, submitting a new one")
		}
		clip, err := o.stages.SubmitVideo(ctx, task, primary, shots)
		if err != nil {
			return nil, fmt.Errorf("video generation: %w", err)
		}
		if err := o.artifacts.CreateClip(ctx, clip); err != nil {
			return nil, fmt.Errorf("save clip: %w", err)
		}
		res.ClipIDs = append(res.ClipIDs, clip.ID)
	}

	res.Status = domain.TaskStatusGeneratingVideos
	return res, nil
}

func (o *Orchestrator) runImage(ctx context.Context, task *domain.Task) (*Result, error) {
	sources, err := o.sources(ctx, task)
	if err != nil {
		return nil, err
	}
	res := &Result{}

	if err := o.advance(ctx, task, domain.TaskStatusAnalyzing); err != nil {
		return nil, err
	}
	analysis, err := o.analysis(ctx, task, sources)
	if err != nil {
		return nil, err
	}
	res.AnalysisID = analysis.ID

	if err := o.advance(ctx, task, domain.TaskStatusGeneratingImages); err != nil {
		return nil, err
	}
	existing, err := o.artifacts.ImagesByTask(ctx, task.ID)
	if err != nil {
		return nil, fmt.Errorf("load images: %w", err)
	}
	done := map[int]bool{}
	for _, img := range existing {
		done[img.Position] = true
		res.ImageIDs = append(res.ImageIDs, img.ID)
	}

	count := max(1, task.Params.Count)
	failed := 0
	for pos := 0; pos < count; pos++ {
		if done[pos] {
			continue
		}
		if err := o.active(ctx, task); err != nil {
			return nil, err
		}
		img, err := o.stages.Image(ctx, task, analysis, sources, pos)
		if err == nil {
			err = o.artifacts.CreateImage(ctx, img)
		}
		if err != nil {
			failed++
			o.logger.Warn().
				Err(err).
				Str("task_id", task.ID).
				Int("position", pos).
				Msg("pipeline: image generation failed, continuing")
			continue
		}
		res.ImageIDs = append(res.ImageIDs, img.ID)
	}

	if len(res.ImageIDs) == 0 {
		return nil, fmt.Errorf("%w: all %d images failed to generate", domain.ErrProviderFailure, count)
	}

	var advisory *string
	if failed > 0 {
		res.Advisory = fmt.Sprintf("%d of %d images failed to generate", failed, count)
		advisory = &res.Advisory
	}
	if err := o.finish(ctx, task.ID, domain.TaskStatusCompleted, advisory); err != nil {
		return nil, err
	}
	res.Status = domain.TaskStatusCompleted
	return res, nil
}

func (o *Orchestrator) sources(ctx context.Context, task *domain.Task) ([]domain.SourceImage, error) {
	sources, err := o.artifacts.SourceImages(ctx, task.UserID, task.SourceImageIDs)
	if err != nil {
		return nil, fmt.Errorf("load source images: %w", err)
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("%w: no source images available", domain.ErrPrecondition)
	}
	return sources, nil
}

func (o *Orchestrator) analysis(ctx context.Context, task *domain.Task, sources []domain.SourceImage) (*domain.ProductAnalysis, error) {
	analysis, err := o.artifacts.AnalysisByTask(ctx, task.ID)
	if err == nil {
		return analysis, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("load analysis: %w", err)
	}
	if analysis, err = o.stages.Analyze(ctx, task, sources); err != nil {
		return nil, fmt.Errorf("analysis: %w", err)
	}
	if err := o.artifacts.CreateAnalysis(ctx, analysis); err != nil {
		return nil, fmt.Errorf("save analysis: %w", err)
	}
	return analysis, nil
}

// active fails when the run was interrupted or the task was cancelled in the
// meantime.
func (o *Orchestrator) active(ctx context.Context, task *domain.Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	current, err := o.tasks.GetByID(ctx, task.ID)
	if err != nil {
		return fmt.Errorf("reload task: %w", err)
	}
	if current.Status == domain.TaskStatusCancelled {
		return domain.ErrTaskCancelled
	}
	return nil
}

// advance moves the task to the next stage unless it is no longer active.
func (o *Orchestrator) advance(ctx context.Context, task *domain.Task, status domain.TaskStatus) error {
	if err := o.active(ctx, task); err != nil {
		return err
	}
	if err := o.tasks.UpdateStatus(ctx, task.ID, status, nil); err != nil {
		if errors.Is(err, domain.ErrTaskFinished) {
			return fmt.Errorf("%w: %v", domain.ErrTaskCancelled, err)
		}
		return fmt.Errorf("update status to %s: %w", status, err)
	}
	task.Status = status
	o.logger.Debug().Str("task_id", task.ID).Str("status", string(status)).Msg("pipeline: stage started")
	return nil
}

// finish writes a terminal status. A task that was cancelled or otherwise
// finished in the meantime keeps its status and ErrTaskCancelled is returned.
func (o *Orchestrator) finish(ctx context.Context, taskID string, status domain.TaskStatus, msg *string) error {
	err := o.tasks.UpdateStatus(ctx, taskID, status, msg)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrTaskFinished):
		return fmt.Errorf("%w: %v", domain.ErrTaskCancelled, err)
	default:
		return fmt.Errorf("update status to %s: %w", status, err)
	}
}
