package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"promoreel/internal/domain"
	"promoreel/internal/pipeline"
	"promoreel/internal/poller"
	"promoreel/internal/queue"
)

// Workflow runs a task's pipeline; pipeline.Orchestrator satisfies it.
type Workflow interface {
	Execute(ctx context.Context, task *domain.Task) (*pipeline.Result, error)
}

// Poller finalises a video task; poller.PollJob satisfies it.
type Poller interface {
	Handle(ctx context.Context, payload poller.Payload) error
}

// PollEnqueuer schedules the poll job that follows a video run.
type PollEnqueuer interface {
	EnqueuePoll(ctx context.Context, taskID string, clipIDs []string) (string, error)
}

// Handlers consumes workflow and poll jobs.
type Handlers struct {
	tasks    domain.TaskRepository
	workflow Workflow
	poller   Poller
	enqueuer PollEnqueuer
	logger   zerolog.Logger
}

func NewHandlers(tasks domain.TaskRepository, workflow Workflow, p Poller, enqueuer PollEnqueuer, logger zerolog.Logger) *Handlers {
	return &Handlers{tasks: tasks, workflow: workflow, poller: p, enqueuer: enqueuer, logger: logger}
}

// Register installs both consumers on svc.
func (h *Handlers) Register(svc *queue.Service) {
	svc.Work(KindWorkflow, h.HandleWorkflow)
	svc.Work(KindPoll, h.HandlePoll)
}

func pollPayload(taskID string, clipIDs []string) poller.Payload {
	return poller.Payload{TaskID: taskID, ClipIDs: clipIDs}
}

// HandleWorkflow runs the pipeline for the job's task. Errors a retry cannot
// fix are returned as queue.Permanent.
func (h *Handlers) HandleWorkflow(ctx context.Context, job queue.Job) error {
	var payload WorkflowPayload
	if err := job.Decode(&payload); err != nil || payload.TaskID == "" {
		return queue.Permanent(fmt.Errorf("workflow: bad payload: %v", err))
	}
	log := h.logger.With().Str("task_id", payload.TaskID).Str("job_id", job.ID).Int("attempt", job.Attempt).Logger()

	task, err := h.tasks.GetByID(ctx, payload.TaskID)
	if errors.Is(err, domain.ErrNotFound) {
		log.Warn().Msg("worker: task no longer exists, dropping job")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load task: %w", err)
	}

	switch task.Status {
	case domain.TaskStatusCompleted, domain.TaskStatusCancelled,
		domain.TaskStatusGeneratingVideos, domain.TaskStatusCompositing:
		log.Info().Str("status", string(task.Status)).Msg("worker: task past the workflow stage, skipping")
		return nil
	case domain.TaskStatusFailed:
		if err := h.tasks.ResetForRetry(ctx, task.ID); err != nil {
			return fmt.Errorf("reset task: %w", err)
		}
		if task, err = h.tasks.GetByID(ctx, task.ID); err != nil {
			return fmt.Errorf("reload task: %w", err)
		}
		log.Info().Msg("worker: retrying failed task")
	}

	res, err := h.workflow.Execute(ctx, task)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrTaskCancelled):
		return nil
	case errors.Is(err, domain.ErrPrecondition):
		return queue.Permanent(err)
	default:
		return err
	}

	if res.Status != domain.TaskStatusGeneratingVideos {
		return nil
	}
	jobID, err := h.enqueuer.EnqueuePoll(ctx, task.ID, res.ClipIDs)
	if err != nil {
		msg := "video generation: " + err.Error()
		uerr := h.tasks.UpdateStatus(context.WithoutCancel(ctx), task.ID, domain.TaskStatusFailed, &msg)
		if uerr != nil && !errors.Is(uerr, domain.ErrTaskFinished) {
			log.Error().Err(uerr).Msg("worker: failed to mark task failed")
		}
		return err
	}
	if err := h.tasks.SetJobID(ctx, task.ID, jobID); err != nil {
		log.Warn().Err(err).Str("poll_job_id", jobID).Msg("worker: failed to record poll job")
	}
	log.Info().Str("poll_job_id", jobID).Int("clips", len(res.ClipIDs)).Msg("worker: poll scheduled")
	return nil
}

// HandlePoll waits for the job's clips. An interrupted poll is retried; any
// other failure has already been recorded on the task.
func (h *Handlers) HandlePoll(ctx context.Context, job queue.Job) error {
	var payload poller.Payload
	if err := job.Decode(&payload); err != nil || payload.TaskID == "" {
		return queue.Permanent(fmt.Errorf("poll: bad payload: %v", err))
	}
	err := h.poller.Handle(ctx, payload)
	if err == nil || ctx.Err() != nil {
		return err
	}
	return queue.Permanent(err)
}
