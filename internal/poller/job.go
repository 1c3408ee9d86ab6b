package poller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"promoreel/internal/domain"
)

// Payload is the body of a poll job.
type Payload struct {
	TaskID  string   `json:"task_id"`
	ClipIDs []string `json:"clip_ids"`
}

// PollJob waits for a task's clips and finalises the task.
type PollJob struct {
	tasks       domain.TaskRepository
	waiter      *Waiter
	interval    time.Duration
	maxAttempts int
	logger      zerolog.Logger
}

func NewPollJob(tasks domain.TaskRepository, waiter *Waiter, interval time.Duration, maxAttempts int, logger zerolog.Logger) *PollJob {
	return &PollJob{tasks: tasks, waiter: waiter, interval: interval, maxAttempts: maxAttempts, logger: logger}
}

// Handle finalises the task once every clip is terminal. Any failure marks
// the task failed and is returned so the queue records it.
func (p *PollJob) Handle(ctx context.Context, payload Payload) error {
	log := p.logger.With().Str("task_id", payload.TaskID).Int("clips", len(payload.ClipIDs)).Logger()

	task, err := p.tasks.GetByID(ctx, payload.TaskID)
	if err != nil {
		return fmt.Errorf("load task: %w", err)
	}
	if task.Status.IsTerminal() {
		log.Info().Str("status", string(task.Status)).Msg("poller: task already finished, skipping")
		return nil
	}
	if len(payload.ClipIDs) == 0 {
		return p.fail(ctx, task.ID, errors.New("no clips to poll"))
	}

	summary, err := p.waiter.Wait(ctx, payload.ClipIDs, p.interval, p.maxAttempts)
	if err != nil {
		if ctx.Err() != nil {
			log.Warn().Err(err).Msg("poller: wait interrupted")
			return err
		}
		return p.fail(ctx, task.ID, err)
	}

	total := len(payload.ClipIDs)
	log.Info().
		Int("succeeded", summary.Succeeded).
		Int("failed", summary.Failed).
		Int("pending", summary.Pending).
		Int("attempts", summary.Attempts).
		Msg("poller: wait finished")

	switch {
	case summary.Succeeded == 0 && summary.TimedOut:
		return p.fail(ctx, task.ID, fmt.Errorf("video generation timed out after %d attempts", summary.Attempts))
	case summary.Succeeded == 0:
		return p.fail(ctx, task.ID, fmt.Errorf("all %d clips failed to render", total))
	case summary.Succeeded == total:
		return p.complete(ctx, task.ID, nil)
	default:
		advisory := fmt.Sprintf("%d of %d clips failed", total-summary.Succeeded, total)
		if summary.TimedOut {
			advisory = fmt.Sprintf("%d of %d clips did not finish in time", total-summary.Succeeded, total)
		}
		return p.complete(ctx, task.ID, &advisory)
	}
}

// complete and fail leave a task that finished while the clips were polled
// (an admin cancel) untouched and report success to the queue.
func (p *PollJob) complete(ctx context.Context, taskID string, advisory *string) error {
	for _, status := range []domain.TaskStatus{domain.TaskStatusCompositing, domain.TaskStatusCompleted} {
		msg := advisory
		if status != domain.TaskStatusCompleted {
			msg = nil
		}
		err := p.tasks.UpdateStatus(ctx, taskID, status, msg)
		if errors.Is(err, domain.ErrTaskFinished) {
			p.logger.Info().Err(err).Str("task_id", taskID).Msg("poller: task finished elsewhere, keeping status")
			return nil
		}
		if err != nil {
			return fmt.Errorf("update status to %s: %w", status, err)
		}
	}
	p.logger.Info().Str("task_id", taskID).Bool("partial", advisory != nil).Msg("poller: task completed")
	return nil
}

func (p *PollJob) fail(ctx context.Context, taskID string, cause error) error {
	msg := cause.Error()
	err := p.tasks.UpdateStatus(context.WithoutCancel(ctx), taskID, domain.TaskStatusFailed, &msg)
	if errors.Is(err, domain.ErrTaskFinished) {
		p.logger.Info().Err(cause).Str("task_id", taskID).Msg("poller: task finished elsewhere, keeping status")
		return nil
	}
	if err != nil {
		p.logger.Error().Err(err).Str("task_id", taskID).Msg("poller: failed to mark task failed")
	}
	p.logger.Error().Err(cause).Str("task_id", taskID).Msg("poller: task failed")
	return cause
}
