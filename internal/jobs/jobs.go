// Package jobs binds the task pipeline and the poller to the job queue.
package jobs

import (
	"context"
	"fmt"
	"time"

	"promoreel/internal/queue"
)

const (
	KindWorkflow = "workflow"
	KindPoll     = "poll"
)

// WorkflowPayload is the body of a workflow job.
type WorkflowPayload struct {
	TaskID string `json:"task_id"`
}

// Sender publishes jobs; queue.Service satisfies it.
type Sender interface {
	Send(ctx context.Context, kind string, payload any, opts queue.SendOptions) (string, error)
}

type EnqueuerConfig struct {
	WorkflowRetryLimit int
	WorkflowRetryDelay time.Duration
	WorkflowExpireIn   time.Duration
	// PollDelay postpones the first poll so the remote render has time to start.
	PollDelay time.Duration
	// PollRetryLimit only covers interrupted polls; a finished poll never fails
	// in a way a retry can fix.
	PollRetryLimit int
}

// Enqueuer publishes the two job kinds with their retry policies.
type Enqueuer struct {
	sender Sender
	cfg    EnqueuerConfig
}

func NewEnqueuer(sender Sender, cfg EnqueuerConfig) *Enqueuer {
	return &Enqueuer{sender: sender, cfg: cfg}
}

// EnqueueWorkflow publishes a workflow job for the task and returns its id.
func (e *Enqueuer) EnqueueWorkflow(ctx context.Context, taskID string) (string, error) {
	id, err := e.sender.Send(ctx, KindWorkflow, WorkflowPayload{TaskID: taskID}, queue.SendOptions{
		RetryLimit:   e.cfg.WorkflowRetryLimit,
		RetryDelay:   e.cfg.WorkflowRetryDelay,
		RetryBackoff: true,
		ExpireIn:     e.cfg.WorkflowExpireIn,
	})
	if err != nil {
		return "", fmt.Errorf("enqueue workflow: %w", err)
	}
	return id, nil
}

// EnqueuePoll publishes a poll job tracking clipIDs and returns its id.
func (e *Enqueuer) EnqueuePoll(ctx context.Context, taskID string, clipIDs []string) (string, error) {
	id, err := e.sender.Send(ctx, KindPoll, pollPayload(taskID, clipIDs), queue.SendOptions{
		RetryLimit: e.cfg.PollRetryLimit,
		RetryDelay: e.cfg.PollDelay,
		StartAfter: e.cfg.PollDelay,
	})
	if err != nil {
		return "", fmt.Errorf("enqueue poll: %w", err)
	}
	return id, nil
}
