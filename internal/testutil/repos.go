// Package testutil holds in-memory implementations of the repository
// contracts for unit tests.
package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"promoreel/internal/domain"
)

// TaskRepo is an in-memory domain.TaskRepository.
type TaskRepo struct {
	mu      sync.Mutex
	tasks   map[string]*domain.Task
	Now     func() time.Time
	History map[string][]domain.TaskStatus
	// UpdateErr, when set, fails every UpdateStatus call.
	UpdateErr error
}

func NewTaskRepo(tasks ...*domain.Task) *TaskRepo {
	r := &TaskRepo{tasks: map[string]*domain.Task{}, Now: time.Now, History: map[string][]domain.TaskStatus{}}
	for _, t := range tasks {
		cp := *t
		r.tasks[t.ID] = &cp
	}
	return r
}

func (r *TaskRepo) Create(ctx context.Context, task *domain.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *task
	r.tasks[task.ID] = &cp
	return nil
}

func (r *TaskRepo) GetByID(ctx context.Context, id string) (*domain.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (r *TaskRepo) GetForUser(ctx context.Context, id, userID string) (*domain.Task, error) {
	t, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.UserID != userID {
		return nil, domain.ErrNotFound
	}
	return t, nil
}

func (r *TaskRepo) ListByUser(ctx context.Context, userID string, limit, offset int) ([]domain.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Task
	for _, t := range r.tasks {
		if t.UserID == userID {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *TaskRepo) UpdateStatus(ctx context.Context, id string, status domain.TaskStatus, errMsg *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.UpdateErr != nil {
		return r.UpdateErr
	}
	t, ok := r.tasks[id]
	if !ok {
		return domain.ErrNotFound
	}
	if !t.Status.CanMoveTo(status) {
		return fmt.Errorf("%w: status %s", domain.ErrTaskFinished, t.Status)
	}
	t.ApplyStatus(status, errMsg, r.Now())
	r.History[id] = append(r.History[id], status)
	return nil
}

func (r *TaskRepo) SetJobID(ctx context.Context, id, jobID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok {
		return domain.ErrNotFound
	}
	t.JobID = &jobID
	return nil
}

func (r *TaskRepo) ResetForRetry(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok {
		return domain.ErrNotFound
	}
	if t.Status != domain.TaskStatusFailed {
		return domain.ErrInvalidState
	}
	t.ResetForRetry(r.Now())
	r.History[id] = append(r.History[id], domain.TaskStatusPending)
	return nil
}

func (r *TaskRepo) Delete(ctx context.Context, id, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok || t.UserID != userID {
		return domain.ErrNotFound
	}
	delete(r.tasks, id)
	return nil
}

// Task returns a copy of the stored task or nil.
func (r *TaskRepo) Task(id string) *domain.Task {
	t, err := r.GetByID(context.Background(), id)
	if err != nil {
		return nil
	}
	return t
}

// SetStatus overwrites a status without stamping, simulating an outside writer.
func (r *TaskRepo) SetStatus(id string, status domain.TaskStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.tasks[id]; ok {
		t.Status = status
	}
}

var _ domain.TaskRepository = (*TaskRepo)(nil)
