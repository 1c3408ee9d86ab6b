package repo

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"promoreel/internal/domain"
	"promoreel/internal/infra"
	"promoreel/internal/sqlinline"
)

// TaskRepositoryPG implements domain.TaskRepository.
type TaskRepositoryPG struct {
	db infra.SQLExecutor
}

// NewTaskRepository creates a task repository backed by PostgreSQL.
func NewTaskRepository(db infra.SQLExecutor) *TaskRepositoryPG {
	return &TaskRepositoryPG{db: db}
}

func (r *TaskRepositoryPG) Create(ctx context.Context, task *domain.Task) error {
	params, err := json.Marshal(task.Params)
	if err != nil {
		return fmt.Errorf("encode task params: %w", err)
	}
	_, err = r.db.Exec(ctx, sqlinline.QInsertTask,
		task.ID,
		task.UserID,
		string(task.Kind),
		task.SourceImageIDs,
		params,
		string(task.Status),
		task.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

func (r *TaskRepositoryPG) GetByID(ctx context.Context, id string) (*domain.Task, error) {
	return scanTask(r.db.QueryRow(ctx, sqlinline.QGetTaskByID, id))
}

func (r *TaskRepositoryPG) GetForUser(ctx context.Context, id, userID string) (*domain.Task, error) {
	return scanTask(r.db.QueryRow(ctx, sqlinline.QGetTaskForUser, id, userID))
}

func (r *TaskRepositoryPG) ListByUser(ctx context.Context, userID string, limit, offset int) ([]domain.Task, error) {
	rows, err := r.db.Query(ctx, sqlinline.QListTasksByUser, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []domain.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *task)
	}
	return tasks, rows.Err()
}

func (r *TaskRepositoryPG) UpdateStatus(ctx context.Context, id string, status domain.TaskStatus, errMsg *string) error {
	tag, err := r.db.Exec(ctx, sqlinline.QUpdateTaskStatus, id, string(status), errMsg)
	if err != nil {
		return fmt.Errorf("update task status: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	var current string
	if err := r.db.QueryRow(ctx, sqlinline.QGetTaskStatus, id).Scan(&current); err != nil {
		if infra.IsNoRows(err) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("load task status: %w", err)
	}
	return fmt.Errorf("%w: status %s", domain.ErrTaskFinished, current)
}

func (r *TaskRepositoryPG) SetJobID(ctx context.Context, id, jobID string) error {
	tag, err := r.db.Exec(ctx, sqlinline.QSetTaskJobID, id, jobID)
	if err != nil {
		return fmt.Errorf("set task job id: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ResetForRetry only resets failed tasks; any other state yields ErrInvalidState.
func (r *TaskRepositoryPG) ResetForRetry(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, sqlinline.QResetTaskForRetry, id)
	if err != nil {
		return fmt.Errorf("reset task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrInvalidState
	}
	return nil
}

func (r *TaskRepositoryPG) Delete(ctx context.Context, id, userID string) error {
	tag, err := r.db.Exec(ctx, sqlinline.QDeleteTask, id, userID)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanTask(row pgx.Row) (*domain.Task, error) {
	var (
		task   domain.Task
		kind   string
		status string
		params []byte
	)
	if err := row.Scan(
		&task.ID,
		&task.UserID,
		&kind,
		&task.SourceImageIDs,
		&params,
		&status,
		&task.ErrorMessage,
		&task.JobID,
		&task.CreatedAt,
		&task.StartedAt,
		&task.CompletedAt,
		&task.UpdatedAt,
	); err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scan task: %w", err)
	}
	task.Kind = domain.TaskKind(kind)
	task.Status = domain.TaskStatus(status)
	if len(params) > 0 {
		if err := json.Unmarshal(params, &task.Params); err != nil {
			return nil, fmt.Errorf("decode task params: %w", err)
		}
	}
	return &task, nil
}

var _ domain.TaskRepository = (*TaskRepositoryPG)(nil)
