package cache

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"promoreel/internal/domain"
)

// DefaultStatusTTL bounds how long a mirrored status survives without updates.
const DefaultStatusTTL = 24 * time.Hour

// StatusMirror decorates a TaskRepository so every status write is copied
// into the cache. Cache failures are logged and never fail the write.
type StatusMirror struct {
	domain.TaskRepository
	cache  StatusCache
	ttl    time.Duration
	logger zerolog.Logger
}

func NewStatusMirror(repo domain.TaskRepository, cache StatusCache, ttl time.Duration, logger zerolog.Logger) *StatusMirror {
	if ttl <= 0 {
		ttl = DefaultStatusTTL
	}
	return &StatusMirror{TaskRepository: repo, cache: cache, ttl: ttl, logger: logger}
}

func (m *StatusMirror) Create(ctx context.Context, task *domain.Task) error {
	if err := m.TaskRepository.Create(ctx, task); err != nil {
		return err
	}
	m.set(ctx, task.ID, task.Status)
	return nil
}

func (m *StatusMirror) UpdateStatus(ctx context.Context, id string, status domain.TaskStatus, errMsg *string) error {
	if err := m.TaskRepository.UpdateStatus(ctx, id, status, errMsg); err != nil {
		return err
	}
	m.set(ctx, id, status)
	return nil
}

func (m *StatusMirror) ResetForRetry(ctx context.Context, id string) error {
	if err := m.TaskRepository.ResetForRetry(ctx, id); err != nil {
		return err
	}
	m.set(ctx, id, domain.TaskStatusPending)
	return nil
}

func (m *StatusMirror) Delete(ctx context.Context, id, userID string) error {
	if err := m.TaskRepository.Delete(ctx, id, userID); err != nil {
		return err
	}
	if err := m.cache.DeleteTaskStatus(ctx, id); err != nil {
		m.logger.Warn().Err(err).Str("task_id", id).Msg("cache: delete status failed")
	}
	return nil
}

// CachedStatus returns the mirrored status if present.
func (m *StatusMirror) CachedStatus(ctx context.Context, id string) (domain.TaskStatus, bool) {
	v, ok, err := m.cache.GetTaskStatus(ctx, id)
	if err != nil {
		m.logger.Warn().Err(err).Str("task_id", id).Msg("cache: read status failed")
		return "", false
	}
	if !ok {
		return "", false
	}
	return domain.TaskStatus(v), true
}

func (m *StatusMirror) set(ctx context.Context, id string, status domain.TaskStatus) {
	if err := m.cache.SetTaskStatus(ctx, id, string(status), m.ttl); err != nil {
		m.logger.Warn().Err(err).Str("task_id", id).Msg("cache: set status failed")
	}
}

var _ domain.TaskRepository = (*StatusMirror)(nil)
