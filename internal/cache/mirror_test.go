package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"promoreel/internal/domain"
	"promoreel/internal/testutil"
)

type memoryCache struct {
	mu     sync.Mutex
	values map[string]string
	err    error
}

func (m *memoryCache) SetTaskStatus(ctx context.Context, id, status string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.values[id] = status
	return nil
}

func (m *memoryCache) GetTaskStatus(ctx context.Context, id string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[id]
	return v, ok, m.err
}

func (m *memoryCache) DeleteTaskStatus(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, id)
	return nil
}

func TestStatusMirrorCopiesWrites(t *testing.T) {
	ctx := context.Background()
	c := &memoryCache{values: map[string]string{}}
	repo := testutil.NewTaskRepo()
	mirror := NewStatusMirror(repo, c, 0, zerolog.Nop())

	require.NoError(t, mirror.Create(ctx, &domain.Task{ID: "t1", UserID: "u", Status: domain.TaskStatusPending}))
	status, ok := mirror.CachedStatus(ctx, "t1")
	require.True(t, ok)
	assert.Equal(t, domain.TaskStatusPending, status)

	require.NoError(t, mirror.UpdateStatus(ctx, "t1", domain.TaskStatusAnalyzing, nil))
	status, _ = mirror.CachedStatus(ctx, "t1")
	assert.Equal(t, domain.TaskStatusAnalyzing, status)
	assert.Equal(t, domain.TaskStatusAnalyzing, repo.Task("t1").Status)

	require.NoError(t, mirror.Delete(ctx, "t1", "u"))
	_, ok = mirror.CachedStatus(ctx, "t1")
	assert.False(t, ok)
}

func TestStatusMirrorIgnoresCacheFailures(t *testing.T) {
	ctx := context.Background()
	c := &memoryCache{values: map[string]string{}, err: errors.New("redis down")}
	repo := testutil.NewTaskRepo(&domain.Task{ID: "t1", Status: domain.TaskStatusPending})
	mirror := NewStatusMirror(repo, c, time.Minute, zerolog.Nop())

	require.NoError(t, mirror.UpdateStatus(ctx, "t1", domain.TaskStatusFailed, nil))
	assert.Equal(t, domain.TaskStatusFailed, repo.Task("t1").Status)
	_, ok := mirror.CachedStatus(ctx, "t1")
	assert.False(t, ok)
}

func TestStatusMirrorDoesNotCacheFailedWrites(t *testing.T) {
	ctx := context.Background()
	c := &memoryCache{values: map[string]string{}}
	mirror := NewStatusMirror(testutil.NewTaskRepo(), c, time.Minute, zerolog.Nop())

	err := mirror.UpdateStatus(ctx, "missing", domain.TaskStatusFailed, nil)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Empty(t, c.values)
}
