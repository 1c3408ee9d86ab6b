// Package bootstrap builds the infrastructure shared by the api and worker
// processes from configuration.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"promoreel/internal/cache"
	"promoreel/internal/domain"
	"promoreel/internal/infra"
	"promoreel/internal/jobs"
	"promoreel/internal/queue"
	"promoreel/internal/storage"
)

// BlobStore opens the configured blob store. The returned close function is
// never nil.
func BlobStore(ctx context.Context, cfg *infra.Config) (storage.BlobStore, func() error, error) {
	switch cfg.StorageDriver {
	case "gcs":
		store, err := storage.NewGCSStore(ctx, storage.GCSOptions{
			Bucket:          cfg.GCSBucket,
			CredentialsFile: cfg.GCSCredentialsFile,
		})
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	default:
		store, err := storage.NewFileStore(cfg.StoragePath)
		if err != nil {
			return nil, nil, err
		}
		return store, func() error { return nil }, nil
	}
}

// Broker returns the configured queue broker.
func Broker(cfg *infra.Config, logger zerolog.Logger) queue.Broker {
	if cfg.QueueDriver == "memory" {
		logger.Warn().Msg("queue: using in-memory broker, jobs do not survive restarts")
		return queue.NewMemoryBroker(0)
	}
	return queue.NewAMQPBroker(queue.AMQPConfig{URL: cfg.AMQPURL}, logger)
}

// StatusMirror wraps tasks with the Redis status cache when REDIS_URL is set.
// Without Redis the mirror writes to a no-op cache.
func StatusMirror(ctx context.Context, cfg *infra.Config, tasks domain.TaskRepository, logger zerolog.Logger) (*cache.StatusMirror, func() error, error) {
	if cfg.RedisURL == "" {
		return cache.NewStatusMirror(tasks, cache.Noop{}, 0, logger), func() error { return nil }, nil
	}
	rc, err := cache.NewRedisCache(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("redis: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rc.Ping(pingCtx); err != nil {
		logger.Warn().Err(err).Msg("cache: redis unreachable, status reads fall back to the database")
	}
	return cache.NewStatusMirror(tasks, rc, cache.DefaultStatusTTL, logger), rc.Close, nil
}

// EnqueuerConfig derives job retry policies from configuration.
func EnqueuerConfig(cfg *infra.Config) jobs.EnqueuerConfig {
	return jobs.EnqueuerConfig{
		WorkflowRetryLimit: cfg.WorkflowRetryLimit,
		WorkflowRetryDelay: cfg.WorkflowRetryDelay,
		WorkflowExpireIn:   cfg.WorkflowExpireIn,
		PollDelay:          cfg.PollInterval,
		PollRetryLimit:     3,
	}
}
