// Package worker assembles the consumer side of the job queue: the pipeline
// orchestrator, the poller and the clip download pool.
package worker

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"promoreel/internal/domain"
	"promoreel/internal/infra"
	"promoreel/internal/jobs"
	"promoreel/internal/pipeline"
	"promoreel/internal/poller"
	"promoreel/internal/queue"
	"promoreel/internal/storage"
)

type Deps struct {
	Tasks     domain.TaskRepository
	Artifacts domain.ArtifactRepository
	Blobs     storage.BlobStore
	Queue     *queue.Service
	Enqueuer  *jobs.Enqueuer
	Logger    zerolog.Logger
}

type Worker struct {
	queue      *queue.Service
	pool       *poller.DownloadPool
	shutdown   time.Duration
	retryDelay time.Duration
	logger     zerolog.Logger
}

// New wires the job handlers onto deps.Queue. Call it before the queue runs.
func New(ctx context.Context, cfg *infra.Config, deps Deps) (*Worker, error) {
	gens, err := initGenerators(ctx, cfg, deps.Logger)
	if err != nil {
		return nil, err
	}

	stages := pipeline.NewGeneratorStages(pipeline.GeneratorStagesConfig{
		Text:      gens.text,
		Image:     gens.image,
		Video:     gens.video,
		Blobs:     deps.Blobs,
		Artifacts: deps.Artifacts,
		Logger:    deps.Logger,
	})
	orchestrator := pipeline.NewOrchestrator(deps.Tasks, deps.Artifacts, stages, deps.Logger)

	pool := poller.NewDownloadPool(poller.DownloadPoolConfig{
		Clips:     deps.Artifacts,
		Blobs:     deps.Blobs,
		Fetcher:   poller.HTTPFetcher{Client: &http.Client{Timeout: cfg.DownloadTimeout}},
		Workers:   cfg.DownloadWorkers,
		QueueSize: cfg.DownloadQueueSize,
		Timeout:   cfg.DownloadTimeout,
		Logger:    deps.Logger,
	})
	reconciler := poller.NewReconciler(deps.Artifacts, gens.remotes, pool, deps.Logger)
	pollJob := poller.NewPollJob(deps.Tasks, poller.NewWaiter(reconciler), cfg.PollInterval, cfg.PollMaxAttempts, deps.Logger)

	jobs.NewHandlers(deps.Tasks, orchestrator, pollJob, deps.Enqueuer, deps.Logger).Register(deps.Queue)

	return &Worker{queue: deps.Queue, pool: pool, shutdown: cfg.ShutdownTimeout, retryDelay: 2 * time.Second, logger: deps.Logger}, nil
}

// Run consumes jobs until ctx is done, then drains in-flight handlers and
// pending downloads.
func (w *Worker) Run(ctx context.Context) error {
	w.pool.Start(ctx)

	errCh := make(chan error, 1)
	go func() { errCh <- w.consume(ctx) }()
	w.logger.Info().Msg("worker: consuming jobs")

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}

	if err := w.queue.Stop(w.shutdown); err != nil {
		w.logger.Error().Err(err).Msg("worker: queue stop incomplete")
	}
	w.pool.Close()
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	w.logger.Info().Msg("worker: stopped")
	return nil
}

// consume runs the queue and reconnects after a lost broker connection.
func (w *Worker) consume(ctx context.Context) error {
	for {
		err := w.queue.Run(ctx)
		lost := errors.Is(err, queue.ErrDeliveryClosed) || errors.Is(err, queue.ErrConnect)
		if !lost || errors.Is(err, queue.ErrBrokerClosed) {
			return err
		}
		w.logger.Warn().Err(err).Dur("retry_in", w.retryDelay).Msg("worker: queue connection lost, reconnecting")
		t := time.NewTimer(w.retryDelay)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
	}
}
