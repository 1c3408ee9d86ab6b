package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"promoreel/internal/adapter/repo"
	"promoreel/internal/bootstrap"
	"promoreel/internal/infra"
	"promoreel/internal/jobs"
	"promoreel/internal/queue"
	"promoreel/internal/worker"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.QueueDriver == "memory" {
		logger.Warn().Msg("worker: memory queue cannot receive jobs from the api process")
	}

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: db connection failed")
	}
	defer pool.Close()

	runner := infra.NewSQLRunner(pool, logger)

	tasks, closeCache, err := bootstrap.StatusMirror(ctx, cfg, repo.NewTaskRepository(runner), logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: status cache setup failed")
	}
	defer closeCache()

	blobs, closeBlobs, err := bootstrap.BlobStore(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to configure storage")
	}
	defer closeBlobs()

	svc := queue.NewService(bootstrap.Broker(cfg, logger), logger)
	if err := svc.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("worker: queue start failed")
	}

	w, err := worker.New(ctx, cfg, worker.Deps{
		Tasks:     tasks,
		Artifacts: repo.NewArtifactRepository(runner),
		Blobs:     blobs,
		Queue:     svc,
		Enqueuer:  jobs.NewEnqueuer(svc, bootstrap.EnqueuerConfig(cfg)),
		Logger:    logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: setup failed")
	}

	if err := w.Run(ctx); err != nil {
		logger.Fatal().Err(err).Msg("worker: stopped with error")
	}
}
