package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"promoreel/internal/adapter/repo"
	"promoreel/internal/bootstrap"
	"promoreel/internal/http/handlers"
	httpapi "promoreel/internal/http/httpapi"
	"promoreel/internal/infra"
	"promoreel/internal/infra/geoip"
	"promoreel/internal/jobs"
	"promoreel/internal/middleware"
	"promoreel/internal/queue"
	"promoreel/internal/service"
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

	dbpool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: db connection failed")
	}
	defer dbpool.Close()

	runner := infra.NewSQLRunner(dbpool, logger)
	artifacts := repo.NewArtifactRepository(runner)

	tasks, closeCache, err := bootstrap.StatusMirror(ctx, cfg, repo.NewTaskRepository(runner), logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: status cache setup failed")
	}
	defer closeCache()

	blobs, closeBlobs, err := bootstrap.BlobStore(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: storage setup failed")
	}
	defer closeBlobs()

	svc := queue.NewService(bootstrap.Broker(cfg, logger), logger)
	if err := svc.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("api: queue start failed")
	}
	enqueuer := jobs.NewEnqueuer(svc, bootstrap.EnqueuerConfig(cfg))

	// The in-memory broker is process local, so jobs are consumed here.
	workerDone := make(chan struct{})
	if cfg.QueueDriver == "memory" {
		w, err := worker.New(ctx, cfg, worker.Deps{
			Tasks:     tasks,
			Artifacts: artifacts,
			Blobs:     blobs,
			Queue:     svc,
			Enqueuer:  enqueuer,
			Logger:    logger,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("api: embedded worker setup failed")
		}
		go func() {
			defer close(workerDone)
			if err := w.Run(ctx); err != nil {
				logger.Error().Err(err).Msg("api: embedded worker stopped with error")
			}
		}()
	} else {
		close(workerDone)
	}

	taskService := service.NewTaskService(service.TaskServiceConfig{
		Tasks:     tasks,
		Artifacts: artifacts,
		Blobs:     blobs,
		Enqueuer:  enqueuer,
		Status:    tasks,
		Logger:    logger,
	})

	app := handlers.NewApp(taskService, cfg.StorageBaseURL, logger)
	app.Ping = dbpool.Ping

	routerCfg := httpapi.RouterConfig{
		JWTSecret:       cfg.JWTSecret,
		CORSOrigins:     cfg.CORSOrigins,
		DefaultLocale:   cfg.DefaultLocale,
		RateLimitPerMin: cfg.RateLimitPerMin,
		Logger:          logger,
	}
	resolver, err := geoip.NewResolver(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("api: geoip database unavailable, locale from headers only")
	} else if resolver != nil {
		defer resolver.Close()
		routerCfg.CountryLookup = middleware.CountryLookup(resolver.CountryCode)
	}

	server := infra.NewHTTPServer(cfg, httpapi.NewRouter(app, routerCfg))

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	<-workerDone
	if err := svc.Stop(cfg.ShutdownTimeout); err != nil {
		logger.Error().Err(err).Msg("api: queue stop incomplete")
	}
	logger.Info().Msg("server stopped")
}
