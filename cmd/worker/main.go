package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"paie/internal/config"
	"paie/internal/delivery"
	"paie/internal/logger"
	"paie/internal/queue"
	"paie/internal/store"
)

// Worker consumes queued code deliveries and sends them.
func main() {
	cfg := config.Load(".env")
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}
	logr := logger.Setup(cfg.LogLevel, cfg.Dev())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logr.WithContext(ctx)

	if cfg.QueueBackend != "redis" {
		logr.Fatal().Str("queue_backend", cfg.QueueBackend).Msg("worker needs QUEUE_BACKEND=redis; the memory queue runs inside the api")
	}
	redis := store.NewRedis(cfg.RedisAddr)
	defer redis.Close()
	if !redis.Healthy(ctx) {
		logr.Warn().Str("addr", cfg.RedisAddr).Msg("redis not reachable yet, consumer will keep retrying")
	}

	mode := delivery.WorkerMode(cfg)
	sender, err := delivery.Direct(mode, cfg)
	if err != nil {
		logr.Fatal().Err(err).Msg("delivery sender")
	}
	if gw, ok := sender.(*delivery.Gateway); ok {
		if err := gw.Health(ctx); err != nil {
			logr.Warn().Err(err).Msg("gateway not available, deliveries will be retried")
		}
	}

	w := delivery.NewWorker(queue.NewRedisQueue(redis.Client, queue.DefaultKey), sender, cfg.DeliveryMaxRetries)
	w.OnResult(func(j delivery.Job, err error) {
		logr.Debug().Str("job_id", j.ID).Bool("sent", err == nil).Dur("queued_for", time.Since(j.EnqueuedAt)).Msg("job done")
	})

	logr.Info().Str("sender", mode).Msg("worker started")
	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logr.Fatal().Err(err).Msg("worker stopped")
	}
	logr.Info().Msg("worker stopped")
}
