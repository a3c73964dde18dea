package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"paie/internal/attendance"
	"paie/internal/auth"
	"paie/internal/config"
	"paie/internal/delivery"
	"paie/internal/handler"
	"paie/internal/httpmiddleware"
	"paie/internal/logger"
	"paie/internal/metrics"
	"paie/internal/queue"
	"paie/internal/store"
)

type ServeCmd struct {
	Port string `help:"Listen port, overrides HTTP_PORT."`
}

func (s *ServeCmd) Run(ctx context.Context, g *Globals) error {
	cfg := g.Config
	if s.Port != "" {
		cfg.HTTPPort = s.Port
	}
	if !cfg.Dev() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = g.Log.WithContext(ctx)

	b, err := g.openBackends(ctx)
	if err != nil {
		return err
	}
	defer b.Close()

	var redis *store.Redis
	if cfg.QueueBackend == "redis" || cfg.StoreBackend == "postgres" {
		redis = store.NewRedis(cfg.RedisAddr)
		defer redis.Close()
	}

	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	deliverer, err := newDeliverer(ctx, cfg, redis)
	if err != nil {
		return err
	}

	collectors := metrics.New()
	svc, err := attendance.NewService(b.store, deliverer,
		attendance.WithPolicy(cfg.OTC()),
		attendance.WithLocation(loc),
		attendance.WithObserver(collectors),
	)
	if err != nil {
		return err
	}
	staff := auth.NewService(b.staff, cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL, cfg.RefreshTTL)

	checks := map[string]handler.HealthCheck{}
	if b.db != nil {
		checks["db"] = b.db.Healthy
	}
	if redis != nil {
		checks["redis"] = redis.Healthy
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Gin(g.Log))
	r.Use(collectors.Gin())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		AllowCredentials: true,
		MaxAge:           24 * time.Hour,
	}))
	r.Use(securityHeaders())
	r.Use(httpmiddleware.NewPerMinute(cfg.RateLimitPerMin).GinMiddleware())

	r.GET("/metrics", gin.WrapH(collectors.Handler()))
	handler.New(svc, staff, handler.Config{
		JWTSigningKey: cfg.JWTSigningKey,
		JWTIssuer:     cfg.JWTIssuer,
		CodeLimiter:   codeLimiter(cfg, redis),
		Checks:        checks,
	}).Register(r)

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		g.Log.Info().Str("addr", srv.Addr).Str("version", version).Str("store", cfg.StoreBackend).Str("delivery", cfg.DeliveryMode).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	g.Log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		g.Log.Error().Err(err).Msg("forced shutdown")
		return err
	}
	g.Log.Info().Msg("server exited")
	return nil
}

// newDeliverer wires DELIVERY_MODE. With the memory queue there is no
// separate worker process, so the worker runs in-process.
func newDeliverer(ctx context.Context, cfg config.App, redis *store.Redis) (attendance.Deliverer, error) {
	if cfg.DeliveryMode != "queue" {
		return delivery.Direct(cfg.DeliveryMode, cfg)
	}
	if cfg.QueueBackend == "redis" {
		return delivery.NewQueued(queue.NewRedisQueue(redis.Client, queue.DefaultKey)), nil
	}
	q := queue.NewInMemory(256)
	sender, err := delivery.Direct(delivery.WorkerMode(cfg), cfg)
	if err != nil {
		return nil, err
	}
	w := delivery.NewWorker(q, sender, cfg.DeliveryMaxRetries)
	go func() {
		if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			zerolog.Ctx(ctx).Error().Err(err).Msg("in-process delivery worker stopped")
		}
	}()
	return delivery.NewQueued(q), nil
}

// codeLimiter throttles code requests. Redis keeps the budget shared across
// replicas and the token bucket takes over when Redis is down.
func codeLimiter(cfg config.App, redis *store.Redis) httpmiddleware.Limiter {
	local := httpmiddleware.NewSimpleTokenBucket(cfg.OTCRequestLimit, cfg.OTCRequestWindow)
	if redis == nil {
		return local
	}
	return httpmiddleware.Fallback{
		Primary:   httpmiddleware.NewRedisWindow(redis.Client, "paie:otc", cfg.OTCRequestLimit, cfg.OTCRequestWindow),
		Secondary: local,
	}
}

func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		c.Next()
	}
}
