package main

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"

	"paie/internal/attendance"
	"paie/internal/auth"
	"paie/internal/config"
	"paie/internal/logger"
	"paie/internal/store"
)

// Globals is shared by every command.
type Globals struct {
	Config config.App
	Log    zerolog.Logger
}

func newGlobals(envFile string) (*Globals, error) {
	cfg := config.Load(envFile)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &Globals{Config: cfg, Log: logger.Setup(cfg.LogLevel, cfg.Dev())}, nil
}

// backends are the stores selected by STORE_BACKEND.
type backends struct {
	db    *store.DB
	store attendance.Store
	staff auth.Store
}

func (b *backends) Close() error { return b.db.Close() }

func (g *Globals) openBackends(ctx context.Context) (*backends, error) {
	if g.Config.StoreBackend == "memory" {
		g.Log.Warn().Msg("using in-memory store, data is lost on exit")
		return &backends{store: attendance.NewMemory(), staff: auth.NewMemoryStore()}, nil
	}
	db, err := connect(ctx, g.Config.DatabaseURL, g.Log)
	if err != nil {
		return nil, err
	}
	if g.Config.AutoMigrate {
		if err := store.Migrate(g.Log.WithContext(ctx), db.Client); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return &backends{
		db:    db,
		store: attendance.NewRepository(db.Client),
		staff: auth.NewPostgresStore(db.Client),
	}, nil
}

// connect retries while the database comes up.
func connect(ctx context.Context, url string, log zerolog.Logger) (*store.DB, error) {
	b := backoff.NewExponentialBackOff()
	b.MaxInterval = 5 * time.Second
	return backoff.Retry(ctx, func() (*store.DB, error) {
		db, err := store.NewDB(ctx, url)
		if err != nil {
			log.Warn().Err(err).Msg("database not reachable, retrying")
		}
		return db, err
	}, backoff.WithBackOff(b), backoff.WithMaxElapsedTime(time.Minute))
}
