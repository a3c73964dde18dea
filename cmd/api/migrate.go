package main

import (
	"context"

	"paie/internal/store"
)

type MigrateCmd struct{}

func (m *MigrateCmd) Run(ctx context.Context, g *Globals) error {
	db, err := connect(ctx, g.Config.DatabaseURL, g.Log)
	if err != nil {
		return err
	}
	defer db.Close()
	return store.Migrate(g.Log.WithContext(ctx), db.Client)
}
