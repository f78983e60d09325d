package app

import (
	"fmt"

	"homebid/internal/config"
	"homebid/internal/db"
	"homebid/internal/engine"
	"homebid/internal/migrate"
)

// Open bootstraps a workspace: ensures the .homebid directory, opens the
// database, applies pending migrations, loads homebid.yml and returns a ready
// engine. The returned close func must be called when done.
func Open(workspace string) (engine.Engine, func() error, error) {
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		return engine.Engine{}, nil, err
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return engine.Engine{}, nil, err
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return engine.Engine{}, nil, fmt.Errorf("migrate: %w", err)
	}
	cfg, err := config.Load(workspace)
	if err != nil {
		conn.Close()
		return engine.Engine{}, nil, err
	}
	return engine.New(conn, cfg), conn.Close, nil
}
