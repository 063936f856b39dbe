// Package app wires the workspace together: config resolution and the
// open-migrate-hydrate sequence every entry point runs before touching
// the engine.
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"pulseboard/internal/config"
	"pulseboard/internal/db"
	"pulseboard/internal/engine"
	"pulseboard/internal/migrate"
	"pulseboard/internal/store"
)

// ResolveConfig loads pulseboard.yml from the workspace, falling back to
// the default config named after the workspace directory.
func ResolveConfig(workspace string) (*config.Config, error) {
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	if cfg != nil {
		return cfg, nil
	}
	abs, err := filepath.Abs(workspace)
	if err != nil {
		abs = workspace
	}
	return config.Default(filepath.Base(abs)), nil
}

// InitWorkspace writes the default pulseboard.yml. It refuses to
// overwrite an existing config.
func InitWorkspace(workspace, projectName string) error {
	path := config.Path(workspace)
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}
	if projectName == "" {
		abs, err := filepath.Abs(workspace)
		if err != nil {
			abs = workspace
		}
		projectName = filepath.Base(abs)
	}
	return os.WriteFile(path, []byte(config.GenerateDefault(projectName)), 0o644)
}

// OpenEngine opens the workspace database, runs migrations, hydrates the
// in-memory store and returns a ready engine. The caller closes via the
// returned func.
func OpenEngine(ctx context.Context, workspace string) (*engine.Engine, func() error, error) {
	cfg, err := ResolveConfig(workspace)
	if err != nil {
		return nil, nil, err
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, nil, err
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}
	eng := engine.New(conn, store.New(), cfg)
	if err := eng.Load(ctx); err != nil {
		conn.Close()
		return nil, nil, err
	}
	return eng, conn.Close, nil
}
