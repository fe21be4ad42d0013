// Package app wires the runtime pieces a command needs: workspace, database,
// config, and engine.
package app

import (
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"daybook/internal/config"
	"daybook/internal/db"
	"daybook/internal/engine"
	"daybook/internal/migrate"
)

// Context is one resolved runtime: an open, migrated database plus the
// effective config and an engine bound to both. Close it when done.
type Context struct {
	Workspace string
	DB        *sql.DB
	Config    *config.Config
	Engine    engine.Engine
}

// Resolve opens the workspace database, applies pending migrations, and loads
// daybook.yml. A missing config file falls back to the built-in defaults so
// first runs work without dbk config init.
func Resolve(workspace string, logger *zap.Logger) (*Context, error) {
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = config.Default()
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	e := engine.New(conn, cfg)
	if logger != nil {
		e.Logger = logger
	}
	return &Context{
		Workspace: workspace,
		DB:        conn,
		Config:    cfg,
		Engine:    e,
	}, nil
}

// Close releases the database handle.
func (c *Context) Close() error {
	if c == nil || c.DB == nil {
		return nil
	}
	return c.DB.Close()
}
