// Package app wires the store, engine and seed data for the CLI and server.
package app

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"github.com/ShovalB85/RasApp/internal/config"
	"github.com/ShovalB85/RasApp/internal/db"
	"github.com/ShovalB85/RasApp/internal/domain"
	"github.com/ShovalB85/RasApp/internal/engine"
	"github.com/ShovalB85/RasApp/internal/logging"
	"github.com/ShovalB85/RasApp/internal/migrate"
	"github.com/ShovalB85/RasApp/internal/repo"
)

type App struct {
	Config *config.Config
	DB     *sqlx.DB
	Store  *repo.SQLStore
	Engine engine.Engine
	Log    *logrus.Logger
}

// Options controls what Open does beyond opening the database.
type Options struct {
	// SkipSeed leaves the primary admin alone.
	SkipSeed bool
}

// Open opens the workspace database, applies pending migrations and makes
// sure the primary admin exists.
func Open(ctx context.Context, cfg *config.Config, log *logrus.Logger, opts Options) (*App, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if log == nil {
		log = logging.Discard()
	}
	conn, err := db.Open(db.Config{Workspace: cfg.Database.Workspace})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	applied, err := migrate.Migrate(ctx, conn.DB)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if applied > 0 {
		log.WithFields(logrus.Fields{"applied": applied, "db": db.Path(cfg.Database.Workspace)}).Info("migrations applied")
	}
	store := repo.NewSQLStore(conn)
	a := &App{
		Config: cfg,
		DB:     conn,
		Store:  store,
		Engine: engine.New(store, cfg, log),
		Log:    log,
	}
	if !opts.SkipSeed {
		if _, _, err := a.Seed(ctx); err != nil {
			conn.Close()
			return nil, err
		}
	}
	return a, nil
}

// Seed ensures the configured framework and primary admin exist.
func (a *App) Seed(ctx context.Context) (domain.Person, bool, error) {
	p, created, err := a.Engine.EnsurePrimaryAdmin(ctx, a.Config.Seed)
	if err != nil {
		return domain.Person{}, false, fmt.Errorf("seed primary admin: %w", err)
	}
	if created {
		a.Log.WithFields(logrus.Fields{"person_id": p.ID, "personal_number": p.PersonalNumber}).Info("primary admin created")
	}
	return p, created, nil
}

func (a *App) Close() error {
	return a.Store.Close()
}
