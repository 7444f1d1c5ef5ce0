package slotkeeper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ellavondegurechaff/slotkeeper/internal/domain/slots"
	"github.com/ellavondegurechaff/slotkeeper/slotkeeper/database"
	"github.com/ellavondegurechaff/slotkeeper/slotkeeper/database/repositories"
)

// OpenStore opens the slot store selected by db.driver. The returned DB is nil
// for the file driver.
func OpenStore(ctx context.Context, cfg DBConfig) (slots.Store, *database.DB, error) {
	if cfg.Driver == DriverFile {
		store, err := slots.OpenFileStore(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		slog.Info("Using file store",
			slog.String("type", "db"),
			slog.String("path", cfg.Path))
		return store, nil, nil
	}

	start := time.Now()
	db, err := database.New(ctx, database.DBConfig{
		Host:     cfg.Host,
		Port:     cfg.Port,
		User:     cfg.User,
		Password: cfg.Password,
		Database: cfg.Database,
		PoolSize: cfg.PoolSize,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("database connection failed after %s: %w", time.Since(start).Round(time.Millisecond), err)
	}
	slog.Info("Database connected successfully",
		slog.String("type", "db"),
		slog.String("database", cfg.Database),
		slog.Duration("took", time.Since(start)))

	if err := db.InitializeSchema(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}
	return repositories.NewSlotRepository(db.BunDB()), db, nil
}
