package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/ellavondegurechaff/slotkeeper/internal/domain/slots"
	"github.com/ellavondegurechaff/slotkeeper/slotkeeper"
	"github.com/ellavondegurechaff/slotkeeper/slotkeeper/database"
	"github.com/ellavondegurechaff/slotkeeper/slotkeeper/logger"
	"github.com/ellavondegurechaff/slotkeeper/slotkeeper/services"
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "slotctl",
	Short:         "Offline maintenance for the slotkeeper store",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.toml", "path to config")
}

func main() {
	slog.SetDefault(slog.New(logger.NewHandler(slog.LevelInfo)))
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		slog.Error("Command failed", slog.String("type", "sys"), slog.Any("error", err))
		os.Exit(1)
	}
}

// env is what every subcommand works with: the loaded config and an open
// slot controller.
type env struct {
	cfg   *slotkeeper.Config
	db    *database.DB
	slots *slots.Controller
}

func (e *env) Close() {
	if e.db != nil {
		e.db.Close()
	}
}

func openEnv(ctx context.Context) (*env, error) {
	cfg, err := slotkeeper.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(slog.New(logger.NewHandler(logger.ParseLevel(cfg.Log.Level))))

	catalog, err := cfg.Catalog()
	if err != nil {
		return nil, err
	}
	store, db, err := slotkeeper.OpenStore(ctx, cfg.DB)
	if err != nil {
		return nil, err
	}
	return &env{
		cfg:   cfg,
		db:    db,
		slots: slots.NewController(store, catalog, cfg.ControllerOptions()...),
	}, nil
}

func (e *env) backup(ctx context.Context) (*services.SpacesBackup, error) {
	s := e.cfg.Spaces
	if !s.Enabled() {
		return nil, fmt.Errorf("spaces backups are not configured")
	}
	return services.NewSpacesBackup(ctx, s.Key, s.Secret, s.Region, s.Bucket, s.Prefix)
}
