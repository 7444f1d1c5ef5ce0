package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/handler"
	"github.com/ellavondegurechaff/slotkeeper/internal/domain/slots"
	"github.com/ellavondegurechaff/slotkeeper/slotkeeper"
	"github.com/ellavondegurechaff/slotkeeper/slotkeeper/commands"
	"github.com/ellavondegurechaff/slotkeeper/slotkeeper/config"
	"github.com/ellavondegurechaff/slotkeeper/slotkeeper/handlers"
	"github.com/ellavondegurechaff/slotkeeper/slotkeeper/logger"
	"github.com/ellavondegurechaff/slotkeeper/slotkeeper/platform"
	"github.com/ellavondegurechaff/slotkeeper/slotkeeper/scheduler"
	"github.com/ellavondegurechaff/slotkeeper/slotkeeper/services"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	slog.SetDefault(slog.New(logger.NewHandler(slog.LevelInfo)))

	shouldSyncCommands := flag.Bool("sync-commands", false, "Whether to sync commands to discord")
	path := flag.String("config", "config.toml", "path to config")
	flag.Parse()

	cfg, err := slotkeeper.LoadConfig(*path)
	if err != nil {
		slog.Error("Failed to load configuration", slog.Any("error", err))
		os.Exit(-1)
	}
	slog.SetDefault(slog.New(logger.NewHandler(logger.ParseLevel(cfg.Log.Level))))

	slog.Info("Starting Slotkeeper",
		slog.String("version", version),
		slog.String("commit", commit),
		slog.String("store", cfg.DB.Driver))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	store, db, err := slotkeeper.OpenStore(ctx, cfg.DB)
	if err != nil {
		slog.Error("Failed to open slot store",
			slog.String("type", "db"),
			slog.Any("error", err))
		os.Exit(-1)
	}
	if db != nil {
		defer db.Close()
	}

	catalog, err := cfg.Catalog()
	if err != nil {
		slog.Error("Invalid plan catalog", slog.Any("error", err))
		os.Exit(-1)
	}

	b := slotkeeper.New(*cfg, version, commit)
	b.DB = db
	b.Slots = slots.NewController(store, catalog, cfg.ControllerOptions()...)

	if cfg.Spaces.Enabled() {
		b.Backup, err = services.NewSpacesBackup(ctx,
			cfg.Spaces.Key,
			cfg.Spaces.Secret,
			cfg.Spaces.Region,
			cfg.Spaces.Bucket,
			cfg.Spaces.Prefix,
		)
		if err != nil {
			slog.Error("Failed to initialize backups", slog.Any("error", err))
			os.Exit(-1)
		}
	}

	h := handler.New()
	commands.Register(h, b)

	listeners, err := handlers.NewListeners(b.Slots, b)
	if err != nil {
		slog.Error("Failed to create listeners", slog.Any("error", err))
		os.Exit(-1)
	}

	if err = b.SetupBot(h,
		bot.NewListenerFunc(b.OnReady),
		handlers.MessageHandler(listeners),
		handlers.MemberJoinHandler(listeners),
	); err != nil {
		slog.Error("Failed to setup bot",
			slog.String("type", "sys"),
			slog.Any("error", err),
			slog.String("error_details", fmt.Sprintf("%+v", err)),
			slog.String("component", "bot_setup"),
			slog.String("status", "failed"),
		)
		os.Exit(-1)
	}

	b.Executor = platform.NewExecutor(b.Client.Rest(), b.Directory, b.Slots,
		platform.WithConcurrency(config.MaxConcurrentBatches),
		platform.WithRateLimit(config.EffectRateLimit, config.EffectBurst),
		platform.WithEffectTimeout(config.EffectTimeout),
	)
	defer b.Executor.Close()

	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		b.Client.Close(ctx)
	}()

	if *shouldSyncCommands {
		slog.Info("Syncing commands",
			slog.String("type", "sys"),
			slog.Any("guild_ids", cfg.Bot.DevGuilds),
		)
		if err = handler.SyncCommands(b.Client, commands.Commands, cfg.Bot.DevGuilds); err != nil {
			slog.Error("Failed to sync commands",
				slog.String("type", "sys"),
				slog.Any("error", err),
				slog.String("error_details", fmt.Sprintf("%+v", err)),
				slog.String("component", "command_sync"),
				slog.String("status", "failed"),
			)
		}
	}

	gwCtx, gwCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer gwCancel()
	if err = b.Client.OpenGateway(gwCtx); err != nil {
		slog.Error("Failed to open gateway",
			slog.String("type", "sys"),
			slog.Any("error", err),
			slog.String("error_details", fmt.Sprintf("%+v", err)),
			slog.String("component", "gateway"),
			slog.String("status", "failed"),
		)
		os.Exit(-1)
	}

	sched, err := newScheduler(cfg, b)
	if err != nil {
		slog.Error("Failed to build schedule", slog.Any("error", err))
		os.Exit(-1)
	}
	runCtx, stop := context.WithCancel(context.Background())
	defer stop()
	sched.Start(runCtx)
	defer sched.Stop()

	slog.Info("Bot is running. Press CTRL-C to exit.")
	s := make(chan os.Signal, 1)
	signal.Notify(s, syscall.SIGINT, syscall.SIGTERM)
	<-s
	slog.Info("Shutting down bot...")
}

func newScheduler(cfg *slotkeeper.Config, b *slotkeeper.Bot) (*scheduler.Scheduler, error) {
	hour, minute, err := cfg.Schedule.ResetClock()
	if err != nil {
		return nil, err
	}
	loc, err := time.LoadLocation(cfg.Schedule.ResetTimezone)
	if err != nil {
		return nil, err
	}

	jobs := scheduler.SlotJobs(b.Slots, b, scheduler.Schedule{
		ExpiryInterval:  cfg.Schedule.ExpiryInterval.Duration,
		WarningInterval: cfg.Schedule.WarningInterval.Duration,
		ResetHour:       hour,
		ResetMinute:     minute,
		ResetLocation:   loc,
	})
	if b.Backup != nil {
		jobs = append(jobs, scheduler.Job{
			Name: "backup",
			Next: scheduler.Every(cfg.Spaces.Interval.Duration),
			Run:  b.Backup.Job(b.Slots),
		})
	}
	return scheduler.New(jobs), nil
}
