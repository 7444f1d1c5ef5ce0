package slotkeeper

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/disgoorg/disgo"
	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/cache"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/disgo/gateway"
	"github.com/disgoorg/paginator"
	"github.com/disgoorg/snowflake/v2"
	"github.com/ellavondegurechaff/slotkeeper/internal/domain/slots"
	"github.com/ellavondegurechaff/slotkeeper/slotkeeper/database"
	"github.com/ellavondegurechaff/slotkeeper/slotkeeper/platform"
	"github.com/ellavondegurechaff/slotkeeper/slotkeeper/services"
)

func New(cfg Config, version string, commit string) *Bot {
	return &Bot{
		Cfg:       cfg,
		Paginator: paginator.New(),
		Version:   version,
		Commit:    commit,
	}
}

type Bot struct {
	Cfg       Config
	Client    bot.Client
	Paginator *paginator.Manager
	Version   string
	Commit    string
	DB        *database.DB
	Slots     *slots.Controller
	Directory *platform.Directory
	Renderer  *platform.Renderer
	Executor  *platform.Executor
	Backup    *services.SpacesBackup
}

func (b *Bot) SetupBot(listeners ...bot.EventListener) error {
	client, err := disgo.New(b.Cfg.Bot.Token,
		bot.WithGatewayConfigOpts(gateway.WithIntents(
			gateway.IntentGuilds,
			gateway.IntentGuildMessages,
			gateway.IntentMessageContent,
			gateway.IntentGuildMembers,
		)),
		bot.WithCacheConfigOpts(cache.WithCaches(cache.FlagGuilds, cache.FlagChannels)),
		bot.WithEventListeners(b.Paginator),
		bot.WithEventListeners(listeners...),
	)
	if err != nil {
		return err
	}

	b.Client = client
	b.Directory = NewDirectory(b.Cfg, client.ApplicationID())
	b.Renderer = platform.NewRenderer(b.Directory)
	return nil
}

// NewDirectory maps the configured roles, categories and channels to the
// symbolic names effects use.
func NewDirectory(cfg Config, selfID snowflake.ID) *platform.Directory {
	dir := &platform.Directory{
		GuildID:       cfg.Bot.GuildID,
		SelfID:        selfID,
		AdminLog:      cfg.Channels.AdminLog,
		PingReset:     cfg.Channels.PingReset,
		RecoveryPanel: cfg.Channels.RecoveryPanel,
		Roles: map[slots.Role]snowflake.ID{
			slots.RoleAccess: cfg.Roles.Access,
			slots.RoleOnHold: cfg.Roles.OnHold,
			slots.RoleStaff:  cfg.Roles.Staff,
			slots.RoleAdmin:  cfg.Roles.Admin,
			slots.RoleMember: cfg.Roles.Member,
			slots.RoleHidden: cfg.Roles.Hidden,
		},
		Categories: map[slots.Category]snowflake.ID{
			slots.CategoryRevoked: cfg.Channels.RevokedCategory,
		},
	}
	for name, id := range cfg.Roles.Plans {
		dir.Roles[slots.Role(strings.ToLower(name))] = id
	}
	for name, id := range cfg.Channels.Categories {
		dir.Categories[slots.Category(strings.ToLower(name))] = id
	}
	return dir
}

func (b *Bot) OnReady(e *events.Ready) {
	slog.Info("Slotkeeper is now ready",
		slog.String("type", "sys"),
		slog.String("version", b.Version),
		slog.String("commit", b.Commit),
		slog.String("user", e.User.Username))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := b.Client.SetPresence(ctx,
		gateway.WithWatchingActivity("the slots"),
		gateway.WithOnlineStatus(discord.OnlineStatusOnline)); err != nil {
		slog.Error("Failed to set presence", slog.Any("error", err))
	}
}

// Apply runs effect batches through the executor.
func (b *Bot) Apply(ctx context.Context, batches ...slots.Batch) (platform.Report, error) {
	return b.Executor.Apply(ctx, batches...)
}
