package handlers

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	lru "github.com/hashicorp/golang-lru"

	"github.com/ellavondegurechaff/slotkeeper/internal/domain/slots"
	"github.com/ellavondegurechaff/slotkeeper/slotkeeper/config"
	"github.com/ellavondegurechaff/slotkeeper/slotkeeper/platform"
)

// SlotEvents is the part of the controller the gateway listeners drive.
type SlotEvents interface {
	ObserveMessage(ctx context.Context, o slots.Observation) (*slots.QuotaResult, error)
	MemberJoined(ctx context.Context, ownerID string) (*slots.Result, error)
}

type Applier interface {
	Apply(ctx context.Context, batches ...slots.Batch) (platform.Report, error)
}

// Listeners feeds gateway events into the slot controller and executes the
// resulting effects.
type Listeners struct {
	slots SlotEvents
	exec  Applier
	// gateway resumes can redeliver MESSAGE_CREATE
	seen *lru.Cache
}

func NewListeners(s SlotEvents, exec Applier) (*Listeners, error) {
	seen, err := lru.New(config.SeenMessageCacheSize)
	if err != nil {
		return nil, err
	}
	return &Listeners{slots: s, exec: exec, seen: seen}, nil
}

// MessageHandler returns the listener for guild messages.
func MessageHandler(l *Listeners) bot.EventListener {
	return bot.NewListenerFunc(func(e *events.GuildMessageCreate) {
		l.HandleMessage(context.Background(), e.Message)
	})
}

// MemberJoinHandler returns the listener for members joining the guild.
func MemberJoinHandler(l *Listeners) bot.EventListener {
	return bot.NewListenerFunc(func(e *events.GuildMemberJoin) {
		l.HandleJoin(context.Background(), e.Member.User.ID.String())
	})
}

// Observation extracts the broadcast mentions of a message. Only mentions the
// platform actually delivered are counted.
func Observation(msg discord.Message) slots.Observation {
	o := slots.Observation{
		AuthorID:   msg.Author.ID.String(),
		ChannelRef: msg.ChannelID.String(),
		MessageRef: msg.ID.String(),
	}
	if msg.MentionEveryone {
		o.Everyone = strings.Contains(msg.Content, "@everyone")
		o.Here = strings.Contains(msg.Content, "@here")
	}
	return o
}

func (l *Listeners) HandleMessage(ctx context.Context, msg discord.Message) {
	if msg.Author.Bot || msg.WebhookID != nil {
		return
	}
	if seen, _ := l.seen.ContainsOrAdd(msg.ID, struct{}{}); seen {
		return
	}

	res, err := l.slots.ObserveMessage(ctx, Observation(msg))
	if err != nil {
		slog.Error("Failed to observe message",
			slog.String("type", "cmd"),
			slog.String("message_id", msg.ID.String()),
			slog.String("author_id", msg.Author.ID.String()),
			slog.Any("error", err),
		)
		return
	}
	if res.Outcome == slots.QuotaIgnored || len(res.Effects) == 0 {
		return
	}
	if res.Outcome == slots.QuotaLimitExceeded {
		slog.Warn("Slot revoked for ping abuse",
			slog.String("type", "cmd"),
			slog.String("owner_id", res.Slot.OwnerID),
			slog.Int("everyone_used", res.Usage.EveryoneUsed),
			slog.Int("here_used", res.Usage.HereUsed),
		)
	}
	l.apply(ctx, slots.Batch{OwnerID: res.Slot.OwnerID, Effects: res.Effects})
}

func (l *Listeners) HandleJoin(ctx context.Context, userID string) {
	res, err := l.slots.MemberJoined(ctx, userID)
	if err != nil {
		if !errors.Is(err, slots.ErrNotFound) {
			slog.Error("Failed to restore slot access on join",
				slog.String("type", "cmd"),
				slog.String("user_id", userID),
				slog.Any("error", err),
			)
		}
		return
	}
	l.apply(ctx, res.Batch())
}

func (l *Listeners) apply(ctx context.Context, b slots.Batch) {
	if _, err := l.exec.Apply(ctx, b); err != nil {
		slog.Error("Failed to apply effects",
			slog.String("type", "cmd"),
			slog.String("owner_id", b.OwnerID),
			slog.Any("error", err),
		)
	}
}
