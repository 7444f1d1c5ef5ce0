package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/handler"

	"github.com/ellavondegurechaff/slotkeeper/internal/domain/slots"
	"github.com/ellavondegurechaff/slotkeeper/slotkeeper"
	"github.com/ellavondegurechaff/slotkeeper/slotkeeper/config"
)

var errBackupDisabled = errors.New("backups are not configured")

var Reconcile = discord.SlashCommandCreate{
	Name:        "reconcile",
	Description: "Re-apply the expected permissions and roles of every slot",
	Options: []discord.ApplicationCommandOption{
		discord.ApplicationCommandOptionBool{
			Name:        "prune",
			Description: "Also remove records whose channel no longer exists",
		},
	},
}

// liveChannels lists the channel IDs currently present in the guild.
func liveChannels(b *slotkeeper.Bot) (map[string]bool, error) {
	channels, err := b.Client.Rest().GetGuildChannels(b.Cfg.Bot.GuildID)
	if err != nil {
		return nil, err
	}
	live := make(map[string]bool, len(channels))
	for _, ch := range channels {
		live[ch.ID().String()] = true
	}
	return live, nil
}

func ReconcileHandler(b *slotkeeper.Bot) handler.CommandHandler {
	return staffOnly(b, func(e *handler.CommandEvent) error {
		if err := e.DeferCreateMessage(false); err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(context.Background(), config.CommandExecutionTimeout)
		defer cancel()

		live, err := liveChannels(b)
		if err != nil {
			return fail(e, fmt.Errorf("list channels: %w", err))
		}
		prune, _ := e.SlashCommandInteractionData().OptBool("prune")
		res, err := b.Slots.Reconcile(ctx, slots.ReconcileRequest{
			Live:    live,
			Prune:   prune,
			ActorID: e.User().ID.String(),
		})
		if err != nil {
			return fail(e, err)
		}
		applyInBackground(b, "reconcile", res.Batches)

		var sb strings.Builder
		fmt.Fprintf(&sb, "Re-applying layout of **%d** active and **%d** revoked slots.\n", res.Active, res.Revoked)
		if len(res.Orphans) > 0 {
			fmt.Fprintf(&sb, "Slots without a channel: %s\n", mentions(res.Orphans))
		}
		if len(res.Pruned) > 0 {
			fmt.Fprintf(&sb, "Removed: %s\n", mentions(res.Pruned))
		}
		if res.Failed > 0 {
			fmt.Fprintf(&sb, "%d records failed, see the logs.", res.Failed)
		}
		return updateEmbed(e, successEmbed("Reconciliation started", sb.String()))
	})
}

func mentions(ids []string) string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = "<@" + id + ">"
	}
	return strings.Join(out, ", ")
}

var ResendInfo = discord.SlashCommandCreate{
	Name:        "resendinfo",
	Description: "Repost the welcome message in every slot channel",
}

func ResendInfoHandler(b *slotkeeper.Bot) handler.CommandHandler {
	return sweepCommand(b, "resendinfo", "Welcome messages", b.Slots.ResendInfo)
}

var GenSlotKey = discord.SlashCommandCreate{
	Name:        "genslotkey",
	Description: "DM every owner their recovery key, issuing missing keys",
}

func GenSlotKeyHandler(b *slotkeeper.Bot) handler.CommandHandler {
	return sweepCommand(b, "genslotkey", "Recovery keys", b.Slots.ResendRecoveryKeys)
}

func sweepCommand(b *slotkeeper.Bot, name, title string, sweep func(context.Context) (*slots.SweepResult, error)) handler.CommandHandler {
	return staffOnly(b, func(e *handler.CommandEvent) error {
		if err := e.DeferCreateMessage(false); err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(context.Background(), config.CommandExecutionTimeout)
		defer cancel()

		res, err := sweep(ctx)
		if err != nil {
			return fail(e, err)
		}
		applyInBackground(b, name, res.Batches)
		return updateEmbed(e, successEmbed(title, fmt.Sprintf("Processing **%d** slots (%d failed).", res.Processed, res.Failed)))
	})
}

var Backup = discord.SlashCommandCreate{
	Name:        "backup",
	Description: "Upload a snapshot of every slot to the backup bucket",
}

func BackupHandler(b *slotkeeper.Bot) handler.CommandHandler {
	return staffOnly(b, func(e *handler.CommandEvent) error {
		if err := e.DeferCreateMessage(true); err != nil {
			return err
		}
		if b.Backup == nil {
			return fail(e, errBackupDisabled)
		}
		ctx, cancel := context.WithTimeout(context.Background(), config.BackupUploadTimeout)
		defer cancel()

		snap, err := b.Slots.Snapshot(ctx)
		if err != nil {
			return fail(e, err)
		}
		key, err := b.Backup.Upload(ctx, snap)
		if err != nil {
			return fail(e, err)
		}
		return updateEmbed(e, successEmbed("Backup uploaded", fmt.Sprintf("`%s`\n%d active, %d revoked", key, len(snap.Active), len(snap.Revoked))))
	})
}
