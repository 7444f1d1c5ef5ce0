package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/handler"

	"github.com/ellavondegurechaff/slotkeeper/internal/domain/slots"
	"github.com/ellavondegurechaff/slotkeeper/slotkeeper"
	"github.com/ellavondegurechaff/slotkeeper/slotkeeper/config"
	"github.com/ellavondegurechaff/slotkeeper/slotkeeper/platform"
)

var errNotOwner = fmt.Errorf("%w: only the slot owner can view this key", slots.ErrPreconditionFailed)

var RecoveryPanel = discord.SlashCommandCreate{
	Name:        "recoverypanel",
	Description: "Post the slot recovery panel",
}

// RecoveryPanelHandler posts the panel in the configured channel, or in the
// current one when none is configured.
func RecoveryPanelHandler(b *slotkeeper.Bot) handler.CommandHandler {
	return staffOnly(b, func(e *handler.CommandEvent) error {
		ctx, cancel := context.WithTimeout(context.Background(), config.CommandExecutionTimeout)
		defer cancel()

		channelID := b.Cfg.Channels.RecoveryPanel
		if channelID == 0 {
			channelID = e.ChannelID()
		}
		if _, err := b.Executor.Post(ctx, channelID, platform.RecoveryPanel()); err != nil {
			return ephemeralError(e, err)
		}
		return e.CreateMessage(discord.MessageCreate{
			Embeds: []discord.Embed{successEmbed("Recovery panel", fmt.Sprintf("Posted in <#%s>.", channelID))},
			Flags:  discord.MessageFlagEphemeral,
		})
	})
}

// RecoveryButtonHandler opens the recovery key modal.
func RecoveryButtonHandler(_ *slotkeeper.Bot) handler.ComponentHandler {
	return func(e *handler.ComponentEvent) error {
		return e.Modal(platform.RecoveryModal())
	}
}

// RecoveryModalHandler redeems the submitted key for the submitting member.
func RecoveryModalHandler(b *slotkeeper.Bot) handler.ModalHandler {
	return func(e *handler.ModalEvent) error {
		if err := e.DeferCreateMessage(true); err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(context.Background(), config.CommandExecutionTimeout)
		defer cancel()

		reply := func(embed discord.Embed) error {
			_, err := b.Client.Rest().UpdateInteractionResponse(e.ApplicationID(), e.Token(), discord.MessageUpdate{
				Embeds: &[]discord.Embed{embed},
			})
			return err
		}

		res, err := b.Slots.Redeem(ctx, e.Data.Text(config.RecoveryKeyField), e.User().ID.String())
		if err != nil {
			slog.Warn("Recovery key rejected",
				slog.String("type", "cmd"),
				slog.String("user_id", e.User().ID.String()),
				slog.Any("error", err),
			)
			if rerr := reply(platform.ErrorEmbed(err)); rerr != nil {
				return rerr
			}
			return err
		}

		embed := successEmbed("Slot recovered", fmt.Sprintf("<#%s> now belongs to you. Your new recovery key was sent by DM.", res.Slot.ChannelRef))
		return reply(applyResult(ctx, b, res, embed))
	}
}

// CopyKeyHandler shows the owner their recovery key. Everyone else is refused.
func CopyKeyHandler(b *slotkeeper.Bot) handler.ComponentHandler {
	return func(e *handler.ComponentEvent) error {
		ephemeral := func(embed discord.Embed) error {
			return e.CreateMessage(discord.MessageCreate{
				Embeds: []discord.Embed{embed},
				Flags:  discord.MessageFlagEphemeral,
			})
		}

		owner := e.Vars["owner"]
		if owner != e.User().ID.String() {
			return ephemeral(platform.ErrorEmbed(errNotOwner))
		}

		ctx, cancel := context.WithTimeout(context.Background(), config.CommandExecutionTimeout)
		defer cancel()

		s, err := b.Slots.Info(ctx, owner)
		if err != nil {
			return ephemeral(platform.ErrorEmbed(err))
		}
		if !s.Active() || s.RecoverySecret == "" {
			return ephemeral(platform.ErrorEmbed(slots.ErrNotFound))
		}
		return ephemeral(discord.NewEmbedBuilder().
			SetTitle("Your recovery key").
			SetDescription(fmt.Sprintf("||`%s`||\nKeep it private. Anyone holding it can take over your slot.", s.RecoverySecret)).
			SetColor(config.SuccessColor).
			Build())
	}
}
