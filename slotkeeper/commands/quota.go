package commands

import (
	"context"
	"fmt"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/handler"

	"github.com/ellavondegurechaff/slotkeeper/internal/domain/slots"
	"github.com/ellavondegurechaff/slotkeeper/slotkeeper"
	"github.com/ellavondegurechaff/slotkeeper/slotkeeper/config"
	"github.com/ellavondegurechaff/slotkeeper/slotkeeper/platform"
)

var AddPings = discord.SlashCommandCreate{
	Name:        "addpings",
	Description: "Give a slot extra pings for every reset period",
	Options: []discord.ApplicationCommandOption{
		userOption("user", "Slot owner"),
		discord.ApplicationCommandOptionInt{
			Name:        "here",
			Description: "Extra @here pings",
			MinValue:    &[]int{0}[0],
		},
		discord.ApplicationCommandOptionInt{
			Name:        "everyone",
			Description: "Extra @everyone pings",
			MinValue:    &[]int{0}[0],
		},
	},
}

func AddPingsHandler(b *slotkeeper.Bot) handler.CommandHandler {
	return ownerAction(b, func(ctx context.Context, e *handler.CommandEvent, owner discord.User) (*slots.Result, discord.Embed, error) {
		data := e.SlashCommandInteractionData()
		here, _ := data.OptInt("here")
		everyone, _ := data.OptInt("everyone")
		res, err := b.Slots.GrantCredits(ctx, owner.ID.String(), here, everyone, e.User().ID.String())
		if err != nil {
			return nil, discord.Embed{}, err
		}
		u := slots.Usage{EveryoneUsed: res.Slot.EveryoneUsed, HereUsed: res.Slot.HereUsed, Limits: *res.Slot.CustomLimits}
		return res, successEmbed("Pings added", fmt.Sprintf("Added **%dx @here** and **%dx @everyone** to %s\n%s",
			here, everyone, owner.Mention(), platform.UsageLine(u))), nil
	})
}

var ResetPings = discord.SlashCommandCreate{
	Name:        "resetpings",
	Description: "Reset the ping counters of one slot",
	Options:     []discord.ApplicationCommandOption{userOption("user", "Slot owner")},
}

func ResetPingsHandler(b *slotkeeper.Bot) handler.CommandHandler {
	return ownerAction(b, func(ctx context.Context, e *handler.CommandEvent, owner discord.User) (*slots.Result, discord.Embed, error) {
		res, err := b.Slots.ResetQuota(ctx, owner.ID.String(), e.User().ID.String())
		if err != nil {
			return nil, discord.Embed{}, err
		}
		return res, successEmbed("Pings reset", fmt.Sprintf("Ping counters of %s are back to zero.", owner.Mention())), nil
	})
}

var PingsReset = discord.SlashCommandCreate{
	Name:        "pingsreset",
	Description: "Reset the ping counters of every slot now",
}

func PingsResetHandler(b *slotkeeper.Bot) handler.CommandHandler {
	return staffOnly(b, func(e *handler.CommandEvent) error {
		if err := e.DeferCreateMessage(false); err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(context.Background(), config.CommandExecutionTimeout)
		defer cancel()

		res, err := b.Slots.ResetAllQuotas(ctx, true, e.User().ID.String())
		if err != nil {
			return fail(e, err)
		}
		applyInBackground(b, "pingsreset", res.Batches)
		return updateEmbed(e, successEmbed("Pings reset", fmt.Sprintf("Reset the ping counters of **%d** slots (%d failed).", res.Processed, res.Failed)))
	})
}

var Pings = discord.SlashCommandCreate{
	Name:        "pings",
	Description: "Show the pings left on your slot",
}

func PingsHandler(b *slotkeeper.Bot) handler.CommandHandler {
	return func(e *handler.CommandEvent) error {
		ctx, cancel := context.WithTimeout(context.Background(), config.CommandExecutionTimeout)
		defer cancel()

		u, err := b.Slots.Usage(ctx, e.User().ID.String())
		if err != nil {
			return e.CreateMessage(discord.MessageCreate{
				Embeds: []discord.Embed{platform.ErrorEmbed(err)},
				Flags:  discord.MessageFlagEphemeral,
			})
		}
		return e.CreateMessage(discord.MessageCreate{
			Embeds: []discord.Embed{infoEmbed("Ping usage", platform.UsageLine(u))},
			Flags:  discord.MessageFlagEphemeral,
		})
	}
}
