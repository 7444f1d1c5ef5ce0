package commands

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/handler"
	"github.com/disgoorg/disgo/rest"

	"github.com/ellavondegurechaff/slotkeeper/internal/domain/slots"
	"github.com/ellavondegurechaff/slotkeeper/slotkeeper"
	"github.com/ellavondegurechaff/slotkeeper/slotkeeper/config"
	"github.com/ellavondegurechaff/slotkeeper/slotkeeper/platform"
)

func userOption(name, description string) discord.ApplicationCommandOptionUser {
	return discord.ApplicationCommandOptionUser{Name: name, Description: description, Required: true}
}

func durationOptions(required bool) []discord.ApplicationCommandOption {
	return []discord.ApplicationCommandOption{
		discord.ApplicationCommandOptionInt{
			Name:        "duration",
			Description: "How long, in the chosen unit",
			Required:    required,
			MinValue:    &[]int{1}[0],
		},
		discord.ApplicationCommandOptionString{
			Name:        "unit",
			Description: "Unit of the duration",
			Required:    required,
			Choices:     durationUnits,
		},
	}
}

func planOption() discord.ApplicationCommandOptionString {
	return discord.ApplicationCommandOptionString{
		Name:         "plan",
		Description:  "Slot plan",
		Required:     true,
		Autocomplete: true,
	}
}

var Create = discord.SlashCommandCreate{
	Name:        "create",
	Description: "Create a slot channel for a member",
	Options:     createOptions(),
}

func createOptions() []discord.ApplicationCommandOption {
	opts := []discord.ApplicationCommandOption{userOption("user", "The member receiving the slot")}
	opts = append(opts, durationOptions(true)...)
	return append(opts,
		planOption(),
		discord.ApplicationCommandOptionString{
			Name:        "name",
			Description: "Channel name",
			Required:    true,
			MaxLength:   &[]int{config.MaxSlotNameLength}[0],
		},
	)
}

func CreateHandler(b *slotkeeper.Bot) handler.CommandHandler {
	return func(e *handler.CommandEvent) error {
		if err := e.DeferCreateMessage(false); err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(context.Background(), config.CommandExecutionTimeout)
		defer cancel()

		data := e.SlashCommandInteractionData()
		user := data.User("user")
		name := data.String("name")
		d, err := ParseDuration(data.Int("duration"), data.String("unit"))
		if err != nil {
			return fail(e, err)
		}
		plan, err := ResolvePlan(b.Slots.Catalog(), data.String("plan"))
		if err != nil {
			return fail(e, err)
		}
		if existing, err := b.Slots.Info(ctx, user.ID.String()); err == nil && existing.Active() {
			return fail(e, fmt.Errorf("%w: %s already has an active slot", slots.ErrAlreadyExists, user.ID))
		}

		spec, _ := b.Slots.Catalog().Lookup(plan)
		parent, _ := b.Directory.Category(spec.Category)
		ch, err := b.Client.Rest().CreateGuildChannel(b.Cfg.Bot.GuildID, discord.GuildTextChannelCreate{
			Name:     platform.ChannelName(name),
			ParentID: parent,
			PermissionOverwrites: []discord.PermissionOverwrite{
				discord.RolePermissionOverwrite{RoleID: b.Cfg.Bot.GuildID, Deny: discord.PermissionViewChannel},
			},
		}, rest.WithCtx(ctx))
		if err != nil {
			return fail(e, fmt.Errorf("create channel: %w", err))
		}

		res, err := b.Slots.Create(ctx, slots.CreateRequest{
			OwnerID:    user.ID.String(),
			ChannelRef: ch.ID().String(),
			Name:       name,
			Plan:       plan,
			Duration:   d,
			ActorID:    e.User().ID.String(),
		})
		if err != nil {
			if derr := b.Client.Rest().DeleteChannel(ch.ID()); derr != nil {
				slog.Error("Failed to remove channel of failed slot",
					slog.String("type", "cmd"),
					slog.String("channel_id", ch.ID().String()),
					slog.Any("error", derr),
				)
			}
			return fail(e, err)
		}

		embed := successEmbed("Slot created", fmt.Sprintf("Slot created for %s in <#%s>\nPlan: **%s**\nExpires: <t:%d:F>",
			user.Mention(), res.Slot.ChannelRef, res.Slot.Plan.Title(), res.Slot.EndTime.Unix()))
		return updateEmbed(e, applyResult(ctx, b, res, embed))
	}
}

var Revoke = discord.SlashCommandCreate{
	Name:        "revoke",
	Description: "Revoke a member's slot",
	Options: []discord.ApplicationCommandOption{
		userOption("user", "Slot owner"),
		discord.ApplicationCommandOptionString{
			Name:        "reason",
			Description: "Reason shown to the owner",
		},
	},
}

func RevokeHandler(b *slotkeeper.Bot) handler.CommandHandler {
	return ownerAction(b, func(ctx context.Context, e *handler.CommandEvent, owner discord.User) (*slots.Result, discord.Embed, error) {
		reason, ok := e.SlashCommandInteractionData().OptString("reason")
		if !ok || strings.TrimSpace(reason) == "" {
			reason = slots.ReasonManual
		}
		res, err := b.Slots.Revoke(ctx, owner.ID.String(), reason, e.User().ID.String())
		if err != nil {
			return nil, discord.Embed{}, err
		}
		return res, successEmbed("Slot revoked", fmt.Sprintf("Slot of %s revoked.\nReason: %s", owner.Mention(), reason)), nil
	})
}

var Restore = discord.SlashCommandCreate{
	Name:        "restore",
	Description: "Restore a revoked slot",
	Options: append([]discord.ApplicationCommandOption{
		userOption("user", "Owner of the revoked slot"),
	}, durationOptions(false)...),
}

func RestoreHandler(b *slotkeeper.Bot) handler.CommandHandler {
	return ownerAction(b, func(ctx context.Context, e *handler.CommandEvent, owner discord.User) (*slots.Result, discord.Embed, error) {
		data := e.SlashCommandInteractionData()
		req := slots.RestoreRequest{OwnerID: owner.ID.String(), ActorID: e.User().ID.String()}
		if amount, ok := data.OptInt("duration"); ok {
			d, err := ParseDuration(amount, data.String("unit"))
			if err != nil {
				return nil, discord.Embed{}, err
			}
			req.Extend = d
		}
		res, err := b.Slots.Restore(ctx, req)
		if err != nil {
			return nil, discord.Embed{}, err
		}
		return res, successEmbed("Slot restored", fmt.Sprintf("Slot of %s restored.\nExpires: <t:%d:F>",
			owner.Mention(), res.Slot.EndTime.Unix())), nil
	})
}

var Hold = discord.SlashCommandCreate{
	Name:        "hold",
	Description: "Put a slot on hold, the owner can no longer post",
	Options: []discord.ApplicationCommandOption{
		userOption("user", "Slot owner"),
		discord.ApplicationCommandOptionString{
			Name:        "reason",
			Description: "Reason shown to the owner",
			Required:    true,
		},
	},
}

func HoldHandler(b *slotkeeper.Bot) handler.CommandHandler {
	return ownerAction(b, func(ctx context.Context, e *handler.CommandEvent, owner discord.User) (*slots.Result, discord.Embed, error) {
		reason := e.SlashCommandInteractionData().String("reason")
		res, err := b.Slots.Hold(ctx, owner.ID.String(), reason, e.User().ID.String())
		if err != nil {
			return nil, discord.Embed{}, err
		}
		return res, successEmbed("Slot on hold", fmt.Sprintf("Slot of %s is now on hold.\nReason: %s", owner.Mention(), strings.TrimSpace(reason))), nil
	})
}

var Unhold = discord.SlashCommandCreate{
	Name:        "unhold",
	Description: "Lift the hold of a slot",
	Options:     []discord.ApplicationCommandOption{userOption("user", "Slot owner")},
}

func UnholdHandler(b *slotkeeper.Bot) handler.CommandHandler {
	return ownerAction(b, func(ctx context.Context, e *handler.CommandEvent, owner discord.User) (*slots.Result, discord.Embed, error) {
		res, err := b.Slots.Unhold(ctx, owner.ID.String(), e.User().ID.String())
		if err != nil {
			return nil, discord.Embed{}, err
		}
		return res, successEmbed("Hold lifted", fmt.Sprintf("Slot of %s is active again.\nExpires: <t:%d:F>",
			owner.Mention(), res.Slot.EndTime.Unix())), nil
	})
}

var Transfer = discord.SlashCommandCreate{
	Name:        "transfer",
	Description: "Move a slot to another member",
	Options: []discord.ApplicationCommandOption{
		userOption("from", "Current owner"),
		userOption("to", "New owner"),
	},
}

func TransferHandler(b *slotkeeper.Bot) handler.CommandHandler {
	return ownerAction(b, func(ctx context.Context, e *handler.CommandEvent, from discord.User) (*slots.Result, discord.Embed, error) {
		to := e.SlashCommandInteractionData().User("to")
		res, err := b.Slots.Transfer(ctx, from.ID.String(), to.ID.String(), e.User().ID.String())
		if err != nil {
			return nil, discord.Embed{}, err
		}
		return res, successEmbed("Slot transferred", fmt.Sprintf("Slot <#%s> moved from %s to %s.",
			res.Slot.ChannelRef, from.Mention(), to.Mention())), nil
	}, "from")
}

var Move = discord.SlashCommandCreate{
	Name:        "move",
	Description: "Change the plan of a slot",
	Options: []discord.ApplicationCommandOption{
		userOption("user", "Slot owner"),
		planOption(),
	},
}

func MoveHandler(b *slotkeeper.Bot) handler.CommandHandler {
	return ownerAction(b, func(ctx context.Context, e *handler.CommandEvent, owner discord.User) (*slots.Result, discord.Embed, error) {
		plan, err := ResolvePlan(b.Slots.Catalog(), e.SlashCommandInteractionData().String("plan"))
		if err != nil {
			return nil, discord.Embed{}, err
		}
		res, err := b.Slots.Move(ctx, owner.ID.String(), plan, e.User().ID.String())
		if err != nil {
			return nil, discord.Embed{}, err
		}
		return res, successEmbed("Slot moved", fmt.Sprintf("Slot of %s is now **%s**.", owner.Mention(), plan.Title())), nil
	})
}

var Extend = discord.SlashCommandCreate{
	Name:        "extend",
	Description: "Add time to a slot",
	Options: append([]discord.ApplicationCommandOption{
		userOption("user", "Slot owner"),
	}, durationOptions(true)...),
}

func ExtendHandler(b *slotkeeper.Bot) handler.CommandHandler {
	return ownerAction(b, func(ctx context.Context, e *handler.CommandEvent, owner discord.User) (*slots.Result, discord.Embed, error) {
		data := e.SlashCommandInteractionData()
		d, err := ParseDuration(data.Int("duration"), data.String("unit"))
		if err != nil {
			return nil, discord.Embed{}, err
		}
		res, err := b.Slots.Extend(ctx, owner.ID.String(), d, e.User().ID.String())
		if err != nil {
			return nil, discord.Embed{}, err
		}
		return res, successEmbed("Slot extended", fmt.Sprintf("Slot of %s now expires <t:%d:F>.",
			owner.Mention(), res.Slot.EndTime.Unix())), nil
	})
}

var Rename = discord.SlashCommandCreate{
	Name:        "rename",
	Description: "Rename a slot channel",
	Options: []discord.ApplicationCommandOption{
		userOption("user", "Slot owner"),
		discord.ApplicationCommandOptionString{
			Name:        "name",
			Description: "New channel name",
			Required:    true,
			MaxLength:   &[]int{config.MaxSlotNameLength}[0],
		},
	},
}

func RenameHandler(b *slotkeeper.Bot) handler.CommandHandler {
	return ownerAction(b, func(ctx context.Context, e *handler.CommandEvent, owner discord.User) (*slots.Result, discord.Embed, error) {
		name := e.SlashCommandInteractionData().String("name")
		res, err := b.Slots.Rename(ctx, owner.ID.String(), name, e.User().ID.String())
		if err != nil {
			return nil, discord.Embed{}, err
		}
		return res, successEmbed("Slot renamed", fmt.Sprintf("Slot of %s is now <#%s>.", owner.Mention(), res.Slot.ChannelRef)), nil
	})
}

var Nuke = discord.SlashCommandCreate{
	Name:        "nuke",
	Description: "Wipe a slot channel and reset its pings",
	Options: []discord.ApplicationCommandOption{
		discord.ApplicationCommandOptionUser{
			Name:        "user",
			Description: "Slot owner, defaults to you",
		},
	},
}

// NukeHandler is open to everyone; the controller only lets owners nuke their
// own slot unless the caller is staff.
func NukeHandler(b *slotkeeper.Bot) handler.CommandHandler {
	return func(e *handler.CommandEvent) error {
		if err := e.DeferCreateMessage(true); err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(context.Background(), config.CommandExecutionTimeout)
		defer cancel()

		owner, ok := e.SlashCommandInteractionData().OptUser("user")
		if !ok {
			owner = e.User()
		}
		res, err := b.Slots.Nuke(ctx, slots.NukeRequest{
			OwnerID: owner.ID.String(),
			ActorID: e.User().ID.String(),
			Admin:   isStaff(b, e.Member()),
		})
		if err != nil {
			return fail(e, err)
		}
		embed := successEmbed("Slot nuked", fmt.Sprintf("Slot <#%s> of %s was wiped and reset.", res.Slot.ChannelRef, owner.Mention()))
		return updateEmbed(e, applyResult(ctx, b, res, embed))
	}
}

var Clean = discord.SlashCommandCreate{
	Name:        "clean",
	Description: "Remove the record of a slot whose channel was deleted",
	Options:     []discord.ApplicationCommandOption{userOption("user", "Slot owner")},
}

func CleanHandler(b *slotkeeper.Bot) handler.CommandHandler {
	return ownerAction(b, func(ctx context.Context, e *handler.CommandEvent, owner discord.User) (*slots.Result, discord.Embed, error) {
		s, err := b.Slots.Info(ctx, owner.ID.String())
		if err != nil {
			return nil, discord.Embed{}, err
		}
		exists, err := channelExists(b, s.ChannelRef)
		if err != nil {
			return nil, discord.Embed{}, err
		}
		res, err := b.Slots.Clean(ctx, owner.ID.String(), exists, e.User().ID.String())
		if err != nil {
			return nil, discord.Embed{}, err
		}
		return res, successEmbed("Slot cleaned", fmt.Sprintf("Orphaned slot record of %s removed.", owner.Mention())), nil
	})
}

func channelExists(b *slotkeeper.Bot, ref string) (bool, error) {
	id, err := platform.ParseID(ref)
	if err != nil {
		return false, nil
	}
	if _, err := b.Client.Rest().GetChannel(id); err != nil {
		if platform.IsUnknown(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// ownerAction is the common shape of staff commands acting on one owner:
// defer, run the transition, apply its effects, answer with the embed.
func ownerAction(b *slotkeeper.Bot, fn func(ctx context.Context, e *handler.CommandEvent, owner discord.User) (*slots.Result, discord.Embed, error), option ...string) handler.CommandHandler {
	name := "user"
	if len(option) > 0 {
		name = option[0]
	}
	return staffOnly(b, func(e *handler.CommandEvent) error {
		if err := e.DeferCreateMessage(false); err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(context.Background(), config.CommandExecutionTimeout)
		defer cancel()

		owner := e.SlashCommandInteractionData().User(name)
		res, embed, err := fn(ctx, e, owner)
		if err != nil {
			return fail(e, err)
		}
		return updateEmbed(e, applyResult(ctx, b, res, embed))
	})
}
