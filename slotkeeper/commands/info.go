package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/handler"
	"github.com/disgoorg/paginator"

	"github.com/ellavondegurechaff/slotkeeper/internal/domain/slots"
	"github.com/ellavondegurechaff/slotkeeper/slotkeeper"
	"github.com/ellavondegurechaff/slotkeeper/slotkeeper/config"
	"github.com/ellavondegurechaff/slotkeeper/slotkeeper/platform"
)

func ephemeralError(e *handler.CommandEvent, err error) error {
	return e.CreateMessage(discord.MessageCreate{
		Embeds: []discord.Embed{platform.ErrorEmbed(err)},
		Flags:  discord.MessageFlagEphemeral,
	})
}

var SlotInfo = discord.SlashCommandCreate{
	Name:        "slotinfo",
	Description: "Show the details of a slot",
	Options: []discord.ApplicationCommandOption{
		discord.ApplicationCommandOptionUser{
			Name:        "user",
			Description: "Slot owner, defaults to you",
		},
	},
}

// SlotEmbed renders the status of a slot. The recovery key is never shown.
func SlotEmbed(s *slots.Slot, u slots.Usage, now time.Time) discord.Embed {
	eb := discord.NewEmbedBuilder().
		SetTitle("Slot information").
		SetColor(config.InfoColor).
		AddField("Owner", "<@"+s.OwnerID+">", true).
		AddField("Channel", "<#"+s.ChannelRef+">", true).
		AddField("Plan", s.Plan.Title(), true).
		AddField("Started", fmt.Sprintf("<t:%d:F>", s.StartTime.Unix()), true).
		AddField("Expires", fmt.Sprintf("<t:%d:F> (<t:%d:R>)", s.EndTime.Unix(), s.EndTime.Unix()), true)

	switch {
	case !s.Active():
		eb.SetColor(config.RevokedColor).
			AddField("Status", fmt.Sprintf("Revoked <t:%d:R>: %s", s.RevokedAt.Unix(), s.RevokeReason), false)
	case s.Held:
		eb.SetColor(config.HeldColor).
			AddField("Status", fmt.Sprintf("On hold since <t:%d:R>", s.HeldAt.Unix()), false)
	case !s.EndTime.After(now):
		eb.SetColor(config.WarningColor).AddField("Status", "Expired, awaiting sweep", false)
	default:
		eb.AddField("Status", "Active", false)
	}
	if s.Active() {
		eb.AddField("Pings", platform.UsageLine(u), false)
	}
	return eb.Build()
}

func SlotInfoHandler(b *slotkeeper.Bot) handler.CommandHandler {
	return func(e *handler.CommandEvent) error {
		ctx, cancel := context.WithTimeout(context.Background(), config.CommandExecutionTimeout)
		defer cancel()

		user, ok := e.SlashCommandInteractionData().OptUser("user")
		if !ok {
			user = e.User()
		}
		s, err := b.Slots.Info(ctx, user.ID.String())
		if err != nil {
			return ephemeralError(e, err)
		}
		u := slots.Usage{EveryoneUsed: s.EveryoneUsed, HereUsed: s.HereUsed, Limits: b.Slots.Catalog().LimitsFor(s)}
		return e.CreateMessage(discord.MessageCreate{
			Embeds: []discord.Embed{SlotEmbed(s, u, time.Now())},
		})
	}
}

var TimeLeft = discord.SlashCommandCreate{
	Name:        "timeleft",
	Description: "Show how long your slot has left",
}

// FormatRemaining renders a duration as days, hours and minutes.
func FormatRemaining(d time.Duration) string {
	if d <= 0 {
		return "less than a minute"
	}
	days := int(d / (24 * time.Hour))
	hours := int(d % (24 * time.Hour) / time.Hour)
	minutes := int(d % time.Hour / time.Minute)

	var parts []string
	if days > 0 {
		parts = append(parts, fmt.Sprintf("%dd", days))
	}
	if hours > 0 {
		parts = append(parts, fmt.Sprintf("%dh", hours))
	}
	if minutes > 0 {
		parts = append(parts, fmt.Sprintf("%dm", minutes))
	}
	if len(parts) == 0 {
		return "less than a minute"
	}
	return strings.Join(parts, " ")
}

func TimeLeftHandler(b *slotkeeper.Bot) handler.CommandHandler {
	return func(e *handler.CommandEvent) error {
		ctx, cancel := context.WithTimeout(context.Background(), config.CommandExecutionTimeout)
		defer cancel()

		left, s, err := b.Slots.TimeLeft(ctx, e.User().ID.String())
		if err != nil {
			return ephemeralError(e, err)
		}
		return e.CreateMessage(discord.MessageCreate{
			Embeds: []discord.Embed{infoEmbed("Time left",
				fmt.Sprintf("Your slot expires <t:%d:R>, **%s** from now.", s.EndTime.Unix(), FormatRemaining(left)))},
			Flags: discord.MessageFlagEphemeral,
		})
	}
}

var SlotStats = discord.SlashCommandCreate{
	Name:        "slotstats",
	Description: "Show slot totals",
}

func SlotStatsHandler(b *slotkeeper.Bot) handler.CommandHandler {
	return staffOnly(b, func(e *handler.CommandEvent) error {
		ctx, cancel := context.WithTimeout(context.Background(), config.CommandExecutionTimeout)
		defer cancel()

		st, err := b.Slots.Stats(ctx)
		if err != nil {
			return ephemeralError(e, err)
		}
		eb := discord.NewEmbedBuilder().
			SetTitle("Slot statistics").
			SetColor(config.InfoColor).
			AddField("Active", fmt.Sprint(st.Active), true).
			AddField("On hold", fmt.Sprint(st.Held), true).
			AddField("Revoked", fmt.Sprint(st.Revoked), true)
		for _, p := range b.Slots.Catalog().Names() {
			eb.AddField(p.Title(), fmt.Sprint(st.ByPlan[p]), true)
		}
		return e.CreateMessage(discord.MessageCreate{Embeds: []discord.Embed{eb.Build()}})
	})
}

var List = discord.SlashCommandCreate{
	Name:        "slots",
	Description: "List slots",
	Options: []discord.ApplicationCommandOption{
		discord.ApplicationCommandOptionString{
			Name:        "status",
			Description: "Which slots to list",
			Choices: []discord.ApplicationCommandOptionChoiceString{
				{Name: "active", Value: string(slots.StatusActive)},
				{Name: "revoked", Value: string(slots.StatusRevoked)},
			},
		},
	},
}

func listLine(s *slots.Slot) string {
	line := fmt.Sprintf("<@%s> · <#%s> · %s · ends <t:%d:R>", s.OwnerID, s.ChannelRef, s.Plan.Title(), s.EndTime.Unix())
	if s.Held {
		line += " · on hold"
	}
	if !s.Active() && s.RevokeReason != "" {
		line += " · " + s.RevokeReason
	}
	return line
}

func ListHandler(b *slotkeeper.Bot) handler.CommandHandler {
	return staffOnly(b, func(e *handler.CommandEvent) error {
		ctx, cancel := context.WithTimeout(context.Background(), config.CommandExecutionTimeout)
		defer cancel()

		status := slots.StatusActive
		if v, ok := e.SlashCommandInteractionData().OptString("status"); ok {
			status = slots.Status(v)
		}
		records, err := b.Slots.List(ctx, status)
		if err != nil {
			return ephemeralError(e, err)
		}
		if len(records) == 0 {
			return e.CreateMessage(discord.MessageCreate{
				Embeds: []discord.Embed{infoEmbed("Slots", fmt.Sprintf("No %s slots.", status))},
			})
		}

		totalPages := (len(records) + config.SlotsPerPage - 1) / config.SlotsPerPage
		title := fmt.Sprintf("%s slots", strings.ToUpper(string(status[:1]))+string(status[1:]))
		return b.Paginator.Create(e.Respond, paginator.Pages{
			ID:      e.ID().String(),
			Creator: e.User().ID,
			PageFunc: func(page int, embed *discord.EmbedBuilder) {
				start := page * config.SlotsPerPage
				end := min(start+config.SlotsPerPage, len(records))

				var description strings.Builder
				for _, s := range records[start:end] {
					description.WriteString(listLine(s) + "\n")
				}

				embed.
					SetTitle(title).
					SetDescription(description.String()).
					SetColor(config.EmbedDefaultColor).
					SetFooter(fmt.Sprintf("Page %d/%d • Total: %d", page+1, totalPages, len(records)), "")
			},
			Pages:      totalPages,
			ExpireMode: paginator.ExpireModeAfterLastUsage,
		}, false)
	})
}
