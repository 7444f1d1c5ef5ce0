package platform

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/snowflake/v2"
	"github.com/ellavondegurechaff/slotkeeper/internal/domain/slots"
	"github.com/ellavondegurechaff/slotkeeper/slotkeeper/config"
)

// Renderer turns notices into Discord messages.
type Renderer struct {
	dir *Directory
}

func NewRenderer(dir *Directory) *Renderer {
	return &Renderer{dir: dir}
}

func mention(id string) string {
	if id == "" {
		return "staff"
	}
	return "<@" + id + ">"
}

func stamp(t time.Time, style string) string {
	if t.IsZero() {
		return "never"
	}
	return fmt.Sprintf("<t:%d:%s>", t.Unix(), style)
}

func planColor(p slots.Plan) int {
	switch p {
	case slots.PlanElite:
		return config.EliteColor
	case slots.PlanStandard:
		return config.StandardColor
	case slots.PlanTrial:
		return config.TrialColor
	}
	return config.InfoColor
}

// UsageLine formats the remaining pings of a slot.
func UsageLine(u slots.Usage) string {
	return fmt.Sprintf("@here **%d/%d** · @everyone **%d/%d**",
		u.HereUsed, u.Limits.Here, u.EveryoneUsed, u.Limits.Everyone)
}

// Embed renders the notice body without any message-level wrapping.
func (r *Renderer) Embed(n slots.Notice) discord.Embed {
	eb := discord.NewEmbedBuilder().SetTimestamp(time.Now())

	switch n.Template {
	case slots.TemplateCreated:
		eb.SetTitle("Slot created").
			SetColor(config.SuccessColor).
			SetDescription(fmt.Sprintf("%s received a **%s** slot from %s.", mention(n.OwnerID), n.Plan.Title(), mention(n.ActorID))).
			AddField("Ends", stamp(n.EndTime, "F"), true).
			AddField("Pings", UsageLine(n.Usage), true)

	case slots.TemplateWelcome:
		desc := fmt.Sprintf("Welcome %s! This is your **%s** slot.", mention(n.OwnerID), n.Plan.Title())
		if n.Name != "" {
			desc = fmt.Sprintf("Welcome %s! **%s** is your **%s** slot.", mention(n.OwnerID), n.Name, n.Plan.Title())
		}
		eb.SetTitle("Your slot").
			SetColor(planColor(n.Plan)).
			SetDescription(desc+"\nKeep your recovery key somewhere safe; it is the only way to reclaim the slot from a new account.").
			AddField("Started", stamp(n.StartTime, "F"), true).
			AddField("Ends", stamp(n.EndTime, "R"), true).
			AddField("Pings per day", UsageLine(slots.Usage{Limits: n.Usage.Limits}), false)

	case slots.TemplateRecoveryKey:
		eb.SetTitle("Your recovery key").
			SetColor(config.InfoColor).
			SetDescription(fmt.Sprintf("Use this key in the recovery panel if you ever lose access to your account:\n```%s```\nAnyone holding it can claim your slot.", n.Secret))

	case slots.TemplateUsage:
		eb.SetColor(planColor(n.Plan)).
			SetDescription("Pings used today: " + UsageLine(n.Usage))

	case slots.TemplatePingUsed:
		eb.SetColor(config.WarningColor).
			SetDescription(fmt.Sprintf("%s used a ping. Remaining today: %s", mention(n.OwnerID), remaining(n.Usage)))

	case slots.TemplateRevoked, slots.TemplateExpired, slots.TemplateAbuseRevoked:
		title := "Slot revoked"
		switch n.Template {
		case slots.TemplateExpired:
			title = "Slot expired"
		case slots.TemplateAbuseRevoked:
			title = "Slot revoked for ping abuse"
		}
		desc := fmt.Sprintf("The slot of %s has been revoked.", mention(n.OwnerID))
		if n.Reason != "" {
			desc += "\nReason: " + n.Reason
		}
		eb.SetTitle(title).SetColor(config.RevokedColor).SetDescription(desc)
		if n.Template == slots.TemplateAbuseRevoked {
			eb.AddField("Pings", UsageLine(n.Usage), false)
		}

	case slots.TemplateRestored:
		eb.SetTitle("Slot restored").
			SetColor(config.SuccessColor).
			SetDescription(fmt.Sprintf("The slot of %s is active again.", mention(n.OwnerID))).
			AddField("Ends", stamp(n.EndTime, "F"), true)

	case slots.TemplateHeld:
		eb.SetTitle("Slot on hold").
			SetColor(config.HeldColor).
			SetDescription(fmt.Sprintf("The slot of %s is on hold. Messages sent here will be removed until staff lifts the hold.", mention(n.OwnerID)))
		if n.Reason != "" {
			eb.AddField("Reason", n.Reason, false)
		}

	case slots.TemplateUnheld:
		eb.SetTitle("Hold lifted").
			SetColor(config.SuccessColor).
			SetDescription(fmt.Sprintf("The slot of %s is open again.", mention(n.OwnerID))).
			AddField("Ends", stamp(n.EndTime, "R"), true)

	case slots.TemplateTransferred:
		eb.SetTitle("Slot transferred").
			SetColor(config.InfoColor).
			SetDescription(fmt.Sprintf("The slot of %s now belongs to %s.", mention(n.OtherID), mention(n.OwnerID)))

	case slots.TemplateTransferReceived:
		eb.SetTitle("You received a slot").
			SetColor(config.SuccessColor).
			SetDescription(fmt.Sprintf("%s transferred their **%s** slot to you.", mention(n.OtherID), n.Plan.Title()))
		if n.Secret != "" {
			eb.AddField("Recovery key", "```"+n.Secret+"```", false)
		}

	case slots.TemplateRecovered:
		eb.SetTitle("Slot recovered").
			SetColor(config.SuccessColor).
			SetDescription("Your slot has been moved to this account. The old key no longer works.")
		if n.Secret != "" {
			eb.AddField("New recovery key", "```"+n.Secret+"```", false)
		}

	case slots.TemplateRecoveredFrom:
		eb.SetTitle("Slot recovered").
			SetColor(config.WarningColor).
			SetDescription(fmt.Sprintf("Your slot was recovered by %s using its recovery key. Contact staff if this was not you.", mention(n.OwnerID)))

	case slots.TemplateAutoRecovered:
		eb.SetTitle("Welcome back").
			SetColor(config.InfoColor).
			SetDescription(fmt.Sprintf("%s rejoined and got their slot access back.", mention(n.OwnerID)))

	case slots.TemplateMoved:
		eb.SetTitle("Plan changed").
			SetColor(planColor(n.Plan)).
			SetDescription(fmt.Sprintf("The slot of %s moved from **%s** to **%s**.", mention(n.OwnerID), slots.Plan(n.Reason).Title(), n.Plan.Title())).
			AddField("Pings per day", UsageLine(slots.Usage{Limits: n.Usage.Limits}), false)

	case slots.TemplateRenamed:
		eb.SetTitle("Slot renamed").
			SetColor(config.InfoColor).
			SetDescription(fmt.Sprintf("The slot of %s is now called **%s**.", mention(n.OwnerID), n.Name))
		if n.Reason != "" {
			eb.AddField("Previously", n.Reason, true)
		}

	case slots.TemplateExtended:
		eb.SetTitle("Slot extended").
			SetColor(config.SuccessColor).
			SetDescription(fmt.Sprintf("The slot of %s now ends %s.", mention(n.OwnerID), stamp(n.EndTime, "F")))

	case slots.TemplateExpiryWarning:
		eb.SetTitle("Your slot is about to expire").
			SetColor(config.WarningColor).
			SetDescription(fmt.Sprintf("Your **%s** slot ends %s. Contact staff to renew it.", n.Plan.Title(), stamp(n.EndTime, "R")))

	case slots.TemplateQuotaReset:
		desc := "Ping limits have been reset."
		switch {
		case n.OwnerID != "":
			desc = fmt.Sprintf("The pings of %s have been reset.", mention(n.OwnerID))
		case n.Count > 0:
			desc = fmt.Sprintf("Ping limits have been reset for **%d** slots.", n.Count)
		}
		if n.Manual && n.ActorID != "" {
			desc += "\nTriggered by " + mention(n.ActorID)
		}
		eb.SetTitle(config.ResetAnnouncementTitle).SetColor(config.SuccessColor).SetDescription(desc)

	case slots.TemplateCredits:
		eb.SetTitle("Pings added").
			SetColor(config.SuccessColor).
			SetDescription(fmt.Sprintf("%s added **%d** pings to the slot of %s.", mention(n.ActorID), n.Count, mention(n.OwnerID))).
			AddField("Pings per day", UsageLine(n.Usage), false)

	case slots.TemplateCleaned:
		eb.SetTitle("Slot cleaned").
			SetColor(config.InfoColor).
			SetDescription(fmt.Sprintf("The record of %s was removed because its channel no longer exists.", mention(n.OwnerID)))

	case slots.TemplateNuked:
		eb.SetTitle("Slot deleted").
			SetColor(config.ErrorColor).
			SetDescription(fmt.Sprintf("The slot of %s and its channel were deleted by %s.", mention(n.OwnerID), mention(n.ActorID)))

	case slots.TemplateRecordDropped:
		eb.SetTitle("Revoked record dropped").
			SetColor(config.WarningColor).
			SetDescription(fmt.Sprintf("The revoked slot of %s was discarded when %s gave them a new one. Its channel can no longer be restored.", mention(n.OwnerID), mention(n.ActorID)))
		if n.ChannelRef != "" {
			eb.AddField("Channel", "<#"+n.ChannelRef+">", true)
		}
		if n.Reason != "" {
			eb.AddField("Revoked for", n.Reason, true)
		}

	case slots.TemplateReconciled:
		eb.SetTitle("Slots reconciled").
			SetColor(config.InfoColor).
			SetDescription(fmt.Sprintf("Re-applied permissions for **%d** slots.", n.Count))
		if n.Reason != "" {
			eb.AddField("Details", n.Reason, false)
		}

	default:
		eb.SetColor(config.EmbedDefaultColor).
			SetDescription(fmt.Sprintf("%s: %s", n.Template, mention(n.OwnerID)))
	}

	if n.Name != "" && n.Template != slots.TemplateWelcome && n.Template != slots.TemplateRenamed {
		eb.SetFooterText(n.Name)
	}
	return eb.Build()
}

func remaining(u slots.Usage) string {
	return fmt.Sprintf("@here **%d** · @everyone **%d**",
		max(u.Limits.Here-u.HereUsed, 0), max(u.Limits.Everyone-u.EveryoneUsed, 0))
}

// Message renders a notice for a channel post. Owners are mentioned only on
// the welcome message; everything else is sent without pinging anyone.
func (r *Renderer) Message(n slots.Notice) discord.MessageCreate {
	msg := discord.MessageCreate{
		Embeds:          []discord.Embed{r.Embed(n)},
		AllowedMentions: &discord.AllowedMentions{},
	}

	switch n.Template {
	case slots.TemplateWelcome:
		msg.Content = mention(n.OwnerID)
		if id, err := ParseID(n.OwnerID); err == nil {
			msg.AllowedMentions.Users = []snowflake.ID{id}
		}
		msg.Components = []discord.ContainerComponent{
			discord.NewActionRow(
				discord.NewSecondaryButton("Show recovery key", config.CopyKeyButtonID+"/"+n.OwnerID).
					WithEmoji(discord.ComponentEmoji{Name: "🔑"}),
			),
		}
	default:
		if n.Mention != "" {
			if id, ok := r.dir.Role(n.Mention); ok {
				msg.Content = "<@&" + id.String() + ">"
				msg.AllowedMentions.Roles = []snowflake.ID{id}
			}
		}
	}
	return msg
}

// RecoveryPanel is the persistent message members use to redeem a key.
func RecoveryPanel() discord.MessageCreate {
	return discord.MessageCreate{
		Embeds: []discord.Embed{discord.NewEmbedBuilder().
			SetTitle("Slot recovery").
			SetColor(config.InfoColor).
			SetDescription("Lost the account that owned your slot? Press the button below and enter your recovery key to move the slot to this account.").
			Build()},
		Components: []discord.ContainerComponent{
			discord.NewActionRow(
				discord.NewPrimaryButton("Recover slot", config.RecoveryButtonID).
					WithEmoji(discord.ComponentEmoji{Name: "🔑"}),
			),
		},
	}
}

// RecoveryModal asks for the recovery key.
func RecoveryModal() discord.ModalCreate {
	return discord.ModalCreate{
		CustomID: config.RecoveryModalID,
		Title:    "Recover your slot",
		Components: []discord.ContainerComponent{
			discord.NewActionRow(
				discord.NewShortTextInput(config.RecoveryKeyField, "Recovery key").
					WithRequired(true).
					WithMinLength(config.RecoveryKeyLength).
					WithMaxLength(config.RecoveryKeyLength).
					WithPlaceholder("16 characters from your DM"),
			),
		},
	}
}

// ErrorMessage turns a controller error into a user-facing sentence.
func ErrorMessage(err error) string {
	switch {
	case errors.Is(err, slots.ErrNotFound):
		return "No slot found for that user."
	case errors.Is(err, slots.ErrAlreadyExists):
		return "That user already has an active slot."
	case errors.Is(err, slots.ErrInvalidKey):
		return "That recovery key is invalid or has already been used."
	case errors.Is(err, slots.ErrAlreadyOwned):
		return "You already own an active slot, so this key cannot be redeemed on this account."
	case errors.Is(err, slots.ErrLimitExceeded):
		return "The ping limit was exceeded and the slot has been revoked."
	case errors.Is(err, slots.ErrPreconditionFailed):
		msg := err.Error()
		if i := strings.Index(msg, ": "); i >= 0 {
			msg = msg[i+2:]
		}
		return capitalize(msg) + "."
	case errors.Is(err, slots.ErrStoreIO):
		return "The slot store is unavailable right now. Nothing was changed, please try again."
	}
	return "Something went wrong. Nothing was changed."
}

// ErrorEmbed wraps ErrorMessage in the standard error embed.
func ErrorEmbed(err error) discord.Embed {
	return discord.NewEmbedBuilder().
		SetTitle("Error").
		SetDescription(ErrorMessage(err)).
		SetColor(config.ErrorColor).
		Build()
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
