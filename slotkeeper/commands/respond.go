package commands

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/handler"

	"github.com/ellavondegurechaff/slotkeeper/internal/domain/slots"
	"github.com/ellavondegurechaff/slotkeeper/slotkeeper"
	"github.com/ellavondegurechaff/slotkeeper/slotkeeper/config"
	"github.com/ellavondegurechaff/slotkeeper/slotkeeper/platform"
)

var errNotStaff = fmt.Errorf("%w: this command is restricted to staff", slots.ErrPreconditionFailed)

// isStaff reports whether the invoking member is an administrator or carries
// the configured staff or admin role.
func isStaff(b *slotkeeper.Bot, m *discord.ResolvedMember) bool {
	if m == nil {
		return false
	}
	if m.Permissions.Has(discord.PermissionAdministrator) {
		return true
	}
	return (b.Cfg.Roles.Staff != 0 && slices.Contains(m.RoleIDs, b.Cfg.Roles.Staff)) ||
		(b.Cfg.Roles.Admin != 0 && slices.Contains(m.RoleIDs, b.Cfg.Roles.Admin))
}

// staffOnly rejects non-staff callers before the wrapped handler runs.
func staffOnly(b *slotkeeper.Bot, h handler.CommandHandler) handler.CommandHandler {
	return func(e *handler.CommandEvent) error {
		if !isStaff(b, e.Member()) {
			return e.CreateMessage(discord.MessageCreate{
				Embeds: []discord.Embed{platform.ErrorEmbed(errNotStaff)},
				Flags:  discord.MessageFlagEphemeral,
			})
		}
		return h(e)
	}
}

func successEmbed(title, description string) discord.Embed {
	return discord.NewEmbedBuilder().
		SetTitle(title).
		SetDescription(description).
		SetColor(config.SuccessColor).
		Build()
}

func infoEmbed(title, description string) discord.Embed {
	return discord.NewEmbedBuilder().
		SetTitle(title).
		SetDescription(description).
		SetColor(config.InfoColor).
		Build()
}

func updateEmbed(e *handler.CommandEvent, embed discord.Embed) error {
	_, err := e.UpdateInteractionResponse(discord.MessageUpdate{
		Embeds: &[]discord.Embed{embed},
	})
	return err
}

// fail answers a deferred command with the user-facing text for err. The
// error is returned so the logging wrapper records it.
func fail(e *handler.CommandEvent, err error) error {
	if uerr := updateEmbed(e, platform.ErrorEmbed(err)); uerr != nil {
		slog.Error("Failed to send error response",
			slog.String("type", "cmd"),
			slog.Any("error", uerr),
		)
	}
	return err
}

// applyResult executes the effects of a single-owner transition and adds the
// outcome to the embed footer.
func applyResult(ctx context.Context, b *slotkeeper.Bot, res *slots.Result, embed discord.Embed) discord.Embed {
	report, err := b.Apply(ctx, res.Batch())
	if err != nil {
		slog.Error("Failed to apply effects",
			slog.String("type", "cmd"),
			slog.String("owner_id", res.Slot.OwnerID),
			slog.Any("error", err),
		)
	}
	return withReport(embed, report)
}

func withReport(embed discord.Embed, r platform.Report) discord.Embed {
	if r.Failed == 0 {
		return embed
	}
	embed.Footer = &discord.EmbedFooter{
		Text: fmt.Sprintf("%d platform actions failed, see the logs", r.Failed),
	}
	return embed
}

// applyInBackground runs sweep batches after the command has answered.
func applyInBackground(b *slotkeeper.Bot, name string, batches []slots.Batch) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), config.SweepApplyTimeout)
		defer cancel()
		report, err := b.Apply(ctx, batches...)
		attrs := []any{
			slog.String("type", "cmd"),
			slog.String("name", name),
			slog.Int("applied", report.Applied),
			slog.Int("failed", report.Failed),
		}
		if err != nil {
			slog.Error("Background effects interrupted", append(attrs, slog.Any("error", err))...)
			return
		}
		slog.Info("Background effects applied", attrs...)
	}()
}
