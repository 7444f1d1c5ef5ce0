package handlers

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/handler"
	"github.com/disgoorg/snowflake/v2"
	"github.com/ellavondegurechaff/slotkeeper/slotkeeper/config"
)

// WrapWithLogging wraps a command handler with logging functionality
func WrapWithLogging(name string, h handler.CommandHandler) handler.CommandHandler {
	return func(e *handler.CommandEvent) error {
		return logged("Command", name, e.User(), e.GuildID(), e.ChannelID(), func() error {
			return h(e)
		})
	}
}

// WrapComponentWithLogging wraps a component handler with logging functionality
func WrapComponentWithLogging(name string, h handler.ComponentHandler) handler.ComponentHandler {
	return func(e *handler.ComponentEvent) error {
		return logged("Component interaction", name, e.User(), e.GuildID(), e.ChannelID(), func() error {
			return h(e)
		})
	}
}

func WrapModalWithLogging(name string, h handler.ModalHandler) handler.ModalHandler {
	return func(e *handler.ModalEvent) error {
		return logged("Modal submit", name, e.User(), e.GuildID(), e.ChannelID(), func() error {
			return h(e)
		})
	}
}

// logged runs fn with start, completion and timeout logging.
func logged(kind, name string, user discord.User, guildID *snowflake.ID, channelID snowflake.ID, fn func() error) error {
	start := time.Now()

	guild := ""
	if guildID != nil {
		guild = guildID.String()
	}
	slog.Info(kind+" started",
		slog.String("type", "cmd"),
		slog.String("name", name),
		slog.String("user_id", user.ID.String()),
		slog.String("user_name", user.Username),
		slog.String("guild_id", guild),
		slog.String("channel_id", channelID.String()),
	)

	done := make(chan error, 1)
	go func() {
		done <- fn()
	}()

	select {
	case err := <-done:
		duration := time.Since(start)
		attrs := []any{
			slog.String("type", "cmd"),
			slog.String("name", name),
			slog.String("user_id", user.ID.String()),
			slog.String("user_name", user.Username),
			slog.Duration("took", duration),
		}

		switch {
		case err != nil:
			slog.Error(kind+" failed", append(attrs,
				slog.Any("error", err),
				slog.String("status", "failed"),
			)...)
		case duration > config.SlowCommandThreshold:
			slog.Warn(kind+" executed slowly", append(attrs,
				slog.String("status", "slow"),
			)...)
		default:
			slog.Info(kind+" completed", append(attrs,
				slog.String("status", "success"),
			)...)
		}
		return err

	case <-time.After(config.CommandExecutionTimeout):
		slog.Error(kind+" timed out",
			slog.String("type", "cmd"),
			slog.String("name", name),
			slog.String("user_id", user.ID.String()),
			slog.String("user_name", user.Username),
			slog.String("status", "timeout"),
			slog.Duration("timeout", config.CommandExecutionTimeout),
		)
		return fmt.Errorf("%s timed out after %s", name, config.CommandExecutionTimeout)
	}
}
