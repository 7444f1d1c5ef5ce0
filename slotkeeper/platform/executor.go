package platform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/snowflake/v2"
	"github.com/ellavondegurechaff/slotkeeper/internal/domain/slots"
	"github.com/ellavondegurechaff/slotkeeper/slotkeeper/config"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Discord is the subset of the disgo REST client the executor drives.
type Discord interface {
	UpdatePermissionOverwrite(channelID snowflake.ID, overwriteID snowflake.ID, permissionOverwrite discord.PermissionOverwriteUpdate, opts ...rest.RequestOpt) error
	DeletePermissionOverwrite(channelID snowflake.ID, overwriteID snowflake.ID, opts ...rest.RequestOpt) error
	UpdateChannel(channelID snowflake.ID, channelUpdate discord.ChannelUpdate, opts ...rest.RequestOpt) (discord.Channel, error)
	CreateMessage(channelID snowflake.ID, messageCreate discord.MessageCreate, opts ...rest.RequestOpt) (*discord.Message, error)
	DeleteMessage(channelID snowflake.ID, messageID snowflake.ID, opts ...rest.RequestOpt) error
	GetMessages(channelID snowflake.ID, around snowflake.ID, before snowflake.ID, after snowflake.ID, limit int, opts ...rest.RequestOpt) ([]discord.Message, error)
	BulkDeleteMessages(channelID snowflake.ID, messageIDs []snowflake.ID, opts ...rest.RequestOpt) error
	CreateDMChannel(userID snowflake.ID, opts ...rest.RequestOpt) (*discord.DMChannel, error)
	AddMemberRole(guildID snowflake.ID, userID snowflake.ID, roleID snowflake.ID, opts ...rest.RequestOpt) error
	RemoveMemberRole(guildID snowflake.ID, userID snowflake.ID, roleID snowflake.ID, opts ...rest.RequestOpt) error
}

// Recorder stores the IDs of tracked messages; slots.Controller implements it.
type Recorder interface {
	RecordMessageRef(ctx context.Context, ownerID string, track slots.Track, replaced, ref string) ([]slots.Effect, error)
}

// Report counts what a call to Apply did.
type Report struct {
	Applied int
	Skipped int
	Failed  int
}

func (r *Report) merge(o Report) {
	r.Applied += o.Applied
	r.Skipped += o.Skipped
	r.Failed += o.Failed
}

var errSkipped = errors.New("effect target not configured")

// Executor performs effect batches against Discord. Effects of one batch run
// in order; batches of different owners run in parallel, bounded by a
// semaphore and paced by a shared rate limiter.
type Executor struct {
	rest     Discord
	dir      *Directory
	render   *Renderer
	recorder Recorder

	sem     *semaphore.Weighted
	limiter *rate.Limiter
	timeout time.Duration

	// background work (delayed deletes) outlives a single Apply
	bg     context.Context
	stop   context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
	notice snowflake.ID
}

type ExecutorOption func(*Executor)

func WithConcurrency(n int64) ExecutorOption {
	return func(x *Executor) {
		if n > 0 {
			x.sem = semaphore.NewWeighted(n)
		}
	}
}

func WithRateLimit(perSecond float64, burst int) ExecutorOption {
	return func(x *Executor) { x.limiter = rate.NewLimiter(rate.Limit(perSecond), burst) }
}

func WithEffectTimeout(d time.Duration) ExecutorOption {
	return func(x *Executor) { x.timeout = d }
}

func NewExecutor(client Discord, dir *Directory, recorder Recorder, opts ...ExecutorOption) *Executor {
	bg, stop := context.WithCancel(context.Background())
	x := &Executor{
		rest:     client,
		dir:      dir,
		render:   NewRenderer(dir),
		recorder: recorder,
		sem:      semaphore.NewWeighted(config.MaxConcurrentBatches),
		limiter:  rate.NewLimiter(rate.Limit(config.EffectRateLimit), config.EffectBurst),
		timeout:  config.EffectTimeout,
		bg:       bg,
		stop:     stop,
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

// Close cancels pending delayed deletes and waits for them to return.
func (x *Executor) Close() {
	x.stop()
	x.wg.Wait()
}

// Apply runs every batch. Platform failures are logged and counted, never
// returned; the error is only set when ctx ends before all batches started.
func (x *Executor) Apply(ctx context.Context, batches ...slots.Batch) (Report, error) {
	var (
		mu    sync.Mutex
		total Report
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, b := range batches {
		b := b
		if len(b.Effects) == 0 {
			continue
		}
		if err := x.sem.Acquire(gctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer x.sem.Release(1)
			r := x.applyBatch(gctx, b)
			mu.Lock()
			total.merge(r)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return total, ctx.Err()
}

func (x *Executor) applyBatch(ctx context.Context, b slots.Batch) Report {
	var r Report
	for _, e := range b.Effects {
		err := x.applyEffect(ctx, e)
		switch {
		case err == nil:
			r.Applied++
		case errors.Is(err, errSkipped):
			r.Skipped++
			slog.Debug("Skipped effect",
				slog.String("type", "sys"),
				slog.String("effect", string(e.Kind)),
				slog.String("owner_id", b.OwnerID),
				slog.Any("error", err),
			)
		default:
			r.Failed++
			slog.Error("Failed to apply effect",
				slog.String("type", "error"),
				slog.String("effect", string(e.Kind)),
				slog.String("owner_id", b.OwnerID),
				slog.String("channel_ref", e.ChannelRef),
				slog.Any("error", err),
			)
		}
		if ctx.Err() != nil {
			break
		}
	}
	return r
}

// call waits for the limiter and runs fn with a per-effect timeout.
func (x *Executor) call(ctx context.Context, fn func(opts ...rest.RequestOpt) error) error {
	if err := x.limiter.Wait(ctx); err != nil {
		return err
	}
	cctx, cancel := context.WithTimeout(ctx, x.timeout)
	defer cancel()
	return fn(rest.WithCtx(cctx))
}

func (x *Executor) applyEffect(ctx context.Context, e slots.Effect) error {
	switch e.Kind {
	case slots.EffectGrant:
		return x.grant(ctx, e)
	case slots.EffectClearOverwrite:
		return x.clearOverwrite(ctx, e)
	case slots.EffectRelocate:
		return x.relocate(ctx, e)
	case slots.EffectRename:
		return x.rename(ctx, e)
	case slots.EffectSendMessage:
		return x.send(ctx, e)
	case slots.EffectDeleteMessage:
		return x.deleteMessage(ctx, e.ChannelRef, e.MessageRef)
	case slots.EffectPurge:
		return x.purge(ctx, e)
	case slots.EffectDirectMessage:
		return x.directMessage(ctx, e)
	case slots.EffectAddRole, slots.EffectRemoveRole:
		return x.role(ctx, e)
	case slots.EffectAdminLog:
		return x.post(ctx, x.dir.AdminLog, e)
	case slots.EffectAnnounce:
		return x.announce(ctx, e)
	}
	return fmt.Errorf("unknown effect kind %q", e.Kind)
}

func (x *Executor) grant(ctx context.Context, e slots.Effect) error {
	channelID, err := ParseID(e.ChannelRef)
	if err != nil {
		return err
	}
	target, typ, ok := x.dir.Overwrite(e.Subject)
	if !ok {
		return fmt.Errorf("%w: %s %s", errSkipped, e.Subject.Kind, e.Subject.Role)
	}

	allow, deny := Permissions(e.Allow), Permissions(e.Deny)
	var update discord.PermissionOverwriteUpdate
	if typ == discord.PermissionOverwriteTypeRole {
		update = discord.RolePermissionOverwriteUpdate{Allow: &allow, Deny: &deny}
	} else {
		update = discord.MemberPermissionOverwriteUpdate{Allow: &allow, Deny: &deny}
	}
	return x.call(ctx, func(opts ...rest.RequestOpt) error {
		return x.rest.UpdatePermissionOverwrite(channelID, target, update, opts...)
	})
}

func (x *Executor) clearOverwrite(ctx context.Context, e slots.Effect) error {
	channelID, err := ParseID(e.ChannelRef)
	if err != nil {
		return err
	}
	target, _, ok := x.dir.Overwrite(e.Subject)
	if !ok {
		return fmt.Errorf("%w: %s %s", errSkipped, e.Subject.Kind, e.Subject.Role)
	}
	return x.call(ctx, func(opts ...rest.RequestOpt) error {
		return ignoreUnknown(x.rest.DeletePermissionOverwrite(channelID, target, opts...))
	})
}

func (x *Executor) relocate(ctx context.Context, e slots.Effect) error {
	channelID, err := ParseID(e.ChannelRef)
	if err != nil {
		return err
	}
	parent, ok := x.dir.Category(e.Category)
	if !ok {
		return fmt.Errorf("%w: category %s", errSkipped, e.Category)
	}
	return x.call(ctx, func(opts ...rest.RequestOpt) error {
		_, err := x.rest.UpdateChannel(channelID, discord.GuildTextChannelUpdate{ParentID: &parent}, opts...)
		return err
	})
}

func (x *Executor) rename(ctx context.Context, e slots.Effect) error {
	channelID, err := ParseID(e.ChannelRef)
	if err != nil {
		return err
	}
	name := ChannelName(e.Name)
	return x.call(ctx, func(opts ...rest.RequestOpt) error {
		_, err := x.rest.UpdateChannel(channelID, discord.GuildTextChannelUpdate{Name: &name}, opts...)
		return err
	})
}

func (x *Executor) send(ctx context.Context, e slots.Effect) error {
	channelID, err := ParseID(e.ChannelRef)
	if err != nil {
		return err
	}
	if e.Notice == nil {
		return fmt.Errorf("send without notice")
	}

	var msg *discord.Message
	err = x.call(ctx, func(opts ...rest.RequestOpt) error {
		var err error
		msg, err = x.rest.CreateMessage(channelID, x.render.Message(*e.Notice), opts...)
		return err
	})
	if err != nil {
		return err
	}

	if e.Track != slots.TrackNone && x.recorder != nil {
		stale, err := x.recorder.RecordMessageRef(ctx, e.OwnerID, e.Track, e.MessageRef, msg.ID.String())
		if err != nil {
			slog.Warn("Failed to record message reference",
				slog.String("type", "sys"),
				slog.String("owner_id", e.OwnerID),
				slog.String("track", string(e.Track)),
				slog.Any("error", err),
			)
		}
		for _, d := range stale {
			if err := x.applyEffect(ctx, d); err != nil {
				slog.Warn("Failed to delete superseded message",
					slog.String("type", "sys"),
					slog.String("owner_id", e.OwnerID),
					slog.String("message_ref", d.MessageRef),
					slog.Any("error", err),
				)
			}
		}
	}
	if e.TTL > 0 {
		x.deleteLater(channelID, msg.ID, e.TTL)
	}
	return nil
}

func (x *Executor) deleteLater(channelID, messageID snowflake.ID, after time.Duration) {
	x.wg.Add(1)
	go func() {
		defer x.wg.Done()
		timer := time.NewTimer(after)
		defer timer.Stop()
		select {
		case <-x.bg.Done():
			return
		case <-timer.C:
		}
		err := x.call(x.bg, func(opts ...rest.RequestOpt) error {
			return ignoreUnknown(x.rest.DeleteMessage(channelID, messageID, opts...))
		})
		if err != nil && x.bg.Err() == nil {
			slog.Warn("Failed to delete expired notice",
				slog.String("type", "sys"),
				slog.String("channel_id", channelID.String()),
				slog.Any("error", err),
			)
		}
	}()
}

func (x *Executor) deleteMessage(ctx context.Context, channelRef, messageRef string) error {
	channelID, err := ParseID(channelRef)
	if err != nil {
		return err
	}
	messageID, err := ParseID(messageRef)
	if err != nil {
		return err
	}
	return x.call(ctx, func(opts ...rest.RequestOpt) error {
		return ignoreUnknown(x.rest.DeleteMessage(channelID, messageID, opts...))
	})
}

// purge removes every message in the channel except MessageRef. Messages
// too old for bulk deletion are removed one by one.
func (x *Executor) purge(ctx context.Context, e slots.Effect) error {
	channelID, err := ParseID(e.ChannelRef)
	if err != nil {
		return err
	}
	keep, _ := ParseID(e.MessageRef)

	var before snowflake.ID
	for {
		var page []discord.Message
		err := x.call(ctx, func(opts ...rest.RequestOpt) error {
			var err error
			page, err = x.rest.GetMessages(channelID, 0, before, 0, config.PurgePageSize, opts...)
			return err
		})
		if err != nil {
			return err
		}
		if len(page) == 0 {
			return nil
		}

		var recent, old []snowflake.ID
		cutoff := time.Now().Add(-config.BulkDeleteMaxAge + time.Hour)
		for _, m := range page {
			if m.ID == keep || m.Pinned {
				continue
			}
			if m.ID.Time().After(cutoff) {
				recent = append(recent, m.ID)
			} else {
				old = append(old, m.ID)
			}
		}

		if len(recent) >= 2 {
			if err := x.call(ctx, func(opts ...rest.RequestOpt) error {
				return x.rest.BulkDeleteMessages(channelID, recent, opts...)
			}); err != nil {
				return err
			}
		} else {
			old = append(old, recent...)
		}
		for _, id := range old {
			if err := x.call(ctx, func(opts ...rest.RequestOpt) error {
				return ignoreUnknown(x.rest.DeleteMessage(channelID, id, opts...))
			}); err != nil {
				return err
			}
		}

		if len(page) < config.PurgePageSize {
			return nil
		}
		before = page[len(page)-1].ID
	}
}

func (x *Executor) directMessage(ctx context.Context, e slots.Effect) error {
	userID, err := ParseID(e.UserID)
	if err != nil {
		return err
	}
	if e.Notice == nil {
		return fmt.Errorf("direct message without notice")
	}
	var dm *discord.DMChannel
	if err := x.call(ctx, func(opts ...rest.RequestOpt) error {
		var err error
		dm, err = x.rest.CreateDMChannel(userID, opts...)
		return err
	}); err != nil {
		return fmt.Errorf("open dm: %w", err)
	}
	msg := discord.MessageCreate{Embeds: []discord.Embed{x.render.Embed(*e.Notice)}}
	return x.call(ctx, func(opts ...rest.RequestOpt) error {
		_, err := x.rest.CreateMessage(dm.ID(), msg, opts...)
		return err
	})
}

func (x *Executor) role(ctx context.Context, e slots.Effect) error {
	userID, err := ParseID(e.UserID)
	if err != nil {
		return err
	}
	roleID, ok := x.dir.Role(e.Role)
	if !ok {
		return fmt.Errorf("%w: role %s", errSkipped, e.Role)
	}
	return x.call(ctx, func(opts ...rest.RequestOpt) error {
		if e.Kind == slots.EffectAddRole {
			return x.rest.AddMemberRole(x.dir.GuildID, userID, roleID, opts...)
		}
		return ignoreUnknown(x.rest.RemoveMemberRole(x.dir.GuildID, userID, roleID, opts...))
	})
}

func (x *Executor) post(ctx context.Context, channelID snowflake.ID, e slots.Effect) error {
	if channelID == 0 {
		return fmt.Errorf("%w: %s channel", errSkipped, e.Kind)
	}
	if e.Notice == nil {
		return fmt.Errorf("%s without notice", e.Kind)
	}
	_, err := x.postMessage(ctx, channelID, x.render.Message(*e.Notice))
	return err
}

func (x *Executor) postMessage(ctx context.Context, channelID snowflake.ID, msg discord.MessageCreate) (*discord.Message, error) {
	var out *discord.Message
	err := x.call(ctx, func(opts ...rest.RequestOpt) error {
		var err error
		out, err = x.rest.CreateMessage(channelID, msg, opts...)
		return err
	})
	return out, err
}

// announce posts the reset announcement and removes the previous one.
func (x *Executor) announce(ctx context.Context, e slots.Effect) error {
	channelID := x.dir.PingReset
	if channelID == 0 {
		return fmt.Errorf("%w: announce channel", errSkipped)
	}
	if e.Notice == nil {
		return fmt.Errorf("announce without notice")
	}

	x.mu.Lock()
	previous := x.notice
	x.mu.Unlock()
	if previous == 0 {
		previous = x.lastAnnouncement(ctx, channelID)
	}
	if previous != 0 {
		if err := x.call(ctx, func(opts ...rest.RequestOpt) error {
			return ignoreUnknown(x.rest.DeleteMessage(channelID, previous, opts...))
		}); err != nil {
			slog.Warn("Failed to delete previous announcement", slog.String("type", "sys"), slog.Any("error", err))
		}
	}

	msg, err := x.postMessage(ctx, channelID, x.render.Message(*e.Notice))
	if err != nil {
		return err
	}
	x.mu.Lock()
	x.notice = msg.ID
	x.mu.Unlock()
	return nil
}

// lastAnnouncement finds the newest reset announcement this bot posted in
// the recent history of channelID. It returns 0 when there is none.
func (x *Executor) lastAnnouncement(ctx context.Context, channelID snowflake.ID) snowflake.ID {
	var page []discord.Message
	err := x.call(ctx, func(opts ...rest.RequestOpt) error {
		var err error
		page, err = x.rest.GetMessages(channelID, 0, 0, 0, config.AnnouncementScanLimit, opts...)
		return err
	})
	if err != nil {
		slog.Warn("Failed to scan for previous announcement", slog.String("type", "sys"), slog.Any("error", err))
		return 0
	}

	var found snowflake.ID
	for _, m := range page {
		if m.Author.ID != x.dir.SelfID || m.ID <= found {
			continue
		}
		for _, embed := range m.Embeds {
			if embed.Title == config.ResetAnnouncementTitle {
				found = m.ID
				break
			}
		}
	}
	return found
}

// Post sends a message outside of any effect batch.
func (x *Executor) Post(ctx context.Context, channelID snowflake.ID, msg discord.MessageCreate) (*discord.Message, error) {
	return x.postMessage(ctx, channelID, msg)
}

// IsUnknown reports whether Discord answered 404 for the target.
func IsUnknown(err error) bool {
	var restErr *rest.Error
	return errors.As(err, &restErr) && restErr.Response != nil && restErr.Response.StatusCode == 404
}

// ignoreUnknown treats "already gone" responses as success.
func ignoreUnknown(err error) error {
	if IsUnknown(err) {
		return nil
	}
	return err
}
