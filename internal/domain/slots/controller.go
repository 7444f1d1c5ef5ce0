package slots

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Controller is the slot state machine. Every operation re-checks its
// preconditions inside a store transaction and returns the external effects
// the platform adapter must perform; it never talks to the platform itself.
type Controller struct {
	store     Store
	catalog   *Catalog
	now       func() time.Time
	newSecret func() (string, error)
	locks     *keyLocks

	pauseExpiryOnHold bool
	warningWindow     time.Duration
	pingNoticeTTL     time.Duration
	purgeOnReset      bool
}

type Option func(*Controller)

func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

func WithSecretGenerator(gen func() (string, error)) Option {
	return func(c *Controller) { c.newSecret = gen }
}

// PauseExpiryOnHold makes Unhold push end_time back by the time spent on hold.
func PauseExpiryOnHold(enabled bool) Option {
	return func(c *Controller) { c.pauseExpiryOnHold = enabled }
}

func WarningWindow(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.warningWindow = d
		}
	}
}

// PingNoticeTTL sets how long the "ping used" notice stays in the channel.
func PingNoticeTTL(d time.Duration) Option {
	return func(c *Controller) { c.pingNoticeTTL = d }
}

// PurgeOnReset clears slot channels (except the welcome message) on the daily reset.
func PurgeOnReset(enabled bool) Option {
	return func(c *Controller) { c.purgeOnReset = enabled }
}

func NewController(store Store, catalog *Catalog, opts ...Option) *Controller {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	c := &Controller{
		store:         store,
		catalog:       catalog,
		now:           time.Now,
		newSecret:     NewRecoverySecret,
		locks:         newKeyLocks(),
		warningWindow: 24 * time.Hour,
		pingNoticeTTL: 10 * time.Second,
		purgeOnReset:  true,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Controller) Catalog() *Catalog {
	return c.catalog
}

// Result is the outcome of a single-owner transition.
type Result struct {
	Slot    *Slot
	Effects []Effect
}

// Batch wraps the result for executors that work on batches.
func (r *Result) Batch() Batch {
	if r == nil || r.Slot == nil {
		return Batch{}
	}
	return Batch{OwnerID: r.Slot.OwnerID, Effects: r.Effects}
}

// SweepResult summarises a pass over many owners.
type SweepResult struct {
	Batches   []Batch
	Processed int
	Failed    int
}

func (r *SweepResult) add(owner string, effects []Effect) {
	r.Processed++
	if len(effects) > 0 {
		r.Batches = append(r.Batches, Batch{OwnerID: owner, Effects: effects})
	}
}

// mutate runs fn under the owner locks inside one store transaction.
func (c *Controller) mutate(ctx context.Context, op string, keys []string, fn func(ctx context.Context, tx Tx) error) error {
	unlock := c.locks.lock(keys...)
	defer unlock()
	return storeErr(op, c.store.Atomic(ctx, fn))
}

// activeSlot loads a record that must be active.
func activeSlot(ctx context.Context, tx Tx, ownerID string) (*Slot, error) {
	s, err := tx.Get(ctx, ownerID)
	if err != nil {
		return nil, storeErr("get", err)
	}
	if !s.Active() {
		return nil, precondition("slot of %s is revoked", ownerID)
	}
	return s, nil
}

// claimOwner makes sure ownerID can receive a slot. An active slot blocks the
// claim with conflict; a revoked record is dropped and reported to the admin
// log, since its channel can no longer be restored.
func (c *Controller) claimOwner(ctx context.Context, tx Tx, ownerID, actorID string, conflict error) ([]Effect, error) {
	existing, err := tx.Get(ctx, ownerID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, storeErr("get", err)
	}
	if existing.Active() {
		return nil, conflict
	}
	if _, err := tx.Remove(ctx, ownerID); err != nil {
		return nil, storeErr("remove", err)
	}
	slog.Info("Dropped revoked record for new owner",
		slog.String("type", "sys"),
		slog.String("owner_id", ownerID),
		slog.String("channel_ref", existing.ChannelRef),
	)
	n := c.notice(TemplateRecordDropped, existing, actorID)
	n.ChannelRef = existing.ChannelRef
	n.Reason = existing.RevokeReason
	return []Effect{adminLog(ownerID, n)}, nil
}

func (c *Controller) usage(s *Slot) Usage {
	return Usage{EveryoneUsed: s.EveryoneUsed, HereUsed: s.HereUsed, Limits: c.catalog.LimitsFor(s)}
}

func (c *Controller) notice(t Template, s *Slot, actor string) Notice {
	return Notice{
		Template:  t,
		OwnerID:   s.OwnerID,
		ActorID:   actor,
		Plan:      s.Plan,
		Name:      s.Name,
		StartTime: s.StartTime,
		EndTime:   s.EndTime,
		Usage:     c.usage(s),
	}
}

// welcome posts a fresh welcome message and deletes the tracked one.
func (c *Controller) welcome(s *Slot) []Effect {
	var out []Effect
	if s.WelcomeMessageRef != "" {
		out = append(out, deleteMessage(s.OwnerID, s.ChannelRef, s.WelcomeMessageRef))
	}
	return append(out, c.trackedSend(s, TrackWelcome))
}

// sticky reposts the usage message and deletes the tracked one.
func (c *Controller) sticky(s *Slot) []Effect {
	var out []Effect
	if s.StickyMessageRef != "" {
		out = append(out, deleteMessage(s.OwnerID, s.ChannelRef, s.StickyMessageRef))
	}
	return append(out, c.trackedSend(s, TrackSticky))
}

// trackedSend posts the message of track. The stored ref is left alone until
// RecordMessageRef reports the new ID; the effect carries the ref it replaces.
func (c *Controller) trackedSend(s *Slot, track Track) Effect {
	var e Effect
	switch track {
	case TrackWelcome:
		e = sendMessage(s.OwnerID, s.ChannelRef, c.notice(TemplateWelcome, s, ""), track)
		e.MessageRef = s.WelcomeMessageRef
	default:
		e = sendMessage(s.OwnerID, s.ChannelRef, c.notice(TemplateUsage, s, ""), TrackSticky)
		e.MessageRef = s.StickyMessageRef
	}
	return e
}

// Info returns the record of ownerID in whichever status it is.
func (c *Controller) Info(ctx context.Context, ownerID string) (*Slot, error) {
	s, err := c.store.Get(ctx, ownerID)
	return s, storeErr("get", err)
}

func (c *Controller) Usage(ctx context.Context, ownerID string) (Usage, error) {
	s, err := c.activeSnapshot(ctx, ownerID)
	if err != nil {
		return Usage{}, err
	}
	return c.usage(s), nil
}

// TimeLeft returns the remaining grant time, floored at zero.
func (c *Controller) TimeLeft(ctx context.Context, ownerID string) (time.Duration, *Slot, error) {
	s, err := c.activeSnapshot(ctx, ownerID)
	if err != nil {
		return 0, nil, err
	}
	left := s.EndTime.Sub(c.now())
	if left < 0 {
		left = 0
	}
	return left, s, nil
}

func (c *Controller) Stats(ctx context.Context) (Stats, error) {
	st := Stats{ByPlan: make(map[Plan]int)}
	active, err := c.store.List(ctx, StatusActive)
	if err != nil {
		return st, storeErr("list", err)
	}
	revoked, err := c.store.List(ctx, StatusRevoked)
	if err != nil {
		return st, storeErr("list", err)
	}
	st.Active = len(active)
	st.Revoked = len(revoked)
	for _, s := range active {
		st.ByPlan[s.Plan]++
		if s.Held {
			st.Held++
		}
	}
	return st, nil
}

// List returns the records of one status, ordered by owner.
func (c *Controller) List(ctx context.Context, status Status) ([]*Slot, error) {
	out, err := c.store.List(ctx, status)
	return out, storeErr("list", err)
}

func (c *Controller) activeSnapshot(ctx context.Context, ownerID string) (*Slot, error) {
	s, err := c.store.Get(ctx, ownerID)
	if err != nil {
		return nil, storeErr("get", err)
	}
	if !s.Active() {
		return nil, ErrNotFound
	}
	return s, nil
}

// RecordMessageRef stores the ID of a tracked message the adapter just sent.
// replaced is the ref the send was issued against. If another message of the
// same track was recorded in between, it is returned as a delete effect so
// only the newest one stays in the channel.
func (c *Controller) RecordMessageRef(ctx context.Context, ownerID string, track Track, replaced, ref string) ([]Effect, error) {
	var effects []Effect
	err := c.mutate(ctx, "record message", []string{ownerID}, func(ctx context.Context, tx Tx) error {
		s, err := activeSlot(ctx, tx, ownerID)
		if err != nil {
			return err
		}
		var field *string
		switch track {
		case TrackWelcome:
			field = &s.WelcomeMessageRef
		case TrackSticky:
			field = &s.StickyMessageRef
		default:
			return precondition("message track %q is not stored", track)
		}
		if stale := *field; stale != "" && stale != replaced && stale != ref {
			effects = append(effects, deleteMessage(s.OwnerID, s.ChannelRef, stale))
		}
		*field = ref
		return storeErr("upsert", tx.Upsert(ctx, s))
	})
	if err != nil {
		return nil, err
	}
	return effects, nil
}

// Snapshot returns the whole table in the backup layout.
func (c *Controller) Snapshot(ctx context.Context) (*Snapshot, error) {
	snap, err := c.store.Snapshot(ctx)
	return snap, storeErr("snapshot", err)
}

// Load replaces the whole table with a validated snapshot.
func (c *Controller) Load(ctx context.Context, snap *Snapshot) error {
	if err := snap.Validate(); err != nil {
		return err
	}
	return storeErr("load", c.store.Load(ctx, snap))
}
