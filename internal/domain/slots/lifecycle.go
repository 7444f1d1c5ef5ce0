package slots

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	ReasonManual  = "revoked by staff"
	ReasonExpired = "expired"
	ReasonAbuse   = "ping abuse"

	maxNameLength = 100
)

type CreateRequest struct {
	OwnerID    string
	ChannelRef string
	Name       string
	Plan       Plan
	Duration   time.Duration
	ActorID    string
}

// Create opens a new active slot for an owner without one. A revoked record
// left by the owner is replaced.
func (c *Controller) Create(ctx context.Context, req CreateRequest) (*Result, error) {
	if req.OwnerID == "" || req.ChannelRef == "" {
		return nil, precondition("owner and channel are required")
	}
	if req.Duration <= 0 {
		return nil, precondition("duration must be positive, got %s", req.Duration)
	}
	spec, err := c.catalog.require(ParsePlan(string(req.Plan)))
	if err != nil {
		return nil, err
	}

	var res Result
	err = c.mutate(ctx, "create", []string{req.OwnerID}, func(ctx context.Context, tx Tx) error {
		conflict := fmt.Errorf("%w: %s already has an active slot", ErrAlreadyExists, req.OwnerID)
		dropped, err := c.claimOwner(ctx, tx, req.OwnerID, req.ActorID, conflict)
		if err != nil {
			return err
		}
		secret, err := c.freshSecret(ctx, tx)
		if err != nil {
			return err
		}

		now := c.now()
		s := &Slot{
			OwnerID:        req.OwnerID,
			Status:         StatusActive,
			ChannelRef:     req.ChannelRef,
			Name:           strings.TrimSpace(req.Name),
			Plan:           spec.Name,
			StartTime:      now,
			EndTime:        now.Add(req.Duration),
			RecoverySecret: secret,
			UpdatedAt:      now,
		}
		if err := tx.Insert(ctx, s); err != nil {
			return storeErr("insert", err)
		}

		effects := activeLayout(s, spec)
		effects = append(effects, grantRoles(s.OwnerID, s.OwnerID, spec)...)
		effects = append(effects, c.welcome(s)...)
		effects = append(effects, c.sticky(s)...)
		key := c.notice(TemplateRecoveryKey, s, req.ActorID)
		key.Secret = secret
		effects = append(effects,
			directMessage(s.OwnerID, s.OwnerID, key),
			adminLog(s.OwnerID, c.notice(TemplateCreated, s, req.ActorID)),
		)
		effects = append(effects, dropped...)
		res = Result{Slot: s, Effects: effects}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// Hold suspends the owner's send capability. The reason is shown to the owner
// and in the admin log.
func (c *Controller) Hold(ctx context.Context, ownerID, reason, actorID string) (*Result, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, precondition("hold reason is required")
	}
	var res Result
	err := c.mutate(ctx, "hold", []string{ownerID}, func(ctx context.Context, tx Tx) error {
		s, err := activeSlot(ctx, tx, ownerID)
		if err != nil {
			return err
		}
		if s.Held {
			return precondition("slot of %s is already on hold", ownerID)
		}
		now := c.now()
		s.Held = true
		s.HeldAt = now
		s.UpdatedAt = now
		if err := tx.Upsert(ctx, s); err != nil {
			return storeErr("upsert", err)
		}

		n := c.notice(TemplateHeld, s, actorID)
		n.Reason = reason
		res = Result{Slot: s, Effects: []Effect{
			ownerGrant(s),
			addRole(s.OwnerID, s.OwnerID, RoleOnHold),
			sendMessage(s.OwnerID, s.ChannelRef, n, TrackNone),
			directMessage(s.OwnerID, s.OwnerID, n),
			adminLog(s.OwnerID, n),
		}}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// Unhold gives the send capability back. With PauseExpiryOnHold the grant is
// extended by the time spent on hold.
func (c *Controller) Unhold(ctx context.Context, ownerID, actorID string) (*Result, error) {
	var res Result
	err := c.mutate(ctx, "unhold", []string{ownerID}, func(ctx context.Context, tx Tx) error {
		s, err := activeSlot(ctx, tx, ownerID)
		if err != nil {
			return err
		}
		if !s.Held {
			return precondition("slot of %s is not on hold", ownerID)
		}
		now := c.now()
		if c.pauseExpiryOnHold && !s.HeldAt.IsZero() && now.After(s.HeldAt) {
			s.EndTime = s.EndTime.Add(now.Sub(s.HeldAt))
			s.Warned = false
		}
		s.Held = false
		s.HeldAt = time.Time{}
		s.UpdatedAt = now
		if err := tx.Upsert(ctx, s); err != nil {
			return storeErr("upsert", err)
		}

		n := c.notice(TemplateUnheld, s, actorID)
		res = Result{Slot: s, Effects: []Effect{
			ownerGrant(s),
			removeRole(s.OwnerID, s.OwnerID, RoleOnHold),
			sendMessage(s.OwnerID, s.ChannelRef, n, TrackNone),
			directMessage(s.OwnerID, s.OwnerID, n),
			adminLog(s.OwnerID, n),
		}}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// Revoke moves an active slot to the revoked status.
func (c *Controller) Revoke(ctx context.Context, ownerID, reason, actorID string) (*Result, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = ReasonManual
	}
	var res Result
	err := c.mutate(ctx, "revoke", []string{ownerID}, func(ctx context.Context, tx Tx) error {
		s, err := activeSlot(ctx, tx, ownerID)
		if err != nil {
			return err
		}
		effects, err := c.revokeInTx(ctx, tx, s, reason, c.notice(TemplateRevoked, s, actorID))
		if err != nil {
			return err
		}
		res = Result{Slot: s, Effects: effects}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// revokeInTx flips s to revoked inside tx and returns the revoke effects. The
// notice is built by the caller from the pre-revoke record.
func (c *Controller) revokeInTx(ctx context.Context, tx Tx, s *Slot, reason string, n Notice) ([]Effect, error) {
	now := c.now()
	if err := tx.MoveToRevoked(ctx, s.OwnerID, reason, now); err != nil {
		return nil, storeErr("move to revoked", err)
	}
	spec, _ := c.catalog.Lookup(s.Plan)

	effects := revokedLayout(s)
	effects = append(effects, stripRoles(s.OwnerID, s.OwnerID, spec)...)
	n.Reason = reason
	effects = append(effects,
		sendMessage(s.OwnerID, s.ChannelRef, n, TrackNone),
		directMessage(s.OwnerID, s.OwnerID, n),
		adminLog(s.OwnerID, n),
	)
	s.MarkRevoked(reason, now)
	return effects, nil
}

type RestoreRequest struct {
	OwnerID string
	ActorID string
	// Extend adds time to the grant, counted from now when it already ended.
	Extend time.Duration
}

// Restore brings a revoked slot back with zeroed counters and the default
// layout of its plan.
func (c *Controller) Restore(ctx context.Context, req RestoreRequest) (*Result, error) {
	if req.Extend < 0 {
		return nil, precondition("extension must not be negative")
	}
	var res Result
	err := c.mutate(ctx, "restore", []string{req.OwnerID}, func(ctx context.Context, tx Tx) error {
		s, err := tx.Get(ctx, req.OwnerID)
		if err != nil {
			return storeErr("get", err)
		}
		if s.Active() {
			return precondition("slot of %s is not revoked", req.OwnerID)
		}
		spec, err := c.catalog.require(s.Plan)
		if err != nil {
			return err
		}

		now := c.now()
		if err := tx.MoveToActive(ctx, s.OwnerID, now); err != nil {
			return storeErr("move to active", err)
		}
		s.MarkActive(now)
		if req.Extend > 0 {
			s.EndTime = extendFrom(s.EndTime, now).Add(req.Extend)
		}

		effects := activeLayout(s, spec)
		effects = append(effects, grantRoles(s.OwnerID, s.OwnerID, spec)...)
		effects = append(effects, c.sticky(s)...)
		n := c.notice(TemplateRestored, s, req.ActorID)
		effects = append(effects,
			sendMessage(s.OwnerID, s.ChannelRef, n, TrackNone),
			directMessage(s.OwnerID, s.OwnerID, n),
			adminLog(s.OwnerID, n),
		)
		if err := tx.Upsert(ctx, s); err != nil {
			return storeErr("upsert", err)
		}
		res = Result{Slot: s, Effects: effects}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// Transfer re-keys an active slot to a new owner. The recovery secret is kept.
func (c *Controller) Transfer(ctx context.Context, fromID, toID, actorID string) (*Result, error) {
	if fromID == toID {
		return nil, precondition("cannot transfer a slot to its own owner")
	}
	if toID == "" {
		return nil, precondition("new owner is required")
	}
	var res Result
	err := c.mutate(ctx, "transfer", []string{fromID, toID}, func(ctx context.Context, tx Tx) error {
		s, err := activeSlot(ctx, tx, fromID)
		if err != nil {
			return err
		}
		conflict := fmt.Errorf("%w: %s already has an active slot", ErrAlreadyExists, toID)
		dropped, err := c.claimOwner(ctx, tx, toID, actorID, conflict)
		if err != nil {
			return err
		}
		spec, _ := c.catalog.Lookup(s.Plan)

		effects, err := c.handover(ctx, tx, s, toID, spec)
		if err != nil {
			return err
		}
		effects = append(effects, c.welcome(s)...)

		n := c.notice(TemplateTransferred, s, actorID)
		n.OtherID = fromID
		received := c.notice(TemplateTransferReceived, s, actorID)
		received.OtherID = fromID
		received.Secret = s.RecoverySecret
		effects = append(effects,
			directMessage(s.OwnerID, fromID, n),
			directMessage(s.OwnerID, toID, received),
			adminLog(s.OwnerID, n),
		)
		effects = append(effects, dropped...)
		if err := tx.Upsert(ctx, s); err != nil {
			return storeErr("upsert", err)
		}
		res = Result{Slot: s, Effects: effects}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// handover re-keys s to newOwner inside tx and returns the capability and role
// effects of the swap. s is updated in place.
func (c *Controller) handover(ctx context.Context, tx Tx, s *Slot, newOwner string, spec PlanSpec) ([]Effect, error) {
	oldOwner := s.OwnerID
	if _, err := tx.Remove(ctx, oldOwner); err != nil {
		return nil, storeErr("remove", err)
	}
	s.OwnerID = newOwner
	s.UpdatedAt = c.now()
	if err := tx.Insert(ctx, s); err != nil {
		return nil, storeErr("insert", err)
	}

	effects := []Effect{
		clearOverwrite(newOwner, s.ChannelRef, User(oldOwner)),
		ownerGrant(s),
	}
	effects = append(effects, stripRoles(newOwner, oldOwner, spec)...)
	effects = append(effects, grantRoles(newOwner, newOwner, spec)...)
	if s.Held {
		effects = append(effects, addRole(newOwner, newOwner, RoleOnHold))
	}
	return effects, nil
}

// Move changes the plan of an active slot. Custom limits, when present, still
// take precedence over the new plan's defaults.
func (c *Controller) Move(ctx context.Context, ownerID string, plan Plan, actorID string) (*Result, error) {
	to, err := c.catalog.require(ParsePlan(string(plan)))
	if err != nil {
		return nil, err
	}
	var res Result
	err = c.mutate(ctx, "move", []string{ownerID}, func(ctx context.Context, tx Tx) error {
		s, err := activeSlot(ctx, tx, ownerID)
		if err != nil {
			return err
		}
		if s.Plan == to.Name {
			return precondition("slot of %s is already on the %s plan", ownerID, to.Name)
		}
		from, _ := c.catalog.Lookup(s.Plan)
		previous := s.Plan

		s.Plan = to.Name
		s.UpdatedAt = c.now()

		effects := []Effect{relocate(s.OwnerID, s.ChannelRef, to.Category)}
		effects = append(effects, swapPlanRoles(s.OwnerID, s.OwnerID, from, to)...)
		effects = append(effects, c.sticky(s)...)
		n := c.notice(TemplateMoved, s, actorID)
		n.Reason = string(previous)
		effects = append(effects,
			directMessage(s.OwnerID, s.OwnerID, n),
			adminLog(s.OwnerID, n),
		)
		if err := tx.Upsert(ctx, s); err != nil {
			return storeErr("upsert", err)
		}
		res = Result{Slot: s, Effects: effects}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// Extend renews an active slot. An already elapsed grant is renewed from now.
func (c *Controller) Extend(ctx context.Context, ownerID string, d time.Duration, actorID string) (*Result, error) {
	if d <= 0 {
		return nil, precondition("extension must be positive, got %s", d)
	}
	var res Result
	err := c.mutate(ctx, "extend", []string{ownerID}, func(ctx context.Context, tx Tx) error {
		s, err := activeSlot(ctx, tx, ownerID)
		if err != nil {
			return err
		}
		now := c.now()
		s.EndTime = extendFrom(s.EndTime, now).Add(d)
		s.Warned = false
		s.UpdatedAt = now
		if err := tx.Upsert(ctx, s); err != nil {
			return storeErr("upsert", err)
		}

		n := c.notice(TemplateExtended, s, actorID)
		res = Result{Slot: s, Effects: []Effect{
			sendMessage(s.OwnerID, s.ChannelRef, n, TrackNone),
			directMessage(s.OwnerID, s.OwnerID, n),
			adminLog(s.OwnerID, n),
		}}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func extendFrom(end, now time.Time) time.Time {
	if end.Before(now) {
		return now
	}
	return end
}

// Rename changes the display name of the slot channel.
func (c *Controller) Rename(ctx context.Context, ownerID, name, actorID string) (*Result, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, precondition("name must not be empty")
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return nil, precondition("name must be at most %d characters", maxNameLength)
	}
	var res Result
	err := c.mutate(ctx, "rename", []string{ownerID}, func(ctx context.Context, tx Tx) error {
		s, err := activeSlot(ctx, tx, ownerID)
		if err != nil {
			return err
		}
		previous := s.Name
		s.Name = name
		s.UpdatedAt = c.now()
		if err := tx.Upsert(ctx, s); err != nil {
			return storeErr("upsert", err)
		}

		n := c.notice(TemplateRenamed, s, actorID)
		n.Reason = previous
		res = Result{Slot: s, Effects: []Effect{
			{Kind: EffectRename, OwnerID: s.OwnerID, ChannelRef: s.ChannelRef, Name: name},
			sendMessage(s.OwnerID, s.ChannelRef, n, TrackNone),
			adminLog(s.OwnerID, n),
		}}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

type NukeRequest struct {
	OwnerID string
	ActorID string
	// Admin lets the actor nuke a slot they do not own.
	Admin bool
}

// Nuke wipes the channel, zeroes the counters and reposts the welcome and
// usage messages.
func (c *Controller) Nuke(ctx context.Context, req NukeRequest) (*Result, error) {
	if !req.Admin && req.ActorID != req.OwnerID {
		return nil, precondition("only the owner or an admin can nuke a slot")
	}
	var res Result
	err := c.mutate(ctx, "nuke", []string{req.OwnerID}, func(ctx context.Context, tx Tx) error {
		s, err := activeSlot(ctx, tx, req.OwnerID)
		if err != nil {
			return err
		}
		s.EveryoneUsed = 0
		s.HereUsed = 0
		s.UpdatedAt = c.now()

		effects := []Effect{
			purge(s.OwnerID, s.ChannelRef, ""),
			c.trackedSend(s, TrackWelcome),
			c.trackedSend(s, TrackSticky),
		}
		effects = append(effects, adminLog(s.OwnerID, c.notice(TemplateNuked, s, req.ActorID)))
		if err := tx.Upsert(ctx, s); err != nil {
			return storeErr("upsert", err)
		}
		res = Result{Slot: s, Effects: effects}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// Clean removes the record of an owner whose channel no longer exists.
func (c *Controller) Clean(ctx context.Context, ownerID string, channelExists bool, actorID string) (*Result, error) {
	if channelExists {
		return nil, precondition("channel of %s still exists, revoke the slot instead", ownerID)
	}
	var res Result
	err := c.mutate(ctx, "clean", []string{ownerID}, func(ctx context.Context, tx Tx) error {
		s, err := tx.Remove(ctx, ownerID)
		if err != nil {
			return storeErr("remove", err)
		}
		spec, _ := c.catalog.Lookup(s.Plan)

		var effects []Effect
		if s.Active() {
			effects = append(effects, stripRoles(s.OwnerID, s.OwnerID, spec)...)
		}
		effects = append(effects, adminLog(s.OwnerID, c.notice(TemplateCleaned, s, actorID)))
		res = Result{Slot: s, Effects: effects}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// MemberJoined re-applies the owner's capabilities and roles when they rejoin
// the guild. Members without an active slot yield ErrNotFound.
func (c *Controller) MemberJoined(ctx context.Context, ownerID string) (*Result, error) {
	var res Result
	err := c.mutate(ctx, "member joined", []string{ownerID}, func(ctx context.Context, tx Tx) error {
		s, err := tx.Get(ctx, ownerID)
		if err != nil {
			return storeErr("get", err)
		}
		if !s.Active() {
			return ErrNotFound
		}
		spec, _ := c.catalog.Lookup(s.Plan)

		effects := []Effect{ownerGrant(s)}
		effects = append(effects, grantRoles(s.OwnerID, s.OwnerID, spec)...)
		if s.Held {
			effects = append(effects, addRole(s.OwnerID, s.OwnerID, RoleOnHold))
		}
		n := c.notice(TemplateAutoRecovered, s, "")
		effects = append(effects,
			directMessage(s.OwnerID, s.OwnerID, n),
			adminLog(s.OwnerID, n),
		)
		res = Result{Slot: s, Effects: effects}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// ResendInfo reposts the welcome message in every active slot channel.
func (c *Controller) ResendInfo(ctx context.Context) (*SweepResult, error) {
	return c.sweep(ctx, "resend info", nil, func(ctx context.Context, tx Tx, s *Slot) ([]Effect, error) {
		effects := c.welcome(s)
		if err := tx.Upsert(ctx, s); err != nil {
			return nil, storeErr("upsert", err)
		}
		return effects, nil
	})
}
