package slots

import (
	"context"
	"errors"
)

// ActionKind is a privileged broadcast action counted against the quota.
type ActionKind string

const (
	ActionEveryone ActionKind = "everyone"
	ActionHere     ActionKind = "here"
)

type QuotaOutcome string

const (
	QuotaOk            QuotaOutcome = "ok"
	QuotaLimitExceeded QuotaOutcome = "limit_exceeded"
	// QuotaSuppressed means the message was removed because the slot is on hold.
	QuotaSuppressed QuotaOutcome = "suppressed"
	// QuotaIgnored means the message did not concern a slot quota.
	QuotaIgnored QuotaOutcome = "ignored"
)

type Action struct {
	OwnerID    string
	Kind       ActionKind
	MessageRef string
}

// Observation is a message seen by the platform adapter.
type Observation struct {
	AuthorID   string
	ChannelRef string
	MessageRef string
	Everyone   bool
	Here       bool
}

type QuotaResult struct {
	Outcome QuotaOutcome
	// Usage after the action. On LimitExceeded the counters are capped at the limits.
	Usage   Usage
	Slot    *Slot
	Effects []Effect
}

// Err reports ErrLimitExceeded for an abuse revoke.
func (r *QuotaResult) Err() error {
	if r != nil && r.Outcome == QuotaLimitExceeded {
		return ErrLimitExceeded
	}
	return nil
}

// RecordAction counts one privileged action. Reaching the limit is allowed,
// going past it revokes the slot in the same transaction.
func (c *Controller) RecordAction(ctx context.Context, a Action) (*QuotaResult, error) {
	var everyone, here int
	switch a.Kind {
	case ActionEveryone:
		everyone = 1
	case ActionHere:
		here = 1
	default:
		return nil, precondition("unknown action kind %q", a.Kind)
	}

	var res QuotaResult
	err := c.mutate(ctx, "record action", []string{a.OwnerID}, func(ctx context.Context, tx Tx) error {
		s, err := activeSlot(ctx, tx, a.OwnerID)
		if err != nil {
			return err
		}
		if s.Held {
			return precondition("slot of %s is on hold", a.OwnerID)
		}
		res, err = c.count(ctx, tx, s, everyone, here, a.MessageRef)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// ObserveMessage applies the message policy of slot channels: messages sent
// while on hold are removed, broadcast mentions are counted together.
func (c *Controller) ObserveMessage(ctx context.Context, o Observation) (*QuotaResult, error) {
	var res QuotaResult
	err := c.mutate(ctx, "observe message", []string{o.AuthorID}, func(ctx context.Context, tx Tx) error {
		s, err := tx.Get(ctx, o.AuthorID)
		if errors.Is(err, ErrNotFound) {
			res = QuotaResult{Outcome: QuotaIgnored}
			return nil
		}
		if err != nil {
			return storeErr("get", err)
		}
		if !s.Active() || s.ChannelRef != o.ChannelRef {
			res = QuotaResult{Outcome: QuotaIgnored}
			return nil
		}
		if s.Held {
			res = QuotaResult{
				Outcome: QuotaSuppressed,
				Usage:   c.usage(s),
				Slot:    s,
				Effects: []Effect{deleteMessage(s.OwnerID, s.ChannelRef, o.MessageRef)},
			}
			return nil
		}

		var everyone, here int
		if o.Everyone {
			everyone = 1
		}
		if o.Here {
			here = 1
		}
		if everyone+here == 0 {
			res = QuotaResult{Outcome: QuotaIgnored, Usage: c.usage(s), Slot: s}
			return nil
		}
		res, err = c.count(ctx, tx, s, everyone, here, o.MessageRef)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// count applies the increments to s inside tx.
func (c *Controller) count(ctx context.Context, tx Tx, s *Slot, everyone, here int, messageRef string) (QuotaResult, error) {
	limits := c.catalog.LimitsFor(s)
	nextEveryone := s.EveryoneUsed + everyone
	nextHere := s.HereUsed + here

	if nextEveryone > limits.Everyone || nextHere > limits.Here {
		capped := Usage{
			EveryoneUsed: min(nextEveryone, limits.Everyone),
			HereUsed:     min(nextHere, limits.Here),
			Limits:       limits,
		}
		n := c.notice(TemplateAbuseRevoked, s, "")
		n.Usage = capped

		var effects []Effect
		if messageRef != "" {
			effects = append(effects, deleteMessage(s.OwnerID, s.ChannelRef, messageRef))
		}
		revoke, err := c.revokeInTx(ctx, tx, s, ReasonAbuse, n)
		if err != nil {
			return QuotaResult{}, err
		}
		return QuotaResult{
			Outcome: QuotaLimitExceeded,
			Usage:   capped,
			Slot:    s,
			Effects: append(effects, revoke...),
		}, nil
	}

	s.EveryoneUsed = nextEveryone
	s.HereUsed = nextHere
	s.UpdatedAt = c.now()

	effects := c.sticky(s)
	used := c.notice(TemplatePingUsed, s, "")
	used.Count = everyone + here
	ping := sendMessage(s.OwnerID, s.ChannelRef, used, TrackNone)
	ping.TTL = c.pingNoticeTTL
	effects = append(effects, ping)

	if err := tx.Upsert(ctx, s); err != nil {
		return QuotaResult{}, storeErr("upsert", err)
	}
	return QuotaResult{Outcome: QuotaOk, Usage: c.usage(s), Slot: s, Effects: effects}, nil
}

// GrantCredits raises the custom limits of a slot. The first grant starts from
// the plan defaults; after that the custom limits are the only source.
func (c *Controller) GrantCredits(ctx context.Context, ownerID string, hereDelta, everyoneDelta int, actorID string) (*Result, error) {
	if hereDelta < 0 || everyoneDelta < 0 {
		return nil, precondition("credits can only be added")
	}
	if hereDelta == 0 && everyoneDelta == 0 {
		return nil, precondition("no credits to add")
	}
	var res Result
	err := c.mutate(ctx, "grant credits", []string{ownerID}, func(ctx context.Context, tx Tx) error {
		s, err := activeSlot(ctx, tx, ownerID)
		if err != nil {
			return err
		}
		limits := c.catalog.LimitsFor(s)
		limits.Here += hereDelta
		limits.Everyone += everyoneDelta
		s.CustomLimits = &limits
		s.UpdatedAt = c.now()

		effects := c.sticky(s)
		n := c.notice(TemplateCredits, s, actorID)
		n.Count = hereDelta + everyoneDelta
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

// ResetQuota zeroes the counters of one slot. Repeating it changes nothing.
func (c *Controller) ResetQuota(ctx context.Context, ownerID, actorID string) (*Result, error) {
	var res Result
	err := c.mutate(ctx, "reset quota", []string{ownerID}, func(ctx context.Context, tx Tx) error {
		s, err := activeSlot(ctx, tx, ownerID)
		if err != nil {
			return err
		}
		s.EveryoneUsed = 0
		s.HereUsed = 0
		s.UpdatedAt = c.now()

		effects := c.sticky(s)
		n := c.notice(TemplateQuotaReset, s, actorID)
		n.Manual = true
		effects = append(effects, adminLog(s.OwnerID, n))
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

// ResetAllQuotas zeroes every active slot's counters, refreshes each usage
// message and ends with one announcement batch.
func (c *Controller) ResetAllQuotas(ctx context.Context, manual bool, actorID string) (*SweepResult, error) {
	res, err := c.sweep(ctx, "reset quotas", nil, func(ctx context.Context, tx Tx, s *Slot) ([]Effect, error) {
		s.EveryoneUsed = 0
		s.HereUsed = 0
		s.UpdatedAt = c.now()

		var effects []Effect
		if c.purgeOnReset {
			effects = append(effects, purge(s.OwnerID, s.ChannelRef, s.WelcomeMessageRef), c.trackedSend(s, TrackSticky))
		} else {
			effects = append(effects, c.sticky(s)...)
		}
		if err := tx.Upsert(ctx, s); err != nil {
			return nil, storeErr("upsert", err)
		}
		return effects, nil
	})
	if err != nil {
		return nil, err
	}

	announce := Notice{
		Template: TemplateQuotaReset,
		ActorID:  actorID,
		Count:    res.Processed,
		Manual:   manual,
		Mention:  RoleAccess,
	}
	res.Batches = append(res.Batches, Batch{Effects: []Effect{
		{Kind: EffectAnnounce, Notice: &announce},
		adminLog("", announce),
	}})
	return res, nil
}
