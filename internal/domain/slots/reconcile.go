package slots

import (
	"context"
	"log/slog"
)

type ReconcileRequest struct {
	// Live is the set of channel refs that currently exist on the platform.
	Live map[string]bool
	// Prune removes records whose channel is gone.
	Prune   bool
	ActorID string
}

type ReconcileResult struct {
	SweepResult
	Active  int
	Revoked int
	Orphans []string
	Pruned  []string
}

// Reconcile compares the persisted table with the live channels, optionally
// prunes orphans, and re-applies the expected layout and roles of every
// surviving record.
func (c *Controller) Reconcile(ctx context.Context, req ReconcileRequest) (*ReconcileResult, error) {
	res := &ReconcileResult{}
	for _, status := range []Status{StatusActive, StatusRevoked} {
		records, err := c.store.List(ctx, status)
		if err != nil {
			return nil, storeErr("list", err)
		}
		for _, s := range records {
			if err := ctx.Err(); err != nil {
				return res, err
			}
			if !req.Live[s.ChannelRef] {
				res.Orphans = append(res.Orphans, s.OwnerID)
				if req.Prune {
					c.prune(ctx, s, req.ActorID, res)
				}
				continue
			}
			res.add(s.OwnerID, c.layout(s))
			if status == StatusActive {
				res.Active++
			} else {
				res.Revoked++
			}
		}
	}

	n := Notice{Template: TemplateReconciled, ActorID: req.ActorID, Count: res.Active + res.Revoked}
	res.Batches = append(res.Batches, Batch{Effects: []Effect{adminLog("", n)}})
	return res, nil
}

// layout returns the full expected external state of a record.
func (c *Controller) layout(s *Slot) []Effect {
	spec, ok := c.catalog.Lookup(s.Plan)
	if !s.Active() {
		return revokedLayout(s)
	}
	if !ok {
		spec = PlanSpec{Name: s.Plan, Category: Category(s.Plan)}
	}
	effects := activeLayout(s, spec)
	effects = append(effects, grantRoles(s.OwnerID, s.OwnerID, spec)...)
	if s.Held {
		effects = append(effects, addRole(s.OwnerID, s.OwnerID, RoleOnHold))
	}
	return effects
}

func (c *Controller) prune(ctx context.Context, scanned *Slot, actorID string, res *ReconcileResult) {
	var effects []Effect
	err := c.mutate(ctx, "prune", []string{scanned.OwnerID}, func(ctx context.Context, tx Tx) error {
		s, err := tx.Get(ctx, scanned.OwnerID)
		if err != nil {
			return err
		}
		if s.ChannelRef != scanned.ChannelRef {
			return errSkip
		}
		if _, err := tx.Remove(ctx, s.OwnerID); err != nil {
			return err
		}
		if s.Active() {
			spec, _ := c.catalog.Lookup(s.Plan)
			effects = stripRoles(s.OwnerID, s.OwnerID, spec)
		}
		effects = append(effects, adminLog(s.OwnerID, c.notice(TemplateCleaned, s, actorID)))
		return nil
	})
	if err != nil {
		res.Failed++
		slog.Warn("Failed to prune orphaned slot",
			slog.String("type", "sys"),
			slog.String("owner_id", scanned.OwnerID),
			slog.Any("error", err),
		)
		return
	}
	res.Pruned = append(res.Pruned, scanned.OwnerID)
	res.add(scanned.OwnerID, effects)
}
