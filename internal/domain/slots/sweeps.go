package slots

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// sweep applies fn to every active slot accepted by eligible. Eligibility is
// checked again inside the transaction; a record that changed or vanished
// since the scan is skipped. Failures are logged and counted, never fatal.
func (c *Controller) sweep(ctx context.Context, op string, eligible func(s *Slot, now time.Time) bool, fn func(ctx context.Context, tx Tx, s *Slot) ([]Effect, error)) (*SweepResult, error) {
	candidates, err := c.store.List(ctx, StatusActive)
	if err != nil {
		return nil, storeErr("list", err)
	}

	res := &SweepResult{}
	for _, cand := range candidates {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if eligible != nil && !eligible(cand, c.now()) {
			continue
		}

		var effects []Effect
		err := c.mutate(ctx, op, []string{cand.OwnerID}, func(ctx context.Context, tx Tx) error {
			s, err := tx.Get(ctx, cand.OwnerID)
			if err != nil {
				return err
			}
			if !s.Active() || (eligible != nil && !eligible(s, c.now())) {
				return errSkip
			}
			effects, err = fn(ctx, tx, s)
			return err
		})
		switch {
		case errors.Is(err, errSkip), errors.Is(err, ErrNotFound):
			continue
		case err != nil:
			res.Failed++
			slog.Error("Sweep failed for slot",
				slog.String("type", "sys"),
				slog.String("sweep", op),
				slog.String("owner_id", cand.OwnerID),
				slog.Any("error", err),
			)
			continue
		}
		res.add(cand.OwnerID, effects)
	}
	return res, nil
}

func expiryDue(s *Slot, now time.Time) bool {
	return !s.Held && now.After(s.EndTime)
}

// ExpireDue revokes every active slot past its end time. Held slots are
// skipped until they are unheld.
func (c *Controller) ExpireDue(ctx context.Context) (*SweepResult, error) {
	return c.sweep(ctx, "expire", expiryDue, func(ctx context.Context, tx Tx, s *Slot) ([]Effect, error) {
		return c.revokeInTx(ctx, tx, s, ReasonExpired, c.notice(TemplateExpired, s, ""))
	})
}

// WarnExpiring notifies owners whose grant ends within the warning window,
// once per grant period.
func (c *Controller) WarnExpiring(ctx context.Context) (*SweepResult, error) {
	due := func(s *Slot, now time.Time) bool {
		left := s.EndTime.Sub(now)
		return !s.Warned && left > 0 && left <= c.warningWindow
	}
	return c.sweep(ctx, "warn", due, func(ctx context.Context, tx Tx, s *Slot) ([]Effect, error) {
		s.Warned = true
		s.UpdatedAt = c.now()
		if err := tx.Upsert(ctx, s); err != nil {
			return nil, storeErr("upsert", err)
		}
		return []Effect{directMessage(s.OwnerID, s.OwnerID, c.notice(TemplateExpiryWarning, s, ""))}, nil
	})
}
