package slots

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Redeem hands the active slot holding secret over to claimant and rotates
// the secret. Revoked slots cannot be redeemed; they come back through Restore.
func (c *Controller) Redeem(ctx context.Context, secret, claimantID string) (*Result, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" || claimantID == "" {
		return nil, ErrInvalidKey
	}

	found, err := c.store.FindBySecret(ctx, secret)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrInvalidKey
	}
	if err != nil {
		return nil, storeErr("find by secret", err)
	}
	if !found.Active() {
		return nil, ErrInvalidKey
	}
	previousOwner := found.OwnerID

	var res Result
	err = c.mutate(ctx, "redeem", []string{previousOwner, claimantID}, func(ctx context.Context, tx Tx) error {
		s, err := tx.Get(ctx, previousOwner)
		if errors.Is(err, ErrNotFound) {
			return ErrInvalidKey
		}
		if err != nil {
			return storeErr("get", err)
		}
		if !s.Active() || s.RecoverySecret != secret {
			return ErrInvalidKey
		}
		conflict := fmt.Errorf("%w: %s already has an active slot", ErrAlreadyOwned, claimantID)
		dropped, err := c.claimOwner(ctx, tx, claimantID, claimantID, conflict)
		if err != nil {
			return err
		}

		rotated, err := c.freshSecret(ctx, tx)
		if err != nil {
			return err
		}
		s.RecoverySecret = rotated
		spec, _ := c.catalog.Lookup(s.Plan)

		effects, err := c.handover(ctx, tx, s, claimantID, spec)
		if err != nil {
			return err
		}
		effects = append(effects, c.welcome(s)...)

		recovered := c.notice(TemplateRecovered, s, claimantID)
		recovered.OtherID = previousOwner
		recovered.Secret = rotated
		lost := c.notice(TemplateRecoveredFrom, s, claimantID)
		lost.OtherID = previousOwner
		effects = append(effects,
			directMessage(s.OwnerID, claimantID, recovered),
			directMessage(s.OwnerID, previousOwner, lost),
			adminLog(s.OwnerID, lost),
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

// ResendRecoveryKeys sends every active owner their key, issuing one first
// where a record has none.
func (c *Controller) ResendRecoveryKeys(ctx context.Context) (*SweepResult, error) {
	return c.sweep(ctx, "resend keys", nil, func(ctx context.Context, tx Tx, s *Slot) ([]Effect, error) {
		if s.RecoverySecret == "" {
			secret, err := c.freshSecret(ctx, tx)
			if err != nil {
				return nil, err
			}
			s.RecoverySecret = secret
			s.UpdatedAt = c.now()
			if err := tx.Upsert(ctx, s); err != nil {
				return nil, storeErr("upsert", err)
			}
		}
		n := c.notice(TemplateRecoveryKey, s, "")
		n.Secret = s.RecoverySecret
		return []Effect{directMessage(s.OwnerID, s.OwnerID, n)}, nil
	})
}
