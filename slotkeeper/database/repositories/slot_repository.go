package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/ellavondegurechaff/slotkeeper/internal/domain/logger"
	"github.com/ellavondegurechaff/slotkeeper/internal/domain/slots"
	"github.com/ellavondegurechaff/slotkeeper/slotkeeper/database/models"
	"github.com/uptrace/bun"
)

const slotEntity = "slot"

// SlotRepository is the Postgres slot store. Rows read through a transaction
// are locked with SELECT ... FOR UPDATE until it commits.
type SlotRepository struct {
	*BaseRepository
}

var _ slots.Store = (*SlotRepository)(nil)

func NewSlotRepository(db *bun.DB) *SlotRepository {
	return &SlotRepository{BaseRepository: NewBaseRepository(db)}
}

func (r *SlotRepository) Get(ctx context.Context, ownerID string) (*slots.Slot, error) {
	ctx, cancel := r.WithTimeout(ctx)
	defer cancel()

	m := new(models.Slot)
	err := r.db.NewSelect().Model(m).Where("owner_id = ?", ownerID).Scan(ctx)
	if err != nil {
		return nil, r.HandleErrorWithID("get", slotEntity, ownerID, err)
	}
	return m.ToDomain(), nil
}

func (r *SlotRepository) List(ctx context.Context, status slots.Status) ([]*slots.Slot, error) {
	ctx, cancel := r.WithTimeout(ctx)
	defer cancel()

	var rows []*models.Slot
	err := r.db.NewSelect().
		Model(&rows).
		Where("status = ?", string(status)).
		Order("owner_id ASC").
		Scan(ctx)
	if err != nil {
		return nil, r.HandleErrorWithID("list", slotEntity, status, err)
	}
	return toDomain(rows), nil
}

func (r *SlotRepository) FindBySecret(ctx context.Context, secret string) (*slots.Slot, error) {
	if secret == "" {
		return nil, &NotFoundError{Entity: slotEntity, ID: "secret"}
	}
	ctx, cancel := r.WithTimeout(ctx)
	defer cancel()

	m := new(models.Slot)
	err := r.db.NewSelect().Model(m).Where("recovery_secret = ?", secret).Scan(ctx)
	if err != nil {
		// never log or echo the secret itself
		return nil, r.HandleErrorWithID("find by secret", slotEntity, "secret", err)
	}
	return m.ToDomain(), nil
}

func (r *SlotRepository) Atomic(ctx context.Context, fn func(ctx context.Context, tx slots.Tx) error) error {
	txlog := logger.StartTx("postgres")
	var writes int
	err := r.Transaction(ctx, func(ctx context.Context, tx bun.Tx) error {
		st := &slotTx{base: r.BaseRepository, tx: tx}
		err := fn(ctx, st)
		writes = st.writes
		return err
	})
	if err != nil {
		txlog.Abort(err, slots.IsDomain(err))
		return err
	}
	txlog.Commit(writes)
	return nil
}

func (r *SlotRepository) Snapshot(ctx context.Context) (*slots.Snapshot, error) {
	ctx, cancel := r.WithTimeout(ctx)
	defer cancel()

	var rows []*models.Slot
	if err := r.db.NewSelect().Model(&rows).Order("owner_id ASC").Scan(ctx); err != nil {
		return nil, r.HandleErrorWithID("snapshot", slotEntity, "*", err)
	}
	return slots.NewSnapshot(toDomain(rows), time.Now().UTC()), nil
}

// Load replaces the table contents with the snapshot in one transaction.
func (r *SlotRepository) Load(ctx context.Context, snap *slots.Snapshot) error {
	if err := snap.Validate(); err != nil {
		return err
	}
	records := snap.Records()
	rows := make([]*models.Slot, 0, len(records))
	for _, s := range records {
		rows = append(rows, models.SlotFromDomain(s))
	}

	return r.Transaction(ctx, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().Model((*models.Slot)(nil)).Where("TRUE").Exec(ctx); err != nil {
			return r.HandleErrorWithID("load", slotEntity, "*", err)
		}
		if len(rows) == 0 {
			return nil
		}
		if _, err := tx.NewInsert().Model(&rows).Exec(ctx); err != nil {
			return r.HandleErrorWithID("load", slotEntity, "*", err)
		}
		return nil
	})
}

func toDomain(rows []*models.Slot) []*slots.Slot {
	out := make([]*slots.Slot, 0, len(rows))
	for _, m := range rows {
		out = append(out, m.ToDomain())
	}
	return out
}

// slotTx implements slots.Tx on top of a bun transaction.
type slotTx struct {
	base   *BaseRepository
	tx     bun.Tx
	writes int
}

func (t *slotTx) lockRow(ctx context.Context, ownerID string) (*models.Slot, error) {
	m := new(models.Slot)
	err := t.tx.NewSelect().Model(m).Where("owner_id = ?", ownerID).For("UPDATE").Scan(ctx)
	if err != nil {
		return nil, t.base.HandleErrorWithID("get", slotEntity, ownerID, err)
	}
	return m, nil
}

func (t *slotTx) Get(ctx context.Context, ownerID string) (*slots.Slot, error) {
	m, err := t.lockRow(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	return m.ToDomain(), nil
}

func (t *slotTx) Insert(ctx context.Context, slot *slots.Slot) error {
	if slot.OwnerID == "" {
		return fmt.Errorf("%w: slot without owner", slots.ErrPreconditionFailed)
	}
	m := models.SlotFromDomain(slot)
	if _, err := t.tx.NewInsert().Model(m).Exec(ctx); err != nil {
		return t.base.HandleErrorWithID("insert", slotEntity, slot.OwnerID, err)
	}
	t.writes++
	return nil
}

func (t *slotTx) Upsert(ctx context.Context, slot *slots.Slot) error {
	if slot.OwnerID == "" {
		return fmt.Errorf("%w: slot without owner", slots.ErrPreconditionFailed)
	}
	m := models.SlotFromDomain(slot)
	_, err := t.tx.NewInsert().
		Model(m).
		On("CONFLICT (owner_id) DO UPDATE").
		Exec(ctx)
	if err != nil {
		return t.base.HandleErrorWithID("upsert", slotEntity, slot.OwnerID, err)
	}
	t.writes++
	return nil
}

func (t *slotTx) Remove(ctx context.Context, ownerID string) (*slots.Slot, error) {
	m, err := t.lockRow(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if _, err := t.tx.NewDelete().Model((*models.Slot)(nil)).Where("owner_id = ?", ownerID).Exec(ctx); err != nil {
		return nil, t.base.HandleErrorWithID("remove", slotEntity, ownerID, err)
	}
	t.writes++
	return m.ToDomain(), nil
}

func (t *slotTx) MoveToRevoked(ctx context.Context, ownerID, reason string, at time.Time) error {
	return t.move(ctx, ownerID, slots.StatusActive, func(s *slots.Slot) { s.MarkRevoked(reason, at) })
}

func (t *slotTx) MoveToActive(ctx context.Context, ownerID string, at time.Time) error {
	return t.move(ctx, ownerID, slots.StatusRevoked, func(s *slots.Slot) { s.MarkActive(at) })
}

func (t *slotTx) move(ctx context.Context, ownerID string, from slots.Status, apply func(*slots.Slot)) error {
	m, err := t.lockRow(ctx, ownerID)
	if err != nil {
		return err
	}
	if slots.Status(m.Status) != from {
		return fmt.Errorf("%w: slot %s is %s", slots.ErrPreconditionFailed, ownerID, m.Status)
	}
	s := m.ToDomain()
	apply(s)
	if _, err := t.tx.NewUpdate().Model(models.SlotFromDomain(s)).WherePK().Exec(ctx); err != nil {
		return t.base.HandleErrorWithID("move", slotEntity, ownerID, err)
	}
	t.writes++
	return nil
}

func (t *slotTx) SecretInUse(ctx context.Context, secret string) (bool, error) {
	exists, err := t.tx.NewSelect().
		Model((*models.Slot)(nil)).
		Where("recovery_secret = ?", secret).
		Exists(ctx)
	if err != nil {
		return false, t.base.HandleErrorWithID("secret in use", slotEntity, "secret", err)
	}
	return exists, nil
}
