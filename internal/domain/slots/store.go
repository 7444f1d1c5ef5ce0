package slots

import (
	"context"
	"time"
)

// Store persists slot records in a single keyed table with a status
// discriminant, so an owner can never be both active and revoked.
//
// Reads outside Atomic are snapshots and may be stale by the time the caller
// acts on them; every mutation must re-check its preconditions inside Atomic.
type Store interface {
	Get(ctx context.Context, ownerID string) (*Slot, error)
	// List returns every record with the given status, ordered by owner.
	List(ctx context.Context, status Status) ([]*Slot, error)
	// FindBySecret returns the record holding secret in either status.
	FindBySecret(ctx context.Context, secret string) (*Slot, error)
	// Atomic runs fn in a transaction. Either every write made through tx is
	// committed or none is.
	Atomic(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	Snapshot(ctx context.Context) (*Snapshot, error)
	// Load replaces the whole table with the snapshot contents.
	Load(ctx context.Context, snap *Snapshot) error
}

// Tx is the mutation surface available inside Store.Atomic.
type Tx interface {
	// Get returns the record and holds it for the rest of the transaction.
	Get(ctx context.Context, ownerID string) (*Slot, error)
	// Insert fails with ErrAlreadyExists when the owner key is present in any status.
	Insert(ctx context.Context, slot *Slot) error
	Upsert(ctx context.Context, slot *Slot) error
	Remove(ctx context.Context, ownerID string) (*Slot, error)
	// MoveToRevoked flips an active record to revoked, zeroing its counters.
	MoveToRevoked(ctx context.Context, ownerID, reason string, at time.Time) error
	// MoveToActive flips a revoked record back to active, zeroing its counters.
	MoveToActive(ctx context.Context, ownerID string, at time.Time) error
	SecretInUse(ctx context.Context, secret string) (bool, error)
}

// MarkRevoked applies the revoked-state invariants to the record in place.
func (s *Slot) MarkRevoked(reason string, at time.Time) {
	s.Status = StatusRevoked
	s.EveryoneUsed = 0
	s.HereUsed = 0
	s.Held = false
	s.HeldAt = time.Time{}
	s.RevokedAt = at
	s.RevokeReason = reason
	s.UpdatedAt = at
}

// MarkActive applies the restored-state invariants to the record in place.
func (s *Slot) MarkActive(at time.Time) {
	s.Status = StatusActive
	s.EveryoneUsed = 0
	s.HereUsed = 0
	s.Warned = false
	s.RevokedAt = time.Time{}
	s.RevokeReason = ""
	s.UpdatedAt = at
}

// Snapshot is the complete persisted state in the two-table layout used by
// backup and restore tooling.
type Snapshot struct {
	Version int              `json:"version"`
	TakenAt time.Time        `json:"taken_at"`
	Active  map[string]*Slot `json:"active"`
	Revoked map[string]*Slot `json:"revoked"`
}

const SnapshotVersion = 1

// NewSnapshot splits records by status.
func NewSnapshot(records []*Slot, at time.Time) *Snapshot {
	snap := &Snapshot{
		Version: SnapshotVersion,
		TakenAt: at,
		Active:  make(map[string]*Slot),
		Revoked: make(map[string]*Slot),
	}
	for _, r := range records {
		c := r.Clone()
		if c.Status == StatusRevoked {
			snap.Revoked[c.OwnerID] = c
		} else {
			c.Status = StatusActive
			snap.Active[c.OwnerID] = c
		}
	}
	return snap
}

// Records flattens the snapshot back into a single table. An owner listed in
// both maps keeps the active record, matching the rule that active state wins
// when reconciling divergent backups.
func (s *Snapshot) Records() []*Slot {
	out := make([]*Slot, 0, len(s.Active)+len(s.Revoked))
	for owner, r := range s.Revoked {
		if _, dup := s.Active[owner]; dup {
			continue
		}
		c := r.Clone()
		c.OwnerID = owner
		c.Status = StatusRevoked
		out = append(out, c)
	}
	for owner, r := range s.Active {
		c := r.Clone()
		c.OwnerID = owner
		c.Status = StatusActive
		out = append(out, c)
	}
	return out
}

// Validate checks the cross-table invariants of a snapshot before it is loaded.
func (s *Snapshot) Validate() error {
	secrets := make(map[string]string)
	for _, r := range s.Records() {
		if r.OwnerID == "" {
			return precondition("record without owner")
		}
		if !r.EndTime.After(r.StartTime) {
			return precondition("slot %s ends before it starts", r.OwnerID)
		}
		if r.RecoverySecret == "" {
			continue
		}
		if other, dup := secrets[r.RecoverySecret]; dup {
			return precondition("recovery secret shared by %s and %s", other, r.OwnerID)
		}
		secrets[r.RecoverySecret] = r.OwnerID
	}
	return nil
}
