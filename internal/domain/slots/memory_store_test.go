package slots

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func testSlot(owner, secret string, status Status) *Slot {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	return &Slot{
		OwnerID:        owner,
		Status:         status,
		ChannelRef:     "chan-" + owner,
		Plan:           PlanStandard,
		StartTime:      start,
		EndTime:        start.Add(24 * time.Hour),
		RecoverySecret: secret,
	}
}

func TestMemoryStore_AtomicRollsBackOnError(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	boom := errors.New("boom")

	err := store.Atomic(ctx, func(ctx context.Context, tx Tx) error {
		if err := tx.Insert(ctx, testSlot("u1", "S1", StatusActive)); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Atomic() error = %v, want %v", err, boom)
	}
	if _, err := store.Get(ctx, "u1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() after rollback error = %v, want %v", err, ErrNotFound)
	}
}

func TestMemoryStore_TxConstraints(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	seed := func(ctx context.Context, tx Tx) error {
		if err := tx.Insert(ctx, testSlot("u1", "S1", StatusActive)); err != nil {
			return err
		}
		return tx.Insert(ctx, testSlot("u2", "S2", StatusRevoked))
	}
	if err := store.Atomic(ctx, seed); err != nil {
		t.Fatalf("Atomic() seed error = %v", err)
	}

	tests := []struct {
		name    string
		fn      func(ctx context.Context, tx Tx) error
		wantErr error
	}{
		{
			name: "Insert existing active owner",
			fn: func(ctx context.Context, tx Tx) error {
				return tx.Insert(ctx, testSlot("u1", "S9", StatusActive))
			},
			wantErr: ErrAlreadyExists,
		},
		{
			name: "Insert existing revoked owner",
			fn: func(ctx context.Context, tx Tx) error {
				return tx.Insert(ctx, testSlot("u2", "S9", StatusActive))
			},
			wantErr: ErrAlreadyExists,
		},
		{
			name: "Duplicate secret across statuses",
			fn: func(ctx context.Context, tx Tx) error {
				return tx.Insert(ctx, testSlot("u3", "S2", StatusActive))
			},
			wantErr: ErrAlreadyExists,
		},
		{
			name: "Revoke a revoked record",
			fn: func(ctx context.Context, tx Tx) error {
				return tx.MoveToRevoked(ctx, "u2", "again", time.Now())
			},
			wantErr: ErrPreconditionFailed,
		},
		{
			name: "Activate an active record",
			fn: func(ctx context.Context, tx Tx) error {
				return tx.MoveToActive(ctx, "u1", time.Now())
			},
			wantErr: ErrPreconditionFailed,
		},
		{
			name: "Remove missing",
			fn: func(ctx context.Context, tx Tx) error {
				_, err := tx.Remove(ctx, "ghost")
				return err
			},
			wantErr: ErrNotFound,
		},
		{
			name: "Secret freed by removal in the same transaction",
			fn: func(ctx context.Context, tx Tx) error {
				if _, err := tx.Remove(ctx, "u1"); err != nil {
					return err
				}
				return tx.Insert(ctx, testSlot("u3", "S1", StatusActive))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := store.Atomic(ctx, func(ctx context.Context, tx Tx) error {
				if err := tt.fn(ctx, tx); err != nil {
					return err
				}
				return errors.New("rollback")
			})
			if tt.wantErr == nil {
				if err == nil || err.Error() != "rollback" {
					t.Errorf("Atomic() error = %v, want rollback", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Atomic() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestMemoryStore_MoveZeroesCounters(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	s := testSlot("u1", "S1", StatusActive)
	s.HereUsed = 2
	s.Held = true

	err := store.Atomic(ctx, func(ctx context.Context, tx Tx) error {
		if err := tx.Insert(ctx, s); err != nil {
			return err
		}
		return tx.MoveToRevoked(ctx, "u1", ReasonManual, s.StartTime)
	})
	if err != nil {
		t.Fatalf("Atomic() error = %v", err)
	}
	got, _ := store.Get(ctx, "u1")
	if got.Status != StatusRevoked || got.HereUsed != 0 || got.Held {
		t.Errorf("Get() got = %+v", got)
	}
	if got.RecoverySecret != "S1" || got.ChannelRef != "chan-u1" {
		t.Errorf("revoked record lost its fields: %+v", got)
	}
}

func TestOpenFileStore_SurvivesRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "slots.json")
	ctx := context.Background()

	store, err := OpenFileStore(path)
	if err != nil {
		t.Fatalf("OpenFileStore() error = %v", err)
	}
	err = store.Atomic(ctx, func(ctx context.Context, tx Tx) error {
		if err := tx.Insert(ctx, testSlot("u1", "S1", StatusActive)); err != nil {
			return err
		}
		return tx.Insert(ctx, testSlot("u2", "S2", StatusRevoked))
	})
	if err != nil {
		t.Fatalf("Atomic() error = %v", err)
	}

	reopened, err := OpenFileStore(path)
	if err != nil {
		t.Fatalf("OpenFileStore() reopen error = %v", err)
	}
	active, _ := reopened.List(ctx, StatusActive)
	revoked, _ := reopened.List(ctx, StatusRevoked)
	if len(active) != 1 || active[0].OwnerID != "u1" {
		t.Errorf("List(active) got = %+v", active)
	}
	if len(revoked) != 1 || revoked[0].OwnerID != "u2" {
		t.Errorf("List(revoked) got = %+v", revoked)
	}
	found, err := reopened.FindBySecret(ctx, "S2")
	if err != nil || found.OwnerID != "u2" {
		t.Errorf("FindBySecret() got = %+v, err = %v", found, err)
	}

	matches, _ := filepath.Glob(filepath.Join(filepath.Dir(path), "*.tmp"))
	if len(matches) != 0 {
		t.Errorf("temporary files left behind: %v", matches)
	}
}

func TestOpenFileStore_RejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "slots.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := OpenFileStore(path); !errors.Is(err, ErrStoreIO) {
		t.Errorf("OpenFileStore() error = %v, want %v", err, ErrStoreIO)
	}
}

func TestSnapshot_ActiveWinsAndValidate(t *testing.T) {
	snap := &Snapshot{
		Active:  map[string]*Slot{"u1": testSlot("u1", "S1", StatusActive)},
		Revoked: map[string]*Slot{"u1": testSlot("u1", "S1", StatusRevoked), "u2": testSlot("u2", "S2", StatusRevoked)},
	}
	if err := snap.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	records := snap.Records()
	if len(records) != 2 {
		t.Fatalf("Records() len = %d, want 2", len(records))
	}
	for _, r := range records {
		if r.OwnerID == "u1" && r.Status != StatusActive {
			t.Errorf("Records() kept the revoked copy of u1")
		}
	}

	snap.Revoked["u3"] = testSlot("u3", "S2", StatusRevoked)
	if err := snap.Validate(); !errors.Is(err, ErrPreconditionFailed) {
		t.Errorf("Validate() duplicate secret error = %v, want %v", err, ErrPreconditionFailed)
	}
}

func TestMemoryStore_Load(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	snap := NewSnapshot([]*Slot{testSlot("u1", "S1", StatusActive), testSlot("u2", "S2", StatusRevoked)}, time.Now())

	if err := store.Load(ctx, snap); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	got, err := store.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if len(got.Active) != 1 || len(got.Revoked) != 1 {
		t.Errorf("Snapshot() active = %d revoked = %d", len(got.Active), len(got.Revoked))
	}
}
