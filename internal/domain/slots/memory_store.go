package slots

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/ellavondegurechaff/slotkeeper/internal/domain/logger"
)

// MemoryStore keeps the slot table in memory, optionally mirrored to a JSON
// snapshot file that is rewritten after every committed transaction.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Slot
	path    string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*Slot)}
}

// OpenFileStore opens a file-backed store, loading the existing snapshot when
// the file is present.
func OpenFileStore(path string) (*MemoryStore, error) {
	s := &MemoryStore{records: make(map[string]*Slot), path: path}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, &StoreError{Op: "open", Err: err}
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, &StoreError{Op: "open", Err: fmt.Errorf("decode %s: %w", path, err)}
	}
	if err := snap.Validate(); err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", path, err)
	}
	for _, r := range snap.Records() {
		s.records[r.OwnerID] = r
	}
	return s, nil
}

func (s *MemoryStore) Get(_ context.Context, ownerID string) (*Slot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.records[ownerID]
	if !ok {
		return nil, ErrNotFound
	}
	return r.Clone(), nil
}

func (s *MemoryStore) List(_ context.Context, status Status) ([]*Slot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Slot, 0, len(s.records))
	for _, r := range s.records {
		if r.Status == status {
			out = append(out, r.Clone())
		}
	}
	slices.SortFunc(out, func(a, b *Slot) int { return strings.Compare(a.OwnerID, b.OwnerID) })
	return out, nil
}

func (s *MemoryStore) FindBySecret(_ context.Context, secret string) (*Slot, error) {
	if secret == "" {
		return nil, ErrNotFound
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, r := range s.records {
		if r.RecoverySecret == secret {
			return r.Clone(), nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) Atomic(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	txlog := logger.StartTx("memory")
	tx := &memTx{base: s.records, changed: make(map[string]*Slot)}
	if err := fn(ctx, tx); err != nil {
		txlog.Abort(err, IsDomain(err))
		return err
	}
	if len(tx.changed) == 0 {
		txlog.Commit(0)
		return nil
	}

	next := make(map[string]*Slot, len(s.records)+len(tx.changed))
	for k, v := range s.records {
		next[k] = v
	}
	for k, v := range tx.changed {
		if v == nil {
			delete(next, k)
		} else {
			next[k] = v
		}
	}

	if err := s.persist(next); err != nil {
		txlog.Abort(err, false)
		return &StoreError{Op: "commit", Err: err}
	}
	s.records = next
	txlog.Commit(len(tx.changed))
	return nil
}

func (s *MemoryStore) Snapshot(_ context.Context) (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]*Slot, 0, len(s.records))
	for _, r := range s.records {
		records = append(records, r)
	}
	return NewSnapshot(records, time.Now().UTC()), nil
}

func (s *MemoryStore) Load(_ context.Context, snap *Snapshot) error {
	if err := snap.Validate(); err != nil {
		return err
	}

	next := make(map[string]*Slot)
	for _, r := range snap.Records() {
		next[r.OwnerID] = r
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.persist(next); err != nil {
		return &StoreError{Op: "load", Err: err}
	}
	s.records = next
	return nil
}

// persist writes the table to a temporary file and renames it into place, so
// a crash leaves either the old or the new snapshot on disk.
func (s *MemoryStore) persist(records map[string]*Slot) error {
	if s.path == "" {
		return nil
	}

	list := make([]*Slot, 0, len(records))
	for _, r := range records {
		list = append(list, r)
	}
	data, err := json.MarshalIndent(NewSnapshot(list, time.Now().UTC()), "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}

// memTx records writes in an overlay; a nil entry marks a removal.
type memTx struct {
	base    map[string]*Slot
	changed map[string]*Slot
}

func (t *memTx) lookup(ownerID string) (*Slot, bool) {
	if r, ok := t.changed[ownerID]; ok {
		return r, r != nil
	}
	r, ok := t.base[ownerID]
	return r, ok
}

func (t *memTx) each(fn func(*Slot) bool) {
	for _, r := range t.changed {
		if r != nil && !fn(r) {
			return
		}
	}
	for k, r := range t.base {
		if _, overridden := t.changed[k]; overridden {
			continue
		}
		if !fn(r) {
			return
		}
	}
}

func (t *memTx) secretOwner(secret string) string {
	owner := ""
	t.each(func(r *Slot) bool {
		if r.RecoverySecret == secret {
			owner = r.OwnerID
			return false
		}
		return true
	})
	return owner
}

func (t *memTx) Get(_ context.Context, ownerID string) (*Slot, error) {
	r, ok := t.lookup(ownerID)
	if !ok {
		return nil, ErrNotFound
	}
	return r.Clone(), nil
}

func (t *memTx) Insert(ctx context.Context, slot *Slot) error {
	if _, ok := t.lookup(slot.OwnerID); ok {
		return fmt.Errorf("%w: owner %s", ErrAlreadyExists, slot.OwnerID)
	}
	return t.Upsert(ctx, slot)
}

func (t *memTx) Upsert(_ context.Context, slot *Slot) error {
	if slot.OwnerID == "" {
		return precondition("slot without owner")
	}
	if slot.RecoverySecret != "" {
		if owner := t.secretOwner(slot.RecoverySecret); owner != "" && owner != slot.OwnerID {
			return fmt.Errorf("%w: recovery secret already in use", ErrAlreadyExists)
		}
	}
	t.changed[slot.OwnerID] = slot.Clone()
	return nil
}

func (t *memTx) Remove(_ context.Context, ownerID string) (*Slot, error) {
	r, ok := t.lookup(ownerID)
	if !ok {
		return nil, ErrNotFound
	}
	t.changed[ownerID] = nil
	return r.Clone(), nil
}

func (t *memTx) MoveToRevoked(_ context.Context, ownerID, reason string, at time.Time) error {
	r, ok := t.lookup(ownerID)
	if !ok {
		return ErrNotFound
	}
	if r.Status != StatusActive {
		return precondition("slot %s is not active", ownerID)
	}
	c := r.Clone()
	c.MarkRevoked(reason, at)
	t.changed[ownerID] = c
	return nil
}

func (t *memTx) MoveToActive(_ context.Context, ownerID string, at time.Time) error {
	r, ok := t.lookup(ownerID)
	if !ok {
		return ErrNotFound
	}
	if r.Status != StatusRevoked {
		return precondition("slot %s is not revoked", ownerID)
	}
	c := r.Clone()
	c.MarkActive(at)
	t.changed[ownerID] = c
	return nil
}

func (t *memTx) SecretInUse(_ context.Context, secret string) (bool, error) {
	return t.secretOwner(secret) != "", nil
}
