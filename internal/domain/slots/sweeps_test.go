package slots

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"
)

// staleListStore serves List from a snapshot taken before the records changed.
type staleListStore struct {
	*MemoryStore
	stale []*Slot
}

func (s *staleListStore) List(_ context.Context, _ Status) ([]*Slot, error) {
	return s.stale, nil
}

func TestController_SweepSkipsChangedRecordQuietly(t *testing.T) {
	tests := []struct {
		name  string
		sweep func(c *Controller) (*SweepResult, error)
		stale func(s *Slot)
	}{
		{
			name:  "Expire after extension",
			sweep: func(c *Controller) (*SweepResult, error) { return c.ExpireDue(context.Background()) },
			stale: func(s *Slot) { s.EndTime = s.StartTime.Add(-time.Minute) },
		},
		{
			name:  "Warn after warning was sent",
			sweep: func(c *Controller) (*SweepResult, error) { return c.WarnExpiring(context.Background()) },
			stale: func(s *Slot) { s.EndTime = s.StartTime.Add(time.Hour) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
			mem := NewMemoryStore()
			current := testSlot("u1", "S1", StatusActive)
			current.StartTime = clock.Now()
			current.EndTime = clock.Now().Add(72 * time.Hour)
			if err := mem.Atomic(context.Background(), func(ctx context.Context, tx Tx) error { return tx.Insert(ctx, current) }); err != nil {
				t.Fatalf("Insert() error = %v", err)
			}
			stale := current.Clone()
			tt.stale(stale)
			c := NewController(&staleListStore{MemoryStore: mem, stale: []*Slot{stale}}, DefaultCatalog(), WithClock(clock.Now))

			var buf bytes.Buffer
			prev := slog.Default()
			slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
			t.Cleanup(func() { slog.SetDefault(prev) })

			res, err := tt.sweep(c)
			if err != nil {
				t.Fatalf("sweep error = %v", err)
			}
			if res.Processed != 0 || res.Failed != 0 || len(res.Batches) != 0 {
				t.Errorf("sweep got = %+v, want nothing processed or failed", res)
			}
			if got := buf.String(); strings.Contains(got, "level=ERROR") {
				t.Errorf("sweep logged an error for a skipped record: %s", got)
			}
			if got := buf.String(); !strings.Contains(got, "Transaction rolled back") {
				t.Errorf("sweep log got = %q, want a debug rollback entry", got)
			}
		})
	}
}
