package slots_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ellavondegurechaff/slotkeeper/internal/domain/slots"
	"github.com/ellavondegurechaff/slotkeeper/internal/domain/slots/mock"
	"go.uber.org/mock/gomock"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func storeMocks(t *testing.T) (*mock.MockStore, *mock.MockTx) {
	ctrl := gomock.NewController(t)
	store := mock.NewMockStore(ctrl)
	tx := mock.NewMockTx(ctrl)
	store.EXPECT().
		Atomic(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, fn func(context.Context, slots.Tx) error) error {
			return fn(ctx, tx)
		}).
		AnyTimes()
	return store, tx
}

func newController(store slots.Store) *slots.Controller {
	return slots.NewController(store, slots.DefaultCatalog(),
		slots.WithClock(func() time.Time { return fixedNow }),
		slots.WithSecretGenerator(func() (string, error) { return "FIXEDKEY", nil }),
	)
}

func Test_Controller_CreateStoreFailure(t *testing.T) {
	tests := []struct {
		name   string
		expect func(tx *mock.MockTx)
	}{
		{
			name: "Lookup fails",
			expect: func(tx *mock.MockTx) {
				tx.EXPECT().Get(gomock.Any(), "u1").Return(nil, errors.New("connection reset"))
			},
		},
		{
			name: "Insert fails",
			expect: func(tx *mock.MockTx) {
				tx.EXPECT().Get(gomock.Any(), "u1").Return(nil, slots.ErrNotFound)
				tx.EXPECT().SecretInUse(gomock.Any(), "FIXEDKEY").Return(false, nil)
				tx.EXPECT().Insert(gomock.Any(), gomock.Any()).Return(errors.New("disk full"))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, tx := storeMocks(t)
			tt.expect(tx)

			got, err := newController(store).Create(context.Background(), slots.CreateRequest{
				OwnerID:    "u1",
				ChannelRef: "c1",
				Plan:       slots.PlanStandard,
				Duration:   time.Hour,
			})
			if !errors.Is(err, slots.ErrStoreIO) {
				t.Errorf("Create() error = %v, want %v", err, slots.ErrStoreIO)
			}
			var storeErr *slots.StoreError
			if !errors.As(err, &storeErr) {
				t.Errorf("Create() error %T is not a StoreError", err)
			}
			if got != nil {
				t.Errorf("Create() got = %+v, want nil", got)
			}
		})
	}
}

func Test_Controller_CommitFailure(t *testing.T) {
	store := mock.NewMockStore(gomock.NewController(t))
	store.EXPECT().
		Atomic(gomock.Any(), gomock.Any()).
		Return(&slots.StoreError{Op: "commit", Err: errors.New("read-only file system")})

	_, err := newController(store).Hold(context.Background(), "u1", "scam report", "admin")
	if !errors.Is(err, slots.ErrStoreIO) {
		t.Errorf("Hold() error = %v, want %v", err, slots.ErrStoreIO)
	}
}

func Test_Controller_SweepContinuesAfterFailure(t *testing.T) {
	store, tx := storeMocks(t)
	expired := func(owner string) *slots.Slot {
		return &slots.Slot{
			OwnerID:    owner,
			Status:     slots.StatusActive,
			ChannelRef: "chan-" + owner,
			Plan:       slots.PlanStandard,
			StartTime:  fixedNow.Add(-48 * time.Hour),
			EndTime:    fixedNow.Add(-time.Hour),
		}
	}

	store.EXPECT().List(gomock.Any(), slots.StatusActive).Return([]*slots.Slot{expired("a"), expired("b")}, nil)
	tx.EXPECT().Get(gomock.Any(), "a").Return(nil, errors.New("timeout"))
	tx.EXPECT().Get(gomock.Any(), "b").Return(expired("b"), nil)
	tx.EXPECT().MoveToRevoked(gomock.Any(), "b", slots.ReasonExpired, fixedNow).Return(nil)

	got, err := newController(store).ExpireDue(context.Background())
	if err != nil {
		t.Fatalf("ExpireDue() error = %v", err)
	}
	if got.Failed != 1 || got.Processed != 1 {
		t.Errorf("ExpireDue() failed = %d processed = %d, want 1 and 1", got.Failed, got.Processed)
	}
	if len(got.Batches) != 1 || got.Batches[0].OwnerID != "b" {
		t.Errorf("ExpireDue() batches = %+v", got.Batches)
	}
}

func Test_Controller_ListFailure(t *testing.T) {
	store := mock.NewMockStore(gomock.NewController(t))
	store.EXPECT().List(gomock.Any(), slots.StatusActive).Return(nil, errors.New("pool closed"))

	if _, err := newController(store).WarnExpiring(context.Background()); !errors.Is(err, slots.ErrStoreIO) {
		t.Errorf("WarnExpiring() error = %v, want %v", err, slots.ErrStoreIO)
	}
}
