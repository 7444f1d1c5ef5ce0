package models

import (
	"reflect"
	"testing"
	"time"

	"github.com/ellavondegurechaff/slotkeeper/internal/domain/slots"
)

func TestSlotConversion(t *testing.T) {
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		in   *slots.Slot
	}{
		{
			name: "active with custom limits",
			in: &slots.Slot{
				OwnerID:        "100",
				Status:         slots.StatusActive,
				ChannelRef:     "200",
				Name:           "shop",
				Plan:           slots.PlanElite,
				StartTime:      start,
				EndTime:        start.Add(72 * time.Hour),
				RecoverySecret: "ABCDEFGHIJKLMNOP",
				EveryoneUsed:   1,
				HereUsed:       2,
				CustomLimits:   &slots.Limits{Everyone: 3, Here: 4},
				Held:           true,
				HeldAt:         start.Add(time.Hour),
				UpdatedAt:      start.Add(time.Hour),
			},
		},
		{
			name: "revoked",
			in: &slots.Slot{
				OwnerID:      "101",
				Status:       slots.StatusRevoked,
				ChannelRef:   "201",
				Plan:         slots.PlanTrial,
				StartTime:    start,
				EndTime:      start.Add(24 * time.Hour),
				RevokedAt:    start.Add(2 * time.Hour),
				RevokeReason: "expired",
				UpdatedAt:    start.Add(2 * time.Hour),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SlotFromDomain(tt.in).ToDomain()
			if !reflect.DeepEqual(got, tt.in) {
				t.Errorf("ToDomain() got = %+v, want %+v", got, tt.in)
			}
		})
	}
}

func TestSlotFromDomain_LimitsNotShared(t *testing.T) {
	in := &slots.Slot{OwnerID: "1", CustomLimits: &slots.Limits{Everyone: 1, Here: 1}}
	m := SlotFromDomain(in)
	m.CustomLimits.Here = 9

	if in.CustomLimits.Here != 1 {
		t.Errorf("SlotFromDomain() shares custom limits, got here = %d", in.CustomLimits.Here)
	}
	if m.Status != string(slots.StatusActive) {
		t.Errorf("SlotFromDomain() status got = %q, want active", m.Status)
	}
}
