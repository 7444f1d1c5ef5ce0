package commands

import (
	"strings"
	"testing"
	"time"

	"github.com/ellavondegurechaff/slotkeeper/internal/domain/slots"
)

func TestFormatRemaining(t *testing.T) {
	tests := []struct {
		name string
		d    time.Duration
		want string
	}{
		{name: "Expired", d: -time.Minute, want: "less than a minute"},
		{name: "Seconds", d: 30 * time.Second, want: "less than a minute"},
		{name: "Minutes", d: 5 * time.Minute, want: "5m"},
		{name: "Mixed", d: 49*time.Hour + 3*time.Minute, want: "2d 1h 3m"},
		{name: "Whole days", d: 72 * time.Hour, want: "3d"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatRemaining(tt.d); got != tt.want {
				t.Errorf("FormatRemaining() got = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSlotEmbed(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	base := slots.Slot{
		OwnerID:        "100",
		Status:         slots.StatusActive,
		ChannelRef:     "200",
		Plan:           slots.PlanElite,
		StartTime:      now.Add(-time.Hour),
		EndTime:        now.Add(time.Hour),
		RecoverySecret: "SECRETKEY",
	}
	usage := slots.Usage{HereUsed: 1, Limits: slots.Limits{Everyone: 1, Here: 2}}

	held := base
	held.Held = true
	held.HeldAt = now
	revoked := base
	revoked.Status = slots.StatusRevoked
	revoked.RevokeReason = slots.ReasonExpired
	expired := base
	expired.EndTime = now.Add(-time.Minute)

	tests := []struct {
		name       string
		slot       slots.Slot
		wantStatus string
		wantPings  bool
	}{
		{name: "Active", slot: base, wantStatus: "Active", wantPings: true},
		{name: "Held", slot: held, wantStatus: "On hold", wantPings: true},
		{name: "Revoked", slot: revoked, wantStatus: "Revoked", wantPings: false},
		{name: "Expired", slot: expired, wantStatus: "Expired", wantPings: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			embed := SlotEmbed(&tt.slot, usage, now)

			var status string
			var pings bool
			for _, f := range embed.Fields {
				if strings.Contains(f.Value, "SECRETKEY") {
					t.Fatalf("SlotEmbed() leaked the recovery key in field %q", f.Name)
				}
				switch f.Name {
				case "Status":
					status = f.Value
				case "Pings":
					pings = true
				}
			}
			if !strings.HasPrefix(status, tt.wantStatus) {
				t.Errorf("SlotEmbed() status got = %v, want prefix %v", status, tt.wantStatus)
			}
			if pings != tt.wantPings {
				t.Errorf("SlotEmbed() pings field got = %v, want %v", pings, tt.wantPings)
			}
		})
	}
}
