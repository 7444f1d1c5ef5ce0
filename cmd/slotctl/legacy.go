package main

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"sort"
	"time"

	"github.com/ellavondegurechaff/slotkeeper/internal/domain/slots"
)

const reasonImported = "imported"

// legacySlot is one entry of the slots.json / revoked_slots.json files the
// first version of the bot kept, keyed by owner ID.
type legacySlot struct {
	RecoveryKey  string        `json:"recovery_key"`
	ChannelID    json.Number   `json:"channel_id"`
	StartTS      json.Number   `json:"start_ts"`
	EndTS        json.Number   `json:"end_ts"`
	Plan         string        `json:"plan"`
	EveryoneUsed int           `json:"everyone_used"`
	HereUsed     int           `json:"here_used"`
	Held         bool          `json:"held"`
	WelcomeMsgID json.Number   `json:"welcome_msg_id"`
	StickyMsgID  json.Number   `json:"sticky_msg_id"`
	CustomLimits *slots.Limits `json:"custom_limits"`
}

func decodeLegacy(r io.Reader) (map[string]legacySlot, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	out := make(map[string]legacySlot)
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("decode legacy slots: %w", err)
	}
	return out, nil
}

// legacyImport is the outcome of converting the two legacy tables.
type legacyImport struct {
	Snapshot *slots.Snapshot
	Skipped  []string
	Warnings []string
}

// convertLegacy turns the legacy tables into a snapshot. Records that cannot
// be represented are skipped and reported; a recovery key seen twice is kept
// by the first owner in ID order and cleared on the others.
func convertLegacy(active, revoked map[string]legacySlot, catalog *slots.Catalog, now time.Time) (*legacyImport, error) {
	res := &legacyImport{}
	var records []*slots.Slot
	secrets := make(map[string]string)

	add := func(owner string, l legacySlot, status slots.Status) {
		s, err := l.slot(owner, status, now)
		if err != nil {
			res.Skipped = append(res.Skipped, fmt.Sprintf("%s (%s): %v", owner, status, err))
			return
		}
		if catalog != nil {
			if _, ok := catalog.Lookup(s.Plan); !ok {
				res.Warnings = append(res.Warnings, fmt.Sprintf("%s: unknown plan %q", owner, s.Plan))
			}
		}
		if s.RecoverySecret != "" {
			if other, dup := secrets[s.RecoverySecret]; dup {
				res.Warnings = append(res.Warnings, fmt.Sprintf("%s: recovery key already used by %s, cleared", owner, other))
				s.RecoverySecret = ""
			} else {
				secrets[s.RecoverySecret] = owner
			}
		}
		records = append(records, s)
	}

	for _, owner := range sortedOwners(active) {
		add(owner, active[owner], slots.StatusActive)
	}
	for _, owner := range sortedOwners(revoked) {
		if _, dup := active[owner]; dup {
			res.Warnings = append(res.Warnings, fmt.Sprintf("%s: listed as active and revoked, keeping active", owner))
			continue
		}
		add(owner, revoked[owner], slots.StatusRevoked)
	}

	snap := slots.NewSnapshot(records, now)
	if err := snap.Validate(); err != nil {
		return nil, err
	}
	res.Snapshot = snap
	return res, nil
}

func (l legacySlot) slot(owner string, status slots.Status, now time.Time) (*slots.Slot, error) {
	start, err := unixTime(l.StartTS)
	if err != nil {
		return nil, fmt.Errorf("start_ts: %w", err)
	}
	end, err := unixTime(l.EndTS)
	if err != nil {
		return nil, fmt.Errorf("end_ts: %w", err)
	}
	if !end.After(start) {
		return nil, fmt.Errorf("ends at %s before it starts", end.Format(time.RFC3339))
	}
	if l.ChannelID.String() == "" {
		return nil, fmt.Errorf("no channel_id")
	}

	s := &slots.Slot{
		OwnerID:           owner,
		Status:            status,
		ChannelRef:        l.ChannelID.String(),
		Plan:              slots.ParsePlan(l.Plan),
		StartTime:         start,
		EndTime:           end,
		RecoverySecret:    l.RecoveryKey,
		EveryoneUsed:      max(l.EveryoneUsed, 0),
		HereUsed:          max(l.HereUsed, 0),
		WelcomeMessageRef: l.WelcomeMsgID.String(),
		StickyMessageRef:  l.StickyMsgID.String(),
		UpdatedAt:         now,
	}
	if l.CustomLimits != nil {
		limits := *l.CustomLimits
		s.CustomLimits = &limits
	}
	if status == slots.StatusRevoked {
		s.MarkRevoked(reasonImported, now)
	} else if l.Held {
		s.Held = true
		s.HeldAt = now
	}
	return s, nil
}

// unixTime accepts integer or fractional epoch seconds.
func unixTime(n json.Number) (time.Time, error) {
	if n.String() == "" {
		return time.Time{}, fmt.Errorf("missing")
	}
	if i, err := n.Int64(); err == nil {
		return time.Unix(i, 0).UTC(), nil
	}
	f, err := n.Float64()
	if err != nil {
		return time.Time{}, err
	}
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC(), nil
}

func sortedOwners(m map[string]legacySlot) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
