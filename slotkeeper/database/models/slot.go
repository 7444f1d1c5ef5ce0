package models

import (
	"time"

	"github.com/ellavondegurechaff/slotkeeper/internal/domain/slots"
	"github.com/uptrace/bun"
)

// Slot is the single slot table. Status separates active and revoked records,
// so an owner key can only ever be in one of them.
type Slot struct {
	bun.BaseModel `bun:"table:slots,alias:s"`

	OwnerID        string    `bun:"owner_id,pk"`
	Status         string    `bun:"status,notnull"`
	ChannelRef     string    `bun:"channel_ref,notnull"`
	Name           string    `bun:"name,notnull,default:''"`
	Plan           string    `bun:"plan,notnull"`
	StartTime      time.Time `bun:"start_time,notnull"`
	EndTime        time.Time `bun:"end_time,notnull"`
	RecoverySecret string    `bun:"recovery_secret,nullzero,unique"`

	EveryoneUsed int         `bun:"everyone_used,notnull,default:0"`
	HereUsed     int         `bun:"here_used,notnull,default:0"`
	CustomLimits *SlotLimits `bun:"custom_limits,type:jsonb"`

	Held   bool      `bun:"held,notnull,default:false"`
	HeldAt time.Time `bun:"held_at,nullzero"`
	Warned bool      `bun:"warned,notnull,default:false"`

	WelcomeMessageRef string `bun:"welcome_message_ref,nullzero"`
	StickyMessageRef  string `bun:"sticky_message_ref,nullzero"`

	RevokedAt    time.Time `bun:"revoked_at,nullzero"`
	RevokeReason string    `bun:"revoke_reason,nullzero"`
	UpdatedAt    time.Time `bun:"updated_at,notnull"`
}

type SlotLimits struct {
	Everyone int `json:"everyone"`
	Here     int `json:"here"`
}

// SlotFromDomain converts a core record for persistence.
func SlotFromDomain(s *slots.Slot) *Slot {
	m := &Slot{
		OwnerID:           s.OwnerID,
		Status:            string(s.Status),
		ChannelRef:        s.ChannelRef,
		Name:              s.Name,
		Plan:              string(s.Plan),
		StartTime:         s.StartTime.UTC(),
		EndTime:           s.EndTime.UTC(),
		RecoverySecret:    s.RecoverySecret,
		EveryoneUsed:      s.EveryoneUsed,
		HereUsed:          s.HereUsed,
		Held:              s.Held,
		HeldAt:            utc(s.HeldAt),
		Warned:            s.Warned,
		WelcomeMessageRef: s.WelcomeMessageRef,
		StickyMessageRef:  s.StickyMessageRef,
		RevokedAt:         utc(s.RevokedAt),
		RevokeReason:      s.RevokeReason,
		UpdatedAt:         utc(s.UpdatedAt),
	}
	if m.Status == "" {
		m.Status = string(slots.StatusActive)
	}
	if m.UpdatedAt.IsZero() {
		m.UpdatedAt = time.Now().UTC()
	}
	if s.CustomLimits != nil {
		m.CustomLimits = &SlotLimits{Everyone: s.CustomLimits.Everyone, Here: s.CustomLimits.Here}
	}
	return m
}

// ToDomain converts the row back to a core record.
func (m *Slot) ToDomain() *slots.Slot {
	s := &slots.Slot{
		OwnerID:           m.OwnerID,
		Status:            slots.Status(m.Status),
		ChannelRef:        m.ChannelRef,
		Name:              m.Name,
		Plan:              slots.Plan(m.Plan),
		StartTime:         m.StartTime.UTC(),
		EndTime:           m.EndTime.UTC(),
		RecoverySecret:    m.RecoverySecret,
		EveryoneUsed:      m.EveryoneUsed,
		HereUsed:          m.HereUsed,
		Held:              m.Held,
		HeldAt:            utc(m.HeldAt),
		Warned:            m.Warned,
		WelcomeMessageRef: m.WelcomeMessageRef,
		StickyMessageRef:  m.StickyMessageRef,
		RevokedAt:         utc(m.RevokedAt),
		RevokeReason:      m.RevokeReason,
		UpdatedAt:         utc(m.UpdatedAt),
	}
	if m.CustomLimits != nil {
		s.CustomLimits = &slots.Limits{Everyone: m.CustomLimits.Everyone, Here: m.CustomLimits.Here}
	}
	return s
}

func utc(t time.Time) time.Time {
	if t.IsZero() {
		return time.Time{}
	}
	return t.UTC()
}
