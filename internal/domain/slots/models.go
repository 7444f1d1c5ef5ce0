package slots

import "time"

type Status string

const (
	StatusActive  Status = "active"
	StatusRevoked Status = "revoked"
)

// Limits caps the number of broadcast pings a slot may use per reset period.
type Limits struct {
	Everyone int `json:"everyone"`
	Here     int `json:"here"`
}

// Slot is a time-boxed access grant bound to one owner and one channel.
// A record lives in exactly one status at a time; the store is keyed by OwnerID.
type Slot struct {
	OwnerID        string    `json:"owner_id"`
	Status         Status    `json:"status"`
	ChannelRef     string    `json:"channel_ref"`
	Name           string    `json:"name,omitempty"`
	Plan           Plan      `json:"plan"`
	StartTime      time.Time `json:"start_time"`
	EndTime        time.Time `json:"end_time"`
	RecoverySecret string    `json:"recovery_secret"`

	EveryoneUsed int     `json:"everyone_used"`
	HereUsed     int     `json:"here_used"`
	CustomLimits *Limits `json:"custom_limits,omitempty"`

	Held   bool      `json:"held"`
	HeldAt time.Time `json:"held_at,omitempty"`
	Warned bool      `json:"warned"`

	WelcomeMessageRef string `json:"welcome_message_ref,omitempty"`
	StickyMessageRef  string `json:"sticky_message_ref,omitempty"`

	RevokedAt    time.Time `json:"revoked_at,omitempty"`
	RevokeReason string    `json:"revoke_reason,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Clone returns a deep copy so callers never share CustomLimits.
func (s *Slot) Clone() *Slot {
	if s == nil {
		return nil
	}
	c := *s
	if s.CustomLimits != nil {
		l := *s.CustomLimits
		c.CustomLimits = &l
	}
	return &c
}

func (s *Slot) Active() bool {
	return s.Status == StatusActive
}

// Usage is the quota state shown to owners.
type Usage struct {
	EveryoneUsed int    `json:"everyone_used"`
	HereUsed     int    `json:"here_used"`
	Limits       Limits `json:"limits"`
}

// Stats summarises both tables for the admin overview.
type Stats struct {
	Active  int
	Revoked int
	Held    int
	ByPlan  map[Plan]int
}
