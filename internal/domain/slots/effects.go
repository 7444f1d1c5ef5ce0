package slots

import "time"

// EffectKind names an external side effect the platform adapter must perform.
type EffectKind string

const (
	EffectGrant          EffectKind = "grant"
	EffectClearOverwrite EffectKind = "clear_overwrite"
	EffectRelocate       EffectKind = "relocate"
	EffectRename         EffectKind = "rename"
	EffectSendMessage    EffectKind = "send_message"
	EffectDeleteMessage  EffectKind = "delete_message"
	EffectPurge          EffectKind = "purge"
	EffectDirectMessage  EffectKind = "direct_message"
	EffectAddRole        EffectKind = "add_role"
	EffectRemoveRole     EffectKind = "remove_role"
	EffectAdminLog       EffectKind = "admin_log"
	EffectAnnounce       EffectKind = "announce"
)

// Capability is a symbolic channel permission.
type Capability uint16

const (
	CapView Capability = 1 << iota
	CapSend
	CapMentionEveryone
	CapEmbedLinks
	CapAttachFiles
	CapExternalEmojis
)

// OwnerCapabilities is what a slot owner gets on their own channel.
const OwnerCapabilities = CapView | CapSend | CapMentionEveryone | CapEmbedLinks | CapAttachFiles | CapExternalEmojis

func (c Capability) Has(other Capability) bool {
	return c&other == other
}

// Role is a symbolic guild role; the adapter maps it to a configured ID and skips
// roles that are not configured.
type Role string

const (
	RoleAccess   Role = "access"
	RoleOnHold   Role = "on_hold"
	RoleStaff    Role = "staff"
	RoleAdmin    Role = "admin"
	RoleMember   Role = "member"
	RoleHidden   Role = "hidden"
	RoleElite    Role = "elite"
	RoleStandard Role = "standard"
)

// Category is a symbolic channel category (plan categories and the revoked pen).
type Category string

const CategoryRevoked Category = "revoked"

type SubjectKind string

const (
	SubjectUser     SubjectKind = "user"
	SubjectRole     SubjectKind = "role"
	SubjectEveryone SubjectKind = "everyone"
	SubjectSelf     SubjectKind = "self"
)

// Subject is the holder of a permission overwrite.
type Subject struct {
	Kind   SubjectKind
	UserID string
	Role   Role
}

func User(id string) Subject     { return Subject{Kind: SubjectUser, UserID: id} }
func RoleSubject(r Role) Subject { return Subject{Kind: SubjectRole, Role: r} }

var (
	Everyone = Subject{Kind: SubjectEveryone}
	Self     = Subject{Kind: SubjectSelf}
)

// Track marks a sent message whose ID the adapter must report back with
// Controller.RecordMessageRef, together with the MessageRef of the send.
type Track string

const (
	TrackNone    Track = ""
	TrackWelcome Track = "welcome"
	TrackSticky  Track = "sticky"
)

type Template string

const (
	TemplateCreated          Template = "created"
	TemplateWelcome          Template = "welcome"
	TemplateRecoveryKey      Template = "recovery_key"
	TemplateUsage            Template = "usage"
	TemplatePingUsed         Template = "ping_used"
	TemplateRevoked          Template = "revoked"
	TemplateExpired          Template = "expired"
	TemplateAbuseRevoked     Template = "abuse_revoked"
	TemplateRestored         Template = "restored"
	TemplateHeld             Template = "held"
	TemplateUnheld           Template = "unheld"
	TemplateTransferred      Template = "transferred"
	TemplateTransferReceived Template = "transfer_received"
	TemplateRecovered        Template = "recovered"
	TemplateRecoveredFrom    Template = "recovered_from"
	TemplateMoved            Template = "moved"
	TemplateRenamed          Template = "renamed"
	TemplateExtended         Template = "extended"
	TemplateExpiryWarning    Template = "expiry_warning"
	TemplateQuotaReset       Template = "quota_reset"
	TemplateCredits          Template = "credits"
	TemplateCleaned          Template = "cleaned"
	TemplateNuked            Template = "nuked"
	TemplateAutoRecovered    Template = "auto_recovered"
	TemplateReconciled       Template = "reconciled"
	TemplateRecordDropped    Template = "record_dropped"
)

// Notice is the data behind a templated message; rendering is the adapter's job.
type Notice struct {
	Template Template
	OwnerID  string
	ActorID  string
	OtherID  string
	// ChannelRef is set on notices about a channel other than the owner's
	// current slot.
	ChannelRef string
	Reason     string
	Plan       Plan
	Name       string
	Secret     string
	StartTime  time.Time
	EndTime    time.Time
	Usage      Usage
	Count      int
	Manual     bool
	Mention    Role
}

// Effect describes one required external side effect. A transition returns an
// ordered list; adapters must execute them in order.
type Effect struct {
	Kind       EffectKind
	OwnerID    string
	ChannelRef string
	Subject    Subject
	Allow      Capability
	Deny       Capability
	Category   Category
	Role       Role
	UserID     string
	// MessageRef is the target of a delete, the message kept by a purge, or
	// the tracked message a send replaces.
	MessageRef string
	Name       string
	Notice     *Notice
	Track      Track
	// TTL asks the adapter to delete the sent message after the given duration.
	TTL time.Duration
}

// Batch groups the effects of one owner's transition.
type Batch struct {
	OwnerID string
	Effects []Effect
}

func grant(owner, channel string, subject Subject, allow, deny Capability) Effect {
	return Effect{Kind: EffectGrant, OwnerID: owner, ChannelRef: channel, Subject: subject, Allow: allow, Deny: deny}
}

func clearOverwrite(owner, channel string, subject Subject) Effect {
	return Effect{Kind: EffectClearOverwrite, OwnerID: owner, ChannelRef: channel, Subject: subject}
}

func relocate(owner, channel string, category Category) Effect {
	return Effect{Kind: EffectRelocate, OwnerID: owner, ChannelRef: channel, Category: category}
}

func sendMessage(owner, channel string, n Notice, track Track) Effect {
	return Effect{Kind: EffectSendMessage, OwnerID: owner, ChannelRef: channel, Notice: &n, Track: track}
}

func deleteMessage(owner, channel, ref string) Effect {
	return Effect{Kind: EffectDeleteMessage, OwnerID: owner, ChannelRef: channel, MessageRef: ref}
}

func purge(owner, channel, keep string) Effect {
	return Effect{Kind: EffectPurge, OwnerID: owner, ChannelRef: channel, MessageRef: keep}
}

func directMessage(owner, user string, n Notice) Effect {
	return Effect{Kind: EffectDirectMessage, OwnerID: owner, UserID: user, Notice: &n}
}

func addRole(owner, user string, role Role) Effect {
	return Effect{Kind: EffectAddRole, OwnerID: owner, UserID: user, Role: role}
}

func removeRole(owner, user string, role Role) Effect {
	return Effect{Kind: EffectRemoveRole, OwnerID: owner, UserID: user, Role: role}
}

func adminLog(owner string, n Notice) Effect {
	return Effect{Kind: EffectAdminLog, OwnerID: owner, Notice: &n}
}
