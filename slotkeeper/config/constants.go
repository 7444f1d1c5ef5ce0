package config

import "time"

// UI and Display Constants
const (
	// Pagination
	SlotsPerPage = 8

	// Colors
	ErrorColor   = 0xFF0000
	SuccessColor = 0x00FF00
	InfoColor    = 0x0099FF
	WarningColor = 0xFFAA00
	RevokedColor = 0x8B0000
	HeldColor    = 0x95A5A6

	EmbedDefaultColor = 0x2B2D31

	// Plan colors
	EliteColor    = 0xFFD700
	StandardColor = 0x3498DB
	TrialColor    = 0x1ABC9C
)

// Database and Performance Constants
const (
	// Timeouts
	DefaultQueryTimeout     = 30 * time.Second
	CommandExecutionTimeout = 10 * time.Second
	SlowCommandThreshold    = 2 * time.Second
	NetworkDialTimeout      = 5 * time.Second
	NetworkKeepAlive        = 30 * time.Second
	BackupUploadTimeout     = 2 * time.Minute

	// Store retries on serialization failures and deadlocks
	MaxRetries   = 3
	RetryBackoff = 50 * time.Millisecond

	// Connection retries when the database is not up yet
	ConnectAttempts = 5
	ConnectBackoff  = 2 * time.Second
)

// Effect execution
const (
	// Owners whose effect batches run at the same time
	MaxConcurrentBatches = 5
	// REST calls per second across all batches
	EffectRateLimit = 20
	EffectBurst     = 5
	EffectTimeout   = 15 * time.Second
	// Upper bound for applying the batches of a whole sweep
	SweepApplyTimeout = 10 * time.Minute

	// Discord bulk delete only accepts 2..100 messages younger than two weeks
	PurgePageSize    = 100
	BulkDeleteMaxAge = 14 * 24 * time.Hour

	// Recent messages searched for the previous reset announcement after a restart
	AnnouncementScanLimit  = 50
	ResetAnnouncementTitle = "Pings reset"
)

// Schedule defaults
const (
	DefaultExpiryInterval  = time.Minute
	DefaultWarningInterval = time.Hour
	DefaultWarningWindow   = 24 * time.Hour
	DefaultResetTime       = "00:00"
	DefaultResetTimezone   = "Europe/Amsterdam"
	DefaultPingNoticeTTL   = 10 * time.Second
	DefaultBackupInterval  = 6 * time.Hour
)

// Message observation
const (
	// Recently seen message IDs kept to ignore gateway redelivery
	SeenMessageCacheSize = 4096
)

// Data limits
const (
	MaxSlotNameLength = 100
	MaxDurationDays   = 3650
	RecoveryKeyLength = 16
)

// Component IDs
const (
	RecoveryButtonID = "/recovery/open"
	RecoveryModalID  = "/recovery/submit"
	RecoveryKeyField = "recovery_key"
	CopyKeyButtonID  = "/slot/key"
)
