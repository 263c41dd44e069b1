package constants

import "time"

// Delivery queue behavior
const (
	// PendingMessageExpiry is how long a queued message may wait for its
	// required members before it is dropped.
	PendingMessageExpiry = 3 * 24 * time.Hour

	// DelayedNoticeThreshold is the minimum remaining wait before a
	// scheduled message triggers a delayed-send notice to the room.
	DelayedNoticeThreshold = 15 * time.Second

	// RoomCandidateLimit bounds the room directory lookup. Only the
	// cardinalities 0, 1 and "more than one" matter to the policy.
	RoomCandidateLimit = 2
)

// Default timing configuration values
const (
	DefaultDrainIntervalSec      = 30
	DefaultHTTPTimeoutSec        = 30
	DefaultRetryBackoffMs        = 1000
	DefaultMaxBackoffMs          = 60000
	DefaultDatabaseRetryAttempts = 3
	DefaultGracefulShutdownSec   = 30
	DefaultServerPort            = 8084
	DefaultServerReadTimeoutSec  = 15
	DefaultServerWriteTimeoutSec = 15
	DefaultServerIdleTimeoutSec  = 60
)

// Phone number grammar bounds
const (
	MinPhoneNumberLength = 7
	MaxPhoneNumberLength = 20
)

// Encryption parameters for at-rest message bodies
const (
	EncryptionSalt       = "smsbridge-message-salt-v1"
	EncryptionKeySize    = 32
	EncryptionNonceSize  = 12
	EncryptionIterations = 100000
)
