package constants

import (
	"time"
)

// Transfer copy loop
const (
	// ChunkSize - bytes moved per iteration of the copy loop (8 KiB).
	// The cancel signal is polled once per chunk, so this is also the
	// cancellation granularity.
	ChunkSize = 8 * 1024

	// MaxChunkSize - upper bound accepted from configuration (4 MiB)
	MaxChunkSize = 4 * 1024 * 1024

	// ProgressInterval - minimum time between two progress events for one transfer
	ProgressInterval = 100 * time.Millisecond

	// ProgressStepBytes - a progress event is also emitted whenever the running
	// byte count crosses a multiple of this value (1 MiB)
	ProgressStepBytes = 1024 * 1024

	// SpeedSmoothingAlpha - EMA weight for the newest speed sample
	SpeedSmoothingAlpha = 0.25

	// DefaultMaxConcurrentTransfers - worker slots shared by all transfers
	DefaultMaxConcurrentTransfers = 4

	// MaxConcurrentTransfers - upper bound accepted from configuration
	MaxConcurrentTransfers = 32

	// MaxFinishedTransfers - finished transfers kept in the listing; older
	// ones are pruned as new transfers are tracked
	MaxFinishedTransfers = 500

	// DiskSpaceSafetyMargin - extra headroom required by the free-space precheck (5%)
	DiskSpaceSafetyMargin = 0.05
)

// Remote directory and file modes
const (
	// DirMode - permission bits applied to directories created remotely
	DirMode = 0o755
)

// SSH session defaults
const (
	// DefaultSSHPort - used when a caller leaves the port at zero
	DefaultSSHPort = 22

	// DefaultDialTimeout - TCP connect plus SSH handshake budget
	DefaultDialTimeout = 15 * time.Second

	// DefaultMaxPacket - SFTP max packet size (32 KiB is the RFC minimum every server supports)
	DefaultMaxPacket = 32 * 1024
)

// Event bus sizing
const (
	// EventBusDefaultBuffer - per-subscriber channel buffer
	EventBusDefaultBuffer = 1000

	// EventBusMaxBuffer - cap applied to requested buffer sizes
	EventBusMaxBuffer = 10000

	// EventBusTerminalWait - how long Publish blocks on a full subscriber
	// for terminal transfer events before counting them as dropped
	EventBusTerminalWait = 2 * time.Second
)

// Bridge (local command socket)
const (
	// BridgeMaxLineBytes - largest accepted request line. Upload payloads are
	// base64 inside a single line, so this bounds upload_file_data size.
	BridgeMaxLineBytes = 256 * 1024 * 1024

	// BridgeWriteTimeout - deadline for writing one response or event to a client
	BridgeWriteTimeout = 10 * time.Second

	// BridgeEventInterval - forwarded non-terminal progress events for one
	// transfer are coalesced to at most one per interval per client
	BridgeEventInterval = 50 * time.Millisecond

	// BridgeDialTimeout - client connect budget
	BridgeDialTimeout = 5 * time.Second
)

// Saved connection profiles
const (
	// RecentProfileWindow - profiles used within this window count as recent
	RecentProfileWindow = 7 * 24 * time.Hour
)
