package seed

import "time"

// Runner configuration constants.
const (
	storedPollInterval   = 250 * time.Millisecond
	storedWaitTimeout    = 2 * time.Minute
	PercentageMultiplier = 100
)

// Worker configuration constants.
const (
	WorkerChannelMultiplier = 2
)

// File permission constants.
const (
	logFilePermission   = 0o600
	directoryPermission = 0o750
)
