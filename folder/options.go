package folder

import "time"

const (
	DefaultFreshnessInterval = time.Second
	DefaultLockTimeout       = 10 * time.Second
	DefaultLockStaleAge      = 60 * time.Second
	DefaultStatusFlushDelay  = 5 * time.Second
	DefaultSummaryFlushDelay = 30 * time.Second
)

// Options tune how a folder reads and writes its mailbox file
type Options struct {
	// ContentLengthSlack is the number of bytes searched on each side of a declared Content-Length
	ContentLengthSlack int64
	// FreshnessInterval is the minimum time between two checks of the mailbox file (unless forced)
	FreshnessInterval time.Duration
	// LockTimeout is how long to wait for the lock file before giving up
	LockTimeout time.Duration
	// LockStaleAge is the age of an abandoned lock file that can be taken over
	LockStaleAge time.Duration
	// WriteRateLimit throttles compaction writes (bytes/sec). Zero means no limit.
	WriteRateLimit int
}

func DefaultOptions() Options {
	return Options{
		ContentLengthSlack: DefaultContentLengthSlack,
		FreshnessInterval:  DefaultFreshnessInterval,
		LockTimeout:        DefaultLockTimeout,
		LockStaleAge:       DefaultLockStaleAge,
	}
}

func (o Options) withDefaults() Options {
	defaults := DefaultOptions()
	if o.ContentLengthSlack <= 0 {
		o.ContentLengthSlack = defaults.ContentLengthSlack
	}
	if o.FreshnessInterval <= 0 {
		o.FreshnessInterval = defaults.FreshnessInterval
	}
	if o.LockTimeout <= 0 {
		o.LockTimeout = defaults.LockTimeout
	}
	if o.LockStaleAge <= 0 {
		o.LockStaleAge = defaults.LockStaleAge
	}
	if o.WriteRateLimit < 0 {
		o.WriteRateLimit = 0
	}
	return o
}
