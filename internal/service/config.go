package service

import "time"

// Config carries the pipeline tuning knobs. Defaults match the documented
// behavior; the config package overrides them from the environment.
type Config struct {
	BatchWindow   time.Duration // merge window for batched mode
	DigestWindow  time.Duration // merge window for digest mode
	MaxBatchSize  int
	MaxDigestSize int
	MinBatchSize  int // sweeper only flushes batches at or above this
	StaleBatchAge time.Duration // flush regardless of count past this age

	MaxEmailRetries int
	RetryLookback   time.Duration

	ScheduledSweepLimit int
	BatchSweepLimit     int
	RetrySweepLimit     int

	DedupeWindow          time.Duration
	NotificationRetention time.Duration
	BatchRetention        time.Duration
}

func DefaultConfig() Config {
	return Config{
		BatchWindow:           5 * time.Minute,
		DigestWindow:          time.Hour,
		MaxBatchSize:          10,
		MaxDigestSize:         20,
		MinBatchSize:          2,
		StaleBatchAge:         24 * time.Hour,
		MaxEmailRetries:       3,
		RetryLookback:         24 * time.Hour,
		ScheduledSweepLimit:   100,
		BatchSweepLimit:       50,
		RetrySweepLimit:       50,
		DedupeWindow:          10 * time.Minute,
		NotificationRetention: 90 * 24 * time.Hour,
		BatchRetention:        30 * 24 * time.Hour,
	}
}

// windowFor returns the merge window and size cap for a batching mode.
func (c Config) windowFor(digest bool) (time.Duration, int) {
	if digest {
		return c.DigestWindow, c.MaxDigestSize
	}
	return c.BatchWindow, c.MaxBatchSize
}
