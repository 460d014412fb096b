package formdispatch

import "time"

// Config holds configuration for the Dispatcher.
type Config struct {
	// ShardID is the shard this process allocates identities for. A single
	// writer per shard is assumed.
	ShardID uint64

	// Workers is the number of goroutines that dispatch freshly stored
	// responses.
	Workers int

	// BufferSize is the capacity of the hand-off channel between ingestion
	// and the dispatch workers. Requests beyond it wait in an overflow
	// queue.
	BufferSize int

	// DispatchAttempts is the maximum number of enqueue attempts per job,
	// and of mark-processed attempts per response.
	DispatchAttempts int

	// DispatchBaseDelay is the wait before the second attempt. Each later
	// attempt doubles it.
	DispatchBaseDelay time.Duration

	// RecoveryBatchSize is the page size of the boot-time recovery scan.
	RecoveryBatchSize int

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		ShardID:           0,
		Workers:           8,
		BufferSize:        1024,
		DispatchAttempts:  5,
		DispatchBaseDelay: 1 * time.Second,
		RecoveryBatchSize: 10,
		ShutdownTimeout:   10 * time.Second,
	}
}
