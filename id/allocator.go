package id

import (
	"context"
	"fmt"
	"sync"
)

// HighWater reports the greatest persisted ID in [lo, hi]. ok is false when
// the range holds nothing.
type HighWater interface {
	MaxID(ctx context.Context, lo, hi ID) (max ID, ok bool, err error)
}

// Allocator hands out strictly increasing IDs for one shard. It is safe for
// concurrent use within a single process; a single writer per shard is
// assumed across processes.
type Allocator struct {
	mu        sync.Mutex
	shard     uint64
	last      uint64
	exhausted bool
}

// NewAllocator creates an allocator for shard whose counter starts at zero.
// Call Recover before the first Next in a process that may find
// previously persisted IDs.
func NewAllocator(shard uint64) (*Allocator, error) {
	if shard > MaxShard {
		return nil, fmt.Errorf("%w: %d > %d", ErrShardOutOfRange, shard, MaxShard)
	}
	return &Allocator{shard: shard}, nil
}

// Shard returns the allocator's shard id.
func (a *Allocator) Shard() uint64 { return a.shard }

// Recover seeds the counter from the greatest persisted sequence in the
// shard's range, or zero when the range is empty. It returns the seed.
func (a *Allocator) Recover(ctx context.Context, src HighWater) (uint64, error) {
	lo, hi := ShardRange(a.shard)
	maxID, ok, err := src.MaxID(ctx, lo, hi)
	if err != nil {
		return 0, fmt.Errorf("id: recover shard %d: %w", a.shard, err)
	}

	var seed uint64
	if ok {
		seed = maxID.Sequence()
	}
	a.Seed(seed)
	return seed, nil
}

// Seed sets the counter so the next allocation is seed+1.
func (a *Allocator) Seed(seed uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.last = seed
	a.exhausted = seed >= MaxSequence
}

// Next allocates the next ID. Once the shard's sequence space is used up
// every call returns ErrSequenceExhausted; the counter never wraps.
func (a *Allocator) Next() (ID, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.exhausted || a.last >= MaxSequence {
		a.exhausted = true
		return Nil, fmt.Errorf("%w: shard %d", ErrSequenceExhausted, a.shard)
	}

	a.last++
	return Pack(a.shard, a.last), nil
}

// Last returns the most recently allocated (or seeded) sequence.
func (a *Allocator) Last() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.last
}
