// Package id defines the shard-scoped identity assigned to every stored
// response.
//
// An ID is a single unsigned 64-bit value: the shard id occupies the bits
// above SequenceBits and a per-shard monotonic sequence the bits below.
// Within one shard, ordering IDs numerically is the same as ordering by
// allocation. Shard ids are limited to MaxShard so every ID also fits a
// signed 64-bit database column.
//
// IDs serialize to JSON and text as decimal strings, which keeps them exact
// for consumers that decode numbers as 64-bit floats.
package id

import (
	"bytes"
	"database/sql/driver"
	"errors"
	"fmt"
	"strconv"
)

const (
	// SequenceBits is the width of the per-shard sequence.
	SequenceBits = 50

	// MaxSequence is the largest sequence a shard can allocate.
	MaxSequence uint64 = 1<<SequenceBits - 1

	// MaxShard is the largest supported shard id. It keeps the packed
	// value below 2^63.
	MaxShard uint64 = 1<<(63-SequenceBits) - 1
)

var (
	// ErrSequenceExhausted is returned once a shard has allocated MaxSequence.
	ErrSequenceExhausted = errors.New("id: shard sequence exhausted")

	// ErrShardOutOfRange is returned for shard ids above MaxShard.
	ErrShardOutOfRange = errors.New("id: shard id out of range")
)

// ID is the identity of a stored response.
//
//nolint:recvcheck // Value receivers for read-only methods, pointer receivers for UnmarshalText/Scan.
type ID uint64

// Nil is the zero-value ID. No allocator ever returns it.
var Nil ID

// Pack combines a shard id and a sequence into an ID. The caller
// guarantees shard <= MaxShard and seq <= MaxSequence; out-of-range input
// is truncated to the low bits. Use PackChecked for untrusted values.
func Pack(shard, seq uint64) ID {
	return ID(shard<<SequenceBits | seq&MaxSequence)
}

// PackChecked is Pack for values that have not been validated. It returns
// ErrShardOutOfRange or ErrSequenceExhausted instead of truncating.
func PackChecked(shard, seq uint64) (ID, error) {
	if shard > MaxShard {
		return Nil, fmt.Errorf("shard %d: %w", shard, ErrShardOutOfRange)
	}
	if seq > MaxSequence {
		return Nil, fmt.Errorf("sequence %d exceeds %d: %w", seq, MaxSequence, ErrSequenceExhausted)
	}
	return Pack(shard, seq), nil
}

// Unpack splits an ID into its shard id and sequence.
func Unpack(i ID) (shard, seq uint64) {
	return i.Shard(), i.Sequence()
}

// ShardRange returns the inclusive range [lo, hi] that holds every ID of
// the given shard.
func ShardRange(shard uint64) (lo, hi ID) {
	return Pack(shard, 0), Pack(shard, MaxSequence)
}

// Parse parses the decimal representation of an ID.
func Parse(s string) (ID, error) {
	if s == "" {
		return Nil, fmt.Errorf("id: parse %q: empty string", s)
	}

	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return Nil, fmt.Errorf("id: parse %q: %w", s, err)
	}

	return ID(v), nil
}

// MustParse is like Parse but panics on error. Use for hardcoded ID values.
func MustParse(s string) ID {
	parsed, err := Parse(s)
	if err != nil {
		panic(fmt.Sprintf("id: must parse %q: %v", s, err))
	}

	return parsed
}

// ──────────────────────────────────────────────────
// ID methods
// ──────────────────────────────────────────────────

// Shard returns the shard id encoded in the ID.
func (i ID) Shard() uint64 { return uint64(i) >> SequenceBits }

// Sequence returns the per-shard sequence encoded in the ID.
func (i ID) Sequence() uint64 { return uint64(i) & MaxSequence }

// Int64 returns the ID as a signed integer for storage columns.
func (i ID) Int64() int64 { return int64(i) } //nolint:gosec // shard ids are capped at MaxShard

// IsNil reports whether this ID is the zero value.
func (i ID) IsNil() bool { return i == Nil }

// String returns the decimal representation.
func (i ID) String() string {
	return strconv.FormatUint(uint64(i), 10)
}

// MarshalText implements encoding.TextMarshaler.
func (i ID) MarshalText() ([]byte, error) {
	return []byte(i.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (i *ID) UnmarshalText(data []byte) error {
	parsed, err := Parse(string(data))
	if err != nil {
		return err
	}

	*i = parsed

	return nil
}

// UnmarshalJSON accepts both the quoted form produced by MarshalText and a
// bare JSON number.
func (i *ID) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(data, `"`)
	if bytes.Equal(data, []byte("null")) {
		*i = Nil

		return nil
	}

	return i.UnmarshalText(data)
}

// Value implements driver.Valuer for database storage.
func (i ID) Value() (driver.Value, error) {
	return i.Int64(), nil
}

// Scan implements sql.Scanner for database retrieval.
func (i *ID) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*i = Nil

		return nil
	case int64:
		*i = ID(v) //nolint:gosec // stored values are always non-negative

		return nil
	case string:
		return i.UnmarshalText([]byte(v))
	case []byte:
		return i.UnmarshalText(v)
	default:
		return fmt.Errorf("id: cannot scan %T into ID", src)
	}
}
