package id

import (
	"database/sql/driver"
	"fmt"

	"go.jetify.com/typeid/v2"
)

// PrefixDLQ is the TypeID prefix of dead letter entries.
const PrefixDLQ = "dlq"

// DLQID identifies a dead letter entry. It wraps a TypeID in the form
// "dlq_<suffix>", which is K-sortable, URL-safe and globally unique, so
// entries from every node can share one table.
//
//nolint:recvcheck // Value receivers for read-only methods, pointer receivers for UnmarshalText/Scan.
type DLQID struct {
	inner typeid.TypeID
	valid bool
}

// NilDLQ is the zero-value DLQID.
var NilDLQ DLQID

// NewDLQID generates a new unique dead letter id.
func NewDLQID() DLQID {
	tid, err := typeid.Generate(PrefixDLQ)
	if err != nil {
		panic(fmt.Sprintf("id: generate %q id: %v", PrefixDLQ, err))
	}
	return DLQID{inner: tid, valid: true}
}

// ParseDLQID parses s and checks that it carries the "dlq" prefix.
func ParseDLQID(s string) (DLQID, error) {
	if s == "" {
		return NilDLQ, fmt.Errorf("id: parse %q: empty string", s)
	}
	tid, err := typeid.Parse(s)
	if err != nil {
		return NilDLQ, fmt.Errorf("id: parse %q: %w", s, err)
	}
	if p := tid.Prefix(); p != PrefixDLQ {
		return NilDLQ, fmt.Errorf("id: expected prefix %q, got %q", PrefixDLQ, p)
	}
	return DLQID{inner: tid, valid: true}, nil
}

// MustParseDLQID is like ParseDLQID but panics on error.
func MustParseDLQID(s string) DLQID {
	d, err := ParseDLQID(s)
	if err != nil {
		panic(err)
	}
	return d
}

// String returns "dlq_<suffix>", or "" for NilDLQ.
func (d DLQID) String() string {
	if !d.valid {
		return ""
	}
	return d.inner.String()
}

// IsNil reports whether d is the zero value.
func (d DLQID) IsNil() bool { return !d.valid }

// MarshalText implements encoding.TextMarshaler.
func (d DLQID) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *DLQID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*d = NilDLQ
		return nil
	}
	parsed, err := ParseDLQID(string(data))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Value implements driver.Valuer. NilDLQ stores NULL.
func (d DLQID) Value() (driver.Value, error) {
	if !d.valid {
		return nil, nil //nolint:nilnil // nil is the canonical NULL for driver.Valuer
	}
	return d.inner.String(), nil
}

// Scan implements sql.Scanner.
func (d *DLQID) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*d = NilDLQ
		return nil
	case string:
		return d.UnmarshalText([]byte(v))
	case []byte:
		return d.UnmarshalText(v)
	default:
		return fmt.Errorf("id: cannot scan %T into DLQID", src)
	}
}
