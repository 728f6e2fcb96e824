package entity

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ValentinKolb/dShard/lib/shard"
)

// Failure kinds, match them with errors.Is
var (
	ErrInvalidValues        = errors.New("invalid values")
	ErrAllocationFailed     = errors.New("id allocation failed")
	ErrPersistFailed        = errors.New("persist failed")
	ErrLookupFailed         = errors.New("lookup failed")
	ErrShardIndexOutOfRange = shard.ErrShardIndexOutOfRange
)

// Error describes a failed lifecycle operation
type Error struct {
	Op     string // "create" or "get"
	Entity string // entity type name
	ID     uint64 // record id, 0 if no id was allocated
	Kind   error  // one of the failure kinds
	Err    error  // underlying cause
}

func (e *Error) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %s", e.Op, e.Entity)
	if e.ID != 0 {
		fmt.Fprintf(&sb, " (id %d)", e.ID)
	}
	fmt.Fprintf(&sb, ": %v", e.Kind)
	if e.Err != nil {
		fmt.Fprintf(&sb, ": %v", e.Err)
	}
	return sb.String()
}

// Unwrap returns the kind and the cause.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// kindName is used as metric label
func kindName(kind error) string {
	switch kind {
	case ErrInvalidValues:
		return "invalid_values"
	case ErrAllocationFailed:
		return "allocation_failed"
	case ErrPersistFailed:
		return "persist_failed"
	case ErrLookupFailed:
		return "lookup_failed"
	case ErrShardIndexOutOfRange:
		return "shard_index_out_of_range"
	default:
		return "unknown"
	}
}
