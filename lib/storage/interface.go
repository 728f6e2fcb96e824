package storage

import (
	"context"
	"fmt"

	"github.com/ValentinKolb/dShard/lib/schema"
)

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// Counter is the durable counter part of a storage backend.
type Counter interface {
	// IncrementAndGetCounter atomically advances the named counter by one and returns the new value.
	// The first call for a name returns 1. On error the counter is not advanced.
	IncrementAndGetCounter(ctx context.Context, name string) (value uint64, err error)
	// PeekCounter returns the current value of the named counter without advancing it.
	// The boolean return value is false if the counter was never incremented.
	PeekCounter(ctx context.Context, name string) (value uint64, ok bool, err error)
}

// Backend is the storage collaborator consumed by the sharding core.
// All methods must be safe for concurrent use.
type Backend interface {
	Counter

	// CreatePhysicalTable creates the table with the given field schema.
	// Creating an existing table is not an error.
	CreatePhysicalTable(ctx context.Context, table string, fields *schema.FieldSchema) (err error)
	// InsertRow inserts a row with primary key id. Values must be normalized for the schema.
	// Fails with ErrNoSuchTable if the table does not exist and ErrDuplicateKey if id is taken.
	InsertRow(ctx context.Context, table string, fields *schema.FieldSchema, id uint64, values schema.Values) (err error)
	// GetRowByPrimaryKey returns the row with primary key id.
	// The boolean return value indicates whether a row was found.
	GetRowByPrimaryKey(ctx context.Context, table string, fields *schema.FieldSchema, id uint64) (values schema.Values, loaded bool, err error)
	// Close releases all resources. Calls after Close fail with ErrUnavailable.
	Close() (err error)
}

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error is a custom error type that wraps a return code (of type RetCode)
// and an error message.
type Error struct {
	Code RetCode // The return code
	Msg  string  // The error message.
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("StorageError (code %s): %s", e.Code, e.Msg)
}

// Is reports whether target is a storage error with the same code.
// This allows errors.Is(err, storage.ErrUnavailable) for any unavailable error.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// NewError creates a new storage error with the given code and message.
func NewError(code RetCode, msg string) *Error {
	return &Error{
		Code: code,
		Msg:  msg,
	}
}

// Errorf creates a new storage error with a formatted message.
func Errorf(code RetCode, format string, args ...any) *Error {
	return NewError(code, fmt.Sprintf(format, args...))
}

// Sentinel errors to compare against with errors.Is
var (
	ErrUnavailable  = NewError(RetCUnavailable, "storage unavailable")
	ErrNoSuchTable  = NewError(RetCNoSuchTable, "no such table")
	ErrDuplicateKey = NewError(RetCDuplicateKey, "duplicate primary key")
)

// --------------------------------------------------------------------------
// Return Codes
// --------------------------------------------------------------------------

type RetCode uint64

const (
	RetCSuccess          RetCode = iota // 0: Operation executed successfully.
	RetCInternalError                   // 1: Operation failed due to an internal error.
	RetCUnavailable                     // 2: Storage is unreachable or closed (transient).
	RetCNoSuchTable                     // 3: The physical table does not exist.
	RetCDuplicateKey                    // 4: A row with the primary key already exists.
	RetCInvalidOperation                // 5: Invalid operation or arguments.
)

func (c RetCode) String() string {
	switch c {
	case RetCSuccess:
		return "Success"
	case RetCInternalError:
		return "InternalError"
	case RetCUnavailable:
		return "Unavailable"
	case RetCNoSuchTable:
		return "NoSuchTable"
	case RetCDuplicateKey:
		return "DuplicateKey"
	case RetCInvalidOperation:
		return "InvalidOperation"
	default:
		return "Unknown"
	}
}
