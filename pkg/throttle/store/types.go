package store

import (
	"context"
	"errors"
	"time"
)

var errTxReused = errors.New("store: transaction already executed")

// Remaining-ttl sentinels, shared by every backend. They mirror the Redis
// TTL command so observed values can be compared without translation.
const (
	// TTLNone indicates the key exists but carries no expiry.
	TTLNone int64 = -1

	// TTLMissing indicates the key does not exist.
	TTLMissing int64 = -2
)

// Result is the outcome of a single operation within an executed
// transaction. Exec returns one Result per operation in submission order.
type Result struct {
	// Value carries the integer payload of the operation: the counter value
	// for Get and Incr, and the remaining time-to-live in whole seconds (or
	// a TTL sentinel) for TTL. It is zero for other operations.
	Value int64

	// OK reports operation-specific success: for Get, whether the key
	// existed; for RenameNX, whether the rename was applied; for ExpireAt,
	// whether an expiry was attached. It is always true for Set and Incr.
	OK bool
}

// Tx accumulates a sequence of primitive operations and executes them as one
// atomic, ordered batch. Either every operation in the batch is applied, in
// submission order with no interleaving from other transactions, or none is.
//
// A Tx is single-use: after Exec it must be discarded.
type Tx interface {
	// Get queues a read of the integer value stored at key.
	Get(key string)

	// Set queues an unconditional write of value at key, dropping any expiry
	// the key previously carried.
	Set(key string, value int64)

	// ExpireAt queues attaching an absolute expiry instant to key.
	ExpireAt(key string, at time.Time)

	// RenameNX queues renaming src onto dst, applied only when dst does not
	// exist. When dst exists the rename is a no-op and src is left in place.
	RenameNX(src, dst string)

	// Incr queues incrementing the value at key by one, creating it at one
	// (with no expiry) when absent.
	Incr(key string)

	// TTL queues a query of the remaining time-to-live of key.
	TTL(key string)

	// Exec applies the batch and returns one Result per queued operation.
	// A non-nil error means the batch was not applied.
	Exec(ctx context.Context) ([]Result, error)
}

// Store is the counter store contract. Implementations must be safe for
// concurrent use; the throttle engine performs no locking of its own.
type Store interface {
	// Tx returns a fresh transaction builder.
	Tx() Tx

	// ExpireAt attaches an absolute expiry to key outside of any
	// transaction. Missing keys are a no-op, not an error.
	ExpireAt(ctx context.Context, key string, at time.Time) error

	// Close releases any resources held by the store.
	Close() error
}
