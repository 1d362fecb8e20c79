// Package store defines the backing-store boundary used by regioncache.
//
// A Store exposes the small slice of a remote key/value server the cache
// needs: hash-shaped primary mappings, sorted-set expiration indexes,
// counters, and three execution modes. Simple operations are one logical
// round-trip each; Pipelined batches apply best-effort with no atomicity
// guarantee; TxPipelined batches apply all-or-nothing; Watch runs an
// optimistic watch-then-commit cycle for compare-and-set updates.
//
// Implementations must be safe for concurrent use and must release any
// pooled connection on every exit path, including error and timeout paths.
package store

import (
	"context"
	"errors"
)

var (
	// ErrUnavailable wraps transport or server failures. Callers match it
	// with errors.Is to distinguish "store down" from a plain miss.
	ErrUnavailable = errors.New("store: unavailable")

	// ErrTxConflict is returned by Watch when a concurrent writer changed
	// the watched key between the read and the conditional commit.
	ErrTxConflict = errors.New("store: transaction aborted by concurrent write")
)

// Batch queues operations for a Pipelined or TxPipelined execution.
// Methods never fail; errors surface from the executing call.
type Batch interface {
	HSet(name, field string, value []byte)
	HDel(name string, fields ...string)
	ZAdd(name, member string, score float64)
	ZRem(name string, members ...string)
	ZRemRangeByScore(name string, max float64)
	Set(key string, value []byte)
	Del(keys ...string)
}

// Tx is the view inside a Watch callback. Reads go through the watched
// connection; Commit applies the queued batch only if no watched key
// changed since Watch began, otherwise it fails with ErrTxConflict.
type Tx interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Commit(ctx context.Context, fn func(Batch)) error
}

type Store interface {
	Ping(ctx context.Context) error

	// Hash (primary mapping) operations. Misses are (zero, false, nil),
	// never an error.
	HExists(ctx context.Context, name, field string) (bool, error)
	HGet(ctx context.Context, name, field string) ([]byte, bool, error)
	HMGet(ctx context.Context, name string, fields ...string) ([][]byte, error)
	HGetAll(ctx context.Context, name string) (map[string][]byte, error)
	HKeys(ctx context.Context, name string) ([]string, error)
	HLen(ctx context.Context, name string) (int64, error)

	// Sorted-set (expiration index) operations.
	ZAdd(ctx context.Context, name, member string, score float64) error
	ZScore(ctx context.Context, name, member string) (float64, bool, error)
	ZRangeByScore(ctx context.Context, name string, max float64) ([]string, error)

	// Counter operations for the timestamp generator.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Incr(ctx context.Context, key string) (int64, error)

	DBSize(ctx context.Context) (int64, error)
	FlushDB(ctx context.Context) error

	// Pipelined applies the batch best-effort: partial application is
	// possible and acceptable.
	Pipelined(ctx context.Context, fn func(Batch)) error

	// TxPipelined applies the batch atomically or not at all.
	TxPipelined(ctx context.Context, fn func(Batch)) error

	// Watch runs fn under an optimistic watch on key. A Tx.Commit inside fn
	// fails with ErrTxConflict if key changed concurrently; fn's other
	// errors pass through unchanged.
	Watch(ctx context.Context, key string, fn func(Tx) error) error

	Close() error
}
