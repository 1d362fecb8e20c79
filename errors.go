package regioncache

import (
	"errors"

	"github.com/unkn0wn-root/regioncache/store"
)

var (
	// ErrSerialization marks an encode failure on a write. The write is
	// abandoned and whatever the store held before stays authoritative.
	// Decode failures never surface: the read path treats them as a miss.
	ErrSerialization = errors.New("regioncache: serialization failed")

	// ErrRegionDestroyed is returned by writes against a region that was
	// logically destroyed in this process. Reads keep working; the remote
	// entries live on until they expire.
	ErrRegionDestroyed = errors.New("regioncache: region destroyed")

	// ErrStoreUnavailable matches transport/connection failures surfaced by
	// write-path operations.
	ErrStoreUnavailable = store.ErrUnavailable

	// ErrTxConflict matches an optimistic-concurrency abort surfaced by
	// explicit Watch callers. The timestamp generator resolves conflicts
	// internally and never returns this.
	ErrTxConflict = store.ErrTxConflict
)
