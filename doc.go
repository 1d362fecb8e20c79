// Package regioncache implements a second-level cache on top of a remote
// key/value store, organized into named regions. A region holds entity,
// collection, or query-result entries on behalf of an object-relational
// caching layer; entries expire through an explicit side index rather than
// the store's native TTL, so expiry works at hash-field granularity.
//
// Components:
//   - store.Store: the backing-store boundary (hash ops, the sorted-set
//     expiration index, optimistic watch/commit, transactional and
//     best-effort batches). Redis and in-memory implementations ship.
//   - codec.Codec[V]: (de)serializes V <-> []byte; the default value codec
//     is msgpack wrapped in snappy block compression.
//   - Region[V]: per-region get/put/remove with lazy expiration on read.
//   - Factory: builds regions, owns the region registry and the background
//     sweeper, and issues cluster-monotonic timestamps.
//
// Store layout per region:
//
//	<region>     - hash: field=key, value=encoded entry
//	z:<region>   - sorted set: member=key, score=expiry epoch millis
//
// Reads never fail outward: transport or decode problems degrade to a miss
// and the caller falls through to its source of truth. Writes that must
// keep the hash and the index consistent run as one transactional batch
// and do report failure.
package regioncache
