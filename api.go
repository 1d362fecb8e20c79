package regioncache

import (
	"strconv"
	"time"

	"github.com/unkn0wn-root/regioncache/codec"
	"github.com/unkn0wn-root/regioncache/store"
)

// AccessType names the concurrency policy the ORM-side collaborator picks
// per entity. The region engine serves all of them through the same
// read/write contract; the type exists so the factory can report a default.
type AccessType string

const (
	AccessTypeReadOnly           AccessType = "read-only"
	AccessTypeReadWrite          AccessType = "read-write"
	AccessTypeNonstrictReadWrite AccessType = "nonstrict-read-write"
	AccessTypeTransactional      AccessType = "transactional"
)

// Properties is the flat configuration bag the collaborator resolves from
// its own configuration layer. Values are externally supplied strings.
type Properties map[string]string

const (
	// PropExpirySeconds holds the global entry lifetime in seconds.
	// A per-region override lives under PropExpirySeconds + "." + name.
	PropExpirySeconds = "expiryInSeconds"

	// PropLockTimeout holds the collaborator's cache lock timeout in
	// milliseconds. The core only parses and exposes it via Region.Timeout.
	PropLockTimeout = "cacheLockTimeout"
)

const (
	DefaultExpiry        = 120 * time.Second
	DefaultLockTimeout   = 60 * time.Second
	DefaultSweepInterval = time.Second
)

// merged layers overrides over p without mutating either.
func (p Properties) merged(overrides Properties) Properties {
	if len(overrides) == 0 {
		return p
	}
	out := make(Properties, len(p)+len(overrides))
	for k, v := range p {
		out[k] = v
	}
	for k, v := range overrides {
		out[k] = v
	}
	return out
}

func (p Properties) expiry(region string) time.Duration {
	if v, ok := p[PropExpirySeconds+"."+region]; ok {
		if secs, err := strconv.ParseInt(v, 10, 64); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	if v, ok := p[PropExpirySeconds]; ok {
		if secs, err := strconv.ParseInt(v, 10, 64); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return DefaultExpiry
}

func (p Properties) lockTimeout() time.Duration {
	if v, ok := p[PropLockTimeout]; ok {
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return DefaultLockTimeout
}

// Options tune a Factory. Only Store is required; others have sensible
// defaults.
type Options struct {
	// Required
	Store store.Store

	Logger     Logger           // if nil, NopLogger is used
	Hooks      Hooks            // if nil, NopHooks is used
	Clock      func() time.Time // if nil, time.Now; injectable for tests
	Properties Properties       // collaborator-supplied property bag

	SweepInterval  time.Duration // 0 => 1s
	TimestampKey   string        // counter name for NextTimestamp; "" => "default"
	DisableSweeper bool          // lazy expiration on read still applies
	CloseStore     bool          // set true only if the factory exclusively owns the store
}

// RegionConfig tunes one region. The zero value is usable: msgpack+snappy
// codec, expiry and lock timeout resolved from the factory properties,
// time-based expiry on.
type RegionConfig[V any] struct {
	// Codec serializes values. nil => Snappy-compressed Msgpack.
	Codec codec.Codec[V]

	// Expiry is the entry lifetime used by Put and as the Get expiry hint.
	// 0 => resolved from properties (per-region key first, then global,
	// then DefaultExpiry).
	Expiry time.Duration

	// LockTimeout is surfaced to the collaborator via Region.Timeout.
	// 0 => resolved from properties, then DefaultLockTimeout.
	LockTimeout time.Duration

	// DisableTimeBasedExpiry marks a region whose entries are invalidated
	// by version rather than by time (an update-timestamps region). Such a
	// region gets no expiration-index writes, no sliding refresh on read,
	// and is not swept.
	DisableTimeBasedExpiry bool
}
