package regioncache

// Hooks lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking.
// The cache calls them on hot paths.
type Hooks interface {
	// A read found the key past its indexed deadline and queued best-effort
	// removal of both the entry and its index member.
	LazyExpired(region, key string)

	// One sweep pass over a region finished; removed is the number of
	// index-listed-expired keys it purged (0 passes are not reported).
	SweepCycle(region string, removed int)

	// A sweep pass over one region failed. The sweeper continues with the
	// other regions.
	SweepRegionError(region string, err error)

	// A read-path operation degraded to miss/empty/unknown.
	// op ∈ {"contains", "get", "keys", "size", "asMap", "decode"}
	ReadDegraded(region, op string, err error)

	// All conditional timestamp updates were spent and the generator fell
	// back to a plain increment (monotonic, but ignores wall clock).
	TimestampFallback(key string, attempts int)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) LazyExpired(string, string)         {}
func (NopHooks) SweepCycle(string, int)             {}
func (NopHooks) SweepRegionError(string, error)     {}
func (NopHooks) ReadDegraded(string, string, error) {}
func (NopHooks) TimestampFallback(string, int)      {}
