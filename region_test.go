package regioncache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/unkn0wn-root/regioncache/codec"
	"github.com/unkn0wn-root/regioncache/internal/keys"
	"github.com/unkn0wn-root/regioncache/store"
)

type item struct {
	ID   string
	Name string
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestFactory(t *testing.T, st store.Store, clock *fakeClock) *Factory {
	t.Helper()
	f, err := NewFactory(Options{
		Store:          st,
		Clock:          clock.Now,
		DisableSweeper: true, // tests drive sweeps explicitly
	})
	if err != nil {
		t.Fatalf("NewFactory: %v", err)
	}
	t.Cleanup(func() { _ = f.Close(context.Background()) })
	return f
}

func newTestRegion(t *testing.T, f *Factory, name string, cfg RegionConfig[item]) *Region[item] {
	t.Helper()
	r, err := NewRegion(f, name, cfg)
	if err != nil {
		t.Fatalf("NewRegion: %v", err)
	}
	return r
}

func TestPutThenGetRoundTrips(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	f := newTestFactory(t, store.NewLocal(), clock)
	r := newTestRegion(t, f, "Entity", RegionConfig[item]{Expiry: 5 * time.Second})

	want := item{ID: "42", Name: "x"}
	if err := r.Put(ctx, "42", want); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, ok := r.Get(ctx, "42")
	if !ok {
		t.Fatal("expected hit")
	}
	if got != want {
		t.Fatalf("got=%+v want=%+v", got, want)
	}
	if !r.Contains(ctx, "42") {
		t.Fatal("Contains should report the key")
	}
}

func TestExpiredEntryIsAbsentAndReclaimed(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	st := store.NewLocal()
	f := newTestFactory(t, st, clock)
	r := newTestRegion(t, f, "Entity", RegionConfig[item]{Expiry: 5 * time.Second})

	if err := r.Put(ctx, "42", item{Name: "x"}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	clock.Advance(4 * time.Second)
	if _, ok := r.Get(ctx, "42"); !ok {
		t.Fatal("entry should still be live before its deadline")
	}

	// a read refreshed the deadline; ride past it without further reads
	clock.Advance(6 * time.Second)
	if _, ok := r.Get(ctx, "42"); ok {
		t.Fatal("entry past deadline must read as absent")
	}

	// lazy expiry removed both the entry and its index member
	if ks := r.Keys(ctx); len(ks) != 0 {
		t.Fatalf("keys after lazy expiry = %v, want none", ks)
	}
	if _, ok, _ := st.ZScore(ctx, keys.Expiry("Entity"), "42"); ok {
		t.Fatal("index member should be gone after lazy expiry")
	}
}

func TestReadSlidesTheDeadline(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	f := newTestFactory(t, store.NewLocal(), clock)
	r := newTestRegion(t, f, "Entity", RegionConfig[item]{Expiry: 5 * time.Second})

	if err := r.Put(ctx, "k", item{Name: "x"}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	clock.Advance(3 * time.Second)
	if _, ok := r.Get(ctx, "k"); !ok {
		t.Fatal("expected hit at t+3s")
	}
	// original deadline was t+5s; the read moved it to t+8s
	clock.Advance(3 * time.Second)
	if _, ok := r.Get(ctx, "k"); !ok {
		t.Fatal("read at t+3s should have slid the deadline past t+6s")
	}
}

func TestRemoveIsIdempotent(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	f := newTestFactory(t, store.NewLocal(), clock)
	r := newTestRegion(t, f, "Entity", RegionConfig[item]{})

	if err := r.Put(ctx, "k", item{Name: "x"}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := r.Remove(ctx, "k"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := r.Remove(ctx, "k"); err != nil {
		t.Fatalf("second Remove: %v", err)
	}
	if r.Contains(ctx, "k") {
		t.Fatal("key should be gone")
	}
	if _, ok := r.Get(ctx, "k"); ok {
		t.Fatal("removed key must read as absent")
	}
}

func TestRemoveAllClearsEntriesAndIndex(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	st := store.NewLocal()
	f := newTestFactory(t, st, clock)
	r := newTestRegion(t, f, "Entity", RegionConfig[item]{Expiry: time.Minute})

	for _, k := range []string{"a", "b", "c"} {
		if err := r.Put(ctx, k, item{ID: k}); err != nil {
			t.Fatalf("Put %s: %v", k, err)
		}
	}
	if err := r.RemoveAll(ctx, "a", "b"); err != nil {
		t.Fatalf("RemoveAll: %v", err)
	}
	if got := r.Size(ctx); got != 1 {
		t.Fatalf("Size=%d want 1", got)
	}
	if _, ok, _ := st.ZScore(ctx, keys.Expiry("Entity"), "a"); ok {
		t.Fatal("index member for removed key should be gone")
	}
}

func TestCorruptEntryReadsAsMiss(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	st := store.NewLocal()
	f := newTestFactory(t, st, clock)
	r := newTestRegion(t, f, "Entity", RegionConfig[item]{})

	// foreign write: not a valid snappy block
	if err := st.TxPipelined(ctx, func(b store.Batch) {
		b.HSet("Entity", "bad", []byte{0xff, 0x00, 0xba, 0xad})
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if _, ok := r.Get(ctx, "bad"); ok {
		t.Fatal("corrupt bytes must degrade to a miss, not a hit")
	}
}

func TestAsMapSkipsUndecodableEntries(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	st := store.NewLocal()
	f := newTestFactory(t, st, clock)
	r := newTestRegion(t, f, "Entity", RegionConfig[item]{})

	if err := r.Put(ctx, "good", item{ID: "good"}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := st.TxPipelined(ctx, func(b store.Batch) {
		b.HSet("Entity", "bad", []byte("garbage"))
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	m := r.AsMap(ctx)
	if len(m) != 1 {
		t.Fatalf("AsMap=%v, want only the decodable entry", m)
	}
	if m["good"].ID != "good" {
		t.Fatalf("unexpected decoded entry: %+v", m["good"])
	}
}

func TestEncodeFailurePropagatesAndKeepsOldValue(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	f := newTestFactory(t, store.NewLocal(), clock)
	r, err := NewRegion(f, "Entity", RegionConfig[item]{Codec: failingCodec{}})
	if err != nil {
		t.Fatalf("NewRegion: %v", err)
	}

	// seed through a working codec region sharing the same hash
	seed := newTestRegion(t, f, "Entity", RegionConfig[item]{})
	if err := seed.Put(ctx, "k", item{Name: "old"}); err != nil {
		t.Fatalf("seed Put: %v", err)
	}

	err = r.Put(ctx, "k", item{Name: "new"})
	if !errors.Is(err, ErrSerialization) {
		t.Fatalf("err=%v, want ErrSerialization", err)
	}
	got, hit := seed.Get(ctx, "k")
	if !hit || got.Name != "old" {
		t.Fatalf("previous value must stay authoritative, got=%+v hit=%v", got, hit)
	}
}

type failingCodec struct{}

func (failingCodec) Encode(item) ([]byte, error) { return nil, errors.New("not serializable") }
func (failingCodec) Decode([]byte) (item, error) { return item{}, errors.New("not serializable") }

func TestTimeBasedExpiryDisabledSkipsIndex(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	st := store.NewLocal()
	f := newTestFactory(t, st, clock)

	r, err := TimestampsRegion[item](f, "Timestamps", nil)
	if err != nil {
		t.Fatalf("TimestampsRegion: %v", err)
	}
	if err := r.Put(ctx, "k", item{Name: "x"}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, ok, _ := st.ZScore(ctx, keys.Expiry("Timestamps"), "k"); ok {
		t.Fatal("timestamps region must not write index entries")
	}

	// no sliding refresh on read either
	if _, ok := r.GetWithin(ctx, "k", time.Minute); !ok {
		t.Fatal("expected hit")
	}
	if _, ok, _ := st.ZScore(ctx, keys.Expiry("Timestamps"), "k"); ok {
		t.Fatal("read must not create an index entry for a timestamps region")
	}

	// and the sweeper never learns about it
	for _, name := range f.RegionNames() {
		if name == "Timestamps" {
			t.Fatal("timestamps region must not be registered for sweeping")
		}
	}
}

func TestDestroyIsLogicalOnly(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	f := newTestFactory(t, store.NewLocal(), clock)
	r := newTestRegion(t, f, "Entity", RegionConfig[item]{Expiry: time.Minute})

	if err := r.Put(ctx, "k", item{Name: "x"}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	r.Destroy()

	if !r.Destroyed() {
		t.Fatal("Destroyed should report true")
	}
	if err := r.Put(ctx, "k2", item{}); !errors.Is(err, ErrRegionDestroyed) {
		t.Fatalf("Put after destroy: err=%v, want ErrRegionDestroyed", err)
	}
	if err := r.Remove(ctx, "k"); !errors.Is(err, ErrRegionDestroyed) {
		t.Fatalf("Remove after destroy: err=%v, want ErrRegionDestroyed", err)
	}
	// reads keep working: another node may still own these entries
	if _, ok := r.Get(ctx, "k"); !ok {
		t.Fatal("destroyed region must remain readable")
	}
}

func TestPropertiesResolvePerRegionExpiry(t *testing.T) {
	clock := newFakeClock()
	f, err := NewFactory(Options{
		Store: store.NewLocal(),
		Clock: clock.Now,
		Properties: Properties{
			PropExpirySeconds:             "300",
			PropExpirySeconds + ".Orders": "30",
			PropLockTimeout:               "5000",
		},
		DisableSweeper: true,
	})
	if err != nil {
		t.Fatalf("NewFactory: %v", err)
	}
	t.Cleanup(func() { _ = f.Close(context.Background()) })

	orders := newTestRegion(t, f, "Orders", RegionConfig[item]{})
	other := newTestRegion(t, f, "Other", RegionConfig[item]{})

	if got := orders.Expiry(); got != 30*time.Second {
		t.Fatalf("Orders expiry=%v want 30s", got)
	}
	if got := other.Expiry(); got != 300*time.Second {
		t.Fatalf("Other expiry=%v want 300s", got)
	}
	if got := other.Timeout(); got != 5*time.Second {
		t.Fatalf("lock timeout=%v want 5s", got)
	}
}

func TestFactoryDefaults(t *testing.T) {
	clock := newFakeClock()
	f := newTestFactory(t, store.NewLocal(), clock)

	if !f.MinimalPutsEnabledByDefault() {
		t.Fatal("minimal puts should default on")
	}
	if got := f.DefaultAccessType(); got != AccessTypeReadWrite {
		t.Fatalf("default access type=%q", got)
	}
	r := newTestRegion(t, f, "Entity", RegionConfig[item]{})
	if got := r.Expiry(); got != DefaultExpiry {
		t.Fatalf("default expiry=%v want %v", got, DefaultExpiry)
	}
	if got := r.Timeout(); got != DefaultLockTimeout {
		t.Fatalf("default lock timeout=%v want %v", got, DefaultLockTimeout)
	}
}

var errDown = fmt.Errorf("%w: connection refused", store.ErrUnavailable)

// downStore fails every operation the way a dead backing store would.
type downStore struct{}

var _ store.Store = downStore{}

func (downStore) Ping(context.Context) error { return errDown }
func (downStore) HExists(context.Context, string, string) (bool, error) {
	return false, errDown
}
func (downStore) HGet(context.Context, string, string) ([]byte, bool, error) {
	return nil, false, errDown
}
func (downStore) HMGet(context.Context, string, ...string) ([][]byte, error) {
	return nil, errDown
}
func (downStore) HGetAll(context.Context, string) (map[string][]byte, error) {
	return nil, errDown
}
func (downStore) HKeys(context.Context, string) ([]string, error) { return nil, errDown }
func (downStore) HLen(context.Context, string) (int64, error)     { return 0, errDown }
func (downStore) ZAdd(context.Context, string, string, float64) error {
	return errDown
}
func (downStore) ZScore(context.Context, string, string) (float64, bool, error) {
	return 0, false, errDown
}
func (downStore) ZRangeByScore(context.Context, string, float64) ([]string, error) {
	return nil, errDown
}
func (downStore) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errDown
}
func (downStore) Incr(context.Context, string) (int64, error) { return 0, errDown }
func (downStore) DBSize(context.Context) (int64, error)       { return 0, errDown }
func (downStore) FlushDB(context.Context) error               { return errDown }
func (downStore) Pipelined(context.Context, func(store.Batch)) error {
	return errDown
}
func (downStore) TxPipelined(context.Context, func(store.Batch)) error {
	return errDown
}
func (downStore) Watch(context.Context, string, func(store.Tx) error) error {
	return errDown
}
func (downStore) Close() error { return nil }

func TestReadPathsDegradeWhenStoreIsDown(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	f := newTestFactory(t, downStore{}, clock)
	r := newTestRegion(t, f, "Entity", RegionConfig[item]{Expiry: time.Minute})

	if r.Contains(ctx, "k") {
		t.Fatal("Contains must degrade to false")
	}
	if _, ok := r.Get(ctx, "k"); ok {
		t.Fatal("Get must degrade to miss")
	}
	if ks := r.Keys(ctx); len(ks) != 0 {
		t.Fatal("Keys must degrade to empty")
	}
	if got := r.Size(ctx); got != -1 {
		t.Fatalf("Size=%d, want -1 sentinel", got)
	}
	if m := r.AsMap(ctx); len(m) != 0 {
		t.Fatal("AsMap must degrade to empty")
	}
}

func TestWritePathsPropagateWhenStoreIsDown(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	f := newTestFactory(t, downStore{}, clock)
	r := newTestRegion(t, f, "Entity", RegionConfig[item]{Expiry: time.Minute})

	if err := r.Put(ctx, "k", item{}); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("Put err=%v, want ErrStoreUnavailable", err)
	}
	if err := r.Remove(ctx, "k"); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("Remove err=%v, want ErrStoreUnavailable", err)
	}
}

func TestCustomCodecPerRegion(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	f := newTestFactory(t, store.NewLocal(), clock)
	r := newTestRegion(t, f, "Entity", RegionConfig[item]{Codec: codec.JSON[item]{}})

	want := item{ID: "1", Name: "json"}
	if err := r.Put(ctx, "1", want); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if got, ok := r.Get(ctx, "1"); !ok || got != want {
		t.Fatalf("got=%+v ok=%v", got, ok)
	}
}
