package store

import (
	"context"
	"sort"
	"strconv"
	"sync"
)

// Local is an in-memory Store. It backs tests and embedded single-process
// deployments; semantics mirror the Redis implementation, including
// optimistic Watch conflicts via per-key write versions.
type Local struct {
	mu       sync.Mutex
	hashes   map[string]map[string][]byte
	zsets    map[string]map[string]float64
	kv       map[string][]byte
	versions map[string]uint64
}

var _ Store = (*Local)(nil)

func NewLocal() *Local {
	return &Local{
		hashes:   make(map[string]map[string][]byte),
		zsets:    make(map[string]map[string]float64),
		kv:       make(map[string][]byte),
		versions: make(map[string]uint64),
	}
}

func (s *Local) Ping(context.Context) error { return nil }

func (s *Local) HExists(_ context.Context, name, field string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.hashes[name][field]
	return ok, nil
}

func (s *Local) HGet(_ context.Context, name, field string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.hashes[name][field]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (s *Local) HMGet(_ context.Context, name string, fields ...string) ([][]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(fields))
	for i, f := range fields {
		if v, ok := s.hashes[name][f]; ok {
			out[i] = append([]byte(nil), v...)
		}
	}
	return out, nil
}

func (s *Local) HGetAll(_ context.Context, name string) (map[string][]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string][]byte, len(s.hashes[name]))
	for f, v := range s.hashes[name] {
		out[f] = append([]byte(nil), v...)
	}
	return out, nil
}

func (s *Local) HKeys(_ context.Context, name string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.hashes[name]))
	for f := range s.hashes[name] {
		out = append(out, f)
	}
	return out, nil
}

func (s *Local) HLen(_ context.Context, name string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.hashes[name])), nil
}

func (s *Local) ZAdd(_ context.Context, name, member string, score float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.zadd(name, member, score)
	return nil
}

func (s *Local) ZScore(_ context.Context, name, member string) (float64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	score, ok := s.zsets[name][member]
	return score, ok, nil
}

func (s *Local) ZRangeByScore(_ context.Context, name string, max float64) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	type zm struct {
		member string
		score  float64
	}
	var hits []zm
	for m, score := range s.zsets[name] {
		if score >= 0 && score <= max {
			hits = append(hits, zm{m, score})
		}
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score < hits[j].score
		}
		return hits[i].member < hits[j].member
	})
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.member
	}
	return out, nil
}

func (s *Local) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.kv[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (s *Local) Incr(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, _ := strconv.ParseInt(string(s.kv[key]), 10, 64)
	cur++
	s.set(key, []byte(strconv.FormatInt(cur, 10)))
	return cur, nil
}

func (s *Local) DBSize(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.hashes) + len(s.zsets) + len(s.kv)), nil
}

func (s *Local) FlushDB(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hashes = make(map[string]map[string][]byte)
	s.zsets = make(map[string]map[string]float64)
	s.kv = make(map[string][]byte)
	return nil
}

// Pipelined applies each queued operation independently: no atomicity, like
// a network pipeline whose commands succeed or fail individually.
func (s *Local) Pipelined(_ context.Context, fn func(Batch)) error {
	b := &localBatch{}
	fn(b)
	for _, op := range b.ops {
		s.mu.Lock()
		op(s)
		s.mu.Unlock()
	}
	return nil
}

// TxPipelined applies the whole batch under one lock hold, so concurrent
// readers observe all of it or none of it.
func (s *Local) TxPipelined(_ context.Context, fn func(Batch)) error {
	b := &localBatch{}
	fn(b)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, op := range b.ops {
		op(s)
	}
	return nil
}

func (s *Local) Watch(ctx context.Context, key string, fn func(Tx) error) error {
	s.mu.Lock()
	ver := s.versions[key]
	s.mu.Unlock()
	return fn(&localTx{s: s, key: key, ver: ver})
}

func (s *Local) Close() error { return nil }

// set writes a plain key and bumps its watch version. Callers hold s.mu.
func (s *Local) set(key string, value []byte) {
	s.kv[key] = value
	s.versions[key]++
}

func (s *Local) zadd(name, member string, score float64) {
	z, ok := s.zsets[name]
	if !ok {
		z = make(map[string]float64)
		s.zsets[name] = z
	}
	z[member] = score
}

type localTx struct {
	s   *Local
	key string
	ver uint64
}

func (t *localTx) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return t.s.Get(ctx, key)
}

func (t *localTx) Commit(_ context.Context, fn func(Batch)) error {
	b := &localBatch{}
	fn(b)
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if t.s.versions[t.key] != t.ver {
		return ErrTxConflict
	}
	for _, op := range b.ops {
		op(t.s)
	}
	return nil
}

// localBatch queues mutations as closures; the executor applies them while
// holding the store lock.
type localBatch struct {
	ops []func(*Local)
}

var _ Batch = (*localBatch)(nil)

func (b *localBatch) HSet(name, field string, value []byte) {
	v := append([]byte(nil), value...)
	b.ops = append(b.ops, func(s *Local) {
		h, ok := s.hashes[name]
		if !ok {
			h = make(map[string][]byte)
			s.hashes[name] = h
		}
		h[field] = v
	})
}

func (b *localBatch) HDel(name string, fields ...string) {
	b.ops = append(b.ops, func(s *Local) {
		for _, f := range fields {
			delete(s.hashes[name], f)
		}
		if len(s.hashes[name]) == 0 {
			delete(s.hashes, name)
		}
	})
}

func (b *localBatch) ZAdd(name, member string, score float64) {
	b.ops = append(b.ops, func(s *Local) { s.zadd(name, member, score) })
}

func (b *localBatch) ZRem(name string, members ...string) {
	b.ops = append(b.ops, func(s *Local) {
		for _, m := range members {
			delete(s.zsets[name], m)
		}
		if len(s.zsets[name]) == 0 {
			delete(s.zsets, name)
		}
	})
}

func (b *localBatch) ZRemRangeByScore(name string, max float64) {
	b.ops = append(b.ops, func(s *Local) {
		for m, score := range s.zsets[name] {
			if score >= 0 && score <= max {
				delete(s.zsets[name], m)
			}
		}
		if len(s.zsets[name]) == 0 {
			delete(s.zsets, name)
		}
	})
}

func (b *localBatch) Set(key string, value []byte) {
	v := append([]byte(nil), value...)
	b.ops = append(b.ops, func(s *Local) { s.set(key, v) })
}

func (b *localBatch) Del(keys ...string) {
	b.ops = append(b.ops, func(s *Local) {
		for _, k := range keys {
			delete(s.kv, k)
			delete(s.hashes, k)
			delete(s.zsets, k)
		}
	})
}
