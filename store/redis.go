package store

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

var ErrNilClient = errors.New("store: nil redis client")

// Redis implements Store on a pooled go-redis client. Connection acquisition,
// release and transport timeouts are owned by the client; every operation
// returns the connection to the pool on all exit paths.
type Redis struct {
	rdb         goredis.UniversalClient
	closeClient bool
}

var _ Store = (*Redis)(nil)

type RedisConfig struct {
	Client      goredis.UniversalClient
	CloseClient bool // set true only if this store exclusively owns the client
}

func NewRedis(cfg RedisConfig) (*Redis, error) {
	if cfg.Client == nil {
		return nil, ErrNilClient
	}
	return &Redis{rdb: cfg.Client, closeClient: cfg.CloseClient}, nil
}

// RedisOptions configures a client owned by the store. Zero timeouts fall
// back to the go-redis defaults.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int

	TLSConfig *tls.Config

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolTimeout  time.Duration
	PoolSize     int
}

// DialRedis creates a Redis store with its own client. Close releases it.
func DialRedis(opts RedisOptions) *Redis {
	client := goredis.NewClient(&goredis.Options{
		Addr:         coalesceStr(opts.Addr, "localhost:6379"),
		Password:     opts.Password,
		DB:           opts.DB,
		TLSConfig:    opts.TLSConfig,
		DialTimeout:  opts.DialTimeout,
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
		PoolTimeout:  opts.PoolTimeout,
		PoolSize:     opts.PoolSize,
	})
	return &Redis{rdb: client, closeClient: true}
}

func coalesceStr(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// wrapErr folds transport and server failures into ErrUnavailable so callers
// can match the kind without depending on go-redis error types.
func wrapErr(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

func (s *Redis) Ping(ctx context.Context) error {
	return wrapErr(s.rdb.Ping(ctx).Err())
}

func (s *Redis) HExists(ctx context.Context, name, field string) (bool, error) {
	ok, err := s.rdb.HExists(ctx, name, field).Result()
	if err != nil {
		return false, wrapErr(err)
	}
	return ok, nil
}

func (s *Redis) HGet(ctx context.Context, name, field string) ([]byte, bool, error) {
	b, err := s.rdb.HGet(ctx, name, field).Bytes()
	if err == goredis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, wrapErr(err)
	}
	return b, true, nil
}

func (s *Redis) HMGet(ctx context.Context, name string, fields ...string) ([][]byte, error) {
	if len(fields) == 0 {
		return nil, nil
	}
	vals, err := s.rdb.HMGet(ctx, name, fields...).Result()
	if err != nil {
		return nil, wrapErr(err)
	}
	out := make([][]byte, len(vals))
	for i, v := range vals {
		switch vv := v.(type) {
		case nil:
			out[i] = nil
		case string:
			out[i] = []byte(vv)
		case []byte:
			out[i] = vv
		default:
			out[i] = []byte(fmt.Sprint(vv))
		}
	}
	return out, nil
}

func (s *Redis) HGetAll(ctx context.Context, name string) (map[string][]byte, error) {
	m, err := s.rdb.HGetAll(ctx, name).Result()
	if err != nil {
		return nil, wrapErr(err)
	}
	out := make(map[string][]byte, len(m))
	for k, v := range m {
		out[k] = []byte(v)
	}
	return out, nil
}

func (s *Redis) HKeys(ctx context.Context, name string) ([]string, error) {
	ks, err := s.rdb.HKeys(ctx, name).Result()
	if err != nil {
		return nil, wrapErr(err)
	}
	return ks, nil
}

func (s *Redis) HLen(ctx context.Context, name string) (int64, error) {
	n, err := s.rdb.HLen(ctx, name).Result()
	if err != nil {
		return 0, wrapErr(err)
	}
	return n, nil
}

func (s *Redis) ZAdd(ctx context.Context, name, member string, score float64) error {
	return wrapErr(s.rdb.ZAdd(ctx, name, goredis.Z{Score: score, Member: member}).Err())
}

func (s *Redis) ZScore(ctx context.Context, name, member string) (float64, bool, error) {
	score, err := s.rdb.ZScore(ctx, name, member).Result()
	if err == goredis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, wrapErr(err)
	}
	return score, true, nil
}

func (s *Redis) ZRangeByScore(ctx context.Context, name string, max float64) ([]string, error) {
	members, err := s.rdb.ZRangeByScore(ctx, name, &goredis.ZRangeBy{
		Min: "0",
		Max: strconv.FormatFloat(max, 'f', -1, 64),
	}).Result()
	if err != nil {
		return nil, wrapErr(err)
	}
	return members, nil
}

func (s *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := s.rdb.Get(ctx, key).Bytes()
	if err == goredis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, wrapErr(err)
	}
	return b, true, nil
}

func (s *Redis) Incr(ctx context.Context, key string) (int64, error) {
	v, err := s.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, wrapErr(err)
	}
	return v, nil
}

func (s *Redis) DBSize(ctx context.Context) (int64, error) {
	n, err := s.rdb.DBSize(ctx).Result()
	if err != nil {
		return 0, wrapErr(err)
	}
	return n, nil
}

func (s *Redis) FlushDB(ctx context.Context) error {
	return wrapErr(s.rdb.FlushDB(ctx).Err())
}

func (s *Redis) Pipelined(ctx context.Context, fn func(Batch)) error {
	_, err := s.rdb.Pipelined(ctx, func(p goredis.Pipeliner) error {
		fn(redisBatch{ctx: ctx, p: p})
		return nil
	})
	return wrapErr(err)
}

func (s *Redis) TxPipelined(ctx context.Context, fn func(Batch)) error {
	_, err := s.rdb.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		fn(redisBatch{ctx: ctx, p: p})
		return nil
	})
	return wrapErr(err)
}

func (s *Redis) Watch(ctx context.Context, key string, fn func(Tx) error) error {
	err := s.rdb.Watch(ctx, func(tx *goredis.Tx) error {
		return fn(redisTx{tx: tx})
	}, key)
	if err == goredis.TxFailedErr {
		return ErrTxConflict
	}
	if err != nil && !errors.Is(err, ErrTxConflict) && !errors.Is(err, ErrUnavailable) {
		return wrapErr(err)
	}
	return err
}

func (s *Redis) Close() error {
	if s.closeClient {
		if err := s.rdb.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
			return err
		}
	}
	return nil
}

type redisTx struct {
	tx *goredis.Tx
}

func (t redisTx) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := t.tx.Get(ctx, key).Bytes()
	if err == goredis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, wrapErr(err)
	}
	return b, true, nil
}

func (t redisTx) Commit(ctx context.Context, fn func(Batch)) error {
	_, err := t.tx.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		fn(redisBatch{ctx: ctx, p: p})
		return nil
	})
	if err == goredis.TxFailedErr {
		return ErrTxConflict
	}
	return wrapErr(err)
}

type redisBatch struct {
	ctx context.Context
	p   goredis.Pipeliner
}

func (b redisBatch) HSet(name, field string, value []byte) {
	b.p.HSet(b.ctx, name, field, value)
}

func (b redisBatch) HDel(name string, fields ...string) {
	b.p.HDel(b.ctx, name, fields...)
}

func (b redisBatch) ZAdd(name, member string, score float64) {
	b.p.ZAdd(b.ctx, name, goredis.Z{Score: score, Member: member})
}

func (b redisBatch) ZRem(name string, members ...string) {
	ms := make([]any, len(members))
	for i, m := range members {
		ms[i] = m
	}
	b.p.ZRem(b.ctx, name, ms...)
}

func (b redisBatch) ZRemRangeByScore(name string, max float64) {
	b.p.ZRemRangeByScore(b.ctx, name, "0", strconv.FormatFloat(max, 'f', -1, 64))
}

func (b redisBatch) Set(key string, value []byte) {
	b.p.Set(b.ctx, key, value, 0)
}

func (b redisBatch) Del(keys ...string) {
	b.p.Del(b.ctx, keys...)
}
