package kv

import (
	"context"
	"sort"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// Each write touches the value, the lexical index used for prefix ranges and
// the order hash in one script so a key is never half indexed.
// KEYS: data, index, order, seq. ARGV: logical key, value, only-if-absent flag.
var luaSet = redis.NewScript(`
  if ARGV[3] == '1' and redis.call('EXISTS', KEYS[1]) == 1 then
    return 0
  end
  redis.call('SET', KEYS[1], ARGV[2])
  if redis.call('HEXISTS', KEYS[3], ARGV[1]) == 0 then
    local n = redis.call('INCR', KEYS[4])
    redis.call('HSET', KEYS[3], ARGV[1], n)
    redis.call('ZADD', KEYS[2], 0, ARGV[1])
  end
  return 1
`)

// KEYS: data, index, order. ARGV: logical key.
var luaDelete = redis.NewScript(`
  redis.call('DEL', KEYS[1])
  redis.call('ZREM', KEYS[2], ARGV[1])
  redis.call('HDEL', KEYS[3], ARGV[1])
  return 1
`)

// RedisStore keeps the key space in redis under a namespace.
type RedisStore struct {
	Rdb       redis.UniversalClient
	Namespace string
}

func NewRedisStore(rdb redis.UniversalClient, namespace string) *RedisStore {
	if namespace == "" {
		namespace = "kv"
	}
	return &RedisStore{Rdb: rdb, Namespace: namespace}
}

func (s *RedisStore) dataKey(key string) string { return s.Namespace + ":data:" + key }
func (s *RedisStore) indexKey() string          { return s.Namespace + ":index" }
func (s *RedisStore) orderKey() string          { return s.Namespace + ":order" }
func (s *RedisStore) seqKey() string            { return s.Namespace + ":order_seq" }

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := s.Rdb.Get(ctx, s.dataKey(key)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, unavailable(err, "get")
	}
	return b, true, nil
}

func (s *RedisStore) write(ctx context.Context, key string, value []byte, nx bool) (bool, error) {
	flag := "0"
	if nx {
		flag = "1"
	}
	n, err := luaSet.Run(ctx, s.Rdb,
		[]string{s.dataKey(key), s.indexKey(), s.orderKey(), s.seqKey()},
		key, value, flag,
	).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte) error {
	_, err := s.write(ctx, key, value, false)
	return unavailable(err, "set")
}

func (s *RedisStore) SetIfAbsent(ctx context.Context, key string, value []byte) (bool, error) {
	ok, err := s.write(ctx, key, value, true)
	if err != nil {
		return false, unavailable(err, "setnx")
	}
	return ok, nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	err := luaDelete.Run(ctx, s.Rdb, []string{s.dataKey(key), s.indexKey(), s.orderKey()}, key).Err()
	return unavailable(err, "delete")
}

func (s *RedisStore) GetByPrefix(ctx context.Context, prefix string) ([]Entry, error) {
	keys, err := s.Rdb.ZRangeByLex(ctx, s.indexKey(), &redis.ZRangeBy{
		Min: "[" + prefix,
		Max: "[" + prefix + "\xff",
	}).Result()
	if err != nil {
		return nil, unavailable(err, "scan")
	}
	if len(keys) == 0 {
		return []Entry{}, nil
	}

	orders, err := s.Rdb.HMGet(ctx, s.orderKey(), keys...).Result()
	if err != nil {
		return nil, unavailable(err, "scan order")
	}
	dataKeys := make([]string, len(keys))
	for i, k := range keys {
		dataKeys[i] = s.dataKey(k)
	}
	values, err := s.Rdb.MGet(ctx, dataKeys...).Result()
	if err != nil {
		return nil, unavailable(err, "scan values")
	}

	type ordered struct {
		Entry
		order int64
	}
	hits := make([]ordered, 0, len(keys))
	for i, k := range keys {
		v, ok := values[i].(string)
		if !ok {
			// deleted between the range and the read
			continue
		}
		var n int64
		if o, ok := orders[i].(string); ok {
			n, _ = strconv.ParseInt(o, 10, 64)
		}
		hits = append(hits, ordered{Entry{Key: k, Value: []byte(v)}, n})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].order < hits[j].order })

	out := make([]Entry, len(hits))
	for i, h := range hits {
		out[i] = h.Entry
	}
	return out, nil
}

func (s *RedisStore) Next(ctx context.Context, counter string) (int64, error) {
	n, err := s.Rdb.Incr(ctx, s.Namespace+":counter:"+counter).Result()
	if err != nil {
		return 0, unavailable(err, "incr")
	}
	return n, nil
}
