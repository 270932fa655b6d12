package kvstore

import (
	"context"
	"errors"
	"sort"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "toshi/c/"

// RedisStore keeps one hash per collection.
type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func collectionKey(collection string) string {
	return redisKeyPrefix + collection
}

func (s *RedisStore) ContainsObject(ctx context.Context, key, collection string) (bool, error) {
	if err := checkKey(key, collection); err != nil {
		return false, err
	}
	return s.rdb.HExists(ctx, collectionKey(collection), key).Result()
}

func (s *RedisStore) Insert(ctx context.Context, object []byte, key, collection string) error {
	if err := checkKey(key, collection); err != nil {
		return err
	}
	return s.rdb.HSet(ctx, collectionKey(collection), key, object).Err()
}

func (s *RedisStore) Object(ctx context.Context, key, collection string) ([]byte, bool, error) {
	if err := checkKey(key, collection); err != nil {
		return nil, false, err
	}
	b, err := s.rdb.HGet(ctx, collectionKey(collection), key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (s *RedisStore) Remove(ctx context.Context, key, collection string) error {
	if err := checkKey(key, collection); err != nil {
		return err
	}
	return s.rdb.HDel(ctx, collectionKey(collection), key).Err()
}

func (s *RedisStore) Keys(ctx context.Context, collection string) ([]string, error) {
	keys, err := s.rdb.HKeys(ctx, collectionKey(collection)).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
