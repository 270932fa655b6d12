// Package kvstore is the local object store: opaque values addressed by key
// inside a named collection.
package kvstore

import (
	"context"
	"errors"
)

var ErrEmptyKey = errors.New("kvstore: key and collection must not be empty")

// Store is implemented by BoltStore and RedisStore.
type Store interface {
	ContainsObject(ctx context.Context, key, collection string) (bool, error)
	Insert(ctx context.Context, object []byte, key, collection string) error
	Object(ctx context.Context, key, collection string) ([]byte, bool, error)
	Remove(ctx context.Context, key, collection string) error
	Keys(ctx context.Context, collection string) ([]string, error)
	Close() error
}

func checkKey(key, collection string) error {
	if key == "" || collection == "" {
		return ErrEmptyKey
	}
	return nil
}
