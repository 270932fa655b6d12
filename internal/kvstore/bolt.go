package kvstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/toshi-app/toshi-client/internal/constants"
)

// BoltStore keeps one bucket per collection. bbolt allows a single writer at
// a time, so every Insert is serialized.
type BoltStore struct {
	db   *bolt.DB
	path string
}

func OpenBolt(path string) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), constants.DirectoryPerm); err != nil {
		return nil, fmt.Errorf("mkdir store dir: %w", err)
	}
	db, err := bolt.Open(path, constants.FilePerm, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", path, err)
	}
	return &BoltStore{db: db, path: path}, nil
}

func (s *BoltStore) Path() string { return s.path }

func (s *BoltStore) ContainsObject(ctx context.Context, key, collection string) (bool, error) {
	_, ok, err := s.Object(ctx, key, collection)
	return ok, err
}

func (s *BoltStore) Insert(ctx context.Context, object []byte, key, collection string) error {
	if err := checkKey(key, collection); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(collection))
		if err != nil {
			return fmt.Errorf("bucket %s: %w", collection, err)
		}
		return b.Put([]byte(key), object)
	})
}

func (s *BoltStore) Object(ctx context.Context, key, collection string) ([]byte, bool, error) {
	if err := checkKey(key, collection); err != nil {
		return nil, false, err
	}
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(collection))
		if b == nil {
			return nil
		}
		v := b.Get([]byte(key))
		if v == nil {
			return nil
		}
		// v is only valid for the life of the transaction
		out = append([]byte{}, v...)
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return out, out != nil, nil
}

func (s *BoltStore) Remove(ctx context.Context, key, collection string) error {
	if err := checkKey(key, collection); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(collection))
		if b == nil {
			return nil
		}
		return b.Delete([]byte(key))
	})
}

func (s *BoltStore) Keys(ctx context.Context, collection string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var keys []string
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(collection))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, _ []byte) error {
			keys = append(keys, string(k))
			return nil
		})
	})
	sort.Strings(keys)
	return keys, err
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
