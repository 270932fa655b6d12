// Package messaging stores conversation counterparts (recipients) and their
// threads. All writes happen inside a read-write transaction.
package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/toshi-app/toshi-client/internal/constants"
)

var (
	recipientsBucket = []byte("recipients")
	threadsBucket    = []byte("contact_threads")

	ErrReadOnly = errors.New("messaging: write in read-only transaction")
)

type Recipient struct {
	Identifier    string `json:"identifier"`
	Relay         string `json:"relay,omitempty"`
	SupportsVoice bool   `json:"supports_voice"`
}

// NewRecipient returns a recipient with no relay and voice disabled.
func NewRecipient(identifier string) *Recipient {
	return &Recipient{Identifier: identifier}
}

type Thread struct {
	ID        string    `json:"id"`
	ContactID string    `json:"contact_id"`
	CreatedAt time.Time `json:"created_at"`
}

type Storage struct {
	db  *bolt.DB
	now func() time.Time
}

func Open(path string) (*Storage, error) {
	if err := os.MkdirAll(filepath.Dir(path), constants.DirectoryPerm); err != nil {
		return nil, fmt.Errorf("mkdir messaging dir: %w", err)
	}
	db, err := bolt.Open(path, constants.FilePerm, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open messaging store %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{recipientsBucket, threadsBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init messaging buckets: %w", err)
	}
	return &Storage{db: db, now: time.Now}, nil
}

func (s *Storage) Close() error { return s.db.Close() }

// Tx is a messaging transaction. It must not be used after the callback returns.
type Tx struct {
	btx *bolt.Tx
	now func() time.Time
}

// ReadWrite runs fn in a single writer transaction. Returning an error rolls
// back every change made by fn.
func (s *Storage) ReadWrite(ctx context.Context, fn func(tx *Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(btx *bolt.Tx) error {
		return fn(&Tx{btx: btx, now: s.now})
	})
}

// Read runs fn in a read-only transaction.
func (s *Storage) Read(ctx context.Context, fn func(tx *Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(func(btx *bolt.Tx) error {
		return fn(&Tx{btx: btx, now: s.now})
	})
}

// Recipient looks up a recipient; nil when unknown.
func (tx *Tx) Recipient(identifier string) (*Recipient, error) {
	v := tx.btx.Bucket(recipientsBucket).Get([]byte(identifier))
	if v == nil {
		return nil, nil
	}
	var r Recipient
	if err := json.Unmarshal(v, &r); err != nil {
		return nil, fmt.Errorf("decode recipient %s: %w", identifier, err)
	}
	return &r, nil
}

func (tx *Tx) SaveRecipient(r *Recipient) error {
	if r == nil || r.Identifier == "" {
		return fmt.Errorf("messaging: recipient identifier must not be empty")
	}
	if !tx.btx.Writable() {
		return ErrReadOnly
	}
	b, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode recipient: %w", err)
	}
	return tx.btx.Bucket(recipientsBucket).Put([]byte(r.Identifier), b)
}

// EnsureRecipient loads the recipient for identifier, creating it when absent,
// and saves it.
func (tx *Tx) EnsureRecipient(identifier string) (*Recipient, error) {
	r, err := tx.Recipient(identifier)
	if err != nil {
		return nil, err
	}
	if r == nil {
		r = NewRecipient(identifier)
	}
	if err := tx.SaveRecipient(r); err != nil {
		return nil, err
	}
	return r, nil
}

// Thread returns the conversation with contactID; nil when none exists.
func (tx *Tx) Thread(contactID string) (*Thread, error) {
	v := tx.btx.Bucket(threadsBucket).Get([]byte(contactID))
	if v == nil {
		return nil, nil
	}
	var th Thread
	if err := json.Unmarshal(v, &th); err != nil {
		return nil, fmt.Errorf("decode thread %s: %w", contactID, err)
	}
	return &th, nil
}

// GetOrCreateThread returns the existing thread for contactID or creates one.
func (tx *Tx) GetOrCreateThread(contactID string) (*Thread, error) {
	if contactID == "" {
		return nil, fmt.Errorf("messaging: contact id must not be empty")
	}
	th, err := tx.Thread(contactID)
	if err != nil || th != nil {
		return th, err
	}
	if !tx.btx.Writable() {
		return nil, ErrReadOnly
	}

	th = &Thread{ID: uuid.NewString(), ContactID: contactID, CreatedAt: tx.now().UTC()}
	b, err := json.Marshal(th)
	if err != nil {
		return nil, fmt.Errorf("encode thread: %w", err)
	}
	if err := tx.btx.Bucket(threadsBucket).Put([]byte(contactID), b); err != nil {
		return nil, err
	}
	return th, nil
}

// Threads lists every contact thread ordered by creation time.
func (s *Storage) Threads(ctx context.Context) ([]Thread, error) {
	var out []Thread
	err := s.Read(ctx, func(tx *Tx) error {
		return tx.btx.Bucket(threadsBucket).ForEach(func(k, v []byte) error {
			var th Thread
			if err := json.Unmarshal(v, &th); err != nil {
				return fmt.Errorf("decode thread %s: %w", string(k), err)
			}
			out = append(out, th)
			return nil
		})
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, err
}
