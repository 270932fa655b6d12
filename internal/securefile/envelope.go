// Package securefile keeps JSON documents on disk encrypted under a password.
// Keys are derived with Argon2id and sealed with XChaCha20-Poly1305.
package securefile

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/toshi-app/toshi-client/internal/constants"
)

// ErrWrongPassword is returned for any authentication failure on open.
var ErrWrongPassword = errors.New("securefile: wrong password or corrupted file")

// ErrBadParams is returned for key-derivation parameters outside the
// accepted bounds, whether asked for on write or found in a file.
var ErrBadParams = errors.New("securefile: key derivation parameters out of range")

const envelopeVersion = 1

const (
	maxTime      = 16
	maxMemoryKiB = 256 * 1024
	maxThreads   = 64
	minSaltLen   = 16
)

// Envelope is the on-disk form of a sealed document.
type Envelope struct {
	Version int `json:"version"`

	Time    uint32 `json:"argon_time"`
	Memory  uint32 `json:"argon_memory_kib"`
	Threads uint8  `json:"argon_threads"`
	KeyLen  uint32 `json:"argon_key_len"`

	Salt       string `json:"salt"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

// Params tune the key derivation.
type Params struct {
	Time    uint32
	Memory  uint32 // KiB
	Threads uint8
	KeyLen  uint32
}

var DefaultParams = Params{Time: 2, Memory: 64 * 1024, Threads: 1, KeyLen: 32}

// Validate bounds the work Argon2id is asked to do. argon2.IDKey panics on
// zero threads and allocates Memory KiB up front.
func (p Params) Validate() error {
	switch {
	case p.Time == 0 || p.Time > maxTime:
		return fmt.Errorf("%w: time %d", ErrBadParams, p.Time)
	case p.Threads == 0 || p.Threads > maxThreads:
		return fmt.Errorf("%w: threads %d", ErrBadParams, p.Threads)
	case p.Memory < 8*uint32(p.Threads) || p.Memory > maxMemoryKiB:
		return fmt.Errorf("%w: memory %d KiB", ErrBadParams, p.Memory)
	case p.KeyLen != chacha20poly1305.KeySize:
		return fmt.Errorf("%w: key length %d", ErrBadParams, p.KeyLen)
	}
	return nil
}

// Options controls how a document is sealed. Zero fields take defaults.
type Options struct {
	Params Params

	FilePerm      os.FileMode
	DirectoryPerm os.FileMode

	// AAD is bound into the ciphertext and must match on read.
	AAD []byte
}

func (o Options) withDefaults() Options {
	if o.Params == (Params{}) {
		o.Params = DefaultParams
	}
	if o.FilePerm == 0 {
		o.FilePerm = constants.FilePerm
	}
	if o.DirectoryPerm == 0 {
		o.DirectoryPerm = constants.DirectoryPerm
	}
	return o
}

// Write seals v under password and replaces path atomically.
func Write[T any](path string, v T, password []byte, opts Options) error {
	opts = opts.withDefaults()

	if err := os.MkdirAll(filepath.Dir(path), opts.DirectoryPerm); err != nil {
		return fmt.Errorf("mkdir %s: %w", filepath.Dir(path), err)
	}

	plain, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}

	env, err := seal(plain, password, opts)
	if err != nil {
		return err
	}

	b, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	return replaceFile(path, b, opts.FilePerm)
}

// Read opens the document at path with password.
func Read[T any](path string, password []byte, opts Options) (T, error) {
	var out T

	b, err := os.ReadFile(path)
	if err != nil {
		return out, err
	}

	var env Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return out, fmt.Errorf("unmarshal envelope: %w", err)
	}

	plain, err := open(env, password, opts.AAD)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(plain, &out); err != nil {
		return out, fmt.Errorf("unmarshal document: %w", err)
	}
	return out, nil
}

func seal(plain, password []byte, opts Options) (Envelope, error) {
	p := opts.Params
	if err := p.Validate(); err != nil {
		return Envelope{}, err
	}

	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return Envelope{}, fmt.Errorf("salt: %w", err)
	}
	key := argon2.IDKey(password, salt, p.Time, p.Memory, p.Threads, p.KeyLen)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return Envelope{}, fmt.Errorf("aead: %w", err)
	}
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return Envelope{}, fmt.Errorf("nonce: %w", err)
	}

	return Envelope{
		Version:    envelopeVersion,
		Time:       p.Time,
		Memory:     p.Memory,
		Threads:    p.Threads,
		KeyLen:     p.KeyLen,
		Salt:       base64.StdEncoding.EncodeToString(salt),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(aead.Seal(nil, nonce, plain, opts.AAD)),
	}, nil
}

func open(env Envelope, password, aad []byte) ([]byte, error) {
	if env.Version != envelopeVersion {
		return nil, fmt.Errorf("securefile: unsupported envelope version %d", env.Version)
	}
	params := Params{Time: env.Time, Memory: env.Memory, Threads: env.Threads, KeyLen: env.KeyLen}
	if err := params.Validate(); err != nil {
		return nil, err
	}

	salt, err := base64.StdEncoding.DecodeString(env.Salt)
	if err != nil {
		return nil, fmt.Errorf("decode salt: %w", err)
	}
	if len(salt) < minSaltLen {
		return nil, fmt.Errorf("%w: salt length %d", ErrBadParams, len(salt))
	}
	nonce, err := base64.StdEncoding.DecodeString(env.Nonce)
	if err != nil {
		return nil, fmt.Errorf("decode nonce: %w", err)
	}
	ct, err := base64.StdEncoding.DecodeString(env.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("decode ciphertext: %w", err)
	}

	key := argon2.IDKey(password, salt, params.Time, params.Memory, params.Threads, params.KeyLen)
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("aead: %w", err)
	}
	if len(nonce) != aead.NonceSize() {
		return nil, ErrWrongPassword
	}

	plain, err := aead.Open(nil, nonce, ct, aad)
	if err != nil {
		return nil, ErrWrongPassword
	}
	return plain, nil
}

func replaceFile(path string, data []byte, perm os.FileMode) error {
	tmp := path + ".tmp"
	_ = os.Remove(tmp)

	if err := os.WriteFile(tmp, data, perm); err != nil {
		return fmt.Errorf("write tmp: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}
