package ethwallet

import (
	"errors"
	"fmt"
	"os"

	"github.com/quantumauth-io/quantum-go-utils/log"

	"github.com/toshi-app/toshi-client/internal/constants"
	"github.com/toshi-app/toshi-client/internal/securefile"
)

// Store persists one wallet encrypted under the user's password.
type Store struct {
	Path    string
	ChainID uint64
	Opts    securefile.Options
}

// NewStore returns a store at path, or at the default config location when
// path is empty.
func NewStore(path string, chainID uint64) (*Store, error) {
	if path == "" {
		p, err := securefile.DefaultPath(constants.AppName, constants.WalletFile)
		if err != nil {
			return nil, err
		}
		path = p
	}
	return &Store{
		Path:    path,
		ChainID: chainID,
		Opts:    securefile.Options{AAD: []byte(constants.AADConstant)},
	}, nil
}

func (s *Store) Exists() bool {
	_, err := os.Stat(s.Path)
	return err == nil
}

func (s *Store) Load(password []byte) (*Wallet, error) {
	w, err := securefile.Read[Wallet](s.Path, password, s.Opts)
	if err != nil {
		return nil, fmt.Errorf("load wallet %s: %w", s.Path, err)
	}
	if s.ChainID != 0 {
		w.ChainID = s.ChainID
	}
	return &w, nil
}

func (s *Store) Save(w *Wallet, password []byte) error {
	return securefile.Write(s.Path, *w, password, s.Opts)
}

// Ensure loads the wallet, creating and saving a fresh one if none exists.
func (s *Store) Ensure(password []byte) (*Wallet, error) {
	w, err := s.Load(password)
	if err == nil {
		return w, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	w, err = NewRandomWallet(s.ChainID)
	if err != nil {
		return nil, err
	}
	if err := s.Save(w, password); err != nil {
		return nil, err
	}
	log.Info("wallet created", "address", w.AddressHex, "path", s.Path)
	return w, nil
}
