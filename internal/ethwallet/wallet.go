// Package ethwallet is the local signing service. Keys never leave the device.
package ethwallet

import (
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/toshi-app/toshi-client/internal/constants"
)

type Wallet struct {
	Version    int    `json:"version"`
	AddressHex string `json:"address"`
	PrivKeyHex string `json:"priv_key_hex"`
	CreatedAt  string `json:"created_at,omitempty"` // RFC3339

	// ChainID selects the transaction signer. Zero means pre-EIP-155 signing.
	ChainID uint64 `json:"chain_id,omitempty"`
}

func NewRandomWallet(chainID uint64) (*Wallet, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return fromKey(key, chainID), nil
}

// NewWalletFromHex imports a 32-byte secp256k1 private key.
func NewWalletFromHex(privHex string, chainID uint64) (*Wallet, error) {
	key, err := parseKey(privHex)
	if err != nil {
		return nil, err
	}
	return fromKey(key, chainID), nil
}

func fromKey(key *ecdsa.PrivateKey, chainID uint64) *Wallet {
	return &Wallet{
		Version:    constants.SchemaV1,
		AddressHex: crypto.PubkeyToAddress(key.PublicKey).Hex(),
		PrivKeyHex: hex.EncodeToString(crypto.FromECDSA(key)),
		CreatedAt:  time.Now().UTC().Format(time.RFC3339),
		ChainID:    chainID,
	}
}

func (w *Wallet) Address() common.Address {
	return common.HexToAddress(w.AddressHex)
}

func (w *Wallet) privateKey() (*ecdsa.PrivateKey, error) {
	return parseKey(w.PrivKeyHex)
}

// SignHash signs a 32-byte digest. The signature is R||S||V with V in {0,1}.
func (w *Wallet) SignHash(digest []byte) ([]byte, error) {
	if len(digest) != common.HashLength {
		return nil, fmt.Errorf("digest must be 32 bytes, got %d", len(digest))
	}
	key, err := w.privateKey()
	if err != nil {
		return nil, err
	}
	return crypto.Sign(digest, key)
}

// SignTransaction signs an unsigned transaction given as hex and returns the
// signature as hex without prefix. Payloads that decode as a transaction are
// signed over the chain signer hash; anything else over keccak256 of its bytes.
func (w *Wallet) SignTransaction(txHex string) (string, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimPrefix(txHex, "0x"), "0X"))
	if err != nil {
		return "", fmt.Errorf("decode transaction hex: %w", err)
	}
	if len(raw) == 0 {
		return "", errors.New("empty transaction")
	}

	sig, err := w.SignHash(w.digest(raw))
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(sig), nil
}

func (w *Wallet) digest(raw []byte) []byte {
	var tx gethtypes.Transaction
	if err := tx.UnmarshalBinary(raw); err == nil {
		return w.Signer().Hash(&tx).Bytes()
	}
	return crypto.Keccak256(raw)
}

// Signer is the transaction signer for the wallet's chain.
func (w *Wallet) Signer() gethtypes.Signer {
	if w.ChainID == 0 {
		return gethtypes.HomesteadSigner{}
	}
	return gethtypes.LatestSignerForChainID(new(big.Int).SetUint64(w.ChainID))
}

func parseKey(privHex string) (*ecdsa.PrivateKey, error) {
	s := strings.TrimPrefix(strings.TrimPrefix(privHex, "0x"), "0X")
	if len(s) != 64 {
		return nil, fmt.Errorf("invalid private key hex length: got %d want 64", len(s))
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid private key hex: %w", err)
	}
	key, err := crypto.ToECDSA(b)
	if err != nil {
		return nil, fmt.Errorf("to ecdsa: %w", err)
	}
	return key, nil
}
