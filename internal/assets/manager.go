// Package assets reads ERC-20 balances for the configured token contracts
// straight from the node.
package assets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/quantumauth-io/quantum-go-utils/log"

	"github.com/toshi-app/toshi-client/internal/constants"
	"github.com/toshi-app/toshi-client/internal/token"
	"github.com/toshi-app/toshi-client/internal/utils"
)

// Asset is a token contract's metadata.
type Asset struct {
	Address  string `json:"address"`
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
	Name     string `json:"name,omitempty"`
}

// erc20ABI is the read-only part of ERC-20 the wallet needs.
const erc20ABI = `[
{"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"decimals","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]},
{"type":"function","name":"symbol","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
{"type":"function","name":"name","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]}
]`

var erc20 = mustParseABI(erc20ABI)

func mustParseABI(s string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic(fmt.Sprintf("assets: parse erc20 abi: %v", err))
	}
	return parsed
}

// MetadataStore caches token metadata between runs. kvstore.Store fits.
type MetadataStore interface {
	Object(ctx context.Context, key, collection string) ([]byte, bool, error)
	Insert(ctx context.Context, object []byte, key, collection string) error
}

type Manager struct {
	caller    bind.ContractCaller
	contracts []common.Address
	store     MetadataStore

	mu   sync.Mutex
	meta map[common.Address]Asset
}

// NewManager reads balances of contracts through caller. store may be nil.
func NewManager(caller bind.ContractCaller, contracts []common.Address, store MetadataStore) (*Manager, error) {
	if caller == nil {
		return nil, errors.New("assets: contract caller is required")
	}
	return &Manager{
		caller:    caller,
		contracts: append([]common.Address(nil), contracts...),
		store:     store,
		meta:      map[common.Address]Asset{},
	}, nil
}

func (m *Manager) Contracts() []common.Address {
	return append([]common.Address(nil), m.contracts...)
}

// Tokens returns owner's balance of every configured contract. Contracts
// that fail to answer are skipped.
func (m *Manager) Tokens(ctx context.Context, owner string) ([]*token.Token, error) {
	if !common.IsHexAddress(owner) {
		return nil, fmt.Errorf("assets: invalid owner %q", owner)
	}
	ownerAddr := common.HexToAddress(owner)

	out := make([]*token.Token, 0, len(m.contracts))
	for _, c := range m.contracts {
		a, err := m.Asset(ctx, c)
		if err != nil {
			log.Warn("skipping token without metadata", "contract", c.Hex(), "error", err)
			continue
		}
		bal, err := m.BalanceOf(ctx, c, ownerAddr)
		if err != nil {
			log.Warn("skipping token balance", "contract", c.Hex(), "error", err)
			continue
		}
		out = append(out, token.NewContract(a.Name, a.Symbol, utils.BigToHex(bal), int(a.Decimals), a.Address, ""))
	}
	return out, nil
}

// BalanceOf returns owner's raw balance of contract. The zero address holds
// nothing and is not looked up.
func (m *Manager) BalanceOf(ctx context.Context, contract, owner common.Address) (*big.Int, error) {
	if owner == (common.Address{}) {
		return big.NewInt(0), nil
	}
	out, err := m.call(ctx, contract, "balanceOf", owner)
	if err != nil {
		return nil, err
	}
	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}

// Asset returns contract's metadata from memory, the store or the chain,
// in that order.
func (m *Manager) Asset(ctx context.Context, contract common.Address) (Asset, error) {
	m.mu.Lock()
	a, ok := m.meta[contract]
	m.mu.Unlock()
	if ok {
		return a, nil
	}

	if a, ok := m.loadStored(ctx, contract); ok {
		m.remember(a, contract)
		return a, nil
	}

	a, err := m.FetchAsset(ctx, contract)
	if err != nil {
		return Asset{}, err
	}
	m.remember(a, contract)
	m.saveStored(ctx, contract, a)
	return a, nil
}

// FetchAsset asks the contract for its symbol, decimals and name. A missing
// name is tolerated.
func (m *Manager) FetchAsset(ctx context.Context, contract common.Address) (Asset, error) {
	out, err := m.call(ctx, contract, "symbol")
	if err != nil {
		return Asset{}, err
	}
	sym := *abi.ConvertType(out[0], new(string)).(*string)

	out, err = m.call(ctx, contract, "decimals")
	if err != nil {
		return Asset{}, err
	}
	dec := *abi.ConvertType(out[0], new(uint8)).(*uint8)

	name := ""
	if out, err := m.call(ctx, contract, "name"); err == nil {
		name = *abi.ConvertType(out[0], new(string)).(*string)
	}

	return Asset{
		Address:  contract.Hex(),
		Symbol:   sym,
		Decimals: dec,
		Name:     name,
	}, nil
}

func (m *Manager) call(ctx context.Context, contract common.Address, method string, params ...any) ([]any, error) {
	bound := bind.NewBoundContract(contract, erc20, m.caller, nil, nil)

	var out []any
	if err := bound.Call(&bind.CallOpts{Context: ctx}, &out, method, params...); err != nil {
		return nil, fmt.Errorf("assets: %s on %s: %w", method, contract.Hex(), err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("assets: %s on %s: empty result", method, contract.Hex())
	}
	return out, nil
}

func (m *Manager) remember(a Asset, contract common.Address) {
	m.mu.Lock()
	m.meta[contract] = a
	m.mu.Unlock()
}

func (m *Manager) loadStored(ctx context.Context, contract common.Address) (Asset, bool) {
	if m.store == nil {
		return Asset{}, false
	}
	b, ok, err := m.store.Object(ctx, contract.Hex(), constants.AssetsCollection)
	if err != nil || !ok {
		return Asset{}, false
	}
	var a Asset
	if err := json.Unmarshal(b, &a); err != nil {
		log.Warn("ignoring stored asset", "contract", contract.Hex(), "error", err)
		return Asset{}, false
	}
	return a, true
}

func (m *Manager) saveStored(ctx context.Context, contract common.Address, a Asset) {
	if m.store == nil {
		return
	}
	b, err := json.Marshal(a)
	if err != nil {
		return
	}
	if err := m.store.Insert(ctx, b, contract.Hex(), constants.AssetsCollection); err != nil {
		log.Warn("store asset metadata failed", "contract", contract.Hex(), "error", err)
	}
}
