// Package eth wires the JSON-RPC client and exposes the narrow backend the
// transaction builder needs.
package eth

import (
	"context"
	"encoding/hex"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind/v2"
	"github.com/ethereum/go-ethereum/common"
	utilsEth "github.com/quantumauth-io/quantum-go-utils/ethrpc"
)

// Backend is what building and broadcasting a transaction needs from a node.
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	PendingNonce(ctx context.Context, addr common.Address) (uint64, error)
	GasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, from common.Address, to *common.Address, value *big.Int, data []byte) (uint64, error)
	SendRawTransaction(ctx context.Context, rawHex string) (common.Hash, error)
	Balance(ctx context.Context, addr common.Address) (*big.Int, error)
}

func NewFromConfig(cfg *utilsEth.MultiConfig) (*utilsEth.Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("eth: nil config")
	}
	if len(cfg.Networks) == 0 {
		return nil, fmt.Errorf("eth: no networks configured")
	}
	return utilsEth.New(cfg)
}

// RPC adapts the multi-network client to Backend.
type RPC struct {
	c *utilsEth.Client
}

func NewRPC(c *utilsEth.Client) *RPC { return &RPC{c: c} }

// Select switches the client to network (and rpc, if non-empty) and dials it.
// Call during startup only: the client's active network is shared state.
func (r *RPC) Select(ctx context.Context, network, rpc string) error {
	if err := r.c.UseNetwork(network); err != nil {
		return fmt.Errorf("eth: use network %q: %w", network, err)
	}
	if rpc != "" {
		if err := r.c.UseRPC(rpc); err != nil {
			return fmt.Errorf("eth: use rpc %q: %w", rpc, err)
		}
	}
	if err := r.c.EnsureBackend(ctx); err != nil {
		return fmt.Errorf("eth: ensure backend for %q: %w", network, err)
	}
	return nil
}

func (r *RPC) ChainID(ctx context.Context) (*big.Int, error) {
	return r.c.ChainID(ctx)
}

func (r *RPC) PendingNonce(ctx context.Context, addr common.Address) (uint64, error) {
	n, err := r.c.GetTransactionCount(ctx, addr.Hex(), utilsEth.BlockPending)
	if err != nil {
		return 0, err
	}
	return n.Uint64(), nil
}

func (r *RPC) GasPrice(ctx context.Context) (*big.Int, error) {
	return r.c.GasPrice(ctx)
}

func (r *RPC) EstimateGas(ctx context.Context, from common.Address, to *common.Address, value *big.Int, data []byte) (uint64, error) {
	msg := utilsEth.CallMsg{
		From:  from.Hex(),
		Value: utilsEth.BigToHexQuantity(value),
	}
	if to != nil {
		msg.To = to.Hex()
	}
	if len(data) > 0 {
		msg.Data = "0x" + hex.EncodeToString(data)
	}
	est, err := r.c.EstimateGas(ctx, msg)
	if err != nil {
		return 0, err
	}
	return est.Uint64(), nil
}

func (r *RPC) SendRawTransaction(ctx context.Context, rawHex string) (common.Hash, error) {
	return r.c.SendRawTransaction(ctx, rawHex)
}

func (r *RPC) Balance(ctx context.Context, addr common.Address) (*big.Int, error) {
	return r.c.GetBalance(ctx, addr.Hex(), utilsEth.BlockLatest)
}

// ContractCaller is the selected network's backend for read-only contract
// calls. Valid after Select.
func (r *RPC) ContractCaller() bind.ContractCaller {
	return r.c.Backend()
}
