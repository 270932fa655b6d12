package txservice

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/quantumauth-io/quantum-go-utils/log"

	"github.com/toshi-app/toshi-client/internal/eth"
)

const (
	minGas      = 21_000
	fallbackGas = 250_000
)

var ErrInvalidParams = errors.New("txservice: invalid transaction parameters")

// RPCService builds legacy transactions locally and broadcasts them through
// a node. Signatures must come from a signer for the same chain id.
type RPCService struct {
	backend eth.Backend
}

func NewRPCService(backend eth.Backend) *RPCService {
	return &RPCService{backend: backend}
}

func (s *RPCService) CreateUnsignedTransaction(ctx context.Context, params Params) (string, error) {
	from, to, value, data, err := parseParams(params)
	if err != nil {
		return "", err
	}

	nonce, err := s.backend.PendingNonce(ctx, from)
	if err != nil {
		return "", fmt.Errorf("nonce: %w", err)
	}
	gasPrice, err := s.backend.GasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("gas price: %w", err)
	}

	tx := gethtypes.NewTx(&gethtypes.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    value,
		Gas:      s.gasLimit(ctx, from, &to, value, data),
		GasPrice: gasPrice,
		Data:     data,
	})

	bin, err := tx.MarshalBinary()
	if err != nil {
		return "", fmt.Errorf("marshal tx: %w", err)
	}
	return "0x" + hex.EncodeToString(bin), nil
}

func (s *RPCService) SendSignedTransaction(ctx context.Context, original, signature string) (Response, error) {
	raw, err := hexutil.Decode(ensure0x(original))
	if err != nil {
		return nil, fmt.Errorf("decode tx: %w", err)
	}
	var tx gethtypes.Transaction
	if err := tx.UnmarshalBinary(raw); err != nil {
		return nil, fmt.Errorf("unmarshal tx: %w", err)
	}

	sig, err := hexutil.Decode(ensure0x(signature))
	if err != nil {
		return nil, fmt.Errorf("decode signature: %w", err)
	}
	if len(sig) != 65 {
		return nil, fmt.Errorf("signature must be 65 bytes, got %d", len(sig))
	}

	chainID, err := s.backend.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("chain id: %w", err)
	}
	signer := gethtypes.LatestSignerForChainID(chainID)

	signed, err := tx.WithSignature(signer, sig)
	if err != nil {
		return nil, fmt.Errorf("with signature: %w", err)
	}
	bin, err := signed.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("marshal tx: %w", err)
	}

	hash, err := s.backend.SendRawTransaction(ctx, "0x"+hex.EncodeToString(bin))
	if err != nil {
		return Response{"error": err.Error()}, fmt.Errorf("send raw tx: %w", err)
	}
	return Response{"tx_hash": hash.Hex()}, nil
}

// Balance returns the latest wei balance of address.
func (s *RPCService) Balance(ctx context.Context, address string) (*big.Int, error) {
	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("%w: address %q", ErrInvalidParams, address)
	}
	return s.backend.Balance(ctx, common.HexToAddress(address))
}

func (s *RPCService) gasLimit(ctx context.Context, from common.Address, to *common.Address, value *big.Int, data []byte) uint64 {
	est, err := s.backend.EstimateGas(ctx, from, to, value, data)
	if err != nil {
		log.Warn("gas estimate failed, using fallback", "from", from.Hex(), "error", err)
		return fallbackGas
	}
	est += est / 10
	if est < minGas {
		est = minGas
	}
	return est
}

func parseParams(p Params) (from, to common.Address, value *big.Int, data []byte, err error) {
	fromS, toS := p.str("from"), p.str("to")
	if !common.IsHexAddress(fromS) || !common.IsHexAddress(toS) {
		return from, to, nil, nil, fmt.Errorf("%w: from %q to %q", ErrInvalidParams, fromS, toS)
	}
	from, to = common.HexToAddress(fromS), common.HexToAddress(toS)

	value = new(big.Int)
	if v := p.str("value"); v != "" {
		digits := strings.TrimPrefix(ensure0x(v), "0x")
		digits = strings.TrimPrefix(digits, "0X")
		if _, ok := value.SetString(digits, 16); !ok || value.Sign() < 0 {
			return from, to, nil, nil, fmt.Errorf("%w: value %q", ErrInvalidParams, v)
		}
	}

	if d := p.str("data"); d != "" && d != "0x" {
		data, err = hexutil.Decode(ensure0x(d))
		if err != nil {
			return from, to, nil, nil, fmt.Errorf("%w: data: %v", ErrInvalidParams, err)
		}
	}
	return from, to, value, data, nil
}

func ensure0x(s string) string {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return s
	}
	return "0x" + s
}
