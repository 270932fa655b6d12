package eth

import (
	"fmt"
	"math/big"
	"strings"

	utilsEth "github.com/quantumauth-io/quantum-go-utils/ethrpc"
)

// NetworkForChainID finds the configured network name serving chainID.
func NetworkForChainID(cfg *utilsEth.MultiConfig, chainID uint64) (string, error) {
	if cfg == nil {
		return "", fmt.Errorf("eth: nil config")
	}
	want := strings.ToLower(utilsEth.BigToHexQuantity(new(big.Int).SetUint64(chainID)))

	for name, n := range cfg.Networks {
		if n.ChainID == chainID {
			return name, nil
		}
		if n.ChainIDHex != "" && strings.ToLower(utilsEth.NormalizeHex0x(n.ChainIDHex)) == want {
			return name, nil
		}
	}
	return "", fmt.Errorf("eth: chain %d not configured", chainID)
}
