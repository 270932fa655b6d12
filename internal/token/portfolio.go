package token

import (
	"context"
	"fmt"
	"math/big"
)

// Fetcher reads balances for an address.
type Fetcher interface {
	Balance(ctx context.Context, address string) (*big.Int, error)
	Tokens(ctx context.Context, address string) ([]*Token, error)
}

// Portfolio lists the native balance first, then every contract token.
// A contract entry reusing the native symbol replaces nothing: the native
// balance always occupies its slot.
func Portfolio(ctx context.Context, f Fetcher, address string) (*List, error) {
	wei, err := f.Balance(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("native balance: %w", err)
	}
	tokens, err := f.Tokens(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("tokens: %w", err)
	}

	native := NewNative(wei)
	l := NewList(native)
	for _, t := range tokens {
		if SameAsset(t, native) {
			continue
		}
		l.Upsert(t)
	}
	return l, nil
}
