// Package token models wallet balances for the native asset and contract
// tokens, and derives their display strings.
package token

import (
	"encoding/json"
	"math/big"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/toshi-app/toshi-client/internal/constants"
	"github.com/toshi-app/toshi-client/internal/exchangerate"
	"github.com/toshi-app/toshi-client/internal/utils"
)

// Kind tags which variant a Token is.
type Kind uint8

const (
	KindContract Kind = iota
	KindNative
)

func (k Kind) String() string {
	switch k {
	case KindNative:
		return "native"
	default:
		return "contract"
	}
}

// Token is an individual wallet balance.
type Token struct {
	Name            string
	Symbol          string
	Decimals        int
	ContractAddress string
	Icon            string

	kind     Kind
	rawValue string
	wei      *big.Int // native only

	mu    sync.Mutex
	cache displayCache
}

type displayCache struct {
	rawValue string
	decimals int
	value    string
	valid    bool
}

// NewContract builds a contract token from a raw hex balance.
func NewContract(name, symbol, rawHex string, decimals int, contractAddress, icon string) *Token {
	if decimals < 0 {
		decimals = 0
	}
	return &Token{
		Name:            name,
		Symbol:          symbol,
		Decimals:        decimals,
		ContractAddress: contractAddress,
		Icon:            icon,
		kind:            KindContract,
		rawValue:        normalizeRaw(rawHex),
	}
}

// NewNative builds the chain's base currency balance from a wei amount.
func NewNative(wei *big.Int) *Token {
	w := new(big.Int)
	if wei != nil && wei.Sign() > 0 {
		w.Set(wei)
	}
	return &Token{
		Name:            constants.NativeName,
		Symbol:          constants.NativeSymbol,
		Decimals:        constants.NativeDisplayDecimals,
		ContractAddress: "",
		Icon:            constants.NativeIcon,
		kind:            KindNative,
		rawValue:        utils.BigToHex(w),
		wei:             w,
	}
}

func normalizeRaw(s string) string {
	if len(s) >= 2 && (s[:2] == "0x" || s[:2] == "0X") {
		return s[2:]
	}
	return s
}

func (t *Token) Kind() Kind { return t.kind }

// RawValue is the hex balance without a 0x prefix.
func (t *Token) RawValue() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rawValue
}

// Wei returns a copy of the native balance; nil for contract tokens.
func (t *Token) Wei() *big.Int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.wei == nil {
		return nil
	}
	return new(big.Int).Set(t.wei)
}

// SetRawValue replaces the balance and drops the cached display string.
func (t *Token) SetRawValue(rawHex string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rawValue = normalizeRaw(rawHex)
	if t.kind == KindNative {
		t.wei = utils.ParseHexBig(t.rawValue)
	}
	t.cache.valid = false
}

// DisplayValue derives the human readable balance. Contract tokens render the
// raw fixed-point value; the native asset is trimmed for readability.
func (t *Token) DisplayValue() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cache.valid && t.cache.rawValue == t.rawValue && t.cache.decimals == t.Decimals {
		return t.cache.value
	}

	var v string
	switch t.kind {
	case KindNative:
		v = utils.FormatUnitsTrim(t.wei, constants.NativeDecimals, constants.NativeDisplayDecimals)
	default:
		v = utils.FormatFixedPoint(t.rawValue, t.Decimals)
	}

	t.cache = displayCache{rawValue: t.rawValue, decimals: t.Decimals, value: v, valid: true}
	return v
}

func (t *Token) SupportsFiatConversion() bool { return t.kind == KindNative }

// ConvertToFiat prices the balance with the current exchange rate. Contract
// tokens have no pricing source; the native asset reports false until a rate
// is available.
func (t *Token) ConvertToFiat(src exchangerate.Source) (string, bool) {
	if t.kind != KindNative || src == nil {
		return "", false
	}
	rate, ok := src.Rate()
	if !ok {
		return "", false
	}

	ether := decimal.NewFromBigInt(t.Wei(), -constants.NativeDecimals)
	return exchangerate.FormatFiat(ether.Mul(rate), src.Currency()), true
}

func (t *Token) IsEther() bool { return t.Symbol == constants.NativeSymbol }

// SameAsset reports whether a and b occupy the same wallet slot.
func SameAsset(a, b *Token) bool {
	if a == nil || b == nil {
		return false
	}
	return a.Symbol == b.Symbol
}

// LocalIcon returns the bundled icon name, if any.
func (t *Token) LocalIcon() (string, bool) {
	if t.Icon == "" {
		return "", false
	}
	return t.Icon, true
}

// Wallet list item accessors.

func (t *Token) Title() string            { return t.Name }
func (t *Token) Subtitle() string         { return t.Symbol }
func (t *Token) IconPath() string         { return t.Icon }
func (t *Token) Details() string          { return t.DisplayValue() }
func (t *Token) UniqueIdentifier() string { return t.Symbol }

type tokenJSON struct {
	Name            string  `json:"name"`
	Symbol          string  `json:"symbol"`
	Value           string  `json:"value"`
	Decimals        int     `json:"decimals"`
	ContractAddress string  `json:"contract_address"`
	Icon            *string `json:"icon,omitempty"`
}

func (t *Token) MarshalJSON() ([]byte, error) {
	out := tokenJSON{
		Name:            t.Name,
		Symbol:          t.Symbol,
		Value:           t.RawValue(),
		Decimals:        t.Decimals,
		ContractAddress: t.ContractAddress,
	}
	if t.Icon != "" {
		icon := t.Icon
		out.Icon = &icon
	}
	return json.Marshal(out)
}

// UnmarshalJSON always yields a contract token; native balances are built
// from wei with NewNative.
func (t *Token) UnmarshalJSON(b []byte) error {
	var in tokenJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	icon := ""
	if in.Icon != nil {
		icon = *in.Icon
	}
	nt := NewContract(in.Name, in.Symbol, in.Value, in.Decimals, in.ContractAddress, icon)
	t.Name, t.Symbol, t.Decimals, t.ContractAddress, t.Icon = nt.Name, nt.Symbol, nt.Decimals, nt.ContractAddress, nt.Icon
	t.kind = nt.kind
	t.rawValue = nt.rawValue
	t.wei = nil
	t.cache = displayCache{}
	return nil
}

// Results decodes a list of tokens under the "tokens" key.
type Results struct {
	Tokens []*Token `json:"tokens"`
}
