package utils

import (
	"math/big"
	"strings"
)

// Symbols holds the glyphs used when rendering decimal strings.
type Symbols struct {
	DecimalSeparator string
	Zero             string
}

var DefaultSymbols = Symbols{DecimalSeparator: ".", Zero: "0"}

// ParseHexBig parses a base-16 non-negative integer. An optional 0x prefix is
// accepted. Empty or malformed input yields zero, never an error.
func ParseHexBig(s string) *big.Int {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && (s[:2] == "0x" || s[:2] == "0X") {
		s = s[2:]
	}
	if s == "" {
		return new(big.Int)
	}
	n, ok := new(big.Int).SetString(s, 16)
	if !ok || n.Sign() < 0 {
		return new(big.Int)
	}
	return n
}

// FormatFixedPoint renders a hex integer as a decimal string where the last
// `decimals` digits are fractional.
//
// Examples:
//
//	FormatFixedPoint("5", 2)  -> "0.05"
//	FormatFixedPoint("fa", 2) -> "2.50"
//	FormatFixedPoint("", 3)   -> "0.000"
//	FormatFixedPoint("ff", 0) -> "255"
func FormatFixedPoint(hex string, decimals int) string {
	return FormatFixedPointWith(hex, decimals, DefaultSymbols)
}

// FormatFixedPointWith is FormatFixedPoint with locale glyphs.
func FormatFixedPointWith(hex string, decimals int, sym Symbols) string {
	digits := ParseHexBig(hex).String()

	if decimals <= 0 {
		return digits
	}

	zero := sym.Zero
	if zero == "" {
		zero = "0"
	}
	sep := sym.DecimalSeparator
	if sep == "" {
		sep = "."
	}

	// at least one integer digit in front of the separator
	if len(digits) < decimals+1 {
		digits = strings.Repeat("0", decimals+1-len(digits)) + digits
	}

	split := len(digits) - decimals
	intPart := digits[:split]
	fracPart := digits[split:]

	if zero != "0" {
		intPart = strings.ReplaceAll(intPart, "0", zero)
		fracPart = strings.ReplaceAll(fracPart, "0", zero)
	}
	return intPart + sep + fracPart
}

// FormatUnitsTrim converts a token balance to a human string:
// - divides by 10^decimals
// - trims to maxFrac decimal places
// - removes trailing zeros
//
// Examples:
//
//	balance=1234500000000000000, decimals=18 -> "1.2345"
//	balance=1000000000000000000, decimals=18 -> "1"
//	balance=1, decimals=18, maxFrac=5        -> "0"
func FormatUnitsTrim(amount *big.Int, decimals uint8, maxFrac int) string {
	if amount == nil || amount.Sign() == 0 {
		return "0"
	}

	base := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)

	intPart := new(big.Int).Div(amount, base)
	fracPart := new(big.Int).Mod(amount, base)

	if fracPart.Sign() == 0 || maxFrac <= 0 {
		return intPart.String()
	}

	fracStr := fracPart.String()
	if len(fracStr) < int(decimals) {
		fracStr = strings.Repeat("0", int(decimals)-len(fracStr)) + fracStr
	}

	if len(fracStr) > maxFrac {
		fracStr = fracStr[:maxFrac]
	}

	fracStr = strings.TrimRight(fracStr, "0")
	if fracStr == "" {
		return intPart.String()
	}

	return intPart.String() + "." + fracStr
}

// BigToHex renders n as lowercase hex without a 0x prefix.
func BigToHex(n *big.Int) string {
	if n == nil || n.Sign() <= 0 {
		return "0"
	}
	return n.Text(16)
}
