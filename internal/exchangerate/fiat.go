package exchangerate

import (
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var currencySymbols = map[string]string{
	"USD": "$",
	"EUR": "€",
	"GBP": "£",
	"JPY": "¥",
	"CAD": "$",
	"AUD": "$",
}

var printer = message.NewPrinter(language.AmericanEnglish)

// FormatFiat renders amount with two fraction digits, grouped thousands and
// the ISO code, e.g. "$1,234.56 USD".
func FormatFiat(amount decimal.Decimal, currency string) string {
	currency = strings.ToUpper(strings.TrimSpace(currency))

	rounded := amount.Round(2)
	sign := ""
	if rounded.IsNegative() {
		sign = "-"
		rounded = rounded.Neg()
	}

	fixed := rounded.StringFixed(2)
	intPart, frac, _ := strings.Cut(fixed, ".")
	grouped := printer.Sprintf("%d", rounded.IntPart())
	if rounded.IntPart() == 0 {
		grouped = intPart
	}

	out := sign + currencySymbols[currency] + grouped + "." + frac
	if currency != "" {
		out += " " + currency
	}
	return out
}
