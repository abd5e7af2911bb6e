package utils

import (
	"strings"

	"github.com/shopspring/decimal"
)

// FormatCurrency memformat nominal decimal dengan pemisah ribuan titik dan desimal koma
// Example: 15000.50 -> "Rp 15.000,50"
func FormatCurrency(symbol string, amount decimal.Decimal) string {
	negative := amount.IsNegative()
	formatted := amount.Abs().StringFixed(2)

	// Pisahkan bagian desimal
	parts := strings.SplitN(formatted, ".", 2)
	integerPart := parts[0]
	decimalPart := parts[1]

	// Tambahkan pemisah ribuan
	var groups []string
	for i := len(integerPart); i > 0; i -= 3 {
		start := i - 3
		if start < 0 {
			start = 0
		}
		groups = append([]string{integerPart[start:i]}, groups...)
	}

	out := strings.Join(groups, ".")
	if decimalPart != "00" {
		out += "," + decimalPart
	}
	if negative {
		out = "-" + out
	}
	if symbol == "" {
		return out
	}
	return symbol + " " + out
}
