// Package utils provides small shared helpers.
package utils

import (
	"strings"

	"github.com/shopspring/decimal"
)

// FormatMoney renders an amount with thousands separators and two decimal
// places, followed by the currency code, e.g. "12,500.00 EUR".
func FormatMoney(amount decimal.Decimal, currency string) string {
	s := amount.StringFixed(2)

	negative := strings.HasPrefix(s, "-")
	if negative {
		s = s[1:]
	}

	parts := strings.SplitN(s, ".", 2)
	intPart := groupThousands(parts[0])

	out := intPart + "." + parts[1]
	if negative {
		out = "-" + out
	}
	if currency != "" {
		out += " " + currency
	}
	return out
}

func groupThousands(s string) string {
	n := len(s)
	if n <= 3 {
		return s
	}
	var b strings.Builder
	lead := n % 3
	if lead > 0 {
		b.WriteString(s[:lead])
	}
	for i := lead; i < n; i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}
