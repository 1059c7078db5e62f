// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package catalog

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/currency"
)

// ToMinor converts a decimal price like "49.99" into the currency's smallest
// unit. Prices with more fraction digits than the currency allows are rejected
// rather than rounded.
func ToMinor(price, code string) (int64, string, error) {
	unit, err := currency.ParseISO(code)
	if err != nil {
		return 0, "", fmt.Errorf("currency %q: %w", code, err)
	}
	scale, _ := currency.Standard.Rounding(unit)

	price = strings.TrimSpace(price)
	whole, frac, _ := strings.Cut(price, ".")
	if whole == "" || strings.HasPrefix(whole, "-") || strings.HasPrefix(whole, "+") {
		return 0, "", fmt.Errorf("price %q: must be a non-negative decimal", price)
	}
	if len(frac) > scale {
		return 0, "", fmt.Errorf("price %q: %s allows %d fraction digits", price, unit, scale)
	}
	frac += strings.Repeat("0", scale-len(frac))

	minor, err := strconv.ParseInt(whole+frac, 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("price %q: %w", price, err)
	}
	return minor, strings.ToLower(unit.String()), nil
}

// FormatMinor renders a minor-unit amount back to its decimal form.
func FormatMinor(amount int64, code string) string {
	unit, err := currency.ParseISO(code)
	if err != nil {
		return strconv.FormatInt(amount, 10)
	}
	scale, _ := currency.Standard.Rounding(unit)
	if scale == 0 {
		return strconv.FormatInt(amount, 10)
	}
	s := fmt.Sprintf("%0*d", scale+1, amount)
	return s[:len(s)-scale] + "." + s[len(s)-scale:]
}
