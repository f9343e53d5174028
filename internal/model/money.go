package model

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidAmount is returned for price strings that are not non-negative decimals.
var ErrInvalidAmount = errors.New("invalid amount")

// DollarsToCents converts a decimal currency string (e.g. "19.99") to minor
// units (1999). Fractions beyond two digits round half up on the third digit.
func DollarsToCents(dollars string) (int64, error) {
	s := strings.TrimSpace(dollars)
	whole, frac, hasFrac := strings.Cut(s, ".")
	if whole == "" && (!hasFrac || frac == "") {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, dollars)
	}
	if !allDigits(whole) || !allDigits(frac) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, dollars)
	}

	var units int64
	if whole != "" {
		n, err := strconv.ParseInt(whole, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, dollars)
		}
		units = n
	}

	padded := frac + "00"
	cents, _ := strconv.ParseInt(padded[:2], 10, 64)
	if len(frac) > 2 && frac[2] >= '5' {
		cents++
	}

	return units*100 + cents, nil
}

// CentsToDollars formats minor units as a two-decimal string (1999 -> "19.99").
func CentsToDollars(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
