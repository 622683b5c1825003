package units

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
)

var ErrInvalidAmount = errors.New("invalid fixed-point amount")

// ToBaseUnits converts a decimal string such as "0.01" into the smallest unit
// of a token with the given number of decimals. Amounts with more fractional
// digits than the token supports are rejected rather than rounded.
func ToBaseUnits(amount string, decimals uint8) (*big.Int, error) {
	amount = strings.TrimSpace(amount)
	if amount == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidAmount)
	}

	whole, frac, _ := strings.Cut(amount, ".")
	if whole == "" {
		whole = "0"
	}
	if len(frac) > int(decimals) {
		return nil, fmt.Errorf("%w: %q has more than %d decimals", ErrInvalidAmount, amount, decimals)
	}
	if !digitsOnly(whole) || !digitsOnly(frac) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, amount)
	}

	digits := whole + frac + strings.Repeat("0", int(decimals)-len(frac))
	v, ok := new(big.Int).SetString(digits, 10)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, amount)
	}
	return v, nil
}

// Validate reports whether amount is a well-formed non-negative decimal.
func Validate(amount string) error {
	_, err := ToBaseUnits(amount, 77)
	return err
}

func digitsOnly(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
