// Package amount implements fixed-point arithmetic over decimal amount strings.
//
// Amounts travel through the system as decimal strings (the broker and ledger
// wire format). Arithmetic is done on integers scaled to stroops, the smallest
// indivisible unit (10^7 per whole token), so no binary floating point rounding
// leaks into displayed figures.
package amount

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// Decimals is the number of fractional digits of a stroop amount.
const Decimals = 7

// slippageScale is the precision of the (1 - slippage) factor.
const slippageScale = 8

var (
	ErrInvalidAmount   = errors.New("amount: invalid decimal string")
	ErrNegativeAmount  = errors.New("amount: negative amount")
	ErrInvalidSlippage = errors.New("amount: slippage must be a non-negative percentage")
)

var slippageDenominator = new(big.Int).Exp(big.NewInt(10), big.NewInt(slippageScale), nil)

// ToStroops converts a decimal string into stroops, dropping digits beyond
// the seventh decimal place.
func ToStroops(value string) (*big.Int, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, value)
	}
	if d.IsNegative() {
		return nil, ErrNegativeAmount
	}
	return d.Shift(Decimals).Floor().BigInt(), nil
}

// FromStroops formats stroops as a decimal string without trailing zeros.
func FromStroops(stroops *big.Int) string {
	if stroops == nil {
		return "0"
	}
	return decimal.NewFromBigInt(stroops, -Decimals).String()
}

// ApplySlippage returns amount reduced by slippagePercent, floored to stroop
// precision. A zero slippage returns amount untouched.
func ApplySlippage(value string, slippagePercent float64) (string, error) {
	if slippagePercent == 0 {
		return value, nil
	}
	if slippagePercent < 0 {
		return "", ErrInvalidSlippage
	}

	stroops, err := ToStroops(value)
	if err != nil {
		return "", err
	}

	factor := decimal.NewFromInt(1).
		Sub(decimal.NewFromFloat(slippagePercent).Div(decimal.NewFromInt(100))).
		Shift(slippageScale).
		Floor().
		BigInt()
	if factor.Sign() < 0 {
		factor.SetInt64(0)
	}

	adjusted := new(big.Int).Mul(stroops, factor)
	adjusted.Quo(adjusted, slippageDenominator)
	return FromStroops(adjusted), nil
}

// IsPositive reports whether value parses as a number greater than zero.
// Unparseable and empty values are not positive.
func IsPositive(value string) bool {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return false
	}
	return d.IsPositive()
}

// Greater reports whether a > b. It is false when either side does not parse.
func Greater(a, b string) bool {
	da, err := decimal.NewFromString(a)
	if err != nil {
		return false
	}
	db, err := decimal.NewFromString(b)
	if err != nil {
		return false
	}
	return da.GreaterThan(db)
}
