// Package money provides VND amount helpers and platform fee arithmetic.
//
// Amounts are int64 in the smallest currency unit (1 VND; the dong has no
// minor unit in circulation). Fee rates are decimal fractions so that a rate
// such as 0.10 never passes through a float.
package money

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// Amount is a non-negative quantity of VND.
type Amount = int64

var (
	ErrNegativeAmount = errors.New("amount must not be negative")
	ErrOverflow       = errors.New("amount overflows int64")
	ErrInvalidRate    = errors.New("fee rate must be a decimal between 0 and 1")
)

// FeeRate is the platform's cut of a settlement, in [0, 1].
type FeeRate struct {
	d decimal.Decimal
}

// ParseFeeRate parses a decimal fraction such as "0.10".
func ParseFeeRate(s string) (FeeRate, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return FeeRate{}, fmt.Errorf("%w: %q", ErrInvalidRate, s)
	}
	return NewFeeRate(d)
}

// NewFeeRate validates d as a fee rate.
func NewFeeRate(d decimal.Decimal) (FeeRate, error) {
	if d.IsNegative() || d.GreaterThan(decimal.NewFromInt(1)) {
		return FeeRate{}, fmt.Errorf("%w: %s", ErrInvalidRate, d.String())
	}
	return FeeRate{d: d}, nil
}

// MustFeeRate is ParseFeeRate for constants and tests.
func MustFeeRate(s string) FeeRate {
	r, err := ParseFeeRate(s)
	if err != nil {
		panic(err)
	}
	return r
}

// Fee returns floor(rate * amount). The result is always within [0, amount].
func (r FeeRate) Fee(amount Amount) Amount {
	if amount <= 0 {
		return 0
	}
	fee := r.d.Mul(decimal.NewFromInt(amount)).Floor().IntPart()
	if fee > amount {
		return amount
	}
	return fee
}

// Split divides amount into the platform fee and the remainder.
func (r FeeRate) Split(amount Amount) (fee, net Amount) {
	fee = r.Fee(amount)
	return fee, amount - fee
}

func (r FeeRate) String() string {
	return r.d.String()
}

// Percent renders the rate for display, e.g. "10%".
func (r FeeRate) Percent() string {
	return r.d.Shift(2).String() + "%"
}

// Add returns a+b, rejecting negative operands and overflow.
func Add(a, b Amount) (Amount, error) {
	if a < 0 || b < 0 {
		return 0, ErrNegativeAmount
	}
	if a > math.MaxInt64-b {
		return 0, ErrOverflow
	}
	return a + b, nil
}

// Max returns the larger of a and b.
func Max(a, b Amount) Amount {
	if a > b {
		return a
	}
	return b
}

// Format renders an amount with thousands separators, e.g. "100.000 ₫".
func Format(a Amount) string {
	neg := a < 0
	u := uint64(a)
	if neg {
		u = uint64(-a)
	}
	s := fmt.Sprintf("%d", u)
	out := make([]byte, 0, len(s)+len(s)/3)
	for i := range len(s) {
		if i > 0 && (len(s)-i)%3 == 0 {
			out = append(out, '.')
		}
		out = append(out, s[i])
	}
	if neg {
		return "-" + string(out) + " ₫"
	}
	return string(out) + " ₫"
}
