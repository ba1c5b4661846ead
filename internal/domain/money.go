package domain

import (
	"bytes"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Money is an amount in whole Rupiah. There are no sub-units.
type Money int64

// ParseMoney accepts a base-10 integer string. Fractions, exponents, thousands
// separators and negative values are rejected rather than coerced.
func ParseMoney(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty amount", ErrInvalidAmount)
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a whole amount", ErrInvalidAmount, s)
	}
	if v < 0 {
		return 0, fmt.Errorf("%w: %q is negative", ErrInvalidAmount, s)
	}
	return Money(v), nil
}

// UnmarshalJSON takes either a JSON integer or an integer string.
func (m *Money) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if string(b) == "null" {
		return nil
	}
	v, err := ParseMoney(strings.Trim(string(b), `"`))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

func (m Money) String() string {
	return strconv.FormatInt(int64(m), 10)
}

// Fraction splits d into an exact integer ratio num/den with den > 0.
func Fraction(d decimal.Decimal) (num, den *big.Int) {
	num = new(big.Int).Set(d.Coefficient())
	exp := d.Exponent()
	if exp >= 0 {
		num.Mul(num, new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(exp)), nil))
		return num, big.NewInt(1)
	}
	return num, new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(-exp)), nil)
}

// RoundDiv returns num/den rounded half away from zero. den must be non-zero.
func RoundDiv(num, den *big.Int) *big.Int {
	n := new(big.Int).Set(num)
	d := new(big.Int).Set(den)
	if d.Sign() < 0 {
		n.Neg(n)
		d.Neg(d)
	}
	neg := n.Sign() < 0
	n.Abs(n)

	// floor((2n + d) / 2d) rounds .5 up on the magnitude.
	q := new(big.Int).Lsh(n, 1)
	q.Add(q, d)
	q.Quo(q, new(big.Int).Lsh(d, 1))
	if neg {
		q.Neg(q)
	}
	return q
}

// MulDivRound computes round(a * num / den) half away from zero. A result
// outside the int64 range is ErrInvalidAmount.
func MulDivRound(a Money, num, den *big.Int) (Money, error) {
	n := new(big.Int).Mul(big.NewInt(int64(a)), num)
	q := RoundDiv(n, den)
	if !q.IsInt64() {
		return 0, fmt.Errorf("%w: %d * %s / %s overflows", ErrInvalidAmount, a, num, den)
	}
	return Money(q.Int64()), nil
}

// AddMoney returns a+b for non-negative amounts, or ErrInvalidAmount when the
// sum does not fit.
func AddMoney(a, b Money) (Money, error) {
	if b > 0 && a > math.MaxInt64-b {
		return 0, fmt.Errorf("%w: %d + %d overflows", ErrInvalidAmount, a, b)
	}
	return a + b, nil
}
