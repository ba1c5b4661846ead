// Package taxcalc derives DPP (tax base), PPN (tax) and gross amounts for a
// single tax rate per document. Every result satisfies Base+Tax == Gross.
//
// Rounding is half away from zero to the whole Rupiah and is computed on exact
// integer fractions, so a derivation followed by its reverse never drifts.
package taxcalc

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/punchamoorthee/procurefin/internal/domain"
)

var (
	hundred    = decimal.NewFromInt(100)
	bigHundred = big.NewInt(100)
)

// Policy says whether stated prices already contain tax.
type Policy struct {
	Percent   decimal.Decimal `json:"percent"`
	Inclusive bool            `json:"inclusive"`
}

// Breakdown is a DPP/PPN/gross triple.
type Breakdown struct {
	Base  domain.Money `json:"base"`
	Tax   domain.Money `json:"tax"`
	Gross domain.Money `json:"gross"`
}

func validatePercent(percent decimal.Decimal, inclusive bool) error {
	if percent.IsNegative() {
		return fmt.Errorf("%w: percent %s is negative", domain.ErrInconsistentTax, percent)
	}
	if inclusive && percent.GreaterThan(hundred) {
		return fmt.Errorf("%w: inclusive percent %s exceeds 100", domain.ErrInconsistentTax, percent)
	}
	return nil
}

func validateAmount(name string, v domain.Money) error {
	if v < 0 {
		return fmt.Errorf("%w: %s %d is negative", domain.ErrInvalidAmount, name, v)
	}
	return nil
}

// taxOn returns round(base * percent / 100).
func taxOn(base domain.Money, percent decimal.Decimal) (domain.Money, error) {
	num, den := domain.Fraction(percent)
	return domain.MulDivRound(base, num, new(big.Int).Mul(den, bigHundred))
}

// baseOf returns round(gross / (1 + percent/100)).
func baseOf(gross domain.Money, percent decimal.Decimal) (domain.Money, error) {
	num, den := domain.Fraction(percent)
	scaled := new(big.Int).Mul(den, bigHundred)
	return domain.MulDivRound(gross, scaled, new(big.Int).Add(scaled, num))
}

// FromBase is the forward derivation from a DPP. An inclusive policy charges
// no separate tax line: gross equals the base as stated.
func FromBase(base domain.Money, policy Policy) (Breakdown, error) {
	if err := validateAmount("base", base); err != nil {
		return Breakdown{}, err
	}
	if err := validatePercent(policy.Percent, policy.Inclusive); err != nil {
		return Breakdown{}, err
	}
	if policy.Inclusive {
		return Breakdown{Base: base, Tax: 0, Gross: base}, nil
	}
	tax, err := taxOn(base, policy.Percent)
	if err != nil {
		return Breakdown{}, err
	}
	gross, err := domain.AddMoney(base, tax)
	if err != nil {
		return Breakdown{}, err
	}
	return Breakdown{Base: base, Tax: tax, Gross: gross}, nil
}

// FromGross is the reverse derivation from a target gross such as an
// outstanding balance. For an exclusive rate the gross is taken as the base and
// tax is added on top; callers must charge the returned Gross, not the input.
func FromGross(gross domain.Money, percent decimal.Decimal, inclusive bool) (Breakdown, error) {
	if err := validateAmount("gross", gross); err != nil {
		return Breakdown{}, err
	}
	if err := validatePercent(percent, inclusive); err != nil {
		return Breakdown{}, err
	}
	if inclusive {
		base, err := baseOf(gross, percent)
		if err != nil {
			return Breakdown{}, err
		}
		return Breakdown{Base: base, Tax: gross - base, Gross: gross}, nil
	}
	tax, err := taxOn(gross, percent)
	if err != nil {
		return Breakdown{}, err
	}
	total, err := domain.AddMoney(gross, tax)
	if err != nil {
		return Breakdown{}, err
	}
	return Breakdown{Base: gross, Tax: tax, Gross: total}, nil
}

// Proportional derives the breakdown of a partial settlement of a document
// whose full breakdown is known. Settling the whole total returns the known
// breakdown untouched; amounts are whole Rupiah so "within half a unit" is
// equality here.
func Proportional(known Breakdown, percent decimal.Decimal, inclusive bool, target domain.Money) (Breakdown, error) {
	checks := []struct {
		name string
		v    domain.Money
	}{
		{"known base", known.Base}, {"known tax", known.Tax}, {"known total", known.Gross}, {"target", target},
	}
	for _, c := range checks {
		if err := validateAmount(c.name, c.v); err != nil {
			return Breakdown{}, err
		}
	}
	if err := validatePercent(percent, inclusive); err != nil {
		return Breakdown{}, err
	}
	if target == known.Gross {
		return known, nil
	}

	var (
		base domain.Money
		err  error
	)
	if inclusive && known.Gross > 0 {
		base, err = domain.MulDivRound(known.Base, big.NewInt(int64(target)), big.NewInt(int64(known.Gross)))
	} else {
		base, err = baseOf(target, percent)
	}
	if err != nil {
		return Breakdown{}, err
	}
	return Breakdown{Base: base, Tax: target - base, Gross: target}, nil
}

// Line is a document line item.
type Line struct {
	Qty       decimal.Decimal `json:"qty"`
	UnitPrice domain.Money    `json:"unit_price"`
	Discount  domain.Money    `json:"discount"`
}

// Amount is round(qty * unit price) less the line discount.
func (l Line) Amount() (domain.Money, error) {
	if l.Qty.IsNegative() {
		return 0, fmt.Errorf("%w: qty %s is negative", domain.ErrInvalidAmount, l.Qty)
	}
	if err := validateAmount("unit price", l.UnitPrice); err != nil {
		return 0, err
	}
	if err := validateAmount("discount", l.Discount); err != nil {
		return 0, err
	}
	num, den := domain.Fraction(l.Qty)
	gross, err := domain.MulDivRound(l.UnitPrice, num, den)
	if err != nil {
		return 0, err
	}
	if l.Discount > gross {
		return 0, fmt.Errorf("%w: discount %d exceeds line amount %d", domain.ErrInvalidAmount, l.Discount, gross)
	}
	return gross - l.Discount, nil
}

// FromLines sums line items into a base and derives forward from it.
func FromLines(lines []Line, policy Policy) (Breakdown, error) {
	var base domain.Money
	for i, l := range lines {
		amt, err := l.Amount()
		if err != nil {
			return Breakdown{}, fmt.Errorf("line %d: %w", i+1, err)
		}
		if base, err = domain.AddMoney(base, amt); err != nil {
			return Breakdown{}, fmt.Errorf("line %d: %w", i+1, err)
		}
	}
	return FromBase(base, policy)
}
