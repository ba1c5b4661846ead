// Package proration distributes a whole-Rupiah total across weighted parties
// with the largest-remainder (Hamilton) method.
package proration

import (
	"fmt"
	"math/big"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/punchamoorthee/procurefin/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// Party is a participant with a percentage weight.
type Party struct {
	ID     string          `json:"id"`
	Weight decimal.Decimal `json:"weight"`
}

// Share is a party's allocated amount.
type Share struct {
	ID     string       `json:"id"`
	Amount domain.Money `json:"amount"`
}

type slot struct {
	idx    int
	floor  int64
	remain *big.Rat
}

// Allocate splits total so that the shares sum to total exactly. Shares come
// back in input order.
//
// Each party's exact share is total*weight/100. When the weights add up to more
// than 100 they are read as relative weights and divided by their sum instead,
// so the floors never overshoot the total. Leftover units go one at a time to
// parties ordered by remainder desc, weight desc, id asc; leftovers larger than
// the party count (weights under 100) take repeated passes in that order.
func Allocate(total domain.Money, parties []Party) ([]Share, error) {
	if total < 0 {
		return nil, fmt.Errorf("%w: total %d is negative", domain.ErrInvalidAmount, total)
	}
	if len(parties) == 0 {
		if total == 0 {
			return []Share{}, nil
		}
		return nil, fmt.Errorf("%w: total %d", domain.ErrNoParties, total)
	}

	sum := decimal.Zero
	for _, p := range parties {
		if p.Weight.IsNegative() {
			return nil, fmt.Errorf("%w: weight %s for %q is negative", domain.ErrInvalidAmount, p.Weight, p.ID)
		}
		sum = sum.Add(p.Weight)
	}
	scale := hundred
	if sum.GreaterThan(hundred) {
		scale = sum
	}
	scaleNum, scaleDen := domain.Fraction(scale)

	t := big.NewInt(int64(total))
	slots := make([]slot, len(parties))
	var floored int64
	for i, p := range parties {
		wNum, wDen := domain.Fraction(p.Weight)
		// exact = total * (wNum/wDen) / (scaleNum/scaleDen)
		num := new(big.Int).Mul(t, wNum)
		num.Mul(num, scaleDen)
		den := new(big.Int).Mul(wDen, scaleNum)

		q, r := new(big.Int).QuoRem(num, den, new(big.Int))
		slots[i] = slot{idx: i, floor: q.Int64(), remain: new(big.Rat).SetFrac(r, den)}
		floored += q.Int64()
	}

	order := make([]slot, len(slots))
	copy(order, slots)
	sort.SliceStable(order, func(a, b int) bool {
		if c := order[a].remain.Cmp(order[b].remain); c != 0 {
			return c > 0
		}
		wa, wb := parties[order[a].idx].Weight, parties[order[b].idx].Weight
		if c := wa.Cmp(wb); c != 0 {
			return c > 0
		}
		return parties[order[a].idx].ID < parties[order[b].idx].ID
	})

	leftover := int64(total) - floored
	n := int64(len(parties))
	passes, extra := leftover/n, leftover%n

	amounts := make([]int64, len(parties))
	for _, s := range slots {
		amounts[s.idx] = s.floor + passes
	}
	for i := int64(0); i < extra; i++ {
		amounts[order[i].idx]++
	}

	out := make([]Share, len(parties))
	for i, p := range parties {
		out[i] = Share{ID: p.ID, Amount: domain.Money(amounts[i])}
	}
	return out, nil
}

// Sum adds up allocated amounts.
func Sum(shares []Share) domain.Money {
	var s domain.Money
	for _, sh := range shares {
		s += sh.Amount
	}
	return s
}
