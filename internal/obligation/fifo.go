package obligation

import (
	"fmt"
	"sort"
	"time"

	"github.com/punchamoorthee/procurefin/internal/domain"
)

// Outstanding is an obligation with what is still owed on it.
type Outstanding struct {
	ObligationID string       `json:"obligation_id"`
	PartyID      string       `json:"party_id"`
	Period       time.Time    `json:"period"`
	Remaining    domain.Money `json:"remaining"`
}

type Allocation struct {
	ObligationID string       `json:"obligation_id"`
	Allocated    domain.Money `json:"allocated"`
}

// Placement is where a contribution went. Sum(Allocated)+CreditLeft always
// equals the amount placed.
type Placement struct {
	Allocations []Allocation `json:"allocations"`
	CreditLeft  domain.Money `json:"credit_left"`
}

func (p Placement) Allocated() domain.Money {
	var s domain.Money
	for _, a := range p.Allocations {
		s += a.Allocated
	}
	return s
}

// AllocateFIFO places amount on the party's outstanding obligations in
// ascending period order. Whatever is left once they are all covered is
// returned as credit for the next obligation that becomes outstanding.
// Entries for other parties or with nothing remaining are skipped.
func AllocateFIFO(partyID string, amount domain.Money, outstanding []Outstanding) (Placement, error) {
	if amount < 0 {
		return Placement{}, fmt.Errorf("%w: contribution %d is negative", domain.ErrInvalidAmount, amount)
	}

	queue := make([]Outstanding, 0, len(outstanding))
	for _, o := range outstanding {
		if o.PartyID == partyID && o.Remaining > 0 {
			queue = append(queue, o)
		}
	}
	sort.SliceStable(queue, func(i, j int) bool { return queue[i].Period.Before(queue[j].Period) })

	out := Placement{Allocations: []Allocation{}}
	left := amount
	for _, o := range queue {
		if left == 0 {
			break
		}
		take := min(left, o.Remaining)
		out.Allocations = append(out.Allocations, Allocation{ObligationID: o.ObligationID, Allocated: take})
		left -= take
	}
	out.CreditLeft = left
	return out, nil
}
