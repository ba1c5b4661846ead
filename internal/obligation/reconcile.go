// Package obligation generates capital-call obligations from ownership,
// reconciles them against posted contributions, and places incoming
// contributions on outstanding obligations oldest period first.
//
// Everything here is pure. Atomic regeneration and per-party serialization of
// FIFO placement are the caller's transaction's job (see internal/service).
package obligation

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/punchamoorthee/procurefin/internal/domain"
	"github.com/punchamoorthee/procurefin/internal/proration"
)

// Weights turns the active parties into proration input.
func Weights(parties []domain.Party) []proration.Party {
	out := make([]proration.Party, 0, len(parties))
	for _, p := range parties {
		if !p.Active {
			continue
		}
		out = append(out, proration.Party{ID: p.ID, Weight: p.Ownership})
	}
	return out
}

// Snapshot prorates the plan target over the active parties' current
// ownership, one obligation per party.
func Snapshot(plan domain.Plan, parties []domain.Party, now time.Time) ([]domain.Obligation, error) {
	if err := plan.EnsureOpen(); err != nil {
		return nil, err
	}
	weights := Weights(parties)
	shares, err := proration.Allocate(plan.Target, weights)
	if err != nil {
		return nil, fmt.Errorf("snapshot plan %s: %w", plan.ID, err)
	}

	out := make([]domain.Obligation, len(shares))
	for i, s := range shares {
		out[i] = domain.Obligation{
			ID:              uuid.NewString(),
			PlanID:          plan.ID,
			PartyID:         s.ID,
			PercentSnapshot: weights[i].Weight,
			Amount:          s.Amount,
			CreatedAt:       now,
		}
	}
	return out, nil
}

type Class string

const (
	Under Class = "under"
	Over  Class = "over"
	OK    Class = "ok"
)

// Row is one party's line in the reconciliation view. Paid counts posted
// contributions recorded under the plan; Allocated counts money actually
// placed on the party's obligation, which may come from other plans' payments.
// Remaining is negative when the party has overpaid.
type Row struct {
	PartyID    string       `json:"party_id"`
	Obligation domain.Money `json:"obligation"`
	Paid       domain.Money `json:"paid"`
	Allocated  domain.Money `json:"allocated"`
	Remaining  domain.Money `json:"remaining"`
	Class      Class        `json:"class"`
}

func classify(remaining domain.Money) Class {
	switch {
	case remaining > 0:
		return Under
	case remaining < 0:
		return Over
	default:
		return OK
	}
}

// Reconcile compares each party's obligation with its posted contributions
// under the plan. allocated holds active allocations keyed by obligation id.
// Rows follow obligation order; parties that paid without an obligation are
// appended by id.
func Reconcile(plan domain.Plan, obligations []domain.Obligation, contributions []domain.Contribution, allocated map[string]domain.Money) []Row {
	var order []string
	owed := map[string]domain.Money{}
	placed := map[string]domain.Money{}
	for _, o := range obligations {
		if o.PlanID != plan.ID {
			continue
		}
		if _, seen := owed[o.PartyID]; !seen {
			order = append(order, o.PartyID)
		}
		owed[o.PartyID] += o.Amount
		placed[o.PartyID] += allocated[o.ID]
	}

	paid := map[string]domain.Money{}
	var extra []string
	for _, c := range contributions {
		if c.PlanID != plan.ID || c.Status != domain.ContributionPosted {
			continue
		}
		if _, ok := owed[c.PartyID]; !ok {
			if _, seen := paid[c.PartyID]; !seen {
				extra = append(extra, c.PartyID)
			}
		}
		paid[c.PartyID] += c.Amount
	}
	sort.Strings(extra)
	order = append(order, extra...)

	rows := make([]Row, len(order))
	for i, id := range order {
		remaining := owed[id] - paid[id]
		rows[i] = Row{
			PartyID:    id,
			Obligation: owed[id],
			Paid:       paid[id],
			Allocated:  placed[id],
			Remaining:  remaining,
			Class:      classify(remaining),
		}
	}
	return rows
}

// Summary totals a reconciliation view.
type Summary struct {
	Obligation domain.Money `json:"obligation"`
	Paid       domain.Money `json:"paid"`
	Allocated  domain.Money `json:"allocated"`
	Remaining  domain.Money `json:"remaining"`
	Under      int          `json:"under"`
	Over       int          `json:"over"`
	OK         int          `json:"ok"`
}

func Summarize(rows []Row) Summary {
	var s Summary
	for _, r := range rows {
		s.Obligation += r.Obligation
		s.Paid += r.Paid
		s.Allocated += r.Allocated
		s.Remaining += r.Remaining
		switch r.Class {
		case Under:
			s.Under++
		case Over:
			s.Over++
		default:
			s.OK++
		}
	}
	return s
}
