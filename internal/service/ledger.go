package service

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/punchamoorthee/procurefin/internal/domain"
	"github.com/punchamoorthee/procurefin/internal/events"
	"github.com/punchamoorthee/procurefin/internal/obligation"
	"github.com/punchamoorthee/procurefin/internal/store"
)

var (
	ErrIdempotencyConflict = store.ErrIdempotencyConflict
	ErrIdempotencyMismatch = errors.New("key reuse with mismatched payload")
)

var contributionsPosted = promauto.NewCounter(prometheus.CounterOpts{
	Name: "procurefin_contributions_posted_total",
	Help: "Contributions posted to the ledger",
})

// placeContribution runs FIFO placement for one freshly posted contribution
// and records its allocations. The caller holds the party lock.
func placeContribution(ctx context.Context, q store.Querier, c domain.Contribution, now time.Time) (obligation.Placement, error) {
	outstanding, err := q.ListOutstandingForParty(ctx, c.PartyID)
	if err != nil {
		return obligation.Placement{}, err
	}
	placement, err := obligation.AllocateFIFO(c.PartyID, c.Amount, outstanding)
	if err != nil {
		return obligation.Placement{}, err
	}
	if err := q.InsertAllocations(ctx, allocationRows(c.ID, placement, now)); err != nil {
		return obligation.Placement{}, err
	}
	return placement, nil
}

// applyCredit places the party's unallocated posted money on whatever the
// party now owes, oldest credit first. The caller holds the party lock.
func applyCredit(ctx context.Context, q store.Querier, partyID string, now time.Time) (domain.Money, error) {
	credits, err := q.ListCredit(ctx, partyID)
	if err != nil || len(credits) == 0 {
		return 0, err
	}
	outstanding, err := q.ListOutstandingForParty(ctx, partyID)
	if err != nil {
		return 0, err
	}

	var applied domain.Money
	var rows []domain.Allocation
	for _, c := range credits {
		placement, err := obligation.AllocateFIFO(partyID, c.Amount, outstanding)
		if err != nil {
			return 0, err
		}
		if len(placement.Allocations) == 0 {
			break
		}
		rows = append(rows, allocationRows(c.ContributionID, placement, now)...)
		consume(outstanding, placement)
		applied += placement.Allocated()
	}
	if err := q.InsertAllocations(ctx, rows); err != nil {
		return 0, err
	}
	return applied, nil
}

func allocationRows(contributionID string, p obligation.Placement, now time.Time) []domain.Allocation {
	rows := make([]domain.Allocation, 0, len(p.Allocations))
	for _, a := range p.Allocations {
		rows = append(rows, domain.Allocation{
			ID:             uuid.NewString(),
			ContributionID: contributionID,
			ObligationID:   a.ObligationID,
			Amount:         a.Allocated,
			CreatedAt:      now,
		})
	}
	return rows
}

func consume(outstanding []obligation.Outstanding, p obligation.Placement) {
	for _, a := range p.Allocations {
		for i := range outstanding {
			if outstanding[i].ObligationID == a.ObligationID {
				outstanding[i].Remaining -= a.Allocated
				break
			}
		}
	}
}

// partyIDs is the sorted union of the parties behind both obligation sets,
// the order in which their locks are taken.
func partyIDs(sets ...[]domain.Obligation) []string {
	seen := map[string]bool{}
	var ids []string
	for _, set := range sets {
		for _, o := range set {
			if !seen[o.PartyID] {
				seen[o.PartyID] = true
				ids = append(ids, o.PartyID)
			}
		}
	}
	sort.Strings(ids)
	return ids
}

func publish(ctx context.Context, pub events.Publisher, log *zap.Logger, e events.Event) {
	if err := pub.Publish(context.WithoutCancel(ctx), e); err != nil {
		log.Error("event publish failed", zap.String("type", e.Type), zap.String("id", e.ID), zap.Error(err))
	}
}
