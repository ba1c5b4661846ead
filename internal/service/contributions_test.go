package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"testing"
	"time"

	"github.com/punchamoorthee/procurefin/internal/domain"
	"github.com/punchamoorthee/procurefin/internal/events"
	"github.com/punchamoorthee/procurefin/internal/models"
	"github.com/punchamoorthee/procurefin/internal/obligation"
)

func (f *fixture) draft(t *testing.T, planID, partyID string, amount domain.Money, ref string) domain.Contribution {
	t.Helper()
	resp, err := f.contr.Record(context.Background(), models.RecordContributionRequest{
		PlanID: planID, PartyID: partyID, Amount: amount, SettlementRef: ref,
	})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	return resp.Contribution
}

func TestPostAllocatesOldestPeriodFirst(t *testing.T) {
	f := newFixture(shareholder("a", "100"))
	ctx := context.Background()
	feb := f.plan(t, time.February, 300_000_000, true)
	jan := f.plan(t, time.January, 200_000_000, true)
	c := f.draft(t, feb.ID, "a", 250_000_000, "BCA-001")

	resp, replay, err := f.contr.Post(ctx, c.ID, models.PostContributionRequest{}, "", "")
	if err != nil {
		t.Fatalf("Post: %v", err)
	}
	if replay != nil {
		t.Fatal("unexpected replay")
	}
	if resp.Contribution.Status != domain.ContributionPosted || resp.Contribution.SettlementRef != "BCA-001" {
		t.Fatalf("contribution = %+v", resp.Contribution)
	}

	want := []obligation.Allocation{
		{ObligationID: f.obligationOf(jan.ID, "a").ID, Allocated: 200_000_000},
		{ObligationID: f.obligationOf(feb.ID, "a").ID, Allocated: 50_000_000},
	}
	if !slices.Equal(resp.Placement.Allocations, want) {
		t.Fatalf("allocations = %+v, want %+v", resp.Placement.Allocations, want)
	}
	if resp.Placement.CreditLeft != 0 {
		t.Fatalf("credit left = %d", resp.Placement.CreditLeft)
	}
	if len(f.store.allocations) != 2 {
		t.Fatalf("stored allocations = %+v", f.store.allocations)
	}
	if !slices.Contains(f.events.types(), events.ContributionPosted) {
		t.Fatalf("events = %v", f.events.types())
	}
}

func TestPostTakesPlanThenPartyLock(t *testing.T) {
	f := newFixture(shareholder("a", "100"))
	p := f.plan(t, time.January, 1000, true)
	c := f.draft(t, p.ID, "a", 100, "BCA-001")
	f.store.locks = nil

	if _, _, err := f.contr.Post(context.Background(), c.ID, models.PostContributionRequest{}, "", ""); err != nil {
		t.Fatalf("Post: %v", err)
	}
	want := []string{"plan-shared:" + p.ID, "party:a"}
	if !slices.Equal(f.store.locks, want) {
		t.Fatalf("locks = %v, want %v", f.store.locks, want)
	}
}

func TestPostRejections(t *testing.T) {
	f := newFixture(shareholder("a", "100"))
	ctx := context.Background()
	p := f.plan(t, time.January, 1000, true)

	noRef := f.draft(t, p.ID, "a", 100, "")
	if _, _, err := f.contr.Post(ctx, noRef.ID, models.PostContributionRequest{SettlementRef: "  "}, "", ""); !errors.Is(err, domain.ErrSettlementRequired) {
		t.Fatalf("no settlement ref: err = %v", err)
	}

	c := f.draft(t, p.ID, "a", 100, "BCA-001")
	if _, err := f.plans.Close(ctx, p.ID); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, _, err := f.contr.Post(ctx, c.ID, models.PostContributionRequest{}, "", ""); !errors.Is(err, domain.ErrPlanClosed) {
		t.Fatalf("closed plan: err = %v", err)
	}
	stored, _ := f.store.GetContributionForUpdate(ctx, c.ID)
	if stored.Status != domain.ContributionDraft || len(f.store.allocations) != 0 {
		t.Fatalf("failed post left changes: %+v %+v", stored, f.store.allocations)
	}

	if _, err := f.plans.Reopen(ctx, p.ID); err != nil {
		t.Fatalf("Reopen: %v", err)
	}
	if _, _, err := f.contr.Post(ctx, c.ID, models.PostContributionRequest{}, "", ""); err != nil {
		t.Fatalf("Post after reopen: %v", err)
	}
	if _, _, err := f.contr.Post(ctx, c.ID, models.PostContributionRequest{}, "", ""); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("double post: err = %v", err)
	}
	if _, _, err := f.contr.Post(ctx, "missing", models.PostContributionRequest{}, "", ""); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("missing contribution: err = %v", err)
	}
}

func TestPostIdempotency(t *testing.T) {
	f := newFixture(shareholder("a", "100"))
	ctx := context.Background()
	p := f.plan(t, time.January, 1000, true)
	c := f.draft(t, p.ID, "a", 400, "BCA-001")

	first, replay, err := f.contr.Post(ctx, c.ID, models.PostContributionRequest{}, "key-1", "hash-1")
	if err != nil || replay != nil || first == nil {
		t.Fatalf("first Post = %v, %v, %v", first, replay, err)
	}

	again, replay, err := f.contr.Post(ctx, c.ID, models.PostContributionRequest{}, "key-1", "hash-1")
	if err != nil {
		t.Fatalf("replayed Post: %v", err)
	}
	if again != nil || replay == nil || replay.ResponseStatus != http.StatusOK {
		t.Fatalf("replay = %+v", replay)
	}
	var body models.ContributionResponse
	if err := json.Unmarshal(replay.ResponseBody, &body); err != nil {
		t.Fatalf("replay body: %v", err)
	}
	if body.Contribution.ID != c.ID || body.Placement.Allocated() != 400 {
		t.Fatalf("replay body = %+v", body)
	}
	if len(f.store.allocations) != 1 {
		t.Fatalf("replay allocated again: %+v", f.store.allocations)
	}

	if _, _, err := f.contr.Post(ctx, c.ID, models.PostContributionRequest{}, "key-1", "hash-2"); !errors.Is(err, ErrIdempotencyMismatch) {
		t.Fatalf("mismatched payload: err = %v", err)
	}

	f.store.keys["key-2"] = idemEntry{rec: models.IdempotencyRecord{Key: "key-2", Status: "in_progress"}, hash: "hash-3"}
	if _, _, err := f.contr.Post(ctx, c.ID, models.PostContributionRequest{}, "key-2", "hash-3"); !errors.Is(err, ErrIdempotencyConflict) {
		t.Fatalf("in-progress key: err = %v", err)
	}
}

func TestRecordValidation(t *testing.T) {
	f := newFixture(shareholder("a", "100"))
	ctx := context.Background()
	p := f.plan(t, time.January, 1000, true)

	tests := []struct {
		name string
		req  models.RecordContributionRequest
		want error
	}{
		{"zero amount", models.RecordContributionRequest{PlanID: p.ID, PartyID: "a"}, domain.ErrInvalidAmount},
		{"missing party", models.RecordContributionRequest{PlanID: p.ID, Amount: 1}, domain.ErrInvalidInput},
		{"unknown plan", models.RecordContributionRequest{PlanID: "nope", PartyID: "a", Amount: 1}, domain.ErrNotFound},
		{"post without ref", models.RecordContributionRequest{PlanID: p.ID, PartyID: "a", Amount: 1, Post: true}, domain.ErrSettlementRequired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.contr.Record(ctx, tt.req); !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
	if len(f.store.contributions) != 0 {
		t.Fatalf("rejected records were stored: %+v", f.store.contributions)
	}

	resp, err := f.contr.Record(ctx, models.RecordContributionRequest{PlanID: p.ID, PartyID: "a", Amount: 10})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if resp.Contribution.ContributedOn.IsZero() || resp.Placement != nil {
		t.Fatalf("draft = %+v", resp)
	}
}

func TestVoidReversesAndReappliesCredit(t *testing.T) {
	f := newFixture(shareholder("a", "100"))
	ctx := context.Background()
	p := f.plan(t, time.January, 200, true)

	first, err := f.contr.Record(ctx, models.RecordContributionRequest{PlanID: p.ID, PartyID: "a", Amount: 150, SettlementRef: "BCA-001", Post: true})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	second, err := f.contr.Record(ctx, models.RecordContributionRequest{PlanID: p.ID, PartyID: "a", Amount: 100, SettlementRef: "BCA-001", Post: true})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if second.Placement.CreditLeft != 50 {
		t.Fatalf("second credit = %d", second.Placement.CreditLeft)
	}

	voided, err := f.contr.Void(ctx, first.Contribution.ID)
	if err != nil {
		t.Fatalf("Void: %v", err)
	}
	if voided.Contribution.Status != domain.ContributionVoid || voided.Contribution.VoidedAt == nil {
		t.Fatalf("voided = %+v", voided.Contribution)
	}

	ob := f.obligationOf(p.ID, "a")
	if got := f.store.allocatedTo(ob.ID); got != 100 {
		t.Fatalf("allocated after void = %d, want 100", got)
	}
	if got := f.store.allocatedFrom(first.Contribution.ID); got != 0 {
		t.Fatalf("voided contribution still allocates %d", got)
	}
	if len(f.store.allocations) != 3 {
		t.Fatalf("history rows = %d, want 3", len(f.store.allocations))
	}

	rec, err := f.plans.Reconcile(ctx, p.ID)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if rec.Rows[0].Paid != 100 || rec.Rows[0].Remaining != 100 {
		t.Fatalf("row = %+v", rec.Rows[0])
	}

	if _, err := f.contr.Void(ctx, first.Contribution.ID); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("double void: err = %v", err)
	}
	if !slices.Contains(f.events.types(), events.ContributionVoided) {
		t.Fatalf("events = %v", f.events.types())
	}
}

func TestVoidDraft(t *testing.T) {
	f := newFixture(shareholder("a", "100"))
	p := f.plan(t, time.January, 200, true)
	c := f.draft(t, p.ID, "a", 50, "")

	resp, err := f.contr.Void(context.Background(), c.ID)
	if err != nil {
		t.Fatalf("Void: %v", err)
	}
	if resp.Contribution.Status != domain.ContributionVoid {
		t.Fatalf("status = %s", resp.Contribution.Status)
	}
}
