package domain

import (
	"encoding/json"
	"errors"
	"slices"
	"testing"
	"time"
)

func TestPlanLifecycle(t *testing.T) {
	p := Plan{ID: "p1", Status: PlanDraft}

	if err := p.Close(); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("close draft: err = %v", err)
	}
	if err := p.Activate(); err != nil {
		t.Fatalf("activate: %v", err)
	}
	if err := p.Activate(); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("activate twice: err = %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := p.EnsureOpen(); !errors.Is(err, ErrPlanClosed) {
		t.Fatalf("EnsureOpen on closed: err = %v", err)
	}
	if err := p.Activate(); !errors.Is(err, ErrPlanClosed) {
		t.Fatalf("activate closed: err = %v", err)
	}
	if err := p.Reopen(); err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if p.Status != PlanActive {
		t.Fatalf("status after reopen = %s", p.Status)
	}
	if err := p.Reopen(); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("reopen active: err = %v", err)
	}
}

func TestContributionPostRequiresSettlement(t *testing.T) {
	now := time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)
	c := Contribution{ID: "c1", Status: ContributionDraft}

	if err := c.Post("  ", now); !errors.Is(err, ErrSettlementRequired) {
		t.Fatalf("post without ref: err = %v", err)
	}
	if err := c.Post("BCA-001", now); err != nil {
		t.Fatalf("post: %v", err)
	}
	if c.Status != ContributionPosted || c.SettlementRef != "BCA-001" || c.PostedAt == nil {
		t.Fatalf("unexpected contribution after post: %+v", c)
	}
	if err := c.Post("BCA-001", now); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("post twice: err = %v", err)
	}
	if err := c.Void(now); err != nil {
		t.Fatalf("void: %v", err)
	}
	if err := c.Void(now); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("void twice: err = %v", err)
	}
}

func TestContributionPostUsesStoredSettlement(t *testing.T) {
	c := Contribution{ID: "c2", Status: ContributionDraft, SettlementRef: "MANDIRI-7"}
	if err := c.Post("", time.Now()); err != nil {
		t.Fatalf("post: %v", err)
	}
	if c.SettlementRef != "MANDIRI-7" {
		t.Fatalf("settlement ref = %q", c.SettlementRef)
	}
}

func TestObligationJSONFields(t *testing.T) {
	b, err := json.Marshal(Obligation{ID: "o1", PlanID: "p1", PartyID: "a", Amount: 600})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(b, &fields); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	got := make([]string, 0, len(fields))
	for k := range fields {
		got = append(got, k)
	}
	slices.Sort(got)
	want := []string{"amount", "created_at", "id", "party_id", "percent_snapshot", "plan_id"}
	if !slices.Equal(got, want) {
		t.Fatalf("fields = %v, want %v", got, want)
	}
}
