package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Party is a shareholder or vendor that takes part in a proration. Ownership is
// a percentage; the set of active parties need not sum to exactly 100.
type Party struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Ownership decimal.Decimal `json:"ownership"`
	Active    bool            `json:"active"`
	CreatedAt time.Time       `json:"created_at"`
}

type PlanStatus string

const (
	PlanDraft  PlanStatus = "draft"
	PlanActive PlanStatus = "active"
	PlanClosed PlanStatus = "closed"
)

// Plan is a capital-call plan. Period orders plans chronologically.
type Plan struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Period    time.Time  `json:"period"`
	Target    Money      `json:"target"`
	Status    PlanStatus `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Activate moves a draft plan to active.
func (p *Plan) Activate() error {
	switch p.Status {
	case PlanDraft:
		p.Status = PlanActive
		return nil
	case PlanClosed:
		return fmt.Errorf("%w: activate plan %s", ErrPlanClosed, p.ID)
	default:
		return fmt.Errorf("%w: plan %s is already %s", ErrInvalidTransition, p.ID, p.Status)
	}
}

// Close forbids further posted contributions against the plan.
func (p *Plan) Close() error {
	if p.Status != PlanActive {
		return fmt.Errorf("%w: cannot close %s plan %s", ErrInvalidTransition, p.Status, p.ID)
	}
	p.Status = PlanClosed
	return nil
}

// Reopen returns a closed plan to active.
func (p *Plan) Reopen() error {
	if p.Status != PlanClosed {
		return fmt.Errorf("%w: cannot reopen %s plan %s", ErrInvalidTransition, p.Status, p.ID)
	}
	p.Status = PlanActive
	return nil
}

// EnsureOpen fails with ErrPlanClosed when the plan no longer accepts
// snapshots or posted contributions.
func (p Plan) EnsureOpen() error {
	if p.Status == PlanClosed {
		return fmt.Errorf("%w: plan %s", ErrPlanClosed, p.ID)
	}
	return nil
}

// Obligation is one party's share of a plan target. It is written once per
// snapshot and only a new snapshot replaces it.
type Obligation struct {
	ID              string          `json:"id"`
	PlanID          string          `json:"plan_id"`
	PartyID         string          `json:"party_id"`
	PercentSnapshot decimal.Decimal `json:"percent_snapshot"`
	Amount          Money           `json:"amount"`
	CreatedAt       time.Time       `json:"created_at"`
}

type ContributionStatus string

const (
	ContributionDraft  ContributionStatus = "draft"
	ContributionPosted ContributionStatus = "posted"
	ContributionVoid   ContributionStatus = "void"
)

// Contribution is a payment by a party recorded against a plan. Only posted
// contributions count toward paid totals.
type Contribution struct {
	ID            string             `json:"id"`
	PlanID        string             `json:"plan_id"`
	PartyID       string             `json:"party_id"`
	Amount        Money              `json:"amount"`
	ContributedOn time.Time          `json:"contributed_on"`
	Status        ContributionStatus `json:"status"`
	SettlementRef string             `json:"settlement_ref,omitempty"`
	PostedAt      *time.Time         `json:"posted_at,omitempty"`
	VoidedAt      *time.Time         `json:"voided_at,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
}

// Post marks a draft contribution as posted against a settlement account.
func (c *Contribution) Post(settlementRef string, at time.Time) error {
	if c.Status != ContributionDraft {
		return fmt.Errorf("%w: cannot post %s contribution %s", ErrInvalidTransition, c.Status, c.ID)
	}
	ref := strings.TrimSpace(settlementRef)
	if ref == "" {
		ref = strings.TrimSpace(c.SettlementRef)
	}
	if ref == "" {
		return fmt.Errorf("%w: contribution %s", ErrSettlementRequired, c.ID)
	}
	c.SettlementRef = ref
	c.Status = ContributionPosted
	c.PostedAt = &at
	return nil
}

// Void reverses a contribution's effect while keeping its record.
func (c *Contribution) Void(at time.Time) error {
	if c.Status == ContributionVoid {
		return fmt.Errorf("%w: contribution %s is already void", ErrInvalidTransition, c.ID)
	}
	c.Status = ContributionVoid
	c.VoidedAt = &at
	return nil
}

// Allocation is the part of a contribution applied to one obligation.
type Allocation struct {
	ID             string     `json:"id"`
	ContributionID string     `json:"contribution_id"`
	ObligationID   string     `json:"obligation_id"`
	Amount         Money      `json:"amount"`
	CreatedAt      time.Time  `json:"created_at"`
	ReversedAt     *time.Time `json:"reversed_at,omitempty"`
}

// Payable is a purchase-order payable header: tax fields, settled amount and
// the inputs of its due date.
type Payable struct {
	ID            string          `json:"id"`
	Number        string          `json:"number"`
	VendorName    string          `json:"vendor_name"`
	Base          Money           `json:"base"`
	Tax           Money           `json:"tax"`
	Total         Money           `json:"total"`
	Paid          Money           `json:"paid"`
	TaxPercent    decimal.Decimal `json:"tax_percent"`
	TaxInclusive  bool            `json:"tax_inclusive"`
	Term          string          `json:"term"`
	OrderDate     time.Time       `json:"order_date"`
	DeliveryDate  *time.Time      `json:"delivery_date,omitempty"`
	ManualDueDate *time.Time      `json:"manual_due_date,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}
