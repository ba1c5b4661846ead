package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/punchamoorthee/procurefin/internal/domain"
	"github.com/punchamoorthee/procurefin/internal/duedate"
	"github.com/punchamoorthee/procurefin/internal/obligation"
	"github.com/punchamoorthee/procurefin/internal/paystatus"
	"github.com/punchamoorthee/procurefin/internal/proration"
	"github.com/punchamoorthee/procurefin/internal/taxcalc"
)

// IdempotencyRecord is a stored response for a replayed Idempotency-Key.
type IdempotencyRecord struct {
	Key            string          `json:"key"`
	Status         string          `json:"status"`
	ResponseBody   json.RawMessage `json:"response_body"`
	ResponseStatus int             `json:"response_status"`
}

const dateLayout = "2006-01-02"

// Date is a calendar date on the wire ("2025-01-10").
type Date struct {
	time.Time
}

func NewDate(t time.Time) Date { return Date{duedate.StartOfDay(t)} }

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.Format(dateLayout))
}

func (d *Date) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("date must be a string: %w", err)
	}
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("%w: date %q must be YYYY-MM-DD", domain.ErrInvalidInput, s)
	}
	d.Time = t
	return nil
}

// Ptr returns nil for an absent date.
func (d *Date) Ptr() *time.Time {
	if d == nil || d.IsZero() {
		return nil
	}
	t := d.Time
	return &t
}

// Calculators

type ProrateRequest struct {
	Total   domain.Money      `json:"total"`
	Parties []proration.Party `json:"parties"`
}

type ProrateResponse struct {
	Total  domain.Money      `json:"total"`
	Shares []proration.Share `json:"shares"`
}

type TaxBaseRequest struct {
	Base      domain.Money    `json:"base"`
	Percent   decimal.Decimal `json:"percent"`
	Inclusive bool            `json:"inclusive"`
	Lines     []taxcalc.Line  `json:"lines,omitempty"`
}

type TaxGrossRequest struct {
	Gross     domain.Money    `json:"gross"`
	Percent   decimal.Decimal `json:"percent"`
	Inclusive bool            `json:"inclusive"`
}

type TaxProportionalRequest struct {
	KnownBase   domain.Money    `json:"known_base"`
	KnownTax    domain.Money    `json:"known_tax"`
	KnownTotal  domain.Money    `json:"known_total"`
	Percent     decimal.Decimal `json:"percent"`
	Inclusive   bool            `json:"inclusive"`
	TargetGross domain.Money    `json:"target_gross"`
}

type DueDateRequest struct {
	ReferenceDate Date         `json:"reference_date"`
	FallbackDate  *Date        `json:"fallback_date,omitempty"`
	Term          duedate.Term `json:"term"`
	ManualDueDate *Date        `json:"manual_due_date,omitempty"`
}

type DueDateResponse struct {
	Computed Date   `json:"computed"`
	DueDate  Date   `json:"due_date"`
	Source   string `json:"source"`
}

type PaymentStatusRequest struct {
	Total   domain.Money `json:"total"`
	Paid    domain.Money `json:"paid"`
	DueDate *Date        `json:"due_date,omitempty"`
	Today   *Date        `json:"today,omitempty"`
}

type FIFORequest struct {
	PartyID     string                   `json:"party_id"`
	Amount      domain.Money             `json:"amount"`
	Outstanding []obligation.Outstanding `json:"outstanding"`
}

// Ledger

type CreatePlanRequest struct {
	Name   string       `json:"name"`
	Period Date         `json:"period"`
	Target domain.Money `json:"target"`
}

type PlanResponse struct {
	Plan        domain.Plan         `json:"plan"`
	Obligations []domain.Obligation `json:"obligations"`
}

type SnapshotResponse struct {
	Plan          domain.Plan         `json:"plan"`
	Obligations   []domain.Obligation `json:"obligations"`
	CreditApplied domain.Money        `json:"credit_applied"`
}

type ReconciliationResponse struct {
	Plan    domain.Plan        `json:"plan"`
	Rows    []obligation.Row   `json:"rows"`
	Summary obligation.Summary `json:"summary"`
}

type RecordContributionRequest struct {
	PlanID        string       `json:"plan_id"`
	PartyID       string       `json:"party_id"`
	Amount        domain.Money `json:"amount"`
	ContributedOn Date         `json:"contributed_on"`
	SettlementRef string       `json:"settlement_ref,omitempty"`
	Post          bool         `json:"post"`
}

type PostContributionRequest struct {
	SettlementRef string `json:"settlement_ref"`
}

type ContributionResponse struct {
	Contribution domain.Contribution   `json:"contribution"`
	Placement    *obligation.Placement `json:"placement,omitempty"`
}

type PayableStatusResponse struct {
	PayableID string           `json:"payable_id"`
	Number    string           `json:"number"`
	DueDate   Date             `json:"due_date"`
	Source    string           `json:"due_date_source"`
	Status    paystatus.Result `json:"payment"`
}

type OutstandingTaxResponse struct {
	PayableID   string            `json:"payable_id"`
	Outstanding domain.Money      `json:"outstanding"`
	Breakdown   taxcalc.Breakdown `json:"breakdown"`
}
