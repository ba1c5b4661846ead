package service

import (
	"context"
	"errors"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/shopspring/decimal"

	"github.com/punchamoorthee/procurefin/internal/domain"
	"github.com/punchamoorthee/procurefin/internal/paystatus"
	"github.com/punchamoorthee/procurefin/internal/taxcalc"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func payable(id, term string, total, paid domain.Money) domain.Payable {
	return domain.Payable{
		ID:         id,
		Number:     "PO-" + id,
		VendorName: "CV Sumber Baja",
		Base:       1_000_000,
		Tax:        110_000,
		Total:      total,
		Paid:       paid,
		TaxPercent: decimal.NewFromInt(11),
		Term:       term,
		OrderDate:  date(2025, 1, 10),
	}
}

func newPayableService(t *testing.T, payables ...domain.Payable) *PayableService {
	t.Helper()
	m := newMemStore()
	for _, p := range payables {
		m.payables[p.ID] = p
	}
	jakarta, err := time.LoadLocation("Asia/Jakarta")
	if err != nil {
		t.Fatalf("LoadLocation: %v", err)
	}
	s := NewPayableService(m, jakarta)
	// 2025-02-12 03:00 in Jakarta
	s.now = func() time.Time { return time.Date(2025, 2, 11, 20, 0, 0, 0, time.UTC) }
	return s
}

func TestPayableStatus(t *testing.T) {
	manual := date(2025, 3, 1)
	delivered := date(2025, 1, 20)
	overpaid := payable("4", "CBD", 1_110_000, 1_200_000)
	cod := payable("5", "COD", 1_110_000, 0)
	cod.DeliveryDate = &delivered
	withManual := payable("2", "NET30", 1_110_000, 400_000)
	withManual.ManualDueDate = &manual

	s := newPayableService(t,
		payable("1", "NET30", 1_110_000, 400_000),
		withManual,
		payable("3", "NET 60", 1_110_000, 0),
		overpaid,
		cod,
	)

	tests := []struct {
		id     string
		due    time.Time
		source string
		status paystatus.Status
		days   int
	}{
		{"1", date(2025, 2, 9), SourceAuto, paystatus.Overdue, 3},
		{"2", date(2025, 3, 1), SourceManual, paystatus.Partial, 0},
		{"3", date(2025, 3, 11), SourceAuto, paystatus.Unpaid, 0},
		{"4", date(2025, 1, 10), SourceAuto, paystatus.Paid, 0},
		{"5", date(2025, 1, 20), SourceAuto, paystatus.Overdue, 23},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			got, err := s.Status(context.Background(), tt.id)
			if err != nil {
				t.Fatalf("Status: %v", err)
			}
			if !got.DueDate.Equal(tt.due) || got.Source != tt.source {
				t.Fatalf("due = %s (%s), want %s (%s)", got.DueDate.Format("2006-01-02"), got.Source, tt.due.Format("2006-01-02"), tt.source)
			}
			if got.Status.Status != tt.status || got.Status.DaysOverdue != tt.days {
				t.Fatalf("status = %+v, want %s/%d", got.Status, tt.status, tt.days)
			}
		})
	}
}

func TestPayableStatusErrors(t *testing.T) {
	s := newPayableService(t, payable("bad", "EOM", 100, 0))
	if _, err := s.Status(context.Background(), "bad"); !errors.Is(err, domain.ErrInvalidTerm) {
		t.Fatalf("bad term: err = %v", err)
	}
	if _, err := s.Status(context.Background(), "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("missing: err = %v", err)
	}
}

func TestOutstandingTax(t *testing.T) {
	inclusive := payable("incl", "NET30", 1_000_000, 250_000)
	inclusive.Base, inclusive.Tax, inclusive.TaxInclusive = 1_000_000, 0, true

	s := newPayableService(t,
		payable("half", "NET30", 1_110_000, 555_000),
		payable("none", "NET30", 1_110_000, 0),
		payable("over", "NET30", 1_110_000, 2_000_000),
		inclusive,
	)

	tests := []struct {
		id          string
		outstanding domain.Money
		want        taxcalc.Breakdown
	}{
		{"half", 555_000, taxcalc.Breakdown{Base: 500_000, Tax: 55_000, Gross: 555_000}},
		{"none", 1_110_000, taxcalc.Breakdown{Base: 1_000_000, Tax: 110_000, Gross: 1_110_000}},
		{"over", 0, taxcalc.Breakdown{}},
		{"incl", 750_000, taxcalc.Breakdown{Base: 750_000, Tax: 0, Gross: 750_000}},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			got, err := s.OutstandingTax(context.Background(), tt.id)
			if err != nil {
				t.Fatalf("OutstandingTax: %v", err)
			}
			if got.Outstanding != tt.outstanding || got.Breakdown != tt.want {
				t.Fatalf("got %d %+v, want %d %+v", got.Outstanding, got.Breakdown, tt.outstanding, tt.want)
			}
			if got.Breakdown.Base+got.Breakdown.Tax != got.Breakdown.Gross {
				t.Fatalf("breakdown does not add up: %+v", got.Breakdown)
			}
		})
	}
}
